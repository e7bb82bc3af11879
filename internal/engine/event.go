package engine

import (
	"context"
	"time"

	"crosslink-server/internal/models"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMatchCreated    EventType = "match_created"
	EventMatchUpdated    EventType = "match_updated"
	EventLikeReceived    EventType = "like_received"
	EventUnmatch         EventType = "unmatch"
	EventCacheInvalidate EventType = "cache_invalidate"
)

// Priority decides flush order when multiple events are pending for
// the same recipient. Match confirmations beat plain likes so a client
// never renders a like toast immediately followed by the match popup
// for the same interaction; staleness notices can always wait.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Event is the wire shape pushed over a client's channel and returned
// by the catch-up feed. Within a priority class, delivery order to a
// recipient equals enqueue order.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	RecipientID uint                   `json:"recipient_user_id"`
	MatchID     uint                   `json:"match_id,omitempty"`
	Context     models.Context         `json:"context,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Priority    Priority               `json:"-"`
}

// Notifier is the single outbound delivery path. Send is best-effort
// and non-blocking; false means the recipient was offline or their
// buffer was full. The catch-up feed is the correctness backstop.
type Notifier interface {
	Send(userID uint, event Event) bool
}

// MatchObserver receives relationship facts for external
// collaborators, e.g. the chat service materializing a conversation.
type MatchObserver interface {
	MatchConfirmed(ctx context.Context, match *models.Match, via models.Context) error
	Unmatched(ctx context.Context, match *models.Match, initiatorID uint) error
}

func matchEvent(typ EventType, recipientID uint, m *models.Match, via models.Context, ts time.Time, prio Priority) Event {
	otherID, _ := m.OtherUser(recipientID)
	return Event{
		ID:          uuid.NewString(),
		Type:        typ,
		RecipientID: recipientID,
		MatchID:     m.ID,
		Context:     via,
		Payload: map[string]interface{}{
			"match_id":            m.ID,
			"other_user_id":       otherID,
			"origin":              m.Origin,
			"additional_contexts": m.AdditionalContexts,
			"is_active":           m.IsActive,
		},
		Timestamp: ts,
		Priority:  prio,
	}
}
