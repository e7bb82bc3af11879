package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// EventsSince is the catch-up feed: an ordered, finite snapshot of
// everything that changed for userID after since. Clients that were
// offline during fanout poll this on reconnect; they de-duplicate by
// match id, so delivery is at-least-once.
//
// Events are synthesized from current state, not replayed from a log.
// A match that merged two contexts while the client was away shows up
// once, already merged.
func (e *Engine) EventsSince(ctx context.Context, userID uint, since time.Time) ([]Event, error) {
	matches, err := e.matches.ListUpdatedSince(ctx, userID, since, e.feedLimit)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		var typ EventType
		switch {
		case !m.IsActive:
			typ = EventUnmatch
		case m.CreatedAt.After(since):
			typ = EventMatchCreated
		default:
			typ = EventMatchUpdated
		}
		ev := matchEvent(typ, userID, m, m.Origin, m.LastActivityAt, PriorityHigh)
		events = append(events, ev)
	}

	likes, err := e.connections.ListInboundLikesSince(ctx, userID, since, e.feedLimit)
	if err != nil {
		return nil, err
	}
	for _, l := range likes {
		events = append(events, Event{
			ID:          uuid.NewString(),
			Type:        EventLikeReceived,
			RecipientID: userID,
			Context:     l.Context,
			Payload: map[string]interface{}{
				"actor_id": l.ActorID,
			},
			Timestamp: l.UpdatedAt,
			Priority:  PriorityNormal,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	if len(events) > e.feedLimit {
		events = events[:e.feedLimit]
	}
	return events, nil
}
