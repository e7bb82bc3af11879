package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InvalidationChannel is the redis pub/sub channel that carries
// cache-invalidation notices between server nodes, so a client
// connected to a different node than the one that mutated the data
// still learns its cached views are stale.
const InvalidationChannel = "crosslink.invalidate"

type invalidationMessage struct {
	Node    string `json:"node"`
	MatchID uint   `json:"match_id"`
	Reason  string `json:"reason"`
	UserIDs []uint `json:"user_ids"`
}

// invalidate tells the affected clients to drop derived cached views.
// Purely advisory: it carries no authoritative data and rides the same
// fanout path as other events, at the lowest priority.
func (e *Engine) invalidate(ctx context.Context, matchID uint, reason string, userIDs ...uint) {
	e.fanoutInvalidation(matchID, reason, userIDs)

	msg := invalidationMessage{
		Node:    e.nodeID,
		MatchID: matchID,
		Reason:  reason,
		UserIDs: userIDs,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		e.log.WithError(err).Error("invalidation marshal failed")
		return
	}
	if err := e.cache.Publish(ctx, InvalidationChannel, b); err != nil {
		e.log.WithError(err).Warn("invalidation publish failed")
	}
}

func (e *Engine) fanoutInvalidation(matchID uint, reason string, userIDs []uint) {
	now := time.Now().UTC()
	for _, uid := range userIDs {
		e.send(Event{
			ID:          uuid.NewString(),
			Type:        EventCacheInvalidate,
			RecipientID: uid,
			MatchID:     matchID,
			Payload: map[string]interface{}{
				"match_id": matchID,
				"reason":   reason,
			},
			Timestamp: now,
			Priority:  PriorityLow,
		})
	}
}

// RunInvalidationRelay subscribes to the invalidation channel and
// forwards notices published by other nodes to locally connected
// clients. Messages from this node are skipped; they were already
// fanned out directly. Blocks until ctx is canceled.
func (e *Engine) RunInvalidationRelay(ctx context.Context) {
	sub := e.cache.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var inv invalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				e.log.WithError(err).Warn("bad invalidation message")
				continue
			}
			if inv.Node == e.nodeID {
				continue
			}
			e.fanoutInvalidation(inv.MatchID, inv.Reason, inv.UserIDs)
		}
	}
}
