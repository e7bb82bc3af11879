package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crosslink-server/internal/config"
	"crosslink-server/internal/models"
	"crosslink-server/internal/redis"
	"crosslink-server/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Engine owns the cross-context match lifecycle: it persists directed
// interest, detects reciprocity, reconciles mutual interest from any
// context into the single canonical Match per user pair, and fans the
// resulting state changes out to connected clients.
//
// All reads and writes for one pair go through that pair's lock, so
// two users acting within milliseconds of each other still produce
// exactly one match. The critical section is lock, read, conditionally
// write, unlock; notifications and cache maintenance happen after
// release.
type Engine struct {
	connections *repository.ConnectionRepository
	matches     *repository.MatchRepository
	cache       *redis.Client
	notifier    Notifier
	observers   []MatchObserver
	locks       *PairLocker

	lockTimeout  time.Duration
	likeCountTTL time.Duration
	feedLimit    int
	nodeID       string

	log *logrus.Entry
}

func New(db *gorm.DB, cache *redis.Client, notifier Notifier, cfg *config.Config) *Engine {
	return &Engine{
		connections:  repository.NewConnectionRepository(db),
		matches:      repository.NewMatchRepository(db),
		cache:        cache,
		notifier:     notifier,
		locks:        NewPairLocker(),
		lockTimeout:  cfg.PairLockTimeout,
		likeCountTTL: cfg.LikeCountTTL,
		feedLimit:    cfg.FeedLimit,
		nodeID:       uuid.NewString(),
		log:          logrus.WithField("component", "engine"),
	}
}

// AddObserver registers an outbound collaborator hook. Observers run
// after the critical section; their errors are logged, never
// propagated to the acting user.
func (e *Engine) AddObserver(o MatchObserver) {
	e.observers = append(e.observers, o)
}

// ActResult is what the acting user's synchronous request sees. The
// other party's real-time notification is best-effort and invisible
// here.
type ActResult struct {
	Connection *models.Connection `json:"connection"`
	Match      *models.Match      `json:"match,omitempty"`
	Mutual     bool               `json:"mutual"`
}

// transition classifies what confirmMatch did to the canonical row.
type transition int

const (
	transitionNone transition = iota
	transitionCreated
	transitionMerged
	transitionReconfirmed
	transitionReactivated
)

// Act records actorID's like/pass on a target profile and runs the
// full pipeline: resolve, persist, reciprocity check, match
// confirmation, fanout.
//
// Errors: ErrNotFound (unknown profile), ErrInvalidOperation
// (self-action, bad enum), ErrBusy (lock timeout), ErrDuplicateAction
// (state already held — the returned result is still valid and the
// caller should treat it as success with no change).
func (e *Engine) Act(ctx context.Context, actorID, profileID uint, ictx models.Context, action models.Action) (*ActResult, error) {
	if !ictx.Valid() {
		return nil, fmt.Errorf("%w: unknown context %q", ErrInvalidOperation, ictx)
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidOperation, action)
	}

	profile, err := e.connections.ResolveProfile(ctx, profileID, ictx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: profile %d in context %s", ErrNotFound, profileID, ictx)
		}
		return nil, err
	}
	if profile.UserID == actorID {
		return nil, fmt.Errorf("%w: cannot act on your own profile", ErrInvalidOperation)
	}
	targetID := profile.UserID

	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	release, err := e.locks.Acquire(lockCtx, PairKey(actorID, targetID))
	if err != nil {
		return nil, err
	}

	res, tr, prev, err := e.applyAction(ctx, actorID, targetID, profileID, ictx, action)
	release()
	if err != nil {
		return res, err
	}

	e.dispatch(ctx, res, tr, actorID, targetID, ictx, action, prev)
	return res, nil
}

// applyAction is the body of the critical section. It must not block
// on anything beyond the database.
func (e *Engine) applyAction(ctx context.Context, actorID, targetID, profileID uint, ictx models.Context, action models.Action) (*ActResult, transition, *models.Connection, error) {
	prev, err := e.connections.FindByActorProfile(ctx, actorID, profileID)
	if err != nil {
		return nil, transitionNone, nil, err
	}

	// Identical action with identical outcome is a no-op. A re-like
	// whose earlier like never matched gets a fresh reciprocity check
	// first (the other side may have liked back after an unmatch
	// reset); when nothing changed, the row is left untouched so the
	// pending like does not resurface in catch-up feeds.
	if prev != nil && prev.Action == action {
		if action == models.ActionPass || prev.Matched {
			res := &ActResult{Connection: prev, Mutual: prev.Matched}
			if prev.Matched {
				low, high := PairOrder(actorID, targetID)
				res.Match, _ = e.matches.FindByPair(ctx, low, high)
			}
			return res, transitionNone, prev, ErrDuplicateAction
		}
		reciprocal, err := e.connections.FindReciprocal(ctx, actorID, targetID, ictx)
		if err != nil {
			return nil, transitionNone, prev, err
		}
		if reciprocal == nil {
			return &ActResult{Connection: prev}, transitionNone, prev, ErrDuplicateAction
		}
	}

	conn, err := e.connections.Upsert(ctx, actorID, targetID, profileID, ictx, action)
	if err != nil {
		return nil, transitionNone, prev, err
	}
	res := &ActResult{Connection: conn}

	if action != models.ActionLike {
		return res, transitionNone, prev, nil
	}

	reciprocal, err := e.connections.FindReciprocal(ctx, actorID, targetID, ictx)
	if err != nil {
		return nil, transitionNone, prev, err
	}
	if reciprocal == nil {
		// one-way like
		return res, transitionNone, prev, nil
	}

	match, tr, err := e.confirmMatch(ctx, actorID, targetID, ictx)
	if err != nil {
		return nil, transitionNone, prev, err
	}
	if err := e.connections.MarkMatched(ctx, conn.ID, reciprocal.ID); err != nil {
		return nil, transitionNone, prev, err
	}
	conn.Matched = true
	res.Match = match
	res.Mutual = true
	return res, tr, prev, nil
}

// confirmMatch creates or reconciles the canonical Match for a pair.
// Callers must hold the pair lock.
//
// Unmatch-then-rematch policy: the existing row is reactivated with
// its original immutable Origin; AdditionalContexts is reset, and the
// reconfirming context is re-added only if it differs from Origin.
func (e *Engine) confirmMatch(ctx context.Context, a, b uint, ictx models.Context) (*models.Match, transition, error) {
	low, high := PairOrder(a, b)
	now := time.Now().UTC()

	m, err := e.matches.FindByPair(ctx, low, high)
	if err != nil {
		return nil, transitionNone, err
	}

	switch {
	case m == nil:
		m = &models.Match{
			UserLowID:      low,
			UserHighID:     high,
			IsActive:       true,
			Origin:         ictx,
			LastActivityAt: now,
		}
		if err := e.matches.Create(ctx, m); err != nil {
			return nil, transitionNone, err
		}
		return m, transitionCreated, nil

	case !m.IsActive:
		m.IsActive = true
		m.AdditionalContexts = nil
		if ictx != m.Origin {
			m.AdditionalContexts = m.AdditionalContexts.Add(ictx)
		}
		m.LastActivityAt = now
		if err := e.matches.Save(ctx, m); err != nil {
			return nil, transitionNone, err
		}
		return m, transitionReactivated, nil

	case ictx != m.Origin && !m.AdditionalContexts.Contains(ictx):
		m.AdditionalContexts = m.AdditionalContexts.Add(ictx)
		m.LastActivityAt = now
		if err := e.matches.Save(ctx, m); err != nil {
			return nil, transitionNone, err
		}
		return m, transitionMerged, nil

	default:
		m.LastActivityAt = now
		if err := e.matches.Save(ctx, m); err != nil {
			return nil, transitionNone, err
		}
		return m, transitionReconfirmed, nil
	}
}

// dispatch runs after the pair lock is released: notifications, cache
// counters, observer hooks. Nothing here affects the actor's result.
func (e *Engine) dispatch(ctx context.Context, res *ActResult, tr transition, actorID, targetID uint, ictx models.Context, action models.Action, prev *models.Connection) {
	e.maintainLikeCount(ctx, targetID, action, prev)

	switch tr {
	case transitionCreated, transitionReactivated:
		e.fanoutMatch(EventMatchCreated, res.Match, ictx)
		e.invalidate(ctx, res.Match.ID, "match_confirmed", res.Match.UserLowID, res.Match.UserHighID)
		e.notifyObserversConfirmed(ctx, res.Match, ictx)

	case transitionMerged:
		e.fanoutMatch(EventMatchUpdated, res.Match, ictx)
		e.invalidate(ctx, res.Match.ID, "context_added", res.Match.UserLowID, res.Match.UserHighID)
		e.notifyObserversConfirmed(ctx, res.Match, ictx)

	case transitionReconfirmed:
		// both sides already knew; nothing to announce

	case transitionNone:
		if action == models.ActionLike {
			e.send(Event{
				ID:          uuid.NewString(),
				Type:        EventLikeReceived,
				RecipientID: targetID,
				Context:     ictx,
				Payload: map[string]interface{}{
					"actor_id": actorID,
				},
				Timestamp: time.Now().UTC(),
				Priority:  PriorityNormal,
			})
		}
	}
}

func (e *Engine) fanoutMatch(typ EventType, m *models.Match, via models.Context) {
	now := time.Now().UTC()
	for _, uid := range []uint{m.UserLowID, m.UserHighID} {
		e.send(matchEvent(typ, uid, m, via, now, PriorityHigh))
	}
}

// send pushes a single event through the notifier. A failed delivery
// is logged and forgotten; the catch-up feed guarantees the recipient
// eventually sees the state.
func (e *Engine) send(ev Event) {
	if delivered := e.notifier.Send(ev.RecipientID, ev); !delivered {
		e.log.WithFields(logrus.Fields{
			"type":      ev.Type,
			"recipient": ev.RecipientID,
		}).Debug("realtime delivery failed, catch-up feed will cover")
	}
}

func (e *Engine) maintainLikeCount(ctx context.Context, targetID uint, action models.Action, prev *models.Connection) {
	key := redis.KeyForLikeCount(targetID)
	switch {
	case action == models.ActionLike && (prev == nil || prev.Action == models.ActionPass):
		if _, err := e.cache.Incr(ctx, key); err != nil {
			e.log.WithError(err).Warn("like count incr failed")
			return
		}
	case action == models.ActionPass && prev != nil && prev.Action == models.ActionLike:
		if _, err := e.cache.Decr(ctx, key); err != nil {
			e.log.WithError(err).Warn("like count decr failed")
			return
		}
	default:
		return
	}
	if err := e.cache.Expire(ctx, key, e.likeCountTTL); err != nil {
		e.log.WithError(err).Warn("like count ttl refresh failed")
	}
}

func (e *Engine) notifyObserversConfirmed(ctx context.Context, m *models.Match, via models.Context) {
	for _, o := range e.observers {
		if err := o.MatchConfirmed(ctx, m, via); err != nil {
			e.log.WithError(err).WithField("match_id", m.ID).Error("match observer failed")
		}
	}
}

// Unmatch deactivates the canonical match. History stays; the row is
// never deleted. The other party gets an unmatch event telling their
// client to leave any active view for this pair, and both sides get a
// cache invalidation notice.
func (e *Engine) Unmatch(ctx context.Context, matchID, initiatorID uint) error {
	m, err := e.matches.FindByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: match %d", ErrNotFound, matchID)
		}
		return err
	}
	if !m.HasUser(initiatorID) {
		return fmt.Errorf("%w: not a participant of match %d", ErrInvalidOperation, matchID)
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	release, err := e.locks.Acquire(lockCtx, PairKey(m.UserLowID, m.UserHighID))
	if err != nil {
		return err
	}

	err = func() error {
		// re-read under the lock; a concurrent confirm may have
		// touched the row
		m, err = e.matches.FindByID(ctx, matchID)
		if err != nil {
			return err
		}
		if !m.IsActive {
			return ErrDuplicateAction
		}
		m.IsActive = false
		m.LastActivityAt = time.Now().UTC()
		if err := e.matches.Save(ctx, m); err != nil {
			return err
		}
		return e.connections.ResetMatchedForPair(ctx, m.UserLowID, m.UserHighID)
	}()
	release()
	if err != nil {
		return err
	}

	otherID, _ := m.OtherUser(initiatorID)
	e.send(Event{
		ID:          uuid.NewString(),
		Type:        EventUnmatch,
		RecipientID: otherID,
		MatchID:     m.ID,
		Payload: map[string]interface{}{
			"match_id":     m.ID,
			"initiator_id": initiatorID,
		},
		Timestamp: m.LastActivityAt,
		Priority:  PriorityHigh,
	})
	e.invalidate(ctx, m.ID, "unmatch", m.UserLowID, m.UserHighID)

	for _, o := range e.observers {
		if err := o.Unmatched(ctx, m, initiatorID); err != nil {
			e.log.WithError(err).WithField("match_id", m.ID).Error("unmatch observer failed")
		}
	}
	return nil
}

// DeclineRequest removes fromUserID's pending inbound connection
// toward actorID in the given context entirely.
func (e *Engine) DeclineRequest(ctx context.Context, actorID, fromUserID uint, ictx models.Context) error {
	if !ictx.Valid() {
		return fmt.Errorf("%w: unknown context %q", ErrInvalidOperation, ictx)
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	release, err := e.locks.Acquire(lockCtx, PairKey(actorID, fromUserID))
	if err != nil {
		return err
	}
	deleted, err := e.connections.DeleteInbound(ctx, actorID, fromUserID, ictx)
	release()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: no pending request from user %d", ErrNotFound, fromUserID)
	}

	if _, err := e.cache.Decr(ctx, redis.KeyForLikeCount(actorID)); err != nil {
		e.log.WithError(err).Warn("like count decr failed")
	}
	return nil
}
