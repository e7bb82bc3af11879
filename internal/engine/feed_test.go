package engine_test

import (
	"context"
	"testing"
	"time"

	"crosslink-server/internal/engine"
	"crosslink-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatchUpFeedCoversOfflineRecipient(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p1 := f.profile(t, 1, models.ContextDating)
	p2 := f.profile(t, 2, models.ContextDating)

	// user 2 has no live channel; every push fails
	f.rec.online = false
	since := time.Now().UTC().Add(-time.Minute)

	_, err := f.eng.Act(ctx, 1, p2.ID, models.ContextDating, models.ActionLike)
	require.NoError(t, err)

	events, err := f.eng.EventsSince(ctx, 2, since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventLikeReceived, events[0].Type)
	assert.Equal(t, uint(2), events[0].RecipientID)

	// mutual like while still offline: the like converts into a match
	// event; the pending like disappears from the feed
	_, err = f.eng.Act(ctx, 2, p1.ID, models.ContextDating, models.ActionLike)
	require.NoError(t, err)

	events, err = f.eng.EventsSince(ctx, 2, since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventMatchCreated, events[0].Type)
	assert.NotZero(t, events[0].MatchID)
}

func TestRedundantReLikeDoesNotResurfaceInFeed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p2 := f.profile(t, 2, models.ContextDating)

	f.rec.online = false
	_, err := f.eng.Act(ctx, 1, p2.ID, models.ContextDating, models.ActionLike)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	since := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)

	// the retry is a no-op and must not refresh the pending like
	res, err := f.eng.Act(ctx, 1, p2.ID, models.ContextDating, models.ActionLike)
	assert.ErrorIs(t, err, engine.ErrDuplicateAction)
	require.NotNil(t, res)

	events, err := f.eng.EventsSince(ctx, 2, since)
	require.NoError(t, err)
	assert.Empty(t, events, "a client synced past the like never sees it again")
}

func TestCatchUpFeedIsAStateSnapshot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dp1 := f.profile(t, 1, models.ContextDating)
	dp2 := f.profile(t, 2, models.ContextDating)
	np1 := f.profile(t, 1, models.ContextNetworking)
	np2 := f.profile(t, 2, models.ContextNetworking)

	f.rec.online = false
	since := time.Now().UTC().Add(-time.Minute)

	for _, step := range []struct {
		actor   uint
		profile uint
		ictx    models.Context
	}{
		{1, dp2.ID, models.ContextDating},
		{2, dp1.ID, models.ContextDating},
		{1, np2.ID, models.ContextNetworking},
		{2, np1.ID, models.ContextNetworking},
	} {
		_, err := f.eng.Act(ctx, step.actor, step.profile, step.ictx, models.ActionLike)
		require.NoError(t, err)
	}

	// one event carrying the merged state, not a created+updated pair
	events, err := f.eng.EventsSince(ctx, 2, since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventMatchCreated, events[0].Type)
	assert.Equal(t, models.ContextSet{models.ContextNetworking},
		events[0].Payload["additional_contexts"])
}

func TestCatchUpFeedOrderingAndCutoff(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p2 := f.profile(t, 2, models.ContextDating)
	p2n := f.profile(t, 2, models.ContextNetworking)

	f.rec.online = false
	since := time.Now().UTC().Add(-time.Minute)

	_, err := f.eng.Act(ctx, 1, p2.ID, models.ContextDating, models.ActionLike)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = f.eng.Act(ctx, 3, p2n.ID, models.ContextNetworking, models.ActionLike)
	require.NoError(t, err)

	events, err := f.eng.EventsSince(ctx, 2, since)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, !events[1].Timestamp.Before(events[0].Timestamp), "oldest first")

	// a since after everything yields an empty feed
	events, err = f.eng.EventsSince(ctx, 2, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, events)

	// unmatch surfaces as an unmatch event for a fresh poll
	_, err = f.eng.Act(ctx, 2, f.profile(t, 1, models.ContextDating).ID, models.ContextDating, models.ActionLike)
	require.NoError(t, err)
	var m models.Match
	require.NoError(t, f.db.First(&m).Error)
	beforeUnmatch := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, f.eng.Unmatch(ctx, m.ID, 1))

	events, err = f.eng.EventsSince(ctx, 2, beforeUnmatch)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventUnmatch, events[0].Type)
}
