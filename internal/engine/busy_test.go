package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crosslink-server/internal/config"
	"crosslink-server/internal/database"
	"crosslink-server/internal/models"
	"crosslink-server/internal/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type nullNotifier struct{}

func (nullNotifier) Send(uint, Event) bool { return true }

// TestActSurfacesBusyOnLockContention holds the pair lock directly and
// verifies a caller gets ErrBusy instead of deadlocking. Lives in the
// engine package to reach the internal locker.
func TestActSurfacesBusyOnLockContention(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{
		PairLockTimeout: 30 * time.Millisecond,
		FeedLimit:       100,
		LikeCountTTL:    time.Hour,
	}
	eng := New(db, redis.NewFromAddr(mr.Addr()), nullNotifier{}, cfg)

	p2 := &models.Profile{UserID: 2, Context: models.ContextDating, IsActive: true}
	require.NoError(t, db.Create(p2).Error)

	release, err := eng.locks.Acquire(context.Background(), PairKey(1, 2))
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = eng.Act(context.Background(), 1, p2.ID, models.ContextDating, models.ActionLike)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Less(t, time.Since(start), time.Second, "Busy must surface quickly, not deadlock")
}
