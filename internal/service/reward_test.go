package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardliu001/ucm-wallet/internal/metrics"
	"github.com/richardliu001/ucm-wallet/internal/model"
)

func TestAward_ProfileComplete(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1, Name: "Olena"})

	res, err := env.rewards.Award(env.ctx, u.ID, ActionProfileComplete, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "5.00", res.Amount.StringFixed(2))
	assert.Equal(t, ActionProfileComplete, res.Action)
	assert.Equal(t, "5.00", env.balance(t, u.ID))

	entries := env.entries(t, u.ID)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, model.EntryCredit, e.Kind)
	assert.Equal(t, "Заповнити профіль на 100%", e.Reason)
	assert.Equal(t, "award:1:PROFILE_COMPLETE", *e.IdempotencyKey)
	assert.Equal(t, "earning", *e.RelatedEntityType)
	assert.EqualValues(t, 1, *e.RelatedEntityID)
	assert.Equal(t, "5.00", e.BalanceAfter.StringFixed(2))

	var outbox int64
	require.NoError(t, env.db.Model(&model.OutboxEvent{}).Count(&outbox).Error)
	assert.EqualValues(t, 1, outbox)
}

func TestAward_UniqueOnce(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})

	first, err := env.rewards.Award(env.ctx, u.ID, ActionFirstService, map[string]interface{}{"service_id": 7})
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := env.rewards.Award(env.ctx, u.ID, ActionFirstService, nil)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, "3.00", env.balance(t, u.ID))
	assert.Len(t, env.entries(t, u.ID), 1)
}

func TestAward_LegacyReasonCountsAsGranted(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})
	earning := "earning"
	require.NoError(t, env.db.Create(&model.LedgerEntry{
		UserID: u.ID, Kind: model.EntryCredit, Amount: dec(2), BalanceAfter: dec(2),
		Reason: "Підтвердити email", RelatedEntityType: &earning, CreatedAt: env.now.Add(-48 * time.Hour),
	}).Error)

	res, err := env.rewards.Award(env.ctx, u.ID, ActionVerifyEmail, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, "0.00", env.balance(t, u.ID))
}

func TestAward_TopUpWithSameReasonDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})

	_, err := env.wallet.Credit(env.ctx, u.ID, dec(4), "Підтвердити email", nil)
	require.NoError(t, err)

	res, err := env.rewards.Award(env.ctx, u.ID, ActionVerifyEmail, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "6.00", env.balance(t, u.ID))

	list, err := env.progress.GetProgress(env.ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, byAction(list)[ActionVerifyEmail].Completed)
}

func TestAward_DailyBoundary(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})

	res, err := env.rewards.Award(env.ctx, u.ID, ActionDailyLogin, nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	env.now = time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	res, err = env.rewards.Award(env.ctx, u.ID, ActionDailyLogin, nil)
	require.NoError(t, err)
	assert.Nil(t, res)

	env.now = time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC)
	res, err = env.rewards.Award(env.ctx, u.ID, ActionDailyLogin, nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "2.00", env.balance(t, u.ID))
	entries := env.entries(t, u.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, "award:1:DAILY_LOGIN:2025-03-10", *entries[0].IdempotencyKey)
	assert.Equal(t, "award:1:DAILY_LOGIN:2025-03-11", *entries[1].IdempotencyKey)
}

func TestAward_Repeatable(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})

	for i := 0; i < 3; i++ {
		res, err := env.rewards.Award(env.ctx, u.ID, ActionLeaveReview, nil)
		require.NoError(t, err)
		require.NotNil(t, res)
	}
	assert.Equal(t, "3.00", env.balance(t, u.ID))
	for _, e := range env.entries(t, u.ID) {
		assert.Nil(t, e.IdempotencyKey)
	}
}

func TestAward_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, model.User{ID: 1})

	_, err := env.rewards.Award(env.ctx, 1, Action("WRITE_POEM"), nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = env.rewards.Award(env.ctx, 42, ActionAddAvatar, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAward_ConcurrentUnique(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.rewards.Award(env.ctx, u.ID, ActionTenReviews, nil)
			assert.NoError(t, err)
			if res != nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, "10.00", env.balance(t, u.ID))
}

func TestAward_WithoutLedger(t *testing.T) {
	env := newTestEnv(t, &model.User{})
	u := env.addUser(t, model.User{ID: 1})

	res, err := env.rewards.Award(env.ctx, u.ID, ActionProfileComplete, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "5.00", res.Balance.StringFixed(2))
	assert.Equal(t, "5.00", env.balance(t, u.ID))

	res, err = env.rewards.Award(env.ctx, u.ID, ActionDailyLogin, nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	res, err = env.rewards.Award(env.ctx, u.ID, ActionLeaveReview, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "7.00", env.balance(t, u.ID))
}

func TestAward_UnknownActionMetricLabel(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, model.User{ID: 1})

	before := testutil.ToFloat64(metrics.AwardsTotal.WithLabelValues("unknown", "rejected"))
	_, err := env.rewards.Award(env.ctx, 1, Action("made-up-"+uuid.NewString()), nil)
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AwardsTotal.WithLabelValues("unknown", "rejected")))
}

func TestAward_CancelledFirstRequestKeepsLedger(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})

	cancelled, cancel := context.WithCancel(env.ctx)
	cancel()
	assert.True(t, env.repo.Schema().LedgerAvailable(cancelled))

	res, err := env.rewards.Award(env.ctx, u.ID, ActionProfileComplete, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Len(t, env.entries(t, u.ID), 1)
	assert.Equal(t, env.balance(t, u.ID), env.ledgerSum(t, u.ID))
}
