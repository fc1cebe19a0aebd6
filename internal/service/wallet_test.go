package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardliu001/ucm-wallet/internal/model"
)

func TestChargePaidAction_Scenarios(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})
	_, err := env.wallet.Credit(env.ctx, u.ID, dec(4), "top-up", nil)
	require.NoError(t, err)

	// enough for a service request
	res, err := env.wallet.ChargePaidAction(env.ctx, u.ID, PaidServiceRequest, &RelatedEntity{Type: "service", ID: 12}, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "3.00", res.Amount.StringFixed(2))
	assert.Equal(t, "1.00", res.Balance.StringFixed(2))
	assert.Equal(t, "1.00", env.balance(t, u.ID))

	entries := env.entries(t, u.ID)
	require.Len(t, entries, 2)
	debit := entries[1]
	assert.Equal(t, model.EntryDebit, debit.Kind)
	assert.Equal(t, "3.00", debit.Amount.StringFixed(2))
	assert.Equal(t, "Запит на послугу", debit.Reason)
	assert.Equal(t, "service", *debit.RelatedEntityType)

	// not enough for a partner search
	res, err = env.wallet.ChargePaidAction(env.ctx, u.ID, PaidPartnerSearch, nil, "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Nil(t, res)
	assert.Equal(t, "1.00", env.balance(t, u.ID))
	assert.Len(t, env.entries(t, u.ID), 2)

	var logs []model.PaidActionLog
	require.NoError(t, env.db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].Success)
	assert.Equal(t, PaidServiceRequest, logs[0].ActionType)
	assert.False(t, logs[1].Success)
	assert.Equal(t, PaidPartnerSearch, logs[1].ActionType)
	require.NotNil(t, logs[1].ErrorMessage)
	assert.Equal(t, ErrInsufficientFunds.Error(), *logs[1].ErrorMessage)
}

func TestChargePaidAction_Unknown(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, model.User{ID: 1})

	_, err := env.wallet.ChargePaidAction(env.ctx, 1, "teleport", nil, "")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestCharge_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, model.User{ID: 1})

	_, err := env.wallet.Charge(env.ctx, 1, dec(0), "nothing", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.wallet.Credit(env.ctx, 1, dec(-1), "nothing", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.wallet.Charge(env.ctx, 2, dec(1), "nobody", nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = env.wallet.Charge(env.ctx, 1, dec(1), "empty", nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCharge_ConcurrentNeverOverdraws(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})
	_, err := env.wallet.Credit(env.ctx, u.ID, dec(10), "top-up", nil)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.wallet.Charge(env.ctx, u.ID, dec(3), "boost", nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, "1.00", env.balance(t, u.ID))
	assert.Equal(t, env.balance(t, u.ID), env.ledgerSum(t, u.ID))
}

func TestLedgerMatchesBalance(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})

	_, err := env.rewards.Award(env.ctx, u.ID, ActionProfileComplete, nil)
	require.NoError(t, err)
	_, err = env.rewards.Award(env.ctx, u.ID, ActionDailyLogin, nil)
	require.NoError(t, err)
	_, err = env.wallet.ChargePaidAction(env.ctx, u.ID, PaidContactUnlock, nil, "")
	require.NoError(t, err)
	_, err = env.wallet.ChargePaidAction(env.ctx, u.ID, PaidBoostService, nil, "")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	_, err = env.wallet.Credit(env.ctx, u.ID, dec(7), "support refund", nil)
	require.NoError(t, err)

	assert.Equal(t, "11.00", env.balance(t, u.ID))
	assert.Equal(t, env.balance(t, u.ID), env.ledgerSum(t, u.ID))
}

func TestWithoutLedger_BalanceStillMoves(t *testing.T) {
	env := newTestEnv(t, &model.User{})
	u := env.addUser(t, model.User{ID: 1})

	bal, err := env.wallet.Credit(env.ctx, u.ID, dec(5), "top-up", nil)
	require.NoError(t, err)
	assert.Equal(t, "5.00", bal.StringFixed(2))

	res, err := env.wallet.ChargePaidAction(env.ctx, u.ID, PaidServiceRequest, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "2.00", res.Balance.StringFixed(2))

	hist, err := env.wallet.GetHistory(env.ctx, u.ID, 10, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.False(t, env.repo.Schema().LedgerAvailable(env.ctx))
}

func TestGetBalanceAndHistory(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, model.User{ID: 1})
	_, err := env.wallet.Credit(env.ctx, u.ID, dec(9), "top-up", nil)
	require.NoError(t, err)
	env.now = env.now.Add(time.Hour)
	_, err = env.wallet.Charge(env.ctx, u.ID, dec(4), "manual", nil)
	require.NoError(t, err)

	bal, err := env.wallet.GetBalance(env.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "5.00", bal.StringFixed(2))

	_, err = env.wallet.GetBalance(env.ctx, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)

	hist, err := env.wallet.GetHistory(env.ctx, u.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, model.EntryDebit, hist[0].Kind)

	hist, err = env.wallet.GetHistory(env.ctx, u.ID, 10, env.now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "manual", hist[0].Reason)
}
