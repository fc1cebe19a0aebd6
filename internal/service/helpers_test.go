package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	zlog "github.com/richardliu001/ucm-wallet/internal/logger"
	"github.com/richardliu001/ucm-wallet/internal/model"
	"github.com/richardliu001/ucm-wallet/internal/repo"
)

type testEnv struct {
	ctx      context.Context
	db       *gorm.DB
	repo     *repo.Repository
	wallet   *WalletService
	rewards  *RewardService
	referral *ReferralService
	progress *ProgressService
	now      time.Time
}

// newTestEnv opens a private in-memory store migrated with models, or with
// every model when none are given.
func newTestEnv(t *testing.T, models ...interface{}) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite ignores FOR UPDATE, so one connection stands in for the row
	// lock: transactions run one after another and the concurrent tests
	// below never interleave a read with another writer. The conditional
	// update itself is covered against a stale read in the repo tests.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) == 0 {
		models = model.All()
	}
	require.NoError(t, db.AutoMigrate(models...))

	log, err := zlog.New("error")
	require.NoError(t, err)
	r := repo.NewRepository(db, nil, nil, log)
	sched := DefaultSchedule()

	env := &testEnv{
		ctx:      context.Background(),
		db:       db,
		repo:     r,
		wallet:   NewWalletService(r, sched, log),
		rewards:  NewRewardService(r, sched, log),
		progress: NewProgressService(r, sched, log),
		now:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	env.referral, err = NewReferralService(r, sched, log)
	require.NoError(t, err)

	clockFn := func() time.Time { return env.now }
	env.wallet.SetClock(clockFn)
	env.rewards.SetClock(clockFn)
	env.referral.SetClock(clockFn)
	env.progress.SetClock(clockFn)
	return env
}

func (e *testEnv) addUser(t *testing.T, u model.User) *model.User {
	t.Helper()
	require.NoError(t, e.db.Create(&u).Error)
	return &u
}

func (e *testEnv) balance(t *testing.T, userID uint64) string {
	t.Helper()
	var u model.User
	require.NoError(t, e.db.First(&u, userID).Error)
	return u.UCMBalance.StringFixed(2)
}

func (e *testEnv) entries(t *testing.T, userID uint64) []model.LedgerEntry {
	t.Helper()
	var out []model.LedgerEntry
	require.NoError(t, e.db.Where("user_id = ?", userID).Order("id").Find(&out).Error)
	return out
}

// ledgerSum is credits minus debits for userID.
func (e *testEnv) ledgerSum(t *testing.T, userID uint64) string {
	t.Helper()
	sum := decimal.Zero
	for _, en := range e.entries(t, userID) {
		sum = sum.Add(en.Signed())
	}
	return sum.StringFixed(2)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
