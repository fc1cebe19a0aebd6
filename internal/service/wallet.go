package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/richardliu001/ucm-wallet/internal/metrics"
	"github.com/richardliu001/ucm-wallet/internal/model"
	"github.com/richardliu001/ucm-wallet/internal/repo"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// clock is embedded by services that need "now"; tests replace it.
type clock struct {
	now func() time.Time
}

// SetClock overrides the time source.
func (c *clock) SetClock(now func() time.Time) { c.now = now }

func (c *clock) current() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// WalletService moves UCM in and out of user balances.
type WalletService struct {
	clock
	repo  repo.RepositoryInterface
	sched *Schedule
	log   *zap.SugaredLogger
}

// NewWalletService returns WalletService.
func NewWalletService(r repo.RepositoryInterface, sched *Schedule, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, sched: sched, log: logger}
}

// Repo exposes the repository, mostly for tests and wiring.
func (s *WalletService) Repo() repo.RepositoryInterface { return s.repo }

// ChargeResult is returned by a successful paid action.
type ChargeResult struct {
	Success bool            `json:"success"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

// Credit tops up a balance outside the reward table.
func (s *WalletService) Credit(ctx context.Context, userID uint64, amount decimal.Decimal, reason string, related *RelatedEntity) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	caps := loadCapabilities(ctx, s.repo)
	m := movement{
		userID:  userID,
		kind:    model.EntryCredit,
		amount:  amount,
		reason:  reason,
		related: related,
		at:      s.current(),
	}
	var bal decimal.Decimal
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetUserForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		bal, err = apply(ctx, tx, s.repo, caps, m)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	settled(ctx, s.repo, s.log, m, bal)
	return bal, nil
}

// Charge debits amount. It fails with ErrInsufficientFunds and leaves the
// balance untouched when the balance does not cover amount.
func (s *WalletService) Charge(ctx context.Context, userID uint64, amount decimal.Decimal, reason string, related *RelatedEntity) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	caps := loadCapabilities(ctx, s.repo)
	m := movement{
		userID:  userID,
		kind:    model.EntryDebit,
		amount:  amount,
		reason:  reason,
		related: related,
		at:      s.current(),
	}
	var bal decimal.Decimal
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bal, err = s.debit(ctx, tx, caps, m)
		return err
	})
	metrics.ChargesTotal.WithLabelValues("manual", outcome(err)).Inc()
	if err != nil {
		return decimal.Zero, err
	}
	settled(ctx, s.repo, s.log, m, bal)
	return bal, nil
}

// ChargePaidAction debits the cost of actionType. Every attempt with a known
// action type leaves a PaidActionLog row: the success row commits with the
// debit, the failure row is written on its own after the rollback.
func (s *WalletService) ChargePaidAction(ctx context.Context, userID uint64, actionType string, related *RelatedEntity, description string) (*ChargeResult, error) {
	pa, ok := s.sched.PaidAction(actionType)
	if !ok {
		metrics.ChargesTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, ErrUnknownAction
	}
	if description == "" {
		description = pa.Description
	}
	caps := loadCapabilities(ctx, s.repo)
	m := movement{
		userID:    userID,
		kind:      model.EntryDebit,
		amount:    pa.Cost,
		reason:    description,
		actionKey: pa.Type,
		related:   related,
		metadata:  map[string]interface{}{"paid_action": pa.Type},
		at:        s.current(),
	}

	var bal decimal.Decimal
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if bal, err = s.debit(ctx, tx, caps, m); err != nil {
			return err
		}
		if !caps.paidLog {
			return nil
		}
		return s.repo.CreatePaidActionLog(ctx, tx, paidLog(m, pa, true, nil))
	})
	metrics.ChargesTotal.WithLabelValues(pa.Type, outcome(err)).Inc()
	if err != nil {
		if caps.paidLog {
			msg := err.Error()
			if lerr := s.repo.CreatePaidActionLog(ctx, s.repo.DB(ctx), paidLog(m, pa, false, &msg)); lerr != nil {
				s.log.Errorw("write failed paid action log", "user_id", userID, "action", pa.Type, "error", lerr)
			}
		}
		return nil, err
	}
	settled(ctx, s.repo, s.log, m, bal)
	return &ChargeResult{Success: true, Amount: pa.Cost, Balance: bal}, nil
}

// debit locks the user, checks the balance and applies m.
func (s *WalletService) debit(ctx context.Context, tx *gorm.DB, caps capabilities, m movement) (decimal.Decimal, error) {
	u, err := s.repo.GetUserForUpdate(ctx, tx, m.userID)
	if err != nil {
		return decimal.Zero, err
	}
	if u.UCMBalance.LessThan(m.amount) {
		return decimal.Zero, ErrInsufficientFunds
	}
	return apply(ctx, tx, s.repo, caps, m)
}

func paidLog(m movement, pa PaidAction, ok bool, errMsg *string) *model.PaidActionLog {
	l := &model.PaidActionLog{
		UserID:       m.userID,
		ActionType:   pa.Type,
		Amount:       pa.Cost,
		Description:  m.reason,
		Success:      ok,
		ErrorMessage: errMsg,
		CreatedAt:    m.at.UTC(),
	}
	if m.related != nil {
		l.RelatedEntityType = &m.related.Type
		l.RelatedEntityID = &m.related.ID
	}
	return l
}

// GetBalance reads Redis first, then the users table.
func (s *WalletService) GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, userID); err == nil {
		return bal, nil
	}
	u, err := s.repo.GetUser(ctx, s.repo.DB(ctx), userID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, userID, u.UCMBalance); err != nil {
		s.log.Warnw("cache balance", "user_id", userID, "error", err)
	}
	return u.UCMBalance, nil
}

// GetHistory lists ledger entries newest first. It is empty when the ledger
// table is missing.
func (s *WalletService) GetHistory(ctx context.Context, userID uint64, limit int, since time.Time) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if !s.repo.Schema().LedgerAvailable(ctx) {
		return []model.LedgerEntry{}, nil
	}
	return s.repo.ListEntries(ctx, userID, limit, since)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	}
	return "error"
}
