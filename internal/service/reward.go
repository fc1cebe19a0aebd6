package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/richardliu001/ucm-wallet/internal/metrics"
	"github.com/richardliu001/ucm-wallet/internal/model"
	"github.com/richardliu001/ucm-wallet/internal/repo"
)

// AwardResult describes a granted reward. A nil result with a nil error means
// the reward had already been granted.
type AwardResult struct {
	Amount      decimal.Decimal `json:"amount"`
	Action      Action          `json:"action"`
	Description string          `json:"description"`
	Balance     decimal.Decimal `json:"balance"`
}

// RewardService grants the fixed rewards of the schedule.
type RewardService struct {
	clock
	repo  repo.RepositoryInterface
	sched *Schedule
	log   *zap.SugaredLogger
}

func NewRewardService(r repo.RepositoryInterface, sched *Schedule, logger *zap.SugaredLogger) *RewardService {
	return &RewardService{repo: r, sched: sched, log: logger}
}

// Award credits the reward for action unless its class forbids another grant.
func (s *RewardService) Award(ctx context.Context, userID uint64, action Action, metadata map[string]interface{}) (*AwardResult, error) {
	rw, ok := s.sched.Reward(action)
	if !ok {
		metrics.AwardsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, ErrUnknownAction
	}
	caps := loadCapabilities(ctx, s.repo)
	now := s.current()

	if !caps.ledger && rw.Class != ClassRepeatable {
		s.log.Warnw("ledger unavailable, reward credited without history", "user_id", userID, "action", action, "class", rw.Class.String())
	}

	md := map[string]interface{}{"action": string(action)}
	for k, v := range metadata {
		md[k] = v
	}
	m := movement{
		userID:    userID,
		kind:      model.EntryCredit,
		amount:    rw.Amount,
		reason:    rw.Description,
		actionKey: string(action),
		idemKey:   rw.IdempotencyKey(userID, now, s.sched.Location()),
		related:   &RelatedEntity{Type: repo.RelatedEarning, ID: int64(userID)},
		metadata:  md,
		at:        now,
	}

	var (
		bal       decimal.Decimal
		duplicate bool
	)
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetUserForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		if caps.ledger && rw.Class != ClassRepeatable {
			q := repo.CreditQuery{
				UserID:         userID,
				IdempotencyKey: m.idemKey,
				ActionKey:      m.actionKey,
				Reason:         rw.Description,
			}
			if rw.Class == ClassDaily {
				q.Since = s.sched.StartOfDay(now)
			}
			prev, err := s.repo.FindCredit(ctx, tx, q)
			if err != nil {
				return err
			}
			if prev != nil {
				duplicate = true
				return nil
			}
		}
		var err error
		bal, err = apply(ctx, tx, s.repo, caps, m)
		return err
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// a concurrent grant committed first
		duplicate, err = true, nil
	}
	if err != nil {
		metrics.AwardsTotal.WithLabelValues(string(action), outcome(err)).Inc()
		return nil, err
	}
	if duplicate {
		metrics.AwardsTotal.WithLabelValues(string(action), "duplicate").Inc()
		return nil, nil
	}
	metrics.AwardsTotal.WithLabelValues(string(action), "granted").Inc()
	settled(ctx, s.repo, s.log, m, bal)
	return &AwardResult{Amount: rw.Amount, Action: action, Description: rw.Description, Balance: bal}, nil
}
