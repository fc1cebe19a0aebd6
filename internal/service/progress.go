package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/richardliu001/ucm-wallet/internal/model"
	"github.com/richardliu001/ucm-wallet/internal/repo"
)

// ProgressEntry is one row of the "what can I still earn" list.
type ProgressEntry struct {
	Action       Action          `json:"action"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Completed    bool            `json:"completed"`
	Progress     int             `json:"progress"`
	ProgressMax  int             `json:"progress_max"`
	IsRepeatable bool            `json:"is_repeatable"`
}

// ProgressService reconciles ledger history with live account state. It
// never writes.
type ProgressService struct {
	clock
	repo  repo.RepositoryInterface
	sched *Schedule
	log   *zap.SugaredLogger
}

func NewProgressService(r repo.RepositoryInterface, sched *Schedule, logger *zap.SugaredLogger) *ProgressService {
	return &ProgressService{repo: r, sched: sched, log: logger}
}

type liveState struct {
	user            *model.User
	services        int64
	reviewsReceived int64
	reviewsWritten  int64
}

// GetProgress returns one entry per reward in schedule order. An unknown
// user gets the same list with nothing completed.
func (s *ProgressService) GetProgress(ctx context.Context, userID uint64) ([]ProgressEntry, error) {
	rewards := s.sched.Rewards()
	out := make([]ProgressEntry, 0, len(rewards))

	u, err := s.repo.GetUser(ctx, s.repo.DB(ctx), userID)
	if errors.Is(err, ErrUserNotFound) {
		for _, rw := range rewards {
			out = append(out, blankEntry(rw))
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	st := liveState{user: u}
	if st.services, err = s.repo.CountServices(ctx, userID); err != nil {
		return nil, err
	}
	if st.reviewsReceived, err = s.repo.CountReviewsReceived(ctx, userID); err != nil {
		return nil, err
	}
	if st.reviewsWritten, err = s.repo.CountReviewsWritten(ctx, userID); err != nil {
		return nil, err
	}

	done, today, err := s.completed(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, rw := range rewards {
		e := blankEntry(rw)
		switch rw.Class {
		case ClassDaily:
			e.Completed = today[rw.Action]
		default:
			e.Completed = done[rw.Action]
		}
		e.Progress, e.ProgressMax = measure(rw.Action, st, today[rw.Action])
		out = append(out, e)
	}
	return out, nil
}

// completed collects the actions with a credit entry ever, and since local
// midnight.
func (s *ProgressService) completed(ctx context.Context, userID uint64) (ever, today map[Action]bool, err error) {
	ever = map[Action]bool{}
	today = map[Action]bool{}
	if !s.repo.Schema().LedgerAvailable(ctx) {
		return ever, today, nil
	}
	credits, err := s.repo.ListCredits(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	midnight := s.sched.StartOfDay(s.current())
	for _, c := range credits {
		a, ok := s.actionOf(c)
		if !ok {
			continue
		}
		ever[a] = true
		if !c.CreatedAt.Before(midnight) {
			today[a] = true
		}
	}
	return ever, today, nil
}

// actionOf prefers the stored action code and falls back to the reason
// text for reward rows written before codes existed.
func (s *ProgressService) actionOf(e model.LedgerEntry) (Action, bool) {
	if e.ActionKey != nil {
		if _, ok := s.sched.Reward(Action(*e.ActionKey)); ok {
			return Action(*e.ActionKey), true
		}
		return "", false
	}
	if e.RelatedEntityType == nil || *e.RelatedEntityType != repo.RelatedEarning {
		return "", false
	}
	return s.sched.ActionForReason(e.Reason)
}

func measure(a Action, st liveState, creditedToday bool) (int, int) {
	switch a {
	case ActionProfileComplete:
		fields := st.user.ProfileFields()
		n := 0
		for _, f := range fields {
			if f != "" {
				n++
			}
		}
		return n, len(fields)
	case ActionAddAvatar:
		return flag(st.user.AvatarURL != ""), 1
	case ActionVerifyEmail:
		return flag(st.user.EmailVerified), 1
	case ActionFirstService:
		return capped(st.services, 1), 1
	case ActionFirstReview:
		return capped(st.reviewsReceived, 1), 1
	case ActionTenReviews:
		return capped(st.reviewsReceived, 10), 10
	case ActionLeaveReview:
		return capped(st.reviewsWritten, 1), 1
	case ActionDailyLogin:
		return flag(creditedToday), 1
	}
	return 0, 1
}

func blankEntry(rw Reward) ProgressEntry {
	pmax := 1
	switch rw.Action {
	case ActionProfileComplete:
		pmax = len(model.User{}.ProfileFields())
	case ActionTenReviews:
		pmax = 10
	}
	return ProgressEntry{
		Action:       rw.Action,
		Description:  rw.Description,
		Amount:       rw.Amount,
		ProgressMax:  pmax,
		IsRepeatable: rw.Class != ClassUnique,
	}
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func capped(n int64, limit int) int {
	if n > int64(limit) {
		return limit
	}
	return int(n)
}
