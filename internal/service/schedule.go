package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/richardliu001/ucm-wallet/internal/config"
)

// Action is the stable code of a reward. It, not the description, is the
// idempotency identity of a grant.
type Action string

const (
	ActionProfileComplete Action = "PROFILE_COMPLETE"
	ActionAddAvatar       Action = "ADD_AVATAR"
	ActionVerifyEmail     Action = "VERIFY_EMAIL"
	ActionFirstService    Action = "FIRST_SERVICE"
	ActionFirstReview     Action = "FIRST_REVIEW"
	ActionTenReviews      Action = "TEN_REVIEWS"
	ActionDailyLogin      Action = "DAILY_LOGIN"
	ActionLeaveReview     Action = "LEAVE_REVIEW"
)

// Class decides how often a reward can be granted.
type Class int

const (
	ClassUnique Class = iota
	ClassDaily
	ClassRepeatable
)

func (c Class) String() string {
	switch c {
	case ClassUnique:
		return "unique"
	case ClassDaily:
		return "daily"
	case ClassRepeatable:
		return "repeatable"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

type Reward struct {
	Action      Action
	Amount      decimal.Decimal
	Description string
	Class       Class
}

type PaidAction struct {
	Type        string
	Cost        decimal.Decimal
	Description string
}

const (
	PaidServiceRequest = "service_request"
	PaidPartnerSearch  = "partner_search"
	PaidBoostService   = "boost_service"
	PaidContactUnlock  = "contact_unlock"
)

const (
	ReasonReferralInviter = "referral_inviter"
	ReasonReferralInvitee = "referral_invitee"
)

var defaultRewards = []Reward{
	{ActionProfileComplete, decimal.NewFromInt(5), "Заповнити профіль на 100%", ClassUnique},
	{ActionAddAvatar, decimal.NewFromInt(1), "Завантажити фото профілю", ClassUnique},
	{ActionVerifyEmail, decimal.NewFromInt(2), "Підтвердити email", ClassUnique},
	{ActionFirstService, decimal.NewFromInt(3), "Додати першу послугу", ClassUnique},
	{ActionFirstReview, decimal.NewFromInt(2), "Отримати перший відгук", ClassUnique},
	{ActionTenReviews, decimal.NewFromInt(10), "Отримати 10 відгуків", ClassUnique},
	{ActionDailyLogin, decimal.NewFromInt(1), "Щоденний вхід", ClassDaily},
	{ActionLeaveReview, decimal.NewFromInt(1), "Залишити відгук", ClassRepeatable},
}

var defaultPaidActions = []PaidAction{
	{PaidServiceRequest, decimal.NewFromInt(3), "Запит на послугу"},
	{PaidPartnerSearch, decimal.NewFromInt(5), "Пошук партнера"},
	{PaidBoostService, decimal.NewFromInt(10), "Підняття послуги в пошуку"},
	{PaidContactUnlock, decimal.NewFromInt(2), "Відкриття контактів"},
}

// Schedule is the reward and cost table. It is built once at start and
// never mutated afterwards.
type Schedule struct {
	rewards      []Reward
	byAction     map[Action]Reward
	byReason     map[string]Action
	paid         map[string]PaidAction
	inviterBonus decimal.Decimal
	inviteeBonus decimal.Decimal
	loc          *time.Location
	referralSalt string
}

// DefaultSchedule returns the built-in amounts in UTC.
func DefaultSchedule() *Schedule {
	s, _ := newSchedule(config.LedgerConfig{})
	return s
}

// NewSchedule applies the amount overrides from cfg on top of the built-in
// tables.
func NewSchedule(cfg config.LedgerConfig) (*Schedule, error) {
	return newSchedule(cfg)
}

func newSchedule(cfg config.LedgerConfig) (*Schedule, error) {
	s := &Schedule{
		byAction:     make(map[Action]Reward, len(defaultRewards)),
		byReason:     make(map[string]Action, len(defaultRewards)),
		paid:         make(map[string]PaidAction, len(defaultPaidActions)),
		inviterBonus: decimal.NewFromInt(10),
		inviteeBonus: decimal.NewFromInt(5),
		loc:          time.UTC,
		referralSalt: cfg.ReferralSalt,
	}

	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		s.loc = loc
	}

	for code := range cfg.Rewards {
		if !knownReward(Action(code)) {
			return nil, fmt.Errorf("reward %q: %w", code, ErrUnknownAction)
		}
	}
	for _, r := range defaultRewards {
		amt, err := override(cfg.Rewards[string(r.Action)], r.Amount)
		if err != nil {
			return nil, fmt.Errorf("reward %s: %w", r.Action, err)
		}
		r.Amount = amt
		s.rewards = append(s.rewards, r)
		s.byAction[r.Action] = r
		s.byReason[r.Description] = r.Action
	}

	for code := range cfg.PaidActions {
		if !knownPaidAction(code) {
			return nil, fmt.Errorf("paid action %q: %w", code, ErrUnknownAction)
		}
	}
	for _, p := range defaultPaidActions {
		cost, err := override(cfg.PaidActions[p.Type], p.Cost)
		if err != nil {
			return nil, fmt.Errorf("paid action %s: %w", p.Type, err)
		}
		p.Cost = cost
		s.paid[p.Type] = p
	}

	var err error
	if s.inviterBonus, err = override(cfg.Referral.InviterBonus, s.inviterBonus); err != nil {
		return nil, fmt.Errorf("inviter bonus: %w", err)
	}
	if s.inviteeBonus, err = override(cfg.Referral.InviteeBonus, s.inviteeBonus); err != nil {
		return nil, fmt.Errorf("invitee bonus: %w", err)
	}
	return s, nil
}

func override(raw string, def decimal.Decimal) (decimal.Decimal, error) {
	if raw == "" {
		return def, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !v.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return v, nil
}

func knownReward(a Action) bool {
	for _, r := range defaultRewards {
		if r.Action == a {
			return true
		}
	}
	return false
}

func knownPaidAction(t string) bool {
	for _, p := range defaultPaidActions {
		if p.Type == t {
			return true
		}
	}
	return false
}

func (s *Schedule) Reward(a Action) (Reward, bool) {
	r, ok := s.byAction[a]
	return r, ok
}

// Rewards returns every reward in display order.
func (s *Schedule) Rewards() []Reward {
	out := make([]Reward, len(s.rewards))
	copy(out, s.rewards)
	return out
}

// ActionForReason maps a ledger reason back to its action code.
func (s *Schedule) ActionForReason(reason string) (Action, bool) {
	a, ok := s.byReason[reason]
	return a, ok
}

func (s *Schedule) PaidAction(t string) (PaidAction, bool) {
	p, ok := s.paid[t]
	return p, ok
}

func (s *Schedule) ReferralBonuses() (inviter, invitee decimal.Decimal) {
	return s.inviterBonus, s.inviteeBonus
}

func (s *Schedule) Location() *time.Location { return s.loc }

func (s *Schedule) ReferralSalt() string { return s.referralSalt }

// StartOfDay is local midnight of the day containing t.
func (s *Schedule) StartOfDay(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
}

// IdempotencyKey is the unique ledger key for a grant of r at t, or "" for
// repeatable rewards.
func (r Reward) IdempotencyKey(userID uint64, t time.Time, loc *time.Location) string {
	switch r.Class {
	case ClassUnique:
		return fmt.Sprintf("award:%d:%s", userID, r.Action)
	case ClassDaily:
		return fmt.Sprintf("award:%d:%s:%s", userID, r.Action, t.In(loc).Format("2006-01-02"))
	}
	return ""
}
