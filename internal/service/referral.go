package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/speps/go-hashids/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/richardliu001/ucm-wallet/internal/metrics"
	"github.com/richardliu001/ucm-wallet/internal/model"
	"github.com/richardliu001/ucm-wallet/internal/repo"
)

const (
	codeLength   = 8
	seedLength   = 4
	seedPadding  = "UCMX"
	codeAttempts = 5

	fallbackAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	relatedReferral  = "referral"
)

// ReferralService hands out referral codes and pays referral bonuses.
type ReferralService struct {
	clock
	repo  repo.RepositoryInterface
	sched *Schedule
	hash  *hashids.HashID
	log   *zap.SugaredLogger
}

func NewReferralService(r repo.RepositoryInterface, sched *Schedule, logger *zap.SugaredLogger) (*ReferralService, error) {
	hd := hashids.NewData()
	hd.Salt = sched.ReferralSalt()
	hd.MinLength = codeLength
	hd.Alphabet = fallbackAlphabet
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("referral hashids: %w", err)
	}
	return &ReferralService{repo: r, sched: sched, hash: h, log: logger}, nil
}

// EnsureReferralCode returns the user's code, generating one on first use.
func (s *ReferralService) EnsureReferralCode(ctx context.Context, userID uint64) (string, error) {
	u, err := s.repo.GetUser(ctx, s.repo.DB(ctx), userID)
	if err != nil {
		return "", err
	}
	if u.ReferralCode != nil && *u.ReferralCode != "" {
		return *u.ReferralCode, nil
	}

	for i := 0; i < codeAttempts; i++ {
		code := candidateCode(u.Name)
		taken, err := s.repo.ReferralCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		err = s.repo.SetReferralCode(ctx, userID, code)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store referral code: %w", err)
		}
		return s.storedCode(ctx, userID)
	}

	// Hashids of the id never repeats across users and is longer than any
	// candidate, so this cannot collide.
	code, err := s.fallbackCode(userID)
	if err != nil {
		return "", err
	}
	s.log.Infow("referral code fallback", "user_id", userID)
	if err := s.repo.SetReferralCode(ctx, userID, code); err != nil {
		return "", fmt.Errorf("store referral code: %w", err)
	}
	return s.storedCode(ctx, userID)
}

// storedCode re-reads the code; a concurrent call may have won.
func (s *ReferralService) storedCode(ctx context.Context, userID uint64) (string, error) {
	u, err := s.repo.GetUser(ctx, s.repo.DB(ctx), userID)
	if err != nil {
		return "", err
	}
	if u.ReferralCode == nil {
		return "", fmt.Errorf("referral code for user %d not stored", userID)
	}
	return *u.ReferralCode, nil
}

func (s *ReferralService) fallbackCode(userID uint64) (string, error) {
	enc, err := s.hash.EncodeInt64([]int64{int64(userID)})
	if err != nil {
		return "", fmt.Errorf("encode referral code: %w", err)
	}
	return "U" + enc, nil
}

// candidateCode is the name seed padded to four characters plus random
// characters, uppercase alphanumerics only.
func candidateCode(name string) string {
	seed := alnumUpper(name) + seedPadding
	random := alnumUpper(uuid.NewString())
	return (seed[:seedLength] + random)[:codeLength]
}

func alnumUpper(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AwardReferral attributes invitee to inviter and pays both bonuses once.
// A repeated call returns the existing attribution unchanged.
func (s *ReferralService) AwardReferral(ctx context.Context, inviterID, inviteeID uint64, code string) (*model.ReferralAttribution, error) {
	if inviterID == inviteeID {
		metrics.ReferralsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrSelfReferral
	}
	existing, err := s.repo.GetAttributionByInvitee(ctx, s.repo.DB(ctx), inviteeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.ReferralsTotal.WithLabelValues("duplicate").Inc()
		return existing, nil
	}

	caps := loadCapabilities(ctx, s.repo)
	inviterBonus, inviteeBonus := s.sched.ReferralBonuses()
	now := s.current()

	var (
		attr   *model.ReferralAttribution
		moves  []movement
		bals   []decimal.Decimal
		winner bool
	)
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		first, second := inviterID, inviteeID
		if second < first {
			first, second = second, first
		}
		if _, err := s.repo.GetUserForUpdate(ctx, tx, first); err != nil {
			return err
		}
		if _, err := s.repo.GetUserForUpdate(ctx, tx, second); err != nil {
			return err
		}

		prev, err := s.repo.GetAttributionByInvitee(ctx, tx, inviteeID)
		if err != nil {
			return err
		}
		if prev != nil {
			attr = prev
			return nil
		}

		attr = &model.ReferralAttribution{
			Code:         code,
			InviterID:    inviterID,
			InviteeID:    inviteeID,
			BonusInviter: inviterBonus,
			BonusInvitee: inviteeBonus,
			CreatedAt:    now.UTC(),
		}
		if err := s.repo.CreateAttribution(ctx, tx, attr); err != nil {
			return err
		}
		related := &RelatedEntity{Type: relatedReferral, ID: int64(attr.ID)}
		md := map[string]interface{}{"code": code, "inviter_id": inviterID, "invitee_id": inviteeID}
		moves = []movement{
			{
				userID:   inviterID,
				kind:     model.EntryCredit,
				amount:   inviterBonus,
				reason:   ReasonReferralInviter,
				idemKey:  fmt.Sprintf("referral:%d:inviter", inviteeID),
				related:  related,
				metadata: md,
				at:       now,
			},
			{
				userID:   inviteeID,
				kind:     model.EntryCredit,
				amount:   inviteeBonus,
				reason:   ReasonReferralInvitee,
				idemKey:  fmt.Sprintf("referral:%d:invitee", inviteeID),
				related:  related,
				metadata: md,
				at:       now,
			},
		}
		for _, m := range moves {
			bal, err := apply(ctx, tx, s.repo, caps, m)
			if err != nil {
				return err
			}
			bals = append(bals, bal)
		}
		winner = true
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost the race on invitee_id; return what the winner stored
		prev, rerr := s.repo.GetAttributionByInvitee(ctx, s.repo.DB(ctx), inviteeID)
		if rerr != nil {
			return nil, rerr
		}
		if prev != nil {
			metrics.ReferralsTotal.WithLabelValues("duplicate").Inc()
			return prev, nil
		}
	}
	if err != nil {
		metrics.ReferralsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	if !winner {
		metrics.ReferralsTotal.WithLabelValues("duplicate").Inc()
		return attr, nil
	}
	for i, m := range moves {
		settled(ctx, s.repo, s.log, m, bals[i])
	}
	metrics.ReferralsTotal.WithLabelValues("attributed").Inc()
	s.log.Infow("referral attributed", "inviter_id", inviterID, "invitee_id", inviteeID, "attribution_id", attr.ID)
	return attr, nil
}

// AttributeSignup resolves the inviter from code and awards the referral.
func (s *ReferralService) AttributeSignup(ctx context.Context, inviteeID uint64, code string) (*model.ReferralAttribution, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	inviter, err := s.repo.FindUserByReferralCode(ctx, code)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrReferralCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.AwardReferral(ctx, inviter.ID, inviteeID, code)
}
