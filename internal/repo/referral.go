package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/richardliu001/ucm-wallet/internal/model"
)

// GetAttributionByInvitee returns nil, nil when the invitee was never attributed.
func (r *Repository) GetAttributionByInvitee(ctx context.Context, tx *gorm.DB, inviteeID uint64) (*model.ReferralAttribution, error) {
	var a model.ReferralAttribution
	err := tx.WithContext(ctx).Where("invitee_id = ?", inviteeID).First(&a).Error
	if err == nil {
		return &a, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("get attribution: %w", err)
}

func (r *Repository) CreateAttribution(ctx context.Context, tx *gorm.DB, a *model.ReferralAttribution) error {
	return tx.WithContext(ctx).Create(a).Error
}

func (r *Repository) FindUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by referral code: %w", err)
	}
	return &u, nil
}

func (r *Repository) ReferralCodeTaken(ctx context.Context, code string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("referral_code = ?", code).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check referral code: %w", err)
	}
	return n > 0, nil
}

// SetReferralCode stores code only if the user has none yet. A concurrent
// writer that won the race leaves RowsAffected at zero; a code collision
// surfaces as gorm.ErrDuplicatedKey.
func (r *Repository) SetReferralCode(ctx context.Context, userID uint64, code string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND referral_code IS NULL", userID).
		Update("referral_code", code)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetUser(ctx, r.db, userID); err != nil {
			return err
		}
	}
	return nil
}
