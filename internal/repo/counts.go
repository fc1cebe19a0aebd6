package repo

import (
	"context"

	"github.com/richardliu001/ucm-wallet/internal/model"
)

func (r *Repository) CountServices(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Service{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *Repository) CountReviewsReceived(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Review{}).Where("target_user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *Repository) CountReviewsWritten(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Review{}).Where("author_id = ?", userID).Count(&n).Error
	return n, err
}
