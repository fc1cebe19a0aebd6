package service

import (
	"errors"

	"github.com/richardliu001/ucm-wallet/internal/repo"
)

var (
	// ErrInvalidAmount means non-positive amount passed.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrUnknownAction means the reward or paid action is not in the schedule.
	ErrUnknownAction = errors.New("unknown action")
	// ErrSelfReferral means a user tried to invite themselves.
	ErrSelfReferral = errors.New("user cannot refer themselves")
	// ErrReferralCodeNotFound means no user owns the given referral code.
	ErrReferralCodeNotFound = errors.New("referral code not found")

	ErrInsufficientFunds = repo.ErrInsufficientFunds
	ErrUserNotFound      = repo.ErrUserNotFound
)
