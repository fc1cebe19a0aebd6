package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaidActionLog is an audit row written for every paid-action attempt,
// successful or not. It is not balance state.
type PaidActionLog struct {
	ID                uint64          `gorm:"primaryKey"`
	UserID            uint64          `gorm:"not null;index"`
	ActionType        string          `gorm:"size:64;not null"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	RelatedEntityType *string         `gorm:"size:64"`
	RelatedEntityID   *int64
	Description       string `gorm:"size:255"`
	Success           bool   `gorm:"not null"`
	ErrorMessage      *string
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (PaidActionLog) TableName() string { return "paid_action_logs" }
