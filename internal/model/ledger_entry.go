package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type EntryKind string

const (
	EntryCredit EntryKind = "credit"
	EntryDebit  EntryKind = "debit"
)

// LedgerEntry is an append-only balance movement. Amount is always positive;
// Kind carries the sign.
type LedgerEntry struct {
	ID                uint64          `gorm:"primaryKey"`
	UserID            uint64          `gorm:"not null;index:idx_ucm_tx_user_created,priority:1"`
	Kind              EntryKind       `gorm:"size:16;not null"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceAfter      decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Reason            string          `gorm:"size:255;not null;index"`
	ActionKey         *string         `gorm:"size:64"`
	IdempotencyKey    *string         `gorm:"size:128;uniqueIndex"`
	RelatedEntityType *string         `gorm:"size:64"`
	RelatedEntityID   *int64
	Metadata          datatypes.JSON
	CreatedAt         time.Time `gorm:"autoCreateTime;index:idx_ucm_tx_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ucm_transactions" }

// Signed returns the balance delta the entry represents.
func (e LedgerEntry) Signed() decimal.Decimal {
	if e.Kind == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
