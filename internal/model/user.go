package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User carries the wallet balance. Only the ledger writes UCMBalance.
type User struct {
	ID            uint64          `gorm:"primaryKey;column:id"`
	Name          string          `gorm:"size:128;not null;default:''"`
	Email         string          `gorm:"size:255"`
	EmailVerified bool            `gorm:"not null;default:false"`
	FirstName     string          `gorm:"size:64"`
	LastName      string          `gorm:"size:64"`
	Phone         string          `gorm:"size:32"`
	City          string          `gorm:"size:64"`
	About         string          `gorm:"type:text"`
	AvatarURL     string          `gorm:"size:512"`
	ReferralCode  *string         `gorm:"size:32;uniqueIndex"`
	UCMBalance    decimal.Decimal `gorm:"column:ucm_balance;type:numeric(20,2);not null;default:0"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

func (User) TableName() string { return "users" }

// ProfileFields lists the fields counted towards profile completeness.
func (u User) ProfileFields() []string {
	return []string{u.FirstName, u.LastName, u.Phone, u.City, u.About, u.AvatarURL}
}
