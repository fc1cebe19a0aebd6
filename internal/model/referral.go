package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralAttribution links an invitee to exactly one inviter.
type ReferralAttribution struct {
	ID           uint64          `gorm:"primaryKey" json:"id"`
	Code         string          `gorm:"size:32;not null" json:"code"`
	InviterID    uint64          `gorm:"not null;index" json:"inviter_id"`
	InviteeID    uint64          `gorm:"not null;uniqueIndex" json:"invitee_id"`
	BonusInviter decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"bonus_inviter"`
	BonusInvitee decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"bonus_invitee"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ReferralAttribution) TableName() string { return "referral_attributions" }
