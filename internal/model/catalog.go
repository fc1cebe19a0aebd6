package model

import "time"

// Service is a marketplace listing owned by a user.
type Service struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    uint64    `gorm:"not null;index"`
	Title     string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Service) TableName() string { return "services" }

type Review struct {
	ID           uint64    `gorm:"primaryKey"`
	AuthorID     uint64    `gorm:"not null;index"`
	TargetUserID uint64    `gorm:"not null;index"`
	Rating       int       `gorm:"not null"`
	Text         string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (Review) TableName() string { return "reviews" }
