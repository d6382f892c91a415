package models

import "time"

// Notification is an in-app message addressed to a single user.
type Notification struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	UserID            string `gorm:"size:64;index;not null"`
	Title             string `gorm:"not null"`
	Message           string `gorm:"type:text"`
	Type              string `gorm:"size:16;default:info"`
	Category          string `gorm:"size:24;default:system"`
	Priority          string `gorm:"size:16;default:medium"`
	Link              string `gorm:"size:255"`
	RelatedEntityID   string `gorm:"size:64"`
	RelatedEntityType string `gorm:"size:24"`
	Read              bool   `gorm:"default:false;index"`
	CreatedAt         time.Time
}
