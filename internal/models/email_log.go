package models

import "time"

// EmailLog records one outbound email attempt, successful or not.
type EmailLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Recipient string `gorm:"size:255;not null"`
	Subject   string `gorm:"size:255"`
	Status    string `gorm:"size:16;default:sent"`
	Error     string `gorm:"type:text"`
	CreatedAt time.Time
}
