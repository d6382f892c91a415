package models

import "time"

// Profile is a platform user. Role is a single application role
// string (e.g. "ProjectManager", "SeniorOperationsLead").
type Profile struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"size:255;index"`
	Role      string `gorm:"size:48;index"`
	Active    bool   `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Project is a monitored field-operations project.
type Project struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"uniqueIndex;not null"`
	Country   string `gorm:"size:64"`
	Active    bool   `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Members []ProjectMember `gorm:"foreignKey:ProjectID"`
}

// ProjectMember assigns a user to a project with a project-scoped role.
type ProjectMember struct {
	ProjectID string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:64"`
	Role      string `gorm:"size:48"`
	CreatedAt time.Time
}

// UserSettings holds a user's settings blob. The notification
// preferences consumed by internal/notify live under the
// "notificationPreferences" key of the JSON document.
type UserSettings struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Settings  string `gorm:"type:json"`
	UpdatedAt time.Time
}
