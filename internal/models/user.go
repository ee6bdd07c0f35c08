package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account in the e-Bantek portal. The role is fixed at
// registration; staff roles additionally record their unit and position.
type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"size:120;not null" json:"name"`
	Email           string         `gorm:"unique;not null" json:"email"`
	Password        string         `gorm:"not null" json:"-"`
	Phone           string         `gorm:"size:20" json:"phone"`
	Role            Role           `gorm:"type:varchar(30);not null;default:'pemohon';index" json:"role"`
	Organization    string         `gorm:"size:160" json:"organization"`
	Position        string         `gorm:"size:120" json:"position"`
	IsEmailVerified bool           `gorm:"not null;default:false" json:"is_email_verified"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// Permissions returns the permission set derived from the user's role.
func (u *User) Permissions() []Permission {
	return PermissionsFor(u.Role)
}
