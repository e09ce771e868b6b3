package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a user in the system
type User struct {
	ID             string  `gorm:"primaryKey;size:36"`
	Name           string
	Email          string  `gorm:"uniqueIndex"`
	Password       string  `gorm:"-"` // input only, not stored in db
	PasswordHash   string
	OrganizationID *string `gorm:"size:64;index"`
	IsActive       bool    `gorm:"default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Identity returns the identity-provider view of this user.
func (u *User) Identity() Identity {
	ident := Identity{
		UserID: u.ID,
		Name:   u.Name,
	}
	if u.OrganizationID != nil {
		ident.OrganizationID = *u.OrganizationID
	}
	return ident
}

// SafeUser represents a user without sensitive information
type SafeUser struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	OrganizationID *string   `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
	IsActive       bool      `json:"is_active"`
}

// ToSafeUser converts a User to a SafeUser
func (u *User) ToSafeUser() SafeUser {
	return SafeUser{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		OrganizationID: u.OrganizationID,
		CreatedAt:      u.CreatedAt,
		IsActive:       u.IsActive,
	}
}
