package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Canvas is a stored vector-graphics document. Content is an opaque
// serialized scene graph; this service never interprets it.
type Canvas struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	UserID         string          `gorm:"size:36;index" json:"user_id"`
	OrganizationID *string         `gorm:"size:64;index" json:"organization_id"`
	Name           string          `gorm:"size:200" json:"name"`
	Content        json.RawMessage `gorm:"type:jsonb" json:"content"`
	Thumbnail      *string         `json:"thumbnail"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Canvas) TableName() string {
	return "canvases"
}

func (c *Canvas) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// OwnedBy reports whether the identity may read or write this canvas:
// either the personal owner, or a member of the owning organization.
func (c *Canvas) OwnedBy(identity Identity) bool {
	if c.UserID == identity.UserID {
		return true
	}
	if c.OrganizationID != nil && identity.OrganizationID != "" {
		return *c.OrganizationID == identity.OrganizationID
	}
	return false
}
