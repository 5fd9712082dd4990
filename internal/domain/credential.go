package domain

import "time"

type Credential struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EmployeeCode string    `gorm:"uniqueIndex;size:64;not null" json:"employeeCode"`
	DisplayName  string    `gorm:"size:255;not null" json:"displayName"`
	ContactEmail string    `gorm:"size:255" json:"contactEmail,omitempty"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"isAdmin"`
	AdminKeyHash *string   `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasAdminKey reports whether the admin flag and admin key are both set.
func (c *Credential) HasAdminKey() bool {
	return c.IsAdmin && c.AdminKeyHash != nil && *c.AdminKeyHash != ""
}
