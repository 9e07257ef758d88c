package models

import (
	"time"
)

// User represents a system user
type User struct {
	BaseModel

	Email     string `json:"email" db:"email"`
	FullName  string `json:"fullName" db:"full_name"`

	PasswordHash string `json:"-" db:"password_hash"`

	IsSuperAdmin bool `json:"isSuperAdmin" db:"is_super_admin"`
	IsActive     bool `json:"isActive" db:"is_active"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`

	Settings Variables `json:"settings" db:"settings"`
}
