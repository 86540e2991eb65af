package dbschema

import (
	"time"

	"threadline/internal/domain/user"
)

type User struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	Subject     string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Email       string `gorm:"type:varchar(320);not null;default:''"`
	DisplayName string `gorm:"type:varchar(255);not null;default:''"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

func NewSchemaUser(u *user.User) *User {
	return &User{
		ID:          u.ID,
		Subject:     u.Subject,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func (u *User) EtoD() *user.User {
	return &user.User{
		ID:          u.ID,
		Subject:     u.Subject,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
