package models

import (
	"context"
	"time"

	"github.com/contaflux/portal_backend/config"
)

// User is a portal account. Role 'A' (admin) and 'O' (operator) belong to
// the accounting firm; 'C' is a client company.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:200" json:"name"`
	Email     string    `gorm:"size:200;uniqueIndex" json:"email"`
	Role      UserRole  `gorm:"size:1;default:C" json:"role"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetUserById(ctx context.Context, id int) (*User, error) {
	var user User
	err := config.GetDB().WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CanCloseMonth requires the admin role. Operators can work documents but
// closing a period is an admin-only action.
func (u *User) CanCloseMonth() bool {
	return u.Role == UserRoleAdmin
}
