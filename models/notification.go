package models

import (
	"context"
	"time"

	"github.com/contaflux/portal_backend/config"
)

// Notification is an in-app message shown to the client when pipeline work
// finishes or fails for one of their documents or closings.
type Notification struct {
	ID        int              `gorm:"primary_key" json:"id"`
	UserId    int              `gorm:"index" json:"user_id"`
	Type      NotificationType `gorm:"size:20" json:"type"`
	Title     string           `gorm:"size:200" json:"title"`
	Message   string           `gorm:"size:1000" json:"message"`
	IsRead    bool             `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func CreateNotification(ctx context.Context, n *Notification) error {
	return config.GetDB().WithContext(ctx).Create(n).Error
}

func GetUnreadNotifications(ctx context.Context, userId int) ([]Notification, error) {
	var ns []Notification
	err := config.GetDB().WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userId, false).
		Order("id desc").
		Find(&ns).Error
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func MarkNotificationRead(ctx context.Context, id int, userId int) error {
	return config.GetDB().WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userId).
		Update("is_read", true).Error
}
