package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/contaflux/portal_backend/config"
)

// ChartOfAccounts is the client's plano de contas, stored as the raw JSON
// the accountant uploaded. Alignment cannot run without it.
type ChartOfAccounts struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserId    int       `gorm:"uniqueIndex" json:"user_id"`
	Content   []byte    `gorm:"type:mediumblob" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetChartOfAccountsByUserId returns nil, nil when the client has no chart
// uploaded yet.
func GetChartOfAccountsByUserId(ctx context.Context, userId int) (*ChartOfAccounts, error) {
	var chart ChartOfAccounts
	err := config.GetDB().WithContext(ctx).First(&chart, "user_id = ?", userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chart, nil
}

func UpsertChartOfAccounts(ctx context.Context, userId int, content []byte) error {
	db := config.GetDB().WithContext(ctx)
	res := db.Model(&ChartOfAccounts{}).Where("user_id = ?", userId).Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return db.Create(&ChartOfAccounts{UserId: userId, Content: content}).Error
}
