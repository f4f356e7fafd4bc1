package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/contaflux/portal_backend/config"
)

// MonthClosure records a finished (or in-flight) month closing for a client
// and period. Artifact columns store object keys only; download URLs are
// signed on demand and never persisted.
type MonthClosure struct {
	ID                 int                `gorm:"primary_key" json:"id"`
	UserId             int                `gorm:"index:idx_closure_user_period" json:"user_id"`
	Competencia        string             `gorm:"size:7;index:idx_closure_user_period" json:"competencia"`
	VerificationId     string             `gorm:"size:36;uniqueIndex" json:"verification_id"`
	VerificationStatus VerificationStatus `gorm:"size:20;default:skipped" json:"verification_status"`
	TotalEntries       int                `json:"total_entries"`
	TotalAmount        decimal.Decimal    `gorm:"type:decimal(20,6)" json:"total_amount"`
	DuplicatesRemoved  int                `json:"duplicates_removed"`
	CsvObjectKey       *string            `gorm:"size:500" json:"csv_object_key,omitempty"`
	ExcelObjectKey     *string            `gorm:"size:500" json:"excel_object_key,omitempty"`
	Superseded         bool               `gorm:"default:false" json:"superseded"`
	ClosedBy           int                `json:"closed_by"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateMonthClosure(ctx context.Context, mc *MonthClosure) error {
	return config.GetDB().WithContext(ctx).Create(mc).Error
}

// GetActiveMonthClosure returns the non-superseded closure for a period, or
// nil when the month is still open.
func GetActiveMonthClosure(ctx context.Context, userId int, competencia string) (*MonthClosure, error) {
	var mc MonthClosure
	err := config.GetDB().WithContext(ctx).
		Where("user_id = ? AND competencia = ? AND superseded = ?", userId, competencia, false).
		Order("id desc").
		First(&mc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

func GetMonthClosureById(ctx context.Context, id int) (*MonthClosure, error) {
	var mc MonthClosure
	err := config.GetDB().WithContext(ctx).First(&mc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

func GetMonthClosureByVerificationId(ctx context.Context, verificationId string) (*MonthClosure, error) {
	var mc MonthClosure
	err := config.GetDB().WithContext(ctx).
		First(&mc, "verification_id = ?", verificationId).Error
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

func (mc *MonthClosure) UpdateFields(ctx context.Context, updates map[string]interface{}) error {
	return config.GetDB().WithContext(ctx).Model(&MonthClosure{}).
		Where("id = ?", mc.ID).Updates(updates).Error
}

// FinalizeVerification moves a pending closure to its terminal verification
// state, guarded so a replayed callback cannot overwrite a final result.
func FinalizeVerification(ctx context.Context, verificationId string, to VerificationStatus) (bool, error) {
	res := config.GetDB().WithContext(ctx).Model(&MonthClosure{}).
		Where("verification_id = ? AND verification_status = ?", verificationId, VerificationStatusPending).
		Update("verification_status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Supersede retires a closure so the period can be closed again. This is the
// recovery path for a closure stuck in pending (verifier never called back,
// or finalization failed partway) and for admin-requested reopens. Guarded on
// superseded=false so a double reopen is a no-op.
func (mc *MonthClosure) Supersede(ctx context.Context) (bool, error) {
	res := config.GetDB().WithContext(ctx).Model(&MonthClosure{}).
		Where("id = ? AND superseded = ?", mc.ID, false).
		Update("superseded", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		mc.Superseded = true
	}
	return res.RowsAffected > 0, nil
}

// ClosureAudit keeps an append-only trail of who closed or reopened a period.
type ClosureAudit struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ClosureId   int       `gorm:"index" json:"closure_id"`
	UserId      int       `json:"user_id"`
	Competencia string    `gorm:"size:7" json:"competencia"`
	Action      string    `gorm:"size:30" json:"action"`
	ActorId     int       `json:"actor_id"`
	Detail      *string   `gorm:"size:500" json:"detail,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateClosureAudit(ctx context.Context, audit *ClosureAudit) error {
	return config.GetDB().WithContext(ctx).Create(audit).Error
}
