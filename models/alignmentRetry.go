package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contaflux/portal_backend/config"
)

// AlignmentRetry is a durable retry row: instead of sleeping in-process, a
// failed alignment schedules a row with a due time and a poller picks it up.
// Rows survive restarts, which an in-memory timer would not.
type AlignmentRetry struct {
	ID         int                  `gorm:"primary_key" json:"id"`
	DocumentId int                  `gorm:"index" json:"document_id"`
	UserId     int                  `json:"user_id"`
	DueAt      time.Time            `gorm:"index" json:"due_at"`
	Status     AlignmentRetryStatus `gorm:"size:20;default:PENDING;index" json:"status"`
	LockedAt   *time.Time           `json:"locked_at,omitempty"`
	LockedBy   *string              `gorm:"size:64" json:"locked_by,omitempty"`
	LastError  *string              `gorm:"size:1000" json:"last_error,omitempty"`
	CreatedAt  time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func ScheduleAlignmentRetry(ctx context.Context, documentId int, userId int, dueAt time.Time) error {
	retry := AlignmentRetry{
		DocumentId: documentId,
		UserId:     userId,
		DueAt:      dueAt,
		Status:     AlignmentRetryStatusPending,
	}
	return config.GetDB().WithContext(ctx).Create(&retry).Error
}

// ClaimDueAlignmentRetries locks and claims up to limit due rows for this
// worker. SKIP LOCKED keeps concurrent instances off each other's rows.
func ClaimDueAlignmentRetries(ctx context.Context, workerId string, limit int, now time.Time) ([]AlignmentRetry, error) {
	var claimed []AlignmentRetry
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []AlignmentRetry
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND due_at <= ?", AlignmentRetryStatusPending, now).
			Order("due_at asc").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]int, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		err = tx.Model(&AlignmentRetry{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":    AlignmentRetryStatusProcessing,
				"locked_at": now,
				"locked_by": workerId,
			}).Error
		if err != nil {
			return err
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReclaimStaleAlignmentRetries returns rows stuck in PROCESSING longer than
// the given age back to PENDING. Covers workers that died mid-claim.
func ReclaimStaleAlignmentRetries(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-olderThan)
	res := config.GetDB().WithContext(ctx).Model(&AlignmentRetry{}).
		Where("status = ? AND locked_at < ?", AlignmentRetryStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":    AlignmentRetryStatusPending,
			"locked_at": nil,
			"locked_by": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *AlignmentRetry) MarkDone(ctx context.Context) error {
	return config.GetDB().WithContext(ctx).Model(&AlignmentRetry{}).
		Where("id = ?", r.ID).
		Update("status", AlignmentRetryStatusDone).Error
}

func (r *AlignmentRetry) MarkFailed(ctx context.Context, cause string) error {
	if len(cause) > 1000 {
		cause = cause[:1000]
	}
	return config.GetDB().WithContext(ctx).Model(&AlignmentRetry{}).
		Where("id = ?", r.ID).
		Updates(map[string]interface{}{
			"status":     AlignmentRetryStatusFailed,
			"last_error": cause,
		}).Error
}
