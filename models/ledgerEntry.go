package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/contaflux/portal_backend/config"
)

// LedgerEntry is one accounting line produced by aligning a document:
// date, amount, narrative and the debit/credit account pair.
type LedgerEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	UserId        int             `gorm:"index:idx_ledger_user_period" json:"user_id"`
	Competencia   string          `gorm:"size:7;index:idx_ledger_user_period" json:"competencia"`
	EntryDate     time.Time       `gorm:"type:date" json:"data"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,6)" json:"valor"`
	Description   string          `gorm:"size:500" json:"historico"`
	DebitAccount  string          `gorm:"size:30" json:"debito"`
	CreditAccount string          `gorm:"size:30" json:"credito"`
	DocumentId    int             `gorm:"index" json:"document_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func CreateLedgerEntries(ctx context.Context, entries []*LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return config.GetDB().WithContext(ctx).CreateInBatches(entries, 200).Error
}

// ReplaceLedgerEntriesForDocument swaps a document's entries atomically.
// Re-running an alignment must not duplicate lines.
func ReplaceLedgerEntriesForDocument(ctx context.Context, documentId int, entries []*LedgerEntry) error {
	return config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentId).Delete(&LedgerEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, 200).Error
	})
}

// ReplaceLedgerEntriesForPeriod swaps the whole period wholesale, used when a
// verifier returns a corrected entry set.
func ReplaceLedgerEntriesForPeriod(ctx context.Context, userId int, competencia string, entries []*LedgerEntry) error {
	return config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND competencia = ?", userId, competencia).Delete(&LedgerEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, 200).Error
	})
}

func DeleteLedgerEntriesByIds(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	return config.GetDB().WithContext(ctx).Where("id IN ?", ids).Delete(&LedgerEntry{}).Error
}

// GetLedgerEntriesForPeriod returns a period's entries in insertion order so
// exports are deterministic for identical inputs.
func GetLedgerEntriesForPeriod(ctx context.Context, userId int, competencia string) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := config.GetDB().WithContext(ctx).
		Where("user_id = ? AND competencia = ?", userId, competencia).
		Order("created_at asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
