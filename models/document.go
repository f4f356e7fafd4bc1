package models

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/contaflux/portal_backend/config"
)

// ClientDocument is a raw file uploaded by a client for a given competencia
// (accounting period, "YYYY-MM"). It moves through two state machines:
// processing (transcription) and alignment (ledger conversion).
type ClientDocument struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	UserId             int              `gorm:"index:idx_doc_user_period" json:"user_id"`
	Competencia        string           `gorm:"size:7;index:idx_doc_user_period" json:"competencia"`
	FileName           string           `gorm:"size:255" json:"file_name"`
	ObjectKey          string           `gorm:"size:500" json:"object_key"`
	DocumentType       string           `gorm:"size:50" json:"document_type"`
	ProcessingStatus   ProcessingStatus `gorm:"size:20;default:not_processed;index" json:"processing_status"`
	AlignmentStatus    AlignmentStatus  `gorm:"size:20;default:none;index" json:"alignment_status"`
	AttemptsProcessing int              `gorm:"default:0" json:"attempts_processing"`
	AttemptsAlignment  int              `gorm:"default:0" json:"attempts_alignment"`
	LastError          *string          `gorm:"size:1000" json:"last_error,omitempty"`
	ExtractedData      []byte           `gorm:"type:mediumblob" json:"-"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvalidTransitionError struct {
	Machine string
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Machine, e.From, e.To)
}

func CreateClientDocument(ctx context.Context, doc *ClientDocument) error {
	return config.GetDB().WithContext(ctx).Create(doc).Error
}

func GetClientDocumentById(ctx context.Context, id int) (*ClientDocument, error) {
	var doc ClientDocument
	err := config.GetDB().WithContext(ctx).First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetPendingDocumentsForPeriod returns documents that block a month closing:
// anything still waiting on or inside transcription.
func GetPendingDocumentsForPeriod(ctx context.Context, userId int, competencia string) ([]ClientDocument, error) {
	var docs []ClientDocument
	err := config.GetDB().WithContext(ctx).
		Where("user_id = ? AND competencia = ?", userId, competencia).
		Where("processing_status IN ?",
			[]ProcessingStatus{ProcessingStatusNotProcessed, ProcessingStatusProcessing}).
		Order("id asc").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// TransitionProcessing validates the processing-status change against the
// state machine before persisting it. Extra column updates ride along in the
// same UPDATE.
func (d *ClientDocument) TransitionProcessing(ctx context.Context, to ProcessingStatus, updates map[string]interface{}) error {
	if !d.ProcessingStatus.CanTransition(to) {
		return &InvalidTransitionError{Machine: "processing", From: string(d.ProcessingStatus), To: string(to)}
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["processing_status"] = to
	err := config.GetDB().WithContext(ctx).Model(&ClientDocument{}).
		Where("id = ?", d.ID).Updates(updates).Error
	if err != nil {
		return err
	}
	d.ProcessingStatus = to
	return nil
}

// TransitionAlignment is the single write path for alignment-status changes.
func (d *ClientDocument) TransitionAlignment(ctx context.Context, to AlignmentStatus, updates map[string]interface{}) error {
	if !d.AlignmentStatus.CanTransition(to) {
		return &InvalidTransitionError{Machine: "alignment", From: string(d.AlignmentStatus), To: string(to)}
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["alignment_status"] = to
	err := config.GetDB().WithContext(ctx).Model(&ClientDocument{}).
		Where("id = ?", d.ID).Updates(updates).Error
	if err != nil {
		return err
	}
	d.AlignmentStatus = to
	return nil
}

// ClaimForAlignment flips the document to alignment processing and bumps the
// attempt counter in one guarded UPDATE, so two concurrent triggers cannot
// both win. Returns gorm.ErrRecordNotFound when the row was not in a
// claimable state.
func ClaimForAlignment(ctx context.Context, id int, from AlignmentStatus) (*ClientDocument, error) {
	if !from.CanTransition(AlignmentStatusProcessing) {
		return nil, &InvalidTransitionError{Machine: "alignment", From: string(from), To: string(AlignmentStatusProcessing)}
	}
	db := config.GetDB().WithContext(ctx)
	res := db.Model(&ClientDocument{}).
		Where("id = ? AND alignment_status = ?", id, from).
		Updates(map[string]interface{}{
			"alignment_status":   AlignmentStatusProcessing,
			"attempts_alignment": gorm.Expr("attempts_alignment + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return GetClientDocumentById(ctx, id)
}
