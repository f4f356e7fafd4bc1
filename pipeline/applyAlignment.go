package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/contaflux/portal_backend/config"
	"github.com/contaflux/portal_backend/models"
)

const (
	MaxAlignmentAttempts  = 3
	MaxProcessingAttempts = 5
	AlignmentRetryDelay   = 5 * time.Minute
)

// applyAlignmentResult is the one place a finished alignment is written,
// whether the orchestrator pulled the result or the aligner pushed it via
// webhook. Zero entries is a policy failure, not a transient one.
func applyAlignmentResult(ctx context.Context, doc *models.ClientDocument, entries []WireEntry) error {
	if !doc.AlignmentStatus.CanTransition(models.AlignmentStatusAligned) {
		return &models.InvalidTransitionError{
			Machine: "alignment",
			From:    string(doc.AlignmentStatus),
			To:      string(models.AlignmentStatusAligned),
		}
	}

	if len(entries) == 0 {
		return failAlignmentTerminal(ctx, doc, "no entries produced")
	}

	rows := toLedgerEntries(entries, doc.UserId, doc.Competencia, doc.ID)
	if err := models.ReplaceLedgerEntriesForDocument(ctx, doc.ID, rows); err != nil {
		return err
	}

	err := doc.TransitionAlignment(ctx, models.AlignmentStatusAligned, map[string]interface{}{
		"last_error": nil,
	})
	if err != nil {
		return err
	}

	notifyAlignment(ctx, doc.UserId,
		fmt.Sprintf("Documento %s alinhado: %d lancamentos gerados para %s.", doc.FileName, len(entries), doc.Competencia))
	return nil
}

type alignmentFailureAction int

const (
	alignmentFailureScheduleRetry alignmentFailureAction = iota
	alignmentFailureRefreshReason
	alignmentFailureTerminal
)

// alignmentFailureActionFor is the retry policy: at the attempt cap the
// failure is terminal; below it, a document already awaiting a retry only
// refreshes its failure reason (its retry row exists), anything else gets a
// new retry row.
func alignmentFailureActionFor(status models.AlignmentStatus, attempts int) alignmentFailureAction {
	if attempts >= MaxAlignmentAttempts {
		return alignmentFailureTerminal
	}
	if status == models.AlignmentStatusAwaitingRetry {
		return alignmentFailureRefreshReason
	}
	return alignmentFailureScheduleRetry
}

// handleAlignmentFailure applies the retry policy for a transport or HTTP
// failure: below the attempt cap the document waits for a durable retry row,
// at the cap it goes terminal.
func handleAlignmentFailure(ctx context.Context, doc *models.ClientDocument, cause string) error {
	switch alignmentFailureActionFor(doc.AlignmentStatus, doc.AttemptsAlignment) {
	case alignmentFailureTerminal:
		return failAlignmentTerminal(ctx, doc, cause)
	case alignmentFailureRefreshReason:
		return persistLastError(ctx, doc, cause)
	}

	err := doc.TransitionAlignment(ctx, models.AlignmentStatusAwaitingRetry, map[string]interface{}{
		"last_error": truncateError(cause),
	})
	if err != nil {
		return err
	}
	return models.ScheduleAlignmentRetry(ctx, doc.ID, doc.UserId, time.Now().Add(AlignmentRetryDelay))
}

func failAlignmentTerminal(ctx context.Context, doc *models.ClientDocument, cause string) error {
	err := doc.TransitionAlignment(ctx, models.AlignmentStatusError, map[string]interface{}{
		"last_error": truncateError(cause),
	})
	if err != nil {
		return err
	}
	notifyAlignment(ctx, doc.UserId,
		fmt.Sprintf("Falha no alinhamento do documento %s (%s): %s", doc.FileName, doc.Competencia, cause))
	return nil
}

func persistLastError(ctx context.Context, doc *models.ClientDocument, cause string) error {
	return config.GetDB().WithContext(ctx).Model(&models.ClientDocument{}).
		Where("id = ?", doc.ID).
		Update("last_error", truncateError(cause)).Error
}

func truncateError(cause string) string {
	if len(cause) > 1000 {
		return cause[:1000]
	}
	return cause
}

// Notifications are fire-and-forget: a failed insert is logged, never fatal.
func notifyAlignment(ctx context.Context, userId int, message string) {
	notify(ctx, userId, models.NotificationTypeAlignment, "Alinhamento de documento", message)
}

func notify(ctx context.Context, userId int, notifType models.NotificationType, title string, message string) {
	n := &models.Notification{
		UserId:  userId,
		Type:    notifType,
		Title:   title,
		Message: message,
	}
	if err := models.CreateNotification(ctx, n); err != nil {
		config.LogError(config.GetLogger(), "pipeline", "notify", "models.CreateNotification", n, err)
	}
}
