package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/contaflux/portal_backend/config"
	"github.com/contaflux/portal_backend/models"
	"github.com/contaflux/portal_backend/utils"
)

const SignedURLTTL = 7 * 24 * time.Hour

type CloseMonthResult struct {
	ClosureId          int                       `json:"closure_id"`
	VerificationId     string                    `json:"verification_id"`
	VerificationStatus models.VerificationStatus `json:"verification_status"`
	Pending            bool                      `json:"pending"`
	TotalEntries       int                       `json:"total_entries"`
	TotalAmount        decimal.Decimal           `json:"total_amount"`
	DuplicatesRemoved  int                       `json:"duplicates_removed"`
	CsvDownload        *utils.SignedDownload     `json:"csv_download,omitempty"`
	ExcelDownload      *utils.SignedDownload     `json:"excel_download,omitempty"`
}

// DedupeEntries keeps the first occurrence of each (date, amount,
// description, debit, credit) key in creation order and returns the ids of
// the later duplicates.
func DedupeEntries(entries []models.LedgerEntry) (kept []models.LedgerEntry, duplicateIds []int) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := dedupeKey(e)
		if _, ok := seen[key]; ok {
			duplicateIds = append(duplicateIds, e.ID)
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, e)
	}
	return kept, duplicateIds
}

func dedupeKey(e models.LedgerEntry) string {
	return fmt.Sprintf("%s\x1f%s\x1f%s\x1f%s\x1f%s",
		e.EntryDate.Format(wireDateLayout),
		e.Amount.StringFixed(6),
		e.Description,
		e.DebitAccount,
		e.CreditAccount)
}

// CloseMonth finalizes one (user, competencia) into an immutable export. It
// is synchronous unless a configured verifier decides to complete the
// closure later through the webhook receiver.
func CloseMonth(ctx context.Context, userId int, competencia string, format string, closedBy int) (*CloseMonthResult, error) {
	logger := config.GetLogger()

	actor, err := models.GetUserById(ctx, closedBy)
	if err != nil {
		return nil, err
	}
	if !actor.CanCloseMonth() {
		return nil, &PermissionError{UserId: closedBy}
	}

	// A verifier without a reachable callback URL would leave every closure
	// stuck in pending: its async completion could never arrive. Refuse
	// outright instead of creating a doomed record.
	if verifierConfigured() && callbackURL() == "" {
		return nil, errors.New("VERIFIER_API_BASE_URL is set but WEBHOOK_PUBLIC_BASE_URL is not; async verification results could never be delivered")
	}

	// The uniqueness check and the insert below run under one lock per
	// (user, competencia), so concurrent closings collapse into a clean
	// AlreadyClosedError instead of racing check-then-insert.
	lock := obtainClosingLock(ctx, userId, competencia)
	if lock != nil {
		defer lock.Release(context.Background())
	}

	if existing, err := models.GetActiveMonthClosure(ctx, userId, competencia); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &AlreadyClosedError{UserId: userId, Competencia: competencia}
	}

	pending, err := models.GetPendingDocumentsForPeriod(ctx, userId, competencia)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		blocked := make([]PendingDocument, 0, len(pending))
		for _, d := range pending {
			blocked = append(blocked, PendingDocument{DocumentId: d.ID, FileName: d.FileName})
		}
		return nil, &PendingDocumentsError{Competencia: competencia, Documents: blocked}
	}

	entries, err := models.GetLedgerEntriesForPeriod(ctx, userId, competencia)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &EmptyLedgerError{UserId: userId, Competencia: competencia}
	}

	// Local dedupe always runs before any external round-trip.
	kept, duplicateIds := DedupeEntries(entries)
	if err := models.DeleteLedgerEntriesByIds(ctx, duplicateIds); err != nil {
		return nil, err
	}

	closure := &models.MonthClosure{
		UserId:             userId,
		Competencia:        competencia,
		VerificationId:     uuid.NewString(),
		VerificationStatus: models.VerificationStatusSkipped,
		TotalEntries:       len(kept),
		TotalAmount:        sumAmounts(kept),
		DuplicatesRemoved:  len(duplicateIds),
		ClosedBy:           closedBy,
	}
	if verifierConfigured() {
		closure.VerificationStatus = models.VerificationStatusPending
	}
	if err := models.CreateMonthClosure(ctx, closure); err != nil {
		return nil, err
	}

	if closure.VerificationStatus == models.VerificationStatusPending {
		result, done, err := runVerification(ctx, closure, kept, format)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
		// Acknowledged; the receiver finishes this closure on callback.
		return &CloseMonthResult{
			ClosureId:          closure.ID,
			VerificationId:     closure.VerificationId,
			VerificationStatus: models.VerificationStatusPending,
			Pending:            true,
			TotalEntries:       closure.TotalEntries,
			TotalAmount:        closure.TotalAmount,
			DuplicatesRemoved:  closure.DuplicatesRemoved,
		}, nil
	}

	if err := finalizeClosure(ctx, closure, kept, format, models.VerificationStatusSkipped, len(duplicateIds)); err != nil {
		return nil, err
	}
	return buildCloseMonthResult(ctx, logger, closure)
}

// runVerification forwards the deduplicated set to the verifier. An inline
// corrected set completes the closure here; an acknowledgement leaves it
// pending; a transport failure finalizes it as a verification error, same as
// the callback failure path.
func runVerification(ctx context.Context, closure *models.MonthClosure, kept []models.LedgerEntry, format string) (*CloseMonthResult, bool, error) {
	logger := config.GetLogger()

	client, err := newVerifierClient()
	if err != nil {
		return nil, false, err
	}

	resp, err := client.Verify(ctx, VerificationRequest{
		Event:       "closing-verification",
		UserId:      closure.UserId,
		Competencia: closure.Competencia,
		Lancamentos: toWireEntries(kept),
		CallbackURL: callbackURL(),
	})
	if err != nil {
		config.LogError(logger, "pipeline", "runVerification", "verifierClient.Verify",
			map[string]interface{}{"closure_id": closure.ID, "verification_id": closure.VerificationId}, err)
		if _, ferr := models.FinalizeVerification(ctx, closure.VerificationId, models.VerificationStatusError); ferr != nil {
			return nil, false, ferr
		}
		closure.VerificationStatus = models.VerificationStatusError
		writeClosureAudit(ctx, closure, "verification_failed", err.Error())
		notify(ctx, closure.UserId, models.NotificationTypeClosing, "Fechamento de mes",
			fmt.Sprintf("Verificacao do fechamento %s falhou: %s", closure.Competencia, err.Error()))
		result, rerr := buildCloseMonthResult(ctx, logger, closure)
		return result, true, rerr
	}

	if !resp.CompletedInline() {
		return nil, false, nil
	}

	rows := toLedgerEntries(*resp.CorrectedLancamentos, closure.UserId, closure.Competencia, 0)
	if err := models.ReplaceLedgerEntriesForPeriod(ctx, closure.UserId, closure.Competencia, rows); err != nil {
		return nil, false, err
	}
	entries, err := models.GetLedgerEntriesForPeriod(ctx, closure.UserId, closure.Competencia)
	if err != nil {
		return nil, false, err
	}
	if err := finalizeClosure(ctx, closure, entries, format, models.VerificationStatusVerified, closure.DuplicatesRemoved); err != nil {
		return nil, false, err
	}
	result, err := buildCloseMonthResult(ctx, logger, closure)
	return result, true, err
}

// finalizeClosure generates artifacts, persists totals and artifact keys and
// the terminal verification status, writes the audit record and notifies the
// user. Used by the coordinator and by the receiver's callback path.
func finalizeClosure(ctx context.Context, closure *models.MonthClosure, entries []models.LedgerEntry, format string, status models.VerificationStatus, duplicatesRemoved int) error {
	csvKey, excelKey := uploadArtifacts(ctx, closure.UserId, closure.Competencia, entries, wantExcel(format))

	if closure.VerificationStatus == models.VerificationStatusPending {
		finalized, err := models.FinalizeVerification(ctx, closure.VerificationId, status)
		if err != nil {
			return err
		}
		if !finalized {
			// Lost the race to another finalizer; its artifacts are as good
			// as ours.
			return nil
		}
	}

	updates := map[string]interface{}{
		"verification_status": status,
		"total_entries":       len(entries),
		"total_amount":        sumAmounts(entries),
		"duplicates_removed":  duplicatesRemoved,
		"csv_object_key":      csvKey,
		"excel_object_key":    excelKey,
	}
	if err := closure.UpdateFields(ctx, updates); err != nil {
		return err
	}
	closure.VerificationStatus = status
	closure.TotalEntries = len(entries)
	closure.TotalAmount = sumAmounts(entries)
	closure.DuplicatesRemoved = duplicatesRemoved
	closure.CsvObjectKey = csvKey
	closure.ExcelObjectKey = excelKey

	writeClosureAudit(ctx, closure, "closed", fmt.Sprintf("status=%s entries=%d", status, len(entries)))
	notify(ctx, closure.UserId, models.NotificationTypeClosing, "Fechamento de mes",
		fmt.Sprintf("Competencia %s fechada: %d lancamentos, %d duplicados removidos.",
			closure.Competencia, len(entries), duplicatesRemoved))
	return nil
}

func buildCloseMonthResult(ctx context.Context, logger *logrus.Logger, closure *models.MonthClosure) (*CloseMonthResult, error) {
	result := &CloseMonthResult{
		ClosureId:          closure.ID,
		VerificationId:     closure.VerificationId,
		VerificationStatus: closure.VerificationStatus,
		TotalEntries:       closure.TotalEntries,
		TotalAmount:        closure.TotalAmount,
		DuplicatesRemoved:  closure.DuplicatesRemoved,
	}
	result.CsvDownload, result.ExcelDownload = signClosureDownloads(ctx, closure)
	return result, nil
}

// signClosureDownloads creates fresh time-limited URLs. Signing failures are
// logged and leave the download nil; the object keys stay on the record.
func signClosureDownloads(ctx context.Context, closure *models.MonthClosure) (csv *utils.SignedDownload, excel *utils.SignedDownload) {
	logger := config.GetLogger()
	if closure.CsvObjectKey != nil {
		signed, err := utils.SignDownload(ctx, *closure.CsvObjectKey, SignedURLTTL)
		if err != nil {
			config.LogError(logger, "pipeline", "signClosureDownloads", "utils.SignDownload csv",
				map[string]interface{}{"closure_id": closure.ID}, err)
		} else {
			csv = signed
		}
	}
	if closure.ExcelObjectKey != nil {
		signed, err := utils.SignDownload(ctx, *closure.ExcelObjectKey, SignedURLTTL)
		if err != nil {
			config.LogError(logger, "pipeline", "signClosureDownloads", "utils.SignDownload xlsx",
				map[string]interface{}{"closure_id": closure.ID}, err)
		} else {
			excel = signed
		}
	}
	return csv, excel
}

func writeClosureAudit(ctx context.Context, closure *models.MonthClosure, action string, detail string) {
	audit := &models.ClosureAudit{
		ClosureId:   closure.ID,
		UserId:      closure.UserId,
		Competencia: closure.Competencia,
		Action:      action,
		ActorId:     closure.ClosedBy,
	}
	if detail != "" {
		audit.Detail = &detail
	}
	if err := models.CreateClosureAudit(ctx, audit); err != nil {
		config.LogError(config.GetLogger(), "pipeline", "writeClosureAudit", "models.CreateClosureAudit", audit, err)
	}
}

// obtainClosingLock is best-effort in the same way posting locks are: when
// Redis is down we proceed and accept the documented check-then-insert race
// rather than refusing to close months.
func obtainClosingLock(ctx context.Context, userId int, competencia string) *redislock.Lock {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		logger.WithFields(logrus.Fields{
			"module": "pipeline",
		}).Warn("redis lock client unavailable, closing without lock")
		return nil
	}

	key := fmt.Sprintf("closing-lock:%d:%s", userId, competencia)
	lock, err := locker.Obtain(ctx, key, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(250*time.Millisecond), 20),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.WithFields(logrus.Fields{
				"module": "pipeline",
				"key":    key,
			}).Warn("closing lock not obtained, proceeding unlocked")
			return nil
		}
		config.LogError(logger, "pipeline", "obtainClosingLock", "locker.Obtain",
			map[string]interface{}{"key": key}, err)
		return nil
	}
	return lock
}
