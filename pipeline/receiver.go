package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/contaflux/portal_backend/config"
	"github.com/contaflux/portal_backend/models"
)

// WebhookResult is always delivered with HTTP 200. The sender is an external
// service with at-least-once, possibly out-of-order delivery; anything other
// than a 200 just provokes pointless redelivery.
type WebhookResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func softOk(message string) WebhookResult {
	return WebhookResult{Success: true, Message: message}
}

func softFail(message string) WebhookResult {
	return WebhookResult{Success: false, Message: message}
}

type webhookHandler func(ctx context.Context, env WebhookEnvelope) WebhookResult

var webhookHandlers = map[string]webhookHandler{
	"ingestion-result":            handleIngestionResult,
	"alignment-result":            handleAlignmentResult,
	"closing-verification-result": handleClosingVerificationResult,
}

// DispatchWebhook routes an envelope by its event field. Unknown events are a
// soft failure, never an error status.
func DispatchWebhook(ctx context.Context, env WebhookEnvelope) WebhookResult {
	handler, ok := webhookHandlers[env.Event]
	if !ok {
		return softFail(fmt.Sprintf("unknown event %q", env.Event))
	}
	return handler(ctx, env)
}

func handleIngestionResult(ctx context.Context, env WebhookEnvelope) WebhookResult {
	logger := config.GetLogger()

	doc, err := models.GetClientDocumentById(ctx, env.DocumentId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return softFail(fmt.Sprintf("unknown document %d", env.DocumentId))
	}
	if err != nil {
		config.LogError(logger, "pipeline", "handleIngestionResult", "models.GetClientDocumentById", env, err)
		return softFail("internal error")
	}

	if env.Success {
		if doc.ProcessingStatus == models.ProcessingStatusDone {
			return softOk("document already processed")
		}
		err := doc.TransitionProcessing(ctx, models.ProcessingStatusDone, map[string]interface{}{
			"extracted_data":      []byte(env.ExtractedData),
			"attempts_processing": 0,
			"last_error":          nil,
		})
		if err != nil {
			config.LogError(logger, "pipeline", "handleIngestionResult", "TransitionProcessing", env, err)
			return softFail("could not finish ingestion: " + err.Error())
		}

		// Hand off to the durable queue; alignment runs from there.
		if err := PublishAlignmentRun(ctx, doc.ID); err != nil {
			config.LogError(logger, "pipeline", "handleIngestionResult", "PublishAlignmentRun",
				map[string]interface{}{"document_id": doc.ID}, err)
			return softFail("ingestion stored, alignment trigger failed")
		}
		return softOk("ingestion stored, alignment queued")
	}

	attempts := doc.AttemptsProcessing + 1
	if attempts >= MaxProcessingAttempts {
		err := doc.TransitionProcessing(ctx, models.ProcessingStatusError, map[string]interface{}{
			"attempts_processing": attempts,
			"last_error":          truncateError(env.ErrorMessage),
		})
		if err != nil {
			config.LogError(logger, "pipeline", "handleIngestionResult", "TransitionProcessing", env, err)
			return softFail("could not record ingestion failure: " + err.Error())
		}
		notify(ctx, doc.UserId, models.NotificationTypeIngestion, "Processamento de documento",
			fmt.Sprintf("Falha definitiva no processamento do documento %s: %s", doc.FileName, env.ErrorMessage))
		return softOk("ingestion failed permanently")
	}

	// Below the cap the document loops back for the external poller.
	err = doc.TransitionProcessing(ctx, models.ProcessingStatusNotProcessed, map[string]interface{}{
		"attempts_processing": attempts,
		"last_error":          truncateError(env.ErrorMessage),
	})
	if err != nil {
		config.LogError(logger, "pipeline", "handleIngestionResult", "TransitionProcessing", env, err)
		return softFail("could not record ingestion failure: " + err.Error())
	}
	return softOk("ingestion failed, document requeued")
}

// handleAlignmentResult is the push-path twin of RunAlignment's success
// branch: same apply function, same notification, same retry policy.
func handleAlignmentResult(ctx context.Context, env WebhookEnvelope) WebhookResult {
	logger := config.GetLogger()

	doc, err := models.GetClientDocumentById(ctx, env.DocumentId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return softFail(fmt.Sprintf("unknown document %d", env.DocumentId))
	}
	if err != nil {
		config.LogError(logger, "pipeline", "handleAlignmentResult", "models.GetClientDocumentById", env, err)
		return softFail("internal error")
	}

	if doc.AlignmentStatus.Terminal() {
		return softOk("document already in terminal alignment state")
	}

	if env.Success {
		if err := applyAlignmentResult(ctx, doc, env.Lancamentos); err != nil {
			config.LogError(logger, "pipeline", "handleAlignmentResult", "applyAlignmentResult", env, err)
			return softFail("could not apply alignment result: " + err.Error())
		}
		return softOk("alignment result applied")
	}

	if err := handleAlignmentFailure(ctx, doc, env.ErrorMessage); err != nil {
		config.LogError(logger, "pipeline", "handleAlignmentResult", "handleAlignmentFailure", env, err)
		return softFail("could not record alignment failure: " + err.Error())
	}
	return softOk("alignment failure recorded")
}

func handleClosingVerificationResult(ctx context.Context, env WebhookEnvelope) WebhookResult {
	logger := config.GetLogger()

	if env.VerificationId == "" {
		return softFail("missing verification_id")
	}

	closure, err := models.GetMonthClosureByVerificationId(ctx, env.VerificationId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Could be expired or forged; either way, not ours to act on.
		return softFail(fmt.Sprintf("unknown verification_id %s", env.VerificationId))
	}
	if err != nil {
		config.LogError(logger, "pipeline", "handleClosingVerificationResult", "models.GetMonthClosureByVerificationId", env, err)
		return softFail("internal error")
	}

	if closure.VerificationStatus != models.VerificationStatusPending {
		// Replay after finalization. Artifacts are deterministic, state is
		// final; acknowledge and move on.
		return softOk("closure already finalized")
	}

	if !env.Success {
		finalized, err := models.FinalizeVerification(ctx, closure.VerificationId, models.VerificationStatusError)
		if err != nil {
			config.LogError(logger, "pipeline", "handleClosingVerificationResult", "models.FinalizeVerification", env, err)
			return softFail("could not record verification failure: " + err.Error())
		}
		if !finalized {
			return softOk("closure already finalized")
		}
		writeClosureAudit(ctx, closure, "verification_failed", env.ErrorMessage)
		notify(ctx, closure.UserId, models.NotificationTypeClosing, "Fechamento de mes",
			fmt.Sprintf("Verificacao do fechamento %s falhou: %s", closure.Competencia, env.ErrorMessage))
		return softOk("verification failure recorded")
	}

	// Replace-all only when the callback actually carries a corrected set. An
	// absent field means the verifier had no corrections; the existing
	// entries stand, same as the inline path.
	if corrected, ok := env.correctedSet(); ok {
		rows := toLedgerEntries(corrected, closure.UserId, closure.Competencia, 0)
		if err := models.ReplaceLedgerEntriesForPeriod(ctx, closure.UserId, closure.Competencia, rows); err != nil {
			config.LogError(logger, "pipeline", "handleClosingVerificationResult", "models.ReplaceLedgerEntriesForPeriod", env, err)
			return softFail("could not apply corrected entries: " + err.Error())
		}
	}

	entries, err := models.GetLedgerEntriesForPeriod(ctx, closure.UserId, closure.Competencia)
	if err != nil {
		config.LogError(logger, "pipeline", "handleClosingVerificationResult", "models.GetLedgerEntriesForPeriod", env, err)
		return softFail("could not re-read entries: " + err.Error())
	}

	duplicatesRemoved := closure.DuplicatesRemoved
	if env.DuplicatesRemoved > 0 {
		duplicatesRemoved = env.DuplicatesRemoved
	}

	if err := finalizeClosure(ctx, closure, entries, env.Format, models.VerificationStatusVerified, duplicatesRemoved); err != nil {
		config.LogError(logger, "pipeline", "handleClosingVerificationResult", "finalizeClosure", env, err)
		return softFail("could not finalize closure: " + err.Error())
	}
	return softOk("closure finalized")
}
