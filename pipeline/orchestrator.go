package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/contaflux/portal_backend/config"
	"github.com/contaflux/portal_backend/models"
)

// RunAlignment drives one document toward aligned or a terminal error.
// isRetry marks invocations from the retry worker: those only proceed when
// the document is still awaiting_retry, so a push-path callback that already
// finished the document turns the timer into a no-op.
func RunAlignment(ctx context.Context, documentId int, isRetry bool) error {
	logger := config.GetLogger()

	doc, err := models.GetClientDocumentById(ctx, documentId)
	if err != nil {
		return err
	}

	if doc.ProcessingStatus != models.ProcessingStatusDone {
		return &InvalidStateError{DocumentId: doc.ID, Status: string(doc.ProcessingStatus)}
	}

	from := models.AlignmentStatusNone
	if isRetry {
		from = models.AlignmentStatusAwaitingRetry
	}
	if doc.AlignmentStatus != from {
		if isRetry {
			// The document moved on while the retry was due. Nothing to do.
			logger.WithFields(logrus.Fields{
				"module":      "pipeline",
				"document_id": doc.ID,
				"status":      doc.AlignmentStatus,
			}).Info("skipping alignment retry, document no longer awaiting_retry")
			return nil
		}
		return &InvalidStateError{DocumentId: doc.ID, Status: string(doc.AlignmentStatus)}
	}

	// Guarded claim: sets processing and bumps the attempt counter in one
	// UPDATE so a duplicate trigger loses cleanly.
	doc, err = models.ClaimForAlignment(ctx, documentId, from)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.WithFields(logrus.Fields{
			"module":      "pipeline",
			"document_id": documentId,
		}).Info("alignment claim lost, another trigger got there first")
		return nil
	}
	if err != nil {
		return err
	}

	chart, err := models.GetChartOfAccountsByUserId(ctx, doc.UserId)
	if err != nil {
		return handleAlignmentFailure(ctx, doc, "failed to load chart of accounts: "+err.Error())
	}
	if chart == nil {
		// Data problem, not a transient fault. Never retried.
		return failAlignmentTerminal(ctx, doc, "plano de contas nao cadastrado para o cliente")
	}

	client, err := newAlignerClient()
	if err != nil {
		return handleAlignmentFailure(ctx, doc, err.Error())
	}

	resp, err := client.Align(ctx, AlignmentRequest{
		Event:          "alignment-request",
		DocumentId:     doc.ID,
		UserId:         doc.UserId,
		Competencia:    doc.Competencia,
		TipoDocumento:  doc.DocumentType,
		DadosExtraidos: json.RawMessage(doc.ExtractedData),
		PlanoContas:    json.RawMessage(chart.Content),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		config.LogError(logger, "pipeline", "RunAlignment", "alignerClient.Align",
			map[string]interface{}{"document_id": doc.ID, "attempt": doc.AttemptsAlignment}, err)
		return handleAlignmentFailure(ctx, doc, err.Error())
	}

	return applyAlignmentResult(ctx, doc, resp.Lancamentos)
}
