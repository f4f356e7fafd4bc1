package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/contaflux/portal_backend/config"
	"github.com/contaflux/portal_backend/models"
	"github.com/contaflux/portal_backend/utils"
)

// RetryWorker polls the alignment retry table for due rows and re-invokes
// the orchestrator. Because the rows are persisted, a process restart loses
// no scheduled retry.
type RetryWorker struct {
	Logger   *logrus.Logger
	WorkerId string

	BatchSize    int
	PollInterval time.Duration
	LockTimeout  time.Duration
}

func NewRetryWorker() *RetryWorker {
	return &RetryWorker{
		Logger:       config.GetLogger(),
		WorkerId:     uuid.NewString(),
		BatchSize:    utils.IntFromEnv("ALIGNMENT_RETRY_BATCH_SIZE", 20),
		PollInterval: time.Duration(utils.IntFromEnv("ALIGNMENT_RETRY_POLL_SECONDS", 15)) * time.Second,
		LockTimeout:  time.Duration(utils.IntFromEnv("ALIGNMENT_RETRY_LOCK_SECONDS", 120)) * time.Second,
	}
}

func (w *RetryWorker) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.PollInterval):
		}
	}
}

func (w *RetryWorker) runOnce(ctx context.Context) {
	now := time.Now().UTC()

	reclaimed, err := models.ReclaimStaleAlignmentRetries(ctx, w.LockTimeout, now)
	if err != nil {
		config.LogError(w.Logger, "pipeline", "RetryWorker.runOnce", "models.ReclaimStaleAlignmentRetries", nil, err)
	} else if reclaimed > 0 {
		w.Logger.WithFields(logrus.Fields{
			"module":    "pipeline",
			"worker_id": w.WorkerId,
			"reclaimed": reclaimed,
		}).Warn("reclaimed stale alignment retries")
	}

	claimed, err := models.ClaimDueAlignmentRetries(ctx, w.WorkerId, w.BatchSize, now)
	if err != nil {
		config.LogError(w.Logger, "pipeline", "RetryWorker.runOnce", "models.ClaimDueAlignmentRetries", nil, err)
		return
	}

	for i := range claimed {
		retry := claimed[i]
		if err := RunAlignment(ctx, retry.DocumentId, true); err != nil {
			config.LogError(w.Logger, "pipeline", "RetryWorker.runOnce", "RunAlignment",
				map[string]interface{}{"retry_id": retry.ID, "document_id": retry.DocumentId}, err)
			if merr := retry.MarkFailed(ctx, err.Error()); merr != nil {
				config.LogError(w.Logger, "pipeline", "RetryWorker.runOnce", "retry.MarkFailed", nil, merr)
			}
			continue
		}
		// RunAlignment handles its own failure policy; a nil return means
		// this retry row is spent either way.
		if err := retry.MarkDone(ctx); err != nil {
			config.LogError(w.Logger, "pipeline", "RetryWorker.runOnce", "retry.MarkDone", nil, err)
		}
	}
}
