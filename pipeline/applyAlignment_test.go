package pipeline

import (
	"testing"

	"github.com/contaflux/portal_backend/models"
)

// NOTE: DB-free. The attempt cap is the invariant: a document never gets a
// fourth alignment attempt, and a failure at the cap is terminal.

func TestAlignmentFailureActionPerAttempt(t *testing.T) {
	cases := []struct {
		name     string
		status   models.AlignmentStatus
		attempts int
		want     alignmentFailureAction
	}{
		{"first attempt fails", models.AlignmentStatusProcessing, 1, alignmentFailureScheduleRetry},
		{"second attempt fails", models.AlignmentStatusProcessing, 2, alignmentFailureScheduleRetry},
		{"third attempt fails at cap", models.AlignmentStatusProcessing, 3, alignmentFailureTerminal},
		{"beyond cap stays terminal", models.AlignmentStatusProcessing, 4, alignmentFailureTerminal},
		{"push failure while awaiting retry refreshes reason", models.AlignmentStatusAwaitingRetry, 1, alignmentFailureRefreshReason},
		{"push failure while awaiting retry at cap is terminal", models.AlignmentStatusAwaitingRetry, 3, alignmentFailureTerminal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := alignmentFailureActionFor(tc.status, tc.attempts)
			if got != tc.want {
				t.Errorf("status=%s attempts=%d: got action %d, want %d", tc.status, tc.attempts, got, tc.want)
			}
		})
	}
}

func TestAlignmentAttemptsNeverExceedCap(t *testing.T) {
	// Every attempt count at or past the cap must resolve terminally, so no
	// path can ever schedule a retry that would produce attempt cap+1.
	for attempts := MaxAlignmentAttempts; attempts <= MaxAlignmentAttempts+5; attempts++ {
		for _, status := range []models.AlignmentStatus{
			models.AlignmentStatusProcessing,
			models.AlignmentStatusAwaitingRetry,
		} {
			if alignmentFailureActionFor(status, attempts) != alignmentFailureTerminal {
				t.Errorf("status=%s attempts=%d must be terminal", status, attempts)
			}
		}
	}
}
