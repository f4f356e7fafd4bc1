package models

import "testing"

// NOTE: DB-free. These validate the status state machines both handlers and
// the retry worker rely on: a document ends in exactly one terminal state
// and no handler can move it out again.

func TestAlignmentTransitions(t *testing.T) {
	allowed := []struct {
		from, to AlignmentStatus
	}{
		{AlignmentStatusNone, AlignmentStatusProcessing},
		{AlignmentStatusProcessing, AlignmentStatusAligned},
		{AlignmentStatusProcessing, AlignmentStatusAwaitingRetry},
		{AlignmentStatusProcessing, AlignmentStatusError},
		{AlignmentStatusAwaitingRetry, AlignmentStatusProcessing},
		{AlignmentStatusAwaitingRetry, AlignmentStatusAligned},
		{AlignmentStatusAwaitingRetry, AlignmentStatusError},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to AlignmentStatus
	}{
		{AlignmentStatusNone, AlignmentStatusAligned},
		{AlignmentStatusNone, AlignmentStatusAwaitingRetry},
		{AlignmentStatusAligned, AlignmentStatusProcessing},
		{AlignmentStatusAligned, AlignmentStatusError},
		{AlignmentStatusError, AlignmentStatusProcessing},
		{AlignmentStatusError, AlignmentStatusAligned},
	}
	for _, tc := range denied {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestAlignmentTerminalStatesHaveNoExits(t *testing.T) {
	all := []AlignmentStatus{
		AlignmentStatusNone,
		AlignmentStatusProcessing,
		AlignmentStatusAwaitingRetry,
		AlignmentStatusAligned,
		AlignmentStatusError,
	}
	for _, terminal := range []AlignmentStatus{AlignmentStatusAligned, AlignmentStatusError} {
		if !terminal.Terminal() {
			t.Fatalf("%s should be terminal", terminal)
		}
		for _, to := range all {
			if terminal.CanTransition(to) {
				t.Errorf("terminal state %s must not transition to %s", terminal, to)
			}
		}
	}
}

func TestProcessingTransitions(t *testing.T) {
	// Out-of-order at-least-once delivery: success may land while the row
	// still says not_processed.
	if !ProcessingStatusNotProcessed.CanTransition(ProcessingStatusDone) {
		t.Error("not_processed -> done must be allowed for out-of-order callbacks")
	}
	// Ingestion failure below the cap loops the document back for the poller.
	if !ProcessingStatusProcessing.CanTransition(ProcessingStatusNotProcessed) {
		t.Error("processing -> not_processed must be allowed for requeue")
	}
	if ProcessingStatusDone.CanTransition(ProcessingStatusProcessing) {
		t.Error("done is terminal")
	}
	if ProcessingStatusError.CanTransition(ProcessingStatusNotProcessed) {
		t.Error("error is terminal")
	}
}
