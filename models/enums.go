package models

// ProcessingStatus tracks transcription of a raw client document by the
// external ingestion service.
type ProcessingStatus string

const (
	ProcessingStatusNotProcessed ProcessingStatus = "not_processed"
	ProcessingStatusProcessing   ProcessingStatus = "processing"
	ProcessingStatusDone         ProcessingStatus = "done"
	ProcessingStatusError        ProcessingStatus = "error"
)

// Callbacks are at-least-once and possibly out of order, so a success may
// arrive while the row still says not_processed.
var processingTransitions = map[ProcessingStatus][]ProcessingStatus{
	ProcessingStatusNotProcessed: {ProcessingStatusProcessing, ProcessingStatusDone, ProcessingStatusError},
	ProcessingStatusProcessing:   {ProcessingStatusDone, ProcessingStatusNotProcessed, ProcessingStatusError},
	ProcessingStatusDone:         {},
	ProcessingStatusError:        {},
}

func (s ProcessingStatus) CanTransition(to ProcessingStatus) bool {
	for _, allowed := range processingTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingStatusDone || s == ProcessingStatusError
}

// AlignmentStatus tracks conversion of transcribed data into ledger entries.
type AlignmentStatus string

const (
	AlignmentStatusNone          AlignmentStatus = "none"
	AlignmentStatusProcessing    AlignmentStatus = "processing"
	AlignmentStatusAwaitingRetry AlignmentStatus = "awaiting_retry"
	AlignmentStatusAligned       AlignmentStatus = "aligned"
	AlignmentStatusError         AlignmentStatus = "error"
)

// awaiting_retry -> aligned covers the push path completing while a retry
// timer is still pending.
var alignmentTransitions = map[AlignmentStatus][]AlignmentStatus{
	AlignmentStatusNone:          {AlignmentStatusProcessing},
	AlignmentStatusProcessing:    {AlignmentStatusAligned, AlignmentStatusAwaitingRetry, AlignmentStatusError},
	AlignmentStatusAwaitingRetry: {AlignmentStatusProcessing, AlignmentStatusAligned, AlignmentStatusError},
	AlignmentStatusAligned:       {},
	AlignmentStatusError:         {},
}

func (s AlignmentStatus) CanTransition(to AlignmentStatus) bool {
	for _, allowed := range alignmentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s AlignmentStatus) Terminal() bool {
	return s == AlignmentStatusAligned || s == AlignmentStatusError
}

// VerificationStatus tracks the optional external round-trip of a month closure.
type VerificationStatus string

const (
	VerificationStatusSkipped  VerificationStatus = "skipped"
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusVerified VerificationStatus = "verified"
	VerificationStatusError    VerificationStatus = "error"
)

type AlignmentRetryStatus string

const (
	AlignmentRetryStatusPending    AlignmentRetryStatus = "PENDING"
	AlignmentRetryStatusProcessing AlignmentRetryStatus = "PROCESSING"
	AlignmentRetryStatusDone       AlignmentRetryStatus = "DONE"
	AlignmentRetryStatusFailed     AlignmentRetryStatus = "FAILED"
)

type UserRole string

const (
	UserRoleAdmin    UserRole = "A"
	UserRoleOperator UserRole = "O"
	UserRoleClient   UserRole = "C"
)

type NotificationType string

const (
	NotificationTypeAlignment NotificationType = "alignment"
	NotificationTypeIngestion NotificationType = "ingestion"
	NotificationTypeClosing   NotificationType = "closing"
)
