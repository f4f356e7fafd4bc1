package pipeline

import "fmt"

// InvalidStateError means the document was not in a state the requested
// operation accepts; nothing was changed.
type InvalidStateError struct {
	DocumentId int
	Status     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("document %d is in state %q, operation not allowed", e.DocumentId, e.Status)
}

type PermissionError struct {
	UserId int
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %d is not allowed to close months", e.UserId)
}

type AlreadyClosedError struct {
	UserId      int
	Competencia string
}

func (e *AlreadyClosedError) Error() string {
	return fmt.Sprintf("competencia %s is already closed for user %d", e.Competencia, e.UserId)
}

type PendingDocument struct {
	DocumentId int    `json:"document_id"`
	FileName   string `json:"file_name"`
}

// PendingDocumentsError carries the blocking documents so the caller can
// self-correct.
type PendingDocumentsError struct {
	Competencia string
	Documents   []PendingDocument
}

func (e *PendingDocumentsError) Error() string {
	return fmt.Sprintf("%d document(s) still processing for competencia %s", len(e.Documents), e.Competencia)
}

type EmptyLedgerError struct {
	UserId      int
	Competencia string
}

func (e *EmptyLedgerError) Error() string {
	return fmt.Sprintf("no ledger entries for user %d competencia %s", e.UserId, e.Competencia)
}
