package pipeline

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contaflux/portal_backend/models"
)

// WireEntry is one ledger line as exchanged with the external aligner and
// verifier. Field names follow their Portuguese wire contract.
type WireEntry struct {
	Data      string          `json:"data"`
	Valor     decimal.Decimal `json:"valor"`
	Historico string          `json:"historico"`
	Debito    string          `json:"debito"`
	Credito   string          `json:"credito"`
}

type AlignmentRequest struct {
	Event          string          `json:"event"`
	DocumentId     int             `json:"document_id"`
	UserId         int             `json:"user_id"`
	Competencia    string          `json:"competencia"`
	TipoDocumento  string          `json:"tipo_documento"`
	DadosExtraidos json.RawMessage `json:"dados_extraidos"`
	PlanoContas    json.RawMessage `json:"plano_contas"`
	Timestamp      string          `json:"timestamp"`
}

type AlignmentResponse struct {
	Lancamentos []WireEntry `json:"lancamentos"`
}

type VerificationRequest struct {
	Event       string      `json:"event"`
	UserId      int         `json:"user_id"`
	Competencia string      `json:"competencia"`
	Lancamentos []WireEntry `json:"lancamentos"`
	CallbackURL string      `json:"callback_url"`
}

// VerificationResponse distinguishes the two verifier completion modes by
// shape: corrected_lancamentos present means the verifier finished inline,
// absent means it acknowledged and will call back.
type VerificationResponse struct {
	CorrectedLancamentos *[]WireEntry `json:"corrected_lancamentos,omitempty"`
}

func (r *VerificationResponse) CompletedInline() bool {
	return r != nil && r.CorrectedLancamentos != nil
}

// WebhookEnvelope is the receiver's ingress payload, discriminated by Event.
// CorrectedLancamentos is a pointer for the same reason as the verifier's
// inline response: an absent field means "no corrections", an empty array
// means "the corrected set is empty". Conflating the two would let a sender
// that omits the optional field wipe a period's ledger.
type WebhookEnvelope struct {
	Event                string          `json:"event"`
	DocumentId           int             `json:"document_id,omitempty"`
	Success              bool            `json:"success"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	ExtractedData        json.RawMessage `json:"extracted_data,omitempty"`
	Lancamentos          []WireEntry     `json:"lancamentos,omitempty"`
	UserId               int             `json:"user_id,omitempty"`
	Competencia          string          `json:"competencia,omitempty"`
	VerificationId       string          `json:"verification_id,omitempty"`
	CorrectedLancamentos *[]WireEntry    `json:"corrected_lancamentos,omitempty"`
	DuplicatesRemoved    int             `json:"duplicates_removed,omitempty"`
	Format               string          `json:"format,omitempty"`
}

// correctedSet reports whether the envelope carries a corrected entry set to
// apply via replace-all. Absent means the existing entries stand.
func (env WebhookEnvelope) correctedSet() ([]WireEntry, bool) {
	if env.CorrectedLancamentos == nil {
		return nil, false
	}
	return *env.CorrectedLancamentos, true
}

const wireDateLayout = "2006-01-02"

// toLedgerEntries converts wire lines into rows for a document's owner and
// period. Unparseable dates fall back to the zero date rather than dropping
// the line; the amount and accounts are what reconciliation cares about.
func toLedgerEntries(entries []WireEntry, userId int, competencia string, documentId int) []*models.LedgerEntry {
	rows := make([]*models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		entryDate, err := time.Parse(wireDateLayout, e.Data)
		if err != nil {
			entryDate = time.Time{}
		}
		rows = append(rows, &models.LedgerEntry{
			UserId:        userId,
			Competencia:   competencia,
			EntryDate:     entryDate,
			Amount:        e.Valor,
			Description:   e.Historico,
			DebitAccount:  e.Debito,
			CreditAccount: e.Credito,
			DocumentId:    documentId,
		})
	}
	return rows
}

func toWireEntries(entries []models.LedgerEntry) []WireEntry {
	wire := make([]WireEntry, 0, len(entries))
	for _, e := range entries {
		wire = append(wire, WireEntry{
			Data:      e.EntryDate.Format(wireDateLayout),
			Valor:     e.Amount,
			Historico: e.Description,
			Debito:    e.DebitAccount,
			Credito:   e.CreditAccount,
		})
	}
	return wire
}
