package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/contaflux/portal_backend/models"
)

// NOTE: DB-free. Deduplication is the pure core of month closing: first
// occurrence of each (date, amount, description, debit, credit) key survives,
// later duplicates are reported for deletion.

func TestDedupeEntriesRemovesExactDuplicates(t *testing.T) {
	var entries []models.LedgerEntry
	id := 0
	add := func(e models.LedgerEntry) {
		id++
		e.ID = id
		entries = append(entries, e)
	}

	add(testEntry(1, "100", "Aluguel", "1.1.01", "2.1.01"))
	add(testEntry(2, "50", "Material", "1.1.02", "2.1.01"))
	add(testEntry(1, "100", "Aluguel", "1.1.01", "2.1.01")) // dup of #1
	add(testEntry(3, "75", "Servicos", "1.1.03", "2.1.01"))
	add(testEntry(2, "50", "Material", "1.1.02", "2.1.01")) // dup of #2
	add(testEntry(4, "20", "Taxas", "1.1.04", "2.1.01"))
	add(testEntry(1, "100", "Aluguel", "1.1.01", "2.1.01")) // dup of #1
	add(testEntry(5, "30", "Frete", "1.1.05", "2.1.01"))
	add(testEntry(6, "12.5", "Correio", "1.1.06", "2.1.01"))
	add(testEntry(7, "99", "Outros", "1.1.07", "2.1.01"))

	kept, duplicateIds := DedupeEntries(entries)

	if len(kept) != 7 {
		t.Fatalf("expected 7 kept entries, got %d", len(kept))
	}
	if len(duplicateIds) != 3 {
		t.Fatalf("expected 3 duplicates, got %d", len(duplicateIds))
	}
	wantDups := map[int]bool{3: true, 5: true, 7: true}
	for _, dupId := range duplicateIds {
		if !wantDups[dupId] {
			t.Errorf("unexpected duplicate id %d", dupId)
		}
	}
	// First occurrences stay, in creation order.
	if kept[0].ID != 1 || kept[1].ID != 2 || kept[2].ID != 4 {
		t.Errorf("kept order wrong: %d, %d, %d", kept[0].ID, kept[1].ID, kept[2].ID)
	}
}

func TestDedupeEntriesDistinguishesFields(t *testing.T) {
	a := testEntry(1, "100", "Aluguel", "1.1.01", "2.1.01")
	a.ID = 1
	b := a // same key except amount
	b.ID = 2
	b.Amount = b.Amount.Add(b.Amount)
	c := a // same key except credit account
	c.ID = 3
	c.CreditAccount = "2.1.99"

	kept, duplicateIds := DedupeEntries([]models.LedgerEntry{a, b, c})
	if len(kept) != 3 || len(duplicateIds) != 0 {
		t.Fatalf("entries differing in any key field must all be kept, got %d kept %d dups", len(kept), len(duplicateIds))
	}
}

func TestDedupeEntriesEmpty(t *testing.T) {
	kept, duplicateIds := DedupeEntries(nil)
	if len(kept) != 0 || len(duplicateIds) != 0 {
		t.Fatal("empty input must produce empty output")
	}
}

func TestPendingDocumentsErrorCarriesBlockingDocuments(t *testing.T) {
	err := &PendingDocumentsError{
		Competencia: "2024-07",
		Documents: []PendingDocument{
			{DocumentId: 11, FileName: "nf-11.pdf"},
			{DocumentId: 12, FileName: "extrato-12.pdf"},
		},
	}
	if len(err.Documents) != 2 {
		t.Fatalf("expected 2 blocking documents, got %d", len(err.Documents))
	}
	if !strings.Contains(err.Error(), "2 document(s)") || !strings.Contains(err.Error(), "2024-07") {
		t.Errorf("message should carry count and competencia: %q", err.Error())
	}

	var target *PendingDocumentsError
	if !errors.As(error(err), &target) {
		t.Fatal("errors.As must match PendingDocumentsError")
	}
	if target.Documents[0].DocumentId != 11 || target.Documents[0].FileName != "nf-11.pdf" {
		t.Error("blocking document details lost through errors.As")
	}
}

func TestAlreadyClosedErrorIdentifiesPeriod(t *testing.T) {
	err := &AlreadyClosedError{UserId: 7, Competencia: "2024-07"}
	if !strings.Contains(err.Error(), "2024-07") || !strings.Contains(err.Error(), "7") {
		t.Errorf("message should carry user and competencia: %q", err.Error())
	}
	var target *AlreadyClosedError
	if !errors.As(error(err), &target) {
		t.Fatal("errors.As must match AlreadyClosedError")
	}
}

func TestVerificationResponseShapeDecidesCompletion(t *testing.T) {
	inline := &VerificationResponse{CorrectedLancamentos: &[]WireEntry{}}
	if !inline.CompletedInline() {
		t.Error("corrected_lancamentos present (even empty) means inline completion")
	}
	ack := &VerificationResponse{}
	if ack.CompletedInline() {
		t.Error("missing corrected_lancamentos means async callback")
	}
}
