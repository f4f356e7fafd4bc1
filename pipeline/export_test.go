package pipeline

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contaflux/portal_backend/models"
)

// NOTE: DB-free. CSV generation must be byte-identical for identical entry
// sets; a replayed verification callback regenerates artifacts and the
// result has to match what the first delivery produced.

func testEntry(day int, amount string, historico, debito, credito string) models.LedgerEntry {
	return models.LedgerEntry{
		EntryDate:     time.Date(2024, 7, day, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString(amount),
		Description:   historico,
		DebitAccount:  debito,
		CreditAccount: credito,
	}
}

func TestBuildLedgerCSVDeterministic(t *testing.T) {
	entries := []models.LedgerEntry{
		testEntry(1, "10.5", "Compra material", "1.1.01", "2.1.01"),
		testEntry(2, "250", "Honorarios", "3.1.01", "1.1.01"),
	}

	first := BuildLedgerCSV(entries)
	for i := 0; i < 5; i++ {
		if !bytes.Equal(first, BuildLedgerCSV(entries)) {
			t.Fatal("CSV output changed between identical calls")
		}
	}
}

func TestBuildLedgerCSVFormat(t *testing.T) {
	entries := []models.LedgerEntry{
		testEntry(15, "10.5", "Compra, com virgula\ne quebra", "1.1.01", "2.1.01"),
	}

	got := string(BuildLedgerCSV(entries))
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines: %q", len(lines), got)
	}
	if lines[0] != "Data,Valor,Historico,Debito,Credito" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	want := "2024-07-15,10.50,Compra; com virgula e quebra,1.1.01,2.1.01"
	if lines[1] != want {
		t.Errorf("row mismatch:\n got %q\nwant %q", lines[1], want)
	}
}

func TestBuildLedgerCSVRowCount(t *testing.T) {
	var entries []models.LedgerEntry
	for i := 1; i <= 7; i++ {
		entries = append(entries, testEntry(i, "100", "Lancamento", "1.1.01", "2.1.01"))
	}

	got := string(BuildLedgerCSV(entries))
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected header + 7 data rows, got %d lines", len(lines))
	}
}

func TestBuildLedgerExcel(t *testing.T) {
	entries := []models.LedgerEntry{
		testEntry(1, "10.5", "Compra", "1.1.01", "2.1.01"),
	}
	data, err := BuildLedgerExcel(entries)
	if err != nil {
		t.Fatalf("BuildLedgerExcel: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty xlsx output")
	}
	// xlsx files are zip archives.
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("output does not look like an xlsx archive")
	}
}

func TestObjectKeys(t *testing.T) {
	if got := csvObjectKey(42, "2024-07"); got != "42/2024-07/lancamentos_2024-07.csv" {
		t.Errorf("csv key mismatch: %q", got)
	}
	if got := excelObjectKey(42, "2024-07"); got != "42/2024-07/lancamentos_2024-07.xlsx" {
		t.Errorf("xlsx key mismatch: %q", got)
	}
}
