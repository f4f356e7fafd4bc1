package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/contaflux/portal_backend/config"
	"github.com/contaflux/portal_backend/models"
	"github.com/contaflux/portal_backend/utils"
)

const csvHeader = "Data,Valor,Historico,Debito,Credito"

// BuildLedgerCSV renders a period's entries byte-identically for the same
// input set. Free text is sanitized so the output never needs quoting.
func BuildLedgerCSV(entries []models.LedgerEntry) []byte {
	var b strings.Builder
	b.WriteString(csvHeader)
	b.WriteString("\n")
	for _, e := range entries {
		b.WriteString(e.EntryDate.Format(wireDateLayout))
		b.WriteString(",")
		b.WriteString(e.Amount.StringFixed(2))
		b.WriteString(",")
		b.WriteString(sanitizeCSVField(e.Description))
		b.WriteString(",")
		b.WriteString(sanitizeCSVField(e.DebitAccount))
		b.WriteString(",")
		b.WriteString(sanitizeCSVField(e.CreditAccount))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func sanitizeCSVField(s string) string {
	s = strings.ReplaceAll(s, ",", ";")
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func BuildLedgerExcel(entries []models.LedgerEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Lancamentos"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Data", "Valor", "Historico", "Debito", "Credito"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for rowIdx, e := range entries {
		values := []interface{}{
			e.EntryDate.Format(wireDateLayout),
			e.Amount.StringFixed(2),
			e.Description,
			e.DebitAccount,
			e.CreditAccount,
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvObjectKey(userId int, competencia string) string {
	return fmt.Sprintf("%d/%s/lancamentos_%s.csv", userId, competencia, competencia)
}

func excelObjectKey(userId int, competencia string) string {
	return fmt.Sprintf("%d/%s/lancamentos_%s.xlsx", userId, competencia, competencia)
}

func wantExcel(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "xlsx", "excel":
		return true
	}
	return false
}

// uploadArtifacts stores the CSV (always) and optionally the spreadsheet.
// Each upload failure is logged and leaves its key nil; a missing artifact
// never aborts the closing.
func uploadArtifacts(ctx context.Context, userId int, competencia string, entries []models.LedgerEntry, includeExcel bool) (csvKey *string, excelKey *string) {
	logger := config.GetLogger()

	csvData := BuildLedgerCSV(entries)
	key := csvObjectKey(userId, competencia)
	if err := utils.UploadBytesToGCS(ctx, key, csvData, "text/csv"); err != nil {
		config.LogError(logger, "pipeline", "uploadArtifacts", "UploadBytesToGCS csv",
			map[string]interface{}{"user_id": userId, "competencia": competencia}, err)
	} else {
		csvKey = &key
	}

	if includeExcel {
		excelData, err := BuildLedgerExcel(entries)
		if err != nil {
			config.LogError(logger, "pipeline", "uploadArtifacts", "BuildLedgerExcel",
				map[string]interface{}{"user_id": userId, "competencia": competencia}, err)
			return csvKey, nil
		}
		xKey := excelObjectKey(userId, competencia)
		if err := utils.UploadBytesToGCS(ctx, xKey, excelData, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
			config.LogError(logger, "pipeline", "uploadArtifacts", "UploadBytesToGCS xlsx",
				map[string]interface{}{"user_id": userId, "competencia": competencia}, err)
		} else {
			excelKey = &xKey
		}
	}

	return csvKey, excelKey
}

func sumAmounts(entries []models.LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
