package service

import (
	"fmt"

	"member-onboarding/internal/models"

	"github.com/xuri/excelize/v2"
)

var ledgerStatusFill = map[models.LedgerStatus]string{
	models.LedgerCompleted:  "#D4EDDA",
	models.LedgerFailed:     "#F8D7DA",
	models.LedgerProcessing: "#FFF3CD",
}

// ExportLedgers writes the import history with per-status highlighting and
// a status summary below the table.
func (s *ExcelService) ExportLedgers(ledgers []models.ImportLedger) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Imports"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}

	headers := []string{
		"Ledger ID", "Filename", "Operator", "Total Rows", "Successful", "Failed", "Skipped",
		"SMS Sent", "SMS Failed", "Email Sent", "Email Failed", "Status", "Error Message",
		"Created At", "Completed At",
	}
	writeHeader(f, sheetName, headers, "#E6F3FF")

	statusCol := getColumnName(11)
	statusStyles := map[models.LedgerStatus]int{}
	for status, color := range ledgerStatusFill {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return nil, err
		}
		statusStyles[status] = style
	}

	statusCounts := map[models.LedgerStatus]int{}
	for i, l := range ledgers {
		row := i + 2
		values := []interface{}{
			l.ID, l.Filename, l.OperatorName, l.TotalRows, l.Successful, l.Failed, l.Skipped,
			l.SMSSent, l.SMSFailed, l.EmailSent, l.EmailFailed, string(l.Status), l.ErrorMessage,
			l.CreatedAt.UTC().Format("2006-01-02 15:04:05"), formatTime(l.CompletedAt),
		}
		for j, value := range values {
			f.SetCellValue(sheetName, fmt.Sprintf("%s%d", getColumnName(j), row), value)
		}
		if style, ok := statusStyles[l.Status]; ok {
			cell := fmt.Sprintf("%s%d", statusCol, row)
			f.SetCellStyle(sheetName, cell, cell, style)
		}
		statusCounts[l.Status]++
	}

	for i := range headers {
		col := getColumnName(i)
		f.SetColWidth(sheetName, col, col, 15)
	}
	f.SetColWidth(sheetName, "A", "A", 38)
	f.SetColWidth(sheetName, "B", "B", 25)
	f.SetColWidth(sheetName, "M", "M", 30)

	if len(ledgers) > 0 {
		summaryRow := len(ledgers) + 3
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow), "Summary:")
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", summaryRow), fmt.Sprintf("Total Imports: %d", len(ledgers)))

		row := summaryRow + 1
		for _, status := range []models.LedgerStatus{models.LedgerPending, models.LedgerProcessing, models.LedgerCompleted, models.LedgerFailed} {
			if statusCounts[status] == 0 {
				continue
			}
			f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), fmt.Sprintf("%s: %d", status, statusCounts[status]))
			row++
		}
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write import export: %w", err)
	}
	return buf.Bytes(), nil
}
