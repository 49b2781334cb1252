package service

import (
	"fmt"
	"os"
	"time"

	"member-onboarding/internal/models"

	"github.com/xuri/excelize/v2"
)

type ExcelService struct{}

func NewExcelService() *ExcelService {
	return &ExcelService{}
}

var templateHeaders = []string{
	models.ColumnMemberID, models.ColumnName, models.ColumnPhone, models.ColumnEmail,
}

// MemberTemplate builds the upload template workbook: sample rows on the
// first sheet, instructions on the second.
func (s *ExcelService) MemberTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Members"
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	writeHeader(f, sheetName, templateHeaders, "#E0E0E0")

	sampleData := [][]interface{}{
		{"MBR-0001", "Ana Lopez", "+15550100001", "ana.lopez@example.com"},
		{"MBR-0002", "Ben Okafor", "+15550100002", ""},
		{"MBR-0003", "Chen Wei", "+15550100003", "chen.wei@example.com"},
	}
	for rowIdx, rowData := range sampleData {
		for colIdx, value := range rowData {
			f.SetCellValue(sheetName, fmt.Sprintf("%s%d", getColumnName(colIdx), rowIdx+2), value)
		}
	}

	f.SetColWidth(sheetName, "A", "A", 18)
	f.SetColWidth(sheetName, "B", "B", 30)
	f.SetColWidth(sheetName, "C", "C", 20)
	f.SetColWidth(sheetName, "D", "D", 32)

	// Phone numbers must stay text so leading zeros and + survive.
	textStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 49})
	f.SetColStyle(sheetName, "C", textStyle)

	// Only the first sheet is imported, so instructions live on their own sheet.
	instructionsSheet := "Instructions"
	if _, err := f.NewSheet(instructionsSheet); err != nil {
		return nil, err
	}
	instructions := []string{
		"Instructions:",
		"1. member_id: required, unique, letters, digits, '-', '_' or '/' (max 64)",
		"2. name: required, full name of the member",
		"3. phone_number: required, unique, 7 to 15 digits with optional leading +",
		"4. email: optional, unique when present; enables the email channel",
		"",
		"Note: Do not modify the header row. Replace the sample rows with your members.",
	}
	for i, instruction := range instructions {
		f.SetCellValue(instructionsSheet, fmt.Sprintf("A%d", i+1), instruction)
	}
	instructionStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 10},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F0F8FF"}, Pattern: 1},
	})
	f.SetCellStyle(instructionsSheet, "A1", "A1", instructionStyle)
	f.SetColWidth(instructionsSheet, "A", "A", 80)

	f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex(sheetName); err == nil {
		f.SetActiveSheet(index)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write template: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveMemberTemplate writes the upload template to outputPath.
func (s *ExcelService) SaveMemberTemplate(outputPath string) error {
	content, err := s.MemberTemplate()
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, content, 0o644)
}

// ErrorReport lists a ledger's row errors followed by its summary.
func (s *ExcelService) ErrorReport(ledger *models.ImportLedger, errs []models.LedgerError) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Import Errors"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}

	headers := []string{"Row Number", "Member ID", "Field", "Kind", "Error Message"}
	writeHeader(f, sheetName, headers, "#FFE6E6")

	errorStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFFFCC"}, Pattern: 1},
	})
	for rowIdx, e := range errs {
		row := rowIdx + 2
		values := []interface{}{e.RowNumber, e.Identity, e.Field, e.Kind, e.Message}
		for colIdx, value := range values {
			f.SetCellValue(sheetName, fmt.Sprintf("%s%d", getColumnName(colIdx), row), value)
		}
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", getColumnName(len(headers)-1), row), errorStyle)
	}

	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "B", 20)
	f.SetColWidth(sheetName, "C", "C", 15)
	f.SetColWidth(sheetName, "D", "D", 14)
	f.SetColWidth(sheetName, "E", "E", 60)

	summaryStartRow := len(errs) + 4
	summary := [][]interface{}{
		{"Import Summary", ledger.Filename},
		{"Status:", string(ledger.Status)},
		{"Total Rows:", ledger.TotalRows},
		{"Successful:", ledger.Successful},
		{"Failed:", ledger.Failed},
		{"Skipped:", ledger.Skipped},
		{"SMS Sent / Failed:", fmt.Sprintf("%d / %d", ledger.SMSSent, ledger.SMSFailed)},
		{"Email Sent / Failed:", fmt.Sprintf("%d / %d", ledger.EmailSent, ledger.EmailFailed)},
	}
	if ledger.TotalRows > 0 {
		rate := float64(ledger.Successful) / float64(ledger.TotalRows) * 100
		summary = append(summary, []interface{}{"Success Rate:", fmt.Sprintf("%.1f%%", rate)})
	}
	for i, line := range summary {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryStartRow+i), line[0])
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", summaryStartRow+i), line[1])
	}
	summaryStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellStyle(sheetName, fmt.Sprintf("A%d", summaryStartRow), fmt.Sprintf("A%d", summaryStartRow), summaryStyle)

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write error report: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportMembers writes the masked member list.
func (s *ExcelService) ExportMembers(items []models.MemberListItem) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Members"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}

	headers := []string{"Member ID", "Name", "Phone Number", "Email", "Activation Status", "SMS Sent At", "Email Sent At", "Created At"}
	writeHeader(f, sheetName, headers, "#E0E0E0")

	for rowIdx, m := range items {
		values := []interface{}{
			m.MemberID, m.Name, m.Phone, m.Email, string(m.ActivationStatus),
			formatTime(m.SMSSentAt), formatTime(m.EmailSentAt), m.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		for colIdx, value := range values {
			f.SetCellValue(sheetName, fmt.Sprintf("%s%d", getColumnName(colIdx), rowIdx+2), value)
		}
	}
	for i := range headers {
		col := getColumnName(i)
		f.SetColWidth(sheetName, col, col, 20)
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write member export: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheetName string, headers []string, color string) {
	for i, header := range headers {
		f.SetCellValue(sheetName, fmt.Sprintf("%s1", getColumnName(i)), header)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
	f.SetCellStyle(sheetName, "A1", fmt.Sprintf("%s1", getColumnName(len(headers)-1)), headerStyle)
}

func getColumnName(index int) string {
	result := ""
	for index >= 0 {
		result = string(rune('A'+(index%26))) + result
		index = index/26 - 1
	}
	return result
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
