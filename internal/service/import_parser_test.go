package service

import (
	"testing"

	"member-onboarding/internal/models"

	"github.com/xuri/excelize/v2"
)

func TestParseUploadCSVNumbersRowsBelowHeader(t *testing.T) {
	content := append([]byte("\xef\xbb\xbf"), csvFile(
		"member_id,name,phone_number,email",
		"M-001,Ana Lopez,+15550000001,ana@example.com",
		"",
		"M-002,Ben Ng,+15550000002,",
		",,,",
	)...)

	table, err := ParseUpload("members.csv", content)
	if err != nil {
		t.Fatalf("ParseUpload: %v", err)
	}
	if got := table.Headers[0]; got != "member_id" {
		t.Fatalf("BOM not stripped from header: %q", got)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(table.Rows))
	}
	if table.Rows[0].Number != 1 || table.Rows[1].Number != 3 {
		t.Errorf("row numbers = %d, %d; want 1, 3", table.Rows[0].Number, table.Rows[1].Number)
	}
}

func TestParseUploadWorkbookReadsFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]interface{}{"Member ID", "Name", "Phone Number"})
	_ = f.SetSheetRow(sheet, "A2", &[]interface{}{"M-001", "Ana", "+15550000001"})
	_ = f.SetSheetRow(sheet, "A4", &[]interface{}{"M-002", "Ben", "+15550000002"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	table, err := ParseUpload("members.XLSX", buf.Bytes())
	if err != nil {
		t.Fatalf("ParseUpload: %v", err)
	}
	if len(table.Rows) != 2 || table.Rows[1].Number != 3 {
		t.Fatalf("unexpected rows: %+v", table.Rows)
	}

	rows, err := ExtractRows(table)
	if err != nil {
		t.Fatalf("ExtractRows: %v", err)
	}
	if rows[0].MemberID != "M-001" || rows[0].Email != "" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
}

func TestParseUploadRejectsBadFiles(t *testing.T) {
	cases := map[string]struct {
		filename string
		content  []byte
	}{
		"empty":       {"members.csv", nil},
		"unsupported": {"members.pdf", []byte("%PDF")},
		"no header":   {"members.csv", csvFile("", "")},
		"bad xlsx":    {"members.xlsx", []byte("not a zip")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseUpload(tc.filename, tc.content)
			if !models.IsFileError(err) {
				t.Fatalf("expected file error, got %v", err)
			}
		})
	}
}
