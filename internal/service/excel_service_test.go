package service

import (
	"bytes"
	"testing"

	"member-onboarding/internal/models"

	"github.com/xuri/excelize/v2"
)

func TestMemberTemplateIsAValidUpload(t *testing.T) {
	content, err := NewExcelService().MemberTemplate()
	if err != nil {
		t.Fatal(err)
	}
	table, err := ParseUpload("template.xlsx", content)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	valid, errs, err := ValidateRows(table)
	if err != nil || len(errs) != 0 {
		t.Fatalf("template rows invalid: %v %v", errs, err)
	}
	if len(valid) != 3 || valid[1].Email != "" {
		t.Errorf("rows = %+v", valid)
	}
}

func TestErrorReportListsErrorsAndSummary(t *testing.T) {
	ledger := &models.ImportLedger{Filename: "members.csv", TotalRows: 3, Successful: 1, Failed: 1, Skipped: 1, Status: models.LedgerCompleted}
	errs := []models.LedgerError{
		{RowNumber: 2, Identity: "M-2", Field: "phone_number", Kind: models.KindValidation, Message: "phone_number must be 7 to 15 digits"},
		{RowNumber: 3, Identity: "M-3", Field: "member_id", Kind: models.KindDuplicate, Message: "member_id already belongs to an existing member"},
	}

	content, err := NewExcelService().ErrorReport(ledger, errs)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows("Import Errors")
	if err != nil {
		t.Fatal(err)
	}
	if rows[0][0] != "Row Number" || rows[1][1] != "M-2" || rows[2][3] != models.KindDuplicate {
		t.Fatalf("rows = %v", rows)
	}
	if rows[5][0] != "Import Summary" || rows[5][1] != "members.csv" {
		t.Errorf("summary = %v", rows[5])
	}
}

func TestExportLedgersWritesOneRowPerLedger(t *testing.T) {
	ledgers := []models.ImportLedger{
		{ID: "a", Filename: "one.csv", TotalRows: 2, Successful: 2, Status: models.LedgerCompleted},
		{ID: "b", Filename: "two.xlsx", TotalRows: 5, Status: models.LedgerProcessing},
	}
	content, err := NewExcelService().ExportLedgers(ledgers)
	if err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if v, _ := f.GetCellValue("Imports", "B3"); v != "two.xlsx" {
		t.Errorf("B3 = %q", v)
	}
	if v, _ := f.GetCellValue("Imports", "L2"); v != "completed" {
		t.Errorf("L2 = %q", v)
	}
	if v, _ := f.GetCellValue("Imports", "B5"); v != "Total Imports: 2" {
		t.Errorf("B5 = %q", v)
	}
}
