package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"member-onboarding/internal/models"
)

func TestCheckHeaders(t *testing.T) {
	index, err := CheckHeaders([]string{" Member ID ", "NAME", "phone_number", "Email", ""})
	if err != nil {
		t.Fatalf("CheckHeaders: %v", err)
	}
	if index[models.ColumnMemberID] != 0 || index[models.ColumnEmail] != 3 {
		t.Errorf("unexpected index: %v", index)
	}

	_, err = CheckHeaders([]string{"member_id", "name", "nickname"})
	fe, ok := err.(*models.FileError)
	if !ok {
		t.Fatalf("expected *FileError, got %v", err)
	}
	if len(fe.Missing) != 1 || fe.Missing[0] != models.ColumnPhone {
		t.Errorf("missing = %v", fe.Missing)
	}
	if len(fe.Unknown) != 1 || fe.Unknown[0] != "nickname" {
		t.Errorf("unknown = %v", fe.Unknown)
	}

	if _, err := CheckHeaders([]string{"member_id", "name", "phone_number", "name"}); !models.IsFileError(err) {
		t.Errorf("duplicate column accepted: %v", err)
	}
}

func TestValidateRowReportsFieldAndRow(t *testing.T) {
	_, errs := ValidateRow(models.MemberRow{RowNumber: 2, MemberID: "M-2", Name: "Ben", Phone: "abc"})
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	if errs[0].Row != 2 || errs[0].Field != models.ColumnPhone || errs[0].Kind != models.KindValidation {
		t.Errorf("unexpected error: %+v", errs[0])
	}
}

func TestValidateRowNormalizes(t *testing.T) {
	row, errs := ValidateRow(models.MemberRow{
		RowNumber: 1,
		MemberID:  " M-1 ",
		Name:      "  Ana   Maria  Lopez ",
		Phone:     "+1 (555) 000-0001",
		Email:     " Ana@Example.COM ",
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if row.MemberID != "M-1" || row.Name != "Ana Maria Lopez" {
		t.Errorf("identity not trimmed: %+v", row)
	}
	if row.Phone != "+15550000001" {
		t.Errorf("phone = %q", row.Phone)
	}
	if row.Email != "ana@example.com" {
		t.Errorf("email = %q", row.Email)
	}
}

func TestValidateRowRejects(t *testing.T) {
	valid := models.MemberRow{RowNumber: 1, MemberID: "M-1", Name: "Ana", Phone: "5550000001"}
	cases := []struct {
		name  string
		edit  func(*models.MemberRow)
		field string
	}{
		{"missing member id", func(r *models.MemberRow) { r.MemberID = "" }, models.ColumnMemberID},
		{"long member id", func(r *models.MemberRow) { r.MemberID = strings.Repeat("a", 65) }, models.ColumnMemberID},
		{"member id characters", func(r *models.MemberRow) { r.MemberID = "M 1" }, models.ColumnMemberID},
		{"missing name", func(r *models.MemberRow) { r.Name = "   " }, models.ColumnName},
		{"short phone", func(r *models.MemberRow) { r.Phone = "12345" }, models.ColumnPhone},
		{"missing phone", func(r *models.MemberRow) { r.Phone = "" }, models.ColumnPhone},
		{"email without domain dot", func(r *models.MemberRow) { r.Email = "ana@localhost" }, models.ColumnEmail},
		{"email with display name", func(r *models.MemberRow) { r.Email = "Ana <ana@example.com>" }, models.ColumnEmail},
		{"long email", func(r *models.MemberRow) { r.Email = strings.Repeat("a", 250) + "@example.com" }, models.ColumnEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := valid
			tc.edit(&row)
			_, errs := ValidateRow(row)
			if len(errs) != 1 || errs[0].Field != tc.field {
				t.Fatalf("expected one %s error, got %v", tc.field, errs)
			}
		})
	}
}

func TestExtractRowsCapsCells(t *testing.T) {
	table := models.RawTable{
		Headers: []string{"member_id", "name", "phone_number"},
		Rows:    []models.RawRow{{Number: 1, Cells: []string{strings.Repeat("é", 3000), "Ana", "+15550000001"}}},
	}
	rows, err := ExtractRows(table)
	if err != nil {
		t.Fatal(err)
	}
	if n := utf8.RuneCountInString(rows[0].MemberID); n != models.MaxCellLength {
		t.Fatalf("member_id kept %d runes", n)
	}
	if _, errs := ValidateRow(rows[0]); len(errs) != 1 || errs[0].Field != models.ColumnMemberID {
		t.Errorf("capped cell should still fail: %v", errs)
	}
}

func TestValidateRowsKeepsOtherRows(t *testing.T) {
	table := models.RawTable{
		Headers: []string{"member_id", "name", "phone_number"},
		Rows: []models.RawRow{
			{Number: 1, Cells: []string{"M-1", "Ana", "+15550000001"}},
			{Number: 2, Cells: []string{"M-2", "Ben", "abc"}},
			{Number: 3, Cells: []string{"M-3", "Cy"}},
		},
	}
	valid, errs, err := ValidateRows(table)
	if err != nil {
		t.Fatalf("ValidateRows: %v", err)
	}
	if len(valid) != 1 || valid[0].MemberID != "M-1" {
		t.Errorf("valid rows = %+v", valid)
	}
	if len(errs) != 2 || errs[0].Row != 2 || errs[1].Row != 3 {
		t.Errorf("errors = %+v", errs)
	}
}
