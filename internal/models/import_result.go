package models

import "time"

// Input file columns.
const (
	ColumnMemberID = "member_id"
	ColumnName     = "name"
	ColumnPhone    = "phone_number"
	ColumnEmail    = "email"
)

var (
	RequiredColumns = []string{ColumnMemberID, ColumnName, ColumnPhone}
	OptionalColumns = []string{ColumnEmail}
)

// RawTable is an uploaded file after decoding, before validation.
type RawTable struct {
	Headers []string
	Rows    []RawRow
}

// RawRow keeps the 1-based data row number (header excluded).
type RawRow struct {
	Number int
	Cells  []string
}

// MemberRow is a single member record taken from an upload.
type MemberRow struct {
	RowNumber int    `json:"row"`
	MemberID  string `json:"member_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone_number"`
	Email     string `json:"email,omitempty"`
}

func (r MemberRow) LedgerRow(ledgerID string) LedgerRow {
	return LedgerRow{
		LedgerID:  ledgerID,
		RowNumber: r.RowNumber,
		MemberID:  r.MemberID,
		Name:      r.Name,
		Phone:     r.Phone,
		Email:     r.Email,
	}
}

// PreviewResult is returned by a dry run; nothing is written.
type PreviewResult struct {
	RowCount   int        `json:"row_count"`
	ValidCount int        `json:"valid_count"`
	Headers    []string   `json:"headers"`
	Errors     []RowError `json:"errors"`
	PreviewAt  time.Time  `json:"preview_at"`
}

// ConfirmResult is returned once a batch has been processed (or queued).
type ConfirmResult struct {
	LedgerID   string        `json:"ledger_id"`
	Status     LedgerStatus  `json:"status"`
	Statistics Statistics    `json:"statistics"`
	Errors     []LedgerError `json:"errors"`
}

type ConfirmRequest struct {
	OperatorID   int
	OperatorName string
	Filename     string
	Content      []byte
}
