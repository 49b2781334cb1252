package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateIdentity  = errors.New("identity already exists")
	ErrMemberNotFound     = errors.New("member not found")
	ErrLedgerNotFound     = errors.New("import ledger not found")
	ErrInvalidTransition  = errors.New("invalid activation status transition")
	ErrTokenExpired       = errors.New("temporary secret expired")
	ErrTokenConsumed      = errors.New("temporary secret already used")
	ErrInvalidCredential  = errors.New("invalid credentials")
	ErrChannelUnavailable = errors.New("notification channel not configured")
	ErrRetryExhausted     = errors.New("retry attempts exhausted")
	ErrIneligible         = errors.New("member not eligible")
	ErrLocked             = errors.New("operation already in progress")
	ErrLedgerClosed       = errors.New("import ledger already completed")
)

// Row error kinds, in the order a row passes through the pipeline.
const (
	KindValidation   = "validation"
	KindDuplicate    = "duplicate"
	KindProvisioning = "provisioning"
	KindDelivery     = "delivery"
)

// FileError rejects a whole upload before any row is looked at.
type FileError struct {
	Missing []string `json:"missing_columns,omitempty"`
	Unknown []string `json:"unknown_columns,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func (e *FileError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown columns: "+strings.Join(e.Unknown, ", "))
	}
	return "invalid file: " + strings.Join(parts, "; ")
}

// IsFileError reports whether err aborts the upload at file level.
func IsFileError(err error) bool {
	var fe *FileError
	return errors.As(err, &fe)
}

// RowError describes why a single row was not provisioned cleanly.
type RowError struct {
	Row      int    `json:"row"`
	MemberID string `json:"member_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Value    string `json:"value,omitempty"`
	Reason   string `json:"reason"`
	Kind     string `json:"kind"`
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

func (e RowError) LedgerError() LedgerError {
	return LedgerError{
		RowNumber: e.Row,
		Identity:  e.MemberID,
		Field:     e.Field,
		Kind:      e.Kind,
		Message:   e.Reason,
	}
}
