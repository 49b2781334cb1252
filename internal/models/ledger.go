package models

import "time"

type LedgerStatus string

const (
	LedgerPending    LedgerStatus = "pending"
	LedgerProcessing LedgerStatus = "processing"
	LedgerCompleted  LedgerStatus = "completed"
	LedgerFailed     LedgerStatus = "failed"
)

// ImportLedger is the durable record of one upload.
type ImportLedger struct {
	ID           string       `db:"id" json:"id"`
	OperatorID   int          `db:"operator_id" json:"operator_id"`
	OperatorName string       `db:"operator_name" json:"operator_name"`
	Filename     string       `db:"filename" json:"filename"`
	TotalRows    int          `db:"total_rows" json:"total_rows"`
	Successful   int          `db:"successful_rows" json:"successful_rows"`
	Failed       int          `db:"failed_rows" json:"failed_rows"`
	Skipped      int          `db:"skipped_rows" json:"skipped_rows"`
	SMSSent      int          `db:"sms_sent" json:"sms_sent"`
	SMSFailed    int          `db:"sms_failed" json:"sms_failed"`
	EmailSent    int          `db:"email_sent" json:"email_sent"`
	EmailFailed  int          `db:"email_failed" json:"email_failed"`
	Status       LedgerStatus `db:"status" json:"status"`
	ErrorMessage string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}

// Resolved is the number of rows that have contributed to a row counter.
func (l *ImportLedger) Resolved() int {
	return l.Successful + l.Failed + l.Skipped
}

// Balanced reports the completed-ledger invariant.
func (l *ImportLedger) Balanced() bool {
	return l.Resolved() == l.TotalRows
}

func (l *ImportLedger) Statistics() Statistics {
	return Statistics{
		Total:       l.TotalRows,
		Successful:  l.Successful,
		Failed:      l.Failed,
		Skipped:     l.Skipped,
		SMSSent:     l.SMSSent,
		SMSFailed:   l.SMSFailed,
		EmailSent:   l.EmailSent,
		EmailFailed: l.EmailFailed,
	}
}

// LedgerError is one entry of a ledger's ordered error list.
type LedgerError struct {
	ID        int64     `db:"id" json:"-"`
	LedgerID  string    `db:"ledger_id" json:"-"`
	RowNumber int       `db:"row_no" json:"row"`
	Identity  string    `db:"identity" json:"member_id,omitempty"`
	Field     string    `db:"field" json:"field,omitempty"`
	Kind      string    `db:"kind" json:"kind"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

type RowOutcome string

const (
	RowUnresolved RowOutcome = ""
	RowSuccessful RowOutcome = "successful"
	RowFailed     RowOutcome = "failed"
	RowSkipped    RowOutcome = "skipped"
)

// LedgerRow retains the original row data until the ledger completes so an
// interrupted batch can be recovered.
// MaxCellLength bounds every retained cell in runes. It is wider than any
// field limit, so a capped cell still fails validation.
const MaxCellLength = 1000

type LedgerRow struct {
	LedgerID  string     `db:"ledger_id" json:"-"`
	RowNumber int        `db:"row_no" json:"row"`
	MemberID  string     `db:"member_id" json:"member_id"`
	Name      string     `db:"name" json:"name"`
	Phone     string     `db:"phone_number" json:"phone_number"`
	Email     string     `db:"email" json:"email,omitempty"`
	Outcome   RowOutcome `db:"outcome" json:"outcome"`
	MemberPK  *int64     `db:"member_pk" json:"member_pk,omitempty"`
}

func (r LedgerRow) MemberRow() MemberRow {
	return MemberRow{
		RowNumber: r.RowNumber,
		MemberID:  r.MemberID,
		Name:      r.Name,
		Phone:     r.Phone,
		Email:     r.Email,
	}
}

// RowResult is the single contribution a row makes to its ledger.
type RowResult struct {
	RowNumber int
	Identity  string
	Outcome   RowOutcome
	Errors    []RowError
	MemberPK  *int64
	Delivery  *DeliveryReport
}

func (r RowResult) ChannelCounts() ChannelCounts {
	var c ChannelCounts
	if r.Delivery != nil {
		c.Record(r.Delivery.SMS)
		c.Record(r.Delivery.Email)
	}
	return c
}

type Statistics struct {
	Total       int `json:"total"`
	Successful  int `json:"successful"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	SMSSent     int `json:"sms_sent"`
	SMSFailed   int `json:"sms_failed"`
	EmailSent   int `json:"email_sent"`
	EmailFailed int `json:"email_failed"`
}

func (s *Statistics) Apply(r RowResult) {
	switch r.Outcome {
	case RowSuccessful:
		s.Successful++
	case RowFailed:
		s.Failed++
	case RowSkipped:
		s.Skipped++
	}
	c := r.ChannelCounts()
	s.SMSSent += c.SMSSent
	s.SMSFailed += c.SMSFailed
	s.EmailSent += c.EmailSent
	s.EmailFailed += c.EmailFailed
}

// RecoveryEntry is one row in a recovery report.
type RecoveryEntry struct {
	RowNumber int        `json:"row,omitempty"`
	MemberID  string     `json:"member_id"`
	MemberPK  *int64     `json:"member_pk,omitempty"`
	Outcome   RowOutcome `json:"outcome,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

type RecoveryReport struct {
	LedgerID    string          `json:"ledger_id"`
	Status      LedgerStatus    `json:"status"`
	Provisioned []RecoveryEntry `json:"provisioned"`
	Outstanding []RecoveryEntry `json:"outstanding"`
}
