package service

import (
	"context"
	"time"

	"member-onboarding/internal/models"
)

// MemberStore persists member accounts. Create returns
// models.ErrDuplicateIdentity when a unique identity is already taken and
// lookups return models.ErrMemberNotFound.
type MemberStore interface {
	Create(ctx context.Context, m *models.Member) error
	FindByID(ctx context.Context, id int64) (*models.Member, error)
	FindByMemberID(ctx context.Context, memberID string) (*models.Member, error)
	FindByIdentities(ctx context.Context, memberIDs, phones, emails []string) ([]models.Member, error)
	FindByLedger(ctx context.Context, ledgerID string) ([]models.Member, error)
	List(ctx context.Context, filter models.MemberFilter) ([]models.Member, int64, error)

	// CompareAndSetStatus moves the member to next only while it is still in
	// expected. It reports whether the row was updated.
	CompareAndSetStatus(ctx context.Context, id int64, expected, next models.ActivationStatus) (bool, error)
	// ReplaceTempSecret stores a new temporary secret hash and clears the
	// consumed marker. A nil hash invalidates the current secret.
	ReplaceTempSecret(ctx context.Context, id int64, hash *string, expiresAt *time.Time) error
	RecordChannelSent(ctx context.Context, id int64, ch models.ChannelName, at time.Time, resetRetries bool) error
	// RecordRetryAttempt increments the channel retry counter and returns the new count.
	RecordRetryAttempt(ctx context.Context, id int64, ch models.ChannelName, at time.Time) (int, error)
	// Activate sets the permanent password, consumes the temporary secret and
	// moves the member to activated, provided the stored secret hash still
	// equals secretHash and the member is not yet activated.
	Activate(ctx context.Context, id int64, secretHash, passwordHash string, at time.Time) (bool, error)
}

// LedgerStore persists import ledgers, their ordered errors and the
// original rows retained for recovery.
type LedgerStore interface {
	Create(ctx context.Context, ledger *models.ImportLedger, rows []models.LedgerRow) error
	FindByID(ctx context.Context, id string) (*models.ImportLedger, error)
	List(ctx context.Context, limit, offset int) ([]models.ImportLedger, int64, error)
	SetStatus(ctx context.Context, id string, status models.LedgerStatus) error

	// ApplyRowResult folds one row outcome into the counters and error list.
	// A row already resolved is ignored and false is returned.
	ApplyRowResult(ctx context.Context, ledgerID string, result models.RowResult) (bool, error)
	AddChannelCounts(ctx context.Context, ledgerID string, counts models.ChannelCounts) error
	// Finalize records the terminal status. Retained rows are purged when
	// the ledger completes.
	Finalize(ctx context.Context, id string, status models.LedgerStatus, message string, at time.Time) error

	Errors(ctx context.Context, id string) ([]models.LedgerError, error)
	Rows(ctx context.Context, id string) ([]models.LedgerRow, error)
}
