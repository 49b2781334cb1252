package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"member-onboarding/internal/fieldcodec"
	"member-onboarding/internal/models"

	"github.com/jmoiron/sqlx"
)

const insertBatchSize = 500

// LedgerRepository stores ledgers in MySQL. Retained row names pass through
// the same field codec as member names.
type LedgerRepository struct {
	db    *sqlx.DB
	codec fieldcodec.Codec
}

func NewLedgerRepository(db *sqlx.DB, codec fieldcodec.Codec) *LedgerRepository {
	if codec == nil {
		codec = fieldcodec.Nop{}
	}
	return &LedgerRepository{db: db, codec: codec}
}

// Create stores the ledger and its retained rows in one transaction.
func (r *LedgerRepository) Create(ctx context.Context, ledger *models.ImportLedger, rows []models.LedgerRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ledger.Filename = truncate(ledger.Filename, 255)
	ledger.OperatorName = truncate(ledger.OperatorName, 100)
	now := time.Now().UTC()
	ledger.CreatedAt = now
	ledger.UpdatedAt = now

	query := `INSERT INTO import_ledgers (id, operator_id, operator_name, filename, total_rows, status, created_at, updated_at)
	          VALUES (:id, :operator_id, :operator_name, :filename, :total_rows, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, ledger); err != nil {
		return err
	}

	sealed := make([]models.LedgerRow, len(rows))
	for i, row := range rows {
		name, err := r.codec.Encode(row.Name)
		if err != nil {
			return fmt.Errorf("failed to encode row %d name: %w", row.RowNumber, err)
		}
		row.Name = name
		sealed[i] = row
	}

	rowQuery := `INSERT INTO import_ledger_rows (ledger_id, row_no, member_id, name, phone_number, email, outcome)
	             VALUES (:ledger_id, :row_no, :member_id, :name, :phone_number, :email, :outcome)`
	for start := 0; start < len(sealed); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(sealed) {
			end = len(sealed)
		}
		if _, err := tx.NamedExecContext(ctx, rowQuery, sealed[start:end]); err != nil {
			return fmt.Errorf("failed to retain ledger rows: %w", err)
		}
	}

	return tx.Commit()
}

func (r *LedgerRepository) FindByID(ctx context.Context, id string) (*models.ImportLedger, error) {
	var ledger models.ImportLedger
	err := r.db.GetContext(ctx, &ledger, "SELECT * FROM import_ledgers WHERE id = ? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrLedgerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

func (r *LedgerRepository) List(ctx context.Context, limit, offset int) ([]models.ImportLedger, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM import_ledgers"); err != nil {
		return nil, 0, err
	}

	var ledgers []models.ImportLedger
	query := "SELECT * FROM import_ledgers ORDER BY created_at DESC LIMIT ? OFFSET ?"
	if err := r.db.SelectContext(ctx, &ledgers, query, limit, offset); err != nil {
		return nil, 0, err
	}
	return ledgers, total, nil
}

func (r *LedgerRepository) SetStatus(ctx context.Context, id string, status models.LedgerStatus) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE import_ledgers SET status = ? WHERE id = ? AND status <> ?",
		status, id, models.LedgerCompleted)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.closedOrMissing(ctx, id)
	}
	return nil
}

// ApplyRowResult claims the retained row first; only the claim that moves
// the row out of the unresolved state touches the counters.
func (r *LedgerRepository) ApplyRowResult(ctx context.Context, ledgerID string, result models.RowResult) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	claim, err := tx.ExecContext(ctx,
		`UPDATE import_ledger_rows SET outcome = ?, member_pk = ?
		 WHERE ledger_id = ? AND row_no = ? AND outcome = ''`,
		result.Outcome, result.MemberPK, ledgerID, result.RowNumber)
	if err != nil {
		return false, err
	}
	claimed, err := claim.RowsAffected()
	if err != nil {
		return false, err
	}
	if claimed == 0 {
		return false, nil
	}

	var successful, failed, skipped int
	switch result.Outcome {
	case models.RowSuccessful:
		successful = 1
	case models.RowFailed:
		failed = 1
	case models.RowSkipped:
		skipped = 1
	default:
		return false, fmt.Errorf("row %d has no outcome", result.RowNumber)
	}
	counts := result.ChannelCounts()

	update, err := tx.ExecContext(ctx,
		`UPDATE import_ledgers SET successful_rows = successful_rows + ?, failed_rows = failed_rows + ?,
		 skipped_rows = skipped_rows + ?, sms_sent = sms_sent + ?, sms_failed = sms_failed + ?,
		 email_sent = email_sent + ?, email_failed = email_failed + ?
		 WHERE id = ? AND status <> ?`,
		successful, failed, skipped, counts.SMSSent, counts.SMSFailed, counts.EmailSent, counts.EmailFailed,
		ledgerID, models.LedgerCompleted)
	if err != nil {
		return false, err
	}
	if n, err := update.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, models.ErrLedgerClosed
	}

	if len(result.Errors) > 0 {
		entries := make([]models.LedgerError, len(result.Errors))
		for i, e := range result.Errors {
			entries[i] = e.LedgerError()
			entries[i].LedgerID = ledgerID
			entries[i].Message = truncate(entries[i].Message, 500)
		}
		query := `INSERT INTO import_ledger_errors (ledger_id, row_no, identity, field, kind, message)
		          VALUES (:ledger_id, :row_no, :identity, :field, :kind, :message)`
		if _, err := tx.NamedExecContext(ctx, query, entries); err != nil {
			return false, fmt.Errorf("failed to append ledger errors: %w", err)
		}
	}

	return true, tx.Commit()
}

// AddChannelCounts records sends made after the batch, such as resends.
func (r *LedgerRepository) AddChannelCounts(ctx context.Context, ledgerID string, counts models.ChannelCounts) error {
	if counts.IsZero() {
		return nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE import_ledgers SET sms_sent = sms_sent + ?, sms_failed = sms_failed + ?,
		 email_sent = email_sent + ?, email_failed = email_failed + ? WHERE id = ?`,
		counts.SMSSent, counts.SMSFailed, counts.EmailSent, counts.EmailFailed, ledgerID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return models.ErrLedgerNotFound
	}
	return nil
}

func (r *LedgerRepository) Finalize(ctx context.Context, id string, status models.LedgerStatus, message string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var completedAt *time.Time
	if status == models.LedgerCompleted {
		completedAt = &at
	}
	result, err := tx.ExecContext(ctx,
		"UPDATE import_ledgers SET status = ?, error_message = ?, completed_at = ? WHERE id = ? AND status <> ?",
		status, truncate(message, 1000), completedAt, id, models.LedgerCompleted)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return r.closedOrMissing(ctx, id)
	}

	if status == models.LedgerCompleted {
		if _, err := tx.ExecContext(ctx, "DELETE FROM import_ledger_rows WHERE ledger_id = ?", id); err != nil {
			return fmt.Errorf("failed to purge retained rows: %w", err)
		}
	}
	return tx.Commit()
}

func (r *LedgerRepository) Errors(ctx context.Context, id string) ([]models.LedgerError, error) {
	errs := []models.LedgerError{}
	query := "SELECT * FROM import_ledger_errors WHERE ledger_id = ? ORDER BY row_no, id"
	if err := r.db.SelectContext(ctx, &errs, query, id); err != nil {
		return nil, err
	}
	return errs, nil
}

func (r *LedgerRepository) Rows(ctx context.Context, id string) ([]models.LedgerRow, error) {
	var rows []models.LedgerRow
	query := "SELECT * FROM import_ledger_rows WHERE ledger_id = ? ORDER BY row_no"
	if err := r.db.SelectContext(ctx, &rows, query, id); err != nil {
		return nil, err
	}
	for i := range rows {
		plain, err := r.codec.Decode(rows[i].Name)
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d name: %w", rows[i].RowNumber, err)
		}
		rows[i].Name = plain
	}
	return rows, nil
}

func (r *LedgerRepository) closedOrMissing(ctx context.Context, id string) error {
	ledger, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if ledger.Status == models.LedgerCompleted {
		return models.ErrLedgerClosed
	}
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
