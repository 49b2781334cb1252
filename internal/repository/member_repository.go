package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"member-onboarding/internal/fieldcodec"
	"member-onboarding/internal/models"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

const mysqlDuplicateEntry = 1062

const memberColumns = `id, member_id, name, phone_number, email, temp_secret_hash, temp_secret_expires_at,
	temp_secret_used_at, password_hash, password_changed_at, activation_status, sms_sent_at, sms_retry_count,
	sms_last_retry_at, email_sent_at, email_retry_count, email_last_retry_at, import_ledger_id, created_at, updated_at`

// MemberRepository stores members in MySQL. The name column passes through
// the field codec on every write and read.
type MemberRepository struct {
	db    *sqlx.DB
	codec fieldcodec.Codec
}

func NewMemberRepository(db *sqlx.DB, codec fieldcodec.Codec) *MemberRepository {
	if codec == nil {
		codec = fieldcodec.Nop{}
	}
	return &MemberRepository{db: db, codec: codec}
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func (r *MemberRepository) Create(ctx context.Context, m *models.Member) error {
	sealed, err := r.codec.Encode(m.Name)
	if err != nil {
		return fmt.Errorf("failed to encode member name: %w", err)
	}

	row := *m
	row.Name = sealed
	query := `INSERT INTO members (member_id, name, phone_number, email, temp_secret_hash,
	          temp_secret_expires_at, activation_status, import_ledger_id)
	          VALUES (:member_id, :name, :phone_number, :email, :temp_secret_hash,
	          :temp_secret_expires_at, :activation_status, :import_ledger_id)`
	result, err := r.db.NamedExecContext(ctx, query, &row)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("%w: %v", models.ErrDuplicateIdentity, err)
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (r *MemberRepository) decode(m *models.Member) error {
	plain, err := r.codec.Decode(m.Name)
	if err != nil {
		return fmt.Errorf("failed to decode member %d name: %w", m.ID, err)
	}
	m.Name = plain
	return nil
}

func (r *MemberRepository) decodeAll(members []models.Member) error {
	for i := range members {
		if err := r.decode(&members[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemberRepository) FindByID(ctx context.Context, id int64) (*models.Member, error) {
	var m models.Member
	err := r.db.GetContext(ctx, &m, "SELECT "+memberColumns+" FROM members WHERE id = ? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, r.decode(&m)
}

func (r *MemberRepository) FindByMemberID(ctx context.Context, memberID string) (*models.Member, error) {
	var m models.Member
	err := r.db.GetContext(ctx, &m, "SELECT "+memberColumns+" FROM members WHERE member_id = ? LIMIT 1", memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, r.decode(&m)
}

// FindByIdentities returns every member holding any of the given values.
// Lookups are chunked to keep IN lists bounded.
func (r *MemberRepository) FindByIdentities(ctx context.Context, memberIDs, phones, emails []string) ([]models.Member, error) {
	seen := map[int64]bool{}
	var out []models.Member

	lookup := func(column string, values []string) error {
		for start := 0; start < len(values); start += 500 {
			end := start + 500
			if end > len(values) {
				end = len(values)
			}
			query, args, err := sqlx.In("SELECT "+memberColumns+" FROM members WHERE "+column+" IN (?)", values[start:end])
			if err != nil {
				return err
			}
			var batch []models.Member
			if err := r.db.SelectContext(ctx, &batch, r.db.Rebind(query), args...); err != nil {
				return err
			}
			for _, m := range batch {
				if !seen[m.ID] {
					seen[m.ID] = true
					out = append(out, m)
				}
			}
		}
		return nil
	}

	if err := lookup("member_id", memberIDs); err != nil {
		return nil, err
	}
	if err := lookup("phone_number", phones); err != nil {
		return nil, err
	}
	if err := lookup("email", emails); err != nil {
		return nil, err
	}
	return out, r.decodeAll(out)
}

func (r *MemberRepository) FindByLedger(ctx context.Context, ledgerID string) ([]models.Member, error) {
	var members []models.Member
	query := "SELECT " + memberColumns + " FROM members WHERE import_ledger_id = ? ORDER BY id"
	if err := r.db.SelectContext(ctx, &members, query, ledgerID); err != nil {
		return nil, err
	}
	return members, r.decodeAll(members)
}

var memberOrderColumns = map[string]string{
	"id":                "id",
	"member_id":         "member_id",
	"name":              "name",
	"activation_status": "activation_status",
	"sms_sent_at":       "sms_sent_at",
	"email_sent_at":     "email_sent_at",
	"created_at":        "created_at",
}

// orderColumn maps a requested sort key to its column. Sealed names have no
// useful order, so name sorting is only offered without encryption.
func (r *MemberRepository) orderColumn(key string) string {
	column, ok := memberOrderColumns[key]
	if !ok {
		return "created_at"
	}
	if column == "name" {
		if _, plain := r.codec.(fieldcodec.Nop); !plain {
			return "created_at"
		}
	}
	return column
}

// List searches by identity only; names are sealed when encryption is on.
func (r *MemberRepository) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, int64, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != "" {
		conditions = append(conditions, "activation_status = ?")
		args = append(args, filter.Status)
	}
	if filter.LedgerID != "" {
		conditions = append(conditions, "import_ledger_id = ?")
		args = append(args, filter.LedgerID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		conditions = append(conditions, "(member_id LIKE ? OR phone_number LIKE ? OR email LIKE ?)")
		args = append(args, like, like, like)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM members"+whereClause, args...); err != nil {
		return nil, 0, err
	}

	orderBy := r.orderColumn(filter.OrderBy)
	orderDir := "DESC"
	if filter.OrderDir == "asc" {
		orderDir = "ASC"
	}

	query := fmt.Sprintf("SELECT %s FROM members%s ORDER BY %s %s, id %s LIMIT ? OFFSET ?",
		memberColumns, whereClause, orderBy, orderDir, orderDir)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, 0, err
	}
	return members, total, r.decodeAll(members)
}

func (r *MemberRepository) CompareAndSetStatus(ctx context.Context, id int64, expected, next models.ActivationStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE members SET activation_status = ? WHERE id = ? AND activation_status = ?",
		next, id, expected)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected == 1, err
}

func (r *MemberRepository) ReplaceTempSecret(ctx context.Context, id int64, hash *string, expiresAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET temp_secret_hash = ?, temp_secret_expires_at = ?, temp_secret_used_at = NULL
		 WHERE id = ? AND activation_status <> ?`,
		hash, expiresAt, id, models.StatusActivated)
	if err != nil {
		return err
	}
	return expectOneRow(result, id)
}

func channelColumns(ch models.ChannelName) (sentAt, retryCount, lastRetryAt string) {
	if ch == models.ChannelEmail {
		return "email_sent_at", "email_retry_count", "email_last_retry_at"
	}
	return "sms_sent_at", "sms_retry_count", "sms_last_retry_at"
}

func (r *MemberRepository) RecordChannelSent(ctx context.Context, id int64, ch models.ChannelName, at time.Time, resetRetries bool) error {
	sentAt, retryCount, _ := channelColumns(ch)
	query := fmt.Sprintf("UPDATE members SET %s = ? WHERE id = ?", sentAt)
	if resetRetries {
		query = fmt.Sprintf("UPDATE members SET %s = ?, %s = 0 WHERE id = ?", sentAt, retryCount)
	}
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return expectOneRow(result, id)
}

func (r *MemberRepository) RecordRetryAttempt(ctx context.Context, id int64, ch models.ChannelName, at time.Time) (int, error) {
	_, retryCount, lastRetryAt := channelColumns(ch)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := fmt.Sprintf("UPDATE members SET %s = %s + 1, %s = ? WHERE id = ?", retryCount, retryCount, lastRetryAt)
	result, err := tx.ExecContext(ctx, query, at, id)
	if err != nil {
		return 0, err
	}
	if err := expectOneRow(result, id); err != nil {
		return 0, err
	}

	var count int
	if err := tx.GetContext(ctx, &count, fmt.Sprintf("SELECT %s FROM members WHERE id = ?", retryCount), id); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

func (r *MemberRepository) Activate(ctx context.Context, id int64, secretHash, passwordHash string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET password_hash = ?, password_changed_at = ?, temp_secret_used_at = ?,
		 temp_secret_hash = NULL, activation_status = ?
		 WHERE id = ? AND temp_secret_hash = ? AND temp_secret_used_at IS NULL AND activation_status <> ?`,
		passwordHash, at, at, models.StatusActivated, id, secretHash, models.StatusActivated)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected == 1, err
}

// expectOneRow maps a zero-row update to not found. MySQL reports changed
// rows, so an update writing identical values also counts as zero; the
// driver is opened with clientFoundRows to report matched rows instead.
func expectOneRow(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("member %d: %w", id, models.ErrMemberNotFound)
	}
	return nil
}
