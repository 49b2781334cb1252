package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"member-onboarding/internal/models"
)

type ledgerEntry struct {
	ledger models.ImportLedger
	rows   map[int]*models.LedgerRow
	errors []models.LedgerError
}

type LedgerStore struct {
	mu      sync.Mutex
	ledgers map[string]*ledgerEntry
	nextErr int64
	now     func() time.Time
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{ledgers: map[string]*ledgerEntry{}, now: time.Now}
}

func (s *LedgerStore) Create(_ context.Context, ledger *models.ImportLedger, rows []models.LedgerRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ledgers[ledger.ID]; exists {
		return fmt.Errorf("ledger %s already exists", ledger.ID)
	}
	now := s.now().UTC()
	ledger.CreatedAt = now
	ledger.UpdatedAt = now

	entry := &ledgerEntry{ledger: *ledger, rows: map[int]*models.LedgerRow{}}
	for _, r := range rows {
		if err := fitsColumns(r.MemberID, r.Name, r.Phone, r.Email); err != nil {
			return fmt.Errorf("row %d: %w", r.RowNumber, err)
		}
		row := r
		row.LedgerID = ledger.ID
		entry.rows[row.RowNumber] = &row
	}
	s.ledgers[ledger.ID] = entry
	return nil
}

// fitsColumns rejects values the ledger tables could not hold.
func fitsColumns(values ...string) error {
	for _, v := range values {
		if utf8.RuneCountInString(v) > models.MaxCellLength {
			return fmt.Errorf("value of %d characters is too long", utf8.RuneCountInString(v))
		}
	}
	return nil
}

func (s *LedgerStore) get(id string) (*ledgerEntry, error) {
	entry, ok := s.ledgers[id]
	if !ok {
		return nil, models.ErrLedgerNotFound
	}
	return entry, nil
}

func (s *LedgerStore) FindByID(_ context.Context, id string) (*models.ImportLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.get(id)
	if err != nil {
		return nil, err
	}
	ledger := entry.ledger
	return &ledger, nil
}

func (s *LedgerStore) List(_ context.Context, limit, offset int) ([]models.ImportLedger, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]models.ImportLedger, 0, len(s.ledgers))
	for _, e := range s.ledgers {
		all = append(all, e.ledger)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return []models.ImportLedger{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *LedgerStore) SetStatus(_ context.Context, id string, status models.LedgerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.get(id)
	if err != nil {
		return err
	}
	if entry.ledger.Status == models.LedgerCompleted {
		return models.ErrLedgerClosed
	}
	entry.ledger.Status = status
	return nil
}

func (s *LedgerStore) ApplyRowResult(_ context.Context, ledgerID string, result models.RowResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.get(ledgerID)
	if err != nil {
		return false, err
	}
	if entry.ledger.Status == models.LedgerCompleted {
		return false, models.ErrLedgerClosed
	}
	row, ok := entry.rows[result.RowNumber]
	if !ok || row.Outcome != models.RowUnresolved {
		return false, nil
	}
	for _, e := range result.Errors {
		if err := fitsColumns(e.MemberID); err != nil {
			return false, fmt.Errorf("row %d: %w", result.RowNumber, err)
		}
	}

	switch result.Outcome {
	case models.RowSuccessful:
		entry.ledger.Successful++
	case models.RowFailed:
		entry.ledger.Failed++
	case models.RowSkipped:
		entry.ledger.Skipped++
	default:
		return false, fmt.Errorf("row %d has no outcome", result.RowNumber)
	}
	row.Outcome = result.Outcome
	row.MemberPK = result.MemberPK

	counts := result.ChannelCounts()
	entry.ledger.SMSSent += counts.SMSSent
	entry.ledger.SMSFailed += counts.SMSFailed
	entry.ledger.EmailSent += counts.EmailSent
	entry.ledger.EmailFailed += counts.EmailFailed

	for _, e := range result.Errors {
		s.nextErr++
		le := e.LedgerError()
		le.ID = s.nextErr
		le.LedgerID = ledgerID
		le.CreatedAt = s.now().UTC()
		entry.errors = append(entry.errors, le)
	}
	return true, nil
}

func (s *LedgerStore) AddChannelCounts(_ context.Context, ledgerID string, counts models.ChannelCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.get(ledgerID)
	if err != nil {
		return err
	}
	entry.ledger.SMSSent += counts.SMSSent
	entry.ledger.SMSFailed += counts.SMSFailed
	entry.ledger.EmailSent += counts.EmailSent
	entry.ledger.EmailFailed += counts.EmailFailed
	return nil
}

func (s *LedgerStore) Finalize(_ context.Context, id string, status models.LedgerStatus, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.get(id)
	if err != nil {
		return err
	}
	if entry.ledger.Status == models.LedgerCompleted {
		return models.ErrLedgerClosed
	}
	entry.ledger.Status = status
	entry.ledger.ErrorMessage = message
	if status == models.LedgerCompleted {
		done := at
		entry.ledger.CompletedAt = &done
		entry.rows = map[int]*models.LedgerRow{}
	}
	return nil
}

func (s *LedgerStore) Errors(_ context.Context, id string) ([]models.LedgerError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.get(id)
	if err != nil {
		return nil, err
	}
	out := append([]models.LedgerError{}, entry.errors...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RowNumber != out[j].RowNumber {
			return out[i].RowNumber < out[j].RowNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *LedgerStore) Rows(_ context.Context, id string) ([]models.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.get(id)
	if err != nil {
		return nil, err
	}
	out := make([]models.LedgerRow, 0, len(entry.rows))
	for _, r := range entry.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}
