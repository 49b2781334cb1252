package service

import (
	"context"
	"fmt"

	"member-onboarding/internal/models"
)

// RecoveryService reports which rows of a ledger produced an account and
// which did not. It only reads.
type RecoveryService struct {
	members MemberStore
	ledgers LedgerStore
}

func NewRecoveryService(members MemberStore, ledgers LedgerStore) *RecoveryService {
	return &RecoveryService{members: members, ledgers: ledgers}
}

// Recover splits the ledger's rows into provisioned and outstanding. A row
// counts as provisioned when a member linked to this ledger carries its
// member_id, or when any existing member already holds one of its
// identities. Completed ledgers no longer retain rows, so only their
// linked members are listed.
func (s *RecoveryService) Recover(ctx context.Context, ledgerID string) (*models.RecoveryReport, error) {
	ledger, err := s.ledgers.FindByID(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	linked, err := s.members.FindByLedger(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger members: %w", err)
	}
	byMemberID := make(map[string]*models.Member, len(linked))
	for i := range linked {
		byMemberID[linked[i].MemberID] = &linked[i]
	}

	report := &models.RecoveryReport{
		LedgerID:    ledgerID,
		Status:      ledger.Status,
		Provisioned: []models.RecoveryEntry{},
		Outstanding: []models.RecoveryEntry{},
	}

	if ledger.Status == models.LedgerCompleted {
		for i := range linked {
			pk := linked[i].ID
			report.Provisioned = append(report.Provisioned, models.RecoveryEntry{
				MemberID: linked[i].MemberID,
				MemberPK: &pk,
				Outcome:  models.RowSuccessful,
			})
		}
		return report, nil
	}

	rows, err := s.ledgers.Rows(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger rows: %w", err)
	}

	normalized := make([]models.MemberRow, len(rows))
	for i, row := range rows {
		normalized[i], _ = ValidateRow(row.MemberRow())
	}

	var unlinked []models.MemberRow
	for _, n := range normalized {
		if _, ok := byMemberID[n.MemberID]; !ok {
			unlinked = append(unlinked, n)
		}
	}
	existing, err := NewDuplicateDetector(s.members).Existing(ctx, unlinked)
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		n := normalized[i]
		entry := models.RecoveryEntry{
			RowNumber: row.RowNumber,
			MemberID:  n.MemberID,
			Outcome:   row.Outcome,
		}

		if m, ok := byMemberID[n.MemberID]; ok {
			pk := m.ID
			entry.MemberPK = &pk
			report.Provisioned = append(report.Provisioned, entry)
			continue
		}
		if m, column := MatchExisting(existing, n); m != nil {
			pk := m.ID
			entry.MemberPK = &pk
			entry.Reason = fmt.Sprintf("%s already belongs to an existing member", column)
			report.Provisioned = append(report.Provisioned, entry)
			continue
		}

		switch row.Outcome {
		case models.RowUnresolved:
			entry.Reason = "row was not processed"
		case models.RowFailed:
			entry.Reason = "row failed validation or provisioning"
		case models.RowSkipped:
			entry.Reason = "row was skipped as a duplicate"
		}
		report.Outstanding = append(report.Outstanding, entry)
	}
	return report, nil
}
