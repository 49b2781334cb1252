package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"member-onboarding/internal/models"
)

// DuplicateDetector finds identities repeated inside an upload and
// identities already taken in the member store. The store lookup is
// optimistic; unique keys in the store remain the final arbiter.
type DuplicateDetector struct {
	members MemberStore
}

func NewDuplicateDetector(members MemberStore) *DuplicateDetector {
	return &DuplicateDetector{members: members}
}

type identityField struct {
	column string
	value  func(models.MemberRow) string
}

var identityFields = []identityField{
	{models.ColumnMemberID, func(r models.MemberRow) string { return r.MemberID }},
	{models.ColumnPhone, func(r models.MemberRow) string { return r.Phone }},
	{models.ColumnEmail, func(r models.MemberRow) string { return r.Email }},
}

// FindInFileDuplicates flags every occurrence of an identity value that
// appears on more than one row. Each error names the field and lists all
// rows sharing the value. Rows must already be normalized.
func FindInFileDuplicates(rows []models.MemberRow) map[int][]models.RowError {
	flagged := map[int][]models.RowError{}

	for _, field := range identityFields {
		occurrences := map[string][]int{}
		byRow := map[int]models.MemberRow{}
		for _, row := range rows {
			v := field.value(row)
			if v == "" {
				continue
			}
			occurrences[v] = append(occurrences[v], row.RowNumber)
			byRow[row.RowNumber] = row
		}

		values := make([]string, 0, len(occurrences))
		for v, at := range occurrences {
			if len(at) > 1 {
				values = append(values, v)
			}
		}
		sort.Strings(values)

		for _, v := range values {
			at := occurrences[v]
			for _, n := range at {
				flagged[n] = append(flagged[n], models.RowError{
					Row:      n,
					MemberID: byRow[n].MemberID,
					Field:    field.column,
					Value:    v,
					Reason:   fmt.Sprintf("%s is repeated in rows %s", field.column, joinRows(at)),
					Kind:     models.KindDuplicate,
				})
			}
		}
	}
	return flagged
}

func joinRows(rows []int) string {
	parts := make([]string, len(rows))
	for i, n := range rows {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

// Existing loads the members that already hold any identity of rows.
func (d *DuplicateDetector) Existing(ctx context.Context, rows []models.MemberRow) (models.IdentitySet, error) {
	set := models.NewIdentitySet()
	if len(rows) == 0 {
		return set, nil
	}

	var ids, phones, emails []string
	for _, row := range rows {
		ids = append(ids, row.MemberID)
		phones = append(phones, row.Phone)
		if row.Email != "" {
			emails = append(emails, row.Email)
		}
	}

	members, err := d.members.FindByIdentities(ctx, ids, phones, emails)
	if err != nil {
		return set, fmt.Errorf("failed to look up existing identities: %w", err)
	}
	for i := range members {
		set.Add(&members[i])
	}
	return set, nil
}

// MatchExisting returns the member holding one of the row's identities and
// the column that matched.
func MatchExisting(set models.IdentitySet, row models.MemberRow) (*models.Member, string) {
	if m, ok := set.MemberIDs[row.MemberID]; ok {
		return m, models.ColumnMemberID
	}
	if m, ok := set.Phones[row.Phone]; ok {
		return m, models.ColumnPhone
	}
	if row.Email != "" {
		if m, ok := set.Emails[row.Email]; ok {
			return m, models.ColumnEmail
		}
	}
	return nil, ""
}

// ExistingDuplicateError builds the row error for an against-store match.
func ExistingDuplicateError(row models.MemberRow, column string) models.RowError {
	value := row.MemberID
	switch column {
	case models.ColumnPhone:
		value = row.Phone
	case models.ColumnEmail:
		value = row.Email
	}
	return models.RowError{
		Row:      row.RowNumber,
		MemberID: row.MemberID,
		Field:    column,
		Value:    value,
		Reason:   fmt.Sprintf("%s already belongs to an existing member", column),
		Kind:     models.KindDuplicate,
	}
}
