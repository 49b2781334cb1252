package service

import (
	"context"
	"strings"
	"testing"

	"member-onboarding/internal/models"
	"member-onboarding/internal/repository/memory"
)

func TestFindInFileDuplicatesFlagsEveryOccurrence(t *testing.T) {
	rows := []models.MemberRow{
		{RowNumber: 1, MemberID: "M-1", Phone: "+15550000001", Email: "a@example.com"},
		{RowNumber: 2, MemberID: "M-2", Phone: "+15550000002"},
		{RowNumber: 3, MemberID: "M-3", Phone: "+15550000001"},
		{RowNumber: 4, MemberID: "M-2", Phone: "+15550000004", Email: "a@example.com"},
	}

	flagged := FindInFileDuplicates(rows)

	if len(flagged[1]) != 2 {
		t.Fatalf("row 1 should carry phone and email duplicates, got %v", flagged[1])
	}
	for _, n := range []int{2, 3, 4} {
		if len(flagged[n]) == 0 {
			t.Errorf("row %d not flagged", n)
		}
	}
	for _, e := range flagged[3] {
		if e.Field == models.ColumnPhone && !strings.Contains(e.Reason, "rows 1, 3") {
			t.Errorf("reason should list all rows: %q", e.Reason)
		}
		if e.Kind != models.KindDuplicate {
			t.Errorf("kind = %s", e.Kind)
		}
	}
	if _, ok := flagged[5]; ok {
		t.Error("unexpected row flagged")
	}
}

func TestFindInFileDuplicatesIgnoresBlankEmail(t *testing.T) {
	rows := []models.MemberRow{
		{RowNumber: 1, MemberID: "M-1", Phone: "+15550000001"},
		{RowNumber: 2, MemberID: "M-2", Phone: "+15550000002"},
	}
	if flagged := FindInFileDuplicates(rows); len(flagged) != 0 {
		t.Fatalf("blank emails must not collide: %v", flagged)
	}
}

func TestDuplicateDetectorMatchesStore(t *testing.T) {
	store := memory.NewMemberStore()
	email := "taken@example.com"
	if err := store.Create(context.Background(), &models.Member{MemberID: "M-9", Name: "X", Phone: "+15550000009", Email: &email}); err != nil {
		t.Fatal(err)
	}

	rows := []models.MemberRow{
		{RowNumber: 1, MemberID: "M-1", Phone: "+15550000001", Email: email},
		{RowNumber: 2, MemberID: "M-2", Phone: "+15550000002"},
		{RowNumber: 3, MemberID: "M-9", Phone: "+15550000003"},
	}
	set, err := NewDuplicateDetector(store).Existing(context.Background(), rows)
	if err != nil {
		t.Fatalf("Existing: %v", err)
	}

	if m, column := MatchExisting(set, rows[0]); m == nil || column != models.ColumnEmail {
		t.Errorf("row 1: got %v %q", m, column)
	}
	if m, _ := MatchExisting(set, rows[1]); m != nil {
		t.Errorf("row 2 should be new, matched %+v", m)
	}
	m, column := MatchExisting(set, rows[2])
	if m == nil || column != models.ColumnMemberID {
		t.Fatalf("row 3: got %v %q", m, column)
	}
	e := ExistingDuplicateError(rows[2], column)
	if e.Row != 3 || e.Value != "M-9" || e.Kind != models.KindDuplicate {
		t.Errorf("unexpected error: %+v", e)
	}
}
