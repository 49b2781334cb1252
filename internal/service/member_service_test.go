package service

import (
	"context"
	"strings"
	"testing"

	"member-onboarding/internal/models"
)

func TestMemberListMasksIdentities(t *testing.T) {
	h := newHarness(t)
	h.seedMember(t, "M-0001", "+15550000001", "ana@example.com")
	h.seedMember(t, "M-0002", "+15550000002", "")

	svc := NewMemberService(h.members)
	items, total, err := svc.List(context.Background(), models.MemberFilter{OrderBy: "member_id", OrderDir: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("got %d of %d", len(items), total)
	}
	first := items[0]
	if first.MemberID != "M-****01" || first.Phone != "********0001" || first.Email != "a***@example.com" {
		t.Errorf("masked item = %+v", first)
	}
	if strings.Contains(first.Phone, "555") {
		t.Error("phone leaked")
	}
}

func TestMemberListFilters(t *testing.T) {
	h := newHarness(t)
	a, _ := h.seedMember(t, "M-1", "+15550000001", "")
	h.seedMember(t, "M-2", "+15550000002", "")
	h.setStatus(t, a.ID, models.StatusSMSFailed)

	svc := NewMemberService(h.members)
	items, total, err := svc.List(context.Background(), models.MemberFilter{Status: "sms_failed"})
	if err != nil || total != 1 || items[0].ID != a.ID {
		t.Fatalf("status filter = %+v %d %v", items, total, err)
	}

	if _, _, err := svc.List(context.Background(), models.MemberFilter{Status: "archived"}); err == nil {
		t.Error("unknown status accepted")
	}

	items, _, _ = svc.List(context.Background(), models.MemberFilter{Search: "0002"})
	if len(items) != 1 || items[0].MemberID != "***" {
		t.Errorf("search = %+v", items)
	}
}
