package repository

import (
	"strings"
	"testing"

	"member-onboarding/internal/fieldcodec"
)

func TestOrderColumn(t *testing.T) {
	plain := NewMemberRepository(nil, nil)
	sealed, err := fieldcodec.NewXChaCha(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatal(err)
	}
	encrypted := NewMemberRepository(nil, sealed)

	cases := []struct {
		repo *MemberRepository
		key  string
		want string
	}{
		{plain, "name", "name"},
		{plain, "member_id", "member_id"},
		{plain, "name; DROP TABLE members", "created_at"},
		{plain, "", "created_at"},
		{encrypted, "name", "created_at"},
		{encrypted, "sms_sent_at", "sms_sent_at"},
	}
	for _, tc := range cases {
		if got := tc.repo.orderColumn(tc.key); got != tc.want {
			t.Errorf("orderColumn(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
