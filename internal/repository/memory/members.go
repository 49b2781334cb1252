// Package memory holds in-process stores. They back tests and local runs
// without MySQL and enforce the same uniqueness rules as the schema.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"member-onboarding/internal/models"
)

type MemberStore struct {
	mu      sync.Mutex
	nextID  int64
	members map[int64]*models.Member
	now     func() time.Time
}

func NewMemberStore() *MemberStore {
	return &MemberStore{members: map[int64]*models.Member{}, now: time.Now}
}

func clone(m *models.Member) *models.Member {
	c := *m
	return &c
}

func (s *MemberStore) Create(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.members {
		switch {
		case existing.MemberID == m.MemberID:
			return fmt.Errorf("%w: member_id %s", models.ErrDuplicateIdentity, m.MemberID)
		case existing.Phone == m.Phone:
			return fmt.Errorf("%w: phone_number %s", models.ErrDuplicateIdentity, m.Phone)
		case m.HasEmail() && existing.HasEmail() && *existing.Email == *m.Email:
			return fmt.Errorf("%w: email %s", models.ErrDuplicateIdentity, *m.Email)
		}
	}

	s.nextID++
	now := s.now().UTC()
	m.ID = s.nextID
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.ActivationStatus == "" {
		m.ActivationStatus = models.StatusPendingActivation
	}
	s.members[m.ID] = clone(m)
	return nil
}

func (s *MemberStore) FindByID(_ context.Context, id int64) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, models.ErrMemberNotFound
	}
	return clone(m), nil
}

func (s *MemberStore) FindByMemberID(_ context.Context, memberID string) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.MemberID == memberID {
			return clone(m), nil
		}
	}
	return nil, models.ErrMemberNotFound
}

func (s *MemberStore) FindByIdentities(_ context.Context, memberIDs, phones, emails []string) ([]models.Member, error) {
	want := func(values []string) map[string]bool {
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		return set
	}
	ids, ph, em := want(memberIDs), want(phones), want(emails)

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Member
	for _, m := range s.sorted() {
		if ids[m.MemberID] || ph[m.Phone] || (m.HasEmail() && em[*m.Email]) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *MemberStore) FindByLedger(_ context.Context, ledgerID string) ([]models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Member
	for _, m := range s.sorted() {
		if m.ImportLedgerID != nil && *m.ImportLedgerID == ledgerID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *MemberStore) List(_ context.Context, filter models.MemberFilter) ([]models.Member, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(filter.Search)
	var matched []models.Member
	for _, m := range s.sorted() {
		if filter.Status != "" && string(m.ActivationStatus) != filter.Status {
			continue
		}
		if filter.LedgerID != "" && (m.ImportLedgerID == nil || *m.ImportLedgerID != filter.LedgerID) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(m.MemberID), search) &&
			!strings.Contains(m.Phone, search) &&
			!strings.Contains(strings.ToLower(m.EmailAddress()), search) {
			continue
		}
		matched = append(matched, *m)
	}

	less := func(i, j int) bool { return matched[i].ID < matched[j].ID }
	switch filter.OrderBy {
	case "member_id":
		less = func(i, j int) bool { return matched[i].MemberID < matched[j].MemberID }
	case "name":
		less = func(i, j int) bool { return matched[i].Name < matched[j].Name }
	case "activation_status":
		less = func(i, j int) bool { return matched[i].ActivationStatus < matched[j].ActivationStatus }
	}
	sort.SliceStable(matched, less)
	if filter.OrderDir != "asc" {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	total := int64(len(matched))
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 25
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []models.Member{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemberStore) CompareAndSetStatus(_ context.Context, id int64, expected, next models.ActivationStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return false, models.ErrMemberNotFound
	}
	if m.ActivationStatus != expected {
		return false, nil
	}
	m.ActivationStatus = next
	m.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *MemberStore) ReplaceTempSecret(_ context.Context, id int64, hash *string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok || m.ActivationStatus == models.StatusActivated {
		return fmt.Errorf("member %d: %w", id, models.ErrMemberNotFound)
	}
	m.TempSecretHash = copyString(hash)
	m.TempSecretExpiresAt = copyTime(expiresAt)
	m.TempSecretUsedAt = nil
	return nil
}

func (s *MemberStore) RecordChannelSent(_ context.Context, id int64, ch models.ChannelName, at time.Time, resetRetries bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return models.ErrMemberNotFound
	}
	sent := at
	if ch == models.ChannelEmail {
		m.EmailSentAt = &sent
		if resetRetries {
			m.EmailRetryCount = 0
		}
	} else {
		m.SMSSentAt = &sent
		if resetRetries {
			m.SMSRetryCount = 0
		}
	}
	return nil
}

func (s *MemberStore) RecordRetryAttempt(_ context.Context, id int64, ch models.ChannelName, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return 0, models.ErrMemberNotFound
	}
	last := at
	if ch == models.ChannelEmail {
		m.EmailRetryCount++
		m.EmailLastRetryAt = &last
		return m.EmailRetryCount, nil
	}
	m.SMSRetryCount++
	m.SMSLastRetryAt = &last
	return m.SMSRetryCount, nil
}

func (s *MemberStore) Activate(_ context.Context, id int64, secretHash, passwordHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return false, models.ErrMemberNotFound
	}
	if m.ActivationStatus == models.StatusActivated || m.TempSecretUsedAt != nil ||
		m.TempSecretHash == nil || *m.TempSecretHash != secretHash {
		return false, nil
	}
	used := at
	pw := passwordHash
	m.PasswordHash = &pw
	m.PasswordChangedAt = &used
	m.TempSecretUsedAt = &used
	m.TempSecretHash = nil
	m.ActivationStatus = models.StatusActivated
	return true, nil
}

// Put replaces a stored member as-is. Tests use it to set up state.
func (s *MemberStore) Put(m *models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		s.nextID++
		m.ID = s.nextID
	} else if m.ID > s.nextID {
		s.nextID = m.ID
	}
	s.members[m.ID] = clone(m)
}

func (s *MemberStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

func (s *MemberStore) sorted() []*models.Member {
	out := make([]*models.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
