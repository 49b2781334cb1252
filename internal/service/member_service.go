package service

import (
	"context"

	"member-onboarding/internal/models"
	"member-onboarding/internal/utils"
)

type MemberService struct {
	members MemberStore
}

func NewMemberService(members MemberStore) *MemberService {
	return &MemberService{members: members}
}

var memberSortColumns = map[string]bool{
	"id":                true,
	"member_id":         true,
	"name":              true,
	"activation_status": true,
	"sms_sent_at":       true,
	"email_sent_at":     true,
	"created_at":        true,
}

// List returns a page of members with identity fields masked.
func (s *MemberService) List(ctx context.Context, filter models.MemberFilter) ([]models.MemberListItem, int64, error) {
	if filter.Status != "" {
		if _, err := models.ParseActivationStatus(filter.Status); err != nil {
			return nil, 0, err
		}
	}
	if !memberSortColumns[filter.OrderBy] {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir != "asc" {
		filter.OrderDir = "desc"
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 25
	}

	members, total, err := s.members.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	items := make([]models.MemberListItem, 0, len(members))
	for i := range members {
		items = append(items, MaskMember(&members[i]))
	}
	return items, total, nil
}

// Get returns the unmasked member record.
func (s *MemberService) Get(ctx context.Context, id int64) (*models.Member, error) {
	return s.members.FindByID(ctx, id)
}

func MaskMember(m *models.Member) models.MemberListItem {
	return models.MemberListItem{
		ID:               m.ID,
		MemberID:         utils.MaskIdentifier(m.MemberID),
		Name:             m.Name,
		Phone:            utils.MaskPhone(m.Phone),
		Email:            utils.MaskEmail(m.EmailAddress()),
		ActivationStatus: m.ActivationStatus,
		SMSSentAt:        m.SMSSentAt,
		EmailSentAt:      m.EmailSentAt,
		ImportLedgerID:   m.ImportLedgerID,
		CreatedAt:        m.CreatedAt,
	}
}
