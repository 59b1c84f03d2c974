// Package sales records sale leads under the team member. Leads have no
// mirrors and are keyed by a deterministic id, so recording the same lead
// twice on one day overwrites it.
package sales

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/model"
)

// LeadInput is a lead as submitted by a member.
type LeadInput struct {
	CustomerName string `json:"customerName" validate:"required,excludes=/"`
	Phone        string `json:"phone" validate:"required,min=5,excludes=/"`
	Email        string `json:"email" validate:"omitempty,email"`
	Address      string `json:"address"`
	LiftType     string `json:"liftType"`
	Floors       int    `json:"floors" validate:"gte=0"`
	Notes        string `json:"notes"`
}

// Service provides sale lead operations.
type Service struct {
	docs docstore.Store
	now  func() time.Time
}

// NewService creates a sales service.
func NewService(docs docstore.Store) *Service {
	return &Service{docs: docs, now: time.Now}
}

// Create records a lead and returns it with its derived id.
func (s *Service) Create(ctx context.Context, m *auth.Member, in LeadInput) (model.SaleLead, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := model.ValidateStruct(in); err != nil {
		return model.SaleLead{}, err
	}

	now := s.now()
	lead := model.SaleLead{
		SaleID:       model.SaleID(in.CustomerName, in.Phone, now),
		CustomerName: in.CustomerName,
		Phone:        model.FlexString(in.Phone),
		Email:        strings.TrimSpace(in.Email),
		Address:      in.Address,
		LiftType:     in.LiftType,
		Floors:       in.Floors,
		Notes:        in.Notes,
		Status:       "New",
		CreatedAt:    now.UTC().Format(model.TimestampLayout),
		CreatedBy:    m.Email,
	}
	fields, err := model.Encode(lead)
	if err != nil {
		return model.SaleLead{}, err
	}
	if err := s.docs.Set(ctx, docstore.TeamSalePath(m.Email, lead.SaleID), fields); err != nil {
		return model.SaleLead{}, fmt.Errorf("recording lead: %w", err)
	}
	return lead, nil
}

// List returns the member's leads, newest first.
func (s *Service) List(ctx context.Context, email string) ([]model.SaleLead, error) {
	docs, err := s.docs.Query(ctx, docstore.TeamSalesPath(email))
	if err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	leads := make([]model.SaleLead, 0, len(docs))
	for _, d := range docs {
		var lead model.SaleLead
		if err := model.Decode(d.Data, &lead); err != nil {
			slog.Warn("skipping undecodable lead", "path", d.Path, "error", err)
			continue
		}
		if lead.SaleID == "" {
			lead.SaleID = d.ID
		}
		leads = append(leads, lead)
	}
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].CreatedAt > leads[j].CreatedAt
	})
	return leads, nil
}
