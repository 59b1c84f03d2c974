// Package complaint implements complaint handling. A complaint is mirrored
// under the team member, in the global Complaints collection and under the
// customer; every change is fanned out to the mirrors it concerns.
package complaint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/mirror"
	"github.com/alecgard/liftline/internal/model"
	"github.com/alecgard/liftline/internal/push"
)

const entity = "complaint"

var ErrNotFound = errors.New("complaint not found")

// TokenLookup resolves a customer's push token.
type TokenLookup interface {
	CustomerPushToken(ctx context.Context, email string) (string, error)
}

// Service provides complaint operations.
type Service struct {
	docs     docstore.Store
	coord    *mirror.Coordinator
	reader   *mirror.Reader
	tokens   TokenLookup
	notifier push.Notifier
	now      func() time.Time
	newID    func() string
}

// NewService creates a complaint service. tokens and notifier may be nil.
func NewService(docs docstore.Store, coord *mirror.Coordinator, tokens TokenLookup, notifier push.Notifier) *Service {
	return &Service{
		docs:     docs,
		coord:    coord,
		reader:   mirror.NewReader(docs),
		tokens:   tokens,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// List returns the member's complaints.
func (s *Service) List(ctx context.Context, email string) ([]model.Complaint, error) {
	docs, err := s.docs.Query(ctx, docstore.TeamComplaintsPath(email))
	if err != nil {
		return nil, fmt.Errorf("listing complaints: %w", err)
	}
	out := make([]model.Complaint, 0, len(docs))
	for _, d := range docs {
		c, err := model.DecodeComplaint(d.ID, d.Data)
		if err != nil {
			slog.Warn("skipping undecodable complaint", "path", d.Path, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Get returns the member's copy of a complaint, always read fresh.
func (s *Service) Get(ctx context.Context, email, id string) (model.Complaint, error) {
	doc, err := s.docs.Get(ctx, docstore.TeamComplaintPath(email, id))
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Complaint{}, ErrNotFound
	}
	if err != nil {
		return model.Complaint{}, fmt.Errorf("getting complaint: %w", err)
	}
	return model.DecodeComplaint(id, doc.Data)
}

// Resolve merges the fresh team copy over a client-held copy, keeping the
// client copy when the store cannot be reached.
func (s *Service) Resolve(ctx context.Context, email, id string, local map[string]any) (model.Complaint, error) {
	data, err := s.reader.Load(ctx, docstore.TeamComplaintPath(email, id), local)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Complaint{}, ErrNotFound
	}
	if err != nil {
		return model.Complaint{}, fmt.Errorf("resolving complaint: %w", err)
	}
	return model.DecodeComplaint(id, data)
}

// targets returns the complaint's mirrors. The team copy is addressed by the
// id the member knows it by; the global and customer copies by the resolved
// complaint id. A complaint without a customer email has its customer
// mirror skipped.
func (s *Service) targets(email, id string, c model.Complaint, withCustomer bool) []mirror.Target {
	ts := []mirror.Target{
		mirror.Known(mirror.MirrorTeam, docstore.TeamComplaintPath(email, id)),
		mirror.Known(mirror.MirrorGlobal, docstore.GlobalComplaintPath(c.ID())),
	}
	if !withCustomer {
		return ts
	}
	customer := c.CustomerAddress()
	if customer == "" {
		return append(ts, mirror.Located(mirror.MirrorCustomer, func(context.Context) (string, error) {
			return "", nil
		}))
	}
	return append(ts, mirror.Known(mirror.MirrorCustomer, docstore.CustomerComplaintPath(customer, c.ID())))
}

// AddMessage appends an admin message to all three mirrors and notifies the
// customer.
func (s *Service) AddMessage(ctx context.Context, m *auth.Member, id, text string) (model.Message, mirror.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, mirror.Result{}, model.Invalid("message must not be empty")
	}
	c, err := s.Get(ctx, m.Email, id)
	if err != nil {
		return model.Message{}, mirror.Result{}, err
	}

	msg := model.NewMessage(s.newID(), text, m.Name, model.MessageAdmin, s.now())
	res, err := s.coord.Apply(ctx, entity, s.targets(m.Email, id, c, true), []docstore.Update{
		docstore.ArrayUnion("messages", encode(msg)),
	})
	if err != nil {
		return model.Message{}, res, err
	}
	s.notifyCustomer(ctx, c, "New reply on your complaint", text)
	return msg, res, nil
}

// Accept moves a complaint to Accepted on all three mirrors.
func (s *Service) Accept(ctx context.Context, m *auth.Member, id string) (mirror.Result, error) {
	c, err := s.Get(ctx, m.Email, id)
	if err != nil {
		return mirror.Result{}, err
	}
	if err := c.CurrentStatus().CheckTransition(model.ComplaintAccepted); err != nil {
		return mirror.Result{}, err
	}
	res, err := s.coord.Apply(ctx, entity, s.targets(m.Email, id, c, true), []docstore.Update{
		{Path: "status", Value: string(model.ComplaintAccepted)},
	})
	if err != nil {
		return res, err
	}
	s.notifyCustomer(ctx, c, "Complaint accepted", m.Name+" is handling your complaint")
	return res, nil
}

func (s *Service) notifyCustomer(ctx context.Context, c model.Complaint, title, body string) {
	email := c.CustomerAddress()
	if s.tokens == nil || s.notifier == nil || email == "" {
		return
	}
	token, err := s.tokens.CustomerPushToken(ctx, email)
	if err != nil {
		slog.Warn("customer push token lookup failed", "complaint_id", c.ID(), "error", err)
		return
	}
	push.Send(ctx, s.notifier, push.Notification{
		Token: token,
		Title: title,
		Body:  body,
		Data:  map[string]string{"complaintId": c.ID(), "type": "complaint"},
	})
}

func encode(msg model.Message) map[string]any {
	return map[string]any{
		"id":        string(msg.ID),
		"message":   msg.Message,
		"sender":    msg.Sender,
		"timestamp": string(msg.Timestamp),
		"type":      string(msg.Type),
	}
}
