package complaint

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/mirror"
	"github.com/alecgard/liftline/internal/model"
)

// ServiceCodeLength is the number of digits in a service code.
const ServiceCodeLength = 6

var (
	ErrServiceCodeNotConfigured = errors.New("no service code is set for this complaint")
	ErrServiceCodeMismatch      = errors.New("service code does not match")
	ErrCodeNotVerified          = errors.New("service code has not been verified")
	ErrFlowFinished             = errors.New("completion already finished")
)

// Stage is a step of the completion flow.
type Stage string

const (
	StageAwaitingCode   Stage = "awaiting_code"
	StageCodeVerified   Stage = "code_verified"
	StageNotesCollected Stage = "notes_collected"
)

// Flow walks a member through closing a complaint: the customer's service
// code is verified first, then closing notes are recorded.
type Flow struct {
	svc         *Service
	member      *auth.Member
	complaintID string

	mu       sync.Mutex
	stage    Stage
	code     string
	verified string
	pending  []model.Message // notes messages, reused on retry
	notes    string
	touched  time.Time
}

// NewFlow starts a completion flow for complaint id.
func (s *Service) NewFlow(m *auth.Member, id string) *Flow {
	return &Flow{svc: s, member: m, complaintID: id, stage: StageAwaitingCode, touched: s.now()}
}

// Stage returns the current stage.
func (f *Flow) Stage() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// EnterCode replaces the code input with the digits of input, capped at
// six, and returns the accepted value.
func (f *Flow) EnterCode(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' && b.Len() < ServiceCodeLength {
			b.WriteRune(r)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code = b.String()
	f.touched = f.svc.now()
	return f.code
}

// SubmitCode checks the entered code against the canonical team copy of the
// complaint. On a match the complaint is marked Completed on the team and
// global mirrors. On a mismatch nothing is written. Once verified, a
// resubmitted code is compared with the verified one and nothing is written.
func (f *Flow) SubmitCode(ctx context.Context) (mirror.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = f.svc.now()

	switch f.stage {
	case StageCodeVerified:
		if subtle.ConstantTimeCompare([]byte(f.code), []byte(f.verified)) != 1 {
			return mirror.Result{}, ErrServiceCodeMismatch
		}
		return mirror.Result{}, nil
	case StageNotesCollected:
		return mirror.Result{}, ErrFlowFinished
	}
	if len(f.code) != ServiceCodeLength {
		return mirror.Result{}, model.Invalid("service code must be %d digits", ServiceCodeLength)
	}

	c, err := f.svc.Get(ctx, f.member.Email, f.complaintID)
	if err != nil {
		return mirror.Result{}, err
	}
	expected := c.ExpectedServiceCode()
	if expected == "" {
		return mirror.Result{}, ErrServiceCodeNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(f.code), []byte(expected)) != 1 {
		return mirror.Result{}, ErrServiceCodeMismatch
	}
	if err := c.CurrentStatus().CheckTransition(model.ComplaintCompleted); err != nil {
		return mirror.Result{}, err
	}

	res, err := f.svc.coord.Apply(ctx, entity, f.svc.targets(f.member.Email, f.complaintID, c, false), []docstore.Update{
		{Path: "status", Value: string(model.ComplaintCompleted)},
		{Path: "completedAt", Value: f.svc.now().UTC().Format(model.TimestampLayout)},
		{Path: "completedBy", Value: f.member.Email},
	})
	if err != nil {
		return res, err
	}
	f.stage = StageCodeVerified
	f.verified = f.code
	return res, nil
}

// SubmitNotes records the closing notes as an admin message followed by a
// system closure message on all three mirrors. The code must have been
// verified first.
func (f *Flow) SubmitNotes(ctx context.Context, text string) ([]model.Message, mirror.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = f.svc.now()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, mirror.Result{}, model.Invalid("notes must not be empty")
	}
	switch f.stage {
	case StageAwaitingCode:
		return nil, mirror.Result{}, ErrCodeNotVerified
	case StageNotesCollected:
		return nil, mirror.Result{}, ErrFlowFinished
	}

	c, err := f.svc.Get(ctx, f.member.Email, f.complaintID)
	if err != nil {
		return nil, mirror.Result{}, err
	}

	if f.pending == nil || f.notes != text {
		now := f.svc.now()
		f.pending = []model.Message{
			model.NewMessage(f.svc.newID(), text, f.member.Name, model.MessageAdmin, now),
			model.NewMessage(f.svc.newID(), "Complaint closed by "+f.member.Name, "System", model.MessageSystem, now),
		}
		f.notes = text
	}

	res, err := f.svc.coord.Apply(ctx, entity, f.svc.targets(f.member.Email, f.complaintID, c, true), []docstore.Update{
		{Path: "status", Value: string(model.ComplaintCompleted)},
		docstore.ArrayUnion("messages", encode(f.pending[0]), encode(f.pending[1])),
	})
	if err != nil {
		return nil, res, err
	}
	f.stage = StageNotesCollected
	f.svc.notifyCustomer(ctx, c, "Complaint resolved", text)
	return f.pending, res, nil
}

// Cancel discards the code and notes input and returns to the first step.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code = ""
	f.notes = ""
	f.pending = nil
	if f.stage != StageNotesCollected {
		f.stage = StageAwaitingCode
		f.verified = ""
	}
}

// Flows holds one completion flow per session and complaint.
type Flows struct {
	svc   *Service
	mu    sync.Mutex
	flows map[flowKey]*Flow
}

type flowKey struct {
	session     string
	complaintID string
}

// NewFlows creates an empty flow registry.
func NewFlows(svc *Service) *Flows {
	return &Flows{svc: svc, flows: make(map[flowKey]*Flow)}
}

// Get returns the flow for session and complaint id, starting one if needed.
func (r *Flows) Get(session string, m *auth.Member, id string) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := flowKey{session, id}
	f, ok := r.flows[k]
	if !ok {
		f = r.svc.NewFlow(m, id)
		r.flows[k] = f
	}
	return f
}

// Discard drops the flow for session and complaint id.
func (r *Flows) Discard(session, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, flowKey{session, id})
}

// Sweep drops flows idle for longer than maxIdle and returns how many were
// dropped. A flow busy with a submit is waited on without holding the
// registry, so Get is never blocked behind store I/O.
func (r *Flows) Sweep(maxIdle time.Duration) int {
	cutoff := r.svc.now().Add(-maxIdle)

	r.mu.Lock()
	snapshot := make(map[flowKey]*Flow, len(r.flows))
	for k, f := range r.flows {
		snapshot[k] = f
	}
	r.mu.Unlock()

	var idle []flowKey
	for k, f := range snapshot {
		f.mu.Lock()
		if f.touched.Before(cutoff) {
			idle = append(idle, k)
		}
		f.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range idle {
		if r.flows[k] == snapshot[k] {
			delete(r.flows, k)
			n++
		}
	}
	return n
}
