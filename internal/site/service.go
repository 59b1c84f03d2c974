// Package site implements the operations on installation sites. Every
// mutation is written to the member's team copy and to the global copy
// found by natural key.
package site

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

const entity = "site"

var (
	ErrNotFound  = errors.New("site not found")
	ErrForbidden = errors.New("not allowed to record quality checks")
)

// TokenLookup resolves a customer's push token.
type TokenLookup interface {
	CustomerPushToken(ctx context.Context, email string) (string, error)
}

// Service provides site operations.
type Service struct {
	docs     docstore.Store
	coord    *mirror.Coordinator
	locator  *mirror.Locator
	reader   *mirror.Reader
	tokens   TokenLookup
	notifier push.Notifier
	now      func() time.Time
	newID    func() string
}

// NewService creates a site service. tokens and notifier may be nil, which
// disables owner notifications.
func NewService(docs docstore.Store, coord *mirror.Coordinator, tokens TokenLookup, notifier push.Notifier) *Service {
	return &Service{
		docs:     docs,
		coord:    coord,
		locator:  mirror.NewLocator(docs),
		reader:   mirror.NewReader(docs),
		tokens:   tokens,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// List returns every site assigned to the member.
func (s *Service) List(ctx context.Context, email string) ([]model.Site, error) {
	docs, err := s.docs.Query(ctx, docstore.TeamSitesPath(email))
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	sites := make([]model.Site, 0, len(docs))
	for _, d := range docs {
		site, err := model.DecodeSite(d.ID, d.Data)
		if err != nil {
			slog.Warn("skipping undecodable site", "path", d.Path, "error", err)
			continue
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// Get returns the member's copy of a site.
func (s *Service) Get(ctx context.Context, email, siteID string) (model.Site, error) {
	doc, err := s.docs.Get(ctx, docstore.TeamSitePath(email, siteID))
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Site{}, ErrNotFound
	}
	if err != nil {
		return model.Site{}, fmt.Errorf("getting site: %w", err)
	}
	return model.DecodeSite(siteID, doc.Data)
}

// Resolve merges the fresh team copy over a client-held copy. When the store
// is unreachable the client copy is returned as is.
func (s *Service) Resolve(ctx context.Context, email, siteID string, local map[string]any) (model.Site, error) {
	data, err := s.reader.Load(ctx, docstore.TeamSitePath(email, siteID), local)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Site{}, ErrNotFound
	}
	if err != nil {
		return model.Site{}, fmt.Errorf("resolving site: %w", err)
	}
	return model.DecodeSite(siteID, data)
}

// targets returns the team and global mirrors of site.
func (s *Service) targets(email string, site model.Site) []mirror.Target {
	return []mirror.Target{
		mirror.Known(mirror.MirrorTeam, docstore.TeamSitePath(email, site.SiteID)),
		s.locator.GlobalSite(site),
	}
}

// SendChat appends a team message to the site chat on both mirrors and
// notifies the site owner.
func (s *Service) SendChat(ctx context.Context, m *auth.Member, siteID, text string) (model.ChatMessage, mirror.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, mirror.Result{}, model.Invalid("message must not be empty")
	}
	site, err := s.Get(ctx, m.Email, siteID)
	if err != nil {
		return model.ChatMessage{}, mirror.Result{}, err
	}

	msg := model.NewChatMessage(s.newID(), m.Name, text, m.Email, model.SenderTeam, s.now())
	value, err := model.Encode(msg)
	if err != nil {
		return model.ChatMessage{}, mirror.Result{}, err
	}
	res, err := s.coord.Apply(ctx, entity, s.targets(m.Email, site), []docstore.Update{
		{Path: "chats." + string(msg.ID), Value: value},
	})
	if err != nil {
		return model.ChatMessage{}, res, err
	}

	s.notifyOwner(ctx, site, m.Name, text)
	return msg, res, nil
}

func (s *Service) notifyOwner(ctx context.Context, site model.Site, from, text string) {
	if s.tokens == nil || s.notifier == nil || site.OwnerEmail == "" {
		return
	}
	token, err := s.tokens.CustomerPushToken(ctx, site.OwnerEmail)
	if err != nil {
		slog.Warn("owner push token lookup failed", "site_id", site.SiteID, "error", err)
		return
	}
	push.Send(ctx, s.notifier, push.Notification{
		Token: token,
		Title: "New message from " + from,
		Body:  text,
		Data:  map[string]string{"siteId": site.SiteID, "type": "chat"},
	})
}

// WatchChats streams the site's full chat list, ordered by timestamp, on
// every change. The global copy is watched when it can be located, since
// owner messages land there; otherwise the team copy. The channel closes
// when ctx is done.
func (s *Service) WatchChats(ctx context.Context, email, siteID string) (<-chan []model.ChatMessage, error) {
	site, err := s.Get(ctx, email, siteID)
	if err != nil {
		return nil, err
	}
	path := docstore.TeamSitePath(email, siteID)
	if id, err := s.locator.Locate(ctx, docstore.GlobalSitesPath, mirror.SiteKey(site)); err != nil {
		slog.Warn("global site lookup failed, watching team copy", "site_id", siteID, "error", err)
	} else if id != "" {
		path = docstore.GlobalSitePath(id)
	}

	snaps, err := s.docs.Watch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("watching site chats: %w", err)
	}

	out := make(chan []model.ChatMessage, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			if snap.Err != nil {
				slog.Debug("chat snapshot error", "path", path, "error", snap.Err)
				continue
			}
			site, err := model.DecodeSite(siteID, snap.Doc.Data)
			if err != nil {
				slog.Warn("undecodable chat snapshot", "path", path, "error", err)
				continue
			}
			select {
			case out <- site.SortedChats():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// UpdateChecklist sets flags in a checklist section and rewrites the
// section's derived status on both mirrors. Flags not named are unchanged.
func (s *Service) UpdateChecklist(ctx context.Context, email, siteID, section string, flags map[string]bool) (model.Checklist, mirror.Result, error) {
	if !model.IsChecklistSection(section) {
		return model.Checklist{}, mirror.Result{}, model.Invalid("unknown checklist section %q", section)
	}
	if len(flags) == 0 {
		return model.Checklist{}, mirror.Result{}, model.Invalid("no checklist flags given")
	}
	for name := range flags {
		if err := validKey("flag", name); err != nil {
			return model.Checklist{}, mirror.Result{}, err
		}
		if name == "status" {
			return model.Checklist{}, mirror.Result{}, model.Invalid("status is derived and cannot be set")
		}
	}

	site, err := s.Get(ctx, email, siteID)
	if err != nil {
		return model.Checklist{}, mirror.Result{}, err
	}
	current, _ := site.Section(section)
	merged := make(map[string]bool, len(current.Flags)+len(flags))
	for k, v := range current.Flags {
		merged[k] = v
	}
	updates := make([]docstore.Update, 0, len(flags)+1)
	for k, v := range flags {
		merged[k] = v
		updates = append(updates, docstore.Update{Path: section + "." + k, Value: v})
	}
	cl := model.Checklist{Flags: merged, Status: model.DeriveChecklistStatus(merged)}
	updates = append(updates, docstore.Update{Path: section + ".status", Value: string(cl.Status)})

	res, err := s.coord.Apply(ctx, entity, s.targets(email, site), updates)
	if err != nil {
		return model.Checklist{}, res, err
	}
	return cl, res, nil
}

// ScheduleTask sets the date of an installation task on both mirrors.
func (s *Service) ScheduleTask(ctx context.Context, email, siteID, task, date string) (mirror.Result, error) {
	if err := validKey("task", task); err != nil {
		return mirror.Result{}, err
	}
	if model.IsQualityCheckKey(task) {
		return mirror.Result{}, model.Invalid("%q is a quality check, not a task", task)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return mirror.Result{}, model.Invalid("date must be YYYY-MM-DD")
	}
	site, err := s.Get(ctx, email, siteID)
	if err != nil {
		return mirror.Result{}, err
	}
	return s.coord.Apply(ctx, entity, s.targets(email, site), []docstore.Update{
		{Path: "installationTasks." + task, Value: date},
	})
}

// SetQualityCheck records a Passed or Failed result. Only supervisors,
// quality inspectors and admins may record results, and a recorded result
// can no longer change.
func (s *Service) SetQualityCheck(ctx context.Context, m *auth.Member, siteID, check string, result model.QualityResult) (mirror.Result, error) {
	if !m.CanEditQualityChecks() {
		return mirror.Result{}, ErrForbidden
	}
	if err := validKey("quality check", check); err != nil {
		return mirror.Result{}, err
	}
	if !model.IsQualityCheckKey(check) {
		return mirror.Result{}, model.Invalid("%q is not a quality check", check)
	}
	site, err := s.Get(ctx, m.Email, siteID)
	if err != nil {
		return mirror.Result{}, err
	}
	if err := site.QualityCheck(check).CheckTransition(result); err != nil {
		return mirror.Result{}, err
	}
	return s.coord.Apply(ctx, entity, s.targets(m.Email, site), []docstore.Update{
		{Path: "installationTasks." + check, Value: string(result)},
	})
}

// AdvanceMaterial moves the material at index one step along its lattice
// and writes the whole materials list to both mirrors.
func (s *Service) AdvanceMaterial(ctx context.Context, email, siteID string, index int, status model.MaterialStatus) ([]model.Material, mirror.Result, error) {
	site, err := s.Get(ctx, email, siteID)
	if err != nil {
		return nil, mirror.Result{}, err
	}
	if index < 0 || index >= len(site.Materials) {
		return nil, mirror.Result{}, model.Invalid("material index %d out of range", index)
	}
	if err := site.Materials[index].Status.CheckTransition(status); err != nil {
		return nil, mirror.Result{}, err
	}

	materials := make([]model.Material, len(site.Materials))
	copy(materials, site.Materials)
	materials[index].Status = status

	list := make([]any, len(materials))
	for i, mat := range materials {
		list[i] = map[string]any{"name": mat.Name, "status": string(mat.Status)}
	}
	res, err := s.coord.Apply(ctx, entity, s.targets(email, site), []docstore.Update{
		{Path: "materialsList", Value: list},
	})
	if err != nil {
		return nil, res, err
	}
	return materials, res, nil
}

// TodaysTasks returns the site's tasks dated today. today is the caller's
// local date; when empty the server's local date is used.
func (s *Service) TodaysTasks(ctx context.Context, email, siteID, today string) ([]model.Task, error) {
	if today == "" {
		today = model.LocalDate(s.now())
	} else if _, err := time.Parse("2006-01-02", today); err != nil {
		return nil, model.Invalid("date must be YYYY-MM-DD")
	}
	site, err := s.Get(ctx, email, siteID)
	if err != nil {
		return nil, err
	}
	return site.TodaysTasks(today), nil
}

// validKey rejects names that cannot be used as a single field path segment.
func validKey(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return model.Invalid("%s name must not be empty", kind)
	}
	if strings.ContainsAny(name, ".`") {
		return model.Invalid("%s name must not contain '.'", kind)
	}
	return nil
}
