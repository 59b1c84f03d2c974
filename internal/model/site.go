package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Checklist sections stored on a site document.
const (
	SectionCivilWork         = "civilWork"
	SectionElectricalWork    = "electricalWork"
	SectionStairsWork        = "stairsWork"
	SectionLiftSquareFolding = "liftSquareFolding"
)

// IsChecklistSection reports whether name is one of the four sections.
func IsChecklistSection(name string) bool {
	switch name {
	case SectionCivilWork, SectionElectricalWork, SectionStairsWork, SectionLiftSquareFolding:
		return true
	}
	return false
}

// Checklist is a map of task flags plus a status. It is stored flat:
// {"pitReady": true, "status": "Incomplete"}.
type Checklist struct {
	Flags  map[string]bool
	Status ChecklistStatus
}

func (c Checklist) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Flags)+1)
	for k, v := range c.Flags {
		out[k] = v
	}
	status := c.Status
	if status == "" {
		status = ChecklistIncomplete
	}
	out["status"] = status
	return json.Marshal(out)
}

func (c *Checklist) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.Flags = map[string]bool{}
	c.Status = ChecklistIncomplete
	for k, v := range raw {
		if k == "status" {
			if s, ok := v.(string); ok && s != "" {
				c.Status = ChecklistStatus(s)
			}
			continue
		}
		if b, ok := v.(bool); ok {
			c.Flags[k] = b
		}
	}
	return nil
}

// Material is one entry of a site's ordered materials list.
type Material struct {
	Name   string         `json:"name"`
	Status MaterialStatus `json:"status"`
}

// SenderType tells who wrote a chat message.
type SenderType string

const (
	SenderTeam  SenderType = "team"
	SenderOwner SenderType = "owner"
)

// ChatMessage is one entry of a site's chats map, keyed by its id.
type ChatMessage struct {
	ID         FlexString `json:"id"`
	UserName   string     `json:"userName"`
	Message    string     `json:"message"`
	Timestamp  FlexString `json:"timestamp"`
	SenderID   FlexString `json:"senderId"`
	SenderType SenderType `json:"senderType"`
}

// Site is an installation project. It lives under the assigned team member
// and, with an opaque id, in the global sites collection.
type Site struct {
	SiteID      string     `json:"siteId"`
	LiftID      string     `json:"liftId,omitempty"`
	SiteName    string     `json:"siteName,omitempty"`
	SiteAddress string     `json:"siteAddress,omitempty"`
	OwnerEmail  string     `json:"ownerEmail,omitempty"`
	OwnerName   string     `json:"ownerName,omitempty"`
	OwnerPhone  FlexString `json:"ownerPhone,omitempty"`

	CivilWork         Checklist `json:"civilWork"`
	ElectricalWork    Checklist `json:"electricalWork"`
	StairsWork        Checklist `json:"stairsWork"`
	LiftSquareFolding Checklist `json:"liftSquareFolding"`

	// Tasks maps task name to scheduled date (YYYY-MM-DD).
	Tasks map[string]string `json:"-"`
	// QualityChecks maps check name to its result.
	QualityChecks map[string]QualityResult `json:"-"`

	Materials []Material             `json:"materialsList,omitempty"`
	Chats     map[string]ChatMessage `json:"chats,omitempty"`

	Documents map[string]string `json:"documents,omitempty"`
	Photos    []string          `json:"photos,omitempty"`
}

type siteAlias Site

type siteWire struct {
	siteAlias
	InstallationTasks map[string]FlexString `json:"installationTasks,omitempty"`
}

// IsQualityCheckKey reports whether an installationTasks key names a quality
// check rather than a scheduled task.
func IsQualityCheckKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "quality") || strings.Contains(k, "check")
}

func (s Site) MarshalJSON() ([]byte, error) {
	w := siteWire{siteAlias: siteAlias(s)}
	w.InstallationTasks = make(map[string]FlexString, len(s.Tasks)+len(s.QualityChecks))
	for k, v := range s.Tasks {
		w.InstallationTasks[k] = FlexString(v)
	}
	for k, v := range s.QualityChecks {
		w.InstallationTasks[k] = FlexString(v)
	}
	return json.Marshal(w)
}

func (s *Site) UnmarshalJSON(b []byte) error {
	var w siteWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Site(w.siteAlias)
	s.Tasks = map[string]string{}
	s.QualityChecks = map[string]QualityResult{}
	for k, v := range w.InstallationTasks {
		if IsQualityCheckKey(k) {
			s.QualityChecks[k] = QualityResult(v)
		} else {
			s.Tasks[k] = string(v)
		}
	}
	return nil
}

// DecodeSite decodes a stored site. id is the document id, used when the
// body has no siteId.
func DecodeSite(id string, data map[string]any) (Site, error) {
	var s Site
	if err := Decode(data, &s); err != nil {
		return Site{}, err
	}
	if s.SiteID == "" {
		s.SiteID = id
	}
	return s, nil
}

// DisplayName resolves the name shown for a site.
func (s Site) DisplayName() string {
	return firstNonEmpty(s.SiteName, s.SiteAddress, s.LiftID, s.SiteID, "Unknown site")
}

// Section returns the checklist stored under name.
func (s Site) Section(name string) (Checklist, bool) {
	switch name {
	case SectionCivilWork:
		return s.CivilWork, true
	case SectionElectricalWork:
		return s.ElectricalWork, true
	case SectionStairsWork:
		return s.StairsWork, true
	case SectionLiftSquareFolding:
		return s.LiftSquareFolding, true
	}
	return Checklist{}, false
}

// QualityCheck returns the current result for name, Pending when unset.
func (s Site) QualityCheck(name string) QualityResult {
	if r, ok := s.QualityChecks[name]; ok && r != "" {
		return r
	}
	return QualityPending
}

// SortedChats returns the chat messages ordered by timestamp, then id.
func (s Site) SortedChats() []ChatMessage {
	return SortChats(s.Chats)
}

// SortChats flattens a chats map into timestamp order.
func SortChats(chats map[string]ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(chats))
	for id, m := range chats {
		if m.ID == "" {
			m.ID = FlexString(id)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NewChatMessage builds a chat message stamped at now.
func NewChatMessage(id, userName, text, senderID string, typ SenderType, now time.Time) ChatMessage {
	return ChatMessage{
		ID:         FlexString(id),
		UserName:   userName,
		Message:    text,
		Timestamp:  FlexString(now.UTC().Format(TimestampLayout)),
		SenderID:   FlexString(senderID),
		SenderType: typ,
	}
}

// Task is a scheduled installation task.
type Task struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// LocalDate formats t as YYYY-MM-DD in t's own location.
func LocalDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// IsTodaysTask is exact string equality between the task date and the
// caller's local date. No timezone normalisation is performed.
func IsTodaysTask(date, today string) bool {
	return date != "" && date == today
}

// TodaysTasks returns the site's tasks dated today, ordered by name.
func (s Site) TodaysTasks(today string) []Task {
	var out []Task
	for name, date := range s.Tasks {
		if IsTodaysTask(date, today) {
			out = append(out, Task{Name: name, Date: date})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if out == nil {
		out = []Task{}
	}
	return out
}
