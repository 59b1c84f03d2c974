package model

import (
	"strings"
	"time"
)

// MessageType distinguishes team-authored messages from generated ones.
type MessageType string

const (
	MessageAdmin  MessageType = "admin"
	MessageSystem MessageType = "system"
)

// Message is one entry of a complaint's messages array. It carries its own
// id so that appending it twice is a no-op under array-union.
type Message struct {
	ID        FlexString  `json:"id"`
	Message   string      `json:"message"`
	Sender    string      `json:"sender"`
	Timestamp FlexString  `json:"timestamp"`
	Type      MessageType `json:"type"`
}

// NewMessage builds a message stamped at now.
func NewMessage(id, text, sender string, typ MessageType, now time.Time) Message {
	return Message{
		ID:        FlexString(id),
		Message:   text,
		Sender:    sender,
		Timestamp: FlexString(now.UTC().Format(TimestampLayout)),
		Type:      typ,
	}
}

// Complaint is a service ticket mirrored under the team member, the global
// Complaints collection and the customer.
type Complaint struct {
	ComplaintID FlexString `json:"complaintId,omitempty"`
	LegacyID    FlexString `json:"id,omitempty"`
	DocID       FlexString `json:"_id,omitempty"`

	Status   ComplaintStatus `json:"status,omitempty"`
	Messages []Message       `json:"messages,omitempty"`

	SecretServiceCode FlexString `json:"secretServiceCode,omitempty"`
	ServiceCode       FlexString `json:"serviceCode,omitempty"`

	CustomerEmail string `json:"customerEmail,omitempty"`
	UserEmail     string `json:"userEmail,omitempty"`
	Email         string `json:"email,omitempty"`
	CustomerName  string `json:"customerName,omitempty"`
	UserName      string `json:"userName,omitempty"`
	Name          string `json:"name,omitempty"`

	Subject     string `json:"subject,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SiteID      string `json:"siteId,omitempty"`
	SiteAddress string `json:"siteAddress,omitempty"`

	CreatedAt   FlexString `json:"createdAt,omitempty"`
	CompletedAt FlexString `json:"completedAt,omitempty"`
	CompletedBy string     `json:"completedBy,omitempty"`
}

// DecodeComplaint decodes a stored complaint. id is the document id, used
// when the body carries no identifier of its own.
func DecodeComplaint(id string, data map[string]any) (Complaint, error) {
	var c Complaint
	if err := Decode(data, &c); err != nil {
		return Complaint{}, err
	}
	if c.ID() == "" {
		c.DocID = FlexString(id)
	}
	return c, nil
}

// ID resolves complaintId, then id, then _id.
func (c Complaint) ID() string {
	return firstNonEmpty(string(c.ComplaintID), string(c.LegacyID), string(c.DocID))
}

// ExpectedServiceCode resolves secretServiceCode, then serviceCode.
func (c Complaint) ExpectedServiceCode() string {
	return strings.TrimSpace(firstNonEmpty(string(c.SecretServiceCode), string(c.ServiceCode)))
}

// CustomerAddress resolves the email used for the customer-scoped mirror.
func (c Complaint) CustomerAddress() string {
	return strings.TrimSpace(firstNonEmpty(c.CustomerEmail, c.UserEmail, c.Email))
}

// CustomerDisplayName resolves the customer's name for display.
func (c Complaint) CustomerDisplayName() string {
	return firstNonEmpty(c.CustomerName, c.UserName, c.Name, "Unknown")
}

// Headline resolves the short description shown in lists.
func (c Complaint) Headline() string {
	return firstNonEmpty(c.Subject, c.Title, c.Description, "Complaint")
}

// CurrentStatus defaults a missing status to Pending.
func (c Complaint) CurrentStatus() ComplaintStatus {
	if c.Status == "" {
		return ComplaintPending
	}
	return c.Status
}

// MessageList never returns nil.
func (c Complaint) MessageList() []Message {
	if c.Messages == nil {
		return []Message{}
	}
	return c.Messages
}

// ComplaintView is the API representation with every fallback resolved.
type ComplaintView struct {
	ID            string          `json:"complaintId"`
	Status        ComplaintStatus `json:"status"`
	Headline      string          `json:"headline"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	SiteID        string          `json:"siteId,omitempty"`
	SiteAddress   string          `json:"siteAddress,omitempty"`
	Messages      []Message       `json:"messages"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	CompletedAt   string          `json:"completedAt,omitempty"`
}

// View resolves c for clients. The service code is never exposed.
func (c Complaint) View() ComplaintView {
	return ComplaintView{
		ID:            c.ID(),
		Status:        c.CurrentStatus(),
		Headline:      c.Headline(),
		CustomerName:  c.CustomerDisplayName(),
		CustomerEmail: c.CustomerAddress(),
		SiteID:        c.SiteID,
		SiteAddress:   c.SiteAddress,
		Messages:      c.MessageList(),
		CreatedAt:     string(c.CreatedAt),
		CompletedAt:   string(c.CompletedAt),
	}
}
