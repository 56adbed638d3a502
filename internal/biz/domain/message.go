package domain

import "strings"

// AttachmentKind represents the kind of a message attachment
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentVoice    AttachmentKind = "voice"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment is an opaque reference to a file held by the transport
type Attachment struct {
	Kind      AttachmentKind
	FileID    string
	MessageID string // Message carrying the file, for transports that address files per message
	FileName  string
	MimeType  string
	Width     int
}

// InboundMessage represents a message delivered by the transport
type InboundMessage struct {
	ID          string
	ChatID      string
	UserID      string // Empty for channel posts
	Username    string
	FirstName   string
	LastName    string
	IsBot       bool
	Text        string
	ReplyTo     *InboundMessage
	Attachments []Attachment
}

// HasUser reports whether the message has an identifiable sender
func (m *InboundMessage) HasUser() bool {
	return m.UserID != ""
}

// ReplyText returns the text of the replied-to message, if any
func (m *InboundMessage) ReplyText() string {
	if m.ReplyTo == nil {
		return ""
	}
	return m.ReplyTo.Text
}

// DisplayName formats the sender for chat logs and statistics
func (m *InboundMessage) DisplayName() string {
	name := strings.TrimSpace(m.FirstName + " " + m.LastName)
	if name == "" {
		name = m.Username
	}
	if name == "" {
		name = m.UserID
	}
	return strings.NewReplacer("\r", "", "\n", "").Replace(name)
}

// Sender returns the sender as a user record
func (m *InboundMessage) Sender() User {
	return User{
		UserID:    m.UserID,
		Username:  m.Username,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		IsBot:     m.IsBot,
	}
}

// FindAttachment returns the first attachment of any of the given kinds.
// Photos are returned at their largest width.
func (m *InboundMessage) FindAttachment(kinds ...AttachmentKind) (Attachment, bool) {
	var best Attachment
	found := false
	for _, a := range m.Attachments {
		for _, k := range kinds {
			if a.Kind != k {
				continue
			}
			if !found || (a.Kind == AttachmentPhoto && best.Kind == AttachmentPhoto && a.Width > best.Width) {
				best = a
				found = true
			}
		}
	}
	return best, found
}
