package domain

import "time"

type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

type MessageFormat string

const (
	FormatText      MessageFormat = "text"
	FormatHTML      MessageFormat = "html"
	FormatMultipart MessageFormat = "multipart"
)

// Message is a stored email. ID is the local row id; ExternalMessageID is the
// provider's id and is unique per account.
type Message struct {
	ID                int64
	MessageUUID       string
	AccountID         int64
	ExternalMessageID string
	ThreadID          string
	SenderEmail       string
	SenderName        string
	Recipients        []Address
	CC                []Address
	BCC               []Address
	Subject           string
	Snippet           string
	BodyPlain         string
	BodyHTML          string
	DateSent          time.Time
	DateReceived      *time.Time
	IsRead            bool
	IsImportant       bool
	HasAttachments    bool
	AttachmentCount   int
	Labels            []string
	FolderName        string
	SizeBytes         int64
	MessageFormat     MessageFormat
	IsProcessed       bool
	ProcessingError   string
	CreatedAt         time.Time
}

func (m *Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Sender returns the sender as an Address.
func (m *Message) Sender() Address {
	return Address{Name: m.SenderName, Email: m.SenderEmail}
}

// OutgoingMessage is a message handed to a provider for delivery.
type OutgoingMessage struct {
	From      Address
	To        []Address
	CC        []Address
	Subject   string
	Body      string
	InReplyTo string
	ThreadID  string
}
