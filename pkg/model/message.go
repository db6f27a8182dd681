package model

import (
	"strings"
	"time"
)

// DateLayout is the timestamp format the backend uses for created_at and date fields.
const DateLayout = "2006-01-02T15:04:05.000Z"

// FormatDate renders t in the backend layout (UTC).
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate accepts the backend layout and falls back to RFC 3339.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Identity is a chat participant. Handle is the join key; two identities are
// the same person iff their handles match.
type Identity struct {
	Handle    string
	FirstName string
	LastName  string
	Avatar    []byte
}

func (i Identity) Equal(other Identity) bool {
	return i.Handle == other.Handle
}

// DisplayName returns "First Last", falling back to the handle.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.Handle
	}
	return name
}

// Message is one transcript entry. Sender is shared with the session and is
// never modified through a Message.
type Message struct {
	ID     string
	Sender *Identity
	Body   string
	Date   string
}

// SentBy reports whether the message was authored by handle.
func (m Message) SentBy(handle string) bool {
	return m.Sender != nil && m.Sender.Handle == handle
}
