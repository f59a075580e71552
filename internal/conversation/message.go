// Package conversation owns the chat transcript and the controller that turns
// user input into exactly one bot reply per utterance.
package conversation

import (
	"time"

	"github.com/kalambet/querybot/internal/normalize"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Kind distinguishes how a message should be presented.
type Kind string

const (
	KindNormal Kind = "normal"
	KindHelp   Kind = "help"
	KindError  Kind = "error"
	KindFile   Kind = "file"
)

// Attachment describes a file the user shared.
type Attachment struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	Pages       int    `json:"pages,omitempty"`
}

// Message is one transcript entry. ID and Timestamp are assigned by the Log
// when the message is appended.
type Message struct {
	ID        uint64    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`

	// SourceQuery is the utterance a bot reply answers.
	SourceQuery string `json:"sourceQuery,omitempty"`
	// RawPayload is the service result before normalization.
	RawPayload normalize.Value `json:"rawPayload"`
	// RemoteID and User are copied from a wrapped service result.
	RemoteID string          `json:"remoteId,omitempty"`
	User     normalize.Value `json:"user"`

	// Err is the failure behind a KindError reply. It is never shown.
	Err        error       `json:"-"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Failed reports whether m is an error reply.
func (m Message) Failed() bool { return m.Kind == KindError }
