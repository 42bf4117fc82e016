// Package transcript keeps the running conversation of a call as the
// realtime model streams it.
//
// The model's transcription arrives as fragments that usually restate and
// extend the previous one. [Log] folds such fragments into a single message
// so the conversation reads as one line per turn.
package transcript

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Message is one coalesced conversation entry.
type Message struct {
	Role Role
	Text string
	Time time.Time
}

// Log is the ordered list of coalesced messages. The zero value is ready to
// use and safe for concurrent use.
type Log struct {
	// Now stamps new messages. Nil means [time.Now].
	Now func() time.Time

	mu   sync.Mutex
	msgs []Message
}

// Append folds text into the log. When the last message has the same role
// and text contains that message's text, the message is replaced in place
// (keeping its timestamp); otherwise a new message is appended. It reports
// whether a new message was created.
func (l *Log) Append(role Role, text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.msgs); n > 0 {
		last := &l.msgs[n-1]
		if last.Role == role && strings.Contains(text, last.Text) {
			last.Text = text
			return false
		}
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	l.msgs = append(l.msgs, Message{Role: role, Text: text, Time: now()})
	return true
}

// Messages returns a copy of the log.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.msgs)
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}
