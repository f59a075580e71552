package conversation

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Append once the log has been closed.
var ErrClosed = errors.New("conversation log closed")

// Log is an ordered, append-only transcript. It is safe for concurrent use.
// Readers get copies; entries never change after Append.
type Log struct {
	mu     sync.RWMutex
	msgs   []Message
	nextID uint64
	closed bool
	now    func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{nextID: 1, now: time.Now}
}

// Append assigns the next ID, stamps the message if it has no timestamp and
// stores it. The stored copy is returned.
func (l *Log) Append(m Message) (Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Message{}, ErrClosed
	}
	m.ID = l.nextID
	l.nextID++
	if m.Timestamp.IsZero() {
		m.Timestamp = l.now()
	}
	l.msgs = append(l.msgs, m)
	return m, nil
}

// Messages returns a snapshot of the transcript in append order.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Since returns messages with an ID greater than id.
func (l *Log) Since(id uint64) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// IDs are dense from 1, so the slice index is id.
	if id >= uint64(len(l.msgs)) {
		return []Message{}
	}
	out := make([]Message, len(l.msgs)-int(id))
	copy(out, l.msgs[id:])
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

// Last returns the most recent message.
func (l *Log) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.msgs) == 0 {
		return Message{}, false
	}
	return l.msgs[len(l.msgs)-1], true
}

// Close rejects further appends. Existing messages stay readable.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Closed reports whether Close has been called.
func (l *Log) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}
