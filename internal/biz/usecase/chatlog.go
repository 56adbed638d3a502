package usecase

import (
	"strings"
	"sync"
)

// DefaultChatLogCapacity is the number of lines kept for summarization
const DefaultChatLogCapacity = 10000

// ChatLog is a bounded in-memory log of chat lines.
// When capacity is exceeded the oldest tenth is dropped. Not persisted.
type ChatLog struct {
	mu       sync.Mutex
	capacity int
	lines    []string
}

// NewChatLog creates a chat log; non-positive capacity uses the default
func NewChatLog(capacity int) *ChatLog {
	if capacity <= 0 {
		capacity = DefaultChatLogCapacity
	}
	return &ChatLog{capacity: capacity}
}

// Append records a line
func (l *ChatLog) Append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, line)
	if len(l.lines) > l.capacity {
		drop := l.capacity / 10
		if drop < 1 {
			drop = 1
		}
		l.lines = append([]string(nil), l.lines[drop:]...)
	}
}

// Last returns up to n most recent lines, oldest first
func (l *ChatLog) Last(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.lines) {
		n = len(l.lines)
	}
	out := make([]string, n)
	copy(out, l.lines[len(l.lines)-n:])
	return out
}

// Len returns the number of stored lines
func (l *ChatLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Transcript joins the last n lines with newlines
func (l *ChatLog) Transcript(n int) string {
	return strings.Join(l.Last(n), "\n")
}
