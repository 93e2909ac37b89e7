package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

// historyLimit bounds the rolling dialogue log.
const historyLimit = 50

// HistoryEntry is one recorded exchange. Failures are recorded too.
type HistoryEntry struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the rolling dialogue log.
type History struct {
	entries []HistoryEntry
}

// Record appends an exchange, dropping the oldest past the limit.
func (h *History) Record(user, assistant string, success bool) {
	h.entries = append(h.entries, HistoryEntry{
		User:      user,
		Assistant: assistant,
		Success:   success,
		Timestamp: time.Now(),
	})
	if len(h.entries) > historyLimit {
		h.entries = h.entries[len(h.entries)-historyLimit:]
	}
}

// Recent returns the last n entries, oldest first.
func (h *History) Recent(n int) []HistoryEntry {
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]HistoryEntry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Len returns the number of recorded exchanges.
func (h *History) Len() int {
	return len(h.entries)
}

// Clear drops all entries.
func (h *History) Clear() {
	h.entries = nil
}

// Export renders the full log as plain text for /export.
func (h *History) Export() string {
	var b strings.Builder
	for _, e := range h.entries {
		mark := "✓"
		if !e.Success {
			mark = "✗"
		}
		fmt.Fprintf(&b, "[%s] %s\nUsuario: %s\nAsistente: %s\n\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), mark, e.User, e.Assistant)
	}
	return b.String()
}

// PendingKind names the action a confirmation suspends.
type PendingKind string

const (
	PendingGenerate  PendingKind = "generar"
	PendingTransform PendingKind = "transformar"
)

// PendingTTL bounds how many turn-ends an unanswered confirmation survives.
// A stale "sí" several turns later must not fire a forgotten action.
const PendingTTL = 2

// PendingAction is a suspended operation waiting for a yes/no. The next
// turn consumes it; there is no suspension primitive underneath.
type PendingAction struct {
	Kind        PendingKind
	Certificate types.Kind
	StudentID   string
	StudentName string
	SourcePDF   string
	AskedAt     time.Time
	TTL         int
}

// State is the whole cross-turn conversation value. The engine owns one
// instance; worker isolation copies it in at turn start and back at turn
// end, so everything here must stay plain data.
type State struct {
	Stack   Stack
	History History
	Pending *PendingAction
}

// SetPending suspends an action awaiting confirmation, stamping its TTL.
func (s *State) SetPending(p *PendingAction) {
	if p != nil {
		if p.TTL <= 0 {
			p.TTL = PendingTTL
		}
		if p.AskedAt.IsZero() {
			p.AskedAt = time.Now()
		}
	}
	s.Pending = p
}

// TickPending ages the pending confirmation and drops it once stale. Called
// by the engine at the end of each turn, alongside Stack.Tick.
func (s *State) TickPending() {
	if s.Pending == nil {
		return
	}
	s.Pending.TTL--
	if s.Pending.TTL <= 0 {
		s.Pending = nil
	}
}
