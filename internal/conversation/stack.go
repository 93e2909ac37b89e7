// Package conversation holds the per-dialogue mutable state: the frame
// stack that contextual follow-ups resolve against, the rolling history,
// and any action pending confirmation. The engine threads one State value
// through each turn; nothing here is mutated while an action is running.
package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

// Conservative defaults for the eviction policy: the source system never
// pinned these down, so the stack keeps at most 5 frames and each frame
// survives 3 turns.
const (
	MaxDepth   = 5
	DefaultTTL = 3
)

// ErrUnresolved is returned when a reference cannot be matched against the
// stack.
var ErrUnresolved = errors.New("reference cannot be resolved against the conversation")

// ResultKind tags the semantic shape of a frame's result set.
type ResultKind string

const (
	KindStudentList    ResultKind = "lista_alumnos"
	KindSingleStudent  ResultKind = "alumno"
	KindCountBreakdown ResultKind = "conteo"
	KindArtifact       ResultKind = "archivo"
)

// Frame is one remembered result set.
type Frame struct {
	Kind      ResultKind         `json:"tipo_esperado"`
	Query     string             `json:"query"`
	Rows      []types.StudentRow `json:"rows,omitempty"`
	RowCount  int                `json:"row_count"`
	Files     []string           `json:"files,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	TTL       int                `json:"ttl_turns"`
}

// Ref is a parsed contextual reference.
type Ref struct {
	// Ordinal selects a row, 1-based ("el tercero" = 3). Zero means no
	// ordinal.
	Ordinal int
	// Pronoun marks "ese"/"esa"/"su": valid only against a single-row top
	// frame.
	Pronoun bool
}

// Stack is the bounded LIFO of frames. Single-threaded by contract: it is
// only touched between turns.
type Stack struct {
	frames []Frame // frames[len-1] is the top
}

// Push adds a frame, evicting the oldest past MaxDepth.
func (s *Stack) Push(f Frame) {
	if f.TTL <= 0 {
		f.TTL = DefaultTTL
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	s.frames = append(s.frames, f)
	if len(s.frames) > MaxDepth {
		s.frames = s.frames[len(s.frames)-MaxDepth:]
	}
}

// Peek returns the top frame, or nil when the stack is empty.
func (s *Stack) Peek() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// Depth returns the number of live frames.
func (s *Stack) Depth() int {
	return len(s.frames)
}

// Frames returns the frames newest-first, for prompt assembly.
func (s *Stack) Frames() []Frame {
	out := make([]Frame, 0, len(s.frames))
	for i := len(s.frames) - 1; i >= 0; i-- {
		out = append(out, s.frames[i])
	}
	return out
}

// Tick ages every frame by one turn and drops the expired ones. Called by
// the engine at the end of each turn.
func (s *Stack) Tick() {
	kept := s.frames[:0]
	for _, f := range s.frames {
		f.TTL--
		if f.TTL > 0 {
			kept = append(kept, f)
		}
	}
	s.frames = kept
}

// Clear empties the stack.
func (s *Stack) Clear() {
	s.frames = nil
}

// ResolveReference matches a reference against the top frame and returns
// the frame together with the selected row index (-1 when the reference
// covers the whole frame).
func (s *Stack) ResolveReference(ref Ref) (*Frame, int, error) {
	top := s.Peek()
	if top == nil {
		return nil, 0, fmt.Errorf("%w: empty stack", ErrUnresolved)
	}

	switch {
	case ref.Ordinal > 0:
		if top.Kind != KindStudentList && top.Kind != KindSingleStudent {
			return nil, 0, fmt.Errorf("%w: top result is not a student list", ErrUnresolved)
		}
		idx := ref.Ordinal - 1
		if idx >= len(top.Rows) {
			return nil, 0, fmt.Errorf("%w: ordinal %d out of range (only %d rows)", ErrUnresolved, ref.Ordinal, len(top.Rows))
		}
		return top, idx, nil
	case ref.Pronoun:
		if len(top.Rows) != 1 {
			return nil, 0, fmt.Errorf("%w: pronoun needs a single-item result, top has %d", ErrUnresolved, len(top.Rows))
		}
		return top, 0, nil
	default:
		return top, -1, nil
	}
}
