package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

func listFrame(names ...string) Frame {
	rows := make([]types.StudentRow, len(names))
	for i, n := range names {
		rows[i] = types.StudentRow{Student: types.Student{ID: n, Name: n}}
	}
	return Frame{Kind: KindStudentList, Rows: rows, RowCount: len(rows)}
}

func TestPushEvictsPastMaxDepth(t *testing.T) {
	var s Stack
	for i := 0; i < MaxDepth+2; i++ {
		s.Push(listFrame("a"))
	}
	assert.Equal(t, MaxDepth, s.Depth())
}

func TestPeekEmpty(t *testing.T) {
	var s Stack
	assert.Nil(t, s.Peek())
}

func TestTickExpiresFrames(t *testing.T) {
	var s Stack
	s.Push(listFrame("a"))
	for i := 0; i < DefaultTTL; i++ {
		require.Equal(t, 1, s.Depth())
		s.Tick()
	}
	assert.Equal(t, 0, s.Depth())
}

func TestResolveOrdinal(t *testing.T) {
	var s Stack
	s.Push(listFrame("uno", "dos", "tres"))

	f, idx, err := s.ResolveReference(Ref{Ordinal: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "tres", f.Rows[idx].Name)

	_, _, err = s.ResolveReference(Ref{Ordinal: 4})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestResolveOrdinalWrongKind(t *testing.T) {
	var s Stack
	s.Push(Frame{Kind: KindCountBreakdown, RowCount: 1})
	_, _, err := s.ResolveReference(Ref{Ordinal: 1})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestResolvePronounNeedsSingleRow(t *testing.T) {
	var s Stack
	s.Push(listFrame("uno", "dos"))
	_, _, err := s.ResolveReference(Ref{Pronoun: true})
	require.ErrorIs(t, err, ErrUnresolved)

	s.Push(listFrame("solo"))
	f, idx, err := s.ResolveReference(Ref{Pronoun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "solo", f.Rows[0].Name)
}

func TestResolveBareReferenceReturnsWholeFrame(t *testing.T) {
	var s Stack
	s.Push(listFrame("uno", "dos"))
	f, idx, err := s.ResolveReference(Ref{})
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
	assert.Equal(t, 2, f.RowCount)
}

func TestResolveEmptyStack(t *testing.T) {
	var s Stack
	_, _, err := s.ResolveReference(Ref{Ordinal: 1})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestFramesNewestFirst(t *testing.T) {
	var s Stack
	s.Push(Frame{Kind: KindStudentList, Query: "primera"})
	s.Push(Frame{Kind: KindSingleStudent, Query: "segunda"})
	frames := s.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "segunda", frames[0].Query)
}

func TestHistoryRollsOver(t *testing.T) {
	var h History
	for i := 0; i < historyLimit+10; i++ {
		h.Record("u", "a", true)
	}
	assert.Equal(t, historyLimit, h.Len())
}

func TestHistoryRecent(t *testing.T) {
	var h History
	h.Record("hola", "buenos días", true)
	h.Record("busca x", "no encontré nada", false)
	recent := h.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "busca x", recent[0].User)
	assert.False(t, recent[0].Success)
}

func TestHistoryExport(t *testing.T) {
	var h History
	h.Record("hola", "buenos días", true)
	out := h.Export()
	assert.Contains(t, out, "Usuario: hola")
	assert.Contains(t, out, "Asistente: buenos días")
}

func TestPendingExpiresAfterTTL(t *testing.T) {
	var s State
	s.SetPending(&PendingAction{Kind: PendingGenerate, StudentName: "ANA RUIZ"})
	require.NotNil(t, s.Pending)
	assert.Equal(t, PendingTTL, s.Pending.TTL)
	assert.False(t, s.Pending.AskedAt.IsZero())

	for i := 0; i < PendingTTL-1; i++ {
		s.TickPending()
		require.NotNil(t, s.Pending)
	}
	s.TickPending()
	assert.Nil(t, s.Pending)
}

func TestTickPendingNilSafe(t *testing.T) {
	var s State
	s.TickPending()
	assert.Nil(t, s.Pending)
}
