package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/conversation"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/llm"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/store"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEngine(t *testing.T, responses ...string) (*Engine, *store.Store, *config.Config) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "alumnos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.SchoolInfo = config.SchoolInfo{Name: "ESCUELA PRIMARIA TEST", CCT: "10DPR0001X", Director: "DIR"}
	cfg.Paths.Output = t.TempDir()
	cfg.Paths.PhotosDir = t.TempDir()
	cfg.Paths.Templates = ""

	eng := New(st, llm.NewScriptedClient(responses...), func() *config.Config { return cfg }, zap.NewNop())
	return eng, st, cfg
}

func seedStudent(t *testing.T, st *store.Store, name, curp string, grade int, group string, shift types.Shift) string {
	t.Helper()
	ctx := context.Background()
	stu := &types.Student{Name: name, CURP: curp}
	require.NoError(t, st.InsertStudent(ctx, stu))
	require.NoError(t, st.UpsertEnrollment(ctx, &types.Enrollment{
		StudentID:  stu.ID,
		SchoolYear: "2025-2026",
		Grade:      grade,
		Group:      group,
		Shift:      shift,
	}))
	return stu.ID
}

func TestGreetingTurn(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "hola"})
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Text, "Hola")
	assert.Equal(t, 0, eng.state.Stack.Depth(), "greetings must not push frames")
	assert.Equal(t, 1, eng.state.History.Len())
}

func TestSearchThenOrdinalDetails(t *testing.T) {
	eng, st, _ := newTestEngine(t,
		`{"intencion": "consulta_directa", "entidades": {"grado": 3}}`,
		`{"intencion": "continuacion", "entidades": {"ordinal": 2}}`,
	)
	seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)
	seedStudent(t, st, "JUAN PÉREZ", "PEGJ150101HDGRRN01", 3, "B", types.ShiftMorning)

	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "alumnos de tercero"})
	require.True(t, resp.Success)
	assert.Equal(t, ActionShowData, resp.Action)
	assert.Contains(t, resp.Text, "2 alumno(s)")
	assert.Equal(t, 1, eng.state.Stack.Depth())

	resp = eng.ProcessTurn(context.Background(), TurnInput{Message: "el segundo"})
	require.True(t, resp.Success)
	assert.Contains(t, resp.Text, "JUAN PÉREZ")
	assert.Contains(t, resp.Text, "PEGJ150101HDGRRN01")
}

func TestSearchThenGenerateForPronoun(t *testing.T) {
	eng, st, _ := newTestEngine(t,
		`{"intencion": "consulta_directa", "entidades": {"nombre": "ana"}}`,
		`{"intencion": "generar_constancia", "entidades": {"pronombre": true, "tipo_constancia": "estudios"}}`,
	)
	seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)

	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "busca a ana"})
	require.True(t, resp.Success)

	resp = eng.ProcessTurn(context.Background(), TurnInput{Message: "genérale una constancia de estudios"})
	require.True(t, resp.Success, resp.Text)
	assert.Equal(t, ActionGeneratePDF, resp.Action)
	require.Len(t, resp.Files, 1)
	assert.Contains(t, resp.Text, "ANA RUIZ")

	certs, err := st.Certificates(context.Background(), eng.state.Stack.Frames()[1].Rows[0].ID)
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestCountGroupedByShift(t *testing.T) {
	eng, st, _ := newTestEngine(t,
		`{"intencion": "consulta_directa", "entidades": {"conteo": true, "agrupar_por": "turno"}}`,
	)
	seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)
	seedStudent(t, st, "JUAN PÉREZ", "", 3, "B", types.ShiftMorning)
	seedStudent(t, st, "PEDRO LUNA", "", 5, "A", types.ShiftAfternoon)

	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "cuántos alumnos por turno"})
	require.True(t, resp.Success)
	assert.Contains(t, resp.Text, "MATUTINO: 2")
	assert.Contains(t, resp.Text, "VESPERTINO: 1")
}

func TestAmbiguousNameThenOrdinal(t *testing.T) {
	eng, st, _ := newTestEngine(t,
		`{"intencion": "consulta_directa", "entidades": {"detalles": true, "nombre": "juan"}}`,
		`{"intencion": "continuacion", "entidades": {"ordinal": 1}}`,
	)
	seedStudent(t, st, "JUAN PÉREZ", "", 3, "A", types.ShiftMorning)
	seedStudent(t, st, "JUAN PABLO LUNA", "", 4, "B", types.ShiftMorning)

	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "detalles de juan"})
	require.True(t, resp.Success)
	assert.Contains(t, resp.Text, "varios alumnos")

	resp = eng.ProcessTurn(context.Background(), TurnInput{Message: "el primero"})
	require.True(t, resp.Success)
	assert.Contains(t, resp.Text, "JUAN PABLO LUNA")
}

func TestTransformWithoutLoadedPDF(t *testing.T) {
	eng, _, _ := newTestEngine(t,
		`{"intencion": "transformar_pdf", "entidades": {"tipo_constancia": "traslado"}}`,
	)
	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "conviértelo a traslado"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Text, "PDF")
	assert.Equal(t, 0, eng.state.Stack.Depth(), "failures must not push frames")
	assert.Equal(t, 1, eng.state.History.Len(), "failures are recorded in history")
}

func TestConfirmBeforeGenerateFlow(t *testing.T) {
	eng, st, cfg := newTestEngine(t,
		`{"intencion": "generar_constancia", "entidades": {"nombre": "ana", "tipo_constancia": "estudios"}}`,
	)
	cfg.Features.ConfirmBeforeGenerate = true
	seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)

	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "constancia de estudios para ana"})
	require.True(t, resp.Success)
	assert.True(t, resp.RequiresConfirmation)
	require.NotNil(t, eng.state.Pending)

	resp = eng.ProcessTurn(context.Background(), TurnInput{Message: "sí"})
	require.True(t, resp.Success, resp.Text)
	assert.Equal(t, ActionGeneratePDF, resp.Action)
	assert.Nil(t, eng.state.Pending)
}

func TestConfirmationDeclined(t *testing.T) {
	eng, st, cfg := newTestEngine(t,
		`{"intencion": "generar_constancia", "entidades": {"nombre": "ana", "tipo_constancia": "estudios"}}`,
	)
	cfg.Features.ConfirmBeforeGenerate = true
	id := seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)

	eng.ProcessTurn(context.Background(), TurnInput{Message: "constancia para ana"})
	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "no"})
	require.True(t, resp.Success)
	assert.Contains(t, resp.Text, "cancelado")

	certs, err := st.Certificates(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestConfirmationWithoutPending(t *testing.T) {
	eng, _, _ := newTestEngine(t,
		`{"intencion": "continuacion", "entidades": {"confirmacion": true}}`,
	)
	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "hazlo entonces"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Text, "pendiente")
}

func TestContinuationRefinesList(t *testing.T) {
	eng, st, _ := newTestEngine(t,
		`{"intencion": "consulta_directa", "entidades": {"grado": 3}}`,
		`{"intencion": "continuacion", "entidades": {"turno": "VESPERTINO"}}`,
	)
	seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)
	seedStudent(t, st, "PEDRO LUNA", "", 3, "B", types.ShiftAfternoon)

	eng.ProcessTurn(context.Background(), TurnInput{Message: "alumnos de tercero"})
	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "de esos, los del vespertino"})
	require.True(t, resp.Success)
	assert.Contains(t, resp.Text, "1 alumno(s)")
	assert.Contains(t, resp.Text, "PEDRO LUNA")
	assert.NotContains(t, resp.Text, "ANA RUIZ")
}

func TestEmptySearchPushesZeroRowFrame(t *testing.T) {
	eng, _, _ := newTestEngine(t,
		`{"intencion": "consulta_directa", "entidades": {"nombre": "nadie"}}`,
	)
	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "busca a nadie"})
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Text, "No encontré")
	require.Equal(t, 1, eng.state.Stack.Depth())
	top := eng.state.Stack.Peek()
	assert.Equal(t, conversation.KindStudentList, top.Kind)
	assert.Equal(t, 0, top.RowCount)
	assert.Empty(t, top.Rows)
}

func TestPendingConfirmationExpires(t *testing.T) {
	eng, st, cfg := newTestEngine(t,
		`{"intencion": "generar_constancia", "entidades": {"nombre": "ana", "tipo_constancia": "estudios"}}`,
		`{"intencion": "continuacion", "entidades": {"confirmacion": true}}`,
	)
	cfg.Features.ConfirmBeforeGenerate = true
	id := seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)

	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "constancia para ana"})
	require.True(t, resp.RequiresConfirmation)
	require.NotNil(t, eng.state.Pending)

	// Unrelated turns age the confirmation the same way the stack ages.
	for i := 0; i < conversation.PendingTTL; i++ {
		eng.ProcessTurn(context.Background(), TurnInput{Message: "hola"})
	}
	require.Nil(t, eng.state.Pending)

	// A stray yes afterwards must not fire the forgotten generation.
	resp = eng.ProcessTurn(context.Background(), TurnInput{Message: "sí"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Text, "pendiente")

	certs, err := st.Certificates(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestMissingGradesRefusal(t *testing.T) {
	eng, st, cfg := newTestEngine(t,
		`{"intencion": "generar_constancia", "entidades": {"nombre": "ana", "tipo_constancia": "calificaciones"}}`,
	)
	cfg.Features.UseFallbackSubjects = false
	seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)

	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "constancia de calificaciones para ana"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Text, "calificaciones")
}

func TestInterpreterFailureIsPhrased(t *testing.T) {
	eng, _, _ := newTestEngine(t, "esto no es json")
	resp := eng.ProcessTurn(context.Background(), TurnInput{Message: "algo raro"})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, 1, eng.state.History.Len())
}

func TestStackExpiresAcrossTurns(t *testing.T) {
	eng, st, _ := newTestEngine(t,
		`{"intencion": "consulta_directa", "entidades": {"grado": 3}}`,
	)
	seedStudent(t, st, "ANA RUIZ", "", 3, "A", types.ShiftMorning)

	eng.ProcessTurn(context.Background(), TurnInput{Message: "alumnos de tercero"})
	require.Equal(t, 1, eng.state.Stack.Depth())

	// Greetings are free turns but still age the stack.
	for i := 0; i < conversation.DefaultTTL; i++ {
		eng.ProcessTurn(context.Background(), TurnInput{Message: "hola"})
	}
	assert.Equal(t, 0, eng.state.Stack.Depth())
}
