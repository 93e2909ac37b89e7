package interpreter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/llm"
)

func TestInterpretGreetingFastPath(t *testing.T) {
	c := llm.NewScriptedClient()
	m := NewMaster(c, zap.NewNop())

	for _, msg := range []string{"hola", "Buenos días", "buenas tardes!", "qué tal"} {
		dec, err := m.Interpret(context.Background(), msg, Context{})
		require.NoError(t, err, msg)
		assert.Equal(t, IntentGreeting, dec.Intent, msg)
	}
	assert.Empty(t, c.Calls(), "greetings must not reach the model")
}

func TestInterpretHelpFastPath(t *testing.T) {
	m := NewMaster(llm.NewScriptedClient(), zap.NewNop())
	dec, err := m.Interpret(context.Background(), "ayuda, ¿qué puedes hacer?", Context{})
	require.NoError(t, err)
	assert.Equal(t, IntentHelp, dec.Intent)
}

func TestInterpretPendingConfirmation(t *testing.T) {
	m := NewMaster(llm.NewScriptedClient(), zap.NewNop())
	cc := Context{HasPending: true, PendingSummary: "generar constancia"}

	dec, err := m.Interpret(context.Background(), "sí", cc)
	require.NoError(t, err)
	require.Equal(t, IntentContinuation, dec.Intent)
	require.NotNil(t, dec.Entities.Confirmacion)
	assert.True(t, *dec.Entities.Confirmacion)

	dec, err = m.Interpret(context.Background(), "mejor no", cc)
	require.NoError(t, err)
	require.NotNil(t, dec.Entities.Confirmacion)
	assert.False(t, *dec.Entities.Confirmacion)
}

func TestInterpretYesWithoutPendingGoesToModel(t *testing.T) {
	c := llm.NewScriptedClient(`{"intencion": "no_reconocido"}`)
	m := NewMaster(c, zap.NewNop())

	dec, err := m.Interpret(context.Background(), "sí", Context{})
	require.NoError(t, err)
	assert.Equal(t, IntentUnrecognized, dec.Intent)
	assert.Len(t, c.Calls(), 1)
}

func TestInterpretModelDecision(t *testing.T) {
	c := llm.NewScriptedClient(`Claro, aquí está:
` + "```json" + `
{"intencion": "consulta_directa", "entidades": {"nombre": " garcía ", "grado": 3, "conteo": false}}
` + "```")
	m := NewMaster(c, zap.NewNop())

	dec, err := m.Interpret(context.Background(), "alumnos garcía de tercero", Context{})
	require.NoError(t, err)
	assert.Equal(t, IntentDirectQuery, dec.Intent)
	assert.Equal(t, "garcía", dec.Entities.Nombre)
	assert.Equal(t, 3, dec.Entities.Grado)
}

func TestInterpretUnknownIntentCollapses(t *testing.T) {
	c := llm.NewScriptedClient(`{"intencion": "bailar"}`)
	m := NewMaster(c, zap.NewNop())

	dec, err := m.Interpret(context.Background(), "baila conmigo", Context{})
	require.NoError(t, err)
	assert.Equal(t, IntentUnrecognized, dec.Intent)
}

func TestInterpretUndecodableCompletion(t *testing.T) {
	c := llm.NewScriptedClient(`lo siento, no puedo`)
	m := NewMaster(c, zap.NewNop())

	_, err := m.Interpret(context.Background(), "algo raro", Context{})
	require.ErrorIs(t, err, ErrBadDecision)
}

func TestInterpretEmptyMessage(t *testing.T) {
	m := NewMaster(llm.NewScriptedClient(), zap.NewNop())
	dec, err := m.Interpret(context.Background(), "   ", Context{})
	require.NoError(t, err)
	assert.Equal(t, IntentUnrecognized, dec.Intent)
}

func TestScanJSONObject(t *testing.T) {
	obj, err := scanJSONObject(`prefix {"a": {"b": "with } brace"}} suffix`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": "with } brace"}}`, obj)

	_, err = scanJSONObject("no object here")
	require.Error(t, err)

	_, err = scanJSONObject(`{"unbalanced": true`)
	require.Error(t, err)
}
