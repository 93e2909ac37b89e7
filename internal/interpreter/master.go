// Package interpreter is the two-stage transducer between free-form Spanish
// and the closed action library. The master stage classifies the message
// into an intent and extracts entities; the student stage turns query
// intents into one concrete registry action. Cheap deterministic fast paths
// answer greetings, help requests and pending confirmations without an LLM
// round trip.
package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/conversation"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/llm"
)

// Intent is the master-stage classification.
type Intent string

const (
	IntentGreeting     Intent = "saludo"
	IntentHelp         Intent = "ayuda"
	IntentDirectQuery  Intent = "consulta_directa"
	IntentGenerate     Intent = "generar_constancia"
	IntentTransform    Intent = "transformar_pdf"
	IntentContinuation Intent = "continuacion"
	IntentUnrecognized Intent = "no_reconocido"
)

var knownIntents = map[Intent]bool{
	IntentGreeting:     true,
	IntentHelp:         true,
	IntentDirectQuery:  true,
	IntentGenerate:     true,
	IntentTransform:    true,
	IntentContinuation: true,
	IntentUnrecognized: true,
}

// ErrBadDecision marks a completion that could not be decoded into a
// decision envelope.
var ErrBadDecision = errors.New("interpreter returned an undecodable decision")

// Entities are the slots the master stage extracts. All optional.
type Entities struct {
	Nombre       string `json:"nombre,omitempty"`
	CURP         string `json:"curp,omitempty"`
	Grado        int    `json:"grado,omitempty"`
	Grupo        string `json:"grupo,omitempty"`
	Turno        string `json:"turno,omitempty"`
	CicloEscolar string `json:"ciclo_escolar,omitempty"`
	Tipo         string `json:"tipo_constancia,omitempty"`
	Foto         string `json:"foto,omitempty"`
	Ordinal      int    `json:"ordinal,omitempty"`
	Pronombre    bool   `json:"pronombre,omitempty"`
	Confirmacion *bool  `json:"confirmacion,omitempty"`
	Conteo       bool   `json:"conteo,omitempty"`
	AgruparPor   string `json:"agrupar_por,omitempty"`
	Detalles     bool   `json:"detalles,omitempty"`
}

// Decision is the master-stage output.
type Decision struct {
	Intent       Intent   `json:"intencion"`
	Entities     Entities `json:"entidades"`
	Razonamiento string   `json:"razonamiento,omitempty"`
}

// Context is the conversational state the master needs to classify
// continuations and confirmations.
type Context struct {
	HasPending     bool
	PendingSummary string
	StackSummary   string
	LoadedPDF      string
	RecentHistory  []conversation.HistoryEntry
}

// Master is the first transducer stage.
type Master struct {
	client llm.Client
	logger *zap.Logger
}

// NewMaster builds the master stage over an LLM client.
func NewMaster(client llm.Client, logger *zap.Logger) *Master {
	return &Master{client: client, logger: logger}
}

var (
	greetingPattern = regexp.MustCompile(`(?i)^\s*(hola|buen[oa]s\s+(d[ií]as|tardes|noches)|saludos|qu[eé] tal|hey)[\s.!¡]*$`)
	helpPattern     = regexp.MustCompile(`(?i)\b(ayuda|ayudame|ayúdame|qu[eé] puedes hacer|c[oó]mo funciona[s]?)\b`)
	yesPattern      = regexp.MustCompile(`(?i)^\s*(s[ií]|claro|dale|ok|okay|por supuesto|hazlo|adelante|correcto)[\s.!¡]*$`)
	noPattern       = regexp.MustCompile(`(?i)^\s*(no|nel|cancela|cancelar|mejor no|d[ée]jalo|olv[ií]dalo)[\s.!¡]*$`)
)

// Interpret classifies one message. Deterministic fast paths handle
// greetings, help and pending yes/no answers; everything else goes through
// the model.
func (m *Master) Interpret(ctx context.Context, message string, cc Context) (*Decision, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return &Decision{Intent: IntentUnrecognized}, nil
	}

	if cc.HasPending {
		if yesPattern.MatchString(trimmed) {
			yes := true
			return &Decision{Intent: IntentContinuation, Entities: Entities{Confirmacion: &yes}}, nil
		}
		if noPattern.MatchString(trimmed) {
			no := false
			return &Decision{Intent: IntentContinuation, Entities: Entities{Confirmacion: &no}}, nil
		}
	}
	if greetingPattern.MatchString(trimmed) {
		return &Decision{Intent: IntentGreeting}, nil
	}
	if helpPattern.MatchString(trimmed) {
		return &Decision{Intent: IntentHelp}, nil
	}

	raw, err := m.client.CompleteWithSystem(ctx, masterSystemPrompt, buildMasterPrompt(trimmed, cc))
	if err != nil {
		return nil, fmt.Errorf("master stage failed: %w", err)
	}

	dec, err := decodeDecision(raw)
	if err != nil {
		m.logger.Warn("undecodable master decision", zap.String("raw", truncate(raw, 200)), zap.Error(err))
		return nil, err
	}
	return dec, nil
}

// decodeDecision extracts and decodes the decision object from a possibly
// noisy completion. Unknown intents collapse to no_reconocido rather than
// failing the turn.
func decodeDecision(raw string) (*Decision, error) {
	obj, err := scanJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDecision, err)
	}
	var dec Decision
	if err := json.Unmarshal([]byte(obj), &dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDecision, err)
	}
	if dec.Intent == "" {
		return nil, fmt.Errorf("%w: missing intencion", ErrBadDecision)
	}
	if !knownIntents[dec.Intent] {
		dec.Intent = IntentUnrecognized
	}
	dec.Entities.Nombre = strings.TrimSpace(dec.Entities.Nombre)
	dec.Entities.CURP = strings.ToUpper(strings.TrimSpace(dec.Entities.CURP))
	return &dec, nil
}

// scanJSONObject returns the first balanced top-level JSON object in s.
// Completions are frequently wrapped in prose or code fences.
func scanJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errors.New("no JSON object found")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errors.New("unbalanced JSON object")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
