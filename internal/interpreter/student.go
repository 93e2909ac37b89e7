package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/actions"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/conversation"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/llm"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/textnorm"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

// Action names the concrete operation a plan dispatches to.
type Action string

const (
	ActionSearch    Action = "buscar_alumnos"
	ActionCount     Action = "contar_alumnos"
	ActionDetails   Action = "detalles_alumno"
	ActionGenerate  Action = "generar_constancia"
	ActionTransform Action = "transformar_pdf"
)

// Plan is the student-stage output the engine dispatches.
type Plan struct {
	Action   Action
	Criteria actions.Criteria
	Selector actions.Selector
	GroupBy  string
	Kind     types.Kind
	Photo    actions.PhotoMode
	// Confirm carries a yes/no answer to a pending action.
	Confirm *bool
	// TargetRow is set when a stack reference resolved to one student.
	TargetRow *types.StudentRow
	// FrameRows is set when a continuation refined a remembered list in
	// memory instead of hitting the registry.
	FrameRows []types.StudentRow
	// FrameQuery is the remembered query the refinement applied to.
	FrameQuery string
}

// Student is the second transducer stage.
type Student struct {
	client llm.Client
	logger *zap.Logger
}

// NewStudent builds the student stage.
func NewStudent(client llm.Client, logger *zap.Logger) *Student {
	return &Student{client: client, logger: logger}
}

// Plan turns a decision into a dispatchable plan. The stack resolves
// contextual references; the model is consulted only for query intents the
// extracted entities cannot plan on their own.
func (s *Student) Plan(ctx context.Context, dec *Decision, stack *conversation.Stack, message string) (*Plan, error) {
	switch dec.Intent {
	case IntentDirectQuery:
		return s.planQuery(ctx, dec, message)
	case IntentGenerate:
		return s.planGenerate(dec, stack)
	case IntentTransform:
		return s.planTransform(dec)
	case IntentContinuation:
		return s.planContinuation(dec, stack)
	default:
		return nil, fmt.Errorf("intent %q has no plan", dec.Intent)
	}
}

func criteriaFromEntities(e Entities) actions.Criteria {
	c := actions.Criteria{
		Name:       e.Nombre,
		CURP:       e.CURP,
		Grade:      e.Grado,
		Group:      e.Grupo,
		SchoolYear: e.CicloEscolar,
	}
	if e.Turno != "" {
		if shift, err := types.ParseShift(e.Turno); err == nil {
			c.Shift = shift
		}
	}
	return c
}

func (p *Plan) empty() bool {
	return p.Criteria == (actions.Criteria{}) && p.GroupBy == ""
}

// planQuery maps a direct query onto search, count or details. When the
// master extracted nothing usable the model is asked to plan.
func (s *Student) planQuery(ctx context.Context, dec *Decision, message string) (*Plan, error) {
	plan := &Plan{Criteria: criteriaFromEntities(dec.Entities), GroupBy: dec.Entities.AgruparPor}

	switch {
	case dec.Entities.Conteo:
		plan.Action = ActionCount
	case dec.Entities.Detalles:
		plan.Action = ActionDetails
		plan.Selector = actions.Selector{CURP: dec.Entities.CURP, Name: dec.Entities.Nombre}
	default:
		plan.Action = ActionSearch
	}

	if plan.Action == ActionSearch && plan.empty() {
		return s.planWithModel(ctx, message)
	}
	return plan, nil
}

// studentPlanEnvelope decodes the model's plan JSON.
type studentPlanEnvelope struct {
	Accion    string `json:"accion"`
	Criterios struct {
		Nombre       string `json:"nombre"`
		CURP         string `json:"curp"`
		Grado        int    `json:"grado"`
		Grupo        string `json:"grupo"`
		Turno        string `json:"turno"`
		CicloEscolar string `json:"ciclo_escolar"`
	} `json:"criterios"`
	AgruparPor string `json:"agrupar_por"`
}

func (s *Student) planWithModel(ctx context.Context, message string) (*Plan, error) {
	raw, err := s.client.CompleteWithSystem(ctx, studentSystemPrompt, message)
	if err != nil {
		return nil, fmt.Errorf("student stage failed: %w", err)
	}
	obj, err := scanJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDecision, err)
	}
	var env studentPlanEnvelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDecision, err)
	}

	plan := &Plan{
		GroupBy: env.AgruparPor,
		Criteria: actions.Criteria{
			Name:       env.Criterios.Nombre,
			CURP:       env.Criterios.CURP,
			Grade:      env.Criterios.Grado,
			Group:      env.Criterios.Grupo,
			SchoolYear: env.Criterios.CicloEscolar,
		},
	}
	if env.Criterios.Turno != "" {
		if shift, err := types.ParseShift(env.Criterios.Turno); err == nil {
			plan.Criteria.Shift = shift
		}
	}
	switch env.Accion {
	case string(ActionSearch), "":
		plan.Action = ActionSearch
	case string(ActionCount):
		plan.Action = ActionCount
	case string(ActionDetails):
		plan.Action = ActionDetails
		plan.Selector = actions.Selector{CURP: plan.Criteria.CURP, Name: plan.Criteria.Name}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrBadDecision, env.Accion)
	}
	return plan, nil
}

// planGenerate resolves the certificate target, through the stack when the
// message referred to an earlier result.
func (s *Student) planGenerate(dec *Decision, stack *conversation.Stack) (*Plan, error) {
	plan := &Plan{Action: ActionGenerate, Photo: photoMode(dec.Entities.Foto)}

	kind, err := types.ParseKind(dec.Entities.Tipo)
	if err != nil {
		// The source system defaults an unspecified request to a plain
		// studies certificate.
		kind = types.KindStudies
	}
	plan.Kind = kind

	if dec.Entities.Ordinal > 0 || dec.Entities.Pronombre {
		row, err := resolveRow(stack, dec.Entities)
		if err != nil {
			return nil, err
		}
		plan.TargetRow = row
		plan.Selector = actions.Selector{ID: row.ID}
		return plan, nil
	}

	switch {
	case dec.Entities.CURP != "":
		plan.Selector = actions.Selector{CURP: dec.Entities.CURP}
	case dec.Entities.Nombre != "":
		plan.Selector = actions.Selector{Name: dec.Entities.Nombre}
	default:
		// No explicit target: fall back to a single-row top frame.
		row, err := resolveRow(stack, Entities{Pronombre: true})
		if err != nil {
			return nil, fmt.Errorf("%w: no student named and no usable context", conversation.ErrUnresolved)
		}
		plan.TargetRow = row
		plan.Selector = actions.Selector{ID: row.ID}
	}
	return plan, nil
}

func (s *Student) planTransform(dec *Decision) (*Plan, error) {
	kind, err := types.ParseKind(dec.Entities.Tipo)
	if err != nil {
		return nil, fmt.Errorf("transformation needs a target certificate kind: %w", err)
	}
	return &Plan{Action: ActionTransform, Kind: kind, Photo: photoMode(dec.Entities.Foto)}, nil
}

// planContinuation resolves the message against the stack: a confirmation
// answer, an ordinal or pronoun pick, or an in-memory refinement of the
// remembered list.
func (s *Student) planContinuation(dec *Decision, stack *conversation.Stack) (*Plan, error) {
	if dec.Entities.Confirmacion != nil {
		return &Plan{Confirm: dec.Entities.Confirmacion}, nil
	}

	if dec.Entities.Ordinal > 0 || dec.Entities.Pronombre {
		row, err := resolveRow(stack, dec.Entities)
		if err != nil {
			return nil, err
		}
		if dec.Entities.Tipo != "" {
			kind, err := types.ParseKind(dec.Entities.Tipo)
			if err == nil {
				return &Plan{
					Action:    ActionGenerate,
					Kind:      kind,
					Photo:     photoMode(dec.Entities.Foto),
					TargetRow: row,
					Selector:  actions.Selector{ID: row.ID},
				}, nil
			}
		}
		return &Plan{Action: ActionDetails, TargetRow: row, Selector: actions.Selector{ID: row.ID}}, nil
	}

	frame, _, err := stack.ResolveReference(conversation.Ref{})
	if err != nil {
		return nil, err
	}
	criteria := criteriaFromEntities(dec.Entities)
	refined := refineRows(frame.Rows, criteria)
	return &Plan{
		Action:     ActionSearch,
		Criteria:   criteria,
		FrameRows:  refined,
		FrameQuery: frame.Query,
	}, nil
}

func resolveRow(stack *conversation.Stack, e Entities) (*types.StudentRow, error) {
	frame, idx, err := stack.ResolveReference(conversation.Ref{Ordinal: e.Ordinal, Pronoun: e.Pronombre})
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(frame.Rows) {
		return nil, fmt.Errorf("%w: reference does not select a student", conversation.ErrUnresolved)
	}
	row := frame.Rows[idx]
	return &row, nil
}

// refineRows filters a remembered row set in memory, so a follow-up like
// "de esos, los del turno matutino" never re-queries the registry.
func refineRows(rows []types.StudentRow, c actions.Criteria) []types.StudentRow {
	var out []types.StudentRow
	for _, r := range rows {
		if c.Name != "" && !textnorm.Contains(r.Name, c.Name) {
			continue
		}
		if c.CURP != "" && !strings.EqualFold(r.CURP, c.CURP) {
			continue
		}
		if c.Grade != 0 && r.Grade != c.Grade {
			continue
		}
		if c.Group != "" && !strings.EqualFold(r.Group, c.Group) {
			continue
		}
		if c.Shift != "" && r.Shift != c.Shift {
			continue
		}
		if c.SchoolYear != "" && r.SchoolYear != c.SchoolYear {
			continue
		}
		out = append(out, r)
	}
	return out
}

func photoMode(s string) actions.PhotoMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "si", "sí", "yes":
		return actions.PhotoYes
	case "no":
		return actions.PhotoNo
	default:
		return actions.PhotoAuto
	}
}
