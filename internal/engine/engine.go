// Package engine runs one chat turn end to end: interpret the message,
// dispatch the resulting plan against the action library, update the
// conversation state, and phrase the reply. Every interface (CLI one-shot,
// interactive chat) funnels through ProcessTurn.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/actions"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/conversation"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/interpreter"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/llm"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/store"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

// Response actions tell the presentation layer what to do with the data.
const (
	ActionOpenFile       = "open_file"
	ActionShowData       = "show_data"
	ActionGeneratePDF    = "generate_pdf"
	ActionPreview        = "constancia_preview"
	ActionTransformation = "pdf_transformation"
)

// TurnInput is one user turn.
type TurnInput struct {
	Message string
	// LoadedPDF is the path of the certificate the user has loaded for
	// transformation, empty when none.
	LoadedPDF string
}

// Response is the engine's answer to one turn.
type Response struct {
	Text                 string
	Success              bool
	Action               string
	Data                 interface{}
	Files                []string
	RequiresConfirmation bool
	Timestamp            time.Time
}

// Engine owns the conversation state and the pipeline stages.
type Engine struct {
	master  *interpreter.Master
	student *interpreter.Student
	lib     *actions.Library
	cfg     func() *config.Config
	state   *conversation.State
	logger  *zap.Logger
}

// New wires an engine over an open store and an LLM client.
func New(st *store.Store, client llm.Client, cfg func() *config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		master:  interpreter.NewMaster(client, logger),
		student: interpreter.NewStudent(client, logger),
		lib:     actions.New(st, cfg, logger),
		cfg:     cfg,
		state:   &conversation.State{},
		logger:  logger,
	}
}

// State exposes the conversation state for the slash commands.
func (e *Engine) State() *conversation.State {
	return e.state
}

// ProcessTurn runs one turn. The returned response is always non-nil; an
// uninterpretable message produces a phrased failure, not an error.
func (e *Engine) ProcessTurn(ctx context.Context, in TurnInput) *Response {
	resp := e.processTurn(ctx, in)
	resp.Timestamp = time.Now()
	e.state.History.Record(in.Message, resp.Text, resp.Success)
	e.state.Stack.Tick()
	e.state.TickPending()
	return resp
}

func (e *Engine) processTurn(ctx context.Context, in TurnInput) *Response {
	cc := interpreter.Context{
		HasPending:    e.state.Pending != nil,
		StackSummary:  interpreter.SummarizeStack(&e.state.Stack),
		LoadedPDF:     in.LoadedPDF,
		RecentHistory: e.state.History.Recent(6),
	}
	if p := e.state.Pending; p != nil {
		cc.PendingSummary = pendingSummary(p)
	}

	llmCtx, cancel := context.WithTimeout(ctx, e.cfg().LLMTimeout())
	defer cancel()

	dec, err := e.master.Interpret(llmCtx, in.Message, cc)
	if err != nil {
		e.logger.Warn("interpretation failed", zap.Error(err))
		return failure("No pude entender el mensaje. Intenta de nuevo, o escribe \"ayuda\" para ver lo que puedo hacer.")
	}

	switch dec.Intent {
	case interpreter.IntentGreeting:
		return &Response{Text: "¡Hola! Soy el asistente del registro escolar. ¿En qué te ayudo?", Success: true}
	case interpreter.IntentHelp:
		return &Response{Text: e.lib.Help(), Success: true}
	case interpreter.IntentUnrecognized:
		return failure("No reconocí esa petición. Puedo buscar alumnos, contar, mostrar detalles y generar constancias. Escribe \"ayuda\" para más.")
	}

	plan, err := e.student.Plan(llmCtx, dec, &e.state.Stack, in.Message)
	if err != nil {
		if errors.Is(err, conversation.ErrUnresolved) {
			return failure("No sé a qué resultado anterior te refieres. Haz primero una búsqueda, o nombra al alumno.")
		}
		e.logger.Warn("planning failed", zap.Error(err))
		return failure("No pude concretar la petición. ¿Puedes reformularla?")
	}

	if plan.Confirm != nil {
		return e.consumePending(ctx, *plan.Confirm)
	}

	switch plan.Action {
	case interpreter.ActionSearch:
		return e.runSearch(ctx, plan)
	case interpreter.ActionCount:
		return e.runCount(ctx, plan)
	case interpreter.ActionDetails:
		return e.runDetails(ctx, plan)
	case interpreter.ActionGenerate:
		return e.runGenerate(ctx, plan)
	case interpreter.ActionTransform:
		return e.runTransform(ctx, plan, in.LoadedPDF)
	default:
		return failure("No reconocí esa petición.")
	}
}

func failure(text string) *Response {
	return &Response{Text: text, Success: false}
}

func pendingSummary(p *conversation.PendingAction) string {
	switch p.Kind {
	case conversation.PendingTransform:
		return fmt.Sprintf("transformar %s a constancia de %s", p.SourcePDF, p.Certificate)
	default:
		return fmt.Sprintf("generar constancia de %s para %s", p.Certificate, p.StudentName)
	}
}

// runSearch executes a registry search, or presents an in-memory refinement
// of a remembered list.
func (e *Engine) runSearch(ctx context.Context, plan *interpreter.Plan) *Response {
	var rows []types.StudentRow
	var query string
	if plan.FrameRows != nil || plan.FrameQuery != "" {
		rows = plan.FrameRows
		query = fmt.Sprintf("%s (refinado)", plan.FrameQuery)
	} else {
		var err error
		rows, err = e.lib.SearchStudents(ctx, plan.Criteria)
		if err != nil {
			e.logger.Error("search failed", zap.Error(err))
			return failure("La búsqueda falló. Revisa la base de datos e intenta de nuevo.")
		}
		query = describeCriteria(plan.Criteria)
	}

	// An empty result still leaves a frame: "de esos" one turn later must
	// refine against the zero-row set, not against an older list.
	e.state.Stack.Push(conversation.Frame{
		Kind:     conversation.KindStudentList,
		Query:    query,
		Rows:     rows,
		RowCount: len(rows),
	})
	if len(rows) == 0 {
		return &Response{Text: "No encontré alumnos con esos criterios.", Success: true}
	}
	return &Response{
		Text:    formatRows(rows),
		Success: true,
		Action:  ActionShowData,
		Data:    rows,
	}
}

func (e *Engine) runCount(ctx context.Context, plan *interpreter.Plan) *Response {
	rs, err := e.lib.CountStudents(ctx, plan.Criteria, plan.GroupBy)
	if err != nil {
		e.logger.Error("count failed", zap.Error(err))
		return failure("El conteo falló. Intenta de nuevo.")
	}

	e.state.Stack.Push(conversation.Frame{
		Kind:     conversation.KindCountBreakdown,
		Query:    describeCriteria(plan.Criteria),
		RowCount: rs.RowCount,
	})
	return &Response{
		Text:    formatCount(rs, plan.GroupBy),
		Success: true,
		Action:  ActionShowData,
		Data:    rs,
	}
}

func (e *Engine) runDetails(ctx context.Context, plan *interpreter.Plan) *Response {
	det, err := e.lib.GetStudentDetails(ctx, plan.Selector)
	if err != nil {
		var amb *actions.AmbiguityError
		if errors.As(err, &amb) {
			e.state.Stack.Push(conversation.Frame{
				Kind:     conversation.KindStudentList,
				Query:    plan.Selector.Name,
				Rows:     amb.Candidates,
				RowCount: len(amb.Candidates),
			})
			return &Response{
				Text:    "Encontré varios alumnos con ese nombre:\n" + formatRows(amb.Candidates) + "\n¿A cuál te refieres? Puedes decir \"el primero\", \"el segundo\"...",
				Success: true,
				Action:  ActionShowData,
				Data:    amb.Candidates,
			}
		}
		if errors.Is(err, actions.ErrUnknownStudent) {
			return failure("No encontré a ese alumno en el registro.")
		}
		e.logger.Error("details failed", zap.Error(err))
		return failure("No pude consultar los detalles del alumno.")
	}

	row := detailsRow(det)
	e.state.Stack.Push(conversation.Frame{
		Kind:     conversation.KindSingleStudent,
		Query:    det.Student.Name,
		Rows:     []types.StudentRow{row},
		RowCount: 1,
	})
	return &Response{
		Text:    formatDetails(det),
		Success: true,
		Action:  ActionShowData,
		Data:    det,
	}
}

func (e *Engine) runGenerate(ctx context.Context, plan *interpreter.Plan) *Response {
	// Resolve the target name up front so the confirmation question and the
	// pending record can cite it.
	name := plan.Selector.Name
	if plan.TargetRow != nil {
		name = plan.TargetRow.Name
	}

	if e.cfg().Features.ConfirmBeforeGenerate && e.state.Pending == nil {
		e.state.SetPending(&conversation.PendingAction{
			Kind:        conversation.PendingGenerate,
			Certificate: plan.Kind,
			StudentID:   plan.Selector.ID,
			StudentName: name,
		})
		if plan.Selector.ID == "" {
			e.state.Pending.StudentName = firstNonEmpty(plan.Selector.Name, plan.Selector.CURP)
		}
		return &Response{
			Text:                 fmt.Sprintf("¿Genero la constancia de %s para %s? (sí/no)", plan.Kind, name),
			Success:              true,
			RequiresConfirmation: true,
		}
	}

	return e.generate(ctx, plan.Selector, plan.Kind, plan.Photo)
}

func (e *Engine) generate(ctx context.Context, sel actions.Selector, kind types.Kind, photo actions.PhotoMode) *Response {
	res, err := e.lib.GenerateCertificate(ctx, actions.GenerateRequest{
		Selector: sel,
		Kind:     kind,
		Photo:    photo,
	})
	if err != nil {
		switch {
		case errors.Is(err, actions.ErrUnknownStudent):
			return failure("No encontré a ese alumno en el registro.")
		case errors.Is(err, actions.ErrAmbiguousSelector):
			var amb *actions.AmbiguityError
			if errors.As(err, &amb) {
				e.state.Stack.Push(conversation.Frame{
					Kind:     conversation.KindStudentList,
					Query:    sel.Name,
					Rows:     amb.Candidates,
					RowCount: len(amb.Candidates),
				})
				return &Response{
					Text:    "Hay varios alumnos con ese nombre:\n" + formatRows(amb.Candidates) + "\nDime cuál, por ejemplo \"el primero\".",
					Success: true,
					Action:  ActionShowData,
					Data:    amb.Candidates,
				}
			}
			return failure("Hay varios alumnos con ese nombre; sé más específico.")
		case errors.Is(err, actions.ErrMissingPrerequisite):
			return failure(fmt.Sprintf("No puedo generar la constancia de %s: el alumno no tiene calificaciones registradas.", kind))
		default:
			e.logger.Error("generation failed", zap.Error(err))
			return failure("La generación de la constancia falló.")
		}
	}

	text := fmt.Sprintf("Constancia de %s generada para %s:\n%s", kind, res.Student.Name, res.Artifact.Path)
	for _, w := range res.Warnings {
		text += "\nNota: " + w
	}

	e.state.Stack.Push(conversation.Frame{
		Kind:     conversation.KindArtifact,
		Query:    fmt.Sprintf("constancia %s %s", kind, res.Student.Name),
		Files:    []string{res.Artifact.Path},
		RowCount: 1,
	})
	return &Response{
		Text:    text,
		Success: true,
		Action:  ActionGeneratePDF,
		Data:    res,
		Files:   []string{res.Artifact.Path},
	}
}

func (e *Engine) runTransform(ctx context.Context, plan *interpreter.Plan, loadedPDF string) *Response {
	if loadedPDF == "" {
		return failure("No hay ningún PDF cargado. Carga primero la constancia que quieres transformar.")
	}

	res, err := e.lib.TransformPDF(ctx, actions.TransformRequest{
		SourcePDF: loadedPDF,
		Kind:      plan.Kind,
		Photo:     plan.Photo,
	})
	if err != nil {
		if errors.Is(err, actions.ErrMissingPrerequisite) {
			return failure("No pude transformar el PDF: no contiene los datos necesarios para ese tipo de constancia.")
		}
		e.logger.Error("transformation failed", zap.Error(err))
		return failure("La transformación del PDF falló.")
	}

	text := fmt.Sprintf("Constancia de %s generada a partir del PDF:\n%s", plan.Kind, res.Artifact.Path)
	for _, w := range res.Warnings {
		text += "\nNota: " + w
	}

	e.state.Stack.Push(conversation.Frame{
		Kind:     conversation.KindArtifact,
		Query:    fmt.Sprintf("transformación a %s", plan.Kind),
		Files:    []string{res.Artifact.Path},
		RowCount: 1,
	})
	return &Response{
		Text:    text,
		Success: true,
		Action:  ActionTransformation,
		Data:    res,
		Files:   []string{res.Artifact.Path},
	}
}

// consumePending resolves a yes/no answer against the suspended action.
// The pending slot is cleared either way.
func (e *Engine) consumePending(ctx context.Context, confirmed bool) *Response {
	p := e.state.Pending
	e.state.Pending = nil
	if p == nil {
		return failure("No hay ninguna acción pendiente de confirmar.")
	}
	if !confirmed {
		return &Response{Text: "De acuerdo, cancelado.", Success: true}
	}

	switch p.Kind {
	case conversation.PendingTransform:
		return e.runTransform(ctx, &interpreter.Plan{Kind: p.Certificate}, p.SourcePDF)
	default:
		sel := actions.Selector{ID: p.StudentID}
		if sel.ID == "" {
			sel.Name = p.StudentName
		}
		return e.generate(ctx, sel, p.Certificate, actions.PhotoAuto)
	}
}

func detailsRow(det *actions.StudentDetails) types.StudentRow {
	row := types.StudentRow{Student: det.Student}
	if det.Enrollment != nil {
		row.SchoolYear = det.Enrollment.SchoolYear
		row.Grade = det.Enrollment.Grade
		row.Group = det.Enrollment.Group
		row.Shift = det.Enrollment.Shift
		row.HasGrades = len(det.Enrollment.Grades) > 0
	}
	return row
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
