package interpreter

import (
	"fmt"
	"strings"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/conversation"
)

// masterSystemPrompt constrains the first transducer stage: classify the
// message into one intent and extract entities, nothing else.
const masterSystemPrompt = `Eres el intérprete de un sistema escolar de primaria en México.
Tu única tarea es clasificar el mensaje del usuario en una intención y extraer entidades.

Capacidades del sistema:
- Buscar alumnos por nombre, CURP, grado, grupo, turno o ciclo escolar.
- Contar alumnos, con desglose opcional por grado, grupo, turno o ciclo.
- Mostrar los detalles de un alumno concreto.
- Generar constancias de estudios, de calificaciones o de traslado.
- Transformar una constancia PDF cargada a otro tipo.

Intenciones:
- "saludo": el mensaje es solo un saludo.
- "ayuda": el usuario pregunta qué puede hacer el sistema.
- "consulta_directa": búsqueda, conteo o detalles sobre el registro.
- "generar_constancia": pide generar una constancia para un alumno.
- "transformar_pdf": pide convertir el PDF cargado a otro tipo de constancia.
- "continuacion": el mensaje se refiere a un resultado anterior de la conversación
  ("el tercero", "ese alumno", "de esos los del turno matutino", "sí", "no").
- "no_reconocido": nada de lo anterior aplica.

Si el mensaje usa un ordinal ("el segundo", "la cuarta") pon "ordinal".
Si usa un pronombre referido al resultado anterior ("ese", "esa", "su") pon "pronombre": true.
Si responde sí o no a una pregunta pendiente pon "confirmacion".

Responde ÚNICAMENTE con un objeto JSON conforme a este esquema, sin texto adicional:
` + MasterDecisionSchema

// studentSystemPrompt constrains the second stage: turn a query intent into
// one concrete registry action.
const studentSystemPrompt = `Eres la segunda etapa del intérprete de un sistema escolar.
La primera etapa ya clasificó el mensaje como consulta sobre el registro de alumnos.
Decide la acción concreta y sus criterios.

Acciones:
- "buscar_alumnos": listar alumnos que cumplen criterios.
- "contar_alumnos": contar, con "agrupar_por" opcional.
- "detalles_alumno": ficha completa de un alumno concreto.

Responde ÚNICAMENTE con un objeto JSON conforme a este esquema, sin texto adicional:
` + StudentPlanSchema

// buildMasterPrompt assembles the user turn for the master stage: the
// message plus the conversational context the model needs to spot
// continuations.
func buildMasterPrompt(message string, cc Context) string {
	var b strings.Builder
	if len(cc.RecentHistory) > 0 {
		b.WriteString("Conversación reciente:\n")
		for _, e := range cc.RecentHistory {
			fmt.Fprintf(&b, "Usuario: %s\nAsistente: %s\n", e.User, e.Assistant)
		}
		b.WriteString("\n")
	}
	if cc.StackSummary != "" {
		b.WriteString("Resultados en contexto (el primero es el más reciente):\n")
		b.WriteString(cc.StackSummary)
		b.WriteString("\n")
	}
	if cc.HasPending {
		fmt.Fprintf(&b, "Hay una acción pendiente de confirmación: %s\n\n", cc.PendingSummary)
	}
	if cc.LoadedPDF != "" {
		fmt.Fprintf(&b, "Hay un PDF cargado: %s\n\n", cc.LoadedPDF)
	}
	fmt.Fprintf(&b, "Mensaje del usuario: %s", message)
	return b.String()
}

// SummarizeStack renders the frame stack for prompt assembly, newest first.
func SummarizeStack(stack *conversation.Stack) string {
	frames := stack.Frames()
	if len(frames) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range frames {
		fmt.Fprintf(&b, "%d. [%s] %q con %d resultado(s)", i+1, f.Kind, f.Query, f.RowCount)
		if len(f.Rows) > 0 {
			names := make([]string, 0, len(f.Rows))
			for _, r := range f.Rows {
				names = append(names, r.Name)
				if len(names) == 10 {
					break
				}
			}
			fmt.Fprintf(&b, ": %s", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
