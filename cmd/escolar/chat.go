// Interactive chat interface built on bubbletea.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/engine"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noteStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

type chatMessage struct {
	role string // "user" | "assistant" | "error" | "note"
	text string
}

type turnDoneMsg struct {
	resp *engine.Response
}

type chatModel struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model

	app       *app
	messages  []chatMessage
	loadedPDF string
	isLoading bool
	ready     bool
	width     int
	height    int
}

func newChatModel(a *app) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Escribe tu mensaje, o /help"
	ti.Focus()
	ti.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		textinput: ti,
		spinner:   sp,
		app:       a,
		messages: []chatMessage{
			{role: "note", text: "Asistente del registro escolar. Escribe lo que necesitas; /help muestra los comandos."},
		},
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.isLoading {
				return m, nil
			}
			input := strings.TrimSpace(m.textinput.Value())
			if input == "" {
				return m, nil
			}
			m.textinput.Reset()
			return m.handleInput(input)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.refreshViewport()

	case turnDoneMsg:
		m.isLoading = false
		role := "assistant"
		if !msg.resp.Success {
			role = "error"
		}
		m.messages = append(m.messages, chatMessage{role: role, text: msg.resp.Text})
		if len(msg.resp.Files) > 0 {
			m.messages = append(m.messages, chatMessage{
				role: "note",
				text: "Archivo: " + strings.Join(msg.resp.Files, ", "),
			})
		}
		m.refreshViewport()

	case spinner.TickMsg:
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, spCmd
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

// handleInput routes slash commands locally and everything else through the
// engine.
func (m chatModel) handleInput(input string) (tea.Model, tea.Cmd) {
	m.messages = append(m.messages, chatMessage{role: "user", text: input})

	if strings.HasPrefix(input, "/") {
		model := m.runSlashCommand(input)
		model.refreshViewport()
		if input == "/salir" {
			return model, tea.Quit
		}
		return model, nil
	}

	m.isLoading = true
	m.refreshViewport()
	eng := m.app.engine
	pdf := m.loadedPDF
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		resp := eng.ProcessTurn(context.Background(), engine.TurnInput{Message: input, LoadedPDF: pdf})
		return turnDoneMsg{resp: resp}
	})
}

func (m chatModel) runSlashCommand(input string) chatModel {
	fields := strings.Fields(input)
	cmd := fields[0]

	note := func(text string) chatModel {
		m.messages = append(m.messages, chatMessage{role: "note", text: text})
		return m
	}

	switch cmd {
	case "/help", "/ayuda":
		return note(strings.TrimSpace(`
Comandos:
  /stats              resumen del registro
  /historial          últimas interacciones
  /clear              limpia la conversación y el contexto
  /export             guarda el historial en un archivo de texto
  /cargar <ruta.pdf>  carga un PDF para transformarlo
  /salir              termina

Todo lo demás se interpreta como una petición en español.`))

	case "/stats":
		stats, err := m.app.store.Stats(context.Background())
		if err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", text: err.Error()})
			return m
		}
		return note(formatStats(stats))

	case "/historial", "/history":
		entries := m.app.engine.State().History.Recent(10)
		if len(entries) == 0 {
			return note("Aún no hay historial.")
		}
		var b strings.Builder
		for _, e := range entries {
			mark := "✓"
			if !e.Success {
				mark = "✗"
			}
			fmt.Fprintf(&b, "%s %s → %s\n", mark, e.User, firstLine(e.Assistant))
		}
		return note(strings.TrimRight(b.String(), "\n"))

	case "/clear":
		m.app.engine.State().History.Clear()
		m.app.engine.State().Stack.Clear()
		m.app.engine.State().Pending = nil
		m.messages = m.messages[:0]
		return note("Conversación y contexto limpiados.")

	case "/export":
		path := fmt.Sprintf("historial_%s.txt", time.Now().Format("20060102_150405"))
		data := m.app.engine.State().History.Export()
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", text: err.Error()})
			return m
		}
		return note("Historial exportado a " + path)

	case "/cargar":
		if len(fields) < 2 {
			return note("Uso: /cargar <ruta.pdf>")
		}
		path := filepath.Clean(strings.Join(fields[1:], " "))
		if _, err := os.Stat(path); err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", text: "No encuentro el archivo " + path})
			return m
		}
		m.loadedPDF = path
		return note("PDF cargado: " + path + ". Ahora pide la transformación, por ejemplo \"conviértela a traslado\".")

	case "/salir", "/exit", "/quit":
		return note("Hasta luego.")

	default:
		return note("Comando desconocido. /help muestra los disponibles.")
	}
}

func (m *chatModel) refreshViewport() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case "user":
			b.WriteString(userStyle.Render("Tú: ") + msg.text)
		case "assistant":
			b.WriteString(assistantStyle.Render(msg.text))
		case "error":
			b.WriteString(errorStyle.Render(msg.text))
		case "note":
			b.WriteString(noteStyle.Render(msg.text))
		}
		b.WriteString("\n\n")
	}
	if m.isLoading {
		b.WriteString(m.spinner.View() + " pensando...\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "cargando..."
	}
	header := headerStyle.Render("escolar · asistente del registro") + "\n"
	footer := "\n" + m.textinput.View() + "\n" + noteStyle.Render("Enter envía · /help comandos · Esc sale")
	return header + m.viewport.View() + footer
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// runChat is the root command's default behavior.
func runChat() error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	p := tea.NewProgram(newChatModel(a), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
