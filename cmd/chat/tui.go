package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kubepilot/internal/mailbox"
)

type uiTheme struct {
	header   lipgloss.Style
	footer   lipgloss.Style
	inputBar lipgloss.Style
	operator lipgloss.Style
	agent    lipgloss.Style
	notice   lipgloss.Style
	errText  lipgloss.Style
	waiting  lipgloss.Style
}

func newTheme() uiTheme {
	green := lipgloss.Color("#05ffa1")
	blue := lipgloss.Color("#01cdfe")
	muted := lipgloss.Color("#8a8f98")
	red := lipgloss.Color("#ff5f87")

	return uiTheme{
		header: lipgloss.NewStyle().
			Foreground(blue).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(muted),
		footer: lipgloss.NewStyle().Foreground(muted),
		inputBar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(muted),
		operator: lipgloss.NewStyle().Foreground(green).Bold(true),
		agent:    lipgloss.NewStyle().Foreground(blue).Bold(true),
		notice:   lipgloss.NewStyle().Foreground(muted),
		errText:  lipgloss.NewStyle().Foreground(red).Bold(true),
		waiting:  lipgloss.NewStyle().Foreground(muted).Italic(true),
	}
}

type chatLine struct {
	speaker string // "you", "agent", or "" for notices
	text    string
}

// answerMsg carries the worker's reply (or the posting error) back into the
// update loop.
type answerMsg struct {
	id   uint64
	body string
	err  error
}

type tuiModel struct {
	mb         *mailbox.Mailbox
	theme      uiTheme
	transcript []chatLine
	timeline   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	width      int
	height     int
	ready      bool
	waiting    bool
	quitting   bool
	status     string
}

func newTUIModel(mb *mailbox.Mailbox) tuiModel {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Ask about the cluster. q stops the worker too."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	return tuiModel{
		mb:       mb,
		theme:    newTheme(),
		timeline: timeline,
		input:    input,
		spinner:  sp,
		status:   "idle",
		transcript: []chatLine{
			{text: "Queries go through " + mb.RequestPath() + ". The agent answers once it claims them."},
		},
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// askCmd posts the query and blocks on the response slot. Both run inside
// the command goroutine, so the update loop stays responsive while the
// worker thinks.
func (m tuiModel) askCmd(query string) tea.Cmd {
	mb := m.mb
	return func() tea.Msg {
		id, err := mb.Post(query)
		if err != nil {
			return answerMsg{err: err}
		}
		body, err := mb.AwaitResponse(context.Background(), id)
		return answerMsg{id: id, body: body, err: err}
	}
}

// stopWorkerCmd posts the quit command and then ends the program.
func (m tuiModel) stopWorkerCmd() tea.Cmd {
	mb := m.mb
	return func() tea.Msg {
		if err := mb.PostQuit(); err != nil {
			return answerMsg{err: err}
		}
		return tea.QuitMsg{}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTranscript()
		m.ready = true
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case answerMsg:
		m.waiting = false
		m.quitting = false
		if msg.err != nil {
			m.transcript = append(m.transcript, chatLine{text: m.theme.errText.Render("mailbox error: " + msg.err.Error())})
			m.status = "mailbox error"
		} else {
			m.transcript = append(m.transcript, chatLine{speaker: "agent", text: msg.body})
			m.status = fmt.Sprintf("answered request %d", msg.id)
		}
		m.renderTranscript()
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			// Leaves the worker running; q is the shutdown path.
			return m, tea.Quit
		case "enter":
			if m.waiting || m.quitting {
				return m, tea.Batch(cmds...)
			}
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" {
				return m, tea.Batch(cmds...)
			}
			m.input.SetValue("")
			if mailbox.IsQuit(raw) {
				m.quitting = true
				m.status = "stopping worker"
				return m, m.stopWorkerCmd()
			}
			m.transcript = append(m.transcript, chatLine{speaker: "you", text: raw})
			m.waiting = true
			m.status = "waiting for the agent"
			m.renderTranscript()
			return m, m.askCmd(raw)
		case "pgup", "ctrl+b":
			m.timeline.LineUp(8)
		case "pgdown", "ctrl+f":
			m.timeline.LineDown(8)
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *tuiModel) resize() {
	// Header and input bar render two lines each (text plus border), the
	// footer one.
	h := m.height - 5
	if h < 3 {
		h = 3
	}
	m.timeline.Width = m.width
	m.timeline.Height = h
}

func (m *tuiModel) renderTranscript() {
	width := m.timeline.Width
	if width <= 0 {
		width = 80
	}
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, line := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch line.speaker {
		case "you":
			b.WriteString(m.theme.operator.Render("you") + "  " + line.text)
		case "agent":
			b.WriteString(m.theme.agent.Render("agent") + "  " + line.text)
		default:
			b.WriteString(m.theme.notice.Render(line.text))
		}
	}
	m.timeline.SetContent(wrap.Render(b.String()))
	m.timeline.GotoBottom()
}

func (m tuiModel) View() string {
	if !m.ready {
		return "starting..."
	}

	header := m.theme.header.Width(m.width).Render("kubepilot chat")

	var inputLine string
	switch {
	case m.quitting:
		inputLine = m.spinner.View() + " " + m.theme.waiting.Render("asking the worker to stop...")
	case m.waiting:
		inputLine = m.spinner.View() + " " + m.theme.waiting.Render("waiting for the agent...")
	default:
		inputLine = m.input.View()
	}
	input := m.theme.inputBar.Width(m.width).Render(inputLine)

	footer := m.theme.footer.Render("enter send · q stop worker and exit · esc exit · pgup/pgdn scroll · " + m.status)

	return lipgloss.JoinVertical(lipgloss.Left, header, m.timeline.View(), input, footer)
}

func runTUI(mb *mailbox.Mailbox) error {
	p := tea.NewProgram(newTUIModel(mb), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
