// Package tui is a terminal chat client driving a local dialogue controller.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/chatdesk/internal/config"
	"github.com/antoniostano/chatdesk/internal/dialogue"
	"github.com/antoniostano/chatdesk/internal/session"
)

type KeyMap struct {
	Submit      key.Binding
	Clear       key.Binding
	Suggestions []key.Binding
	Quit        key.Binding
}

func DefaultKeyMap() KeyMap {
	suggestions := make([]key.Binding, 0, config.MaxSuggestions)
	for i := 1; i <= config.MaxSuggestions; i++ {
		suggestions = append(suggestions, key.NewBinding(key.WithKeys(fmt.Sprintf("alt+%d", i))))
	}
	return KeyMap{
		Submit:      key.NewBinding(key.WithKeys("enter")),
		Clear:       key.NewBinding(key.WithKeys("ctrl+l")),
		Suggestions: suggestions,
		Quit:        key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

type Style struct {
	Title  lipgloss.Style
	User   lipgloss.Style
	Status lipgloss.Style
	Hint   lipgloss.Style
}

func DefaultStyles() Style {
	return Style{
		Title: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1F4E79", Dark: "#8AB4F8"}),
		User: lipgloss.NewStyle().Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"}),
		Status: lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#888888", Dark: "#999999"}),
		Hint: lipgloss.NewStyle().Faint(true),
	}
}

type outcomeMsg struct{ outcome dialogue.Outcome }

// Model renders one conversation. Transcript changes arrive only through the
// presenter channel, so the view always reflects what the controller did.
type Model struct {
	ctx        context.Context
	controller *dialogue.Controller
	events     <-chan tea.Msg
	ui         config.UISettings

	keyMap   KeyMap
	style    Style
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	turns  []session.Turn
	busy   bool
	status string
	width  int
}

// NewModel wires a controller whose presenter feeds this model.
func NewModel(ctx context.Context, transport dialogue.Transport, ui config.UISettings, opts ...dialogue.Option) *Model {
	presenter := newChannelPresenter(64)
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.Prompt = "> "
	input.Focus()

	m := &Model{
		ctx:      ctx,
		events:   presenter.events,
		ui:       ui,
		keyMap:   DefaultKeyMap(),
		style:    DefaultStyles(),
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		width:    80,
	}
	m.controller = dialogue.New(session.NewHistory(), transport, presenter, opts...)
	m.renderer = newRenderer(m.width)
	m.refresh()
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn().Err(err).Msg("glamour renderer unavailable, falling back to plain text")
		return nil
	}
	return r
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForUIEvent(m.events))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keyMap.Submit):
			text := m.input.Value()
			m.input.Reset()
			cmds = append(cmds, m.submit(text))
		case key.Matches(msg, m.keyMap.Clear):
			m.status = ""
			cmds = append(cmds, m.clear())
		default:
			if idx, ok := m.suggestionIndex(msg); ok {
				cmds = append(cmds, m.submit(m.ui.Suggestions[idx]))
				break
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.renderer = newRenderer(msg.Width)
		m.refresh()

	case turnMsg:
		m.turns = append(m.turns, msg.turn)
		m.refresh()
		cmds = append(cmds, waitForUIEvent(m.events))

	case busyMsg:
		m.busy = msg.busy
		cmds = append(cmds, waitForUIEvent(m.events))

	case clearedMsg:
		m.turns = nil
		m.refresh()
		cmds = append(cmds, waitForUIEvent(m.events))

	case outcomeMsg:
		switch msg.outcome {
		case dialogue.OutcomeRejected:
			m.status = "A reply is still pending."
		case dialogue.OutcomeStale, dialogue.OutcomeDropped:
			m.status = "Message discarded after clear."
		default:
			m.status = ""
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	switch {
	case m.busy:
		b.WriteString(m.style.Status.Render(m.spinner.View() + " assistant is typing"))
	case m.status != "":
		b.WriteString(m.style.Status.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.style.Hint.Render("enter send · ctrl+l clear · alt+1..9 suggestion · ctrl+c quit"))
	return b.String()
}

func (m *Model) submit(text string) tea.Cmd {
	ctrl, ctx := m.controller, m.ctx
	return func() tea.Msg {
		return outcomeMsg{outcome: ctrl.Submit(ctx, text)}
	}
}

func (m *Model) clear() tea.Cmd {
	ctrl := m.controller
	return func() tea.Msg {
		ctrl.Clear()
		return nil
	}
}

func (m *Model) suggestionIndex(msg tea.KeyMsg) (int, bool) {
	for i, binding := range m.keyMap.Suggestions {
		if i < len(m.ui.Suggestions) && key.Matches(msg, binding) {
			return i, true
		}
	}
	return 0, false
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *Model) transcript() string {
	if len(m.turns) == 0 {
		return m.banner()
	}
	parts := make([]string, 0, len(m.turns))
	for _, turn := range m.turns {
		parts = append(parts, m.renderTurn(turn))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) banner() string {
	var b strings.Builder
	b.WriteString(m.style.Title.Render(m.ui.Title))
	b.WriteString("\n\n")
	b.WriteString(m.ui.Welcome)
	b.WriteString("\n")
	for i, s := range m.ui.Suggestions {
		b.WriteString(fmt.Sprintf("\n  alt+%d  %s", i+1, s))
	}
	return b.String()
}

func (m *Model) renderTurn(turn session.Turn) string {
	if turn.Role == session.RoleUser {
		return m.style.User.Render("you: " + turn.Text)
	}
	if m.renderer == nil {
		return turn.Text
	}
	out, err := m.renderer.Render(turn.Text)
	if err != nil {
		return turn.Text
	}
	return strings.TrimRight(out, "\n")
}

// Run starts the program and blocks until the user quits or ctx is done.
func Run(ctx context.Context, transport dialogue.Transport, ui config.UISettings, opts ...dialogue.Option) error {
	m := NewModel(ctx, transport, ui, opts...)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
