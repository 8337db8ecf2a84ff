package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/antoniostano/chatdesk/internal/session"
)

type turnMsg struct{ turn session.Turn }

type busyMsg struct{ busy bool }

type clearedMsg struct{}

// channelPresenter forwards controller notifications to the program loop.
// Sends block until the loop reads them, so controller calls must run
// inside a tea.Cmd and never on the Update goroutine.
type channelPresenter struct {
	events chan tea.Msg
}

func newChannelPresenter(size int) *channelPresenter {
	return &channelPresenter{events: make(chan tea.Msg, size)}
}

func (p *channelPresenter) Render(turn session.Turn) { p.events <- turnMsg{turn: turn} }
func (p *channelPresenter) SetBusy(busy bool)        { p.events <- busyMsg{busy: busy} }
func (p *channelPresenter) ClearAll()                { p.events <- clearedMsg{} }

func waitForUIEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}
