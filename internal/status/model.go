// Package status implements the Bubble Tea status display shown by
// cmd/streamplay, grounded on the teacher's internal/ui Elm-style
// model but showing HTTP streaming state (ICY tag, buffered bytes,
// paused-for-backpressure) instead of local-file playback controls.
package status

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpdgo/httpinput/internal/streamplay"
	"github.com/mpdgo/httpinput/internal/util"
)

// Model is the Bubbletea model for the streamplay status display.
type Model struct {
	player *streamplay.Player
	url    string

	streamName     string
	title          string
	mime           string
	elapsed        time.Duration
	buffered       int
	sourcePaused   bool
	listenerPaused bool

	quitting bool
}

// New creates a Model for a player already streaming from url.
func New(p *streamplay.Player, url string) Model {
	return Model{player: p, url: url, mime: p.MIME()}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitDone(m.player))
}

func waitDone(p *streamplay.Player) tea.Cmd {
	return func() tea.Msg {
		<-p.Done()
		return playbackEndedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.player.Close()
			return m, tea.Quit
		case " ":
			m.player.TogglePause()
			return m, nil
		case "up", "k":
			m.player.AdjustVolume(0.05)
			return m, nil
		case "down", "j":
			m.player.AdjustVolume(-0.05)
			return m, nil
		}
		return m, nil

	case tickMsg:
		m.elapsed = m.player.Position()
		m.buffered = m.player.BufferedBytes()
		m.sourcePaused = m.player.SourcePaused()
		m.listenerPaused = m.player.Paused()
		if tag := m.player.Tag(); tag != nil {
			if tag.Name != "" {
				m.streamName = tag.Name
			}
			if tag.Title != "" {
				m.title = tag.Title
			}
		}
		return m, tickCmd()

	case playbackEndedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := headerStyle.Render("streamplay")

	name := m.streamName
	if name == "" {
		name = m.url
	}
	title := titleStyle.Render(name)

	subtitle := ""
	if m.title != "" {
		subtitle = subtitleStyle.Render(m.title)
	}

	elapsedStr := util.FormatDuration(m.elapsed)
	bufferedStr := util.FormatBytes(m.buffered)

	statusIcon := "▶"
	statusText := "playing"
	if m.listenerPaused {
		statusIcon = "❚❚"
		statusText = "paused"
	}
	backpressure := ""
	if m.sourcePaused {
		backpressure = " " + warnStyle.Render("(buffering, upstream paused)")
	}

	mime := m.mime
	if mime == "" {
		mime = "unknown"
	}

	lines := []string{
		header,
		title,
	}
	if subtitle != "" {
		lines = append(lines, subtitle)
	}
	lines = append(lines,
		statusStyle.Render(fmt.Sprintf("%s %s  %s  buffered %s%s", statusIcon, statusText, elapsedStr, bufferedStr, backpressure)),
		statusStyle.Render(fmt.Sprintf("mime %s  volume %.0f%%", mime, m.player.Volume()*100)),
		helpStyle.Render("space pause · up/down volume · q quit"),
	)

	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
