package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Update is one progress event. Total is zero when only the position moved.
type Update struct {
	Total    uint64
	Position uint64
}

// Sink forwards processor progress to a running Model. Close it once the
// run returns so the model can quit.
type Sink struct {
	updates chan Update
}

func NewSink() *Sink {
	return &Sink{updates: make(chan Update, 64)}
}

func (s *Sink) SetTotal(n uint64) {
	s.updates <- Update{Total: n}
}

func (s *Sink) SetPosition(n uint64) {
	s.updates <- Update{Position: n}
}

func (s *Sink) Close() {
	close(s.updates)
}

func (s *Sink) Updates() <-chan Update {
	return s.updates
}

type Model struct {
	updates  <-chan Update
	title    string
	started  time.Time
	width    int
	total    uint64
	position uint64
	quitting bool
	// interrupted is set when the user quit before the run finished.
	interrupted bool
}

type doneMsg struct{}

type updateMsg Update

func NewModel(title string, updates <-chan Update) Model {
	return Model{updates: updates, title: title, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		if msg.Total > 0 {
			m.total = msg.Total
		}
		if msg.Position > m.position {
			m.position = msg.Position
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

// Interrupted reports whether the user asked to stop the run.
func (m Model) Interrupted() bool {
	return m.interrupted
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = math.Min(1, float64(m.position)/float64(m.total))
	}

	elapsed := time.Since(m.started).Round(time.Millisecond)

	lines := []string{
		titleStyle.Render(m.title),
		labelStyle.Render(fmt.Sprintf("Entries: %d/%d", m.position, m.total)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		barStyle.Render(renderBar(barWidth, ratio)),
	}

	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle   = lipgloss.NewStyle().Foreground(ColorSuccess)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
)
