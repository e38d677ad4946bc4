package tui

import (
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

const progressTick = 120 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type progressTickMsg struct{}

type pageMsg struct {
	source string
	page   int
}

type stopMsg struct{}

// progressModel renders "Retrieving" followed by one dot per fetched page
// for each source.
type progressModel struct {
	frame   int
	width   int
	sources []string
	pages   map[string]int
	stopped bool
}

func newProgressModel() progressModel {
	return progressModel{pages: make(map[string]int)}
}

func doProgressTick() tea.Cmd {
	return tea.Tick(progressTick, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

func (m progressModel) Init() tea.Cmd {
	return doProgressTick()
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case progressTickMsg:
		if m.stopped {
			return m, nil
		}
		m.frame++
		return m, doProgressTick()
	case pageMsg:
		if _, ok := m.pages[msg.source]; !ok {
			m.sources = append(m.sources, msg.source)
		}
		m.pages[msg.source] = max(m.pages[msg.source], msg.page)
	case stopMsg:
		m.stopped = true
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.stopped {
		return ""
	}

	glyph := stderrRenderer.NewStyle().Foreground(ColorCyan).Render(spinnerFrames[m.frame%len(spinnerFrames)])
	parts := []string{glyph + " " + applyGradient("Retrieving", ColorCyan, ColorPurple)}
	for _, src := range m.sources {
		dots := strings.Repeat(".", m.pages[src])
		parts = append(parts, stderrRenderer.NewStyle().Foreground(ColorField).Render(src)+dots)
	}

	line := strings.Join(parts, " ")
	if m.width > 0 {
		line = ansi.Truncate(line, m.width, "…")
	}
	return line
}

// Progress animates a retrieval indicator on a terminal. A nil *Progress
// is valid and does nothing.
type Progress struct {
	program *tea.Program
	done    chan struct{}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// StartProgress starts the indicator on out. It returns nil when out is not
// a terminal.
func StartProgress(out *os.File) *Progress {
	if !IsTerminal(out) {
		return nil
	}

	p := tea.NewProgram(newProgressModel(),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	pr := &Progress{program: p, done: make(chan struct{})}
	go func() {
		defer close(pr.done)
		_, _ = p.Run()
	}()
	return pr
}

// Page records that page n of source has been fetched.
func (p *Progress) Page(source string, n int) {
	if p == nil {
		return
	}
	p.program.Send(pageMsg{source: source, page: n})
}

// Stop clears the indicator and waits for the terminal to be restored.
func (p *Progress) Stop() {
	if p == nil {
		return
	}
	p.program.Send(stopMsg{})
	<-p.done
}
