package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"fflux/internal/app"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// startupAnimator shows stage updates while a command runs.
type startupAnimator interface {
	app.Reporter
	Stop()
}

type noopAnimator struct{}

func (noopAnimator) Stage(app.Stage, string) {}
func (noopAnimator) Stop()                   {}

var (
	primaryColor   = lipgloss.Color("#00A3E0")
	secondaryColor = lipgloss.Color("#F2A900")
	dimColor       = lipgloss.Color("#6C7A89")
	textColor      = lipgloss.Color("#ECEFF4")
	successColor   = lipgloss.Color("#50FA7B")
	errorColor     = lipgloss.Color("#FF5555")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(textColor)

	countStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	containerStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// progressModel renders the current stage with a spinner, switching to a
// progress bar while a download reports byte counts.
type progressModel struct {
	spinner  spinner.Model
	progress progress.Model

	stage      app.Stage
	detail     string
	percent    float64
	current    int64
	total      int64
	isProgress bool

	done bool

	updates chan progressUpdate
}

type progressUpdate struct {
	stage      app.Stage
	detail     string
	percent    float64
	current    int64
	total      int64
	isProgress bool
	done       bool
}

type updateMsg progressUpdate

// stageStarting is shown before the first reporter call; it renders as
// the generic stage label.
const stageStarting app.Stage = -1

func newProgressModel() *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &progressModel{
		spinner:  s,
		progress: p,
		stage:    stageStarting,
		updates:  make(chan progressUpdate, 16),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForUpdate(),
	)
}

func (m *progressModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return updateMsg(<-m.updates)
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		if msg.done {
			m.done = true
			return m, tea.Quit
		}
		m.stage = msg.stage
		m.detail = msg.detail
		m.percent = msg.percent
		m.current = msg.current
		m.total = msg.total
		m.isProgress = msg.isProgress

		var cmds []tea.Cmd
		if m.isProgress {
			cmds = append(cmds, m.progress.SetPercent(m.percent))
		}
		cmds = append(cmds, m.waitForUpdate())
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *progressModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("fflux"))
	b.WriteString(" ")
	if m.isProgress && m.total > 0 {
		b.WriteString(m.progress.View())
		b.WriteString(" ")
		b.WriteString(countStyle.Render(fmt.Sprintf("%s / %s", formatSize(m.current), formatSize(m.total))))
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(statusStyle.Render(formatStageMessage(m.stage, m.detail)))
	}
	return containerStyle.Render(b.String())
}

func (m *progressModel) sendUpdate(update progressUpdate) {
	select {
	case m.updates <- update:
	default:
		// Drop if the model is behind; the next update supersedes this one.
	}
}

// sendFinal queues the done update, waiting for room until deadline fires.
func (m *progressModel) sendFinal(deadline <-chan time.Time) bool {
	select {
	case m.updates <- progressUpdate{done: true}:
		return true
	case <-deadline:
		return false
	}
}

// ProgressDisplay runs the bubbletea program that draws stage updates inline.
type ProgressDisplay struct {
	program *tea.Program
	model   *progressModel
	writer  io.Writer
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

// NewProgressDisplay starts an inline display writing to w.
func NewProgressDisplay(w io.Writer) *ProgressDisplay {
	model := newProgressModel()
	program := tea.NewProgram(
		model,
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	d := &ProgressDisplay{
		program: program,
		model:   model,
		writer:  w,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(d.done)
	}()
	return d
}

// Stage implements app.Reporter.
func (d *ProgressDisplay) Stage(stage app.Stage, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.model.sendUpdate(parseStageUpdate(stage, detail))
}

// Stop ends the display and clears its line.
func (d *ProgressDisplay) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	deadline := time.After(500 * time.Millisecond)
	if d.model.sendFinal(deadline) {
		select {
		case <-d.done:
		case <-deadline:
			d.program.Kill()
		}
	} else {
		d.program.Kill()
	}
	_, _ = fmt.Fprint(d.writer, "\r\033[K")
}

// parseStageUpdate turns a reporter call into a model update, reading byte
// counts back out of download progress details.
func parseStageUpdate(stage app.Stage, detail string) progressUpdate {
	update := progressUpdate{
		stage:  stage,
		detail: detail,
	}
	if stage != app.StageDownloading || !strings.Contains(detail, "/") {
		return update
	}
	var current, total int64
	if _, err := fmt.Sscanf(detail, app.DownloadProgressFormat, &current, &total); err == nil && total > 0 {
		update.isProgress = true
		update.current = current
		update.total = total
		update.percent = float64(current) / float64(total)
		update.detail = "Downloading"
	}
	return update
}

func formatStageMessage(stage app.Stage, detail string) string {
	label := stage.String()
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return label + "..."
	}
	return detail
}
