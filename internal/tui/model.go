// Package tui is the terminal front end for a capture session. It renders
// controller events and maps key presses onto controller operations.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/offlinefirst/framegrab/pkg/capture"
	"github.com/offlinefirst/framegrab/pkg/elapsed"
	"github.com/offlinefirst/framegrab/pkg/output"
)

const maxShots = 5

// Controller is the part of *capture.Controller the TUI drives.
type Controller interface {
	RequestCapture(ctx context.Context, req capture.Request) error
	CaptureNow(ctx context.Context, delay time.Duration) error
	CancelDelay(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EventMsg carries a controller event into the program.
type EventMsg struct{ Event capture.Event }

// SavedMsg reports a finished download.
type SavedMsg struct{ Saved output.Saved }

type actionDoneMsg struct {
	action string
	err    error
}

// Options configures a Model.
type Options struct {
	Delay     time.Duration
	DelayStep time.Duration
	Request   capture.Request
}

type shotLine struct {
	sequence int
	filename string
	width    int
	height   int
	strategy string
	elapsed  time.Duration
	path     string
	saveErr  error
}

// Model is the bubbletea model for a capture session.
type Model struct {
	ctx  context.Context
	ctrl Controller
	keys KeyMap
	opts Options

	width  int
	height int

	state     capture.State
	buttons   capture.Buttons
	status    capture.Status
	elapsed   time.Duration
	remaining time.Duration
	delay     time.Duration
	shots     []shotLine
	actionErr string
}

// New creates a model driving ctrl.
func New(ctx context.Context, ctrl Controller, opts Options) Model {
	if opts.DelayStep <= 0 {
		opts.DelayStep = 500 * time.Millisecond
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	return Model{
		ctx:   ctx,
		ctrl:  ctrl,
		keys:  DefaultKeyMap(),
		opts:  opts,
		state: capture.StateIdle,
		delay: opts.Delay,
	}
}

// Listener forwards controller events to send, usually (*tea.Program).Send.
func Listener(send func(tea.Msg)) capture.Listener {
	return func(ev capture.Event) { send(EventMsg{Event: ev}) }
}

// SavedListener forwards download results to send.
func SavedListener(send func(tea.Msg)) func(output.Saved) {
	return func(s output.Saved) { send(SavedMsg{Saved: s}) }
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case EventMsg:
		m.apply(msg.Event)
		return m, nil
	case SavedMsg:
		m.markSaved(msg.Saved)
		return m, nil
	case actionDoneMsg:
		m.actionErr = ""
		if msg.err != nil && !quietError(msg.err) {
			m.actionErr = fmt.Sprintf("%s: %v", msg.action, msg.err)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Start):
		if !m.buttons.Start {
			return m, nil
		}
		req := m.opts.Request
		return m, m.run("start", func(ctx context.Context) error { return m.ctrl.RequestCapture(ctx, req) })
	case key.Matches(msg, m.keys.Screenshot):
		if !m.buttons.Screenshot {
			return m, nil
		}
		delay := m.delay
		return m, m.run("screenshot", func(ctx context.Context) error { return m.ctrl.CaptureNow(ctx, delay) })
	case key.Matches(msg, m.keys.Stop):
		if !m.buttons.Stop {
			return m, nil
		}
		return m, m.run("stop", m.ctrl.Stop)
	case key.Matches(msg, m.keys.CancelDelay):
		if !m.buttons.CancelDelay {
			return m, nil
		}
		return m, m.run("cancel", m.ctrl.CancelDelay)
	case key.Matches(msg, m.keys.DelayUp):
		m.delay += m.opts.DelayStep
		return m, nil
	case key.Matches(msg, m.keys.DelayDown):
		m.delay -= m.opts.DelayStep
		if m.delay < 0 {
			m.delay = 0
		}
		return m, nil
	}
	return m, nil
}

// run executes fn off the program goroutine; controller calls block on the loop.
func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

// Errors the controller already surfaced as a status message.
func quietError(err error) bool {
	var acquireErr *capture.AcquireError
	if errors.As(err, &acquireErr) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func (m *Model) apply(ev capture.Event) {
	switch ev.Kind {
	case capture.EventState:
		m.state = ev.State
		if ev.State != capture.StateDelaying {
			m.remaining = 0
		}
		if ev.State == capture.StateRequesting {
			m.elapsed = 0
		}
	case capture.EventButtons:
		m.buttons = ev.Buttons
	case capture.EventStatus:
		m.status = ev.Status
	case capture.EventCountdown:
		m.remaining = ev.Remaining
	case capture.EventElapsed:
		m.elapsed = ev.Elapsed
	case capture.EventScreenshot:
		if ev.Screenshot == nil {
			return
		}
		shot := ev.Screenshot
		line := shotLine{
			sequence: shot.Sequence,
			filename: shot.Filename,
			width:    shot.Image.Width,
			height:   shot.Image.Height,
			strategy: string(shot.Image.Strategy),
			elapsed:  shot.Elapsed,
		}
		m.shots = append([]shotLine{line}, m.shots...)
		if len(m.shots) > maxShots {
			m.shots = m.shots[:maxShots]
		}
	}
}

func (m *Model) markSaved(saved output.Saved) {
	for i := range m.shots {
		if m.shots[i].sequence == saved.Blob.Sequence {
			m.shots[i].path = saved.Path
			m.shots[i].saveErr = saved.Err
			return
		}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("framegrab"))
	b.WriteString("  ")
	b.WriteString(stateBadge(m.state))
	b.WriteString("\n\n")

	if m.status.Message != "" {
		b.WriteString(statusStyle(m.status.Severity).Render(m.status.Message))
		b.WriteString("\n")
	}
	if m.actionErr != "" {
		b.WriteString(statusStyle(capture.SeverityError).Render(m.actionErr))
		b.WriteString("\n")
	}

	info := []string{
		fmt.Sprintf("elapsed  %s", elapsed.Format(m.elapsed)),
		fmt.Sprintf("delay    %.1fs", m.delay.Seconds()),
	}
	if m.state == capture.StateDelaying {
		info = append(info, countdownStyle.Render(fmt.Sprintf("shot in  %.1fs", m.remaining.Seconds())))
	}
	b.WriteString(panelStyle.Render(strings.Join(info, "\n")))
	b.WriteString("\n")

	b.WriteString(m.renderButtons())
	b.WriteString("\n\n")

	if len(m.shots) == 0 {
		b.WriteString(dimStyle.Render("No screenshots yet."))
	} else {
		lines := make([]string, 0, len(m.shots))
		for _, s := range m.shots {
			lines = append(lines, renderShot(s))
		}
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, lines...))
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderButtons() string {
	labels := []struct {
		name    string
		enabled bool
	}{
		{"Start", m.buttons.Start},
		{"Screenshot", m.buttons.Screenshot},
		{"Stop", m.buttons.Stop},
		{"Cancel delay", m.buttons.CancelDelay},
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		style := disabledStyle
		if l.enabled {
			style = enabledStyle
		}
		parts = append(parts, style.Render("["+l.name+"]"))
	}
	return strings.Join(parts, " ")
}

func renderShot(s shotLine) string {
	line := fmt.Sprintf("#%d %s  %dx%d %s @ %s", s.sequence, s.filename, s.width, s.height, s.strategy, elapsed.Format(s.elapsed))
	switch {
	case s.saveErr != nil:
		line += "  " + statusStyle(capture.SeverityError).Render("save failed: "+s.saveErr.Error())
	case s.path != "":
		line += "  " + dimStyle.Render("-> "+s.path)
	}
	return line
}

func (m Model) renderHelp() string {
	bindings := m.keys.ShortHelp()
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+dimStyle.Render(h.Desc))
	}
	return strings.Join(parts, " • ")
}
