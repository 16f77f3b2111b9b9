// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/telemetry"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for a chat session.
type Model struct {
	ctx   context.Context
	orc   *core.Orchestrator
	usage *telemetry.UsageTracker
	theme *styles.Theme
	keys  KeyMap

	registry  *commands.Registry
	completer *commands.Completer
	cmdCtx    *commands.Context

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	events      chan core.Event
	unsubscribe func()

	snap       core.Snapshot
	usageCount int64

	// status is the last command output or notice; statusErr styles it
	// as an error.
	status    string
	statusErr bool

	width    int
	height   int
	ready    bool
	quitting bool
}

// Option configures a Model.
type Option func(*Model)

// WithUsage shows and refreshes the monthly token count.
func WithUsage(u *telemetry.UsageTracker) Option {
	return func(m *Model) { m.usage = u }
}

// WithExportDir sets where /export writes files.
func WithExportDir(dir string) Option {
	return func(m *Model) { m.cmdCtx.ExportDir = dir }
}

// WithContext sets the context submissions run under.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// New creates a chat model over orc and subscribes to its events.
func New(orc *core.Orchestrator, theme *styles.Theme, opts ...Option) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message or /help..."
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.Spinner

	reg := commands.NewRegistry()
	m := Model{
		ctx:       context.Background(),
		orc:       orc,
		theme:     theme,
		keys:      DefaultKeyMap(),
		registry:  reg,
		completer: commands.NewCompleter(reg),
		cmdCtx:    &commands.Context{Chat: orc, Registry: reg},
		viewport:  vp,
		input:     ti,
		spinner:   sp,
		events:    make(chan core.Event, 1),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.cmdCtx.Ctx = m.ctx
	m.cmdCtx.Usage = m.usage
	m.completer.MessageIDs = func() []string {
		msgs := orc.Conversation().Messages()
		ids := make([]string, len(msgs))
		for i, msg := range msgs {
			ids[i] = msg.ID
		}
		return ids
	}

	m.unsubscribe = orc.Subscribe(latestOnly(m.events))
	m.sync()
	return m
}

// latestOnly returns an observer that keeps only the newest event in ch.
// Every event carries a full snapshot.
func latestOnly(ch chan core.Event) core.Observer {
	var mu sync.Mutex
	return func(ev core.Event) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
		ch <- ev
	}
}

// Init starts the cursor blink, the spinner, the event listener and the
// first usage read.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForEvent(m.events),
		usageCmd(m.ctx, m.usage),
	)
}

// Close detaches the model from the orchestrator.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// sync re-reads the orchestrator and re-renders the conversation.
func (m *Model) sync() {
	m.snap = m.orc.Snapshot()
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoTop()
}

// Snapshot returns the state the model last rendered.
func (m Model) Snapshot() core.Snapshot {
	return m.snap
}

// Status returns the status line text.
func (m Model) Status() string {
	return m.status
}

// InputValue returns the text in the input line.
func (m Model) InputValue() string {
	return m.input.Value()
}
