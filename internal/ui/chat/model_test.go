// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/gateway"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// =============================================================================
// HELPERS
// =============================================================================

type noopClipboard struct{}

func (noopClipboard) WriteAll(string) error { return nil }

func newTestModel(t *testing.T, gw *gateway.MockGateway, usage ...*telemetry.UsageTracker) (Model, *core.Orchestrator) {
	t.Helper()
	coreOpts := []core.Option{core.WithIDs(&model.SequenceIDs{}), core.WithClipboard(noopClipboard{})}
	var opts []Option
	for _, u := range usage {
		coreOpts = append(coreOpts, core.WithUsage(u))
		opts = append(opts, WithUsage(u))
	}
	orc := core.New(gw, coreOpts...)
	orc.SetEnableStreaming(false)

	m := New(orc, styles.NewTheme(), opts...)
	t.Cleanup(m.Close)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model), orc
}

func typeText(m Model, s string) Model {
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return updated.(Model)
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	updated, cmd := m.Update(tea.KeyMsg{Type: k})
	return updated.(Model), cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	updated, _ := m.Update(cmd())
	return updated.(Model)
}

// =============================================================================
// TESTS
// =============================================================================

func TestSubmit_RendersReply(t *testing.T) {
	usage := telemetry.NewUsageTracker(telemetry.NewMemoryStore())
	m, orc := newTestModel(t, gateway.NewMockGateway(), usage)

	m = typeText(m, "hello there")
	assert.Equal(t, "hello there", m.InputValue())

	m, cmd := press(m, tea.KeyEnter)
	assert.Empty(t, m.InputValue(), "input clears on send")

	msg := cmd()
	done, ok := msg.(submitDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	updated, usageRefresh := m.Update(done)
	m = updated.(Model)
	require.NotNil(t, usageRefresh)
	m = run(t, m, usageRefresh)

	assert.Equal(t, 2, orc.Conversation().Len())
	view := m.View()
	assert.Contains(t, view, "Received your message")
	assert.Contains(t, view, "hello there")
	assert.Greater(t, m.usageCount, int64(0))
}

func TestSubmit_SignedOutRestoresInput(t *testing.T) {
	m, _ := newTestModel(t, gateway.NewMockGateway().SetSignedIn(false))
	assert.Contains(t, m.View(), "rigchat auth signin")

	m = typeText(m, "are you there?")
	m, cmd := press(m, tea.KeyEnter)
	m = run(t, m, cmd)

	assert.Equal(t, "are you there?", m.InputValue())
	assert.Equal(t, signInHint, m.Status())
}

func TestKeys_CycleModeAndModel(t *testing.T) {
	m, _ := newTestModel(t, gateway.NewMockGateway())
	require.Equal(t, model.ModeText, m.Snapshot().Mode)

	m, _ = press(m, tea.KeyTab)
	assert.Equal(t, model.ModeImageGen, m.Snapshot().Mode)
	assert.Equal(t, "Mode: image-gen", m.Status())

	before := m.Snapshot().Model
	m, _ = press(m, tea.KeyCtrlT)
	assert.Equal(t, nextModel(before), m.Snapshot().Model)
	assert.NotEqual(t, before, m.Snapshot().Model)
}

func TestNextModel(t *testing.T) {
	ids := model.ModelIDs()
	assert.Equal(t, ids[1], nextModel(ids[0]))
	assert.Equal(t, ids[0], nextModel(ids[len(ids)-1]))
	assert.Equal(t, ids[0], nextModel("not-a-model"))
}

func TestKeys_TabCompletesCommands(t *testing.T) {
	m, _ := newTestModel(t, gateway.NewMockGateway())

	m = typeText(m, "/exp")
	m, _ = press(m, tea.KeyTab)
	assert.Equal(t, "/export ", m.InputValue())
	assert.Equal(t, model.ModeText, m.Snapshot().Mode, "tab inside a command does not cycle modes")
}

func TestKeys_MessageActions(t *testing.T) {
	m, orc := newTestModel(t, gateway.NewMockGateway())

	m = typeText(m, "first question")
	m, cmd := press(m, tea.KeyEnter)
	m = run(t, m, cmd)
	require.Equal(t, 2, orc.Conversation().Len())

	m, _ = press(m, tea.KeyCtrlR)
	assert.Equal(t, "first question", m.InputValue())

	m, _ = press(m, tea.KeyCtrlY)
	assert.Contains(t, m.Status(), "Copied")

	m, _ = press(m, tea.KeyCtrlD)
	assert.Equal(t, 1, orc.Conversation().Len())

	m, _ = press(m, tea.KeyCtrlN)
	assert.Equal(t, 0, orc.Conversation().Len())
	assert.Empty(t, m.Snapshot().Messages)
}

func TestCommands(t *testing.T) {
	m, _ := newTestModel(t, gateway.NewMockGateway())

	m = typeText(m, "/help")
	m, _ = press(m, tea.KeyEnter)
	assert.Contains(t, m.Status(), "Commands:")
	assert.Contains(t, m.View(), "more lines")

	m = typeText(m, "/nope")
	m, _ = press(m, tea.KeyEnter)
	assert.Contains(t, m.Status(), "unknown command /nope")
	assert.True(t, m.statusErr)

	m = typeText(m, "/quit")
	_, cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestQuitKey(t *testing.T) {
	m, _ := newTestModel(t, gateway.NewMockGateway())
	m, cmd := press(m, tea.KeyEsc)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestEventBridge(t *testing.T) {
	m, orc := newTestModel(t, gateway.NewMockGateway())

	orc.SetInput("from elsewhere")
	_, err := orc.Submit(context.Background())
	require.NoError(t, err)

	got := make(chan tea.Msg, 1)
	go func() { got <- waitForEvent(m.events)() }()

	select {
	case msg := <-got:
		_, ok := msg.(eventMsg)
		require.True(t, ok)
		updated, next := m.Update(msg)
		m = updated.(Model)
		assert.NotNil(t, next, "listener is re-armed")
		assert.Len(t, m.Snapshot().Messages, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestLatestOnly(t *testing.T) {
	ch := make(chan core.Event, 1)
	obs := latestOnly(ch)

	obs(core.Event{MessageID: "a"})
	obs(core.Event{MessageID: "b"})
	obs(core.Event{MessageID: "c"})

	assert.Equal(t, "c", (<-ch).MessageID)
	assert.Len(t, ch, 0)
}

func TestView_BeforeResize(t *testing.T) {
	orc := core.New(gateway.NewMockGateway())
	m := New(orc, styles.NewTheme())
	defer m.Close()
	assert.Equal(t, "Loading...", m.View())
}
