// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-based interactive chat.
//
// Slash commands are the same ones the full-screen UI runs. liner gives
// line editing, tab completion and persistent input history.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

// =============================================================================
// LINE EDITOR
// =============================================================================

// ChatCLI wraps liner with history persisted to ~/.rigchat/chat_history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor. complete may be nil.
func NewChatCLI(historyFile string, complete func(string) []string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetCompleter(complete)
	}

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// DefaultHistoryFile returns ~/.rigchat/chat_history, or a temp-dir path
// when the home directory is unknown.
func DefaultHistoryFile() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chat_history")
}

// LoadHistory reads saved history. A missing file is fine.
func (c *ChatCLI) LoadHistory() {
	f, err := os.Open(c.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := c.line.ReadHistory(f); err != nil {
		log.Printf("CHAT_HISTORY_READ_FAILED | path=%s error=%v", c.historyFile, err)
	}
}

// ReadInput prompts for a line, pre-filled with initial when set.
func (c *ChatCLI) ReadInput(prompt, initial string) (string, error) {
	var (
		input string
		err   error
	)
	if initial != "" {
		input, err = c.line.PromptWithSuggestion(prompt, initial, -1)
	} else {
		input, err = c.line.Prompt(prompt)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes history with 0600 permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		log.Printf("CHAT_HISTORY_SAVE_FAILED | error=%v", err)
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		log.Printf("CHAT_HISTORY_SAVE_FAILED | error=%v", err)
		return
	}
	defer f.Close()
	if _, err := c.line.WriteHistory(f); err != nil {
		log.Printf("CHAT_HISTORY_SAVE_FAILED | error=%v", err)
	}
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// replSession runs lines against the orchestrator. It has no terminal
// dependencies so it can be driven directly.
type replSession struct {
	rt       *Runtime
	registry *commands.Registry
	cmdCtx   *commands.Context
	out      io.Writer
	errOut   io.Writer
	quiet    bool

	// pending pre-fills the next prompt (set by /resend).
	pending string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newREPLSession(ctx context.Context, rt *Runtime, args Args) *replSession {
	reg := commands.NewRegistry()
	return &replSession{
		rt:       rt,
		registry: reg,
		cmdCtx: &commands.Context{
			Ctx:      ctx,
			Chat:     rt.Chat,
			Usage:    rt.Usage,
			Registry: reg,
		},
		out:    args.Stdout,
		errOut: args.Stderr,
		quiet:  args.Quiet,
	}
}

// completer returns tab completions including current message IDs.
func (s *replSession) completer() func(string) []string {
	comp := commands.NewCompleter(s.registry)
	comp.MessageIDs = func() []string {
		msgs := s.rt.Chat.Conversation().Messages()
		ids := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		return ids
	}
	return comp.Complete
}

// handleLine processes one input line and reports whether to exit.
func (s *replSession) handleLine(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}

	if commands.IsCommand(input) {
		res, err := s.registry.Execute(s.cmdCtx, input)
		if err != nil {
			DisplayError(s.errOut, err, false)
			return false
		}
		if res.Output != "" {
			fmt.Fprintln(s.out, res.Output)
		}
		s.pending = res.Input
		return res.Quit
	}

	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		return true
	}

	s.send(ctx, input)
	return false
}

// send submits input, streaming chunks as they arrive. The request can be
// cancelled with interrupt without leaving the session.
func (s *replSession) send(ctx context.Context, input string) {
	reqCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	s.rt.Chat.SetInput(input)
	msg, err := submitAndPrint(reqCtx, s.rt.Chat, s.out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(s.errOut, WarningStyle.Render("[Cancelled]"))
			return
		}
		// A rejected submission leaves the input in place; clear it so the
		// next line starts fresh.
		s.rt.Chat.SetInput("")
		DisplayError(s.errOut, submitError(err), false)
		return
	}
	if !s.quiet {
		printMeta(s.out, msg)
	}
}

// interrupt cancels the in-flight request and reports whether there was one.
func (s *replSession) interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// =============================================================================
// HANDLER
// =============================================================================

// HandleChat runs the line-based chat until /quit, Ctrl+C at the prompt,
// or end of input.
func HandleChat(ctx context.Context, rt *Runtime, args Args) error {
	s := newREPLSession(ctx, rt, args)

	cli := NewChatCLI(DefaultHistoryFile(), s.completer())
	defer cli.Close()

	// Interrupt during a request cancels that request only.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			s.interrupt()
		}
	}()

	if !args.Quiet {
		printWelcome(ctx, s.out, rt)
	}

	prompt := "rigchat> "
	for ctx.Err() == nil {
		initial := s.pending
		s.pending = ""

		input, err := cli.ReadInput(prompt, initial)
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				log.Printf("CHAT_READ_FAILED | error=%v", err)
			}
			fmt.Fprintln(s.out)
			break
		}
		if s.handleLine(ctx, input) {
			break
		}
	}

	if !args.Quiet {
		printExitSummary(ctx, s.out, rt)
	}
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// submitAndPrint submits the orchestrator's pending input. Streamed chunks
// are written as they arrive. A non-streamed reply is written whole.
func submitAndPrint(ctx context.Context, orc *chat.Orchestrator, out io.Writer) (*model.Message, error) {
	var (
		mu       sync.Mutex
		streamed bool
	)
	unsubscribe := orc.Subscribe(func(ev chat.Event) {
		if ev.Type != chat.EventChunk {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !streamed {
			fmt.Fprint(out, roleLabel(model.RoleAssistant))
			streamed = true
		}
		fmt.Fprint(out, ev.Chunk)
	})
	msg, err := orc.Submit(ctx)
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	if streamed {
		fmt.Fprintln(out)
	}
	if err != nil {
		return msg, err
	}
	if !streamed {
		fmt.Fprintln(out, roleLabel(msg.Role)+msg.Content)
	}
	return msg, nil
}

// submitError rewrites errors whose fix is a command the user can run.
func submitError(err error) error {
	var capErr *chat.CapabilityError
	switch {
	case errors.Is(err, chat.ErrAuthRequired):
		return fmt.Errorf("signed out; run 'rigchat auth signin' to start chatting")
	case errors.Is(err, chat.ErrEmptyInput):
		return fmt.Errorf("nothing to send")
	case errors.As(err, &capErr):
		return fmt.Errorf("%s (try /model or /mode)", capErr.Reason)
	}
	return err
}

func roleLabel(role model.Role) string {
	style := PromptStyle
	if role == model.RoleError {
		style = ErrorStyle
	}
	return style.Render(role.DisplayName()+":") + " "
}

// printMeta writes the image, function and model line under a reply.
func printMeta(w io.Writer, msg *model.Message) {
	if msg == nil {
		return
	}
	var parts []string
	if msg.ImageURL != "" && msg.Type == model.TypeImage {
		parts = append(parts, "Image: "+msg.ImageURL)
	}
	if msg.FunctionUsed != "" {
		parts = append(parts, "Function: "+msg.FunctionUsed)
	}
	if msg.Model != "" {
		parts = append(parts, msg.Model)
	}
	if len(parts) > 0 {
		fmt.Fprintln(w, DimStyle.Render(strings.Join(parts, " | ")))
	}
}

func printWelcome(ctx context.Context, w io.Writer, rt *Runtime) {
	snap := rt.Chat.Snapshot()
	fmt.Fprintln(w, TitleStyle.Render("rigchat")+" "+DimStyle.Render(Version))
	fmt.Fprintln(w, RenderField("Model", snap.Model))
	fmt.Fprintln(w, RenderField("Mode", string(snap.Mode)))
	fmt.Fprintln(w, RenderField("Usage", telemetry.FormatUsage(rt.Usage.Get(ctx))))
	if !snap.SignedIn {
		fmt.Fprintln(w, WarningStyle.Render("Signed out. Run 'rigchat auth signin' to start chatting."))
	}
	fmt.Fprintln(w, DimStyle.Render("Type /help for commands, /quit to exit."))
	fmt.Fprintln(w)
}

func printExitSummary(ctx context.Context, w io.Writer, rt *Runtime) {
	n := rt.Chat.Conversation().Len()
	fmt.Fprintf(w, "%s %d messages, usage %s\n",
		DimStyle.Render("Session:"), n, telemetry.FormatUsage(rt.Usage.Get(ctx)))
}
