// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/gateway"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
	"github.com/jeranaias/rigchat/internal/tools"
)

func TestMain(m *testing.M) {
	DisableColors()
	os.Exit(m.Run())
}

// =============================================================================
// HELPERS
// =============================================================================

type nopClipboard struct{}

func (nopClipboard) WriteAll(string) error { return nil }

func newTestRuntime(t *testing.T, gw *gateway.MockGateway) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Gateway.Provider = gateway.ProviderMock
	cfg.Gateway.CredentialsPath = filepath.Join(t.TempDir(), "credentials.json")
	cfg.Usage.Backend = "memory"

	usage := telemetry.NewUsageTracker(telemetry.NewMemoryStore())
	return &Runtime{
		Config:  cfg,
		Gateway: gw,
		Usage:   usage,
		Chat: chat.New(gw,
			chat.WithIDs(&model.SequenceIDs{}),
			chat.WithTools(tools.NewExecutor(tools.NewRegistry())),
			chat.WithUsage(usage),
			chat.WithClipboard(nopClipboard{}),
		),
	}
}

func testArgs(raw ...string) (Args, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return Args{Raw: raw, Stdout: &out, Stderr: &errOut}, &out, &errOut
}

func decodeResponse(t *testing.T, b []byte, data interface{}) JSONResponse {
	t.Helper()
	var resp JSONResponse
	resp.Data = data
	require.NoError(t, json.Unmarshal(b, &resp))
	return resp
}

// restoreLogger keeps tests that reconfigure the standard logger isolated.
func restoreLogger(t *testing.T) {
	t.Helper()
	w, flags := log.Writer(), log.Flags()
	t.Cleanup(func() {
		log.SetOutput(w)
		log.SetFlags(flags)
	})
}

// =============================================================================
// ARG PARSER
// =============================================================================

func TestArgParser(t *testing.T) {
	tests := []struct {
		name  string
		raw   []string
		bools []string
		check func(*testing.T, *ArgParser)
	}{
		{
			name: "subcommand and positionals",
			raw:  []string{"set", "1200"},
			check: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "set", p.Subcommand())
				assert.Equal(t, "1200", p.Positional(1))
				assert.Equal(t, 2, p.PositionalCount())
				assert.Equal(t, "", p.Positional(5))
			},
		},
		{
			name: "long and short flags with values",
			raw:  []string{"--model", "gpt-4o", "-f", "a.txt", "hello"},
			check: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "gpt-4o", p.Flag("model"))
				assert.Equal(t, "a.txt", p.Flag("f"))
				assert.Equal(t, "hello", p.Subcommand())
			},
		},
		{
			name: "equals form",
			raw:  []string{"--mode=image-gen", "--verbose=false"},
			check: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "image-gen", p.Flag("mode"))
				assert.False(t, p.BoolFlag("verbose"))
				assert.True(t, p.HasFlag("verbose"))
			},
		},
		{
			name:  "named bool never takes a value",
			raw:   []string{"--remote", "extra"},
			bools: []string{"remote"},
			check: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("remote"))
				assert.Equal(t, "extra", p.Subcommand())
			},
		},
		{
			name: "unnamed flag before a value consumes it",
			raw:  []string{"--remote", "extra"},
			check: func(t *testing.T, p *ArgParser) {
				assert.False(t, p.BoolFlag("remote"))
				assert.Equal(t, "extra", p.Flag("remote"))
			},
		},
		{
			name: "trailing flag is a switch",
			raw:  []string{"status", "--verbose"},
			check: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("verbose", "v"))
			},
		},
		{
			name: "repeated flags",
			raw:  []string{"--file", "a.md", "--file", "b.md"},
			check: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, []string{"a.md", "b.md"}, p.Flags("file"))
				assert.Equal(t, "b.md", p.Flag("file"))
			},
		},
		{
			name: "double dash ends flags",
			raw:  []string{"estimate", "--", "--not-a-flag", "-x"},
			check: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, []string{"estimate", "--not-a-flag", "-x"}, p.PositionalFrom(0))
				assert.False(t, p.HasFlag("not-a-flag"))
			},
		},
		{
			name: "lone dash is positional",
			raw:  []string{"-"},
			check: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "-", p.Subcommand())
			},
		},
		{
			name: "FlagOr falls through names",
			raw:  []string{"-m", "claude-sonnet-4"},
			check: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "claude-sonnet-4", p.FlagOr("x", "model", "m"))
				assert.Equal(t, "x", p.FlagOr("x", "mode"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, NewArgParser(tt.raw, tt.bools...))
		})
	}
}

func TestArgParser_FlagInt(t *testing.T) {
	p := NewArgParser([]string{"--limit", "25", "--bad", "x"})

	n, err := p.FlagInt("limit")
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = p.FlagInt("bad")
	assert.Error(t, err)
	_, err = p.FlagInt("missing")
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"1200", 1200, false},
		{"1_000_000", 1000000, false},
		{"", 0, true},
		{"-5", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCount(tt.in, "token count")
			if tt.wantErr {
				var valErr *ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Equal(t, "token count", valErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"true", "YES", "y", "1", "on"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"false", "no", "N", "0", "off"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}

// =============================================================================
// COMMAND PARSING
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		want    Command
		check   func(*testing.T, Args)
		wantErr bool
	}{
		{name: "no args starts the UI", argv: nil, want: CmdTUI},
		{name: "tui", argv: []string{"tui"}, want: CmdTUI},
		{name: "chat alias", argv: []string{"repl"}, want: CmdChat},
		{name: "ask alias", argv: []string{"a", "hi"}, want: CmdAsk},
		{name: "models alias", argv: []string{"model"}, want: CmdModels},
		{name: "usage", argv: []string{"usage", "set", "5"}, want: CmdUsage},
		{name: "auth alias", argv: []string{"login"}, want: CmdAuth},
		{name: "serve alias", argv: []string{"server"}, want: CmdServe},
		{name: "config alias", argv: []string{"cfg", "path"}, want: CmdConfig},
		{name: "case insensitive", argv: []string{"ASK", "x"}, want: CmdAsk},
		{name: "help flag", argv: []string{"ask", "-h"}, want: CmdHelp},
		{name: "version flag", argv: []string{"--version"}, want: CmdVersion},
		{
			name: "global flags are removed",
			argv: []string{"--json", "ask", "--model", "gpt-4o", "-q", "hello", "--debug", "--no-color"},
			want: CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.True(t, a.JSON)
				assert.True(t, a.Quiet)
				assert.True(t, a.Debug)
				assert.True(t, a.NoColor)
				assert.Equal(t, "gpt-4o", a.Model)
				assert.Equal(t, []string{"hello"}, a.Raw)
			},
		},
		{
			name: "equals forms",
			argv: []string{"--config=/tmp/r.toml", "--model=deepseek-chat", "models"},
			want: CmdModels,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "/tmp/r.toml", a.ConfigPath)
				assert.Equal(t, "deepseek-chat", a.Model)
				assert.Empty(t, a.Raw)
			},
		},
		{
			name: "arguments after double dash are kept",
			argv: []string{"ask", "--", "--json", "is a flag?"},
			want: CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.False(t, a.JSON)
				assert.Equal(t, []string{"--", "--json", "is a flag?"}, a.Raw)
			},
		},
		{name: "unknown command", argv: []string{"frobnicate"}, want: CmdHelp, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := ParseArgs(tt.argv)
			if tt.wantErr {
				var valErr *ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Equal(t, ExitUsageError, GetExitCode(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, cmd, "got %s", cmd)
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "ask", CmdAsk.String())
	assert.Equal(t, "serve", CmdServe.String())
	assert.Equal(t, "Command(99)", Command(99).String())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitUsageError, GetExitCode(ErrMissingArgument("prompt", "rigchat ask hi")))
	assert.Equal(t, ExitUsageError, GetExitCode(NewCommandError("ask", "", NewValidationError("x", "y", "bad"))))
	assert.Equal(t, ExitGeneralError, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitGeneralError, GetExitCode(NewCommandError("usage", "reset", errors.New("disk full"))))
}

func TestNewCommandError_Nil(t *testing.T) {
	assert.NoError(t, NewCommandError("usage", "reset", nil))
}

func TestErrorMessages(t *testing.T) {
	err := NewCommandError("usage", "reset", errors.New("disk full"))
	assert.Equal(t, "usage reset: disk full", err.Error())

	err = ErrUnknownSubcommand("auth", "dance", "status", "signin")
	assert.Contains(t, err.Error(), "unknown subcommand")
	assert.Contains(t, err.Error(), "(got: dance)")
	assert.Contains(t, err.Error(), "Example: rigchat auth [status signin]")
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, errors.New("boom"), false)
	assert.Equal(t, "Error: boom\n", buf.String())

	buf.Reset()
	DisplayError(&buf, nil, false)
	assert.Empty(t, buf.String())

	buf.Reset()
	reqErr := &gateway.RequestError{Op: "chat", Status: 502, Message: "upstream unavailable", Err: gateway.ErrUnavailable}
	DisplayError(&buf, NewCommandError("ask", "", reqErr), false)
	assert.Equal(t, "Error: upstream unavailable\n", buf.String())
}

func TestDisplayErrorJSON(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{"validation", NewValidationError("mode", "sideways", "unknown mode"), "validation_error"},
		{"auth", NewCommandError("ask", "", gateway.ErrAuthRequired), "auth_required"},
		{"command", NewCommandError("usage", "reset", errors.New("disk full")), "command_error"},
		{"generic", errors.New("boom"), "generic_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			DisplayError(&buf, tt.err, true)

			var out map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tt.wantType, out["error_type"])
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestSubmitError(t *testing.T) {
	assert.Contains(t, submitError(chat.ErrAuthRequired).Error(), "rigchat auth signin")
	assert.Equal(t, "nothing to send", submitError(chat.ErrEmptyInput).Error())

	capErr := &chat.CapabilityError{Model: "gpt-5", Mode: model.ModeImageAnalysis, Reason: "gpt-5 cannot analyze images"}
	assert.Equal(t, "gpt-5 cannot analyze images (try /model or /mode)", submitError(capErr).Error())

	other := errors.New("boom")
	assert.Same(t, other, submitError(other))
}

// =============================================================================
// JSON OUTPUT
// =============================================================================

func TestJSONResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONResponse("usage", UsageData{Used: 10, Limit: 100}).Write(&buf))

	var data UsageData
	resp := decodeResponse(t, buf.Bytes(), &data)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "usage", resp.Command)
	assert.Equal(t, int64(10), data.Used)
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)

	buf.Reset()
	require.NoError(t, NewJSONErrorResponse("ask", errors.New("boom")).Write(&buf))
	resp = decodeResponse(t, buf.Bytes(), nil)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)
}

func TestHandleVersion(t *testing.T) {
	args, out, _ := testArgs()
	require.NoError(t, HandleVersion(args))
	assert.Contains(t, out.String(), "rigchat version "+Version)

	args, out, _ = testArgs()
	args.JSON = true
	require.NoError(t, HandleVersion(args))
	var data VersionData
	decodeResponse(t, out.Bytes(), &data)
	assert.Equal(t, Version, data.Version)
	assert.NotEmpty(t, data.GoVersion)
}

func TestRun_HelpAndVersion(t *testing.T) {
	args, out, _ := testArgs()
	require.NoError(t, Run(context.Background(), CmdHelp, args))
	assert.Contains(t, out.String(), "rigchat ask <prompt>")
	assert.Contains(t, out.String(), "Ctrl+T cycle model")

	args, out, _ = testArgs()
	require.NoError(t, Run(context.Background(), CmdVersion, args))
	assert.Contains(t, out.String(), "Go version:")
}

// =============================================================================
// LINE CHAT
// =============================================================================

func TestREPL_HandleLine(t *testing.T) {
	gw := gateway.NewMockGateway()
	rt := newTestRuntime(t, gw)
	args, out, errOut := testArgs()
	ctx := context.Background()
	s := newREPLSession(ctx, rt, args)

	t.Run("blank line is ignored", func(t *testing.T) {
		assert.False(t, s.handleLine(ctx, "   "))
		assert.Equal(t, 0, gw.TotalCalls())
	})

	t.Run("message is sent and streamed", func(t *testing.T) {
		out.Reset()
		assert.False(t, s.handleLine(ctx, "hello"))
		assert.Contains(t, out.String(), "Assistant: ")
		assert.Contains(t, out.String(), `Received your message: "hello"`)
		assert.Contains(t, out.String(), model.DefaultModel)
		assert.Equal(t, 1, gw.Calls(gateway.OpChatStream))
		assert.Empty(t, errOut.String())
	})

	t.Run("slash command output is printed", func(t *testing.T) {
		out.Reset()
		assert.False(t, s.handleLine(ctx, "/help"))
		assert.Contains(t, out.String(), "/resend")
	})

	t.Run("resend pre-fills the next prompt", func(t *testing.T) {
		assert.False(t, s.handleLine(ctx, "/resend"))
		assert.Equal(t, "hello", s.pending)
	})

	t.Run("unknown slash command reports an error", func(t *testing.T) {
		errOut.Reset()
		assert.False(t, s.handleLine(ctx, "/nope"))
		assert.Contains(t, errOut.String(), "Error:")
	})

	t.Run("quit", func(t *testing.T) {
		assert.True(t, s.handleLine(ctx, "/quit"))
		assert.True(t, s.handleLine(ctx, "exit"))
		assert.True(t, s.handleLine(ctx, "QUIT"))
	})
}

func TestREPL_SignedOut(t *testing.T) {
	gw := gateway.NewMockGateway().SetSignedIn(false)
	rt := newTestRuntime(t, gw)
	args, _, errOut := testArgs()
	ctx := context.Background()
	s := newREPLSession(ctx, rt, args)

	assert.False(t, s.handleLine(ctx, "hello"))
	assert.Contains(t, errOut.String(), "signed out; run 'rigchat auth signin'")
	assert.Equal(t, 0, gw.TotalCalls())
	assert.Empty(t, rt.Chat.Input(), "rejected input is cleared")
}

func TestREPL_InterruptCancelsRequest(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gw := gateway.NewMockGateway().Block(release)
	rt := newTestRuntime(t, gw)
	args, _, errOut := testArgs()
	ctx := context.Background()
	s := newREPLSession(ctx, rt, args)

	assert.False(t, s.interrupt(), "nothing in flight")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleLine(ctx, "slow question")
	}()

	require.Eventually(t, s.interrupt, 2*time.Second, 5*time.Millisecond)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request was not cancelled")
	}
	assert.Contains(t, errOut.String(), "[Cancelled]")
}

func TestSubmitAndPrint(t *testing.T) {
	t.Run("streamed", func(t *testing.T) {
		gw := gateway.NewMockGateway().QueueStream([]string{"Hel", "lo ", "there"}, nil)
		rt := newTestRuntime(t, gw)
		var out bytes.Buffer

		rt.Chat.SetInput("hi")
		msg, err := submitAndPrint(context.Background(), rt.Chat, &out)
		require.NoError(t, err)
		assert.Equal(t, "Hello there", msg.Content)
		assert.Equal(t, "Assistant: Hello there\n", out.String())
	})

	t.Run("not streamed", func(t *testing.T) {
		gw := gateway.NewMockGateway().QueueText("Whole reply")
		rt := newTestRuntime(t, gw)
		rt.Chat.SetEnableStreaming(false)
		var out bytes.Buffer

		rt.Chat.SetInput("hi")
		msg, err := submitAndPrint(context.Background(), rt.Chat, &out)
		require.NoError(t, err)
		assert.Equal(t, "Whole reply", msg.Content)
		assert.Equal(t, "Assistant: Whole reply\n", out.String())
	})

	t.Run("failure", func(t *testing.T) {
		gw := gateway.NewMockGateway().QueueStream(nil, errors.New("refused"))
		rt := newTestRuntime(t, gw)
		var out bytes.Buffer

		rt.Chat.SetInput("hi")
		_, err := submitAndPrint(context.Background(), rt.Chat, &out)
		assert.Error(t, err)
		assert.Empty(t, out.String())
	})
}

func TestPrintMeta(t *testing.T) {
	var buf bytes.Buffer
	printMeta(&buf, nil)
	assert.Empty(t, buf.String())

	msg := model.NewMessage("msg_1", model.RoleAssistant, "")
	msg.Type = model.TypeImage
	msg.ImageURL = "https://img.example.com/a.png"
	msg.FunctionUsed = "calculate"
	msg.Model = "gpt-5"
	printMeta(&buf, msg)
	assert.Equal(t, "Image: https://img.example.com/a.png | Function: calculate | gpt-5\n", buf.String())
}

// =============================================================================
// ASK
// =============================================================================

func TestHandleAsk(t *testing.T) {
	t.Run("prints the reply", func(t *testing.T) {
		rt := newTestRuntime(t, gateway.NewMockGateway().QueueStream([]string{"4"}, nil))
		args, out, errOut := testArgs("what", "is", "2+2?")

		require.NoError(t, HandleAsk(context.Background(), rt, args))
		assert.Equal(t, "Assistant: 4\n", out.String())
		assert.Contains(t, errOut.String(), model.DefaultModel)
	})

	t.Run("model flag", func(t *testing.T) {
		gw := gateway.NewMockGateway()
		rt := newTestRuntime(t, gw)
		args, _, _ := testArgs("-m", "claude-sonnet-4", "hello")

		require.NoError(t, HandleAsk(context.Background(), rt, args))
		reqs := gw.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "claude-sonnet-4", reqs[0].Model)
	})

	t.Run("json", func(t *testing.T) {
		rt := newTestRuntime(t, gateway.NewMockGateway().QueueStream([]string{"Hi ", "back"}, nil))
		args, out, _ := testArgs("hello")
		args.JSON = true

		require.NoError(t, HandleAsk(context.Background(), rt, args))
		var data AskData
		resp := decodeResponse(t, out.Bytes(), &data)
		assert.True(t, resp.Success)
		assert.Equal(t, "Hi back", data.Content)
		assert.Equal(t, model.DefaultModel, data.Model)
		assert.Equal(t, string(model.ModeText), data.Mode)
		assert.Positive(t, data.Tokens)
	})

	t.Run("attached files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "notes.md")
		require.NoError(t, os.WriteFile(path, []byte("# Notes\nremember the milk"), 0600))

		gw := gateway.NewMockGateway()
		rt := newTestRuntime(t, gw)
		args, out, _ := testArgs("-f", path, "summarize")
		args.JSON = true

		require.NoError(t, HandleAsk(context.Background(), rt, args))
		var data AskData
		decodeResponse(t, out.Bytes(), &data)
		assert.Equal(t, []string{"notes.md"}, data.Files)
		assert.Equal(t, 1, gw.TotalCalls())
	})

	t.Run("missing file", func(t *testing.T) {
		rt := newTestRuntime(t, gateway.NewMockGateway())
		args, _, _ := testArgs("--file", filepath.Join(t.TempDir(), "nope.txt"), "hi")

		err := HandleAsk(context.Background(), rt, args)
		var cmdErr *CommandError
		assert.ErrorAs(t, err, &cmdErr)
	})

	t.Run("image generation", func(t *testing.T) {
		gw := gateway.NewMockGateway().SetImage("https://img.example.com/lighthouse.png", nil)
		rt := newTestRuntime(t, gw)
		args, _, errOut := testArgs("--mode", "image-gen", "a lighthouse at dusk")

		require.NoError(t, HandleAsk(context.Background(), rt, args))
		assert.Equal(t, 1, gw.Calls(gateway.OpGenerateImage))
		assert.Contains(t, errOut.String(), "Image: https://img.example.com/lighthouse.png")
	})

	t.Run("image without vision is rejected", func(t *testing.T) {
		gw := gateway.NewMockGateway()
		rt := newTestRuntime(t, gw)
		args, _, _ := testArgs("--image", "https://example.com/cat.png", "what is this?")

		err := HandleAsk(context.Background(), rt, args)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "(try /model or /mode)")
		assert.Equal(t, 0, gw.TotalCalls())
	})

	t.Run("missing prompt", func(t *testing.T) {
		rt := newTestRuntime(t, gateway.NewMockGateway())
		args, _, _ := testArgs()

		err := HandleAsk(context.Background(), rt, args)
		assert.Equal(t, ExitUsageError, GetExitCode(err))
	})

	t.Run("invalid mode", func(t *testing.T) {
		rt := newTestRuntime(t, gateway.NewMockGateway())
		args, _, _ := testArgs("--mode", "sideways", "hi")

		err := HandleAsk(context.Background(), rt, args)
		var valErr *ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, "mode", valErr.Field)
	})

	t.Run("signed out", func(t *testing.T) {
		rt := newTestRuntime(t, gateway.NewMockGateway().SetSignedIn(false))
		args, _, _ := testArgs("hi")

		err := HandleAsk(context.Background(), rt, args)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rigchat auth signin")
	})
}

// =============================================================================
// MODELS
// =============================================================================

func TestHandleModels(t *testing.T) {
	t.Run("table marks the current model", func(t *testing.T) {
		rt := newTestRuntime(t, gateway.NewMockGateway())
		args, out, _ := testArgs()

		require.NoError(t, HandleModels(context.Background(), rt, args))
		assert.Contains(t, out.String(), "MODEL")
		assert.Contains(t, out.String(), "* "+model.DefaultModel)
		assert.Contains(t, out.String(), "claude-sonnet-4")
	})

	t.Run("remote json", func(t *testing.T) {
		gw := gateway.NewMockGateway().SetModels([]gateway.RemoteModel{
			{ID: "zeta/unknown", Name: "Zeta"},
			{ID: "gpt-4o", Name: "GPT-4o", ContextLength: 128000},
		})
		rt := newTestRuntime(t, gw)
		args, out, _ := testArgs("--remote")
		args.JSON = true

		require.NoError(t, HandleModels(context.Background(), rt, args))
		var rows []ModelData
		decodeResponse(t, out.Bytes(), &rows)
		require.Len(t, rows, 2)
		assert.Equal(t, "gpt-4o", rows[0].ID)
		assert.NotEmpty(t, rows[0].Capabilities)
		assert.Equal(t, "zeta/unknown", rows[1].ID)
		assert.Empty(t, rows[1].Capabilities)
		assert.Equal(t, 1, gw.Calls(gateway.OpListModels))
	})

	t.Run("empty table", func(t *testing.T) {
		assert.Equal(t, "No models.\n", renderModelTable(nil, ""))
	})
}

// =============================================================================
// USAGE
// =============================================================================

func TestHandleUsage(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, gateway.NewMockGateway())

	t.Run("set", func(t *testing.T) {
		args, out, _ := testArgs("set", "1_200_000")
		require.NoError(t, HandleUsage(ctx, rt, args))
		assert.Contains(t, out.String(), "Usage set to 1,200,000 tokens.")
		assert.Equal(t, int64(1200000), rt.Usage.Get(ctx))
	})

	t.Run("show", func(t *testing.T) {
		args, out, _ := testArgs()
		require.NoError(t, HandleUsage(ctx, rt, args))
		assert.Contains(t, out.String(), "Token usage")
		assert.Contains(t, out.String(), "1,200,000 of")
		assert.Contains(t, out.String(), "memory")
	})

	t.Run("show json", func(t *testing.T) {
		args, out, _ := testArgs("show")
		args.JSON = true
		require.NoError(t, HandleUsage(ctx, rt, args))
		var data UsageData
		decodeResponse(t, out.Bytes(), &data)
		assert.Equal(t, int64(1200000), data.Used)
		assert.Equal(t, telemetry.TokenLimit, data.Limit)
		assert.InDelta(t, telemetry.UsagePercent(1200000), data.Percent, 0.001)
	})

	t.Run("reset", func(t *testing.T) {
		args, out, _ := testArgs("reset")
		require.NoError(t, HandleUsage(ctx, rt, args))
		assert.Contains(t, out.String(), "Usage reset to 0.")
		assert.Equal(t, int64(0), rt.Usage.Get(ctx))
	})

	t.Run("set rejects bad counts", func(t *testing.T) {
		for _, raw := range [][]string{{"set"}, {"set", "-1"}, {"set", "many"}} {
			args, _, _ := testArgs(raw...)
			err := HandleUsage(ctx, rt, args)
			assert.Equal(t, ExitUsageError, GetExitCode(err), raw)
		}
	})

	t.Run("estimate", func(t *testing.T) {
		text := "How many tokens is this sentence going to take?"
		args, out, _ := testArgs("estimate", text)
		args.JSON = true
		require.NoError(t, HandleUsage(ctx, rt, args))

		var data map[string]int64
		decodeResponse(t, out.Bytes(), &data)
		assert.Equal(t, telemetry.EstimateTokens(text, nil), data["estimated_tokens"])
	})

	t.Run("estimate needs input", func(t *testing.T) {
		args, _, _ := testArgs("estimate")
		assert.Error(t, HandleUsage(ctx, rt, args))
	})

	t.Run("unknown subcommand", func(t *testing.T) {
		args, _, _ := testArgs("explode")
		err := HandleUsage(ctx, rt, args)
		var valErr *ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, "explode", valErr.Value)
	})
}

// =============================================================================
// AUTH
// =============================================================================

func TestHandleAuth(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMockGateway().SetSignedIn(false)
	rt := newTestRuntime(t, gw)

	t.Run("status signed out", func(t *testing.T) {
		args, out, _ := testArgs()
		require.NoError(t, HandleAuth(ctx, rt, args))
		assert.Contains(t, out.String(), "signed out")
		assert.Contains(t, out.String(), "mock")
	})

	t.Run("signin with token", func(t *testing.T) {
		args, out, _ := testArgs("signin", "--token", "sk-test-123", "--user", "jesse")
		require.NoError(t, HandleAuth(ctx, rt, args))
		assert.Contains(t, out.String(), "Signed in as jesse (key "+gateway.Fingerprint("sk-test-123")+")")
		assert.True(t, gw.IsSignedIn(ctx))
		assert.True(t, rt.Chat.Snapshot().SignedIn)
	})

	t.Run("status json", func(t *testing.T) {
		args, out, _ := testArgs("status")
		args.JSON = true
		require.NoError(t, HandleAuth(ctx, rt, args))
		var data AuthData
		decodeResponse(t, out.Bytes(), &data)
		assert.True(t, data.SignedIn)
		assert.Equal(t, "jesse", data.Username)
		assert.Equal(t, rt.Config.Gateway.CredentialsPath, data.Credentials)
	})

	t.Run("signout", func(t *testing.T) {
		args, out, _ := testArgs("logout")
		require.NoError(t, HandleAuth(ctx, rt, args))
		assert.Contains(t, out.String(), "Signed out.")
		assert.False(t, gw.IsSignedIn(ctx))
		assert.False(t, rt.Chat.Snapshot().SignedIn)
	})

	t.Run("unknown subcommand", func(t *testing.T) {
		args, _, _ := testArgs("dance")
		assert.Equal(t, ExitUsageError, GetExitCode(HandleAuth(ctx, rt, args)))
	})
}

// =============================================================================
// CONFIG
// =============================================================================

func TestHandleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	run := func(raw ...string) (string, error) {
		args, out, _ := testArgs(raw...)
		args.ConfigPath = path
		err := HandleConfig(args)
		return out.String(), err
	}

	t.Run("path", func(t *testing.T) {
		out, err := run("path")
		require.NoError(t, err)
		assert.Equal(t, path+"\n", out)
	})

	t.Run("set creates the file", func(t *testing.T) {
		out, err := run("set", "chat.default_model", "claude-sonnet-4")
		require.NoError(t, err)
		assert.Contains(t, out, "Saved chat.default_model = claude-sonnet-4")
		assert.FileExists(t, path)
	})

	t.Run("get", func(t *testing.T) {
		out, err := run("get", "chat.default_model")
		require.NoError(t, err)
		assert.Equal(t, "claude-sonnet-4\n", out)
	})

	t.Run("secrets are masked", func(t *testing.T) {
		out, err := run("set", "gateway.api_key", "sk-very-secret")
		require.NoError(t, err)
		assert.NotContains(t, out, "sk-very-secret")
		assert.Contains(t, out, "sha256:")

		out, err = run("get", "gateway.api_key")
		require.NoError(t, err)
		assert.NotContains(t, out, "sk-very-secret")

		out, err = run("show")
		require.NoError(t, err)
		assert.NotContains(t, out, "sk-very-secret")
		assert.Contains(t, out, "[gateway]")
		assert.Contains(t, out, "default_model")

		args, buf, _ := testArgs("show")
		args.ConfigPath = path
		args.JSON = true
		require.NoError(t, HandleConfig(args))
		assert.NotContains(t, buf.String(), "sk-very-secret")
	})

	t.Run("list values", func(t *testing.T) {
		_, err := run("set", "server.cors_origins", "https://a.example,https://b.example")
		require.NoError(t, err)
		out, err := run("get", "server.cors_origins")
		require.NoError(t, err)
		assert.Equal(t, "https://a.example,https://b.example\n", out)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := run("set", "chat.nope", "x")
		assert.Equal(t, ExitUsageError, GetExitCode(err))
		_, err = run("get", "chat.nope")
		assert.Equal(t, ExitUsageError, GetExitCode(err))
	})

	t.Run("invalid value is not saved", func(t *testing.T) {
		_, err := run("set", "gateway.provider", "carrier-pigeon")
		assert.Equal(t, ExitUsageError, GetExitCode(err))
		cfg, err := config.LoadFromPath(path)
		require.NoError(t, err)
		assert.NotEqual(t, "carrier-pigeon", cfg.Gateway.Provider)
	})

	t.Run("missing value", func(t *testing.T) {
		_, err := run("set", "chat.default_model")
		assert.Equal(t, ExitUsageError, GetExitCode(err))
	})

	t.Run("reset", func(t *testing.T) {
		_, err := run("reset")
		require.NoError(t, err)
		out, err := run("get", "chat.default_model")
		require.NoError(t, err)
		assert.Equal(t, config.Default().Chat.DefaultModel+"\n", out)
	})
}

func TestConfigSetIgnoresEnvironment(t *testing.T) {
	t.Setenv("RIGCHAT_MODEL", "deepseek-chat")
	path := filepath.Join(t.TempDir(), "config.toml")

	args, _, _ := testArgs("set", "logging.debug", "true")
	args.ConfigPath = path
	require.NoError(t, HandleConfig(args))

	cfg := config.Default()
	require.NoError(t, config.LoadTOML(cfg, path))
	assert.True(t, cfg.Logging.Debug)
	assert.Equal(t, config.Default().Chat.DefaultModel, cfg.Chat.DefaultModel)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "sha256:"+gateway.Fingerprint("abc")+"...", maskSecret("abc"))
	assert.Equal(t, "", maskIfSet(""))
}

// =============================================================================
// RUNTIME
// =============================================================================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[chat]
default_model = "deepseek-chat"

[usage]
backend = "memory"
`)

	args, _, _ := testArgs()
	args.ConfigPath = path
	cfg, got, err := loadConfig(args)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, "deepseek-chat", cfg.Chat.DefaultModel)
	assert.Equal(t, "memory", cfg.Usage.Backend)
	assert.False(t, cfg.Logging.Debug)

	args.Model = "gpt-4o"
	args.Debug = true
	cfg, _, err = loadConfig(args)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Chat.DefaultModel)
	assert.True(t, cfg.Logging.Debug)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "[usage]\nbackend = \"floppy\"\n")
	args, _, _ := testArgs()
	args.ConfigPath = path
	_, _, err := loadConfig(args)
	assert.Error(t, err)
}

func TestGatewayOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.TimeoutSecs = 30
	cfg.Gateway.MaxRetries = 2
	cfg.Gateway.RequestsPerSecond = 1.5
	cfg.Gateway.APIKey = "sk-x"

	opts := GatewayOptions(cfg)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 2, opts.MaxRetries)
	assert.Equal(t, 1.5, opts.RequestsPerSecond)
	assert.Equal(t, "sk-x", opts.APIKey)
	assert.Equal(t, cfg.Gateway.BaseURL, opts.BaseURL)
}

func TestNewRuntime(t *testing.T) {
	restoreLogger(t)
	logPath := filepath.Join(t.TempDir(), "logs", "rigchat.log")
	path := writeConfig(t, `
[gateway]
provider = "mock"

[chat]
default_model = "claude-sonnet-4"
enable_streaming = false

[usage]
backend = "memory"

[logging]
file = "`+filepath.ToSlash(logPath)+`"
`)

	args, out, _ := testArgs("hello")
	args.ConfigPath = path
	ctx := context.Background()

	rt, err := NewRuntime(ctx, args, false)
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4", rt.Chat.Snapshot().Model)
	assert.True(t, rt.Gateway.IsSignedIn(ctx))

	require.NoError(t, HandleAsk(ctx, rt, args))
	assert.Contains(t, out.String(), `Received your message: "hello"`)
	assert.Positive(t, rt.Usage.Get(ctx))

	rt.Close()
	assert.Equal(t, io.Discard, log.Writer())

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "RUNTIME_READY | provider=mock")
}

func TestNewRuntime_BadBackend(t *testing.T) {
	restoreLogger(t)
	path := writeConfig(t, "[gateway]\nprovider = \"mock\"\n[usage]\nbackend = \"redis\"\nredis_url = \"not a url\"\n")
	args, _, _ := testArgs()
	args.ConfigPath = path

	_, err := NewRuntime(context.Background(), args, false)
	assert.Error(t, err)
}
