// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth.go - Gateway sign-in.
//
// Examples:
//
//	rigchat auth
//	rigchat auth signin
//	rigchat auth signin --token sk-... --user jesse
//	rigchat auth signout

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/rigchat/internal/gateway"
)

// HandleAuth dispatches the auth subcommands.
func HandleAuth(ctx context.Context, rt *Runtime, args Args) error {
	p := NewArgParser(args.Raw)

	switch sub := p.Subcommand(); sub {
	case "", "status", "whoami":
		return authStatus(ctx, rt, args)

	case "signin", "login":
		token := p.FlagOr("", "token", "t")
		if token == "" {
			if !CanPrompt() {
				return ErrMissingArgument("token", "rigchat auth signin --token <token>")
			}
			var err error
			token, err = ReadSecret(args.Stderr, "Gateway token: ")
			if err != nil {
				return NewCommandError("auth", "signin", err)
			}
		}
		user, err := rt.Chat.SignIn(ctx, gateway.Credentials{
			Token:    token,
			Username: p.FlagOr("", "user", "u"),
		})
		if err != nil {
			return NewCommandError("auth", "signin", err)
		}
		if !args.JSON {
			fmt.Fprintf(args.Stdout, "%s as %s (key %s)\n",
				SuccessStyle.Render("Signed in"), user.Username, gateway.Fingerprint(token))
			return nil
		}
		return authStatus(ctx, rt, args)

	case "signout", "logout":
		if err := rt.Chat.SignOut(ctx); err != nil {
			return NewCommandError("auth", "signout", err)
		}
		if !args.JSON {
			fmt.Fprintln(args.Stdout, "Signed out.")
			return nil
		}
		return authStatus(ctx, rt, args)

	default:
		return ErrUnknownSubcommand("auth", sub, "status", "signin", "signout")
	}
}

func authStatus(ctx context.Context, rt *Runtime, args Args) error {
	data := AuthData{
		SignedIn: rt.Gateway.IsSignedIn(ctx),
		Provider: rt.Config.Gateway.Provider,
	}
	if store, err := gateway.NewCredentialStore(rt.Config.Gateway.CredentialsPath); err == nil {
		data.Credentials = store.Path()
	}
	if data.SignedIn {
		if user, err := rt.Gateway.CurrentUser(ctx); err == nil {
			data.Username = user.Username
			if !user.SignedInAt.IsZero() {
				data.SignedInAt = user.SignedInAt.UTC().Format(time.RFC3339)
			}
		}
	}

	if args.JSON {
		return NewJSONResponse("auth", data).Write(args.Stdout)
	}

	w := args.Stdout
	fmt.Fprintln(w, TitleStyle.Render("Gateway"))
	fmt.Fprintln(w, RenderField("Provider", data.Provider))
	if !data.SignedIn {
		fmt.Fprintln(w, RenderField("Status", WarningStyle.Render("signed out")))
		fmt.Fprintln(w, DimStyle.Render("Run 'rigchat auth signin' to sign in."))
		return nil
	}
	fmt.Fprintln(w, RenderField("Status", SuccessStyle.Render("signed in")))
	if data.Username != "" {
		fmt.Fprintln(w, RenderField("User", data.Username))
	} else {
		fmt.Fprintln(w, RenderField("User", "(configured API key)"))
	}
	if data.SignedInAt != "" {
		fmt.Fprintln(w, RenderField("Since", data.SignedInAt))
	}
	if data.Credentials != "" {
		fmt.Fprintln(w, RenderField("Credentials", data.Credentials))
	}
	return nil
}
