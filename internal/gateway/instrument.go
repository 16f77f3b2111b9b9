// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jeranaias/rigchat/internal/telemetry"
)

// instrumented wraps a Gateway with spans and Prometheus metrics.
type instrumented struct {
	Gateway
}

// Instrument returns g with every network call traced and counted.
func Instrument(g Gateway) Gateway {
	if _, ok := g.(*instrumented); ok {
		return g
	}
	return &instrumented{Gateway: g}
}

func observe(ctx context.Context, op, modelID string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "gateway."+op,
		telemetry.AttrGatewayOp.String(op),
		telemetry.AttrModel.String(modelID),
	)
	return ctx, func(err error) {
		telemetry.RecordGatewayCall(op, start, err)
		telemetry.EndSpan(span, err)
	}
}

func (i *instrumented) SignIn(ctx context.Context, creds Credentials) (*User, error) {
	ctx, done := observe(ctx, OpSignIn, "")
	u, err := i.Gateway.SignIn(ctx, creds)
	done(err)
	return u, err
}

func (i *instrumented) ListModels(ctx context.Context) ([]RemoteModel, error) {
	ctx, done := observe(ctx, OpListModels, "")
	models, err := i.Gateway.ListModels(ctx)
	done(err)
	return models, err
}

func (i *instrumented) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, done := observe(ctx, OpChat, req.Model)
	resp, err := i.Gateway.Chat(ctx, req)
	done(err)
	return resp, err
}

func (i *instrumented) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway."+OpChatStream,
		telemetry.AttrGatewayOp.String(OpChatStream),
		telemetry.AttrModel.String(req.Model),
		telemetry.AttrStreaming.Bool(true),
	)
	start := time.Now()
	s, err := i.Gateway.ChatStream(ctx, req)
	if err != nil {
		telemetry.RecordGatewayCall(OpChatStream, start, err)
		telemetry.EndSpan(span, err)
		return nil, err
	}
	return &countingStream{Stream: s, span: span, start: start}, nil
}

func (i *instrumented) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	ctx, done := observe(ctx, OpGenerateImage, ImageModel)
	img, err := i.Gateway.GenerateImage(ctx, prompt)
	done(err)
	return img, err
}

func (i *instrumented) AnalyzeImage(ctx context.Context, modelID, prompt, imageURL string) (string, error) {
	ctx, done := observe(ctx, OpAnalyzeImage, modelID)
	text, err := i.Gateway.AnalyzeImage(ctx, modelID, prompt, imageURL)
	done(err)
	return text, err
}

// countingStream counts chunks and ends the span when the stream finishes.
type countingStream struct {
	Stream
	span   trace.Span
	start  time.Time
	ended  bool
	chunks int
}

func (c *countingStream) Next(ctx context.Context) (string, error) {
	chunk, err := c.Stream.Next(ctx)
	switch {
	case err == nil:
		c.chunks++
		telemetry.RecordStreamChunk()
	case errors.Is(err, io.EOF):
		c.finish(nil)
	default:
		c.finish(err)
	}
	return chunk, err
}

func (c *countingStream) Close() error {
	c.finish(nil)
	return c.Stream.Close()
}

func (c *countingStream) finish(err error) {
	if c.ended {
		return
	}
	c.ended = true
	c.span.SetAttributes(telemetry.AttrTokenCount.Int(c.chunks))
	telemetry.RecordGatewayCall(OpChatStream, c.start, err)
	telemetry.EndSpan(c.span, err)
}
