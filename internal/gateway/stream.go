// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
)

// MaxChunkSize is the maximum allowed size for a single SSE line.
const MaxChunkSize = 64 * 1024

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReaderSize(r, MaxChunkSize)}
}

// ReadEvent reads the next event and returns its type and joined data
// lines. Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return "", nil, err
		}
		atEOF := err == io.EOF

		line = bytes.TrimRight(line, "\r\n")
		if atEOF {
			// An unterminated final line still counts.
			if bytes.HasPrefix(line, []byte("data:")) {
				dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
			}
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, io.EOF
		}

		// Blank line ends the event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// id:, retry: and comments are ignored
	}
}

// =============================================================================
// STREAM
// =============================================================================

// streamChunk is one chat.completion.chunk payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// sseStream adapts an SSE body to the Stream interface.
type sseStream struct {
	body    io.ReadCloser
	reader  *SSEReader
	partial strings.Builder
	done    bool
	once    sync.Once
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, reader: NewSSEReader(body)}
}

// Next returns the next non-empty content delta. Malformed chunks are
// skipped. A [DONE] event, a finish reason or the end of the body ends
// the stream.
func (s *sseStream) Next(ctx context.Context) (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", s.fail(err)
		}

		_, data, err := s.reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return "", io.EOF
			}
			if ctx.Err() != nil {
				return "", s.fail(ctx.Err())
			}
			return "", s.fail(err)
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return "", s.fail(&RequestError{Op: "chat_stream", Message: chunk.Error.Message})
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.done = true
		}
		if choice.Delta.Content == "" {
			continue
		}
		s.partial.WriteString(choice.Delta.Content)
		return choice.Delta.Content, nil
	}
}

func (s *sseStream) fail(err error) error {
	s.done = true
	return &StreamError{Partial: s.partial.String(), Err: err}
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}

// =============================================================================
// SLICE STREAM
// =============================================================================

// sliceStream replays fixed chunks, optionally failing after them.
type sliceStream struct {
	chunks  []string
	pos     int
	err     error
	partial strings.Builder
}

// NewSliceStream returns a Stream over chunks. When err is non-nil the
// stream fails with a StreamError after the last chunk.
func NewSliceStream(chunks []string, err error) Stream {
	return &sliceStream{chunks: chunks, err: err}
}

func (s *sliceStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &StreamError{Partial: s.partial.String(), Err: err}
	}
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		s.partial.WriteString(c)
		return c, nil
	}
	if s.err != nil {
		return "", &StreamError{Partial: s.partial.String(), Err: s.err}
	}
	return "", io.EOF
}

func (s *sliceStream) Close() error { return nil }

// Collect drains a stream and returns the concatenated content. On failure
// the partial content is returned with the error.
func Collect(ctx context.Context, s Stream, onChunk func(string)) (string, error) {
	defer s.Close()

	var b strings.Builder
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
}
