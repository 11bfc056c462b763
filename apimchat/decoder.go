// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	// Line assembly limits for the frame reader. Tool arguments can stream
	// in large fragments.
	initialLineBuffer = 64 * 1024
	maxLineBytes      = 1024 * 1024

	doneSentinel = "[DONE]"

	errCodeDecode      = "decode_error"
	errCodeUnknownTool = "unknown_tool"
)

// errFrameTooLarge marks a line that exceeded maxLineBytes; the rest of the
// line has already been drained when it is returned.
var errFrameTooLarge = fmt.Errorf("frame exceeds %d bytes", maxLineBytes)

// chatCompletionChunk is one streamed Chat Completions frame. A terminal
// failure arrives as a frame carrying only the error object.
type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *chunkUsage   `json:"usage,omitempty"`
	Error   *chunkError   `json:"error,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []toolCallDelta `json:"tool_calls,omitempty"`
}

type toolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function functionDelta `json:"function"`
}

type functionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type chunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chunkError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// frameDecoder turns a raw response body into typed messages. It assembles
// complete lines before parsing anything, so the decoded sequence never
// depends on how the network splits the byte stream.
type frameDecoder struct {
	r          *bufio.Reader
	knownTools map[string]struct{} // nil disables the undeclared-tool check
	model      string              // request model, fallback for result metadata
	sessionID  string

	started    time.Time
	apiStarted time.Time

	lastModel     string
	finishReason  FinishReason
	usage         *Usage
	rejectedCalls map[int]struct{}
	emitted       int
}

func newFrameDecoder(r io.Reader, model, sessionID string, knownTools map[string]struct{}) *frameDecoder {
	now := time.Now()
	return &frameDecoder{
		r:          bufio.NewReaderSize(r, initialLineBuffer),
		knownTools: knownTools,
		model:      model,
		sessionID:  sessionID,
		started:    now,
		apiStarted: now,
	}
}

// run reads frames until the terminal sentinel, a clean end of stream, or a
// terminal error event, sending decoded messages to ch. Abrupt transport
// termination surfaces as *StreamIncompleteError after everything already
// decoded has been delivered.
func (d *frameDecoder) run(ctx context.Context, ch chan<- Message) error {
	for {
		line, err := d.readLine()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			// The gateway may close the stream without a sentinel.
			return d.finish(ctx, ch)
		case errors.Is(err, errFrameTooLarge):
			if serr := d.send(ctx, ch, &ErrorMessage{Code: errCodeDecode, Message: err.Error()}); serr != nil {
				return serr
			}
			continue
		default:
			return &StreamIncompleteError{Messages: d.emitted, Err: err}
		}

		if line == "" || strings.HasPrefix(line, ":") {
			continue // frame separator or keep-alive comment
		}
		if !strings.HasPrefix(line, "data:") {
			continue // other SSE fields (event:, id:, retry:) carry nothing here
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == doneSentinel {
			return d.finish(ctx, ch)
		}

		msgs, terminal := d.decodeFrame(data)
		for _, m := range msgs {
			if err := d.send(ctx, ch, m); err != nil {
				return err
			}
		}
		if terminal {
			return nil
		}
	}
}

// readLine returns the next line with its terminator trimmed. io.EOF marks a
// clean end of stream; a trailing unterminated fragment is discarded rather
// than parsed as a frame.
func (d *frameDecoder) readLine() (string, error) {
	var buf []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		switch {
		case err == nil:
			if buf == nil {
				return trimLineEnding(chunk), nil
			}
			buf = append(buf, chunk...)
			return trimLineEnding(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			buf = append(buf, chunk...)
			if len(buf) > maxLineBytes {
				return "", d.drainLine()
			}
		case errors.Is(err, io.EOF):
			return "", io.EOF
		default:
			return "", err
		}
	}
}

// drainLine consumes the remainder of an oversized line so decoding can
// resume at the next frame boundary.
func (d *frameDecoder) drainLine() error {
	for {
		_, err := d.r.ReadSlice('\n')
		switch {
		case err == nil:
			return errFrameTooLarge
		case errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			return io.EOF
		default:
			return err
		}
	}
}

func trimLineEnding(b []byte) string {
	s := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(s, "\r")
}

// decodeFrame maps one frame payload to zero or more messages. A malformed
// payload produces an ErrorMessage and never aborts the stream; a frame
// carrying a top-level error object is terminal.
func (d *frameDecoder) decodeFrame(data string) (msgs []Message, terminal bool) {
	var chunk chatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		slog.Warn("dropping malformed stream frame", "error", err)
		return []Message{&ErrorMessage{
			Code:    errCodeDecode,
			Message: fmt.Sprintf("malformed frame: %v", err),
		}}, false
	}

	if chunk.Error != nil {
		msg := chunk.Error.Message
		if msg == "" {
			msg = "stream terminated by gateway error"
		}
		code := chunk.Error.Code
		if code == "" {
			code = chunk.Error.Type
		}
		return []Message{&ErrorMessage{Code: code, Message: msg}}, true
	}

	if chunk.Model != "" {
		d.lastModel = chunk.Model
	}
	if chunk.Usage != nil {
		d.usage = &Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
			TotalTokens:  chunk.Usage.TotalTokens,
		}
	}

	for _, c := range chunk.Choices {
		if c.FinishReason != nil && *c.FinishReason != "" {
			d.finishReason = mapFinishReason(*c.FinishReason)
		}
		if c.Delta.Content != nil && *c.Delta.Content != "" {
			msgs = append(msgs, &AssistantMessage{
				Model:   chunk.Model,
				Content: Blocks{&TextBlock{Text: *c.Delta.Content}},
			})
		}
		for _, tc := range c.Delta.ToolCalls {
			if m := d.decodeToolCall(chunk.Model, tc); m != nil {
				msgs = append(msgs, m)
			}
		}
	}
	return msgs, false
}

// decodeToolCall maps one tool-call delta. A call naming an undeclared tool
// yields an ErrorMessage on its first increment and is suppressed afterward.
func (d *frameDecoder) decodeToolCall(model string, tc toolCallDelta) Message {
	if _, rejected := d.rejectedCalls[tc.Index]; rejected {
		return nil
	}
	if tc.Function.Name != "" && d.knownTools != nil {
		if _, ok := d.knownTools[tc.Function.Name]; !ok {
			if d.rejectedCalls == nil {
				d.rejectedCalls = make(map[int]struct{})
			}
			d.rejectedCalls[tc.Index] = struct{}{}
			return &ErrorMessage{
				Code:    errCodeUnknownTool,
				Message: fmt.Sprintf("model requested undeclared tool %q", tc.Function.Name),
			}
		}
	}
	return &ToolUseMessage{
		Model: model,
		Content: Blocks{&ToolCallBlock{
			Index:     tc.Index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}},
	}
}

// finish emits the closing ResultMessage and ends the stream.
func (d *frameDecoder) finish(ctx context.Context, ch chan<- Message) error {
	now := time.Now()
	model := d.lastModel
	if model == "" {
		model = d.model
	}
	return d.send(ctx, ch, &ResultMessage{
		Subtype:       "end",
		DurationMS:    now.Sub(d.started).Milliseconds(),
		DurationAPIMS: now.Sub(d.apiStarted).Milliseconds(),
		NumTurns:      1,
		SessionID:     d.sessionID,
		Model:         model,
		FinishReason:  d.finishReason,
		Usage:         d.usage,
	})
}

func (d *frameDecoder) send(ctx context.Context, ch chan<- Message, msg Message) error {
	select {
	case ch <- msg:
		d.emitted++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func mapFinishReason(s string) FinishReason {
	switch s {
	case "stop":
		return FinishReasonStop
	case "length":
		return FinishReasonLength
	case "tool_calls":
		return FinishReasonToolCalls
	case "content_filter":
		return FinishReasonContentFilter
	default:
		return FinishReason(s)
	}
}
