// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func decodeReader(t *testing.T, r io.Reader, tools map[string]struct{}) ([]Message, error) {
	t.Helper()
	d := newFrameDecoder(r, "gpt-4", "session-1", tools)
	ch := make(chan Message, 256)
	err := d.run(context.Background(), ch)
	close(ch)
	var msgs []Message
	for m := range ch {
		msgs = append(msgs, m)
	}
	return msgs, err
}

func decodeAll(t *testing.T, input string, tools map[string]struct{}) ([]Message, error) {
	t.Helper()
	return decodeReader(t, strings.NewReader(input), tools)
}

// messageSig flattens a message to a comparable string for sequence checks.
func messageSig(m Message) string {
	switch v := m.(type) {
	case *AssistantMessage:
		return "text:" + v.Text()
	case *ToolUseMessage:
		var b strings.Builder
		b.WriteString("tool:")
		for _, c := range v.Content {
			if tc, ok := c.(*ToolCallBlock); ok {
				fmt.Fprintf(&b, "%d|%s|%s|%s", tc.Index, tc.ID, tc.Name, tc.Arguments)
			}
		}
		return b.String()
	case *ErrorMessage:
		return "error:" + v.Code
	case *ResultMessage:
		return "result:" + string(v.FinishReason)
	}
	return "?"
}

func sigs(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = messageSig(m)
	}
	return out
}

const parisStream = `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Par"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"is"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}

data: [DONE]
`

func TestFrameDecoder_TextDeltas(t *testing.T) {
	msgs, err := decodeAll(t, parisStream, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"text:Par", "text:is", "result:stop"}
	got := sigs(msgs)
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	result, ok := msgs[len(msgs)-1].(*ResultMessage)
	if !ok {
		t.Fatalf("last message type = %T", msgs[len(msgs)-1])
	}
	if result.Subtype != "end" {
		t.Errorf("Subtype = %q", result.Subtype)
	}
	if result.Model != "gpt-4o" {
		t.Errorf("Model = %q", result.Model)
	}
	if result.SessionID != "session-1" {
		t.Errorf("SessionID = %q", result.SessionID)
	}
	if result.NumTurns != 1 {
		t.Errorf("NumTurns = %d", result.NumTurns)
	}
	if result.IsError {
		t.Error("IsError = true")
	}
	if result.DurationMS < 0 || result.DurationAPIMS < 0 {
		t.Errorf("durations = %d, %d", result.DurationMS, result.DurationAPIMS)
	}
	if result.Usage == nil {
		t.Fatal("Usage = nil")
	}
	if result.Usage.InputTokens != 10 || result.Usage.OutputTokens != 2 || result.Usage.TotalTokens != 12 {
		t.Errorf("Usage = %+v", result.Usage)
	}
}

func TestFrameDecoder_SplitIndependence(t *testing.T) {
	want := sigs(mustDecode(t, strings.NewReader(parisStream)))

	for i := 1; i < len(parisStream); i++ {
		r := io.MultiReader(
			strings.NewReader(parisStream[:i]),
			strings.NewReader(parisStream[i:]),
		)
		got := sigs(mustDecode(t, r))
		if len(got) != len(want) {
			t.Fatalf("split at %d: messages = %v, want %v", i, got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("split at %d: [%d] = %q, want %q", i, j, got[j], want[j])
			}
		}
	}
}

func TestFrameDecoder_OneByteReads(t *testing.T) {
	want := sigs(mustDecode(t, strings.NewReader(parisStream)))
	got := sigs(mustDecode(t, iotest.OneByteReader(strings.NewReader(parisStream))))
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", got, want)
	}
}

func mustDecode(t *testing.T, r io.Reader) []Message {
	t.Helper()
	msgs, err := decodeReader(t, r, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return msgs
}

func TestFrameDecoder_LineGrammar(t *testing.T) {
	input := ": keep-alive\r\n" +
		"\r\n" +
		"event: completion\n" +
		"id: 7\n" +
		"retry: 1000\n" +
		"data:{\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"},\"finish_reason\":null}]}\r\n" +
		"\n" +
		"data:[DONE]\n"

	msgs, err := decodeAll(t, input, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := sigs(msgs)
	want := []string{"text:hi", "result:"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", got, want)
	}
}

func TestFrameDecoder_CleanEOFWithoutSentinel(t *testing.T) {
	input := `data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"done"},"finish_reason":"stop"}]}` + "\n"

	msgs, err := decodeAll(t, input, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", sigs(msgs))
	}
	if _, ok := msgs[1].(*ResultMessage); !ok {
		t.Errorf("last message type = %T, want *ResultMessage", msgs[1])
	}
}

func TestFrameDecoder_TrailingPartialLineDiscarded(t *testing.T) {
	input := `data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"whole"},"finish_reason":null}]}` + "\n" +
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"torn`

	msgs, err := decodeAll(t, input, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := sigs(msgs)
	want := []string{"text:whole", "result:"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", got, want)
	}
}

func TestFrameDecoder_MalformedFrameContinues(t *testing.T) {
	input := "data: {not json}\n" +
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":null}]}` + "\n" +
		"data: [DONE]\n"

	msgs, err := decodeAll(t, input, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := sigs(msgs)
	want := []string{"error:decode_error", "text:ok", "result:"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", got, want)
	}
}

func TestFrameDecoder_TerminalErrorEvent(t *testing.T) {
	input := `data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"par"},"finish_reason":null}]}` + "\n" +
		`data: {"error":{"message":"You exceeded your quota.","type":"insufficient_quota","code":"quota_exceeded"}}` + "\n" +
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"never"},"finish_reason":null}]}` + "\n"

	msgs, err := decodeAll(t, input, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := sigs(msgs)
	want := []string{"text:par", "error:quota_exceeded"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("messages = %v, want %v", got, want)
	}

	em := msgs[1].(*ErrorMessage)
	if em.Message != "You exceeded your quota." {
		t.Errorf("Message = %q", em.Message)
	}
}

func TestFrameDecoder_AbruptDrop(t *testing.T) {
	prefix := `data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"par"},"finish_reason":null}]}` + "\n" +
		`data: {"model":"gpt-4o","choi`
	r := io.MultiReader(strings.NewReader(prefix), iotest.ErrReader(io.ErrUnexpectedEOF))

	msgs, err := decodeReader(t, r, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrStreamIncomplete) {
		t.Errorf("errors.Is(ErrStreamIncomplete) = false for %v", err)
	}
	var incomplete *StreamIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("error type = %T", err)
	}
	if incomplete.Messages != 1 {
		t.Errorf("Messages = %d, want 1", incomplete.Messages)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("cause not preserved: %v", err)
	}

	got := sigs(msgs)
	if len(got) != 1 || got[0] != "text:par" {
		t.Errorf("messages = %v, want [text:par]", got)
	}
}

func TestFrameDecoder_ToolCallDeltas(t *testing.T) {
	input := `data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]},"finish_reason":null}]}` + "\n" +
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":\"Par"}}]},"finish_reason":null}]}` + "\n" +
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"is\"}"}}]},"finish_reason":"tool_calls"}]}` + "\n" +
		"data: [DONE]\n"

	msgs, err := decodeAll(t, input, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("messages = %v", sigs(msgs))
	}

	first, ok := msgs[0].(*ToolUseMessage)
	if !ok {
		t.Fatalf("first message type = %T", msgs[0])
	}
	tc, ok := first.Content[0].(*ToolCallBlock)
	if !ok {
		t.Fatalf("content type = %T", first.Content[0])
	}
	if tc.ID != "call_1" || tc.Name != "get_weather" {
		t.Errorf("first increment = %+v", tc)
	}

	var args strings.Builder
	for _, m := range msgs[:3] {
		tu := m.(*ToolUseMessage)
		args.WriteString(tu.Content[0].(*ToolCallBlock).Arguments)
	}
	if args.String() != `{"city":"Paris"}` {
		t.Errorf("arguments = %q", args.String())
	}

	result := msgs[3].(*ResultMessage)
	if result.FinishReason != FinishReasonToolCalls {
		t.Errorf("FinishReason = %q", result.FinishReason)
	}
}

func TestFrameDecoder_UnknownToolRejected(t *testing.T) {
	tools := map[string]struct{}{"get_weather": {}}

	input := `data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_time","arguments":""}}]},"finish_reason":null}]}` + "\n" +
		// continuation of the rejected call; must be suppressed, not re-reported
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]},"finish_reason":null}]}` + "\n" +
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_2","function":{"name":"get_weather","arguments":"{}"}}]},"finish_reason":null}]}` + "\n" +
		"data: [DONE]\n"

	msgs, err := decodeAll(t, input, tools)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := sigs(msgs)
	want := []string{"error:unknown_tool", "tool:1|call_2|get_weather|{}", "result:"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", got, want)
	}

	em := msgs[0].(*ErrorMessage)
	if !strings.Contains(em.Message, "get_time") {
		t.Errorf("Message = %q, want tool name included", em.Message)
	}
}

func TestFrameDecoder_NilAllowlistDisablesCheck(t *testing.T) {
	input := `data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"anything","arguments":"{}"}}]},"finish_reason":null}]}` + "\n" +
		"data: [DONE]\n"

	msgs, err := decodeAll(t, input, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := msgs[0].(*ToolUseMessage); !ok {
		t.Errorf("first message type = %T, want *ToolUseMessage", msgs[0])
	}
}

func TestFrameDecoder_OversizedLineRecovers(t *testing.T) {
	huge := "data: {\"pad\":\"" + strings.Repeat("x", maxLineBytes+2*initialLineBuffer) + "\"}\n"
	input := huge +
		`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":null}]}` + "\n" +
		"data: [DONE]\n"

	msgs, err := decodeAll(t, input, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := sigs(msgs)
	want := []string{"error:decode_error", "text:ok", "result:"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", got, want)
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	msgs, err := decodeAll(t, "", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", sigs(msgs))
	}
	result := msgs[0].(*ResultMessage)
	if result.Model != "gpt-4" {
		t.Errorf("Model = %q, want request model fallback", result.Model)
	}
	if result.FinishReason != "" {
		t.Errorf("FinishReason = %q", result.FinishReason)
	}
	if result.Usage != nil {
		t.Errorf("Usage = %+v", result.Usage)
	}
}
