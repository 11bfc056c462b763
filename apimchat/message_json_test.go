// Copyright (c) Microsoft. All rights reserved.

package apimchat_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/microsoft/apim-chat/go/apimchat"
)

func TestMessageJSON_RoundTrip(t *testing.T) {
	messages := []apimchat.Message{
		&apimchat.AssistantMessage{Model: "gpt-4o", Content: apimchat.Blocks{
			&apimchat.TextBlock{Text: "Paris"},
		}},
		&apimchat.ToolUseMessage{Model: "gpt-4o", Content: apimchat.Blocks{
			&apimchat.ToolCallBlock{Index: 0, ID: "call_1", Name: "get_weather", Arguments: `{"city":"Paris"}`},
		}},
		&apimchat.ResultMessage{Subtype: "end", DurationMS: 42, DurationAPIMS: 40,
			NumTurns: 1, SessionID: "s-1", Model: "gpt-4o",
			FinishReason: apimchat.FinishReasonStop,
			Usage:        &apimchat.Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12}},
		&apimchat.ErrorMessage{Code: "decode_error", Message: "malformed frame"},
	}

	for _, msg := range messages {
		data, err := apimchat.MarshalMessageJSON(msg)
		if err != nil {
			t.Fatalf("marshal %T: %v", msg, err)
		}

		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("envelope of %T: %v", msg, err)
		}
		if env.Type != string(msg.Type()) {
			t.Errorf("%T: type = %q, want %q", msg, env.Type, msg.Type())
		}

		back, err := apimchat.UnmarshalMessageJSON(data)
		if err != nil {
			t.Fatalf("unmarshal %T: %v", msg, err)
		}
		if !reflect.DeepEqual(back, msg) {
			t.Errorf("round trip of %T:\n got %#v\nwant %#v", msg, back, msg)
		}
	}
}

func TestUnmarshalMessageJSON_UnknownType(t *testing.T) {
	if _, err := apimchat.UnmarshalMessageJSON([]byte(`{"type":"telemetry"}`)); err == nil {
		t.Error("expected error for unknown message type")
	}
	if _, err := apimchat.UnmarshalMessageJSON([]byte(`{"type":"assistant","content":[{"type":"audio"}]}`)); err == nil {
		t.Error("expected error for unknown block type")
	}
}
