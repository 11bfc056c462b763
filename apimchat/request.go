// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"encoding/json"
	"fmt"
)

const (
	defaultModel     = "gpt-4"
	defaultMaxTokens = 4096
)

// chatRequest is the Chat Completions request body posted to the gateway.
type chatRequest struct {
	Model         string            `json:"model"`
	Messages      []ChatMessage     `json:"messages"`
	MaxTokens     int               `json:"max_tokens"`
	Temperature   *float64          `json:"temperature,omitempty"`
	Tools         []json.RawMessage `json:"tools,omitempty"`
	Stream        bool              `json:"stream"`
	StreamOptions *streamOptions    `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// buildRequest assembles the wire body for one query. It is pure: no I/O, no
// clock, and deterministic for identical inputs. Temperature is omitted when
// unset, never serialized as null; tools are omitted when empty.
func buildRequest(messages []ChatMessage, opts *QueryOptions, model string) (*chatRequest, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	if err := validateStruct(opts); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, &ValidationError{Field: "messages", Reason: "at least one message is required"}
	}
	for i, m := range messages {
		if m.Role == "" {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("messages[%d].role", i),
				Reason: "role is required",
			}
		}
	}

	req := &chatRequest{
		Model:         model,
		Messages:      messages,
		MaxTokens:     defaultMaxTokens,
		Temperature:   opts.Temperature,
		Tools:         opts.Tools,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req, nil
}

// declaredToolNames extracts the function names declared by the supplied tool
// schemas. It returns nil when any schema omits a name: the set would be
// incomplete, so the undeclared-tool check stays disabled rather than
// flagging calls it cannot judge.
func declaredToolNames(tools []json.RawMessage) map[string]struct{} {
	if len(tools) == 0 {
		return nil
	}
	names := make(map[string]struct{}, len(tools))
	for _, raw := range tools {
		var schema struct {
			Name     string `json:"name"`
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil
		}
		name := schema.Function.Name
		if name == "" {
			name = schema.Name
		}
		if name == "" {
			return nil
		}
		names[name] = struct{}{}
	}
	return names
}
