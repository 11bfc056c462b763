// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"encoding/json"
	"fmt"
)

// MarshalMessageJSON marshals a single Message into its JSON envelope with a
// "type" discriminator, suitable for transcripts and line-delimited output.
func MarshalMessageJSON(m Message) ([]byte, error) {
	switch v := m.(type) {
	case *AssistantMessage:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Model   string `json:"model,omitempty"`
			Content Blocks `json:"content"`
		}{string(MessageTypeAssistant), v.Model, v.Content})

	case *ToolUseMessage:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Model   string `json:"model,omitempty"`
			Content Blocks `json:"content"`
		}{string(MessageTypeToolUse), v.Model, v.Content})

	case *ResultMessage:
		return json.Marshal(struct {
			Type          string       `json:"type"`
			Subtype       string       `json:"subtype"`
			DurationMS    int64        `json:"duration_ms"`
			DurationAPIMS int64        `json:"duration_api_ms"`
			IsError       bool         `json:"is_error"`
			NumTurns      int          `json:"num_turns"`
			SessionID     string       `json:"session_id"`
			Model         string       `json:"model,omitempty"`
			FinishReason  FinishReason `json:"finish_reason,omitempty"`
			Usage         *Usage       `json:"usage,omitempty"`
		}{string(MessageTypeResult), v.Subtype, v.DurationMS, v.DurationAPIMS,
			v.IsError, v.NumTurns, v.SessionID, v.Model, v.FinishReason, v.Usage})

	case *ErrorMessage:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Code    string `json:"code,omitempty"`
			Message string `json:"message"`
		}{string(MessageTypeError), v.Code, v.Message})

	default:
		return nil, fmt.Errorf("unknown message type: %T", m)
	}
}

// UnmarshalMessageJSON restores a Message from its JSON envelope.
func UnmarshalMessageJSON(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal message envelope: %w", err)
	}

	switch MessageType(env.Type) {
	case MessageTypeAssistant:
		var v struct {
			Model   string `json:"model"`
			Content Blocks `json:"content"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &AssistantMessage{Model: v.Model, Content: v.Content}, nil

	case MessageTypeToolUse:
		var v struct {
			Model   string `json:"model"`
			Content Blocks `json:"content"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &ToolUseMessage{Model: v.Model, Content: v.Content}, nil

	case MessageTypeResult:
		var v struct {
			Subtype       string       `json:"subtype"`
			DurationMS    int64        `json:"duration_ms"`
			DurationAPIMS int64        `json:"duration_api_ms"`
			IsError       bool         `json:"is_error"`
			NumTurns      int          `json:"num_turns"`
			SessionID     string       `json:"session_id"`
			Model         string       `json:"model"`
			FinishReason  FinishReason `json:"finish_reason"`
			Usage         *Usage       `json:"usage"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &ResultMessage{Subtype: v.Subtype, DurationMS: v.DurationMS,
			DurationAPIMS: v.DurationAPIMS, IsError: v.IsError, NumTurns: v.NumTurns,
			SessionID: v.SessionID, Model: v.Model, FinishReason: v.FinishReason,
			Usage: v.Usage}, nil

	case MessageTypeError:
		var v struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &ErrorMessage{Code: v.Code, Message: v.Message}, nil

	default:
		return nil, fmt.Errorf("unknown message type: %q", env.Type)
	}
}

// marshalBlockJSON marshals a single ContentBlock into its JSON envelope.
func marshalBlockJSON(b ContentBlock) ([]byte, error) {
	switch v := b.(type) {
	case *TextBlock:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{string(ContentTypeText), v.Text})

	case *ToolCallBlock:
		return json.Marshal(struct {
			Type      string `json:"type"`
			Index     int    `json:"index"`
			ID        string `json:"id,omitempty"`
			Name      string `json:"name,omitempty"`
			Arguments string `json:"arguments,omitempty"`
		}{string(ContentTypeToolCall), v.Index, v.ID, v.Name, v.Arguments})

	default:
		return nil, fmt.Errorf("unknown content block type: %T", b)
	}
}

// unmarshalBlockJSON restores a ContentBlock from its JSON envelope.
func unmarshalBlockJSON(data []byte) (ContentBlock, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal block envelope: %w", err)
	}

	switch ContentType(env.Type) {
	case ContentTypeText:
		var v struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &TextBlock{Text: v.Text}, nil

	case ContentTypeToolCall:
		var v struct {
			Index     int    `json:"index"`
			ID        string `json:"id"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &ToolCallBlock{Index: v.Index, ID: v.ID, Name: v.Name, Arguments: v.Arguments}, nil

	default:
		return nil, fmt.Errorf("unknown content block type: %q", env.Type)
	}
}

// MarshalJSON serializes each block using its "type" discriminator.
func (bs Blocks) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, len(bs))
	for i, b := range bs {
		data, err := marshalBlockJSON(b)
		if err != nil {
			return nil, fmt.Errorf("marshal block[%d]: %w", i, err)
		}
		items[i] = data
	}
	return json.Marshal(items)
}

// UnmarshalJSON deserializes a JSON array of blocks using the "type"
// discriminator.
func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]ContentBlock, len(raw))
	for i, r := range raw {
		b, err := unmarshalBlockJSON(r)
		if err != nil {
			return fmt.Errorf("unmarshal block[%d]: %w", i, err)
		}
		result[i] = b
	}
	*bs = result
	return nil
}
