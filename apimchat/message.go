// Copyright (c) Microsoft. All rights reserved.

package apimchat

import "strings"

// MessageType identifies the variant of a streamed [Message].
type MessageType string

const (
	MessageTypeAssistant MessageType = "assistant"
	MessageTypeToolUse   MessageType = "tool_use"
	MessageTypeResult    MessageType = "result"
	MessageTypeError     MessageType = "error"
)

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// Message is a sealed interface over the events a response stream yields.
// The variant set is closed; consumers switch over the concrete types:
//
//	switch m := msg.(type) {
//	case *AssistantMessage:
//	case *ToolUseMessage:
//	case *ResultMessage:
//	case *ErrorMessage:
//	}
type Message interface {
	// Type returns the discriminator for this message.
	Type() MessageType

	// sealed prevents external implementations.
	sealed()
}

// messageBase is embedded by every concrete Message type to satisfy the
// sealed marker.
type messageBase struct{}

func (messageBase) sealed() {}

// AssistantMessage carries one text delta from the model. A response with N
// text increments yields N AssistantMessages in arrival order; nothing is
// concatenated on the way through.
type AssistantMessage struct {
	messageBase
	Model   string
	Content Blocks
}

func (m *AssistantMessage) Type() MessageType { return MessageTypeAssistant }

// Text returns the concatenated text of all [TextBlock] items in this message.
func (m *AssistantMessage) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		if tb, ok := c.(*TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

// ToolUseMessage carries one tool-call delta from the model.
type ToolUseMessage struct {
	messageBase
	Model   string
	Content Blocks
}

func (m *ToolUseMessage) Type() MessageType { return MessageTypeToolUse }

// ResultMessage closes a cleanly terminated stream. Exactly one is emitted,
// after the final delta.
type ResultMessage struct {
	messageBase
	Subtype       string
	DurationMS    int64
	DurationAPIMS int64
	IsError       bool
	NumTurns      int
	SessionID     string
	Model         string
	FinishReason  FinishReason
	Usage         *Usage
}

func (m *ResultMessage) Type() MessageType { return MessageTypeResult }

// ErrorMessage reports a per-frame failure inside a live stream: a frame that
// would not decode, a tool call naming an undeclared tool, or a terminal
// error event from the gateway. It does not end the stream except in the
// terminal-event case.
type ErrorMessage struct {
	messageBase
	Code    string
	Message string
}

func (m *ErrorMessage) Type() MessageType { return MessageTypeError }

// Usage holds token consumption statistics reported by the gateway.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Roles accepted in outbound chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is a caller-supplied conversation entry, passed through to the
// gateway unchanged.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user-role [ChatMessage] from a text string.
func NewUserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: text}
}

// NewSystemMessage creates a system-role [ChatMessage] from a text string.
func NewSystemMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: text}
}

// JoinText concatenates the text deltas of msgs in arrival order. It is the
// caller-side aggregation helper for streams collected in full.
func JoinText(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch v := m.(type) {
		case *AssistantMessage:
			b.WriteString(v.Text())
		case *ToolUseMessage, *ResultMessage, *ErrorMessage:
			// Only text deltas contribute.
		}
	}
	return b.String()
}
