// Copyright (c) Microsoft. All rights reserved.

package apimchat

// ContentType identifies the kind of content block within a message.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeToolCall ContentType = "tool_call"
)

// ContentBlock is a sealed interface over the block kinds a streamed message
// can carry. Use a type switch to inspect the underlying type.
type ContentBlock interface {
	// Type returns the discriminator for this block.
	Type() ContentType

	// sealed prevents external implementations.
	sealed()
}

// blockBase is embedded by every concrete ContentBlock type to satisfy the
// sealed marker.
type blockBase struct{}

func (blockBase) sealed() {}

// TextBlock holds one increment of assistant text, exactly as it arrived.
// Consumers concatenate the increments themselves.
type TextBlock struct {
	blockBase
	Text string
}

func (b *TextBlock) Type() ContentType { return ContentTypeText }

// ToolCallBlock holds one increment of a streamed tool call. ID and Name
// arrive on the first increment of each call; Arguments is a partial JSON
// fragment that accumulates across increments sharing the same Index.
type ToolCallBlock struct {
	blockBase
	Index     int
	ID        string
	Name      string
	Arguments string
}

func (b *ToolCallBlock) Type() ContentType { return ContentTypeToolCall }

// Blocks is a typed slice enabling JSON marshal/unmarshal of polymorphic
// ContentBlock arrays.
type Blocks []ContentBlock
