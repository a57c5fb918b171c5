// Package message defines the conversation data model: a turn message and
// the closed set of content block variants it can carry. The JSON encoding
// follows the converse wire shape, where each block is an object keyed by
// its variant name.
package message

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlock is one element of a message's content sequence. The set of
// implementations is closed; consumers switch on the concrete type and must
// treat anything else as a protocol violation.
type ContentBlock interface {
	contentBlock()
}

// TextBlock carries plain text.
type TextBlock struct {
	Text string
}

// ImageBlock carries inline image bytes.
type ImageBlock struct {
	Format string
	Bytes  []byte
}

// ToolUseBlock is the model's request to invoke a named tool.
type ToolUseBlock struct {
	ToolUseID string
	Name      string
	Args      map[string]any
}

// ToolResultBlock is the caller's outcome for an earlier tool-use request,
// correlated by ToolUseID.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) contentBlock()       {}
func (ImageBlock) contentBlock()      {}
func (ToolUseBlock) contentBlock()    {}
func (ToolResultBlock) contentBlock() {}

// Message is one conversation turn. Content is ordered and must be
// non-empty; messages are treated as immutable once constructed.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// New builds a message from explicit blocks.
func New(role Role, blocks ...ContentBlock) Message {
	return Message{Role: role, Content: blocks}
}

// UserText builds a single-text user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// AssistantText builds a single-text assistant message.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock{Text: text}}}
}

// ToolResultMessage builds the user-role message that returns a tool
// outcome to the model.
func ToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{
		Role: RoleUser,
		Content: []ContentBlock{
			ToolResultBlock{ToolUseID: toolUseID, Content: content, IsError: isError},
		},
	}
}

// Validate checks the structural invariants: a known role and a non-empty
// content sequence.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("unknown role %q", m.Role)
	}
	if len(m.Content) == 0 {
		return fmt.Errorf("message content is empty")
	}
	return nil
}

// FirstText returns the text of the first TextBlock, if any.
func (m Message) FirstText() (string, bool) {
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			return t.Text, true
		}
	}
	return "", false
}

type textWire struct {
	Text string `json:"text"`
}

type imageSourceWire struct {
	Bytes []byte `json:"bytes"`
}

type imageWire struct {
	Format string          `json:"format"`
	Source imageSourceWire `json:"source"`
}

type toolUseWire struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

type toolResultWire struct {
	ToolUseID string     `json:"toolUseId"`
	Content   []textWire `json:"content"`
	Status    string     `json:"status,omitempty"`
}

// blockWire is the keyed-object form shared by all four variants. Exactly
// one key is populated per block.
type blockWire struct {
	Text       *string         `json:"text,omitempty"`
	Image      *imageWire      `json:"image,omitempty"`
	ToolUse    *toolUseWire    `json:"toolUse,omitempty"`
	ToolResult *toolResultWire `json:"toolResult,omitempty"`
}

func (b TextBlock) MarshalJSON() ([]byte, error) {
	text := b.Text
	return json.Marshal(blockWire{Text: &text})
}

func (b ImageBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockWire{Image: &imageWire{
		Format: b.Format,
		Source: imageSourceWire{Bytes: b.Bytes},
	}})
}

func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	input := b.Args
	if input == nil {
		input = map[string]any{}
	}
	return json.Marshal(blockWire{ToolUse: &toolUseWire{
		ToolUseID: b.ToolUseID,
		Name:      b.Name,
		Input:     input,
	}})
}

func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	wire := &toolResultWire{
		ToolUseID: b.ToolUseID,
		Content:   []textWire{{Text: b.Content}},
	}
	if b.IsError {
		wire.Status = "error"
	}
	return json.Marshal(blockWire{ToolResult: wire})
}

// DecodeBlock parses one keyed-object block into its variant. An object
// that matches none of the known keys is an error, never skipped.
func DecodeBlock(raw json.RawMessage) (ContentBlock, error) {
	var wire blockWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode content block: %w", err)
	}
	switch {
	case wire.Text != nil:
		return TextBlock{Text: *wire.Text}, nil
	case wire.Image != nil:
		return ImageBlock{Format: wire.Image.Format, Bytes: wire.Image.Source.Bytes}, nil
	case wire.ToolUse != nil:
		return ToolUseBlock{
			ToolUseID: wire.ToolUse.ToolUseID,
			Name:      wire.ToolUse.Name,
			Args:      wire.ToolUse.Input,
		}, nil
	case wire.ToolResult != nil:
		block := ToolResultBlock{
			ToolUseID: wire.ToolResult.ToolUseID,
			IsError:   wire.ToolResult.Status == "error",
		}
		if len(wire.ToolResult.Content) > 0 {
			block.Content = wire.ToolResult.Content[0].Text
		}
		return block, nil
	default:
		return nil, fmt.Errorf("unrecognized content block %s", compact(raw))
	}
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    Role              `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	blocks := make([]ContentBlock, 0, len(wire.Content))
	for i, raw := range wire.Content {
		block, err := DecodeBlock(raw)
		if err != nil {
			return fmt.Errorf("content[%d]: %w", i, err)
		}
		blocks = append(blocks, block)
	}
	m.Role = wire.Role
	m.Content = blocks
	return nil
}

func compact(raw json.RawMessage) string {
	const max = 120
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
