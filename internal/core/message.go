// Package core defines the message, state, and channel-payload types shared
// by every agent in the runtime. It has no dependency on the runtime,
// permission, or tool packages, so it can be imported from all of them.
package core

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags the variant held by a ContentBlock.
type BlockType string

const (
	BlockText             BlockType = "text"
	BlockThinking         BlockType = "thinking"
	BlockRedactedThinking BlockType = "redacted_thinking"
	BlockToolUse          BlockType = "tool_use"
	BlockToolResult       BlockType = "tool_result"
	BlockImage            BlockType = "image"
	BlockDocument         BlockType = "document"
)

// ContentBlock is a tagged union over the block kinds a Message may carry.
// Exactly the fields relevant to Type are populated; the rest are zero.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text / Thinking
	Text string `json:"text,omitempty"`

	// Thinking signature / RedactedThinking payload
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`

	// ToolUse
	ToolUseID string `json:"tool_use_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput []byte `json:"tool_input,omitempty"` // raw JSON

	// ToolResult
	IsError bool `json:"is_error,omitempty"`

	// Image / Document
	Base64    string `json:"base64,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	// CacheMarker flags this block as a prompt-cache breakpoint. It
	// round-trips through JSON; nothing in the runtime sets it, and the
	// conversion to provider messages does not read it.
	CacheMarker bool `json:"cache_marker,omitempty"`
}

// TextBlock is a convenience constructor for a plain text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock is a convenience constructor for a tool-invocation block.
func ToolUseBlock(id, name string, input []byte) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock is a convenience constructor for a tool-result block.
func ToolResultBlock(toolUseID, text string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Text: text, IsError: isError}
}

// Message is one turn of conversation history. Content is always
// represented as a block slice internally; callers that only need plain
// text can use NewTextMessage / Text().
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewTextMessage builds a single-block text message for the given role.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{TextBlock(text)}}
}

// Text concatenates every text block in the message, in order, ignoring
// thinking, tool-use, and tool-result blocks.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every ToolUse block in the message, in order.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// StripCacheMarkers returns a copy of the message with every block's
// CacheMarker cleared. The agent loop does not call it.
func (m Message) StripCacheMarkers() Message {
	out := Message{Role: m.Role, Content: make([]ContentBlock, len(m.Content))}
	for i, b := range m.Content {
		b.CacheMarker = false
		out.Content[i] = b
	}
	return out
}

// StopReason is the LLM's self-reported reason for ending a response.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopPauseTurn    StopReason = "pause_turn"
	StopStopSequence StopReason = "stop_sequence"
	StopRefusal      StopReason = "refusal"
)
