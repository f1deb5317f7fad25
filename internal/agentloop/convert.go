package agentloop

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/loomwork/loom/internal/core"
)

// toEinoMessages renders a system prompt plus the session's message history
// into the schema.Message slice an Eino chat model expects. Each ToolUse
// block becomes a ToolCalls entry on its assistant message; each
// ToolResult block becomes its own Tool-role message carrying the matching
// ToolCallID.
func toEinoMessages(systemPrompt string, history []core.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history)+1)
	out = append(out, &schema.Message{Role: schema.System, Content: systemPrompt})

	for _, msg := range history {
		role := schema.User
		if msg.Role == core.RoleAssistant {
			role = schema.Assistant
		}

		var text string
		var toolCalls []schema.ToolCall
		for _, b := range msg.Content {
			switch b.Type {
			case core.BlockText:
				text += b.Text
			case core.BlockToolUse:
				toolCalls = append(toolCalls, schema.ToolCall{
					ID: b.ToolUseID,
					Function: schema.FunctionCall{
						Name:      b.ToolName,
						Arguments: string(b.ToolInput),
					},
				})
			case core.BlockToolResult:
				out = append(out, &schema.Message{
					Role:       schema.Tool,
					Content:    b.Text,
					ToolCallID: b.ToolUseID,
				})
			}
		}

		if text != "" || len(toolCalls) > 0 {
			out = append(out, &schema.Message{
				Role:      role,
				Content:   text,
				ToolCalls: toolCalls,
			})
		}
	}

	return out
}

// pendingToolCall accumulates one tool call's streamed argument fragments,
// keyed by Index when the provider supplies one, falling back to the call
// ID.
type pendingToolCall struct {
	id     string
	name   string
	args   string
}

// accumulator collects one assistant turn's streamed output: text,
// thinking, and tool calls, in arrival order.
type accumulator struct {
	text       string
	thinking   string
	calls      []*pendingToolCall
	byKey      map[string]*pendingToolCall
	finish     string
}

func newAccumulator() *accumulator {
	return &accumulator{byKey: make(map[string]*pendingToolCall)}
}

// apply folds one streamed chunk into the accumulator and returns the text
// delta (if any) and thinking delta (if any) so the caller can forward them
// immediately.
func (a *accumulator) apply(msg *schema.Message) (textDelta, thinkingDelta string) {
	if msg.Content != "" {
		textDelta = msg.Content
		a.text += msg.Content
	}
	if msg.ReasoningContent != "" {
		thinkingDelta = msg.ReasoningContent
		a.thinking += msg.ReasoningContent
	}

	for _, tc := range msg.ToolCalls {
		var key string
		if tc.Index != nil {
			key = "idx:" + jsonInt(*tc.Index)
		} else {
			key = tc.ID
		}

		call, exists := a.byKey[key]
		if !exists {
			call = &pendingToolCall{}
			a.byKey[key] = call
			a.calls = append(a.calls, call)
		}
		if tc.ID != "" {
			call.id = tc.ID
		}
		if tc.Function.Name != "" {
			call.name = tc.Function.Name
		}
		call.args += tc.Function.Arguments
	}

	if msg.ResponseMeta != nil && msg.ResponseMeta.FinishReason != "" {
		a.finish = msg.ResponseMeta.FinishReason
	}

	return textDelta, thinkingDelta
}

func jsonInt(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

// toolUseBlocks renders the accumulated tool calls as ContentBlocks, in
// call order.
func (a *accumulator) toolUseBlocks() []core.ContentBlock {
	blocks := make([]core.ContentBlock, 0, len(a.calls))
	for _, c := range a.calls {
		input := json.RawMessage(c.args)
		if !json.Valid(input) {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, core.ToolUseBlock(c.id, c.name, input))
	}
	return blocks
}

// assistantMessage renders everything accumulated this turn as one
// core.Message, text block first (if any), then one ToolUse block per call.
func (a *accumulator) assistantMessage() core.Message {
	var blocks []core.ContentBlock
	if a.text != "" {
		blocks = append(blocks, core.TextBlock(a.text))
	}
	blocks = append(blocks, a.toolUseBlocks()...)
	return core.Message{Role: core.RoleAssistant, Content: blocks}
}

// normalizedFinish maps the various provider-specific finish-reason
// spellings onto the runtime's StopReason vocabulary, normalizing
// "tool_use"/"tool_calls" before switching on it.
func normalizedFinish(raw string, hasToolCalls bool) core.StopReason {
	switch raw {
	case "stop", "end_turn", "":
		if hasToolCalls {
			return core.StopToolUse
		}
		return core.StopEndTurn
	case "tool_use", "tool_calls":
		return core.StopToolUse
	case "max_tokens", "length":
		return core.StopMaxTokens
	case "pause_turn":
		return core.StopPauseTurn
	case "stop_sequence":
		return core.StopStopSequence
	default:
		if hasToolCalls {
			return core.StopToolUse
		}
		return core.StopEndTurn
	}
}
