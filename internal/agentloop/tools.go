package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomwork/loom/internal/core"
	"github.com/loomwork/loom/internal/hooks"
	"github.com/loomwork/loom/internal/permission"
	"github.com/loomwork/loom/internal/runtime"
	"github.com/loomwork/loom/internal/tool"
)

// runTool executes one tool invocation through the full pre-execution
// pipeline: PreToolUse hooks, then (if the tool requires it) the
// permission store, asking interactively on a miss, then the tool body
// itself, then PostToolUse/PostToolUseFailure hooks. It always returns a
// ToolResult block — a denial or a hook-rewritten input never reaches the
// caller as an error, only as an IsError result block, matching how a
// denied tool call is reported back to the model as a normal tool result.
func (l *loop) runTool(ctx context.Context, internals *runtime.AgentInternals, toolUseID, toolName string, input json.RawMessage) core.ContentBlock {
	t, ok := l.cfg.Tools.Get(toolName)
	if !ok {
		return core.ToolResultBlock(toolUseID, fmt.Sprintf("unknown tool %q", toolName), true)
	}

	hookCtx := &hooks.Context{
		SessionID:   internals.SessionID(),
		AgentType:   l.cfg.AgentType,
		CurrentTurn: internals.Context().CurrentTurn(),
		ToolName:    toolName,
		ToolUseID:   toolUseID,
		ToolInput:   input,
		Metadata:    make(map[string]any),
	}

	if l.cfg.Hooks != nil {
		pre := l.cfg.Hooks.Run(hooks.PreToolUse, hookCtx)
		input = hookCtx.ToolInput
		if pre.Decision == hooks.DecisionDeny {
			reason := pre.Reason
			if reason == "" {
				reason = "denied by policy"
			}
			internals.SendToolEnd(toolUseID, toolName, core.ToolFailure(reason))
			return core.ToolResultBlock(toolUseID, reason, true)
		}
	}

	if t.RequiresPermission() {
		allowed, err := l.checkPermission(ctx, internals, t, toolUseID, toolName, input)
		if err != nil {
			return core.ToolResultBlock(toolUseID, err.Error(), true)
		}
		if !allowed {
			return core.ToolResultBlock(toolUseID, "permission denied", true)
		}
	}

	internals.SetState(core.ExecutingTool(toolName, toolUseID))
	internals.SendToolStart(toolUseID, toolName, input)
	internals.Context().SetCurrentToolUseID(toolUseID)

	toolCtx := &tool.Context{
		SessionID: internals.SessionID(),
		CallID:    toolUseID,
		Agent:     l.cfg.AgentType,
		WorkDir:   l.cfg.WorkDir,
		Internals: internals,
	}

	result, execErr := t.Execute(ctx, input, toolCtx)

	var toolResult core.ToolResult
	if execErr != nil {
		toolResult = core.ToolFailure(execErr.Error())
	} else if result.Error != nil {
		toolResult = core.ToolFailure(result.Error.Error())
	} else {
		toolResult = core.ToolSuccess(result.Output)
	}
	internals.Context().SetCurrentToolUseID("")
	internals.SendToolEnd(toolUseID, toolName, toolResult)

	if l.cfg.Hooks != nil {
		hookCtx.ToolResult = &toolResult
		if toolResult.IsError {
			l.cfg.Hooks.Run(hooks.PostToolUseFailure, hookCtx)
		} else {
			l.cfg.Hooks.Run(hooks.PostToolUse, hookCtx)
		}
	}

	return core.ToolResultBlock(toolUseID, toolResult.Text, toolResult.IsError)
}

// checkPermission consults the three-tier store, falling back to the
// interactive ask-and-remember flow on a miss, and to an outright denial
// when the store is non-interactive.
func (l *loop) checkPermission(ctx context.Context, internals *runtime.AgentInternals, t tool.Tool, toolUseID, toolName string, input []byte) (bool, error) {
	switch internals.CheckPermission(toolName, string(input)) {
	case permission.CheckAllowed:
		return true, nil
	case permission.CheckDenied:
		return false, nil
	default:
		return internals.RequestPermission(toolUseID, toolName, input, t.GetInfo(input))
	}
}
