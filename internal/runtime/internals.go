package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomwork/loom/internal/core"
	"github.com/loomwork/loom/internal/permission"
)

// ErrInterrupted is returned from any internals call that was waiting for
// a response when an Interrupt arrived instead.
var ErrInterrupted = errors.New("runtime: interrupted")

// ErrShutdown is returned from any internals call that was waiting for a
// response when a Shutdown arrived instead.
var ErrShutdown = errors.New("runtime: shutdown")

// AgentInternals is the interior half of an agent's channels and state:
// everything the agent's own goroutine (and the tools/hooks it calls into)
// uses to receive input, publish output, and consult/extend permissions.
// It satisfies internal/tool.Internals structurally, without importing
// that package, so tools can reach back into the owning agent without a
// dependency cycle.
type AgentInternals struct {
	sessionID string
	input     <-chan core.InputMessage
	output    *broadcasterT
	session   *Session
	ctx       *AgentContext
	perms     *permission.Store
	state     *sharedState
	rt        *Runtime
}

// SessionID returns the session id this agent owns.
func (a *AgentInternals) SessionID() string { return a.sessionID }

// Context returns the agent's identity/scratch context.
func (a *AgentInternals) Context() *AgentContext { return a.ctx }

// Session returns the agent's owned session.
func (a *AgentInternals) Session() *Session { return a.session }

// Receive blocks for the next input message. ok is false once the channel
// is closed, which the runtime does when the agent's driver function
// returns.
func (a *AgentInternals) Receive() (core.InputMessage, bool) {
	msg, ok := <-a.input
	return msg, ok
}

// TryReceive is the non-blocking variant of Receive.
func (a *AgentInternals) TryReceive() (core.InputMessage, bool) {
	select {
	case msg, ok := <-a.input:
		return msg, ok
	default:
		return core.InputMessage{}, false
	}
}

// Send publishes a chunk on the agent's output broadcast. A lack of
// subscribers is not an error.
func (a *AgentInternals) Send(chunk core.OutputChunk) {
	a.output.Publish(chunk)
}

func (a *AgentInternals) SendText(text string)      { a.Send(core.TextDelta(text)) }
func (a *AgentInternals) SendStatus(text string)     { a.Send(core.StatusChunk(text)) }
func (a *AgentInternals) SendError(text string)      { a.Send(core.ErrorChunk(text)) }

func (a *AgentInternals) SendToolStart(id, name string, input []byte) {
	a.Send(core.ToolStartChunk(id, name, input))
}

func (a *AgentInternals) SendToolEnd(id, name string, result core.ToolResult) {
	a.Send(core.ToolEndChunk(id, name, result))
}

// SetState updates the shared state and broadcasts a StateChange chunk.
func (a *AgentInternals) SetState(s core.AgentState) {
	a.state.set(s)
	a.Send(core.StateChangeChunk(s))
}

// SetStateSilent updates the shared state without broadcasting.
func (a *AgentInternals) SetStateSilent(s core.AgentState) {
	a.state.set(s)
}

// State returns the current agent state.
func (a *AgentInternals) State() core.AgentState { return a.state.get() }

// CheckPermission consults the three-tier permission store.
func (a *AgentInternals) CheckPermission(toolName, input string) permission.CheckResult {
	return a.perms.Check(toolName, input)
}

// AddPermissionRule adds a rule at the given scope to this agent's store
// (global rules become visible to every other agent immediately).
func (a *AgentInternals) AddPermissionRule(scope permission.Scope, rule permission.Rule) {
	a.perms.AddRule(scope, rule)
}

// RequestPermission runs the interactive ask flow for one tool
// invocation: it emits a PermissionRequest chunk, marks the agent as
// WaitingForPermission, and blocks until a matching PermissionResponse,
// Interrupt, or Shutdown arrives (or the channel closes).
func (a *AgentInternals) RequestPermission(toolUseID, toolName string, input []byte, info string) (allowed bool, err error) {
	a.SetState(core.WaitingForPermission(toolName))
	a.Send(core.PermissionRequestChunk(toolUseID, toolName, input, info))

	for {
		msg, ok := a.Receive()
		if !ok {
			return false, ErrChannelClosed
		}
		switch msg.Kind {
		case core.InputPermissionResponse:
			if msg.ToolName != toolName {
				return false, fmt.Errorf("runtime: permission response for %q does not match pending request for %q", msg.ToolName, toolName)
			}
			if msg.Remember && msg.Allowed {
				a.AddPermissionRule(permission.ScopeSession, permission.AllowTool(toolName))
			}
			return msg.Allowed, nil
		case core.InputInterrupt:
			return false, ErrInterrupted
		case core.InputShutdown:
			return false, ErrShutdown
		default:
			// Any other input arriving while waiting for a permission
			// response is not meaningful here; ignore and keep waiting.
			continue
		}
	}
}

// AskUserQuestion emits an AskUserQuestion chunk and blocks until a
// matching UserQuestionResponse, Interrupt, or Shutdown arrives. Matches
// internal/tool.Internals.AskUserQuestion's signature so *AgentInternals
// satisfies that interface.
func (a *AgentInternals) AskUserQuestion(ctx context.Context, requestID string, questions []core.UserQuestion) ([]string, error) {
	a.SetState(core.WaitingForUserInput(requestID))
	a.Send(core.OutputChunk{Kind: core.OutputAskUserQuestion, RequestID: requestID, Questions: questions})

	for {
		msg, ok := a.Receive()
		if !ok {
			return nil, ErrChannelClosed
		}
		switch msg.Kind {
		case core.InputUserQuestionResponse:
			if msg.RequestID != requestID {
				continue
			}
			return msg.Answers, nil
		case core.InputInterrupt:
			return nil, ErrInterrupted
		case core.InputShutdown:
			return nil, ErrShutdown
		default:
			continue
		}
	}
}

// SpawnSubAgent creates a child session linked to this agent and spawns
// it via the runtime, returning the child's session id and a channel
// forwarding its output chunks. Matches internal/tool.Internals's
// signature so *AgentInternals satisfies that interface; the agentFn
// parameter of Runtime.SpawnSubAgent is supplied by the caller that
// registered a driver for agentType (see Runtime.RegisterAgentDriver).
func (a *AgentInternals) SpawnSubAgent(ctx context.Context, agentType, name, description, prompt string) (string, <-chan core.OutputChunk, error) {
	if a.rt == nil {
		return "", nil, fmt.Errorf("runtime: no runtime attached to spawn a subagent from")
	}
	handle, err := a.rt.SpawnSubAgent(ctx, a.sessionID, agentType, name, description, prompt)
	if err != nil {
		return "", nil, err
	}

	a.Send(core.OutputChunk{Kind: core.OutputSubAgentSpawned, SubAgentSessionID: handle.SessionID(), SubAgentType: agentType})

	done := make(chan struct{})
	out := make(chan core.OutputChunk)
	sub := handle.Subscribe()
	go func() {
		defer close(out)
		ch := sub.Chan(done)
		for chunk := range ch {
			out <- chunk
		}
	}()
	go func() {
		<-ctx.Done()
		close(done)
	}()

	_ = handle.SendInput(prompt)
	return handle.SessionID(), out, nil
}
