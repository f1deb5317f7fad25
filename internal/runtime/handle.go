package runtime

import (
	"context"
	"errors"

	"github.com/loomwork/loom/internal/core"
)

// ErrChannelClosed is returned by Send when the owning agent's goroutine
// has already exited and stopped consuming its input channel.
var ErrChannelClosed = errors.New("runtime: agent input channel closed")

// AgentHandle is the external, cheaply-copyable interface to a running
// agent. Multiple callers may hold and use a handle concurrently.
type AgentHandle struct {
	sessionID string
	input     chan core.InputMessage
	output    *Broadcaster
	session   *Session
	state     *sharedState
	ctx       *AgentContext
}

// Context returns the agent's identity/scratch context, giving a caller
// holding only a handle (e.g. a parent looking up a child it spawned)
// access to the child's resource map.
func (h *AgentHandle) Context() *AgentContext { return h.ctx }

// Broadcaster is the output broadcaster type used by the runtime; defined
// as an alias here so call sites don't need to import internal/broadcast
// directly just to hold a handle.
type Broadcaster = broadcasterT

// SessionID returns the session id this handle addresses.
func (h *AgentHandle) SessionID() string { return h.sessionID }

// Session returns the (read-only, from the handle's perspective) shared
// session pointer.
func (h *AgentHandle) Session() *Session { return h.session }

// State returns the agent's current state.
func (h *AgentHandle) State() core.AgentState { return h.state.get() }

func (h *AgentHandle) IsIdle() bool       { return h.State().IsIdle() }
func (h *AgentHandle) IsProcessing() bool { return h.State().IsProcessing() }
func (h *AgentHandle) IsDone() bool       { return h.State().IsDone() }
func (h *AgentHandle) IsError() bool      { return h.State().IsError() }
func (h *AgentHandle) IsRunning() bool    { return h.State().IsRunning() }

// Send delivers an input message, blocking if the channel is full. It
// returns ErrChannelClosed if the agent has already exited.
func (h *AgentHandle) Send(msg core.InputMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed
		}
	}()
	h.input <- msg
	return nil
}

// TrySend is the non-blocking variant of Send: it returns false instead
// of blocking if the input channel is currently full.
func (h *AgentHandle) TrySend(msg core.InputMessage) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = ErrChannelClosed
		}
	}()
	select {
	case h.input <- msg:
		return true, nil
	default:
		return false, nil
	}
}

func (h *AgentHandle) SendInput(text string) error { return h.Send(core.UserInput(text)) }
func (h *AgentHandle) Interrupt() error             { return h.Send(core.InterruptInput()) }
func (h *AgentHandle) Shutdown() error              { return h.Send(core.ShutdownInput()) }

func (h *AgentHandle) SendPermissionResponse(toolName string, allowed, remember bool) error {
	return h.Send(core.PermissionResponseInput(toolName, allowed, remember))
}

func (h *AgentHandle) SendToolResult(toolUseID string, result core.ToolResult) error {
	return h.Send(core.ToolResultInput(toolUseID, result))
}

func (h *AgentHandle) SendUserQuestionResponse(requestID string, answers []string) error {
	return h.Send(core.UserQuestionResponseInput(requestID, answers))
}

func (h *AgentHandle) SendSubAgentComplete(sessionID string, result *core.SubAgentInfo) error {
	return h.Send(core.SubAgentCompleteInput(sessionID, result))
}

// Subscribe returns a new subscriber positioned at the current output
// head; it only observes chunks published after this call.
func (h *AgentHandle) Subscribe() *OutputSubscriber {
	return h.output.Subscribe()
}

// WaitForCompletion returns nil at once if the agent is in the Done or
// Error state. Otherwise it blocks until the agent publishes a Done or
// Error output chunk, its output is closed, or ctx is canceled. The agent
// loop publishes a Done chunk at the end of every turn, so for a looping
// agent this returns when the current (or next) turn ends, even though
// the agent then stays alive in the Idle state.
func (h *AgentHandle) WaitForCompletion(ctx context.Context) error {
	if !h.State().IsRunning() {
		return nil
	}
	sub := h.Subscribe()
	done := make(chan struct{})
	defer close(done)
	ch := sub.Chan(done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return nil
			}
			if chunk.Kind == core.OutputDone || chunk.Kind == core.OutputError {
				return nil
			}
		}
	}
}
