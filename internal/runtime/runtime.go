package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/loomwork/loom/internal/core"
	"github.com/loomwork/loom/internal/permission"
	"github.com/loomwork/loom/internal/storage"
)

// ErrAgentNotRunning is returned by operations addressing a session id
// that has no registered, running agent.
var ErrAgentNotRunning = fmt.Errorf("runtime: agent not running")

// AgentFunc is the driver a spawned goroutine runs: given its internals,
// it owns the agent's entire lifecycle until it returns.
type AgentFunc func(ctx context.Context, internals *AgentInternals)

// Runtime owns the registry of running agents, the process-wide
// permission tier, and the drivers available for spawning subagents by
// agent-type name.
type Runtime struct {
	mu      sync.RWMutex
	handles map[string]*AgentHandle
	drivers map[string]AgentFunc
	global  *permission.GlobalPermissions
	store   *storage.SessionStore
}

// New creates a runtime backed by the given session store (pass nil for a
// purely in-memory runtime, useful in tests).
func New(store *storage.SessionStore) *Runtime {
	return &Runtime{
		handles: make(map[string]*AgentHandle),
		drivers: make(map[string]AgentFunc),
		global:  permission.NewGlobalPermissions(),
		store:   store,
	}
}

// GlobalPermissions returns the process-wide permission tier shared by
// every agent spawned from this runtime.
func (rt *Runtime) GlobalPermissions() *permission.GlobalPermissions { return rt.global }

// RegisterAgentDriver makes an AgentFunc available under agentType so
// SpawnSubAgent can look it up by name.
func (rt *Runtime) RegisterAgentDriver(agentType string, fn AgentFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.drivers[agentType] = fn
}

// Spawn creates an agent's channels, session, and context, registers it,
// and launches fn as its driving goroutine. It returns immediately with a
// handle; fn runs asynchronously.
func (rt *Runtime) Spawn(ctx context.Context, sessionID, agentType, name, description string, localRules []permission.Rule, fn AgentFunc) *AgentHandle {
	return rt.spawn(ctx, sessionID, agentType, name, description, "", "", localRules, fn)
}

// SpawnWithLocalRules is an alias kept for call sites that want to name
// the local-rule seeding explicitly; identical to Spawn.
func (rt *Runtime) SpawnWithLocalRules(ctx context.Context, sessionID, agentType, name, description string, localRules []permission.Rule, fn AgentFunc) *AgentHandle {
	return rt.spawn(ctx, sessionID, agentType, name, description, "", "", localRules, fn)
}

func (rt *Runtime) spawn(
	ctx context.Context,
	sessionID, agentType, name, description string,
	parentSessionID, parentToolUseID string,
	localRules []permission.Rule,
	fn AgentFunc,
) *AgentHandle {
	input := make(chan core.InputMessage, InputChannelSize)
	output := newBroadcaster()
	state := newSharedState()

	var session *Session
	if rt.store != nil {
		session = NewSession(sessionID, agentType, rt.store)
	} else {
		session = NewSession(sessionID, agentType, nil)
	}
	if parentSessionID != "" {
		session.SetParent(parentSessionID, parentToolUseID)
	}
	_ = session.Save()

	agentCtx := NewAgentContext(sessionID, agentType, name, description)
	agentCtx.Resources.Set(ResourceSubAgentManager, NewSubAgentManager())
	perms := permission.NewStore(rt.global, localRules, true)

	handle := &AgentHandle{
		sessionID: sessionID,
		input:     input,
		output:    output,
		session:   session,
		state:     state,
		ctx:       agentCtx,
	}

	internals := &AgentInternals{
		sessionID: sessionID,
		input:     input,
		output:    output,
		session:   session,
		ctx:       agentCtx,
		perms:     perms,
		state:     state,
		rt:        rt,
	}
	agentCtx.Resources.Set(ResourceRuntimeHandle, handle)

	rt.mu.Lock()
	rt.handles[sessionID] = handle
	rt.mu.Unlock()

	go func() {
		defer func() {
			output.Close()
			close(input)
			rt.mu.Lock()
			delete(rt.handles, sessionID)
			parentHandle := rt.handles[parentSessionID]
			rt.mu.Unlock()

			if parentSessionID != "" && parentHandle != nil {
				st := state.get()
				info := &core.SubAgentInfo{
					AgentType: agentType,
					Result:    resultFromSession(session),
					Success:   !st.IsError(),
					Error:     st.Message,
				}
				if mgr, ok := GetTyped[*SubAgentManager](parentHandle.Context().Resources, ResourceSubAgentManager); ok {
					mgr.MarkCompleted(sessionID, agentType, info.Result, info.Success, info.Error)
				}
				parentHandle.output.Publish(core.OutputChunk{
					Kind:              core.OutputSubAgentComplete,
					SubAgentSessionID: sessionID,
					SubAgentResult:    info,
				})
			}
		}()
		fn(ctx, internals)
	}()

	return handle
}

// SpawnSubAgent creates a session linked to parentSessionID as a child and
// spawns it using the driver registered for agentType. The parent's
// storage lineage (ParentSessionID/ChildSessionIDs) is recorded before the
// child's goroutine starts.
func (rt *Runtime) SpawnSubAgent(ctx context.Context, parentSessionID, agentType, name, description, prompt string) (*AgentHandle, error) {
	rt.mu.RLock()
	fn, ok := rt.drivers[agentType]
	rt.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("runtime: no agent driver registered for type %q", agentType)
	}

	childID := ulid.Make().String()

	if rt.store != nil {
		if err := rt.store.AddChild(parentSessionID, childID); err != nil {
			log.Warn().Err(err).Str("parent", parentSessionID).Str("child", childID).Msg("failed to record subagent lineage")
		}
	}

	handle := rt.spawn(ctx, childID, agentType, name, description, parentSessionID, "", nil, fn)

	rt.mu.RLock()
	parentHandle := rt.handles[parentSessionID]
	rt.mu.RUnlock()
	if parentHandle != nil {
		if mgr, ok := GetTyped[*SubAgentManager](parentHandle.Context().Resources, ResourceSubAgentManager); ok {
			mgr.Register(childID, handle)
		}
	}

	return handle, nil
}

// Get retrieves a running agent's handle by session id.
func (rt *Runtime) Get(sessionID string) (*AgentHandle, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	h, ok := rt.handles[sessionID]
	return h, ok
}

// IsRunning reports whether an agent is currently registered for sessionID.
func (rt *Runtime) IsRunning(sessionID string) bool {
	_, ok := rt.Get(sessionID)
	return ok
}

// Count returns the number of currently running agents.
func (rt *Runtime) Count() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.handles)
}

// ListRunning returns the session ids of every currently running agent.
func (rt *Runtime) ListRunning() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	ids := make([]string, 0, len(rt.handles))
	for id := range rt.handles {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown sends a Shutdown signal to the named agent.
func (rt *Runtime) Shutdown(sessionID string) error {
	h, ok := rt.Get(sessionID)
	if !ok {
		return ErrAgentNotRunning
	}
	return h.Shutdown()
}

// Interrupt sends an Interrupt signal to the named agent.
func (rt *Runtime) Interrupt(sessionID string) error {
	h, ok := rt.Get(sessionID)
	if !ok {
		return ErrAgentNotRunning
	}
	return h.Interrupt()
}

// ShutdownAll signals every currently running agent to shut down.
func (rt *Runtime) ShutdownAll() {
	for _, id := range rt.ListRunning() {
		_ = rt.Shutdown(id)
	}
}

// WaitFor calls WaitForCompletion on the named agent's handle.
func (rt *Runtime) WaitFor(ctx context.Context, sessionID string) error {
	h, ok := rt.Get(sessionID)
	if !ok {
		return ErrAgentNotRunning
	}
	return h.WaitForCompletion(ctx)
}

// WaitAll calls WaitFor on every currently running agent in turn,
// stopping at the first error.
func (rt *Runtime) WaitAll(ctx context.Context) error {
	for _, id := range rt.ListRunning() {
		if err := rt.WaitFor(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
