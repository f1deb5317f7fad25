package runtime

import (
	"sync"

	"github.com/loomwork/loom/internal/core"
)

// AgentContext is the per-agent identity and scratch state visible to
// tools, hooks, and the agent loop. It is distinct from the Session: the
// context is process-lifetime bookkeeping, the session is the persisted
// record.
type AgentContext struct {
	SessionID   string
	AgentType   string
	Name        string
	Description string

	mu              sync.Mutex
	currentTurn     int
	currentToolUse  string
	metadata        map[string]any

	Resources *ResourceMap
}

// NewAgentContext creates a context with a fresh, empty resource map.
func NewAgentContext(sessionID, agentType, name, description string) *AgentContext {
	return &AgentContext{
		SessionID:   sessionID,
		AgentType:   agentType,
		Name:        name,
		Description: description,
		metadata:    make(map[string]any),
		Resources:   NewResourceMap(),
	}
}

// CurrentTurn returns the monotone turn counter.
func (c *AgentContext) CurrentTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTurn
}

// AdvanceTurn increments the turn counter and returns the new value.
func (c *AgentContext) AdvanceTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTurn++
	return c.currentTurn
}

// SetCurrentToolUseID records the tool-use id currently executing, or ""
// when none is in flight.
func (c *AgentContext) SetCurrentToolUseID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentToolUse = id
}

// CurrentToolUseID returns the tool-use id currently executing, if any.
func (c *AgentContext) CurrentToolUseID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentToolUse
}

// SetMetadata stores a value under key in the context's free-form
// metadata map.
func (c *AgentContext) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Metadata retrieves a value previously stored with SetMetadata.
func (c *AgentContext) Metadata(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.metadata[key]
	return v, ok
}

// sharedState is the lock-protected AgentState both the handle and the
// internals read and write.
type sharedState struct {
	mu    sync.RWMutex
	state core.AgentState
}

func newSharedState() *sharedState {
	return &sharedState{state: core.Idle()}
}

func (s *sharedState) get() core.AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *sharedState) set(st core.AgentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}
