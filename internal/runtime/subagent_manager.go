package runtime

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/loomwork/loom/internal/core"
)

// CompletedSubAgent is the terminal record left behind once a subagent has
// finished, after its handle has been dropped from the active set.
type CompletedSubAgent struct {
	SessionID string
	AgentType string
	Result    string
	Success   bool
	Error     string
}

// SubAgentManager tracks the subagents one agent has spawned: handles of
// still-running children, keyed by session id, and the terminal record of
// every child that has since completed. It is created once per agent and
// stashed in that agent's ResourceMap under ResourceSubAgentManager, so any
// tool running in that agent's goroutine (the Task tool, in particular) can
// reach it through internals.Context().Resources.
type SubAgentManager struct {
	mu        sync.RWMutex
	active    map[string]*AgentHandle
	completed map[string]CompletedSubAgent
}

// NewSubAgentManager creates an empty manager.
func NewSubAgentManager() *SubAgentManager {
	return &SubAgentManager{
		active:    make(map[string]*AgentHandle),
		completed: make(map[string]CompletedSubAgent),
	}
}

// Register records a newly spawned subagent as active. Called automatically
// by Runtime.SpawnSubAgent; callers should not normally need to call it
// directly.
func (m *SubAgentManager) Register(sessionID string, h *AgentHandle) {
	log.Debug().Str("session_id", sessionID).Msg("registering subagent")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[sessionID] = h
}

// Get returns the handle of an active subagent, if any.
func (m *SubAgentManager) Get(sessionID string) (*AgentHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.active[sessionID]
	return h, ok
}

// Exists reports whether sessionID is known, active or completed.
func (m *SubAgentManager) Exists(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.active[sessionID]; ok {
		return true
	}
	_, ok := m.completed[sessionID]
	return ok
}

// IsActive reports whether sessionID is still running.
func (m *SubAgentManager) IsActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[sessionID]
	return ok
}

// ActiveSessionIDs returns the session ids of every currently active
// subagent.
func (m *SubAgentManager) ActiveSessionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveCount returns the number of currently active subagents.
func (m *SubAgentManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// MarkCompleted moves sessionID from active to completed, recording its
// outcome. Called by the runtime once a spawned child's driver goroutine
// returns.
func (m *SubAgentManager) MarkCompleted(sessionID, agentType, result string, success bool, errMsg string) {
	m.mu.Lock()
	delete(m.active, sessionID)
	m.completed[sessionID] = CompletedSubAgent{
		SessionID: sessionID,
		AgentType: agentType,
		Result:    result,
		Success:   success,
		Error:     errMsg,
	}
	m.mu.Unlock()

	log.Debug().Str("session_id", sessionID).Bool("success", success).Msg("subagent marked completed")
}

// GetCompleted returns the terminal record of a finished subagent.
func (m *SubAgentManager) GetCompleted(sessionID string) (CompletedSubAgent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.completed[sessionID]
	return c, ok
}

// CompletedSubAgents returns every completed subagent's terminal record.
func (m *SubAgentManager) CompletedSubAgents() []CompletedSubAgent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CompletedSubAgent, 0, len(m.completed))
	for _, c := range m.completed {
		out = append(out, c)
	}
	return out
}

// TotalCount returns the number of subagents tracked, active plus completed.
func (m *SubAgentManager) TotalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active) + len(m.completed)
}

// Remove drops sessionID from tracking entirely, active or completed.
func (m *SubAgentManager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, sessionID)
	delete(m.completed, sessionID)
}

// ClearCompleted drops every completed record, keeping active subagents.
func (m *SubAgentManager) ClearCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = make(map[string]CompletedSubAgent)
}

// resultFromSession derives a subagent's final-answer text from the last
// assistant message in its session history, which is what the Task tool's
// caller sees as "the subagent's answer".
func resultFromSession(s *Session) string {
	msgs := s.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleAssistant {
			return msgs[i].Text()
		}
	}
	return ""
}
