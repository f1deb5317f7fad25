package runtime

import (
	"sync"
	"time"

	"github.com/loomwork/loom/internal/core"
	"github.com/loomwork/loom/internal/storage"
)

// Session is the in-memory, lock-protected view of one conversation
// thread: its metadata and its message history. A Session is owned by the
// agent that created it; the AgentHandle holds only a read-only pointer.
// Session does not guarantee a second loader sees the same instance — two
// handles opened for the same session id independently snapshot storage.
type Session struct {
	mu       sync.RWMutex
	meta     storage.SessionMetadata
	messages []core.Message
	store    *storage.SessionStore // nil means history is in-memory only
}

// NewSession creates a fresh session with the given identity, optionally
// backed by a SessionStore for persistence (pass nil to keep it purely
// in-memory, e.g. in tests).
func NewSession(sessionID, agentType string, store *storage.SessionStore) *Session {
	now := time.Now().UnixMilli()
	return &Session{
		meta: storage.SessionMetadata{
			SessionID: sessionID,
			AgentType: agentType,
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  make(map[string]any),
		},
		store: store,
	}
}

// LoadSession reconstructs a Session from storage.
func LoadSession(store *storage.SessionStore, sessionID string) (*Session, error) {
	meta, err := store.LoadMetadata(sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := store.LoadMessages(sessionID)
	if err != nil {
		return nil, err
	}
	return &Session{meta: *meta, messages: msgs, store: store}, nil
}

// ID returns the session's identity.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.SessionID
}

// Metadata returns a copy of the session's current metadata.
func (s *Session) Metadata() storage.SessionMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// SetParent records lineage: this session was spawned as a subagent of
// parentID, via the tool call identified by parentToolUseID.
func (s *Session) SetParent(parentID, parentToolUseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.ParentSessionID = parentID
	s.meta.ParentToolUseID = parentToolUseID
}

// SetConversationName records the title generated after the first turn.
func (s *Session) SetConversationName(name string) {
	s.mu.Lock()
	s.meta.ConversationName = name
	s.meta.UpdatedAt = time.Now().UnixMilli()
	store := s.store
	meta := s.meta
	s.mu.Unlock()

	if store != nil {
		_ = store.SaveMetadata(&meta)
	}
}

// HasConversationName reports whether a title has already been set.
func (s *Session) HasConversationName() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.ConversationName != ""
}

// AddMessage appends a message to history, updates UpdatedAt, and
// persists both if a SessionStore is attached.
func (s *Session) AddMessage(msg core.Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.meta.UpdatedAt = time.Now().UnixMilli()
	store := s.store
	meta := s.meta
	s.mu.Unlock()

	if store == nil {
		return nil
	}
	if err := store.AppendMessage(meta.SessionID, msg); err != nil {
		return err
	}
	return store.SaveMetadata(&meta)
}

// Messages returns a copy of the full message history.
func (s *Session) Messages() []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Save persists both metadata and the full message history, used by the
// loop's auto-save-on-Done behavior.
func (s *Session) Save() error {
	s.mu.RLock()
	meta := s.meta
	msgs := make([]core.Message, len(s.messages))
	copy(msgs, s.messages)
	store := s.store
	s.mu.RUnlock()

	if store == nil {
		return nil
	}
	if err := store.SaveMetadata(&meta); err != nil {
		return err
	}
	return store.SaveMessages(meta.SessionID, msgs)
}
