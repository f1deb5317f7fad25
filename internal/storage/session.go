package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loomwork/loom/internal/core"
)

// SessionMetadata is the persisted identity and lineage record for one
// session. It round-trips through SaveMetadata/LoadMetadata as pretty JSON.
type SessionMetadata struct {
	SessionID         string            `json:"session_id"`
	AgentType         string            `json:"agent_type"`
	Name              string            `json:"name,omitempty"`
	Description       string            `json:"description,omitempty"`
	ConversationName  string            `json:"conversation_name,omitempty"`
	ParentSessionID   string            `json:"parent_session_id,omitempty"`
	ParentToolUseID   string            `json:"parent_tool_use_id,omitempty"`
	ChildSessionIDs   []string          `json:"child_session_ids,omitempty"`
	ProviderName      string            `json:"provider_name,omitempty"`
	Model             string            `json:"model,omitempty"`
	CreatedAt         int64             `json:"created_at"`
	UpdatedAt         int64             `json:"updated_at"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// SessionStore persists session metadata and append-only message history
// under basePath/<session_id>/{metadata.json,history.jsonl}. Like the
// generic KV Storage it keeps one FileLock per file path; metadata.json is
// written by temp-file and rename.
type SessionStore struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// NewSessionStore creates a SessionStore rooted at basePath.
func NewSessionStore(basePath string) *SessionStore {
	return &SessionStore{basePath: basePath, locks: make(map[string]*FileLock)}
}

func (s *SessionStore) getLock(path string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[path]
	if !ok {
		lock = NewFileLock(path)
		s.locks[path] = lock
	}
	return lock
}

func (s *SessionStore) dir(sessionID string) string {
	return filepath.Join(s.basePath, sessionID)
}

func (s *SessionStore) metadataPath(sessionID string) string {
	return filepath.Join(s.dir(sessionID), "metadata.json")
}

func (s *SessionStore) historyPath(sessionID string) string {
	return filepath.Join(s.dir(sessionID), "history.jsonl")
}

// SaveMetadata writes meta to metadata.json using an atomic temp-write and
// rename so a concurrent reader never observes a partial file.
func (s *SessionStore) SaveMetadata(meta *SessionMetadata) error {
	dir := s.dir(meta.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("session store: create dir: %w", err)
	}

	path := s.metadataPath(meta.SessionID)
	lock := s.getLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("session store: lock metadata: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("session store: marshal metadata: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("session store: write temp metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session store: rename metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads metadata.json. Returns ErrNotFound if the session
// does not exist.
func (s *SessionStore) LoadMetadata(sessionID string) (*SessionMetadata, error) {
	data, err := os.ReadFile(s.metadataPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session store: read metadata: %w", err)
	}
	var meta SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("session store: unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// AppendMessage appends one line to history.jsonl and bumps UpdatedAt on
// the session's metadata.
func (s *SessionStore) AppendMessage(sessionID string, msg core.Message) error {
	path := s.historyPath(sessionID)
	lock := s.getLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("session store: lock history: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("session store: open history: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session store: marshal message: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("session store: write message: %w", err)
	}

	if meta, err := s.LoadMetadata(sessionID); err == nil {
		meta.UpdatedAt = time.Now().UnixMilli()
		_ = s.SaveMetadata(meta)
	}
	return nil
}

// LoadMessages reads every line of history.jsonl in order. A missing file
// is treated as an empty history, not an error.
func (s *SessionStore) LoadMessages(sessionID string) ([]core.Message, error) {
	f, err := os.Open(s.historyPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session store: open history: %w", err)
	}
	defer f.Close()

	var messages []core.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg core.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("session store: unmarshal message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session store: scan history: %w", err)
	}
	return messages, nil
}

// SaveMessages overwrites history.jsonl entirely, used after an in-place
// mutation of history (e.g. compaction).
func (s *SessionStore) SaveMessages(sessionID string, all []core.Message) error {
	path := s.historyPath(sessionID)
	lock := s.getLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("session store: lock history: %w", err)
	}
	defer lock.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("session store: create temp history: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, msg := range all {
		data, err := json.Marshal(msg)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("session store: marshal message: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("session store: write message: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("session store: flush history: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session store: rename history: %w", err)
	}
	return nil
}

// AddChild atomically appends childID to the parent session's
// ChildSessionIDs and persists the update, used when spawning a subagent.
func (s *SessionStore) AddChild(parentID, childID string) error {
	path := s.metadataPath(parentID)
	lock := s.getLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("session store: lock parent metadata: %w", err)
	}
	defer lock.Unlock()
	meta, err := s.loadMetadataLocked(parentID)
	if err != nil {
		return err
	}
	meta.ChildSessionIDs = append(meta.ChildSessionIDs, childID)
	meta.UpdatedAt = time.Now().UnixMilli()

	// Write under the same lock (SaveMetadata would take it again)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("session store: marshal metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("session store: write temp metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session store: rename metadata: %w", err)
	}
	return nil
}

func (s *SessionStore) loadMetadataLocked(sessionID string) (*SessionMetadata, error) {
	data, err := os.ReadFile(s.metadataPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session store: read metadata: %w", err)
	}
	var meta SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("session store: unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// ListSessions returns every session id under basePath.
func (s *SessionStore) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session store: list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ListTopLevelSessions returns every session id whose metadata has no
// ParentSessionID, i.e. excludes subagent sessions.
func (s *SessionStore) ListTopLevelSessions() ([]string, error) {
	ids, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	var top []string
	for _, id := range ids {
		meta, err := s.LoadMetadata(id)
		if err != nil {
			continue
		}
		if meta.ParentSessionID == "" {
			top = append(top, id)
		}
	}
	return top, nil
}

// DeleteSession removes the session's entire directory.
func (s *SessionStore) DeleteSession(sessionID string) error {
	if err := os.RemoveAll(s.dir(sessionID)); err != nil {
		return fmt.Errorf("session store: delete session: %w", err)
	}
	return nil
}
