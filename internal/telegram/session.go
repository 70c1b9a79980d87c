package telegram

import (
	"strings"
	"sync"
)

// Session holds the sources a chat is currently asking about.
type Session struct {
	DBName   string
	Table    string
	Document string
}

// HasSource reports whether a question can be answered.
func (s Session) HasSource() bool {
	return s.Table != "" || s.Document != ""
}

// SessionStore keeps per-chat sessions.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[int64]Session
	defaultDB string
}

// NewSessionStore creates a store whose sessions start on defaultDB.
func NewSessionStore(defaultDB string) *SessionStore {
	return &SessionStore{sessions: make(map[int64]Session), defaultDB: defaultDB}
}

// Get returns the chat's session, or a fresh one.
func (s *SessionStore) Get(chatID int64) Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[chatID]; ok {
		return sess
	}
	return Session{DBName: s.defaultDB}
}

// Update applies fn to the chat's session and stores the result.
func (s *SessionStore) Update(chatID int64, fn func(*Session)) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = Session{DBName: s.defaultDB}
	}
	fn(&sess)
	s.sessions[chatID] = sess
	return sess
}

// Reset forgets the chat's sources.
func (s *SessionStore) Reset(chatID int64) {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
}

// ResetAll forgets every chat's sources.
func (s *SessionStore) ResetAll() {
	s.mu.Lock()
	s.sessions = make(map[int64]Session)
	s.mu.Unlock()
}

// parseCommand splits "/cmd@botname arg text" into ("cmd", "arg text").
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, arg, _ := strings.Cut(text[1:], " ")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}
