// Package session provides bounded, in-memory conversation history.
//
// A session is an ordered log of user/assistant exchange pairs keyed by an
// opaque identifier. History is capped at the most recent MaxHistory pairs;
// older pairs are dropped first. State is process-local and lost on restart.
//
// Concurrency: each session carries its own mutex, so concurrent requests
// for the same session id serialize their append/trim instead of racing.
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Role constants for transcript rendering.
const (
	RoleUser      = "User"
	RoleAssistant = "Assistant"
)

// DefaultMaxHistory is the number of exchange pairs kept per session when
// the store is constructed with a non-positive limit.
const DefaultMaxHistory = 2

// Message is a single entry in a session's log.
type Message struct {
	Role string
	Text string
}

// entry holds one session's messages behind its own lock.
type entry struct {
	mu       sync.Mutex
	messages []Message
}

// Store keeps conversation history for all sessions.
// Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	maxHistory int
}

// NewStore creates a session store keeping at most maxHistory exchange
// pairs per session.
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		sessions:   make(map[string]*entry),
		maxHistory: maxHistory,
	}
}

// Create allocates a new empty session and returns its id.
func (s *Store) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &entry{}
	s.mu.Unlock()
	return id
}

// get returns the entry for id, creating it if absent.
func (s *Store) get(id string) *entry {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[id]; ok {
		return e
	}
	e = &entry{}
	s.sessions[id] = e
	return e
}

// AddExchange appends one user/assistant pair to the session's log,
// creating the session if absent, then trims to the most recent maxHistory
// pairs (oldest dropped first).
func (s *Store) AddExchange(id, userText, assistantText string) {
	e := s.get(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.messages = append(e.messages,
		Message{Role: RoleUser, Text: userText},
		Message{Role: RoleAssistant, Text: assistantText},
	)

	if max := s.maxHistory * 2; len(e.messages) > max {
		// Drop whole pairs from the front.
		e.messages = append(e.messages[:0:0], e.messages[len(e.messages)-max:]...)
	}
}

// Transcript renders the session's history as "Role: text" lines for
// inclusion in the next model request. An unknown or new session id yields
// an empty transcript; it is never an error.
func (s *Store) Transcript(id string) string {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var sb strings.Builder
	for i, m := range e.messages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Text)
	}
	return sb.String()
}

// Clear removes the session's history but keeps the session alive.
func (s *Store) Clear(id string) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.messages = nil
	e.mu.Unlock()
}

// Count returns the number of messages currently held for the session.
func (s *Store) Count(id string) int {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}
