// Package rag orchestrates a query end to end: session lookup, tool-assisted
// generation, source collection, and history recording.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lectern-ai/lectern/internal/log"
	"github.com/lectern-ai/lectern/internal/tools"
)

// Agent produces an answer for a query given the conversation so far.
type Agent interface {
	Execute(ctx context.Context, transcript, query string) (string, error)
}

// Sessions tracks per-conversation history.
type Sessions interface {
	Create() string
	Transcript(id string) string
	AddExchange(id, userText, assistantText string)
}

// SourceTracker exposes the sources consulted by tool calls during a query.
type SourceTracker interface {
	Sources() []tools.Source
	ResetSources()
}

// Catalog answers course analytics questions.
type Catalog interface {
	CourseTitles(ctx context.Context) ([]string, error)
	CourseCount(ctx context.Context) (int64, error)
}

// Analytics summarises the course catalog.
type Analytics struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

// System wires the pieces of the RAG pipeline together.
type System struct {
	agent    Agent
	sessions Sessions
	tracker  SourceTracker
	catalog  Catalog
	logger   *slog.Logger
}

// New assembles a System. All dependencies are required except logger.
func New(agent Agent, sessions Sessions, tracker SourceTracker, catalog Catalog, logger *slog.Logger) *System {
	if logger == nil {
		logger = log.NewNop()
	}
	return &System{
		agent:    agent,
		sessions: sessions,
		tracker:  tracker,
		catalog:  catalog,
		logger:   logger,
	}
}

// Query answers a user question. A blank sessionID starts a new conversation;
// the (possibly newly created) session id is always returned so the client
// can continue the thread.
func (s *System) Query(ctx context.Context, query, sessionID string) (string, []tools.Source, string, error) {
	if sessionID == "" {
		sessionID = s.sessions.Create()
		s.logger.Debug("created session", "session_id", sessionID)
	}

	transcript := s.sessions.Transcript(sessionID)

	// Sources accumulate per query, not per conversation.
	s.tracker.ResetSources()

	answer, err := s.agent.Execute(ctx, transcript, query)
	if err != nil {
		return "", nil, sessionID, fmt.Errorf("execute query: %w", err)
	}

	sources := s.tracker.Sources()
	s.sessions.AddExchange(sessionID, query, answer)

	s.logger.Info("query served",
		"session_id", sessionID,
		"query_length", len(query),
		"sources", len(sources))
	return answer, sources, sessionID, nil
}

// CourseAnalytics reports what is in the catalog.
func (s *System) CourseAnalytics(ctx context.Context) (Analytics, error) {
	titles, err := s.catalog.CourseTitles(ctx)
	if err != nil {
		return Analytics{}, fmt.Errorf("list course titles: %w", err)
	}
	count, err := s.catalog.CourseCount(ctx)
	if err != nil {
		return Analytics{}, fmt.Errorf("count courses: %w", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return Analytics{TotalCourses: int(count), CourseTitles: titles}, nil
}
