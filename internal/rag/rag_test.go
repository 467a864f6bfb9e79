package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/lectern-ai/lectern/internal/session"
	"github.com/lectern-ai/lectern/internal/tools"
)

type stubAgent struct {
	answer        string
	err           error
	gotTranscript string
	gotQuery      string
}

func (a *stubAgent) Execute(_ context.Context, transcript, query string) (string, error) {
	a.gotTranscript = transcript
	a.gotQuery = query
	return a.answer, a.err
}

type stubTracker struct {
	sources []tools.Source
	resets  int
}

func (t *stubTracker) Sources() []tools.Source { return t.sources }
func (t *stubTracker) ResetSources()           { t.resets++ }

type stubCatalog struct {
	titles []string
	count  int64
	err    error
}

func (c *stubCatalog) CourseTitles(context.Context) ([]string, error) { return c.titles, c.err }
func (c *stubCatalog) CourseCount(context.Context) (int64, error)    { return c.count, c.err }

func newSystem(agent Agent, tracker SourceTracker) (*System, *session.Store) {
	sessions := session.NewStore(session.DefaultMaxHistory)
	return New(agent, sessions, tracker, &stubCatalog{}, nil), sessions
}

func TestQuery_NewSession(t *testing.T) {
	agent := &stubAgent{answer: "42"}
	tracker := &stubTracker{sources: []tools.Source{{Text: "Deep Course - Lesson 1"}}}
	sys, sessions := newSystem(agent, tracker)

	answer, sources, sid, err := sys.Query(context.Background(), "meaning of life?", "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if answer != "42" {
		t.Errorf("answer = %q", answer)
	}
	if sid == "" {
		t.Fatal("expected a session id for blank input")
	}
	if len(sources) != 1 || sources[0].Text != "Deep Course - Lesson 1" {
		t.Errorf("sources = %+v", sources)
	}
	if agent.gotTranscript != "" {
		t.Errorf("fresh session transcript = %q, want empty", agent.gotTranscript)
	}

	// The exchange is recorded for the follow-up.
	if got := sessions.Transcript(sid); got != "User: meaning of life?\nAssistant: 42" {
		t.Errorf("transcript = %q", got)
	}
}

func TestQuery_ContinuesSession(t *testing.T) {
	agent := &stubAgent{answer: "second answer"}
	sys, sessions := newSystem(agent, &stubTracker{})

	sid := sessions.Create()
	sessions.AddExchange(sid, "first question", "first answer")

	_, _, gotSID, err := sys.Query(context.Background(), "follow-up", sid)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if gotSID != sid {
		t.Errorf("session id changed: %q -> %q", sid, gotSID)
	}
	if agent.gotTranscript != "User: first question\nAssistant: first answer" {
		t.Errorf("transcript = %q", agent.gotTranscript)
	}
}

func TestQuery_ResetsSourcesBeforeExecution(t *testing.T) {
	tracker := &stubTracker{}
	sys, _ := newSystem(&stubAgent{answer: "ok"}, tracker)

	for i := 0; i < 3; i++ {
		if _, _, _, err := sys.Query(context.Background(), "q", ""); err != nil {
			t.Fatalf("Query %d failed: %v", i, err)
		}
	}
	if tracker.resets != 3 {
		t.Errorf("resets = %d, want 3", tracker.resets)
	}
}

func TestQuery_AgentErrorLeavesHistoryUntouched(t *testing.T) {
	agent := &stubAgent{err: errors.New("model exploded")}
	sys, sessions := newSystem(agent, &stubTracker{})

	sid := sessions.Create()
	_, _, gotSID, err := sys.Query(context.Background(), "q", sid)
	if err == nil {
		t.Fatal("expected error")
	}
	if gotSID != sid {
		t.Errorf("session id = %q, want %q", gotSID, sid)
	}
	if sessions.Count(sid) != 0 {
		t.Error("failed exchange must not be recorded")
	}
}

func TestCourseAnalytics(t *testing.T) {
	catalog := &stubCatalog{titles: []string{"A", "B"}, count: 2}
	sys := New(&stubAgent{}, session.NewStore(2), &stubTracker{}, catalog, nil)

	a, err := sys.CourseAnalytics(context.Background())
	if err != nil {
		t.Fatalf("CourseAnalytics failed: %v", err)
	}
	if a.TotalCourses != 2 || len(a.CourseTitles) != 2 {
		t.Errorf("analytics = %+v", a)
	}
}

func TestCourseAnalytics_EmptyCatalog(t *testing.T) {
	sys := New(&stubAgent{}, session.NewStore(2), &stubTracker{}, &stubCatalog{}, nil)

	a, err := sys.CourseAnalytics(context.Background())
	if err != nil {
		t.Fatalf("CourseAnalytics failed: %v", err)
	}
	if a.CourseTitles == nil {
		t.Error("CourseTitles must be an empty slice, not nil, for JSON encoding")
	}
	if a.TotalCourses != 0 {
		t.Errorf("TotalCourses = %d", a.TotalCourses)
	}
}

func TestCourseAnalytics_Error(t *testing.T) {
	sys := New(&stubAgent{}, session.NewStore(2), &stubTracker{}, &stubCatalog{err: errors.New("db down")}, nil)

	if _, err := sys.CourseAnalytics(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
