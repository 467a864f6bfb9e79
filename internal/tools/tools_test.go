package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lectern-ai/lectern/internal/course"
	"github.com/lectern-ai/lectern/internal/knowledge"
	"github.com/lectern-ai/lectern/internal/log"
)

type fakeSearcher struct {
	filter     knowledge.Filter
	filterErr  error
	results    []knowledge.Result
	searchErr  error
	resolved   string
	resolveErr error
	outline    course.Course
	outlineErr error

	gotQuery string
	gotLimit int
}

func (f *fakeSearcher) BuildFilter(_ context.Context, _ string, _ *int) (knowledge.Filter, error) {
	return f.filter, f.filterErr
}

func (f *fakeSearcher) SearchContent(_ context.Context, query string, _ knowledge.Filter, limit int) ([]knowledge.Result, error) {
	f.gotQuery = query
	f.gotLimit = limit
	return f.results, f.searchErr
}

func (f *fakeSearcher) ResolveCourseName(_ context.Context, _ string) (string, error) {
	return f.resolved, f.resolveErr
}

func (f *fakeSearcher) CourseOutline(_ context.Context, _ string) (course.Course, error) {
	return f.outline, f.outlineErr
}

func newTestRegistry(store Searcher) *Registry {
	return &Registry{store: store, logger: log.NewNop(), maxResults: 5}
}

func TestSearchContent_FormatsResults(t *testing.T) {
	store := &fakeSearcher{
		results: []knowledge.Result{
			{CourseTitle: "Go Basics", LessonNumber: 1, Content: "Slices grow automatically."},
			{CourseTitle: "Go Basics", LessonNumber: 2, Content: "Maps are reference types."},
		},
		outline: course.Course{
			Title: "Go Basics",
			Lessons: []course.Lesson{
				{Number: 1, Title: "Slices", Link: "https://example.com/l1"},
				{Number: 2, Title: "Maps", Link: "https://example.com/l2"},
			},
		},
	}
	r := newTestRegistry(store)

	out, err := r.searchContent(context.Background(), "how do slices work", "", nil)
	if err != nil {
		t.Fatalf("searchContent failed: %v", err)
	}

	want := "[Go Basics - Lesson 1]\nSlices grow automatically.\n\n[Go Basics - Lesson 2]\nMaps are reference types."
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if store.gotQuery != "how do slices work" {
		t.Errorf("query = %q", store.gotQuery)
	}
	if store.gotLimit != 5 {
		t.Errorf("limit = %d, want 5", store.gotLimit)
	}

	sources := r.Sources()
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if sources[0].Text != "Go Basics - Lesson 1" || sources[0].URL != "https://example.com/l1" {
		t.Errorf("sources[0] = %+v", sources[0])
	}
	if sources[1].URL != "https://example.com/l2" {
		t.Errorf("sources[1] = %+v", sources[1])
	}
}

func TestSearchContent_UnknownCourseIsToolOutput(t *testing.T) {
	store := &fakeSearcher{filterErr: knowledge.ErrCourseNotFound}
	r := newTestRegistry(store)

	out, err := r.searchContent(context.Background(), "anything", "Nonexistent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if out != "No course found matching 'Nonexistent'" {
		t.Errorf("output = %q", out)
	}
	if len(r.Sources()) != 0 {
		t.Error("no sources should be recorded for a miss")
	}
}

func TestSearchContent_EmptyResults(t *testing.T) {
	lesson := 3
	tests := []struct {
		name   string
		filter knowledge.Filter
		want   string
	}{
		{"no filter", knowledge.Filter{}, "No relevant content found."},
		{"course filter", knowledge.Filter{CourseTitle: "Go Basics"},
			"No relevant content found in course 'Go Basics'."},
		{"course and lesson", knowledge.Filter{CourseTitle: "Go Basics", LessonNumber: &lesson},
			"No relevant content found in course 'Go Basics' in lesson 3."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(&fakeSearcher{filter: tt.filter})
			out, err := r.searchContent(context.Background(), "q", "", nil)
			if err != nil {
				t.Fatalf("searchContent failed: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestSearchContent_StoreError(t *testing.T) {
	store := &fakeSearcher{searchErr: errors.New("connection reset")}
	r := newTestRegistry(store)

	if _, err := r.searchContent(context.Background(), "q", "", nil); err == nil {
		t.Fatal("expected error from failing store")
	}
}

func TestCourseOutline(t *testing.T) {
	store := &fakeSearcher{
		resolved: "MCP: Build Rich-Context AI Apps",
		outline: course.Course{
			Title:      "MCP: Build Rich-Context AI Apps",
			Link:       "https://example.com/mcp",
			Instructor: "Elena",
			Lessons: []course.Lesson{
				{Number: 0, Title: "Introduction"},
				{Number: 1, Title: "Why MCP"},
			},
		},
	}
	r := newTestRegistry(store)

	out, err := r.courseOutline(context.Background(), "MCP")
	if err != nil {
		t.Fatalf("courseOutline failed: %v", err)
	}

	for _, want := range []string{
		"Course: MCP: Build Rich-Context AI Apps",
		"Course Link: https://example.com/mcp",
		"Instructor: Elena",
		"Lessons (2):",
		"Lesson 0: Introduction",
		"Lesson 1: Why MCP",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("outline missing %q:\n%s", want, out)
		}
	}

	sources := r.Sources()
	if len(sources) != 1 || sources[0].URL != "https://example.com/mcp" {
		t.Errorf("sources = %+v", sources)
	}
}

func TestCourseOutline_UnknownCourse(t *testing.T) {
	store := &fakeSearcher{resolveErr: knowledge.ErrCourseNotFound}
	r := newTestRegistry(store)

	out, err := r.courseOutline(context.Background(), "Ghost Course")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if out != "No course found matching 'Ghost Course'" {
		t.Errorf("output = %q", out)
	}
}

func TestResetSources(t *testing.T) {
	store := &fakeSearcher{
		results: []knowledge.Result{{CourseTitle: "Go Basics", LessonNumber: 1, Content: "x"}},
		outline: course.Course{Title: "Go Basics"},
	}
	r := newTestRegistry(store)

	if _, err := r.searchContent(context.Background(), "q", "", nil); err != nil {
		t.Fatalf("searchContent failed: %v", err)
	}
	if len(r.Sources()) == 0 {
		t.Fatal("expected recorded sources")
	}

	r.ResetSources()
	if len(r.Sources()) != 0 {
		t.Error("ResetSources left sources behind")
	}
}

func TestSourcesReturnsCopy(t *testing.T) {
	r := newTestRegistry(&fakeSearcher{})
	r.recordSource(Source{Text: "a"})

	got := r.Sources()
	got[0].Text = "mutated"

	if r.Sources()[0].Text != "a" {
		t.Error("Sources exposed internal slice")
	}
}
