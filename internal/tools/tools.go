// Package tools registers the retrieval tools the chat model can call:
// course content search and course outline lookup. The registry also tracks
// which sources each tool call touched so the API can surface them alongside
// the generated answer.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/lectern-ai/lectern/internal/course"
	"github.com/lectern-ai/lectern/internal/knowledge"
)

// Searcher is the subset of the knowledge store the tools need.
type Searcher interface {
	BuildFilter(ctx context.Context, courseName string, lesson *int) (knowledge.Filter, error)
	SearchContent(ctx context.Context, query string, f knowledge.Filter, limit int) ([]knowledge.Result, error)
	ResolveCourseName(ctx context.Context, name string) (string, error)
	CourseOutline(ctx context.Context, title string) (course.Course, error)
}

// Source identifies a piece of course material that contributed to an answer.
type Source struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// Registry defines the retrieval tools on a Genkit instance and collects the
// sources consulted during a single query. Reset it between queries.
type Registry struct {
	store      Searcher
	logger     *slog.Logger
	maxResults int
	refs       []ai.ToolRef

	mu      sync.Mutex
	sources []Source
}

// NewRegistry registers the retrieval tools with g and returns the registry.
func NewRegistry(g *genkit.Genkit, store Searcher, maxResults int, logger *slog.Logger) *Registry {
	r := &Registry{
		store:      store,
		logger:     logger,
		maxResults: maxResults,
	}

	searchTool := genkit.DefineTool(
		g, "search_course_content",
		"Search course materials with smart course name matching and optional lesson filtering",
		func(ctx *ai.ToolContext, input struct {
			Query        string `json:"query" jsonschema_description:"What to search for in course content"`
			CourseName   string `json:"course_name,omitempty" jsonschema_description:"Course title (partial matches work, e.g. 'MCP' or 'Introduction')"`
			LessonNumber *int   `json:"lesson_number,omitempty" jsonschema_description:"Specific lesson number to search within (e.g. 1, 2, 3)"`
		},
		) (string, error) {
			return r.searchContent(ctx.Context, input.Query, input.CourseName, input.LessonNumber)
		},
	)

	outlineTool := genkit.DefineTool(
		g, "get_course_outline",
		"Get the full outline of a course: title, course link, and every lesson",
		func(ctx *ai.ToolContext, input struct {
			CourseName string `json:"course_name" jsonschema_description:"Course title (partial matches work)"`
		},
		) (string, error) {
			return r.courseOutline(ctx.Context, input.CourseName)
		},
	)

	r.refs = []ai.ToolRef{searchTool, outlineTool}
	return r
}

// Refs returns the tool references to pass to generation.
func (r *Registry) Refs() []ai.ToolRef {
	return r.refs
}

// Sources returns the sources recorded since the last reset.
func (r *Registry) Sources() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// ResetSources clears the recorded sources. Call before each query.
func (r *Registry) ResetSources() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = nil
}

func (r *Registry) recordSource(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, s)
}

// searchContent runs a filtered vector search and formats the hits for the
// model. Resolution failures are reported as tool output rather than errors
// so the model can tell the user which course was not found.
func (r *Registry) searchContent(ctx context.Context, query, courseName string, lesson *int) (string, error) {
	filter, err := r.store.BuildFilter(ctx, courseName, lesson)
	if errors.Is(err, knowledge.ErrCourseNotFound) {
		return fmt.Sprintf("No course found matching '%s'", courseName), nil
	}
	if err != nil {
		return "", fmt.Errorf("build filter: %w", err)
	}

	results, err := r.store.SearchContent(ctx, query, filter, r.maxResults)
	if err != nil {
		return "", fmt.Errorf("search content: %w", err)
	}
	if len(results) == 0 {
		return emptySearchMessage(filter), nil
	}

	links := r.lessonLinks(ctx, results)

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := fmt.Sprintf("%s - Lesson %d", res.CourseTitle, res.LessonNumber)
		fmt.Fprintf(&b, "[%s]\n%s", label, res.Content)
		r.recordSource(Source{Text: label, URL: links[lessonKey{res.CourseTitle, res.LessonNumber}]})
	}

	r.logger.Debug("content search served",
		"query", query,
		"course", filter.CourseTitle,
		"results", len(results))
	return b.String(), nil
}

// courseOutline resolves the course name and renders its full outline.
func (r *Registry) courseOutline(ctx context.Context, courseName string) (string, error) {
	title, err := r.store.ResolveCourseName(ctx, courseName)
	if errors.Is(err, knowledge.ErrCourseNotFound) {
		return fmt.Sprintf("No course found matching '%s'", courseName), nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve course name: %w", err)
	}

	c, err := r.store.CourseOutline(ctx, title)
	if err != nil {
		return "", fmt.Errorf("fetch outline: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", c.Title)
	if c.Link != "" {
		fmt.Fprintf(&b, "Course Link: %s\n", c.Link)
	}
	if c.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", c.Instructor)
	}
	fmt.Fprintf(&b, "Lessons (%d):\n", len(c.Lessons))
	for _, l := range c.Lessons {
		fmt.Fprintf(&b, "  Lesson %d: %s\n", l.Number, l.Title)
	}

	r.recordSource(Source{Text: c.Title, URL: c.Link})
	return b.String(), nil
}

type lessonKey struct {
	course string
	lesson int
}

// lessonLinks resolves lesson links for the result set, fetching each course
// outline at most once. Lookup failures just leave the link empty.
func (r *Registry) lessonLinks(ctx context.Context, results []knowledge.Result) map[lessonKey]string {
	links := make(map[lessonKey]string)
	seen := make(map[string]bool)
	for _, res := range results {
		if seen[res.CourseTitle] {
			continue
		}
		seen[res.CourseTitle] = true

		c, err := r.store.CourseOutline(ctx, res.CourseTitle)
		if err != nil {
			r.logger.Debug("lesson link lookup failed", "course", res.CourseTitle, "error", err)
			continue
		}
		for _, l := range c.Lessons {
			links[lessonKey{c.Title, l.Number}] = l.Link
		}
	}
	return links
}

func emptySearchMessage(f knowledge.Filter) string {
	var b strings.Builder
	b.WriteString("No relevant content found")
	if f.CourseTitle != "" {
		fmt.Fprintf(&b, " in course '%s'", f.CourseTitle)
	}
	if f.LessonNumber != nil {
		fmt.Fprintf(&b, " in lesson %d", *f.LessonNumber)
	}
	b.WriteString(".")
	return b.String()
}
