// Package knowledge manages the two vector collections behind the chatbot:
// the course catalog (course-level metadata, searched for fuzzy course-name
// resolution) and the course content (text chunks, searched for answers).
//
// Embeddings are generated through an injected ai.Embedder and stored in
// PostgreSQL via pgvector. Store is safe for concurrent use.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/lectern-ai/lectern/internal/course"
)

// VectorDimension is the embedding width of the pgvector schema.
// gemini-embedding-001 truncates to this via OutputDimensionality.
const VectorDimension int32 = 768

// DefaultSimilarityFloor is the minimum cosine similarity for a fuzzy
// course-name match. Below it, resolution fails closed with
// ErrCourseNotFound instead of silently returning the nearest title.
const DefaultSimilarityFloor float32 = 0.45

// searchTimeout bounds a single vector search, embedding included.
const searchTimeout = 10 * time.Second

// ErrCourseNotFound indicates a course-name filter that could not be
// resolved against the catalog.
var ErrCourseNotFound = errors.New("course not found")

// Filter is a structured constraint narrowing a content search.
// The zero value applies no constraint (global search).
type Filter struct {
	CourseTitle  string // resolved canonical title; empty means any course
	LessonNumber *int   // nil means any lesson
}

// Result is a single content search hit.
type Result struct {
	CourseTitle  string
	LessonNumber int
	ChunkIndex   int
	Content      string
	Similarity   float32
}

// Store manages the catalog and content collections.
type Store struct {
	queries         Querier
	embedder        ai.Embedder
	similarityFloor float32
	logger          *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:         querier,
		embedder:        embedder,
		similarityFloor: DefaultSimilarityFloor,
		logger:          logger,
	}
}

// embed generates embeddings for the given texts in one request,
// truncated to VectorDimension.
func (s *Store) embed(ctx context.Context, texts ...string) ([]pgvector.Vector, error) {
	input := make([]*ai.Document, len(texts))
	for i, t := range texts {
		input[i] = ai.DocumentFromText(t, nil)
	}

	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   input,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([]pgvector.Vector, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = pgvector.NewVector(e.Embedding)
	}
	return vectors, nil
}

// AddCourse upserts a course into the catalog. The title is embedded so
// fuzzy name resolution can search it semantically. Must be called before
// AddChunks for the same course (content references the catalog).
func (s *Store) AddCourse(ctx context.Context, c course.Course) error {
	if c.Title == "" {
		return errors.New("course title is required")
	}

	vectors, err := s.embed(ctx, c.Title)
	if err != nil {
		return fmt.Errorf("embedding course title %q: %w", c.Title, err)
	}

	lessons := c.Lessons
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	lessonsJSON, err := json.Marshal(lessons)
	if err != nil {
		return fmt.Errorf("marshaling lessons for %q: %w", c.Title, err)
	}

	if err := s.queries.UpsertCourse(ctx, UpsertCourseParams{
		Title:      c.Title,
		Instructor: c.Instructor,
		Link:       c.Link,
		Lessons:    lessonsJSON,
		Embedding:  vectors[0],
	}); err != nil {
		return err
	}

	s.logger.Debug("course added to catalog", "title", c.Title, "lessons", len(c.Lessons))
	return nil
}

// AddChunks embeds and upserts a batch of content chunks.
// Chunk IDs follow {course_title}_{chunk_index}.
func (s *Store) AddChunks(ctx context.Context, chunks []course.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	vectors, err := s.embed(ctx, texts...)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	params := make([]UpsertChunkParams, len(chunks))
	for i, ch := range chunks {
		params[i] = UpsertChunkParams{
			ID:           fmt.Sprintf("%s_%d", ch.CourseTitle, ch.Index),
			CourseTitle:  ch.CourseTitle,
			LessonNumber: int32(ch.LessonNumber),
			ChunkIndex:   int32(ch.Index),
			Content:      ch.Content,
			Embedding:    vectors[i],
		}
	}

	if err := s.queries.UpsertChunks(ctx, params); err != nil {
		return err
	}

	s.logger.Debug("chunks added", "count", len(chunks), "course", chunks[0].CourseTitle)
	return nil
}

// ResolveCourseName resolves a fuzzy course name to the canonical catalog
// title via semantic similarity. The best match must clear the similarity
// floor; otherwise resolution fails with ErrCourseNotFound. An empty
// catalog also yields ErrCourseNotFound.
func (s *Store) ResolveCourseName(ctx context.Context, name string) (string, error) {
	vectors, err := s.embed(ctx, name)
	if err != nil {
		return "", fmt.Errorf("embedding course name %q: %w", name, err)
	}

	row, err := s.queries.NearestCourse(ctx, vectors[0])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: catalog is empty", ErrCourseNotFound)
		}
		return "", fmt.Errorf("resolving course name %q: %w", name, err)
	}

	if row.Similarity < s.similarityFloor {
		s.logger.Debug("course name below similarity floor",
			"name", name,
			"nearest", row.Title,
			"similarity", row.Similarity)
		return "", fmt.Errorf("%w: no close match for %q", ErrCourseNotFound, name)
	}

	return row.Title, nil
}

// BuildFilter resolves optional course-name and lesson-number constraints
// into a Filter for SearchContent. An empty courseName and nil lesson yield
// the zero Filter (global search).
func (s *Store) BuildFilter(ctx context.Context, courseName string, lesson *int) (Filter, error) {
	f := Filter{LessonNumber: lesson}
	if courseName == "" {
		return f, nil
	}

	title, err := s.ResolveCourseName(ctx, courseName)
	if err != nil {
		return Filter{}, err
	}
	f.CourseTitle = title
	return f, nil
}

// SearchContent performs semantic search over the content collection,
// narrowed by the given filter, returning up to limit results ordered by
// similarity.
func (s *Store) SearchContent(ctx context.Context, query string, f Filter, limit int) ([]Result, error) {
	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vectors, err := s.embed(searchCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if limit <= 0 {
		limit = 5
	}

	params := SearchChunksParams{
		Embedding:   vectors[0],
		CourseTitle: f.CourseTitle,
		Limit:       int32(limit),
	}
	if f.LessonNumber != nil {
		n := int32(*f.LessonNumber)
		params.LessonNumber = &n
	}

	rows, err := s.queries.SearchChunks(searchCtx, params)
	if err != nil {
		return nil, fmt.Errorf("searching content: %w", err)
	}

	results := make([]Result, len(rows))
	for i, r := range rows {
		results[i] = Result{
			CourseTitle:  r.CourseTitle,
			LessonNumber: int(r.LessonNumber),
			ChunkIndex:   int(r.ChunkIndex),
			Content:      r.Content,
			Similarity:   r.Similarity,
		}
	}
	return results, nil
}

// CourseOutline returns the full course metadata for a resolved title.
func (s *Store) CourseOutline(ctx context.Context, title string) (course.Course, error) {
	row, err := s.queries.CourseByTitle(ctx, title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return course.Course{}, fmt.Errorf("%w: %q", ErrCourseNotFound, title)
		}
		return course.Course{}, fmt.Errorf("loading course %q: %w", title, err)
	}

	c := course.Course{
		Title:      row.Title,
		Instructor: row.Instructor,
		Link:       row.Link,
	}
	if len(row.Lessons) > 0 {
		if err := json.Unmarshal(row.Lessons, &c.Lessons); err != nil {
			return course.Course{}, fmt.Errorf("decoding lessons for %q: %w", title, err)
		}
	}
	return c, nil
}

// HasCourse reports whether a course with the exact title is cataloged.
func (s *Store) HasCourse(ctx context.Context, title string) (bool, error) {
	return s.queries.HasCourse(ctx, title)
}

// CourseTitles lists all cataloged course titles in lexical order.
func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	return s.queries.CourseTitles(ctx)
}

// CourseCount returns the number of cataloged courses.
func (s *Store) CourseCount(ctx context.Context) (int64, error) {
	return s.queries.CourseCount(ctx)
}

// Clear removes all courses and their content. Used by full re-indexing.
func (s *Store) Clear(ctx context.Context) error {
	return s.queries.ClearAll(ctx)
}
