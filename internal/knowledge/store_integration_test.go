package knowledge_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/lectern-ai/lectern/internal/course"
	"github.com/lectern-ai/lectern/internal/knowledge"
	"github.com/lectern-ai/lectern/internal/log"
	"github.com/lectern-ai/lectern/internal/testutil"
)

// setupIntegration starts a pgvector container and a real Gemini embedder.
// Skips in short mode and when GEMINI_API_KEY is not set.
func setupIntegration(t *testing.T) (*knowledge.Store, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set - skipping integration test")
	}

	ctx := context.Background()
	tdb, cleanup := testutil.SetupTestDB(t)

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	var embedder ai.Embedder = googlegenai.GoogleAIEmbedder(g, "gemini-embedding-001")

	store := knowledge.New(knowledge.NewQueries(tdb.Pool), embedder, log.NewNop())
	return store, cleanup
}

func TestStore_IngestAndSearch_Integration(t *testing.T) {
	store, cleanup := setupIntegration(t)
	defer cleanup()

	ctx := context.Background()

	c := course.Course{
		Title:      "Vector Databases 101",
		Link:       "https://example.com/vdb",
		Instructor: "Grace",
		Lessons: []course.Lesson{
			{Number: 0, Title: "Embeddings"},
			{Number: 1, Title: "Indexing"},
		},
	}
	if err := store.AddCourse(ctx, c); err != nil {
		t.Fatalf("AddCourse failed: %v", err)
	}

	chunks := []course.Chunk{
		{CourseTitle: c.Title, LessonNumber: 0, Index: 0,
			Content: "Course Vector Databases 101 Lesson 0 content: Embeddings map text to points in a vector space."},
		{CourseTitle: c.Title, LessonNumber: 1, Index: 1,
			Content: "Course Vector Databases 101 Lesson 1 content: HNSW graphs make nearest neighbor search fast."},
	}
	if err := store.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks failed: %v", err)
	}

	results, err := store.SearchContent(ctx, "how do embeddings represent text", knowledge.Filter{}, 2)
	if err != nil {
		t.Fatalf("SearchContent failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one search result")
	}
	if results[0].CourseTitle != c.Title {
		t.Errorf("top result course = %q", results[0].CourseTitle)
	}

	// Lesson filter narrows to the matching lesson only.
	lesson := 1
	results, err = store.SearchContent(ctx, "nearest neighbor search",
		knowledge.Filter{CourseTitle: c.Title, LessonNumber: &lesson}, 5)
	if err != nil {
		t.Fatalf("filtered SearchContent failed: %v", err)
	}
	for _, r := range results {
		if r.LessonNumber != 1 {
			t.Errorf("filter leaked lesson %d", r.LessonNumber)
		}
	}
}

func TestStore_ResolveCourseName_Integration(t *testing.T) {
	store, cleanup := setupIntegration(t)
	defer cleanup()

	ctx := context.Background()

	// Empty catalog fails closed.
	if _, err := store.ResolveCourseName(ctx, "anything"); !errors.Is(err, knowledge.ErrCourseNotFound) {
		t.Fatalf("err = %v, want ErrCourseNotFound on empty catalog", err)
	}

	c := course.Course{Title: "Introduction to Machine Learning"}
	if err := store.AddCourse(ctx, c); err != nil {
		t.Fatalf("AddCourse failed: %v", err)
	}

	title, err := store.ResolveCourseName(ctx, "intro to ML")
	if err != nil {
		t.Fatalf("ResolveCourseName failed: %v", err)
	}
	if title != c.Title {
		t.Errorf("resolved = %q, want %q", title, c.Title)
	}
}

func TestStore_Idempotence_Integration(t *testing.T) {
	store, cleanup := setupIntegration(t)
	defer cleanup()

	ctx := context.Background()
	c := course.Course{Title: "Repeatable Course"}

	for i := 0; i < 2; i++ {
		if err := store.AddCourse(ctx, c); err != nil {
			t.Fatalf("AddCourse round %d failed: %v", i, err)
		}
	}

	n, err := store.CourseCount(ctx)
	if err != nil {
		t.Fatalf("CourseCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 catalog entry after double ingest, got %d", n)
	}
}
