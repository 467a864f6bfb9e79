package course

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const sampleDoc = `Course Title: Building RAG Applications
Course Link: https://example.com/rag
Course Instructor: Ada Example

Lesson 0: Introduction
Lesson Link: https://example.com/rag/lesson-0
Welcome to the course. This lesson covers the basics.

Lesson 1: Retrieval
Retrieval finds relevant context. It uses embeddings.

Lesson 2: Generation
The model writes the final answer.
`

func TestParseDocument_Header(t *testing.T) {
	c, _, err := ParseDocument(sampleDoc)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}

	if c.Title != "Building RAG Applications" {
		t.Errorf("title = %q", c.Title)
	}
	if c.Link != "https://example.com/rag" {
		t.Errorf("link = %q", c.Link)
	}
	if c.Instructor != "Ada Example" {
		t.Errorf("instructor = %q", c.Instructor)
	}
}

func TestParseDocument_Lessons(t *testing.T) {
	c, bodies, err := ParseDocument(sampleDoc)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}

	if len(c.Lessons) != 3 {
		t.Fatalf("expected 3 lessons, got %d", len(c.Lessons))
	}
	if len(bodies) != len(c.Lessons) {
		t.Fatalf("bodies/lessons mismatch: %d vs %d", len(bodies), len(c.Lessons))
	}

	for i, l := range c.Lessons {
		if l.Number != i {
			t.Errorf("lesson %d: number = %d", i, l.Number)
		}
	}

	if c.Lessons[0].Title != "Introduction" {
		t.Errorf("lesson 0 title = %q", c.Lessons[0].Title)
	}
	if c.Lessons[0].Link != "https://example.com/rag/lesson-0" {
		t.Errorf("lesson 0 link = %q", c.Lessons[0].Link)
	}
	if c.Lessons[1].Link != "" {
		t.Errorf("lesson 1 should have no link, got %q", c.Lessons[1].Link)
	}

	if !strings.Contains(bodies[1], "It uses embeddings.") {
		t.Errorf("lesson 1 body = %q", bodies[1])
	}
	if strings.Contains(bodies[0], "Lesson 1") {
		t.Errorf("lesson 0 body leaked into next region: %q", bodies[0])
	}
}

// Lesson counts must match marker counts for any number of markers.
func TestParseDocument_MarkerCount(t *testing.T) {
	for n := 1; n <= 10; n++ {
		var sb strings.Builder
		sb.WriteString("Course Title: Counting\n\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, "Lesson %d: Part %d\nSome text for part %d.\n\n", i, i, i)
		}

		c, _, err := ParseDocument(sb.String())
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(c.Lessons) != n {
			t.Fatalf("n=%d: got %d lessons", n, len(c.Lessons))
		}
		for i, l := range c.Lessons {
			if l.Number != i {
				t.Errorf("n=%d: lesson %d has number %d", n, i, l.Number)
			}
		}
	}
}

func TestParseDocument_MissingTitle(t *testing.T) {
	_, _, err := ParseDocument("Just some text.\nNothing structured here.")
	if !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestParseDocument_OptionalHeaderFields(t *testing.T) {
	c, _, err := ParseDocument("Course Title: Bare Minimum\n\nLesson 0: Only\nText.")
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	if c.Link != "" || c.Instructor != "" {
		t.Errorf("expected empty link/instructor, got %q / %q", c.Link, c.Instructor)
	}
}

// A document without lesson markers becomes one implicit lesson 0.
func TestParseDocument_NoMarkers(t *testing.T) {
	raw := "Course Title: Unstructured\nCourse Link: https://example.com/u\n\nAll of this is body text. Every sentence belongs to lesson zero."

	c, bodies, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	if len(c.Lessons) != 1 {
		t.Fatalf("expected 1 implicit lesson, got %d", len(c.Lessons))
	}
	if c.Lessons[0].Number != 0 {
		t.Errorf("implicit lesson number = %d", c.Lessons[0].Number)
	}
	if !strings.Contains(bodies[0], "belongs to lesson zero") {
		t.Errorf("implicit lesson body = %q", bodies[0])
	}
}

func TestParseDocument_EmptyBody(t *testing.T) {
	c, bodies, err := ParseDocument("Course Title: Header Only\n")
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	if len(c.Lessons) != 0 || len(bodies) != 0 {
		t.Errorf("expected no lessons for empty body, got %d", len(c.Lessons))
	}
}
