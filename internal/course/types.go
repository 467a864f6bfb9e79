// Package course implements parsing and chunking of course-material documents.
//
// A course document is a plain-text file with a three-line header (title,
// link, instructor) followed by lesson regions introduced by "Lesson N:"
// markers. The package turns such a document into a Course plus a sequence
// of retrieval-ready Chunks.
package course

// Course is the catalog-level metadata of one course document.
// Identity is the title string; it is assumed globally unique.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons"`
}

// Lesson is one lesson within a course. Number is unique within the course;
// order follows appearance in the source document.
type Lesson struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Link   string `json:"link,omitempty"`
}

// Chunk is a bounded span of course text stored as one retrievable unit.
// Content carries a context prefix naming the course and lesson so the
// chunk is self-describing when retrieved out of context.
type Chunk struct {
	CourseTitle  string
	LessonNumber int
	Index        int // monotonic within a course, starting at 0
	Content      string
}
