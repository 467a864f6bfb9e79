package course

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedDocument indicates a document whose required header fields
// could not be located. Ingestion skips such documents and continues.
var ErrMalformedDocument = errors.New("malformed course document")

// Header line prefixes. Matched case-insensitively on the first three lines.
const (
	titlePrefix      = "course title:"
	linkPrefix       = "course link:"
	instructorPrefix = "course instructor:"
)

// lessonMarker matches a lesson boundary like "Lesson 4: Advanced Retrieval".
var lessonMarker = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

// lessonLinkMarker matches an optional "Lesson Link: <url>" line that may
// immediately follow a lesson marker.
var lessonLinkMarker = regexp.MustCompile(`^Lesson Link:\s*(\S+)\s*$`)

// lessonText pairs a lesson's metadata with its raw body text.
type lessonText struct {
	lesson Lesson
	body   string
}

// ParseDocument parses a raw course document into a Course and the body
// text of each lesson.
//
// The first three lines are expected to encode the course title, link and
// instructor. Only the title is required; a missing link or instructor
// yields an empty string. The remainder is split into lesson regions at
// "Lesson N:" markers, each region extending to the next marker or
// end-of-text.
//
// A document with no lesson markers is treated as a single implicit lesson
// numbered 0 containing all body text. This mirrors how loose transcript
// dumps without per-lesson structure are ingested.
func ParseDocument(raw string) (Course, []string, error) {
	lines := strings.Split(raw, "\n")

	c := Course{}
	headerEnd := 0
	for i := 0; i < len(lines) && i < 3; i++ {
		line := strings.TrimSpace(lines[i])
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, titlePrefix):
			c.Title = strings.TrimSpace(line[len(titlePrefix):])
			headerEnd = i + 1
		case strings.HasPrefix(lower, linkPrefix):
			c.Link = strings.TrimSpace(line[len(linkPrefix):])
			headerEnd = i + 1
		case strings.HasPrefix(lower, instructorPrefix):
			c.Instructor = strings.TrimSpace(line[len(instructorPrefix):])
			headerEnd = i + 1
		}
	}

	if c.Title == "" {
		return Course{}, nil, fmt.Errorf("%w: missing course title header", ErrMalformedDocument)
	}

	texts := parseLessons(lines[headerEnd:])
	bodies := make([]string, 0, len(texts))
	for _, lt := range texts {
		c.Lessons = append(c.Lessons, lt.lesson)
		bodies = append(bodies, lt.body)
	}

	return c, bodies, nil
}

// parseLessons scans body lines for lesson markers and collects each
// lesson's region. A document without any marker becomes a single implicit
// lesson numbered 0 holding all body text; preamble text before the first
// marker of a structured document is dropped.
func parseLessons(lines []string) []lessonText {
	hasMarkers := false
	for _, line := range lines {
		if lessonMarker.MatchString(strings.TrimSpace(line)) {
			hasMarkers = true
			break
		}
	}

	if !hasMarkers {
		body := strings.TrimSpace(strings.Join(lines, "\n"))
		if body == "" {
			return nil
		}
		return []lessonText{{lesson: Lesson{Number: 0}, body: body}}
	}

	var lessons []lessonText
	var current *lessonText
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.body = strings.TrimSpace(strings.Join(body, "\n"))
		lessons = append(lessons, *current)
		current = nil
		body = nil
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if m := lessonMarker.FindStringSubmatch(line); m != nil {
			flush()
			number, err := strconv.Atoi(m[1])
			if err != nil {
				// Marker numbers are \d+ so Atoi cannot fail here; treat
				// the line as body text if it somehow does.
				body = append(body, lines[i])
				continue
			}
			current = &lessonText{lesson: Lesson{Number: number, Title: strings.TrimSpace(m[2])}}

			// Optional lesson link on the immediately following line.
			if i+1 < len(lines) {
				if lm := lessonLinkMarker.FindStringSubmatch(strings.TrimSpace(lines[i+1])); lm != nil {
					current.lesson.Link = lm[1]
					i++
				}
			}
			continue
		}

		if current != nil {
			body = append(body, lines[i])
		}
	}
	flush()

	return lessons
}
