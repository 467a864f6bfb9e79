package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// UpsertCourseParams holds one catalog row.
type UpsertCourseParams struct {
	Title      string
	Instructor string
	Link       string
	Lessons    []byte // JSON-encoded lesson list
	Embedding  pgvector.Vector
}

// UpsertChunkParams holds one content row.
type UpsertChunkParams struct {
	ID           string
	CourseTitle  string
	LessonNumber int32
	ChunkIndex   int32
	Content      string
	Embedding    pgvector.Vector
}

// SearchChunksParams narrows a content search. A zero CourseTitle or nil
// LessonNumber leaves that dimension unconstrained.
type SearchChunksParams struct {
	Embedding    pgvector.Vector
	CourseTitle  string
	LessonNumber *int32
	Limit        int32
}

// ChunkRow is one content search hit.
type ChunkRow struct {
	ID           string
	CourseTitle  string
	LessonNumber int32
	ChunkIndex   int32
	Content      string
	Similarity   float32
}

// CourseRow is one catalog row, with similarity populated by NearestCourse.
type CourseRow struct {
	Title      string
	Instructor string
	Link       string
	Lessons    []byte
	Similarity float32
}

// Querier defines the database operations the Store depends on.
// Defined on the consumer side so tests can substitute a fake.
type Querier interface {
	UpsertCourse(ctx context.Context, arg UpsertCourseParams) error
	UpsertChunks(ctx context.Context, args []UpsertChunkParams) error
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error)
	NearestCourse(ctx context.Context, embedding pgvector.Vector) (CourseRow, error)
	CourseByTitle(ctx context.Context, title string) (CourseRow, error)
	CourseTitles(ctx context.Context) ([]string, error)
	CourseCount(ctx context.Context) (int64, error)
	HasCourse(ctx context.Context, title string) (bool, error)
	ClearAll(ctx context.Context) error
}

// Queries is the pgx-backed Querier implementation.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries creates a Queries bound to the given pool.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

func (q *Queries) UpsertCourse(ctx context.Context, arg UpsertCourseParams) error {
	const query = `
		INSERT INTO course_catalog (title, instructor, course_link, lessons, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (title) DO UPDATE SET
			instructor  = EXCLUDED.instructor,
			course_link = EXCLUDED.course_link,
			lessons     = EXCLUDED.lessons,
			embedding   = EXCLUDED.embedding`

	if _, err := q.pool.Exec(ctx, query,
		arg.Title, arg.Instructor, arg.Link, arg.Lessons, arg.Embedding); err != nil {
		return fmt.Errorf("upserting course %q: %w", arg.Title, err)
	}
	return nil
}

func (q *Queries) UpsertChunks(ctx context.Context, args []UpsertChunkParams) error {
	if len(args) == 0 {
		return nil
	}

	const query = `
		INSERT INTO course_content (id, course_title, lesson_number, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			course_title  = EXCLUDED.course_title,
			lesson_number = EXCLUDED.lesson_number,
			chunk_index   = EXCLUDED.chunk_index,
			content       = EXCLUDED.content,
			embedding     = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for _, arg := range args {
		batch.Queue(query,
			arg.ID, arg.CourseTitle, arg.LessonNumber, arg.ChunkIndex, arg.Content, arg.Embedding)
	}

	results := q.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for i := range args {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting chunk %q: %w", args[i].ID, err)
		}
	}
	return nil
}

func (q *Queries) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error) {
	// Filter clauses are assembled from fixed fragments; all values travel
	// as parameters.
	query := `
		SELECT id, course_title, lesson_number, chunk_index, content,
		       1 - (embedding <=> $1) AS similarity
		FROM course_content`
	params := []any{arg.Embedding}

	where := ""
	if arg.CourseTitle != "" {
		params = append(params, arg.CourseTitle)
		where = fmt.Sprintf(" WHERE course_title = $%d", len(params))
	}
	if arg.LessonNumber != nil {
		params = append(params, *arg.LessonNumber)
		if where == "" {
			where = fmt.Sprintf(" WHERE lesson_number = $%d", len(params))
		} else {
			where += fmt.Sprintf(" AND lesson_number = $%d", len(params))
		}
	}

	params = append(params, arg.Limit)
	query += where + fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(params))

	rows, err := q.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		if err := rows.Scan(&r.ID, &r.CourseTitle, &r.LessonNumber, &r.ChunkIndex, &r.Content, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return out, nil
}

func (q *Queries) NearestCourse(ctx context.Context, embedding pgvector.Vector) (CourseRow, error) {
	const query = `
		SELECT title, instructor, course_link, lessons,
		       1 - (embedding <=> $1) AS similarity
		FROM course_catalog
		ORDER BY embedding <=> $1
		LIMIT 1`

	var r CourseRow
	err := q.pool.QueryRow(ctx, query, embedding).
		Scan(&r.Title, &r.Instructor, &r.Link, &r.Lessons, &r.Similarity)
	if err != nil {
		return CourseRow{}, err
	}
	return r, nil
}

func (q *Queries) CourseByTitle(ctx context.Context, title string) (CourseRow, error) {
	const query = `
		SELECT title, instructor, course_link, lessons
		FROM course_catalog
		WHERE title = $1`

	var r CourseRow
	err := q.pool.QueryRow(ctx, query, title).
		Scan(&r.Title, &r.Instructor, &r.Link, &r.Lessons)
	if err != nil {
		return CourseRow{}, err
	}
	return r, nil
}

func (q *Queries) CourseTitles(ctx context.Context) ([]string, error) {
	rows, err := q.pool.Query(ctx, `SELECT title FROM course_catalog ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("listing course titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating titles: %w", err)
	}
	return titles, nil
}

func (q *Queries) CourseCount(ctx context.Context) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, `SELECT count(*) FROM course_catalog`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting courses: %w", err)
	}
	return n, nil
}

func (q *Queries) HasCourse(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := q.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_catalog WHERE title = $1)`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking course %q: %w", title, err)
	}
	return exists, nil
}

func (q *Queries) ClearAll(ctx context.Context) error {
	// course_content rows cascade from the catalog delete.
	if _, err := q.pool.Exec(ctx, `DELETE FROM course_catalog`); err != nil {
		return fmt.Errorf("clearing catalog: %w", err)
	}
	return nil
}
