package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no post matches the given id.
	ErrNotFound = errors.New("post not found")
	// ErrSlugTaken is returned when a rename collides with an existing post.
	ErrSlugTaken = errors.New("slug already in use")
)

// DB wraps SQLite database operations
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates a SQLite database
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	storage := New(db)

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return storage, nil
}

// New wraps an already opened connection. The schema is not created.
func New(db *sql.DB) *DB {
	return &DB{db: db, now: time.Now}
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Create inserts a new post. ErrSlugTaken is returned if the id exists.
func (d *DB) Create(ctx context.Context, p *Post) error {
	now := d.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO posts (id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Content, p.CreatedAt, p.UpdatedAt,
	)
	if isConstraintErr(err) {
		return ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("insert post %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts p or overwrites title and content of the post with its id.
func (d *DB) Upsert(ctx context.Context, p *Post) error {
	now := d.now().UTC()
	p.UpdatedAt = now

	_, err := d.db.ExecContext(ctx, `
	INSERT INTO posts (id, title, content, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		content = excluded.content,
		updated_at = excluded.updated_at
	`, p.ID, p.Title, p.Content, now, now)
	if err != nil {
		return fmt.Errorf("upsert post %q: %w", p.ID, err)
	}
	return nil
}

// Get retrieves a post by ID
func (d *DB) Get(ctx context.Context, id string) (*Post, error) {
	p := &Post{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %q: %w", id, err)
	}

	return p, nil
}

// Update overwrites the post stored under id with p, including its id.
// The rename happens in a single statement, so a collision leaves the
// original row untouched.
func (d *DB) Update(ctx context.Context, id string, p *Post) error {
	p.UpdatedAt = d.now().UTC()

	res, err := d.db.ExecContext(ctx,
		`UPDATE posts SET id = ?, title = ?, content = ?, updated_at = ? WHERE id = ?`,
		p.ID, p.Title, p.Content, p.UpdatedAt, id,
	)
	if isConstraintErr(err) {
		return ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("update post %q: %w", id, err)
	}

	return requireRow(res, id)
}

// Delete removes the post with the given id.
func (d *DB) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post %q: %w", id, err)
	}

	return requireRow(res, id)
}

// List retrieves all posts, newest first
func (d *DB) List(ctx context.Context) ([]*Post, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM posts ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p := &Post{}
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}

	return posts, rows.Err()
}

// Count returns the total number of posts
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count)
	return count, err
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %q: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
