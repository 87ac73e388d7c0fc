package pubsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database and provides CRUD operations for blog posts.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed during writes; busy_timeout makes writers
	// wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS blogs (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    images TEXT NOT NULL DEFAULT '[]',
    is_draft INTEGER NOT NULL DEFAULT 1,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS blogs_sort ON blogs (sort_order, created_at);
`)
	return err
}

const blogColumns = `id, title, content, images, is_draft, sort_order, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlog(row rowScanner) (Blog, error) {
	var (
		b                    Blog
		images               string
		draft                int
		createdAt, updatedAt string
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Content, &images, &draft, &b.Order, &createdAt, &updatedAt); err != nil {
		return Blog{}, err
	}
	b.IsDraft = draft == 1
	b.Images = ParseImages(images)
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return b, nil
}

// ListBlogs returns posts ordered by position, oldest first among equals.
// A nil isDraft returns every post.
func (s *Store) ListBlogs(ctx context.Context, isDraft *bool) ([]Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs`
	var args []any
	if isDraft != nil {
		query += ` WHERE is_draft = ?`
		args = append(args, boolInt(*isDraft))
	}
	query += ` ORDER BY sort_order ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blogs := []Blog{}
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		blogs = append(blogs, b)
	}
	return blogs, rows.Err()
}

// GetBlog returns a single post by id, or ErrNotFound.
func (s *Store) GetBlog(ctx context.Context, id string) (Blog, error) {
	b, err := scanBlog(s.db.QueryRowContext(ctx, `SELECT `+blogColumns+` FROM blogs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Blog{}, ErrNotFound
	}
	return b, err
}

// CreateBlog inserts a new post with a fresh id. Drafts are the default.
func (s *Store) CreateBlog(ctx context.Context, p BlogPatch) (Blog, error) {
	now := s.now()
	b := Blog{
		ID:        uuid.NewString(),
		Images:    []string{},
		IsDraft:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b = p.applyTo(b)
	images, err := encodeImages(b.Images)
	if err != nil {
		return Blog{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO blogs (`+blogColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.Content, images, boolInt(b.IsDraft), b.Order,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return Blog{}, fmt.Errorf("insert blog: %w", err)
	}
	return b, nil
}

// UpdateBlog applies p to post id and bumps its update time.
func (s *Store) UpdateBlog(ctx context.Context, id string, p BlogPatch) (Blog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Blog{}, err
	}
	defer tx.Rollback()

	b, err := scanBlog(tx.QueryRowContext(ctx, `SELECT `+blogColumns+` FROM blogs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Blog{}, ErrNotFound
	}
	if err != nil {
		return Blog{}, err
	}
	b = p.applyTo(b)
	b.UpdatedAt = s.now()
	images, err := encodeImages(b.Images)
	if err != nil {
		return Blog{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE blogs SET title = ?, content = ?, images = ?, is_draft = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`,
		b.Title, b.Content, images, boolInt(b.IsDraft), b.Order, formatTime(b.UpdatedAt), id); err != nil {
		return Blog{}, fmt.Errorf("update blog: %w", err)
	}
	return b, tx.Commit()
}

// DeleteBlog removes a post by id. Deleting a missing post is not an error.
func (s *Store) DeleteBlog(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blogs WHERE id = ?`, id)
	return err
}

// PublishBlog clears the draft flag of post id.
func (s *Store) PublishBlog(ctx context.Context, id string) (Blog, error) {
	published := false
	return s.UpdateBlog(ctx, id, BlogPatch{IsDraft: &published})
}

// UpdateOrders writes every position in one transaction. Unknown ids are
// skipped.
func (s *Store) UpdateOrders(ctx context.Context, updates []OrderUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE blogs SET sort_order = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := formatTime(s.now())
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.Order, now, u.ID); err != nil {
			return fmt.Errorf("update order of %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

func (p BlogPatch) applyTo(b Blog) Blog {
	if p.Title != nil {
		b.Title = strings.TrimSpace(*p.Title)
	}
	if p.Content != nil {
		b.Content = *p.Content
	}
	if p.Images != nil {
		b.Images = FilterEmpty(*p.Images)
		if b.Images == nil {
			b.Images = []string{}
		}
	}
	if p.IsDraft != nil {
		b.IsDraft = *p.IsDraft
	}
	if p.Order != nil {
		b.Order = *p.Order
	}
	return b
}

// ParseImages decodes the JSON image list stored in a row.
func ParseImages(s string) []string {
	var images []string
	if err := json.Unmarshal([]byte(s), &images); err != nil || images == nil {
		return []string{}
	}
	return images
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	return string(b), err
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
