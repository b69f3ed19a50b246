package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mediahub/postpipe/app/timeutil"
)

// ContentStore handles database operations for content records.
type ContentStore struct {
	db *DB
}

var _ ContentRepository = (*ContentStore)(nil)

func NewContentStore(db *DB) *ContentStore {
	return &ContentStore{db: db}
}

// Exists reports whether a content record with the given dedup key is
// already stored.
func (r *ContentStore) Exists(uniqueID string) (bool, error) {
	var id int64
	err := r.db.QueryRow("SELECT id FROM content WHERE unique_id = ?", uniqueID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
	return true, nil
}

// Insert stores a new content record. Two runs racing to the same unique_id
// resolve through the unique constraint; the loser gets inserted=false.
func (r *ContentStore) Insert(c Content) (bool, error) {
	_, err := r.db.Exec(`
		INSERT INTO content (unique_id, media_id, title, link, published_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.UniqueID, c.MediaID, c.Title, c.Link, timeutil.FormatUTC(c.PublishedAt))

	if err != nil {
		if isConstraintErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert content: %w", err)
	}

	return true, nil
}

func (r *ContentStore) GetByUniqueID(uniqueID string) (*Content, error) {
	row := r.db.QueryRow(`
		SELECT id, unique_id, media_id, title, link, published_at, created_at
		FROM content
		WHERE unique_id = ?
	`, uniqueID)

	c, err := scanContent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return c, nil
}

// PublishedSince returns content published at or after the given instant,
// grouped by channel and newest first within each channel.
func (r *ContentStore) PublishedSince(since time.Time) ([]Content, error) {
	rows, err := r.db.Query(`
		SELECT id, unique_id, media_id, title, link, published_at, created_at
		FROM content
		WHERE published_at >= ?
		ORDER BY media_id, published_at DESC
	`, timeutil.FormatUTC(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent content: %w", err)
	}
	defer rows.Close()

	return collectContent(rows)
}

// RecentByChannel returns the newest content records for one channel.
func (r *ContentStore) RecentByChannel(mediaID string, limit int) ([]Content, error) {
	rows, err := r.db.Query(`
		SELECT id, unique_id, media_id, title, link, published_at, created_at
		FROM content
		WHERE media_id = ?
		ORDER BY published_at DESC
		LIMIT ?
	`, mediaID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel content: %w", err)
	}
	defer rows.Close()

	return collectContent(rows)
}

func (r *ContentStore) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM content").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count content: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*Content, error) {
	var c Content
	var publishedAt, createdAt string

	err := row.Scan(&c.ID, &c.UniqueID, &c.MediaID, &c.Title, &c.Link, &publishedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	if c.PublishedAt, err = timeutil.ParseUTC(publishedAt); err != nil {
		return nil, fmt.Errorf("invalid published_at for content %d: %w", c.ID, err)
	}
	if c.CreatedAt, err = timeutil.ParseUTC(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at for content %d: %w", c.ID, err)
	}

	return &c, nil
}

func collectContent(rows *sql.Rows) ([]Content, error) {
	var items []Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content row: %w", err)
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content rows: %w", err)
	}
	return items, nil
}
