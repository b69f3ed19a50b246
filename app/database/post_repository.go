package database

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mediahub/postpipe/app/timeutil"
)

// PostStore handles database operations for posts and their threads.
type PostStore struct {
	db *DB
}

var _ PostRepository = (*PostStore)(nil)

func NewPostStore(db *DB) *PostStore {
	return &PostStore{db: db}
}

// CreateWithThread inserts a post and its first thread in one transaction,
// so a post can never exist without at least one thread.
func (r *PostStore) CreateWithThread(p Post, message, imagePath string) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO posts (media_id, content_unique_id, status, scheduled_at)
		VALUES (?, ?, ?, ?)
	`, nullable(p.MediaID), nullable(p.ContentUniqueID), string(p.Status), timeutil.FormatUTC(p.ScheduledAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert post: %w", err)
	}

	postID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get post id: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO post_threads (post_id, thread_order, message, image_path)
		VALUES (?, 1, ?, ?)
	`, postID, message, nullable(imagePath))
	if err != nil {
		return 0, fmt.Errorf("failed to insert initial thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit post creation: %w", err)
	}

	return postID, nil
}

func (r *PostStore) Get(id int64) (*Post, error) {
	row := r.db.QueryRow(postSelect+" WHERE id = ?", id)

	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return p, nil
}

// List returns posts matching the filter, ordered by scheduled instant
// (earliest first).
func (r *PostStore) List(filter PostListFilter) ([]Post, error) {
	builder := sq.Select(
		"id", "COALESCE(media_id, '')", "COALESCE(content_unique_id, '')",
		"status", "scheduled_at", "posted_at", "COALESCE(error_message, '')", "created_at",
	).From("posts")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.MediaID != "" {
		builder = builder.Where(sq.Eq{"media_id": filter.MediaID})
	}
	if filter.Within > 0 {
		cutoff := timeutil.FormatUTC(time.Now().Add(-filter.Within))
		builder = builder.Where(sq.GtOrEq{"created_at": cutoff})
	}

	query, args, err := builder.OrderBy("scheduled_at ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build post query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// DueApproved returns approved posts whose scheduled instant has elapsed,
// earliest due first.
func (r *PostStore) DueApproved(now time.Time) ([]Post, error) {
	rows, err := r.db.Query(postSelect+`
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, id ASC
	`, string(StatusApproved), timeutil.FormatUTC(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query due posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// UpdateStatus sets the post status. An empty errorMessage clears any
// previously recorded failure. Entering the posted status stamps posted_at.
func (r *PostStore) UpdateStatus(id int64, status PostStatus, errorMessage string) error {
	var err error
	if status == StatusPosted {
		_, err = r.db.Exec(`
			UPDATE posts SET status = ?, error_message = ?, posted_at = ? WHERE id = ?
		`, string(status), nullable(errorMessage), timeutil.FormatUTC(time.Now()), id)
	} else {
		_, err = r.db.Exec(`
			UPDATE posts SET status = ?, error_message = ? WHERE id = ?
		`, string(status), nullable(errorMessage), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update post status: %w", err)
	}
	return nil
}

func (r *PostStore) UpdateSchedule(id int64, scheduledAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE posts SET scheduled_at = ? WHERE id = ?
	`, timeutil.FormatUTC(scheduledAt), id)
	if err != nil {
		return fmt.Errorf("failed to update post schedule: %w", err)
	}
	return nil
}

// Delete removes a post; its threads go with it via the cascading foreign
// key. Status guards live in the lifecycle layer.
func (r *PostStore) Delete(id int64) error {
	_, err := r.db.Exec("DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

func (r *PostStore) CountByStatus() (map[PostStatus]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM posts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}
	defer rows.Close()

	counts := make(map[PostStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[PostStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}

func (r *PostStore) Threads(postID int64) ([]Thread, error) {
	rows, err := r.db.Query(threadSelect+`
		WHERE post_id = ?
		ORDER BY thread_order ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		threads = append(threads, *th)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread rows: %w", err)
	}
	return threads, nil
}

func (r *PostStore) ThreadByOrder(postID int64, order int) (*Thread, error) {
	row := r.db.QueryRow(threadSelect+" WHERE post_id = ? AND thread_order = ?", postID, order)

	th, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return th, nil
}

func (r *PostStore) FirstThread(postID int64) (*Thread, error) {
	return r.ThreadByOrder(postID, 1)
}

// AddThread appends a thread at max(existing order)+1 and returns the
// assigned order.
func (r *PostStore) AddThread(postID int64, message string) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxOrder int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(thread_order), 0) FROM post_threads WHERE post_id = ?
	`, postID).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("failed to determine thread order: %w", err)
	}

	order := maxOrder + 1
	_, err = tx.Exec(`
		INSERT INTO post_threads (post_id, thread_order, message)
		VALUES (?, ?, ?)
	`, postID, order, message)
	if err != nil {
		return 0, fmt.Errorf("failed to insert thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit thread insert: %w", err)
	}

	return order, nil
}

// DeleteThreadAndRenumber removes one thread and closes the gap so the
// remaining orders are again a contiguous run starting at 1.
func (r *PostStore) DeleteThreadAndRenumber(postID int64, order int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		DELETE FROM post_threads WHERE post_id = ? AND thread_order = ?
	`, postID, order)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	// Shift higher orders down one at a time, lowest first, so the unique
	// (post_id, thread_order) constraint is never violated mid-update.
	rows, err := tx.Query(`
		SELECT id, thread_order FROM post_threads
		WHERE post_id = ? AND thread_order > ?
		ORDER BY thread_order ASC
	`, postID, order)
	if err != nil {
		return fmt.Errorf("failed to query threads for renumbering: %w", err)
	}

	type shift struct {
		id    int64
		order int
	}
	var shifts []shift
	for rows.Next() {
		var s shift
		if err := rows.Scan(&s.id, &s.order); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan thread for renumbering: %w", err)
		}
		shifts = append(shifts, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating threads for renumbering: %w", err)
	}
	rows.Close()

	for _, s := range shifts {
		_, err := tx.Exec(`
			UPDATE post_threads SET thread_order = ? WHERE id = ?
		`, s.order-1, s.id)
		if err != nil {
			return fmt.Errorf("failed to renumber thread %d: %w", s.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thread deletion: %w", err)
	}

	return nil
}

func (r *PostStore) UpdateThreadMessage(threadID int64, message string) error {
	_, err := r.db.Exec(`
		UPDATE post_threads SET message = ? WHERE id = ?
	`, message, threadID)
	if err != nil {
		return fmt.Errorf("failed to update thread message: %w", err)
	}
	return nil
}

// UpdateThreadImage sets the thread's image path; an empty path clears it.
func (r *PostStore) UpdateThreadImage(threadID int64, imagePath string) error {
	_, err := r.db.Exec(`
		UPDATE post_threads SET image_path = ? WHERE id = ?
	`, nullable(imagePath), threadID)
	if err != nil {
		return fmt.Errorf("failed to update thread image: %w", err)
	}
	return nil
}

func (r *PostStore) SetThreadPostedID(threadID int64, tweetID string) error {
	_, err := r.db.Exec(`
		UPDATE post_threads SET posted_tweet_id = ? WHERE id = ?
	`, tweetID, threadID)
	if err != nil {
		return fmt.Errorf("failed to record thread remote id: %w", err)
	}
	return nil
}

const postSelect = `
	SELECT id, COALESCE(media_id, ''), COALESCE(content_unique_id, ''),
	       status, scheduled_at, posted_at, COALESCE(error_message, ''), created_at
	FROM posts`

const threadSelect = `
	SELECT id, post_id, thread_order, message,
	       COALESCE(image_path, ''), COALESCE(posted_tweet_id, '')
	FROM post_threads`

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	var status, scheduledAt, createdAt string
	var postedAt sql.NullString

	err := row.Scan(&p.ID, &p.MediaID, &p.ContentUniqueID, &status,
		&scheduledAt, &postedAt, &p.ErrorMessage, &createdAt)
	if err != nil {
		return nil, err
	}

	p.Status = PostStatus(status)
	if p.ScheduledAt, err = timeutil.ParseUTC(scheduledAt); err != nil {
		return nil, fmt.Errorf("invalid scheduled_at for post %d: %w", p.ID, err)
	}
	if p.CreatedAt, err = timeutil.ParseUTC(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at for post %d: %w", p.ID, err)
	}
	if postedAt.Valid {
		t, err := timeutil.ParseUTC(postedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid posted_at for post %d: %w", p.ID, err)
		}
		p.PostedAt = &t
	}

	return &p, nil
}

func scanThread(row rowScanner) (*Thread, error) {
	var th Thread
	err := row.Scan(&th.ID, &th.PostID, &th.ThreadOrder, &th.Message,
		&th.ImagePath, &th.PostedTweetID)
	if err != nil {
		return nil, err
	}
	return &th, nil
}

func collectPosts(rows *sql.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}
	return posts, nil
}

// nullable maps an empty string onto NULL for optional TEXT columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
