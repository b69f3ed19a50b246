package database

import (
	"time"
)

// PostStatus is the lifecycle state of a post. Transitions only move
// forward along draft -> approved -> posted/error; error may return to
// approved through explicit re-approval.
type PostStatus string

const (
	StatusDraft    PostStatus = "draft"
	StatusApproved PostStatus = "approved"
	StatusPosted   PostStatus = "posted"
	StatusError    PostStatus = "error"
)

// Content is the canonical record of one deduplicated feed entry. Created
// once per unique_id, never updated.
type Content struct {
	ID          int64
	UniqueID    string // feed entry id, or its permalink when no id exists
	MediaID     string // owning channel, assigned at classification
	Title       string
	Link        string
	PublishedAt time.Time
	CreatedAt   time.Time
}

// Post is a schedulable unit of outbound publication.
type Post struct {
	ID              int64
	MediaID         string     // empty for posts not tied to a channel
	ContentUniqueID string     // empty for manually authored posts
	Status          PostStatus
	ScheduledAt     time.Time
	PostedAt        *time.Time
	ErrorMessage    string
	CreatedAt       time.Time
}

// Thread is one ordered message segment of a post. thread_order values are
// a contiguous run starting at 1 within each post.
type Thread struct {
	ID            int64
	PostID        int64
	ThreadOrder   int
	Message       string
	ImagePath     string
	PostedTweetID string
}
