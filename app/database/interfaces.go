package database

import (
	"time"
)

// PostListFilter narrows the post listing. Zero values impose no constraint.
type PostListFilter struct {
	Status  PostStatus
	MediaID string
	Within  time.Duration // only posts created within this window
}

type ContentRepository interface {
	Exists(uniqueID string) (bool, error)
	// Insert stores a new content record. A unique_id conflict is a benign
	// skip: inserted is false and err is nil.
	Insert(c Content) (inserted bool, err error)
	GetByUniqueID(uniqueID string) (*Content, error)
	PublishedSince(since time.Time) ([]Content, error)
	RecentByChannel(mediaID string, limit int) ([]Content, error)
	Count() (int, error)
}

type PostRepository interface {
	// CreateWithThread inserts a post and its first thread atomically.
	CreateWithThread(p Post, message, imagePath string) (int64, error)
	Get(id int64) (*Post, error)
	List(filter PostListFilter) ([]Post, error)
	DueApproved(now time.Time) ([]Post, error)
	UpdateStatus(id int64, status PostStatus, errorMessage string) error
	UpdateSchedule(id int64, scheduledAt time.Time) error
	Delete(id int64) error
	CountByStatus() (map[PostStatus]int, error)

	Threads(postID int64) ([]Thread, error)
	ThreadByOrder(postID int64, order int) (*Thread, error)
	FirstThread(postID int64) (*Thread, error)
	AddThread(postID int64, message string) (int, error)
	DeleteThreadAndRenumber(postID int64, order int) error
	UpdateThreadMessage(threadID int64, message string) error
	UpdateThreadImage(threadID int64, imagePath string) error
	SetThreadPostedID(threadID int64, tweetID string) error
}
