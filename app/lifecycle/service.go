// Package lifecycle implements the post state machine and the editing
// operations over posts and their ordered threads. Operations are
// single-shot: they validate, mutate once, and report errors directly to
// the caller.
package lifecycle

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mediahub/postpipe/app/database"
	"github.com/mediahub/postpipe/app/screenshot"
	"github.com/mediahub/postpipe/app/timeutil"
)

// DefaultLeadTime is the schedule applied to manual posts created without
// an explicit schedule.
const DefaultLeadTime = time.Hour

const previewLength = 40

// ImageAction selects what ManageImage does with a thread's attachment.
type ImageAction int

const (
	ImageAuto ImageAction = iota
	ImageManual
	ImageClear
)

// Summary is one row of a post listing.
type Summary struct {
	Post           database.Post
	Preview        string // first line of the first thread, truncated
	ScheduledLocal string // scheduled instant rendered in the display zone
}

// Detail is a post with its threads.
type Detail struct {
	Post           database.Post
	Threads        []database.Thread
	ScheduledLocal string
}

// Service coordinates lifecycle operations against the store.
type Service struct {
	posts    database.PostRepository
	content  database.ContentRepository
	capturer screenshot.Capturer
	zone     *time.Location

	// Now is replaceable for tests.
	Now func() time.Time
}

func NewService(posts database.PostRepository, content database.ContentRepository,
	capturer screenshot.Capturer, zone *time.Location) *Service {
	return &Service{
		posts:    posts,
		content:  content,
		capturer: capturer,
		zone:     zone,
		Now:      time.Now,
	}
}

// CreateManualPost creates a draft post with a single thread, not tied to
// any ingested content. An empty schedule input applies the default lead
// time.
func (s *Service) CreateManualPost(channel, message, scheduleInput string) (int64, error) {
	if strings.TrimSpace(message) == "" {
		return 0, ErrEmptyMessage
	}

	scheduledAt := s.Now().UTC().Add(DefaultLeadTime)
	if scheduleInput != "" {
		var err error
		scheduledAt, err = timeutil.ParseScheduleInput(scheduleInput, s.zone, s.Now())
		if err != nil {
			return 0, err
		}
	}

	postID, err := s.posts.CreateWithThread(database.Post{
		MediaID:     channel,
		Status:      database.StatusDraft,
		ScheduledAt: scheduledAt,
	}, message, "")
	if err != nil {
		return 0, fmt.Errorf("failed to create post: %w", err)
	}

	slog.Info("Manual post created", "post_id", postID, "channel", channel)
	return postID, nil
}

// EditThreadMessage replaces the message of one thread. Editing is allowed
// in any status. An empty message is a deliberate no-op, mirroring the
// "press enter to keep" editing flow.
func (s *Service) EditThreadMessage(postID int64, order int, message string) error {
	thread, err := s.thread(postID, order)
	if err != nil {
		return err
	}
	if message == "" {
		return nil
	}

	if err := s.posts.UpdateThreadMessage(thread.ID, message); err != nil {
		return fmt.Errorf("failed to edit thread message: %w", err)
	}
	return nil
}

// AddThread appends a new message segment after the post's existing
// threads.
func (s *Service) AddThread(postID int64, message string) (int, error) {
	if strings.TrimSpace(message) == "" {
		return 0, ErrEmptyMessage
	}
	if _, err := s.post(postID); err != nil {
		return 0, err
	}

	order, err := s.posts.AddThread(postID, message)
	if err != nil {
		return 0, fmt.Errorf("failed to add thread: %w", err)
	}
	return order, nil
}

// DeleteThread removes one thread and renumbers the rest into a contiguous
// 1..N run. The last remaining thread can never be deleted.
func (s *Service) DeleteThread(postID int64, order int) error {
	threads, err := s.posts.Threads(postID)
	if err != nil {
		return fmt.Errorf("failed to load threads: %w", err)
	}
	if len(threads) == 0 {
		return ErrNotFound
	}
	if len(threads) == 1 {
		if threads[0].ThreadOrder == order {
			return ErrLastThread
		}
		return ErrNotFound
	}

	found := false
	for _, th := range threads {
		if th.ThreadOrder == order {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	if err := s.posts.DeleteThreadAndRenumber(postID, order); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// SetSchedule reschedules a post from operator input (relative, "now", or
// absolute local time), stored as UTC.
func (s *Service) SetSchedule(postID int64, input string) (time.Time, error) {
	if _, err := s.post(postID); err != nil {
		return time.Time{}, err
	}

	scheduledAt, err := timeutil.ParseScheduleInput(input, s.zone, s.Now())
	if err != nil {
		return time.Time{}, err
	}

	if err := s.posts.UpdateSchedule(postID, scheduledAt); err != nil {
		return time.Time{}, fmt.Errorf("failed to update schedule: %w", err)
	}
	return scheduledAt, nil
}

// ManageImage attaches, replaces or clears the image of one thread.
func (s *Service) ManageImage(postID int64, order int, action ImageAction, manualPath string) error {
	thread, err := s.thread(postID, order)
	if err != nil {
		return err
	}

	switch action {
	case ImageAuto:
		post, err := s.post(postID)
		if err != nil {
			return err
		}
		if post.ContentUniqueID == "" {
			return ErrNoOriginLink
		}
		origin, err := s.content.GetByUniqueID(post.ContentUniqueID)
		if err != nil {
			return fmt.Errorf("failed to load origin content: %w", err)
		}
		if origin == nil || origin.Link == "" {
			return ErrNoOriginLink
		}

		path := s.capturer.Capture(origin.Link)
		if path == "" {
			// Capture failure is transient: leave the attachment as-is.
			slog.Warn("Screenshot capture failed, image unchanged", "post_id", postID, "url", origin.Link)
			return nil
		}
		return s.posts.UpdateThreadImage(thread.ID, path)

	case ImageManual:
		if _, err := os.Stat(manualPath); err != nil {
			return fmt.Errorf("%w: %s", ErrImageNotFound, manualPath)
		}
		return s.posts.UpdateThreadImage(thread.ID, manualPath)

	case ImageClear:
		return s.posts.UpdateThreadImage(thread.ID, "")

	default:
		return fmt.Errorf("unknown image action %d", action)
	}
}

// Approve moves a draft or errored post into the approved state, clearing
// any recorded failure. Posts that have already been transmitted cannot be
// re-approved.
func (s *Service) Approve(postID int64) error {
	post, err := s.post(postID)
	if err != nil {
		return err
	}

	switch post.Status {
	case database.StatusDraft, database.StatusError, database.StatusApproved:
		if err := s.posts.UpdateStatus(postID, database.StatusApproved, ""); err != nil {
			return fmt.Errorf("failed to approve post: %w", err)
		}
		slog.Info("Post approved", "post_id", postID, "scheduled_at", timeutil.FormatUTC(post.ScheduledAt))
		return nil
	default:
		return fmt.Errorf("%w: cannot approve a %s post", ErrInvalidTransition, post.Status)
	}
}

// Delete removes a post and its threads. Only drafts may be deleted.
func (s *Service) Delete(postID int64) error {
	post, err := s.post(postID)
	if err != nil {
		return err
	}
	if post.Status != database.StatusDraft {
		return fmt.Errorf("%w: cannot delete a %s post", ErrInvalidState, post.Status)
	}

	if err := s.posts.Delete(postID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// List returns posts matching the filter ordered by scheduled instant,
// each decorated with a preview of its first thread.
func (s *Service) List(filter database.PostListFilter) ([]Summary, error) {
	posts, err := s.posts.List(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	summaries := make([]Summary, 0, len(posts))
	for _, p := range posts {
		summary := Summary{
			Post:           p,
			ScheduledLocal: timeutil.RenderInZone(p.ScheduledAt, s.zone),
		}
		if thread, err := s.posts.FirstThread(p.ID); err == nil && thread != nil {
			summary.Preview = preview(thread.Message)
		}
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// Get returns a post with all its threads.
func (s *Service) Get(postID int64) (*Detail, error) {
	post, err := s.post(postID)
	if err != nil {
		return nil, err
	}
	threads, err := s.posts.Threads(postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}

	return &Detail{
		Post:           *post,
		Threads:        threads,
		ScheduledLocal: timeutil.RenderInZone(post.ScheduledAt, s.zone),
	}, nil
}

func (s *Service) post(postID int64) (*database.Post, error) {
	post, err := s.posts.Get(postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil {
		return nil, ErrNotFound
	}
	return post, nil
}

func (s *Service) thread(postID int64, order int) (*database.Thread, error) {
	if _, err := s.post(postID); err != nil {
		return nil, err
	}
	thread, err := s.posts.ThreadByOrder(postID, order)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	if thread == nil {
		return nil, ErrNotFound
	}
	return thread, nil
}

// preview extracts the first line of a message, truncated for listing.
func preview(message string) string {
	line := message
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	runes := []rune(line)
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "..."
	}
	return line
}
