// Package dispatch sends due, approved posts to the outbound transport.
// Each post is treated atomically: all threads delivered in order means
// posted, any failure means error. Failures are isolated per post.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mediahub/postpipe/app/database"
)

// Transport publishes one message segment and returns its remote id.
// replyToID chains the segment under a previously published one.
type Transport interface {
	Publish(ctx context.Context, text, replyToID string, mediaPaths []string) (string, error)
}

// Report summarizes one dispatch run.
type Report struct {
	Due    int
	Posted int
	Failed int
}

// Dispatcher drains due approved posts into the transport.
type Dispatcher struct {
	posts     database.PostRepository
	transport Transport
}

func NewDispatcher(posts database.PostRepository, transport Transport) *Dispatcher {
	return &Dispatcher{posts: posts, transport: transport}
}

// RunDue processes every approved post whose scheduled instant has elapsed,
// earliest due first. A failing post never aborts the rest of the run.
func (d *Dispatcher) RunDue(ctx context.Context, now time.Time) (Report, error) {
	due, err := d.posts.DueApproved(now)
	if err != nil {
		return Report{}, fmt.Errorf("failed to select due posts: %w", err)
	}

	report := Report{Due: len(due)}
	for _, post := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		sent, err := d.dispatchPost(ctx, post)
		if err != nil {
			report.Failed++
			slog.Error("Post dispatch failed", "post_id", post.ID, "error", err)
			if updateErr := d.posts.UpdateStatus(post.ID, database.StatusError, err.Error()); updateErr != nil {
				slog.Error("Failed to record dispatch error", "post_id", post.ID, "error", updateErr)
			}
			continue
		}
		if !sent {
			continue
		}

		report.Posted++
		if err := d.posts.UpdateStatus(post.ID, database.StatusPosted, ""); err != nil {
			slog.Error("Failed to mark post as posted", "post_id", post.ID, "error", err)
		} else {
			slog.Info("Post dispatched", "post_id", post.ID)
		}
	}

	return report, nil
}

// dispatchPost sends the post's threads strictly in thread order, chaining
// each one to the previous segment's remote id. The first failure aborts
// the remaining threads. A post without threads is skipped, not sent: it
// stays approved and never transitions.
func (d *Dispatcher) dispatchPost(ctx context.Context, post database.Post) (bool, error) {
	threads, err := d.posts.Threads(post.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load threads: %w", err)
	}
	if len(threads) == 0 {
		slog.Warn("Post has no threads, skipping", "post_id", post.ID)
		return false, nil
	}

	var lastRemoteID string
	for _, thread := range threads {
		var media []string
		if thread.ImagePath != "" {
			media = append(media, thread.ImagePath)
		}

		remoteID, err := d.transport.Publish(ctx, thread.Message, lastRemoteID, media)
		if err != nil {
			return false, fmt.Errorf("thread %d: %w", thread.ThreadOrder, err)
		}

		// Record the remote id immediately so a failure later in the
		// chain still shows which segments went out.
		if err := d.posts.SetThreadPostedID(thread.ID, remoteID); err != nil {
			slog.Error("Failed to record thread remote id", "thread_id", thread.ID, "error", err)
		}

		lastRemoteID = remoteID
	}

	return true, nil
}
