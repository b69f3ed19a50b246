package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mediahub/postpipe/app/database"
	"github.com/mediahub/postpipe/app/lifecycle"
	"github.com/mediahub/postpipe/app/timeutil"
)

func NewHandler(contentRepo database.ContentRepository, postRepo database.PostRepository,
	lifecycleSvc *lifecycle.Service, version string) *Handler {
	return &Handler{
		contentRepo: contentRepo,
		postRepo:    postRepo,
		lifecycle:   lifecycleSvc,
		version:     version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{}

	contentCount, err := h.contentRepo.Count()
	if err != nil {
		slog.Error("Database error", "operation", "count_content", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	stats["content"] = contentCount

	counts, err := h.postRepo.CountByStatus()
	if err != nil {
		slog.Error("Database error", "operation", "count_posts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	posts := gin.H{}
	total := 0
	for status, count := range counts {
		posts[string(status)] = count
		total += count
	}
	posts["total"] = total
	stats["posts"] = posts

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListPosts(c *gin.Context) {
	filter := database.PostListFilter{
		MediaID: c.Query("channel"),
	}

	if status := c.Query("status"); status != "" {
		switch database.PostStatus(status) {
		case database.StatusDraft, database.StatusApproved, database.StatusPosted, database.StatusError:
			filter.Status = database.PostStatus(status)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status parameter"})
			return
		}
	}

	summaries, err := h.lifecycle.List(filter)
	if err != nil {
		slog.Error("Database error", "operation", "list_posts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	rows := make([]gin.H, 0, len(summaries))
	for _, s := range summaries {
		row := gin.H{
			"id":              s.Post.ID,
			"channel":         s.Post.MediaID,
			"status":          string(s.Post.Status),
			"scheduled_at":    timeutil.FormatUTC(s.Post.ScheduledAt),
			"scheduled_local": s.ScheduledLocal,
			"preview":         s.Preview,
		}
		if s.Post.ErrorMessage != "" {
			row["error_message"] = s.Post.ErrorMessage
		}
		if s.Post.PostedAt != nil {
			row["posted_at"] = timeutil.FormatUTC(*s.Post.PostedAt)
		}
		rows = append(rows, row)
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": rows,
		"total": len(rows),
	})
}
