package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mediahub/postpipe/app/config"
	"github.com/mediahub/postpipe/app/database"
	"github.com/mediahub/postpipe/app/timeutil"
)

type fakeCapturer struct {
	calls []string
	path  string
}

func (f *fakeCapturer) Capture(url string) string {
	f.calls = append(f.calls, url)
	return f.path
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func rssFeed(items ...string) string {
	feed := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test</title>`
	for _, item := range items {
		feed += item
	}
	return feed + `</channel></rss>`
}

func rssItem(guid, title, link, pubDate string) string {
	item := fmt.Sprintf(`<item><guid>%s</guid><title>%s</title><link>%s</link>`, guid, title, link)
	if pubDate != "" {
		item += "<pubDate>" + pubDate + "</pubDate>"
	}
	return item + "</item>"
}

func channelConfig(t *testing.T, feedURL string) *config.File {
	t.Helper()
	file, err := config.Parse([]byte(fmt.Sprintf(`
channels:
  - name: helwa
    feed_url: %s
    post:
      active: true
      template: "{title}\n{link}"
      include_regex: '^#\d+'
      exclude_keywords: ["members only"]
`, feedURL)))
	if err != nil {
		t.Fatalf("failed to parse channel config: %v", err)
	}
	return file
}

func newTestPipeline(db *database.DB, capturer *fakeCapturer) *Pipeline {
	return NewPipeline(database.NewContentStore(db), database.NewPostStore(db),
		capturer, &http.Client{}, "postpipe-test/1.0")
}

func TestPipeline_EndToEnd(t *testing.T) {
	srv := serveFeed(t, rssFeed(
		rssItem("https://example.com/123", "#123 Weekly Update", "https://example.com/123",
			"Fri, 01 Mar 2024 09:00:00 +0900"),
	))

	db := openTestDB(t)
	contentStore := database.NewContentStore(db)
	postStore := database.NewPostStore(db)
	p := newTestPipeline(db, &fakeCapturer{})

	ingestNow := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return ingestNow }

	reports := p.Run(context.Background(), channelConfig(t, srv.URL).Sources())
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.NewItems != 1 || r.Classified != 1 || r.Drafted != 1 || r.Skipped != 0 {
		t.Errorf("unexpected report: %+v", r)
	}

	c, err := contentStore.GetByUniqueID("https://example.com/123")
	if err != nil || c == nil {
		t.Fatalf("content not stored: %v", err)
	}
	// 09:00 +0900 is midnight UTC of the same day.
	if got := timeutil.FormatUTC(c.PublishedAt); got != "2024-03-01T00:00:00Z" {
		t.Errorf("published_at = %q, want 2024-03-01T00:00:00Z", got)
	}
	if c.MediaID != "helwa" {
		t.Errorf("media_id = %q, want helwa", c.MediaID)
	}

	posts, err := postStore.List(database.PostListFilter{Status: database.StatusDraft})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 draft post, got %d", len(posts))
	}
	post := posts[0]
	if !post.ScheduledAt.Equal(ingestNow.Add(time.Hour)) {
		t.Errorf("scheduled_at = %v, want ingestion now + 1h", post.ScheduledAt)
	}
	if post.ContentUniqueID != "https://example.com/123" {
		t.Errorf("content_unique_id = %q", post.ContentUniqueID)
	}

	thread, err := postStore.FirstThread(post.ID)
	if err != nil || thread == nil {
		t.Fatalf("first thread missing: %v", err)
	}
	if thread.Message != "#123 Weekly Update\nhttps://example.com/123" {
		t.Errorf("message = %q", thread.Message)
	}
	if thread.ThreadOrder != 1 {
		t.Errorf("thread_order = %d, want 1", thread.ThreadOrder)
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	srv := serveFeed(t, rssFeed(
		rssItem("a", "#1 First", "https://example.com/1", "Mon, 01 Jan 2024 00:00:00 GMT"),
		rssItem("b", "#2 Second", "https://example.com/2", "Tue, 02 Jan 2024 00:00:00 GMT"),
	))

	db := openTestDB(t)
	p := newTestPipeline(db, &fakeCapturer{})
	sources := channelConfig(t, srv.URL).Sources()

	first := p.Run(context.Background(), sources)
	if first[0].NewItems != 2 || first[0].Drafted != 2 {
		t.Fatalf("unexpected first run: %+v", first[0])
	}

	second := p.Run(context.Background(), sources)
	if second[0].NewItems != 0 || second[0].Drafted != 0 {
		t.Errorf("second run must be a no-op, got %+v", second[0])
	}

	count, err := database.NewContentStore(db).Count()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 content rows after rerun, got %d", count)
	}
}

func TestPipeline_ChronologicalOrder(t *testing.T) {
	// Payload lists newest first; ingestion must process oldest first.
	srv := serveFeed(t, rssFeed(
		rssItem("c", "#3 Third", "https://example.com/3", "Wed, 03 Jan 2024 00:00:00 GMT"),
		rssItem("a", "#1 First", "https://example.com/1", "Mon, 01 Jan 2024 00:00:00 GMT"),
		rssItem("b", "#2 Second", "https://example.com/2", "Tue, 02 Jan 2024 00:00:00 GMT"),
	))

	db := openTestDB(t)
	p := newTestPipeline(db, &fakeCapturer{})
	p.Run(context.Background(), channelConfig(t, srv.URL).Sources())

	// Content ids are assigned in processing order.
	items, err := database.NewContentStore(db).PublishedSince(time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	byUniqueID := make(map[string]int64)
	for _, c := range items {
		byUniqueID[c.UniqueID] = c.ID
	}
	if !(byUniqueID["a"] < byUniqueID["b"] && byUniqueID["b"] < byUniqueID["c"]) {
		t.Errorf("entries not processed oldest first: %v", byUniqueID)
	}
}

func TestPipeline_UnclassifiableSkipped(t *testing.T) {
	srv := serveFeed(t, rssFeed(
		rssItem("x", "No number here", "https://example.com/x", "Mon, 01 Jan 2024 00:00:00 GMT"),
	))

	db := openTestDB(t)
	p := newTestPipeline(db, &fakeCapturer{})
	reports := p.Run(context.Background(), channelConfig(t, srv.URL).Sources())

	if reports[0].Skipped != 1 || reports[0].NewItems != 0 {
		t.Errorf("unexpected report: %+v", reports[0])
	}

	// Unclassifiable entries are not persisted at all.
	count, _ := database.NewContentStore(db).Count()
	if count != 0 {
		t.Errorf("unclassifiable entry should not be stored, got %d rows", count)
	}
}

func TestPipeline_ExcludeKeywordSuppressesDraft(t *testing.T) {
	srv := serveFeed(t, rssFeed(
		rssItem("m", "#9 members only special", "https://example.com/9", "Mon, 01 Jan 2024 00:00:00 GMT"),
	))

	db := openTestDB(t)
	p := newTestPipeline(db, &fakeCapturer{})
	reports := p.Run(context.Background(), channelConfig(t, srv.URL).Sources())

	// Content is stored but no draft is created.
	if reports[0].NewItems != 1 || reports[0].Drafted != 0 {
		t.Errorf("unexpected report: %+v", reports[0])
	}
}

func TestPipeline_AutoImageFailureLeavesPostWithoutImage(t *testing.T) {
	srv := serveFeed(t, rssFeed(
		rssItem("i", "#7 Illustrated", "https://example.com/7", "Mon, 01 Jan 2024 00:00:00 GMT"),
	))

	file, err := config.Parse([]byte(fmt.Sprintf(`
channels:
  - name: helwa
    feed_url: %s
    post:
      active: true
      include_regex: '^#\d+'
      image:
        mode: auto
`, srv.URL)))
	if err != nil {
		t.Fatalf("failed to parse channel config: %v", err)
	}

	db := openTestDB(t)
	capturer := &fakeCapturer{path: ""} // capture fails
	p := newTestPipeline(db, capturer)

	reports := p.Run(context.Background(), file.Sources())
	if reports[0].Drafted != 1 {
		t.Fatalf("draft should still be created on capture failure: %+v", reports[0])
	}
	if len(capturer.calls) != 1 || capturer.calls[0] != "https://example.com/7" {
		t.Errorf("capturer not invoked with the item link: %v", capturer.calls)
	}

	postStore := database.NewPostStore(db)
	posts, _ := postStore.List(database.PostListFilter{})
	thread, err := postStore.FirstThread(posts[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if thread.ImagePath != "" {
		t.Errorf("image path should be empty on capture failure, got %q", thread.ImagePath)
	}
}
