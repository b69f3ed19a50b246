package lifecycle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mediahub/postpipe/app/database"
	"github.com/mediahub/postpipe/app/timeutil"
)

type fakeCapturer struct {
	path string
}

func (f *fakeCapturer) Capture(url string) string { return f.path }

func newTestService(t *testing.T) (*Service, *database.PostStore, *database.ContentStore) {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	zone, err := timeutil.LoadZone("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load zone: %v", err)
	}

	posts := database.NewPostStore(db)
	content := database.NewContentStore(db)
	return NewService(posts, content, &fakeCapturer{}, zone), posts, content
}

func TestCreateManualPost(t *testing.T) {
	svc, posts, _ := newTestService(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }

	id, err := svc.CreateManualPost("helwa", "hello world", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := posts.Get(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != database.StatusDraft {
		t.Errorf("new post should be draft, got %s", p.Status)
	}
	if !p.ScheduledAt.Equal(now.Add(time.Hour)) {
		t.Errorf("default schedule should be now+1h, got %v", p.ScheduledAt)
	}

	threads, _ := posts.Threads(id)
	if len(threads) != 1 || threads[0].ThreadOrder != 1 {
		t.Fatalf("expected one thread at order 1, got %+v", threads)
	}
}

func TestCreateManualPost_EmptyMessage(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.CreateManualPost("helwa", "   ", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestEditThreadMessage(t *testing.T) {
	svc, posts, _ := newTestService(t)

	id, _ := svc.CreateManualPost("helwa", "original", "")

	if err := svc.EditThreadMessage(id, 1, "revised"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	thread, _ := posts.FirstThread(id)
	if thread.Message != "revised" {
		t.Errorf("message not updated: %q", thread.Message)
	}

	// Empty input keeps the current message.
	if err := svc.EditThreadMessage(id, 1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	thread, _ = posts.FirstThread(id)
	if thread.Message != "revised" {
		t.Errorf("empty edit should be a no-op, got %q", thread.Message)
	}

	if err := svc.EditThreadMessage(id, 99, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing order, got %v", err)
	}
	if err := svc.EditThreadMessage(9999, 1, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing post, got %v", err)
	}
}

func TestAddAndDeleteThreads(t *testing.T) {
	svc, posts, _ := newTestService(t)

	id, _ := svc.CreateManualPost("helwa", "first", "")

	order, err := svc.AddThread(id, "second")
	if err != nil || order != 2 {
		t.Fatalf("expected order 2, got %d (%v)", order, err)
	}
	order, err = svc.AddThread(id, "third")
	if err != nil || order != 3 {
		t.Fatalf("expected order 3, got %d (%v)", order, err)
	}

	if err := svc.DeleteThread(id, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	threads, _ := posts.Threads(id)
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[1].ThreadOrder != 2 || threads[1].Message != "third" {
		t.Errorf("renumbering wrong: %+v", threads[1])
	}

	if err := svc.DeleteThread(id, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The sole remaining thread is protected.
	if err := svc.DeleteThread(id, 1); !errors.Is(err, ErrLastThread) {
		t.Errorf("expected ErrLastThread, got %v", err)
	}
	threads, _ = posts.Threads(id)
	if len(threads) != 1 {
		t.Errorf("post must keep at least one thread, got %d", len(threads))
	}
}

func TestSetSchedule(t *testing.T) {
	svc, posts, _ := newTestService(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }

	id, _ := svc.CreateManualPost("helwa", "msg", "")

	scheduled, err := svc.SetSchedule(id, "+2h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scheduled.Equal(now.Add(2 * time.Hour)) {
		t.Errorf("unexpected schedule: %v", scheduled)
	}

	p, _ := posts.Get(id)
	if !p.ScheduledAt.Equal(now.Add(2 * time.Hour)) {
		t.Errorf("schedule not persisted: %v", p.ScheduledAt)
	}

	var parseErr *timeutil.DateParseError
	if _, err := svc.SetSchedule(id, "whenever"); !errors.As(err, &parseErr) {
		t.Errorf("expected DateParseError, got %v", err)
	}
	p, _ = posts.Get(id)
	if !p.ScheduledAt.Equal(now.Add(2 * time.Hour)) {
		t.Errorf("failed parse must not change the schedule: %v", p.ScheduledAt)
	}
}

func TestManageImage(t *testing.T) {
	svc, posts, content := newTestService(t)

	// Post tied to ingested content, for auto capture.
	if _, err := content.Insert(database.Content{
		UniqueID:    "c1",
		MediaID:     "helwa",
		Title:       "title",
		Link:        "https://example.com/c1",
		PublishedAt: time.Now(),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	linked, err := posts.CreateWithThread(database.Post{
		MediaID:         "helwa",
		ContentUniqueID: "c1",
		Status:          database.StatusDraft,
		ScheduledAt:     time.Now(),
	}, "msg", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.capturer = &fakeCapturer{path: "screenshots/c1.png"}
	if err := svc.ManageImage(linked, 1, ImageAuto, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	thread, _ := posts.FirstThread(linked)
	if thread.ImagePath != "screenshots/c1.png" {
		t.Errorf("auto capture not applied: %q", thread.ImagePath)
	}

	// Manual attachment requires the file to exist.
	if err := svc.ManageImage(linked, 1, ImageManual, "/no/such/file.png"); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("expected ErrImageNotFound, got %v", err)
	}

	existing := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(existing, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.ManageImage(linked, 1, ImageManual, existing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.ManageImage(linked, 1, ImageClear, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	thread, _ = posts.FirstThread(linked)
	if thread.ImagePath != "" {
		t.Errorf("image should be cleared, got %q", thread.ImagePath)
	}

	// Auto capture on a manually authored post has no origin link.
	manual, _ := svc.CreateManualPost("helwa", "standalone", "")
	if err := svc.ManageImage(manual, 1, ImageAuto, ""); !errors.Is(err, ErrNoOriginLink) {
		t.Errorf("expected ErrNoOriginLink, got %v", err)
	}
}

func TestApprove_StateMachine(t *testing.T) {
	svc, posts, _ := newTestService(t)

	id, _ := svc.CreateManualPost("helwa", "msg", "")

	if err := svc.Approve(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := posts.Get(id)
	if p.Status != database.StatusApproved {
		t.Fatalf("expected approved, got %s", p.Status)
	}

	// error -> approved clears the recorded failure.
	if err := posts.UpdateStatus(id, database.StatusError, "transport exploded"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Approve(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ = posts.Get(id)
	if p.Status != database.StatusApproved || p.ErrorMessage != "" {
		t.Errorf("re-approval should clear error_message: %+v", p)
	}

	// posted -> approved must fail and leave the status unchanged.
	if err := posts.UpdateStatus(id, database.StatusPosted, ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.Approve(id); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	p, _ = posts.Get(id)
	if p.Status != database.StatusPosted {
		t.Errorf("status must be unchanged after rejected approve, got %s", p.Status)
	}
}

func TestDelete_DraftOnly(t *testing.T) {
	svc, posts, _ := newTestService(t)

	id, _ := svc.CreateManualPost("helwa", "msg", "")
	if err := svc.Approve(id); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if p, _ := posts.Get(id); p == nil {
		t.Fatal("post must survive a rejected delete")
	}

	draft, _ := svc.CreateManualPost("helwa", "gone soon", "")
	if err := svc.Delete(draft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p, _ := posts.Get(draft); p != nil {
		t.Error("draft should be deleted")
	}
}

func TestList_PreviewAndOrdering(t *testing.T) {
	svc, _, _ := newTestService(t)
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }

	late, _ := svc.CreateManualPost("helwa", "later post\nsecond line", "+3h")
	early, _ := svc.CreateManualPost("helwa", "early post with quite a long first line that keeps going", "+1h")

	summaries, err := svc.List(database.PostListFilter{Status: database.StatusDraft})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(summaries))
	}

	if summaries[0].Post.ID != early || summaries[1].Post.ID != late {
		t.Errorf("posts not ordered by scheduled_at: %d, %d", summaries[0].Post.ID, summaries[1].Post.ID)
	}
	if summaries[1].Preview != "later post" {
		t.Errorf("preview should be the first line only, got %q", summaries[1].Preview)
	}
	if len([]rune(summaries[0].Preview)) > previewLength+3 {
		t.Errorf("preview not truncated: %q", summaries[0].Preview)
	}
	if summaries[0].ScheduledLocal == "" {
		t.Error("scheduled instant should be rendered in the display zone")
	}
}
