// Package ingest pulls configured feed sources, deduplicates and classifies
// their entries into content records, and drafts posts for channels with an
// active auto-post template.
package ingest

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mediahub/postpipe/app/classify"
	"github.com/mediahub/postpipe/app/config"
	"github.com/mediahub/postpipe/app/database"
	"github.com/mediahub/postpipe/app/screenshot"
	"github.com/mediahub/postpipe/app/timeutil"
)

// DefaultLeadTime is how far in the future auto-drafted posts are scheduled.
const DefaultLeadTime = time.Hour

const fetchTimeout = 30 * time.Second

// Report summarizes one feed source's ingestion pass.
type Report struct {
	Source     string
	NewItems   int // content records persisted
	Classified int // entries a channel accepted
	Skipped    int // unclassifiable entries
	Drafted    int // draft posts created
}

// Pipeline ingests feed sources into the content store.
type Pipeline struct {
	contentRepo database.ContentRepository
	postRepo    database.PostRepository
	capturer    screenshot.Capturer
	httpClient  *http.Client
	parser      *gofeed.Parser
	userAgent   string

	// Now is replaceable for tests.
	Now func() time.Time
}

func NewPipeline(contentRepo database.ContentRepository, postRepo database.PostRepository,
	capturer screenshot.Capturer, httpClient *http.Client, userAgent string) *Pipeline {
	return &Pipeline{
		contentRepo: contentRepo,
		postRepo:    postRepo,
		capturer:    capturer,
		httpClient:  httpClient,
		parser:      gofeed.NewParser(),
		userAgent:   userAgent,
		Now:         time.Now,
	}
}

// Run ingests every source once. A failing source is logged and does not
// abort the remaining sources.
func (p *Pipeline) Run(ctx context.Context, sources []config.FeedSource) []Report {
	reports := make([]Report, 0, len(sources))
	for _, src := range sources {
		report, err := p.ingestSource(ctx, src)
		if err != nil {
			slog.Error("Feed source ingestion failed", "source", src.URL, "error", err)
			continue
		}
		slog.Info("Feed source ingested", "source", src.URL,
			"new", report.NewItems, "classified", report.Classified,
			"skipped", report.Skipped, "drafted", report.Drafted)
		reports = append(reports, report)
	}
	return reports
}

// RunSource ingests a single feed source. Used by the background scheduler,
// which drives sources through individual tasks.
func (p *Pipeline) RunSource(ctx context.Context, src config.FeedSource) (Report, error) {
	return p.ingestSource(ctx, src)
}

func (p *Pipeline) ingestSource(ctx context.Context, src config.FeedSource) (Report, error) {
	report := Report{Source: src.URL}

	data, err := p.fetchFeed(ctx, src.URL)
	if err != nil {
		return report, fmt.Errorf("failed to fetch feed: %w", err)
	}

	feed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return report, fmt.Errorf("failed to parse feed: %w", err)
	}

	rules := make([]classify.Rule, 0, len(src.Channels))
	for _, ch := range src.Channels {
		rules = append(rules, ch.ClassifyRule())
	}

	for _, entry := range chronological(feed.Items, p.Now()) {
		p.ingestEntry(src, rules, entry, &report)
	}

	return report, nil
}

type timedEntry struct {
	item        *gofeed.Item
	publishedAt time.Time
}

// chronological resolves every entry's publication instant and orders the
// entries oldest first, whatever order the payload listed them in. Draft
// scheduling then reflects publication order.
func chronological(items []*gofeed.Item, now time.Time) []timedEntry {
	entries := make([]timedEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, timedEntry{
			item:        item,
			publishedAt: timeutil.EntryTime(entryTimes(item), now),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].publishedAt.Before(entries[j].publishedAt)
	})
	return entries
}

func (p *Pipeline) ingestEntry(src config.FeedSource, rules []classify.Rule, entry timedEntry, report *Report) {
	item := entry.item
	uniqueID := cmp.Or(item.GUID, item.Link)
	if uniqueID == "" {
		slog.Debug("Entry has no usable dedup key, skipping", "source", src.URL, "title", item.Title)
		return
	}

	seen, err := p.contentRepo.Exists(uniqueID)
	if err != nil {
		slog.Error("Failed to check content existence", "unique_id", uniqueID, "error", err)
		return
	}
	if seen {
		return
	}

	channelName, ok := classify.Classify(item.Title, rules)
	if !ok {
		slog.Info("Entry not classifiable, skipping", "source", src.URL, "title", item.Title)
		report.Skipped++
		return
	}
	report.Classified++

	inserted, err := p.contentRepo.Insert(database.Content{
		UniqueID:    uniqueID,
		MediaID:     channelName,
		Title:       item.Title,
		Link:        item.Link,
		PublishedAt: entry.publishedAt,
	})
	if err != nil {
		slog.Error("Failed to persist content", "unique_id", uniqueID, "error", err)
		return
	}
	if !inserted {
		// Another run won the unique_id race; treat like already-seen.
		slog.Debug("Content already persisted by a concurrent run", "unique_id", uniqueID)
		return
	}
	report.NewItems++

	channel := findChannel(src.Channels, channelName)
	if channel == nil || !channel.Post.Active {
		return
	}
	if containsKeyword(item.Title, channel.Post.ExcludeKeywords) {
		slog.Debug("Title contains exclude keyword, not drafting", "title", item.Title)
		return
	}

	if p.draftPost(channel, uniqueID, item) {
		report.Drafted++
	}
}

// draftPost synthesizes a draft post for a newly ingested entry. A database
// failure here is logged and swallowed: the content record stays so the
// entry is never re-ingested, at the cost of the missing draft.
func (p *Pipeline) draftPost(channel *config.Channel, uniqueID string, item *gofeed.Item) bool {
	message := renderTemplate(channel.Post.Template, item.Title, item.Link)
	scheduledAt := p.Now().UTC().Add(DefaultLeadTime)

	var imagePath string
	switch channel.Post.Image.Mode {
	case config.ImageModeAuto:
		imagePath = p.capturer.Capture(item.Link)
	case config.ImageModeManual:
		imagePath = channel.Post.Image.ManualPath
	}

	postID, err := p.postRepo.CreateWithThread(database.Post{
		MediaID:         channel.Name,
		ContentUniqueID: uniqueID,
		Status:          database.StatusDraft,
		ScheduledAt:     scheduledAt,
	}, message, imagePath)
	if err != nil {
		slog.Error("Failed to create draft post", "channel", channel.Name, "unique_id", uniqueID, "error", err)
		return false
	}

	slog.Info("Draft post created", "channel", channel.Name, "post_id", postID, "scheduled_at", timeutil.FormatUTC(scheduledAt))
	return true
}

func (p *Pipeline) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func entryTimes(item *gofeed.Item) timeutil.EntryTimes {
	e := timeutil.EntryTimes{
		PublishedParsed: item.PublishedParsed,
		UpdatedParsed:   item.UpdatedParsed,
		Published:       item.Published,
		Updated:         item.Updated,
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Date) > 0 {
		e.DCDate = item.DublinCoreExt.Date[0]
	}
	e.Issued = extensionValue(item, "dcterms", "issued")
	e.Created = extensionValue(item, "dcterms", "created")
	return e
}

func extensionValue(item *gofeed.Item, prefix, name string) string {
	exts, ok := item.Extensions[prefix]
	if !ok {
		return ""
	}
	values := exts[name]
	if len(values) == 0 {
		return ""
	}
	return values[0].Value
}

func findChannel(channels []*config.Channel, name string) *config.Channel {
	for _, ch := range channels {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

// containsKeyword reports whether the title contains any exclude keyword.
// Matching is a plain case-sensitive substring check.
func containsKeyword(title string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

func renderTemplate(template, title, link string) string {
	message := strings.ReplaceAll(template, "{title}", title)
	return strings.ReplaceAll(message, "{link}", link)
}
