// Package digest renders content summaries for consumers outside the post
// pipeline: a markdown newsletter and a JSON payload for the static site.
package digest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mediahub/postpipe/app/config"
	"github.com/mediahub/postpipe/app/database"
	"github.com/mediahub/postpipe/app/timeutil"
)

// DefaultSiteItems is how many recent entries each channel card carries.
const DefaultSiteItems = 5

// Generator builds digests from the content store and channel definitions.
type Generator struct {
	content  database.ContentRepository
	channels *config.File
	zone     *time.Location

	// Now is replaceable for tests.
	Now func() time.Time
}

func NewGenerator(content database.ContentRepository, channels *config.File, zone *time.Location) *Generator {
	return &Generator{
		content:  content,
		channels: channels,
		zone:     zone,
		Now:      time.Now,
	}
}

// Newsletter writes a markdown digest of content published inside the
// window, grouped per channel in declaration order. Channels without new
// content are omitted.
func (g *Generator) Newsletter(w io.Writer, window time.Duration) error {
	now := g.Now().UTC()
	since := now.Add(-window)

	items, err := g.content.PublishedSince(since)
	if err != nil {
		return fmt.Errorf("failed to load recent content: %w", err)
	}

	byChannel := make(map[string][]database.Content)
	for _, item := range items {
		byChannel[item.MediaID] = append(byChannel[item.MediaID], item)
	}

	fmt.Fprintf(w, "# Newsletter %s\n", now.In(g.zone).Format("2006-01-02"))
	fmt.Fprintf(w, "\nNew content since %s.\n", since.In(g.zone).Format("2006-01-02"))

	for _, ch := range g.channels.Channels {
		channelItems := byChannel[ch.Name]
		if len(channelItems) == 0 {
			continue
		}

		fmt.Fprintf(w, "\n## %s\n\n", ch.Title)
		for _, item := range channelItems {
			fmt.Fprintf(w, "- [%s](%s) — %s\n", item.Title, item.Link,
				item.PublishedAt.In(g.zone).Format("2006-01-02"))
		}
	}

	return nil
}

// SiteItem is one linked entry on a channel card or in the recent list.
type SiteItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
	Channel     string `json:"channel,omitempty"`
}

// SiteChannel is one channel card for the static site.
type SiteChannel struct {
	Name        string     `json:"name"`
	Title       string     `json:"title"`
	ShortTitle  string     `json:"short_title,omitempty"`
	Description string     `json:"description,omitempty"`
	Link        string     `json:"link,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	Items       []SiteItem `json:"items"`
}

// SitePayload is the full static site data document.
type SitePayload struct {
	GeneratedAt   string        `json:"generated_at"`
	Announcements []SiteItem    `json:"announcements"`
	Recent        []SiteItem    `json:"recent"`
	Channels      []SiteChannel `json:"channels"`
}

// SiteData writes the static site JSON payload: announcements from the
// channel config, content published inside recentWindow, and one card per
// channel combining fixed items with its latest entries.
func (g *Generator) SiteData(w io.Writer, recentWindow time.Duration, perChannel int) error {
	if perChannel <= 0 {
		perChannel = DefaultSiteItems
	}
	now := g.Now().UTC()

	payload := SitePayload{
		GeneratedAt:   timeutil.FormatUTC(now),
		Announcements: []SiteItem{},
		Recent:        []SiteItem{},
		Channels:      []SiteChannel{},
	}

	for _, a := range g.channels.Announcements {
		payload.Announcements = append(payload.Announcements, SiteItem{Title: a.Title, URL: a.URL})
	}

	recent, err := g.content.PublishedSince(now.Add(-recentWindow))
	if err != nil {
		return fmt.Errorf("failed to load recent content: %w", err)
	}
	for _, item := range recent {
		payload.Recent = append(payload.Recent, SiteItem{
			Title:       item.Title,
			URL:         item.Link,
			PublishedAt: timeutil.FormatUTC(item.PublishedAt),
			Channel:     item.MediaID,
		})
	}

	for _, ch := range g.channels.Channels {
		card := SiteChannel{
			Name:        ch.Name,
			Title:       ch.Title,
			ShortTitle:  ch.ShortTitle,
			Description: ch.Description,
			Link:        ch.Link,
			Icon:        ch.Icon,
			Items:       []SiteItem{},
		}

		for _, fixed := range ch.FixedItems {
			card.Items = append(card.Items, SiteItem{Title: fixed.Title, URL: fixed.URL})
		}

		latest, err := g.content.RecentByChannel(ch.Name, perChannel)
		if err != nil {
			return fmt.Errorf("failed to load content for channel %s: %w", ch.Name, err)
		}
		for _, item := range latest {
			card.Items = append(card.Items, SiteItem{
				Title:       item.Title,
				URL:         item.Link,
				PublishedAt: timeutil.FormatUTC(item.PublishedAt),
			})
		}

		payload.Channels = append(payload.Channels, card)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode site data: %w", err)
	}

	return nil
}
