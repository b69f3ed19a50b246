package config

import (
	"regexp"

	"github.com/mediahub/postpipe/app/classify"
)

// Image attachment modes for auto-drafted posts.
const (
	ImageModeNone   = "none"
	ImageModeAuto   = "auto"
	ImageModeManual = "manual"
)

// File is the parsed channel configuration file. Channel declaration order
// is significant: it is the classification tie-break order for channels
// sharing a feed source.
type File struct {
	Announcements []Announcement `yaml:"announcements"`
	Channels      []*Channel     `yaml:"channels"`
}

// Announcement is a static site notice carried through to the site data
// digest unchanged.
type Announcement struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

// Channel is one configured media outlet.
type Channel struct {
	Name        string      `yaml:"name"`
	Title       string      `yaml:"title"`
	ShortTitle  string      `yaml:"short_title"`
	Description string      `yaml:"description"`
	Link        string      `yaml:"link"`
	Icon        string      `yaml:"icon"`
	FeedURL     string      `yaml:"feed_url"`
	Post        PostConfig  `yaml:"post"`
	FixedItems  []FixedItem `yaml:"fixed_items"`

	includeRe *regexp.Regexp
	excludeRe *regexp.Regexp
}

// PostConfig controls automatic draft creation for a channel.
type PostConfig struct {
	Active          bool        `yaml:"active"`
	Template        string      `yaml:"template"`
	ExcludeKeywords []string    `yaml:"exclude_keywords"`
	IncludeRegex    string      `yaml:"include_regex"`
	ExcludeRegex    string      `yaml:"exclude_regex"`
	Image           ImageConfig `yaml:"image"`
}

// ImageConfig selects how a drafted post acquires its attached image.
type ImageConfig struct {
	Mode       string `yaml:"mode"`
	ManualPath string `yaml:"manual_path"`
}

// FixedItem is a pinned content entry shown on the channel's site card
// alongside the dynamic feed items.
type FixedItem struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

// ClassifyRule exposes the channel's compiled classification predicate.
func (c *Channel) ClassifyRule() classify.Rule {
	return classify.Rule{
		Channel: c.Name,
		Include: c.includeRe,
		Exclude: c.excludeRe,
	}
}
