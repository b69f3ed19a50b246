// Package config loads and validates the channel configuration file. The
// core components receive channel definitions from here and never read the
// file themselves.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// DefaultTemplate is the post template applied when a channel declares none.
const DefaultTemplate = "{title}\n{link}"

// Load reads, validates and compiles the channel configuration.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel config: %w", err)
	}

	return Parse(data)
}

// Parse builds a File from raw YAML. Split from Load for tests.
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse channel config: %w", err)
	}

	seen := make(map[string]bool)
	for i, ch := range file.Channels {
		if err := validateChannel(ch); err != nil {
			return nil, fmt.Errorf("invalid channel at index %d: %w", i, err)
		}
		if seen[ch.Name] {
			return nil, fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = true

		setDefaults(ch)
		if err := compileRules(ch); err != nil {
			return nil, fmt.Errorf("invalid rules for channel %q: %w", ch.Name, err)
		}
	}

	return &file, nil
}

func validateChannel(ch *Channel) error {
	if ch.Name == "" {
		return fmt.Errorf("channel name is required")
	}
	switch ch.Post.Image.Mode {
	case "", ImageModeNone, ImageModeAuto, ImageModeManual:
	default:
		return fmt.Errorf("invalid image mode %q", ch.Post.Image.Mode)
	}
	if ch.Post.Image.Mode == ImageModeManual && ch.Post.Image.ManualPath == "" {
		return fmt.Errorf("manual image mode requires manual_path")
	}
	return nil
}

func setDefaults(ch *Channel) {
	if ch.Post.Template == "" {
		ch.Post.Template = DefaultTemplate
	}
	if ch.Post.Image.Mode == "" {
		ch.Post.Image.Mode = ImageModeNone
	}
	if ch.Title == "" {
		ch.Title = ch.Name
	}
}

func compileRules(ch *Channel) error {
	var err error
	if ch.Post.IncludeRegex != "" {
		if ch.includeRe, err = regexp.Compile(ch.Post.IncludeRegex); err != nil {
			return fmt.Errorf("bad include_regex: %w", err)
		}
	}
	if ch.Post.ExcludeRegex != "" {
		if ch.excludeRe, err = regexp.Compile(ch.Post.ExcludeRegex); err != nil {
			return fmt.Errorf("bad exclude_regex: %w", err)
		}
	}
	return nil
}

// ByName returns the named channel, or nil.
func (f *File) ByName(name string) *Channel {
	for _, ch := range f.Channels {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

// FeedSource groups the channels sharing one syndication endpoint, in
// declaration order.
type FeedSource struct {
	URL      string
	Channels []*Channel
}

// Sources returns the distinct feed sources in first-declaration order.
// Channels without a feed URL take no part in ingestion.
func (f *File) Sources() []FeedSource {
	var sources []FeedSource
	index := make(map[string]int)

	for _, ch := range f.Channels {
		if ch.FeedURL == "" {
			continue
		}
		i, ok := index[ch.FeedURL]
		if !ok {
			i = len(sources)
			index[ch.FeedURL] = i
			sources = append(sources, FeedSource{URL: ch.FeedURL})
		}
		sources[i].Channels = append(sources[i].Channels, ch)
	}

	return sources
}
