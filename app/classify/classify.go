// Package classify decides which channel owns a feed item. Channels sharing
// a feed source each carry optional include/exclude rules; the first channel
// whose rules accept the title wins.
package classify

import (
	"regexp"
)

// priorityChannels are always evaluated first, in this order, whenever they
// appear among the candidates for a shared feed. Their position in the
// channel configuration is irrelevant.
var priorityChannels = []string{"helwa", "heldio"}

// Rule is one channel's classification predicate. A nil regex imposes no
// constraint; a channel with neither regex accepts every title.
type Rule struct {
	Channel string
	Include *regexp.Regexp
	Exclude *regexp.Regexp
}

// Matches reports whether the rule accepts the given title.
func (r Rule) Matches(title string) bool {
	if r.Include != nil && !r.Include.MatchString(title) {
		return false
	}
	if r.Exclude != nil && r.Exclude.MatchString(title) {
		return false
	}
	return true
}

// Classify returns the owning channel for a title among the candidate rules,
// or false when no channel accepts it. An unclassifiable title is a normal
// outcome, not an error.
func Classify(title string, candidates []Rule) (string, bool) {
	for _, r := range ordered(candidates) {
		if r.Matches(title) {
			return r.Channel, true
		}
	}
	return "", false
}

// ordered places the priority channels first (in their fixed order) and
// keeps the remaining candidates in declaration order.
func ordered(candidates []Rule) []Rule {
	result := make([]Rule, 0, len(candidates))
	for _, name := range priorityChannels {
		for _, r := range candidates {
			if r.Channel == name {
				result = append(result, r)
			}
		}
	}
	for _, r := range candidates {
		if isPriority(r.Channel) {
			continue
		}
		result = append(result, r)
	}
	return result
}

func isPriority(channel string) bool {
	for _, name := range priorityChannels {
		if channel == name {
			return true
		}
	}
	return false
}
