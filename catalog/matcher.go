package catalog

import (
	"fmt"
	"strings"
)

// Match checks if an event type name matches a subscription pattern.
//
//	"order.created" exact match
//	"order.*"       any event in the order group
//	"*"             everything
func Match(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	eventParts := strings.Split(eventType, ".")
	if len(patternParts) != len(eventParts) {
		return false
	}
	for i, pp := range patternParts {
		if pp != "*" && pp != eventParts[i] {
			return false
		}
	}
	return true
}

// Expand resolves subscription patterns into a de-duplicated list of
// concrete event type names, preserving first-seen order. A pattern that
// matches no recognized event type is an error naming that pattern.
func Expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		matched := false
		for _, d := range builtin {
			if !Match(p, d.Name) {
				continue
			}
			matched = true
			if !seen[d.Name] {
				seen[d.Name] = true
				out = append(out, d.Name)
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, p)
		}
	}
	return out, nil
}
