package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Wildcard matches every subject when used as a key and every action when
// used as a grant
const Wildcard = "*"

// StaticCapabilityChecker grants actions from a fixed subject to
// capabilities table, typically loaded from the capabilities config section.
// Grants may be exact ("payments.void"), a namespace ("payments.*") or "*".
type StaticCapabilityChecker struct {
	bySubject map[uuid.UUID][]string
	everyone  []string
}

// NewStaticCapabilityChecker validates the table and builds a checker.
// Keys must be actor UUIDs or "*".
func NewStaticCapabilityChecker(table map[string][]string) (*StaticCapabilityChecker, error) {
	c := &StaticCapabilityChecker{bySubject: make(map[uuid.UUID][]string, len(table))}
	for subject, grants := range table {
		normalized := make([]string, 0, len(grants))
		for _, g := range grants {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			normalized = append(normalized, g)
		}

		if subject == Wildcard {
			c.everyone = append(c.everyone, normalized...)
			continue
		}
		id, err := uuid.Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("capabilities: subject %q is not a UUID or %q", subject, Wildcard)
		}
		c.bySubject[id] = append(c.bySubject[id], normalized...)
	}
	return c, nil
}

// HasCapability reports whether subject may perform action
func (c *StaticCapabilityChecker) HasCapability(_ context.Context, subject uuid.UUID, action string) bool {
	return matchAny(c.everyone, action) || matchAny(c.bySubject[subject], action)
}

func matchAny(grants []string, action string) bool {
	for _, g := range grants {
		if grantMatches(g, action) {
			return true
		}
	}
	return false
}

func grantMatches(grant, action string) bool {
	switch {
	case grant == Wildcard:
		return true
	case strings.HasSuffix(grant, ".*"):
		return strings.HasPrefix(action, strings.TrimSuffix(grant, "*"))
	default:
		return grant == action
	}
}
