package events

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/studiodesk/internal/model"
)

// TopicPrefix is the root of every row-change topic.
const TopicPrefix = "studio.changes"

// ChangeTopic returns the topic carrying changes to table within a workspace:
// studio.changes.<workspace>.<table>.
func ChangeTopic(workspaceID string, table model.Table) string {
	return TopicPrefix + "." + topicToken(workspaceID) + "." + string(table)
}

// WorkspaceTopic returns a wildcard topic matching changes to every table of
// a workspace.
func WorkspaceTopic(workspaceID string) string {
	return TopicPrefix + "." + topicToken(workspaceID) + ".>"
}

// PatternWorkspace returns the workspace segment of a change topic or
// pattern. It reports false when the segment is a wildcard or the pattern is
// not under TopicPrefix.
func PatternWorkspace(pattern string) (string, bool) {
	rest, ok := strings.CutPrefix(pattern, TopicPrefix+".")
	if !ok {
		return "", false
	}
	ws, _, _ := strings.Cut(rest, ".")
	if ws == "" || ws == "*" || ws == ">" {
		return "", false
	}
	return ws, true
}

// SameWorkspace reports whether workspaceID is the one a topic segment
// names.
func SameWorkspace(workspaceID, segment string) bool {
	return topicToken(workspaceID) == segment
}

// topicToken makes s safe to use as a single topic segment.
func topicToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, s)
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// PublishChange publishes c on its workspace/table topic.
func PublishChange(ctx context.Context, p Publisher, c model.Change) error {
	return p.Publish(ctx, ChangeTopic(c.WorkspaceID, c.Table), c)
}

// MatchTopic matches a dot-separated topic against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			// ">" matches one or more remaining segments.
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}
