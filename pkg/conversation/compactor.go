// Package conversation implements append-with-compaction and
// append-with-archive over the durable CONVERSATION log, per spec §4.7.
package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sipeed/cortexd/pkg/logger"
)

// Summarizer is the narrow capability the Compactor needs: turn a block of
// text into a plain-text summary. The concrete implementation is an LLM
// session launcher adapter (pkg/launcher), but the Compactor only depends on
// this interface to avoid a package cycle and to keep it independently
// testable with a canned summarizer.
type Summarizer interface {
	Summarize(ctx context.Context, lines string) (string, error)
}

// Compactor replaces the pre-one-hour prefix of a conversation log with a
// summary, per spec §4.7.
type Compactor struct {
	summarize Summarizer
}

// NewCompactor builds a Compactor backed by s.
func NewCompactor(s Summarizer) *Compactor {
	return &Compactor{summarize: s}
}

var lineTimestampRE = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?)\]`)

// Compact partitions content into headers/recent/old relative to
// oneHourAgo, and replaces old with a model-produced (or fallback) summary.
// Content whose entries are all newer than the cutoff, or that is empty,
// is returned unchanged, per spec §8.
func (c *Compactor) Compact(ctx context.Context, content string, oneHourAgo time.Time) (string, error) {
	if strings.TrimSpace(content) == "" {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	var headers, recent, old []string

	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			headers = append(headers, l)
		default:
			if ts, ok := parseLineTimestamp(l); ok {
				if ts.Before(oneHourAgo) {
					old = append(old, l)
					continue
				}
			}
			recent = append(recent, l)
		}
	}

	if len(old) == 0 {
		return content, nil
	}

	oldText := strings.Join(old, "\n")
	summary, err := c.summarizeWithFallback(ctx, oldText, len(old))

	var sb strings.Builder
	sb.WriteString(strings.Join(headers, "\n"))
	sb.WriteString("\n\n## Summary of Earlier Conversation\n\n")
	sb.WriteString(summary)
	sb.WriteString("\n\n## Recent Conversation (Last Hour)\n\n")
	sb.WriteString(strings.TrimLeft(strings.Join(recent, "\n"), "\n"))

	return sb.String(), err
}

func (c *Compactor) summarizeWithFallback(ctx context.Context, oldText string, n int) (string, error) {
	if c.summarize == nil {
		return fallbackSummary(n), nil
	}
	summary, err := c.summarize.Summarize(ctx, oldText)
	if err != nil {
		logger.WarnCF("conversation.compactor", "summarization failed, using fallback",
			map[string]any{"error": err.Error(), "lines": n})
		return fallbackSummary(n), nil
	}
	return summary, nil
}

func fallbackSummary(n int) string {
	return fmt.Sprintf("[Previous conversation history compacted - %d lines summarized]", n)
}

// parseLineTimestamp extracts a leading "[ISO-8601]" prefix from a
// CONVERSATION line. Returns ok=false for lines with no timestamp (treated
// as "recent" per spec §4.7).
func parseLineTimestamp(line string) (time.Time, bool) {
	m := lineTimestampRE.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, m[1]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
