// Package normalize shapes raw message bodies into model-ready text.
// Both transforms are pure and idempotent on already-clean input.
package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.SkipElementsContent("script", "style")
	return p
}()

// StripHTML removes all markup from a body, dropping script and style
// content entirely, and collapses horizontal whitespace within each
// line. Line structure is preserved so thread boundaries stay on their
// own lines for TruncateThread. Plain-text input passes through.
func StripHTML(body string) string {
	if body == "" {
		return ""
	}
	text := stripPolicy.Sanitize(body)
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// threadBoundary is one ordered rule for spotting the start of quoted
// reply history. Rules are checked top to bottom per line and
// short-circuit on first match.
type threadBoundary struct {
	name  string
	match func(line string) bool
}

var onWrotePattern = regexp.MustCompile(`^On .+,.*wrote:\s*$`)

var threadBoundaries = []threadBoundary{
	{"forwarded-header", func(line string) bool {
		return strings.HasPrefix(line, "From:")
	}},
	{"original-message", func(line string) bool {
		return strings.HasPrefix(line, "-----Original Message-----")
	}},
	{"reply-separator", func(line string) bool {
		return strings.HasPrefix(line, "________________________________")
	}},
	{"on-wrote", func(line string) bool {
		return onWrotePattern.MatchString(line)
	}},
	{"mobile-signature", func(line string) bool {
		return strings.HasPrefix(line, "Sent from my")
	}},
	{"quote-run", func(line string) bool {
		return strings.HasPrefix(line, ">")
	}},
}

// TruncateThread scans a plain-text body from the top and cuts it at the
// first quoted-reply or signature boundary, returning only the lines the
// author actually wrote, trimmed.
func TruncateThread(body string) string {
	if body == "" {
		return ""
	}

	lines := strings.Split(body, "\n")
	kept := lines
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if boundaryAt(trimmed) {
			kept = lines[:i]
			break
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func boundaryAt(line string) bool {
	for _, b := range threadBoundaries {
		if b.match(line) {
			return true
		}
	}
	return false
}

// Clip truncates s to at most n runes, for bounding model input windows.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
