package fetch

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// DisplayWords is how many words of the title are shown to users.
	DisplayWords = 8
	// maxFileTitleBytes leaves room under the 255-byte name limit for the
	// longest prefix and suffix a title is composed with.
	maxFileTitleBytes = 180
)

var (
	rejectLineRe   = regexp.MustCompile(`(?i)^(WARNING|ERROR|nsig extraction failed)`)
	authorPrefixRe = regexp.MustCompile(`^[^-]+\s*-\s*`)
)

// usableTitleLine reports whether a stdout line from the fetcher can be a
// title rather than a diagnostic.
func usableTitleLine(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && !rejectLineRe.MatchString(line)
}

// CleanTitle decodes HTML entities and, for X/Twitter posts, strips the
// leading "<author> - " segment the fetcher prepends.
func CleanTitle(raw, sourceURL string) string {
	title := strings.TrimSpace(html.UnescapeString(raw))
	if IsXURL(sourceURL) {
		if stripped := strings.TrimSpace(authorPrefixRe.ReplaceAllString(title, "")); stripped != "" {
			title = stripped
		}
	}
	return title
}

// IsXURL reports whether the URL points at x.com or twitter.com.
func IsXURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "mobile.")
	return host == "x.com" || host == "twitter.com"
}

// DisplayTitle returns the first DisplayWords whitespace-separated words.
func DisplayTitle(title string) string {
	words := strings.Fields(title)
	if len(words) > DisplayWords {
		words = words[:DisplayWords]
	}
	return strings.Join(words, " ")
}

// SanitizeFilename removes characters that are illegal in file names on
// common platforms (< > : " / \ | ? *) and control characters, then trims.
func SanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) || isIllegalNameRune(r) {
			continue
		}
		b.WriteRune(r)
	}

	cleaned := truncateBytes(strings.TrimSpace(b.String()), maxFileTitleBytes)
	// Windows rejects names ending in a dot or space.
	return strings.TrimRight(cleaned, ". ")
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for i := range s {
		if _, size := utf8.DecodeRuneInString(s[i:]); i+size > n {
			return s[:i]
		}
	}
	return s[:n]
}

func isIllegalNameRune(r rune) bool {
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		return true
	default:
		return false
	}
}

// SyntheticTitle names a video whose title could not be fetched.
func SyntheticTitle(now time.Time) string {
	return "video_" + now.UTC().Format("20060102150405")
}
