// Package delivery sends finalized content to the channel despite an
// unreliable remote API, with duplicate suppression, exclusive reply
// locks, bounded retries, and length-aware splitting.
package delivery

import "strings"

// SplitMessage cuts content into segments of at most maxLen runes.
// Within the trailing window of each segment it prefers to cut at the
// last newline, then at the last space; otherwise it cuts hard at the
// limit. Segments are trimmed of boundary whitespace.
func SplitMessage(content string, maxLen, window int) []string {
	if maxLen <= 0 {
		return []string{content}
	}
	if window <= 0 || window > maxLen {
		window = maxLen
	}
	runes := []rune(content)
	segments := make([]string, 0, 1)
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			if seg := strings.TrimSpace(string(runes)); seg != "" {
				segments = append(segments, seg)
			}
			break
		}
		cut := splitPoint(runes, maxLen, window)
		seg := strings.TrimSpace(string(runes[:cut]))
		if seg != "" {
			segments = append(segments, seg)
		}
		runes = runes[cut:]
	}
	return segments
}

func splitPoint(runes []rune, maxLen, window int) int {
	floor := maxLen - window
	for i := maxLen - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := maxLen - 1; i >= floor; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return maxLen
}
