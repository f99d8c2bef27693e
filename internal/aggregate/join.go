// Package aggregate reconstructs logical messages from fragmented,
// out-of-order inbound events: rapid text bursts are coalesced per
// sender, and image/caption pairs are bound regardless of arrival order.
package aggregate

import (
	"strings"
	"unicode"
)

// JoinFragments concatenates fragments pairwise, left to right. Adjacent
// pairs join with no separator when the boundary runes are both Thai
// script (Thai has no inter-word spaces) or when the boundary is a
// hyphenated word split; any other pair joins with a single space.
// A faulty join must never take the buffer down, so any panic falls
// back to a plain newline join.
func JoinFragments(fragments []string) (joined string) {
	defer func() {
		if r := recover(); r != nil {
			joined = strings.Join(fragments, "\n")
		}
	}()
	var b strings.Builder
	for _, frag := range fragments {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(frag)
			continue
		}
		left := lastRune(b.String())
		right := firstRune(frag)
		if !joinsBare(left, right) {
			b.WriteByte(' ')
		}
		b.WriteString(frag)
	}
	return b.String()
}

func joinsBare(left, right rune) bool {
	if isThai(left) && isThai(right) {
		return true
	}
	if left == '-' && isAlnum(right) {
		return true
	}
	if isAlnum(left) && right == '-' {
		return true
	}
	return false
}

func isThai(r rune) bool {
	return unicode.Is(unicode.Thai, r)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}
