package delivery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessageShortContentIsSingleSegment(t *testing.T) {
	segments := SplitMessage("hello world", 4500, 500)
	require.Len(t, segments, 1)
	assert.Equal(t, "hello world", segments[0])
}

func TestSplitMessagePrefersNewlineInWindow(t *testing.T) {
	content := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 40)
	segments := SplitMessage(content, 100, 20)
	require.Len(t, segments, 2)
	assert.Equal(t, strings.Repeat("a", 90), segments[0])
	assert.Equal(t, strings.Repeat("b", 40), segments[1])
}

func TestSplitMessageFallsBackToSpace(t *testing.T) {
	content := strings.Repeat("a", 95) + " " + strings.Repeat("b", 40)
	segments := SplitMessage(content, 100, 20)
	require.Len(t, segments, 2)
	assert.Equal(t, strings.Repeat("a", 95), segments[0])
	assert.Equal(t, strings.Repeat("b", 40), segments[1])
}

func TestSplitMessageHardCutWithoutBreakpoint(t *testing.T) {
	content := strings.Repeat("x", 250)
	segments := SplitMessage(content, 100, 20)
	require.Len(t, segments, 3)
	assert.Equal(t, strings.Repeat("x", 100), segments[0])
	assert.Equal(t, strings.Repeat("x", 100), segments[1])
	assert.Equal(t, strings.Repeat("x", 50), segments[2])
}

func TestSplitMessageCountsRunesNotBytes(t *testing.T) {
	// Thai codepoints are three UTF-8 bytes each; 10 runes fit in a
	// 10-rune ceiling even though the byte length is 30.
	content := strings.Repeat("ก", 10)
	segments := SplitMessage(content, 10, 3)
	require.Len(t, segments, 1)
	assert.Equal(t, content, segments[0])

	segments = SplitMessage(strings.Repeat("ก", 15), 10, 3)
	require.Len(t, segments, 2)
	for _, seg := range segments {
		assert.LessOrEqual(t, len([]rune(seg)), 10)
	}
}

func TestSplitMessagePreservesContent(t *testing.T) {
	paragraphs := []string{
		strings.Repeat("alpha beta ", 30),
		strings.Repeat("gamma ", 40),
		strings.Repeat("delta ", 50),
	}
	content := strings.Join(paragraphs, "\n")
	segments := SplitMessage(content, 120, 30)

	var joined []string
	for _, seg := range segments {
		assert.LessOrEqual(t, len([]rune(seg)), 120)
		assert.Equal(t, strings.TrimSpace(seg), seg)
		joined = append(joined, seg)
	}
	// Splitting only removes the whitespace at cut points.
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	assert.Equal(t, normalize(content), normalize(strings.Join(joined, " ")))
}
