package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinFragments(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      string
	}{
		{name: "empty", fragments: nil, want: ""},
		{name: "single", fragments: []string{"hello"}, want: "hello"},
		{name: "thai joins bare", fragments: []string{"สวัสดี", "ครับ"}, want: "สวัสดีครับ"},
		{name: "thai three way", fragments: []string{"ขอ", "ราคา", "หน่อย"}, want: "ขอราคาหน่อย"},
		{name: "latin words spaced", fragments: []string{"Hello", "world"}, want: "Hello world"},
		{name: "hyphen continuation", fragments: []string{"ten-", "fold"}, want: "ten-fold"},
		{name: "hyphen on right", fragments: []string{"well", "-known"}, want: "well-known"},
		{name: "thai then latin spaced", fragments: []string{"ราคา", "500"}, want: "ราคา 500"},
		{name: "punctuation boundary spaced", fragments: []string{"ok.", "next"}, want: "ok. next"},
		{name: "blank fragments skipped", fragments: []string{"a", "  ", "b"}, want: "a b"},
		{name: "surrounding space trimmed", fragments: []string{" สวัสดี ", " ครับ "}, want: "สวัสดีครับ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinFragments(tt.fragments))
		})
	}
}
