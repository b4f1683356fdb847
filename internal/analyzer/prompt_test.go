package analyzer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunesKeepsValidUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "ab", truncateRunes("abcd", 2))

	// A multi-byte rune straddling the cut must be dropped whole.
	text := strings.Repeat("a", 9) + "é" // é is 2 bytes, starting at offset 9
	got := truncateRunes(text, 10)
	assert.Equal(t, strings.Repeat("a", 9), got)
	assert.True(t, utf8.ValidString(got))
}

func TestBuildPromptTruncatesLongText(t *testing.T) {
	long := strings.Repeat("word ", maxPromptChars)
	prompt := buildPrompt(long)
	assert.True(t, utf8.ValidString(prompt))
	assert.Less(t, len(prompt), len(long))
	assert.Contains(t, prompt, "two or three sentence summary")
}
