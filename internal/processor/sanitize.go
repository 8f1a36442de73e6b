package processor

import (
	"regexp"
	"strings"
)

var (
	emotePattern      = regexp.MustCompile(`:[A-Za-z0-9_]+:`)
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	specialPattern    = regexp.MustCompile("[<>{}\\[\\]|\\\\^~`]")
)

// sanitizeSpeech strips chat noise so the text reads naturally when spoken:
// emote codes, URLs, whitespace runs, characters that trip the synthesizer,
// and letter spam like "yaaaay". Output is stable under a second pass.
func sanitizeSpeech(text string) string {
	text = emotePattern.ReplaceAllString(text, "")
	text = urlPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	text = specialPattern.ReplaceAllString(text, "")
	text = collapseRepeats(text)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// collapseRepeats shortens any run of four or more identical runes to two.
// Shorter runs pass through untouched. Go's regexp has no backreferences, so
// the scan is explicit.
func collapseRepeats(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		n := j - i
		if n >= 4 {
			n = 2
		}
		for k := 0; k < n; k++ {
			b.WriteRune(runes[i])
		}
		i = j
	}
	return b.String()
}
