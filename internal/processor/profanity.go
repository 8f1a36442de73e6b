package processor

import (
	"regexp"
	"strings"
)

// censorMark replaces a matched word regardless of its length, so the mask
// does not leak how long the word was.
const censorMark = "****"

var censorWords = []string{
	"arse", "arsehole", "asshole", "bastard", "bitch", "bollocks", "bullshit",
	"cock", "cunt", "dick", "dickhead", "douche", "fuck", "fucker", "fucking",
	"motherfucker", "piss", "prick", "pussy", "shit", "shitty", "slut", "twat",
	"wanker", "whore",
}

var censorPattern = buildCensorPattern(censorWords)

func buildCensorPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// maskProfanity replaces wordlist matches with asterisks and leaves everything
// else untouched.
func maskProfanity(text string) string {
	return censorPattern.ReplaceAllString(text, censorMark)
}
