package shell

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// decode converts tool output to a string, dropping byte sequences that are
// not valid UTF-8. Tools print whatever the remote side sends them, so
// malformed output must never fail a step.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	t := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	)
	s, _, err := transform.Bytes(t, b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return string(s)
}
