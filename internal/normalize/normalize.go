// Package normalize cleans raw diary text before it is scored or embedded.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxRepeats = 2

var urlPattern = regexp.MustCompile(`https?://(www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_+.~#?&/=]*)`)

// extra punctuation kept besides ASCII.
const keepPunct = "％·∼"

// Normalize strips characters outside the Korean/ASCII allow-list, emoji and
// URLs, then collapses elongated characters ("좋아아아아" -> "좋아아") and
// whitespace runs. All-noise input yields "".
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = replaceDisallowed(text)
	text = stripEmoji(text)
	// collapsing "htttp://" yields a URL, and removing a URL can join repeat
	// runs, so repeat until the text is stable.
	for {
		prev := text
		text = urlPattern.ReplaceAllString(text, "")
		text = collapseRepeats(text, maxRepeats)
		text = strings.Join(strings.Fields(text), " ")
		if text == prev {
			return text
		}
	}
}

// NormalizeAll normalizes every sentence and drops the ones left empty.
func NormalizeAll(sentences []string) []string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if n := Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func allowed(r rune) bool {
	switch {
	case r <= 0x7F:
		return true
	case r >= 'ㄱ' && r <= 'ㅣ':
		return true
	case r >= '가' && r <= '힣':
		return true
	case strings.ContainsRune(keepPunct, r):
		return true
	}
	return isEmoji(r)
}

// replaceDisallowed turns every run of disallowed runes into a single space.
func replaceDisallowed(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if allowed(r) {
			b.WriteRune(r)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte(' ')
			inRun = true
		}
	}
	return b.String()
}

func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)
}

var emojiRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00a9, Stride: 1},
		{Lo: 0x00ae, Hi: 0x00ae, Stride: 1},
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x23ff, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3299, Stride: 1},
		{Lo: 0xfe0e, Hi: 0xfe0f, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
		{Lo: 0xe0020, Hi: 0xe007f, Stride: 1},
	},
}

func isEmoji(r rune) bool {
	return unicode.Is(emojiRanges, r)
}

// collapseRepeats shortens every run of one rune longer than n to exactly n.
func collapseRepeats(s string, n int) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		prev = r
		if run <= n {
			b.WriteRune(r)
		}
	}
	return b.String()
}
