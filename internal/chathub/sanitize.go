package chathub

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxSanitizePasses bounds how many layers of entity encoding are unwrapped
// before falling back to dropping every markup character.
const maxSanitizePasses = 4

var markupChars = strings.NewReplacer("<", "", ">", "", "&", "")

// SanitizeText strips all markup from s and returns the remaining text with
// surrounding whitespace trimmed. The contents of script and style elements
// are dropped entirely. Entities are decoded and the result is stripped again
// until it stops changing, so markup hidden behind entities never survives
// and SanitizeText(SanitizeText(s)) == SanitizeText(s).
//
// Tags whose name is not an HTML element and that carry no attributes, such
// as "<y>", are kept as literal text.
func SanitizeText(s string) string {
	out := stripMarkup(s)
	for i := 0; i < maxSanitizePasses; i++ {
		next := stripMarkup(out)
		if next == out {
			return out
		}
		out = next
	}
	return strings.TrimSpace(markupChars.Replace(out))
}

func stripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))

	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(strings.ToValidUTF8(b.String(), ""))
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			raw := string(z.Raw())
			name, hasAttr := z.TagName()
			switch {
			case isRawTextTag(name):
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case skip == 0 && !hasAttr && atom.Lookup(name) == 0:
				b.WriteString(raw)
			}
		}
	}
}

func isRawTextTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
