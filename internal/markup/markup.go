// Package markup converts Slack mrkdwn to standard Markdown.
//
// The conversion is a fixed-order pipeline: code spans are lifted out
// first and restored verbatim last, so none of the intermediate rewrites
// can touch code content. Plain text with no mrkdwn syntax passes
// through unchanged.
package markup

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Resolver maps a user id to a display name. It must never fail; unknown
// ids come back as themselves.
type Resolver func(id string) string

var (
	fencedRe    = regexp.MustCompile("(?s)```.*?```")
	inlineRe    = regexp.MustCompile("`[^`\n]+`")
	labeledRe   = regexp.MustCompile(`<((?:https?|mailto|ftp)[^>|]*)\|([^>]+)>`)
	bareLinkRe  = regexp.MustCompile(`<((?:https?|mailto|ftp)[^>|]*)>`)
	mentionRe   = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)
	channelRe   = regexp.MustCompile(`<#([A-Z0-9]+)(?:\|([^>]*))?>`)
	broadcastRe = regexp.MustCompile(`<!(here|channel|everyone)(?:\|[^>]*)?>`)
)

// MentionIDs returns all user ids referenced via <@ID> mention syntax.
func MentionIDs(text string) []string {
	var ids []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// protected is mrkdwn text with its code spans replaced by placeholders
// and a restoration table holding the original spans.
type protected struct {
	text  string
	spans []string
}

func protect(raw string) *protected {
	p := &protected{}
	lift := func(s string) string {
		ph := fmt.Sprintf("\x00cm%d\x00", len(p.spans))
		p.spans = append(p.spans, s)
		return ph
	}
	p.text = fencedRe.ReplaceAllStringFunc(raw, lift)
	p.text = inlineRe.ReplaceAllStringFunc(p.text, lift)
	return p
}

func (p *protected) restore() string {
	out := p.text
	for i, span := range p.spans {
		out = strings.Replace(out, fmt.Sprintf("\x00cm%d\x00", i), span, 1)
	}
	return out
}

// Convert translates a mrkdwn message body to Markdown, resolving user
// mentions through resolve.
func Convert(raw string, resolve Resolver) string {
	p := protect(raw)

	// Angle-bracket constructs operate on the wire-escaped text, before
	// entities are decoded.
	p.text = labeledRe.ReplaceAllString(p.text, "[$2]($1)")
	p.text = bareLinkRe.ReplaceAllString(p.text, "$1")
	p.text = mentionRe.ReplaceAllStringFunc(p.text, func(m string) string {
		id := mentionRe.FindStringSubmatch(m)[1]
		return "@" + resolve(id)
	})
	p.text = channelRe.ReplaceAllStringFunc(p.text, func(m string) string {
		sub := channelRe.FindStringSubmatch(m)
		if sub[2] != "" {
			return "#" + sub[2]
		}
		return "#" + sub[1]
	})
	p.text = broadcastRe.ReplaceAllString(p.text, "@$1")

	p.text = rewriteEmphasis(p.text, '*', "**")
	p.text = rewriteEmphasis(p.text, '~', "~~")
	p.text = rewriteEmphasis(p.text, '_', "*")

	p.text = unescapeEntities(p.text)

	return p.restore()
}

// unescapeEntities decodes the three entities the wire format escapes.
// This also turns the "&gt;" blockquote marker back into ">".
func unescapeEntities(s string) string {
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// rewriteEmphasis replaces delim-delimited spans with the Markdown
// delimiter, but only where the span sits at a word boundary: the
// opening delim must follow whitespace, punctuation, or the string edge,
// and the closing delim must precede one. Mid-word delimiters are left
// alone so text like file_name_v2 is not mangled.
func rewriteEmphasis(s string, delim byte, md string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] != delim || !boundaryBefore(s, i) {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := closingDelim(s, i, delim)
		if j < 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteString(md)
		b.WriteString(s[i+1 : j])
		b.WriteString(md)
		i = j + 1
	}
	return b.String()
}

// closingDelim finds the matching closing delimiter for an opener at i,
// or -1 when the span is not a valid single-line emphasis span.
func closingDelim(s string, i int, delim byte) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\n':
			return -1
		case delim:
			if j == i+1 {
				return -1 // empty span
			}
			if isSpaceAt(s, i+1) || isSpaceAt(s, j-1) {
				return -1 // content may not start or end with whitespace
			}
			if !boundaryAfter(s, j) {
				return -1
			}
			return j
		}
	}
	return -1
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isBoundary(r)
}

func boundaryAfter(s string, i int) bool {
	if i+1 >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i+1:])
	return isBoundary(r)
}

func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

func isSpaceAt(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r)
}
