// Package tmpl renders user-configurable naming and formatting templates.
//
// Templates are plain strings with {name} placeholders. Literal text
// passes through unchanged and unrecognized placeholders are kept as-is,
// so a typo never breaks rendering.
package tmpl

import (
	"regexp"
	"strings"
	"unicode"

	"chatmirror/internal/model"
)

// maxFilenameLen bounds sanitized file name length.
const maxFilenameLen = 120

var placeholderRe = regexp.MustCompile(`\{[a-zA-Z]+\}`)

// Vars holds the values substituted into templates.
type Vars map[string]string

// NewVars builds the standard variable set for a message.
func NewVars(ts, channelName, userName string) Vars {
	t := model.TsTime(ts)
	return Vars{
		"date":        t.Format("2006-01-02"),
		"datecompact": t.Format("20060102"),
		"time":        t.Format("15:04"),
		"timecompact": t.Format("150405"),
		"datetime":    t.Format("2006-01-02 15:04"),
		"ts":          ts,
		"channelName": channelName,
		"userName":    userName,
	}
}

// WithText returns a copy of the variable set with {text} bound; only
// the entry header template sees it.
func (v Vars) WithText(text string) Vars {
	out := make(Vars, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	out["text"] = text
	return out
}

// Render substitutes placeholders in template from vars.
func Render(template string, vars Vars) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(ph string) string {
		if val, ok := vars[ph[1:len(ph)-1]]; ok {
			return val
		}
		return ph
	})
}

// SanitizeFilename makes a string safe to use as a single file or folder
// name: file-name-unsafe characters, control characters, and whitespace
// runs collapse to a single underscore, leading/trailing underscores are
// trimmed, and the result is truncated to a bounded length.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastUnderscore := false
	for _, r := range name {
		if unsafeFilenameRune(r) {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > maxFilenameLen {
		out = strings.Trim(out[:maxFilenameLen], "_")
	}
	return out
}

// SanitizePath sanitizes each slash-separated segment of a rendered
// folder path, dropping segments that sanitize to nothing.
func SanitizePath(p string) string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if s := SanitizeFilename(seg); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

func unsafeFilenameRune(r rune) bool {
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		return true
	}
	return r < 0x20 || r == 0x7f || unicode.IsSpace(r)
}
