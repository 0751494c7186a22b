// Package note builds and rewrites persisted note content.
//
// Every rendered message entry starts with a hidden identity marker, an
// HTML comment carrying the message timestamp. The marker is what makes
// repeated syncs idempotent: it is checked before appending and used to
// locate an entry when its thread is retrofitted later.
package note

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"chatmirror/internal/model"
)

const threadHeading = "### Thread"

var markerRe = regexp.MustCompile(`<!--ts:[0-9]+\.[0-9]+-->`)

// Marker returns the identity marker for a message timestamp.
func Marker(ts string) string {
	return fmt.Sprintf("<!--ts:%s-->", ts)
}

// HasMarker reports whether content already incorporates the message.
func HasMarker(content, ts string) bool {
	return strings.Contains(content, Marker(ts))
}

// Entry is one renderable message: header and body are already templated
// and markup-converted.
type Entry struct {
	Ts     string
	Author string
	Header string
	Body   string
	Thread string
}

// ThreadReply is one reply used to render a thread section.
type ThreadReply struct {
	Ts     string
	Author string
	Body   string
}

// RenderThread renders a thread section from replies. Returns "" for an
// empty reply set.
func RenderThread(replies []ThreadReply) string {
	if len(replies) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(threadHeading)
	b.WriteString("\n")
	for _, r := range replies {
		when := model.TsTime(r.Ts).Format("15:04")
		body := strings.ReplaceAll(strings.TrimRight(r.Body, "\n"), "\n", "\n    ")
		fmt.Fprintf(&b, "\n- **%s** (%s): %s", r.Author, when, body)
	}
	return b.String()
}

// entryBlock renders one entry: marker line, header, body, and an
// optional thread section.
func entryBlock(e Entry) string {
	var b strings.Builder
	b.WriteString(Marker(e.Ts))
	b.WriteString("\n")
	if e.Header != "" {
		b.WriteString(e.Header)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimRight(e.Body, "\n"))
	if e.Thread != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Thread)
	}
	b.WriteString("\n")
	return b.String()
}

// BuildIndividual renders a complete single-message note.
func BuildIndividual(frontmatter string, e Entry) string {
	return frontmatter + "\n" + entryBlock(e)
}

// BuildGrouped renders a new grouped note containing its first entry.
func BuildGrouped(frontmatter string, e Entry) string {
	return frontmatter + "\n" + entryBlock(e)
}

// AppendEntry adds an entry to existing grouped-note content. If the
// entry's marker is already present the content comes back unchanged and
// appended is false. Otherwise the contributing author is merged into
// the frontmatter author set and the entry block is appended.
func AppendEntry(existing string, e Entry) (content string, appended bool) {
	if HasMarker(existing, e.Ts) {
		return existing, false
	}
	out := MergeAuthor(existing, e.Author)
	out = strings.TrimRight(out, "\n") + "\n\n" + entryBlock(e)
	return out, true
}

// RetrofitThread replaces or appends the thread section of the entry
// identified by rootTs. An existing section is replaced wholesale; a
// missing one is appended at the end of the entry's scope, before the
// next entry's marker. found is false when no marker for rootTs exists.
func RetrofitThread(existing, rootTs, section string) (content string, found bool) {
	idx := strings.Index(existing, Marker(rootTs))
	if idx < 0 {
		return "", false
	}

	scopeEnd := len(existing)
	rest := existing[idx+len(Marker(rootTs)):]
	if m := markerRe.FindStringIndex(rest); m != nil {
		scopeEnd = idx + len(Marker(rootTs)) + m[0]
	}

	scope := existing[idx:scopeEnd]
	if i := strings.Index(scope, "\n"+threadHeading); i >= 0 {
		scope = scope[:i]
	}
	scope = strings.TrimRight(scope, "\n")
	if section != "" {
		scope += "\n\n" + section
	}

	if scopeEnd == len(existing) {
		return existing[:idx] + scope + "\n", true
	}
	return existing[:idx] + scope + "\n\n" + existing[scopeEnd:], true
}

// MergeAuthor grows the frontmatter author set with a contributing
// author. A scalar author field is promoted to an authors list the
// moment a second distinct author appears; the list keeps first-seen
// order and never shrinks. Content with missing or unparseable
// frontmatter is returned unchanged so the caller can still append
// naively.
func MergeAuthor(content, author string) string {
	front, body, ok := splitFrontmatter(content)
	if !ok {
		return content
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(front), &doc); err != nil {
		return content
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return content
	}

	mapping := doc.Content[0]
	changed := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, val := mapping.Content[i], mapping.Content[i+1]
		switch key.Value {
		case "authors":
			if val.Kind != yaml.SequenceNode {
				return content
			}
			for _, item := range val.Content {
				if item.Value == author {
					return content
				}
			}
			val.Content = append(val.Content, scalarNode(author))
			val.Style = yaml.FlowStyle
			changed = true
		case "author":
			if val.Kind != yaml.ScalarNode || val.Value == author {
				return content
			}
			key.Value = "authors"
			mapping.Content[i+1] = &yaml.Node{
				Kind:    yaml.SequenceNode,
				Style:   yaml.FlowStyle,
				Content: []*yaml.Node{scalarNode(val.Value), scalarNode(author)},
			}
			changed = true
		}
		if changed {
			break
		}
	}
	if !changed {
		return content
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return content
	}
	return "---\n" + string(out) + "---\n" + body
}

// splitFrontmatter separates a leading YAML frontmatter block from the
// note body. ok is false when no well-formed block is present.
func splitFrontmatter(content string) (front, body string, ok bool) {
	if !strings.HasPrefix(content, "---\n") {
		return "", "", false
	}
	end := strings.Index(content[4:], "\n---\n")
	if end < 0 {
		return "", "", false
	}
	return content[4 : 4+end+1], content[4+end+5:], true
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}
