package markup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testResolver(id string) string {
	names := map[string]string{
		"U111AAA": "alice",
		"U222BBB": "bob",
	}
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text passes through",
			in:   "just a normal sentence with no markup at all.",
			want: "just a normal sentence with no markup at all.",
		},
		{
			name: "labeled link",
			in:   "see <https://example.com/doc|the doc> for details",
			want: "see [the doc](https://example.com/doc) for details",
		},
		{
			name: "bare link unwrapped",
			in:   "see <https://example.com/doc>",
			want: "see https://example.com/doc",
		},
		{
			name: "user mention resolved",
			in:   "ping <@U111AAA> about this",
			want: "ping @alice about this",
		},
		{
			name: "unknown mention keeps id",
			in:   "ping <@U999ZZZ>",
			want: "ping @U999ZZZ",
		},
		{
			name: "channel reference with label",
			in:   "posted in <#C0GENERAL|general>",
			want: "posted in #general",
		},
		{
			name: "channel reference without label",
			in:   "posted in <#C0GENERAL>",
			want: "posted in #C0GENERAL",
		},
		{
			name: "broadcast tokens",
			in:   "<!here> and <!channel> and <!everyone|everyone>",
			want: "@here and @channel and @everyone",
		},
		{
			name: "bold",
			in:   "this is *important* stuff",
			want: "this is **important** stuff",
		},
		{
			name: "italic",
			in:   "this is _emphasised_ stuff",
			want: "this is *emphasised* stuff",
		},
		{
			name: "strikethrough",
			in:   "this is ~wrong~ stuff",
			want: "this is ~~wrong~~ stuff",
		},
		{
			name: "mid-word delimiters untouched",
			in:   "file_name_v2 and 2*3*4",
			want: "file_name_v2 and 2*3*4",
		},
		{
			name: "emphasis at punctuation boundary",
			in:   "(*bold*) and *strong*!",
			want: "(**bold**) and **strong**!",
		},
		{
			name: "emphasis does not span lines",
			in:   "a *b\nc* d",
			want: "a *b\nc* d",
		},
		{
			name: "blockquote marker unescaped",
			in:   "&gt; quoted line",
			want: "> quoted line",
		},
		{
			name: "entities unescaped",
			in:   "a &amp; b &lt; c",
			want: "a & b < c",
		},
		{
			name: "inline code protected",
			in:   "use `*not bold*` but *bold* here",
			want: "use `*not bold*` but **bold** here",
		},
		{
			name: "fenced code protected",
			in:   "```\n*stay* <@U111AAA> &amp;\n```\nand *bold*",
			want: "```\n*stay* <@U111AAA> &amp;\n```\nand **bold**",
		},
		{
			name: "mention inside code untouched",
			in:   "`<@U111AAA>` vs <@U111AAA>",
			want: "`<@U111AAA>` vs @alice",
		},
		{
			name: "mixed message",
			in:   "*update*: <@U222BBB> shipped <https://ex.com/r/1|release one>",
			want: "**update**: @bob shipped [release one](https://ex.com/r/1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Convert(tt.in, testResolver)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Convert mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMentionIDs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "none",
			in:   "no mentions here",
			want: nil,
		},
		{
			name: "several",
			in:   "<@U111AAA> and <@U222BBB|bob> again <@U111AAA>",
			want: []string{"U111AAA", "U222BBB", "U111AAA"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MentionIDs(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MentionIDs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
