package storyblok

import (
	"fmt"
	"math/rand"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/tidwall/gjson"
)

func storyBody(content string) []byte {
	return []byte(`{"story":{"slug":"home","content":` + content + `}}`)
}

func TestContentText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "text and nested body",
			content: `{"text": "Hello", "body": [{"text": "World"}]}`,
			want:    "Hello World",
		},
		{
			name:    "fields in document order",
			content: `{"component":"page","hero":{"text":"A"},"body":[{"text":"B"},{"text":"C"}],"footer":{"text":"D"}}`,
			want:    " A B C D",
		},
		{
			name:    "own text comes before children",
			content: `{"body":[{"text":"child"}],"text":"parent"}`,
			want:    "parent child",
		},
		{
			name:    "scalars contribute nothing",
			content: `{"text":"x","n":1,"ok":true,"none":null,"title":"ignored"}`,
			want:    "x",
		},
		{
			name:    "non-string text is ignored",
			content: `{"text":42,"body":[{"text":"kept"}]}`,
			want:    " kept",
		},
		{
			name:    "empty children keep their separators",
			content: `{"text":"a","empty":{},"list":[],"b":{"text":"b"}}`,
			want:    "a   b",
		},
		{
			name:    "sequence elements that are scalars",
			content: `{"items":["x",1,{"text":"y"}]}`,
			want:    "   y",
		},
		{
			name:    "richtext document",
			content: `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Rich"},{"type":"text","text":"text"}]}]}`,
			want:    "  Rich text",
		},
		{
			name:    "empty content",
			content: `{}`,
			want:    "",
		},
		{
			name:    "string content",
			content: `"just a string"`,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testboil.FailTestIfDiff(t, ContentText(storyBody(tt.content)), tt.want)
		})
	}
}

func TestExtractTextMissingContent(t *testing.T) {
	for _, raw := range []string{``, `{}`, `{"story":{}}`, `{"story":null}`, `not json`, `[]`} {
		res := &Response{Raw: []byte(raw)}
		if got := ExtractText(res); got != "" {
			t.Errorf("ExtractText(%q) = %q, want empty", raw, got)
		}
	}
	if got := ExtractText(nil); got != "" {
		t.Errorf("ExtractText(nil) = %q", got)
	}
}

func TestExtractTextDeepNesting(t *testing.T) {
	const depth = 2000
	content := strings.Repeat(`{"c":[`, depth) + `{"text":"bottom"}` + strings.Repeat(`]}`, depth)
	got := ContentText(storyBody(content))
	if strings.TrimSpace(got) != "bottom" {
		t.Errorf("unexpected text at depth %d: %q", depth, strings.TrimSpace(got))
	}
}

func TestParseNodeVariants(t *testing.T) {
	n := ParseNode(gjson.Parse(`{"a":[1,{"b":"c"}],"text":"t"}`))
	m, ok := n.(Mapping)
	if !ok {
		t.Fatalf("expected Mapping, got %T", n)
	}
	if len(m.Fields) != 2 || m.Fields[0].Key != "a" || m.Fields[1].Key != "text" {
		t.Fatalf("fields out of order: %+v", m.Fields)
	}
	seq, ok := m.Fields[0].Value.(Sequence)
	if !ok || len(seq.Items) != 2 {
		t.Fatalf("expected a two item Sequence, got %#v", m.Fields[0].Value)
	}
	if _, ok := seq.Items[0].(Scalar); !ok {
		t.Errorf("expected Scalar, got %T", seq.Items[0])
	}
	if _, ok := ParseNode(gjson.Result{}).(Mapping); !ok {
		t.Error("a missing value should parse as an empty Mapping")
	}
}

func TestParseNodeRepeatedKeys(t *testing.T) {
	m, ok := ParseNode(gjson.Parse(`{"x":{"text":"a"},"y":{"text":"c"},"x":{"text":"b"}}`)).(Mapping)
	if !ok {
		t.Fatal("expected Mapping")
	}
	testboil.FailTestIfDiff(t, len(m.Fields), 2)
	testboil.FailTestIfDiff(t, m.Fields[0].Key, "x")
	testboil.FailTestIfDiff(t, m.Text(), " b c")

	got := ContentText(storyBody(`{"text":"first","text":"last"}`))
	testboil.FailTestIfDiff(t, got, "last")
}

func TestHasStory(t *testing.T) {
	testboil.FailTestIfDiff(t, (&Response{Raw: []byte(`{"story":{"content":{}}}`)}).HasStory(), true)
	testboil.FailTestIfDiff(t, (&Response{Raw: []byte(`{"stories":[]}`)}).HasStory(), false)
	var nilRes *Response
	testboil.FailTestIfDiff(t, nilRes.HasStory(), false)
}

// treeBuilder renders a random content tree as JSON, placing each word under
// a "text" key. used records the words in document order.
type treeBuilder struct {
	rng   *rand.Rand
	words []string
	used  []string
	noise bool
}

func (b *treeBuilder) pop() (string, bool) {
	if len(b.words) == 0 {
		return "", false
	}
	w := b.words[0]
	b.words = b.words[1:]
	b.used = append(b.used, w)
	return w, true
}

func (b *treeBuilder) node(depth int) string {
	if depth > 4 || b.rng.Intn(3) == 0 {
		return b.mapping(depth)
	}
	if b.rng.Intn(2) == 0 {
		return b.sequence(depth)
	}
	return b.mapping(depth)
}

func (b *treeBuilder) mapping(depth int) string {
	var fields []string
	if w, ok := b.pop(); ok && b.rng.Intn(4) != 0 {
		fields = append(fields, `"text":`+strconv.Quote(w))
	} else if ok {
		// put it back, this node stays without text
		b.used = b.used[:len(b.used)-1]
		b.words = append([]string{w}, b.words...)
	}
	if b.noise {
		fields = append(fields, `"component":"block"`, `"_uid":`+strconv.Itoa(b.rng.Int()), `"flag":false`)
	}
	if depth < 5 {
		for i, n := 0, b.rng.Intn(3); i < n; i++ {
			fields = append(fields, fmt.Sprintf(`"f%d":%s`, i, b.node(depth+1)))
		}
	}
	return "{" + strings.Join(fields, ",") + "}"
}

func (b *treeBuilder) sequence(depth int) string {
	var items []string
	for i, n := 0, b.rng.Intn(4); i < n; i++ {
		items = append(items, b.node(depth+1))
	}
	if b.noise {
		items = append(items, `7`, `null`)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func (b *treeBuilder) build() string {
	root := b.mapping(0)
	// leftovers go into a trailing sequence so every word is placed
	var rest []string
	for {
		w, ok := b.pop()
		if !ok {
			break
		}
		rest = append(rest, `{"text":`+strconv.Quote(w)+`}`)
	}
	if len(rest) == 0 {
		return root
	}
	return `[` + root + `,` + strings.Join(rest, ",") + `]`
}

func TestExtractTextProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("text leaves come back in document order", prop.ForAll(
		func(words []string, seed int64, noise bool) bool {
			b := &treeBuilder{rng: rand.New(rand.NewSource(seed)), words: words, noise: noise}
			content := b.build()
			got := strings.Fields(ContentText(storyBody(content)))
			if len(got) == 0 && len(b.used) == 0 {
				return true
			}
			return reflect.DeepEqual(got, b.used)
		},
		gen.SliceOf(gen.Identifier()),
		gen.Int64(),
		gen.Bool(),
	))

	properties.Property("trees without text reduce to whitespace", prop.ForAll(
		func(seed int64) bool {
			b := &treeBuilder{rng: rand.New(rand.NewSource(seed)), noise: true}
			return strings.TrimSpace(ContentText(storyBody(b.build()))) == ""
		},
		gen.Int64(),
	))

	properties.Property("extraction is deterministic", prop.ForAll(
		func(words []string, seed int64) bool {
			b := &treeBuilder{rng: rand.New(rand.NewSource(seed)), words: words}
			raw := storyBody(b.build())
			return ContentText(raw) == ContentText(raw)
		},
		gen.SliceOf(gen.Identifier()),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
