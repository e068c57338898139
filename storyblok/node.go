package storyblok

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Node is one element of a story content tree. It is a closed union of
// Mapping, Sequence and Scalar.
type Node interface {
	// Text flattens the subtree into a single space-joined string.
	Text() string
	node()
}

// Field is a named child of a Mapping.
type Field struct {
	Key   string
	Value Node
}

// Mapping is a JSON object; Fields keep document order.
type Mapping struct {
	Fields []Field
}

// Sequence is a JSON array.
type Sequence struct {
	Items []Node
}

// Scalar is any JSON leaf: string, number, bool or null.
type Scalar struct {
	Value gjson.Result
}

func (Mapping) node()  {}
func (Sequence) node() {}
func (Scalar) node()   {}

// Text starts with the node's own string "text" field and appends the text
// of every nested mapping or sequence, in document order.
func (m Mapping) Text() string {
	var own string
	for _, f := range m.Fields {
		if s, ok := f.Value.(Scalar); ok && f.Key == "text" && s.Value.Type == gjson.String {
			own = s.Value.Str
		}
	}

	var b strings.Builder
	b.WriteString(own)
	for _, f := range m.Fields {
		if !isContainer(f.Value) {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(f.Value.Text())
	}
	return b.String()
}

func (s Sequence) Text() string {
	parts := make([]string, len(s.Items))
	for i, item := range s.Items {
		parts[i] = item.Text()
	}
	return strings.Join(parts, " ")
}

func (Scalar) Text() string { return "" }

func isContainer(n Node) bool {
	switch n.(type) {
	case Mapping, Sequence:
		return true
	}
	return false
}

// ParseNode converts a gjson value into a Node tree. Values that do not
// exist parse as an empty Mapping.
func ParseNode(r gjson.Result) Node {
	switch {
	case !r.Exists():
		return Mapping{}
	case r.IsObject():
		// A repeated key keeps its first position and takes the last value.
		var m Mapping
		index := make(map[string]int)
		r.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if i, ok := index[k]; ok {
				m.Fields[i].Value = ParseNode(value)
				return true
			}
			index[k] = len(m.Fields)
			m.Fields = append(m.Fields, Field{Key: k, Value: ParseNode(value)})
			return true
		})
		return m
	case r.IsArray():
		var s Sequence
		r.ForEach(func(_, value gjson.Result) bool {
			s.Items = append(s.Items, ParseNode(value))
			return true
		})
		return s
	default:
		return Scalar{Value: r}
	}
}
