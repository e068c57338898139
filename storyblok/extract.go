package storyblok

import "github.com/tidwall/gjson"

// ExtractText flattens the story.content tree of a fetch-story response into
// plain text. A missing tree yields "". Spacing is not normalized, so nested
// nodes without text can leave double or leading spaces.
func ExtractText(r *Response) string {
	if r == nil {
		return ""
	}
	return ContentText(r.Raw)
}

// ContentText is ExtractText over a raw fetch-story body.
func ContentText(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	return ParseNode(gjson.GetBytes(raw, "story.content")).Text()
}
