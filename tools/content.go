package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m4xw311/storyblok-agent/config"
	"github.com/m4xw311/storyblok-agent/errors"
	"github.com/m4xw311/storyblok-agent/storyblok"
)

// StoryNotFound is returned by extract_story_text when the response carries no story.
const StoryNotFound = "Story not found"

// ContentSource is the read-only content API the tools call.
// *storyblok.Client implements it.
type ContentSource interface {
	GetStory(ctx context.Context, slug string) (*storyblok.Response, error)
	ListStories(ctx context.Context, prefix string) (*storyblok.Response, error)
	SearchStories(ctx context.Context, term string) (*storyblok.Response, error)
	FilterStories(ctx context.Context, field, value string) (*storyblok.Response, error)
	GetLinks(ctx context.Context) (*storyblok.Response, error)
	GetTags(ctx context.Context) (*storyblok.Response, error)
}

// render turns an API result into the text handed to the model: the JSON
// payload, or the error-as-data mapping for transport and decode failures.
func render(res *storyblok.Response, err error) (string, error) {
	var apiErr *storyblok.APIError
	if errors.As(err, &apiErr) {
		b, mErr := json.Marshal(apiErr.Result())
		if mErr != nil {
			return "", errors.Wrapf(mErr, "failed to encode error result")
		}
		return string(b), nil
	}
	if err != nil {
		return "", err
	}
	return string(res.Raw), nil
}

func requiredString(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok {
		return "", errors.New("missing or invalid '%s' argument", name)
	}
	return v, nil
}

func optionalString(args map[string]interface{}, name string) (string, error) {
	raw, present := args[name]
	if !present || raw == nil {
		return "", nil
	}
	v, ok := raw.(string)
	if !ok {
		return "", errors.New("invalid '%s' argument, expected a string", name)
	}
	return v, nil
}

func readableSlug(args map[string]interface{}, access *config.ContentAccess) (string, error) {
	slug, err := requiredString(args, "slug")
	if err != nil {
		return "", err
	}
	slug = strings.Trim(slug, "/")
	if slug == "" {
		return "", errors.New("'slug' must not be empty")
	}
	if access == nil {
		return slug, nil
	}
	hidden, err := isSlugHidden(slug, access.Hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return "", errors.New("access denied: story '%s' is hidden", slug)
	}
	return slug, nil
}

var slugParam = Param{Name: "slug", Type: "string", Description: "Full slug of the story, e.g. 'blog/my-first-post'.", Required: true}

// GetStoryTool fetches a complete story.
type GetStoryTool struct {
	content ContentSource
	access  *config.ContentAccess
}

func (t *GetStoryTool) Name() string { return "get_story" }
func (t *GetStoryTool) Description() string {
	return "Fetches a complete Storyblok story, with all fields and components, by its slug. " +
		"Use it when the user references a specific page, slug or story."
}
func (t *GetStoryTool) Parameters() []Param { return []Param{slugParam} }

func (t *GetStoryTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	slug, err := readableSlug(args, t.access)
	if err != nil {
		return "", err
	}
	return render(t.content.GetStory(ctx, slug))
}

// ListStoriesTool lists stories, optionally below a folder.
type ListStoriesTool struct {
	content ContentSource
}

func (t *ListStoriesTool) Name() string { return "list_stories" }
func (t *ListStoriesTool) Description() string {
	return "Lists stories of the space, optionally only those whose slug starts with a folder prefix. " +
		"Use it for overviews such as 'all stories' or 'stories in the blog folder'."
}
func (t *ListStoriesTool) Parameters() []Param {
	return []Param{{Name: "prefix", Type: "string", Description: "Optional folder prefix, e.g. 'blog/'."}}
}

func (t *ListStoriesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	prefix, err := optionalString(args, "prefix")
	if err != nil {
		return "", err
	}
	return render(t.content.ListStories(ctx, prefix))
}

// SearchStoriesTool runs a full-text search.
type SearchStoriesTool struct {
	content ContentSource
}

func (t *SearchStoriesTool) Name() string { return "search_stories" }
func (t *SearchStoriesTool) Description() string {
	return "Full-text search across all stories. Use it when the user mentions a keyword, phrase or topic."
}
func (t *SearchStoriesTool) Parameters() []Param {
	return []Param{{Name: "term", Type: "string", Description: "Search term.", Required: true}}
}

func (t *SearchStoriesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	term, err := requiredString(args, "term")
	if err != nil {
		return "", err
	}
	return render(t.content.SearchStories(ctx, term))
}

// FilterStoriesTool filters stories on a content field.
type FilterStoriesTool struct {
	content ContentSource
}

func (t *FilterStoriesTool) Name() string { return "filter_stories" }
func (t *FilterStoriesTool) Description() string {
	return "Returns stories whose content field has the given value, e.g. field 'component' value 'article' " +
		"or field 'category' value 'news'. Several values can be given comma separated."
}
func (t *FilterStoriesTool) Parameters() []Param {
	return []Param{
		{Name: "field", Type: "string", Description: "Content field name.", Required: true},
		{Name: "value", Type: "string", Description: "Value the field must have.", Required: true},
	}
}

func (t *FilterStoriesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	field, err := requiredString(args, "field")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(field) == "" {
		return "", errors.New("'field' must not be empty")
	}
	value, err := requiredString(args, "value")
	if err != nil {
		return "", err
	}
	return render(t.content.FilterStories(ctx, field, value))
}

// GetLinksTool returns the navigation hierarchy.
type GetLinksTool struct {
	content ContentSource
}

func (t *GetLinksTool) Name() string { return "get_links" }
func (t *GetLinksTool) Description() string {
	return "Retrieves the link tree of the space. Use it for navigation structure or site hierarchy questions."
}
func (t *GetLinksTool) Parameters() []Param { return nil }

func (t *GetLinksTool) Execute(ctx context.Context, _ map[string]interface{}) (string, error) {
	return render(t.content.GetLinks(ctx))
}

// GetTagsTool returns every tag.
type GetTagsTool struct {
	content ContentSource
}

func (t *GetTagsTool) Name() string { return "get_tags" }
func (t *GetTagsTool) Description() string {
	return "Retrieves all tags of the space. Use it for questions about categories, tagging or organization."
}
func (t *GetTagsTool) Parameters() []Param { return nil }

func (t *GetTagsTool) Execute(ctx context.Context, _ map[string]interface{}) (string, error) {
	return render(t.content.GetTags(ctx))
}

// ExtractStoryTextTool returns the human-readable text of a story.
type ExtractStoryTextTool struct {
	content ContentSource
	access  *config.ContentAccess
	extract func(*storyblok.Response) string
}

func NewExtractStoryTextTool(content ContentSource, access *config.ContentAccess) *ExtractStoryTextTool {
	return &ExtractStoryTextTool{content: content, access: access, extract: storyblok.ExtractText}
}

func (t *ExtractStoryTextTool) Name() string { return "extract_story_text" }
func (t *ExtractStoryTextTool) Description() string {
	return "Returns the plain text of a story's content, flattened from all components and rich text. " +
		"Use it to summarize, explain, review or answer questions about a story."
}
func (t *ExtractStoryTextTool) Parameters() []Param { return []Param{slugParam} }

func (t *ExtractStoryTextTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	slug, err := readableSlug(args, t.access)
	if err != nil {
		return "", err
	}
	res, err := t.content.GetStory(ctx, slug)
	var apiErr *storyblok.APIError
	if errors.As(err, &apiErr) {
		return StoryNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if !res.HasStory() {
		return StoryNotFound, nil
	}
	return t.extract(res), nil
}
