package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/m4xw311/storyblok-agent/config"
	"github.com/m4xw311/storyblok-agent/errors"
	"github.com/m4xw311/storyblok-agent/storyblok"
)

// fakeContent answers every call with the same response and records the
// last arguments it saw.
type fakeContent struct {
	res   *storyblok.Response
	err   error
	calls []string
	args  []string
}

func (f *fakeContent) record(call string, args ...string) (*storyblok.Response, error) {
	f.calls = append(f.calls, call)
	f.args = args
	return f.res, f.err
}

func (f *fakeContent) GetStory(_ context.Context, slug string) (*storyblok.Response, error) {
	return f.record("GetStory", slug)
}
func (f *fakeContent) ListStories(_ context.Context, prefix string) (*storyblok.Response, error) {
	return f.record("ListStories", prefix)
}
func (f *fakeContent) SearchStories(_ context.Context, term string) (*storyblok.Response, error) {
	return f.record("SearchStories", term)
}
func (f *fakeContent) FilterStories(_ context.Context, field, value string) (*storyblok.Response, error) {
	return f.record("FilterStories", field, value)
}
func (f *fakeContent) GetLinks(_ context.Context) (*storyblok.Response, error) {
	return f.record("GetLinks")
}
func (f *fakeContent) GetTags(_ context.Context) (*storyblok.Response, error) {
	return f.record("GetTags")
}

func ok(body string) *storyblok.Response {
	return &storyblok.Response{Status: http.StatusOK, Raw: []byte(body)}
}

func status(code int) *int { return &code }

func newRegistry(content ContentSource) *ToolRegistry {
	cfg := config.Default()
	cfg.ContentAccess.Hidden = []string{"internal/**"}
	return NewToolRegistry(cfg, content)
}

func execute(t *testing.T, r *ToolRegistry, name string, args map[string]interface{}) (string, error) {
	t.Helper()
	tool, found := r.GetTool(name)
	if !found {
		t.Fatalf("tool %q not registered", name)
	}
	return tool.Execute(context.Background(), args)
}

func TestRegistryRegistersContentTools(t *testing.T) {
	r := newRegistry(&fakeContent{})
	var names []string
	for _, tool := range r.All() {
		names = append(names, tool.Name())
	}
	want := []string{"get_story", "list_stories", "search_stories", "filter_stories", "get_links", "get_tags", "extract_story_text"}
	testboil.FailTestIfDiff(t, len(names), len(want))
	for i := range want {
		testboil.FailTestIfDiff(t, names[i], want[i])
	}
}

func TestGetActiveTools(t *testing.T) {
	r := newRegistry(&fakeContent{})

	tests := []struct {
		name    string
		tools   []string
		want    []string
		wantErr bool
	}{
		{name: "everything", tools: []string{"*"}, want: []string{"get_story", "list_stories", "search_stories", "filter_stories", "get_links", "get_tags", "extract_story_text"}},
		{name: "pattern", tools: []string{"get_*"}, want: []string{"get_story", "get_links", "get_tags"}},
		{name: "exact and duplicate", tools: []string{"get_tags", "get_*"}, want: []string{"get_tags", "get_story", "get_links"}},
		{name: "unknown", tools: []string{"write_story"}, wantErr: true},
		{name: "invalid pattern", tools: []string{"get_[story"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, err := r.GetActiveTools(&config.Toolset{Name: "test", Tools: tt.tools})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("GetActiveTools: %v", err)
			}
			testboil.FailTestIfDiff(t, len(active), len(tt.want))
			for i := range tt.want {
				testboil.FailTestIfDiff(t, active[i].Name(), tt.want[i])
			}
		})
	}
}

func TestGetStoryReturnsPayload(t *testing.T) {
	body := `{"story":{"slug":"home","content":{"text":"Hi"}}}`
	content := &fakeContent{res: ok(body)}
	r := newRegistry(content)

	out, err := execute(t, r, "get_story", map[string]interface{}{"slug": "/home/"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	testboil.FailTestIfDiff(t, out, body)
	testboil.FailTestIfDiff(t, content.args[0], "home")
}

func TestErrorResultsBecomeData(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus any
		wantBody   bool
	}{
		{
			name:       "http status",
			err:        &storyblok.APIError{Kind: storyblok.KindTransport, Status: status(404), Message: "404 Client Error: Not Found"},
			wantStatus: float64(404),
		},
		{
			name:       "no response",
			err:        &storyblok.APIError{Kind: storyblok.KindTransport, Message: "dial tcp: connection refused"},
			wantStatus: nil,
		},
		{
			name:       "invalid json",
			err:        &storyblok.APIError{Kind: storyblok.KindDecode, Status: status(200), Message: "Invalid JSON response from Storyblok", Body: "<html>"},
			wantStatus: float64(200),
			wantBody:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(&fakeContent{err: tt.err})
			out, err := execute(t, r, "search_stories", map[string]interface{}{"term": "pricing"})
			if err != nil {
				t.Fatalf("API errors must not be Go errors at the tool boundary: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %q", out)
			}
			if got["error"] != true {
				t.Errorf("error flag missing: %v", got)
			}
			if got["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %v", got["status"], tt.wantStatus)
			}
			if _, hasBody := got["body"]; hasBody != tt.wantBody {
				t.Errorf("body present = %v, want %v", hasBody, tt.wantBody)
			}
		})
	}
}

func TestUnexpectedErrorsPropagate(t *testing.T) {
	r := newRegistry(&fakeContent{err: errors.New("boom")})
	if _, err := execute(t, r, "get_tags", nil); err == nil {
		t.Fatal("expected a Go error for a non-API failure")
	}
}

func TestArgumentValidation(t *testing.T) {
	r := newRegistry(&fakeContent{res: ok(`{}`)})

	tests := []struct {
		tool string
		args map[string]interface{}
	}{
		{"get_story", map[string]interface{}{}},
		{"get_story", map[string]interface{}{"slug": 42}},
		{"get_story", map[string]interface{}{"slug": "/"}},
		{"search_stories", map[string]interface{}{}},
		{"filter_stories", map[string]interface{}{"field": "category"}},
		{"filter_stories", map[string]interface{}{"field": " ", "value": "news"}},
		{"list_stories", map[string]interface{}{"prefix": true}},
		{"extract_story_text", nil},
	}
	for _, tt := range tests {
		if _, err := execute(t, r, tt.tool, tt.args); err == nil {
			t.Errorf("%s(%v): expected an argument error", tt.tool, tt.args)
		}
	}
}

func TestHiddenStories(t *testing.T) {
	content := &fakeContent{res: ok(`{"story":{}}`)}
	r := newRegistry(content)

	for _, name := range []string{"get_story", "extract_story_text"} {
		_, err := execute(t, r, name, map[string]interface{}{"slug": "internal/roadmap"})
		if err == nil {
			t.Fatalf("%s: expected access denied", name)
		}
		testboil.AssertStringContains(t, err.Error(), "access denied")
	}
	testboil.FailTestIfDiff(t, len(content.calls), 0)
}

func TestListAndFilterArguments(t *testing.T) {
	content := &fakeContent{res: ok(`{"stories":[]}`)}
	r := newRegistry(content)

	if _, err := execute(t, r, "list_stories", map[string]interface{}{}); err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, content.args[0], "")

	if _, err := execute(t, r, "list_stories", map[string]interface{}{"prefix": "blog/"}); err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, content.args[0], "blog/")

	if _, err := execute(t, r, "filter_stories", map[string]interface{}{"field": "category", "value": "news"}); err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, content.calls[len(content.calls)-1], "FilterStories")
	testboil.FailTestIfDiff(t, content.args[0], "category")
	testboil.FailTestIfDiff(t, content.args[1], "news")
}

func TestExtractStoryText(t *testing.T) {
	content := &fakeContent{res: ok(`{"story":{"content":{"text":"Hello","body":[{"text":"World"}]}}}`)}
	r := newRegistry(content)

	out, err := execute(t, r, "extract_story_text", map[string]interface{}{"slug": "home"})
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, out, "Hello World")
}

func TestExtractStoryTextNotFound(t *testing.T) {
	tests := []struct {
		name    string
		content *fakeContent
	}{
		{"no story key", &fakeContent{res: ok(`{"stories":[]}`)}},
		{"api error", &fakeContent{err: &storyblok.APIError{Status: status(404), Message: "404 Client Error"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewExtractStoryTextTool(tt.content, nil)
			tool.extract = func(*storyblok.Response) string {
				t.Fatal("extractor must not run without a story")
				return ""
			}
			out, err := tool.Execute(context.Background(), map[string]interface{}{"slug": "missing"})
			if err != nil {
				t.Fatal(err)
			}
			testboil.FailTestIfDiff(t, out, StoryNotFound)
		})
	}
}

func TestToolsAgainstStoryblokClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		testboil.FailTestIfDiff(t, req.URL.Query().Get("filter_query[category][in]"), "news")
		_, _ = w.Write([]byte(`{"stories":[{"slug":"news/launch"}]}`))
	}))
	defer srv.Close()

	client, err := storyblok.NewClient("token", storyblok.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	r := NewToolRegistry(config.Default(), client)

	out, err := execute(t, r, "filter_stories", map[string]interface{}{"field": "category", "value": "news"})
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, out, `{"stories":[{"slug":"news/launch"}]}`)
}
