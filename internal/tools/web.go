package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	braveSearchURL  = "https://api.search.brave.com/res/v1/web/search"
	maxFetchBytes   = 2_000_000
	maxFetchContent = 50_000
)

// WebSearchTool queries the Brave search API.
type WebSearchTool struct {
	APIKey string
	Client *http.Client
}

type webSearchArgs struct {
	Query string `json:"query" jsonschema:"description=The search query"`
	Count int    `json:"count,omitempty" jsonschema:"description=Number of results to return (default 5)"`
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web and return a list of results with titles, URLs and snippets."
}

func (t *WebSearchTool) Parameters() json.RawMessage {
	return reflectSchema(webSearchArgs{})
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) string {
	var a webSearchArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	if t.APIKey == "" {
		return "Error: web search is not configured (missing API key)"
	}
	if a.Query == "" {
		return "Error: 'query' parameter is required"
	}
	count := a.Count
	if count <= 0 || count > 10 {
		count = 5
	}

	reqURL := fmt.Sprintf("%s?q=%s&count=%d", braveSearchURL, url.QueryEscape(a.Query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errorf("building search request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.APIKey)

	resp, err := t.client().Do(req)
	if err != nil {
		return errorf("search request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: search returned status %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBytes)).Decode(&payload); err != nil {
		return errorf("decoding search response: %v", err)
	}
	if len(payload.Web.Results) == 0 {
		return "No results found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for: %s\n\n", a.Query)
	for i, r := range payload.Web.Results {
		if i >= count {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&b, "   %s\n", stripTags(r.Description))
		}
	}
	return b.String()
}

func (t *WebSearchTool) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// WebFetchTool downloads a URL and returns its text content.
type WebFetchTool struct {
	Client *http.Client
}

type webFetchArgs struct {
	URL string `json:"url" jsonschema:"description=The URL to fetch"`
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a web page and return its text content."
}

func (t *WebFetchTool) Parameters() json.RawMessage {
	return reflectSchema(webFetchArgs{})
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) string {
	var a webFetchArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	parsed, err := url.Parse(a.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Sprintf("Error: invalid URL: %s", a.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return errorf("building request: %v", err)
	}
	req.Header.Set("User-Agent", "nanobot/0.1")

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return errorf("fetch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return errorf("reading response: %v", err)
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		content = htmlToText(content)
	}
	if len(content) > maxFetchContent {
		content = content[:maxFetchContent] + "\n... (truncated)"
	}
	return content
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

func htmlToText(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "\n")
	s = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(s)
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return blankRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}

func stripTags(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}
