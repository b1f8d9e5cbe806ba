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

	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/memory"
)

// registerWebSearchTool wires web_search. When braveAPIKey is non-empty the
// Brave Search API is used (spec §8: "web_search ... with a key takes the
// Brave path"); otherwise it falls back to DuckDuckGo's HTML lite endpoint,
// the teacher's browser tool approach for search_web. Grounded on
// original_source's builtins/web.rs, which resolves the same
// key-present/key-absent branch.
func registerWebSearchTool(r *Registry, userAgent, braveAPIKey string, timeout time.Duration) {
	if userAgent == "" {
		userAgent = "Aigent/1.0 (+https://github.com/aigent/aigent)"
	}
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	r.RegisterNative(memory.ToolSpec{
		Name:        "web_search",
		Description: "Search the web (Brave API when configured, DuckDuckGo otherwise).",
		Params: []memory.ToolParam{
			{Name: "query", Required: true, Description: "Search query."},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return "", fmt.Errorf("query is required")
		}
		logger.Debug("web_search", "query", query)

		if braveAPIKey != "" {
			return searchBrave(ctx, client, userAgent, braveAPIKey, query)
		}
		return searchDuckDuckGo(ctx, client, userAgent, query)
	})
}

func searchDuckDuckGo(ctx context.Context, client *http.Client, userAgent, query string) (string, error) {
	searchURL := fmt.Sprintf("https://lite.duckduckgo.com/lite/?q=%s", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return extractSearchResults(string(body)), nil
}

type braveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func searchBrave(ctx context.Context, client *http.Client, userAgent, apiKey, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.search.brave.com/res/v1/web/search", nil)
	if err != nil {
		return "", err
	}
	req.URL.RawQuery = url.Values{"q": {query}, "count": {"10"}}.Encode()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("brave search failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("brave search API error %d: %s", resp.StatusCode, string(body))
	}

	var parsed braveSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse brave response: %w", err)
	}

	var results []string
	for _, item := range parsed.Web.Results {
		if item.Title == "" {
			continue
		}
		results = append(results, fmt.Sprintf("**%s**\n%s\n%s", item.Title, item.URL, item.Description))
		if len(results) >= 10 {
			break
		}
	}
	if len(results) == 0 {
		return "No results found.", nil
	}
	return strings.Join(results, "\n\n"), nil
}

var (
	searchResultLinkRe    = regexp.MustCompile(`(?is)<a[^>]+class="[^"]*result-link[^"]*"[^>]*href="([^"]+)"[^>]*>([^<]+)</a>`)
	searchResultSnippetRe = regexp.MustCompile(`(?is)<td[^>]*class="[^"]*result-snippet[^"]*"[^>]*>([^<]+)</td>`)
)

// extractSearchResults parses DuckDuckGo lite's result markup.
func extractSearchResults(html string) string {
	var results []string

	links := searchResultLinkRe.FindAllStringSubmatch(html, -1)
	snippets := searchResultSnippetRe.FindAllStringSubmatch(html, -1)

	for i, m := range links {
		if len(m) < 3 {
			continue
		}
		href := strings.TrimSpace(m[1])
		title := strings.TrimSpace(m[2])
		result := fmt.Sprintf("**%s**\n%s", title, href)
		if i < len(snippets) && len(snippets[i]) > 1 {
			result += "\n" + strings.TrimSpace(snippets[i][1])
		}
		results = append(results, result)
		if len(results) >= 10 {
			break
		}
	}

	if len(results) == 0 {
		return "No results found."
	}
	return strings.Join(results, "\n\n")
}
