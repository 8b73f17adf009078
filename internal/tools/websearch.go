package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph/retry"
)

// Snippet is one ranked search hit.
type Snippet struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Searcher finds snippets for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
}

// WebSearch queries an HTML search results page and parses the hits.
// The markup it understands is DuckDuckGo's HTML endpoint: one ".result"
// block per hit with an "a.result__a" link and a ".result__snippet".
type WebSearch struct {
	endpoint string
	client   *http.Client
	policy   retry.Policy
}

// WebSearchOption configures a WebSearch.
type WebSearchOption func(*WebSearch)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) WebSearchOption {
	return func(w *WebSearch) { w.client = c }
}

// WithRetryPolicy sets the retry policy for failed fetches.
func WithRetryPolicy(p retry.Policy) WebSearchOption {
	return func(w *WebSearch) { w.policy = p }
}

// NewWebSearch creates a client for endpoint.
func NewWebSearch(endpoint string, timeout time.Duration, opts ...WebSearchOption) *WebSearch {
	w := &WebSearch{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		policy:   retry.Default,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Search returns at most k snippets for query, best first. k <= 0 means
// no limit.
func (w *WebSearch) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return retry.Do(ctx, w.policy, "web search", func(ctx context.Context) ([]Snippet, error) {
		return w.fetch(ctx, query, k)
	})
}

func (w *WebSearch) fetch(ctx context.Context, query string, k int) ([]Snippet, error) {
	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse endpoint: %w", err), "web search")
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "taskgraph/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &retry.StatusError{Service: "web search", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return ParseResults(resp.Body, k)
}

// ParseResults extracts up to k snippets from a results page.
func ParseResults(r io.Reader, k int) ([]Snippet, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &retry.ParseError{Service: "web search", Message: "read results page", Err: err}
	}

	var out []Snippet
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		title := collapse(link.Text())
		if title == "" {
			return true
		}
		href, _ := link.Attr("href")
		out = append(out, Snippet{
			Title: title,
			URL:   resolveRedirect(href),
			Text:  collapse(s.Find(".result__snippet").Text()),
		})
		return k <= 0 || len(out) < k
	})
	return out, nil
}

// resolveRedirect unwraps DuckDuckGo's "/l/?uddg=<target>" links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		u.Scheme = "https"
		return u.String()
	}
	return href
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatSnippets renders snippets as a numbered list for a prompt.
func FormatSnippets(snippets []Snippet) string {
	var b strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&b, "%d. %s (%s)\n   %s\n", i+1, s.Title, s.URL, s.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
