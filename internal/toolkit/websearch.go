package toolkit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/rs/zerolog"
)

const (
	duckDuckGoEndpoint   = "https://html.duckduckgo.com/html/"
	searchUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	maxSearchBodyBytes   = 1 << 20
	snippetDisplayLimit  = 200
	relevanceThreshold   = 0.3
	preferredDomainBonus = 0.3
	blockedDomainPenalty = 0.8
)

// SearchHit is one candidate result from the search provider.
type SearchHit struct {
	Title   string
	Snippet string
	URL     string
}

// searchProvider is the narrow seam between the adapter and the remote
// engine, so ranking logic is testable with literal fixtures.
type searchProvider interface {
	Search(ctx context.Context, query string, max int) ([]SearchHit, error)
}

// WebSearchTool searches the web and renders a ranked, filtered result list.
type WebSearchTool struct {
	provider   searchProvider
	maxResults int
	log        zerolog.Logger
}

func NewWebSearchTool(deps Deps) *WebSearchTool {
	return &WebSearchTool{
		provider:   &duckDuckGoProvider{client: deps.Client, endpoint: duckDuckGoEndpoint},
		maxResults: deps.MaxSearchResults,
		log:        deps.Logger.With().Str("tool", "web_search").Logger(),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web with DuckDuckGo. Returns a numbered list of relevant results (title, snippet, link) formatted in Russian."
}

func (t *WebSearchTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query string",
			},
			"max_results": map[string]interface{}{
				"type":        "number",
				"description": "Maximum number of results to return (default: 5)",
			},
		},
		Required: []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	query, err := stringParam(params, "query")
	if err != nil {
		return failure("Ошибка при поиске: %v", err)
	}
	query = strings.TrimSpace(query)

	limit := intParam(params, "max_results", t.maxResults)
	if limit < 1 {
		limit = t.maxResults
	}

	t.log.Info().Str("query", query).Int("max_results", limit).Msg("searching")

	// Fetch roughly double the requested count so relevance filtering has
	// something to discard.
	hits, err := t.provider.Search(ctx, query, limit*2)
	if err != nil {
		t.log.Error().Err(err).Str("query", query).Msg("search request failed")
		return failure("Ошибка при поиске: %v", err)
	}
	if len(hits) == 0 {
		t.log.Info().Str("query", query).Msg("no results")
		return success("🔍 Поиск не дал результатов.")
	}

	ranked := rankHits(hits, query)
	kept := keepRelevant(ranked)
	if len(kept) == 0 {
		// Filtering removed everything: fall back to the full set, still
		// ordered by the same scoring function.
		kept = ranked
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}

	t.log.Info().Str("query", query).Int("results", len(kept)).Msg("search done")
	return success(formatSearchResults(kept))
}

type scoredHit struct {
	SearchHit
	score float64
}

var preferredDomains = []string{
	".ru", ".com", ".org", ".net", ".edu", ".gov",
	"wikipedia.org", "github.com", "stackoverflow.com",
	"habr.com", "tproger.ru", "vc.ru",
}

var penalizedDomains = []string{".cn", ".jp", "zhihu.com", "baidu.com"}

// regionIntentWords disable the blocked-domain penalty when the query itself
// asks about the corresponding region.
var regionIntentWords = []string{"китай", "япония", "chinese", "japanese", "china", "japan"}

// rankHits scores every hit against the query and sorts descending. Pure;
// exercised directly by tests with fixture data.
func rankHits(hits []SearchHit, query string) []scoredHit {
	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	ranked := make([]scoredHit, 0, len(hits))
	for _, hit := range hits {
		ranked = append(ranked, scoredHit{SearchHit: hit, score: scoreHit(hit, queryWords, queryLower)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked
}

func scoreHit(hit SearchHit, queryWords []string, queryLower string) float64 {
	combined := strings.ToLower(hit.Title + " " + hit.Snippet)
	link := strings.ToLower(hit.URL)

	matches := 0
	for _, word := range queryWords {
		if strings.Contains(combined, word) {
			matches++
		}
	}
	divisor := len(queryWords)
	if divisor < 1 {
		divisor = 1
	}
	score := float64(matches) / float64(divisor)

	if containsAny(link, preferredDomains) {
		score += preferredDomainBonus
	}
	if containsAny(link, penalizedDomains) && !containsAny(queryLower, regionIntentWords) {
		score -= blockedDomainPenalty
	}
	return score
}

func keepRelevant(ranked []scoredHit) []scoredHit {
	kept := make([]scoredHit, 0, len(ranked))
	for _, hit := range ranked {
		if hit.score >= relevanceThreshold {
			kept = append(kept, hit)
		}
	}
	return kept
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func formatSearchResults(hits []scoredHit) string {
	var b strings.Builder
	b.WriteString("🔍 Результаты поиска:\n")
	for i, hit := range hits {
		title := hit.Title
		if strings.TrimSpace(title) == "" {
			title = "Без названия"
		}
		snippet := hit.Snippet
		if strings.TrimSpace(snippet) == "" {
			snippet = "Нет описания"
		}
		snippet = truncateRunes(snippet, snippetDisplayLimit)
		b.WriteString(fmt.Sprintf("\n%d. %s\n   %s\n   %s\n", i+1, title, snippet, hit.URL))
	}
	return b.String()
}

// duckDuckGoProvider scrapes the DuckDuckGo HTML endpoint. The endpoint field
// is overridable so tests can point it at a local server.
type duckDuckGoProvider struct {
	client   *http.Client
	endpoint string
}

func (p *duckDuckGoProvider) Search(ctx context.Context, query string, max int) ([]SearchHit, error) {
	form := url.Values{}
	form.Set("q", query)
	form.Set("kl", "us-en")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	doc, err := xhtml.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search HTML: %w", err)
	}

	hits := extractHits(doc)
	if max > 0 && len(hits) > max {
		hits = hits[:max]
	}
	return hits, nil
}

func extractHits(doc *xhtml.Node) []SearchHit {
	var hits []SearchHit
	seen := make(map[string]struct{})

	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if hit, ok := buildHit(n); ok {
				if _, dup := seen[hit.URL]; !dup {
					seen[hit.URL] = struct{}{}
					hits = append(hits, hit)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return hits
}

func buildHit(node *xhtml.Node) (SearchHit, bool) {
	var hit SearchHit

	var inspect func(*xhtml.Node)
	inspect = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			if hit.URL == "" && n.Data == "a" && hasClass(n, "result__a") {
				hit.URL = cleanHitURL(attrValue(n, "href"))
				if hit.Title == "" {
					hit.Title = nodeText(n)
				}
			}
			if hit.Snippet == "" && hasClass(n, "result__snippet") {
				hit.Snippet = nodeText(n)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			inspect(child)
		}
	}
	inspect(node)

	if hit.URL == "" || hit.Title == "" {
		return SearchHit{}, false
	}
	return hit, true
}

func hasClass(n *xhtml.Node, class string) bool {
	for _, part := range strings.Fields(attrValue(n, "class")) {
		if part == class {
			return true
		}
	}
	return false
}

func attrValue(n *xhtml.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *xhtml.Node) string {
	var b strings.Builder
	var collect func(*xhtml.Node)
	collect = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// cleanHitURL unwraps DuckDuckGo redirect links and drops non-http schemes.
func cleanHitURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if uddg := parsed.Query().Get("uddg"); uddg != "" {
		if target, err := url.Parse(uddg); err == nil {
			parsed = target
		}
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	if parsed.Hostname() == "" {
		return ""
	}
	parsed.Fragment = ""
	return parsed.String()
}
