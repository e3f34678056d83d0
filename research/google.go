package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const googleSearchURL = "https://www.googleapis.com/customsearch/v1"

// GoogleSearcher queries the Google Custom Search JSON API.
type GoogleSearcher struct {
	apiKey   string
	engineID string
	client   *http.Client
}

func NewGoogleSearcher(apiKey, engineID string, timeout time.Duration) *GoogleSearcher {
	return &GoogleSearcher{
		apiKey:   apiKey,
		engineID: engineID,
		client:   &http.Client{Timeout: timeout},
	}
}

var _ Searcher = (*GoogleSearcher)(nil)

func (g *GoogleSearcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if g.apiKey == "" || g.engineID == "" {
		return nil, fmt.Errorf("google search not configured")
	}
	if limit <= 0 || limit > 10 {
		limit = 10
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleSearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("searching %q: status %d: %s", query, resp.StatusCode, string(body))
	}

	var parsed struct {
		Items []struct {
			Link    string `json:"link"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, SearchResult{
			Link:    item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}
