// internal/text/source.go
package text

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultWikipediaAPI is the MediaWiki endpoint used when none is configured.
const DefaultWikipediaAPI = "https://en.wikipedia.org/w/api.php"

// ErrPassageNotFound is returned when the source answered but carried no usable passage.
var ErrPassageNotFound = errors.New("passage not found")

// Passage is a single piece of text returned by a Source.
type Passage struct {
	Title string
	Body  string
}

// Source provides random passages. Implementations may fail; callers decide whether to retry.
type Source interface {
	RandomPassage(ctx context.Context) (Passage, error)
}

// WikipediaSource fetches the plain-text extract of a random Wikipedia article.
type WikipediaSource struct {
	Endpoint string
	Client   *http.Client
}

// NewWikipediaSource returns a source for the given MediaWiki API endpoint.
// An empty endpoint falls back to DefaultWikipediaAPI.
func NewWikipediaSource(endpoint string) *WikipediaSource {
	if endpoint == "" {
		endpoint = DefaultWikipediaAPI
	}
	return &WikipediaSource{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type wikiResponse struct {
	Query struct {
		Random []struct {
			ID    int    `json:"id"`
			Title string `json:"title"`
		} `json:"random"`
		Pages map[string]struct {
			PageID  int    `json:"pageid"`
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// RandomPassage picks a random main-namespace article and returns its plain-text extract.
func (w *WikipediaSource) RandomPassage(ctx context.Context) (Passage, error) {
	random, err := w.query(ctx, url.Values{
		"list":        {"random"},
		"rnnamespace": {"0"},
		"rnlimit":     {"1"},
	})
	if err != nil {
		return Passage{}, fmt.Errorf("random article: %w", err)
	}
	if len(random.Query.Random) == 0 {
		return Passage{}, fmt.Errorf("random article: %w", ErrPassageNotFound)
	}
	title := random.Query.Random[0].Title

	extract, err := w.query(ctx, url.Values{
		"prop":        {"extracts"},
		"titles":      {title},
		"explaintext": {"true"},
	})
	if err != nil {
		return Passage{}, fmt.Errorf("extract for %q: %w", title, err)
	}
	for _, page := range extract.Query.Pages {
		return Passage{Title: title, Body: page.Extract}, nil
	}
	return Passage{}, fmt.Errorf("extract for %q: %w", title, ErrPassageNotFound)
}

func (w *WikipediaSource) query(ctx context.Context, params url.Values) (*wikiResponse, error) {
	params.Set("action", "query")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "typerace/1.0")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out wikiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
