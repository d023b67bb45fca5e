package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
)

const WikipediaName = "wikipedia"

type WikipediaConfig struct {
	Language string
	// BaseURL overrides https://<lang>.wikipedia.org, mostly for tests.
	BaseURL      string
	MaxDocuments int
	HTTPClient   *http.Client
}

// Wikipedia searches article titles and returns plain-text intro extracts.
type Wikipedia struct {
	endpoint   string
	limit      int
	httpClient *http.Client
}

func NewWikipedia(cfg WikipediaConfig) *Wikipedia {
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.wikipedia.org", lang)
	}
	limit := cfg.MaxDocuments
	if limit <= 0 {
		limit = 3
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Wikipedia{endpoint: base + "/w/api.php", limit: limit, httpClient: client}
}

func (w *Wikipedia) Name() string { return WikipediaName }

func (w *Wikipedia) Style() QueryStyle { return KeywordQuery }

func (w *Wikipedia) Search(ctx context.Context, query string) ([]Document, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("generator", "search")
	q.Set("gsrsearch", query)
	q.Set("gsrlimit", strconv.Itoa(w.limit))
	q.Set("prop", "extracts|info")
	q.Set("inprop", "url")
	q.Set("exintro", "1")
	q.Set("explaintext", "1")
	q.Set("exlimit", "max")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "convoengine/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to parse response")
	}
	if msg := gjson.GetBytes(body, "error.info"); msg.Exists() {
		return nil, fmt.Errorf("wikipedia error: %s", msg.String())
	}

	pages := gjson.GetBytes(body, "query.pages").Array()
	// generator results are unordered; "index" carries the search rank.
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].Get("index").Int() < pages[j].Get("index").Int()
	})
	docs := make([]Document, 0, len(pages))
	for _, p := range pages {
		docs = append(docs, Document{
			Title:   p.Get("title").String(),
			URL:     p.Get("fullurl").String(),
			Content: p.Get("extract").String(),
		})
	}
	return docs, nil
}
