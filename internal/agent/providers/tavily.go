package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

const TavilyName = "tavily"

type TavilyConfig struct {
	APIKey       string
	BaseURL      string
	MaxDocuments int
	HTTPClient   *http.Client
}

// Tavily is a web search provider for natural-language questions.
type Tavily struct {
	apiKey     string
	endpoint   string
	limit      int
	httpClient *http.Client
}

// NewTavily fails with a configuration error when the API key is missing.
func NewTavily(cfg TavilyConfig) (*Tavily, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errx.Configuration("tavily provider requires TAVILY_API_KEY")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.tavily.com"
	}
	limit := cfg.MaxDocuments
	if limit <= 0 {
		limit = 3
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Tavily{apiKey: cfg.APIKey, endpoint: base + "/search", limit: limit, httpClient: client}, nil
}

func (t *Tavily) Name() string { return TavilyName }

func (t *Tavily) Style() QueryStyle { return NaturalQuery }

func (t *Tavily) Search(ctx context.Context, query string) ([]Document, error) {
	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"max_results":  t.limit,
		"search_depth": "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := gjson.GetBytes(body, "detail.error").String()
		return nil, fmt.Errorf("tavily returned status %d %s", resp.StatusCode, detail)
	}

	results := gjson.GetBytes(body, "results").Array()
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, Document{
			Title:   r.Get("title").String(),
			URL:     r.Get("url").String(),
			Content: r.Get("content").String(),
		})
	}
	return docs, nil
}
