package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
)

// DataAPIBase is the YouTube Data API v3 root.
const DataAPIBase = "https://www.googleapis.com/youtube/v3"

const userAgent = "ghostvid/0.1 (+https://github.com/genaforvena/ghost-writers-ghost-video-editor)"

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

// SearchConfig configures a SearchClient.
type SearchConfig struct {
	BaseURL    string // default DataAPIBase
	APIKey     string
	Language   string // relevanceLanguage, empty for any
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Retry      *RetryConfig // nil = DefaultRetryConfig
	Logger     *slog.Logger
}

// SearchClient queries the Data API for videos matching a phrase.
type SearchClient struct {
	baseURL  string
	apiKey   string
	language string
	http     *http.Client
	limiter  *rate.Limiter
	retry    RetryConfig
	logger   *slog.Logger
}

// NewSearchClient creates a search client.
func NewSearchClient(cfg SearchConfig) *SearchClient {
	c := &SearchClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		http:     cfg.HTTPClient,
		limiter:  cfg.Limiter,
		retry:    DefaultRetryConfig,
		logger:   cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DataAPIBase
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Retry != nil {
		c.retry = *cfg.Retry
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// Search returns up to maxResults video IDs in provider relevance order.
func (c *SearchClient) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("key", c.apiKey)
	if c.language != "" && c.language != "all" {
		params.Set("relevanceLanguage", c.language)
	}
	apiURL := c.baseURL + "/search?" + params.Encode()

	resp, err := RetryHTTP(ctx, c.retry, c.limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	})
	if err != nil {
		return nil, asProviderError("search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		perr := &ProviderError{Op: "search", StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusForbidden && isQuotaBody(body) {
			perr.Err = ErrProviderQuota
		}
		return nil, perr
	}

	var result searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 2*1024*1024)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if item.ID.VideoID == "" {
			continue
		}
		ids = append(ids, item.ID.VideoID)
		if len(ids) == maxResults {
			break
		}
	}

	c.logger.Debug("search complete", "query", query, "results", len(ids), "url", logging.SanitizeURL(apiURL))
	return ids, nil
}

func isQuotaBody(body []byte) bool {
	s := string(body)
	return strings.Contains(s, "quotaExceeded") || strings.Contains(s, "dailyLimitExceeded") || strings.Contains(s, "rateLimitExceeded")
}
