package docsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/quillhaven/docsmith/internal/cache"
	"github.com/quillhaven/docsmith/internal/httpclient"
	"github.com/sirupsen/logrus"
)

const (
	TextSearchEndpointEnvVar  = "DOCSMITH_TEXT_SEARCH_ENDPOINT"
	ImageSearchEndpointEnvVar = "DOCSMITH_IMAGE_SEARCH_ENDPOINT"

	// DefaultTopK is how many results a search returns when unspecified
	DefaultTopK = 5
	// DefaultMinScore filters low-relevance image matches
	DefaultMinScore = 0.4

	searchTimeout = 20 * time.Second

	// resultCacheTTL keeps repeated refinement queries cheap without
	// serving stale passages for long
	resultCacheTTL = 5 * time.Minute
)

// resultCache is shared across clients in the process
var resultCache = cache.New(resultCacheTTL)

// SearchClient queries the vector knowledge base endpoints for supporting
// text passages and related image URLs.
type SearchClient struct {
	httpClient    *http.Client
	textEndpoint  string
	imageEndpoint string
	logger        *logrus.Logger
}

// searchResponse is the wire format shared by both endpoints
type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Content string  `json:"content,omitempty"`
	FileURL string  `json:"file_url,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// NewSearchClient creates a client from environment configuration
func NewSearchClient(logger *logrus.Logger) *SearchClient {
	return &SearchClient{
		httpClient:    httpclient.New(searchTimeout, logger),
		textEndpoint:  os.Getenv(TextSearchEndpointEnvVar),
		imageEndpoint: os.Getenv(ImageSearchEndpointEnvVar),
		logger:        logger,
	}
}

// HasTextSearch reports whether a text search endpoint is configured
func (c *SearchClient) HasTextSearch() bool {
	return c.textEndpoint != ""
}

// HasImageSearch reports whether an image search endpoint is configured
func (c *SearchClient) HasImageSearch() bool {
	return c.imageEndpoint != ""
}

// SearchText queries the knowledge base and returns the matching passages
func (c *SearchClient) SearchText(ctx context.Context, query string, topK int) ([]string, error) {
	if !c.HasTextSearch() {
		return nil, fmt.Errorf("text search endpoint is not configured. Set %s", TextSearchEndpointEnvVar)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	// Outline refinement repeats the same scoped queries; serve those from
	// the in-process cache instead of hitting the endpoint again.
	cacheKey := fmt.Sprintf("%s\x00%s\x00%d", c.textEndpoint, query, topK)
	if cached, ok := resultCache.Get(cacheKey); ok {
		if passages, ok := cached.([]string); ok {
			return passages, nil
		}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("top_k", strconv.Itoa(topK))

	results, err := c.get(ctx, c.textEndpoint, params)
	if err != nil {
		return nil, err
	}

	var passages []string
	for _, result := range results {
		if result.Content != "" {
			passages = append(passages, result.Content)
		}
	}

	resultCache.Set(cacheKey, passages)

	c.logger.WithFields(logrus.Fields{
		"query":   query,
		"results": len(passages),
	}).Debug("Text search completed")

	return passages, nil
}

// SearchImages queries the image index and returns matching image URLs
func (c *SearchClient) SearchImages(ctx context.Context, query string, topK int, minScore float64) ([]string, error) {
	if !c.HasImageSearch() {
		return nil, fmt.Errorf("image search endpoint is not configured. Set %s", ImageSearchEndpointEnvVar)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("top_k", strconv.Itoa(topK))
	params.Set("min_score", strconv.FormatFloat(minScore, 'f', -1, 64))

	results, err := c.get(ctx, c.imageEndpoint, params)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, result := range results {
		if result.FileURL != "" {
			urls = append(urls, result.FileURL)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"query":   query,
		"results": len(urls),
	}).Debug("Image search completed")

	return urls, nil
}

// get performs the HTTP request shared by both search types
func (c *SearchClient) get(ctx context.Context, endpoint string, params url.Values) ([]searchResult, error) {
	requestURL := endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return parsed.Results, nil
}
