package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	log "github.com/avastel/gatekeeper/logger"
)

// Verify interface is satisfied
var _ Catalog = (*HTTPCatalog)(nil)

// HTTPCatalog talks to the catalog service over its REST API. Lookups
// retry transient failures with jittered backoff; a 404 is a definite
// "does not exist", everything else non-2xx is an error.
type HTTPCatalog struct {
	baseURL string
	client  *retryablehttp.Client
}

// HTTPCatalogConfig configures the catalog client.
type HTTPCatalogConfig struct {
	// BaseURL is the catalog service root, e.g. "https://catalog.internal/api".
	BaseURL string

	// MaxRetries bounds retry attempts per lookup. Defaults to 2.
	MaxRetries int

	// Timeout is the per-attempt request timeout. Defaults to 5s.
	Timeout time.Duration
}

func NewHTTPCatalog(conf HTTPCatalogConfig, logger log.Logger) (*HTTPCatalog, error) {
	if conf.BaseURL == "" {
		return nil, fmt.Errorf("catalog base url is required")
	}
	if _, err := url.Parse(conf.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog base url: %w", err)
	}

	maxRetries := conf.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	timeout := conf.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout

	client := &retryablehttp.Client{
		HTTPClient:   httpClient,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		RetryMax:     maxRetries,
		Backoff:      retryablehttp.RateLimitLinearJitterBackoff,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Logger:       log.NewHCLogAdapter(logger.WithSubsystem("catalog")),
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &HTTPCatalog{
		baseURL: strings.TrimSuffix(conf.BaseURL, "/"),
		client:  client,
	}, nil
}

func (c *HTTPCatalog) ProductExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, "/products/"+url.PathEscape(id))
}

func (c *HTTPCatalog) PartnerAssetExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, "/partner-assets/"+url.PathEscape(id))
}

func (c *HTTPCatalog) GetProduct(ctx context.Context, id string) (*Product, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var product Product
		if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
			return nil, fmt.Errorf("failed to decode catalog response: %w", err)
		}
		return &product, nil
	case http.StatusNotFound:
		return nil, ErrProductNotFound
	default:
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
}

func (c *HTTPCatalog) exists(ctx context.Context, path string) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
}
