package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	log "github.com/avastel/gatekeeper/logger"
)

// Verify interface is satisfied
var _ Oracle = (*HTTPOracle)(nil)

// HTTPOracle queries the entitlement service over REST. Transient
// failures retry with jittered backoff; a definitive negative answer
// is a normal Decision, not an error.
type HTTPOracle struct {
	endpoint string
	client   *retryablehttp.Client
}

// HTTPOracleConfig configures the entitlement client.
type HTTPOracleConfig struct {
	// Endpoint is the full check-access URL, e.g.
	// "https://entitlements.internal/api/check-access".
	Endpoint string

	// MaxRetries bounds retry attempts per query. Defaults to 2.
	MaxRetries int

	// Timeout is the per-attempt request timeout. Defaults to 5s.
	Timeout time.Duration
}

func NewHTTPOracle(conf HTTPOracleConfig, logger log.Logger) (*HTTPOracle, error) {
	if conf.Endpoint == "" {
		return nil, fmt.Errorf("entitlement endpoint is required")
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
		Logger:       log.NewHCLogAdapter(logger.WithSubsystem("entitlement")),
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &HTTPOracle{
		endpoint: conf.Endpoint,
		client:   client,
	}, nil
}

func (o *HTTPOracle) CheckAccess(ctx context.Context, query AccessQuery) (*Decision, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode access query: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build entitlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entitlement request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("entitlement service returned status %d", resp.StatusCode)
	}

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, fmt.Errorf("failed to decode entitlement response: %w", err)
	}
	return &decision, nil
}
