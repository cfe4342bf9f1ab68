package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/driftmend/driftmend-backend/internal/pkg/httpx"
	"github.com/driftmend/driftmend-backend/internal/platform/envutil"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

// ErrUnavailable is returned when the suggestion capability cannot produce an
// answer (transport failure, timeout, malformed response). Callers must treat
// it as "no suggestion exists", never substitute a default mapping.
var ErrUnavailable = errors.New("suggestion capability unavailable")

// Request carries the drifted field plus its surrounding context.
type Request struct {
	TenantID      string   `json:"tenant_id"`
	EntityType    string   `json:"entity_type"`
	FieldName     string   `json:"field_name"`
	FieldType     string   `json:"field_type,omitempty"`
	DriftType     string   `json:"drift_type,omitempty"`
	SiblingFields []string `json:"sibling_fields,omitempty"`
	PriorMapping  string   `json:"prior_mapping,omitempty"`
}

// Suggestion is the capability's ranked best candidate mapping.
type Suggestion struct {
	Mapping    string  `json:"mapping"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Client is the semantic-suggestion capability consumed by the repair
// proposal generator.
type Client interface {
	Suggest(ctx context.Context, req Request) (Suggestion, error)
}

type unavailableClient struct{}

func (unavailableClient) Suggest(context.Context, Request) (Suggestion, error) {
	return Suggestion{}, ErrUnavailable
}

// NewUnavailable returns a client that always reports ErrUnavailable. Used
// when no suggestion backend is configured.
func NewUnavailable() Client { return unavailableClient{} }

type httpClient struct {
	base       *url.URL
	apiKey     string
	hc         *http.Client
	maxRetries int
	log        *logger.Logger
}

type suggestHTTPError struct {
	StatusCode int
	Body       string
}

func (e *suggestHTTPError) Error() string {
	return fmt.Sprintf("suggest http %d: %s", e.StatusCode, e.Body)
}
func (e *suggestHTTPError) HTTPStatusCode() int { return e.StatusCode }

// NewClient builds the HTTP-backed suggestion client from the environment.
// SUGGEST_BASE_URL is required.
func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("suggest: logger required")
	}

	raw := strings.TrimSpace(os.Getenv("SUGGEST_BASE_URL"))
	if raw == "" {
		return nil, fmt.Errorf("suggest: missing SUGGEST_BASE_URL")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("suggest: parse SUGGEST_BASE_URL: %w", err)
	}

	timeout := envutil.Duration("SUGGEST_TIMEOUT", 30*time.Second)
	maxRetries := envutil.Int("SUGGEST_MAX_RETRIES", 2)

	return &httpClient{
		base:       base,
		apiKey:     strings.TrimSpace(os.Getenv("SUGGEST_API_KEY")),
		hc:         &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		log:        log.With("client", "Suggest"),
	}, nil
}

func (c *httpClient) Suggest(ctx context.Context, req Request) (Suggestion, error) {
	var out Suggestion
	if err := c.do(ctx, "/v1/suggest", req, &out); err != nil {
		c.log.Warn("suggestion request failed", "field", req.FieldName, "error", err)
		return Suggestion{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return Suggestion{}, fmt.Errorf("%w: confidence %f out of range", ErrUnavailable, out.Confidence)
	}
	if strings.TrimSpace(out.Mapping) == "" {
		return Suggestion{}, fmt.Errorf("%w: empty mapping", ErrUnavailable)
	}
	return out, nil
}

func (c *httpClient) do(ctx context.Context, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("suggest decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("suggest request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *httpClient) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &suggestHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
