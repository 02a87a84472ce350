package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SubmissionRelay/internal/domain"
)

const defaultUserAgent = "SubmissionRelay/1.0"

// Fetcher issues rate-limited GET requests against the content source.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// NewFetcher wires an HTTP client; rps <= 0 disables client-side limiting.
func NewFetcher(client *http.Client, userAgent string, rps float64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Fetcher{client: client, userAgent: userAgent, limiter: limiter}
}

// Get returns the open body of a 200 response; the caller closes it.
func (f *Fetcher) Get(ctx context.Context, scope, pageURL, accept string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &domain.SourceFetchError{Scope: scope, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &domain.SourceFetchError{Scope: scope, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.SourceFetchError{Scope: scope, Err: fmt.Errorf("request listing: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &domain.SourceFetchError{
			Scope:  scope,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("source returned %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}

	return resp.Body, nil
}
