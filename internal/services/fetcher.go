package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
)

const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultMaxFetchBytes = 10 << 20
)

// HTTPClient abstracts HTTP operations for ingestion
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenFunc returns a bearer token for the ingestion API
type TokenFunc func(ctx context.Context) (string, error)

// Fetcher performs the ingestion GET request
type Fetcher struct {
	client   HTTPClient
	timeout  time.Duration
	maxBytes int64
	token    TokenFunc
}

type FetcherOption func(*Fetcher)

func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

func WithMaxFetchBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

func WithTokenFunc(fn TokenFunc) FetcherOption {
	return func(f *Fetcher) {
		f.token = fn
	}
}

// WithSecretToken reads the bearer token from Secrets Manager on every fetch.
// An empty secret name disables authentication.
func WithSecretToken(secrets *SecretsManagerService, secretName string) FetcherOption {
	if secretName == "" || secrets == nil {
		return func(*Fetcher) {}
	}
	return WithTokenFunc(func(ctx context.Context) (string, error) {
		return secrets.GetAPIToken(ctx, secretName)
	})
}

func NewFetcher(client HTTPClient, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:   client,
		timeout:  DefaultFetchTimeout,
		maxBytes: DefaultMaxFetchBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues GET url and returns the response body. Any non-2xx status is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (models.Payload, error) {
	if url == "" {
		return nil, errors.ErrAPIURLRequired
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	if f.token != nil {
		token, err := f.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get API token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: GET %s returned %d: %s", errors.ErrUnexpectedStatus, url, resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: response from %s exceeds %d bytes", errors.ErrPayloadTooLarge, url, f.maxBytes)
	}

	zerolog.Ctx(ctx).Info().
		Str("url", url).
		Int("status_code", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Fetched payload")

	return body, nil
}
