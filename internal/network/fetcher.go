package network

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/paperbound/lcp-client/pkg/config"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
)

// Fetcher performs single-shot HTTP GETs. Retry policy belongs to callers;
// any non-200 response surfaces as a network error.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

func New(cfg config.HTTPConfig) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

// Fetch downloads the document at the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "build request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "fetch document")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeNetwork, fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "read response body")
	}
	return body, nil
}
