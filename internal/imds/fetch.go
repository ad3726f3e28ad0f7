// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package imds

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// fetcher issues single GETs against metadata URLs using the current
// header/token state. Callers treat any error as "nothing here"; the
// not-found case is additionally marked with errNotFound.
type fetcher struct {
	logger     *zap.Logger
	httpClient *retryablehttp.Client
	tokens     *tokenManager
}

func newFetcher(httpClient *retryablehttp.Client, tokens *tokenManager, logger *zap.Logger) *fetcher {
	return &fetcher{
		logger:     logger,
		httpClient: httpClient,
		tokens:     tokens,
	}
}

// Fetch retrieves the content at url. If an unauthenticated fetch fails
// while the access mode is still undecided, it upgrades to token-based
// access and retries exactly once; some deployments mandate tokens and
// reject everything else.
func (f *fetcher) Fetch(ctx context.Context, url string) (string, error) {
	content, err := f.fetchOnce(ctx, url)
	if err == nil {
		return content, nil
	}
	if f.tokens.UpgradeToTokenAccess() {
		f.logger.Debug("fetch failed without a token, retrying with token-based access", zap.String("url", url), zap.Error(err))
		return f.fetchOnce(ctx, url)
	}
	return "", err
}

func (f *fetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("constructing metadata request: %w", err)
	}
	for key, value := range f.tokens.HeadersForRequest(ctx) {
		req.Header.Set(key, value)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling metadata service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%s: %w", url, errNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading metadata response body: %w", err)
	}
	return string(body), nil
}
