// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

// Package imds discovers and retrieves instance-configuration data exposed
// by the EC2 instance metadata service, flattening the service's tree into
// a named option set.
package imds

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	internalhttp "github.com/pubcloud-tools/ec2metadata/internal/http"
	"go.uber.org/zap"
)

type Config struct {
	// Endpoint overrides endpoint location with a fixed host (host or
	// host:port, IPv6 bracketed). Intended for debugging and tests.
	Endpoint string
	// APIVersion selects the initial API version root. Defaults to "latest".
	APIVersion string
	// TokenTTL is the requested session-token lifetime. Defaults to 6 hours.
	TokenTTL time.Duration
	// DataCategories overrides the root prefixes seeding discovery.
	DataCategories []string
}

// Client is the public surface of the metadata core. A Client is not safe
// for concurrent use; callers needing parallelism should own one Client
// each.
type Client struct {
	logger     *zap.Logger
	httpClient *retryablehttp.Client
	endpoint   Endpoint
	apiVersion string
	categories []string
	tokens     *tokenManager
	fetcher    *fetcher
	discoverer *discoverer
	options    map[string]string
}

// NewClient locates a reachable metadata endpoint and performs the initial
// option discovery walk. It fails with a connectivity error when no endpoint
// is reachable; the instance cannot function without one.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.DataCategories == nil {
		cfg.DataCategories = defaultDataCategories
	}

	httpClient := internalhttp.NewClient(logger)

	endpoint := Endpoint{Host: cfg.Endpoint}
	if cfg.Endpoint == "" {
		located, err := newLocator(logger).Locate(ctx)
		if err != nil {
			return nil, err
		}
		endpoint = located
	}

	tokens := newTokenManager(endpoint, httpClient, cfg.TokenTTL, logger)
	c := &Client{
		logger:     logger,
		httpClient: httpClient,
		endpoint:   endpoint,
		apiVersion: cfg.APIVersion,
		categories: cfg.DataCategories,
		tokens:     tokens,
		fetcher:    newFetcher(httpClient, tokens, logger),
	}
	c.discoverer = &discoverer{
		logger: logger,
		fetch:  c.fetchRelative,
	}
	c.options = c.discoverer.Discover(ctx, c.categories)
	logger.Info("discovered metadata options", zap.String("apiVersion", c.apiVersion), zap.Int("count", len(c.options)))

	return c, nil
}

// APIVersion returns the active API version.
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// Get resolves option to its value. Most options yield a single value; the
// public-keys option yields one entry per installed key.
func (c *Client) Get(ctx context.Context, option string) ([]string, error) {
	path, ok := c.options[option]
	if !ok {
		return nil, newError(ErrorTypeUnknownOption, fmt.Errorf("unknown metadata option %q", option))
	}
	if option == "public-keys" {
		return c.getPublicKeys(ctx)
	}

	content, err := c.fetchRelative(ctx, path)
	if err != nil {
		return nil, newError(ErrorTypeFetchFailure, fmt.Errorf("fetching %s: %w", path, err))
	}
	return []string{content}, nil
}

// GetMetaDataOptions returns the sorted names of every option discovered
// under the active API version.
func (c *Client) GetMetaDataOptions() []string {
	options := make([]string, 0, len(c.options))
	for name := range c.options {
		options = append(options, name)
	}
	sort.Strings(options)
	return options
}

// GetAvailableAPIVersions returns the version identifiers advertised at the
// service root.
func (c *Client) GetAvailableAPIVersions(ctx context.Context) ([]string, error) {
	listing, err := c.fetcher.Fetch(ctx, fmt.Sprintf("%s/", c.endpoint.BaseURL()))
	if err != nil {
		return nil, newError(ErrorTypeFetchFailure, fmt.Errorf("fetching available API versions: %w", err))
	}

	var versions []string
	for _, line := range strings.Split(listing, "\n") {
		version := strings.TrimRight(line, "\r")
		if version != "" {
			versions = append(versions, version)
		}
	}
	return versions, nil
}

// SetAPIVersion switches the active API version and rebuilds the option map
// in full under the new version root. An empty version is a no-op returning
// the current version; an unadvertised version fails with the client state
// unchanged.
func (c *Client) SetAPIVersion(ctx context.Context, version string) (string, error) {
	if version == "" {
		return c.apiVersion, nil
	}

	available, err := c.GetAvailableAPIVersions(ctx)
	if err != nil {
		return "", err
	}
	supported := false
	for _, candidate := range available {
		if candidate == version {
			supported = true
			break
		}
	}
	if !supported {
		return "", newError(ErrorTypeUnsupportedVersion, fmt.Errorf("requested API version %q not available", version))
	}

	c.apiVersion = version
	c.options = c.discoverer.Discover(ctx, c.categories)
	c.logger.Info("switched metadata API version", zap.String("apiVersion", version), zap.Int("count", len(c.options)))
	return c.apiVersion, nil
}

func (c *Client) getPublicKeys(ctx context.Context) ([]string, error) {
	listing, err := c.fetchRelative(ctx, publicKeysPath)
	if err != nil {
		// no keys installed surfaces as an unreadable listing
		return []string{}, nil
	}

	publicKeys := []string{}
	for _, line := range strings.Split(listing, "\n") {
		entry := strings.TrimRight(line, "\r")
		if entry == "" {
			continue
		}
		keyID := strings.SplitN(entry, "=", 2)[0]
		if _, err := strconv.Atoi(keyID); err != nil {
			c.logger.Warn("skipping malformed public-keys listing entry", zap.String("entry", entry))
			continue
		}
		key, err := c.fetchRelative(ctx, fmt.Sprintf("meta-data/public-keys/%s/openssh-key", keyID))
		if err != nil {
			return nil, newError(ErrorTypeFetchFailure, fmt.Errorf("fetching openssh-key for key id %s: %w", keyID, err))
		}
		publicKeys = append(publicKeys, strings.TrimRight(key, " \t\r\n"))
	}
	return publicKeys, nil
}

func (c *Client) fetchRelative(ctx context.Context, relativePath string) (string, error) {
	return c.fetcher.Fetch(ctx, fmt.Sprintf("%s/%s/%s", c.endpoint.BaseURL(), c.apiVersion, relativePath))
}
