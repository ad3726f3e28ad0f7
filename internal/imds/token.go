// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package imds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// accessMode tracks which metadata protocol variant the instance speaks.
// Transitions are owned exclusively by the tokenManager.
type accessMode int

const (
	// accessModeUnknown issues unauthenticated requests until one fails.
	accessModeUnknown accessMode = iota
	// accessModeToken authenticates every request with a session token.
	accessModeToken
	// accessModeLegacy is terminal: the token endpoint is unusable, so all
	// requests stay unauthenticated for the lifetime of the instance.
	accessModeLegacy
)

// tokenManager owns the session-token lifecycle required by the hardened
// metadata protocol, including the permanent fallback to the legacy protocol
// when the token endpoint cannot be used.
type tokenManager struct {
	logger     *zap.Logger
	httpClient *retryablehttp.Client
	endpoint   Endpoint
	ttl        time.Duration

	mode      accessMode
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func newTokenManager(endpoint Endpoint, httpClient *retryablehttp.Client, ttl time.Duration, logger *zap.Logger) *tokenManager {
	return &tokenManager{
		logger:     logger,
		httpClient: httpClient,
		endpoint:   endpoint,
		ttl:        ttl,
		mode:       accessModeUnknown,
		now:        time.Now,
	}
}

// HeadersForRequest returns the headers every outbound metadata request must
// carry in the current access mode, re-acquiring the session token
// synchronously when it is absent or expired. A failed acquisition drops the
// instance into legacy mode permanently.
func (m *tokenManager) HeadersForRequest(ctx context.Context) map[string]string {
	if m.mode != accessModeToken {
		return nil
	}
	if m.token == "" || !m.now().Before(m.expiresAt) {
		if err := m.acquire(ctx); err != nil {
			m.logger.Warn("unable to obtain session token, falling back to legacy metadata access", zap.Error(err))
			m.mode = accessModeLegacy
			m.token = ""
			return nil
		}
	}
	return map[string]string{tokenHeaderKey: m.token}
}

// UpgradeToTokenAccess switches from unauthenticated to token-based access.
// It reports whether the switch happened; once legacy mode has been entered
// no further upgrade is possible.
func (m *tokenManager) UpgradeToTokenAccess() bool {
	if m.mode != accessModeUnknown {
		return false
	}
	m.logger.Info("switching to token-based metadata access")
	m.mode = accessModeToken
	return true
}

func (m *tokenManager) acquire(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s", m.endpoint.BaseURL(), tokenEndpoint)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return newError(ErrorTypeTokenAcquisition, fmt.Errorf("constructing token request: %w", err))
	}
	req.Header.Set(tokenTTLHeaderKey, strconv.Itoa(int(m.ttl.Seconds())))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return newError(ErrorTypeTokenAcquisition, fmt.Errorf("calling token endpoint: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newError(ErrorTypeTokenAcquisition, fmt.Errorf("unexpected status %d from token endpoint", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(ErrorTypeTokenAcquisition, fmt.Errorf("reading token response body: %w", err))
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return newError(ErrorTypeTokenAcquisition, fmt.Errorf("token endpoint returned an empty token"))
	}

	m.token = token
	m.expiresAt = m.now().Add(m.ttl - tokenExpirySafetyMargin)
	m.logger.Debug("acquired metadata session token", zap.Time("expiresAt", m.expiresAt))
	return nil
}
