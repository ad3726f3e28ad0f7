// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package imds

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// Endpoint is the resolved metadata service address: an IPv4 literal or a
// bracketed IPv6 literal. Immutable once discovery succeeds.
type Endpoint struct {
	Host string
}

func (e Endpoint) BaseURL() string {
	return fmt.Sprintf("http://%s", e.Host)
}

type locator struct {
	logger     *zap.Logger
	candidates []string
	port       string
	dial       func(ctx context.Context, network, address string) (net.Conn, error)
}

func newLocator(logger *zap.Logger) *locator {
	candidates := []string{endpointIPv6, endpointIPv4}
	if !hasIPv6() {
		logger.Debug("host has no usable IPv6 address, skipping IPv6 metadata endpoint")
		candidates = []string{endpointIPv4}
	}
	dialer := &net.Dialer{Timeout: probeTimeout}
	return &locator{
		logger:     logger,
		candidates: candidates,
		port:       metadataPort,
		dial:       dialer.DialContext,
	}
}

// Locate probes the candidate addresses in order, IPv6 before IPv4, and
// returns the first one accepting TCP connections on the metadata port.
func (l *locator) Locate(ctx context.Context) (Endpoint, error) {
	var lastErr error
	for _, host := range l.candidates {
		if err := l.probe(ctx, host); err != nil {
			l.logger.Debug("metadata endpoint candidate not reachable", zap.String("host", host), zap.Error(err))
			lastErr = err
			continue
		}
		l.logger.Info("located metadata endpoint", zap.String("host", host))
		return Endpoint{Host: host}, nil
	}
	return Endpoint{}, newError(ErrorTypeConnectivity, fmt.Errorf("no reachable metadata endpoint among %v: %w", l.candidates, lastErr))
}

func (l *locator) probe(ctx context.Context, host string) error {
	address := fmt.Sprintf("%s:%s", host, l.port)
	return retry.Do(
		func() error {
			conn, err := l.dial(ctx, "tcp", address)
			if err != nil {
				if isTerminalProbeError(err) {
					// unreachable now means unreachable on the next attempt
					// too, so stop burning the probe budget on this candidate
					return retry.Unrecoverable(err)
				}
				return err
			}
			return conn.Close()
		},
		retry.Context(ctx),
		retry.Attempts(probeAttempts),
		retry.Delay(probeDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// isTerminalProbeError reports whether a probe failure is a hard signal for
// the candidate address. Timeouts are transient and worth retrying;
// refused/unreachable responses are not.
func isTerminalProbeError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EADDRNOTAVAIL)
}

func hasIPv6() bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.To4() == nil && ip.To16() != nil && !ip.IsLoopback() {
			return true
		}
	}
	return false
}
