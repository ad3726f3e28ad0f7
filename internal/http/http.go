// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package http

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pubcloud-tools/ec2metadata/internal/build"
	"go.uber.org/zap"
)

const (
	userAgentHeaderKey = "User-Agent"
)

// NewClient returns a retryablehttp.Client with a custom transport,
// tuned for the short round-trips expected from a link-local service.
func NewClient(logger *zap.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 300 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = &leveledLoggerShim{logger: logger}

	baseTransport := c.HTTPClient.Transport
	c.HTTPClient.Transport = &customTransport{
		baseTransport: baseTransport,
	}

	return c
}

type customTransport struct {
	baseTransport http.RoundTripper
}

func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set(userAgentHeaderKey, build.GetUserAgentValue())
	return t.baseTransport.RoundTrip(req)
}
