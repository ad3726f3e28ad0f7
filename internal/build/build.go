// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package build

import "fmt"

// Version holds the binary's current version string, injected at link time.
var Version string

// GetUserAgentValue returns the common User-Agent header value used in all HTTP calls.
func GetUserAgentValue() string {
	return fmt.Sprintf("ec2metadata/%s", Version)
}
