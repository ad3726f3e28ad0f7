// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package imds

import "time"

const (
	// Well-known link-local addresses of the EC2 instance metadata service.
	// https://docs.aws.amazon.com/AWSEC2/latest/UserGuide/ec2-instance-metadata.html
	endpointIPv4 = "169.254.169.254"
	endpointIPv6 = "[fd00:ec2::254]"

	metadataPort = "80"
)

const (
	tokenEndpoint = "latest/api/token"

	tokenTTLHeaderKey = "X-aws-ec2-metadata-token-ttl-seconds"
	tokenHeaderKey    = "X-aws-ec2-metadata-token"
)

const (
	defaultAPIVersion = "latest"

	defaultTokenTTL = 21600 * time.Second
	// tokenExpirySafetyMargin is subtracted from the server-granted TTL so a
	// token is never used in the instant it expires.
	tokenExpirySafetyMargin = 60 * time.Second
)

const (
	probeAttempts = 3
	probeTimeout  = 1 * time.Second
	probeDelay    = 1 * time.Second
)

const (
	publicKeysDirectory = "public-keys/"
	publicKeysPath      = "meta-data/public-keys"
	userDataPath        = "user-data"

	// maxTreeDepth bounds the traversal so a malformed listing that lists
	// itself cannot grow the worklist forever.
	maxTreeDepth = 32
)

// defaultDataCategories are the root prefixes seeding the option discovery
// walk, in documented left-to-right order.
var defaultDataCategories = []string{"dynamic/", "meta-data/"}
