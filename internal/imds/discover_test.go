// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package imds

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func fetchFromTree(tree map[string]string) func(ctx context.Context, path string) (string, error) {
	return func(_ context.Context, path string) (string, error) {
		content, ok := tree[path]
		if !ok {
			return "", errNotFound
		}
		return content, nil
	}
}

func newTestDiscoverer(tree map[string]string) *discoverer {
	return &discoverer{
		logger: zap.NewNop(),
		fetch:  fetchFromTree(tree),
	}
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name            string
		tree            map[string]string
		expectedOptions map[string]string
		absentNames     []string
	}{
		{
			name: "flattens leaves and directories",
			tree: map[string]string{
				"dynamic/":                   "instance-identity/\n",
				"dynamic/instance-identity/": "document\nsignature\n",
				"meta-data/":                 "instance-id\nhostname\n",
				"meta-data/instance-id":      "i-1234",
				"meta-data/hostname":         "ip-10-0-0-1",
			},
			expectedOptions: map[string]string{
				"instance-id": "meta-data/instance-id",
				"hostname":    "meta-data/hostname",
				"document":    "dynamic/instance-identity/document",
				"signature":   "dynamic/instance-identity/signature",
				"public-keys": "meta-data/public-keys",
				"user-data":   "user-data",
			},
		},
		{
			name: "skips the public-keys directory during generic recursion",
			tree: map[string]string{
				"dynamic/":               "",
				"meta-data/":             "public-keys/\ninstance-id\n",
				"meta-data/public-keys/": "0=my-key\n",
				"meta-data/instance-id":  "i-1234",
			},
			expectedOptions: map[string]string{
				"instance-id": "meta-data/instance-id",
				"public-keys": "meta-data/public-keys",
			},
			absentNames: []string{"0=my-key"},
		},
		{
			name: "expands both colliding names",
			tree: map[string]string{
				"dynamic/":                                 "",
				"meta-data/":                               "network/\n",
				"meta-data/network/":                       "interfaces/\n",
				"meta-data/network/interfaces/":            "macs/\n",
				"meta-data/network/interfaces/macs/":       "02:aa/\n02:bb/\n02:cc/\n",
				"meta-data/network/interfaces/macs/02:aa/": "mac\n",
				"meta-data/network/interfaces/macs/02:bb/": "mac\n",
				"meta-data/network/interfaces/macs/02:cc/": "mac\n",
			},
			expectedOptions: map[string]string{
				"02:aa-mac": "meta-data/network/interfaces/macs/02:aa/mac",
				"02:bb-mac": "meta-data/network/interfaces/macs/02:bb/mac",
				"02:cc-mac": "meta-data/network/interfaces/macs/02:cc/mac",
			},
			absentNames: []string{"mac"},
		},
		{
			name: "seeded names keep their mapping when a leaf collides",
			tree: map[string]string{
				"dynamic/":            "",
				"meta-data/":          "user-data\n",
				"meta-data/user-data": "something",
			},
			expectedOptions: map[string]string{
				"user-data":           "user-data",
				"meta-data-user-data": "meta-data/user-data",
			},
		},
		{
			name: "a leaf named like an expanded entry leaves the expanded entry intact",
			tree: map[string]string{
				"dynamic/":       "",
				"meta-data/":     "foo/\nbar/\nzzz/\n",
				"meta-data/foo/": "mac\n",
				"meta-data/bar/": "mac\n",
				"meta-data/zzz/": "foo-mac\n",
			},
			expectedOptions: map[string]string{
				"foo-mac":     "meta-data/foo/mac",
				"bar-mac":     "meta-data/bar/mac",
				"zzz-foo-mac": "meta-data/zzz/foo-mac",
			},
			absentNames: []string{"mac", "mac-foo-mac"},
		},
		{
			name: "slash-only listing lines are ignored",
			tree: map[string]string{
				"dynamic/":              "",
				"meta-data/":            "/\n//\ninstance-id\n",
				"meta-data/instance-id": "i-1234",
			},
			expectedOptions: map[string]string{
				"instance-id": "meta-data/instance-id",
			},
		},
		{
			name: "unreadable branches contribute no entries",
			tree: map[string]string{
				"meta-data/":            "instance-id\nbroken/\n",
				"meta-data/instance-id": "i-1234",
			},
			expectedOptions: map[string]string{
				"instance-id": "meta-data/instance-id",
			},
			absentNames: []string{"broken"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := newTestDiscoverer(tt.tree).Discover(context.Background(), defaultDataCategories)
			for name, path := range tt.expectedOptions {
				assert.Equal(t, path, options[name], "option %q", name)
			}
			for _, name := range tt.absentNames {
				assert.NotContains(t, options, name)
			}
		})
	}
}

func TestDiscoverDeterminism(t *testing.T) {
	tree := map[string]string{
		"dynamic/":                                 "instance-identity/\n",
		"dynamic/instance-identity/":               "document\n",
		"meta-data/":                               "placement/\nnetwork/\n",
		"meta-data/placement/":                     "availability-zone\n",
		"meta-data/network/":                       "interfaces/\n",
		"meta-data/network/interfaces/":            "macs/\n",
		"meta-data/network/interfaces/macs/":       "02:aa/\n02:bb/\n",
		"meta-data/network/interfaces/macs/02:aa/": "mac\nlocal-ipv4s\n",
		"meta-data/network/interfaces/macs/02:bb/": "mac\nlocal-ipv4s\n",
	}

	first := newTestDiscoverer(tree).Discover(context.Background(), defaultDataCategories)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, newTestDiscoverer(tree).Discover(context.Background(), defaultDataCategories))
	}
}

func TestDiscoverDepthGuard(t *testing.T) {
	// every directory lists another directory, forever
	d := &discoverer{
		logger: zap.NewNop(),
		fetch: func(_ context.Context, path string) (string, error) {
			return "loop/\n", nil
		},
	}

	options := d.Discover(context.Background(), defaultDataCategories)
	assert.NotEmpty(t, options)
	for _, path := range options {
		assert.LessOrEqual(t, pathDepth(path), maxTreeDepth+1)
	}
}

func TestDiscoverSelfListingDirectory(t *testing.T) {
	// a directory whose listing is a single "/" line must not keep the walk
	// revisiting itself at the same depth
	var fetches int
	d := &discoverer{
		logger: zap.NewNop(),
		fetch: func(_ context.Context, path string) (string, error) {
			fetches++
			return "/\n", nil
		},
	}

	options := d.Discover(context.Background(), defaultDataCategories)
	assert.Equal(t, len(defaultDataCategories), fetches)
	assert.Equal(t, map[string]string{
		"public-keys": publicKeysPath,
		"user-data":   userDataPath,
	}, options)
}

func TestExpandName(t *testing.T) {
	tests := []struct {
		name     string
		dir      string
		leaf     string
		segments int
		expected string
	}{
		{
			name:     "single segment",
			dir:      "meta-data/network/interfaces/macs/02:aa/",
			leaf:     "mac",
			segments: 1,
			expected: "02:aa-mac",
		},
		{
			name:     "two segments",
			dir:      "meta-data/network/interfaces/macs/02:aa/",
			leaf:     "mac",
			segments: 2,
			expected: "macs-02:aa-mac",
		},
		{
			name:     "segments clamped to available depth",
			dir:      "meta-data/",
			leaf:     "hostname",
			segments: 2,
			expected: "meta-data-hostname",
		},
		{
			name:     "no preceding segments",
			dir:      "",
			leaf:     "hostname",
			segments: 1,
			expected: "hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandName(tt.dir, tt.leaf, tt.segments))
		})
	}
}
