// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package imds

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// discoverer walks the metadata tree and flattens it into a map from option
// name to request path. The walk uses an explicit worklist rather than
// call-stack recursion so a malformed listing cannot blow the stack.
type discoverer struct {
	logger *zap.Logger
	fetch  func(ctx context.Context, relativePath string) (string, error)
}

// Discover flattens the tree beneath each root category, in order, into an
// option map. Failures on individual branches contribute no entries and
// never abort the walk.
func (d *discoverer) Discover(ctx context.Context, categories []string) map[string]string {
	// entries with special semantics, seeded before traversal
	options := map[string]string{
		"public-keys": publicKeysPath,
		"user-data":   userDataPath,
	}
	seeded := map[string]bool{
		"public-keys": true,
		"user-data":   true,
	}
	duplicates := make(map[string]bool)

	for _, root := range categories {
		d.walk(ctx, root, options, seeded, duplicates)
	}
	return options
}

func (d *discoverer) walk(ctx context.Context, root string, options map[string]string, seeded, duplicates map[string]bool) {
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if pathDepth(dir) > maxTreeDepth {
			d.logger.Warn("metadata branch exceeds depth limit, skipping", zap.String("path", dir))
			continue
		}

		listing, err := d.fetch(ctx, dir)
		if err != nil {
			d.logger.Debug("skipping unreadable metadata branch", zap.String("path", dir), zap.Error(err))
			continue
		}

		var subdirs []string
		for _, line := range strings.Split(listing, "\n") {
			entry := strings.TrimRight(line, "\r")
			// a line of only slashes names no child; recursing into it
			// would revisit dir at the same depth forever
			if strings.Trim(entry, "/") == "" {
				continue
			}
			// public keys use a dedicated listing format and are retrieved
			// through their own sub-protocol, never flattened generically
			if entry == publicKeysDirectory {
				continue
			}
			if strings.HasSuffix(entry, "/") {
				subdirs = append(subdirs, dir+entry)
				continue
			}
			d.record(options, seeded, duplicates, dir, entry)
		}

		// push in reverse so branches pop in listing order
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
}

// record inserts the leaf found under dir into the option map, expanding
// colliding names so sibling branches never overwrite each other.
func (d *discoverer) record(options map[string]string, seeded, duplicates map[string]bool, dir, leaf string) {
	path := dir + leaf

	// a name once seen under more than one branch never lands in the map
	// bare again
	if duplicates[leaf] {
		d.insertExpanded(options, dir, leaf)
		return
	}

	existingPath, exists := options[leaf]
	if !exists {
		options[leaf] = path
		return
	}
	if existingPath == path {
		return
	}

	duplicates[leaf] = true
	if seeded[leaf] {
		// seeded entries keep their special mapping; only the discovered
		// leaf is stored under an expanded name
		d.insertExpanded(options, dir, leaf)
		return
	}

	// first collision: rename both the existing and the new entry. The
	// existing path ends in the leaf only when it was stored under its bare
	// name; otherwise the name is an already-expanded entry for a different
	// leaf and keeps its mapping untouched.
	if strings.HasSuffix(existingPath, leaf) {
		delete(options, leaf)
		d.insertExpanded(options, strings.TrimSuffix(existingPath, leaf), leaf)
	}
	d.insertExpanded(options, dir, leaf)
}

func (d *discoverer) insertExpanded(options map[string]string, dir, leaf string) {
	path := dir + leaf
	name := expandName(dir, leaf, 1)
	if existing, ok := options[name]; ok && existing != path {
		name = expandName(dir, leaf, 2)
	}
	options[name] = path
}

// expandName disambiguates leaf with the last one or two path segments
// preceding it, joined by hyphens: a leaf "mac" under
// "meta-data/network/interfaces/macs/02:ab.../" becomes "02:ab...-mac".
func expandName(dir, leaf string, segments int) string {
	parts := splitPathSegments(dir)
	if len(parts) == 0 {
		return leaf
	}
	if segments > len(parts) {
		segments = len(parts)
	}
	return strings.Join(append(parts[len(parts)-segments:], leaf), "-")
}

func splitPathSegments(dir string) []string {
	var parts []string
	for _, part := range strings.Split(dir, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func pathDepth(path string) int {
	return len(splitPathSegments(path))
}
