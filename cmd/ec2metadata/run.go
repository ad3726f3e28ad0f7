// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pubcloud-tools/ec2metadata/internal/imds"
	"go.uber.org/zap"
)

type options struct {
	apiVersion      string
	endpoint        string
	listOptions     bool
	listAPIVersions bool
	output          string
}

func run(ctx context.Context, logger *zap.Logger, opts *options, args []string) error {
	client, err := imds.NewClient(ctx, imds.Config{Endpoint: opts.endpoint}, logger)
	if err != nil {
		return fmt.Errorf("constructing metadata client: %w", err)
	}
	if _, err := client.SetAPIVersion(ctx, opts.apiVersion); err != nil {
		return fmt.Errorf("setting API version: %w", err)
	}

	out := io.Writer(os.Stdout)
	if opts.output != "" {
		outFile, err := os.OpenFile(opts.output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		defer outFile.Close()
		out = outFile
	}

	switch {
	case opts.listAPIVersions:
		versions, err := client.GetAvailableAPIVersions(ctx)
		if err != nil {
			return fmt.Errorf("listing available API versions: %w", err)
		}
		return writeLines(out, versions)
	case opts.listOptions:
		return writeLines(out, client.GetMetaDataOptions())
	case len(args) > 0:
		return queryOptions(ctx, client, out, args, false)
	default:
		return queryOptions(ctx, client, out, client.GetMetaDataOptions(), true)
	}
}

// queryOptions fetches each named option and writes its value. Explicitly
// requested options print values only, keeping single-option queries
// script-friendly; the print-everything form labels each value with its
// option name.
func queryOptions(ctx context.Context, client *imds.Client, out io.Writer, names []string, labeled bool) error {
	for _, name := range names {
		values, err := client.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("querying option %q: %w", name, err)
		}
		value := strings.Join(values, "\n")
		if labeled {
			if _, err := fmt.Fprintf(out, "%s: %s\n", name, value); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(out, value); err != nil {
			return err
		}
	}
	return nil
}

func writeLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// exitCodeFor maps error taxonomy to process exit codes: caller errors get
// distinct codes so scripts can tell a typo from a broken network.
func exitCodeFor(err error) int {
	switch imds.GetErrorType(err) {
	case imds.ErrorTypeUnknownOption:
		return 2
	case imds.ErrorTypeUnsupportedVersion:
		return 3
	default:
		return 1
	}
}
