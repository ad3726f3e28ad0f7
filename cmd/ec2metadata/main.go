// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagAPIVersion      = "api"
	flagEndpoint        = "endpoint"
	flagListOptions     = "list-options"
	flagListAPIVersions = "list-api-versions"
	flagOutput          = "output"
	flagLogFile         = "log-file"
	flagLogFormat       = "log-format"
	flagVerbose         = "verbose"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCommand() *cobra.Command {
	var (
		opts    = &options{}
		logFile string
		format  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:           "ec2metadata [option ...]",
		Short:         "ec2metadata - query EC2 instance metadata and print it as named options",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := getLoggerForCmd(logFile, format, verbose)
			if err != nil {
				return err
			}
			defer flush(logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, logger, opts, args); err != nil {
				logger.Error("query failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.apiVersion, flagAPIVersion, "", "API version to query. Defaults to the latest version.")
	cmd.Flags().StringVar(&opts.endpoint, flagEndpoint, "", "Metadata endpoint host to use instead of probing the well-known addresses.")
	cmd.Flags().BoolVar(&opts.listOptions, flagListOptions, false, "List the discovered option names and exit.")
	cmd.Flags().BoolVar(&opts.listAPIVersions, flagListAPIVersions, false, "List the API versions advertised by the service and exit.")
	cmd.Flags().StringVar(&opts.output, flagOutput, "", "Path to the file where query results will be written instead of stdout.")
	cmd.Flags().StringVar(&logFile, flagLogFile, "", "Path to the file where logs will be written.")
	cmd.Flags().StringVar(&format, flagLogFormat, "console", "Log format: json or console.")
	cmd.Flags().BoolVar(&verbose, flagVerbose, false, "Enable verbose logging.")
	return cmd
}

func getLoggerForCmd(logFile, format string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	// logs go to stderr so query results on stdout stay parseable
	cfg.OutputPaths = []string{"stderr"}
	if logFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logFile)
	}
	// quiet by default so query results stay the only interesting output
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	if !strings.EqualFold(format, "json") {
		cfg.Encoding = "console"
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func flush(logger *zap.Logger) {
	syncErr := logger.Sync()
	if syncErr == nil {
		return
	}

	switch {
	case errors.Is(syncErr, syscall.ENOTTY):
		// This is a known issue with Zap when redirecting stdout/stderr to a console
		// https://github.com/uber-go/zap/issues/880#issuecomment-1181854418
		return
	default:
		logger.Error("Error during logger sync", zap.Error(syncErr))
	}
}
