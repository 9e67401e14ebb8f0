package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spellquest/vocab-api/internal/platform/config"
	"github.com/spellquest/vocab-api/internal/platform/observability"
)

type commandContext struct {
	envFile  string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

func (c *commandContext) ensureConfig(ctx context.Context) (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	var opts []config.Option
	if path := strings.TrimSpace(c.envFile); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}
	cfg, err := config.Load(ctx, opts...)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			return config.Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(invalid.Fields(), ", "))
		}
		return config.Config{}, err
	}
	c.cfg = &cfg
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*zap.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	logger, err := observability.NewLogger(c.logLevel)
	if err != nil {
		return nil, fmt.Errorf("initialise logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

func newRootCommand() *cobra.Command {
	cmdCtx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "vocab-api",
		Short:         "Vocabulary ingestion service for scanned word sheets",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cmdCtx.envFile, "env-file", "", "Path to a .env file with configuration overrides")
	rootCmd.PersistentFlags().StringVar(&cmdCtx.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")

	rootCmd.AddCommand(newServeCommand(cmdCtx))
	rootCmd.AddCommand(newIngestCommand(cmdCtx))

	return rootCmd
}
