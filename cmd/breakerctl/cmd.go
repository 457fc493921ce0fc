package main

import (
	"context"
	"fmt"
	"time"

	"breaker-gateway/config"
	"breaker-gateway/middleware/circuitbreaker"
	"breaker-gateway/middleware/circuitbreaker/domain"
	"breaker-gateway/pkg/logger"

	"github.com/spf13/cobra"
)

// controller é o subconjunto do Manager usado pela CLI.
type controller interface {
	State(ctx context.Context, service string) (domain.State, error)
	ForceState(ctx context.Context, service string, state domain.State, ttl time.Duration) error
	ClearOverride(ctx context.Context, service string) error
}

// builder abre o backend descrito no arquivo de configuração.
type builder func(ctx context.Context, configPath string) (controller, func() error, error)

func buildFromConfig(ctx context.Context, configPath string) (controller, func() error, error) {
	s, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	// a CLI só mostra avisos
	log, err := logger.New("warn", s.Logging.Environment)
	if err != nil {
		return nil, nil, err
	}
	m, closeFn, err := circuitbreaker.Build(ctx, s, log, nil)
	if err != nil {
		return nil, nil, err
	}
	return m, closeFn, nil
}

func newRootCmd(build builder) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "breakerctl",
		Short:        "Inspect and override shared circuit breakers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to circuit_breaker.yaml (default: ./circuit_breaker.yaml or ./config/)")

	withController := func(cmd *cobra.Command, fn func(ctx context.Context, c controller) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		c, closeFn, err := build(ctx, configPath)
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()
		return fn(ctx, c)
	}

	root.AddCommand(newStatusCmd(withController), newForceCmd(withController), newClearCmd(withController))
	return root
}

type runner func(cmd *cobra.Command, fn func(ctx context.Context, c controller) error) error

func newStatusCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "status <service>",
		Short: "Show the current state of a service circuit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c controller) error {
				st, err := c.State(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], st)
				return nil
			})
		},
	}
}

func newForceCmd(run runner) *cobra.Command {
	var ttlSeconds int

	cmd := &cobra.Command{
		Use:   "force <service> <closed|open|half_open>",
		Short: "Force a circuit state (override) until cleared or the TTL expires",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseState(args[1])
			if err != nil {
				return err
			}
			if ttlSeconds < 0 {
				return fmt.Errorf("--ttl must be >= 0")
			}
			ttl := time.Duration(ttlSeconds) * time.Second

			return run(cmd, func(ctx context.Context, c controller) error {
				if err := c.ForceState(ctx, args[0], st, ttl); err != nil {
					return err
				}
				expiry := "no expiry"
				if ttl > 0 {
					expiry = "ttl " + ttl.String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s forced to %s (%s)\n", args[0], st, expiry)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&ttlSeconds, "ttl", 0, "override lifetime in seconds (0 = until cleared)")
	return cmd
}

func newClearCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <service>",
		Short: "Remove the override and return to the derived state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c controller) error {
				if err := c.ClearOverride(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s override cleared\n", args[0])
				return nil
			})
		},
	}
}
