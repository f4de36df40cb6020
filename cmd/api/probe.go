package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/earthworm/internal/config"
	"github.com/dunamismax/earthworm/internal/provider"
	"github.com/spf13/cobra"
)

var errUnhealthy = errors.New("provider is unhealthy")

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the configured provider is reachable",
		Long: `probe runs the same health check the /health endpoint reports and
exits non-zero when the provider does not answer.`,
		Args: cobra.NoArgs,
		RunE: runProbe,
	}
	cmd.Flags().String("provider", "", "Provider to probe (defaults to AI_PROVIDER)")
	return cmd
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if name, _ := cmd.Flags().GetString("provider"); name != "" {
		cfg.Provider.Kind = name
	}

	kind, err := provider.ParseKind(cfg.Provider.Kind)
	if err != nil {
		return err
	}

	p, err := newRegistry(cfg).Get(kind)
	if err != nil {
		return err
	}

	start := time.Now()
	healthy := p.HealthCheck(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "provider=%s healthy=%t elapsed=%s\n", kind, healthy, time.Since(start).Round(time.Millisecond))
	if !healthy {
		return fmt.Errorf("%w: %s", errUnhealthy, kind)
	}
	return nil
}
