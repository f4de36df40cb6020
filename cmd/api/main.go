package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dunamismax/earthworm/internal/config"
	"github.com/dunamismax/earthworm/internal/pipeline"
	"github.com/dunamismax/earthworm/internal/provider"
	"github.com/dunamismax/earthworm/internal/webhook"
	"github.com/spf13/cobra"
)

// Version is set with -ldflags "-X main.Version=..." at build time.
var Version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "earthworm",
		Short: "HTTP bridge between the Earthworm web client and its n8n workflow",
		Long: `earthworm accepts chat requests with optional photo and voice note,
downsizes photos, forwards everything to the configured n8n webhook and
returns a uniform text reply.

Running without a sub-command starts the server.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	addServeFlags(root)

	root.AddCommand(
		newServeCmd(),
		newProbeCmd(),
		newNormalizeCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "earthworm %s\n", Version)
		},
	}
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, "["+prefix+"] ", log.LstdFlags|log.Lmsgprefix)
}

// newRegistry wires every provider kind that has an implementation. The
// others resolve to provider.ErrUnsupportedKind.
func newRegistry(cfg config.Config) *provider.Registry {
	return provider.NewRegistry(map[provider.Kind]provider.Factory{
		provider.KindN8N: func() (provider.Provider, error) {
			normalizer, err := pipeline.NewNormalizer(imageOptions(cfg))
			if err != nil {
				return nil, err
			}
			return webhook.NewClient(webhook.Config{
				Endpoint:      cfg.Webhook.URL,
				APIKey:        cfg.Webhook.APIKey,
				Timeout:       cfg.Webhook.Timeout,
				HealthTimeout: cfg.Webhook.HealthTimeout,
			}, normalizer, newLogger("bridge")), nil
		},
		provider.KindMock: func() (provider.Provider, error) {
			return provider.Mock{}, nil
		},
	})
}

func imageOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		MaxWidth:  cfg.Image.MaxWidth,
		MaxHeight: cfg.Image.MaxHeight,
		Quality:   cfg.Image.Quality,
	}
}
