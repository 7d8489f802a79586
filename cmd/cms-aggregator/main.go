// Command cms-aggregator merges sketches published by cms-engine nodes and
// serves queries against the merged view.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"Go2NetSketch/internal/api"
	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/federation"
	"Go2NetSketch/internal/pkg/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:          "cms-aggregator",
		Short:        "Merge sketches from engine nodes and serve queries",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the config file")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	closer, err := logger.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	if cfg.API.ListenAddr == "" && cfg.API.GRPCListenAddr == "" {
		return errors.New("no API listen address configured, nothing would read the merged sketches")
	}

	nc, err := federation.Connect(cfg.Federation, "cms-aggregator")
	if err != nil {
		return err
	}
	defer nc.Drain()

	store := federation.NewStore(cfg.Federation.TopK)
	sub := federation.NewSubscriber(nc, cfg.Federation)
	if err := sub.Start(store); err != nil {
		return err
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if window := cfg.Federation.WindowDuration(); window > 0 {
		go store.RunWindows(ctx, window)
	}

	log.Info().Msg("[aggregator] running")
	if err := api.Serve(ctx, cfg.API, store, nil); err != nil {
		return err
	}
	log.Info().Msg("[aggregator] shutdown complete")
	return nil
}
