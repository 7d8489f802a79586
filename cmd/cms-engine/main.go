// Command cms-engine counts live or captured traffic into count-min sketch
// tasks, writes snapshots and serves queries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Go2NetSketch/internal/api"
	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/engine/impl/sketch"
	"Go2NetSketch/internal/engine/manager"
	"Go2NetSketch/internal/engine/protocol"
	"Go2NetSketch/internal/federation"
	"Go2NetSketch/internal/model"
	"Go2NetSketch/internal/notification"
	"Go2NetSketch/internal/pkg/logger"
	"Go2NetSketch/internal/query"
	cmspcap "Go2NetSketch/pkg/pcap"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:          "cms-engine",
		Short:        "Count flows into count-min sketches",
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
	log.Info().Msgf("[engine] configuration loaded from %s", configPath)

	var nc *nats.Conn
	if cfg.Federation.Enabled || (cfg.Alerter.Enabled && cfg.Alerter.Notifier == "nats") {
		if nc, err = federation.Connect(cfg.Federation, "cms-engine"); err != nil {
			return err
		}
		defer nc.Drain()
	}

	var opts []manager.Option
	if cfg.Federation.Enabled {
		pub := federation.NewPublisher(nc, cfg.Federation)
		log.Info().Msgf("[engine] publishing sketches to '%s' as node %s", cfg.Federation.Subject, pub.Node())
		opts = append(opts, manager.WithPublisher(pub))
	}
	if cfg.Alerter.Enabled {
		notifier, err := notification.New(cfg.Alerter, nc)
		if err != nil {
			return err
		}
		opts = append(opts, manager.WithNotifier(notifier))
	}

	m, err := manager.NewManager(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}

	history, err := historyQuerier(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return capture(gctx, cfg.Source, m.Input())
	})
	if cfg.API.ListenAddr != "" || cfg.API.GRPCListenAddr != "" {
		g.Go(func() error {
			return api.Serve(gctx, cfg.API, m.Querier(), history)
		})
	}

	err = g.Wait()
	m.Stop()
	if err != nil && ctx.Err() == nil {
		return err
	}
	log.Info().Msg("[engine] shutdown complete")
	return nil
}

// capture feeds packets from the configured source into in until the source
// is exhausted or ctx is done.
func capture(ctx context.Context, src config.SourceConfig, in chan<- *model.PacketInfo) error {
	switch {
	case src.PcapFile != "":
		return replay(ctx, src.PcapFile, in)
	case src.Interface != "":
		return live(ctx, src, in)
	default:
		log.Warn().Msg("[engine] no packet source configured, serving queries only")
		<-ctx.Done()
		return nil
	}
}

func replay(ctx context.Context, path string, in chan<- *model.PacketInfo) error {
	r, err := cmspcap.NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	// ReadPackets closes its channel, and the manager owns in.
	packets := make(chan *model.PacketInfo, cap(in))
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for p := range packets {
			in <- p
		}
	}()
	n, err := r.ReadPackets(ctx, packets)
	<-forwarded
	if err != nil {
		return err
	}
	log.Info().Msgf("[engine] replayed %d packets from %s", n, path)
	return nil
}

func live(ctx context.Context, src config.SourceConfig, in chan<- *model.PacketInfo) error {
	handle, err := pcap.OpenLive(src.Interface, src.SnapLen, src.Promiscuous, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("error opening device %s: %w", src.Interface, err)
	}
	defer handle.Close()
	log.Info().Msgf("[engine] capturing on %s", src.Interface)

	packets := gopacket.NewPacketSource(handle, handle.LinkType()).Packets()
	for {
		select {
		case <-ctx.Done():
			return nil
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			info, err := protocol.ParsePacket(packet)
			if err != nil {
				continue
			}
			select {
			case in <- info:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// historyQuerier connects to the first enabled ClickHouse writer, if any.
func historyQuerier(cfg *config.Config) (api.Historian, error) {
	for _, w := range cfg.Aggregator.Sketch.Writers {
		if w.Enabled && w.Type == "clickhouse" {
			conn, err := sketch.Connect(w.ClickHouse)
			if err != nil {
				return nil, err
			}
			return query.NewHistoryQuerier(conn), nil
		}
	}
	return nil, nil
}
