package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/query"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the HTTP and gRPC servers configured in cfg until ctx is done.
// A server with an empty listen address is not started.
func Serve(ctx context.Context, cfg config.APIConfig, q query.Querier, history Historian) error {
	g, ctx := errgroup.WithContext(ctx)

	if cfg.ListenAddr != "" {
		server := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           NewRouter(q, history),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Msgf("[api] HTTP server starting on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			log.Info().Msg("[api] HTTP server shutting down")
			return server.Shutdown(sctx)
		})
	}

	if cfg.GRPCListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
		if err != nil {
			return err
		}
		grpcServer := grpc.NewServer()
		RegisterSketchService(grpcServer, q)
		g.Go(func() error {
			log.Info().Msgf("[api] gRPC server starting on %s", cfg.GRPCListenAddr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			log.Info().Msg("[api] gRPC server shutting down")
			grpcServer.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}
