package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"modelhub/internal/app"
	"modelhub/internal/grpcserver"
	"modelhub/internal/logging"
	"modelhub/pkg/utils"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}

	a, err := app.New(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("bootstrap")
	}
	defer a.Close()

	listener, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logging.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("grpc listen failed")
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.UnaryLogger()))
	grpcserver.RegisterAggregatorServiceServer(grpcServer, grpcserver.NewServer(a.Agg, cfg.Aggregate.DefaultPageSize))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		grpcServer.GracefulStop()
	}()

	logging.Info().Str("addr", cfg.Server.GRPCAddr).Msg("gRPC server listening")
	if err := grpcServer.Serve(listener); err != nil {
		logging.Error().Err(err).Msg("grpc server stopped")
	}
}
