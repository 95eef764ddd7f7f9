package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/substitution-breaker/internal/codec"
	"github.com/danielpatrickdp/substitution-breaker/internal/logging"
	"github.com/danielpatrickdp/substitution-breaker/internal/state"
	"github.com/danielpatrickdp/substitution-breaker/internal/verdict"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve decoding over gRPC",
	Args:  cobra.NoArgs,
	Run:   serveMain,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	serveCmd.Flags().Bool("trace", false, "persist sampler progress samples")
	serveCmd.Flags().Bool("verbose", false, "log model cache activity")
	rootCmd.AddCommand(serveCmd)
}

func serveMain(cmd *cobra.Command, _ []string) {
	cfg := loadConfig(cmd)
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}
	withTrace, _ := cmd.Flags().GetBool("trace")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := state.NewStore(cfg.DB)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if withTrace && cfg.Sampler.ProgressEvery == 0 {
		cfg.Sampler.ProgressEvery = 1000
	}
	srv, err := codec.NewServer(cfg)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	verdicts, err := verdict.NewStore(store.DB())
	if err != nil {
		log.Fatalf("verdict store: %v", err)
	}
	srv = srv.WithRecorder(store).WithVerdicts(verdicts).WithLogger(logger)
	if withTrace {
		srv = srv.WithTracer(logging.NewTraceSink(store.DB()))
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.Addr, err)
	}
	gs := grpc.NewServer()
	codec.RegisterDecoderServer(gs, srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	logger.Info("decoder ready", "addr", lis.Addr().String(), "db", cfg.DB)
	if err := gs.Serve(lis); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
