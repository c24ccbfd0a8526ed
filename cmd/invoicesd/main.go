package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
	"github.com/joseph-ayodele/invoice-pipeline/internal/registry"
	repo "github.com/joseph-ayodele/invoice-pipeline/internal/repository"
	"github.com/joseph-ayodele/invoice-pipeline/internal/server"
)

var version = "dev"

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "invoicesd",
		Short:         "Invoice extraction service (HTTP API, gRPC health, inbox watcher)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFile)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default ./invoices.yaml)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "invoicesd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgFile string) error {
	cfg, err := common.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	invoices := repo.NewInvoiceRepository(db, logger)
	exporter := export.NewService(invoices, logger)

	comps, err := app.BuildEngine(cfg, logger)
	if err != nil {
		return err
	}
	jobs := registry.New(comps.Engine, logger,
		registry.WithWorkers(cfg.Registry.Workers),
		registry.WithQueueSize(cfg.Registry.QueueSize),
		registry.WithJobTimeout(cfg.Registry.JobTimeout),
	)

	api := server.NewAPI(server.Config{
		UploadDir:   cfg.Server.UploadDir,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		Version:     version,
	}, jobs, invoices, exporter, db, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv, hs := server.NewGRPCServer()
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("invoicesd.http.listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("invoicesd.grpc.listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		server.ProbeHealth(gctx, hs, db, 15*time.Second, logger)
		return nil
	})
	if cfg.Ingest.WatchDir != "" {
		inbox := ingest.NewInbox(jobs, logger)
		g.Go(func() error {
			return inbox.Run(gctx, ingest.WatchConfig{
				Roots:       []string{cfg.Ingest.WatchDir},
				InitialScan: cfg.Ingest.InitialScan,
				Debounce:    cfg.Ingest.Debounce,
				SkipHidden:  true,
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("invoicesd.shutdown.start")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpSrv.Shutdown(sctx); err != nil {
			logger.Warn("invoicesd.http.shutdown", "error", err)
		}
		grpcSrv.GracefulStop()
		if err := jobs.Shutdown(sctx); err != nil {
			logger.Warn("invoicesd.registry.shutdown", "error", err)
		}
		logger.Info("invoicesd.shutdown.done")
		return nil
	})
	return g.Wait()
}
