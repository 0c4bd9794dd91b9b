package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/pendsync/internal/api"
	"github.com/dgnsrekt/pendsync/internal/controller"
	"github.com/dgnsrekt/pendsync/internal/metrics"
	"github.com/dgnsrekt/pendsync/internal/netutil"
	"github.com/dgnsrekt/pendsync/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP controller that triggers runs and serves their history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx := cmd.Context()

		slog.Info("pendsync config loaded",
			"bind_addr", cfg.BindAddr,
			"port_auto_fallback", cfg.PortAutoFallback,
			"port_candidates", cfg.PortCandidates,
			"portal", cfg.PortalBaseURL,
			"headless", cfg.Headless,
			"remote_cdp", cfg.RemoteCDPURL != "",
			"snapshot_dir", cfg.SnapshotDir,
			"history_dir", cfg.HistoryDir,
			"log_level", cfg.LogLevel,
		)

		bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
		if err != nil {
			return fmt.Errorf("select bind address %s: %w", cfg.BindAddr, err)
		}

		collector := metrics.NewCollector(true)
		stack, err := pipeline.Assemble(ctx, cfg, collector, cfg.MetricsTextfile)
		if err != nil {
			return err
		}
		defer func() {
			if err := stack.Close(); err != nil {
				slog.Debug("run history close failed", "error", err)
			}
		}()

		svc := controller.NewService(stack.Runner, stack.History, stack.Snapshots)
		stack.Runner.Observe = svc.Observe
		srv := &http.Server{
			Addr:              bindAddr,
			Handler:           api.NewServer(svc, collector),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			slog.Info("pendsync controller listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("controller server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("pendsync controller shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				slog.Error("controller shutdown failed", "error", err)
			}
			if err := svc.Shutdown(sctx); err != nil {
				slog.Error("in-flight run did not stop before shutdown deadline", "error", err)
			}
			return nil
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
