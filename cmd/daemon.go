package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/redhouse-home/heatctl/core/executor"
	"github.com/redhouse-home/heatctl/infra/metrics"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the executor loop until interrupted",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obs executor.Observer = executor.NopObserver{}
	var srv *http.Server
	if cfg.Metrics.Enabled {
		prom, err := metrics.NewPromObserver()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		obs = prom
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			log.Infof("serving metrics on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	exec, closeFn, err := buildExecutor(obs)
	if err != nil {
		return err
	}
	defer closeFn()

	interval := time.Duration(cfg.Executor.TickSeconds) * time.Second
	log.Infof("executor loop started, ticking every %s", interval)

	tick := func() {
		report, err := exec.Tick(ctx)
		if err != nil {
			log.Errorf("tick: %v", err)
			return
		}
		logReport(report)
	}
	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infof("shutting down")
			if srv != nil {
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutCtx); err != nil {
					log.Errorf("metrics shutdown: %v", err)
				}
			}
			return nil
		case <-ticker.C:
			tick()
		}
	}
}
