package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/pinsync/internal/client"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the pin list reconciled with the cluster",
	Long: `Watch refreshes the pin list on an interval and whenever the wallet
account changes. With --metrics-addr it serves Prometheus metrics.`,
	Example: `  pinsync watch --interval 30s --metrics-addr :9100`,
	Args:    cobra.NoArgs,
	RunE:    runWatch,
}

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute,
		"Refresh interval")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "",
		"Serve /metrics on this address")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr := watchMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.WithField("addr", addr).Info("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	apiClient.Watch(ctx, watchInterval, func(e client.Event) {
		if jsonOutput {
			out := map[string]interface{}{
				"time":    e.Time,
				"account": e.Account,
				"pins":    e.Items,
			}
			if e.Err != nil {
				out["error"] = e.Err.Error()
			}
			printJSON(out)
			return
		}
		if e.Err != nil {
			printWarning("%s refresh failed: %v", e.Time.Format(time.TimeOnly), e.Err)
			return
		}
		printInfo("%s %d pins (account %s)", e.Time.Format(time.TimeOnly), e.Items, e.Account)
	})
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
