package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/metrics"
	"github.com/BioHazard786/Warpcall/internal/relay"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	flagListen    string
	flagNoMetrics bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the WebSocket relay participants connect to.

Participants connect on /ws/{user_id}. The relay only tracks rooms and
forwards call signaling; it never sees media.

Examples:
  warpcall relay
  warpcall relay --listen :9000 --log-level info`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd.Context())
	},
}

func init() {
	relayCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Listen address (env PORT, default "+config.DefaultListen+")")
	relayCmd.Flags().BoolVar(&flagNoMetrics, "no-metrics", false, "Do not expose "+config.DefaultMetricsPath)
}

func listenAddr() string {
	if flagListen != "" {
		return flagListen
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return config.DefaultListen
}

func runRelay(ctx context.Context) error {
	logs, err := setupLogging("")
	if err != nil {
		return err
	}
	defer logs.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := relay.NewHub(metrics.NewRelay(reg))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	var metricsHandler http.Handler
	if !flagNoMetrics {
		metricsHandler = metrics.Handler(reg)
	}

	addr := listenAddr()
	server := &http.Server{
		Addr:              addr,
		Handler:           relay.Routes(hub, metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting relay", "addr", addr)
		errCh <- server.ListenAndServe()
	}()
	printRelayBanner(addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	// Stop the hub first so hijacked websocket connections get closed.
	stopHub()
	return server.Shutdown(shutdownCtx)
}

func printRelayBanner(addr string) {
	ui.PrintSuccessf("Relay listening on %s", addr)
	ui.PrintInfof("Participants connect to ws://<host>%s/ws/{user_id}", addr)
	if !flagNoMetrics {
		ui.PrintInfof("Metrics at http://<host>%s%s", addr, config.DefaultMetricsPath)
	}
}
