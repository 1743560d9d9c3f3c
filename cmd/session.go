package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/metrics"
	"github.com/BioHazard786/Warpcall/internal/rtc"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownWait = 5 * time.Second

// ConnectionContext is one participant process: the relay connection, the
// call machine fed by it, and the transport provider behind the machine.
type ConnectionContext struct {
	Config   *config.Config
	Client   *signaling.Client
	Router   *signaling.Router
	Machine  *call.Machine
	Provider *rtc.Provider
	Registry *prometheus.Registry

	metricsServer *http.Server
	cancel        context.CancelFunc
}

// NewConnectionContext connects to the relay and builds the call machine.
// notify receives the machine's notifications and must not block.
func NewConnectionContext(ctx context.Context, cfg *config.Config, notify func(call.Notification)) (*ConnectionContext, error) {
	reg := prometheus.NewRegistry()

	provider, err := rtc.NewProvider(rtc.Options{Config: cfg, Logger: slog.Default()})
	if err != nil {
		return nil, call.WrapError("prepare media", "", call.ErrResourceUnavailable, err.Error())
	}

	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		return nil, err
	}
	client := signaling.NewClient(wsURL)
	if err := client.Connect(ctx); err != nil {
		return nil, call.WrapError("connect to relay", "", call.ErrChannel, err.Error())
	}

	machine := call.New(call.Options{
		Self:    cfg.UserID,
		Sender:  client,
		Adapter: provider,
		Notify:  notify,
		Metrics: metrics.NewCall(reg),
	})
	router := signaling.NewRouter()
	machine.Register(router)

	return &ConnectionContext{
		Config:   cfg,
		Client:   client,
		Router:   router,
		Machine:  machine,
		Provider: provider,
		Registry: reg,
	}, nil
}

// Start runs the machine and the inbound router until ctx ends or Close is
// called. A lost relay connection is reported to the machine.
func (c *ConnectionContext) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		if err := c.Machine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("call machine stopped", "err", err)
		}
	}()
	go func() {
		err := c.Router.Run(ctx, c.Client.Incoming())
		if errors.Is(err, signaling.ErrClosed) {
			c.Machine.ChannelLost(c.Client.Err())
		}
	}()

	if c.Config.MetricsAddr != "" {
		c.serveMetrics()
	}
}

func (c *ConnectionContext) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle(config.DefaultMetricsPath, metrics.Handler(c.Registry))
	c.metricsServer = &http.Server{
		Addr:              c.Config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("serving metrics", "addr", c.Config.MetricsAddr)
		if err := c.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "err", err)
		}
	}()
}

// Close stops the machine, which releases any active call, then drops the
// relay connection.
func (c *ConnectionContext) Close() {
	if c.cancel != nil {
		c.cancel()
		select {
		case <-c.Machine.Done():
		case <-time.After(shutdownWait):
			slog.Warn("call machine did not stop in time")
		}
	}
	if c.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		_ = c.metricsServer.Shutdown(ctx)
		cancel()
	}
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupLogging routes logs to --log-file, or to fallback when the command
// owns the terminal. The returned closer is never nil.
func setupLogging(fallback string) (io.Closer, error) {
	path := flagLogFile
	if path == "" {
		path = fallback
	}
	if path == "" {
		logging.Init(logging.Options{Level: flagLogLevel})
		return io.NopCloser(nil), nil
	}

	f, err := logging.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logging.Init(logging.Options{Level: flagLogLevel, Output: f})
	return f, nil
}

func defaultClientLog() string {
	return filepath.Join(os.TempDir(), "warpcall.log")
}
