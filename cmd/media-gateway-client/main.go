// Command media-gateway-client runs the client relay: reads messages from
// an inbound transport socket and forwards each as an HTTP POST to a
// media-gateway-server, per spec.md §4.7.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/insight-platform/media-gateway-go/internal/clientpipeline"
	"github.com/insight-platform/media-gateway-go/internal/config"
	"github.com/insight-platform/media-gateway-go/internal/events"
	"github.com/insight-platform/media-gateway-go/internal/statistics"
	"github.com/insight-platform/media-gateway-go/internal/telemetry"
	"github.com/insight-platform/media-gateway-go/internal/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: media-gateway-client <config.json>")
		return 1
	}

	cfg, err := config.LoadClient(os.Args[1])
	if err != nil {
		slog.Error("startup failed", "error", err)
		return 1
	}

	bus := events.NewBus(200)
	logHandler := events.NewLogHandler(slog.LevelInfo, 1000)
	slog.SetDefault(slog.New(logHandler))

	if err := telemetry.Init(cfg.Telemetry.Build()); err != nil {
		slog.Error("telemetry init failed", "error", err)
		return 1
	}
	defer telemetry.Shutdown(context.Background())

	reader, err := transport.NewZMQReader(transport.ZMQReaderConfig{
		URL:         cfg.InStream.URL,
		ReceiveHWM:  cfg.InStream.ReceiveHWM,
		TopicPrefix: []byte(cfg.InStream.TopicPrefix),
		RoutingID:   []byte(cfg.InStream.RoutingID),
		SocketType:  zmq.SUB,
	})
	if err != nil {
		slog.Error("startup failed: transport reader", "error", err)
		return 1
	}

	statsCfg, err := cfg.Statistics.Build()
	if err != nil {
		slog.Error("startup failed: statistics config", "error", err)
		return 1
	}
	stats := statistics.New(statsCfg)

	tlsCfg, err := cfg.TLS.BuildClient()
	if err != nil {
		slog.Error("startup failed: tls config", "error", err)
		return 1
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if tlsCfg != nil {
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	forwarder := clientpipeline.NewHTTPForwarder(httpClient, clientpipeline.HTTPForwarderConfig{
		URL:      cfg.URL,
		Username: cfg.BasicAuthUser,
		Password: cfg.BasicAuthPass,
	})

	retryPolicy, err := cfg.RetryStrategy.Build()
	if err != nil {
		slog.Error("startup failed: retry strategy", "error", err)
		return 1
	}

	pipeline := clientpipeline.New(reader, forwarder, cfg.WaitStrategy.Build(), retryPolicy, stats, bus, cfg.InStream.InflightOps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go stats.RunPeriodicLog(ctx)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})
	healthSrv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.IP, cfg.Port), Handler: healthMux}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		pipeline.Stop()
		cancel()
		healthSrv.Shutdown(context.Background())
	}()

	if err := pipeline.Run(ctx); err != nil {
		slog.Error("pipeline exited with error", "error", err)
		return 1
	}
	return 0
}
