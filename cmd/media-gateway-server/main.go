// Command media-gateway-server runs the server relay: an HTTP handler that
// authenticates, authorizes, and re-emits messages on an outbound transport
// socket, per spec.md §4.8.
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

	"github.com/insight-platform/media-gateway-go/internal/auth"
	"github.com/insight-platform/media-gateway-go/internal/cache"
	"github.com/insight-platform/media-gateway-go/internal/config"
	"github.com/insight-platform/media-gateway-go/internal/directory"
	"github.com/insight-platform/media-gateway-go/internal/events"
	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
	"github.com/insight-platform/media-gateway-go/internal/passwordhash"
	"github.com/insight-platform/media-gateway-go/internal/serverpipeline"
	"github.com/insight-platform/media-gateway-go/internal/statistics"
	"github.com/insight-platform/media-gateway-go/internal/telemetry"
	"github.com/insight-platform/media-gateway-go/internal/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: media-gateway-server <config.json>")
		return 1
	}

	cfg, err := config.LoadServer(os.Args[1])
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

	writer, err := transport.NewZMQWriter(transport.ZMQWriterConfig{
		URL:         cfg.OutStream.URL,
		SendHWM:     cfg.OutStream.SendHWM,
		SendTimeout: cfg.OutStream.SendTimeoutMs,
		RecvTimeout: cfg.OutStream.RecvTimeoutMs,
		SocketType:  zmq.REQ,
	})
	if err != nil {
		slog.Error("startup failed: transport writer", "error", err)
		return 1
	}

	statsCfg, err := cfg.Statistics.Build()
	if err != nil {
		slog.Error("startup failed: statistics config", "error", err)
		return 1
	}
	stats := statistics.New(statsCfg)

	var authenticator serverpipeline.Authenticator
	var watchdogs []*cache.UsageWatchdog
	var dir *directory.Directory
	if cfg.Auth != nil {
		guard, d, wds, err := buildGuard(*cfg.Auth)
		if err != nil {
			slog.Error("startup failed: auth", "error", err)
			return 1
		}
		authenticator = guard
		dir = d
		watchdogs = wds
	}

	svc := serverpipeline.NewService(writer, authenticator, stats, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go stats.RunPeriodicLog(ctx)
	for _, wd := range watchdogs {
		go wd.Run(ctx)
	}

	tlsCfg, err := cfg.TLS.BuildServer()
	if err != nil {
		slog.Error("startup failed: tls config", "error", err)
		return 1
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", serverpipeline.Health)
	mux.Handle("/", svc)

	httpSrv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.IP, cfg.Port), Handler: mux, TLSConfig: tlsCfg}
	go func() {
		var err error
		if tlsCfg != nil {
			err = httpSrv.ListenAndServeTLS("", "")
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-sigCh
	slog.Info("shutdown signal received")
	cancel()
	httpSrv.Shutdown(context.Background())
	svc.Close()
	if dir != nil {
		if err := dir.Close(); err != nil {
			slog.Warn("user directory close failed", "error", err)
		}
	}
	return 0
}

// buildGuard wires the user directory, credential cache, and quarantine into
// an auth.Guard. The returned *directory.Directory owns a background etcd
// watch goroutine (see internal/directory/directory.go); callers must Close
// it on the same shutdown path as everything else.
func buildGuard(authCfg config.AuthConfig) (*auth.Guard, *directory.Directory, []*cache.UsageWatchdog, error) {
	dirCfg, err := authCfg.BuildDirectory()
	if err != nil {
		return nil, nil, nil, err
	}
	dir, err := directory.New(dirCfg)
	if err != nil {
		return nil, nil, nil, err
	}

	credCache, err := cache.NewLruCache[mgmodel.Credentials, mgmodel.BasicAuthCheckResult](authCfg.CredentialCache.Size)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("credential cache: %w", err)
	}

	quarantinePeriod, err := authCfg.QuarantinePeriod()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("quarantine period: %w", err)
	}
	setSize := authCfg.Quarantine.SetSize
	if setSize <= 0 {
		setSize = 4096
	}
	quarantine, err := auth.NewQuarantine(quarantinePeriod, authCfg.Quarantine.FailedAttemptLimit, setSize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("quarantine: %w", err)
	}

	guard := auth.NewGuard(dir, passwordhash.Verify, credCache, quarantine)

	var watchdogs []*cache.UsageWatchdog
	if usage := authCfg.CredentialCache.Usage; usage != nil {
		period, err := time.ParseDuration(usage.Period)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("credential_cache.usage.period: %w", err)
		}
		watchdogs = append(watchdogs, cache.NewUsageWatchdog("credential_cache", period, usage.EvictedThreshold, credCache))
	}

	return guard, dir, watchdogs, nil
}
