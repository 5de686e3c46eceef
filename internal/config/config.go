// Package config loads the JSON configuration file named by the CLI's
// single positional argument (spec.md §6).
package config

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/insight-platform/media-gateway-go/internal/directory"
	"github.com/insight-platform/media-gateway-go/internal/retrypolicy"
	"github.com/insight-platform/media-gateway-go/internal/statistics"
	"github.com/insight-platform/media-gateway-go/internal/telemetry"
	"github.com/insight-platform/media-gateway-go/internal/tlsconfig"
	"github.com/insight-platform/media-gateway-go/internal/waitpolicy"
)

// StreamConfig mirrors spec.md §6's in_stream/out_stream table.
type StreamConfig struct {
	URL            string `json:"url"`
	ReceiveHWM     int    `json:"receive_hwm"`
	SendHWM        int    `json:"send_hwm"`
	SendTimeoutMs  int    `json:"send_timeout_ms"`
	RecvTimeoutMs  int    `json:"recv_timeout_ms"`
	Retries        int    `json:"retries"`
	IPCPermissions int    `json:"ipc_permissions"`
	InflightOps    int    `json:"inflight_ops"`
	RoutingID      string `json:"routing_id"`
	TopicPrefix    string `json:"topic_prefix"`
}

// WaitStrategyConfig decodes either "yield" or {"sleep": "1ms"}.
type WaitStrategyConfig struct {
	Yield bool
	Sleep *time.Duration
}

func (w *WaitStrategyConfig) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString != "yield" {
			return fmt.Errorf("wait_strategy: unknown string variant %q", asString)
		}
		w.Yield = true
		return nil
	}

	var asObject struct {
		Sleep string `json:"sleep"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return fmt.Errorf("wait_strategy: %w", err)
	}
	d, err := time.ParseDuration(asObject.Sleep)
	if err != nil {
		return fmt.Errorf("wait_strategy.sleep: %w", err)
	}
	w.Sleep = &d
	return nil
}

func (w WaitStrategyConfig) Build() waitpolicy.Policy {
	if w.Sleep != nil {
		return waitpolicy.SleepPolicy{Duration: *w.Sleep}
	}
	return waitpolicy.YieldPolicy{}
}

func defaultWaitStrategy() WaitStrategyConfig {
	d := time.Millisecond
	return WaitStrategyConfig{Sleep: &d}
}

// RetryStrategyConfig mirrors spec.md §6's retry_strategy table.
type RetryStrategyConfig struct {
	Exponential struct {
		InitialDelay string  `json:"initial_delay"`
		MaximumDelay string  `json:"maximum_delay"`
		Multiplier   float64 `json:"multiplier"`
	} `json:"exponential"`
}

func defaultRetryStrategy() RetryStrategyConfig {
	r := RetryStrategyConfig{}
	r.Exponential.InitialDelay = "1ms"
	r.Exponential.MaximumDelay = "1s"
	r.Exponential.Multiplier = 2
	return r
}

func (r RetryStrategyConfig) Build() (*retrypolicy.Policy, error) {
	initial, err := time.ParseDuration(r.Exponential.InitialDelay)
	if err != nil {
		return nil, fmt.Errorf("retry_strategy.exponential.initial_delay: %w", err)
	}
	maximum, err := time.ParseDuration(r.Exponential.MaximumDelay)
	if err != nil {
		return nil, fmt.Errorf("retry_strategy.exponential.maximum_delay: %w", err)
	}
	return retrypolicy.New(initial, maximum, r.Exponential.Multiplier)
}

// TLSConfig mirrors spec.md §6's tls/ssl table; which subset of fields
// applies depends on whether it's read by the client or server.
type TLSConfig struct {
	CACertFile        string `json:"ca_cert_file"`
	CertFile          string `json:"cert_file"`
	KeyFile           string `json:"key_file"`
	ClientCAFile      string `json:"client_ca_file"`
	RequireClientCert bool   `json:"require_client_cert"`
	CRLFile           string `json:"crl_file"`
}

// BuildClient returns nil when the config carries neither a pinned CA nor a
// client identity, meaning plain HTTP is used.
func (t TLSConfig) BuildClient() (*tls.Config, error) {
	if t.CACertFile == "" && t.CertFile == "" {
		return nil, nil
	}
	return tlsconfig.BuildClientTLS(tlsconfig.ClientConfig{
		CACertFile:     t.CACertFile,
		ClientCertFile: t.CertFile,
		ClientKeyFile:  t.KeyFile,
	})
}

// BuildServer returns nil when no server identity is configured, meaning
// plain HTTP is used.
func (t TLSConfig) BuildServer() (*tls.Config, error) {
	if t.CertFile == "" {
		return nil, nil
	}
	return tlsconfig.BuildServerTLS(tlsconfig.ServerConfig{
		CertFile:          t.CertFile,
		KeyFile:           t.KeyFile,
		ClientCAFile:      t.ClientCAFile,
		RequireClientCert: t.RequireClientCert,
		CRLFile:           t.CRLFile,
	})
}

// StatisticsConfig mirrors spec.md §6's statistics table.
type StatisticsConfig struct {
	TimestampPeriod *string `json:"timestamp_period"`
	FramePeriod     *int    `json:"frame_period"`
	HistorySize     int     `json:"history_size"`
}

func (s StatisticsConfig) Validate() error {
	if s.FramePeriod == nil && s.TimestampPeriod == nil {
		return fmt.Errorf("statistics: at least one of frame_period or timestamp_period is required")
	}
	return nil
}

func (s StatisticsConfig) Build() (statistics.Config, error) {
	cfg := statistics.Config{HistorySize: s.HistorySize}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1024
	}
	if s.TimestampPeriod != nil {
		d, err := time.ParseDuration(*s.TimestampPeriod)
		if err != nil {
			return cfg, fmt.Errorf("statistics.timestamp_period: %w", err)
		}
		cfg.TimestampPeriod = d
	}
	if s.FramePeriod != nil {
		cfg.FramePeriod = *s.FramePeriod
	}
	return cfg, nil
}

// TelemetryConfig mirrors spec.md §6's telemetry table (opaque tracer
// configuration).
type TelemetryConfig struct {
	ServiceName string `json:"service_name"`
	Enabled     bool   `json:"enabled"`
}

func (t TelemetryConfig) Build() telemetry.Config {
	return telemetry.Config{ServiceName: t.ServiceName, Enabled: t.Enabled}
}

// UsageConfig mirrors spec.md §6's credential-cache usage{period,
// evicted_threshold} sub-table, consumed by the cache.UsageWatchdog.
type UsageConfig struct {
	Period           string `json:"period"`
	EvictedThreshold uint64 `json:"evicted_threshold"`
}

// DirectoryConfig mirrors spec.md §6's auth.directory table.
type DirectoryConfig struct {
	Endpoints      []string  `json:"endpoints"`
	Path           string    `json:"path"`
	DataFormat     string    `json:"data_format"` // "json" or "yaml"
	Username       string    `json:"username"`
	Password       string    `json:"password"`
	LeaseTimeout   string    `json:"lease_timeout"`
	ConnectTimeout string    `json:"connect_timeout"`
	TLS            TLSConfig `json:"tls"`
}

// AuthConfig mirrors spec.md §6's auth table (basic auth only).
type AuthConfig struct {
	Directory       DirectoryConfig `json:"directory"`
	CredentialCache struct {
		Size  int          `json:"size"`
		Usage *UsageConfig `json:"usage"`
	} `json:"credential_cache"`
	Quarantine struct {
		Period             string `json:"period"`
		FailedAttemptLimit int    `json:"failed_attempt_limit"`
		SetSize            int    `json:"set_size"`
	} `json:"quarantine"`
}

func (a AuthConfig) BuildDirectory() (directory.Config, error) {
	format := directory.FormatJSON
	if a.Directory.DataFormat == "yaml" {
		format = directory.FormatYAML
	}
	lease, err := time.ParseDuration(a.Directory.LeaseTimeout)
	if err != nil {
		return directory.Config{}, fmt.Errorf("auth.directory.lease_timeout: %w", err)
	}
	connect, err := time.ParseDuration(a.Directory.ConnectTimeout)
	if err != nil {
		return directory.Config{}, fmt.Errorf("auth.directory.connect_timeout: %w", err)
	}
	return directory.Config{
		Endpoints:      a.Directory.Endpoints,
		Prefix:         a.Directory.Path,
		Username:       a.Directory.Username,
		Password:       a.Directory.Password,
		LeaseTimeout:   lease,
		ConnectTimeout: connect,
		Format:         format,
		CacheSize:      a.CredentialCache.Size,
	}, nil
}

func (a AuthConfig) QuarantinePeriod() (time.Duration, error) {
	return time.ParseDuration(a.Quarantine.Period)
}

// ClientConfig is the top-level JSON shape for media-gateway-client.
type ClientConfig struct {
	IP            string              `json:"ip"`
	Port          int                 `json:"port"`
	URL           string              `json:"url"`
	InStream      StreamConfig        `json:"in_stream"`
	WaitStrategy  WaitStrategyConfig  `json:"wait_strategy"`
	RetryStrategy RetryStrategyConfig `json:"retry_strategy"`
	TLS           TLSConfig           `json:"tls"`
	BasicAuthUser string              `json:"basic_auth_user"`
	BasicAuthPass string              `json:"basic_auth_pass"`
	Statistics    StatisticsConfig    `json:"statistics"`
	Telemetry     TelemetryConfig     `json:"telemetry"`
}

// ServerConfig is the top-level JSON shape for media-gateway-server.
type ServerConfig struct {
	IP         string           `json:"ip"`
	Port       int              `json:"port"`
	OutStream  StreamConfig     `json:"out_stream"`
	TLS        TLSConfig        `json:"tls"`
	Auth       *AuthConfig      `json:"auth"`
	Statistics StatisticsConfig `json:"statistics"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
}

// LoadClient reads and validates the client's JSON config file.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{WaitStrategy: defaultWaitStrategy(), RetryStrategy: defaultRetryStrategy()}
	if err := readJSONFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("config: url is required")
	}
	if cfg.InStream.InflightOps <= 0 {
		return nil, fmt.Errorf("config: in_stream.inflight_ops must be > 0")
	}
	if err := cfg.Statistics.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServer reads and validates the server's JSON config file.
func LoadServer(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := readJSONFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.OutStream.URL == "" {
		return nil, fmt.Errorf("config: out_stream.url is required")
	}
	if err := cfg.Statistics.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readJSONFile(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
