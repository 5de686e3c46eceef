package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadClientDefaults(t *testing.T) {
	path := writeTempConfig(t, `{
		"url": "https://example.test/relay",
		"in_stream": {"url": "tcp://127.0.0.1:5555", "inflight_ops": 16},
		"statistics": {"timestamp_period": "30s", "history_size": 100}
	}`)

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.WaitStrategy.Yield && cfg.WaitStrategy.Sleep == nil {
		t.Fatalf("expected a default wait strategy")
	}
	if cfg.RetryStrategy.Exponential.Multiplier != 2 {
		t.Fatalf("expected default multiplier of 2, got %v", cfg.RetryStrategy.Exponential.Multiplier)
	}
}

func TestLoadClientMissingURL(t *testing.T) {
	path := writeTempConfig(t, `{"in_stream": {"url": "tcp://x", "inflight_ops": 1}, "statistics": {"frame_period": 10}}`)
	if _, err := LoadClient(path); err == nil {
		t.Fatalf("expected error for missing url")
	}
}

func TestLoadClientMissingStatisticsPeriod(t *testing.T) {
	path := writeTempConfig(t, `{"url": "https://x", "in_stream": {"inflight_ops": 1}}`)
	if _, err := LoadClient(path); err == nil {
		t.Fatalf("expected error for missing statistics period")
	}
}

func TestWaitStrategyUnmarshalYield(t *testing.T) {
	var w WaitStrategyConfig
	if err := w.UnmarshalJSON([]byte(`"yield"`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !w.Yield {
		t.Fatalf("expected Yield to be true")
	}
}

func TestWaitStrategyUnmarshalSleep(t *testing.T) {
	var w WaitStrategyConfig
	if err := w.UnmarshalJSON([]byte(`{"sleep": "5ms"}`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Sleep == nil || *w.Sleep != 5_000_000 {
		t.Fatalf("unexpected sleep duration: %+v", w.Sleep)
	}
}

func TestRetryStrategyBuildValidatesMultiplier(t *testing.T) {
	r := RetryStrategyConfig{}
	r.Exponential.InitialDelay = "1ms"
	r.Exponential.MaximumDelay = "1s"
	r.Exponential.Multiplier = 1.5
	if _, err := r.Build(); err == nil {
		t.Fatalf("expected validation error for multiplier < 2")
	}
}

func TestLoadServerMissingOutStreamURL(t *testing.T) {
	path := writeTempConfig(t, `{"statistics": {"frame_period": 1}}`)
	if _, err := LoadServer(path); err == nil {
		t.Fatalf("expected error for missing out_stream.url")
	}
}
