package clientpipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
	"github.com/insight-platform/media-gateway-go/internal/mgwire"
	"github.com/insight-platform/media-gateway-go/internal/transport"
)

func encodeMedia(media *mgmodel.Media) ([]byte, error) {
	return mgwire.Encode(media), nil
}

func sleepRetryDelay(d time.Duration) {
	time.Sleep(d)
}

// HTTPForwarderConfig carries the upstream URL and optional basic-auth
// credentials attached to every POST, per spec.md §6's "default headers
// (basic auth, etc.)".
type HTTPForwarderConfig struct {
	URL      string
	Username string
	Password string
}

// httpForwarder is the HTTP POST step of spec.md §4.7. Status → outcome:
// 200 → Success, 504 → SendTimeout, 502 → AckTimeout, anything else → error.
type httpForwarder struct {
	client *http.Client
	cfg    HTTPForwarderConfig
}

// NewHTTPForwarder builds a Forwarder sharing a single *http.Client across
// all forward attempts, per spec.md §5 "the HTTP client is itself
// thread-safe and connection-pooling".
func NewHTTPForwarder(client *http.Client, cfg HTTPForwarderConfig) Forwarder {
	return &httpForwarder{client: client, cfg: cfg}
}

func (f *httpForwarder) Forward(ctx context.Context, body []byte) (transport.WriterOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("clientpipeline: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/protobuf")
	if f.cfg.Username != "" {
		req.SetBasicAuth(f.cfg.Username, f.cfg.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clientpipeline: send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return transport.SuccessOutcome{}, nil
	case http.StatusGatewayTimeout:
		return transport.SendTimeoutOutcome{}, nil
	case http.StatusBadGateway:
		return transport.AckTimeoutOutcome{}, nil
	default:
		err := fmt.Errorf("clientpipeline: upstream returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, &TerminalError{StatusCode: resp.StatusCode, err: err}
		}
		return nil, err
	}
}

// TerminalError marks a forward attempt as non-retriable per SPEC_FULL.md
// §9(a): a 4xx response means the message itself is malformed or rejected,
// not that the upstream is transiently unavailable, so retrying it forever
// would livelock every FIFO-subsequent message behind it.
type TerminalError struct {
	StatusCode int
	err        error
}

func (e *TerminalError) Error() string { return e.err.Error() }
func (e *TerminalError) Unwrap() error { return e.err }
