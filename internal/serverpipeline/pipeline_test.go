package serverpipeline

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/insight-platform/media-gateway-go/internal/mgerr"
	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
	"github.com/insight-platform/media-gateway-go/internal/mgwire"
	"github.com/insight-platform/media-gateway-go/internal/transport"
)

type fakeWriter struct {
	outcome transport.WriterOutcome
	err     error
	sent    bool
}

func (w *fakeWriter) SendMessage(_ []byte, _ *mgmodel.Message, _ [][]byte) (transport.WriterOutcome, error) {
	w.sent = true
	return w.outcome, w.err
}
func (w *fakeWriter) Close() error { return nil }

type fakeAuth struct {
	allow bool
	user  *mgmodel.UserData
}

func (a *fakeAuth) Authenticate(_ context.Context, _ mgmodel.Credentials) (*mgmodel.UserData, error) {
	if !a.allow {
		return nil, mgerr.New(mgerr.KindAuth, "authenticate", nil)
	}
	return a.user, nil
}

func mediaBody(t *testing.T, labels []string) []byte {
	t.Helper()
	media := &mgmodel.Media{
		Message: &mgmodel.Message{RoutingLabels: labels, Payload: []byte("x")},
		Topic:   []byte("topic"),
	}
	return mgwire.Encode(media)
}

func TestServeHTTPSuccessNoAuth(t *testing.T) {
	wr := &fakeWriter{outcome: transport.SuccessOutcome{}}
	svc := NewService(wr, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(mediaBody(t, nil)))
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !wr.sent {
		t.Fatalf("expected writer to be invoked")
	}
}

func TestServeHTTPMalformedBody(t *testing.T) {
	svc := NewService(&fakeWriter{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte{0xFF, 0xFF, 0xFF}))
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServeHTTPMissingMessage(t *testing.T) {
	svc := NewService(&fakeWriter{}, nil, nil, nil)
	media := &mgmodel.Media{Topic: []byte("topic")}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(mgwire.Encode(media)))
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServeHTTPAuthRejected(t *testing.T) {
	svc := NewService(&fakeWriter{}, &fakeAuth{allow: false}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(mediaBody(t, nil)))
	req.SetBasicAuth("bob", "wrong")
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServeHTTPLabelRuleRejects(t *testing.T) {
	user := &mgmodel.UserData{AllowedRoutingLabels: mgmodel.SetRule{Label: "allowed"}}
	svc := NewService(&fakeWriter{}, &fakeAuth{allow: true, user: user}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(mediaBody(t, []string{"other"})))
	req.SetBasicAuth("bob", "pw")
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServeHTTPWriterTimeouts(t *testing.T) {
	cases := []struct {
		outcome transport.WriterOutcome
		want    int
	}{
		{transport.SendTimeoutOutcome{}, http.StatusGatewayTimeout},
		{transport.AckTimeoutOutcome{}, http.StatusBadGateway},
		{transport.AckOutcome{}, http.StatusOK},
	}
	for _, tc := range cases {
		svc := NewService(&fakeWriter{outcome: tc.outcome}, nil, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(mediaBody(t, nil)))
		rec := httptest.NewRecorder()
		svc.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("outcome %T: expected %d, got %d", tc.outcome, tc.want, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	Health(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
}

