// Package serverpipeline implements the server relay's HTTP handler from
// spec.md §4.8: decode, authorize, routing-label filter, hand off to the
// outbound transport writer, and translate the writer outcome to an HTTP
// status.
package serverpipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"unicode/utf8"

	"github.com/insight-platform/media-gateway-go/internal/events"
	"github.com/insight-platform/media-gateway-go/internal/mgerr"
	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
	"github.com/insight-platform/media-gateway-go/internal/mgwire"
	"github.com/insight-platform/media-gateway-go/internal/statistics"
	"github.com/insight-platform/media-gateway-go/internal/telemetry"
	"github.com/insight-platform/media-gateway-go/internal/transport"
)

// Authenticator validates a request's basic-auth credentials. Satisfied by
// *auth.Guard. A nil Authenticator disables auth (spec.md §6: "auth" is an
// optional config section).
type Authenticator interface {
	Authenticate(ctx context.Context, creds mgmodel.Credentials) (*mgmodel.UserData, error)
}

// Service is the shared handler state: a single outbound writer guarded by
// an exclusive lock so only one send_message is in flight at a time,
// preserving ack ordering for request/reply sockets (spec.md §5).
type Service struct {
	mu     sync.Mutex
	writer transport.Writer
	auth   Authenticator
	stats  *statistics.Statistics
	bus    *events.Bus
}

func NewService(writer transport.Writer, auth Authenticator, stats *statistics.Statistics, bus *events.Bus) *Service {
	return &Service{writer: writer, auth: auth, stats: stats, bus: bus}
}

// Close closes the outbound writer, logging (not propagating) any error,
// per spec.md §4.8 "Writer drop".
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Close(); err != nil {
		slog.Warn("server writer close failed", "error", err)
	}
}

// ServeHTTP implements POST / per spec.md §4.8's seven-step algorithm.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "server.handle")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	media, err := mgwire.Decode(body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "decode media: "+err.Error())
		return
	}

	if !utf8.Valid(media.Topic) {
		writeStatus(w, http.StatusBadRequest, "topic is not valid UTF-8")
		return
	}

	if media.Message == nil {
		writeStatus(w, http.StatusBadRequest, "missing inner message")
		return
	}

	userData, authErr := s.authenticate(ctx, r)
	if authErr != nil {
		var mgErr *mgerr.Error
		if errors.As(authErr, &mgErr) {
			writeStatus(w, mgErr.Kind.HTTPStatus(), mgErr.Error())
		} else {
			writeStatus(w, http.StatusUnauthorized, authErr.Error())
		}
		return
	}

	if userData != nil && userData.AllowedRoutingLabels != nil {
		if !userData.AllowedRoutingLabels.Matches(media.Message.RoutingLabels) {
			if s.bus != nil {
				s.bus.Publish(events.Event{Type: events.EventAuthFailure, Message: "routing label rule rejected message"})
			}
			writeStatus(w, http.StatusUnauthorized, "routing labels rejected by policy")
			return
		}
	}

	var statsID uint64
	var haveStatsID bool
	if s.stats != nil {
		statsID = s.stats.RegisterMessageStart()
		haveStatsID = true
	}

	outcome, err := s.sendMessage(media.Topic, media.Message, media.Data)
	if haveStatsID {
		s.stats.RegisterMessageEnd(statsID)
	}
	if err != nil {
		slog.Error("writer send failed", "error", err)
		writeStatus(w, http.StatusInternalServerError, "writer error")
		return
	}

	switch outcome.(type) {
	case transport.SuccessOutcome, transport.AckOutcome:
		writeStatus(w, http.StatusOK, "")
	case transport.SendTimeoutOutcome:
		writeStatus(w, http.StatusGatewayTimeout, "send timeout")
	case transport.AckTimeoutOutcome:
		writeStatus(w, http.StatusBadGateway, "ack timeout")
	default:
		writeStatus(w, http.StatusInternalServerError, "unknown writer outcome")
	}
}

func (s *Service) authenticate(ctx context.Context, r *http.Request) (*mgmodel.UserData, error) {
	if s.auth == nil {
		return nil, nil
	}
	username, password, ok := r.BasicAuth()
	creds := mgmodel.Credentials{Username: username, Password: password}
	if !ok {
		creds.Password = ""
	}
	userData, err := s.auth.Authenticate(ctx, creds)
	if err != nil {
		if s.bus != nil {
			s.bus.Publish(events.Event{Type: events.EventAuthFailure, Username: username, Message: err.Error()})
		}
		return nil, err
	}
	return userData, nil
}

func (s *Service) sendMessage(topic []byte, msg *mgmodel.Message, data [][]byte) (transport.WriterOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.SendMessage(topic, msg, data)
}

func writeStatus(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusOK {
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"error": detail})
}

// Health implements GET /health per spec.md §6.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
