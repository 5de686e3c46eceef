// Package clientpipeline implements the client relay's reader/forwarder
// pair from spec.md §4.7: a bounded internal channel joins a single reader
// task pulling from the inbound transport to a single forwarder task
// POSTing each message to the server relay under a retry policy.
package clientpipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/insight-platform/media-gateway-go/internal/events"
	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
	"github.com/insight-platform/media-gateway-go/internal/retrypolicy"
	"github.com/insight-platform/media-gateway-go/internal/statistics"
	"github.com/insight-platform/media-gateway-go/internal/telemetry"
	"github.com/insight-platform/media-gateway-go/internal/transport"
	"github.com/insight-platform/media-gateway-go/internal/waitpolicy"
)

// queuedMedia is what the reader task hands the forwarder: the envelope
// plus the optional statistics timer id opened for it.
type queuedMedia struct {
	media       *mgmodel.Media
	statsID     uint64
	haveStatsID bool
}

// Forwarder is the HTTP POST step of spec.md §4.7: "builds a POST with
// content type application/protobuf". Satisfied by *httpForwarder.
type Forwarder interface {
	Forward(ctx context.Context, body []byte) (transport.WriterOutcome, error)
}

// Pipeline owns the bounded channel and the run-once/stop-once shutdown
// latch shared by the reader and forwarder tasks.
type Pipeline struct {
	reader     transport.Reader
	forwarder  Forwarder
	wait       waitpolicy.Policy
	retry      *retrypolicy.Policy
	stats      *statistics.Statistics
	bus        *events.Bus
	queue      chan queuedMedia
	shutdown   atomic.Bool
	ranOnce    atomic.Bool
	stoppedErr error
}

// New builds a Pipeline. inflightOps is the bounded channel capacity from
// spec.md §6's in_stream.inflight_ops.
func New(reader transport.Reader, forwarder Forwarder, wait waitpolicy.Policy, retry *retrypolicy.Policy, stats *statistics.Statistics, bus *events.Bus, inflightOps int) *Pipeline {
	return &Pipeline{
		reader:    reader,
		forwarder: forwarder,
		wait:      wait,
		retry:     retry,
		stats:     stats,
		bus:       bus,
		queue:     make(chan queuedMedia, inflightOps),
	}
}

// ErrAlreadyRunning is returned by a second Run call.
var ErrAlreadyRunning = fmt.Errorf("clientpipeline: already running")

// ErrAlreadyStopped is returned by a second Stop call.
var ErrAlreadyStopped = fmt.Errorf("clientpipeline: already stopped")

// Run starts the reader and forwarder tasks and blocks until both exit.
// Per spec.md §4.7, it may only be called once.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.ranOnce.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.runReader(ctx)
	}()
	go func() {
		defer wg.Done()
		p.runForwarder(ctx)
	}()
	wg.Wait()
	return p.stoppedErr
}

// Stop sets the shutdown latch. Idempotent-once per spec.md §4.7.
func (p *Pipeline) Stop() error {
	if !p.shutdown.CompareAndSwap(false, true) {
		return ErrAlreadyStopped
	}
	return nil
}

// runReader implements the seven-step loop of spec.md §4.7's reader task.
func (p *Pipeline) runReader(ctx context.Context) {
	defer close(p.queue)
	defer func() {
		if err := p.reader.Close(); err != nil {
			slog.Warn("client reader close failed", "error", err)
		}
	}()

	for {
		if p.shutdown.Load() {
			return
		}

		outcome, err := p.reader.TryReceive()
		if err != nil {
			slog.Error("client reader failed, stopping pipeline", "error", err)
			p.stoppedErr = err
			return
		}

		switch o := outcome.(type) {
		case transport.MessageOutcome:
			p.handleMessage(ctx, o)
		case transport.TimeoutOutcome:
			// benign; fall through to wait below
		default:
			logDiscardedOutcome(outcome)
		}

		if _, isMessage := outcome.(transport.MessageOutcome); !isMessage {
			p.wait.Wait()
		}
	}
}

func (p *Pipeline) handleMessage(ctx context.Context, o transport.MessageOutcome) {
	_, span := telemetry.StartSpan(ctx, "client.queue")
	defer span.End()

	media := &mgmodel.Media{Message: o.Message, Topic: o.Topic, Data: o.Data}

	qm := queuedMedia{media: media}
	if p.stats != nil {
		qm.statsID = p.stats.RegisterMessageStart()
		qm.haveStatsID = true
	}

	select {
	case p.queue <- qm:
	case <-ctx.Done():
		// Only a real shutdown aborts the push; a full queue is ordinary
		// backpressure while the forwarder retries and must block here.
		p.endStats(qm)
	}
}

func logDiscardedOutcome(outcome transport.ReaderOutcome) {
	switch o := outcome.(type) {
	case transport.PrefixMismatchOutcome:
		slog.Debug("discarding prefix-mismatched message", "topic", o.Topic, "routing_id", o.RoutingID)
	case transport.RoutingIDMismatchOutcome:
		slog.Debug("discarding routing-id-mismatched message", "topic", o.Topic, "routing_id", o.RoutingID)
	case transport.TooShortOutcome:
		slog.Warn("discarding too-short frame set", "n", o.N)
	case transport.BlacklistedOutcome:
		slog.Debug("discarding blacklisted topic", "topic", o.Topic)
	default:
		slog.Warn("discarding unknown reader outcome", "outcome", fmt.Sprintf("%T", outcome))
	}
}

// runForwarder implements spec.md §4.7's forwarder task: drains the queue,
// retrying each message under the configured policy until it succeeds. A
// message is dropped instead when the forwarder returns a *TerminalError or
// when ctx is canceled between attempts.
func (p *Pipeline) runForwarder(ctx context.Context) {
	for qm := range p.queue {
		p.forwardWithRetry(ctx, qm)
	}
}

func (p *Pipeline) forwardWithRetry(ctx context.Context, qm queuedMedia) {
	var retry *mgmodel.Retry
	var body []byte
	var encodeErr error

	for {
		if body == nil && encodeErr == nil {
			body, encodeErr = encodeMedia(qm.media)
		}
		if encodeErr != nil {
			slog.Error("failed to encode outgoing media, dropping message", "error", encodeErr)
			p.endStats(qm)
			return
		}

		outcome, err := p.forwarder.Forward(ctx, body)
		if err == nil {
			switch outcome.(type) {
			case transport.SuccessOutcome:
				if retry != nil {
					slog.Info("message forwarded after retries", "attempts", retry.Attempt)
				}
				p.endStats(qm)
				return
			}
		}

		var terminal *TerminalError
		if errors.As(err, &terminal) {
			slog.Error("forward rejected terminally, dropping message", "status", terminal.StatusCode)
			p.endStats(qm)
			return
		}

		r := p.retry.NextRetry(retry)
		retry = &r
		if err != nil {
			slog.Warn("forward attempt failed, retrying", "error", err, "attempt", retry.Attempt, "delay", retry.Delay)
		} else {
			slog.Warn("forward attempt timed out, retrying", "outcome", fmt.Sprintf("%T", outcome), "attempt", retry.Attempt, "delay", retry.Delay)
		}
		if p.bus != nil {
			p.bus.Publish(events.Event{Type: events.EventForwardRetry, Message: fmt.Sprintf("attempt %d, delay %s", retry.Attempt, retry.Delay)})
		}

		select {
		case <-ctx.Done():
			p.endStats(qm)
			return
		default:
		}
		sleepRetryDelay(retry.Delay)
	}
}

func (p *Pipeline) endStats(qm queuedMedia) {
	if p.stats != nil && qm.haveStatsID {
		p.stats.RegisterMessageEnd(qm.statsID)
	}
}
