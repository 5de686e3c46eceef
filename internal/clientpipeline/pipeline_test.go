package clientpipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
	"github.com/insight-platform/media-gateway-go/internal/retrypolicy"
	"github.com/insight-platform/media-gateway-go/internal/transport"
	"github.com/insight-platform/media-gateway-go/internal/waitpolicy"
)

var errBadRequest = errors.New("malformed media")

type fakeReader struct {
	mu      sync.Mutex
	queued  []transport.ReaderOutcome
	closed  bool
}

func (r *fakeReader) TryReceive() (transport.ReaderOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queued) == 0 {
		return transport.TimeoutOutcome{}, nil
	}
	o := r.queued[0]
	r.queued = r.queued[1:]
	return o, nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type fakeForwarder struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	forwarded [][]byte
}

func (f *fakeForwarder) Forward(_ context.Context, body []byte) (transport.WriterOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.forwarded = append(f.forwarded, body)
	if f.calls <= f.failFirst {
		return transport.SendTimeoutOutcome{}, nil
	}
	return transport.SuccessOutcome{}, nil
}

type terminalForwarder struct {
	mu    sync.Mutex
	calls int
}

func (f *terminalForwarder) Forward(_ context.Context, _ []byte) (transport.WriterOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, &TerminalError{StatusCode: 400, err: errBadRequest}
}

func newPolicy(t *testing.T) *retrypolicy.Policy {
	t.Helper()
	p, err := retrypolicy.New(time.Millisecond, 10*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	return p
}

func TestPipelineForwardsSingleMessage(t *testing.T) {
	reader := &fakeReader{queued: []transport.ReaderOutcome{
		transport.MessageOutcome{Message: &mgmodel.Message{Payload: []byte("hi")}, Topic: []byte("t")},
	}}
	fwd := &fakeForwarder{}
	p := New(reader, fwd, waitpolicy.YieldPolicy{}, newPolicy(t), nil, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		fwd.mu.Lock()
		calls := fwd.calls
		fwd.mu.Unlock()
		if calls >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for forward")
		case <-time.After(time.Millisecond):
		}
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	cancel()
	<-done

	if !reader.closed {
		t.Fatalf("expected reader to be closed on shutdown")
	}
}

func TestPipelineRetriesUntilSuccess(t *testing.T) {
	reader := &fakeReader{queued: []transport.ReaderOutcome{
		transport.MessageOutcome{Message: &mgmodel.Message{Payload: []byte("hi")}, Topic: []byte("t")},
	}}
	fwd := &fakeForwarder{failFirst: 2}
	p := New(reader, fwd, waitpolicy.YieldPolicy{}, newPolicy(t), nil, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		fwd.mu.Lock()
		calls := fwd.calls
		fwd.mu.Unlock()
		if calls >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for retries, got %d calls", calls)
		case <-time.After(time.Millisecond):
		}
	}

	p.Stop()
	cancel()
	<-done
}

func TestPipelineDropsOnTerminalError(t *testing.T) {
	reader := &fakeReader{queued: []transport.ReaderOutcome{
		transport.MessageOutcome{Message: &mgmodel.Message{Payload: []byte("hi")}, Topic: []byte("t")},
	}}
	fwd := &terminalForwarder{}
	p := New(reader, fwd, waitpolicy.YieldPolicy{}, newPolicy(t), nil, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		fwd.mu.Lock()
		calls := fwd.calls
		fwd.mu.Unlock()
		if calls >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for forward attempt")
		case <-time.After(time.Millisecond):
		}
	}

	// Give the forwarder a moment to confirm it does NOT retry.
	time.Sleep(20 * time.Millisecond)
	fwd.mu.Lock()
	calls := fwd.calls
	fwd.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a 4xx to be terminal (no retry), got %d calls", calls)
	}

	p.Stop()
	cancel()
	<-done
}

func TestRunOnlyOnce(t *testing.T) {
	reader := &fakeReader{}
	p := New(reader, &fakeForwarder{}, waitpolicy.YieldPolicy{}, newPolicy(t), nil, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	time.Sleep(5 * time.Millisecond)
	p.Stop()
	cancel()

	if err := p.Run(context.Background()); err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStopOnlyOnce(t *testing.T) {
	p := New(&fakeReader{}, &fakeForwarder{}, waitpolicy.YieldPolicy{}, newPolicy(t), nil, nil, 1)
	if err := p.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := p.Stop(); err != ErrAlreadyStopped {
		t.Fatalf("expected ErrAlreadyStopped, got %v", err)
	}
}
