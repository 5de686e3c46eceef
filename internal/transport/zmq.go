package transport

import (
	"errors"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
	"github.com/insight-platform/media-gateway-go/internal/mgwire"
)

// ZMQReaderConfig mirrors spec.md §6's in_stream table.
type ZMQReaderConfig struct {
	URL           string
	ReceiveHWM    int
	RoutingID     []byte
	TopicPrefix   []byte
	SocketType    zmq.Type // zmq.SUB or zmq.PULL
}

// ZMQReader is a single-reader SUB/PULL socket. Exclusive access is the
// caller's responsibility (spec.md §5 "single-reader semantics").
type ZMQReader struct {
	sock      *zmq.Socket
	prefix    []byte
	routingID []byte
}

func NewZMQReader(cfg ZMQReaderConfig) (*ZMQReader, error) {
	sock, err := zmq.NewSocket(cfg.SocketType)
	if err != nil {
		return nil, fmt.Errorf("zmq new socket: %w", err)
	}
	if cfg.ReceiveHWM > 0 {
		if err := sock.SetRcvhwm(cfg.ReceiveHWM); err != nil {
			return nil, fmt.Errorf("zmq set rcvhwm: %w", err)
		}
	}
	if cfg.SocketType == zmq.SUB {
		if err := sock.SetSubscribe(string(cfg.TopicPrefix)); err != nil {
			return nil, fmt.Errorf("zmq subscribe: %w", err)
		}
	}
	if err := sock.Connect(cfg.URL); err != nil {
		return nil, fmt.Errorf("zmq connect %s: %w", cfg.URL, err)
	}
	return &ZMQReader{sock: sock, prefix: cfg.TopicPrefix, routingID: cfg.RoutingID}, nil
}

// TryReceive is non-blocking: zmq.DONTWAIT turns an empty queue into
// TimeoutOutcome instead of parking the goroutine.
func (r *ZMQReader) TryReceive() (ReaderOutcome, error) {
	frames, err := r.sock.RecvMessageBytes(zmq.DONTWAIT)
	if err != nil {
		if errors.Is(err, zmq.ErrorSocketClosed) {
			return nil, err
		}
		if zmq.AsErrno(err) == zmq.Errno(11) { // EAGAIN: nothing pending
			return TimeoutOutcome{}, nil
		}
		return nil, err
	}
	if len(frames) < 2 {
		return TooShortOutcome{N: len(frames)}, nil
	}

	topic := frames[0]
	inner, err := mgwire.DecodeMessage(frames[1])
	if err != nil {
		return nil, fmt.Errorf("decode inner message: %w", err)
	}
	data := append([][]byte(nil), frames[2:]...)

	return MessageOutcome{Message: inner, Topic: topic, Data: data}, nil
}

func (r *ZMQReader) Close() error { return r.sock.Close() }

// ZMQWriterConfig mirrors spec.md §6's out_stream table.
type ZMQWriterConfig struct {
	URL          string
	SendHWM      int
	SendTimeout  int // milliseconds
	RecvTimeout  int // milliseconds
	SocketType   zmq.Type // zmq.REQ or zmq.PUSH
}

// ZMQWriter is a single-writer socket; callers serialize SendMessage calls
// with an exclusive lock (spec.md §5 "single-writer discipline") because a
// REQ socket cannot interleave acks.
type ZMQWriter struct {
	sock *zmq.Socket
}

func NewZMQWriter(cfg ZMQWriterConfig) (*ZMQWriter, error) {
	sock, err := zmq.NewSocket(cfg.SocketType)
	if err != nil {
		return nil, fmt.Errorf("zmq new socket: %w", err)
	}
	if cfg.SendHWM > 0 {
		if err := sock.SetSndhwm(cfg.SendHWM); err != nil {
			return nil, fmt.Errorf("zmq set sndhwm: %w", err)
		}
	}
	if cfg.SendTimeout > 0 {
		if err := sock.SetSndtimeo(time.Duration(cfg.SendTimeout) * time.Millisecond); err != nil {
			return nil, fmt.Errorf("zmq set sndtimeo: %w", err)
		}
	}
	if cfg.RecvTimeout > 0 {
		if err := sock.SetRcvtimeo(time.Duration(cfg.RecvTimeout) * time.Millisecond); err != nil {
			return nil, fmt.Errorf("zmq set rcvtimeo: %w", err)
		}
	}
	if err := sock.Bind(cfg.URL); err != nil {
		return nil, fmt.Errorf("zmq bind %s: %w", cfg.URL, err)
	}
	return &ZMQWriter{sock: sock}, nil
}

// SendMessage publishes a message and, for REQ/REP sockets, blocks for the
// peer's ack within RcvTimeout. Timeouts on the send and recv side are
// distinguished per spec.md §3's Writer outcome table.
func (w *ZMQWriter) SendMessage(topic []byte, msg *mgmodel.Message, data [][]byte) (WriterOutcome, error) {
	frames := make([][]byte, 0, 2+len(data))
	frames = append(frames, topic, mgwire.EncodeMessage(msg))
	frames = append(frames, data...)

	if _, err := w.sock.SendMessage(frames); err != nil {
		if zmq.AsErrno(err) == zmq.Errno(11) {
			return SendTimeoutOutcome{}, nil
		}
		return nil, fmt.Errorf("zmq send: %w", err)
	}

	if w.sock.GetType() != zmq.REQ {
		return SuccessOutcome{}, nil
	}

	if _, err := w.sock.RecvMessageBytes(0); err != nil {
		if zmq.AsErrno(err) == zmq.Errno(11) {
			return AckTimeoutOutcome{}, nil
		}
		return nil, fmt.Errorf("zmq recv ack: %w", err)
	}
	return AckOutcome{}, nil
}

func (w *ZMQWriter) Close() error { return w.sock.Close() }
