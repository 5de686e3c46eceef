// Package transport defines the reader/writer boundary to the ZeroMQ-style
// message transport. The transport library itself is an external
// collaborator (spec.md §1 "out of scope") — only the sealed outcome types
// and the Reader/Writer interfaces are in scope here; zmq.go supplies one
// concrete binding against github.com/pebbe/zmq4.
package transport

import "github.com/insight-platform/media-gateway-go/internal/mgmodel"

// ReaderOutcome is the closed sum type the inbound transport returns per
// receive attempt. Only MessageOutcome is forwarded by the client
// pipeline; Timeout is benign; everything else is logged and discarded.
type ReaderOutcome interface{ isReaderOutcome() }

type MessageOutcome struct {
	Message *mgmodel.Message
	Topic   []byte
	Data    [][]byte
}

func (MessageOutcome) isReaderOutcome() {}

type TimeoutOutcome struct{}

func (TimeoutOutcome) isReaderOutcome() {}

type PrefixMismatchOutcome struct {
	Topic     []byte
	RoutingID []byte
}

func (PrefixMismatchOutcome) isReaderOutcome() {}

type RoutingIDMismatchOutcome struct {
	Topic     []byte
	RoutingID []byte
}

func (RoutingIDMismatchOutcome) isReaderOutcome() {}

type TooShortOutcome struct{ N int }

func (TooShortOutcome) isReaderOutcome() {}

type BlacklistedOutcome struct{ Topic []byte }

func (BlacklistedOutcome) isReaderOutcome() {}

// WriterOutcome is the closed sum type the outbound transport returns for a
// send attempt. The server pipeline maps these to HTTP status codes.
type WriterOutcome interface{ isWriterOutcome() }

type SuccessOutcome struct{}

func (SuccessOutcome) isWriterOutcome() {}

type AckOutcome struct{}

func (AckOutcome) isWriterOutcome() {}

type SendTimeoutOutcome struct{}

func (SendTimeoutOutcome) isWriterOutcome() {}

type AckTimeoutOutcome struct{}

func (AckTimeoutOutcome) isWriterOutcome() {}

// Reader is the single-reader inbound transport handle. TryReceive must not
// block; it returns TimeoutOutcome immediately when nothing is pending.
type Reader interface {
	TryReceive() (ReaderOutcome, error)
	Close() error
}

// Writer is the single-writer outbound transport handle.
type Writer interface {
	SendMessage(topic []byte, msg *mgmodel.Message, data [][]byte) (WriterOutcome, error)
	Close() error
}
