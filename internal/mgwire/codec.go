// Package mgwire encodes and decodes the Media envelope on the wire. There
// is no protoc build step in this repository, so the low-level
// google.golang.org/protobuf/encoding/protowire package is used directly
// rather than protoc-gen-go output — the same approach infra code reaches
// for when a handful of stable, hand-maintained fields don't warrant a
// generated-code pipeline.
package mgwire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
)

// Message wire tags.
const (
	msgFieldRoutingLabels   = 1
	msgFieldSequenceID      = 2
	msgFieldProtocolVersion = 3
	msgFieldTracingContext  = 4
	msgFieldPayload         = 5
)

// Media wire tags, normative per spec.md §6.
const (
	mediaFieldMessage = 1
	mediaFieldTopic   = 2
	mediaFieldData    = 3
)

// EncodeMessage serializes the opaque inner carrier.
func EncodeMessage(m *mgmodel.Message) []byte {
	var b []byte
	for _, label := range m.RoutingLabels {
		b = protowire.AppendTag(b, msgFieldRoutingLabels, protowire.BytesType)
		b = protowire.AppendString(b, label)
	}
	if m.SequenceID != 0 {
		b = protowire.AppendTag(b, msgFieldSequenceID, protowire.VarintType)
		b = protowire.AppendVarint(b, m.SequenceID)
	}
	if m.ProtocolVersion != 0 {
		b = protowire.AppendTag(b, msgFieldProtocolVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.ProtocolVersion))
	}
	if len(m.TracingContext) > 0 {
		b = protowire.AppendTag(b, msgFieldTracingContext, protowire.BytesType)
		b = protowire.AppendBytes(b, m.TracingContext)
	}
	if len(m.Payload) > 0 {
		b = protowire.AppendTag(b, msgFieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Payload)
	}
	return b
}

// DecodeMessage parses bytes previously produced by EncodeMessage.
func DecodeMessage(b []byte) (*mgmodel.Message, error) {
	m := &mgmodel.Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("mgwire: consume message tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case msgFieldRoutingLabels:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: consume routing_labels: %w", protowire.ParseError(n))
			}
			m.RoutingLabels = append(m.RoutingLabels, string(v))
			b = b[n:]
		case msgFieldSequenceID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: consume sequence_id: %w", protowire.ParseError(n))
			}
			m.SequenceID = v
			b = b[n:]
		case msgFieldProtocolVersion:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: consume protocol_version: %w", protowire.ParseError(n))
			}
			m.ProtocolVersion = uint32(v)
			b = b[n:]
		case msgFieldTracingContext:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: consume tracing_context: %w", protowire.ParseError(n))
			}
			m.TracingContext = append([]byte(nil), v...)
			b = b[n:]
		case msgFieldPayload:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: consume payload: %w", protowire.ParseError(n))
			}
			m.Payload = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: skip unknown message field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

// Encode serializes a Media envelope per spec.md §6's field tags.
func Encode(media *mgmodel.Media) []byte {
	var b []byte
	if media.Message != nil {
		b = protowire.AppendTag(b, mediaFieldMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeMessage(media.Message))
	}
	if len(media.Topic) > 0 {
		b = protowire.AppendTag(b, mediaFieldTopic, protowire.BytesType)
		b = protowire.AppendBytes(b, media.Topic)
	}
	for _, frame := range media.Data {
		b = protowire.AppendTag(b, mediaFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, frame)
	}
	return b
}

// Decode parses bytes previously produced by Encode.
func Decode(b []byte) (*mgmodel.Media, error) {
	media := &mgmodel.Media{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("mgwire: consume media tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case mediaFieldMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: consume message: %w", protowire.ParseError(n))
			}
			inner, err := DecodeMessage(v)
			if err != nil {
				return nil, err
			}
			media.Message = inner
			b = b[n:]
		case mediaFieldTopic:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: consume topic: %w", protowire.ParseError(n))
			}
			media.Topic = append([]byte(nil), v...)
			b = b[n:]
		case mediaFieldData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: consume data frame: %w", protowire.ParseError(n))
			}
			media.Data = append(media.Data, append([]byte(nil), v...))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("mgwire: skip unknown media field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return media, nil
}
