package mgwire

import (
	"bytes"
	"testing"

	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
)

func TestRoundTrip(t *testing.T) {
	in := &mgmodel.Media{
		Message: &mgmodel.Message{
			RoutingLabels:   []string{"prod", "eu"},
			SequenceID:      42,
			ProtocolVersion: 1,
			TracingContext:  []byte{0xde, 0xad},
			Payload:         []byte("unknown(m)"),
		},
		Topic: []byte("t"),
		Data:  [][]byte{{1}, {2, 3}},
	}

	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(out.Topic, in.Topic) {
		t.Fatalf("topic mismatch: %q != %q", out.Topic, in.Topic)
	}
	if len(out.Data) != len(in.Data) {
		t.Fatalf("data length mismatch: %d != %d", len(out.Data), len(in.Data))
	}
	for i := range in.Data {
		if !bytes.Equal(out.Data[i], in.Data[i]) {
			t.Fatalf("data[%d] mismatch", i)
		}
	}
	if out.Message.SequenceID != in.Message.SequenceID {
		t.Fatalf("sequence id mismatch")
	}
	if len(out.Message.RoutingLabels) != 2 || out.Message.RoutingLabels[0] != "prod" {
		t.Fatalf("routing labels mismatch: %v", out.Message.RoutingLabels)
	}
}

func TestDecodeEmpty(t *testing.T) {
	media, err := Decode(nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if media.Message != nil || media.Topic != nil || media.Data != nil {
		t.Fatalf("expected zero-value Media, got %+v", media)
	}
}

func TestDecodeTruncatedFails(t *testing.T) {
	in := &mgmodel.Media{Topic: []byte("topic"), Data: [][]byte{{1, 2, 3}}}
	full := Encode(in)
	_, err := Decode(full[:len(full)-1])
	if err == nil {
		t.Fatalf("expected error decoding truncated bytes")
	}
}
