// Package mgmodel holds the value types shared by both relays: the Media
// wire envelope, credentials, per-user directory records with their sealed
// routing-label rule type, and the small value types (retry state, auth
// verdicts) that flow between components.
package mgmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Message is the inner carrier the transport library produces. The relay
// treats Payload as opaque but needs RoutingLabels for label filtering and
// TracingContext for span propagation, so both are first-class fields.
type Message struct {
	RoutingLabels   []string
	SequenceID      uint64
	ProtocolVersion uint32
	TracingContext  []byte
	Payload         []byte
}

// Media is the wire envelope: an optional inner Message, an uninterpreted
// topic, and an ordered sequence of auxiliary data frames.
type Media struct {
	Message *Message
	Topic   []byte
	Data    [][]byte
}

// Credentials is HTTP basic-auth input. Equality and hashing cover both
// fields; String redacts the password so it never reaches a log line.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username:%q, Password:***}", c.Username)
}

// RoutingLabelRule is a closed sum type evaluated against a message's
// RoutingLabels. Use the idiomatic sealed-interface form: a marker method
// plus one struct per variant.
type RoutingLabelRule interface {
	Matches(labels []string) bool
	isRoutingLabelRule()
}

type SetRule struct{ Label string }

func (r SetRule) Matches(labels []string) bool {
	for _, l := range labels {
		if l == r.Label {
			return true
		}
	}
	return false
}
func (SetRule) isRoutingLabelRule() {}

type AllOfRule struct{ Rules []RoutingLabelRule }

func (r AllOfRule) Matches(labels []string) bool {
	for _, sub := range r.Rules {
		if !sub.Matches(labels) {
			return false
		}
	}
	return true
}
func (AllOfRule) isRoutingLabelRule() {}

type AnyOfRule struct{ Rules []RoutingLabelRule }

func (r AnyOfRule) Matches(labels []string) bool {
	for _, sub := range r.Rules {
		if sub.Matches(labels) {
			return true
		}
	}
	return false
}
func (AnyOfRule) isRoutingLabelRule() {}

type NotRule struct{ Rule RoutingLabelRule }

func (r NotRule) Matches(labels []string) bool { return !r.Rule.Matches(labels) }
func (NotRule) isRoutingLabelRule()            {}

// UserData is the per-username record stored in the user directory.
type UserData struct {
	PasswordHash        string
	AllowedRoutingLabels RoutingLabelRule // nil means unrestricted
}

// HashUserData returns a stable content checksum for cache versioning,
// computed over the raw bytes the directory returned (before decoding).
func HashUserData(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// BasicAuthCheckResult is the memoized verdict for a Credentials value. Hash
// is the authoritative version token: a cache hit whose hash no longer
// matches the directory's current hash must be treated as a miss.
type BasicAuthCheckResult struct {
	Valid        bool
	PasswordHash string
}

// Retry is the exponential-backoff state threaded through the forwarder.
type Retry struct {
	Attempt uint32
	Delay   time.Duration
}
