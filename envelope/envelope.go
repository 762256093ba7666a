// Package envelope defines the routed message unit exchanged between agents
// and its deterministic byte codec. An Envelope carries routing metadata
// (recipient, sender, protocol identifier) plus an opaque payload that may
// contain any bytes, including the wire separator.
package envelope

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrMalformedProtocolID is returned when a protocol identifier string does
// not match the <author>/<name>:<version> grammar.
var ErrMalformedProtocolID = errors.New("malformed protocol identifier")

// protocolIDPattern matches <author>/<name>:<version> where version is a
// semantic-version-like string.
var protocolIDPattern = regexp.MustCompile(
	`^(?P<author>[a-zA-Z_][a-zA-Z0-9_]*)/(?P<name>[a-zA-Z_][a-zA-Z0-9_]*):(?P<version>\d+\.\d+\.\d+(?:[-+][a-zA-Z0-9.\-]+)?)$`,
)

// ProtocolID is the structured author/name/version identifier of the
// protocol an envelope's payload belongs to.
type ProtocolID struct {
	Author  string
	Name    string
	Version string
}

// ParseProtocolID parses the textual <author>/<name>:<version> form.
func ParseProtocolID(s string) (ProtocolID, error) {
	m := protocolIDPattern.FindStringSubmatch(s)
	if m == nil {
		return ProtocolID{}, fmt.Errorf("%w: %q", ErrMalformedProtocolID, s)
	}
	return ProtocolID{Author: m[1], Name: m[2], Version: m[3]}, nil
}

// String returns the textual wire form of the identifier.
func (p ProtocolID) String() string {
	return p.Author + "/" + p.Name + ":" + p.Version
}

// Envelope is a routed message unit. It is constructed once by the sending
// agent and treated as immutable afterwards.
type Envelope struct {
	// To is the recipient address. Must be non-empty.
	To string

	// Sender is the originator address. Must be non-empty.
	Sender string

	// ProtocolID identifies the protocol of the payload.
	ProtocolID ProtocolID

	// Message is the opaque payload. It may legally contain the wire
	// separator byte sequence.
	Message []byte
}

// New builds an envelope, validating the addresses and identifier.
func New(to, sender string, protocolID ProtocolID, message []byte) (*Envelope, error) {
	if to == "" {
		return nil, errors.New("envelope 'to' address must be non-empty")
	}
	if sender == "" {
		return nil, errors.New("envelope 'sender' address must be non-empty")
	}
	// The struct form can hold components the wire grammar cannot express;
	// a round trip through the parser rejects those.
	if _, err := ParseProtocolID(protocolID.String()); err != nil {
		return nil, err
	}
	return &Envelope{To: to, Sender: sender, ProtocolID: protocolID, Message: message}, nil
}

// Equal reports whether two envelopes carry identical routing metadata and
// payload bytes.
func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.To == other.To &&
		e.Sender == other.Sender &&
		e.ProtocolID == other.ProtocolID &&
		string(e.Message) == string(other.Message)
}

// String returns a human-readable representation for logging.
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{To:%s, Sender:%s, Protocol:%s, %d payload bytes}",
		e.To, e.Sender, e.ProtocolID, len(e.Message))
}
