// Package connection defines the polymorphic transport abstraction used to
// deliver envelopes between agents. Concrete transports (the file transport
// in connection/filecon, future network transports) register themselves with
// the factory and are selected by configuration, never by runtime type
// inspection.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agentwire-dev/agentwire/envelope"
)

// State is the lifecycle state of a connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by Send and Receive when the connection is
// not in the Connected state.
var ErrNotConnected = errors.New("connection is not connected")

// Connection is a transport endpoint with a uniform lifecycle.
//
// Connect is idempotent: calling it on an already connected endpoint is a
// no-op. Send and Receive are only valid while Connected. Disconnect
// unblocks any pending Receive.
type Connection interface {
	// ID returns the unique identifier of this connection instance.
	ID() string

	// Address returns the local address this connection serves.
	Address() string

	// State returns the current lifecycle state.
	State() State

	// Connect opens the transport and starts inbound delivery.
	Connect(ctx context.Context) error

	// Disconnect tears the transport down and unblocks pending receivers.
	Disconnect() error

	// Send writes one envelope to the transport.
	Send(env *envelope.Envelope) error

	// Receive blocks until an envelope is available or the connection is
	// disconnected, in which case it returns (nil, nil).
	Receive(ctx context.Context) (*envelope.Envelope, error)
}

// Config carries transport-specific options as loose key/value pairs so it
// can be populated straight from YAML.
type Config map[string]any

// GetString returns the string option for key, or def when absent.
func (c Config) GetString(key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

// GetInt returns the integer option for key, or def when absent.
func (c Config) GetInt(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// GetBool returns the boolean option for key, or def when absent.
func (c Config) GetBool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// Factory builds a connection for a local address from its configuration.
type Factory func(address string, cfg Config) (Connection, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a transport factory under the given name. It panics on a
// nil factory or a duplicate name, matching the usual init-time contract.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if factory == nil {
		panic("connection: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("connection: Register called twice for transport " + name)
	}
	registry[name] = factory
}

// New builds a connection using the transport registered under name.
func New(name, address string, cfg Config) (Connection, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown transport: %s (available: %v)", name, Transports())
	}
	return factory(address, cfg)
}

// Transports returns the sorted names of all registered transports.
func Transports() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
