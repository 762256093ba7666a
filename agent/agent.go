// Package agent defines the behavior surface an agent implements and the
// loop that drives it: envelopes arrive from one or more connections
// through an Inbox, the agent handles each one, and replies leave through
// an Outbox. The loop is an executor task, so agents run under any of the
// executor's strategies.
package agent

import (
	"context"

	"github.com/agentwire-dev/agentwire/envelope"
)

// Agent is the behavior the loop drives. The loop serializes all calls, so
// implementations need no internal locking.
type Agent interface {
	// Name identifies the agent in logs and as its task id.
	Name() string

	// Address is the agent's transport address.
	Address() string

	// Setup runs once before the first envelope is handled.
	Setup() error

	// HandleEnvelope processes one inbound envelope. Outgoing envelopes go
	// through out. A returned error is logged and the loop moves on; it
	// does not stop the agent.
	HandleEnvelope(ctx context.Context, env *envelope.Envelope, out *Outbox) error

	// Teardown runs once after the loop has drained, whether the run
	// ended normally or by cancellation.
	Teardown() error
}
