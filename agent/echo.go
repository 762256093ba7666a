package agent

import (
	"context"

	"github.com/agentwire-dev/agentwire/envelope"
)

// Echo is a minimal built-in agent that sends every payload straight back
// to its sender. It is the default behavior for smoke-testing a transport
// or an agent project layout.
type Echo struct {
	name    string
	address string
}

// NewEcho builds an echo agent.
func NewEcho(name, address string) *Echo {
	return &Echo{name: name, address: address}
}

func (e *Echo) Name() string    { return e.name }
func (e *Echo) Address() string { return e.address }
func (e *Echo) Setup() error    { return nil }
func (e *Echo) Teardown() error { return nil }

func (e *Echo) HandleEnvelope(ctx context.Context, env *envelope.Envelope, out *Outbox) error {
	reply, err := envelope.New(env.Sender, e.address, env.ProtocolID, env.Message)
	if err != nil {
		return err
	}
	return out.Put(reply)
}
