package agent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/agentwire-dev/agentwire/connection"
	"github.com/agentwire-dev/agentwire/envelope"
	tracing "github.com/agentwire-dev/agentwire/internal/observability"
)

const defaultInboxSize = 100

// Loop drives one agent over its connections. It implements the executor's
// Task interface: Start connects everything and blocks handling envelopes
// until the context ends or Stop disconnects the transports.
type Loop struct {
	agent Agent
	conns []connection.Connection

	mu      sync.Mutex
	stopped bool

	// cooperative-mode state, touched only by the scheduler goroutine
	stepInbox  *Inbox
	stepOutbox *Outbox
}

// NewLoop binds an agent to its connections.
func NewLoop(a Agent, conns ...connection.Connection) (*Loop, error) {
	if a == nil {
		return nil, fmt.Errorf("agent: nil agent")
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("agent %s: at least one connection is required", a.Name())
	}
	return &Loop{agent: a, conns: conns}, nil
}

// ID returns the agent's name.
func (l *Loop) ID() string { return l.agent.Name() }

// Agent returns the wrapped agent.
func (l *Loop) Agent() Agent { return l.agent }

// Start connects the transports, runs the agent's setup, then handles
// inbound envelopes until the inbox is exhausted or ctx ends. Teardown and
// disconnect always run, whatever ended the loop.
func (l *Loop) Start(ctx context.Context) error {
	connected := make([]connection.Connection, 0, len(l.conns))
	for _, conn := range l.conns {
		if err := conn.Connect(ctx); err != nil {
			for _, open := range connected {
				_ = open.Disconnect()
			}
			return fmt.Errorf("agent %s: connect: %w", l.agent.Name(), err)
		}
		connected = append(connected, conn)
	}
	defer func() {
		for _, conn := range l.conns {
			if err := conn.Disconnect(); err != nil {
				log.Printf("WARNING: agent %s: disconnect: %v", l.agent.Name(), err)
			}
		}
	}()

	if err := l.agent.Setup(); err != nil {
		return fmt.Errorf("agent %s: setup: %w", l.agent.Name(), err)
	}
	defer func() {
		if err := l.agent.Teardown(); err != nil {
			log.Printf("WARNING: agent %s: teardown: %v", l.agent.Name(), err)
		}
	}()

	inbox := newInbox(defaultInboxSize)
	inbox.start(ctx, l.conns)
	outbox := newOutbox(l.conns)

	for {
		env, err := inbox.Get(ctx)
		if err != nil {
			return err
		}
		if env == nil {
			return nil
		}
		l.handle(ctx, env, outbox)
	}
}

func (l *Loop) handle(ctx context.Context, env *envelope.Envelope, outbox *Outbox) {
	ctx, span := tracing.StartSpan(ctx, "agent.HandleEnvelope")
	defer span.End()

	if err := l.agent.HandleEnvelope(ctx, env, outbox); err != nil {
		tracing.RecordError(span, err)
		log.Printf("ERROR: agent %s: handle envelope from %s: %v", l.agent.Name(), env.Sender, err)
	}
}

// Step runs one slice of the loop for the cooperative scheduler: the first
// call connects the transports and runs setup, later calls handle at most
// one envelope each. It reports done once the inbox is exhausted, which
// only happens after Stop disconnected the transports.
func (l *Loop) Step(ctx context.Context) (bool, error) {
	if l.stepInbox == nil {
		for _, conn := range l.conns {
			if err := conn.Connect(ctx); err != nil {
				return true, fmt.Errorf("agent %s: connect: %w", l.agent.Name(), err)
			}
		}
		if err := l.agent.Setup(); err != nil {
			return true, fmt.Errorf("agent %s: setup: %w", l.agent.Name(), err)
		}
		l.stepInbox = newInbox(defaultInboxSize)
		l.stepInbox.start(ctx, l.conns)
		l.stepOutbox = newOutbox(l.conns)
		return false, nil
	}

	env, exhausted := l.stepInbox.tryGet()
	if exhausted {
		if err := l.agent.Teardown(); err != nil {
			log.Printf("WARNING: agent %s: teardown: %v", l.agent.Name(), err)
		}
		return true, nil
	}
	if env != nil {
		l.handle(ctx, env, l.stepOutbox)
	}
	return false, nil
}

// Stop disconnects the transports, which ends the inbox stream and lets
// Start return. Safe to call more than once.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	var firstErr error
	for _, conn := range l.conns {
		if err := conn.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
