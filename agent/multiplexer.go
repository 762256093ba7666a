package agent

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentwire-dev/agentwire/connection"
	"github.com/agentwire-dev/agentwire/envelope"
)

// Inbox merges the inbound streams of one or more connections into a
// single ordered queue. It owns one pump goroutine per connection; the
// queue closes once every underlying connection has signalled
// end-of-stream.
type Inbox struct {
	queue chan *envelope.Envelope

	closeOnce sync.Once
}

func newInbox(size int) *Inbox {
	return &Inbox{queue: make(chan *envelope.Envelope, size)}
}

// start pumps every connection into the queue and closes the queue when
// all pumps have finished.
func (in *Inbox) start(ctx context.Context, conns []connection.Connection) {
	g, ctx := errgroup.WithContext(ctx)
	for _, conn := range conns {
		g.Go(func() error {
			for {
				env, err := conn.Receive(ctx)
				if err != nil {
					return err
				}
				if env == nil {
					// Disconnected: end of this connection's stream.
					return nil
				}
				select {
				case in.queue <- env:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
		in.closeOnce.Do(func() { close(in.queue) })
	}()
}

// tryGet returns the next envelope without blocking. The second result is
// true once the inbox is exhausted.
func (in *Inbox) tryGet() (*envelope.Envelope, bool) {
	select {
	case env, ok := <-in.queue:
		if !ok {
			return nil, true
		}
		return env, false
	default:
		return nil, false
	}
}

// Get blocks for the next inbound envelope. It returns (nil, nil) once the
// inbox is exhausted, mirroring Connection.Receive after disconnect.
func (in *Inbox) Get(ctx context.Context) (*envelope.Envelope, error) {
	select {
	case env, ok := <-in.queue:
		if !ok {
			return nil, nil
		}
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outbox routes outgoing envelopes to the connection serving the sending
// agent's address, or to the sole connection when only one is attached.
type Outbox struct {
	conns []connection.Connection
}

func newOutbox(conns []connection.Connection) *Outbox {
	return &Outbox{conns: conns}
}

// Put sends one envelope.
func (out *Outbox) Put(env *envelope.Envelope) error {
	if len(out.conns) == 1 {
		return out.conns[0].Send(env)
	}
	for _, conn := range out.conns {
		if conn.Address() == env.Sender {
			return conn.Send(env)
		}
	}
	return fmt.Errorf("agent: no connection serves sender address %s", env.Sender)
}
