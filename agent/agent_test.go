package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwire-dev/agentwire/connection"
	"github.com/agentwire-dev/agentwire/connection/filecon"
	"github.com/agentwire-dev/agentwire/envelope"
	"github.com/agentwire-dev/agentwire/executor"
)

var testProtocolID = envelope.ProtocolID{Author: "agentwire", Name: "default", Version: "1.0.0"}

// echoAgent answers every envelope with the same payload sent back to its
// sender.
type echoAgent struct {
	name    string
	address string

	setupErr error
	setups   atomic.Int32
	handled  atomic.Int32
	torn     atomic.Int32
}

func (a *echoAgent) Name() string    { return a.name }
func (a *echoAgent) Address() string { return a.address }

func (a *echoAgent) Setup() error {
	a.setups.Add(1)
	return a.setupErr
}

func (a *echoAgent) HandleEnvelope(ctx context.Context, env *envelope.Envelope, out *Outbox) error {
	a.handled.Add(1)
	reply, err := envelope.New(env.Sender, a.address, env.ProtocolID, env.Message)
	if err != nil {
		return err
	}
	return out.Put(reply)
}

func (a *echoAgent) Teardown() error {
	a.torn.Add(1)
	return nil
}

func newFileConnection(t *testing.T, ns, address string) connection.Connection {
	t.Helper()
	conn, err := filecon.New(address, connection.Config{"namespace_dir": ns})
	require.NoError(t, err)
	return conn
}

func TestNewLoopValidation(t *testing.T) {
	_, err := NewLoop(nil)
	assert.Error(t, err)

	_, err = NewLoop(&echoAgent{name: "a", address: "a"})
	assert.Error(t, err, "a loop needs at least one connection")
}

func TestLoopEchoesUnderExecutor(t *testing.T) {
	ns := t.TempDir()

	echo := &echoAgent{name: "echo", address: "echo"}
	loop, err := NewLoop(echo, newFileConnection(t, ns, "echo"))
	require.NoError(t, err)

	ex, err := executor.New([]executor.Task{loop})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ex.Start(context.Background()) }()

	client := newFileConnection(t, ns, "client")
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Disconnect() })

	ping, err := envelope.New("echo", "client", testProtocolID, []byte("hello"))
	require.NoError(t, err)

	// The echo agent may still be connecting; retry until the send lands.
	require.Eventually(t, func() bool {
		return client.Send(ping) == nil
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := client.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "echo", reply.Sender)
	assert.Equal(t, []byte("hello"), reply.Message)

	require.NoError(t, ex.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not stop")
	}

	assert.Equal(t, int32(1), echo.setups.Load())
	assert.Equal(t, int32(1), echo.torn.Load())
	assert.GreaterOrEqual(t, echo.handled.Load(), int32(1))
}

func TestLoopSetupFailure(t *testing.T) {
	ns := t.TempDir()
	boom := errors.New("setup boom")

	bad := &echoAgent{name: "bad", address: "bad", setupErr: boom}
	loop, err := NewLoop(bad, newFileConnection(t, ns, "bad"))
	require.NoError(t, err)

	err = loop.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), bad.torn.Load(), "teardown must not run when setup failed")
}

func TestLoopStopReturnsNil(t *testing.T) {
	ns := t.TempDir()

	echo := &echoAgent{name: "echo", address: "echo"}
	loop, err := NewLoop(echo, newFileConnection(t, ns, "echo"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- loop.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return echo.setups.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, loop.Stop())
	require.NoError(t, loop.Stop(), "stop is idempotent")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestOutboxRoutesBySenderAddress(t *testing.T) {
	ns := t.TempDir()

	a := newFileConnection(t, ns, "a")
	b := newFileConnection(t, ns, "b")
	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { _ = a.Disconnect(); _ = b.Disconnect() })

	out := newOutbox([]connection.Connection{a, b})

	env, err := envelope.New("b", "a", testProtocolID, []byte("cross"))
	require.NoError(t, err)
	require.NoError(t, out.Put(env))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := b.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("cross"), got.Message)

	stranger, err := envelope.New("b", "nobody", testProtocolID, []byte("lost"))
	require.NoError(t, err)
	assert.Error(t, out.Put(stranger), "unroutable sender address must fail")
}
