package redisstore

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwire-dev/agentwire/dialogue"
	"github.com/agentwire-dev/agentwire/envelope"
)

func testProtocol() *dialogue.Protocol {
	return &dialogue.Protocol{
		ID:                    envelope.ProtocolID{Author: "test", Name: "proto", Version: "0.1.0"},
		InitialPerformatives:  []dialogue.Performative{"A"},
		TerminalPerformatives: []dialogue.Performative{"B"},
		ValidReplies: map[dialogue.Performative][]dialogue.Performative{
			"A": {"B"},
			"B": {},
		},
		EndStates: map[dialogue.Performative]dialogue.EndState{
			"B": "done",
		},
		Roles: []dialogue.Role{"initiator", "responder"},
		RoleFromFirstMessage: func(msg *dialogue.Message, selfAddress string) dialogue.Role {
			if msg.Sender == selfAddress {
				return "initiator"
			}
			return "responder"
		},
		ContentSchema: map[dialogue.Performative]map[string]dialogue.FieldType{
			"A": {"query": dialogue.FieldString},
		},
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	srv := miniredis.RunT(t)
	store, err := New(Config{Addr: srv.Addr()}, testProtocol())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, srv.Addr()
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(Config{}, testProtocol())
	assert.Error(t, err)
}

func TestNewUnreachableServer(t *testing.T) {
	_, err := New(Config{Addr: "127.0.0.1:1"}, testProtocol())
	assert.Error(t, err)
}

func TestExchangePersistsDialogue(t *testing.T) {
	store, addr := newTestStore(t)
	proto := testProtocol()

	alice, err := dialogue.NewDialogues("alice", proto)
	require.NoError(t, err)
	bob, err := dialogue.NewDialogues("bob", proto,
		dialogue.WithStore(store), dialogue.WithKeepTerminal())
	require.NoError(t, err)

	first, _, err := alice.Create("bob", "A", map[string]any{"query": "q"})
	require.NoError(t, err)

	bobDialogue := bob.Update(first)
	require.NotNil(t, bobDialogue)
	label := bobDialogue.Label()

	_, err = bob.Reply(bobDialogue, "B", nil)
	require.NoError(t, err)
	require.True(t, bobDialogue.Ended())

	// A fresh store against the same server rehydrates the dialogue.
	reopened, err := New(Config{Addr: addr}, proto)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(label)
	require.NoError(t, err)
	assert.Equal(t, label, got.Label())
	assert.Equal(t, "bob", got.SelfAddress())
	assert.Len(t, got.Messages(), 2)
	assert.True(t, got.Ended())

	endState, ok := got.EndState()
	require.True(t, ok)
	assert.Equal(t, dialogue.EndState("done"), endState)

	// The incomplete label mapping survives too.
	assert.Equal(t, label, reopened.LatestLabel(label.IncompleteVersion()))
}

func TestGetUnknownLabel(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(dialogue.Label{
		Reference:       dialogue.Reference{StarterRef: "nope"},
		OpponentAddress: "bob",
		StarterAddress:  "alice",
	})
	assert.ErrorIs(t, err, dialogue.ErrDialogueNotFound)
}

func TestRemove(t *testing.T) {
	store, _ := newTestStore(t)
	proto := testProtocol()

	alice, err := dialogue.NewDialogues("alice", proto, dialogue.WithStore(store))
	require.NoError(t, err)

	_, d, err := alice.Create("bob", "A", map[string]any{"query": "q"})
	require.NoError(t, err)
	label := d.Label()

	_, err = store.Get(label)
	require.NoError(t, err)

	require.NoError(t, store.Remove(label))
	_, err = store.Get(label)
	assert.ErrorIs(t, err, dialogue.ErrDialogueNotFound)
}

func TestDoubleAddRejected(t *testing.T) {
	store, _ := newTestStore(t)
	proto := testProtocol()

	alice, err := dialogue.NewDialogues("alice", proto, dialogue.WithStore(store))
	require.NoError(t, err)

	_, d, err := alice.Create("bob", "A", map[string]any{"query": "q"})
	require.NoError(t, err)

	assert.Error(t, store.Add(d))
}

func TestClosedStore(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.Get(dialogue.Label{})
	assert.Error(t, err)
}
