package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwire-dev/agentwire/envelope"
)

// testProtocol returns a minimal grammar: A opens, B closes successfully,
// C closes with failure.
func testProtocol() *Protocol {
	return &Protocol{
		ID:                    envelope.ProtocolID{Author: "test", Name: "proto", Version: "0.1.0"},
		InitialPerformatives:  []Performative{"A"},
		TerminalPerformatives: []Performative{"B", "C"},
		ValidReplies: map[Performative][]Performative{
			"A": {"B", "C"},
			"B": {},
			"C": {},
		},
		EndStates: map[Performative]EndState{
			"B": "done",
			"C": "failed",
		},
		Roles: []Role{"initiator", "responder"},
		RoleFromFirstMessage: func(msg *Message, selfAddress string) Role {
			if msg.Sender == selfAddress {
				return "initiator"
			}
			return "responder"
		},
		ContentSchema: map[Performative]map[string]FieldType{
			"A": {"query": FieldString},
		},
	}
}

func newTestDialogues(t *testing.T, self string, opts ...Option) *Dialogues {
	t.Helper()
	ds, err := NewDialogues(self, testProtocol(), opts...)
	require.NoError(t, err)
	return ds
}

// inbound rewrites an outgoing message as the counterparty's collection
// would see it.
func inbound(msg *Message) *Message {
	clone := *msg
	return &clone
}

func TestCreateFirstMessage(t *testing.T) {
	ds := newTestDialogues(t, "alice")

	msg, d, err := ds.Create("bob", "A", map[string]any{"query": "ping"})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, StartingMessageID, msg.MessageID)
	assert.Equal(t, StartingTarget, msg.Target)
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "bob", msg.To)
	assert.NotEmpty(t, msg.Reference.StarterRef)
	assert.Equal(t, UnassignedReference, msg.Reference.ResponderRef)

	assert.Equal(t, Role("initiator"), d.Role())
	assert.True(t, d.IsSelfInitiated())
	assert.False(t, d.Ended())
}

func TestCreateRejectsNonInitialPerformative(t *testing.T) {
	ds := newTestDialogues(t, "alice")

	_, _, err := ds.Create("bob", "B", nil)
	assert.Error(t, err)
}

func TestCreateRejectsInconsistentContent(t *testing.T) {
	ds := newTestDialogues(t, "alice")

	tests := []struct {
		name    string
		content map[string]any
	}{
		{name: "missing field", content: nil},
		{name: "wrong type", content: map[string]any{"query": 42}},
		{name: "extra field", content: map[string]any{"query": "q", "junk": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ds.Create("bob", "A", tt.content)
			assert.Error(t, err)
		})
	}
}

func TestUpdateCreatesDialogueFromLegalFirstMessage(t *testing.T) {
	alice := newTestDialogues(t, "alice")
	bob := newTestDialogues(t, "bob")

	msg, _, err := alice.Create("bob", "A", map[string]any{"query": "ping"})
	require.NoError(t, err)

	d := bob.Update(inbound(msg))
	require.NotNil(t, d)
	assert.Equal(t, Role("responder"), d.Role())
	assert.False(t, d.IsSelfInitiated())
	// The responder assigns its half of the reference at creation.
	assert.NotEmpty(t, d.Label().Reference.ResponderRef)
}

func TestUpdateRejectsIllegalFirstPerformative(t *testing.T) {
	bob := newTestDialogues(t, "bob")

	msg := &Message{
		Reference:    Reference{StarterRef: "ref-1"},
		MessageID:    StartingMessageID,
		Target:       StartingTarget,
		Performative: "B",
		Sender:       "alice",
		To:           "bob",
	}
	assert.Nil(t, bob.Update(msg), "illegal first performative must not create a dialogue")
	assert.Nil(t, bob.GetDialogue(msg))
}

func TestFullExchangeEndsDialogue(t *testing.T) {
	alice := newTestDialogues(t, "alice", WithKeepTerminal())
	bob := newTestDialogues(t, "bob", WithKeepTerminal())

	first, aliceDialogue, err := alice.Create("bob", "A", map[string]any{"query": "ping"})
	require.NoError(t, err)

	bobDialogue := bob.Update(inbound(first))
	require.NotNil(t, bobDialogue)

	reply, err := bob.Reply(bobDialogue, "B", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reply.MessageID)
	assert.Equal(t, 1, reply.Target)
	assert.True(t, reply.Reference.Complete())

	require.True(t, bobDialogue.Ended())
	endState, ok := bobDialogue.EndState()
	require.True(t, ok)
	assert.Equal(t, EndState("done"), endState)

	// Alice's side completes its label from the reply and ends too.
	got := alice.Update(inbound(reply))
	require.NotNil(t, got)
	assert.True(t, got.Ended())
	assert.Same(t, aliceDialogue, got)
	assert.True(t, got.Label().Reference.Complete())
}

func TestMessageAfterTerminalIsRejected(t *testing.T) {
	alice := newTestDialogues(t, "alice", WithKeepTerminal())
	bob := newTestDialogues(t, "bob", WithKeepTerminal())

	first, _, err := alice.Create("bob", "A", map[string]any{"query": "q"})
	require.NoError(t, err)
	bobDialogue := bob.Update(inbound(first))
	require.NotNil(t, bobDialogue)

	reply, err := bob.Reply(bobDialogue, "B", nil)
	require.NoError(t, err)
	require.True(t, bobDialogue.Ended())

	// Nothing may follow a terminal performative, in either direction.
	_, err = bob.Reply(bobDialogue, "B", nil)
	assert.ErrorIs(t, err, ErrDialogueEnded)

	late := &Message{
		Reference:    reply.Reference,
		MessageID:    3,
		Target:       2,
		Performative: "B",
		Sender:       "alice",
		To:           "bob",
	}
	assert.Nil(t, bob.Update(late))
}

func TestTerminalDialogueEvictedByDefault(t *testing.T) {
	store := NewMemoryStore()
	bob := newTestDialogues(t, "bob", WithStore(store))

	alice := newTestDialogues(t, "alice")
	first, _, err := alice.Create("bob", "A", map[string]any{"query": "q"})
	require.NoError(t, err)

	bobDialogue := bob.Update(inbound(first))
	require.NotNil(t, bobDialogue)
	assert.Equal(t, 1, store.Len())

	_, err = bob.Reply(bobDialogue, "C", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len(), "terminal dialogue should be evicted")
}

func TestMessageIDTargetChain(t *testing.T) {
	bob := newTestDialogues(t, "bob")
	alice := newTestDialogues(t, "alice")

	first, _, err := alice.Create("bob", "A", map[string]any{"query": "q"})
	require.NoError(t, err)
	bobDialogue := bob.Update(inbound(first))
	require.NotNil(t, bobDialogue)

	tests := []struct {
		name      string
		messageID int
		target    int
	}{
		{name: "target points at missing message", messageID: 2, target: 5},
		{name: "target zero on non-initial", messageID: 2, target: 0},
		{name: "message id gap", messageID: 4, target: 1},
		{name: "message id repeat", messageID: 1, target: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := &Message{
				Reference:    bobDialogue.Label().Reference,
				MessageID:    tt.messageID,
				Target:       tt.target,
				Performative: "B",
				Sender:       "alice",
				To:           "bob",
			}
			assert.Nil(t, bob.Update(bad))
		})
	}
}

func TestUpdateIgnoresMessagesNotAddressedToSelf(t *testing.T) {
	bob := newTestDialogues(t, "bob")

	msg := &Message{
		Reference:    Reference{StarterRef: "r"},
		MessageID:    1,
		Target:       0,
		Performative: "A",
		Sender:       "alice",
		To:           "carol",
	}
	assert.Nil(t, bob.Update(msg))
}

func TestDuplicateFirstMessageRejected(t *testing.T) {
	bob := newTestDialogues(t, "bob")

	msg := &Message{
		Reference:    Reference{StarterRef: "same-ref"},
		MessageID:    1,
		Target:       0,
		Performative: "A",
		Sender:       "alice",
		To:           "bob",
		Content:      map[string]any{"query": "q"},
	}
	require.NotNil(t, bob.Update(msg))
	assert.Nil(t, bob.Update(inbound(msg)), "colliding label must be rejected")
}
