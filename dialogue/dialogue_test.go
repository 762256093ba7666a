package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceComplete(t *testing.T) {
	assert.False(t, Reference{}.Complete())
	assert.False(t, Reference{StarterRef: "a"}.Complete())
	assert.False(t, Reference{ResponderRef: "b"}.Complete())
	assert.True(t, Reference{StarterRef: "a", ResponderRef: "b"}.Complete())
}

func TestLabelString(t *testing.T) {
	label := Label{
		Reference:       Reference{StarterRef: "s1", ResponderRef: "r1"},
		OpponentAddress: "bob",
		StarterAddress:  "alice",
	}
	assert.Equal(t, "s1_r1_bob_alice", label.String())
	assert.Equal(t, "s1__bob_alice", label.IncompleteVersion().String())
}

func TestProtocolValidate(t *testing.T) {
	proto := testProtocol()
	require.NoError(t, proto.Validate())

	broken := testProtocol()
	broken.ValidReplies["B"] = []Performative{"A"}
	assert.Error(t, broken.Validate(), "terminal performative must not allow replies")

	noInitial := testProtocol()
	noInitial.InitialPerformatives = nil
	assert.Error(t, noInitial.Validate())
}

func TestProtocolConsistency(t *testing.T) {
	proto := testProtocol()
	proto.ContentSchema = map[Performative]map[string]FieldType{
		"A": {
			"name":  FieldString,
			"count": FieldInt,
			"ratio": FieldFloat,
			"flag":  FieldBool,
			"blob":  FieldBytes,
		},
	}

	base := func() map[string]any {
		return map[string]any{
			"name":  "n",
			"count": 3,
			"ratio": 0.5,
			"flag":  true,
			"blob":  []byte{1, 2},
		}
	}

	good := &Message{Performative: "A", Content: base()}
	assert.True(t, proto.isConsistent(good))

	missing := base()
	delete(missing, "flag")
	assert.False(t, proto.isConsistent(&Message{Performative: "A", Content: missing}))

	wrongType := base()
	wrongType["count"] = "three"
	assert.False(t, proto.isConsistent(&Message{Performative: "A", Content: wrongType}))

	extra := base()
	extra["surplus"] = 1
	assert.False(t, proto.isConsistent(&Message{Performative: "A", Content: extra}))
}

func TestSnapshotRestore(t *testing.T) {
	alice := newTestDialogues(t, "alice", WithKeepTerminal())
	bob := newTestDialogues(t, "bob", WithKeepTerminal())

	first, _, err := alice.Create("bob", "A", map[string]any{"query": "q"})
	require.NoError(t, err)
	bobDialogue := bob.Update(inbound(first))
	require.NotNil(t, bobDialogue)
	_, err = bob.Reply(bobDialogue, "B", nil)
	require.NoError(t, err)

	restored := Restore(bobDialogue.Snapshot(), testProtocol())

	assert.Equal(t, bobDialogue.Label(), restored.Label())
	assert.Equal(t, bobDialogue.SelfAddress(), restored.SelfAddress())
	assert.Equal(t, bobDialogue.Role(), restored.Role())
	assert.Len(t, restored.Messages(), 2)
	assert.True(t, restored.Ended())

	wantEnd, _ := bobDialogue.EndState()
	gotEnd, ok := restored.EndState()
	require.True(t, ok)
	assert.Equal(t, wantEnd, gotEnd)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	label := Label{
		Reference:       Reference{StarterRef: "s", ResponderRef: "r"},
		OpponentAddress: "bob",
		StarterAddress:  "alice",
	}
	d := &Dialogue{label: label, selfAddress: "alice"}

	_, err := store.Get(label)
	assert.ErrorIs(t, err, ErrDialogueNotFound)

	require.NoError(t, store.Add(d))
	assert.Error(t, store.Add(d), "double add must fail")

	got, err := store.Get(label)
	require.NoError(t, err)
	assert.Same(t, d, got)

	incomplete := label.IncompleteVersion()
	require.NoError(t, store.SetIncomplete(incomplete, label))
	assert.Equal(t, label, store.LatestLabel(incomplete))
	assert.Equal(t, label, store.LatestLabel(label), "already complete labels pass through")

	require.NoError(t, store.Remove(label))
	_, err = store.Get(label)
	assert.ErrorIs(t, err, ErrDialogueNotFound)
}
