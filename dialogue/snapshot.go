package dialogue

// Snapshot is the serializable state of a dialogue, used by out-of-process
// stores. The protocol itself is not part of the snapshot; it is re-bound
// on restore.
type Snapshot struct {
	Label       Label      `json:"label"`
	SelfAddress string     `json:"self_address"`
	Role        Role       `json:"role"`
	Messages    []*Message `json:"messages"`
	Ended       bool       `json:"ended"`
	EndState    EndState   `json:"end_state,omitempty"`
}

// Snapshot captures the dialogue's current serializable state.
func (d *Dialogue) Snapshot() Snapshot {
	msgs := make([]*Message, len(d.messages))
	copy(msgs, d.messages)
	return Snapshot{
		Label:       d.label,
		SelfAddress: d.selfAddress,
		Role:        d.role,
		Messages:    msgs,
		Ended:       d.ended,
		EndState:    d.endState,
	}
}

// Restore rebuilds a dialogue from a snapshot, re-binding it to proto.
// The snapshot's messages are trusted; they are not re-validated.
func Restore(snap Snapshot, proto *Protocol) *Dialogue {
	d := newDialogue(snap.Label, snap.SelfAddress, snap.Role, proto)
	d.messages = snap.Messages
	d.ended = snap.Ended
	d.endState = snap.EndState
	return d
}
