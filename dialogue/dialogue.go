package dialogue

import (
	"errors"
	"fmt"
)

// ErrDialogueEnded is returned when a message arrives for a dialogue that
// already reached an end state.
var ErrDialogueEnded = errors.New("dialogue has reached an end state")

// Dialogue is the protocol state machine for one conversation. It is bound
// to one label, tracks the exchanged messages and enforces the protocol's
// conversation grammar. Dialogue is not safe for concurrent use; the
// owning Dialogues collection serializes access.
type Dialogue struct {
	label       Label
	selfAddress string
	role        Role
	proto       *Protocol

	messages []*Message
	endState EndState
	ended    bool

	terminalCallbacks []func(*Dialogue)
}

func newDialogue(label Label, selfAddress string, role Role, proto *Protocol) *Dialogue {
	return &Dialogue{
		label:       label,
		selfAddress: selfAddress,
		role:        role,
		proto:       proto,
	}
}

// Label returns the dialogue label.
func (d *Dialogue) Label() Label { return d.label }

// SelfAddress returns the address this dialogue is maintained for.
func (d *Dialogue) SelfAddress() string { return d.selfAddress }

// Role returns the local agent's role in the conversation.
func (d *Dialogue) Role() Role { return d.role }

// Messages returns the exchanged messages in order.
func (d *Dialogue) Messages() []*Message { return d.messages }

// LastMessage returns the most recent message, or nil for an empty
// dialogue.
func (d *Dialogue) LastMessage() *Message {
	if len(d.messages) == 0 {
		return nil
	}
	return d.messages[len(d.messages)-1]
}

// Ended reports whether a terminal performative has been reached.
func (d *Dialogue) Ended() bool { return d.ended }

// EndState returns the outcome of an ended dialogue; the second return is
// false while the dialogue is still live.
func (d *Dialogue) EndState() (EndState, bool) {
	return d.endState, d.ended
}

// IsSelfInitiated reports whether the local agent started the dialogue.
func (d *Dialogue) IsSelfInitiated() bool {
	return d.label.StarterAddress == d.selfAddress
}

// Counterparty returns the other agent's address.
func (d *Dialogue) Counterparty() string { return d.label.OpponentAddress }

// OnTerminal registers a callback invoked when the dialogue reaches an end
// state.
func (d *Dialogue) OnTerminal(fn func(*Dialogue)) {
	d.terminalCallbacks = append(d.terminalCallbacks, fn)
}

// Reply builds, validates and records the next outgoing message targeting
// the last message in the dialogue.
func (d *Dialogue) Reply(performative Performative, content map[string]any) (*Message, error) {
	last := d.LastMessage()
	if last == nil {
		return nil, errors.New("cannot reply in an empty dialogue")
	}

	reply := &Message{
		Reference:    d.label.Reference,
		MessageID:    last.MessageID + 1,
		Target:       last.MessageID,
		Performative: performative,
		Sender:       d.selfAddress,
		To:           d.label.OpponentAddress,
		Content:      content,
	}
	if err := d.update(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// update validates msg against the grammar and records it.
func (d *Dialogue) update(msg *Message) error {
	if err := d.validateNextMessage(msg); err != nil {
		return err
	}

	d.messages = append(d.messages, msg)

	if d.proto.isTerminal(msg.Performative) {
		d.ended = true
		d.endState = d.proto.EndStates[msg.Performative]
		for _, fn := range d.terminalCallbacks {
			fn(d)
		}
	}
	return nil
}

func (d *Dialogue) validateNextMessage(msg *Message) error {
	if d.ended {
		return ErrDialogueEnded
	}
	if len(d.messages) == 0 {
		return d.validateInitialMessage(msg)
	}
	return d.validateNonInitialMessage(msg)
}

func (d *Dialogue) validateInitialMessage(msg *Message) error {
	if msg.Reference.StarterRef != d.label.Reference.StarterRef {
		return fmt.Errorf("invalid starter reference: expected %q, found %q",
			d.label.Reference.StarterRef, msg.Reference.StarterRef)
	}
	if msg.MessageID != StartingMessageID {
		return fmt.Errorf("invalid message id: expected %d, found %d",
			StartingMessageID, msg.MessageID)
	}
	if msg.Target != StartingTarget {
		return fmt.Errorf("invalid target: expected %d, found %d",
			StartingTarget, msg.Target)
	}
	if !d.proto.isInitial(msg.Performative) {
		return fmt.Errorf("invalid initial performative %q", msg.Performative)
	}
	return nil
}

func (d *Dialogue) validateNonInitialMessage(msg *Message) error {
	if msg.Reference.StarterRef != d.label.Reference.StarterRef {
		return fmt.Errorf("invalid starter reference: expected %q, found %q",
			d.label.Reference.StarterRef, msg.Reference.StarterRef)
	}

	// Message ids are assigned monotonically within one dialogue.
	last := d.LastMessage()
	if expected := last.MessageID + 1; msg.MessageID != expected {
		return fmt.Errorf("invalid message id: expected %d, found %d", expected, msg.MessageID)
	}

	// The target must name an existing prior message.
	if msg.Target < StartingMessageID || msg.Target >= msg.MessageID {
		return fmt.Errorf("invalid target %d for message id %d", msg.Target, msg.MessageID)
	}
	if d.messageByID(msg.Target) == nil {
		return fmt.Errorf("invalid target %d: no such message in dialogue", msg.Target)
	}

	if !d.proto.isValidReply(last.Performative, msg.Performative) {
		return fmt.Errorf("invalid performative: %q is not a valid reply to %q",
			msg.Performative, last.Performative)
	}
	return nil
}

func (d *Dialogue) messageByID(id int) *Message {
	for _, m := range d.messages {
		if m.MessageID == id {
			return m
		}
	}
	return nil
}

// updateLabel re-keys the dialogue once the responder reference of its
// label has been assigned.
func (d *Dialogue) updateLabel(complete Label) error {
	if complete.Reference.ResponderRef == UnassignedReference {
		return errors.New("dialogue label can only be completed with an assigned responder reference")
	}
	d.label = complete
	return nil
}

// String returns a short description for logging.
func (d *Dialogue) String() string {
	return fmt.Sprintf("Dialogue{%s, role:%s, %d messages, ended:%v}",
		d.label, d.role, len(d.messages), d.ended)
}
