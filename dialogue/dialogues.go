package dialogue

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/agentwire-dev/agentwire/pkg/observability"
)

// Dialogues owns the mapping from dialogue labels to live dialogues for
// one local address under one protocol. It creates dialogues from first
// messages and routes every later message to its conversation.
//
// Update deliberately reports unattributable messages by returning nil
// rather than an error: callers branch on the result as routine control
// flow and drop the message.
type Dialogues struct {
	mu           sync.Mutex
	selfAddress  string
	proto        *Protocol
	store        Store
	keepTerminal bool
}

// Option configures a Dialogues collection.
type Option func(*Dialogues)

// WithStore replaces the default in-memory store.
func WithStore(store Store) Option {
	return func(d *Dialogues) { d.store = store }
}

// WithKeepTerminal retains dialogues after they reach an end state instead
// of evicting them.
func WithKeepTerminal() Option {
	return func(d *Dialogues) { d.keepTerminal = true }
}

// NewDialogues creates a collection for selfAddress under proto.
func NewDialogues(selfAddress string, proto *Protocol, opts ...Option) (*Dialogues, error) {
	if selfAddress == "" {
		return nil, errors.New("dialogues: self address must be non-empty")
	}
	if err := proto.Validate(); err != nil {
		return nil, err
	}

	ds := &Dialogues{
		selfAddress: selfAddress,
		proto:       proto,
		store:       NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(ds)
	}
	return ds, nil
}

// SelfAddress returns the local address the collection serves.
func (ds *Dialogues) SelfAddress() string { return ds.selfAddress }

// Protocol returns the protocol specification in force.
func (ds *Dialogues) Protocol() *Protocol { return ds.proto }

// Create starts a new self-initiated dialogue with counterparty, building
// its first message (message id 1, target 0) under a freshly generated
// starter reference.
func (ds *Dialogues) Create(counterparty string, performative Performative, content map[string]any) (*Message, *Dialogue, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	msg := &Message{
		Reference:    Reference{StarterRef: newNonce(), ResponderRef: UnassignedReference},
		MessageID:    StartingMessageID,
		Target:       StartingTarget,
		Performative: performative,
		Sender:       ds.selfAddress,
		To:           counterparty,
		Content:      content,
	}
	if !ds.proto.isConsistent(msg) {
		return nil, nil, fmt.Errorf("dialogues: inconsistent content for performative %q", performative)
	}

	label := Label{
		Reference:       msg.Reference,
		OpponentAddress: counterparty,
		StarterAddress:  ds.selfAddress,
	}
	d := newDialogue(label, ds.selfAddress, ds.proto.RoleFromFirstMessage(msg, ds.selfAddress), ds.proto)
	if err := d.update(msg); err != nil {
		return nil, nil, err
	}
	if err := ds.store.Add(d); err != nil {
		return nil, nil, err
	}

	observability.DialoguesCreated.WithLabelValues(ds.proto.ID.String()).Inc()
	return msg, d, nil
}

// Reply builds and records the next outgoing message of an existing
// dialogue, then persists the updated state.
func (ds *Dialogues) Reply(d *Dialogue, performative Performative, content map[string]any) (*Message, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	msg, err := d.Reply(performative, content)
	if err != nil {
		return nil, err
	}
	ds.finishUpdate(d)
	return msg, nil
}

// Update routes an inbound message to its dialogue, creating one when the
// message is a recognized first message. It returns nil when the message
// cannot be attributed to any dialogue: illegal first performative,
// unknown or ambiguous label, inconsistent content, or an illegal
// transition. Callers must treat nil as "drop the message".
func (ds *Dialogues) Update(msg *Message) *Dialogue {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if msg.Sender == ds.selfAddress || msg.To != ds.selfAddress {
		log.Printf("ERROR: dialogues update called with a message not addressed to %s", ds.selfAddress)
		return nil
	}
	if !ds.proto.isConsistent(msg) {
		observability.MessagesRejected.WithLabelValues(ds.proto.ID.String()).Inc()
		return nil
	}

	ref := msg.Reference
	starterSet := ref.StarterRef != UnassignedReference
	responderSet := ref.ResponderRef != UnassignedReference

	var d *Dialogue
	created := false
	switch {
	case !starterSet:
		// A responder reference without a starter reference can never be
		// attributed.
		d = nil

	case starterSet && !responderSet && msg.MessageID == StartingMessageID:
		d = ds.createOpponentInitiated(msg)
		created = d != nil

	case starterSet && !responderSet:
		// More messages can legally arrive under an incomplete reference
		// before the responder's half propagates.
		d = ds.findDialogue(msg)

	default:
		if err := ds.completeReference(msg); err != nil {
			log.Printf("ERROR: complete dialogue reference: %v", err)
			return nil
		}
		d = ds.findDialogue(msg)
	}

	if d == nil {
		observability.MessagesRejected.WithLabelValues(ds.proto.ID.String()).Inc()
		return nil
	}

	if err := d.update(msg); err != nil {
		log.Printf("ERROR: dialogue %s rejected message: %v", d.Label(), err)
		observability.MessagesRejected.WithLabelValues(ds.proto.ID.String()).Inc()
		if created {
			// An invalid initial message must not leave a half-built
			// dialogue behind.
			_ = ds.store.Remove(d.Label())
		}
		return nil
	}
	ds.finishUpdate(d)
	return d
}

// GetDialogue returns the live dialogue a message belongs to, or nil.
func (ds *Dialogues) GetDialogue(msg *Message) *Dialogue {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.findDialogue(msg)
}

// GetDialogueFromLabel returns the dialogue stored under label, or nil.
func (ds *Dialogues) GetDialogueFromLabel(label Label) *Dialogue {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	d, err := ds.store.Get(ds.store.LatestLabel(label))
	if err != nil {
		return nil
	}
	return d
}

// createOpponentInitiated builds a dialogue for an inbound first message.
// The local side assigns its (responder) half of the reference here; the
// dialogue is stored under the completed label with the incomplete label
// recorded as superseded.
func (ds *Dialogues) createOpponentInitiated(msg *Message) *Dialogue {
	if !ds.proto.isInitial(msg.Performative) {
		return nil
	}

	incomplete := Label{
		Reference:       msg.Reference,
		OpponentAddress: msg.Sender,
		StarterAddress:  msg.Sender,
	}
	complete := incomplete
	complete.Reference.ResponderRef = newNonce()

	// A second first-message under the same reference is an ambiguous
	// collision; reject it.
	if _, err := ds.store.Get(ds.store.LatestLabel(incomplete)); err == nil {
		return nil
	}

	d := newDialogue(complete, ds.selfAddress, ds.proto.RoleFromFirstMessage(msg, ds.selfAddress), ds.proto)
	if err := ds.store.Add(d); err != nil {
		return nil
	}
	if err := ds.store.SetIncomplete(incomplete, complete); err != nil {
		_ = ds.store.Remove(complete)
		return nil
	}

	observability.DialoguesCreated.WithLabelValues(ds.proto.ID.String()).Inc()
	return d
}

// completeReference re-keys a self-initiated dialogue once the
// counterparty's half of the reference arrives.
func (ds *Dialogues) completeReference(msg *Message) error {
	if !msg.Reference.Complete() {
		return errors.New("only complete dialogue references allowed")
	}

	incomplete := Label{
		Reference:       Reference{StarterRef: msg.Reference.StarterRef, ResponderRef: UnassignedReference},
		OpponentAddress: msg.Sender,
		StarterAddress:  ds.selfAddress,
	}
	if ds.store.LatestLabel(incomplete) != incomplete {
		// Already re-keyed.
		return nil
	}
	d, err := ds.store.Get(incomplete)
	if err != nil {
		// Nothing to complete; the lookup below decides attribution.
		return nil
	}

	complete := incomplete
	complete.Reference = msg.Reference
	if err := ds.store.Remove(incomplete); err != nil {
		return err
	}
	if err := d.updateLabel(complete); err != nil {
		return err
	}
	if err := ds.store.Add(d); err != nil {
		return err
	}
	return ds.store.SetIncomplete(incomplete, complete)
}

// findDialogue resolves a message to its dialogue by trying both possible
// orientations of the label.
func (ds *Dialogues) findDialogue(msg *Message) *Dialogue {
	counterparty := msg.Sender
	if msg.Sender == ds.selfAddress {
		counterparty = msg.To
	}

	selfInitiated := Label{
		Reference:       msg.Reference,
		OpponentAddress: counterparty,
		StarterAddress:  ds.selfAddress,
	}
	otherInitiated := Label{
		Reference:       msg.Reference,
		OpponentAddress: counterparty,
		StarterAddress:  counterparty,
	}

	if d, err := ds.store.Get(ds.store.LatestLabel(selfInitiated)); err == nil {
		return d
	}
	if d, err := ds.store.Get(ds.store.LatestLabel(otherInitiated)); err == nil {
		return d
	}
	return nil
}

// finishUpdate persists the dialogue and applies the terminal-state
// retention policy.
func (ds *Dialogues) finishUpdate(d *Dialogue) {
	if err := ds.store.Save(d); err != nil {
		log.Printf("ERROR: persist dialogue %s: %v", d.Label(), err)
	}
	if !d.Ended() {
		return
	}

	endState, _ := d.EndState()
	observability.DialoguesCompleted.WithLabelValues(ds.proto.ID.String(), string(endState)).Inc()
	if !ds.keepTerminal {
		if err := ds.store.Remove(d.Label()); err != nil {
			log.Printf("ERROR: evict terminal dialogue %s: %v", d.Label(), err)
		}
	}
}
