// Package dialogue tracks long-running request/reply exchanges between two
// agents under a protocol's conversation grammar. A Dialogue is the state
// machine for one conversation; Dialogues is the addressable registry that
// creates dialogues from first messages and routes every later message to
// its conversation.
package dialogue

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Performative is the speech-act tag of a message within a protocol.
type Performative string

// Role names the part the local agent plays in a dialogue.
type Role string

// EndState is a terminal, named outcome of a dialogue.
type EndState string

const (
	// StartingMessageID is the id of the first message in a dialogue.
	StartingMessageID = 1
	// StartingTarget is the target of the first message in a dialogue.
	StartingTarget = 0

	// UnassignedReference marks the half of a dialogue reference its owner
	// has not generated yet.
	UnassignedReference = ""

	nonceBytes = 16
)

// Reference is the two-sided conversation reference: one opaque string
// assigned by the dialogue starter, one by the responder. The responder
// half stays unassigned until the responder's first reply.
type Reference struct {
	StarterRef   string `json:"starter_ref"`
	ResponderRef string `json:"responder_ref"`
}

// Complete reports whether both halves of the reference are assigned.
func (r Reference) Complete() bool {
	return r.StarterRef != UnassignedReference && r.ResponderRef != UnassignedReference
}

// Label identifies one conversation: the reference pair plus the two
// addresses involved.
type Label struct {
	Reference       Reference `json:"reference"`
	OpponentAddress string    `json:"opponent_address"`
	StarterAddress  string    `json:"starter_address"`
}

// String renders the label as the storage key
// <starter_ref>_<responder_ref>_<opponent>_<starter>.
func (l Label) String() string {
	return fmt.Sprintf("%s_%s_%s_%s",
		l.Reference.StarterRef, l.Reference.ResponderRef, l.OpponentAddress, l.StarterAddress)
}

// IncompleteVersion returns the label as it looked before the responder
// assigned its half of the reference.
func (l Label) IncompleteVersion() Label {
	incomplete := l
	incomplete.Reference.ResponderRef = UnassignedReference
	return incomplete
}

// Message is one protocol message inside a dialogue.
type Message struct {
	Reference    Reference      `json:"reference"`
	MessageID    int            `json:"message_id"`
	Target       int            `json:"target"`
	Performative Performative   `json:"performative"`
	Sender       string         `json:"sender"`
	To           string         `json:"to"`
	Content      map[string]any `json:"content,omitempty"`
}

// newNonce generates one side's half of a dialogue reference.
func newNonce() string {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; there is no sensible recovery.
		panic(fmt.Sprintf("dialogue: entropy source unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
