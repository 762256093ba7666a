package dialogue

import (
	"fmt"

	"github.com/agentwire-dev/agentwire/envelope"
)

// FieldType names the wire type expected for a declared content field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFloat
	FieldBool
	FieldBytes
)

// Protocol is the specification surface one concrete protocol supplies:
// the conversation grammar, the role/end-state sets and the per-
// performative content schema.
type Protocol struct {
	// ID identifies the protocol on the wire.
	ID envelope.ProtocolID

	// InitialPerformatives may start a dialogue.
	InitialPerformatives []Performative

	// TerminalPerformatives end a dialogue.
	TerminalPerformatives []Performative

	// ValidReplies maps a performative to the performatives that may
	// legally follow it.
	ValidReplies map[Performative][]Performative

	// EndStates maps each terminal performative to the outcome it
	// produces.
	EndStates map[Performative]EndState

	// Roles are the closed set of roles this protocol defines.
	Roles []Role

	// RoleFromFirstMessage assigns the local role when a dialogue is
	// created, given the first message and the local address.
	RoleFromFirstMessage func(msg *Message, selfAddress string) Role

	// ContentSchema declares, per performative, the exact content fields
	// and their types. A performative absent from the map accepts no
	// content fields.
	ContentSchema map[Performative]map[string]FieldType
}

// Validate checks the protocol specification is internally usable.
func (p *Protocol) Validate() error {
	if len(p.InitialPerformatives) == 0 {
		return fmt.Errorf("protocol %s: no initial performatives", p.ID)
	}
	if p.RoleFromFirstMessage == nil {
		return fmt.Errorf("protocol %s: RoleFromFirstMessage is required", p.ID)
	}
	for _, term := range p.TerminalPerformatives {
		if _, ok := p.EndStates[term]; !ok {
			return fmt.Errorf("protocol %s: terminal performative %s has no end state", p.ID, term)
		}
		if len(p.ValidReplies[term]) != 0 {
			return fmt.Errorf("protocol %s: terminal performative %s allows replies", p.ID, term)
		}
	}
	return nil
}

func (p *Protocol) isInitial(perf Performative) bool {
	for _, ip := range p.InitialPerformatives {
		if ip == perf {
			return true
		}
	}
	return false
}

func (p *Protocol) isTerminal(perf Performative) bool {
	for _, tp := range p.TerminalPerformatives {
		if tp == perf {
			return true
		}
	}
	return false
}

func (p *Protocol) isValidReply(prev, next Performative) bool {
	for _, r := range p.ValidReplies[prev] {
		if r == next {
			return true
		}
	}
	return false
}

// isConsistent type-checks every declared content field of msg against the
// protocol's schema and cross-checks the field count the performative
// requires. It fails closed: any mismatch yields false, never a panic.
// Callers treat an inconsistent message as protocol-invalid input to drop,
// not as an error to propagate.
func (p *Protocol) isConsistent(msg *Message) bool {
	schema := p.ContentSchema[msg.Performative]
	if len(msg.Content) != len(schema) {
		return false
	}
	for name, ft := range schema {
		value, ok := msg.Content[name]
		if !ok {
			return false
		}
		if !matchesFieldType(value, ft) {
			return false
		}
	}
	return true
}

func matchesFieldType(value any, ft FieldType) bool {
	switch ft {
	case FieldString:
		_, ok := value.(string)
		return ok
	case FieldInt:
		switch value.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case FieldFloat:
		switch value.(type) {
		case float32, float64:
			return true
		}
		return false
	case FieldBool:
		_, ok := value.(bool)
		return ok
	case FieldBytes:
		_, ok := value.([]byte)
		return ok
	default:
		return false
	}
}
