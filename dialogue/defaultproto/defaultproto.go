// Package defaultproto supplies a small request/reply protocol used by the
// examples and the end-to-end tests: a REQUEST opens a dialogue, a
// RESPONSE or ERROR answers it, and END closes it.
package defaultproto

import (
	"github.com/agentwire-dev/agentwire/dialogue"
	"github.com/agentwire-dev/agentwire/envelope"
)

// Performatives.
const (
	Request  dialogue.Performative = "request"
	Response dialogue.Performative = "response"
	Error    dialogue.Performative = "error"
	End      dialogue.Performative = "end"
)

// Roles.
const (
	Client dialogue.Role = "client"
	Server dialogue.Role = "server"
)

// End states.
const (
	Successful dialogue.EndState = "successful"
	Failed     dialogue.EndState = "failed"
)

// ID is the protocol identifier of the default protocol.
var ID = envelope.ProtocolID{Author: "agentwire", Name: "default", Version: "1.0.0"}

// New returns the default protocol specification. The party that receives
// the first message always plays the server role.
func New() *dialogue.Protocol {
	return &dialogue.Protocol{
		ID:                   ID,
		InitialPerformatives: []dialogue.Performative{Request},
		TerminalPerformatives: []dialogue.Performative{
			Error,
			End,
		},
		ValidReplies: map[dialogue.Performative][]dialogue.Performative{
			Request:  {Response, Error},
			Response: {Request, End, Error},
			Error:    {},
			End:      {},
		},
		EndStates: map[dialogue.Performative]dialogue.EndState{
			End:   Successful,
			Error: Failed,
		},
		Roles: []dialogue.Role{Client, Server},
		RoleFromFirstMessage: func(msg *dialogue.Message, selfAddress string) dialogue.Role {
			if msg.Sender == selfAddress {
				return Client
			}
			return Server
		},
		ContentSchema: map[dialogue.Performative]map[string]dialogue.FieldType{
			Request:  {"body": dialogue.FieldBytes},
			Response: {"body": dialogue.FieldBytes},
			Error: {
				"code": dialogue.FieldInt,
				"msg":  dialogue.FieldString,
			},
		},
	}
}
