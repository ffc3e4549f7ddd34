// Package filter implements the Incoming Filter: a table-driven gate
// that, given the current session phases and an
// incoming packet's message type, classifies it as Allowed, Denied, or
// Unknown.
//
// The table is exhaustive for the message types it lists; any type absent
// from the table is Unknown (triggers an UNIMPLEMENTED reply, but does not
// abort the session). Role-rejection — messages whose semantics are
// server-only or client-only — is folded into the same per-type rule
// rather than treated as a separate pass, since it's exactly the same
// "deterministic classification for this (phases, type) tuple" the rest of
// the table provides.
package filter

import (
	"github.com/sshcore/transport/internal/msgtype"
	"github.com/sshcore/transport/internal/phase"
)

// Classification is the Incoming Filter's verdict for one packet.
type Classification uint8

const (
	// Allowed means the packet is valid for the current phases and may be
	// handed to the Dispatcher.
	Allowed Classification = iota
	// Denied means the packet violates the protocol ordering for the
	// current phases; the reassembler must mark the session ERROR and
	// abort.
	Denied
	// Unknown means the type is outside the filtered set; the reassembler
	// replies UNIMPLEMENTED and the session continues normally.
	Unknown
)

func (c Classification) String() string {
	switch c {
	case Allowed:
		return "ALLOWED"
	case Denied:
		return "DENIED"
	case Unknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN_CLASSIFICATION"
	}
}

// PhaseSet is the full phase tuple the filter consults, mirroring spec
// Section 3's closed phase enumerations.
type PhaseSet struct {
	Session     phase.SessionPhase
	Kex         phase.KexPhase
	Auth        phase.AuthPhase
	GlobalReq   phase.GlobalReqPhase
	AuthService phase.AuthServicePhase
}

// rule reports whether msgType is ALLOWED for the given phases and role.
// A rule is only ever consulted for types present in the table, so a false
// return always means DENIED, never UNKNOWN.
type rule func(PhaseSet, phase.Role) bool

// Classify returns the filter's verdict for msgType under ps and role.
func Classify(ps PhaseSet, role phase.Role, msgType msgtype.Type) Classification {
	r, ok := table[msgType]
	if !ok {
		return Unknown
	}
	if r(ps, role) {
		return Allowed
	}
	return Denied
}
