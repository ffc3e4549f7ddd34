package filter

import (
	"github.com/sshcore/transport/internal/msgtype"
	"github.com/sshcore/transport/internal/phase"
)

// table is the exhaustive (phases, role) -> rule map for every message type
// the Incoming Filter governs. It is keyed by message type rather than a
// flat (phases, type) tuple, since the richer phase tuple would make that
// key impractically large — a per-type predicate closure plays the
// "declare it once, look it up" role a state+event map would elsewhere.
//
// Types 1-4 (DISCONNECT, IGNORE, UNIMPLEMENTED, DEBUG) are transport-
// generic and always ALLOWED regardless of phase.
//
// Types 32-34 (KEXDH_GEX_INIT/REPLY/REQUEST) are the group-exchange
// counterparts of KEXDH_INIT/REPLY (30/31); bytes 30 and 31 are themselves
// shared with group-exchange messages depending on the negotiated key
// exchange method (msgtype documents the aliasing). This table takes the
// conservative branch: rather than leaving these always ALLOWED, they
// are restricted to the DH phase and the sub-state a group-exchange
// packet would actually arrive in, same as their fixed-group
// counterparts.
var table = map[msgtype.Type]rule{
	msgtype.Disconnect:    alwaysAllowed,
	msgtype.Ignore:        alwaysAllowed,
	msgtype.Unimplemented: alwaysAllowed,
	msgtype.Debug:         alwaysAllowed,

	msgtype.ServiceRequest: func(ps PhaseSet, role phase.Role) bool {
		if role != phase.RoleServer {
			return false
		}
		return inPhase(ps.Session, phase.PhaseAuthenticating, phase.PhaseAuthenticated) &&
			ps.Kex == phase.KexFinished
	},
	msgtype.ServiceAccept: func(ps PhaseSet, role phase.Role) bool {
		if role != phase.RoleClient {
			return false
		}
		return inPhase(ps.Session, phase.PhaseAuthenticating, phase.PhaseAuthenticated) &&
			ps.Kex == phase.KexFinished && ps.AuthService == phase.AuthServiceSent
	},
	msgtype.ExtInfo: func(ps PhaseSet, _ phase.Role) bool {
		return ps.Session == phase.PhaseAuthenticating && ps.Kex == phase.KexFinished
	},

	msgtype.KexInit: func(ps PhaseSet, _ phase.Role) bool {
		return inPhase(ps.Session, phase.PhaseInitialKex, phase.PhaseAuthenticated) &&
			inKex(ps.Kex, phase.KexInit, phase.KexFinished)
	},
	msgtype.NewKeys: func(ps PhaseSet, _ phase.Role) bool {
		return ps.Session == phase.PhaseDH && ps.Kex == phase.KexNewKeysSent
	},

	// KEXDH_INIT (30) and its group-exchange analogue KEXDH_GEX_REQUEST
	// (34, which logically precedes 30/31 in the group-exchange flow but
	// shares the same gating requirement: only the server consumes it, only
	// at the start of the DH phase).
	msgtype.KexDHInit: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleServer && ps.Session == phase.PhaseDH && ps.Kex == phase.KexInit
	},
	msgtype.KexDHGexRequest: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleServer && ps.Session == phase.PhaseDH && ps.Kex == phase.KexInit
	},

	// KEXDH_REPLY (31) and KEXDH_GEX_INIT (32): the client consumes 31
	// (server's reply) once its own INIT is outstanding; the server
	// consumes 32 (client's group-exchange init) in exactly the same
	// sub-state, one step further into the same exchange.
	msgtype.KexDHReply: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleClient && ps.Session == phase.PhaseDH && ps.Kex == phase.KexInitSent
	},
	msgtype.KexDHGexInit: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleServer && ps.Session == phase.PhaseDH && ps.Kex == phase.KexInitSent
	},
	// KEXDH_GEX_REPLY (33): the client consumes the server's group-exchange
	// reply, same sub-state as plain KEXDH_REPLY.
	msgtype.KexDHGexReply: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleClient && ps.Session == phase.PhaseDH && ps.Kex == phase.KexInitSent
	},

	msgtype.UserauthRequest: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleServer && ps.Session == phase.PhaseAuthenticating && ps.Kex == phase.KexFinished
	},
	msgtype.UserauthFailure: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleClient && ps.Session == phase.PhaseAuthenticating
	},
	msgtype.UserauthSuccess: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleClient && ps.Session == phase.PhaseAuthenticating
	},
	msgtype.UserauthBanner: func(ps PhaseSet, role phase.Role) bool {
		return role == phase.RoleClient && ps.Session == phase.PhaseAuthenticating
	},
	// UserauthPKOK shares byte 60 with UserauthInfoRequest and
	// UserauthGSSAPIResponse (msgtype documents the aliasing); all three
	// are client-consumed continuations of whichever method offer is
	// currently outstanding.
	msgtype.UserauthPKOK: func(ps PhaseSet, role phase.Role) bool {
		if role != phase.RoleClient {
			return false
		}
		return inAuth(ps.Auth, phase.AuthPubkeyOfferSent, phase.AuthKbdintSent, phase.AuthGSSAPIRequestSent)
	},
	// UserauthInfoResponse shares byte 61 with UserauthGSSAPIToken: both are
	// server-consumed continuations of an in-flight kbdint/GSSAPI exchange.
	msgtype.UserauthInfoResponse: func(ps PhaseSet, role phase.Role) bool {
		if role != phase.RoleServer {
			return false
		}
		return inAuth(ps.Auth, phase.AuthInfo, phase.AuthGSSAPIToken)
	},

	// GLOBAL_REQUEST and the CHANNEL_* types only require the session to
	// have completed authentication; any finer per-channel pending state is
	// owned by the channel layer, outside this transport's scope.
	// REQUEST_SUCCESS and REQUEST_FAILURE additionally require a global
	// request to be pending.
	msgtype.GlobalRequest: authenticatedOnly,
	msgtype.RequestSuccess: func(ps PhaseSet, _ phase.Role) bool {
		return ps.Session == phase.PhaseAuthenticated && ps.GlobalReq == phase.GlobalReqPending
	},
	msgtype.RequestFailure: func(ps PhaseSet, _ phase.Role) bool {
		return ps.Session == phase.PhaseAuthenticated && ps.GlobalReq == phase.GlobalReqPending
	},

	msgtype.ChannelOpen:             authenticatedOnly,
	msgtype.ChannelOpenConfirmation: authenticatedOnly,
	msgtype.ChannelOpenFailure:      authenticatedOnly,
	msgtype.ChannelWindowAdjust:     authenticatedOnly,
	msgtype.ChannelData:             authenticatedOnly,
	msgtype.ChannelExtendedData:     authenticatedOnly,
	msgtype.ChannelEOF:              authenticatedOnly,
	msgtype.ChannelClose:            authenticatedOnly,
	msgtype.ChannelRequest:          authenticatedOnly,
	msgtype.ChannelSuccess:          authenticatedOnly,
	msgtype.ChannelFailure:          authenticatedOnly,
}

func alwaysAllowed(PhaseSet, phase.Role) bool { return true }

func authenticatedOnly(ps PhaseSet, _ phase.Role) bool {
	return ps.Session == phase.PhaseAuthenticated
}

func inPhase(got phase.SessionPhase, want ...phase.SessionPhase) bool {
	for _, w := range want {
		if got == w {
			return true
		}
	}
	return false
}

func inKex(got phase.KexPhase, want ...phase.KexPhase) bool {
	for _, w := range want {
		if got == w {
			return true
		}
	}
	return false
}

func inAuth(got phase.AuthPhase, want ...phase.AuthPhase) bool {
	for _, w := range want {
		if got == w {
			return true
		}
	}
	return false
}
