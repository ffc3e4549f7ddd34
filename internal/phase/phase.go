package phase

// -------------------------------------------------------------------------
// Session, Key Exchange, Authentication, Global-Request, and Authentication
// Service phases.
//
// Each is a small closed enum: a typed uint8, an unexported name table,
// and a String method that returns "UNKNOWN" for out-of-range values
// rather than panicking.
// -------------------------------------------------------------------------

const (
	unknownStr = "UNKNOWN"
	unknownFmt = "UNKNOWN(%d)"
)

// SessionPhase is the top-level session state. It advances monotonically
// through {INITIAL_KEX, DH, AUTHENTICATING, AUTHENTICATED, ERROR}, with one
// permitted backward revisit of (AUTHENTICATED -> DH -> AUTHENTICATED) for
// re-keying.
type SessionPhase uint8

const (
	PhaseInitialKex SessionPhase = iota
	PhaseDH
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseError
)

var sessionPhaseNames = [...]string{
	PhaseInitialKex:     "INITIAL_KEX",
	PhaseDH:             "DH",
	PhaseAuthenticating: "AUTHENTICATING",
	PhaseAuthenticated:  "AUTHENTICATED",
	PhaseError:          "ERROR",
}

func (p SessionPhase) String() string {
	if int(p) < len(sessionPhaseNames) {
		return sessionPhaseNames[p]
	}
	return unknownStr
}

// KexPhase is the key-exchange sub-state machine, entered at session start
// and re-entered on every re-key.
type KexPhase uint8

const (
	KexInit KexPhase = iota
	KexInitSent
	KexNewKeysSent
	KexFinished
)

var kexPhaseNames = [...]string{
	KexInit:        "INIT",
	KexInitSent:    "INIT_SENT",
	KexNewKeysSent: "NEWKEYS_SENT",
	KexFinished:    "FINISHED",
}

func (p KexPhase) String() string {
	if int(p) < len(kexPhaseNames) {
		return kexPhaseNames[p]
	}
	return unknownStr
}

// AuthPhase is the authentication sub-state machine.
type AuthPhase uint8

const (
	AuthNoneSent AuthPhase = iota
	AuthPubkeyOfferSent
	AuthPubkeyAuthSent
	AuthPasswordAuthSent
	AuthKbdintSent
	AuthInfo
	AuthGSSAPIRequestSent
	AuthGSSAPIToken
	AuthGSSAPIMicSent
	AuthSuccess
	AuthPartial
	AuthFailed
	AuthError
)

var authPhaseNames = [...]string{
	AuthNoneSent:          "NONE_SENT",
	AuthPubkeyOfferSent:   "PUBKEY_OFFER_SENT",
	AuthPubkeyAuthSent:    "PUBKEY_AUTH_SENT",
	AuthPasswordAuthSent:  "PASSWORD_AUTH_SENT",
	AuthKbdintSent:        "KBDINT_SENT",
	AuthInfo:              "INFO",
	AuthGSSAPIRequestSent: "GSSAPI_REQUEST_SENT",
	AuthGSSAPIToken:       "GSSAPI_TOKEN",
	AuthGSSAPIMicSent:     "GSSAPI_MIC_SENT",
	AuthSuccess:           "SUCCESS",
	AuthPartial:           "PARTIAL",
	AuthFailed:            "FAILED",
	AuthError:             "ERROR",
}

func (p AuthPhase) String() string {
	if int(p) < len(authPhaseNames) {
		return authPhaseNames[p]
	}
	return unknownStr
}

// GlobalReqPhase tracks a single outstanding global request at a time, the
// narrow slice of RFC 4254 Section 4 this core cares about for filtering
// GLOBAL_REQUEST/REQUEST_SUCCESS/REQUEST_FAILURE.
type GlobalReqPhase uint8

const (
	GlobalReqNone GlobalReqPhase = iota
	GlobalReqPending
	GlobalReqAccepted
	GlobalReqDenied
)

var globalReqPhaseNames = [...]string{
	GlobalReqNone:     "NONE",
	GlobalReqPending:  "PENDING",
	GlobalReqAccepted: "ACCEPTED",
	GlobalReqDenied:   "DENIED",
}

func (p GlobalReqPhase) String() string {
	if int(p) < len(globalReqPhaseNames) {
		return globalReqPhaseNames[p]
	}
	return unknownStr
}

// AuthServicePhase tracks the "ssh-userauth" SERVICE_REQUEST/SERVICE_ACCEPT
// handshake that precedes authentication proper.
type AuthServicePhase uint8

const (
	AuthServiceNone AuthServicePhase = iota
	AuthServiceSent
	AuthServiceAccepted
)

var authServicePhaseNames = [...]string{
	AuthServiceNone:     "NONE",
	AuthServiceSent:     "SENT",
	AuthServiceAccepted: "ACCEPTED",
}

func (p AuthServicePhase) String() string {
	if int(p) < len(authServicePhaseNames) {
		return authServicePhaseNames[p]
	}
	return unknownStr
}

// Role identifies which side of the connection a Session plays, since
// several message types are restricted to one role — role-rejection is a
// subset of the Incoming Filter's job.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}
