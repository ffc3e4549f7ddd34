package transport

import "github.com/sshcore/transport/internal/phase"

// The session/kex/auth/global-request/auth-service phase enums live in
// internal/phase so both this package and internal/filter can depend on
// them without depending on each other. Aliased here so callers of this
// package spell them transport.SessionPhase etc.
type (
	SessionPhase     = phase.SessionPhase
	KexPhase         = phase.KexPhase
	AuthPhase        = phase.AuthPhase
	GlobalReqPhase   = phase.GlobalReqPhase
	AuthServicePhase = phase.AuthServicePhase
	Role             = phase.Role
)

const (
	PhaseInitialKex     = phase.PhaseInitialKex
	PhaseDH             = phase.PhaseDH
	PhaseAuthenticating = phase.PhaseAuthenticating
	PhaseAuthenticated  = phase.PhaseAuthenticated
	PhaseError          = phase.PhaseError

	KexInit        = phase.KexInit
	KexInitSent    = phase.KexInitSent
	KexNewKeysSent = phase.KexNewKeysSent
	KexFinished    = phase.KexFinished

	AuthNoneSent          = phase.AuthNoneSent
	AuthPubkeyOfferSent   = phase.AuthPubkeyOfferSent
	AuthPubkeyAuthSent    = phase.AuthPubkeyAuthSent
	AuthPasswordAuthSent  = phase.AuthPasswordAuthSent
	AuthKbdintSent        = phase.AuthKbdintSent
	AuthInfo              = phase.AuthInfo
	AuthGSSAPIRequestSent = phase.AuthGSSAPIRequestSent
	AuthGSSAPIToken       = phase.AuthGSSAPIToken
	AuthGSSAPIMicSent     = phase.AuthGSSAPIMicSent
	AuthSuccess           = phase.AuthSuccess
	AuthPartial           = phase.AuthPartial
	AuthFailed            = phase.AuthFailed
	AuthError             = phase.AuthError

	GlobalReqNone     = phase.GlobalReqNone
	GlobalReqPending  = phase.GlobalReqPending
	GlobalReqAccepted = phase.GlobalReqAccepted
	GlobalReqDenied   = phase.GlobalReqDenied

	AuthServiceNone     = phase.AuthServiceNone
	AuthServiceSent     = phase.AuthServiceSent
	AuthServiceAccepted = phase.AuthServiceAccepted

	RoleClient = phase.RoleClient
	RoleServer = phase.RoleServer
)
