package filter

import (
	"testing"

	"github.com/sshcore/transport/internal/msgtype"
	"github.com/sshcore/transport/internal/phase"
)

func TestTransportGenericAlwaysAllowed(t *testing.T) {
	generic := []msgtype.Type{msgtype.Disconnect, msgtype.Ignore, msgtype.Unimplemented, msgtype.Debug}
	zero := PhaseSet{}
	for _, m := range generic {
		for _, role := range []phase.Role{phase.RoleClient, phase.RoleServer} {
			if got := Classify(zero, role, m); got != Allowed {
				t.Errorf("Classify(%v, %v) = %v, want ALLOWED", m, role, got)
			}
		}
	}
}

func TestUnlistedTypeIsUnknown(t *testing.T) {
	if got := Classify(PhaseSet{}, phase.RoleServer, msgtype.Type(200)); got != Unknown {
		t.Errorf("Classify(unlisted) = %v, want UNKNOWN", got)
	}
}

func TestServiceRequestRequiresServerRole(t *testing.T) {
	ps := PhaseSet{Session: phase.PhaseAuthenticating, Kex: phase.KexFinished}
	if got := Classify(ps, phase.RoleServer, msgtype.ServiceRequest); got != Allowed {
		t.Errorf("server ServiceRequest = %v, want ALLOWED", got)
	}
	if got := Classify(ps, phase.RoleClient, msgtype.ServiceRequest); got != Denied {
		t.Errorf("client ServiceRequest = %v, want DENIED (role-rejection)", got)
	}
}

func TestKexInitAllowedAtInitialAndReKex(t *testing.T) {
	cases := []PhaseSet{
		{Session: phase.PhaseInitialKex, Kex: phase.KexInit},
		{Session: phase.PhaseAuthenticated, Kex: phase.KexFinished},
	}
	for _, ps := range cases {
		if got := Classify(ps, phase.RoleServer, msgtype.KexInit); got != Allowed {
			t.Errorf("KexInit at %+v = %v, want ALLOWED", ps, got)
		}
	}
}

func TestKexInitDeniedDuringDH(t *testing.T) {
	ps := PhaseSet{Session: phase.PhaseDH, Kex: phase.KexInitSent}
	if got := Classify(ps, phase.RoleServer, msgtype.KexInit); got != Denied {
		t.Errorf("KexInit during DH = %v, want DENIED", got)
	}
}

func TestGroupExchangeTypesRestrictedToDHPhase(t *testing.T) {
	// Open-question resolution: 32/33/34 follow the same phase discipline
	// as their fixed-group counterparts, not always-ALLOWED.
	outsideDH := PhaseSet{Session: phase.PhaseAuthenticated, Kex: phase.KexFinished}
	for _, m := range []msgtype.Type{msgtype.KexDHGexRequest, msgtype.KexDHGexInit, msgtype.KexDHGexReply} {
		if got := Classify(outsideDH, phase.RoleServer, m); got == Allowed {
			t.Errorf("%v outside DH phase = %v, want DENIED", m, got)
		}
	}

	req := PhaseSet{Session: phase.PhaseDH, Kex: phase.KexInit}
	if got := Classify(req, phase.RoleServer, msgtype.KexDHGexRequest); got != Allowed {
		t.Errorf("KexDHGexRequest at DH/Init = %v, want ALLOWED", got)
	}

	initP := PhaseSet{Session: phase.PhaseDH, Kex: phase.KexInitSent}
	if got := Classify(initP, phase.RoleServer, msgtype.KexDHGexInit); got != Allowed {
		t.Errorf("KexDHGexInit at DH/InitSent = %v, want ALLOWED", got)
	}
	if got := Classify(initP, phase.RoleClient, msgtype.KexDHGexReply); got != Allowed {
		t.Errorf("KexDHGexReply at DH/InitSent = %v, want ALLOWED", got)
	}
}

func TestUserauthContinuationSharedBytes(t *testing.T) {
	ps := PhaseSet{Auth: phase.AuthPubkeyOfferSent}
	if got := Classify(ps, phase.RoleClient, msgtype.UserauthPKOK); got != Allowed {
		t.Errorf("UserauthPKOK during pubkey offer = %v, want ALLOWED", got)
	}
	if got := Classify(ps, phase.RoleServer, msgtype.UserauthPKOK); got != Denied {
		t.Errorf("server consuming UserauthPKOK = %v, want DENIED", got)
	}

	info := PhaseSet{Auth: phase.AuthInfo}
	if got := Classify(info, phase.RoleServer, msgtype.UserauthInfoResponse); got != Allowed {
		t.Errorf("UserauthInfoResponse during AuthInfo = %v, want ALLOWED", got)
	}
}

func TestChannelTypesRequireAuthenticated(t *testing.T) {
	notYet := PhaseSet{Session: phase.PhaseAuthenticating}
	if got := Classify(notYet, phase.RoleServer, msgtype.ChannelOpen); got != Denied {
		t.Errorf("ChannelOpen before auth = %v, want DENIED", got)
	}
	authed := PhaseSet{Session: phase.PhaseAuthenticated}
	if got := Classify(authed, phase.RoleServer, msgtype.ChannelOpen); got != Allowed {
		t.Errorf("ChannelOpen after auth = %v, want ALLOWED", got)
	}
}

func TestGlobalRequestReplyRequiresPending(t *testing.T) {
	ps := PhaseSet{Session: phase.PhaseAuthenticated, GlobalReq: phase.GlobalReqNone}
	if got := Classify(ps, phase.RoleServer, msgtype.RequestSuccess); got != Denied {
		t.Errorf("RequestSuccess with no pending request = %v, want DENIED", got)
	}
	ps.GlobalReq = phase.GlobalReqPending
	if got := Classify(ps, phase.RoleServer, msgtype.RequestSuccess); got != Allowed {
		t.Errorf("RequestSuccess with pending request = %v, want ALLOWED", got)
	}
}
