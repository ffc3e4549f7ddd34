// Package transport implements the SSH Binary Packet Protocol transport
// layer: the Session that owns per-connection state, the Packet
// Reassembler that turns arriving bytes into dispatched packets, and the
// Outgoing Packetizer that turns staged payloads into wire bytes.
package transport

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/sshcore/transport/internal/compress"
	"github.com/sshcore/transport/internal/dispatch"
	"github.com/sshcore/transport/internal/filter"
	"github.com/sshcore/transport/internal/wire"
)

// flateDefaultLevel mirrors compress/flate.DefaultCompression without
// importing that package here solely for one constant.
const flateDefaultLevel = -1

// TrafficCounterSink receives byte/packet counts as they are sent or
// received, for hosts that want raw traffic accounting independent of the
// Prometheus-facing internal/metrics package.
type TrafficCounterSink interface {
	CountSent(packets, bytes uint64)
	CountReceived(packets, bytes uint64)
}

// CaptureSink receives a copy of every cleartext packet body (post-
// decryption inbound, pre-encryption outbound) for diagnostic capture.
type CaptureSink interface {
	CaptureInbound(seq uint32, msgType byte, payload []byte)
	CaptureOutbound(seq uint32, msgType byte, payload []byte)
}

// Session is the top-level, long-lived entity owning a connection's
// role, phases, current/next cipher suite, sequence numbers, reassembly
// state, staging buffers, dispatcher, and optional observability sinks.
//
// A Session has single-threaded cooperative scheduling: exactly one
// execution context calls into a Session's exported methods at a time.
// Atomics are used only for counters the host may read concurrently with
// that execution context (never for anything the session's own call path
// depends on for correctness).
type Session struct {
	role Role

	sessionPhase     SessionPhase
	kexPhase         KexPhase
	authPhase        AuthPhase
	globalReqPhase   GlobalReqPhase
	authServicePhase AuthServicePhase

	// current is the cipher suite in effect; nil before the first NEWKEYS
	// (session is plaintext). next is staged during a re-key and swapped
	// into current when NEWKEYS completes the exchange.
	current *wire.CipherSuite
	next    *wire.CipherSuite

	// extInfoSeen guards against a peer replaying EXT_INFO (RFC 8308
	// Section 2.2: sent at most once, immediately after the first NEWKEYS).
	extInfoSeen bool

	// strictKEX opts into the sequence-number reset of RFC 9579 strict key
	// exchange: CompleteRekey sets both sequence numbers to zero after
	// NEWKEYS. It does not change how packets are classified during the
	// initial key exchange; an unexpected message there is handled exactly
	// as in a non-strict session. Negotiated via the
	// "kex-strict-c-v00@openssh.com" / "kex-strict-s-v00@openssh.com"
	// pseudo-algorithms in KEXINIT; the host sets this once negotiation
	// confirms both ends offered it.
	strictKEX bool

	sendSeq atomic.Uint32
	recvSeq atomic.Uint32

	sentPackets atomic.Uint64
	sentBytes   atomic.Uint64
	recvPackets atomic.Uint64
	recvBytes   atomic.Uint64

	reassembly reassemblyState

	inbound  *Buffer
	outbound *Buffer

	dispatcher *dispatch.Dispatcher[*Session]

	// channels is a placeholder registry for the connection-protocol
	// layer (RFC 4254); this transport only guarantees it is mutated
	// exclusively by dispatched handlers, not that it has any particular
	// shape.
	channels []any

	counterSink TrafficCounterSink
	captureSink CaptureSink

	writer io.Writer

	// compressPipe lazily creates its Compressor/Decompressor on first
	// use and persists for the session's remaining life.
	compressPipe *compress.Pipe
	// maxInflate bounds inbound decompression output, guarding against
	// decompression bombs. Zero means use compress.DefaultMaxInflate.
	maxInflate int

	err    *TransportError
	logger *slog.Logger
}

// Option configures optional Session parameters at construction time
// using the functional-option pattern.
type Option func(*Session)

// WithTrafficCounterSink attaches a TrafficCounterSink. Nil is a no-op.
func WithTrafficCounterSink(sink TrafficCounterSink) Option {
	return func(s *Session) {
		if sink != nil {
			s.counterSink = sink
		}
	}
}

// WithCaptureSink attaches a CaptureSink. Nil is a no-op.
func WithCaptureSink(sink CaptureSink) Option {
	return func(s *Session) {
		if sink != nil {
			s.captureSink = sink
		}
	}
}

// WithStrictKEX enables RFC 9579 strict key exchange semantics. Callers
// set this only after KEXINIT negotiation has confirmed both peers
// offered the strict-kex pseudo-algorithm.
func WithStrictKEX() Option {
	return func(s *Session) { s.strictKEX = true }
}

// WithWriter sets the socket (or other io.Writer) the Packetizer writes
// completed wire packets to.
func WithWriter(w io.Writer) Option {
	return func(s *Session) {
		if w != nil {
			s.writer = w
		}
	}
}

// WithMaxInflate overrides the decompression-bomb bound used by inbound
// decompression. n <= 0 keeps compress.DefaultMaxInflate.
func WithMaxInflate(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxInflate = n
		}
	}
}

// WithCipherSuite installs cs as the session's active cipher suite at
// construction time, for a Session that begins life already past its
// first NEWKEYS (e.g. resuming from host-managed state, or in tests that
// exercise the Wire Codec without driving a full key exchange).
func WithCipherSuite(cs *wire.CipherSuite) Option {
	return func(s *Session) { s.current = cs }
}

// New creates a Session for the given role. The session starts in phase
// INITIAL_KEX/INIT with no cipher suite (plaintext).
func New(role Role, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		role:         role,
		sessionPhase: PhaseInitialKex,
		kexPhase:     KexInit,
		inbound:      NewBuffer(),
		outbound:     NewBuffer(),
		dispatcher:   dispatch.New[*Session](),
		logger:       logger.With(slog.String("component", "transport"), slog.String("role", role.String())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatcher returns the Session's Dispatcher so protocol sub-layers can
// register handler bundles.
func (s *Session) Dispatcher() *dispatch.Dispatcher[*Session] { return s.dispatcher }

// Role reports the session's role.
func (s *Session) Role() Role { return s.role }

// Phases returns the current phase tuple, suitable for passing straight
// into filter.Classify.
func (s *Session) Phases() filter.PhaseSet {
	return filter.PhaseSet{
		Session:     s.sessionPhase,
		Kex:         s.kexPhase,
		Auth:        s.authPhase,
		GlobalReq:   s.globalReqPhase,
		AuthService: s.authServicePhase,
	}
}

// InError reports whether the session has transitioned to the ERROR
// phase after a FATAL condition.
func (s *Session) InError() bool { return s.sessionPhase == PhaseError }

// Err returns the TransportError that drove the session into ERROR, or
// nil if the session has not failed.
func (s *Session) Err() *TransportError { return s.err }

// ErrExtInfoReplayed is returned by MarkExtInfoSeen when EXT_INFO arrives
// more than once in a session (RFC 8308 Section 2.2: sent at most once,
// immediately after the first NEWKEYS).
var ErrExtInfoReplayed = fmt.Errorf("EXT_INFO received more than once")

// MarkExtInfoSeen records receipt of an EXT_INFO packet, returning
// ErrExtInfoReplayed if one was already seen. The host's EXT_INFO handler
// (registered externally, since parsing extension contents is outside
// this transport's scope) calls this before acting on the packet.
func (s *Session) MarkExtInfoSeen() error {
	if s.extInfoSeen {
		return ErrExtInfoReplayed
	}
	s.extInfoSeen = true
	return nil
}

// SetAuthPhase advances the authentication sub-phase. Called by the
// external authentication-method layer as it drives RFC 4252 exchanges.
func (s *Session) SetAuthPhase(p AuthPhase) { s.authPhase = p }

// SetGlobalReqPhase advances the global-request phase. Called by the
// external connection-protocol layer.
func (s *Session) SetGlobalReqPhase(p GlobalReqPhase) { s.globalReqPhase = p }

// SetAuthServicePhase advances the ssh-userauth service negotiation
// phase (RFC 4253 Section 10).
func (s *Session) SetAuthServicePhase(p AuthServicePhase) { s.authServicePhase = p }

// SetKexPhase advances the key-exchange phase directly, for transitions
// BeginRekey/CompleteRekey don't cover — e.g. moving to INIT_SENT after
// the external kex layer sends its own KEXINIT, or to NEWKEYS_SENT after
// it sends NEWKEYS but before the peer's NEWKEYS completes the exchange.
func (s *Session) SetKexPhase(p KexPhase) { s.kexPhase = p }

// SendSeq reports the next sequence number the Packetizer will use.
func (s *Session) SendSeq() uint32 { return s.sendSeq.Load() }

// RecvSeq reports the sequence number of the next packet the Reassembler
// expects.
func (s *Session) RecvSeq() uint32 { return s.recvSeq.Load() }

// SentPackets, SentBytes, RecvPackets, RecvBytes report the session's raw
// traffic counters. The optional traffic-counter sink is a push interface
// for hosts that want live updates; these are the equivalent pull-based
// accessors always available on the Session.
func (s *Session) SentPackets() uint64 { return s.sentPackets.Load() }
func (s *Session) SentBytes() uint64   { return s.sentBytes.Load() }
func (s *Session) RecvPackets() uint64 { return s.recvPackets.Load() }
func (s *Session) RecvBytes() uint64   { return s.recvBytes.Load() }

// fail transitions the session to ERROR and records err. Idempotent: a
// session already in ERROR keeps its first recorded cause.
func (s *Session) fail(err *TransportError) {
	if s.sessionPhase == PhaseError {
		return
	}
	s.sessionPhase = PhaseError
	s.err = err
	s.logger.Error("session entering ERROR phase", slog.Any("cause", err))
}

// ensureCompressPipe lazily creates the Compression Pipe on first use by
// either direction.
func (s *Session) ensureCompressPipe() *compress.Pipe {
	if s.compressPipe == nil {
		s.compressPipe = compress.NewPipe(flateDefaultLevel)
	}
	return s.compressPipe
}

// decompressInbound inflates payload using the session's persistent
// Decompression context, enforcing the maxlen DoS guard.
func (s *Session) decompressInbound(payload []byte) ([]byte, error) {
	maxlen := s.maxInflate
	if maxlen <= 0 {
		maxlen = compress.DefaultMaxInflate
	}
	return s.ensureCompressPipe().DecompressInbound(payload, maxlen)
}

// compressOutbound deflates payload using the session's persistent
// Compression context.
func (s *Session) compressOutbound(payload []byte) ([]byte, error) {
	return s.ensureCompressPipe().CompressOutbound(payload)
}

// BeginRekey transitions INITIAL_KEX -> DH for the first key exchange, or
// AUTHENTICATED -> DH for a re-key, the one permitted backward revisit in
// the phase sequence. Any other session phase is a programmer error in the
// caller, not a wire-driven condition, so it
// panics rather than returning an error the reassembler would have to
// thread through.
func (s *Session) BeginRekey() {
	if s.sessionPhase != PhaseAuthenticated && s.sessionPhase != PhaseInitialKex {
		panic(fmt.Sprintf("transport: BeginRekey from phase %v", s.sessionPhase))
	}
	s.sessionPhase = PhaseDH
	s.kexPhase = KexInit
}

// StageNextSuite records the cipher suite negotiated by the current key
// exchange (by the external key-exchange layer), to be swapped in by
// CompleteRekey once NEWKEYS is processed in both directions.
func (s *Session) StageNextSuite(cs *wire.CipherSuite) {
	if cs == nil {
		panic("transport: StageNextSuite called with nil suite")
	}
	s.next = cs
}

// CompleteRekey swaps the staged suite into current, advances the session
// out of DH, and — under strict KEX — resets sequence numbers to zero
// (RFC 9579).
func (s *Session) CompleteRekey() {
	s.current = s.next
	s.next = nil
	s.kexPhase = KexFinished
	if s.sessionPhase == PhaseDH {
		if s.authPhase == AuthSuccess {
			s.sessionPhase = PhaseAuthenticated
		} else {
			s.sessionPhase = PhaseAuthenticating
		}
	}
	if s.strictKEX {
		s.sendSeq.Store(0)
		s.recvSeq.Store(0)
	}
}
