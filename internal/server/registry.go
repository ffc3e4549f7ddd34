package server

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sshcore/transport/internal/transport"
)

// ErrSessionNotFound indicates the registry has no session under the given ID.
var ErrSessionNotFound = errors.New("server: session not found")

// eventChanSize bounds a watcher's buffered event channel; a watcher that
// falls behind drops events rather than stalling Register/Unregister/
// NotifyPhaseChange for every other caller.
const eventChanSize = 32

// EventType classifies a Registry event, mirroring the closed-enum/String
// pattern internal/phase uses for its own state machines.
type EventType uint8

const (
	EventSessionAdded EventType = iota
	EventSessionRemoved
	EventPhaseChanged
)

func (t EventType) String() string {
	switch t {
	case EventSessionAdded:
		return "SESSION_ADDED"
	case EventSessionRemoved:
		return "SESSION_REMOVED"
	case EventPhaseChanged:
		return "PHASE_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders an EventType as its name rather than its ordinal, so
// sshcorectl's watch output doesn't need its own copy of this enum.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event is one entry in a Registry watch stream.
type Event struct {
	Type      EventType `json:"type"`
	SessionID uint64    `json:"session_id"`
	Session   Snapshot  `json:"session"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the JSON-facing, read-only view of a registered Session,
// covering transport.Session's phase tuple and traffic counters.
type Snapshot struct {
	ID               uint64    `json:"id"`
	Role             string    `json:"role"`
	PeerAddr         string    `json:"peer_addr,omitempty"`
	SessionPhase     string    `json:"session_phase"`
	KexPhase         string    `json:"kex_phase"`
	AuthPhase        string    `json:"auth_phase"`
	GlobalReqPhase   string    `json:"global_req_phase"`
	AuthServicePhase string    `json:"auth_service_phase"`
	SendSeq          uint32    `json:"send_seq"`
	RecvSeq          uint32    `json:"recv_seq"`
	SentPackets      uint64    `json:"sent_packets"`
	SentBytes        uint64    `json:"sent_bytes"`
	RecvPackets      uint64    `json:"recv_packets"`
	RecvBytes        uint64    `json:"recv_bytes"`
	InError          bool      `json:"in_error"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// entry is a registered session plus the host-supplied metadata the
// transport.Session itself has no notion of (peer address, an optional
// teardown callback for CloseSession).
type entry struct {
	session   *transport.Session
	peerAddr  string
	closer    func() error
	createdAt time.Time
}

// Registry tracks the live transport.Session instances a daemon is
// hosting, assigning each an opaque ID and fanning out lifecycle/phase
// events to any number of watchers. IDs are registry-assigned since
// transport.Session carries no identifier of its own.
type Registry struct {
	mu      sync.RWMutex
	entries map[uint64]*entry
	nextID  atomic.Uint64

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[uint64]*entry),
		subs:    make(map[chan Event]struct{}),
	}
}

// Register assigns sess a new ID and begins tracking it. closer, if
// non-nil, is invoked by Close to tear down the underlying connection
// (e.g. net.Conn.Close); it is never called by Unregister alone.
func (r *Registry) Register(sess *transport.Session, peerAddr string, closer func() error) uint64 {
	id := r.nextID.Add(1)

	e := &entry{
		session:   sess,
		peerAddr:  peerAddr,
		closer:    closer,
		createdAt: time.Now(),
	}

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()

	r.publish(Event{
		Type:      EventSessionAdded,
		SessionID: id,
		Session:   snapshotOf(id, e),
		Timestamp: time.Now(),
	})

	return id
}

// Unregister stops tracking the session under id without closing its
// underlying connection. Reports whether id was tracked.
func (r *Registry) Unregister(id uint64) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.publish(Event{
		Type:      EventSessionRemoved,
		SessionID: id,
		Session:   snapshotOf(id, e),
		Timestamp: time.Now(),
	})

	return true
}

// Close tears down the session under id (via its registered closer, if
// any) and removes it from the registry. Returns ErrSessionNotFound if id
// is not tracked.
func (r *Registry) Close(id uint64) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	var closeErr error
	if e.closer != nil {
		closeErr = e.closer()
	}
	r.Unregister(id)
	return closeErr
}

// Get returns a point-in-time Snapshot of the session under id.
func (r *Registry) Get(id uint64) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(id, e), true
}

// List returns a Snapshot of every tracked session, ordered by ID.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, snapshotOf(id, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NotifyPhaseChange publishes a PHASE_CHANGED event carrying the current
// Snapshot of the session under id. The host calls this after driving a
// phase transition on the underlying transport.Session (BeginRekey,
// CompleteRekey, SetAuthPhase, fail, ...); the Registry has no way to
// observe those transitions on its own, since Session exposes no hooks.
func (r *Registry) NotifyPhaseChange(id uint64) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}

	r.publish(Event{
		Type:      EventPhaseChanged,
		SessionID: id,
		Session:   snapshotOf(id, e),
		Timestamp: time.Now(),
	})
}

// Subscribe registers a new watcher, returning its event channel and a
// cancel function the caller must call when done watching (typically via
// defer). The channel is closed once cancel runs.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventChanSize)

	r.subMu.Lock()
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
		r.subMu.Unlock()
	}

	return ch, cancel
}

// publish fans ev out to every current watcher, dropping it for any
// watcher whose buffer is full rather than blocking the caller.
func (r *Registry) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// snapshotOf renders a registry entry into its JSON-facing Snapshot.
func snapshotOf(id uint64, e *entry) Snapshot {
	s := e.session
	phases := s.Phases()

	var errStr string
	if te := s.Err(); te != nil {
		errStr = te.Error()
	}

	return Snapshot{
		ID:               id,
		Role:             s.Role().String(),
		PeerAddr:         e.peerAddr,
		SessionPhase:     phases.Session.String(),
		KexPhase:         phases.Kex.String(),
		AuthPhase:        phases.Auth.String(),
		GlobalReqPhase:   phases.GlobalReq.String(),
		AuthServicePhase: phases.AuthService.String(),
		SendSeq:          s.SendSeq(),
		RecvSeq:          s.RecvSeq(),
		SentPackets:      s.SentPackets(),
		SentBytes:        s.SentBytes(),
		RecvPackets:      s.RecvPackets(),
		RecvBytes:        s.RecvBytes(),
		InError:          s.InError(),
		Error:            errStr,
		CreatedAt:        e.createdAt,
	}
}
