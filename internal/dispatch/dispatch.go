// Package dispatch implements the Dispatcher: a priority-ordered list of
// handler bundles that locates the first non-null handler for a validated
// packet's message type and invokes it, reporting to the caller whether any
// handler claimed the packet.
//
// Dispatcher is generic over the session type it hands to handlers so this
// package never needs to import internal/transport (which in turn needs to
// import this package to own a Dispatcher).
package dispatch

import (
	"sync"

	"github.com/sshcore/transport/internal/msgtype"
)

// Result is a handler's verdict: whether it claimed the packet.
type Result uint8

const (
	// NotUsed means the handler declined; the Dispatcher tries the next
	// bundle.
	NotUsed Result = iota
	// Used means the handler claimed the packet; the Dispatcher stops.
	Used
)

// Handler processes one validated, in-phase packet. userdata is whatever
// was supplied at Register time for this bundle, letting one handler
// function serve multiple bundles.
type Handler[S any] func(session S, msgType msgtype.Type, payload []byte, userdata any) Result

// Bundle is a contiguous run of message types starting at Start, with one
// Handler slot per type (Handlers[t-Start] serves type t). A nil slot means
// this bundle declines that type outright.
type Bundle[S any] struct {
	Start    msgtype.Type
	Handlers []Handler[S]
	Userdata any
}

// covers reports whether t falls within this bundle's type range.
func (b Bundle[S]) covers(t msgtype.Type) bool {
	if t < b.Start {
		return false
	}
	idx := int(t - b.Start)
	return idx < len(b.Handlers)
}

// Dispatcher owns an ordered list of handler bundles. Bundles are scanned
// in registration order; later registrations take precedence only if
// earlier ones decline (return NotUsed) or leave the slot nil. A Session's
// Dispatcher starts empty: the transport registers no default bundle of its
// own, so every handler, including those for KEXINIT, NEWKEYS and
// DISCONNECT, comes from a bundle that a protocol sub-layer (auth methods,
// channels, kex) registers.
type Dispatcher[S any] struct {
	mu      sync.Mutex
	bundles []Bundle[S]
}

// New creates an empty Dispatcher.
func New[S any]() *Dispatcher[S] {
	return &Dispatcher[S]{}
}

// Register appends bundle to the registration-ordered list.
func (d *Dispatcher[S]) Register(bundle Bundle[S]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bundles = append(d.bundles, bundle)
}

// Dispatch scans bundles in registration order for the first non-null
// handler claiming msgType, invoking it. It reports whether any handler
// claimed the packet (Used); the Reassembler is responsible for emitting
// UNIMPLEMENTED when this returns false.
func (d *Dispatcher[S]) Dispatch(session S, msgType msgtype.Type, payload []byte) bool {
	d.mu.Lock()
	bundles := make([]Bundle[S], len(d.bundles))
	copy(bundles, d.bundles)
	d.mu.Unlock()

	for _, bundle := range bundles {
		if !bundle.covers(msgType) {
			continue
		}
		handler := bundle.Handlers[msgType-bundle.Start]
		if handler == nil {
			continue
		}
		if handler(session, msgType, payload, bundle.Userdata) == Used {
			return true
		}
	}
	return false
}
