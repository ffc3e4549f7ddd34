package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/sshcore/transport/internal/filter"
	"github.com/sshcore/transport/internal/msgtype"
	"github.com/sshcore/transport/internal/wire"
)

// reassemblyStep is the Reassembly State: INIT holds no bytes of the
// next packet, SIZEREAD has decrypted the length-field block
// and knows the declared length, PROCESSING is running dispatch for the
// current packet and must reject reentrant Feed calls.
type reassemblyStep uint8

const (
	reassemblyInit reassemblyStep = iota
	reassemblySizeRead
	reassemblyProcessing
)

func (r reassemblyStep) String() string {
	switch r {
	case reassemblyInit:
		return "INIT"
	case reassemblySizeRead:
		return "SIZEREAD"
	case reassemblyProcessing:
		return "PROCESSING"
	default:
		return "unknown"
	}
}

// reassemblyState holds the Reassembler's working state across Feed
// calls: the current step, and — once SIZEREAD is reached — the declared
// packet length so later calls don't have to re-decrypt the length block.
type reassemblyState struct {
	step        reassemblyStep
	declaredLen uint32
}

// Feed is the Reassembler's entry point: consumes as many complete
// packets as are present in data, returning the number of
// bytes consumed. May be called with any suffix of a packet, including a
// fragment smaller than one cipher block. Iterates rather than recurses
// so an arbitrarily long run of back-to-back buffered packets doesn't
// grow the call stack.
func (s *Session) Feed(data []byte) int {
	if s.reassembly.step == reassemblyProcessing {
		// Reentrancy guard: a handler that
		// transitively calls back into Feed on its own session must not
		// be allowed to recurse into the state machine.
		return 0
	}
	if s.sessionPhase == PhaseError {
		return 0
	}

	s.inbound.Append(data)
	consumed := 0

	for {
		n, progressed := s.feedOnce()
		consumed += n
		if s.sessionPhase == PhaseError || !progressed {
			break
		}
	}
	return consumed
}

// feedOnce advances the state machine by one step — which may be just the
// INIT -> SIZEREAD transition, or a full packet's worth of SIZEREAD ->
// INIT processing. It returns the number of bytes consumed from s.inbound
// during this call and whether the state machine made progress (so Feed
// knows whether to immediately retry rather than wait for more input —
// a single Feed call may have enough buffered bytes to satisfy both the
// INIT and SIZEREAD steps for one or more whole packets).
func (s *Session) feedOnce() (consumedDelta int, progressed bool) {
	switch s.reassembly.step {
	case reassemblyInit:
		lenBlock := s.current.InLenFieldBlockSize()
		if s.inbound.Len() < lenBlock {
			return 0, false
		}
		outBlock := make([]byte, lenBlock)
		declared, err := wire.DecryptLength(s.inCipher(), outBlock, s.inbound.Bytes()[:lenBlock])
		if err != nil {
			s.fail(Fatal(fmt.Errorf("%w: %v", wire.ErrShortBlock, err)))
			return 0, true
		}
		if declared > wire.MaxPacketLen {
			s.fail(Fatal(ErrOversizePacket))
			return 0, true
		}
		// Stash the decrypted length block back at the front of the
		// buffer so SIZEREAD's tail-decrypt can address the whole
		// packet contiguously.
		copy(s.inbound.Bytes()[:lenBlock], outBlock)
		s.reassembly.declaredLen = declared
		s.reassembly.step = reassemblySizeRead
		return 0, true

	case reassemblySizeRead:
		total := 4 + int(s.reassembly.declaredLen) + s.current.InMACSize()
		if s.inbound.Len() < total {
			return 0, false
		}

		s.reassembly.step = reassemblyProcessing
		n, err := s.processPacket(total)
		if err != nil {
			s.reassembly.step = reassemblyInit
			if te, ok := err.(*TransportError); ok {
				s.fail(te)
			} else {
				s.fail(Fatal(err))
			}
			return n, true
		}
		s.inbound.Consume(n)
		s.reassembly.step = reassemblyInit
		s.recvSeq.Add(1)
		s.recvPackets.Add(1)
		s.recvBytes.Add(uint64(n))
		if s.counterSink != nil {
			s.counterSink.CountReceived(1, uint64(n))
		}
		return n, true

	default:
		return 0, false
	}
}

// processPacket decrypts the tail, verifies the MAC, strips padding,
// decompresses, parses the type byte, classifies it through the Incoming
// Filter, and dispatches it. total is the full on-wire packet length
// (length-prefix + declared length + MAC).
func (s *Session) processPacket(total int) (int, error) {
	raw := s.inbound.Bytes()[:total]
	lenBlock := s.current.InLenFieldBlockSize()

	cleartext := make([]byte, 4+int(s.reassembly.declaredLen))
	copy(cleartext[:lenBlock], raw[:lenBlock])
	if len(cleartext) > lenBlock {
		wire.DecryptRest(s.inCipher(), cleartext[lenBlock:], raw[lenBlock:4+int(s.reassembly.declaredLen)])
	}

	tag := raw[4+int(s.reassembly.declaredLen) : total]
	if err := wire.VerifyMAC(s.inMAC(), s.recvSeq.Load(), cleartext, tag); err != nil {
		return total, Fatal(fmt.Errorf("%w: %v", wire.ErrMACFailure, err))
	}

	if len(cleartext) < 5 {
		return total, Fatal(ErrInvalidPadding)
	}
	paddingLen := int(cleartext[4])
	payload := cleartext[5:]
	if paddingLen > len(payload) {
		return total, Fatal(ErrInvalidPadding)
	}
	payload = payload[:len(payload)-paddingLen]

	if s.current != nil && s.current.InCompress && len(payload) > 0 {
		decompressed, err := s.decompressInbound(payload)
		if err != nil {
			return total, Fatal(err)
		}
		payload = decompressed
	}

	if len(payload) == 0 {
		return total, Fatal(ErrProtocolInvalidField)
	}
	msgType := msgtype.Type(payload[0])
	body := payload[1:]

	verdict := filter.Classify(s.Phases(), s.role, msgType)
	switch verdict {
	case filter.Denied:
		return total, Fatal(fmt.Errorf("%w: type %d in phases %+v", ErrFilterDenied, msgType, s.Phases()))
	case filter.Unknown:
		if s.captureSink != nil {
			s.captureSink.CaptureInbound(s.recvSeq.Load(), byte(msgType), body)
		}
		s.sendUnimplemented(s.recvSeq.Load())
		return total, nil
	}

	if s.captureSink != nil {
		s.captureSink.CaptureInbound(s.recvSeq.Load(), byte(msgType), body)
	}
	if used := s.dispatcher.Dispatch(s, msgType, body); !used {
		s.sendUnimplemented(s.recvSeq.Load())
	}
	return total, nil
}

// inCipher/inMAC return the negotiated in-direction primitives, or nil
// before the first NEWKEYS (plaintext session).
func (s *Session) inCipher() wire.Cipher {
	if s.current == nil {
		return nil
	}
	return s.current.InCipher
}

func (s *Session) inMAC() wire.MAC {
	if s.current == nil {
		return nil
	}
	return s.current.InMAC
}

// sendUnimplemented stages and immediately flushes the Unimplemented
// Responder's reply: type byte UNIMPLEMENTED followed
// by the 32-bit sequence number of the offending packet.
func (s *Session) sendUnimplemented(seq uint32) {
	body := make([]byte, 5)
	body[0] = byte(msgtype.Unimplemented)
	binary.BigEndian.PutUint32(body[1:], seq)
	s.Stage(body)
	_, _ = s.Send()
}
