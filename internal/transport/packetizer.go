package transport

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/sshcore/transport/internal/wire"
)

// minPadding is the protocol-minimum padding length.
const minPadding = 4

// Stage appends payload (message type byte followed by its body) to the
// outbound staging buffer. Send flushes whatever has accumulated there.
// The staging buffer is owned by the Session; callers must not retain
// payload's backing array after this call.
func (s *Session) Stage(payload []byte) {
	s.outbound.Append(payload)
}

// Send runs the Outgoing Packetizer over the staged buffer and writes the
// result to the Session's configured writer, returning the number of wire
// bytes written.
//
// Failures: allocation failures and cipher/MAC failures are FATAL and
// move the session to ERROR. A short write from the underlying writer is
// surfaced as AGAIN; partial writes are delegated back to the caller.
func (s *Session) Send() (int, error) {
	if s.sessionPhase == PhaseError {
		return 0, Fatal(ErrSessionInError)
	}

	payload := s.outbound.Bytes()
	msgType := byte(0)
	if len(payload) > 0 {
		msgType = payload[0]
	}

	if s.current != nil && s.current.OutCompress && len(payload) > 0 {
		compressed, err := s.compressOutbound(payload)
		if err != nil {
			te := Fatal(fmt.Errorf("compress outbound: %w", err))
			s.fail(te)
			return 0, te
		}
		payload = compressed
	}

	lenBlock := s.current.OutLenFieldBlockSize()
	blockSize := s.current.OutBlockSize()

	padding := minPadding
	unpadded := 4 + 1 + len(payload)
	for (unpadded+padding-lenBlock)%blockSize != 0 {
		padding++
	}
	if padding < minPadding {
		padding += blockSize
	}

	cleartext := make([]byte, 4+1+len(payload)+padding)
	totalLen := uint32(1 + len(payload) + padding)
	binary.BigEndian.PutUint32(cleartext[0:4], totalLen)
	cleartext[4] = byte(padding)
	copy(cleartext[5:5+len(payload)], payload)

	if s.current != nil {
		padBytes := cleartext[5+len(payload):]
		if _, err := rand.Read(padBytes); err != nil {
			te := Fatal(fmt.Errorf("%w: random padding: %v", ErrAllocationFailure, err))
			s.fail(te)
			return 0, te
		}
	}

	seq := s.sendSeq.Load()
	mac := wire.ComputeMAC(s.outMAC(), seq, cleartext)

	wireBytes := make([]byte, len(cleartext))
	copy(wireBytes[:lenBlock], cleartext[:lenBlock])
	wire.Encrypt(s.outCipher(), wireBytes[:lenBlock], cleartext[:lenBlock])
	if len(cleartext) > lenBlock {
		wire.Encrypt(s.outCipher(), wireBytes[lenBlock:], cleartext[lenBlock:])
	}
	wireBytes = append(wireBytes, mac...)

	if s.captureSink != nil {
		s.captureSink.CaptureOutbound(seq, msgType, payload)
	}

	n, err := s.writer.Write(wireBytes)
	if err != nil {
		return n, Again(fmt.Errorf("%w: %v", ErrAgainNotWritable, err))
	}
	if n < len(wireBytes) {
		return n, Again(ErrShortWrite)
	}

	s.sendSeq.Add(1)
	s.sentPackets.Add(1)
	s.sentBytes.Add(uint64(n))
	if s.counterSink != nil {
		s.counterSink.CountSent(1, uint64(n))
	}
	s.outbound.Reset()
	return n, nil
}

func (s *Session) outCipher() wire.Cipher {
	if s.current == nil {
		return nil
	}
	return s.current.OutCipher
}

func (s *Session) outMAC() wire.MAC {
	if s.current == nil {
		return nil
	}
	return s.current.OutMAC
}
