package wire

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrMACFailure is returned by VerifyMAC when the computed tag does not
// constant-time-match the received one.
var ErrMACFailure = errors.New("mac verification failed")

// ErrShortBlock is returned when a caller hands DecryptLength fewer bytes
// than one length-field block.
var ErrShortBlock = errors.New("short length-field block")

// DecryptLength decrypts exactly one length-field block of ciphertext into
// outBlock and parses the first four bytes of the result as a big-endian
// packet_length. outBlock must be at least lenFieldBlockSize(c) bytes.
//
// A nil cipher means no encryption is negotiated yet: the block is copied
// through unchanged.
func DecryptLength(c Cipher, outBlock, firstBlockCiphertext []byte) (uint32, error) {
	lb := lenFieldBlockSize(c)
	if len(firstBlockCiphertext) < lb || len(outBlock) < lb {
		return 0, ErrShortBlock
	}
	if c == nil {
		copy(outBlock, firstBlockCiphertext[:lb])
	} else {
		c.Decrypt(outBlock[:lb], firstBlockCiphertext[:lb])
	}
	if len(outBlock) < 4 {
		return 0, ErrShortBlock
	}
	return readLength(outBlock), nil
}

// DecryptRest continues decrypting payload blocks already known (via
// DecryptLength) to belong to the current packet. dst and src must be the
// same length. A nil cipher copies through unchanged.
func DecryptRest(c Cipher, dst, src []byte) {
	if len(src) == 0 {
		return
	}
	if c == nil {
		copy(dst, src)
		return
	}
	c.Decrypt(dst, src)
}

// Encrypt encrypts a cleartext packet (everything from packet_length through
// the padding, excluding the MAC) in place into dst. A nil cipher copies
// through unchanged.
func Encrypt(c Cipher, dst, src []byte) {
	if len(src) == 0 {
		return
	}
	if c == nil {
		copy(dst, src)
		return
	}
	c.Encrypt(dst, src)
}

// ComputeMAC returns the MAC over (seq, clear), or nil when m is nil (no MAC
// negotiated).
func ComputeMAC(m MAC, seq uint32, clear []byte) []byte {
	if m == nil {
		return nil
	}
	return m.Compute(seq, clear)
}

// VerifyMAC recomputes the MAC over (seq, clear) and constant-time-compares
// it against tag. A nil MAC is only valid against a zero-length tag (no MAC
// negotiated on either side).
func VerifyMAC(m MAC, seq uint32, clear []byte, tag []byte) error {
	if m == nil {
		if len(tag) != 0 {
			return fmt.Errorf("unexpected mac tag with no mac negotiated: %w", ErrMACFailure)
		}
		return nil
	}
	want := m.Compute(seq, clear)
	if len(want) != len(tag) || subtle.ConstantTimeCompare(want, tag) != 1 {
		return ErrMACFailure
	}
	return nil
}
