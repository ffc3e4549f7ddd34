// Package wire implements the SSH Binary Packet Protocol wire codec
// (RFC 4253 Section 6): length decryption, MAC verify/compute, and the
// block-size policy that lets AEAD and encrypt-then-MAC schemes declare a
// length-field block size distinct from their regular cipher block size.
//
// The package never implements cryptographic primitives itself; it consumes
// them through the Cipher and MAC capability interfaces below, the same way
// key exchange math, signature verification, and key parsing are treated as
// external collaborators throughout this repository.
package wire

import "encoding/binary"

// DefaultBlockSize is used for both the cipher block size and the
// length-field block size before any cipher has been negotiated. A
// negotiated cipher that declares a zero length-field block size uses its
// own block size instead, and DefaultBlockSize only if that is zero too.
const DefaultBlockSize = 8

// MaxPacketLen bounds the declared packet_length field. A Reassembler must
// treat any declared length above this as FATAL before allocating buffers
// for it.
const MaxPacketLen = 256 * 1024

// Cipher is the capability set a negotiated encryption algorithm exposes to
// the wire codec. Block ciphers, stream ciphers, and AEAD constructions all
// implement it; the codec never branches on concrete cipher identity.
type Cipher interface {
	// BlockSize returns the cipher's natural block size in bytes.
	BlockSize() int

	// LenFieldBlockSize returns the number of bytes that must be decrypted
	// to recover packet_length. Zero means "same as BlockSize" (the codec
	// applies that fallback itself; implementations need not).
	LenFieldBlockSize() int

	// Encrypt encrypts src into dst. dst and src may overlap only if they
	// are identical (in-place encryption).
	Encrypt(dst, src []byte)

	// Decrypt decrypts src into dst, inverse of Encrypt.
	Decrypt(dst, src []byte)
}

// MAC is the capability set a negotiated message authentication algorithm
// exposes. A MAC of nil (alongside a CipherSuite field) means "none
// negotiated" and the codec treats its digest length as zero.
type MAC interface {
	// Size returns the MAC digest length in bytes.
	Size() int

	// Compute returns the MAC over (sequence_number, clear_packet_bytes).
	Compute(seq uint32, clear []byte) []byte
}

// CipherSuite is the quadruple (in-cipher, out-cipher, in-mac, out-mac) plus
// per-direction compression enablement that a completed key exchange
// installs on a Session. A nil CipherSuite, or nil fields within one, mean
// "no cipher/MAC negotiated yet" (plaintext, as before the first NEWKEYS).
type CipherSuite struct {
	InCipher  Cipher
	OutCipher Cipher
	InMAC     MAC
	OutMAC    MAC

	// InCompress and OutCompress report whether compression is negotiated
	// for that direction. The Compression Pipe context is created lazily
	// the first time a direction with this flag set processes a packet.
	InCompress  bool
	OutCompress bool
}

// blockSize returns the effective cipher block size for one direction,
// defaulting to DefaultBlockSize when no cipher is negotiated.
func blockSize(c Cipher) int {
	if c == nil {
		return DefaultBlockSize
	}
	if bs := c.BlockSize(); bs > 0 {
		return bs
	}
	return DefaultBlockSize
}

// lenFieldBlockSize returns the effective length-field block size for one
// direction: the cipher's declared value, falling back to its regular
// block size, falling back to DefaultBlockSize.
func lenFieldBlockSize(c Cipher) int {
	if c == nil {
		return DefaultBlockSize
	}
	if lb := c.LenFieldBlockSize(); lb > 0 {
		return lb
	}
	return blockSize(c)
}

// InBlockSize returns the effective inbound cipher block size, tolerating a
// nil suite (no cipher negotiated yet).
func (cs *CipherSuite) InBlockSize() int {
	if cs == nil {
		return DefaultBlockSize
	}
	return blockSize(cs.InCipher)
}

// OutBlockSize returns the effective outbound cipher block size.
func (cs *CipherSuite) OutBlockSize() int {
	if cs == nil {
		return DefaultBlockSize
	}
	return blockSize(cs.OutCipher)
}

// InLenFieldBlockSize returns the effective inbound length-field block size.
func (cs *CipherSuite) InLenFieldBlockSize() int {
	if cs == nil {
		return DefaultBlockSize
	}
	return lenFieldBlockSize(cs.InCipher)
}

// OutLenFieldBlockSize returns the effective outbound length-field block
// size.
func (cs *CipherSuite) OutLenFieldBlockSize() int {
	if cs == nil {
		return DefaultBlockSize
	}
	return lenFieldBlockSize(cs.OutCipher)
}

// InMACSize returns the inbound MAC digest length, zero when none is
// negotiated.
func (cs *CipherSuite) InMACSize() int {
	if cs == nil || cs.InMAC == nil {
		return 0
	}
	return cs.InMAC.Size()
}

// OutMACSize returns the outbound MAC digest length, zero when none is
// negotiated.
func (cs *CipherSuite) OutMACSize() int {
	if cs == nil || cs.OutMAC == nil {
		return 0
	}
	return cs.OutMAC.Size()
}

// putLength writes a big-endian uint32 into the first four bytes of b.
func putLength(b []byte, length uint32) {
	binary.BigEndian.PutUint32(b, length)
}

// readLength reads a big-endian uint32 from the first four bytes of b.
func readLength(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
