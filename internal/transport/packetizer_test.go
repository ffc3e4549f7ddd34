package transport

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sshcore/transport/internal/msgtype"
)

func TestSendPaddingMeetsMinimumAndBlockAlignment(t *testing.T) {
	var out bytes.Buffer
	cs := testSuite()
	s := New(RoleClient, testLogger(), WithCipherSuite(cs), WithWriter(&out))

	payload := append([]byte{byte(msgtype.Debug)}, []byte("a block-alignment probe")...)
	s.Stage(payload)
	if _, err := s.Send(); err != nil {
		t.Fatalf("Send: %v", err)
	}

	wireBytes := out.Bytes()
	lenBlock := cs.InLenFieldBlockSize()
	blockSize := cs.OutBlockSize()

	cleartextLen := make([]byte, lenBlock)
	// The first lenBlock bytes are ciphertext of the length field; decrypt
	// with the same XOR key to inspect it (XOR is self-inverse).
	for i := 0; i < lenBlock; i++ {
		cleartextLen[i] = wireBytes[i] ^ 0x5A
	}
	declared := binary.BigEndian.Uint32(cleartextLen[:4])

	unpaddedBeforePadding := 1 + len(payload) // padding_length byte + payload
	padding := int(declared) - unpaddedBeforePadding
	if padding < minPadding {
		t.Fatalf("padding = %d, want >= %d", padding, minPadding)
	}
	if (4+int(declared))%blockSize != 0 {
		t.Fatalf("4+declared = %d not a multiple of block size %d", 4+int(declared), blockSize)
	}
}

func TestSendWithNoCipherStillProducesMinimalPadding(t *testing.T) {
	var out bytes.Buffer
	s := New(RoleClient, testLogger(), WithWriter(&out))

	s.Stage([]byte{byte(msgtype.Ignore)})
	if _, err := s.Send(); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("expected wire bytes to be written")
	}
	declared := binary.BigEndian.Uint32(out.Bytes()[:4])
	paddingLen := out.Bytes()[4]
	if int(paddingLen) < minPadding {
		t.Fatalf("padding_length = %d, want >= %d", paddingLen, minPadding)
	}
	if int(declared) != 1+1+int(paddingLen) {
		t.Fatalf("declared length = %d, want %d", declared, 1+1+int(paddingLen))
	}
}

func TestSendOnErroredSessionFails(t *testing.T) {
	var out bytes.Buffer
	s := New(RoleClient, testLogger(), WithWriter(&out))
	s.fail(Fatal(ErrProtocolInvalidField))

	s.Stage([]byte{byte(msgtype.Ignore)})
	if _, err := s.Send(); err == nil {
		t.Fatal("expected Send on an errored session to fail")
	}
}
