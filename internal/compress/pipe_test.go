package compress

import (
	"bytes"
	"strings"
	"testing"
)

func TestRoundTripSinglePacket(t *testing.T) {
	p := NewPipe(6)
	payload := []byte("the quick brown fox jumps over the lazy dog")

	wire, err := p.CompressOutbound(payload)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	got, err := p.DecompressInbound(wire, 1<<20)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestRoundTripMultiplePacketsCarryWindow(t *testing.T) {
	p := NewPipe(6)
	// A few hundred bytes per packet: at level 6, compress/flate emits a
	// flushed write of only a few dozen bytes as a stored block with no
	// back-references at all, so a shorter payload would not exercise the
	// window.
	payloads := [][]byte{
		[]byte(strings.Repeat("repeated text ", 20)),
		[]byte(strings.Repeat("repeated text ", 20)),
		[]byte("a completely different trailer line"),
	}

	var sizes []int
	for i, payload := range payloads {
		wire, err := p.CompressOutbound(payload)
		if err != nil {
			t.Fatalf("compress packet %d: %v", i, err)
		}
		sizes = append(sizes, len(wire))

		got, err := p.DecompressInbound(wire, 1<<20)
		if err != nil {
			t.Fatalf("decompress packet %d: %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("packet %d mismatch: got %q want %q", i, got, payload)
		}
	}

	// The second identical packet should compress smaller than the first
	// because it can reference the first packet's history across the
	// persisted window.
	if sizes[1] >= sizes[0] {
		t.Fatalf("expected packet 1 (%d bytes) to compress smaller than packet 0 (%d bytes) via shared window", sizes[1], sizes[0])
	}
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {
	p := NewPipe(6)
	payload := bytes.Repeat([]byte{0}, 10_000)

	wire, err := p.CompressOutbound(payload)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(wire) >= len(payload)/10 {
		t.Fatalf("compressed size %d not at least an order of magnitude smaller than %d", len(wire), len(payload))
	}

	got, err := p.DecompressInbound(wire, len(payload)+1)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch for repetitive payload")
	}
}

func TestDecompressionBombGuard(t *testing.T) {
	p := NewPipe(6)
	payload := bytes.Repeat([]byte("A"), 100_000)

	wire, err := p.CompressOutbound(payload)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	if _, err := p.DecompressInbound(wire, 1000); err != ErrDecompressOverflow {
		t.Fatalf("expected ErrDecompressOverflow, got %v", err)
	}
}

func TestEmptyPayloadRoundTrip(t *testing.T) {
	p := NewPipe(6)
	wire, err := p.CompressOutbound(nil)
	if err != nil {
		t.Fatalf("compress empty payload: %v", err)
	}
	got, err := p.DecompressInbound(wire, 1<<10)
	if err != nil {
		t.Fatalf("decompress empty payload: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got))
	}
}

func TestLargePayloadAcrossManyPackets(t *testing.T) {
	p := NewPipe(6)
	for i := 0; i < 50; i++ {
		payload := []byte(strings.Repeat("payload-line\n", 20))
		wire, err := p.CompressOutbound(payload)
		if err != nil {
			t.Fatalf("compress packet %d: %v", i, err)
		}
		got, err := p.DecompressInbound(wire, 1<<20)
		if err != nil {
			t.Fatalf("decompress packet %d: %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("packet %d mismatch", i)
		}
	}
}
