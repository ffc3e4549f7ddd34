// Package compress implements the Compression Pipe: streaming,
// partial-flush DEFLATE applied to the payload region of an SSH Binary
// Packet, before encryption outbound and after decryption inbound
// (RFC 4253 Section 6.2 / the "zlib" compression methods).
//
// No third-party streaming-DEFLATE library appears anywhere in this
// repository's dependency corpus, and the SSH "zlib"/"zlib@openssh.com"
// compression methods are DEFLATE by definition, so this package is built
// directly on the standard library's compress/flate rather than vendoring
// an equivalent. See DESIGN.md for the fuller justification.
package compress

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
)

// maxWindow is DEFLATE's maximum back-reference distance. The inbound side
// carries forward this many trailing decompressed bytes as an explicit
// dictionary so each packet's decode can be primed with the same history a
// single long-lived decompressor would have accumulated, without requiring
// the standard library's Reader to stay blocked across Feed calls.
const maxWindow = 32768

// DefaultMaxInflate is a reasonable default decompression-bomb bound for
// callers that don't have a more specific figure in mind: an order of
// magnitude above MAX_PACKET_LEN.
const DefaultMaxInflate = 256 * 1024 * 10

// ErrDecompressOverflow is FATAL: the caller-supplied maxlen bound was
// exceeded while inflating.
var ErrDecompressOverflow = errors.New("decompressed output exceeds maxlen")

// Compressor is a persistent outbound DEFLATE stream. Partial flush
// (flate.Writer.Flush) makes each packet's compressed bytes independently
// decodable without terminating the stream, so back-references into
// earlier packets' payloads remain available for the life of the session.
type Compressor struct {
	buf bytes.Buffer
	zw  *flate.Writer
}

// NewCompressor creates a Compressor at the given DEFLATE level (see
// compress/flate level constants; flate.DefaultCompression is a safe
// default).
func NewCompressor(level int) (*Compressor, error) {
	c := &Compressor{}
	zw, err := flate.NewWriter(&c.buf, level)
	if err != nil {
		return nil, fmt.Errorf("new deflate writer: %w", err)
	}
	c.zw = zw
	return c, nil
}

// Compress deflates payload and returns the partially-flushed compressed
// bytes for exactly this packet. The returned slice is a fresh copy owned by
// the caller.
func (c *Compressor) Compress(payload []byte) ([]byte, error) {
	c.buf.Reset()
	if len(payload) > 0 {
		if _, err := c.zw.Write(payload); err != nil {
			return nil, fmt.Errorf("deflate write: %w", err)
		}
	}
	if err := c.zw.Flush(); err != nil {
		return nil, fmt.Errorf("deflate flush: %w", err)
	}
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out, nil
}

// Decompressor is a persistent inbound DEFLATE stream, implemented as a
// fresh flate.Reader per packet primed with a rolling dictionary of the
// last maxWindow decompressed bytes (see the maxWindow comment for why).
type Decompressor struct {
	fr       io.ReadCloser
	resetter flate.Resetter
	history  []byte
}

// NewDecompressor creates a Decompressor with an empty history window.
func NewDecompressor() *Decompressor {
	fr := flate.NewReader(bytes.NewReader(nil))
	return &Decompressor{
		fr:       fr,
		resetter: fr.(flate.Resetter),
	}
}

// Decompress inflates compressed (exactly one packet's worth of
// partial-flush DEFLATE output) and returns the decompressed payload.
// maxlen bounds the output size; exceeding it is FATAL and aborts before
// further growth. "Input exhausted" (io.EOF / io.ErrUnexpectedEOF once the
// provided bytes are consumed) is the terminal-normal end of this call,
// not an error.
func (d *Decompressor) Decompress(compressed []byte, maxlen int) ([]byte, error) {
	if err := d.resetter.Reset(bytes.NewReader(compressed), d.history); err != nil {
		return nil, fmt.Errorf("prime inflate stream: %w", err)
	}

	out := make([]byte, 0, len(compressed)*3+16)
	buf := make([]byte, 4096)
	for {
		n, err := d.fr.Read(buf)
		if n > 0 {
			if len(out)+n > maxlen {
				return nil, ErrDecompressOverflow
			}
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("inflate: %w", err)
		}
		if n == 0 {
			break
		}
	}

	d.history = appendHistory(d.history, out)
	return out, nil
}

// appendHistory concatenates newBytes onto history and truncates to the
// last maxWindow bytes, DEFLATE's maximum useful back-reference distance.
func appendHistory(history, newBytes []byte) []byte {
	combined := append(history, newBytes...)
	if len(combined) > maxWindow {
		combined = combined[len(combined)-maxWindow:]
	}
	// Copy so the returned slice doesn't keep aliasing a growing backing
	// array shared with the caller's out slice.
	out := make([]byte, len(combined))
	copy(out, combined)
	return out
}

// Pipe lazily creates one Compressor and one Decompressor per Session, each
// created on first use and persisting for the session's remaining life.
type Pipe struct {
	level int

	comp   *Compressor
	decomp *Decompressor
}

// NewPipe creates a Pipe at the given DEFLATE level. No compressor or
// decompressor is created until first use.
func NewPipe(level int) *Pipe {
	return &Pipe{level: level}
}

// CompressOutbound deflates payload for the outbound direction, creating
// the persistent Compressor on first call.
func (p *Pipe) CompressOutbound(payload []byte) ([]byte, error) {
	if p.comp == nil {
		c, err := NewCompressor(p.level)
		if err != nil {
			return nil, err
		}
		p.comp = c
	}
	return p.comp.Compress(payload)
}

// DecompressInbound inflates payload for the inbound direction, creating
// the persistent Decompressor on first call. maxlen bounds the output size
// (decompression-bomb guard).
func (p *Pipe) DecompressInbound(payload []byte, maxlen int) ([]byte, error) {
	if p.decomp == nil {
		p.decomp = NewDecompressor()
	}
	return p.decomp.Decompress(payload, maxlen)
}
