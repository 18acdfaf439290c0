// Package tsdemux implements the demultiplexing core: packet framing, the
// PID-filtered PSI decoder bank, and the dual-feed reader that keeps the PSI
// bank and an external container prober reading the same file in lockstep.
package tsdemux

import "encoding/binary"

const (
	// PacketSize is the fixed MPEG-TS packet length.
	PacketSize = 188
	// SyncByte is the required value of every packet's first byte.
	SyncByte = 0x47
	// NullPID marks stuffing packets that carry no PSI or payload of interest.
	NullPID = 0x1FFF
)

// ExtractPID reads the 13-bit PID from a packet's bytes 1-2 (big-endian,
// masked to 0x1FFF). pkt must be at least 3 bytes.
func ExtractPID(pkt []byte) uint16 {
	return binary.BigEndian.Uint16(pkt[1:3]) & 0x1FFF
}

// PacketFramer slices an arbitrary byte feed into PacketSize-byte packets,
// retaining any trailing partial packet across calls. It performs no sync
// byte validation: framing and validation are deliberately separate jobs
// (validation happens in the decoder bank's dispatch path).
type PacketFramer struct {
	buf []byte
}

// NewPacketFramer returns an empty framer.
func NewPacketFramer() *PacketFramer {
	return &PacketFramer{buf: make([]byte, 0, 4*PacketSize)}
}

// Feed appends data to the internal buffer and emits every complete packet
// to sink, front to back, stopping early if sink returns an error. Any
// unconsumed tail (< PacketSize bytes) is retained for the next call.
func (f *PacketFramer) Feed(data []byte, sink func(pkt []byte) error) error {
	f.buf = append(f.buf, data...)
	i := 0
	for len(f.buf)-i >= PacketSize {
		if err := sink(f.buf[i : i+PacketSize]); err != nil {
			// Drop everything already consumed; the caller is abandoning
			// this file, so retaining a correct tail no longer matters.
			f.buf = f.buf[:0]
			return err
		}
		i += PacketSize
	}
	f.buf = append(f.buf[:0], f.buf[i:]...)
	return nil
}

// Tail returns the currently buffered, not-yet-framed bytes. Exposed for
// testing the framing-completeness invariant.
func (f *PacketFramer) Tail() []byte {
	return f.buf
}
