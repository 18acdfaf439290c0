package tsdemux

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, numPackets int) (*os.File, int64) {
	t.Helper()
	data := make([]byte, 0, numPackets*PacketSize)
	for i := 0; i < numPackets; i++ {
		data = append(data, packetFor(0, byte(i))...)
	}
	path := filepath.Join(t.TempDir(), "stream.ts")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f, int64(len(data))
}

// TestReaderMonotonicity: every push to the PSI bank starts where the
// previous one ended.
func TestReaderMonotonicity(t *testing.T) {
	f, size := writeTestFile(t, 10)
	bank := NewBank()
	dec := &recordingDecoder{}
	bank.Attach(&Filter{Key: Key{PID: 0}, Decoder: dec})
	r := NewDualFeedReader(f, size, NewPacketFramer(), bank)

	buf := make([]byte, 3*PacketSize) // not packet-boundary aligned reads either
	for {
		n, err := r.ReadInto(buf)
		_ = n
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
	}
	if len(dec.pushed) != 10 {
		t.Fatalf("decoder saw %d packets, want 10", len(dec.pushed))
	}
	for i, pkt := range dec.pushed {
		if pkt[4] != byte(i) {
			t.Fatalf("packet %d out of order: fill=%d", i, pkt[4])
		}
	}
}

func TestReaderDoesNotRefeedOnBackwardSeek(t *testing.T) {
	f, size := writeTestFile(t, 5)
	bank := NewBank()
	dec := &recordingDecoder{}
	bank.Attach(&Filter{Key: Key{PID: 0}, Decoder: dec})
	r := NewDualFeedReader(f, size, NewPacketFramer(), bank)

	buf := make([]byte, PacketSize*5)
	if _, err := r.ReadInto(buf); err != nil {
		t.Fatal(err)
	}
	if len(dec.pushed) != 5 {
		t.Fatalf("expected 5 packets fed, got %d", len(dec.pushed))
	}

	if _, err := r.Seek(0, SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadInto(buf); err != nil {
		t.Fatal(err)
	}
	if len(dec.pushed) != 5 {
		t.Fatalf("re-reading already-delivered data should not re-feed the bank, got %d pushes", len(dec.pushed))
	}
}

// TestSeekForwardFeedsGap: a prober seeking forward over unread bytes
// forces the gap through the PSI bank before the seek takes effect.
func TestSeekForwardFeedsGap(t *testing.T) {
	f, size := writeTestFile(t, 20)
	bank := NewBank()
	dec := &recordingDecoder{}
	bank.Attach(&Filter{Key: Key{PID: 0}, Decoder: dec})
	r := NewDualFeedReader(f, size, NewPacketFramer(), bank)

	small := make([]byte, 3*PacketSize)
	if _, err := r.ReadInto(small); err != nil {
		t.Fatal(err)
	}
	if r.Watermark() != 3*PacketSize {
		t.Fatalf("watermark = %d, want %d", r.Watermark(), 3*PacketSize)
	}

	dst := int64(10 * PacketSize)
	if _, err := r.Seek(dst, SeekStart); err != nil {
		t.Fatal(err)
	}
	if r.Watermark() != dst {
		t.Fatalf("watermark after forward seek = %d, want %d", r.Watermark(), dst)
	}
	if len(dec.pushed) != 10 {
		t.Fatalf("decoder saw %d packets after forward seek, want 10", len(dec.pushed))
	}
}

// TestSeekCurrentForwardFeedsGap: the same forward-gap contract via a
// relative seek. The gap feed itself advances the real file position, so
// the reader must land on the destination resolved against the position
// the prober saw, not re-apply the relative offset afterwards.
func TestSeekCurrentForwardFeedsGap(t *testing.T) {
	f, size := writeTestFile(t, 20)
	bank := NewBank()
	dec := &recordingDecoder{}
	bank.Attach(&Filter{Key: Key{PID: 0}, Decoder: dec})
	r := NewDualFeedReader(f, size, NewPacketFramer(), bank)

	small := make([]byte, 3*PacketSize)
	if _, err := r.ReadInto(small); err != nil {
		t.Fatal(err)
	}

	got, err := r.Seek(7*PacketSize, SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if got != 10*PacketSize {
		t.Fatalf("relative seek landed at %d, want %d", got, 10*PacketSize)
	}
	if r.Watermark() != 10*PacketSize {
		t.Fatalf("watermark = %d, want %d", r.Watermark(), 10*PacketSize)
	}
	if len(dec.pushed) != 10 {
		t.Fatalf("decoder saw %d packets after relative forward seek, want 10", len(dec.pushed))
	}

	// The next read must continue exactly at the destination: packet 10.
	if _, err := r.ReadInto(small); err != nil {
		t.Fatal(err)
	}
	if len(dec.pushed) != 13 || dec.pushed[10][4] != 10 {
		t.Fatalf("read after relative seek resumed at fill=%d (%d packets total), want fill=10",
			dec.pushed[10][4], len(dec.pushed))
	}
}

func TestSeekQuerySizeDoesNotMove(t *testing.T) {
	f, size := writeTestFile(t, 4)
	bank := NewBank()
	r := NewDualFeedReader(f, size, NewPacketFramer(), bank)

	got, err := r.Seek(0, SeekQuerySize)
	if err != nil {
		t.Fatal(err)
	}
	if got != size {
		t.Fatalf("QUERY_SIZE = %d, want %d", got, size)
	}
	if r.Watermark() != 0 {
		t.Fatalf("QUERY_SIZE must not move the watermark, got %d", r.Watermark())
	}
}

func TestDrainFeedsRemainder(t *testing.T) {
	f, size := writeTestFile(t, 10)
	bank := NewBank()
	dec := &recordingDecoder{}
	bank.Attach(&Filter{Key: Key{PID: 0}, Decoder: dec})
	r := NewDualFeedReader(f, size, NewPacketFramer(), bank)

	buf := make([]byte, 4*PacketSize)
	if _, err := r.ReadInto(buf); err != nil {
		t.Fatal(err)
	}
	if err := r.Drain(); err != nil {
		t.Fatal(err)
	}
	if len(dec.pushed) != 10 {
		t.Fatalf("after drain decoder saw %d packets, want 10", len(dec.pushed))
	}
	if r.Watermark() != size {
		t.Fatalf("watermark after drain = %d, want %d", r.Watermark(), size)
	}
}
