package tsdemux

import "testing"

type recordingDecoder struct {
	pushed [][]byte
	closed bool
}

func (d *recordingDecoder) Push(pkt []byte) error {
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	d.pushed = append(d.pushed, cp)
	return nil
}
func (d *recordingDecoder) Close() { d.closed = true }

func packetFor(pid uint16, fill byte) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = byte(pid >> 8 & 0x1F)
	pkt[2] = byte(pid)
	pkt[4] = fill
	return pkt
}

// TestDispatchFidelity checks that a filter sees exactly the
// subsequence of input packets matching its PID, in order.
func TestDispatchFidelity(t *testing.T) {
	bank := NewBank()
	pat := &recordingDecoder{}
	other := &recordingDecoder{}
	bank.Attach(&Filter{Key: Key{PID: 0}, Decoder: pat})
	bank.Attach(&Filter{Key: Key{PID: 0x20}, Decoder: other})

	seq := []struct {
		pid  uint16
		fill byte
	}{{0, 1}, {0x20, 2}, {0, 3}, {0x30, 4}, {0, 5}}
	for _, s := range seq {
		if err := bank.Push(packetFor(s.pid, s.fill)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	want := []byte{1, 3, 5}
	if len(pat.pushed) != len(want) {
		t.Fatalf("pat got %d packets, want %d", len(pat.pushed), len(want))
	}
	for i, w := range want {
		if pat.pushed[i][4] != w {
			t.Errorf("pat.pushed[%d][4] = %d, want %d", i, pat.pushed[i][4], w)
		}
	}
	if len(other.pushed) != 1 || other.pushed[0][4] != 2 {
		t.Errorf("other.pushed = %v, want one packet with fill 2", other.pushed)
	}
}

func TestBank_rejectsBadSyncAndNullPID(t *testing.T) {
	bank := NewBank()
	dec := &recordingDecoder{}
	bank.Attach(&Filter{Key: Key{PID: 0x100}, Decoder: dec})

	bad := packetFor(0x100, 9)
	bad[0] = 0x00
	if err := bank.Push(bad); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := bank.Push(packetFor(NullPID, 9)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(dec.pushed) != 0 {
		t.Fatalf("expected no dispatch for bad sync / null PID, got %d", len(dec.pushed))
	}
}

// TestAttachDuringDispatch checks that a filter attached from within a
// callback invoked mid-dispatch does not observe the packet currently
// being dispatched, only subsequent ones.
func TestAttachDuringDispatch(t *testing.T) {
	bank := NewBank()
	late := &recordingDecoder{}
	trigger := &triggeringDecoder{bank: bank, late: late}
	bank.Attach(&Filter{Key: Key{PID: 0}, Decoder: trigger})

	bank.Push(packetFor(0, 1)) // triggers attach of `late` on PID 0x20
	if bank.Len() != 2 {
		t.Fatalf("bank.Len() = %d, want 2 after merge", bank.Len())
	}
	bank.Push(packetFor(0x20, 2))
	bank.Push(packetFor(0x20, 3))

	if len(late.pushed) != 2 {
		t.Fatalf("late filter saw %d packets, want 2 (never the triggering one)", len(late.pushed))
	}
}

type triggeringDecoder struct {
	bank *Bank
	late *recordingDecoder
	done bool
}

func (d *triggeringDecoder) Push(pkt []byte) error {
	if !d.done {
		d.done = true
		d.bank.Attach(&Filter{Key: Key{PID: 0x20}, Decoder: d.late})
	}
	return nil
}
func (d *triggeringDecoder) Close() {}

func TestDetach(t *testing.T) {
	bank := NewBank()
	dec := &recordingDecoder{}
	bank.Attach(&Filter{Key: Key{PID: 0x10}, Decoder: dec})
	bank.Detach(Key{PID: 0x10})
	if !dec.closed {
		t.Fatal("Detach should have closed the decoder")
	}
	bank.Push(packetFor(0x10, 1))
	if len(dec.pushed) != 0 {
		t.Fatal("detached decoder should not receive further packets")
	}
}
