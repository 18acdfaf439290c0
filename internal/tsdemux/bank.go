package tsdemux

// SectionDecoder is the decoder-state owned by one filter. It receives
// complete TS packets belonging to its PID and is torn down with Close;
// the teardown protocol is the same whether the decoder is a plain
// per-PID one (PAT, PMT) or a demultiplexed one keyed on
// (table_id, extension) like SDT.
type SectionDecoder interface {
	Push(pkt []byte) error
	Close()
}

// Key identifies a filter for attach idempotency: PID alone for PAT/PMT,
// plus (TableID, Extension) for demultiplexed filters such as SDT.
type Key struct {
	PID       uint16
	TableID   uint8
	Extension uint16
}

// Filter is a PID-scoped decoder-state registration.
type Filter struct {
	Key     Key
	Decoder SectionDecoder
}

// Bank is a pool of PID-filtered section decoders. It dispatches every
// pushed packet to every filter whose PID matches, and tolerates filters
// being attached while a dispatch is in progress: filters added mid-dispatch
// only observe subsequent packets.
type Bank struct {
	active      map[Key]*Filter
	staging     []*Filter
	dispatching bool
}

// NewBank returns an empty decoder bank.
func NewBank() *Bank {
	return &Bank{active: make(map[Key]*Filter)}
}

// Attach registers f. It is a no-op if a filter with the same Key is already
// attached. Returns true if f was newly registered.
func (b *Bank) Attach(f *Filter) bool {
	if _, ok := b.active[f.Key]; ok {
		return false
	}
	for _, s := range b.staging {
		if s.Key == f.Key {
			return false
		}
	}
	if b.dispatching {
		b.staging = append(b.staging, f)
	} else {
		b.active[f.Key] = f
	}
	return true
}

// Detach tears down and removes the filter registered under key, if any.
// No further callbacks from that filter occur after Detach returns.
func (b *Bank) Detach(key Key) {
	if f, ok := b.active[key]; ok {
		delete(b.active, key)
		f.Decoder.Close()
		return
	}
	for i, f := range b.staging {
		if f.Key == key {
			b.staging = append(b.staging[:i], b.staging[i+1:]...)
			f.Decoder.Close()
			return
		}
	}
}

// Push dispatches one TS packet to every matching filter. Packets with a
// bad sync byte or the null PID are dropped. The first error returned by a
// decoder is propagated to the caller after every currently-active filter
// for this packet has been considered; newly-staged filters merge into the
// active set once dispatch completes.
func (b *Bank) Push(pkt []byte) error {
	if len(pkt) != PacketSize || pkt[0] != SyncByte {
		return nil
	}
	pid := ExtractPID(pkt)
	if pid == NullPID {
		return nil
	}

	b.dispatching = true
	var firstErr error
	for _, f := range b.active {
		if f.Key.PID != pid {
			continue
		}
		if err := f.Decoder.Push(pkt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.dispatching = false

	if len(b.staging) > 0 {
		for _, f := range b.staging {
			b.active[f.Key] = f
		}
		b.staging = b.staging[:0]
	}
	return firstErr
}

// Len reports the number of currently active filters (staged attaches not
// yet merged are excluded). Used by tests.
func (b *Bank) Len() int { return len(b.active) }
