package psi

// sectionAssembler reassembles whole PSI sections (table_id through the
// trailing CRC) from a stream of TS packets belonging to a single PID,
// following the pointer_field convention of ISO/IEC 13818-1 §2.4.4.3: a
// payload_unit_start_indicator packet's first payload byte names how many
// further bytes complete the section already in progress, after which a
// fresh run of sections begins, possibly packed back-to-back and possibly
// spanning into later packets.
type sectionAssembler struct {
	buf       []byte
	onSection func(section []byte) error
}

func newSectionAssembler(onSection func(section []byte) error) *sectionAssembler {
	return &sectionAssembler{onSection: onSection}
}

// push feeds one TS packet payload (the bytes following the 4-byte TS
// header, with any adaptation field already stripped) along with whether
// this packet carried payload_unit_start_indicator.
func (a *sectionAssembler) push(pusi bool, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if !pusi {
		if len(a.buf) == 0 {
			return nil // continuation of a section we never saw the start of
		}
		a.buf = append(a.buf, payload...)
		return a.tryEmit()
	}

	ptr := int(payload[0])
	rest := payload[1:]
	if ptr > len(rest) {
		a.buf = a.buf[:0]
		return nil
	}
	tail, fresh := rest[:ptr], rest[ptr:]

	if len(a.buf) > 0 {
		a.buf = append(a.buf, tail...)
		if err := a.tryEmit(); err != nil {
			return err
		}
	}
	a.buf = a.buf[:0]
	a.buf = append(a.buf, fresh...)
	return a.tryEmit()
}

// tryEmit extracts every complete section currently buffered, in order,
// stopping at stuffing bytes (0xFF) or once what remains is an incomplete
// prefix of the next section.
func (a *sectionAssembler) tryEmit() error {
	for {
		if len(a.buf) == 0 || a.buf[0] == 0xFF {
			a.buf = a.buf[:0]
			return nil
		}
		if len(a.buf) < 3 {
			return nil
		}
		length := int(a.buf[1]&0x0F)<<8 | int(a.buf[2])
		total := 3 + length
		if len(a.buf) < total {
			return nil
		}
		section := make([]byte, total)
		copy(section, a.buf[:total])
		a.buf = append(a.buf[:0], a.buf[total:]...)
		if err := a.onSection(section); err != nil {
			return err
		}
	}
}

// payloadOf strips the 4-byte TS header and any adaptation field from pkt,
// reporting the PUSI flag and the remaining payload bytes. It returns ok =
// false for adaptation-field-only packets, which carry no section data.
func payloadOf(pkt []byte) (pusi bool, payload []byte, ok bool) {
	pusi = pkt[1]&0x40 != 0
	afc := (pkt[3] >> 4) & 0x3
	switch afc {
	case 0x1:
		return pusi, pkt[4:], true
	case 0x3:
		if len(pkt) < 5 {
			return pusi, nil, false
		}
		adaptLen := int(pkt[4])
		start := 5 + adaptLen
		if start > len(pkt) {
			return pusi, nil, false
		}
		return pusi, pkt[start:], true
	default:
		return pusi, nil, false
	}
}
