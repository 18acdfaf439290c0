package psi

import "github.com/lighterowl/dvbindex/internal/tsdemux"

// PatProgram is one program_number/PMT-PID association carried in a PAT
// section.
type PatProgram struct {
	ProgramNo uint16
	PmtPID    uint16
}

// Pat is a fully reassembled, CRC-validated Program Association Table.
type Pat struct {
	TSID        uint16
	Version     uint8
	CurrentNext bool
	Programs    []PatProgram
}

// Equal reports whether p and o are equivalent per the PAT dedup rule: all
// of (ts_id, version, current_next) match. Program contents are not
// compared — a version bump is assumed to be the only way the program list
// changes.
func (p *Pat) Equal(o *Pat) bool {
	if o == nil {
		return false
	}
	return p.TSID == o.TSID && p.Version == o.Version && p.CurrentNext == o.CurrentNext
}

// PatDecoder reassembles PAT sections arriving on PID 0 and reports each
// fully decoded table via its callback. An error returned by the callback
// propagates out of Push, stopping further decoding; the caller uses this
// to abandon the rest of the file. It implements tsdemux.SectionDecoder.
type PatDecoder struct {
	asm   *sectionAssembler
	onPat func(*Pat) error
}

var _ tsdemux.SectionDecoder = (*PatDecoder)(nil)

func NewPatDecoder(onPat func(*Pat) error) *PatDecoder {
	d := &PatDecoder{onPat: onPat}
	d.asm = newSectionAssembler(d.decode)
	return d
}

func (d *PatDecoder) Push(pkt []byte) error {
	pusi, payload, ok := payloadOf(pkt)
	if !ok {
		return nil
	}
	return d.asm.push(pusi, payload)
}

func (d *PatDecoder) Close() {}

func (d *PatDecoder) decode(section []byte) error {
	if len(section) < 12 || section[0] != 0x00 {
		return nil
	}
	if !validSectionCRC(section) {
		return nil
	}

	tsid := uint16(section[3])<<8 | uint16(section[4])
	version := (section[5] >> 1) & 0x1F
	currentNext := section[5]&0x01 != 0

	pat := &Pat{TSID: tsid, Version: version, CurrentNext: currentNext}

	body := section[8 : len(section)-4]
	for len(body) >= 4 {
		programNo := uint16(body[0])<<8 | uint16(body[1])
		pid := (uint16(body[2])<<8 | uint16(body[3])) & 0x1FFF
		if programNo != 0 { // program_number 0 names the NIT PID, not a program
			pat.Programs = append(pat.Programs, PatProgram{ProgramNo: programNo, PmtPID: pid})
		}
		body = body[4:]
	}

	return d.onPat(pat)
}
