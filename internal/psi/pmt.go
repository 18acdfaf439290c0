package psi

import "github.com/lighterowl/dvbindex/internal/tsdemux"

// ElementaryStream is one entry of a PMT's stream loop.
type ElementaryStream struct {
	StreamType  uint8
	PID         uint16
	Languages   []LanguageDescriptor
	Descriptors []Descriptor
}

// Pmt is a fully reassembled, CRC-validated Program Map Table.
type Pmt struct {
	ProgramNo   uint16
	Version     uint8
	CurrentNext bool
	PcrPID      uint16
	Streams     []ElementaryStream
}

// ReplacesStored reports whether pmt should replace a previously stored
// PMT for the same program, per the (version, current_next) dedup rule.
func (p *Pmt) ReplacesStored(stored *Pmt) bool {
	if stored == nil {
		return true
	}
	return p.Version != stored.Version || p.CurrentNext != stored.CurrentNext
}

// PmtDecoder reassembles PMT sections for one program_number, attached on
// that program's PMT PID as learned from the current PAT. It implements
// tsdemux.SectionDecoder.
type PmtDecoder struct {
	programNo uint16
	asm       *sectionAssembler
	onPmt     func(*Pmt) error
}

var _ tsdemux.SectionDecoder = (*PmtDecoder)(nil)

func NewPmtDecoder(programNo uint16, onPmt func(*Pmt) error) *PmtDecoder {
	d := &PmtDecoder{programNo: programNo, onPmt: onPmt}
	d.asm = newSectionAssembler(d.decode)
	return d
}

func (d *PmtDecoder) Push(pkt []byte) error {
	pusi, payload, ok := payloadOf(pkt)
	if !ok {
		return nil
	}
	return d.asm.push(pusi, payload)
}

func (d *PmtDecoder) Close() {}

func (d *PmtDecoder) decode(section []byte) error {
	if len(section) < 12 || section[0] != 0x02 {
		return nil
	}
	if !validSectionCRC(section) {
		return nil
	}

	programNo := uint16(section[3])<<8 | uint16(section[4])
	if programNo != d.programNo {
		return nil
	}
	version := (section[5] >> 1) & 0x1F
	currentNext := section[5]&0x01 != 0
	pcrPID := (uint16(section[8])<<8 | uint16(section[9])) & 0x1FFF
	programInfoLen := int(uint16(section[10]&0x0F)<<8 | uint16(section[11]))

	body := section[12+programInfoLen : len(section)-4]

	pmt := &Pmt{
		ProgramNo:   programNo,
		Version:     version,
		CurrentNext: currentNext,
		PcrPID:      pcrPID,
	}

	for len(body) >= 5 {
		streamType := body[0]
		pid := (uint16(body[1])<<8 | uint16(body[2])) & 0x1FFF
		esInfoLen := int(uint16(body[3]&0x0F)<<8 | uint16(body[4]))
		if 5+esInfoLen > len(body) {
			break
		}
		descData := body[5 : 5+esInfoLen]

		es := ElementaryStream{StreamType: streamType, PID: pid}
		forEachDescriptor(descData, func(desc Descriptor) {
			es.Descriptors = append(es.Descriptors, desc)
			if desc.Tag == DescISO639Language {
				es.Languages = append(es.Languages, parseLanguageDescriptor(desc)...)
			}
		})
		pmt.Streams = append(pmt.Streams, es)

		body = body[5+esInfoLen:]
	}

	return d.onPmt(pmt)
}
