package psi

import "github.com/lighterowl/dvbindex/internal/tsdemux"

const (
	TableIDNitActual = 0x40
	PidNIT           = 0x10
)

// NitTransportStream is one transport_stream entry of a NIT section.
type NitTransportStream struct {
	TSID        uint16
	NetworkID   uint16 // original_network_id, as carried per-entry
	Descriptors []Descriptor
}

// Nit is a fully reassembled, CRC-validated Network Information Table
// (actual network variant, table_id 0x40).
type Nit struct {
	NetworkID        uint16
	Version          uint8
	CurrentNext      bool
	Descriptors      []Descriptor
	TransportStreams []NitTransportStream
}

// NitDecoder reassembles NIT-actual sections on PID 0x10. It implements
// tsdemux.SectionDecoder.
type NitDecoder struct {
	asm   *sectionAssembler
	onNit func(*Nit) error
}

var _ tsdemux.SectionDecoder = (*NitDecoder)(nil)

func NewNitDecoder(onNit func(*Nit) error) *NitDecoder {
	d := &NitDecoder{onNit: onNit}
	d.asm = newSectionAssembler(d.decode)
	return d
}

func (d *NitDecoder) Push(pkt []byte) error {
	pusi, payload, ok := payloadOf(pkt)
	if !ok {
		return nil
	}
	return d.asm.push(pusi, payload)
}

func (d *NitDecoder) Close() {}

func (d *NitDecoder) decode(section []byte) error {
	if len(section) < 16 || section[0] != TableIDNitActual {
		return nil
	}
	if !validSectionCRC(section) {
		return nil
	}

	networkID := uint16(section[3])<<8 | uint16(section[4])
	version := (section[5] >> 1) & 0x1F
	currentNext := section[5]&0x01 != 0
	netDescLen := int(uint16(section[8]&0x0F)<<8 | uint16(section[9]))

	nit := &Nit{NetworkID: networkID, Version: version, CurrentNext: currentNext}

	cursor := 10
	if cursor+netDescLen > len(section) {
		return nil
	}
	forEachDescriptor(section[cursor:cursor+netDescLen], func(desc Descriptor) {
		nit.Descriptors = append(nit.Descriptors, desc)
	})
	cursor += netDescLen

	if cursor+2 > len(section) {
		return nil
	}
	tsLoopLen := int(uint16(section[cursor]&0x0F)<<8 | uint16(section[cursor+1]))
	cursor += 2
	end := cursor + tsLoopLen
	if end > len(section)-4 {
		end = len(section) - 4
	}

	for cursor+6 <= end {
		tsid := uint16(section[cursor])<<8 | uint16(section[cursor+1])
		origNetID := uint16(section[cursor+2])<<8 | uint16(section[cursor+3])
		descLen := int(uint16(section[cursor+4]&0x0F)<<8 | uint16(section[cursor+5]))
		cursor += 6
		if cursor+descLen > end {
			break
		}
		ts := NitTransportStream{TSID: tsid, NetworkID: origNetID}
		forEachDescriptor(section[cursor:cursor+descLen], func(desc Descriptor) {
			ts.Descriptors = append(ts.Descriptors, desc)
		})
		nit.TransportStreams = append(nit.TransportStreams, ts)
		cursor += descLen
	}

	return d.onNit(nit)
}
