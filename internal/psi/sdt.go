package psi

import "github.com/lighterowl/dvbindex/internal/tsdemux"

const (
	TableIDSdtActual = 0x42
	PidSDT           = 0x11
)

// SdtService is one service entry of an SDT section. ProviderNameRaw and
// ServiceNameRaw are the undecoded text-field bytes from the
// service_descriptor (tag 0x48, EN 300 468 §6.2.33) — still
// encoding-selector-prefixed DVB strings, decoded by the text layer once a
// concrete TableStateMachine has something to attach a row to.
type SdtService struct {
	ServiceID           uint16
	ServiceType         byte
	RunningStatus       byte
	FreeCAMode          bool
	EITSchedule         bool
	EITPresentFollowing bool
	ProviderNameRaw     []byte
	ServiceNameRaw      []byte
	Descriptors         []Descriptor
}

// Sdt is a fully reassembled, CRC-validated Service Description Table
// (actual transport stream variant, table_id 0x42).
type Sdt struct {
	TSID        uint16
	NetworkID   uint16 // original_network_id
	Version     uint8
	CurrentNext bool
	Services    []SdtService
}

// ReplacesStored mirrors Pmt.ReplacesStored's (version, current_next) rule.
func (s *Sdt) ReplacesStored(stored *Sdt) bool {
	if stored == nil {
		return true
	}
	return s.Version != stored.Version || s.CurrentNext != stored.CurrentNext
}

// SdtDecoder reassembles SDT-actual sections on PID 0x11 for a specific
// transport_stream_id, as attached by the SDT demultiplexer once a PAT has
// supplied that ts_id. It implements tsdemux.SectionDecoder.
//
// libdvbpsi models this as two stages — a demux keyed on (table_id,
// table_id_extension) dispatching to a per-key decoder attached lazily.
// Go's first-class closures make the indirection unnecessary: one decoder,
// constructed with the ts_id already known, simply ignores sections that
// don't match.
type SdtDecoder struct {
	tsid  uint16
	asm   *sectionAssembler
	onSdt func(*Sdt) error
}

var _ tsdemux.SectionDecoder = (*SdtDecoder)(nil)

func NewSdtDecoder(tsid uint16, onSdt func(*Sdt) error) *SdtDecoder {
	d := &SdtDecoder{tsid: tsid, onSdt: onSdt}
	d.asm = newSectionAssembler(d.decode)
	return d
}

func (d *SdtDecoder) Push(pkt []byte) error {
	pusi, payload, ok := payloadOf(pkt)
	if !ok {
		return nil
	}
	return d.asm.push(pusi, payload)
}

func (d *SdtDecoder) Close() {}

func (d *SdtDecoder) decode(section []byte) error {
	if len(section) < 15 || section[0] != TableIDSdtActual {
		return nil
	}
	tsid := uint16(section[3])<<8 | uint16(section[4])
	if tsid != d.tsid {
		return nil
	}
	if !validSectionCRC(section) {
		return nil
	}

	version := (section[5] >> 1) & 0x1F
	currentNext := section[5]&0x01 != 0
	networkID := uint16(section[8])<<8 | uint16(section[9])

	sdt := &Sdt{TSID: tsid, NetworkID: networkID, Version: version, CurrentNext: currentNext}

	body := section[11 : len(section)-4]
	for len(body) >= 5 {
		svcID := uint16(body[0])<<8 | uint16(body[1])
		eitFlags := body[2]
		descLoopLen := int(uint16(body[3]&0x0F)<<8 | uint16(body[4]))
		if 5+descLoopLen > len(body) {
			break
		}
		descData := body[5 : 5+descLoopLen]

		svc := SdtService{
			ServiceID:           svcID,
			EITSchedule:         eitFlags&0x02 != 0,
			EITPresentFollowing: eitFlags&0x01 != 0,
			RunningStatus:       body[3] >> 5,
			FreeCAMode:          body[3]&0x10 != 0,
		}
		forEachDescriptor(descData, func(desc Descriptor) {
			svc.Descriptors = append(svc.Descriptors, desc)
			if desc.Tag == DescService {
				parseServiceDescriptorInto(&svc, desc.Data)
			}
		})
		sdt.Services = append(sdt.Services, svc)

		body = body[5+descLoopLen:]
	}

	return d.onSdt(sdt)
}

func parseServiceDescriptorInto(svc *SdtService, d []byte) {
	if len(d) < 2 {
		return
	}
	svc.ServiceType = d[0]
	provLen := int(d[1])
	if 2+provLen+1 > len(d) {
		return
	}
	svc.ProviderNameRaw = d[2 : 2+provLen]
	snOff := 2 + provLen
	snLen := int(d[snOff])
	snOff++
	if snOff+snLen > len(d) {
		return
	}
	svc.ServiceNameRaw = d[snOff : snOff+snLen]
}
