package psi

// Descriptor tags handled by the station/service/network metadata
// extraction, per EN 300 468 §6.2.
const (
	DescISO639Language  byte = 0x0A
	DescNetworkName     byte = 0x40
	DescServiceList     byte = 0x41
	DescTeletext        byte = 0x46
	DescService         byte = 0x48
	DescSubtitling      byte = 0x59
	DescVBITeletext     byte = 0x56
)

// Descriptor is one raw descriptor as it appears in a descriptor loop: a
// tag byte followed by its own length-prefixed payload.
type Descriptor struct {
	Tag  byte
	Data []byte
}

// forEachDescriptor walks a standard EN 300 468 descriptor_loop (repeated
// {tag, length, data} triplets filling the given bytes exactly) and calls
// fn for each one. Malformed trailing bytes (not enough left for a header,
// or a length running past the loop) stop iteration silently rather than
// erroring the whole section, tolerating stuffing at the end of
// descriptor loops.
func forEachDescriptor(data []byte, fn func(Descriptor)) {
	for len(data) >= 2 {
		tag, length := data[0], int(data[1])
		if 2+length > len(data) {
			return
		}
		fn(Descriptor{Tag: tag, Data: data[2 : 2+length]})
		data = data[2+length:]
	}
}

// LanguageDescriptor is one entry of an ISO_639_language_descriptor.
type LanguageDescriptor struct {
	Code      string // 3-character ISO 639-2 language code
	AudioType byte
}

func parseLanguageDescriptor(d Descriptor) []LanguageDescriptor {
	var out []LanguageDescriptor
	data := d.Data
	for len(data) >= 4 {
		out = append(out, LanguageDescriptor{
			Code:      string(data[0:3]),
			AudioType: data[3],
		})
		data = data[4:]
	}
	return out
}

// TeletextEntry is one entry of a teletext_descriptor (tag 0x46) or
// VBI_teletext_descriptor (tag 0x56) — EN 300 468 §6.2.43 gives both
// identical layout.
type TeletextEntry struct {
	Language       string
	TeletextType   byte
	MagazineNumber byte
	PageNumber     byte
}

// ParseTeletextDescriptor decodes a teletext or VBI-teletext descriptor's
// repeated {language(3), type<<3|magazine(1), page_number(1)} entries.
func ParseTeletextDescriptor(d Descriptor) []TeletextEntry {
	var out []TeletextEntry
	data := d.Data
	for len(data) >= 5 {
		out = append(out, TeletextEntry{
			Language:       string(data[0:3]),
			TeletextType:   data[3] >> 3,
			MagazineNumber: data[3] & 0x07,
			PageNumber:     data[4],
		})
		data = data[5:]
	}
	return out
}

// SubtitlingEntry is one entry of a subtitling_descriptor (tag 0x59), EN
// 300 468 §6.2.41.
type SubtitlingEntry struct {
	Language          string
	SubtitlingType    byte
	CompositionPageID uint16
	AncillaryPageID   uint16
}

// ParseSubtitlingDescriptor decodes a subtitling_descriptor's repeated
// {language(3), type(1), composition_page_id(2), ancillary_page_id(2)}
// entries.
func ParseSubtitlingDescriptor(d Descriptor) []SubtitlingEntry {
	var out []SubtitlingEntry
	data := d.Data
	for len(data) >= 8 {
		out = append(out, SubtitlingEntry{
			Language:          string(data[0:3]),
			SubtitlingType:    data[3],
			CompositionPageID: uint16(data[4])<<8 | uint16(data[5]),
			AncillaryPageID:   uint16(data[6])<<8 | uint16(data[7]),
		})
		data = data[8:]
	}
	return out
}

// ServiceListEntry is one entry of a service_list_descriptor (tag 0x41),
// EN 300 468 §6.2.35.
type ServiceListEntry struct {
	ServiceID   uint16
	ServiceType byte
}

// ParseServiceListDescriptor decodes a service_list_descriptor's repeated
// {service_id(2), service_type(1)} entries.
func ParseServiceListDescriptor(d Descriptor) []ServiceListEntry {
	var out []ServiceListEntry
	data := d.Data
	for len(data) >= 3 {
		out = append(out, ServiceListEntry{
			ServiceID:   uint16(data[0])<<8 | uint16(data[1]),
			ServiceType: data[2],
		})
		data = data[3:]
	}
	return out
}

// NetworkNameDescriptor decodes a network_name_descriptor's (tag 0x40) raw
// text field — the undecoded bytes, still encoding-selector-prefixed, for
// the text layer to convert.
func NetworkNameDescriptor(d Descriptor) []byte { return d.Data }
