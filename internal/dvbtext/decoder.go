// Package dvbtext converts DVB text fields — byte strings carrying an
// in-band encoding-selector byte per EN 300 468 Annex A — to UTF-8.
package dvbtext

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

var iso8859ByIndex = [16]encoding.Encoding{
	1:  charmap.ISO8859_1,
	2:  charmap.ISO8859_2,
	3:  charmap.ISO8859_3,
	4:  charmap.ISO8859_4,
	5:  charmap.ISO8859_5,
	6:  charmap.ISO8859_6,
	7:  charmap.ISO8859_7,
	8:  charmap.ISO8859_8,
	9:  charmap.ISO8859_9,
	10: charmap.ISO8859_10,
	11: charmap.Windows874, // superset of ISO 8859-11 (Thai)
	12: nil,                // reserved
	13: charmap.ISO8859_13,
	14: charmap.ISO8859_14,
	15: charmap.ISO8859_15,
}

// Decode converts one DVB text field to UTF-8 per the encoding-selector
// dispatch table of EN 300 468 Annex A. An empty input or any decode
// failure returns a DecodeError (or a more specific *IllegalSequence /
// *IncompleteSequence / *UnsupportedEncoding), which the caller binds to
// NULL for the corresponding output field.
func Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty input"}
	}

	b0 := data[0]
	switch {
	case b0 >= 0x20:
		return decodeISO6937(data)
	case b0 >= 0x01 && b0 <= 0x0B:
		enc := iso8859ByIndex[b0+4]
		if enc == nil {
			return nil, &UnsupportedEncoding{Selector: b0}
		}
		return decodeWithEncoding(enc, data[1:])
	case b0 == 0x10:
		if len(data) < 3 || data[1] != 0 {
			return nil, &DecodeError{Reason: "malformed extended selector"}
		}
		idx := data[2]
		if idx < 0x01 || idx > 0x0F {
			return nil, &UnsupportedEncoding{Selector: b0}
		}
		enc := iso8859ByIndex[idx]
		if enc == nil {
			return nil, &UnsupportedEncoding{Selector: b0}
		}
		return decodeWithEncoding(enc, data[3:])
	case b0 == 0x11:
		return decodeUCS2(data[1:])
	case b0 == 0x12:
		return decodeKSX1001(data[1:])
	case b0 == 0x13:
		return decodeWithEncoding(simplifiedchinese.GB18030, data[1:])
	case b0 == 0x14:
		return decodeWithEncoding(traditionalchinese.Big5, data[1:])
	case b0 == 0x15:
		if !utf8.Valid(data[1:]) {
			return nil, &IllegalSequence{}
		}
		return append([]byte(nil), data[1:]...), nil
	default:
		return nil, &UnsupportedEncoding{Selector: b0}
	}
}

func decodeWithEncoding(enc encoding.Encoding, payload []byte) ([]byte, error) {
	out, err := enc.NewDecoder().Bytes(payload)
	if err != nil {
		return nil, &IllegalSequence{}
	}
	return out, nil
}

// ucs2Decoder is shared across calls; golang.org/x/text decoders are safe
// for concurrent, independent use via NewDecoder.
var ucs2Decoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

func decodeUCS2(payload []byte) ([]byte, error) {
	if len(payload)%2 != 0 {
		return nil, &IncompleteSequence{}
	}
	out, err := ucs2Decoder.NewDecoder().Bytes(payload)
	if err != nil {
		return nil, &IllegalSequence{}
	}
	return out, nil
}

// decodeKSX1001 treats the payload as the ISO-2022 form of KS X 1001 (each
// byte in 0x21-0x7E) and bridges it to golang.org/x/text's EUC-KR decoder
// by setting the high bit on each byte, since EUC-KR's GR-shifted encoding
// addresses the identical 94x94 matrix.
func decodeKSX1001(payload []byte) ([]byte, error) {
	if len(payload)%2 != 0 {
		return nil, &IncompleteSequence{}
	}
	shifted := make([]byte, len(payload))
	for i, b := range payload {
		shifted[i] = b | 0x80
	}
	out, err := korean.EUCKR.NewDecoder().Bytes(shifted)
	if err != nil {
		return nil, &IllegalSequence{}
	}
	return out, nil
}
