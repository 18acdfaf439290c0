package dvbtext

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// iso6937GR maps the GR area (0xA0-0xFF) of ISO/IEC 6937, the default DVB
// text encoding, to Unicode. Entries left at 0 are positions the standard
// leaves unassigned and are treated as IllegalSequence. The combining
// diacritic bytes 0xC1-0xCF live in iso6937Combining instead and never
// reach this table.
//
// 0xA4 is the one entry DVB overrides: EN 300 468 repurposes the dollar
// sign position for the Euro sign.
var iso6937GR = [96]rune{
	0x00: 0x00A0, // NBSP
	0x01: 0x00A1, // ¡
	0x02: 0x00A2, // ¢
	0x03: 0x00A3, // £
	0x04: 0x20AC, // € (DVB override)
	0x05: 0x00A5, // ¥
	0x07: 0x00A7, // §
	0x08: 0x00A4, // ¤
	0x09: 0x2018, // ‘
	0x0A: 0x201C, // “
	0x0B: 0x00AB, // «
	0x0C: 0x2190, // ←
	0x0D: 0x2191, // ↑
	0x0E: 0x2192, // →
	0x0F: 0x2193, // ↓
	0x10: 0x00B0, // °
	0x11: 0x00B1, // ±
	0x12: 0x00B2, // ²
	0x13: 0x00B3, // ³
	0x14: 0x00D7, // ×
	0x15: 0x00B5, // µ
	0x16: 0x00B6, // ¶
	0x17: 0x00B7, // ·
	0x18: 0x00F7, // ÷
	0x19: 0x2019, // ’
	0x1A: 0x201D, // ”
	0x1B: 0x00BB, // »
	0x1C: 0x00BC, // ¼
	0x1D: 0x00BD, // ½
	0x1E: 0x00BE, // ¾
	0x1F: 0x00BF, // ¿
	0x30: 0x2015, // ―
	0x31: 0x00B9, // ¹
	0x32: 0x00AE, // ®
	0x33: 0x00A9, // ©
	0x34: 0x2122, // ™
	0x35: 0x266A, // ♪
	0x36: 0x00AC, // ¬
	0x37: 0x00A6, // ¦
	0x3C: 0x215B, // ⅛
	0x3D: 0x215C, // ⅜
	0x3E: 0x215D, // ⅝
	0x3F: 0x215E, // ⅞
	0x40: 0x2126, // Ω
	0x41: 0x00C6, // Æ
	0x42: 0x0110, // Đ
	0x43: 0x00AA, // ª
	0x44: 0x0126, // Ħ
	0x46: 0x0132, // Ĳ
	0x47: 0x013F, // Ŀ
	0x48: 0x0141, // Ł
	0x49: 0x00D8, // Ø
	0x4A: 0x0152, // Œ
	0x4B: 0x00BA, // º
	0x4C: 0x00DE, // Þ
	0x4D: 0x0166, // Ŧ
	0x4E: 0x014A, // Ŋ
	0x4F: 0x0149, // ŉ
	0x50: 0x0138, // ĸ
	0x51: 0x00E6, // æ
	0x52: 0x0111, // đ
	0x53: 0x00F0, // ð
	0x54: 0x0127, // ħ
	0x55: 0x0131, // ı
	0x56: 0x0133, // ĳ
	0x57: 0x0140, // ŀ
	0x58: 0x0142, // ł
	0x59: 0x00F8, // ø
	0x5A: 0x0153, // œ
	0x5B: 0x00DF, // ß
	0x5C: 0x00FE, // þ
	0x5D: 0x0167, // ŧ
	0x5E: 0x014B, // ŋ
	0x5F: 0x00AD, // soft hyphen
}

// iso6937Combining maps the non-spacing diacritic bytes 0xC1-0xCF to the
// Unicode combining mark that, appended after the following base letter and
// run through NFC normalization, reproduces the precomposed accented
// character where one exists in Unicode (and a legal decomposed sequence
// otherwise). 0xC9 and 0xCC are unassigned in ISO 6937.
var iso6937Combining = map[byte]rune{
	0xC1: 0x0300, // grave
	0xC2: 0x0301, // acute
	0xC3: 0x0302, // circumflex
	0xC4: 0x0303, // tilde
	0xC5: 0x0304, // macron
	0xC6: 0x0306, // breve
	0xC7: 0x0307, // dot above
	0xC8: 0x0308, // diaeresis
	0xCA: 0x030A, // ring above
	0xCB: 0x0327, // cedilla
	0xCD: 0x030B, // double acute
	0xCE: 0x0328, // ogonek
	0xCF: 0x030C, // caron
}

func decodeISO6937(data []byte) ([]byte, error) {
	var out []byte
	var pendingMark rune
	havePending := false

	flushBase := func(base rune) {
		if havePending {
			var buf [8]byte
			n := utf8.EncodeRune(buf[:4], base)
			n += utf8.EncodeRune(buf[n:n+4], pendingMark)
			out = append(out, norm.NFC.Bytes(buf[:n])...)
			havePending = false
			return
		}
		out = utf8.AppendRune(out, base)
	}

	for _, b := range data {
		if mark, ok := iso6937Combining[b]; ok {
			if havePending {
				// Two combining marks in a row with no base in between:
				// emit the previous one standalone (best-effort) and
				// start tracking the new one.
				flushBase(0xFFFD)
			}
			pendingMark = mark
			havePending = true
			continue
		}

		switch {
		case b < 0x80:
			flushBase(rune(b))
		case b >= 0xA0:
			r := iso6937GR[b-0xA0]
			if r == 0 {
				return nil, &IllegalSequence{Value: uint32(b)}
			}
			flushBase(r)
		default:
			return nil, &IllegalSequence{Value: uint32(b)}
		}
	}
	if havePending {
		flushBase(0xFFFD)
	}
	return out, nil
}
