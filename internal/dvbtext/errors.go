package dvbtext

// DecodeError is returned when a DVB text field cannot be converted to
// UTF-8 at all — empty input, or a failure from the underlying encoding
// that the caller should treat by binding NULL for the field.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "dvbtext: " + e.Reason }

// UnsupportedEncoding is returned when the first byte names an
// encoding-selector value this decoder does not implement.
type UnsupportedEncoding struct {
	Selector byte
}

func (e *UnsupportedEncoding) Error() string {
	return "dvbtext: unsupported encoding selector"
}

// IncompleteSequence is returned by the fixed-width decoders (UCS-2, KS X
// 1001) when the input ends mid-codepoint.
type IncompleteSequence struct{}

func (e *IncompleteSequence) Error() string { return "dvbtext: incomplete multi-byte sequence" }

// IllegalSequence is returned when a byte or byte pair has no mapping in
// the selected encoding's repertoire.
type IllegalSequence struct {
	Value uint32
}

func (e *IllegalSequence) Error() string { return "dvbtext: illegal sequence" }
