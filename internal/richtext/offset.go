package richtext

import (
	"unicode/utf16"
	"unicode/utf8"
)

// Range is a half-open span of text measured in UTF-16 code units.
type Range struct {
	Location int `json:"location"`
	Length   int `json:"length"`
}

// End returns the offset one past the last unit of r.
func (r Range) End() int {
	return r.Location + r.Length
}

// Intersects reports whether r and o share at least one code unit. An empty
// range intersects nothing.
func (r Range) Intersects(o Range) bool {
	if r.Length == 0 || o.Length == 0 {
		return false
	}
	return r.Location < o.End() && o.Location < r.End()
}

// ByteRange is a half-open span of text measured in UTF-8 bytes.
type ByteRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// ToByteRange converts a UTF-16 range of text into a byte range. It fails if
// either boundary falls inside a surrogate pair or outside the text.
func ToByteRange(text string, r Range) (ByteRange, bool) {
	if r.Location < 0 || r.Length < 0 {
		return ByteRange{}, false
	}
	start, ok := byteOffset(text, r.Location)
	if !ok {
		return ByteRange{}, false
	}
	end, ok := byteOffset(text, r.End())
	if !ok {
		return ByteRange{}, false
	}
	return ByteRange{Start: start, End: end}, true
}

// ToUTF16Range converts a byte range of text into a UTF-16 range. It fails if
// either boundary falls inside a multi-byte sequence or outside the text.
func ToUTF16Range(text string, br ByteRange) (Range, bool) {
	if br.Start < 0 || br.End < br.Start || br.End > len(text) {
		return Range{}, false
	}
	start, ok := unitOffset(text, br.Start)
	if !ok {
		return Range{}, false
	}
	end, ok := unitOffset(text, br.End)
	if !ok {
		return Range{}, false
	}
	return Range{Location: start, Length: end - start}, true
}

func byteOffset(text string, units int) (int, bool) {
	u := 0
	for i, r := range text {
		if u == units {
			return i, true
		}
		w := runeUnits(r)
		if u+w > units {
			// units points at the low half of a surrogate pair
			return 0, false
		}
		u += w
	}
	if u == units {
		return len(text), true
	}
	return 0, false
}

func unitOffset(text string, bytes int) (int, bool) {
	u := 0
	for i, r := range text {
		if i == bytes {
			return u, true
		}
		if i > bytes {
			return 0, false
		}
		u += runeUnits(r)
	}
	if bytes == len(text) {
		return u, true
	}
	return 0, false
}

// splitsPair reports whether offset pos sits between a high and a low
// surrogate in units.
func splitsPair(units []uint16, pos int) bool {
	if pos <= 0 || pos >= len(units) {
		return false
	}
	hi, lo := units[pos-1], units[pos]
	return hi >= 0xD800 && hi <= 0xDBFF && lo >= 0xDC00 && lo <= 0xDFFF
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// encodeUTF16 converts s to UTF-16 code units.
func encodeUTF16(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		units = utf16.AppendRune(units, r)
	}
	return units
}

// decodeUTF16 converts code units back to a string. Unpaired surrogates
// become U+FFFD, which is also one code unit, so offsets are preserved.
func decodeUTF16(units []uint16) string {
	buf := make([]byte, 0, len(units))
	for _, r := range utf16.Decode(units) {
		buf = utf8.AppendRune(buf, r)
	}
	return string(buf)
}
