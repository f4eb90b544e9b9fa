package v8value

import (
	"unicode/utf16"
	"unicode/utf8"
)

// utf16Encode converts a Go string (always valid UTF-8) to UTF-16 code
// units using the standard library encoder; Go strings cannot contain
// unpaired surrogates so this never needs WTF-8 handling.
func utf16Encode(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// wtf8ToUTF16 decodes WTF-8 bytes (UTF-8 extended to allow encoding
// unpaired surrogates, each as a 3-byte sequence per the WTF-8 spec)
// into UTF-16 code units, preserving unpaired surrogates instead of
// substituting U+FFFD for them the way utf8.DecodeRune would.
func wtf8ToUTF16(b []byte) []uint16 {
	var units []uint16
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			r := (uint32(c&0x1F) << 6) | uint32(b[i+1]&0x3F)
			units = append(units, uint16(r))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			r := (uint32(c&0x0F) << 12) | (uint32(b[i+1]&0x3F) << 6) | uint32(b[i+2]&0x3F)
			units = append(units, uint16(r))
			i += 3
		case c&0xF8 == 0xF0 && i+3 < len(b):
			r := (uint32(c&0x07) << 18) | (uint32(b[i+1]&0x3F) << 12) | (uint32(b[i+2]&0x3F) << 6) | uint32(b[i+3]&0x3F)
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
			i += 4
		default:
			// Malformed byte: emit the replacement character's code
			// unit and resync on the next byte.
			units = append(units, 0xFFFD)
			i++
		}
	}
	return units
}

// utf16DecodeLossy decodes UTF-16 code units to a Go string, mapping
// any unpaired surrogate to U+FFFD since Go strings cannot carry one.
func utf16DecodeLossy(units []uint16) string {
	return string(utf16.Decode(units))
}

// wtf8Encode encodes UTF-16 code units (which may include unpaired
// surrogates) into WTF-8 bytes.
func wtf8Encode(units []uint16) []byte {
	var buf []byte
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case utf16.IsSurrogate(rune(u)):
			if i+1 < len(units) {
				if r := utf16.DecodeRune(rune(u), rune(units[i+1])); r != utf8.RuneError {
					var tmp [4]byte
					n := utf8.EncodeRune(tmp[:], r)
					buf = append(buf, tmp[:n]...)
					i++
					continue
				}
			}
			// Unpaired surrogate: encode as its own 3-byte WTF-8 sequence.
			buf = append(buf, byte(0xE0|(u>>12)), byte(0x80|((u>>6)&0x3F)), byte(0x80|(u&0x3F)))
		default:
			var tmp [4]byte
			n := utf8.EncodeRune(tmp[:], rune(u))
			buf = append(buf, tmp[:n]...)
		}
	}
	return buf
}
