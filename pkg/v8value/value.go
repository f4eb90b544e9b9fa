// Package v8value models the object graph produced by parsing a V8
// structured-clone byte stream (and consumed when serializing or
// rendering one): [Value], [StringValue], [HeapValue] and the
// [Heap]/[HeapReference]/[HeapBuilder] machinery used to represent
// cycles and shared references without actually aliasing Go pointers
// into a recursive structure.
package v8value

import (
	"fmt"
	"math/big"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindI32
	KindU32
	KindDouble
	KindBigInt
	KindString
	KindHeapRef
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindI32:
		return "i32"
	case KindU32:
		return "u32"
	case KindDouble:
		return "double"
	case KindBigInt:
		return "bigint"
	case KindString:
		return "string"
	case KindHeapRef:
		return "heap-ref"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a JS value that either stands on its own (primitives) or
// points into a Heap (anything reference-identity-bearing: objects,
// arrays, maps, sets, buffers, dates, regexps, errors, boxed
// primitives).
type Value struct {
	kind Kind
	b    bool
	i32  int32
	u32  uint32
	f64  float64
	big  *big.Int
	str  StringValue
	ref  HeapReference
}

func Undefined() Value                 { return Value{kind: KindUndefined} }
func Null() Value                      { return Value{kind: KindNull} }
func Bool(b bool) Value                { return Value{kind: KindBool, b: b} }
func I32(n int32) Value                { return Value{kind: KindI32, i32: n} }
func U32(n uint32) Value               { return Value{kind: KindU32, u32: n} }
func Double(f float64) Value           { return Value{kind: KindDouble, f64: f} }
func BigIntValue(n *big.Int) Value     { return Value{kind: KindBigInt, big: n} }
func StringVal(s StringValue) Value    { return Value{kind: KindString, str: s} }
func HeapRef(ref HeapReference) Value  { return Value{kind: KindHeapRef, ref: ref} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) I32() (int32, bool)             { return v.i32, v.kind == KindI32 }
func (v Value) U32() (uint32, bool)            { return v.u32, v.kind == KindU32 }
func (v Value) Double() (float64, bool)        { return v.f64, v.kind == KindDouble }
func (v Value) BigInt() (*big.Int, bool)       { return v.big, v.kind == KindBigInt }
func (v Value) String() (StringValue, bool)    { return v.str, v.kind == KindString }
func (v Value) HeapRef() (HeapReference, bool) { return v.ref, v.kind == KindHeapRef }

// Number reports whether v is numeric (I32/U32/Double) and its value
// as a float64, matching the JS notion that these are all "number".
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindI32:
		return float64(v.i32), true
	case KindU32:
		return float64(v.u32), true
	case KindDouble:
		return v.f64, true
	default:
		return 0, false
	}
}

func (v Value) GoString() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindI32:
		return fmt.Sprintf("%d", v.i32)
	case KindU32:
		return fmt.Sprintf("%d", v.u32)
	case KindDouble:
		return fmt.Sprintf("%g", v.f64)
	case KindBigInt:
		return v.big.String() + "n"
	case KindString:
		return fmt.Sprintf("%q", v.str.GoString())
	case KindHeapRef:
		return fmt.Sprintf("*%d", v.ref.index)
	default:
		return "<invalid Value>"
	}
}

// StringEncoding names the physical representation a StringValue was
// parsed from (or will be serialized as). V8 picks the narrowest
// encoding that fits the character set; round-tripping must preserve
// the original encoding bit-for-bit, not just the logical text, because
// e.g. a OneByteString containing only ASCII and a TwoByteString
// containing the same characters serialize to different bytes.
type StringEncoding uint8

const (
	// EncodingWtf8 corresponds to the legacy Utf8String tag: raw bytes
	// that are well-formed UTF-8 except that they may also encode
	// unpaired surrogates (WTF-8), which plain UTF-8 forbids.
	EncodingWtf8 StringEncoding = iota
	// EncodingOneByte corresponds to OneByteString: each byte is a
	// Latin-1 code point (0x00-0xFF).
	EncodingOneByte
	// EncodingTwoByte corresponds to TwoByteString: UTF-16LE code
	// units, including unpaired surrogates, stored without pairing.
	EncodingTwoByte
)

// StringValue holds a JS string in whichever physical encoding it was
// read in (or will be written in), per [StringEncoding]. Two
// StringValues with different encodings can still be logically equal;
// use [StringValue.UTF16] to project to a comparable form and [Equal]
// to compare it against another StringValue.
type StringValue struct {
	encoding StringEncoding
	wtf8     []byte
	oneByte  []byte
	twoByte  []uint16
}

// Wtf8String builds a StringValue from raw WTF-8 bytes.
func Wtf8String(b []byte) StringValue { return StringValue{encoding: EncodingWtf8, wtf8: b} }

// OneByteString builds a StringValue from raw Latin-1 bytes.
func OneByteString(b []byte) StringValue { return StringValue{encoding: EncodingOneByte, oneByte: b} }

// TwoByteString builds a StringValue from raw UTF-16LE code units.
func TwoByteString(u []uint16) StringValue {
	return StringValue{encoding: EncodingTwoByte, twoByte: u}
}

// NewString picks the narrowest encoding that can represent s losslessly:
// OneByte if every rune is <= 0xFF, TwoByte otherwise. It never produces
// EncodingWtf8 — that encoding only arises from parsing a legacy
// Utf8String tag.
func NewString(s string) StringValue {
	units := utf16Encode(s)
	allLatin1 := true
	for _, u := range units {
		if u > 0xFF {
			allLatin1 = false
			break
		}
	}
	if allLatin1 {
		b := make([]byte, len(units))
		for i, u := range units {
			b[i] = byte(u)
		}
		return OneByteString(b)
	}
	return TwoByteString(units)
}

func (s StringValue) Encoding() StringEncoding { return s.encoding }

// OneByteBytes returns the raw Latin-1 bytes; valid only when Encoding
// is EncodingOneByte.
func (s StringValue) OneByteBytes() []byte { return s.oneByte }

// TwoByteUnits returns the raw UTF-16LE code units; valid only when
// Encoding is EncodingTwoByte.
func (s StringValue) TwoByteUnits() []uint16 { return s.twoByte }

// Wtf8Bytes returns the raw WTF-8 bytes; valid only when Encoding is
// EncodingWtf8.
func (s StringValue) Wtf8Bytes() []byte { return s.wtf8 }

// UTF16 projects the string to a sequence of UTF-16 code units
// regardless of physical encoding, for structural comparison and for
// the printer's rendering logic.
func (s StringValue) UTF16() []uint16 {
	switch s.encoding {
	case EncodingOneByte:
		u := make([]uint16, len(s.oneByte))
		for i, b := range s.oneByte {
			u[i] = uint16(b)
		}
		return u
	case EncodingTwoByte:
		return s.twoByte
	case EncodingWtf8:
		return wtf8ToUTF16(s.wtf8)
	default:
		return nil
	}
}

// GoString renders the string as a Go string, substituting the Unicode
// replacement character for any unpaired surrogate. It is meant for
// debugging and CLI display, not for anything that must round-trip.
func (s StringValue) GoString() string {
	return utf16DecodeLossy(s.UTF16())
}

// Len returns the number of UTF-16 code units in the string.
func (s StringValue) Len() int {
	switch s.encoding {
	case EncodingOneByte:
		return len(s.oneByte)
	case EncodingTwoByte:
		return len(s.twoByte)
	case EncodingWtf8:
		return len(wtf8ToUTF16(s.wtf8))
	default:
		return 0
	}
}
