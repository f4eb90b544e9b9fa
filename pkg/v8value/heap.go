package v8value

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// HeapReference is a lightweight, copyable handle into a Heap: an
// index plus a random heap-identity tag. The tag exists so a
// HeapReference minted by one Heap can never be silently confused with
// one from another Heap that happens to share an index — dereferencing
// a reference against the wrong Heap panics instead of returning
// whatever unrelated value happens to live at that index.
type HeapReference struct {
	heapID uint64
	index  int
}

// Index returns the reference's slot in its Heap.
func (r HeapReference) Index() int { return r.index }

func (r HeapReference) String() string { return fmt.Sprintf("*%d", r.index) }

// HeapValue is a JS value with reference identity: anything that can
// be the target of a back-reference or participate in a cycle.
type HeapValue struct {
	kind HeapValueKind

	// Object, SparseArray, DenseArray share a property-list shape.
	props      []Property
	elements   []Value // DenseArray dense elements; SparseArray index->value pairs live in props
	sparseLen  uint32  // SparseArray declared length

	boolVal   bool
	numVal    float64
	bigVal    Value // BigIntObject payload (kind KindBigInt)
	strVal    StringValue

	mapEntries []MapEntry
	setValues  []Value

	buffer ArrayBuffer

	view ArrayBufferView

	regexp RegExp

	date Date

	err Error
}

// HeapValueKind discriminates HeapValue variants.
type HeapValueKind uint8

const (
	KindBooleanObject HeapValueKind = iota
	KindNumberObject
	KindBigIntObject
	KindStringObject
	KindObject
	KindSparseArray
	KindDenseArray
	KindMap
	KindSet
	KindArrayBuffer
	KindArrayBufferView
	KindRegExp
	KindDate
	KindError
)

func (k HeapValueKind) String() string {
	names := [...]string{
		"BooleanObject", "NumberObject", "BigIntObject", "StringObject",
		"Object", "SparseArray", "DenseArray", "Map", "Set",
		"ArrayBuffer", "ArrayBufferView", "RegExp", "Date", "Error",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("HeapValueKind(%d)", uint8(k))
}

func (h HeapValue) Kind() HeapValueKind { return h.kind }

// Property is a single key/value pair in an Object, SparseArray's
// named-property tail, or DenseArray's named-property tail.
type Property struct {
	Key   PropertyKey
	Value Value
}

// MapEntry is a single Map key/value pair, in insertion order.
type MapEntry struct {
	Key   Value
	Value Value
}

func BooleanObject(b bool) HeapValue { return HeapValue{kind: KindBooleanObject, boolVal: b} }
func NumberObject(f float64) HeapValue { return HeapValue{kind: KindNumberObject, numVal: f} }
func BigIntObject(v Value) HeapValue   { return HeapValue{kind: KindBigIntObject, bigVal: v} }
func StringObject(s StringValue) HeapValue {
	return HeapValue{kind: KindStringObject, strVal: s}
}

func Object(props []Property) HeapValue {
	return HeapValue{kind: KindObject, props: props}
}

// DenseArray holds `elements` at indices [0,len(elements)) plus any
// additional named properties in `props` (e.g. an array with both
// numeric elements and a custom property like `arr.foo = 1`).
func DenseArray(elements []Value, props []Property) HeapValue {
	return HeapValue{kind: KindDenseArray, elements: elements, props: props}
}

// SparseArray holds a declared `length` and an ordered set of
// index/value and name/value pairs in `props`; indices not present in
// props are holes.
func SparseArray(length uint32, props []Property) HeapValue {
	return HeapValue{kind: KindSparseArray, sparseLen: length, props: props}
}

func Map(entries []MapEntry) HeapValue { return HeapValue{kind: KindMap, mapEntries: entries} }
func Set(values []Value) HeapValue     { return HeapValue{kind: KindSet, setValues: values} }

func NewArrayBuffer(buf ArrayBuffer) HeapValue { return HeapValue{kind: KindArrayBuffer, buffer: buf} }
func NewArrayBufferView(v ArrayBufferView) HeapValue {
	return HeapValue{kind: KindArrayBufferView, view: v}
}
func NewRegExp(r RegExp) HeapValue { return HeapValue{kind: KindRegExp, regexp: r} }

// NewDate stores NaN for a NaN or out-of-range time value, and
// otherwise the value truncated toward zero (with -0 stored as +0).
func NewDate(d Date) HeapValue {
	ms := d.MillisSinceEpoch
	if ms != ms || ms < -MaxTimeInMS || ms > MaxTimeInMS {
		ms = math.NaN()
	} else if ms = math.Trunc(ms); ms == 0 {
		ms = 0
	}
	return HeapValue{kind: KindDate, date: Date{MillisSinceEpoch: ms}}
}
func NewError(e Error) HeapValue   { return HeapValue{kind: KindError, err: e} }

func (h HeapValue) AsBooleanObject() bool      { return h.boolVal }
func (h HeapValue) AsNumberObject() float64    { return h.numVal }
func (h HeapValue) AsBigIntObject() Value      { return h.bigVal }
func (h HeapValue) AsStringObject() StringValue { return h.strVal }
func (h HeapValue) Properties() []Property     { return h.props }
func (h HeapValue) Elements() []Value          { return h.elements }
func (h HeapValue) SparseLength() uint32       { return h.sparseLen }
func (h HeapValue) MapEntries() []MapEntry     { return h.mapEntries }
func (h HeapValue) SetValues() []Value         { return h.setValues }
func (h HeapValue) ArrayBuffer() ArrayBuffer   { return h.buffer }
func (h HeapValue) ArrayBufferView() ArrayBufferView { return h.view }
func (h HeapValue) RegExp() RegExp             { return h.regexp }
func (h HeapValue) Date() Date                 { return h.date }
func (h HeapValue) Error() Error               { return h.err }

// ArrayBuffer carries a buffer's bytes and, if it is a resizable
// ("growable") ArrayBuffer, the maximum byte length it may grow to.
type ArrayBuffer struct {
	Data          []byte
	MaxByteLength *uint32 // nil for a plain (non-resizable) ArrayBuffer
}

// ArrayBufferViewKind names the element type of a typed-array view, or
// DataView for an untyped view.
type ArrayBufferViewKind uint8

const (
	ViewInt8Array ArrayBufferViewKind = iota
	ViewUint8Array
	ViewUint8ClampedArray
	ViewInt16Array
	ViewUint16Array
	ViewInt32Array
	ViewUint32Array
	ViewFloat32Array
	ViewFloat64Array
	ViewBigInt64Array
	ViewBigUint64Array
	ViewDataView
)

// ArrayBufferView is a typed view into a HeapReference-pointed-to
// ArrayBuffer.
type ArrayBufferView struct {
	Kind               ArrayBufferViewKind
	Buffer             HeapReference
	ByteOffset         uint32
	Length             uint32 // element count (or byte length for DataView)
	IsLengthTracking   bool   // tracks a resizable buffer's current length
	IsBackedByRAB      bool
}

// RegExpFlags is a bit-set of JS RegExp flags, in the bit layout this
// library's wire encoder/decoder use. String renders them in the fixed
// order g i m y u s d v.
type RegExpFlags uint16

const (
	FlagGlobal     RegExpFlags = 1 << 0
	FlagIgnoreCase RegExpFlags = 1 << 1
	FlagMultiline  RegExpFlags = 1 << 2
	FlagSticky     RegExpFlags = 1 << 3
	FlagUnicode    RegExpFlags = 1 << 4
	FlagDotAll     RegExpFlags = 1 << 5
	FlagHasIndices RegExpFlags = 1 << 6
	FlagUnicodeSets RegExpFlags = 1 << 7
	// FlagLinear is V8-internal; this library always rejects it on
	// parse (see Deserializer) and never sets it on write.
	FlagLinear RegExpFlags = 1 << 8
)

// String renders flags in the order g i m y u s d v.
func (f RegExpFlags) String() string {
	var out []byte
	if f&FlagGlobal != 0 {
		out = append(out, 'g')
	}
	if f&FlagIgnoreCase != 0 {
		out = append(out, 'i')
	}
	if f&FlagMultiline != 0 {
		out = append(out, 'm')
	}
	if f&FlagSticky != 0 {
		out = append(out, 'y')
	}
	if f&FlagUnicode != 0 {
		out = append(out, 'u')
	}
	if f&FlagDotAll != 0 {
		out = append(out, 's')
	}
	if f&FlagHasIndices != 0 {
		out = append(out, 'd')
	}
	if f&FlagUnicodeSets != 0 {
		out = append(out, 'v')
	}
	return string(out)
}

// RegExp is a JS regular expression literal's pattern and flags.
type RegExp struct {
	Source StringValue
	Flags  RegExpFlags
}

// MaxTimeInMS is V8's ECMA-262-mandated bound on a Date's internal
// time value (864e5 * 1e8 ms, i.e. +/-100,000,000 days from the epoch).
const MaxTimeInMS = 864_000_000 * 10_000_000

// Date holds milliseconds since the Unix epoch, or an invalid/NaN
// marker if the original millisSinceEpoch double was NaN or exceeded
// MaxTimeInMS — V8 itself produces `Invalid Date` for such values
// rather than rejecting them at the wire level.
type Date struct {
	MillisSinceEpoch float64
}

// Valid reports whether the millisecond value is within the ECMA-262
// time-value range and not NaN.
func (d Date) Valid() bool {
	ms := d.MillisSinceEpoch
	return ms == ms && ms >= -MaxTimeInMS && ms <= MaxTimeInMS
}

// Time converts to a time.Time; only meaningful when Valid().
func (d Date) Time() time.Time {
	ms := int64(d.MillisSinceEpoch)
	return time.UnixMilli(ms).UTC()
}

// ErrorName enumerates the built-in Error subclasses the wire format
// can name explicitly. A plain Error carries no prototype sub-tag.
type ErrorName uint8

const (
	ErrorNamePlain ErrorName = iota
	ErrorNameEval
	ErrorNameRange
	ErrorNameReference
	ErrorNameSyntax
	ErrorNameType
	ErrorNameURI
)

func (n ErrorName) String() string {
	switch n {
	case ErrorNamePlain:
		return "Error"
	case ErrorNameEval:
		return "EvalError"
	case ErrorNameRange:
		return "RangeError"
	case ErrorNameReference:
		return "ReferenceError"
	case ErrorNameSyntax:
		return "SyntaxError"
	case ErrorNameType:
		return "TypeError"
	case ErrorNameURI:
		return "URIError"
	default:
		return "Error"
	}
}

// Error is a JS Error object's serializable parts: name (determines
// its prototype), message, stack text, and an optional ES2022
// Error.cause.
type Error struct {
	Name    ErrorName
	Message *StringValue // nil if no message sub-record was present
	Stack   *StringValue // nil if no stack sub-record was present
	Cause   *Value       // nil if no cause sub-record was present
}

// PropertyKey is a JS object property key: either one of the three
// numeric wire representations V8 uses for array-index-shaped keys, or
// a string. PropertyKeyString is almost always what callers building
// a Heap by hand want; the numeric variants exist because the wire
// format and the printer both need to distinguish "7" (a string key)
// from 7 (a canonical integer-index key) even though they are the same
// JS property.
type PropertyKey struct {
	kind pkKind
	i32  int32
	u32  uint32
	f64  float64
	str  StringValue
}

type pkKind uint8

const (
	pkI32 pkKind = iota
	pkU32
	pkDouble
	pkString
)

func PropertyKeyI32(n int32) PropertyKey    { return PropertyKey{kind: pkI32, i32: n} }
func PropertyKeyU32(n uint32) PropertyKey   { return PropertyKey{kind: pkU32, u32: n} }
func PropertyKeyDouble(f float64) PropertyKey { return PropertyKey{kind: pkDouble, f64: f} }
func PropertyKeyString(s StringValue) PropertyKey {
	return PropertyKey{kind: pkString, str: s}
}

// AsValue converts the key to the Value it would serialize as.
func (k PropertyKey) AsValue() Value {
	switch k.kind {
	case pkI32:
		return I32(k.i32)
	case pkU32:
		return U32(k.u32)
	case pkDouble:
		return Double(k.f64)
	default:
		return StringVal(k.str)
	}
}

// DecimalString renders the key the way V8 stringifies a property name
// for display/comparison purposes (used by the decimal/string equality
// quirk: the string key "7" and the numeric key 7 name the same
// property).
func (k PropertyKey) DecimalString() string {
	switch k.kind {
	case pkI32:
		return fmt.Sprintf("%d", k.i32)
	case pkU32:
		return fmt.Sprintf("%d", k.u32)
	case pkDouble:
		return formatJSNumber(k.f64)
	default:
		return k.str.GoString()
	}
}

// randomHeapID generates a fresh, process-local heap-identity tag.
// Collisions are harmless (they would at worst let a forged
// HeapReference from one Heap dereference against another of the same
// size), so a fast non-cryptographic source would do, but crypto/rand
// keeps this dependency-free without reaching for math/rand/v2 solely
// to avoid a global seed discussion.
func randomHeapID() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Heap is an append-only arena of HeapValues, addressed by
// HeapReference. It is the target of all reference-identity sharing
// and cycles in a parsed or hand-built object graph.
type Heap struct {
	id     uint64
	values []*HeapValue // nil entries are reserved-but-not-yet-filled slots
}

// NewHeap creates an empty Heap with a fresh identity tag.
func NewHeap() *Heap {
	return &Heap{id: randomHeapID()}
}

// IsEmpty reports whether the heap has no entries.
func (h *Heap) IsEmpty() bool { return len(h.values) == 0 }

// Len returns the number of slots (reserved or filled) in the heap.
func (h *Heap) Len() int { return len(h.values) }

// Open dereferences a HeapReference. It panics if ref belongs to a
// different Heap or points at a slot that was reserved but never
// filled — both are programmer errors (a malformed Heap was
// constructed or smuggled across heaps), not malformed-input
// conditions, since a HeapBuilder's exported API makes both
// impossible to produce from wire-format input.
func (h *Heap) Open(ref HeapReference) *HeapValue {
	if ref.heapID != h.id {
		panic("v8value: HeapReference does not belong to this Heap")
	}
	v := h.values[ref.index]
	if v == nil {
		panic("v8value: HeapReference points at an unfilled reservation")
	}
	return v
}

// TryOpen is the non-panicking form of Open, for callers (like the
// printer and CLI) that must treat a dangling/foreign reference as a
// reportable error instead of a bug.
func (h *Heap) TryOpen(ref HeapReference) (*HeapValue, bool) {
	if ref.heapID != h.id || ref.index < 0 || ref.index >= len(h.values) {
		return nil, false
	}
	v := h.values[ref.index]
	if v == nil {
		return nil, false
	}
	return v, true
}

// ReferenceByID resolves a 0-based slot index to a HeapReference into
// this Heap. Tools that walk every slot (e.g. a CLI heap dump) use this
// since a finished Heap otherwise only hands out references by
// dereferencing a Value that already carries one.
func (h *Heap) ReferenceByID(id uint32) (HeapReference, bool) {
	if int(id) >= len(h.values) {
		return HeapReference{}, false
	}
	return HeapReference{heapID: h.id, index: int(id)}, true
}

// HeapBuilder incrementally constructs a Heap. It exists as a separate
// type from Heap so that partially-built (reserved-but-unfilled) state
// can never leak into a finished Heap: Build() is the only way to
// obtain one.
//
// The two supported construction disciplines mirror the two directions
// data flows in this library:
//
//   - reserve-then-fill: the deserializer must hand out a HeapReference
//     for an object before recursing into its properties, so that a
//     self- or forward-reference inside those properties resolves to
//     the right slot.
//   - insert (reserve+fill in one step): the deserializer (for leaf
//     values) and any hand-built graph use this when the value is
//     already complete.
type HeapBuilder struct {
	id     uint64
	values []*HeapValue
}

// NewHeapBuilder creates an empty builder.
func NewHeapBuilder() *HeapBuilder {
	return &HeapBuilder{id: randomHeapID()}
}

// Reserve allocates a slot without a value yet and returns a
// HeapReference to it. The slot must be populated with Fill before
// Build is called.
func (b *HeapBuilder) Reserve() HeapReference {
	idx := len(b.values)
	b.values = append(b.values, nil)
	return HeapReference{heapID: b.id, index: idx}
}

// Fill populates a previously Reserved slot. It panics if ref does not
// belong to this builder or was already filled — both indicate a bug
// in the caller (deserializer/serializer), not malformed input.
func (b *HeapBuilder) Fill(ref HeapReference, v HeapValue) {
	if ref.heapID != b.id {
		panic("v8value: HeapReference does not belong to this HeapBuilder")
	}
	if b.values[ref.index] != nil {
		panic("v8value: HeapBuilder slot already filled")
	}
	b.values[ref.index] = &v
}

// Insert reserves a new slot and fills it immediately, returning the
// reference. Equivalent to Fill(Reserve(), v) but avoids the
// filled-exactly-once bookkeeping for callers that always have the
// value in hand up front.
func (b *HeapBuilder) Insert(v HeapValue) HeapReference {
	ref := b.Reserve()
	b.Fill(ref, v)
	return ref
}

// ReferenceByID resolves a 0-based index (as carried by an
// ObjectReference wire tag) to a HeapReference in this builder, without
// requiring the slot to be filled yet (a back-reference may point at an
// object still being read, e.g. inside its own property list during a
// cycle).
func (b *HeapBuilder) ReferenceByID(id uint32) (HeapReference, bool) {
	if int(id) >= len(b.values) {
		return HeapReference{}, false
	}
	return HeapReference{heapID: b.id, index: int(id)}, true
}

// PeekFilled returns the value at ref if its slot has already been
// filled, without requiring the builder to be finished. The
// deserializer uses this to inspect a just-produced or
// just-dereferenced value (e.g. to detect an ArrayBuffer that an
// ArrayBufferView tag is about to glue onto) before Build is called.
func (b *HeapBuilder) PeekFilled(ref HeapReference) (*HeapValue, bool) {
	if ref.heapID != b.id || ref.index < 0 || ref.index >= len(b.values) {
		return nil, false
	}
	v := b.values[ref.index]
	if v == nil {
		return nil, false
	}
	return v, true
}

// NextID returns the index the next Reserve/Insert call will assign,
// i.e. the current object count.
func (b *HeapBuilder) NextID() uint32 { return uint32(len(b.values)) }

// Build finalizes the builder into a Heap. It panics if any reserved
// slot was never filled, which (absent a HeapBuilder bug) indicates the
// deserializer or serializer returned without completing a container it
// had already reserved a reference for.
func (b *HeapBuilder) Build() *Heap {
	for i, v := range b.values {
		if v == nil {
			panic(fmt.Sprintf("v8value: HeapBuilder slot %d was reserved but never filled", i))
		}
	}
	return &Heap{id: b.id, values: b.values}
}

func formatJSNumber(f float64) string {
	if f == float64(int64(f)) && f < 1e21 && f > -1e21 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
