// Package v8serialize implements parsing and serialization of V8's
// Structured Clone wire format.
//
// This format is used by Node.js v8.serialize()/v8.deserialize(), and
// underlies the browser postMessage, IndexedDB and Clipboard APIs.
package v8serialize

import (
	"math/big"

	"github.com/acolita/v8clone/internal/wire"
	"github.com/acolita/v8clone/pkg/v8tags"
	"github.com/acolita/v8clone/pkg/v8value"
)

// Deserializer parses a byte stream into a (Value, *Heap) pair. Use
// [Parse] for the common one-shot case; construct a Deserializer
// directly to customize limits via [Option] or to register transferred
// ArrayBuffers ahead of time.
type Deserializer struct {
	reader  *wire.Reader
	version uint32
	builder *v8value.HeapBuilder
	depth   int

	maxDepth      int
	maxSize       int
	maxArrayLen   int
	maxObjectKeys int

	transfers map[uint32]v8value.ArrayBuffer
}

// DefaultMaxArrayLen bounds dense- and sparse-array lengths accepted
// on read, to keep a malicious input from requesting an implausibly
// large allocation. Map and set sizes are not bounded by it.
const DefaultMaxArrayLen = 10_000_000

// DefaultMaxObjectKeys bounds the number of properties accepted per
// object/array for the same reason.
const DefaultMaxObjectKeys = 1_000_000

// Option configures a Deserializer.
type Option func(*Deserializer)

// WithMaxDepth bounds nesting depth (default v8tags.RecursionLimit,
// matching V8's own limit).
func WithMaxDepth(depth int) Option {
	return func(d *Deserializer) { d.maxDepth = depth }
}

// WithMaxSize bounds the input size in bytes (default unlimited).
func WithMaxSize(size int) Option {
	return func(d *Deserializer) { d.maxSize = size }
}

// WithMaxArrayLen bounds declared array/sparse-array lengths.
func WithMaxArrayLen(n int) Option {
	return func(d *Deserializer) { d.maxArrayLen = n }
}

// WithMaxObjectKeys bounds the number of properties read per container.
func WithMaxObjectKeys(n int) Option {
	return func(d *Deserializer) { d.maxObjectKeys = n }
}

// WithTransferredArrayBuffer registers the ArrayBuffer contents that an
// ArrayBufferTransfer tag carrying the given transfer ID should resolve
// to (the sending side is responsible for knowing which ArrayBuffers it
// transferred out of band; the wire format only carries the ID).
func WithTransferredArrayBuffer(id uint32, buf v8value.ArrayBuffer) Option {
	return func(d *Deserializer) { d.transfers[id] = buf }
}

// NewDeserializer creates a Deserializer for data.
func NewDeserializer(data []byte, opts ...Option) *Deserializer {
	d := &Deserializer{
		reader:        wire.NewReader(data),
		builder:       v8value.NewHeapBuilder(),
		maxDepth:      v8tags.RecursionLimit,
		maxArrayLen:   DefaultMaxArrayLen,
		maxObjectKeys: DefaultMaxObjectKeys,
		transfers:     make(map[uint32]v8value.ArrayBuffer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Parse parses data and returns the root value plus the heap it
// references into.
func Parse(data []byte, opts ...Option) (v8value.Value, *v8value.Heap, error) {
	d := NewDeserializer(data, opts...)
	return d.Parse()
}

// Version returns the wire format version read from the header (valid
// after Parse returns successfully).
func (d *Deserializer) Version() uint32 { return d.version }

// Parse reads the header then the root value and requires the input to
// be fully consumed afterward; anything left over is a ParseError with
// kind ParseErrTrailingData.
func (d *Deserializer) Parse() (v8value.Value, *v8value.Heap, error) {
	if d.maxSize > 0 && d.reader.Len() > d.maxSize {
		return v8value.Value{}, nil, newParseError(ParseErrSizeLimitExceeded, 0,
			"input size %d exceeds limit %d", d.reader.Len(), d.maxSize)
	}
	if err := d.readHeader(); err != nil {
		return v8value.Value{}, nil, err
	}
	val, err := d.readValue()
	if err != nil {
		return v8value.Value{}, nil, err
	}
	if rem := d.reader.Remaining(); rem != 0 {
		return v8value.Value{}, nil, newParseError(ParseErrTrailingData, d.reader.Pos(),
			"%d trailing byte(s) after root value", rem)
	}
	return val, d.builder.Build(), nil
}

// Remaining returns the number of unread bytes after Parse.
func (d *Deserializer) Remaining() int { return d.reader.Remaining() }

func (d *Deserializer) readHeader() error {
	tag, err := d.reader.ReadByte()
	if err != nil {
		return wrapParseError(ParseErrBadHeader, d.reader.Pos(), err)
	}
	if v8tags.Tag(tag) != v8tags.Version {
		return newParseError(ParseErrBadHeader, d.reader.Pos()-1,
			"expected Version tag 0xFF, got 0x%02X", tag)
	}
	version, err := d.reader.ReadVarint32()
	if err != nil {
		return wrapParseError(ParseErrBadHeader, d.reader.Pos(), err)
	}
	if version < v8tags.MinVersion || version > v8tags.MaxVersion {
		return newParseError(ParseErrUnsupportedVersion, d.reader.Pos(),
			"version %d (supported: %d-%d)", version, v8tags.MinVersion, v8tags.MaxVersion)
	}
	d.version = version
	return nil
}

// readValue reads one value, transparently gluing a following
// ArrayBufferView tag onto a freshly-produced (or referenced)
// ArrayBuffer, per the wire format's historical quirk (see
// v8tags.ArrayBufferView's doc comment).
func (d *Deserializer) readValue() (v8value.Value, error) {
	d.depth++
	if d.depth > d.maxDepth {
		d.depth--
		return v8value.Value{}, newParseError(ParseErrRecursionLimit, d.reader.Pos(),
			"exceeded max depth %d", d.maxDepth)
	}
	defer func() { d.depth-- }()

	val, err := d.readValueInternal()
	if err != nil {
		return v8value.Value{}, err
	}

	if ref, ok := val.HeapRef(); ok {
		if hv, ok := d.builder.PeekFilled(ref); ok && hv.Kind() == v8value.KindArrayBuffer {
			tag, err := d.reader.Peek()
			if err == nil && v8tags.Tag(tag) == v8tags.ArrayBufferView {
				_, _ = d.reader.ReadByte()
				return d.readArrayBufferView(ref)
			}
		}
	}
	return val, nil
}

func (d *Deserializer) readValueInternal() (v8value.Value, error) {
	for {
		tag, err := d.reader.Peek()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, d.reader.Pos(), err)
		}
		if v8tags.Tag(tag) != v8tags.Padding {
			break
		}
		_, _ = d.reader.ReadByte()
	}

	pos := d.reader.Pos()
	tagByte, err := d.reader.ReadByte()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}

	switch v8tags.Tag(tagByte) {
	case v8tags.Null:
		return v8value.Null(), nil
	case v8tags.Undefined:
		return v8value.Undefined(), nil
	case v8tags.True:
		return v8value.Bool(true), nil
	case v8tags.False:
		return v8value.Bool(false), nil
	case v8tags.TheHole:
		return v8value.Undefined(), nil // holes only appear as sparse-array/dense-array elements, handled there
	case v8tags.VerifyObjectCount:
		if _, err := d.reader.ReadVarint32(); err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		return d.readValueInternal()

	case v8tags.Int32:
		n, err := d.reader.ReadZigZag32()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		return v8value.I32(n), nil
	case v8tags.Uint32:
		n, err := d.reader.ReadVarint32()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		return v8value.U32(n), nil
	case v8tags.Double:
		f, err := d.reader.ReadDouble()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		return v8value.Double(f), nil
	case v8tags.BigInt:
		return d.readBigInt(pos)

	case v8tags.Utf8String:
		return d.readWtf8String(pos)
	case v8tags.OneByteString:
		return d.readOneByteString(pos)
	case v8tags.TwoByteString:
		return d.readTwoByteString(pos)

	case v8tags.ObjectReference:
		return d.readObjectReference(pos)

	case v8tags.BeginJSObject:
		return d.readObject()
	case v8tags.BeginDenseJSArray:
		return d.readDenseArray()
	case v8tags.BeginSparseJSArray:
		return d.readSparseArray()

	case v8tags.Date:
		return d.readDate(pos)

	case v8tags.TrueObject:
		return d.wrapHeap(v8value.BooleanObject(true)), nil
	case v8tags.FalseObject:
		return d.wrapHeap(v8value.BooleanObject(false)), nil
	case v8tags.NumberObject:
		f, err := d.reader.ReadDouble()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		return d.wrapHeap(v8value.NumberObject(f)), nil
	case v8tags.BigIntObject:
		inner, err := d.readBigInt(pos)
		if err != nil {
			return v8value.Value{}, err
		}
		return d.wrapHeap(v8value.BigIntObject(inner)), nil
	case v8tags.StringObject:
		inner, err := d.readValue()
		if err != nil {
			return v8value.Value{}, err
		}
		sv, ok := inner.String()
		if !ok {
			return v8value.Value{}, newParseError(ParseErrInvalidPropertyKey, pos, "StringObject payload is not a string")
		}
		return d.wrapHeap(v8value.StringObject(sv)), nil

	case v8tags.RegExp:
		return d.readRegExp(pos)

	case v8tags.BeginJSMap:
		return d.readMap()
	case v8tags.BeginJSSet:
		return d.readSet()

	case v8tags.ArrayBuffer:
		return d.readArrayBuffer(pos, false)
	case v8tags.ResizableArrayBuffer:
		return d.readArrayBuffer(pos, true)
	case v8tags.ArrayBufferTransfer:
		return d.readTransferredArrayBuffer(pos)

	case v8tags.Error:
		return d.readError()

	default:
		return v8value.Value{}, newParseError(ParseErrUnknownTag, pos,
			"unknown tag 0x%02X (%q)", tagByte, v8tags.Name(tagByte))
	}
}

func (d *Deserializer) wrapHeap(hv v8value.HeapValue) v8value.Value {
	ref := d.builder.Insert(hv)
	return v8value.HeapRef(ref)
}

func (d *Deserializer) readBigInt(pos int) (v8value.Value, error) {
	bitfield, err := d.reader.ReadVarint()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	negative := bitfield&1 == 1
	byteLen := bitfield >> 1
	if byteLen == 0 {
		return v8value.BigIntValue(big.NewInt(0)), nil
	}
	raw, err := d.reader.ReadBytes(int(byteLen))
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrInvalidBigInt, pos, err)
	}
	reversed := make([]byte, len(raw))
	for i, b := range raw {
		reversed[len(raw)-1-i] = b
	}
	n := new(big.Int).SetBytes(reversed)
	if negative {
		n.Neg(n)
	}
	return v8value.BigIntValue(n), nil
}

func (d *Deserializer) readWtf8String(pos int) (v8value.Value, error) {
	n, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	b, err := d.reader.ReadBytes(int(n))
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	cp := append([]byte(nil), b...)
	return v8value.StringVal(v8value.Wtf8String(cp)), nil
}

func (d *Deserializer) readOneByteString(pos int) (v8value.Value, error) {
	n, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	b, err := d.reader.ReadOneByteString(int(n))
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	cp := append([]byte(nil), b...)
	return v8value.StringVal(v8value.OneByteString(cp)), nil
}

func (d *Deserializer) readTwoByteString(pos int) (v8value.Value, error) {
	byteLen, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	d.reader.AlignTo(2)
	units, err := d.reader.ReadTwoByteString(int(byteLen) / 2)
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrInvalidUTF, pos, err)
	}
	cp := append([]uint16(nil), units...)
	return v8value.StringVal(v8value.TwoByteString(cp)), nil
}

func (d *Deserializer) readObjectReference(pos int) (v8value.Value, error) {
	id, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	ref, ok := d.builder.ReferenceByID(id)
	if !ok {
		return v8value.Value{}, newParseError(ParseErrInvalidReference, pos, "reference id %d out of range", id)
	}
	return v8value.HeapRef(ref), nil
}

// propertyKeyFromValue converts a value read as an object/array/map key
// into a v8value.PropertyKey, preserving the distinction between
// numeric and string wire representations.
func propertyKeyFromValue(v v8value.Value) (v8value.PropertyKey, bool) {
	if n, ok := v.I32(); ok {
		return v8value.PropertyKeyI32(n), true
	}
	if n, ok := v.U32(); ok {
		return v8value.PropertyKeyU32(n), true
	}
	if f, ok := v.Double(); ok {
		return v8value.PropertyKeyDouble(f), true
	}
	if s, ok := v.String(); ok {
		return v8value.PropertyKeyString(s), true
	}
	return v8value.PropertyKey{}, false
}

// readPropertyList reads key/value pairs until the given end tag is
// seen, shared by Object, SparseArray's tail and DenseArray's tail.
func (d *Deserializer) readPropertyList(endTag v8tags.Tag) ([]v8value.Property, error) {
	var props []v8value.Property
	for {
		pos := d.reader.Pos()
		tag, err := d.reader.Peek()
		if err != nil {
			return nil, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		if v8tags.Tag(tag) == endTag {
			_, _ = d.reader.ReadByte()
			if _, err := d.reader.ReadVarint32(); err != nil { // numProperties
				return nil, wrapParseError(ParseErrUnexpectedEOF, pos, err)
			}
			return props, nil
		}
		keyVal, err := d.readValue()
		if err != nil {
			return nil, err
		}
		key, ok := propertyKeyFromValue(keyVal)
		if !ok {
			return nil, newParseError(ParseErrInvalidPropertyKey, pos, "property key has kind %s", keyVal.Kind())
		}
		val, err := d.readValue()
		if err != nil {
			return nil, err
		}
		props = append(props, v8value.Property{Key: key, Value: val})
		if len(props) > d.maxObjectKeys {
			return nil, newParseError(ParseErrSizeLimitExceeded, pos, "object exceeds %d properties", d.maxObjectKeys)
		}
	}
}

func (d *Deserializer) readObject() (v8value.Value, error) {
	ref := d.builder.Reserve()
	props, err := d.readPropertyList(v8tags.EndJSObject)
	if err != nil {
		return v8value.Value{}, err
	}
	d.builder.Fill(ref, v8value.Object(props))
	return v8value.HeapRef(ref), nil
}

func (d *Deserializer) readDenseArray() (v8value.Value, error) {
	pos := d.reader.Pos()
	length, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	if int(length) > d.maxArrayLen {
		return v8value.Value{}, newParseError(ParseErrSizeLimitExceeded, pos, "array length %d exceeds limit %d", length, d.maxArrayLen)
	}

	ref := d.builder.Reserve()

	elements := make([]v8value.Value, length)
	for i := uint32(0); i < length; i++ {
		elemPos := d.reader.Pos()
		tag, err := d.reader.Peek()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, elemPos, err)
		}
		if v8tags.Tag(tag) == v8tags.TheHole {
			_, _ = d.reader.ReadByte()
			elements[i] = v8value.Undefined()
			continue
		}
		elem, err := d.readValue()
		if err != nil {
			return v8value.Value{}, err
		}
		elements[i] = elem
	}

	endPos := d.reader.Pos()
	tail, err := d.reader.Peek()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, endPos, err)
	}
	var props []v8value.Property
	if v8tags.Tag(tail) != v8tags.EndDenseJSArray {
		props, err = d.readPropertyListNoEnd()
		if err != nil {
			return v8value.Value{}, err
		}
	}
	if err := d.expectArrayEnd(v8tags.EndDenseJSArray, length); err != nil {
		return v8value.Value{}, err
	}

	d.builder.Fill(ref, v8value.DenseArray(elements, props))
	return v8value.HeapRef(ref), nil
}

// readPropertyListNoEnd reads key/value pairs until it sees a dense- or
// sparse-array end tag (without consuming it), for the trailing
// named-property section of a dense array.
func (d *Deserializer) readPropertyListNoEnd() ([]v8value.Property, error) {
	var props []v8value.Property
	for {
		pos := d.reader.Pos()
		tag, err := d.reader.Peek()
		if err != nil {
			return nil, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		if v8tags.Tag(tag) == v8tags.EndDenseJSArray || v8tags.Tag(tag) == v8tags.EndSparseJSArray {
			return props, nil
		}
		keyVal, err := d.readValue()
		if err != nil {
			return nil, err
		}
		key, ok := propertyKeyFromValue(keyVal)
		if !ok {
			return nil, newParseError(ParseErrInvalidPropertyKey, pos, "property key has kind %s", keyVal.Kind())
		}
		val, err := d.readValue()
		if err != nil {
			return nil, err
		}
		props = append(props, v8value.Property{Key: key, Value: val})
		if len(props) > d.maxObjectKeys {
			return nil, newParseError(ParseErrSizeLimitExceeded, pos, "array exceeds %d properties", d.maxObjectKeys)
		}
	}
}

func (d *Deserializer) expectArrayEnd(tag v8tags.Tag, length uint32) error {
	pos := d.reader.Pos()
	got, err := d.reader.ReadByte()
	if err != nil {
		return wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	if v8tags.Tag(got) != tag {
		return newParseError(ParseErrArrayLengthMismatch, pos, "expected end tag %s, got 0x%02X", v8tags.Name(byte(tag)), got)
	}
	if _, err := d.reader.ReadVarint32(); err != nil { // numProperties
		return wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	gotLen, err := d.reader.ReadVarint32()
	if err != nil {
		return wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	if gotLen != length {
		return newParseError(ParseErrArrayLengthMismatch, pos, "end tag length %d does not match declared length %d", gotLen, length)
	}
	return nil
}

func (d *Deserializer) readSparseArray() (v8value.Value, error) {
	pos := d.reader.Pos()
	length, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	if int(length) > d.maxArrayLen {
		return v8value.Value{}, newParseError(ParseErrSizeLimitExceeded, pos, "array length %d exceeds limit %d", length, d.maxArrayLen)
	}

	ref := d.builder.Reserve()
	props, err := d.readPropertyListNoEnd()
	if err != nil {
		return v8value.Value{}, err
	}
	if err := d.expectArrayEnd(v8tags.EndSparseJSArray, length); err != nil {
		return v8value.Value{}, err
	}
	d.builder.Fill(ref, v8value.SparseArray(length, props))
	return v8value.HeapRef(ref), nil
}

func (d *Deserializer) readDate(pos int) (v8value.Value, error) {
	ms, err := d.reader.ReadDouble()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	return d.wrapHeap(v8value.NewDate(v8value.Date{MillisSinceEpoch: ms})), nil
}

func (d *Deserializer) readRegExp(pos int) (v8value.Value, error) {
	patternVal, err := d.readValue()
	if err != nil {
		return v8value.Value{}, err
	}
	pattern, ok := patternVal.String()
	if !ok {
		return v8value.Value{}, newParseError(ParseErrInvalidPropertyKey, pos, "RegExp pattern is not a string")
	}
	flagBits, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	flags := v8value.RegExpFlags(flagBits)
	if flags&v8value.FlagLinear != 0 {
		return v8value.Value{}, newParseError(ParseErrInvalidRegExpFlags, pos, "linear flag is not supported")
	}
	if flags&v8value.FlagUnicode != 0 && flags&v8value.FlagUnicodeSets != 0 {
		return v8value.Value{}, newParseError(ParseErrInvalidRegExpFlags, pos, "unicode and unicodeSets flags are mutually exclusive")
	}
	return d.wrapHeap(v8value.NewRegExp(v8value.RegExp{Source: pattern, Flags: flags})), nil
}

func (d *Deserializer) readMap() (v8value.Value, error) {
	ref := d.builder.Reserve()
	var entries []v8value.MapEntry
	for {
		pos := d.reader.Pos()
		tag, err := d.reader.Peek()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		if v8tags.Tag(tag) == v8tags.EndJSMap {
			_, _ = d.reader.ReadByte()
			if _, err := d.reader.ReadVarint32(); err != nil {
				return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
			}
			break
		}
		key, err := d.readValue()
		if err != nil {
			return v8value.Value{}, err
		}
		val, err := d.readValue()
		if err != nil {
			return v8value.Value{}, err
		}
		entries = append(entries, v8value.MapEntry{Key: key, Value: val})
	}
	d.builder.Fill(ref, v8value.Map(entries))
	return v8value.HeapRef(ref), nil
}

func (d *Deserializer) readSet() (v8value.Value, error) {
	ref := d.builder.Reserve()
	var values []v8value.Value
	for {
		pos := d.reader.Pos()
		tag, err := d.reader.Peek()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		if v8tags.Tag(tag) == v8tags.EndJSSet {
			_, _ = d.reader.ReadByte()
			if _, err := d.reader.ReadVarint32(); err != nil {
				return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
			}
			break
		}
		val, err := d.readValue()
		if err != nil {
			return v8value.Value{}, err
		}
		values = append(values, val)
	}
	d.builder.Fill(ref, v8value.Set(values))
	return v8value.HeapRef(ref), nil
}

func (d *Deserializer) readArrayBuffer(pos int, resizable bool) (v8value.Value, error) {
	length, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	var maxLen *uint32
	if resizable {
		m, err := d.reader.ReadVarint32()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		if m < length {
			return v8value.Value{}, newParseError(ParseErrInvalidArrayBuffer, pos,
				"max byte length %d is smaller than byte length %d", m, length)
		}
		maxLen = &m
	}
	raw, err := d.reader.ReadBytes(int(length))
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	buf := append([]byte(nil), raw...)
	return d.wrapHeap(v8value.NewArrayBuffer(v8value.ArrayBuffer{Data: buf, MaxByteLength: maxLen})), nil
}

func (d *Deserializer) readTransferredArrayBuffer(pos int) (v8value.Value, error) {
	id, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	buf, ok := d.transfers[id]
	if !ok {
		return v8value.Value{}, newParseError(ParseErrMissingTransfer, pos, "no transfer registered for id %d", id)
	}
	delete(d.transfers, id) // consumed on read
	return d.wrapHeap(v8value.NewArrayBuffer(buf)), nil
}

var viewKindByTag = map[v8tags.ArrayBufferViewTag]v8value.ArrayBufferViewKind{
	v8tags.Int8Array:         v8value.ViewInt8Array,
	v8tags.Uint8Array:        v8value.ViewUint8Array,
	v8tags.Uint8ClampedArray: v8value.ViewUint8ClampedArray,
	v8tags.Int16Array:        v8value.ViewInt16Array,
	v8tags.Uint16Array:       v8value.ViewUint16Array,
	v8tags.Int32Array:        v8value.ViewInt32Array,
	v8tags.Uint32Array:       v8value.ViewUint32Array,
	v8tags.Float32Array:      v8value.ViewFloat32Array,
	v8tags.Float64Array:      v8value.ViewFloat64Array,
	v8tags.BigInt64Array:     v8value.ViewBigInt64Array,
	v8tags.BigUint64Array:    v8value.ViewBigUint64Array,
	v8tags.DataView:          v8value.ViewDataView,
}

// readArrayBufferView reads the ArrayBufferView tag's payload
// (subtag/byteOffset/byteLength/flags) after the caller has already
// consumed the ArrayBufferView tag byte itself, and glues it to the
// just-produced buffer reference.
func (d *Deserializer) readArrayBufferView(buffer v8value.HeapReference) (v8value.Value, error) {
	pos := d.reader.Pos()
	subtag, err := d.reader.ReadByte()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	kind, ok := viewKindByTag[v8tags.ArrayBufferViewTag(subtag)]
	if !ok {
		return v8value.Value{}, newParseError(ParseErrInvalidArrayBufferView, pos, "unknown view subtag 0x%02X", subtag)
	}
	byteOffset, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	byteLength, err := d.reader.ReadVarint32()
	if err != nil {
		return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
	}
	var flags uint32
	if d.version >= 15 {
		flags, err = d.reader.ReadVarint32()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
	}
	isLengthTracking := flags&v8tags.IsLengthTrackingFlag != 0

	elemSize := v8tags.ArrayBufferViewTag(subtag).ElementSize()
	length := byteLength
	if elemSize > 1 {
		if byteOffset%uint32(elemSize) != 0 || byteLength%uint32(elemSize) != 0 {
			return v8value.Value{}, newParseError(ParseErrInvalidArrayBufferView, pos,
				"byteOffset/byteLength not aligned to element size %d", elemSize)
		}
		length = byteLength / uint32(elemSize)
	}

	view := v8value.ArrayBufferView{
		Kind:             kind,
		Buffer:           buffer,
		ByteOffset:       byteOffset,
		Length:           length,
		IsLengthTracking: isLengthTracking,
	}
	return d.wrapHeap(v8value.NewArrayBufferView(view)), nil
}

var errorPrototypeToName = map[v8tags.ErrorTag]v8value.ErrorName{
	v8tags.EvalErrorPrototype:      v8value.ErrorNameEval,
	v8tags.RangeErrorPrototype:     v8value.ErrorNameRange,
	v8tags.ReferenceErrorPrototype: v8value.ErrorNameReference,
	v8tags.SyntaxErrorPrototype:    v8value.ErrorNameSyntax,
	v8tags.TypeErrorPrototype:      v8value.ErrorNameType,
	v8tags.UriErrorPrototype:       v8value.ErrorNameURI,
}

func (d *Deserializer) readError() (v8value.Value, error) {
	ref := d.builder.Reserve()
	e := v8value.Error{Name: v8value.ErrorNamePlain}

	for {
		pos := d.reader.Pos()
		sub, err := d.reader.ReadByte()
		if err != nil {
			return v8value.Value{}, wrapParseError(ParseErrUnexpectedEOF, pos, err)
		}
		subtag := v8tags.ErrorTag(sub)
		if subtag == v8tags.ErrorEnd {
			break
		}
		if name, ok := errorPrototypeToName[subtag]; ok {
			e.Name = name
			continue
		}
		switch subtag {
		case v8tags.ErrorMessage:
			sv, err := d.readStringField(pos)
			if err != nil {
				return v8value.Value{}, err
			}
			e.Message = sv
		case v8tags.ErrorStackProp:
			sv, err := d.readStringField(pos)
			if err != nil {
				return v8value.Value{}, err
			}
			e.Stack = sv
		case v8tags.ErrorCause:
			val, err := d.readValue()
			if err != nil {
				return v8value.Value{}, err
			}
			e.Cause = &val
		default:
			return v8value.Value{}, newParseError(ParseErrInvalidErrorTag, pos, "unknown error subtag 0x%02X", sub)
		}
	}

	d.builder.Fill(ref, v8value.NewError(e))
	return v8value.HeapRef(ref), nil
}

func (d *Deserializer) readStringField(pos int) (*v8value.StringValue, error) {
	val, err := d.readValue()
	if err != nil {
		return nil, err
	}
	sv, ok := val.String()
	if !ok {
		return nil, newParseError(ParseErrInvalidPropertyKey, pos, "expected string value")
	}
	return &sv, nil
}
