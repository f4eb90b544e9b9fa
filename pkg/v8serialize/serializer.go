package v8serialize

import (
	"math/big"

	"github.com/acolita/v8clone/internal/wire"
	"github.com/acolita/v8clone/pkg/v8tags"
	"github.com/acolita/v8clone/pkg/v8value"
)

// Serializer writes a (Value, *Heap) pair to V8's wire format. Unlike
// V8's own encoder in some older wire versions, it supports arbitrary
// cycles: each HeapValue is assigned an ID the first time it is
// encountered and subsequent encounters emit an ObjectReference instead
// of re-serializing it.
type Serializer struct {
	writer *wire.Writer
	heap   *v8value.Heap
	depth  int

	maxDepth int

	// ids maps a heap slot index to the wire-format object ID it was
	// assigned the first time it was written. V8 numbers objects in
	// the order their *value* is first serialized, not in heap
	// insertion order, so this is populated lazily during Write.
	ids    map[int]uint32
	nextID uint32
}

// NewSerializer creates a Serializer that resolves HeapReferences
// against heap.
func NewSerializer(heap *v8value.Heap) *Serializer {
	return &Serializer{
		writer:   wire.NewWriter(256),
		heap:     heap,
		maxDepth: v8tags.RecursionLimit,
		ids:      make(map[int]uint32),
	}
}

// Serialize writes root (and everything reachable from it through
// heap) and returns the encoded bytes.
func Serialize(heap *v8value.Heap, root v8value.Value) ([]byte, error) {
	s := NewSerializer(heap)
	if err := s.Write(root); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// Bytes returns the bytes written so far, including the header once
// Write has been called at least once.
func (s *Serializer) Bytes() []byte { return s.writer.Bytes() }

// Write emits the version header (always v8tags.WriteVersion,
// regardless of what version any input to this Heap was parsed from)
// followed by root.
func (s *Serializer) Write(root v8value.Value) error {
	s.writer.WriteByte(byte(v8tags.Version))
	s.writer.WriteVarint32(v8tags.WriteVersion)
	return s.writeValue(root)
}

func (s *Serializer) writeValue(v v8value.Value) error {
	s.depth++
	if s.depth > s.maxDepth {
		s.depth--
		return newSerializationError(SerErrRecursionLimit, "exceeded max depth %d", s.maxDepth)
	}
	defer func() { s.depth-- }()

	switch v.Kind() {
	case v8value.KindUndefined:
		s.writer.WriteByte(byte(v8tags.Undefined))
		return nil
	case v8value.KindNull:
		s.writer.WriteByte(byte(v8tags.Null))
		return nil
	case v8value.KindBool:
		b, _ := v.Bool()
		if b {
			s.writer.WriteByte(byte(v8tags.True))
		} else {
			s.writer.WriteByte(byte(v8tags.False))
		}
		return nil
	case v8value.KindI32:
		n, _ := v.I32()
		s.writer.WriteByte(byte(v8tags.Int32))
		s.writer.WriteZigZag32(n)
		return nil
	case v8value.KindU32:
		n, _ := v.U32()
		s.writer.WriteByte(byte(v8tags.Uint32))
		s.writer.WriteVarint32(n)
		return nil
	case v8value.KindDouble:
		f, _ := v.Double()
		s.writer.WriteByte(byte(v8tags.Double))
		s.writer.WriteDouble(f)
		return nil
	case v8value.KindBigInt:
		n, _ := v.BigInt()
		s.writer.WriteByte(byte(v8tags.BigInt))
		return s.writeBigIntBits(n)
	case v8value.KindString:
		sv, _ := v.String()
		s.writeString(sv)
		return nil
	case v8value.KindHeapRef:
		ref, _ := v.HeapRef()
		return s.writeHeapRef(ref)
	default:
		return newSerializationError(SerErrUnsupportedValue, "value has kind %s", v.Kind())
	}
}

func (s *Serializer) writeBigIntBits(n *big.Int) error {
	negative := n.Sign() < 0
	abs := new(big.Int).Abs(n)
	raw := abs.Bytes() // big-endian
	reversed := make([]byte, len(raw))
	for i, b := range raw {
		reversed[len(raw)-1-i] = b
	}
	bitfield := uint64(len(reversed)) << 1
	if negative {
		bitfield |= 1
	}
	s.writer.WriteVarint(bitfield)
	s.writer.WriteBytes(reversed)
	return nil
}

func (s *Serializer) writeString(sv v8value.StringValue) {
	switch sv.Encoding() {
	case v8value.EncodingOneByte:
		b := sv.OneByteBytes()
		s.writer.WriteByte(byte(v8tags.OneByteString))
		s.writer.WriteVarint32(uint32(len(b)))
		s.writer.WriteOneByteString(b)
	case v8value.EncodingTwoByte:
		units := sv.TwoByteUnits()
		byteLen := len(units) * 2
		// If the tag and length prefix written from the current offset
		// would leave the payload on an odd offset, insert one Padding
		// byte before the tag so the two-byte code units start aligned;
		// the deserializer skips Padding before reading a tag.
		if (s.writer.Len()+1+wire.VarintLen(uint64(byteLen)))%2 != 0 {
			s.writer.WriteByte(byte(v8tags.Padding))
		}
		s.writer.WriteByte(byte(v8tags.TwoByteString))
		s.writer.WriteVarint32(uint32(byteLen))
		s.writer.WriteTwoByteStringUnits(units)
	case v8value.EncodingWtf8:
		b := sv.Wtf8Bytes()
		s.writer.WriteByte(byte(v8tags.Utf8String))
		s.writer.WriteVarint32(uint32(len(b)))
		s.writer.WriteBytes(b)
	}
}

// writeHeapRef either emits a back-reference to an already-written
// object, or assigns it a fresh ID and writes its body.
//
// An ArrayBufferView's backing buffer is glued immediately before it on
// the wire, and the deserializer inserts the buffer into the heap
// before the glued view (readArrayBuffer's Insert happens, then the
// view's Insert), so the buffer must claim the lower ID. Writing the
// view's body normally would assign the view its ID first and only
// then recurse into the buffer, inverting that order for any buffer
// shared by more than one view. So a view's buffer is written here,
// before this reference's own ID is taken, mirroring the order the
// deserializer observes.
func (s *Serializer) writeHeapRef(ref v8value.HeapReference) error {
	if id, ok := s.ids[ref.Index()]; ok {
		s.writer.WriteByte(byte(v8tags.ObjectReference))
		s.writer.WriteVarint32(id)
		return nil
	}

	hv, ok := s.heap.TryOpen(ref)
	if !ok {
		return newSerializationError(SerErrDanglingReference, "reference %s does not resolve in this heap", ref)
	}

	if hv.Kind() == v8value.KindArrayBufferView {
		view := hv.ArrayBufferView()
		if err := s.writeHeapRef(view.Buffer); err != nil {
			return err
		}
		id := s.nextID
		s.nextID++
		s.ids[ref.Index()] = id
		return s.writeArrayBufferViewBody(view)
	}

	id := s.nextID
	s.nextID++
	s.ids[ref.Index()] = id

	return s.writeHeapValue(hv)
}

func (s *Serializer) writeHeapValue(hv *v8value.HeapValue) error {
	switch hv.Kind() {
	case v8value.KindBooleanObject:
		if hv.AsBooleanObject() {
			s.writer.WriteByte(byte(v8tags.TrueObject))
		} else {
			s.writer.WriteByte(byte(v8tags.FalseObject))
		}
		return nil
	case v8value.KindNumberObject:
		s.writer.WriteByte(byte(v8tags.NumberObject))
		s.writer.WriteDouble(hv.AsNumberObject())
		return nil
	case v8value.KindBigIntObject:
		s.writer.WriteByte(byte(v8tags.BigIntObject))
		n, _ := hv.AsBigIntObject().BigInt()
		return s.writeBigIntBits(n)
	case v8value.KindStringObject:
		s.writer.WriteByte(byte(v8tags.StringObject))
		s.writeString(hv.AsStringObject())
		return nil
	case v8value.KindObject:
		return s.writeObject(hv.Properties())
	case v8value.KindDenseArray:
		return s.writeDenseArray(hv.Elements(), hv.Properties())
	case v8value.KindSparseArray:
		return s.writeSparseArray(hv.SparseLength(), hv.Properties())
	case v8value.KindMap:
		return s.writeMap(hv.MapEntries())
	case v8value.KindSet:
		return s.writeSet(hv.SetValues())
	case v8value.KindArrayBuffer:
		return s.writeArrayBuffer(hv.ArrayBuffer())
	case v8value.KindArrayBufferView:
		// Unreachable in practice: writeHeapRef intercepts this kind
		// before dispatching here, so it can write the buffer first and
		// claim the lower ID for it. Kept so this switch stays exhaustive.
		return s.writeArrayBufferViewBody(hv.ArrayBufferView())
	case v8value.KindRegExp:
		return s.writeRegExp(hv.RegExp())
	case v8value.KindDate:
		s.writer.WriteByte(byte(v8tags.Date))
		s.writer.WriteDouble(hv.Date().MillisSinceEpoch)
		return nil
	case v8value.KindError:
		return s.writeError(hv.Error())
	default:
		return newSerializationError(SerErrUnsupportedValue, "heap value has kind %s", hv.Kind())
	}
}

func (s *Serializer) writePropertyKey(k v8value.PropertyKey) error {
	return s.writeValue(k.AsValue())
}

func (s *Serializer) writeObject(props []v8value.Property) error {
	s.writer.WriteByte(byte(v8tags.BeginJSObject))
	for _, p := range props {
		if err := s.writePropertyKey(p.Key); err != nil {
			return err
		}
		if err := s.writeValue(p.Value); err != nil {
			return err
		}
	}
	s.writer.WriteByte(byte(v8tags.EndJSObject))
	s.writer.WriteVarint32(uint32(len(props)))
	return nil
}

func (s *Serializer) writeDenseArray(elements []v8value.Value, props []v8value.Property) error {
	s.writer.WriteByte(byte(v8tags.BeginDenseJSArray))
	s.writer.WriteVarint32(uint32(len(elements)))
	for _, e := range elements {
		if e.Kind() == v8value.KindUndefined {
			s.writer.WriteByte(byte(v8tags.TheHole))
			continue
		}
		if err := s.writeValue(e); err != nil {
			return err
		}
	}
	for _, p := range props {
		if err := s.writePropertyKey(p.Key); err != nil {
			return err
		}
		if err := s.writeValue(p.Value); err != nil {
			return err
		}
	}
	s.writer.WriteByte(byte(v8tags.EndDenseJSArray))
	s.writer.WriteVarint32(uint32(len(props)))
	s.writer.WriteVarint32(uint32(len(elements)))
	return nil
}

func (s *Serializer) writeSparseArray(length uint32, props []v8value.Property) error {
	s.writer.WriteByte(byte(v8tags.BeginSparseJSArray))
	s.writer.WriteVarint32(length)
	for _, p := range props {
		if err := s.writePropertyKey(p.Key); err != nil {
			return err
		}
		if err := s.writeValue(p.Value); err != nil {
			return err
		}
	}
	s.writer.WriteByte(byte(v8tags.EndSparseJSArray))
	s.writer.WriteVarint32(uint32(len(props)))
	s.writer.WriteVarint32(length)
	return nil
}

func (s *Serializer) writeMap(entries []v8value.MapEntry) error {
	s.writer.WriteByte(byte(v8tags.BeginJSMap))
	for _, e := range entries {
		if err := s.writeValue(e.Key); err != nil {
			return err
		}
		if err := s.writeValue(e.Value); err != nil {
			return err
		}
	}
	s.writer.WriteByte(byte(v8tags.EndJSMap))
	s.writer.WriteVarint32(uint32(len(entries) * 2))
	return nil
}

func (s *Serializer) writeSet(values []v8value.Value) error {
	s.writer.WriteByte(byte(v8tags.BeginJSSet))
	for _, v := range values {
		if err := s.writeValue(v); err != nil {
			return err
		}
	}
	s.writer.WriteByte(byte(v8tags.EndJSSet))
	s.writer.WriteVarint32(uint32(len(values)))
	return nil
}

func (s *Serializer) writeArrayBuffer(buf v8value.ArrayBuffer) error {
	if buf.MaxByteLength != nil {
		if uint32(len(buf.Data)) > *buf.MaxByteLength {
			return newSerializationError(SerErrArrayBufferTooLarge,
				"byte length %d exceeds max byte length %d", len(buf.Data), *buf.MaxByteLength)
		}
		s.writer.WriteByte(byte(v8tags.ResizableArrayBuffer))
		s.writer.WriteVarint32(uint32(len(buf.Data)))
		s.writer.WriteVarint32(*buf.MaxByteLength)
	} else {
		s.writer.WriteByte(byte(v8tags.ArrayBuffer))
		s.writer.WriteVarint32(uint32(len(buf.Data)))
	}
	s.writer.WriteBytes(buf.Data)
	return nil
}

var viewTagByKind = map[v8value.ArrayBufferViewKind]v8tags.ArrayBufferViewTag{
	v8value.ViewInt8Array:         v8tags.Int8Array,
	v8value.ViewUint8Array:        v8tags.Uint8Array,
	v8value.ViewUint8ClampedArray: v8tags.Uint8ClampedArray,
	v8value.ViewInt16Array:        v8tags.Int16Array,
	v8value.ViewUint16Array:       v8tags.Uint16Array,
	v8value.ViewInt32Array:        v8tags.Int32Array,
	v8value.ViewUint32Array:       v8tags.Uint32Array,
	v8value.ViewFloat32Array:      v8tags.Float32Array,
	v8value.ViewFloat64Array:      v8tags.Float64Array,
	v8value.ViewBigInt64Array:     v8tags.BigInt64Array,
	v8value.ViewBigUint64Array:    v8tags.BigUint64Array,
	v8value.ViewDataView:          v8tags.DataView,
}

// writeArrayBufferViewBody writes the ArrayBufferView tag and its
// payload (subtag/byteOffset/byteLength/flags). The backing buffer is
// written separately by writeHeapRef, before this view's own ID is
// assigned, so it is not written here.
func (s *Serializer) writeArrayBufferViewBody(v v8value.ArrayBufferView) error {
	tag, ok := viewTagByKind[v.Kind]
	if !ok {
		return newSerializationError(SerErrInvalidArrayBufferView, "unknown view kind %d", v.Kind)
	}

	s.writer.WriteByte(byte(v8tags.ArrayBufferView))
	s.writer.WriteByte(byte(tag))
	s.writer.WriteVarint32(v.ByteOffset)

	elemSize := tag.ElementSize()
	byteLength := v.Length
	if elemSize > 1 {
		byteLength = v.Length * uint32(elemSize)
	}
	s.writer.WriteVarint32(byteLength)

	var flags uint32
	if v.IsLengthTracking {
		flags |= v8tags.IsLengthTrackingFlag
	}
	s.writer.WriteVarint32(flags)
	return nil
}

func (s *Serializer) writeRegExp(r v8value.RegExp) error {
	if r.Flags&v8value.FlagLinear != 0 {
		return newSerializationError(SerErrInvalidRegExpFlags, "linear flag is not supported")
	}
	if r.Flags&v8value.FlagUnicode != 0 && r.Flags&v8value.FlagUnicodeSets != 0 {
		return newSerializationError(SerErrInvalidRegExpFlags, "unicode and unicodeSets flags are mutually exclusive")
	}
	s.writer.WriteByte(byte(v8tags.RegExp))
	s.writeString(r.Source)
	s.writer.WriteVarint32(uint32(r.Flags))
	return nil
}

var errorTagByName = map[v8value.ErrorName]v8tags.ErrorTag{
	v8value.ErrorNameEval:      v8tags.EvalErrorPrototype,
	v8value.ErrorNameRange:     v8tags.RangeErrorPrototype,
	v8value.ErrorNameReference: v8tags.ReferenceErrorPrototype,
	v8value.ErrorNameSyntax:    v8tags.SyntaxErrorPrototype,
	v8value.ErrorNameType:      v8tags.TypeErrorPrototype,
	v8value.ErrorNameURI:       v8tags.UriErrorPrototype,
}

func (s *Serializer) writeError(e v8value.Error) error {
	s.writer.WriteByte(byte(v8tags.Error))
	if tag, ok := errorTagByName[e.Name]; ok {
		s.writer.WriteByte(byte(tag))
	}
	if e.Message != nil {
		s.writer.WriteByte(byte(v8tags.ErrorMessage))
		s.writeString(*e.Message)
	}
	if e.Stack != nil {
		s.writer.WriteByte(byte(v8tags.ErrorStackProp))
		s.writeString(*e.Stack)
	}
	if e.Cause != nil {
		s.writer.WriteByte(byte(v8tags.ErrorCause))
		if err := s.writeValue(*e.Cause); err != nil {
			return err
		}
	}
	s.writer.WriteByte(byte(v8tags.ErrorEnd))
	return nil
}
