package v8value

// Equal performs a structural ("bisimulation") comparison of two
// values, each against its own heap: it walks HeapReferences by
// dereferencing into the matching heap rather than comparing reference
// identity, and tracks a pairing of already-visited (a, b) reference
// pairs so that graphs with cycles compare equal without looping
// forever, matching the deserialize-then-eq property this library's
// callers rely on for round-trip tests.
func Equal(a Value, heapA *Heap, b Value, heapB *Heap) bool {
	return newEqualer(heapA, heapB).value(a, b)
}

type refPair struct {
	a, b int
}

type equaler struct {
	heapA, heapB *Heap
	seen         map[refPair]bool
}

func newEqualer(heapA, heapB *Heap) *equaler {
	return &equaler{heapA: heapA, heapB: heapB, seen: make(map[refPair]bool)}
}

func (e *equaler) value(a, b Value) bool {
	if a.kind != b.kind {
		// A BigInt 1n and an I32 1 are never equal; numeric Kinds are
		// likewise compared exactly by-kind rather than by JS ==
		// coercion, since this is a serialize/round-trip identity
		// check, not a language-semantics comparison.
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindI32:
		return a.i32 == b.i32
	case KindU32:
		return a.u32 == b.u32
	case KindDouble:
		return doubleEqual(a.f64, b.f64)
	case KindBigInt:
		return a.big.Cmp(b.big) == 0
	case KindString:
		return stringEqual(a.str, b.str)
	case KindHeapRef:
		return e.heapRef(a.ref, b.ref)
	default:
		return false
	}
}

func doubleEqual(a, b float64) bool {
	if a != a && b != b {
		return true // NaN == NaN for this purpose
	}
	return a == b
}

func stringEqual(a, b StringValue) bool {
	ua, ub := a.UTF16(), b.UTF16()
	if len(ua) != len(ub) {
		return false
	}
	for i := range ua {
		if ua[i] != ub[i] {
			return false
		}
	}
	return true
}

func (e *equaler) heapRef(a, b HeapReference) bool {
	pair := refPair{a.index, b.index}
	if e.seen[pair] {
		return true
	}
	e.seen[pair] = true

	va, okA := e.heapA.TryOpen(a)
	vb, okB := e.heapB.TryOpen(b)
	if !okA || !okB {
		return okA == okB
	}
	return e.heapValue(va, vb)
}

func (e *equaler) heapValue(a, b *HeapValue) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBooleanObject:
		return a.boolVal == b.boolVal
	case KindNumberObject:
		return doubleEqual(a.numVal, b.numVal)
	case KindBigIntObject:
		return e.value(a.bigVal, b.bigVal)
	case KindStringObject:
		return stringEqual(a.strVal, b.strVal)
	case KindObject:
		return e.properties(a.props, b.props)
	case KindDenseArray:
		return e.elements(a.elements, b.elements) && e.properties(a.props, b.props)
	case KindSparseArray:
		return a.sparseLen == b.sparseLen && e.properties(a.props, b.props)
	case KindMap:
		return e.mapEntries(a.mapEntries, b.mapEntries)
	case KindSet:
		return e.elements(a.setValues, b.setValues)
	case KindArrayBuffer:
		return arrayBufferEqual(a.buffer, b.buffer)
	case KindArrayBufferView:
		return e.view(a.view, b.view)
	case KindRegExp:
		return stringEqual(a.regexp.Source, b.regexp.Source) && a.regexp.Flags == b.regexp.Flags
	case KindDate:
		return doubleEqual(a.date.MillisSinceEpoch, b.date.MillisSinceEpoch)
	case KindError:
		return e.error(a.err, b.err)
	default:
		return false
	}
}

func (e *equaler) properties(a, b []Property) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !propertyKeyEqual(a[i].Key, b[i].Key) {
			return false
		}
		if !e.value(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

func propertyKeyEqual(a, b PropertyKey) bool {
	// Property keys compare via their decimal-string projection: a
	// numeric key 7 and a string key "7" name the same JS property and
	// must compare equal even though their wire representations differ.
	if a.kind == pkString && b.kind == pkString {
		return stringEqual(a.str, b.str)
	}
	return a.DecimalString() == b.DecimalString()
}

func (e *equaler) elements(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !e.value(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (e *equaler) mapEntries(a, b []MapEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !e.value(a[i].Key, b[i].Key) || !e.value(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

func arrayBufferEqual(a, b ArrayBuffer) bool {
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	if (a.MaxByteLength == nil) != (b.MaxByteLength == nil) {
		return false
	}
	if a.MaxByteLength != nil && *a.MaxByteLength != *b.MaxByteLength {
		return false
	}
	return true
}

func (e *equaler) view(a, b ArrayBufferView) bool {
	if a.Kind != b.Kind || a.ByteOffset != b.ByteOffset || a.Length != b.Length ||
		a.IsLengthTracking != b.IsLengthTracking {
		return false
	}
	return e.heapRef(a.Buffer, b.Buffer)
}

func (e *equaler) error(a, b Error) bool {
	if a.Name != b.Name {
		return false
	}
	if (a.Message == nil) != (b.Message == nil) {
		return false
	}
	if a.Message != nil && !stringEqual(*a.Message, *b.Message) {
		return false
	}
	if (a.Stack == nil) != (b.Stack == nil) {
		return false
	}
	if a.Stack != nil && !stringEqual(*a.Stack, *b.Stack) {
		return false
	}
	if (a.Cause == nil) != (b.Cause == nil) {
		return false
	}
	if a.Cause != nil && !e.value(*a.Cause, *b.Cause) {
		return false
	}
	return true
}
