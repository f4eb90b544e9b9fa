package v8print

import (
	"strings"
	"testing"

	"github.com/acolita/v8clone/pkg/v8value"
)

func TestDisplayPrimitives(t *testing.T) {
	tests := []struct {
		name string
		val  v8value.Value
		want string
	}{
		{"undefined", v8value.Undefined(), "undefined"},
		{"null", v8value.Null(), "null"},
		{"true", v8value.Bool(true), "true"},
		{"int32", v8value.I32(42), "42"},
		{"string", v8value.StringVal(v8value.NewString("hi")), `"hi"`},
	}

	heap := v8value.NewHeap()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Display(heap, tt.val, Options{})
			if err != nil {
				t.Fatalf("Display failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplayObject(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	ref := builder.Insert(v8value.Object([]v8value.Property{
		{Key: v8value.PropertyKeyString(v8value.NewString("a")), Value: v8value.I32(1)},
		{Key: v8value.PropertyKeyString(v8value.NewString("b")), Value: v8value.StringVal(v8value.NewString("two"))},
	}))
	heap := builder.Build()

	got, err := Display(heap, v8value.HeapRef(ref), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if !strings.Contains(got, `a: 1`) || !strings.Contains(got, `b: "two"`) {
		t.Errorf("unexpected output: %s", got)
	}
}

func TestDisplayDenseArray(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	ref := builder.Insert(v8value.DenseArray([]v8value.Value{v8value.I32(1), v8value.I32(2), v8value.I32(3)}, nil))
	heap := builder.Build()

	got, err := Display(heap, v8value.HeapRef(ref), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if !strings.Contains(got, "[\n") || !strings.Contains(got, "1,") {
		t.Errorf("unexpected output: %s", got)
	}
}

func TestDisplaySelfReferencingObject(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	ref := builder.Reserve()
	builder.Fill(ref, v8value.Object([]v8value.Property{
		{Key: v8value.PropertyKeyString(v8value.NewString("self")), Value: v8value.HeapRef(ref)},
	}))
	heap := builder.Build()

	got, err := Display(heap, v8value.HeapRef(ref), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if !strings.HasPrefix(got, "const v0 = {\n") {
		t.Errorf("expected a hoisted const binding for the cyclic object, got: %s", got)
	}
	if !strings.Contains(got, `v0["self"] = v0;`) && !strings.Contains(got, "self: v0,") {
		t.Errorf("expected the self-reference to resolve to the bound identifier, got: %s", got)
	}
}

func TestDisplaySharedReference(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	shared := builder.Insert(v8value.Object([]v8value.Property{
		{Key: v8value.PropertyKeyString(v8value.NewString("x")), Value: v8value.I32(1)},
	}))
	root := builder.Insert(v8value.Object([]v8value.Property{
		{Key: v8value.PropertyKeyString(v8value.NewString("a")), Value: v8value.HeapRef(shared)},
		{Key: v8value.PropertyKeyString(v8value.NewString("b")), Value: v8value.HeapRef(shared)},
	}))
	heap := builder.Build()

	got, err := Display(heap, v8value.HeapRef(root), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if !strings.Contains(got, "const v0 = {\n") {
		t.Errorf("expected the twice-referenced object to be hoisted, got: %s", got)
	}
	if strings.Count(got, "v0") < 3 {
		t.Errorf("expected both properties to reference the shared binding, got: %s", got)
	}
}

func TestDisplayDanglingReference(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	ref := builder.Reserve()
	// Deliberately never Fill ref: Build would panic, so construct the
	// Value directly against an unrelated, already-built Heap instead to
	// exercise the dangling-reference error path.
	heap := v8value.NewHeap()
	_ = ref

	_, err := Display(heap, v8value.HeapRef(v8value.HeapReference{}), Options{})
	if err == nil {
		t.Fatalf("expected an error for a dangling reference")
	}
	rerr, ok := err.(*RenderError)
	if !ok {
		t.Fatalf("expected *RenderError, got %T", err)
	}
	if rerr.Kind != RenderErrDanglingReference {
		t.Errorf("expected RenderErrDanglingReference, got %s", rerr.Kind)
	}
}

func TestDisplayArrayBufferAndView(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	buf := builder.Insert(v8value.NewArrayBuffer(v8value.ArrayBuffer{Data: []byte{1, 2, 3, 4}}))
	view := builder.Insert(v8value.NewArrayBufferView(v8value.ArrayBufferView{
		Kind:   v8value.ViewUint8Array,
		Buffer: buf,
		Length: 4,
	}))
	heap := builder.Build()

	got, err := Display(heap, v8value.HeapRef(view), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if !strings.Contains(got, "new Uint8Array(") {
		t.Errorf("unexpected output: %s", got)
	}
}

func TestDisplayRegExp(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	ref := builder.Insert(v8value.NewRegExp(v8value.RegExp{
		Source: v8value.NewString("a.*b"),
		Flags:  v8value.FlagGlobal | v8value.FlagIgnoreCase,
	}))
	heap := builder.Build()

	got, err := Display(heap, v8value.HeapRef(ref), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if got != `new RegExp("a.*b", "gi")` {
		t.Errorf("got %q", got)
	}
}

func TestDisplayErrorWithCause(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	causeMsg := v8value.NewString("root cause")
	cause := builder.Insert(v8value.NewError(v8value.Error{Name: v8value.ErrorNameType, Message: &causeMsg}))
	msg := v8value.NewString("outer")
	causeVal := v8value.HeapRef(cause)
	ref := builder.Insert(v8value.NewError(v8value.Error{Name: v8value.ErrorNamePlain, Message: &msg, Cause: &causeVal}))
	heap := builder.Build()

	got, err := Display(heap, v8value.HeapRef(ref), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if !strings.Contains(got, "new Error(") || !strings.Contains(got, "cause:") || !strings.Contains(got, "new TypeError(") {
		t.Errorf("unexpected output: %s", got)
	}
}

func TestDisplayMapAndSet(t *testing.T) {
	builder := v8value.NewHeapBuilder()
	m := builder.Insert(v8value.Map([]v8value.MapEntry{
		{Key: v8value.StringVal(v8value.NewString("k")), Value: v8value.I32(1)},
	}))
	heap := builder.Build()

	got, err := Display(heap, v8value.HeapRef(m), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if !strings.Contains(got, "new Map([") {
		t.Errorf("unexpected output: %s", got)
	}

	builder2 := v8value.NewHeapBuilder()
	s := builder2.Insert(v8value.Set([]v8value.Value{v8value.I32(1), v8value.I32(2)}))
	heap2 := builder2.Build()

	got2, err := Display(heap2, v8value.HeapRef(s), Options{})
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if !strings.Contains(got2, "new Set([") {
		t.Errorf("unexpected output: %s", got2)
	}
}
