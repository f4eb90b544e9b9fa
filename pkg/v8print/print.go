// Package v8print renders a parsed (Value, *Heap) pair as JavaScript
// source text that would reconstruct an equivalent object graph,
// including one that contains cycles or shared references.
package v8print

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/acolita/v8clone/pkg/v8value"
)

// Mode selects how the printer names the rendering it produces. It does
// not change the emitted text: every mode renders any hoisted
// `const vN = ...;` bindings and follow-up assignments as statements,
// followed by the root expression on its own line. No mode wraps the
// output in a function, and no mode parenthesises an object root.
type Mode uint8

const (
	// ModeExpression is the default mode.
	ModeExpression Mode = iota
	// ModeRepl renders the same text as ModeExpression.
	ModeRepl
	// ModeEval renders the same text as ModeExpression.
	ModeEval
)

// Options configures Display.
type Options struct {
	Mode Mode
}

// RenderErrorKind classifies why Display failed.
type RenderErrorKind uint8

const (
	RenderErrDanglingReference RenderErrorKind = iota
	RenderErrWriteFailed
)

func (k RenderErrorKind) String() string {
	switch k {
	case RenderErrDanglingReference:
		return "DanglingReference"
	case RenderErrWriteFailed:
		return "WriteFailed"
	default:
		return "Unknown"
	}
}

// RenderError is returned by Display.
type RenderError struct {
	Kind RenderErrorKind
	msg  string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("v8print: render error: %s: %s", e.Kind, e.msg)
}

func newRenderError(kind RenderErrorKind, format string, args ...interface{}) *RenderError {
	return &RenderError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Display renders root (dereferencing through heap as needed) as
// JavaScript source text. It is a convenience wrapper around Render
// that never observes a write failure, since it writes to an in-memory
// strings.Builder.
func Display(heap *v8value.Heap, root v8value.Value, opts Options) (string, error) {
	var b strings.Builder
	if err := Render(&b, heap, root, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Render writes root (dereferencing through heap as needed) to w as
// JavaScript source text. A write failure on w surfaces as a
// RenderError with kind RenderErrWriteFailed.
func Render(w io.Writer, heap *v8value.Heap, root v8value.Value, opts Options) error {
	sb, ok := w.(*strings.Builder)
	if !ok {
		var buf strings.Builder
		sb = &buf
	}
	d := &displayer{
		heap:   heap,
		deps:   make(map[v8value.HeapReference]*heapObjectInfo),
		idents: make(map[v8value.HeapReference]string),
		opts:   opts,
		w:      sb,
	}

	var order []v8value.HeapReference
	if ref, ok := root.HeapRef(); ok {
		var err error
		order, err = d.analyze(ref)
		if err != nil {
			return err
		}
		d.deps[ref].dependantsCount++ // the root itself counts as one dependant
	}

	for i, ref := range order {
		info := d.deps[ref]
		if info.inlineable() {
			continue
		}
		ident := fmt.Sprintf("v%d", i)
		hv, ok := heap.TryOpen(ref)
		if !ok {
			return newRenderError(RenderErrDanglingReference, "reference %s does not resolve", ref)
		}
		fmt.Fprintf(d.w, "const %s = ", ident)
		if err := d.displayHeapValue(hv, ref); err != nil {
			return err
		}
		d.w.WriteString(";\n")
		d.idents[ref] = ident

		if err := d.drainFollowUps(); err != nil {
			return err
		}
	}

	if err := d.displayValue(root); err != nil {
		return err
	}

	if sb != w {
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return newRenderError(RenderErrWriteFailed, "%v", err)
		}
	}
	return nil
}

// heapObjectInfo tracks, for a single heap object visited during
// dependency analysis, what it points to, what points to it, and
// whether it must be hoisted into a top-level const binding rather
// than inlined at its first use.
type heapObjectInfo struct {
	dependencies    map[v8value.HeapReference]bool
	dependants      map[v8value.HeapReference]bool
	dependantsCount int
	requiresBinding bool
}

func newHeapObjectInfo() *heapObjectInfo {
	return &heapObjectInfo{
		dependencies: make(map[v8value.HeapReference]bool),
		dependants:   make(map[v8value.HeapReference]bool),
	}
}

func (i *heapObjectInfo) inlineable() bool {
	return i.dependantsCount < 2 && !i.requiresBinding
}

// followUpKind identifies which deferred assignment a followUpTask
// represents, run once its target object has been assigned an
// identifier (this breaks the chicken-and-egg problem of an object
// whose property value is itself, directly or through a cycle).
type followUpKind uint8

const (
	followUpProperty followUpKind = iota
	followUpMapSet
	followUpSetAdd
)

type followUpTask struct {
	kind   followUpKind
	target v8value.HeapReference
	key    v8value.PropertyKey
	k, v   v8value.Value
}

type displayer struct {
	heap *v8value.Heap
	w    *strings.Builder
	opts Options

	indent int

	deps         map[v8value.HeapReference]*heapObjectInfo
	idents       map[v8value.HeapReference]string
	followUpTasks []followUpTask
}

// analyze performs pass 1: a DFS from root that records, for every
// reachable heap object, its dependencies/dependants and whether a
// cycle forces it to require a top-level binding. It returns objects in
// post (finish) order, so that by the time an object is emitted every
// object it depends on (other than through a cycle) has already been
// emitted or is itself deferred to a binding.
func (d *displayer) analyze(root v8value.HeapReference) ([]v8value.HeapReference, error) {
	var order []v8value.HeapReference
	var stack []v8value.HeapReference
	onStack := make(map[v8value.HeapReference]bool)

	var visit func(ref v8value.HeapReference) error
	visit = func(ref v8value.HeapReference) error {
		if info, seen := d.deps[ref]; seen {
			if onStack[ref] {
				info.requiresBinding = true
				if len(stack) > 0 {
					d.deps[stack[len(stack)-1]].requiresBinding = true
				}
			}
			return nil
		}
		info := newHeapObjectInfo()
		d.deps[ref] = info
		stack = append(stack, ref)
		onStack[ref] = true

		record := func(referred v8value.HeapReference) error {
			info.dependencies[referred] = true
			if err := visit(referred); err != nil {
				return err
			}
			referredInfo, ok := d.deps[referred]
			if !ok {
				return newRenderError(RenderErrDanglingReference, "reference %s does not resolve", referred)
			}
			referredInfo.dependants[ref] = true
			referredInfo.dependantsCount++
			return nil
		}

		hv, ok := d.heap.TryOpen(ref)
		if !ok {
			return newRenderError(RenderErrDanglingReference, "reference %s does not resolve", ref)
		}

		switch hv.Kind() {
		case v8value.KindObject:
			for _, p := range hv.Properties() {
				if r, ok := p.Value.HeapRef(); ok {
					if err := record(r); err != nil {
						return err
					}
				}
			}
		case v8value.KindSparseArray:
			if len(hv.Properties()) > 0 {
				info.requiresBinding = true
			}
			for _, p := range hv.Properties() {
				if r, ok := p.Value.HeapRef(); ok {
					if err := record(r); err != nil {
						return err
					}
				}
			}
		case v8value.KindDenseArray:
			for _, e := range hv.Elements() {
				if r, ok := e.HeapRef(); ok {
					if err := record(r); err != nil {
						return err
					}
				}
			}
			if len(hv.Properties()) > 0 {
				info.requiresBinding = true
			}
			for _, p := range hv.Properties() {
				if r, ok := p.Value.HeapRef(); ok {
					if err := record(r); err != nil {
						return err
					}
				}
			}
		case v8value.KindMap:
			for _, e := range hv.MapEntries() {
				if r, ok := e.Key.HeapRef(); ok {
					if err := record(r); err != nil {
						return err
					}
				}
				if r, ok := e.Value.HeapRef(); ok {
					if err := record(r); err != nil {
						return err
					}
				}
			}
		case v8value.KindSet:
			for _, v := range hv.SetValues() {
				if r, ok := v.HeapRef(); ok {
					if err := record(r); err != nil {
						return err
					}
				}
			}
		case v8value.KindArrayBufferView:
			if err := record(hv.ArrayBufferView().Buffer); err != nil {
				return err
			}
		case v8value.KindError:
			if hv.Error().Cause != nil {
				if r, ok := hv.Error().Cause.HeapRef(); ok {
					if err := record(r); err != nil {
						return err
					}
				}
			}
		}

		order = append(order, ref)
		stack = stack[:len(stack)-1]
		delete(onStack, ref)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

func (d *displayer) isReadyToRender(v v8value.Value) bool {
	ref, ok := v.HeapRef()
	if !ok {
		return true
	}
	if info, ok := d.deps[ref]; ok && info.inlineable() {
		return true
	}
	_, bound := d.idents[ref]
	return bound
}

func (d *displayer) drainFollowUps() error {
	pending := d.followUpTasks
	d.followUpTasks = nil
	for _, task := range pending {
		ident, ok := d.idents[task.target]
		if !ok {
			d.followUpTasks = append(d.followUpTasks, task)
			continue
		}
		switch task.kind {
		case followUpProperty:
			if !d.isReadyToRender(task.v) {
				d.followUpTasks = append(d.followUpTasks, task)
				continue
			}
			fmt.Fprintf(d.w, "%s[", ident)
			if err := d.displayPropertyKeyBracketed(task.key); err != nil {
				return err
			}
			d.w.WriteString("] = ")
			if err := d.displayValue(task.v); err != nil {
				return err
			}
			d.w.WriteString(";\n")
		case followUpMapSet:
			if !d.isReadyToRender(task.k) || !d.isReadyToRender(task.v) {
				d.followUpTasks = append(d.followUpTasks, task)
				continue
			}
			fmt.Fprintf(d.w, "%s.set(", ident)
			if err := d.displayValue(task.k); err != nil {
				return err
			}
			d.w.WriteString(", ")
			if err := d.displayValue(task.v); err != nil {
				return err
			}
			d.w.WriteString(");\n")
		case followUpSetAdd:
			if !d.isReadyToRender(task.v) {
				d.followUpTasks = append(d.followUpTasks, task)
				continue
			}
			fmt.Fprintf(d.w, "%s.add(", ident)
			if err := d.displayValue(task.v); err != nil {
				return err
			}
			d.w.WriteString(");\n")
		}
	}
	return nil
}

func (d *displayer) displayValue(v v8value.Value) error {
	switch v.Kind() {
	case v8value.KindUndefined:
		d.w.WriteString("undefined")
		return nil
	case v8value.KindNull:
		d.w.WriteString("null")
		return nil
	case v8value.KindBool:
		b, _ := v.Bool()
		fmt.Fprintf(d.w, "%t", b)
		return nil
	case v8value.KindI32:
		n, _ := v.I32()
		fmt.Fprintf(d.w, "%d", n)
		return nil
	case v8value.KindU32:
		n, _ := v.U32()
		fmt.Fprintf(d.w, "%d", n)
		return nil
	case v8value.KindDouble:
		f, _ := v.Double()
		d.displayNumber(f)
		return nil
	case v8value.KindBigInt:
		n, _ := v.BigInt()
		fmt.Fprintf(d.w, "%sn", n.String())
		return nil
	case v8value.KindString:
		sv, _ := v.String()
		d.displayString(sv)
		return nil
	case v8value.KindHeapRef:
		ref, _ := v.HeapRef()
		if ident, ok := d.idents[ref]; ok {
			d.w.WriteString(ident)
			return nil
		}
		hv, ok := d.heap.TryOpen(ref)
		if !ok {
			return newRenderError(RenderErrDanglingReference, "reference %s does not resolve", ref)
		}
		return d.displayHeapValue(hv, ref)
	default:
		return newRenderError(RenderErrWriteFailed, "value has unrenderable kind %s", v.Kind())
	}
}

func (d *displayer) displayNumber(f float64) {
	if f != f {
		d.w.WriteString("NaN")
		return
	}
	if f > 1.7976931348623157e+308 {
		d.w.WriteString("Infinity")
		return
	}
	if f < -1.7976931348623157e+308 {
		d.w.WriteString("-Infinity")
		return
	}
	d.w.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func (d *displayer) displayString(s v8value.StringValue) {
	d.w.WriteByte('"')
	for _, r := range s.UTF16() {
		switch r {
		case '"', '\\':
			d.w.WriteByte('\\')
			d.w.WriteByte(byte(r))
		default:
			if r < 0x20 {
				fmt.Fprintf(d.w, "\\u%04x", r)
			} else if r >= 0xD800 && r <= 0xDFFF {
				// Surrogate code unit, paired or lone: each one is
				// escaped individually instead of being emitted as a
				// literal character.
				fmt.Fprintf(d.w, "\\u%04x", r)
			} else {
				d.w.WriteRune(rune(r))
			}
		}
	}
	d.w.WriteByte('"')
}

func (d *displayer) displayIndent(extra int) {
	for i := 0; i < d.indent+extra; i++ {
		d.w.WriteString("  ")
	}
}

func (d *displayer) displayPropertyKeyBracketed(k v8value.PropertyKey) error {
	if sv, ok := propertyKeyString(k); ok {
		d.displayString(sv)
		return nil
	}
	d.w.WriteString(k.DecimalString())
	return nil
}

func (d *displayer) displayPropertyKey(k v8value.PropertyKey) error {
	if sv, ok := propertyKeyString(k); ok {
		if isIdentifierLike(sv) {
			d.w.WriteString(sv.GoString())
			return nil
		}
		d.displayString(sv)
		return nil
	}
	fmt.Fprintf(d.w, "[%s]", k.DecimalString())
	return nil
}

func propertyKeyString(k v8value.PropertyKey) (v8value.StringValue, bool) {
	if sv, ok := k.AsValue().String(); ok {
		return sv, true
	}
	return v8value.StringValue{}, false
}

func isIdentifierLike(s v8value.StringValue) bool {
	units := s.UTF16()
	if len(units) == 0 {
		return false
	}
	for i, u := range units {
		c := rune(u)
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$'
		isDigit := c >= '0' && c <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if i > 0 && !isLetter && !isDigit {
			return false
		}
	}
	return true
}

func (d *displayer) displayHeapValue(hv *v8value.HeapValue, ref v8value.HeapReference) error {
	switch hv.Kind() {
	case v8value.KindBooleanObject:
		fmt.Fprintf(d.w, "new Boolean(%t)", hv.AsBooleanObject())
		return nil
	case v8value.KindNumberObject:
		d.w.WriteString("new Number(")
		d.displayNumber(hv.AsNumberObject())
		d.w.WriteString(")")
		return nil
	case v8value.KindBigIntObject:
		n, _ := hv.AsBigIntObject().BigInt()
		fmt.Fprintf(d.w, "new Object(%sn)", n.String())
		return nil
	case v8value.KindStringObject:
		d.w.WriteString("new String(")
		d.displayString(hv.AsStringObject())
		d.w.WriteString(")")
		return nil
	case v8value.KindRegExp:
		re := hv.RegExp()
		d.w.WriteString("new RegExp(")
		d.displayString(re.Source)
		fmt.Fprintf(d.w, ", %q)", re.Flags.String())
		return nil
	case v8value.KindDate:
		date := hv.Date()
		d.w.WriteString("new Date(")
		if date.Valid() {
			d.displayNumber(date.MillisSinceEpoch)
		} else {
			d.w.WriteString("NaN")
		}
		d.w.WriteString(")")
		return nil
	case v8value.KindObject:
		return d.displayObject(hv, ref)
	case v8value.KindSparseArray:
		return d.displaySparseArray(hv, ref)
	case v8value.KindDenseArray:
		return d.displayDenseArray(hv, ref)
	case v8value.KindMap:
		return d.displayMap(hv, ref)
	case v8value.KindSet:
		return d.displaySet(hv, ref)
	case v8value.KindArrayBuffer:
		return d.displayArrayBuffer(hv)
	case v8value.KindArrayBufferView:
		return d.displayArrayBufferView(hv, ref)
	case v8value.KindError:
		return d.displayError(hv, ref)
	default:
		return newRenderError(RenderErrWriteFailed, "heap value has unrenderable kind %s", hv.Kind())
	}
}

func (d *displayer) displayObject(hv *v8value.HeapValue, ref v8value.HeapReference) error {
	d.w.WriteString("{\n")
	for _, p := range hv.Properties() {
		if d.isReadyToRender(p.Value) {
			d.displayIndent(1)
			if err := d.displayPropertyKey(p.Key); err != nil {
				return err
			}
			d.w.WriteString(": ")
			d.indent++
			if err := d.displayValue(p.Value); err != nil {
				return err
			}
			d.indent--
			d.w.WriteString(",\n")
		} else {
			d.followUpTasks = append(d.followUpTasks, followUpTask{
				kind: followUpProperty, target: ref, key: p.Key, v: p.Value,
			})
		}
	}
	d.displayIndent(0)
	d.w.WriteString("}")
	return nil
}

func (d *displayer) displaySparseArray(hv *v8value.HeapValue, ref v8value.HeapReference) error {
	fmt.Fprintf(d.w, "new Array(%d)", hv.SparseLength())
	for _, p := range hv.Properties() {
		d.followUpTasks = append(d.followUpTasks, followUpTask{
			kind: followUpProperty, target: ref, key: p.Key, v: p.Value,
		})
	}
	return nil
}

func (d *displayer) displayDenseArray(hv *v8value.HeapValue, ref v8value.HeapReference) error {
	d.w.WriteString("[\n")
	for i, v := range hv.Elements() {
		d.displayIndent(1)
		d.indent++
		if v.Kind() == v8value.KindUndefined {
			d.w.WriteString("/* hole */")
		} else if d.isReadyToRender(v) {
			if err := d.displayValue(v); err != nil {
				return err
			}
		} else {
			d.followUpTasks = append(d.followUpTasks, followUpTask{
				kind: followUpProperty, target: ref, key: v8value.PropertyKeyI32(int32(i)), v: v,
			})
			d.w.WriteString("null")
		}
		d.indent--
		d.w.WriteString(",\n")
	}
	d.displayIndent(0)
	d.w.WriteString("]")
	for _, p := range hv.Properties() {
		d.followUpTasks = append(d.followUpTasks, followUpTask{
			kind: followUpProperty, target: ref, key: p.Key, v: p.Value,
		})
	}
	return nil
}

func (d *displayer) displayMap(hv *v8value.HeapValue, ref v8value.HeapReference) error {
	d.w.WriteString("new Map([\n")
	for _, e := range hv.MapEntries() {
		if d.isReadyToRender(e.Key) && d.isReadyToRender(e.Value) {
			d.displayIndent(1)
			d.w.WriteString("[")
			if err := d.displayValue(e.Key); err != nil {
				return err
			}
			d.w.WriteString(", ")
			d.indent++
			if err := d.displayValue(e.Value); err != nil {
				return err
			}
			d.indent--
			d.w.WriteString("],\n")
		} else {
			d.followUpTasks = append(d.followUpTasks, followUpTask{
				kind: followUpMapSet, target: ref, k: e.Key, v: e.Value,
			})
		}
	}
	d.displayIndent(0)
	d.w.WriteString("])")
	return nil
}

func (d *displayer) displaySet(hv *v8value.HeapValue, ref v8value.HeapReference) error {
	d.w.WriteString("new Set([\n")
	for _, v := range hv.SetValues() {
		if d.isReadyToRender(v) {
			d.displayIndent(1)
			d.indent++
			if err := d.displayValue(v); err != nil {
				return err
			}
			d.indent--
			d.w.WriteString(",\n")
		} else {
			d.followUpTasks = append(d.followUpTasks, followUpTask{
				kind: followUpSetAdd, target: ref, v: v,
			})
		}
	}
	d.displayIndent(0)
	d.w.WriteString("])")
	return nil
}

// displayArrayBuffer renders a buffer as a Uint8Array literal filled
// from a hex-escaped byte list; this is lossless and short for typical
// binary payloads, unlike trying to guess a "natural" typed-array view.
func (d *displayer) displayArrayBuffer(hv *v8value.HeapValue) error {
	buf := hv.ArrayBuffer()
	d.w.WriteString("new Uint8Array([")
	for i, b := range buf.Data {
		if i > 0 {
			d.w.WriteString(", ")
		}
		fmt.Fprintf(d.w, "0x%02x", b)
	}
	d.w.WriteString("]).buffer")
	if buf.MaxByteLength != nil {
		fmt.Fprintf(d.w, " /* resizable, maxByteLength=%d */", *buf.MaxByteLength)
	}
	return nil
}

var viewCtorName = map[v8value.ArrayBufferViewKind]string{
	v8value.ViewInt8Array:         "Int8Array",
	v8value.ViewUint8Array:        "Uint8Array",
	v8value.ViewUint8ClampedArray: "Uint8ClampedArray",
	v8value.ViewInt16Array:        "Int16Array",
	v8value.ViewUint16Array:       "Uint16Array",
	v8value.ViewInt32Array:        "Int32Array",
	v8value.ViewUint32Array:       "Uint32Array",
	v8value.ViewFloat32Array:      "Float32Array",
	v8value.ViewFloat64Array:      "Float64Array",
	v8value.ViewBigInt64Array:     "BigInt64Array",
	v8value.ViewBigUint64Array:    "BigUint64Array",
	v8value.ViewDataView:          "DataView",
}

// displayArrayBufferView renders a typed-array/DataView constructor
// call over the (possibly shared) backing buffer, rendering the buffer
// in place as an inline literal or its bound identifier.
func (d *displayer) displayArrayBufferView(hv *v8value.HeapValue, ref v8value.HeapReference) error {
	view := hv.ArrayBufferView()
	ctor, ok := viewCtorName[view.Kind]
	if !ok {
		return newRenderError(RenderErrWriteFailed, "unknown view kind %d", view.Kind)
	}
	// The dependency pass always finishes a view's buffer before the
	// view itself (the wire format requires the buffer to precede its
	// view), so by the time we get here the buffer is either inlineable
	// or already bound to a const.
	bufVal := v8value.HeapRef(view.Buffer)
	fmt.Fprintf(d.w, "new %s(", ctor)
	if err := d.displayValue(bufVal); err != nil {
		return err
	}
	fmt.Fprintf(d.w, ", %d, %d)", view.ByteOffset, view.Length)
	return nil
}

var errorCtorName = map[v8value.ErrorName]string{
	v8value.ErrorNamePlain:     "Error",
	v8value.ErrorNameEval:      "EvalError",
	v8value.ErrorNameRange:     "RangeError",
	v8value.ErrorNameReference: "ReferenceError",
	v8value.ErrorNameSyntax:    "SyntaxError",
	v8value.ErrorNameType:      "TypeError",
	v8value.ErrorNameURI:       "URIError",
}

func (d *displayer) displayError(hv *v8value.HeapValue, ref v8value.HeapReference) error {
	e := hv.Error()
	ctor := errorCtorName[e.Name]
	fmt.Fprintf(d.w, "new %s(", ctor)
	if e.Message != nil {
		d.displayString(*e.Message)
	} else {
		d.w.WriteString(`""`)
	}
	if e.Cause != nil && !d.isReadyToRender(*e.Cause) {
		// A cause that is still being rendered (a cycle) is patched in
		// by a follow-up assignment once its identifier is bound.
		d.followUpTasks = append(d.followUpTasks, followUpTask{
			kind: followUpProperty, target: ref, key: v8value.PropertyKeyString(v8value.NewString("cause")), v: *e.Cause,
		})
	} else if e.Cause != nil {
		d.w.WriteString(", { cause: ")
		if err := d.displayValue(*e.Cause); err != nil {
			return err
		}
		d.w.WriteString(" }")
	}
	d.w.WriteString(")")
	if e.Stack != nil {
		d.w.WriteString(" /* stack omitted */")
	}
	return nil
}
