// Package v8serialize provides serialization and deserialization of V8's
// Structured Clone format.
//
// This format is used by Node.js v8.serialize() and v8.deserialize(), as
// well as various web APIs like postMessage, IndexedDB, and the
// Clipboard API.
//
// # Basic Usage
//
// Parse V8 data:
//
//	data := []byte{0xff, 0x0f, 0x49, 0x54} // V8-serialized int32(42)
//	val, heap, err := v8serialize.Parse(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	n, _ := val.I32() // 42
//
// Serialize a value back out:
//
//	out, err := v8serialize.Serialize(heap, val)
//
// # Supported Types
//
// The library supports all common JavaScript types including:
//   - Primitives: null, undefined, boolean, numbers (int32, double), BigInt, strings
//   - Objects: plain objects, arrays (dense and sparse with holes)
//   - Collections: Map, Set (preserving insertion order)
//   - Binary: ArrayBuffer, ResizableArrayBuffer, TypedArrays, DataView
//   - Special: Date, RegExp, Error (with cause), boxed primitives
//   - Circular references, on both parse and serialize
//
// # Compatibility
//
// Supported V8 serialization format versions: 14-15 (Node.js 21+).
// Serialize always emits version 15.
package v8serialize

import (
	"fmt"

	"github.com/acolita/v8clone/pkg/v8value"
)

// MustParse parses V8 data and panics on error. Use this only when the
// data is known to be valid, e.g. in tests or examples.
func MustParse(data []byte, opts ...Option) (v8value.Value, *v8value.Heap) {
	val, heap, err := Parse(data, opts...)
	if err != nil {
		panic(fmt.Sprintf("v8serialize.MustParse: %v", err))
	}
	return val, heap
}

// IsValidHeader reports whether data starts with a structurally valid
// Version tag and a version number in the supported range. This is a
// quick check of the first few bytes; it does not validate the rest of
// the payload.
func IsValidHeader(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	d := NewDeserializer(data)
	return d.readHeader() == nil
}
