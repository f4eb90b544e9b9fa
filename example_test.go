package v8clone_test

import (
	"fmt"
	"log"

	"github.com/acolita/v8clone/pkg/v8serialize"
	"github.com/acolita/v8clone/pkg/v8value"
)

func Example_parseInt32() {
	// V8-serialized int32(42): ff0f4954
	// - ff = version tag
	// - 0f = version 15
	// - 49 = 'I' = Int32 tag
	// - 54 = ZigZag(42) = 84 as varint
	data := []byte{0xff, 0x0f, 0x49, 0x54}

	val, _, err := v8serialize.Parse(data)
	if err != nil {
		log.Fatal(err)
	}

	n, _ := val.I32()
	fmt.Printf("Kind: %s\n", val.Kind())
	fmt.Printf("Value: %d\n", n)
	// Output:
	// Kind: i32
	// Value: 42
}

func Example_parseObject() {
	// V8-serialized {a: 1, b: 2}
	data := []byte{
		0xff, 0x0f, // version header
		0x6f,             // 'o' = begin object
		0x22, 0x01, 0x61, // one-byte string "a"
		0x49, 0x02, // int32(1) - ZigZag(1) = 2
		0x22, 0x01, 0x62, // one-byte string "b"
		0x49, 0x04, // int32(2) - ZigZag(2) = 4
		0x7b, 0x02, // '{' = end object, 2 properties
	}

	val, heap, err := v8serialize.Parse(data)
	if err != nil {
		log.Fatal(err)
	}

	ref, _ := val.HeapRef()
	obj, _ := heap.TryOpen(ref)
	for _, p := range obj.Properties() {
		n, _ := p.Value.I32()
		fmt.Printf("%s = %d\n", p.Key.DecimalString(), n)
	}
	// Output:
	// a = 1
	// b = 2
}

func Example_isValidHeader() {
	validData := []byte{0xff, 0x0f, 0x30} // null
	invalidData := []byte{0x00, 0x01, 0x02}

	fmt.Printf("Valid: %v\n", v8serialize.IsValidHeader(validData))
	fmt.Printf("Invalid: %v\n", v8serialize.IsValidHeader(invalidData))
	// Output:
	// Valid: true
	// Invalid: false
}

func Example_roundTrip() {
	original := v8value.NewString("Hello, 世界! 🌍")
	heap := v8value.NewHeap()

	data, err := v8serialize.Serialize(heap, v8value.StringVal(original))
	if err != nil {
		log.Fatal(err)
	}

	restoredVal, _, err := v8serialize.Parse(data)
	if err != nil {
		log.Fatal(err)
	}
	restored, _ := restoredVal.String()

	fmt.Printf("Original: %s\n", original.GoString())
	fmt.Printf("Restored: %s\n", restored.GoString())
	fmt.Printf("Match: %v\n", original.GoString() == restored.GoString())
	// Output:
	// Original: Hello, 世界! 🌍
	// Restored: Hello, 世界! 🌍
	// Match: true
}
