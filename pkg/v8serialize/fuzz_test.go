package v8serialize

import (
	"testing"

	"github.com/acolita/v8clone/pkg/v8value"
)

// FuzzParse tests that the parser doesn't panic on arbitrary input.
func FuzzParse(f *testing.F) {
	seeds := [][]byte{
		{0xff, 0x0f, 0x30},                                // null
		{0xff, 0x0f, 0x5f},                                // undefined
		{0xff, 0x0f, 0x54},                                // true
		{0xff, 0x0f, 0x46},                                // false
		{0xff, 0x0f, 0x49, 0x54},                          // int32(42)
		{0xff, 0x0f, 0x49, 0x00},                          // int32(0)
		{0xff, 0x0f, 0x22, 0x05, 'h', 'e', 'l', 'l', 'o'}, // "hello"
		{0xff, 0x0f, 0x6f, 0x7b, 0x00},                    // empty object
		{0xff, 0x0f, 0x41, 0x00, 0x24, 0x00, 0x00},        // empty array
		{},
		{0xff},
		{0xff, 0x0f},
		{0x00, 0x01, 0x02},
		{0xff, 0x0f, 0x49},                         // truncated int32
		{0xff, 0x0f, 0x22, 0xff, 0xff, 0xff, 0xff}, // huge string length
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		val, heap, err := Parse(data)
		if err != nil {
			return // errors are expected for invalid input
		}
		_ = val.GoString()
		_ = heap.Len()
	})
}

// FuzzRoundTrip tests that valid strings round-trip correctly.
func FuzzRoundTrip(f *testing.F) {
	f.Add("hello")
	f.Add("")
	f.Add("你好世界")
	f.Add("emoji: 🎉🎊🎈")
	f.Add("\x00\x01\x02")
	f.Add("a]b{c}d")
	f.Add("café")
	f.Add("\xc3\xa4")

	f.Fuzz(func(t *testing.T, s string) {
		sv := v8value.NewString(s)
		heap := v8value.NewHeap()

		data, err := Serialize(heap, v8value.StringVal(sv))
		if err != nil {
			t.Fatalf("Serialize failed: %v", err)
		}

		val, _, err := Parse(data)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}

		got, ok := val.String()
		if !ok {
			t.Fatalf("expected string, got %s", val.Kind())
		}
		if got.GoString() != s {
			t.Fatalf("round-trip mismatch: got %q, want %q", got.GoString(), s)
		}
	})
}

// FuzzInt32RoundTrip tests int32 round-trips.
func FuzzInt32RoundTrip(f *testing.F) {
	f.Add(int32(0))
	f.Add(int32(1))
	f.Add(int32(-1))
	f.Add(int32(42))
	f.Add(int32(-42))
	f.Add(int32(2147483647))
	f.Add(int32(-2147483648))

	f.Fuzz(func(t *testing.T, n int32) {
		heap := v8value.NewHeap()
		data, err := Serialize(heap, v8value.I32(n))
		if err != nil {
			t.Fatalf("Serialize failed: %v", err)
		}

		val, _, err := Parse(data)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}

		got, ok := val.I32()
		if !ok {
			t.Fatalf("expected int32, got %s", val.Kind())
		}
		if got != n {
			t.Fatalf("got %d, want %d", got, n)
		}
	})
}
