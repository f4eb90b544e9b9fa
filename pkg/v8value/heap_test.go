package v8value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapBuilderInsertAndOpen(t *testing.T) {
	t.Parallel()

	builder := NewHeapBuilder()
	ref := builder.Insert(Object([]Property{
		{Key: PropertyKeyString(NewString("a")), Value: I32(1)},
	}))
	heap := builder.Build()

	hv, ok := heap.TryOpen(ref)
	require.True(t, ok)
	assert.Equal(t, KindObject, hv.Kind())
	assert.Len(t, hv.Properties(), 1)
}

func TestHeapBuilderReserveThenFillSupportsCycles(t *testing.T) {
	t.Parallel()

	builder := NewHeapBuilder()
	ref := builder.Reserve()
	builder.Fill(ref, Object([]Property{
		{Key: PropertyKeyString(NewString("self")), Value: HeapRef(ref)},
	}))
	heap := builder.Build()

	hv, ok := heap.TryOpen(ref)
	require.True(t, ok)
	selfRef, ok := hv.Properties()[0].Value.HeapRef()
	require.True(t, ok)
	assert.Equal(t, ref, selfRef)
}

func TestHeapBuilderFillTwiceOnSameSlotPanics(t *testing.T) {
	t.Parallel()

	builder := NewHeapBuilder()
	ref := builder.Reserve()
	builder.Fill(ref, Object(nil))

	assert.Panics(t, func() {
		builder.Fill(ref, Object(nil))
	})
}

func TestHeapBuilderBuildPanicsOnUnfilledReservation(t *testing.T) {
	t.Parallel()

	builder := NewHeapBuilder()
	builder.Reserve()

	assert.Panics(t, func() {
		builder.Build()
	})
}

func TestHeapTryOpenRejectsForeignReference(t *testing.T) {
	t.Parallel()

	b1 := NewHeapBuilder()
	ref := b1.Insert(Object(nil))
	heap1 := b1.Build()

	b2 := NewHeapBuilder()
	b2.Insert(Object(nil))
	heap2 := b2.Build()

	_, ok := heap1.TryOpen(ref)
	require.True(t, ok)

	_, ok = heap2.TryOpen(ref)
	assert.False(t, ok, "a reference minted by one heap must not resolve against another")
}

func TestHeapReferenceByID(t *testing.T) {
	t.Parallel()

	builder := NewHeapBuilder()
	ref0 := builder.Insert(I32value(0))
	ref1 := builder.Insert(I32value(1))
	heap := builder.Build()

	got0, ok := heap.ReferenceByID(0)
	require.True(t, ok)
	assert.Equal(t, ref0, got0)

	got1, ok := heap.ReferenceByID(1)
	require.True(t, ok)
	assert.Equal(t, ref1, got1)

	_, ok = heap.ReferenceByID(2)
	assert.False(t, ok)
}

// I32value wraps an int32 Value as a HeapValue-compatible NumberObject,
// purely so this file can exercise ReferenceByID against more than one
// filled slot without reaching for a full Object literal each time.
func I32value(n int32) HeapValue {
	return NumberObject(float64(n))
}

func TestPropertyKeyDecimalStringEquatesNumericAndStringKeys(t *testing.T) {
	t.Parallel()

	numeric := PropertyKeyI32(7)
	str := PropertyKeyString(NewString("7"))

	assert.Equal(t, numeric.DecimalString(), str.DecimalString())
}

func TestRegExpFlagsStringOrdersCanonically(t *testing.T) {
	t.Parallel()

	flags := FlagSticky | FlagGlobal | FlagHasIndices | FlagIgnoreCase
	assert.Equal(t, "giyd", flags.String())
}

func TestDateValidRejectsOutOfRangeAndNaN(t *testing.T) {
	t.Parallel()

	assert.True(t, Date{MillisSinceEpoch: 0}.Valid())
	assert.False(t, Date{MillisSinceEpoch: MaxTimeInMS + 1}.Valid())
	assert.False(t, Date{MillisSinceEpoch: nan()}.Valid())
}

func nan() float64 {
	var zero float64
	return zero / zero
}
