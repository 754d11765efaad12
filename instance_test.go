package reflexio

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultInstancesEqual(t *testing.T) {
	f := newFixture(t)
	a, b := f.myStruct.New(), f.myStruct.New()

	assert.Equal(t, f.myEnum.MustValue("EnumVal2"), mustGet(t, a, "var3"))
	assert.Equal(t, int64(2), mustGet(t, a, "var3").(EnumValue).Int())
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.SerialSize(), b.SerialSize())
	assert.Empty(t, collect(a.DifferingMembers(b)))
	assert.True(t, a.HasAllDefaultValues())
}

func TestSetChangesOnlyThatMember(t *testing.T) {
	f := newFixture(t)
	a, b := f.myStruct.New(), f.myStruct.New()

	v1 := mustGet(t, a, "var1").(int32)
	require.NoError(t, a.Set("var1", 2*v1))

	assert.False(t, a.Equal(b))
	assert.Equal(t, []string{"var1"}, collect(a.DifferingMembers(b)))
	assert.Equal(t, "var1: 24 vs 12\n", a.Differences(b))
	assert.Equal(t, []string{"var1"}, a.NonDefaultValues())
}

func TestArrayReferenceAliasesInstance(t *testing.T) {
	f := newFixture(t)
	a, b := f.myStruct.New(), f.myStruct.New()

	arr, ok := mustGet(t, a, "var5").(*ArrayRef)
	require.True(t, ok)
	require.Equal(t, 8, arr.Len())
	require.NoError(t, arr.Set(arr.Len()-1, 2))

	assert.False(t, a.Equal(b))
	assert.Equal(t, []string{"var5"}, collect(a.DifferingMembers(b)))
	assert.Equal(t, []float32{1, 2, 3, 0, 0, 0, 0, 2}, arr.Values())

	// a second handle sees the same storage
	again := mustGet(t, a, "var5").(*ArrayRef)
	v, err := again.At(7)
	require.NoError(t, err)
	assert.Equal(t, float32(2), v)

	require.NoError(t, a.Set("var5", []float32{8, 7, 6, 5, 4, 3, 2, 1}))
	v, err = arr.At(0)
	require.NoError(t, err)
	assert.Equal(t, float32(8), v)

	var sum float32
	for _, x := range arr.All() {
		sum += x
	}
	assert.Equal(t, float32(36), sum)
}

func TestValueCopiesAreIndependent(t *testing.T) {
	f := newFixture(t)
	a := f.myStruct.New()

	arr, err := a.Value("var5")
	require.NoError(t, err)
	arr.([]float32)[0] = 42
	assert.True(t, a.HasAllDefaultValues())
}

func TestVectorAppendChangesSerialSize(t *testing.T) {
	f := newFixture(t)
	a, b := f.myStruct.New(), f.myStruct.New()

	require.NoError(t, a.Set("var6", "hello hello"))
	vec := mustGet(t, a, "var7").(*VectorRef[float32])
	vec.Append(1, 2, 3)

	assert.Equal(t, b.SerialSize()+3*4+len("hello hello")-len("var2_val"), a.SerialSize())
	assert.Equal(t, []string{"var6", "var7"}, collect(a.DifferingMembers(b)))

	vec.Clear()
	require.NoError(t, a.Set("var6", "var2_val"))
	assert.True(t, a.Equal(b))
}

func TestVectorRefBoundsAndSet(t *testing.T) {
	f := newFixture(t)
	a := f.myStruct.New()
	vec := mustGet(t, a, "var7").(*VectorRef[float32])

	_, err := vec.At(0)
	var be *BoundsError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 0, be.Len)

	vec.Append(1.5)
	require.NoError(t, vec.Set(0, 2.5))
	assert.ErrorIs(t, vec.Set(1, 0), ErrBounds)
	assert.ErrorIs(t, vec.Set(-1, 0), ErrBounds)

	got, err := a.Value("var7")
	require.NoError(t, err)
	assert.Equal(t, []float32{2.5}, got)
}

func TestArrayBounds(t *testing.T) {
	f := newFixture(t)
	arr := mustGet(t, f.myStruct.New(), "var5").(*ArrayRef)

	assert.ErrorIs(t, arr.Set(8, 1), ErrBounds)
	_, err := arr.At(-1)
	assert.ErrorIs(t, err, ErrBounds)
}

func TestNestedMutatesParentInPlace(t *testing.T) {
	reg := NewRegistry()
	_, outer := nestedTypes(t, reg)
	o, fresh := outer.New(), outer.New()

	child, ok := mustGet(t, o, "var1").(*Instance)
	require.True(t, ok)
	assert.Equal(t, int32(14), mustGet(t, child, "var1"))

	require.NoError(t, child.Set("var1", 99))
	assert.False(t, o.Equal(fresh))
	assert.Equal(t, []string{"var1"}, collect(o.DifferingMembers(fresh)))

	// the same child comes back on every read
	assert.Same(t, child, mustGet(t, o, "var1"))

	data, err := o.MarshalBinary()
	require.NoError(t, err)
	back, err := outer.Decode(data)
	require.NoError(t, err)
	inner := mustGet(t, back, "var1").(*Instance)
	assert.Equal(t, int32(99), mustGet(t, inner, "var1"))
}

func TestNestedSetCopiesIntoChild(t *testing.T) {
	reg := NewRegistry()
	inner, outer := nestedTypes(t, reg)
	o := outer.New()
	child := mustGet(t, o, "var1").(*Instance)

	src := inner.New()
	require.NoError(t, src.Set("label", "replaced"))
	require.NoError(t, o.Set("var1", src))

	assert.Same(t, child, mustGet(t, o, "var1"))
	assert.Equal(t, "replaced", mustGet(t, child, "label"))

	require.NoError(t, o.Set("var1", map[string]any{"var1": 3}))
	assert.Equal(t, int32(3), mustGet(t, child, "var1"))

	assert.ErrorIs(t, o.Set("var1", outer.New()), ErrTypeMismatch)
}

func TestNestedValueSemanticsCopies(t *testing.T) {
	reg := NewRegistry()
	inner, _ := nestedTypes(t, reg)
	wrap, err := reg.Define("Wrap", NestedField("in", inner, "").WithSemantics(ValueSemantics))
	require.NoError(t, err)

	w := wrap.New()
	cp := mustGet(t, w, "in").(*Instance)
	require.NoError(t, cp.Set("var1", 1))
	assert.True(t, w.HasAllDefaultValues())
}

func TestScalarReferenceSemantics(t *testing.T) {
	reg := NewRegistry()
	typ, err := reg.Define("Wrapped",
		Float32Field("gain", 0.5, "").WithSemantics(ReferenceSemantics),
		Int64Field("count", 1, "").WithSemantics(ReferenceSemantics),
	)
	require.NoError(t, err)
	in := typ.New()

	gain := mustGet(t, in, "gain").(*ScalarRef[float32])
	gain.Set(2)
	assert.Equal(t, float32(2), gain.Get())
	v, err := in.Value("gain")
	require.NoError(t, err)
	assert.Equal(t, float32(2), v)

	count := mustGet(t, in, "count").(*ScalarRef[int64])
	require.NoError(t, in.Set("count", 7))
	assert.Equal(t, int64(7), count.Get())

	// handles are accepted as sources
	other := typ.New()
	require.NoError(t, other.Set("gain", gain))
	assert.Equal(t, []string{"count"}, collect(other.DifferingMembers(in)))
}

func TestSetRejectsMismatches(t *testing.T) {
	f := newFixture(t)
	a := f.myStruct.New()

	cases := []struct {
		field string
		value any
	}{
		{"var1", "twelve"},
		{"var1", int64(1) << 40},
		{"var1", 1.5},
		{"var2", "x"},
		{"var2", 1e300},
		{"var2", -math.MaxFloat64},
		{"var3", "NotAMember"},
		{"var3", 3},
		{"var3", f.otherEnum.MustValue("EnumVal1")},
		{"var5", []float32{1, 2}},
		{"var6", 12},
		{"var7", []int32{1}},
		{"var8", 1},
	}
	for _, c := range cases {
		err := a.Set(c.field, c.value)
		assert.ErrorIs(t, err, ErrTypeMismatch, "%s <- %#v", c.field, c.value)
	}
	assert.True(t, a.HasAllDefaultValues())

	assert.ErrorIs(t, a.Set("nope", 1), ErrUnknownField)
	_, err := a.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestSetConversions(t *testing.T) {
	f := newFixture(t)
	a := f.myStruct.New()

	require.NoError(t, a.Set("var1", uint8(7)))
	assert.Equal(t, int32(7), mustGet(t, a, "var1"))
	require.NoError(t, a.Set("var2", 2.25))
	assert.Equal(t, float32(2.25), mustGet(t, a, "var2"))
	require.NoError(t, a.Set("var2", math.MaxFloat32))
	assert.Equal(t, float32(math.MaxFloat32), mustGet(t, a, "var2"))
	require.NoError(t, a.Set("var2", math.Inf(-1)))
	assert.True(t, math.IsInf(float64(mustGet(t, a, "var2").(float32)), -1))
	require.NoError(t, a.Set("var3", "EnumVal4"))
	assert.Equal(t, int64(5), mustGet(t, a, "var3").(EnumValue).Int())
	require.NoError(t, a.Set("var3", 1))
	assert.Equal(t, "EnumVal1", mustGet(t, a, "var3").(EnumValue).Name())
	require.NoError(t, a.Set("var6", []byte("bytes")))
	assert.Equal(t, "bytes", mustGet(t, a, "var6"))
}

func TestSetVectorTakesPrivateCopy(t *testing.T) {
	f := newFixture(t)
	a := f.myStruct.New()
	src := []float32{1, 2}
	require.NoError(t, a.Set("var7", src))
	src[0] = 100
	assert.Equal(t, []float32{1, 2}, mustGet(t, a, "var7").(*VectorRef[float32]).Values())
}

func TestDifferingMembersAcrossTypes(t *testing.T) {
	f := newFixture(t)
	_, outer := nestedTypes(t, f.reg)
	a := f.myStruct.New()

	assert.Equal(t, f.myStruct.Names(), collect(a.DifferingMembers(outer.New())))
	assert.Equal(t, f.myStruct.Names(), collect(a.DifferingMembers(nil)))
	assert.False(t, a.Equal(outer.New()))
}

func TestDifferingMembersIsRestartable(t *testing.T) {
	f := newFixture(t)
	a, b := f.myStruct.New(), f.myStruct.New()
	require.NoError(t, a.Set("var8", false))
	require.NoError(t, a.Set("var2", 3))

	seq := a.DifferingMembers(b)
	first := collect(seq)
	assert.Equal(t, []string{"var2", "var8"}, first)
	assert.Equal(t, first, collect(seq))

	for name := range seq {
		assert.Equal(t, "var2", name)
		break
	}
}

func TestKeysAndAll(t *testing.T) {
	f := newFixture(t)
	a := f.myStruct.New()

	assert.Equal(t, []string{"var1", "var2", "var3", "var4", "var5", "var6", "var7", "var8"}, collect(a.Keys()))
	assert.Equal(t, 8, a.Len())

	seen := map[string]any{}
	for k, v := range a.All() {
		seen[k] = v
	}
	assert.IsType(t, &ArrayRef{}, seen["var5"])
	assert.IsType(t, &VectorRef[float32]{}, seen["var7"])
	assert.Equal(t, true, seen["var8"])
}

func TestFloatVectorEqualityIsBitwise(t *testing.T) {
	f := newFixture(t)
	a, b := f.myStruct.New(), f.myStruct.New()
	nan := math.Float32frombits(0x7fc00000)
	require.NoError(t, a.Set("var7", []float32{nan}))
	require.NoError(t, b.Set("var7", []float32{nan}))
	assert.True(t, a.Equal(b))

	negZero := math.Float32frombits(0x80000000)
	require.NoError(t, b.Set("var7", []float32{negZero}))
	require.NoError(t, a.Set("var7", []float32{0}))
	assert.False(t, a.Equal(b))
}

func TestCloneResetCopyFrom(t *testing.T) {
	f := newFixture(t)
	a := f.myStruct.New()
	vec := mustGet(t, a, "var7").(*VectorRef[float32])
	vec.Append(4, 5)
	require.NoError(t, a.Set("var1", -1))

	c := a.Clone()
	assert.True(t, c.Equal(a))
	mustGet(t, c, "var7").(*VectorRef[float32]).Append(6)
	assert.Equal(t, 2, vec.Len())

	fresh := f.myStruct.New()
	require.NoError(t, fresh.CopyFrom(c))
	assert.True(t, fresh.Equal(c))

	a.Reset()
	assert.True(t, a.HasAllDefaultValues())
	assert.Equal(t, 0, vec.Len())

	_, outer := nestedTypes(t, f.reg)
	err := a.CopyFrom(outer.New())
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestStringRendering(t *testing.T) {
	reg := NewRegistry()
	_, outer := nestedTypes(t, reg)
	o := outer.New()
	assert.Equal(t, "id: 0\nvar1:\n  var1: 14\n  label: in\ntail: [9]\n", o.String())

	f := newFixture(t)
	s := f.myStruct.New().String()
	assert.Contains(t, s, "var1: 12\n")
	assert.Contains(t, s, "var3: EnumVal2\n")
	assert.Contains(t, s, "var5: [1, 2, 3, 0, 0, 0, 0, 0]\n")
	assert.Contains(t, s, "var7: []\n")
}
