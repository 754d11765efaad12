package reflexio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// myStruct fixed layout:
//
//	var1 int32   [0:4]
//	var2 float32 [4:8]
//	var3 MyEnum  [8:12]
//	var4 MyOtherEnum (1 byte) [12]
//	var5 [8]float32 [13:45]
//	var8 bool    [45]
//
// followed by var6 (string) and var7 (vector) in the variable section.
const myStructFixed = 46

type fixture struct {
	reg       *Registry
	myEnum    *EnumType
	otherEnum *EnumType
	myStruct  *StructType
}

func newFixture(t testing.TB, opts ...Option) *fixture {
	t.Helper()
	reg := NewRegistry(opts...)
	myEnum, err := reg.DefineEnum("MyEnum", Member("EnumVal1", 1), AutoMember("EnumVal2"), Member("EnumVal4", 5))
	require.NoError(t, err)
	otherEnum, err := reg.DefineSizedEnum("MyOtherEnum", 1, AutoMember("EnumVal1"), AutoMember("EnumVal2"))
	require.NoError(t, err)
	typ, err := reg.Define("MyStruct",
		Int32Field("var1", 12, "var1 doc"),
		Float32Field("var2", 1.5, "var2 doc"),
		EnumField("var3", myEnum, "EnumVal2", "var3 doc"),
		EnumField("var4", otherEnum, "EnumVal2", "var4 doc"),
		ArrayField("var5", 8, []float32{1, 2, 3}, "var5 doc"),
		StringField("var6", "var2_val", "var6 doc"),
		VectorField("var7", nil, "var7 doc"),
		BoolField("var8", true, "var8 doc"),
	)
	require.NoError(t, err)
	return &fixture{reg: reg, myEnum: myEnum, otherEnum: otherEnum, myStruct: typ}
}

// nestedTypes defines Inner{var1 int32 = 14, label string} and
// Outer{id int64, var1 Inner, tail vector}.
func nestedTypes(t testing.TB, reg *Registry) (inner, outer *StructType) {
	t.Helper()
	inner, err := reg.Define("Inner",
		Int32Field("var1", 14, "inner value"),
		StringField("label", "in", "inner label"),
	)
	require.NoError(t, err)
	outer, err = reg.Define("Outer",
		Int64Field("id", 0, "identifier"),
		NestedField("var1", inner, "embedded"),
		VectorField("tail", []float32{9}, "trailing samples"),
	)
	require.NoError(t, err)
	return inner, outer
}

func mustGet(t testing.TB, in *Instance, name string) any {
	t.Helper()
	v, err := in.Get(name)
	require.NoError(t, err)
	return v
}

func collect(seq func(func(string) bool)) []string {
	var out []string
	for s := range seq {
		out = append(out, s)
	}
	return out
}
