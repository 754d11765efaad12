package reflexio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Position struct {
	X, Y float32
	Name string `reflexio:"label,doc=display name, free text"`
}

type Reading struct {
	ID      int64
	Count   int32 `reflexio:"count,ref"`
	Level   int8  `reflexio:"level,enum=Level"`
	Gains   [4]float32
	Samples []float32
	Tags    []int32 `reflexio:"tags,val"`
	Valid   bool
	At      Position
	Ratio   float64
	Scratch string `reflexio:"-"`
	private int
}

func TestDefineFromStruct(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.DefineSizedEnum("Level", 1, AutoMember("Low"), AutoMember("High"))
	require.NoError(t, err)

	typ, err := reg.DefineFromStruct(&Reading{Level: 1, Gains: [4]float32{1, 1}, At: Position{Name: "origin"}})
	require.NoError(t, err)
	assert.Equal(t, "Reading", typ.Name())
	assert.Equal(t, []string{"ID", "count", "level", "Gains", "Samples", "tags", "Valid", "At", "Ratio"}, typ.Names())
	assert.Equal(t, 8+4+1+16+1+8+8, typ.FixedSize())

	count, _ := typ.Field("count")
	assert.Equal(t, ReferenceSemantics, count.Semantics())
	tags, _ := typ.Field("tags")
	assert.Equal(t, ValueSemantics, tags.Semantics())
	level, _ := typ.Field("level")
	assert.Equal(t, TagEnum, level.Tag())

	pos, ok := reg.Type("Position")
	require.True(t, ok)
	label, _ := pos.Field("label")
	assert.Equal(t, "display name, free text", label.Doc())

	in := typ.New()
	assert.Equal(t, "High", mustGet(t, in, "level").(EnumValue).Name())
	child, err := in.Child("At")
	require.NoError(t, err)
	assert.Equal(t, "origin", mustGet(t, child, "label"))

	again, err := reg.DefineFromStruct(Reading{})
	require.NoError(t, err)
	assert.Same(t, typ, again, "the Go type is bound once")
}

func TestLoadStore(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.DefineSizedEnum("Level", 1, AutoMember("Low"), AutoMember("High"))
	require.NoError(t, err)
	typ, err := reg.DefineFromStruct(Reading{})
	require.NoError(t, err)

	src := Reading{
		ID:      -9,
		Count:   3,
		Level:   1,
		Gains:   [4]float32{0.5, 1, 2, 4},
		Samples: []float32{7, 8},
		Tags:    []int32{1, 2, 3},
		Valid:   true,
		At:      Position{X: 1, Y: -1, Name: "here"},
		Ratio:   0.25,
		Scratch: "ignored",
	}
	in := typ.New()
	require.NoError(t, in.Load(&src))
	assert.Equal(t, int32(3), mustGet(t, in, "count").(*ScalarRef[int32]).Get())
	assert.Equal(t, []float32{7, 8}, mustGet(t, in, "Samples").(*VectorRef[float32]).Values())

	data, err := in.MarshalBinary()
	require.NoError(t, err)
	back, err := typ.Decode(data)
	require.NoError(t, err)

	var dst Reading
	require.NoError(t, back.Store(&dst))
	src.Scratch = ""
	assert.Equal(t, src, dst)

	dst.Samples[0] = 100
	assert.Equal(t, []float32{7, 8}, mustGet(t, back, "Samples").(*VectorRef[float32]).Values())
}

func TestLoadRejects(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.DefineSizedEnum("Level", 1, AutoMember("Low"), AutoMember("High"))
	require.NoError(t, err)
	typ, err := reg.DefineFromStruct(Reading{})
	require.NoError(t, err)
	in := typ.New()
	before := in.Clone()

	assert.ErrorIs(t, in.Load(Reading{Level: 5}), ErrTypeMismatch)
	assert.True(t, in.Equal(before))
	assert.ErrorIs(t, in.Load(Position{}), ErrTypeMismatch)
	assert.ErrorIs(t, in.Load(42), ErrTypeMismatch)
	assert.ErrorIs(t, in.Store(Reading{}), ErrTypeMismatch)
	assert.ErrorIs(t, in.Store((*Reading)(nil)), ErrTypeMismatch)
}

func TestDefineFromStructErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.DefineFromStruct(3)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = reg.DefineFromStruct(struct{ A int32 }{})
	assert.ErrorIs(t, err, ErrConfiguration)

	type badMap struct{ M map[string]int }
	_, err = reg.DefineFromStruct(badMap{})
	assert.ErrorIs(t, err, ErrUnsupportedField)

	type badArray struct{ A [2]int32 }
	_, err = reg.DefineFromStruct(badArray{})
	assert.ErrorIs(t, err, ErrUnsupportedField)

	type unknownEnum struct {
		E int32 `reflexio:"e,enum=Nope"`
	}
	_, err = reg.DefineFromStruct(unknownEnum{})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = reg.DefineEnum("Wide", Member("Big", 1<<20))
	require.NoError(t, err)
	type narrowEnum struct {
		E int8 `reflexio:"e,enum=Wide"`
	}
	_, err = reg.DefineFromStruct(narrowEnum{})
	assert.ErrorIs(t, err, ErrUnsupportedField)

	type refBool struct {
		B bool `reflexio:"b,ref"`
	}
	_, err = reg.DefineFromStruct(refBool{})
	assert.ErrorIs(t, err, ErrConfiguration)
}
