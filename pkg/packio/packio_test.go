package packio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rawbytedev/reflexio"
)

func define(t *testing.T) *reflexio.StructType {
	t.Helper()
	reg := reflexio.NewRegistry()
	mode, err := reg.DefineSizedEnum("Mode", 2, reflexio.AutoMember("Off"), reflexio.Member("On", 300))
	require.NoError(t, err)
	inner, err := reg.Define("Inner",
		reflexio.Float64Field("x", 0, ""),
		reflexio.IntVectorField("ids", nil, ""),
	)
	require.NoError(t, err)
	typ, err := reg.Define("Record",
		reflexio.Int64Field("id", 0, ""),
		reflexio.Float32Field("gain", 1, ""),
		reflexio.EnumField("mode", mode, "", ""),
		reflexio.ArrayField("coef", 2, nil, ""),
		reflexio.StringField("name", "", ""),
		reflexio.VectorField("samples", nil, ""),
		reflexio.NestedField("inner", inner, ""),
		reflexio.BoolField("ok", false, ""),
	)
	require.NoError(t, err)
	return typ
}

func TestRoundTrip(t *testing.T) {
	typ := define(t)
	a := typ.New()
	require.NoError(t, a.Update(map[string]any{
		"id":      int64(1) << 40,
		"gain":    float32(-0.75),
		"mode":    "On",
		"coef":    []float32{3, 4},
		"name":    "packed",
		"samples": []float32{1, 2, 3},
		"inner":   map[string]any{"x": 9.5, "ids": []int32{-1, 7}},
		"ok":      true,
	}))
	data, err := Marshal(a)
	require.NoError(t, err)

	b := typ.New()
	require.NoError(t, Unmarshal(data, b))
	assert.True(t, b.Equal(a), b.Differences(a))

	var generic map[string]any
	require.NoError(t, msgpack.Unmarshal(data, &generic))
	assert.Equal(t, "On", generic["mode"])
	assert.Equal(t, "packed", generic["name"])
}

func TestEncodeStream(t *testing.T) {
	typ := define(t)
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for i := range 3 {
		in := typ.New()
		require.NoError(t, in.Set("id", i))
		require.NoError(t, Encode(enc, in))
	}
	dec := msgpack.NewDecoder(&buf)
	for i := range 3 {
		values, err := Decode(dec, typ)
		require.NoError(t, err)
		assert.Equal(t, int64(i), values["id"])
	}
}

func TestUnmarshalHonoursMaxVarLen(t *testing.T) {
	reg := reflexio.NewRegistry(reflexio.WithMaxVarLen(16))
	typ, err := reg.Define("Series", reflexio.VectorField("v", nil, ""))
	require.NoError(t, err)
	in := typ.New()

	err = Unmarshal([]byte{0x81, 0xa1, 'v', 0xdd, 0x04, 0, 0, 0}, in)
	var fe *reflexio.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Reason, "exceeds limit 16")
	assert.True(t, in.HasAllDefaultValues())

	data, err := msgpack.Marshal(map[string]any{"v": make([]float32, 16)})
	require.NoError(t, err)
	require.NoError(t, Unmarshal(data, in))
}

func TestEnumByValue(t *testing.T) {
	typ := define(t)
	data, err := msgpack.Marshal(map[string]any{"mode": 300})
	require.NoError(t, err)
	in := typ.New()
	require.NoError(t, Unmarshal(data, in))
	v, err := in.Get("mode")
	require.NoError(t, err)
	assert.Equal(t, "On", v.(reflexio.EnumValue).Name())
}

func TestUnmarshalRejects(t *testing.T) {
	typ := define(t)
	in := typ.New()
	before := in.Clone()

	good, err := Marshal(in)
	require.NoError(t, err)

	encode := func(m map[string]any) []byte {
		b, err := msgpack.Marshal(m)
		require.NoError(t, err)
		return b
	}
	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"unknown key", encode(map[string]any{"bogus": 1}), reflexio.ErrUnknownField},
		{"wrong type", encode(map[string]any{"id": "one"}), reflexio.ErrTypeMismatch},
		{"bad enum", encode(map[string]any{"mode": "Standby"}), reflexio.ErrTypeMismatch},
		{"short array", encode(map[string]any{"coef": []float32{1}}), reflexio.ErrTypeMismatch},
		{"not a map", encode(nil), reflexio.ErrFormat},
		{"truncated", good[:len(good)-3], reflexio.ErrFormat},
		{"trailing", append(bytes.Clone(good), 0xc0), reflexio.ErrFormat},
		{"huge length", []byte{0x81, 0xa7, 's', 'a', 'm', 'p', 'l', 'e', 's', 0xdd, 0x04, 0, 0, 0}, reflexio.ErrFormat},
		{"huge array", []byte{0x81, 0xa4, 'c', 'o', 'e', 'f', 0xdd, 0x04, 0, 0, 0}, reflexio.ErrFormat},
		{"wrong array length", []byte{0x81, 0xa4, 'c', 'o', 'e', 'f', 0x93, 1, 2, 3}, reflexio.ErrTypeMismatch},
		{"truncated element", []byte{0x81, 0xa7, 's', 'a', 'm', 'p', 'l', 'e', 's', 0x92, 0xca, 0, 0}, reflexio.ErrFormat},
		{"truncated ids", []byte{0x81, 0xa5, 'i', 'n', 'n', 'e', 'r', 0x81, 0xa3, 'i', 'd', 's', 0x93, 1}, reflexio.ErrFormat},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Unmarshal(c.data, in)
			assert.ErrorIs(t, err, c.want)
			assert.True(t, in.Equal(before))
		})
	}
}
