package frame

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/reflexio"
)

func sampleType(t testing.TB) *reflexio.StructType {
	t.Helper()
	reg := reflexio.NewRegistry()
	typ, err := reg.Define("Sample",
		reflexio.Int64Field("id", 0, "identifier"),
		reflexio.StringField("body", "", "payload"),
		reflexio.VectorField("values", nil, "samples"),
	)
	require.NoError(t, err)
	return typ
}

func sample(t testing.TB, typ *reflexio.StructType, body string) *reflexio.Instance {
	t.Helper()
	in := typ.New()
	require.NoError(t, in.Update(map[string]any{
		"id":     int64(42),
		"body":   body,
		"values": []float32{1, 1, 1, 1, 1, 1, 1, 1},
	}))
	return in
}

func TestRoundTripEachCodec(t *testing.T) {
	typ := sampleType(t)
	in := sample(t, typ, strings.Repeat("compressible ", 64))
	raw, err := in.MarshalBinary()
	require.NoError(t, err)

	for _, codec := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			enc, err := NewEncoder(codec)
			require.NoError(t, err)
			defer enc.Close()
			dec, err := NewDecoder()
			require.NoError(t, err)
			defer dec.Close()

			frame, err := enc.Encode(in)
			require.NoError(t, err)
			h, err := Peek(frame)
			require.NoError(t, err)
			assert.Equal(t, codec, h.Codec)
			assert.Equal(t, uint8(Version), h.Version)
			assert.Equal(t, typ.Fingerprint(), h.Fingerprint)
			assert.Equal(t, uint32(len(raw)), h.RawLen)
			assert.Equal(t, len(frame), h.Size())
			if codec != CodecNone {
				assert.Less(t, int(h.PayloadLen), len(raw))
			}

			out, err := dec.Decode(typ, frame)
			require.NoError(t, err)
			assert.True(t, out.Equal(in), out.Differences(in))
		})
	}
}

func TestIncompressibleStoredRaw(t *testing.T) {
	typ := sampleType(t)
	in := typ.New()
	enc, err := NewEncoder(CodecZstd)
	require.NoError(t, err)
	defer enc.Close()

	frame, err := enc.Encode(in)
	require.NoError(t, err)
	h, err := Peek(frame)
	require.NoError(t, err)
	assert.Equal(t, CodecNone, h.Codec)
	assert.Equal(t, h.RawLen, h.PayloadLen)
}

func TestCorruptionDetected(t *testing.T) {
	typ := sampleType(t)
	enc, err := NewEncoder(CodecLZ4)
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)
	defer dec.Close()

	frame, err := enc.Encode(sample(t, typ, strings.Repeat("x", 200)))
	require.NoError(t, err)

	for i := 2; i < len(frame); i++ {
		bad := bytes.Clone(frame)
		bad[i] ^= 0x40
		_, err := dec.Decode(typ, bad)
		require.Error(t, err, "flipped byte %d", i)
	}

	bad := bytes.Clone(frame)
	bad[0] = 'Z'
	_, err = dec.Decode(typ, bad)
	assert.ErrorIs(t, err, reflexio.ErrFormat)

	_, err = dec.Decode(typ, frame[:len(frame)-1])
	assert.ErrorIs(t, err, reflexio.ErrFormat)
	_, err = Peek(frame[:HeaderSize-1])
	assert.ErrorIs(t, err, reflexio.ErrFormat)
}

func TestFingerprintMismatch(t *testing.T) {
	typ := sampleType(t)
	enc, err := NewEncoder(CodecNone)
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)
	defer dec.Close()

	frame, err := enc.Encode(typ.New())
	require.NoError(t, err)

	other, err := typ.Registry().Define("Other", reflexio.Int32Field("x", 0, ""))
	require.NoError(t, err)
	_, err = dec.Decode(other, frame)
	var fe *reflexio.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Reason, "fingerprint")

	_, raw, err := dec.Bytes(frame)
	require.NoError(t, err)
	assert.Len(t, raw, typ.New().SerialSize())
}

func TestReadFrameStream(t *testing.T) {
	typ := sampleType(t)
	enc, err := NewEncoder(CodecZstd)
	require.NoError(t, err)
	defer enc.Close()
	dec, err := NewDecoder()
	require.NoError(t, err)
	defer dec.Close()

	var frames [][]byte
	for _, body := range []string{"a", strings.Repeat("b", 300), ""} {
		f, err := enc.Encode(sample(t, typ, body))
		require.NoError(t, err)
		frames = append(frames, f)
	}
	r := bytes.NewReader(Concat(frames...))
	for i := range frames {
		f, err := ReadFrame(r)
		require.NoError(t, err)
		assert.Equal(t, frames[i], f)
		_, err = dec.Decode(typ, f)
		require.NoError(t, err)
	}
	_, err = ReadFrame(r)
	assert.ErrorIs(t, err, io.EOF)

	_, err = ReadFrame(bytes.NewReader(frames[1][:HeaderSize+3]))
	assert.ErrorIs(t, err, reflexio.ErrFormat)
	_, err = ReadFrame(bytes.NewReader(frames[1][:5]))
	assert.ErrorIs(t, err, reflexio.ErrFormat)
}

func TestZstdOutputCappedAtRawLen(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)
	defer dec.Close()
	zeros := make([]byte, 1<<20)

	zenc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	sized := zenc.EncodeAll(zeros, nil)
	require.NoError(t, zenc.Close())

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(zeros)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	streamed := buf.Bytes()

	for name, payload := range map[string][]byte{"content size": sized, "streamed": streamed} {
		t.Run(name, func(t *testing.T) {
			f, err := appendFrame(nil, CodecZstd, 1, make([]byte, 10), payload)
			require.NoError(t, err)
			_, _, err = dec.Bytes(f)
			assert.ErrorIs(t, err, reflexio.ErrFormat)

			f, err = appendFrame(nil, CodecZstd, 1, zeros, payload)
			require.NoError(t, err)
			_, raw, err := dec.Bytes(f)
			require.NoError(t, err)
			assert.Equal(t, zeros, raw)
		})
	}
}

func TestUnknownCodec(t *testing.T) {
	_, err := NewEncoder(Codec(9))
	assert.Error(t, err)
	assert.Equal(t, "Codec(9)", Codec(9).String())
}
