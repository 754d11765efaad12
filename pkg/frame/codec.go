package frame

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/rawbytedev/reflexio"
)

// Encoder frames instances. It reuses its buffers and is not safe for
// concurrent use.
type Encoder struct {
	codec Codec
	zenc  *zstd.Encoder
	raw   []byte
	comp  []byte
}

// NewEncoder returns an encoder compressing with codec.
func NewEncoder(codec Codec) (*Encoder, error) {
	e := &Encoder{codec: codec}
	switch codec {
	case CodecNone, CodecLZ4:
	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		e.zenc = enc
	default:
		return nil, fmt.Errorf("frame: unknown codec %d", codec)
	}
	return e, nil
}

// Close releases compressor resources.
func (e *Encoder) Close() error {
	if e.zenc != nil {
		return e.zenc.Close()
	}
	return nil
}

// Encode returns a new frame holding the binary encoding of in.
func (e *Encoder) Encode(in *reflexio.Instance) ([]byte, error) {
	raw, err := in.AppendBinary(e.raw[:0])
	if err != nil {
		return nil, err
	}
	e.raw = raw
	return e.AppendBytes(nil, in.Type().Fingerprint(), raw)
}

// AppendBytes appends a frame carrying raw to dst. Payloads that do not
// shrink are stored uncompressed.
func (e *Encoder) AppendBytes(dst []byte, fingerprint uint64, raw []byte) ([]byte, error) {
	codec, payload := CodecNone, raw
	if len(raw) > 0 {
		switch e.codec {
		case CodecZstd:
			e.comp = e.zenc.EncodeAll(raw, e.comp[:0])
			codec, payload = CodecZstd, e.comp
		case CodecLZ4:
			if cap(e.comp) < lz4.CompressBlockBound(len(raw)) {
				e.comp = make([]byte, lz4.CompressBlockBound(len(raw)))
			}
			buf := e.comp[:cap(e.comp)]
			n, err := lz4.CompressBlock(raw, buf, nil)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				codec, payload = CodecLZ4, buf[:n]
			}
		}
		if len(payload) >= len(raw) {
			codec, payload = CodecNone, raw
		}
	}
	return appendFrame(dst, codec, fingerprint, raw, payload)
}

// Decoder unframes instances. It is not safe for concurrent use.
type Decoder struct {
	zdec *zstd.Decoder
	buf  []byte
}

func NewDecoder() (*Decoder, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(MaxPayload))
	if err != nil {
		return nil, err
	}
	return &Decoder{zdec: dec}, nil
}

// Close releases decompressor resources.
func (d *Decoder) Close() {
	d.zdec.Close()
}

// Bytes verifies frame and returns its header and uncompressed payload.
// The payload aliases an internal buffer valid until the next call.
func (d *Decoder) Bytes(frame []byte) (Header, []byte, error) {
	h, payload, err := split(frame)
	if err != nil {
		return Header{}, nil, err
	}
	var raw []byte
	switch h.Codec {
	case CodecNone:
		raw = payload
	case CodecZstd:
		if raw, err = d.inflate(payload, int(h.RawLen)); err != nil {
			return Header{}, nil, err
		}
	case CodecLZ4:
		if cap(d.buf) < int(h.RawLen) {
			d.buf = make([]byte, h.RawLen)
		}
		n, err := lz4.UncompressBlock(payload, d.buf[:h.RawLen])
		if err != nil {
			return Header{}, nil, formatErr(HeaderSize, "lz4: %v", err)
		}
		raw = d.buf[:n]
	}
	if len(raw) != int(h.RawLen) {
		return Header{}, nil, formatErr(HeaderSize, "decompressed %d bytes, header says %d", len(raw), h.RawLen)
	}
	return h, raw, nil
}

// inflate decompresses a zstd payload into exactly rawLen bytes. Output
// beyond rawLen is never materialised.
func (d *Decoder) inflate(payload []byte, rawLen int) ([]byte, error) {
	var zh zstd.Header
	if err := zh.Decode(payload); err != nil {
		return nil, formatErr(HeaderSize, "zstd: %v", err)
	}
	if zh.HasFCS && zh.FrameContentSize != uint64(rawLen) {
		return nil, formatErr(HeaderSize, "zstd content size %d, header says %d", zh.FrameContentSize, rawLen)
	}
	if err := d.zdec.Reset(bytes.NewReader(payload)); err != nil {
		return nil, formatErr(HeaderSize, "zstd: %v", err)
	}
	if cap(d.buf) < rawLen {
		d.buf = make([]byte, rawLen)
	}
	raw := d.buf[:rawLen]
	if _, err := io.ReadFull(d.zdec, raw); err != nil {
		return nil, formatErr(HeaderSize, "zstd: %v", err)
	}
	var extra [1]byte
	if n, err := io.ReadFull(d.zdec, extra[:]); n != 0 {
		return nil, formatErr(HeaderSize, "zstd output exceeds %d bytes", rawLen)
	} else if err != io.EOF {
		return nil, formatErr(HeaderSize, "zstd: %v", err)
	}
	return raw, nil
}

// Decode verifies frame, checks that it was written for typ and decodes
// the instance.
func (d *Decoder) Decode(typ *reflexio.StructType, frame []byte) (*reflexio.Instance, error) {
	h, raw, err := d.Bytes(frame)
	if err != nil {
		return nil, err
	}
	if h.Fingerprint != typ.Fingerprint() {
		return nil, formatErr(4, "fingerprint %016x does not match %s (%016x)", h.Fingerprint, typ.Name(), typ.Fingerprint())
	}
	return typ.Decode(raw)
}
