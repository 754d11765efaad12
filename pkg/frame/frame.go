// Package frame wraps encoded instances in a checksummed envelope with
// optional compression.
//
// Layout (little-endian):
//
//	"RX" | version u8 | codec u8 | fingerprint u64 | rawLen u32 | payloadLen u32 | payload | crc32
//
// The CRC (IEEE) covers every byte after the magic up to the end of the
// payload. fingerprint is the StructType layout fingerprint and rawLen
// the length of the uncompressed encoding.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"fortio.org/safecast"

	"github.com/rawbytedev/reflexio"
)

// Codec selects the payload compression.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

const (
	Version    = 1
	HeaderSize = 20
	crcSize    = 4
	// MaxPayload bounds rawLen and payloadLen accepted by readers.
	MaxPayload = 1 << 30
)

var magic = [2]byte{'R', 'X'}

// Header is the fixed prefix of a frame.
type Header struct {
	Version     uint8
	Codec       Codec
	Fingerprint uint64
	RawLen      uint32
	PayloadLen  uint32
}

// Size is the full frame length described by h.
func (h Header) Size() int { return HeaderSize + int(h.PayloadLen) + crcSize }

func formatErr(off int, format string, args ...any) error {
	return &reflexio.FormatError{Type: "frame", Offset: off, Reason: fmt.Sprintf(format, args...)}
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, formatErr(len(b), "frame of %d bytes is shorter than the %d byte header", len(b), HeaderSize)
	}
	if b[0] != magic[0] || b[1] != magic[1] {
		return Header{}, formatErr(0, "bad magic %q", b[:2])
	}
	h := Header{
		Version:     b[2],
		Codec:       Codec(b[3]),
		Fingerprint: binary.LittleEndian.Uint64(b[4:]),
		RawLen:      binary.LittleEndian.Uint32(b[12:]),
		PayloadLen:  binary.LittleEndian.Uint32(b[16:]),
	}
	if h.Version != Version {
		return Header{}, formatErr(2, "unsupported version %d", h.Version)
	}
	if h.Codec > CodecLZ4 {
		return Header{}, formatErr(3, "unknown codec %d", h.Codec)
	}
	if h.RawLen > MaxPayload || h.PayloadLen > MaxPayload {
		return Header{}, formatErr(12, "lengths %d/%d exceed %d", h.RawLen, h.PayloadLen, MaxPayload)
	}
	return h, nil
}

// Peek parses the header without verifying the payload.
func Peek(frame []byte) (Header, error) {
	return parseHeader(frame)
}

func appendFrame(dst []byte, codec Codec, fingerprint uint64, raw, payload []byte) ([]byte, error) {
	rawLen, err := safecast.Conv[uint32](len(raw))
	if err != nil || rawLen > MaxPayload {
		return nil, fmt.Errorf("frame: payload of %d bytes is too large", len(raw))
	}
	start := len(dst)
	dst = append(dst, magic[0], magic[1], Version, byte(codec))
	dst = binary.LittleEndian.AppendUint64(dst, fingerprint)
	dst = binary.LittleEndian.AppendUint32(dst, rawLen)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint32(dst, crc32.ChecksumIEEE(dst[start+2:])), nil
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, formatErr(0, "truncated header")
		}
		return nil, err
	}
	h, err := parseHeader(head)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, h.Size())
	copy(frame, head)
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, formatErr(HeaderSize, "truncated payload")
		}
		return nil, err
	}
	return frame, nil
}

// split verifies the frame checksum and returns the header and the
// stored payload.
func split(frame []byte) (Header, []byte, error) {
	h, err := parseHeader(frame)
	if err != nil {
		return Header{}, nil, err
	}
	if len(frame) != h.Size() {
		return Header{}, nil, formatErr(len(frame), "frame of %d bytes, header describes %d", len(frame), h.Size())
	}
	end := HeaderSize + int(h.PayloadLen)
	want := binary.LittleEndian.Uint32(frame[end:])
	if got := crc32.ChecksumIEEE(frame[2:end]); got != want {
		return Header{}, nil, formatErr(end, "crc mismatch: %08x != %08x", got, want)
	}
	return h, frame[HeaderSize:end], nil
}

// Concat is a convenience for writing several frames into one buffer.
func Concat(frames ...[]byte) []byte {
	return bytes.Join(frames, nil)
}
