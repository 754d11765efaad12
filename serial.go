package reflexio

import (
	"context"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"github.com/rawbytedev/reflexio/internal/common"
)

const lenPrefix = 4

// SerialSize returns the exact length of MarshalBinary's output.
func (in *Instance) SerialSize() int {
	return in.typ.fixedSize + in.varSize()
}

func (in *Instance) varSize() int {
	n := 0
	for _, fd := range in.typ.fields {
		switch fd.tag {
		case TagNested:
			n += in.children[fd.slot].varSize()
		case TagString, TagVectorFloat, TagVectorInt:
			n += in.varFieldSize(fd)
		}
	}
	return n
}

func (in *Instance) varFieldSize(fd *FieldDescriptor) int {
	s := &in.vars[fd.slot]
	switch fd.tag {
	case TagString:
		return lenPrefix + len(s.str)
	case TagVectorFloat:
		return lenPrefix + 4*len(s.f32)
	default:
		return lenPrefix + 4*len(s.i32)
	}
}

// MarshalBinary encodes the fixed region followed by the variable-length
// section.
func (in *Instance) MarshalBinary() ([]byte, error) {
	return in.AppendBinary(make([]byte, 0, in.SerialSize()))
}

// AppendBinary appends the encoding of in to dst.
func (in *Instance) AppendBinary(dst []byte) ([]byte, error) {
	dst = append(dst, in.fixed...)
	return in.appendVars(dst)
}

func (in *Instance) appendVars(dst []byte) ([]byte, error) {
	var err error
	for _, fd := range in.typ.fields {
		switch fd.tag {
		case TagNested:
			dst, err = in.children[fd.slot].appendVars(dst)
		case TagString, TagVectorFloat, TagVectorInt:
			dst, err = in.appendVar(dst, fd)
		}
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (in *Instance) appendVar(dst []byte, fd *FieldDescriptor) ([]byte, error) {
	s := &in.vars[fd.slot]
	var n int
	switch fd.tag {
	case TagString:
		n = len(s.str)
	case TagVectorFloat:
		n = len(s.f32)
	default:
		n = len(s.i32)
	}
	count, err := safecast.Conv[uint32](n)
	if err != nil {
		return nil, &UnsupportedFieldError{Type: in.typ.name, Field: fd.name, Reason: "length does not fit the 32-bit prefix"}
	}
	dst = binary.LittleEndian.AppendUint32(dst, count)
	switch fd.tag {
	case TagString:
		dst = append(dst, s.str...)
	case TagVectorFloat:
		dst = common.AppendFloat32s(dst, s.f32)
	default:
		dst = common.AppendInt32s(dst, s.i32)
	}
	return dst, nil
}

// Decode builds a new instance from an encoding produced by
// MarshalBinary. Input is validated strictly: truncation, oversized
// lengths, invalid bool bytes, unknown enum values and trailing bytes are
// all FormatErrors.
func (t *StructType) Decode(data []byte) (*Instance, error) {
	in := t.New()
	if err := in.decode(data); err != nil {
		t.reg.log.LogDecode(context.Background(), t.name, len(data), err)
		return nil, err
	}
	return in, nil
}

// UnmarshalBinary replaces the content of in. On error in is unchanged.
// Child instances and handles obtained before the call stay valid.
func (in *Instance) UnmarshalBinary(data []byte) error {
	tmp, err := in.typ.Decode(data)
	if err != nil {
		return err
	}
	in.copyFrom(tmp)
	return nil
}

// FromFixed builds an instance from one fixed-region record, such as a
// row of a columnar export. Variable-length fields keep their defaults.
func (t *StructType) FromFixed(record []byte) (*Instance, error) {
	if len(record) != t.fixedSize {
		return nil, &FormatError{Type: t.name, Reason: fmt.Sprintf("record of %d bytes, want %d", len(record), t.fixedSize)}
	}
	if err := t.checkFixed(record, 0); err != nil {
		return nil, err
	}
	in := t.New()
	copy(in.fixed, record)
	return in, nil
}

// AppendFixed appends only the fixed region of in.
func (in *Instance) AppendFixed(dst []byte) []byte {
	return append(dst, in.fixed...)
}

type reader struct {
	typ  string
	data []byte
	pos  int
	max  int
}

func (r *reader) fail(reason string) error {
	return &FormatError{Type: r.typ, Offset: r.pos, Reason: reason}
}

func (r *reader) remaining() int { return len(r.data) - r.pos }

func (r *reader) take(n int) ([]byte, error) {
	if n > r.remaining() {
		return nil, r.fail(fmt.Sprintf("need %d bytes, %d remain", n, r.remaining()))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// length reads a u32 prefix and checks that n elements of elem bytes fit.
func (r *reader) length(field string, elem int) (int, error) {
	if r.remaining() < lenPrefix {
		return 0, r.fail(fmt.Sprintf("field %s: truncated length prefix", field))
	}
	n := int64(binary.LittleEndian.Uint32(r.data[r.pos:]))
	if n > int64(r.max) {
		return 0, r.fail(fmt.Sprintf("field %s: length %d exceeds limit %d", field, n, r.max))
	}
	if n*int64(elem) > int64(r.remaining()-lenPrefix) {
		return 0, r.fail(fmt.Sprintf("field %s: length %d exceeds the %d remaining bytes", field, n, r.remaining()-lenPrefix))
	}
	r.pos += lenPrefix
	return int(n), nil
}

func (in *Instance) decode(data []byte) error {
	t := in.typ
	r := &reader{typ: t.name, data: data, max: t.reg.opts.MaxVarLen}
	fixed, err := r.take(t.fixedSize)
	if err != nil {
		return &FormatError{Type: t.name, Reason: fmt.Sprintf("%d bytes is shorter than the %d byte fixed region", len(data), t.fixedSize)}
	}
	if err := t.checkFixed(fixed, 0); err != nil {
		return err
	}
	copy(in.fixed, fixed)
	if err := in.readVars(r); err != nil {
		return err
	}
	if r.remaining() != 0 {
		return r.fail(fmt.Sprintf("%d trailing bytes", r.remaining()))
	}
	return nil
}

func (t *StructType) checkFixed(b []byte, base int) error {
	for _, fd := range t.fields {
		if fd.offset < 0 {
			continue
		}
		if err := t.checkField(fd, b[fd.offset:fd.offset+fd.width], base+fd.offset); err != nil {
			return err
		}
	}
	return nil
}

// checkField validates the encoded bytes of one fixed-width field.
func (t *StructType) checkField(fd *FieldDescriptor, b []byte, at int) error {
	switch fd.tag {
	case TagBool:
		if b[0] > 1 {
			return &FormatError{Type: t.name, Offset: at, Reason: fmt.Sprintf("field %s: bool byte %#x", fd.name, b[0])}
		}
	case TagEnum:
		v := common.LoadInt(b, fd.width)
		if _, ok := fd.enum.FromInt(v); !ok {
			return &FormatError{Type: t.name, Offset: at, Reason: fmt.Sprintf("field %s: %d is not a member of %s", fd.name, v, fd.enum.name)}
		}
	case TagNested:
		return fd.nested.checkFixed(b, at)
	}
	return nil
}

func (in *Instance) readVars(r *reader) error {
	for _, fd := range in.typ.fields {
		var err error
		switch fd.tag {
		case TagNested:
			err = in.children[fd.slot].readVars(r)
		case TagString, TagVectorFloat, TagVectorInt:
			err = in.readVar(r, fd)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (in *Instance) readVar(r *reader, fd *FieldDescriptor) error {
	s := &in.vars[fd.slot]
	elem := 4
	if fd.tag == TagString {
		elem = 1
	}
	n, err := r.length(fd.name, elem)
	if err != nil {
		return err
	}
	b, err := r.take(n * elem)
	if err != nil {
		return err
	}
	switch fd.tag {
	case TagString:
		s.str = string(b)
	case TagVectorFloat:
		s.f32 = common.Float32s(b, n)
	default:
		s.i32 = common.Int32s(b, n)
	}
	return nil
}
