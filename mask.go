package reflexio

import (
	"context"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Mask selects top-level fields to leave out of a masked encoding. The
// zero Mask excludes nothing.
type Mask struct {
	typ  *StructType
	bits *bitset.BitSet
}

// ExcludeMask excludes the named fields.
func (t *StructType) ExcludeMask(names ...string) (Mask, error) {
	bits := bitset.New(uint(len(t.fields)))
	for _, n := range names {
		fd, ok := t.byName[n]
		if !ok {
			return Mask{}, unknownField(t.name, n)
		}
		bits.Set(uint(fd.index))
	}
	return Mask{typ: t, bits: bits}, nil
}

// IncludeMask excludes every field except the named ones.
func (t *StructType) IncludeMask(names ...string) (Mask, error) {
	m, err := t.ExcludeMask(names...)
	if err != nil {
		return Mask{}, err
	}
	m.bits = m.bits.Complement()
	return m, nil
}

// Excludes reports whether field index i is left out.
func (m Mask) Excludes(i int) bool {
	return m.bits != nil && m.bits.Test(uint(i))
}

// Empty reports whether the mask excludes nothing.
func (m Mask) Empty() bool {
	return m.bits == nil || m.bits.None()
}

// Excluded returns the names of the excluded fields in declaration order.
func (m Mask) Excluded() []string {
	if m.Empty() {
		return nil
	}
	var out []string
	for i, ok := m.bits.NextSet(0); ok; i, ok = m.bits.NextSet(i + 1) {
		out = append(out, m.typ.fields[i].name)
	}
	return out
}

func (m Mask) check(t *StructType) error {
	if m.typ != nil && m.typ != t {
		return &TypeMismatchError{Field: "<mask>", Want: t.name, Got: m.typ.name, Reason: "mask built for another type"}
	}
	return nil
}

func maskBytes(n int) int { return (n + 7) / 8 }

func (m Mask) appendHeader(dst []byte, n int) []byte {
	if m.Empty() {
		return append(dst, 0)
	}
	size := maskBytes(n)
	dst = append(dst, byte(size))
	for i := range size {
		var b byte
		for j := range 8 {
			if m.Excludes(i*8 + j) {
				b |= 1 << j
			}
		}
		dst = append(dst, b)
	}
	return dst
}

// SerialSizeMasked returns the exact length of MarshalMasked(m).
func (in *Instance) SerialSizeMasked(m Mask) int {
	n := 1
	if !m.Empty() {
		n += maskBytes(len(in.typ.fields))
	}
	for _, fd := range in.typ.fields {
		if m.Excludes(fd.index) {
			continue
		}
		switch {
		case fd.tag == TagNested:
			n += fd.width + in.children[fd.slot].varSize()
		case fd.tag.IsVariable():
			n += in.varFieldSize(fd)
		default:
			n += fd.width
		}
	}
	return n
}

// MarshalMasked encodes the fields m does not exclude, prefixed by the
// mask: one size byte (0 when nothing is excluded) and the mask bytes,
// bit i of byte i/8 set for excluded field i.
func (in *Instance) MarshalMasked(m Mask) ([]byte, error) {
	if err := m.check(in.typ); err != nil {
		return nil, err
	}
	if maskBytes(len(in.typ.fields)) > 255 {
		return nil, &UnsupportedFieldError{Type: in.typ.name, Field: "<mask>", Reason: "too many fields for a one byte mask size"}
	}
	dst := make([]byte, 0, in.SerialSizeMasked(m))
	dst = m.appendHeader(dst, len(in.typ.fields))
	for _, fd := range in.typ.fields {
		if fd.offset >= 0 && !m.Excludes(fd.index) {
			dst = append(dst, in.fieldBytes(fd)...)
		}
	}
	var err error
	for _, fd := range in.typ.fields {
		if m.Excludes(fd.index) {
			continue
		}
		switch {
		case fd.tag == TagNested:
			dst, err = in.children[fd.slot].appendVars(dst)
		case fd.tag.IsVariable():
			dst, err = in.appendVar(dst, fd)
		}
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// UnmarshalMasked decodes a masked encoding into in. Excluded fields keep
// their current values. On error in is unchanged. The decoded mask is
// returned.
func (in *Instance) UnmarshalMasked(data []byte) (Mask, error) {
	m, err := in.unmarshalMasked(data)
	if err != nil {
		in.typ.reg.log.LogDecode(context.Background(), in.typ.name, len(data), err)
	}
	return m, err
}

func (in *Instance) unmarshalMasked(data []byte) (Mask, error) {
	t := in.typ
	r := &reader{typ: t.name, data: data, max: t.reg.opts.MaxVarLen}
	head, err := r.take(1)
	if err != nil {
		return Mask{}, r.fail("missing mask size")
	}
	m := Mask{typ: t, bits: bitset.New(uint(len(t.fields)))}
	if size := int(head[0]); size > 0 {
		if size > maskBytes(len(t.fields)) {
			return Mask{}, r.fail(fmt.Sprintf("mask of %d bytes for %d fields", size, len(t.fields)))
		}
		raw, err := r.take(size)
		if err != nil {
			return Mask{}, err
		}
		for i, b := range raw {
			for j := range 8 {
				if b&(1<<j) == 0 {
					continue
				}
				idx := i*8 + j
				if idx >= len(t.fields) {
					return Mask{}, &FormatError{Type: t.name, Offset: 1 + i, Reason: fmt.Sprintf("mask bit %d beyond %d fields", idx, len(t.fields))}
				}
				m.bits.Set(uint(idx))
			}
		}
	}
	tmp := in.Clone()
	for _, fd := range t.fields {
		if fd.offset < 0 || m.Excludes(fd.index) {
			continue
		}
		at := r.pos
		b, err := r.take(fd.width)
		if err != nil {
			return Mask{}, err
		}
		if err := t.checkField(fd, b, at); err != nil {
			return Mask{}, err
		}
		copy(tmp.fieldBytes(fd), b)
	}
	for _, fd := range t.fields {
		if m.Excludes(fd.index) {
			continue
		}
		switch {
		case fd.tag == TagNested:
			err = tmp.children[fd.slot].readVars(r)
		case fd.tag.IsVariable():
			err = tmp.readVar(r, fd)
		}
		if err != nil {
			return Mask{}, err
		}
	}
	if r.remaining() != 0 {
		return Mask{}, r.fail(fmt.Sprintf("%d trailing bytes", r.remaining()))
	}
	in.copyFrom(tmp)
	return m, nil
}
