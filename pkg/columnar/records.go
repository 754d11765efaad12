package columnar

import (
	"bytes"
	"fmt"

	"github.com/rawbytedev/reflexio"
	"github.com/rawbytedev/reflexio/internal/common"
)

// RecordArray is a packed buffer of fixed regions, Stride bytes per
// record. It owns its buffer; later changes to the source instances are
// not reflected.
type RecordArray struct {
	layout *Layout
	n      int
	data   []byte
}

// ToArray copies the fixed region of every instance into a new record
// array. All instances must be of one StructType; the columns are those
// of NewLayout(typ, names...).
func ToArray(instances []*reflexio.Instance, names ...string) (*RecordArray, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: no instances to export", reflexio.ErrTypeMismatch)
	}
	l, err := NewLayout(instances[0].Type(), names...)
	if err != nil {
		return nil, err
	}
	return l.ToArray(instances)
}

// ToArray exports instances with this layout.
func (l *Layout) ToArray(instances []*reflexio.Instance) (*RecordArray, error) {
	stride := l.Stride()
	data := make([]byte, 0, stride*len(instances))
	for i, in := range instances {
		if in == nil || in.Type() != l.typ {
			return nil, &reflexio.TypeMismatchError{Field: fmt.Sprintf("[%d]", i), Want: l.typ.Name(), Got: in}
		}
		data = in.AppendFixed(data)
	}
	return &RecordArray{layout: l, n: len(instances), data: data}, nil
}

func (a *RecordArray) Len() int        { return a.n }
func (a *RecordArray) Stride() int     { return a.layout.Stride() }
func (a *RecordArray) Layout() *Layout { return a.layout }
func (a *RecordArray) Descr() string   { return a.layout.Descr() }

// Bytes returns the packed buffer, len = Len()*Stride().
func (a *RecordArray) Bytes() []byte { return a.data }

// Record returns a copy of record i.
func (a *RecordArray) Record(i int) ([]byte, error) {
	if i < 0 || i >= a.n {
		return nil, &reflexio.BoundsError{Field: "<record>", Index: i, Len: a.n}
	}
	s := a.Stride()
	return bytes.Clone(a.data[i*s : (i+1)*s]), nil
}

// Instance decodes record i back into an instance. Variable-length
// fields hold their defaults.
func (a *RecordArray) Instance(i int) (*reflexio.Instance, error) {
	rec, err := a.Record(i)
	if err != nil {
		return nil, err
	}
	return a.layout.typ.FromFixed(rec)
}

func (a *RecordArray) column(name string, tags ...reflexio.TypeTag) (Column, error) {
	c, ok := a.layout.Column(name)
	if !ok {
		return Column{}, fmt.Errorf("%w: no column %q", reflexio.ErrUnknownField, name)
	}
	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}
	return Column{}, &reflexio.TypeMismatchError{Field: name, Want: tags[0].String(), Got: c.Tag.String()}
}

func gather[T common.Scalar](a *RecordArray, c Column) []T {
	w := common.Width[T]()
	per := c.Width / w
	out := make([]T, 0, a.n*per)
	s := a.Stride()
	for r := range a.n {
		base := r*s + c.Offset
		for k := range per {
			out = append(out, common.Load[T](a.data[base+k*w:]))
		}
	}
	return out
}

// Int32s returns an int32 column; 4-byte enums are accepted too.
func (a *RecordArray) Int32s(name string) ([]int32, error) {
	c, err := a.column(name, reflexio.TagInt32, reflexio.TagEnum)
	if err != nil {
		return nil, err
	}
	if c.Width != 4 {
		return nil, &reflexio.TypeMismatchError{Field: name, Want: "<i4", Got: c.Format}
	}
	return gather[int32](a, c), nil
}

func (a *RecordArray) Int64s(name string) ([]int64, error) {
	c, err := a.column(name, reflexio.TagInt64)
	if err != nil {
		return nil, err
	}
	return gather[int64](a, c), nil
}

// Float32s returns a float32 column. Array columns are flattened row by
// row, Len()*N values.
func (a *RecordArray) Float32s(name string) ([]float32, error) {
	c, err := a.column(name, reflexio.TagFloat32, reflexio.TagArray)
	if err != nil {
		return nil, err
	}
	return gather[float32](a, c), nil
}

func (a *RecordArray) Float64s(name string) ([]float64, error) {
	c, err := a.column(name, reflexio.TagFloat64)
	if err != nil {
		return nil, err
	}
	return gather[float64](a, c), nil
}

func (a *RecordArray) Bools(name string) ([]bool, error) {
	c, err := a.column(name, reflexio.TagBool)
	if err != nil {
		return nil, err
	}
	out := make([]bool, a.n)
	s := a.Stride()
	for r := range out {
		out[r] = a.data[r*s+c.Offset] != 0
	}
	return out, nil
}
