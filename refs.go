package reflexio

import (
	"iter"
	"slices"

	"github.com/rawbytedev/reflexio/internal/common"
)

// Scalar is the set of numeric types a ScalarRef can address.
type Scalar interface {
	int32 | int64 | float32 | float64
}

// Element is the set of vector element types.
type Element interface {
	float32 | int32
}

// snapshotter is implemented by handles; Set copies their current value.
type snapshotter interface {
	snapshot() any
}

// ScalarRef aliases a numeric field declared with reference semantics.
type ScalarRef[T Scalar] struct {
	in *Instance
	fd *FieldDescriptor
}

// Field returns the field name the handle addresses.
func (r *ScalarRef[T]) Field() string { return r.fd.name }

func (r *ScalarRef[T]) Get() T { return common.Load[T](r.in.fieldBytes(r.fd)) }

func (r *ScalarRef[T]) Set(v T) { common.Store(r.in.fieldBytes(r.fd), v) }

func (r *ScalarRef[T]) snapshot() any { return r.Get() }

// ArrayRef aliases a fixed-length float32 array inside an instance's
// fixed region.
type ArrayRef struct {
	in *Instance
	fd *FieldDescriptor
}

func (r *ArrayRef) Field() string { return r.fd.name }

func (r *ArrayRef) Len() int { return r.fd.length }

func (r *ArrayRef) bounds(i int) error {
	if i < 0 || i >= r.fd.length {
		return &BoundsError{Field: r.fd.name, Index: i, Len: r.fd.length}
	}
	return nil
}

// At reads element i.
func (r *ArrayRef) At(i int) (float32, error) {
	if err := r.bounds(i); err != nil {
		return 0, err
	}
	return common.Load[float32](r.in.fieldBytes(r.fd)[4*i:]), nil
}

// Set writes element i in place.
func (r *ArrayRef) Set(i int, v float32) error {
	if err := r.bounds(i); err != nil {
		return err
	}
	common.Store(r.in.fieldBytes(r.fd)[4*i:], v)
	return nil
}

// Values copies the array out.
func (r *ArrayRef) Values() []float32 {
	return common.Float32s(r.in.fieldBytes(r.fd), r.fd.length)
}

// All yields index/element pairs reading the live array.
func (r *ArrayRef) All() iter.Seq2[int, float32] {
	return func(yield func(int, float32) bool) {
		b := r.in.fieldBytes(r.fd)
		for i := range r.fd.length {
			if !yield(i, common.Load[float32](b[4*i:])) {
				return
			}
		}
	}
}

func (r *ArrayRef) snapshot() any { return r.Values() }

// VectorRef aliases a variable-length vector field. Appends made through
// the handle are visible through the instance and through every other
// handle to the same field.
type VectorRef[E Element] struct {
	in *Instance
	fd *FieldDescriptor
}

func slotItems[E Element](s *varSlot) *[]E {
	var zero E
	var p any
	switch any(zero).(type) {
	case float32:
		p = &s.f32
	case int32:
		p = &s.i32
	}
	return p.(*[]E)
}

func (r *VectorRef[E]) items() *[]E { return slotItems[E](&r.in.vars[r.fd.slot]) }

func (r *VectorRef[E]) Field() string { return r.fd.name }

func (r *VectorRef[E]) Len() int { return len(*r.items()) }

func (r *VectorRef[E]) bounds(i int) error {
	if n := r.Len(); i < 0 || i >= n {
		return &BoundsError{Field: r.fd.name, Index: i, Len: n}
	}
	return nil
}

// At reads element i.
func (r *VectorRef[E]) At(i int) (E, error) {
	if err := r.bounds(i); err != nil {
		var zero E
		return zero, err
	}
	return (*r.items())[i], nil
}

// Set writes element i.
func (r *VectorRef[E]) Set(i int, v E) error {
	if err := r.bounds(i); err != nil {
		return err
	}
	(*r.items())[i] = v
	return nil
}

// Append grows the vector.
func (r *VectorRef[E]) Append(v ...E) {
	p := r.items()
	*p = append(*p, v...)
}

// Clear empties the vector.
func (r *VectorRef[E]) Clear() {
	p := r.items()
	*p = (*p)[:0]
}

// Values copies the vector out.
func (r *VectorRef[E]) Values() []E {
	out := slices.Clone(*r.items())
	if out == nil {
		out = []E{}
	}
	return out
}

// All yields index/element pairs reading the live vector.
func (r *VectorRef[E]) All() iter.Seq2[int, E] {
	return func(yield func(int, E) bool) {
		for i, v := range *r.items() {
			if !yield(i, v) {
				return
			}
		}
	}
}

func (r *VectorRef[E]) snapshot() any { return r.Values() }
