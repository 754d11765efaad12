package reflexio

import (
	"fmt"
	"reflect"
)

// AsDict returns every field keyed by name, with the same value/reference
// split as Get.
func (in *Instance) AsDict() map[string]any {
	out := make(map[string]any, len(in.typ.fields))
	for _, fd := range in.typ.fields {
		out[fd.name] = in.get(fd)
	}
	return out
}

// Update assigns every entry of values. Unknown keys are rejected before
// anything is written, and a failing entry leaves the instance unchanged.
func (in *Instance) Update(values map[string]any) error {
	for k := range values {
		if _, ok := in.typ.byName[k]; !ok {
			return unknownField(in.typ.name, k)
		}
	}
	tmp := in.Clone()
	for _, fd := range in.typ.fields {
		v, ok := values[fd.name]
		if !ok {
			continue
		}
		if err := tmp.set(fd, v); err != nil {
			return err
		}
	}
	in.copyFrom(tmp)
	return nil
}

// Accessor is a typed front end for one field of a StructType. It reads
// and writes through the same path as Instance.Get and Instance.Set.
type Accessor[T any] struct {
	typ *StructType
	fd  *FieldDescriptor
}

// Bind returns an accessor for the named field. T must be exactly the Go
// type Get yields for that field, e.g. int32 for a value Int32 field,
// *ArrayRef for an array or *Instance for a nested struct.
func Bind[T any](typ *StructType, name string) (Accessor[T], error) {
	fd, ok := typ.byName[name]
	if !ok {
		return Accessor[T]{}, unknownField(typ.name, name)
	}
	want := GoType(fd)
	if got := reflect.TypeFor[T](); got != want {
		return Accessor[T]{}, &TypeMismatchError{
			Field:  name,
			Want:   want.String(),
			Got:    *new(T),
			Reason: "accessor declared as " + got.String(),
		}
	}
	return Accessor[T]{typ: typ, fd: fd}, nil
}

// Field returns the bound descriptor.
func (a Accessor[T]) Field() *FieldDescriptor { return a.fd }

func (a Accessor[T]) check(in *Instance) error {
	if in == nil || in.typ != a.typ {
		return &TypeMismatchError{Field: a.fd.name, Want: a.typ.name, Got: in, Reason: "instance of another type"}
	}
	return nil
}

func (a Accessor[T]) Get(in *Instance) (T, error) {
	if err := a.check(in); err != nil {
		var zero T
		return zero, err
	}
	return in.get(a.fd).(T), nil
}

func (a Accessor[T]) Set(in *Instance, v T) error {
	if err := a.check(in); err != nil {
		return err
	}
	return in.set(a.fd, v)
}

// GoType returns the dynamic type Instance.Get yields for fd.
func GoType(fd *FieldDescriptor) reflect.Type {
	ref := fd.semantics == ReferenceSemantics
	switch fd.tag {
	case TagBool:
		return reflect.TypeFor[bool]()
	case TagInt32:
		if ref {
			return reflect.TypeFor[*ScalarRef[int32]]()
		}
		return reflect.TypeFor[int32]()
	case TagInt64:
		if ref {
			return reflect.TypeFor[*ScalarRef[int64]]()
		}
		return reflect.TypeFor[int64]()
	case TagFloat32:
		if ref {
			return reflect.TypeFor[*ScalarRef[float32]]()
		}
		return reflect.TypeFor[float32]()
	case TagFloat64:
		if ref {
			return reflect.TypeFor[*ScalarRef[float64]]()
		}
		return reflect.TypeFor[float64]()
	case TagEnum:
		return reflect.TypeFor[EnumValue]()
	case TagArray:
		if ref {
			return reflect.TypeFor[*ArrayRef]()
		}
		return reflect.TypeFor[[]float32]()
	case TagVectorFloat:
		if ref {
			return reflect.TypeFor[*VectorRef[float32]]()
		}
		return reflect.TypeFor[[]float32]()
	case TagVectorInt:
		if ref {
			return reflect.TypeFor[*VectorRef[int32]]()
		}
		return reflect.TypeFor[[]int32]()
	case TagNested:
		return reflect.TypeFor[*Instance]()
	case TagString:
		return reflect.TypeFor[string]()
	}
	panic(fmt.Sprintf("reflexio: no Go type for %s", fd.tag))
}
