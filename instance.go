package reflexio

import (
	"bytes"
	"fmt"
	"iter"
	"math"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"github.com/rawbytedev/reflexio/internal/common"
)

// Instance is a value of a StructType.
//
// The fixed region holds every fixed-width field in its little-endian
// wire form; nested struct fields are child instances whose fixed region
// is a sub-slice of the parent's, so writes through a child are writes to
// the parent. Strings and vectors live in per-field slots owned by the
// instance.
//
// An Instance has a single owner and is not safe for concurrent use.
// Handles returned by Get for reference fields keep the instance alive
// and observe every later mutation of it.
type Instance struct {
	typ      *StructType
	fixed    []byte
	vars     []varSlot
	children []*Instance
}

type varSlot struct {
	str string
	f32 []float32
	i32 []int32
}

// New returns an instance holding the declared defaults.
func (t *StructType) New() *Instance {
	buf := make([]byte, t.fixedSize)
	copy(buf, t.proto)
	return t.attach(buf)
}

// attach builds an instance over a fixed region that already holds its
// defaults.
func (t *StructType) attach(fixed []byte) *Instance {
	in := &Instance{typ: t, fixed: fixed}
	if t.numVars > 0 {
		in.vars = make([]varSlot, t.numVars)
	}
	if t.numChildren > 0 {
		in.children = make([]*Instance, t.numChildren)
	}
	for _, fd := range t.fields {
		switch {
		case fd.tag == TagNested:
			end := fd.offset + fd.width
			in.children[fd.slot] = fd.nested.attach(fixed[fd.offset:end:end])
		case fd.tag.IsVariable():
			in.vars[fd.slot] = defaultSlot(fd)
		}
	}
	return in
}

func defaultSlot(fd *FieldDescriptor) varSlot {
	switch d := fd.def.(type) {
	case string:
		return varSlot{str: d}
	case []float32:
		return varSlot{f32: slices.Clone(d)}
	case []int32:
		return varSlot{i32: slices.Clone(d)}
	}
	return varSlot{}
}

func writeDefault(b []byte, fd *FieldDescriptor) {
	switch fd.tag {
	case TagBool:
		if fd.def.(bool) {
			b[0] = 1
		}
	case TagInt32:
		common.Store(b, fd.def.(int32))
	case TagInt64:
		common.Store(b, fd.def.(int64))
	case TagFloat32:
		common.Store(b, fd.def.(float32))
	case TagFloat64:
		common.Store(b, fd.def.(float64))
	case TagEnum:
		common.StoreInt(b, fd.width, fd.def.(EnumValue).value)
	case TagArray:
		for i, v := range fd.def.([]float32) {
			common.Store(b[4*i:], v)
		}
	case TagNested:
		copy(b, fd.nested.proto)
	}
}

// Type returns the instance's struct type.
func (in *Instance) Type() *StructType { return in.typ }

// Len returns the number of declared fields.
func (in *Instance) Len() int { return len(in.typ.fields) }

func (in *Instance) fieldBytes(fd *FieldDescriptor) []byte {
	return in.fixed[fd.offset : fd.offset+fd.width]
}

func (in *Instance) lookup(name string) (*FieldDescriptor, error) {
	fd, ok := in.typ.byName[name]
	if !ok {
		return nil, unknownField(in.typ.name, name)
	}
	return fd, nil
}

// Get reads a field. Value fields yield an independent copy. Reference
// fields yield a handle: *ScalarRef[T] for scalars, *ArrayRef for arrays,
// *VectorRef[E] for vectors and the live child *Instance for nested
// structs.
func (in *Instance) Get(name string) (any, error) {
	fd, err := in.lookup(name)
	if err != nil {
		return nil, err
	}
	return in.get(fd), nil
}

func (in *Instance) get(fd *FieldDescriptor) any {
	if fd.semantics != ReferenceSemantics {
		return in.valueOf(fd)
	}
	switch fd.tag {
	case TagInt32:
		return &ScalarRef[int32]{in: in, fd: fd}
	case TagInt64:
		return &ScalarRef[int64]{in: in, fd: fd}
	case TagFloat32:
		return &ScalarRef[float32]{in: in, fd: fd}
	case TagFloat64:
		return &ScalarRef[float64]{in: in, fd: fd}
	case TagArray:
		return &ArrayRef{in: in, fd: fd}
	case TagVectorFloat:
		return &VectorRef[float32]{in: in, fd: fd}
	case TagVectorInt:
		return &VectorRef[int32]{in: in, fd: fd}
	case TagNested:
		return in.children[fd.slot]
	}
	return in.valueOf(fd)
}

// Value reads a field as an independent copy whatever its declared
// semantics; nested structs come back as a deep copy.
func (in *Instance) Value(name string) (any, error) {
	fd, err := in.lookup(name)
	if err != nil {
		return nil, err
	}
	return in.valueOf(fd), nil
}

// Child returns the live instance behind a nested struct field.
func (in *Instance) Child(name string) (*Instance, error) {
	fd, err := in.lookup(name)
	if err != nil {
		return nil, err
	}
	if fd.tag != TagNested {
		return nil, &TypeMismatchError{Field: name, Want: TagNested.String(), Got: fd.tag.String(), Reason: "not a nested struct"}
	}
	return in.children[fd.slot], nil
}

// valueOf returns an independent copy regardless of declared semantics.
func (in *Instance) valueOf(fd *FieldDescriptor) any {
	switch fd.tag {
	case TagBool:
		return in.fixed[fd.offset] != 0
	case TagInt32:
		return common.Load[int32](in.fieldBytes(fd))
	case TagInt64:
		return common.Load[int64](in.fieldBytes(fd))
	case TagFloat32:
		return common.Load[float32](in.fieldBytes(fd))
	case TagFloat64:
		return common.Load[float64](in.fieldBytes(fd))
	case TagEnum:
		return EnumValue{enum: fd.enum, value: common.LoadInt(in.fieldBytes(fd), fd.width)}
	case TagArray:
		return common.Float32s(in.fieldBytes(fd), fd.length)
	case TagNested:
		return in.children[fd.slot].Clone()
	case TagString:
		return in.vars[fd.slot].str
	case TagVectorFloat:
		return slices.Clone(in.vars[fd.slot].f32)
	case TagVectorInt:
		return slices.Clone(in.vars[fd.slot].i32)
	}
	return nil
}

// Set validates v against the field type and stores it. Fixed-width
// fields are overwritten in place, strings and vectors get a private
// copy of v, and nested structs are copied into the existing child so
// that handles to it stay valid. Handles of a matching kind are accepted
// as sources.
func (in *Instance) Set(name string, v any) error {
	fd, err := in.lookup(name)
	if err != nil {
		return err
	}
	return in.set(fd, v)
}

func (in *Instance) set(fd *FieldDescriptor, v any) error {
	if h, ok := v.(snapshotter); ok {
		v = h.snapshot()
	}
	mismatch := func(reason string) error {
		return &TypeMismatchError{Field: fd.name, Want: fd.tag.String(), Got: v, Reason: reason}
	}
	switch fd.tag {
	case TagBool:
		b, ok := v.(bool)
		if !ok {
			return mismatch("")
		}
		in.fixed[fd.offset] = 0
		if b {
			in.fixed[fd.offset] = 1
		}
	case TagInt32:
		i, err := toInt64(v)
		if err != nil {
			return mismatch(err.Error())
		}
		n, err := safecast.Conv[int32](i)
		if err != nil {
			return mismatch(err.Error())
		}
		common.Store(in.fieldBytes(fd), n)
	case TagInt64:
		i, err := toInt64(v)
		if err != nil {
			return mismatch(err.Error())
		}
		common.Store(in.fieldBytes(fd), i)
	case TagFloat32:
		f, ok := toFloat64(v)
		if !ok {
			return mismatch("")
		}
		if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return mismatch(fmt.Sprintf("%g overflows float32", f))
		}
		common.Store(in.fieldBytes(fd), float32(f))
	case TagFloat64:
		f, ok := toFloat64(v)
		if !ok {
			return mismatch("")
		}
		common.Store(in.fieldBytes(fd), f)
	case TagEnum:
		e, err := toEnum(fd.enum, v)
		if err != nil {
			return mismatch(err.Error())
		}
		common.StoreInt(in.fieldBytes(fd), fd.width, e.value)
	case TagArray:
		a, ok := v.([]float32)
		if !ok {
			return mismatch("")
		}
		if len(a) != fd.length {
			return mismatch(fmt.Sprintf("length %d, want %d", len(a), fd.length))
		}
		b := in.fieldBytes(fd)
		for i, f := range a {
			common.Store(b[4*i:], f)
		}
	case TagString:
		switch s := v.(type) {
		case string:
			in.vars[fd.slot].str = s
		case []byte:
			in.vars[fd.slot].str = string(s)
		default:
			return mismatch("")
		}
	case TagVectorFloat:
		f, ok := v.([]float32)
		if !ok {
			return mismatch("")
		}
		in.vars[fd.slot].f32 = slices.Clone(f)
	case TagVectorInt:
		i, ok := v.([]int32)
		if !ok {
			return mismatch("")
		}
		in.vars[fd.slot].i32 = slices.Clone(i)
	case TagNested:
		child := in.children[fd.slot]
		switch src := v.(type) {
		case *Instance:
			if src == nil || src.typ != fd.nested {
				return mismatch("want an instance of " + fd.nested.name)
			}
			child.copyFrom(src)
		case map[string]any:
			return child.Update(src)
		default:
			return mismatch("")
		}
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		return safecast.Conv[int64](x)
	case uint64:
		return safecast.Conv[int64](x)
	}
	return 0, fmt.Errorf("%T is not an integer", v)
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func toEnum(e *EnumType, v any) (EnumValue, error) {
	switch x := v.(type) {
	case EnumValue:
		if x.enum != e {
			return EnumValue{}, fmt.Errorf("%v is not a member of %s", x, e.name)
		}
		return x, nil
	case string:
		if ev, ok := e.Value(x); ok {
			return ev, nil
		}
		return EnumValue{}, fmt.Errorf("%q is not a member of %s", x, e.name)
	}
	i, err := toInt64(v)
	if err != nil {
		return EnumValue{}, err
	}
	if ev, ok := e.FromInt(i); ok {
		return ev, nil
	}
	return EnumValue{}, fmt.Errorf("%d is not a member of %s", i, e.name)
}

// Equal reports whether other has the same type and every field compares
// equal: fixed-width fields by raw bytes, vectors element-wise by bit
// pattern, strings by content.
func (in *Instance) Equal(other *Instance) bool {
	if in == other {
		return true
	}
	if in == nil || other == nil || in.typ != other.typ {
		return false
	}
	for _, fd := range in.typ.fields {
		if in.differs(other, fd) {
			return false
		}
	}
	return true
}

func (in *Instance) differs(other *Instance, fd *FieldDescriptor) bool {
	switch fd.tag {
	case TagNested:
		return !in.children[fd.slot].Equal(other.children[fd.slot])
	case TagString:
		return in.vars[fd.slot].str != other.vars[fd.slot].str
	case TagVectorFloat:
		return !common.SameFloat32s(in.vars[fd.slot].f32, other.vars[fd.slot].f32)
	case TagVectorInt:
		return !slices.Equal(in.vars[fd.slot].i32, other.vars[fd.slot].i32)
	default:
		return !bytes.Equal(in.fieldBytes(fd), other.fieldBytes(fd))
	}
}

// DifferingMembers yields, in declaration order, the names of fields
// whose values differ between in and other. Instances of different types
// differ in every member. The sequence is evaluated lazily against the
// live instances and can be ranged over any number of times; mutating
// either instance while ranging over it is not allowed.
func (in *Instance) DifferingMembers(other *Instance) iter.Seq[string] {
	return func(yield func(string) bool) {
		comparable := other != nil && other.typ == in.typ
		for _, fd := range in.typ.fields {
			if comparable && !in.differs(other, fd) {
				continue
			}
			if !yield(fd.name) {
				return
			}
		}
	}
}

// Differences renders "name: a vs b" lines for every differing member.
func (in *Instance) Differences(other *Instance) string {
	if other == nil || other.typ != in.typ {
		return fmt.Sprintf("type %s vs %v\n", in.typ.name, typeName(other))
	}
	var b strings.Builder
	for name := range in.DifferingMembers(other) {
		fd := in.typ.byName[name]
		fmt.Fprintf(&b, "%s: %s vs %s\n", name, in.format(fd), other.format(fd))
	}
	return b.String()
}

func typeName(in *Instance) string {
	if in == nil {
		return "<nil>"
	}
	return in.typ.name
}

// Keys yields field names in declaration order. Every call starts a
// fresh sequence.
func (in *Instance) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, fd := range in.typ.fields {
			if !yield(fd.name) {
				return
			}
		}
	}
}

// All yields name/value pairs in declaration order with the same
// value/reference split as Get.
func (in *Instance) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, fd := range in.typ.fields {
			if !yield(fd.name, in.get(fd)) {
				return
			}
		}
	}
}

// Clone returns a deep copy.
func (in *Instance) Clone() *Instance {
	out := in.typ.attach(bytes.Clone(in.fixed))
	out.copyVarsFrom(in)
	return out
}

// CopyFrom overwrites every field of in with the content of src, keeping
// in's identity so existing handles stay valid.
func (in *Instance) CopyFrom(src *Instance) error {
	if src == nil || src.typ != in.typ {
		return &TypeMismatchError{Field: "<instance>", Want: in.typ.name, Got: src}
	}
	in.copyFrom(src)
	return nil
}

func (in *Instance) copyFrom(src *Instance) {
	if in == src {
		return
	}
	copy(in.fixed, src.fixed)
	in.copyVarsFrom(src)
}

func (in *Instance) copyVarsFrom(src *Instance) {
	for i, s := range src.vars {
		in.vars[i] = varSlot{str: s.str, f32: slices.Clone(s.f32), i32: slices.Clone(s.i32)}
	}
	for i, c := range src.children {
		in.children[i].copyVarsFrom(c)
	}
}

// Reset restores the declared defaults in place.
func (in *Instance) Reset() {
	copy(in.fixed, in.typ.proto)
	in.resetVars()
}

func (in *Instance) resetVars() {
	for _, fd := range in.typ.fields {
		switch {
		case fd.tag == TagNested:
			in.children[fd.slot].resetVars()
		case fd.tag.IsVariable():
			in.vars[fd.slot] = defaultSlot(fd)
		}
	}
}

func (in *Instance) atDefault(fd *FieldDescriptor) bool {
	switch fd.tag {
	case TagNested:
		return in.children[fd.slot].HasAllDefaultValues()
	case TagString:
		return in.vars[fd.slot].str == fd.def.(string)
	case TagVectorFloat:
		return common.SameFloat32s(in.vars[fd.slot].f32, fd.def.([]float32))
	case TagVectorInt:
		return slices.Equal(in.vars[fd.slot].i32, fd.def.([]int32))
	default:
		return bytes.Equal(in.fieldBytes(fd), in.typ.proto[fd.offset:fd.offset+fd.width])
	}
}

// HasAllDefaultValues reports whether every field holds its default.
func (in *Instance) HasAllDefaultValues() bool {
	for _, fd := range in.typ.fields {
		if !in.atDefault(fd) {
			return false
		}
	}
	return true
}

// NonDefaultValues lists fields that no longer hold their default.
func (in *Instance) NonDefaultValues() []string {
	var out []string
	for _, fd := range in.typ.fields {
		if !in.atDefault(fd) {
			out = append(out, fd.name)
		}
	}
	return out
}

// String renders one "name: value" line per field; nested structs are
// indented below their field name.
func (in *Instance) String() string {
	var b strings.Builder
	in.write(&b, "")
	return b.String()
}

func (in *Instance) write(b *strings.Builder, indent string) {
	for _, fd := range in.typ.fields {
		if fd.tag == TagNested {
			fmt.Fprintf(b, "%s%s:\n", indent, fd.name)
			in.children[fd.slot].write(b, indent+"  ")
			continue
		}
		fmt.Fprintf(b, "%s%s: %s\n", indent, fd.name, in.format(fd))
	}
}

func (in *Instance) format(fd *FieldDescriptor) string {
	switch v := in.valueOf(fd).(type) {
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []float32:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []int32:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.FormatInt(int64(n), 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Instance:
		return "{" + strings.TrimSuffix(strings.ReplaceAll(v.String(), "\n", ", "), ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}
