package reflexio

import (
	"fmt"
	"slices"
)

// TypeTag identifies the storage class of a field.
type TypeTag uint8

const (
	TagBool TypeTag = iota + 1
	TagInt32
	TagInt64
	TagFloat32
	TagFloat64
	TagEnum
	// TagArray is a fixed-length float32 array stored in the fixed region.
	TagArray
	TagNested
	TagString
	TagVectorFloat
	TagVectorInt
)

var tagNames = map[TypeTag]string{
	TagBool:        "bool",
	TagInt32:       "int32",
	TagInt64:       "int64",
	TagFloat32:     "float32",
	TagFloat64:     "float64",
	TagEnum:        "enum",
	TagArray:       "array",
	TagNested:      "struct",
	TagString:      "string",
	TagVectorFloat: "vector",
	TagVectorInt:   "ivector",
}

func (t TypeTag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TypeTag(%d)", uint8(t))
}

// ParseTypeTag is the inverse of TypeTag.String.
func ParseTypeTag(s string) (TypeTag, bool) {
	for t, n := range tagNames {
		if n == s {
			return t, true
		}
	}
	return 0, false
}

// IsVariable reports whether fields of this tag live outside the fixed region.
func (t TypeTag) IsVariable() bool {
	return t == TagString || t == TagVectorFloat || t == TagVectorInt
}

// Semantics selects what Get returns for a field.
type Semantics uint8

const (
	// DefaultSemantics resolves to ReferenceSemantics for arrays, vectors
	// and nested structs and to ValueSemantics otherwise.
	DefaultSemantics Semantics = iota
	// ValueSemantics: Get returns an independent copy.
	ValueSemantics
	// ReferenceSemantics: Get returns a handle aliasing the instance.
	ReferenceSemantics
)

func (s Semantics) String() string {
	switch s {
	case ValueSemantics:
		return "value"
	case ReferenceSemantics:
		return "reference"
	default:
		return "default"
	}
}

// FieldSpec is a field declaration passed to Registry.Define.
type FieldSpec struct {
	name    string
	doc     string
	tag     TypeTag
	sem     Semantics
	length  int
	enum    *EnumType
	nested  *StructType
	def     any
	enumDef string
}

// WithSemantics overrides the default semantics of the field.
func (s FieldSpec) WithSemantics(sem Semantics) FieldSpec {
	s.sem = sem
	return s
}

func BoolField(name string, def bool, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagBool, def: def}
}

func Int32Field(name string, def int32, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagInt32, def: def}
}

func Int64Field(name string, def int64, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagInt64, def: def}
}

func Float32Field(name string, def float32, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagFloat32, def: def}
}

func Float64Field(name string, def float64, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagFloat64, def: def}
}

// EnumField declares an enum field. def names the default enumerator;
// an empty def selects the first member.
func EnumField(name string, e *EnumType, def string, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagEnum, enum: e, enumDef: def}
}

// ArrayField declares a float32 array of length n. Missing trailing
// defaults are zero.
func ArrayField(name string, n int, def []float32, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagArray, length: n, def: slices.Clone(def)}
}

func StringField(name string, def string, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagString, def: def}
}

// VectorField declares a variable-length float32 vector.
func VectorField(name string, def []float32, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagVectorFloat, def: slices.Clone(def)}
}

// IntVectorField declares a variable-length int32 vector.
func IntVectorField(name string, def []int32, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagVectorInt, def: slices.Clone(def)}
}

// NestedField embeds typ by value.
func NestedField(name string, typ *StructType, doc string) FieldSpec {
	return FieldSpec{name: name, doc: doc, tag: TagNested, nested: typ}
}

// FieldDescriptor is the immutable metadata of one declared field.
type FieldDescriptor struct {
	name      string
	doc       string
	tag       TypeTag
	semantics Semantics
	index     int
	offset    int
	width     int
	slot      int
	length    int
	enum      *EnumType
	nested    *StructType
	def       any
}

func (f *FieldDescriptor) Name() string { return f.name }
func (f *FieldDescriptor) Doc() string  { return f.doc }
func (f *FieldDescriptor) Tag() TypeTag { return f.tag }

// Semantics returns the resolved semantics, never DefaultSemantics.
func (f *FieldDescriptor) Semantics() Semantics { return f.semantics }

// Index is the declaration position.
func (f *FieldDescriptor) Index() int { return f.index }

// Offset is the byte offset inside the fixed region. Variable-length
// fields report -1.
func (f *FieldDescriptor) Offset() int { return f.offset }

// Width is the byte width inside the fixed region, 0 for variable-length
// fields.
func (f *FieldDescriptor) Width() int { return f.width }

// Len is the element count of an array field.
func (f *FieldDescriptor) Len() int { return f.length }

func (f *FieldDescriptor) Enum() *EnumType     { return f.enum }
func (f *FieldDescriptor) Nested() *StructType { return f.nested }

// IsFixed reports whether the field lives entirely in the fixed region.
func (f *FieldDescriptor) IsFixed() bool {
	if f.tag == TagNested {
		return f.nested.IsFixed()
	}
	return !f.tag.IsVariable()
}

// Default returns a copy of the declared default. Nested fields return nil;
// their default is the nested type's defaults.
func (f *FieldDescriptor) Default() any {
	switch d := f.def.(type) {
	case []float32:
		return slices.Clone(d)
	case []int32:
		return slices.Clone(d)
	default:
		return d
	}
}

func (f *FieldDescriptor) String() string {
	return fmt.Sprintf("%s %s (%s)", f.name, f.tag, f.semantics)
}

func resolveSemantics(tag TypeTag, sem Semantics) (Semantics, error) {
	switch tag {
	case TagArray, TagVectorFloat, TagVectorInt, TagNested:
		if sem == DefaultSemantics {
			return ReferenceSemantics, nil
		}
		return sem, nil
	case TagInt32, TagInt64, TagFloat32, TagFloat64:
		if sem == DefaultSemantics {
			return ValueSemantics, nil
		}
		return sem, nil
	default:
		if sem == ReferenceSemantics {
			return 0, fmt.Errorf("%s fields only support value semantics", tag)
		}
		return ValueSemantics, nil
	}
}

func scalarWidth(tag TypeTag) int {
	switch tag {
	case TagBool:
		return 1
	case TagInt32, TagFloat32:
		return 4
	case TagInt64, TagFloat64:
		return 8
	}
	return 0
}
