package reflexio

import (
	"context"
	"encoding/hex"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Registry owns struct and enum definitions. Types are registered once
// and are immutable afterwards; a Registry is safe for concurrent use.
//
// Registering a name again with an identical definition returns the
// existing type. A different definition under a taken name is rejected
// with a ConfigError.
type Registry struct {
	opts Options
	log  *Logger

	mu    sync.RWMutex
	types map[string]*StructType
	enums map[string]*EnumType
	plans map[reflect.Type]*bindPlan
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		opts:  o,
		log:   o.Logger,
		types: make(map[string]*StructType),
		enums: make(map[string]*EnumType),
		plans: make(map[reflect.Type]*bindPlan),
	}
}

// Options returns the registry configuration.
func (r *Registry) Options() Options { return r.opts }

// Logger returns the registry logger.
func (r *Registry) Logger() *Logger { return r.log }

// DefineEnum registers an enum with the configured default width.
func (r *Registry) DefineEnum(name string, members ...EnumMember) (*EnumType, error) {
	return r.DefineSizedEnum(name, r.opts.EnumWidth, members...)
}

// DefineSizedEnum registers an enum whose underlying integer is width
// bytes wide.
func (r *Registry) DefineSizedEnum(name string, width int, members ...EnumMember) (*EnumType, error) {
	e, err := newEnumType(name, width, members)
	if err == nil {
		r.mu.Lock()
		if old, ok := r.enums[name]; ok {
			if sameEnum(old, e) {
				e = old
			} else {
				err = &ConfigError{Type: name, Reason: "enum already defined with different members"}
			}
		} else {
			r.enums[name] = e
		}
		r.mu.Unlock()
	}
	r.log.LogDefine(context.Background(), "enum", name, len(members), err)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func sameEnum(a, b *EnumType) bool {
	if a.width != b.width || len(a.members) != len(b.members) {
		return false
	}
	for i := range a.members {
		if a.members[i].value != b.members[i].value || a.members[i].Name() != b.members[i].Name() {
			return false
		}
	}
	return true
}

// Define registers a struct type with fields in declaration order.
func (r *Registry) Define(name string, specs ...FieldSpec) (*StructType, error) {
	t, err := r.build(name, specs)
	if err == nil {
		r.mu.Lock()
		if old, ok := r.types[name]; ok {
			if old.signature == t.signature {
				t = old
			} else {
				err = &ConfigError{Type: name, Reason: "type already defined with a different layout"}
			}
		} else {
			r.types[name] = t
		}
		r.mu.Unlock()
	}
	r.log.LogDefine(context.Background(), "struct", name, len(specs), err)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Type looks a struct type up by name.
func (r *Registry) Type(name string) (*StructType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Enum looks an enum up by name.
func (r *Registry) Enum(name string) (*EnumType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[name]
	return e, ok
}

// Types returns the registered struct type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) ownsEnum(e *EnumType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enums[e.name] == e
}

func (r *Registry) build(name string, specs []FieldSpec) (*StructType, error) {
	if name == "" {
		return nil, &ConfigError{Type: "<struct>", Reason: "empty type name"}
	}
	t := &StructType{
		name:   name,
		reg:    r,
		fixed:  true,
		byName: make(map[string]*FieldDescriptor, len(specs)),
	}
	offset := 0
	for i, s := range specs {
		if s.name == "" {
			return nil, &ConfigError{Type: name, Reason: fmt.Sprintf("field %d has an empty name", i)}
		}
		if _, dup := t.byName[s.name]; dup {
			return nil, &ConfigError{Type: name, Field: s.name, Reason: "duplicate field name"}
		}
		sem, err := resolveSemantics(s.tag, s.sem)
		if err != nil {
			return nil, &ConfigError{Type: name, Field: s.name, Reason: err.Error()}
		}
		fd := &FieldDescriptor{
			name:      s.name,
			doc:       s.doc,
			tag:       s.tag,
			semantics: sem,
			index:     i,
			offset:    -1,
			slot:      -1,
			def:       s.def,
		}
		switch s.tag {
		case TagBool, TagInt32, TagInt64, TagFloat32, TagFloat64:
			fd.width = scalarWidth(s.tag)
		case TagEnum:
			if s.enum == nil {
				return nil, &ConfigError{Type: name, Field: s.name, Reason: "nil enum type"}
			}
			if !r.ownsEnum(s.enum) {
				return nil, &ConfigError{Type: name, Field: s.name, Reason: "enum " + s.enum.name + " is not registered here"}
			}
			def := s.enum.members[0]
			if s.enumDef != "" {
				v, ok := s.enum.Value(s.enumDef)
				if !ok {
					return nil, &ConfigError{Type: name, Field: s.name, Reason: fmt.Sprintf("default %q is not a member of %s", s.enumDef, s.enum.name)}
				}
				def = v
			}
			fd.enum = s.enum
			fd.def = def
			fd.width = s.enum.width
		case TagArray:
			def, _ := s.def.([]float32)
			if s.length < 1 {
				return nil, &ConfigError{Type: name, Field: s.name, Reason: fmt.Sprintf("array length %d < 1", s.length)}
			}
			if len(def) > s.length {
				return nil, &ConfigError{Type: name, Field: s.name, Reason: fmt.Sprintf("%d defaults for an array of %d", len(def), s.length)}
			}
			full := make([]float32, s.length)
			copy(full, def)
			fd.def = full
			fd.length = s.length
			fd.width = 4 * s.length
		case TagNested:
			if s.nested == nil {
				return nil, &ConfigError{Type: name, Field: s.name, Reason: "nil nested type"}
			}
			if s.nested.reg != r {
				return nil, &ConfigError{Type: name, Field: s.name, Reason: "nested type " + s.nested.name + " belongs to another registry"}
			}
			fd.nested = s.nested
			fd.width = s.nested.fixedSize
			fd.slot = t.numChildren
			fd.def = nil
			t.numChildren++
			if !s.nested.fixed {
				t.fixed = false
			}
		case TagString, TagVectorFloat, TagVectorInt:
			fd.slot = t.numVars
			t.numVars++
			t.fixed = false
			if fd.def == nil {
				switch s.tag {
				case TagString:
					fd.def = ""
				case TagVectorFloat:
					fd.def = []float32{}
				default:
					fd.def = []int32{}
				}
			}
		default:
			return nil, &ConfigError{Type: name, Field: s.name, Reason: "unknown type tag " + s.tag.String()}
		}
		if !s.tag.IsVariable() {
			fd.offset = offset
			offset += fd.width
		}
		t.fields = append(t.fields, fd)
		t.byName[fd.name] = fd
	}
	t.fixedSize = offset
	t.proto = make([]byte, offset)
	for _, fd := range t.fields {
		if fd.offset >= 0 {
			writeDefault(t.proto[fd.offset:fd.offset+fd.width], fd)
		}
	}
	t.fingerprint = xxhash.Sum64String(t.canonical(false))
	t.signature = t.canonical(true)
	return t, nil
}

// canonical renders the layout; full adds defaults and docs so that
// redefinitions can be compared exactly.
func (t *StructType) canonical(full bool) string {
	var b strings.Builder
	b.WriteString(t.name)
	for _, fd := range t.fields {
		fmt.Fprintf(&b, "|%s:%s:%s:%d:%d", fd.name, fd.tag, fd.semantics, fd.width, fd.length)
		if fd.enum != nil {
			fmt.Fprintf(&b, ":%s/%d", fd.enum.name, fd.enum.width)
		}
		if fd.nested != nil {
			fmt.Fprintf(&b, ":{%s}", fd.nested.canonical(full))
		}
		if full {
			fmt.Fprintf(&b, ":%q", fd.doc)
			if fd.tag.IsVariable() {
				fmt.Fprintf(&b, ":%v", fd.def)
			}
		}
	}
	if full {
		b.WriteString("|" + hex.EncodeToString(t.proto))
	}
	return b.String()
}

// StructType is a registered struct layout.
type StructType struct {
	name        string
	reg         *Registry
	fields      []*FieldDescriptor
	byName      map[string]*FieldDescriptor
	fixedSize   int
	numVars     int
	numChildren int
	fixed       bool
	proto       []byte
	fingerprint uint64
	signature   string
}

func (t *StructType) Name() string { return t.name }

// Registry returns the registry the type was defined in.
func (t *StructType) Registry() *Registry { return t.reg }

func (t *StructType) NumFields() int { return len(t.fields) }

// Fields returns the descriptors in declaration order.
func (t *StructType) Fields() []*FieldDescriptor { return slices.Clone(t.fields) }

// Field looks a descriptor up by name.
func (t *StructType) Field(name string) (*FieldDescriptor, bool) {
	fd, ok := t.byName[name]
	return fd, ok
}

// Names returns the field names in declaration order.
func (t *StructType) Names() []string {
	out := make([]string, len(t.fields))
	for i, fd := range t.fields {
		out[i] = fd.name
	}
	return out
}

// FixedSize is the byte size of the fixed region, which is also the
// stride of the columnar export.
func (t *StructType) FixedSize() int { return t.fixedSize }

// IsFixed reports whether the type has no variable-length field at any
// nesting depth.
func (t *StructType) IsFixed() bool { return t.fixed }

// Fingerprint hashes the binary layout. Types with equal fingerprints
// decode each other's encodings.
func (t *StructType) Fingerprint() uint64 { return t.fingerprint }

// Docstring lists "name: doc" lines in declaration order.
func (t *StructType) Docstring() string {
	var b strings.Builder
	for _, fd := range t.fields {
		b.WriteString(fd.name)
		b.WriteString(": ")
		b.WriteString(fd.doc)
		b.WriteByte('\n')
	}
	return b.String()
}

func (t *StructType) String() string { return t.name }
