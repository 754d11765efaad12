// Package schema registers enums and struct types declared in TOML.
//
//	[[enum]]
//	name = "Color"
//	width = 1
//	  [[enum.member]]
//	  name = "Red"
//	  value = 1
//	  [[enum.member]]
//	  name = "Green"        # value omitted: previous + 1
//
//	[[struct]]
//	name = "Pixel"
//	  [[struct.field]]
//	  name = "color"
//	  type = "enum"
//	  enum = "Color"
//	  default = "Green"
//	  [[struct.field]]
//	  name = "weights"
//	  type = "array"
//	  len = 4
//	  default = [0.5, 0.5]
//
// Field types are the TypeTag names: bool, int32, int64, float32,
// float64, enum, array, struct, string, vector and ivector. semantics is
// "value" or "reference"; struct names a previously declared struct.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"github.com/rawbytedev/reflexio"
)

type file struct {
	Enums   []enumDecl   `toml:"enum"`
	Structs []structDecl `toml:"struct"`
}

type enumDecl struct {
	Name    string       `toml:"name"`
	Width   int          `toml:"width"`
	Members []memberDecl `toml:"member"`
}

type memberDecl struct {
	Name  string `toml:"name"`
	Value *int64 `toml:"value"`
}

type structDecl struct {
	Name   string      `toml:"name"`
	Fields []fieldDecl `toml:"field"`
}

type fieldDecl struct {
	Name      string `toml:"name"`
	Type      string `toml:"type"`
	Doc       string `toml:"doc"`
	Semantics string `toml:"semantics"`
	Len       int    `toml:"len"`
	Enum      string `toml:"enum"`
	Struct    string `toml:"struct"`
	Default   any    `toml:"default"`
}

// Parse registers every declaration of text in reg: all enums, then the
// structs in file order. It returns the struct types in that order.
func Parse(reg *reflexio.Registry, text string) ([]*reflexio.StructType, error) {
	var f file
	meta, err := toml.Decode(text, &f)
	if err != nil {
		return nil, &reflexio.ConfigError{Type: "<schema>", Reason: err.Error()}
	}
	return register(reg, f, meta)
}

// Load is Parse for a file on disk.
func Load(reg *reflexio.Registry, path string) ([]*reflexio.StructType, error) {
	var f file
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, &reflexio.ConfigError{Type: "<schema>", Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	return register(reg, f, meta)
}

func register(reg *reflexio.Registry, f file, meta toml.MetaData) ([]*reflexio.StructType, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, &reflexio.ConfigError{Type: "<schema>", Reason: "unknown keys: " + strings.Join(keys, ", ")}
	}
	for _, e := range f.Enums {
		members := make([]reflexio.EnumMember, len(e.Members))
		for i, m := range e.Members {
			if m.Value != nil {
				members[i] = reflexio.Member(m.Name, *m.Value)
			} else {
				members[i] = reflexio.AutoMember(m.Name)
			}
		}
		var err error
		if e.Width == 0 {
			_, err = reg.DefineEnum(e.Name, members...)
		} else {
			_, err = reg.DefineSizedEnum(e.Name, e.Width, members...)
		}
		if err != nil {
			return nil, err
		}
	}
	out := make([]*reflexio.StructType, 0, len(f.Structs))
	for _, s := range f.Structs {
		specs := make([]reflexio.FieldSpec, 0, len(s.Fields))
		for _, fd := range s.Fields {
			spec, err := fieldSpec(reg, s.Name, fd)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
		t, err := reg.Define(s.Name, specs...)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func fieldSpec(reg *reflexio.Registry, typ string, d fieldDecl) (reflexio.FieldSpec, error) {
	bad := func(format string, args ...any) error {
		return &reflexio.ConfigError{Type: typ, Field: d.Name, Reason: fmt.Sprintf(format, args...)}
	}
	tag, ok := reflexio.ParseTypeTag(d.Type)
	if !ok {
		return reflexio.FieldSpec{}, bad("unknown type %q", d.Type)
	}
	var spec reflexio.FieldSpec
	switch tag {
	case reflexio.TagBool:
		def, ok := orZero(d.Default, false)
		if !ok {
			return spec, bad("default %v is not a bool", d.Default)
		}
		spec = reflexio.BoolField(d.Name, def, d.Doc)
	case reflexio.TagInt32:
		i, ok := orZero(d.Default, int64(0))
		if !ok {
			return spec, bad("default %v is not an integer", d.Default)
		}
		def, err := safecast.Conv[int32](i)
		if err != nil {
			return spec, bad("default %d: %v", i, err)
		}
		spec = reflexio.Int32Field(d.Name, def, d.Doc)
	case reflexio.TagInt64:
		def, ok := orZero(d.Default, int64(0))
		if !ok {
			return spec, bad("default %v is not an integer", d.Default)
		}
		spec = reflexio.Int64Field(d.Name, def, d.Doc)
	case reflexio.TagFloat32, reflexio.TagFloat64:
		def, ok := number(d.Default)
		if !ok {
			return spec, bad("default %v is not a number", d.Default)
		}
		if tag == reflexio.TagFloat32 {
			spec = reflexio.Float32Field(d.Name, float32(def), d.Doc)
		} else {
			spec = reflexio.Float64Field(d.Name, def, d.Doc)
		}
	case reflexio.TagEnum:
		e, ok := reg.Enum(d.Enum)
		if !ok {
			return spec, bad("unknown enum %q", d.Enum)
		}
		def, ok := orZero(d.Default, "")
		if !ok {
			return spec, bad("enum default %v must be a member name", d.Default)
		}
		spec = reflexio.EnumField(d.Name, e, def, d.Doc)
	case reflexio.TagString:
		def, ok := orZero(d.Default, "")
		if !ok {
			return spec, bad("default %v is not a string", d.Default)
		}
		spec = reflexio.StringField(d.Name, def, d.Doc)
	case reflexio.TagArray, reflexio.TagVectorFloat:
		def, err := floats(d.Default)
		if err != nil {
			return spec, bad("%v", err)
		}
		if tag == reflexio.TagArray {
			spec = reflexio.ArrayField(d.Name, d.Len, def, d.Doc)
		} else {
			spec = reflexio.VectorField(d.Name, def, d.Doc)
		}
	case reflexio.TagVectorInt:
		def, err := ints(d.Default)
		if err != nil {
			return spec, bad("%v", err)
		}
		spec = reflexio.IntVectorField(d.Name, def, d.Doc)
	case reflexio.TagNested:
		nested, ok := reg.Type(d.Struct)
		if !ok {
			return spec, bad("unknown struct %q", d.Struct)
		}
		if d.Default != nil {
			return spec, bad("struct fields take the defaults of %s", d.Struct)
		}
		spec = reflexio.NestedField(d.Name, nested, d.Doc)
	}
	switch d.Semantics {
	case "":
	case "value":
		spec = spec.WithSemantics(reflexio.ValueSemantics)
	case "reference":
		spec = spec.WithSemantics(reflexio.ReferenceSemantics)
	default:
		return spec, bad("unknown semantics %q", d.Semantics)
	}
	return spec, nil
}

// orZero returns v as T, or zero when v is absent.
func orZero[T any](v any, zero T) (T, bool) {
	if v == nil {
		return zero, true
	}
	t, ok := v.(T)
	return t, ok
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, true
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func floats(v any) ([]float32, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("default %v is not an array", v)
	}
	out := make([]float32, len(items))
	for i, it := range items {
		f, ok := number(it)
		if !ok || it == nil {
			return nil, fmt.Errorf("default element %d (%v) is not a number", i, it)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func ints(v any) ([]int32, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("default %v is not an array", v)
	}
	out := make([]int32, len(items))
	for i, it := range items {
		n, ok := it.(int64)
		if !ok {
			return nil, fmt.Errorf("default element %d (%v) is not an integer", i, it)
		}
		c, err := safecast.Conv[int32](n)
		if err != nil {
			return nil, fmt.Errorf("default element %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}
