package reflexio

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/rawbytedev/reflexio/internal/common"
)

// bindPlan maps the exported fields of a Go struct onto a StructType.
type bindPlan struct {
	typ    *StructType
	fields []boundField
}

type boundField struct {
	idx    int
	fd     *FieldDescriptor
	nested *bindPlan
}

type fieldTag struct {
	name string
	sem  Semantics
	enum string
	doc  string
	skip bool
}

// parseTag reads `reflexio:"name,ref|val,enum=Name,doc=text"`. doc must
// come last and may contain commas.
func parseTag(sf reflect.StructField) fieldTag {
	ft := fieldTag{name: sf.Name}
	raw, ok := sf.Tag.Lookup("reflexio")
	if !ok {
		return ft
	}
	if raw == "-" {
		return fieldTag{skip: true}
	}
	if i := strings.Index(raw, "doc="); i >= 0 {
		ft.doc = raw[i+len("doc="):]
		raw = strings.TrimSuffix(raw[:i], ",")
	}
	for i, part := range strings.Split(raw, ",") {
		switch {
		case i == 0:
			if part != "" {
				ft.name = part
			}
		case part == "ref":
			ft.sem = ReferenceSemantics
		case part == "val":
			ft.sem = ValueSemantics
		case strings.HasPrefix(part, "enum="):
			ft.enum = strings.TrimPrefix(part, "enum=")
		}
	}
	return ft
}

// DefineFromStruct registers a StructType mirroring the exported fields
// of the Go struct proto, which may be a pointer. Field defaults are taken
// from proto. Nested structs are registered under their Go type names.
// Later calls for the same Go type return the type built by the first.
func (r *Registry) DefineFromStruct(proto any) (*StructType, error) {
	v := reflect.ValueOf(proto)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, &ConfigError{Type: fmt.Sprintf("%T", proto), Reason: "expected a struct or pointer to struct"}
	}
	p, err := r.getPlan(v)
	if err != nil {
		return nil, err
	}
	return p.typ, nil
}

func (r *Registry) cachedPlan(t reflect.Type) (*bindPlan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[t]
	return p, ok
}

func (r *Registry) getPlan(v reflect.Value) (*bindPlan, error) {
	t := v.Type()
	if p, ok := r.cachedPlan(t); ok {
		return p, nil
	}
	// Define takes the write lock itself, so the plan is built unlocked
	// and published with a double check.
	p, err := r.buildPlan(v)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.plans[t]; ok {
		return old, nil
	}
	r.plans[t] = p
	return p, nil
}

func (r *Registry) buildPlan(v reflect.Value) (*bindPlan, error) {
	t := v.Type()
	if t.Name() == "" {
		return nil, &ConfigError{Type: t.String(), Reason: "anonymous struct types cannot be registered"}
	}
	p := &bindPlan{}
	var specs []FieldSpec
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" && !sf.Anonymous {
			continue
		}
		ft := parseTag(sf)
		if ft.skip {
			continue
		}
		spec, np, err := r.fieldSpec(t, sf, ft, v.Field(i))
		if err != nil {
			return nil, err
		}
		if ft.sem != DefaultSemantics {
			spec = spec.WithSemantics(ft.sem)
		}
		specs = append(specs, spec)
		p.fields = append(p.fields, boundField{idx: i, nested: np})
	}
	typ, err := r.Define(t.Name(), specs...)
	if err != nil {
		return nil, err
	}
	p.typ = typ
	for i := range p.fields {
		p.fields[i].fd = typ.fields[i]
	}
	return p, nil
}

func (r *Registry) fieldSpec(t reflect.Type, sf reflect.StructField, ft fieldTag, fv reflect.Value) (FieldSpec, *bindPlan, error) {
	unsupported := func(reason string) error {
		return &UnsupportedFieldError{Type: t.Name(), Field: sf.Name, Reason: reason}
	}
	k := sf.Type.Kind()
	if ft.enum != "" {
		e, ok := r.Enum(ft.enum)
		if !ok {
			return FieldSpec{}, nil, &ConfigError{Type: t.Name(), Field: sf.Name, Reason: "unknown enum " + ft.enum}
		}
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		default:
			return FieldSpec{}, nil, unsupported("enum fields need a signed integer kind")
		}
		if k != reflect.Int && common.FixedSize(k) < e.width {
			return FieldSpec{}, nil, unsupported(fmt.Sprintf("%s is narrower than enum %s", k, e.name))
		}
		def, ok := e.FromInt(fv.Int())
		if !ok {
			def = e.members[0]
		}
		return EnumField(ft.name, e, def.Name(), ft.doc), nil, nil
	}
	switch k {
	case reflect.Bool:
		return BoolField(ft.name, fv.Bool(), ft.doc), nil, nil
	case reflect.Int32:
		return Int32Field(ft.name, int32(fv.Int()), ft.doc), nil, nil
	case reflect.Int64, reflect.Int:
		return Int64Field(ft.name, fv.Int(), ft.doc), nil, nil
	case reflect.Float32:
		return Float32Field(ft.name, float32(fv.Float()), ft.doc), nil, nil
	case reflect.Float64:
		return Float64Field(ft.name, fv.Float(), ft.doc), nil, nil
	case reflect.String:
		return StringField(ft.name, fv.String(), ft.doc), nil, nil
	case reflect.Array:
		if sf.Type.Elem().Kind() != reflect.Float32 {
			return FieldSpec{}, nil, unsupported("only float32 arrays are supported")
		}
		return ArrayField(ft.name, fv.Len(), floatsOf(fv), ft.doc), nil, nil
	case reflect.Slice:
		switch sf.Type.Elem().Kind() {
		case reflect.Float32:
			return VectorField(ft.name, floatsOf(fv), ft.doc), nil, nil
		case reflect.Int32:
			return IntVectorField(ft.name, intsOf(fv), ft.doc), nil, nil
		}
		return FieldSpec{}, nil, unsupported("only float32 and int32 slices are supported")
	case reflect.Struct:
		np, err := r.getPlan(fv)
		if err != nil {
			return FieldSpec{}, nil, err
		}
		return NestedField(ft.name, np.typ, ft.doc), np, nil
	}
	return FieldSpec{}, nil, unsupported("kind " + k.String())
}

func floatsOf(v reflect.Value) []float32 {
	out := make([]float32, v.Len())
	for i := range out {
		out[i] = float32(v.Index(i).Float())
	}
	return out
}

func intsOf(v reflect.Value) []int32 {
	out := make([]int32, v.Len())
	for i := range out {
		out[i] = int32(v.Index(i).Int())
	}
	return out
}

func (in *Instance) boundPlan(t reflect.Type) (*bindPlan, error) {
	p, ok := in.typ.reg.cachedPlan(t)
	if !ok || p.typ != in.typ {
		return nil, &TypeMismatchError{Field: "<instance>", Want: in.typ.name, Got: t.String(), Reason: "Go type is not bound to this struct type"}
	}
	return p, nil
}

// Load copies the fields of src, a struct or pointer to struct whose type
// was registered with DefineFromStruct. On error in is unchanged.
func (in *Instance) Load(src any) error {
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return &TypeMismatchError{Field: "<instance>", Want: in.typ.name, Got: src}
	}
	p, err := in.boundPlan(v.Type())
	if err != nil {
		return err
	}
	tmp := in.Clone()
	if err := p.load(tmp, v); err != nil {
		return err
	}
	in.copyFrom(tmp)
	return nil
}

func (p *bindPlan) load(in *Instance, v reflect.Value) error {
	for _, bf := range p.fields {
		f := v.Field(bf.idx)
		fd := bf.fd
		var err error
		switch fd.tag {
		case TagNested:
			err = bf.nested.load(in.children[fd.slot], f)
		case TagBool:
			err = in.set(fd, f.Bool())
		case TagInt32, TagInt64, TagEnum:
			err = in.set(fd, f.Int())
		case TagFloat32, TagFloat64:
			err = in.set(fd, f.Float())
		case TagString:
			err = in.set(fd, f.String())
		case TagArray, TagVectorFloat:
			err = in.set(fd, floatsOf(f))
		case TagVectorInt:
			err = in.set(fd, intsOf(f))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Store copies in into dst, a pointer to a struct of the bound Go type.
func (in *Instance) Store(dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return &TypeMismatchError{Field: "<instance>", Want: "pointer to struct", Got: dst}
	}
	v = v.Elem()
	p, err := in.boundPlan(v.Type())
	if err != nil {
		return err
	}
	p.store(in, v)
	return nil
}

func (p *bindPlan) store(in *Instance, v reflect.Value) {
	for _, bf := range p.fields {
		f := v.Field(bf.idx)
		fd := bf.fd
		switch fd.tag {
		case TagNested:
			bf.nested.store(in.children[fd.slot], f)
		case TagBool:
			f.SetBool(in.fixed[fd.offset] != 0)
		case TagInt32, TagInt64, TagEnum:
			f.SetInt(common.LoadInt(in.fieldBytes(fd), fd.width))
		case TagFloat32:
			f.SetFloat(float64(common.Load[float32](in.fieldBytes(fd))))
		case TagFloat64:
			f.SetFloat(common.Load[float64](in.fieldBytes(fd)))
		case TagArray:
			b := in.fieldBytes(fd)
			for i := range fd.length {
				f.Index(i).SetFloat(float64(common.Load[float32](b[4*i:])))
			}
		case TagString:
			f.SetString(in.vars[fd.slot].str)
		case TagVectorFloat:
			f.Set(reflect.ValueOf(slices.Clone(in.vars[fd.slot].f32)).Convert(f.Type()))
		case TagVectorInt:
			f.Set(reflect.ValueOf(slices.Clone(in.vars[fd.slot].i32)).Convert(f.Type()))
		}
	}
}
