package reflexio

import (
	"fmt"

	"fortio.org/safecast"
)

// EnumMember declares one enumerator.
type EnumMember struct {
	Name  string
	Value int64
	auto  bool
}

// Member declares an enumerator with an explicit value.
func Member(name string, value int64) EnumMember {
	return EnumMember{Name: name, Value: value}
}

// AutoMember declares an enumerator whose value follows the previous
// one (0 for the first).
func AutoMember(name string) EnumMember {
	return EnumMember{Name: name, auto: true}
}

// EnumType is a registered enumeration with a fixed underlying width.
type EnumType struct {
	name    string
	width   int
	members []EnumValue
	byName  map[string]int64
	byValue map[int64]string
}

// EnumValue is one enumerator of an EnumType. The zero EnumValue belongs
// to no enum. EnumValues are comparable with ==.
type EnumValue struct {
	enum  *EnumType
	value int64
}

func newEnumType(name string, width int, members []EnumMember) (*EnumType, error) {
	if name == "" {
		return nil, &ConfigError{Type: "<enum>", Reason: "empty enum name"}
	}
	if width != 1 && width != 2 && width != 4 {
		return nil, &ConfigError{Type: name, Reason: fmt.Sprintf("enum width %d not in {1, 2, 4}", width)}
	}
	if len(members) == 0 {
		return nil, &ConfigError{Type: name, Reason: "enum has no members"}
	}
	e := &EnumType{
		name:    name,
		width:   width,
		byName:  make(map[string]int64, len(members)),
		byValue: make(map[int64]string, len(members)),
	}
	next := int64(0)
	for _, m := range members {
		if m.Name == "" {
			return nil, &ConfigError{Type: name, Reason: "empty enumerator name"}
		}
		v := m.Value
		if m.auto {
			v = next
		}
		if _, dup := e.byName[m.Name]; dup {
			return nil, &ConfigError{Type: name, Field: m.Name, Reason: "duplicate enumerator"}
		}
		if other, dup := e.byValue[v]; dup {
			return nil, &ConfigError{Type: name, Field: m.Name, Reason: fmt.Sprintf("value %d already used by %s", v, other)}
		}
		if err := fitsWidth(v, width); err != nil {
			return nil, &ConfigError{Type: name, Field: m.Name, Reason: err.Error()}
		}
		e.byName[m.Name] = v
		e.byValue[v] = m.Name
		e.members = append(e.members, EnumValue{enum: e, value: v})
		next = v + 1
	}
	return e, nil
}

func fitsWidth(v int64, width int) error {
	var err error
	switch width {
	case 1:
		_, err = safecast.Conv[int8](v)
	case 2:
		_, err = safecast.Conv[int16](v)
	default:
		_, err = safecast.Conv[int32](v)
	}
	return err
}

// Name returns the enum's registered name.
func (e *EnumType) Name() string { return e.name }

// Width returns the underlying integer width in bytes.
func (e *EnumType) Width() int { return e.width }

// Members returns the enumerators in declaration order.
func (e *EnumType) Members() []EnumValue {
	out := make([]EnumValue, len(e.members))
	copy(out, e.members)
	return out
}

// Value looks an enumerator up by name.
func (e *EnumType) Value(name string) (EnumValue, bool) {
	v, ok := e.byName[name]
	if !ok {
		return EnumValue{}, false
	}
	return EnumValue{enum: e, value: v}, true
}

// MustValue is Value for names known at declaration time.
func (e *EnumType) MustValue(name string) EnumValue {
	v, ok := e.Value(name)
	if !ok {
		panic(fmt.Sprintf("reflexio: enum %s has no member %q", e.name, name))
	}
	return v
}

// FromInt looks an enumerator up by value.
func (e *EnumType) FromInt(v int64) (EnumValue, bool) {
	if _, ok := e.byValue[v]; !ok {
		return EnumValue{}, false
	}
	return EnumValue{enum: e, value: v}, true
}

// Type returns the enum the value belongs to.
func (v EnumValue) Type() *EnumType { return v.enum }

// Int returns the underlying integer.
func (v EnumValue) Int() int64 { return v.value }

// Name returns the enumerator name, or "" for the zero EnumValue.
func (v EnumValue) Name() string {
	if v.enum == nil {
		return ""
	}
	return v.enum.byValue[v.value]
}

func (v EnumValue) String() string {
	if v.enum == nil {
		return "<invalid enum>"
	}
	if n := v.Name(); n != "" {
		return n
	}
	return fmt.Sprintf("%s(%d)", v.enum.name, v.value)
}
