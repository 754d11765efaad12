// Package columnar exports fixed-width fields of reflexio instances as a
// packed record array, one record per instance, laid out exactly like the
// instances' fixed regions.
package columnar

import (
	"fmt"
	"strings"

	"github.com/rawbytedev/reflexio"
)

// Column describes one exported field of a record.
type Column struct {
	// Name is the field name; fields of nested structs are dotted.
	Name string
	// Format is a numpy-style type string such as "<f4" or "|b1".
	Format string
	// Shape is (N,) for arrays and empty for scalars.
	Shape  []int
	Offset int
	Width  int
	Tag    reflexio.TypeTag
}

// Layout is the column set of a record array over one StructType.
type Layout struct {
	typ     *reflexio.StructType
	columns []Column
	byName  map[string]int
}

// NewLayout selects columns of typ. With no names every fixed-width leaf
// is exported; nested structs are flattened to dotted names. Naming a
// nested struct exports all of its leaves. Variable-length fields cannot
// be exported.
func NewLayout(typ *reflexio.StructType, names ...string) (*Layout, error) {
	l := &Layout{typ: typ, byName: make(map[string]int)}
	if len(names) == 0 {
		for _, fd := range typ.Fields() {
			if fd.Tag().IsVariable() {
				continue
			}
			if err := l.add(typ, fd, "", 0, true); err != nil {
				return nil, err
			}
		}
		return l, nil
	}
	for _, name := range names {
		fd, base, prefix, err := resolve(typ, name)
		if err != nil {
			return nil, err
		}
		if err := l.add(typ, fd, prefix, base, false); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// resolve walks a dotted name down nested structs.
func resolve(typ *reflexio.StructType, name string) (*reflexio.FieldDescriptor, int, string, error) {
	parts := strings.Split(name, ".")
	cur, base, prefix := typ, 0, ""
	for i, p := range parts {
		fd, ok := cur.Field(p)
		if !ok {
			return nil, 0, "", fmt.Errorf("%w: %s has no field %q", reflexio.ErrUnknownField, typ.Name(), name)
		}
		if i == len(parts)-1 {
			return fd, base, prefix, nil
		}
		if fd.Tag() != reflexio.TagNested {
			return nil, 0, "", fmt.Errorf("%w: %s is not a struct in %s", reflexio.ErrUnknownField, p, name)
		}
		base += fd.Offset()
		prefix += p + "."
		cur = fd.Nested()
	}
	return nil, 0, "", fmt.Errorf("%w: empty field name", reflexio.ErrUnknownField)
}

func (l *Layout) add(typ *reflexio.StructType, fd *reflexio.FieldDescriptor, prefix string, base int, skipVar bool) error {
	name := prefix + fd.Name()
	if fd.Tag().IsVariable() {
		if skipVar {
			return nil
		}
		return &reflexio.UnsupportedFieldError{Type: typ.Name(), Field: name, Reason: "variable-length fields have no fixed-stride representation"}
	}
	if fd.Tag() == reflexio.TagNested {
		for _, sub := range fd.Nested().Fields() {
			if err := l.add(typ, sub, name+".", base+fd.Offset(), true); err != nil {
				return err
			}
		}
		return nil
	}
	if _, dup := l.byName[name]; dup {
		return nil
	}
	c := Column{
		Name:   name,
		Format: format(fd),
		Offset: base + fd.Offset(),
		Width:  fd.Width(),
		Tag:    fd.Tag(),
	}
	if fd.Tag() == reflexio.TagArray {
		c.Shape = []int{fd.Len()}
	}
	l.byName[name] = len(l.columns)
	l.columns = append(l.columns, c)
	return nil
}

func format(fd *reflexio.FieldDescriptor) string {
	switch fd.Tag() {
	case reflexio.TagBool:
		return "|b1"
	case reflexio.TagInt32:
		return "<i4"
	case reflexio.TagInt64:
		return "<i8"
	case reflexio.TagFloat32, reflexio.TagArray:
		return "<f4"
	case reflexio.TagFloat64:
		return "<f8"
	case reflexio.TagEnum:
		switch fd.Width() {
		case 1:
			return "|i1"
		case 2:
			return "<i2"
		default:
			return "<i4"
		}
	}
	return ""
}

func (l *Layout) Type() *reflexio.StructType { return l.typ }

// Stride is the byte size of one record.
func (l *Layout) Stride() int { return l.typ.FixedSize() }

// Columns returns the selected columns in order.
func (l *Layout) Columns() []Column {
	out := make([]Column, len(l.columns))
	copy(out, l.columns)
	return out
}

// Column looks a column up by its (dotted) name.
func (l *Layout) Column(name string) (Column, bool) {
	i, ok := l.byName[name]
	if !ok {
		return Column{}, false
	}
	return l.columns[i], true
}

// Descr renders the layout as a numpy structured dtype description with
// explicit offsets and itemsize, e.g.
// {'names':['a'],'formats':['<i4'],'offsets':[0],'itemsize':4}.
func (l *Layout) Descr() string {
	names := make([]string, len(l.columns))
	formats := make([]string, len(l.columns))
	offsets := make([]string, len(l.columns))
	for i, c := range l.columns {
		names[i] = "'" + c.Name + "'"
		if c.Shape != nil {
			formats[i] = fmt.Sprintf("('%s', (%d,))", c.Format, c.Shape[0])
		} else {
			formats[i] = "'" + c.Format + "'"
		}
		offsets[i] = fmt.Sprint(c.Offset)
	}
	return fmt.Sprintf("{'names':[%s],'formats':[%s],'offsets':[%s],'itemsize':%d}",
		strings.Join(names, ","), strings.Join(formats, ","), strings.Join(offsets, ","), l.Stride())
}
