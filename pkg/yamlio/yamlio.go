// Package yamlio renders reflexio instances as YAML documents and reads
// them back.
//
// Fields appear in declaration order. Enums are written by name, arrays
// and vectors as flow sequences and nested structs as nested mappings.
// Reading accepts any subset of the fields; the rest keep their current
// values.
package yamlio

import (
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/reflexio"
)

// Marshal encodes in as a YAML mapping.
func Marshal(in *reflexio.Instance) ([]byte, error) {
	node, err := Node(in)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(node)
}

// Node builds the mapping node for in.
func Node(in *reflexio.Instance) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, fd := range in.Type().Fields() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fd.Name()}
		var val *yaml.Node
		if fd.Tag() == reflexio.TagNested {
			child, err := in.Child(fd.Name())
			if err != nil {
				return nil, err
			}
			if val, err = Node(child); err != nil {
				return nil, err
			}
		} else {
			v, err := in.Value(fd.Name())
			if err != nil {
				return nil, err
			}
			val = valueNode(v)
		}
		m.Content = append(m.Content, key, val)
	}
	return m, nil
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func floatNode(f float64, bits int) *yaml.Node {
	switch {
	case math.IsNaN(f):
		return scalar("!!float", ".nan")
	case math.IsInf(f, 1):
		return scalar("!!float", ".inf")
	case math.IsInf(f, -1):
		return scalar("!!float", "-.inf")
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		s += ".0"
	}
	return scalar("!!float", s)
}

func valueNode(v any) *yaml.Node {
	switch x := v.(type) {
	case bool:
		return scalar("!!bool", strconv.FormatBool(x))
	case int32:
		return scalar("!!int", strconv.FormatInt(int64(x), 10))
	case int64:
		return scalar("!!int", strconv.FormatInt(x, 10))
	case float32:
		return floatNode(float64(x), 32)
	case float64:
		return floatNode(x, 64)
	case reflexio.EnumValue:
		return scalar("!!str", x.Name())
	case string:
		return scalar("!!str", x)
	case []float32:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, f := range x {
			seq.Content = append(seq.Content, floatNode(float64(f), 32))
		}
		return seq
	case []int32:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, i := range x {
			seq.Content = append(seq.Content, scalar("!!int", strconv.FormatInt(int64(i), 10)))
		}
		return seq
	}
	return scalar("!!null", "null")
}

// Unmarshal assigns the fields present in data to in. Unknown keys and
// values of the wrong type are rejected and leave in unchanged.
func Unmarshal(data []byte, in *reflexio.Instance) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: yaml: %v", reflexio.ErrFormat, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return fmt.Errorf("%w: yaml: expected a single document", reflexio.ErrFormat)
	}
	values, err := mapping(in.Type(), doc.Content[0])
	if err != nil {
		return err
	}
	return in.Update(values)
}

// mapping converts a YAML mapping to the map accepted by Instance.Update.
func mapping(typ *reflexio.StructType, n *yaml.Node) (map[string]any, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: yaml line %d: %s expects a mapping", reflexio.ErrFormat, n.Line, typ.Name())
	}
	out := make(map[string]any, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		fd, ok := typ.Field(k.Value)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no field %q (yaml line %d)", reflexio.ErrUnknownField, typ.Name(), k.Value, k.Line)
		}
		if _, dup := out[k.Value]; dup {
			return nil, fmt.Errorf("%w: yaml line %d: duplicate key %q", reflexio.ErrFormat, k.Line, k.Value)
		}
		val, err := value(fd, v)
		if err != nil {
			return nil, err
		}
		out[k.Value] = val
	}
	return out, nil
}

func value(fd *reflexio.FieldDescriptor, n *yaml.Node) (any, error) {
	mismatch := func(err error) error {
		return &reflexio.TypeMismatchError{Field: fd.Name(), Want: fd.Tag().String(), Got: n.Value, Reason: fmt.Sprintf("yaml line %d: %v", n.Line, err)}
	}
	var (
		out any
		err error
	)
	switch fd.Tag() {
	case reflexio.TagNested:
		return mapping(fd.Nested(), n)
	case reflexio.TagBool:
		var b bool
		err = n.Decode(&b)
		out = b
	case reflexio.TagInt32, reflexio.TagInt64:
		var i int64
		err = n.Decode(&i)
		out = i
	case reflexio.TagFloat32, reflexio.TagFloat64:
		var f float64
		err = n.Decode(&f)
		out = f
	case reflexio.TagEnum, reflexio.TagString:
		if fd.Tag() == reflexio.TagEnum && n.ShortTag() == "!!int" {
			var i int64
			err = n.Decode(&i)
			out = i
			break
		}
		if n.Kind != yaml.ScalarNode {
			return nil, mismatch(fmt.Errorf("expected a scalar"))
		}
		out = n.Value
	case reflexio.TagArray, reflexio.TagVectorFloat:
		var fs []float32
		err = n.Decode(&fs)
		if fs == nil {
			fs = []float32{}
		}
		out = fs
	case reflexio.TagVectorInt:
		var is []int32
		err = n.Decode(&is)
		if is == nil {
			is = []int32{}
		}
		out = is
	}
	if err != nil {
		return nil, mismatch(err)
	}
	return out, nil
}
