// Package packio encodes reflexio instances as MessagePack maps keyed by
// field name, for consumers that want a self-describing form instead of
// the positional binary encoding.
package packio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rawbytedev/reflexio"
)

// Marshal encodes in as a MessagePack map.
func Marshal(in *reflexio.Instance) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(msgpack.NewEncoder(&buf), in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes in to enc. Enums are written by name, arrays and vectors
// as MessagePack arrays and nested structs as nested maps.
func Encode(enc *msgpack.Encoder, in *reflexio.Instance) error {
	fields := in.Type().Fields()
	if err := enc.EncodeMapLen(len(fields)); err != nil {
		return err
	}
	for _, fd := range fields {
		if err := enc.EncodeString(fd.Name()); err != nil {
			return err
		}
		if fd.Tag() == reflexio.TagNested {
			child, err := in.Child(fd.Name())
			if err != nil {
				return err
			}
			if err := Encode(enc, child); err != nil {
				return err
			}
			continue
		}
		v, err := in.Value(fd.Name())
		if err != nil {
			return err
		}
		if err := encodeValue(enc, v); err != nil {
			return err
		}
	}
	return nil
}

func encodeValue(enc *msgpack.Encoder, v any) error {
	switch x := v.(type) {
	case bool:
		return enc.EncodeBool(x)
	case int32:
		return enc.EncodeInt(int64(x))
	case int64:
		return enc.EncodeInt(x)
	case float32:
		return enc.EncodeFloat32(x)
	case float64:
		return enc.EncodeFloat64(x)
	case reflexio.EnumValue:
		return enc.EncodeString(x.Name())
	case string:
		return enc.EncodeString(x)
	case []float32:
		if err := enc.EncodeArrayLen(len(x)); err != nil {
			return err
		}
		for _, f := range x {
			if err := enc.EncodeFloat32(f); err != nil {
				return err
			}
		}
		return nil
	case []int32:
		if err := enc.EncodeArrayLen(len(x)); err != nil {
			return err
		}
		for _, i := range x {
			if err := enc.EncodeInt(int64(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("packio: cannot encode %T", v)
}

// Unmarshal assigns the fields present in data to in. Unknown keys,
// values of the wrong type and trailing bytes are rejected and leave in
// unchanged.
func Unmarshal(data []byte, in *reflexio.Instance) error {
	r := bytes.NewReader(data)
	values, err := Decode(msgpack.NewDecoder(r), in.Type())
	if err != nil {
		return err
	}
	if r.Len() != 0 {
		return &reflexio.FormatError{Type: in.Type().Name(), Offset: len(data) - r.Len(), Reason: fmt.Sprintf("%d trailing bytes after msgpack map", r.Len())}
	}
	return in.Update(values)
}

// Decode reads one map from dec into the form accepted by
// Instance.Update.
func Decode(dec *msgpack.Decoder, typ *reflexio.StructType) (map[string]any, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, formatErr(typ, err)
	}
	if n < 0 {
		return nil, &reflexio.FormatError{Type: typ.Name(), Reason: "nil map"}
	}
	out := make(map[string]any, n)
	for range n {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, formatErr(typ, err)
		}
		fd, ok := typ.Field(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no field %q", reflexio.ErrUnknownField, typ.Name(), key)
		}
		if _, dup := out[key]; dup {
			return nil, &reflexio.FormatError{Type: typ.Name(), Reason: "duplicate key " + key}
		}
		v, err := decodeValue(dec, typ, fd)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func formatErr(typ *reflexio.StructType, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &reflexio.FormatError{Type: typ.Name(), Reason: "msgpack: " + err.Error()}
}

func decodeValue(dec *msgpack.Decoder, typ *reflexio.StructType, fd *reflexio.FieldDescriptor) (any, error) {
	mismatch := func(err error) error {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return formatErr(typ, err)
		}
		return &reflexio.TypeMismatchError{Field: fd.Name(), Want: fd.Tag().String(), Reason: "msgpack: " + err.Error()}
	}
	switch fd.Tag() {
	case reflexio.TagNested:
		return Decode(dec, fd.Nested())
	case reflexio.TagBool:
		b, err := dec.DecodeBool()
		if err != nil {
			return nil, mismatch(err)
		}
		return b, nil
	case reflexio.TagInt32, reflexio.TagInt64:
		i, err := dec.DecodeInt64()
		if err != nil {
			return nil, mismatch(err)
		}
		return i, nil
	case reflexio.TagFloat32, reflexio.TagFloat64:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return nil, mismatch(err)
		}
		return f, nil
	case reflexio.TagEnum:
		v, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return nil, mismatch(err)
		}
		return v, nil
	case reflexio.TagString:
		s, err := dec.DecodeString()
		if err != nil {
			return nil, mismatch(err)
		}
		return s, nil
	case reflexio.TagArray, reflexio.TagVectorFloat:
		n, err := arrayLen(dec, typ, fd)
		if err != nil {
			return nil, err
		}
		fs := make([]float32, n)
		for i := range fs {
			f, err := dec.DecodeFloat64()
			if err != nil {
				return nil, mismatch(err)
			}
			fs[i] = float32(f)
		}
		return fs, nil
	case reflexio.TagVectorInt:
		n, err := arrayLen(dec, typ, fd)
		if err != nil {
			return nil, err
		}
		is := make([]int32, n)
		for i := range is {
			v, err := dec.DecodeInt32()
			if err != nil {
				return nil, mismatch(err)
			}
			is[i] = v
		}
		return is, nil
	}
	return nil, mismatch(fmt.Errorf("unknown tag %s", fd.Tag()))
}

// arrayLen reads a sequence header and checks its count before anything
// is allocated for it.
func arrayLen(dec *msgpack.Decoder, typ *reflexio.StructType, fd *reflexio.FieldDescriptor) (int, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, formatErr(typ, err)
		}
		return 0, &reflexio.TypeMismatchError{Field: fd.Name(), Want: fd.Tag().String(), Reason: "msgpack: " + err.Error()}
	}
	n = max(n, 0)
	if limit := typ.Registry().Options().MaxVarLen; n > limit {
		return 0, &reflexio.FormatError{Type: typ.Name(), Reason: fmt.Sprintf("field %s: %d elements exceeds limit %d", fd.Name(), n, limit)}
	}
	if fd.Tag() == reflexio.TagArray && n != fd.Len() {
		return 0, &reflexio.TypeMismatchError{Field: fd.Name(), Want: fd.Tag().String(), Got: n, Reason: fmt.Sprintf("length %d, want %d", n, fd.Len())}
	}
	return n, nil
}
