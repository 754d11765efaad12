// Package reflexio is a runtime struct reflection and serialization
// engine.
//
// Struct types are registered once in a Registry as an ordered table of
// typed field descriptors. Instances of a type support named field access
// with per-field value or reference semantics, equality and member
// diffing, a positional little-endian binary encoding with exact size
// computation, and a dictionary facade.
//
//	reg := reflexio.NewRegistry()
//	color, _ := reg.DefineEnum("Color", reflexio.AutoMember("Red"), reflexio.AutoMember("Green"))
//	pixel, _ := reg.Define("Pixel",
//		reflexio.Int32Field("x", 0, "column"),
//		reflexio.EnumField("color", color, "Green", "paint"),
//		reflexio.VectorField("samples", nil, "raw samples"),
//	)
//	p := pixel.New()
//	_ = p.Set("x", 12)
//	samples, _ := p.Get("samples")
//	samples.(*reflexio.VectorRef[float32]).Append(1, 2, 3)
//	data, _ := p.MarshalBinary()
//
// Encoding layout: the fixed region (every fixed-width field packed in
// declaration order, nested structs inline) followed by each string or
// vector as a u32 length prefix and its bytes or 4-byte elements, in
// declaration order and recursing into nested structs.
//
// Subpackages add a columnar record-array export (columnar), checksummed
// compressed frames (frame), YAML and MessagePack forms (yamlio, packio)
// and TOML schema files (schema).
package reflexio
