/*
 * Copyright 2023 ICON Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package contract

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/metadata"
	"github.com/inkforge/inkforge/scale"
)

// maxDecodeDepth bounds the structural descent so cyclic registries
// cannot loop on zero-byte payloads.
const maxDecodeDepth = 64

// Decoder rebuilds values from SCALE bytes against the registry.
// Scalars fit a host number decode to numbers, wider integers decode
// to decimal strings and byte containers decode to 0x-hex. Composites
// keep their declared field order.
type Decoder struct {
	reg *metadata.TypeRegistry
	l   log.Logger
}

func NewDecoder(reg *metadata.TypeRegistry) *Decoder {
	return &Decoder{reg: reg, l: codecLogger}
}

// Decode consumes the buffer as one value of the given type. Short
// input is an error, leftover bytes are logged and ignored.
func (d *Decoder) Decode(data []byte, id metadata.TypeID) (interface{}, error) {
	r := scale.NewReader(data)
	v, err := d.decodeValue(r, id, 0)
	if err != nil {
		return nil, err
	}
	if n := r.Remaining(); n > 0 {
		d.l.Warnf("trailing bytes after decode, type id:%d remaining:%d offset:%d", id, n, r.Offset())
	}
	return v, nil
}

func (d *Decoder) decodeValue(r *scale.Reader, id metadata.TypeID, depth int) (interface{}, error) {
	if depth > maxDecodeDepth {
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf("max depth exceeded, type id:%d", id)
	}
	td, ok := d.reg.Lookup(id)
	if !ok {
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", id)
	}
	switch td.Kind {
	case metadata.KindPrimitive:
		return d.decodePrimitive(r, td.Primitive)
	case metadata.KindComposite:
		return d.decodeComposite(r, td, depth)
	case metadata.KindVariant:
		return d.decodeVariant(r, td, depth)
	case metadata.KindSequence:
		return d.decodeSequence(r, td, depth)
	case metadata.KindArray:
		return d.decodeArray(r, td, depth)
	case metadata.KindTuple:
		return d.decodeTuple(r, td.Tuple, depth)
	case metadata.KindCompact:
		return d.decodeCompact(r, td.Elem)
	case metadata.KindBitSequence:
		return d.decodeBitSequence(r)
	default:
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf("not supported decode of %s type id:%d", td.Kind, id)
	}
}

func (d *Decoder) decodePrimitive(r *scale.Reader, p metadata.PrimitiveKind) (interface{}, error) {
	switch p {
	case metadata.PrimBool:
		return r.ReadBool()
	case metadata.PrimStr:
		return r.ReadString()
	case metadata.PrimChar:
		v, err := r.ReadUint(32)
		if err != nil {
			return nil, err
		}
		return string(rune(v)), nil
	}
	bits := p.Bits()
	if bits == 0 {
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf("not supported primitive %s", p)
	}
	// integers wider than a host number decode to decimal strings
	if bits <= 32 {
		if p.Signed() {
			return r.ReadInt(bits)
		}
		return r.ReadUint(bits)
	}
	if p.Signed() {
		v, err := r.ReadBigInt(bits)
		if err != nil {
			return nil, err
		}
		return v.String(), nil
	}
	v, err := r.ReadBigUint(bits)
	if err != nil {
		return nil, err
	}
	return v.String(), nil
}

func (d *Decoder) decodeComposite(r *scale.Reader, td *metadata.TypeDef, depth int) (interface{}, error) {
	unnamed := true
	for _, f := range td.Fields {
		if f.Name != "" {
			unnamed = false
			break
		}
	}
	if unnamed {
		// newtype wrappers collapse to the wrapped value
		if len(td.Fields) == 1 {
			return d.decodeValue(r, td.Fields[0].Type, depth+1)
		}
		vals := make([]interface{}, len(td.Fields))
		for i, f := range td.Fields {
			v, err := d.decodeValue(r, f.Type, depth+1)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return vals, nil
	}
	st := &Struct{Name: td.Name(), Fields: make([]KeyValue, len(td.Fields))}
	for i, f := range td.Fields {
		v, err := d.decodeValue(r, f.Type, depth+1)
		if err != nil {
			return nil, err
		}
		st.Fields[i] = KeyValue{Key: f.Name, Value: v}
	}
	return st, nil
}

func (d *Decoder) decodeVariant(r *scale.Reader, td *metadata.TypeDef, depth int) (interface{}, error) {
	idx, err := r.ReadUint(8)
	if err != nil {
		return nil, err
	}
	var v *metadata.VariantDef
	for i := range td.Variants {
		if uint64(td.Variants[i].Index) == idx {
			v = &td.Variants[i]
			break
		}
	}
	if v == nil {
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf(
			"not found variant index:%d type id:%d", idx, td.ID)
	}
	payload, err := d.decodeVariantFields(r, v, depth)
	if err != nil {
		return nil, err
	}
	// Option collapses to null or the inner value
	if td.PathString() == "Option" {
		switch v.Name {
		case "None":
			return nil, nil
		case "Some":
			return payload, nil
		}
	}
	return map[string]interface{}{v.Name: payload}, nil
}

func (d *Decoder) decodeVariantFields(r *scale.Reader, v *metadata.VariantDef, depth int) (interface{}, error) {
	switch len(v.Fields) {
	case 0:
		return nil, nil
	case 1:
		if v.Fields[0].Name == "" {
			return d.decodeValue(r, v.Fields[0].Type, depth+1)
		}
	}
	st := &Struct{Name: v.Name, Fields: make([]KeyValue, len(v.Fields))}
	for i, f := range v.Fields {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("field%d", i)
		}
		val, err := d.decodeValue(r, f.Type, depth+1)
		if err != nil {
			return nil, err
		}
		st.Fields[i] = KeyValue{Key: name, Value: val}
	}
	return st, nil
}

func (d *Decoder) decodeSequence(r *scale.Reader, td *metadata.TypeDef, depth int) (interface{}, error) {
	n, err := r.ReadCompactUint()
	if err != nil {
		return nil, err
	}
	elem, ok := d.reg.Lookup(td.Elem)
	if !ok {
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", td.Elem)
	}
	if elem.Kind == metadata.KindPrimitive && elem.Primitive == metadata.PrimU8 {
		b, err := r.ReadBytes(int(n))
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(b), nil
	}
	if n > uint64(r.Remaining()) {
		return nil, scale.ErrorCodeTruncatedInput.Errorf(
			"fail to read sequence len:%d remaining:%d", n, r.Remaining())
	}
	vals := make([]interface{}, n)
	for i := range vals {
		if vals[i], err = d.decodeValue(r, td.Elem, depth+1); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func (d *Decoder) decodeArray(r *scale.Reader, td *metadata.TypeDef, depth int) (interface{}, error) {
	elem, ok := d.reg.Lookup(td.Elem)
	if !ok {
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", td.Elem)
	}
	if elem.Kind == metadata.KindPrimitive && elem.Primitive == metadata.PrimU8 {
		b, err := r.ReadBytes(int(td.Len))
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(b), nil
	}
	vals := make([]interface{}, td.Len)
	for i := range vals {
		v, err := d.decodeValue(r, td.Elem, depth+1)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (d *Decoder) decodeTuple(r *scale.Reader, ids []metadata.TypeID, depth int) (interface{}, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	vals := make([]interface{}, len(ids))
	for i, id := range ids {
		v, err := d.decodeValue(r, id, depth+1)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// decodeCompact reads the compact form of an unsigned integer type,
// following newtype wrappers to the underlying primitive.
func (d *Decoder) decodeCompact(r *scale.Reader, id metadata.TypeID) (interface{}, error) {
	inner, ok := d.reg.Lookup(id)
	if !ok {
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", id)
	}
	for n := 0; inner.Kind == metadata.KindComposite && len(inner.Fields) == 1 && inner.Fields[0].Name == ""; n++ {
		if n > maxNesting {
			return nil, metadata.ErrorCodeMalformedMetadata.Errorf("max nesting exceeded, type id:%d", inner.ID)
		}
		if inner, ok = d.reg.Lookup(inner.Fields[0].Type); !ok {
			return nil, metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", id)
		}
	}
	bits := 0
	if inner.Kind == metadata.KindPrimitive && !inner.Primitive.Signed() {
		bits = inner.Primitive.Bits()
	}
	if bits == 0 {
		return nil, metadata.ErrorCodeMalformedMetadata.Errorf("not supported compact of type id:%d", inner.ID)
	}
	v, err := r.ReadCompact()
	if err != nil {
		return nil, err
	}
	if v.BitLen() > bits {
		return nil, scale.ErrorCodeValueOutOfRange.Errorf("out of range compact u%d value %s", bits, v)
	}
	if bits <= 32 {
		return v.Uint64(), nil
	}
	return v.String(), nil
}

func (d *Decoder) decodeBitSequence(r *scale.Reader) (interface{}, error) {
	nbits, err := r.ReadCompactUint()
	if err != nil {
		return nil, err
	}
	if nbits > uint64(r.Remaining())*8 {
		return nil, scale.ErrorCodeTruncatedInput.Errorf(
			"fail to read bit sequence len:%d remaining:%d", nbits, r.Remaining())
	}
	b, err := r.ReadBytes(int((nbits + 7) / 8))
	if err != nil {
		return nil, err
	}
	return hexutil.Encode(b), nil
}
