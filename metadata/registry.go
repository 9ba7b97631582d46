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

package metadata

import (
	"encoding/json"
	"math"
	"strings"
)

// TypeID indexes the portable type table of a contract metadata document.
type TypeID uint32

type TypeKind int

const (
	KindUnknown TypeKind = iota
	KindPrimitive
	KindComposite
	KindVariant
	KindSequence
	KindArray
	KindTuple
	KindCompact
	KindBitSequence
)

var typeKindNames = []string{
	"Unknown", "Primitive", "Composite", "Variant", "Sequence", "Array", "Tuple", "Compact", "BitSequence",
}

func (k TypeKind) String() string {
	if k < 0 || int(k) >= len(typeKindNames) {
		return typeKindNames[KindUnknown]
	}
	return typeKindNames[k]
}

type PrimitiveKind int

const (
	PrimUnknown PrimitiveKind = iota
	PrimBool
	PrimChar
	PrimStr
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimU128
	PrimU256
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimI128
	PrimI256
)

var (
	primitiveNames = []string{
		"unknown", "bool", "char", "str",
		"u8", "u16", "u32", "u64", "u128", "u256",
		"i8", "i16", "i32", "i64", "i128", "i256",
	}
	nameToPrimitives = map[string]PrimitiveKind{
		"bool": PrimBool, "char": PrimChar, "str": PrimStr,
		"u8": PrimU8, "u16": PrimU16, "u32": PrimU32, "u64": PrimU64, "u128": PrimU128, "u256": PrimU256,
		"i8": PrimI8, "i16": PrimI16, "i32": PrimI32, "i64": PrimI64, "i128": PrimI128, "i256": PrimI256,
	}
)

func (p PrimitiveKind) String() string {
	if p < 0 || int(p) >= len(primitiveNames) {
		return primitiveNames[PrimUnknown]
	}
	return primitiveNames[p]
}

func PrimitiveByName(name string) PrimitiveKind {
	if p, ok := nameToPrimitives[name]; ok {
		return p
	}
	return PrimUnknown
}

// Bits returns the width of an integer primitive, 0 otherwise.
func (p PrimitiveKind) Bits() int {
	switch p {
	case PrimU8, PrimI8:
		return 8
	case PrimU16, PrimI16:
		return 16
	case PrimU32, PrimI32:
		return 32
	case PrimU64, PrimI64:
		return 64
	case PrimU128, PrimI128:
		return 128
	case PrimU256, PrimI256:
		return 256
	default:
		return 0
	}
}

func (p PrimitiveKind) Signed() bool {
	switch p {
	case PrimI8, PrimI16, PrimI32, PrimI64, PrimI128, PrimI256:
		return true
	default:
		return false
	}
}

type TypeParam struct {
	Name string  `json:"name"`
	Type *TypeID `json:"type"`
}

type Field struct {
	Name     string   `json:"name,omitempty"`
	Type     TypeID   `json:"type"`
	TypeName string   `json:"typeName,omitempty"`
	Docs     []string `json:"docs,omitempty"`
}

type VariantDef struct {
	Name   string   `json:"name"`
	Index  uint8    `json:"index"`
	Fields []Field  `json:"fields,omitempty"`
	Docs   []string `json:"docs,omitempty"`
}

// TypeDef is one entry of the portable type table. Kind selects which of
// the payload fields carry the definition.
type TypeDef struct {
	ID     TypeID
	Path   []string
	Params []TypeParam
	Docs   []string

	Kind      TypeKind
	Primitive PrimitiveKind // KindPrimitive
	Fields    []Field       // KindComposite
	Variants  []VariantDef  // KindVariant
	Elem      TypeID        // KindSequence, KindArray, KindCompact
	Len       uint32        // KindArray
	Tuple     []TypeID      // KindTuple
}

type rawComposite struct {
	Fields []Field `json:"fields"`
}

type rawVariant struct {
	Variants []VariantDef `json:"variants"`
}

type rawTypeRef struct {
	Type TypeID `json:"type"`
}

type rawArray struct {
	Len  uint32 `json:"len"`
	Type TypeID `json:"type"`
}

type rawDef struct {
	Primitive *string       `json:"primitive"`
	Composite *rawComposite `json:"composite"`
	Variant   *rawVariant   `json:"variant"`
	Sequence  *rawTypeRef   `json:"sequence"`
	Array     *rawArray     `json:"array"`
	Tuple     []TypeID      `json:"tuple"`
	Compact   *rawTypeRef   `json:"compact"`
	// json matching is case-insensitive, covers the "bitSequence" spelling too
	BitSequence json.RawMessage `json:"bitsequence"`
}

type rawType struct {
	Path   []string    `json:"path"`
	Params []TypeParam `json:"params"`
	Def    rawDef      `json:"def"`
	Docs   []string    `json:"docs"`
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (d *TypeDef) UnmarshalJSON(data []byte) error {
	var raw rawType
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Path = raw.Path
	d.Params = raw.Params
	d.Docs = raw.Docs
	switch def := raw.Def; {
	case def.Primitive != nil:
		d.Kind = KindPrimitive
		// unknown primitive names keep PrimUnknown and resolve to Any later
		d.Primitive = PrimitiveByName(*def.Primitive)
	case def.Composite != nil:
		d.Kind = KindComposite
		d.Fields = def.Composite.Fields
	case def.Variant != nil:
		d.Kind = KindVariant
		d.Variants = def.Variant.Variants
	case def.Sequence != nil:
		d.Kind = KindSequence
		d.Elem = def.Sequence.Type
	case def.Array != nil:
		d.Kind = KindArray
		d.Elem = def.Array.Type
		d.Len = def.Array.Len
	case def.Tuple != nil:
		d.Kind = KindTuple
		d.Tuple = def.Tuple
	case def.Compact != nil:
		d.Kind = KindCompact
		d.Elem = def.Compact.Type
	case def.BitSequence != nil:
		d.Kind = KindBitSequence
	default:
		// unrecognized definitions resolve to Any instead of failing the parse
		d.Kind = KindUnknown
	}
	return nil
}

// PathString joins the type path with "::", the form used for
// well-known type recognition.
func (d *TypeDef) PathString() string {
	return strings.Join(d.Path, "::")
}

// Name returns the last path segment or an empty string.
func (d *TypeDef) Name() string {
	if len(d.Path) == 0 {
		return ""
	}
	return d.Path[len(d.Path)-1]
}

// FirstParam returns the type id of the first bound type parameter.
func (d *TypeDef) FirstParam() (TypeID, bool) {
	if len(d.Params) == 0 || d.Params[0].Type == nil {
		return 0, false
	}
	return *d.Params[0].Type, true
}

// TypeRegistry holds the parsed type table. It is read-only after
// construction and safe for concurrent lookups.
type TypeRegistry struct {
	defs map[TypeID]*TypeDef
}

type typeEntry struct {
	ID   *uint64         `json:"id"`
	Type json.RawMessage `json:"type"`
}

func NewTypeRegistry(raw json.RawMessage) (*TypeRegistry, error) {
	r := &TypeRegistry{}
	if err := r.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return r, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (r *TypeRegistry) UnmarshalJSON(data []byte) error {
	var entries []typeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return ErrorCodeMalformedMetadata.Wrapf(err, "fail to parse types, err:%s", err.Error())
	}
	defs := make(map[TypeID]*TypeDef, len(entries))
	for i, e := range entries {
		if e.ID == nil {
			return ErrorCodeMalformedMetadata.Errorf("fail to parse types, missing id index:%d", i)
		}
		if *e.ID > math.MaxUint32 {
			return ErrorCodeMalformedMetadata.Errorf("fail to parse types, id out of range %d", *e.ID)
		}
		if len(e.Type) == 0 {
			return ErrorCodeMalformedMetadata.Errorf("fail to parse types, missing type id:%d", *e.ID)
		}
		d := &TypeDef{}
		if err := json.Unmarshal(e.Type, d); err != nil {
			return ErrorCodeMalformedMetadata.Wrapf(err, "fail to parse type id:%d err:%s", *e.ID, err.Error())
		}
		d.ID = TypeID(*e.ID)
		defs[d.ID] = d
	}
	r.defs = defs
	return nil
}

func (r *TypeRegistry) Lookup(id TypeID) (*TypeDef, bool) {
	d, ok := r.defs[id]
	return d, ok
}

func (r *TypeRegistry) Len() int {
	return len(r.defs)
}
