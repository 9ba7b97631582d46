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
	"math"

	"github.com/inkforge/inkforge/scale"
)

// frameMagic is "meta" read as a little-endian u32.
const frameMagic = 0x6174656d

const frameVersionV14 = 14

type StorageHasher uint8

const (
	HasherBlake2_128 StorageHasher = iota
	HasherBlake2_256
	HasherBlake2_128Concat
	HasherTwox128
	HasherTwox256
	HasherTwox64Concat
	HasherIdentity
)

// StorageEntry describes one storage item of a pallet, either a plain
// value or a hashed map.
type StorageEntry struct {
	Name    string
	Plain   *TypeID
	Hashers []StorageHasher
	Key     *TypeID
	Value   *TypeID
}

// Pallet is the per-pallet slice of the chain runtime metadata.
type Pallet struct {
	Name          string
	Index         uint8
	StoragePrefix string
	Storage       map[string]*StorageEntry
	CallType      *TypeID
	EventType     *TypeID
	ErrorType     *TypeID
}

// FrameMetadata is the decoded chain runtime metadata. Its portable
// type registry feeds the same structural decoding used for contract
// values, which is how event records become readable.
type FrameMetadata struct {
	Version          uint8
	Types            *TypeRegistry
	Pallets          []*Pallet
	ExtrinsicVersion uint8

	palletsByName map[string]*Pallet
}

// NewFrameMetadata assembles chain metadata from decoded parts.
func NewFrameMetadata(types *TypeRegistry, pallets []*Pallet) *FrameMetadata {
	m := &FrameMetadata{
		Version:          frameVersionV14,
		Types:            types,
		Pallets:          pallets,
		ExtrinsicVersion: 4,
		palletsByName:    make(map[string]*Pallet, len(pallets)),
	}
	for _, p := range pallets {
		m.palletsByName[p.Name] = p
	}
	return m
}

func (m *FrameMetadata) Pallet(name string) (*Pallet, bool) {
	p, ok := m.palletsByName[name]
	return p, ok
}

// CallIndex resolves the (pallet index, call index) pair of a call by
// name from the chain metadata.
func (m *FrameMetadata) CallIndex(pallet, call string) (uint8, uint8, error) {
	p, ok := m.Pallet(pallet)
	if !ok {
		return 0, 0, ErrorCodeMalformedMetadata.Errorf("not found pallet %s", pallet)
	}
	if p.CallType == nil {
		return 0, 0, ErrorCodeMalformedMetadata.Errorf("not found calls of pallet %s", pallet)
	}
	d, ok := m.Types.Lookup(*p.CallType)
	if !ok || d.Kind != KindVariant {
		return 0, 0, ErrorCodeMalformedMetadata.Errorf("invalid call type id:%d of pallet %s", *p.CallType, pallet)
	}
	for i := range d.Variants {
		if d.Variants[i].Name == call {
			return p.Index, d.Variants[i].Index, nil
		}
	}
	return 0, 0, ErrorCodeMalformedMetadata.Errorf("not found call %s in pallet %s", call, pallet)
}

// StorageValueType returns the value type of a plain storage entry.
func (m *FrameMetadata) StorageValueType(pallet, entry string) (TypeID, bool) {
	p, ok := m.Pallet(pallet)
	if !ok {
		return 0, false
	}
	e, ok := p.Storage[entry]
	if !ok || e.Plain == nil {
		return 0, false
	}
	return *e.Plain, true
}

// framePrimitives maps the scale-info primitive discriminants of the
// frame metadata to primitive kinds.
var framePrimitives = []PrimitiveKind{
	PrimBool, PrimChar, PrimStr,
	PrimU8, PrimU16, PrimU32, PrimU64, PrimU128, PrimU256,
	PrimI8, PrimI16, PrimI32, PrimI64, PrimI128, PrimI256,
}

// DecodeFrameMetadata parses the state_getMetadata response, magic
// prefix plus a v14 metadata body.
func DecodeFrameMetadata(b []byte) (*FrameMetadata, error) {
	r := scale.NewReader(b)
	magic, err := r.ReadUint(32)
	if err != nil {
		return nil, err
	}
	if magic != frameMagic {
		return nil, ErrorCodeMalformedMetadata.Errorf("invalid metadata magic %#x", magic)
	}
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != frameVersionV14 {
		return nil, ErrorCodeMalformedMetadata.Errorf("not supported metadata version:%d", version)
	}
	m := &FrameMetadata{Version: version}
	if m.Types, err = decodeFrameTypes(r); err != nil {
		return nil, err
	}
	if m.Pallets, err = decodeFramePallets(r); err != nil {
		return nil, err
	}
	m.palletsByName = make(map[string]*Pallet, len(m.Pallets))
	for _, p := range m.Pallets {
		m.palletsByName[p.Name] = p
	}
	if _, err = readFrameTypeID(r); err != nil { // extrinsic type
		return nil, err
	}
	if m.ExtrinsicVersion, err = r.ReadByte(); err != nil {
		return nil, err
	}
	n, err := readFrameLen(r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ { // signed extensions
		if _, err = r.ReadString(); err != nil {
			return nil, err
		}
		if _, err = readFrameTypeID(r); err != nil {
			return nil, err
		}
		if _, err = readFrameTypeID(r); err != nil {
			return nil, err
		}
	}
	if _, err = readFrameTypeID(r); err != nil { // runtime type
		return nil, err
	}
	return m, nil
}

func decodeFrameTypes(r *scale.Reader) (*TypeRegistry, error) {
	n, err := readFrameLen(r)
	if err != nil {
		return nil, err
	}
	defs := make(map[TypeID]*TypeDef, n)
	for i := 0; i < n; i++ {
		id, err := readFrameTypeID(r)
		if err != nil {
			return nil, err
		}
		d, err := decodeFrameType(r)
		if err != nil {
			return nil, ErrorCodeMalformedMetadata.Wrapf(err, "fail to decode type id:%d, err:%s", id, err.Error())
		}
		d.ID = id
		defs[id] = d
	}
	return &TypeRegistry{defs: defs}, nil
}

func decodeFrameType(r *scale.Reader) (*TypeDef, error) {
	d := &TypeDef{}
	var err error
	if d.Path, err = readFrameStrings(r); err != nil {
		return nil, err
	}
	n, err := readFrameLen(r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		var p TypeParam
		if p.Name, err = r.ReadString(); err != nil {
			return nil, err
		}
		ok, err := readFrameOption(r)
		if err != nil {
			return nil, err
		}
		if ok {
			id, err := readFrameTypeID(r)
			if err != nil {
				return nil, err
			}
			p.Type = &id
		}
		d.Params = append(d.Params, p)
	}
	if err = decodeFrameTypeDef(r, d); err != nil {
		return nil, err
	}
	if d.Docs, err = readFrameStrings(r); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeFrameTypeDef(r *scale.Reader, d *TypeDef) error {
	disc, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch disc {
	case 0:
		d.Kind = KindComposite
		d.Fields, err = readFrameFields(r)
		return err
	case 1:
		d.Kind = KindVariant
		n, err := readFrameLen(r)
		if err != nil {
			return err
		}
		d.Variants = make([]VariantDef, 0, n)
		for i := 0; i < n; i++ {
			var v VariantDef
			if v.Name, err = r.ReadString(); err != nil {
				return err
			}
			if v.Fields, err = readFrameFields(r); err != nil {
				return err
			}
			if v.Index, err = r.ReadByte(); err != nil {
				return err
			}
			if v.Docs, err = readFrameStrings(r); err != nil {
				return err
			}
			d.Variants = append(d.Variants, v)
		}
		return nil
	case 2:
		d.Kind = KindSequence
		d.Elem, err = readFrameTypeID(r)
		return err
	case 3:
		d.Kind = KindArray
		ln, err := r.ReadUint(32)
		if err != nil {
			return err
		}
		d.Len = uint32(ln)
		d.Elem, err = readFrameTypeID(r)
		return err
	case 4:
		d.Kind = KindTuple
		n, err := readFrameLen(r)
		if err != nil {
			return err
		}
		d.Tuple = make([]TypeID, n)
		for i := 0; i < n; i++ {
			if d.Tuple[i], err = readFrameTypeID(r); err != nil {
				return err
			}
		}
		return nil
	case 5:
		d.Kind = KindPrimitive
		p, err := r.ReadByte()
		if err != nil {
			return err
		}
		if int(p) >= len(framePrimitives) {
			return ErrorCodeMalformedMetadata.Errorf("invalid primitive discriminant %d", p)
		}
		d.Primitive = framePrimitives[p]
		return nil
	case 6:
		d.Kind = KindCompact
		d.Elem, err = readFrameTypeID(r)
		return err
	case 7:
		d.Kind = KindBitSequence
		if _, err = readFrameTypeID(r); err != nil {
			return err
		}
		_, err = readFrameTypeID(r)
		return err
	default:
		return ErrorCodeMalformedMetadata.Errorf("invalid type definition discriminant %d", disc)
	}
}

func readFrameFields(r *scale.Reader) ([]Field, error) {
	n, err := readFrameLen(r)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, n)
	for i := 0; i < n; i++ {
		var f Field
		named, err := readFrameOption(r)
		if err != nil {
			return nil, err
		}
		if named {
			if f.Name, err = r.ReadString(); err != nil {
				return nil, err
			}
		}
		if f.Type, err = readFrameTypeID(r); err != nil {
			return nil, err
		}
		hasTypeName, err := readFrameOption(r)
		if err != nil {
			return nil, err
		}
		if hasTypeName {
			if f.TypeName, err = r.ReadString(); err != nil {
				return nil, err
			}
		}
		if f.Docs, err = readFrameStrings(r); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func decodeFramePallets(r *scale.Reader) ([]*Pallet, error) {
	n, err := readFrameLen(r)
	if err != nil {
		return nil, err
	}
	pallets := make([]*Pallet, 0, n)
	for i := 0; i < n; i++ {
		p := &Pallet{}
		if p.Name, err = r.ReadString(); err != nil {
			return nil, err
		}
		hasStorage, err := readFrameOption(r)
		if err != nil {
			return nil, err
		}
		if hasStorage {
			if err = decodeFrameStorage(r, p); err != nil {
				return nil, ErrorCodeMalformedMetadata.Wrapf(err, "fail to decode storage of %s, err:%s", p.Name, err.Error())
			}
		}
		if p.CallType, err = readFrameOptionTypeID(r); err != nil {
			return nil, err
		}
		if p.EventType, err = readFrameOptionTypeID(r); err != nil {
			return nil, err
		}
		cn, err := readFrameLen(r)
		if err != nil {
			return nil, err
		}
		for j := 0; j < cn; j++ { // constants
			if _, err = r.ReadString(); err != nil {
				return nil, err
			}
			if _, err = readFrameTypeID(r); err != nil {
				return nil, err
			}
			if _, err = r.ReadByteSlice(); err != nil {
				return nil, err
			}
			if _, err = readFrameStrings(r); err != nil {
				return nil, err
			}
		}
		if p.ErrorType, err = readFrameOptionTypeID(r); err != nil {
			return nil, err
		}
		if p.Index, err = r.ReadByte(); err != nil {
			return nil, err
		}
		pallets = append(pallets, p)
	}
	return pallets, nil
}

func decodeFrameStorage(r *scale.Reader, p *Pallet) error {
	var err error
	if p.StoragePrefix, err = r.ReadString(); err != nil {
		return err
	}
	n, err := readFrameLen(r)
	if err != nil {
		return err
	}
	p.Storage = make(map[string]*StorageEntry, n)
	for i := 0; i < n; i++ {
		e := &StorageEntry{}
		if e.Name, err = r.ReadString(); err != nil {
			return err
		}
		if _, err = r.ReadByte(); err != nil { // modifier
			return err
		}
		disc, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch disc {
		case 0:
			id, err := readFrameTypeID(r)
			if err != nil {
				return err
			}
			e.Plain = &id
		case 1:
			hn, err := readFrameLen(r)
			if err != nil {
				return err
			}
			e.Hashers = make([]StorageHasher, hn)
			for j := 0; j < hn; j++ {
				h, err := r.ReadByte()
				if err != nil {
					return err
				}
				e.Hashers[j] = StorageHasher(h)
			}
			key, err := readFrameTypeID(r)
			if err != nil {
				return err
			}
			value, err := readFrameTypeID(r)
			if err != nil {
				return err
			}
			e.Key, e.Value = &key, &value
		default:
			return ErrorCodeMalformedMetadata.Errorf("invalid storage type discriminant %d", disc)
		}
		if _, err = r.ReadByteSlice(); err != nil { // default value
			return err
		}
		if _, err = readFrameStrings(r); err != nil {
			return err
		}
		p.Storage[e.Name] = e
	}
	return nil
}

func readFrameLen(r *scale.Reader) (int, error) {
	n, err := r.ReadCompactUint()
	if err != nil {
		return 0, err
	}
	// every collection item is at least a byte long
	if n > uint64(r.Remaining()) {
		return 0, scale.ErrorCodeTruncatedInput.Errorf("fail to read collection len:%d remaining:%d", n, r.Remaining())
	}
	return int(n), nil
}

func readFrameTypeID(r *scale.Reader) (TypeID, error) {
	v, err := r.ReadCompactUint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, ErrorCodeMalformedMetadata.Errorf("type id out of range %d", v)
	}
	return TypeID(v), nil
}

func readFrameOption(r *scale.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrorCodeMalformedMetadata.Errorf("invalid option discriminant %d", b)
	}
}

func readFrameOptionTypeID(r *scale.Reader) (*TypeID, error) {
	ok, err := readFrameOption(r)
	if err != nil || !ok {
		return nil, err
	}
	id, err := readFrameTypeID(r)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func readFrameStrings(r *scale.Reader) ([]string, error) {
	n, err := readFrameLen(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ss := make([]string, n)
	for i := 0; i < n; i++ {
		if ss[i], err = r.ReadString(); err != nil {
			return nil, err
		}
	}
	return ss, nil
}
