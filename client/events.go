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

package client

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"

	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
)

// ChainEvent is one record of the System.Events storage value reduced
// to its pallet, name and decoded payload.
type ChainEvent struct {
	Pallet         string
	Name           string
	ExtrinsicIndex *uint32
	Fields         interface{}
}

func (e *ChainEvent) AppliesTo(idx uint32) bool {
	return e.ExtrinsicIndex != nil && *e.ExtrinsicIndex == idx
}

// DecodeSystemEvents decodes the raw System.Events storage value with
// the chain type registry.
func DecodeSystemEvents(m *metadata.FrameMetadata, data []byte) ([]*ChainEvent, error) {
	id, ok := m.StorageValueType("System", "Events")
	if !ok {
		return nil, errors.New("not found System.Events storage type")
	}
	v, err := contract.NewDecoder(m.Types).Decode(data, id)
	if err != nil {
		return nil, err
	}
	records, ok := v.([]interface{})
	if !ok {
		return nil, errors.Errorf("invalid event records %T", v)
	}
	events := make([]*ChainEvent, 0, len(records))
	for i, rec := range records {
		e, err := newChainEvent(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid event record idx:%d, err:%s", i, err.Error())
		}
		events = append(events, e)
	}
	return events, nil
}

func newChainEvent(rec interface{}) (*ChainEvent, error) {
	s, ok := rec.(*contract.Struct)
	if !ok {
		return nil, errors.Errorf("expected record struct, got %T", rec)
	}
	e := &ChainEvent{}
	if phase, ok := s.Get("phase"); ok {
		if m, ok := phase.(map[string]interface{}); ok {
			if v, has := m["ApplyExtrinsic"]; has {
				if n, ok := v.(uint64); ok {
					idx := uint32(n)
					e.ExtrinsicIndex = &idx
				}
			}
		}
	}
	ev, ok := s.Get("event")
	if !ok {
		return nil, errors.New("not found event field")
	}
	pallet, inner, err := variantOf(ev)
	if err != nil {
		return nil, err
	}
	// the pallet arm wraps the pallet event enum as its single payload
	name, fields, err := variantOf(inner)
	if err != nil {
		return nil, err
	}
	e.Pallet, e.Name, e.Fields = pallet, name, fields
	return e, nil
}

func variantOf(v interface{}) (string, interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return "", nil, errors.Errorf("expected variant, got %T", v)
	}
	for k, inner := range m {
		return k, inner, nil
	}
	return "", nil, errors.New("empty variant")
}

// eventField reads a field of a decoded event payload by name with a
// positional fallback for tuple payloads.
func eventField(fields interface{}, name string, pos int) (interface{}, bool) {
	switch f := fields.(type) {
	case *contract.Struct:
		return f.Get(name)
	case []interface{}:
		if pos >= 0 && pos < len(f) {
			return f[pos], true
		}
	default:
		if pos == 0 && f != nil {
			return f, true
		}
	}
	return nil, false
}

func bytesValue(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.Errorf("expected hex string, got %T", v)
	}
	return hexutil.Decode(s)
}

// ContractEmitted is the Contracts.ContractEmitted payload, the raw
// event bytes a contract deposited.
type ContractEmitted struct {
	Contract []byte
	Data     []byte
}

func ContractEmittedEvents(events []*ChainEvent, extrinsicIdx uint32) ([]*ContractEmitted, error) {
	var out []*ContractEmitted
	for _, e := range events {
		if !e.AppliesTo(extrinsicIdx) || e.Pallet != "Contracts" || e.Name != "ContractEmitted" {
			continue
		}
		em, err := emittedOf(e)
		if err != nil {
			return nil, err
		}
		out = append(out, em)
	}
	return out, nil
}

func emittedOf(e *ChainEvent) (*ContractEmitted, error) {
	addr, ok := eventField(e.Fields, "contract", 0)
	if !ok {
		return nil, errors.New("not found contract field of ContractEmitted")
	}
	data, ok := eventField(e.Fields, "data", 1)
	if !ok {
		return nil, errors.New("not found data field of ContractEmitted")
	}
	ab, err := bytesValue(addr)
	if err != nil {
		return nil, err
	}
	db, err := bytesValue(data)
	if err != nil {
		return nil, err
	}
	return &ContractEmitted{Contract: ab, Data: db}, nil
}

// InstantiatedAddress finds the account created by an instantiate
// dispatch through Contracts.Instantiated.
func InstantiatedAddress(events []*ChainEvent, extrinsicIdx uint32) ([]byte, bool) {
	for _, e := range events {
		if e.AppliesTo(extrinsicIdx) && e.Pallet == "Contracts" && e.Name == "Instantiated" {
			if v, ok := eventField(e.Fields, "contract", 1); ok {
				if b, err := bytesValue(v); err == nil {
					return b, true
				}
			}
		}
	}
	return nil, false
}

// StoredCodeHash finds the hash reported by Contracts.CodeStored.
func StoredCodeHash(events []*ChainEvent, extrinsicIdx uint32) ([]byte, bool) {
	for _, e := range events {
		if e.AppliesTo(extrinsicIdx) && e.Pallet == "Contracts" && e.Name == "CodeStored" {
			if v, ok := eventField(e.Fields, "code_hash", 0); ok {
				if b, err := bytesValue(v); err == nil {
					return b, true
				}
			}
		}
	}
	return nil, false
}

// ExtrinsicDispatchError reports the System.ExtrinsicFailed error of
// the extrinsic, nil when the block holds none.
func ExtrinsicDispatchError(m *metadata.FrameMetadata, events []*ChainEvent, extrinsicIdx uint32) error {
	for _, e := range events {
		if e.AppliesTo(extrinsicIdx) && e.Pallet == "System" && e.Name == "ExtrinsicFailed" {
			v, _ := eventField(e.Fields, "dispatch_error", 0)
			return contract.ErrorCodeExecutionFailed.Errorf(
				"extrinsic failed, error:%s", resolveDispatchError(m, v))
		}
	}
	return nil
}

// resolveDispatchError names a module error through the pallet error
// tables, falls back to rendering the decoded value.
func resolveDispatchError(m *metadata.FrameMetadata, v interface{}) string {
	de, ok := v.(map[string]interface{})
	if !ok {
		return renderValue(v)
	}
	mod, has := de["Module"]
	if !has {
		return renderValue(v)
	}
	s, ok := mod.(*contract.Struct)
	if !ok {
		return renderValue(v)
	}
	idxV, _ := s.Get("index")
	errV, _ := s.Get("error")
	idx, ok := idxV.(uint64)
	if !ok {
		return renderValue(v)
	}
	errBytes, err := bytesValue(errV)
	if err != nil || len(errBytes) == 0 {
		return renderValue(v)
	}
	for _, p := range m.Pallets {
		if uint64(p.Index) != idx || p.ErrorType == nil {
			continue
		}
		if d, ok := m.Types.Lookup(*p.ErrorType); ok {
			for i := range d.Variants {
				if d.Variants[i].Index == errBytes[0] {
					return fmt.Sprintf("%s.%s", p.Name, d.Variants[i].Name)
				}
			}
		}
	}
	return renderValue(v)
}

func renderValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
