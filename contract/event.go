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
	"bytes"
	"encoding/json"

	"github.com/icon-project/btp2/common/errors"

	"github.com/inkforge/inkforge/metadata"
	"github.com/inkforge/inkforge/scale"
)

// DecodedEvent is a contract event rebuilt from an emitted payload.
type DecodedEvent struct {
	Label string
	Args  []KeyValue
}

func (e *DecodedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Label string  `json:"label"`
		Args  *Struct `json:"args"`
	}{e.Label, &Struct{Name: e.Label, Fields: e.Args}})
}

// UnmarshalJSON rebuilds the event from its wire form, reading the
// args object token by token so the field order survives the trip.
func (e *DecodedEvent) UnmarshalJSON(b []byte) error {
	var raw struct {
		Label string          `json:"label"`
		Args  json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Label = raw.Label
	e.Args = nil
	if len(raw.Args) == 0 || bytes.Equal(raw.Args, []byte("null")) {
		return nil
	}
	d := json.NewDecoder(bytes.NewReader(raw.Args))
	d.UseNumber()
	tok, err := d.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.Errorf("invalid event args, expected object got %v", tok)
	}
	for d.More() {
		kt, err := d.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return errors.Errorf("invalid event args key %v", kt)
		}
		var v interface{}
		if err = d.Decode(&v); err != nil {
			return err
		}
		e.Args = append(e.Args, KeyValue{Key: key, Value: v})
	}
	return nil
}

// DecodeEvent decodes a ContractEmitted payload, a one-byte event
// index followed by the SCALE fields of that event.
func DecodeEvent(doc *metadata.Document, data []byte) (*DecodedEvent, error) {
	r := scale.NewReader(data)
	idx, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	spec, ok := doc.EventByIndex(int(idx))
	if !ok {
		return nil, ErrorCodeNotFoundEvent.Errorf("not found event index:%d in %s", idx, doc.Name())
	}
	d := NewDecoder(doc.Types)
	args := make([]KeyValue, len(spec.Args))
	for i, a := range spec.Args {
		v, err := d.decodeValue(r, a.Type.Type, 0)
		if err != nil {
			return nil, err
		}
		args[i] = KeyValue{Key: a.Label, Value: v}
	}
	if n := r.Remaining(); n > 0 {
		d.l.Warnf("trailing bytes after event %s, remaining:%d", spec.Label, n)
	}
	return &DecodedEvent{Label: spec.Label, Args: args}, nil
}
