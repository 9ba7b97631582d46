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
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
)

var docLogger = log.New()

func init() {
	docLogger.SetLevel(log.DebugLevel)
}

// Selector is the 4-byte dispatch prefix of a constructor or message.
type Selector [4]byte

func (s Selector) String() string {
	return hexutil.Encode(s[:])
}

func (s Selector) Bytes() []byte {
	b := make([]byte, len(s))
	copy(b, s[:])
	return b
}

// MarshalJSON implements json.Marshaler interface.
func (s Selector) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (s *Selector) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := hexutil.Decode(str)
	if err != nil {
		return ErrorCodeMalformedMetadata.Wrapf(err, "fail to parse selector %q err:%s", str, err.Error())
	}
	if len(b) != len(s) {
		return ErrorCodeMalformedMetadata.Errorf("fail to parse selector %q, invalid length %d", str, len(b))
	}
	copy(s[:], b)
	return nil
}

// FormatVersion tolerates both the string form ("4") and the numeric
// form (5) used by different metadata generations.
type FormatVersion string

// UnmarshalJSON implements json.Unmarshaler interface.
func (v *FormatVersion) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = FormatVersion(s)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = FormatVersion(strconv.FormatUint(n, 10))
	return nil
}

type TypeRef struct {
	DisplayName []string `json:"displayName,omitempty"`
	Type        TypeID   `json:"type"`
}

type ArgSpec struct {
	Label   string   `json:"label"`
	Type    TypeRef  `json:"type"`
	Docs    []string `json:"docs,omitempty"`
	Indexed bool     `json:"indexed,omitempty"`
}

type ConstructorSpec struct {
	Label    string    `json:"label"`
	Selector Selector  `json:"selector"`
	Args     []ArgSpec `json:"args"`
	Payable  bool      `json:"payable,omitempty"`
	Default  bool      `json:"default,omitempty"`
	Docs     []string  `json:"docs,omitempty"`
}

type MessageSpec struct {
	Label      string    `json:"label"`
	Selector   Selector  `json:"selector"`
	Args       []ArgSpec `json:"args"`
	Mutates    bool      `json:"mutates,omitempty"`
	Payable    bool      `json:"payable,omitempty"`
	Default    bool      `json:"default,omitempty"`
	ReturnType *TypeRef  `json:"returnType,omitempty"`
	Docs       []string  `json:"docs,omitempty"`
}

type EventSpec struct {
	Label string    `json:"label"`
	Args  []ArgSpec `json:"args"`
	Docs  []string  `json:"docs,omitempty"`
}

type CallSpec struct {
	Constructors []ConstructorSpec `json:"constructors"`
	Messages     []MessageSpec     `json:"messages"`
	Events       []EventSpec       `json:"events,omitempty"`
	Docs         []string          `json:"docs,omitempty"`
}

type ContractInfo struct {
	Name    string   `json:"name"`
	Version string   `json:"version,omitempty"`
	Authors []string `json:"authors,omitempty"`
}

type SourceInfo struct {
	Hash     string `json:"hash,omitempty"`
	Language string `json:"language,omitempty"`
	Compiler string `json:"compiler,omitempty"`
}

// Document is a parsed contract metadata document.
type Document struct {
	Source   SourceInfo    `json:"source,omitempty"`
	Contract ContractInfo  `json:"contract"`
	Spec     CallSpec      `json:"spec"`
	Types    *TypeRegistry `json:"types"`
	Version  FormatVersion `json:"version,omitempty"`

	MessageMap     map[string]*MessageSpec     `json:"-"`
	ConstructorMap map[string]*ConstructorSpec `json:"-"`
	EventMap       map[string]*EventSpec       `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (d *Document) UnmarshalJSON(data []byte) error {
	type tDocument Document
	if err := json.Unmarshal(data, (*tDocument)(d)); err != nil {
		return err
	}
	if d.Types == nil {
		return ErrorCodeMalformedMetadata.Errorf("fail to parse metadata, missing types")
	}
	d.ConstructorMap = make(map[string]*ConstructorSpec)
	for i := 0; i < len(d.Spec.Constructors); i++ {
		v := &d.Spec.Constructors[i]
		d.ConstructorMap[v.Label] = v
		docLogger.Tracef("ConstructorSpec label:%s selector:%s args:%d\n", v.Label, v.Selector, len(v.Args))
	}
	d.MessageMap = make(map[string]*MessageSpec)
	for i := 0; i < len(d.Spec.Messages); i++ {
		v := &d.Spec.Messages[i]
		d.MessageMap[v.Label] = v
		docLogger.Tracef("MessageSpec label:%s selector:%s mutates:%v\n", v.Label, v.Selector, v.Mutates)
	}
	d.EventMap = make(map[string]*EventSpec)
	for i := 0; i < len(d.Spec.Events); i++ {
		v := &d.Spec.Events[i]
		d.EventMap[v.Label] = v
		docLogger.Tracef("EventSpec label:%s args:%d\n", v.Label, len(v.Args))
	}
	return nil
}

func NewDocument(b []byte) (*Document, error) {
	d := &Document{}
	if err := json.Unmarshal(b, d); err != nil {
		if _, ok := errors.CoderOf(err); ok {
			return nil, err
		}
		return nil, ErrorCodeMalformedMetadata.Wrapf(err, "fail to parse metadata, err:%s", err.Error())
	}
	return d, nil
}

func MustNewDocument(b []byte) *Document {
	d, err := NewDocument(b)
	if err != nil {
		log.Panicf("fail to NewDocument err:%v", err)
	}
	return d
}

func (d *Document) Name() string {
	return d.Contract.Name
}

// ContractVersion prefers the top-level version and falls back to the
// contract section.
func (d *Document) ContractVersion() string {
	if d.Version != "" {
		return string(d.Version)
	}
	return d.Contract.Version
}

func (d *Document) Message(label string) (*MessageSpec, bool) {
	m, ok := d.MessageMap[label]
	return m, ok
}

func (d *Document) Constructor(label string) (*ConstructorSpec, bool) {
	c, ok := d.ConstructorMap[label]
	return c, ok
}

func (d *Document) Event(label string) (*EventSpec, bool) {
	e, ok := d.EventMap[label]
	return e, ok
}

// EventByIndex returns the event spec at the given position of the
// declaration order, the discriminant used by emitted event payloads.
func (d *Document) EventByIndex(idx int) (*EventSpec, bool) {
	if idx < 0 || idx >= len(d.Spec.Events) {
		return nil, false
	}
	return &d.Spec.Events[idx], true
}

// DefaultConstructor selects the constructor used when no label is
// given: the only one, the one flagged default, or the one labeled "new".
func (d *Document) DefaultConstructor() (*ConstructorSpec, error) {
	switch len(d.Spec.Constructors) {
	case 0:
		return nil, ErrorCodeNotFoundConstructor.Errorf("not found constructor in %s", d.Name())
	case 1:
		return &d.Spec.Constructors[0], nil
	}
	for i := 0; i < len(d.Spec.Constructors); i++ {
		if d.Spec.Constructors[i].Default {
			return &d.Spec.Constructors[i], nil
		}
	}
	if c, ok := d.ConstructorMap["new"]; ok {
		return c, nil
	}
	return nil, ErrorCodeAmbiguousConstructor.Errorf("ambiguous constructor in %s, expected label", d.Name())
}
