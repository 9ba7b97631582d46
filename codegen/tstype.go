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

package codegen

import (
	"strings"
)

type TSKind int

const (
	TSAny TSKind = iota
	TSPrimitive
	TSReference
	TSOptional
	TSOr
	TSArray
	TSTuple
	TSInterface
	TSUnion
)

var tsKindNames = []string{
	"any", "primitive", "reference", "optional", "or", "array", "tuple", "interface", "union",
}

func (k TSKind) String() string {
	if k >= 0 && int(k) < len(tsKindNames) {
		return tsKindNames[k]
	}
	return "unknown"
}

// TSField is a named member of an interface or of a variant payload.
type TSField struct {
	Name string
	Type *TSType
}

// TSVariant is one arm of a union. Fields may be empty for unit variants.
type TSVariant struct {
	Name   string
	Fields []TSField
}

// TSType is the target-language shape a registry type resolves to.
// Values are immutable after construction, so resolved nodes may be
// shared freely between referencing types.
type TSType struct {
	Kind     TSKind
	Name     string      // TSPrimitive, TSReference, TSInterface, TSUnion
	Elem     *TSType     // TSOptional, TSArray
	Elems    []*TSType   // TSOr, TSTuple
	Fields   []TSField   // TSInterface
	Variants []TSVariant // TSUnion
}

func tsAny() *TSType {
	return &TSType{Kind: TSAny}
}

func tsPrimitive(name string) *TSType {
	return &TSType{Kind: TSPrimitive, Name: name}
}

func tsReference(name string) *TSType {
	return &TSType{Kind: TSReference, Name: name}
}

func tsOptional(elem *TSType) *TSType {
	return &TSType{Kind: TSOptional, Elem: elem}
}

func tsOr(elems ...*TSType) *TSType {
	return &TSType{Kind: TSOr, Elems: elems}
}

func tsArray(elem *TSType) *TSType {
	return &TSType{Kind: TSArray, Elem: elem}
}

func tsTuple(elems ...*TSType) *TSType {
	return &TSType{Kind: TSTuple, Elems: elems}
}

// bigNumeric covers integers wider than 32 bits, which are not safely
// representable as a single host number.
func bigNumeric() *TSType {
	return tsOr(tsPrimitive("string"), tsPrimitive("number"), tsPrimitive("bigint"))
}

// byteBuffer covers byte vectors and hash-shaped arrays, which cross the
// boundary either as raw bytes or as encoded text.
func byteBuffer() *TSType {
	return tsOr(tsReference("Uint8Array"), tsPrimitive("string"))
}

// String renders the type as it appears at a use site. Named interfaces
// and unions render as their bare name; the declaration body is emitted
// separately.
func (t *TSType) String() string {
	switch t.Kind {
	case TSPrimitive, TSReference, TSInterface, TSUnion:
		return t.Name
	case TSOptional:
		return t.Elem.String() + " | null"
	case TSOr:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return strings.Join(parts, " | ")
	case TSArray:
		return t.Elem.String() + "[]"
	case TSTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "any"
	}
}

// isPrimitive reports whether t is the primitive with the given name.
func (t *TSType) isPrimitive(name string) bool {
	return t.Kind == TSPrimitive && t.Name == name
}
