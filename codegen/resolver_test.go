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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkforge/inkforge/metadata"
)

const testRegistryJSON = `[
  {"id": 0, "type": {"def": {"primitive": "bool"}}},
  {"id": 1, "type": {"def": {"primitive": "u32"}}},
  {"id": 2, "type": {"def": {"primitive": "u8"}}},
  {"id": 3, "type": {"def": {"primitive": "u128"}}},
  {"id": 4, "type": {"def": {"primitive": "str"}}},
  {"id": 5, "type": {"path": ["Option"], "params": [{"name": "T", "type": 1}],
    "def": {"variant": {"variants": [
      {"name": "None", "index": 0},
      {"name": "Some", "index": 1, "fields": [{"type": 1}]}]}}}},
  {"id": 6, "type": {"path": ["Option"],
    "def": {"variant": {"variants": [
      {"name": "None", "index": 0},
      {"name": "Some", "index": 1, "fields": [{"type": 1}]}]}}}},
  {"id": 7, "type": {"path": ["Result"], "params": [{"name": "T", "type": 1}, {"name": "E", "type": 4}],
    "def": {"variant": {"variants": [
      {"name": "Ok", "index": 0, "fields": [{"type": 1}]},
      {"name": "Err", "index": 1, "fields": [{"type": 4}]}]}}}},
  {"id": 8, "type": {"path": ["Result"],
    "def": {"variant": {"variants": [
      {"name": "Ok", "index": 0, "fields": [{"type": 1}]},
      {"name": "Err", "index": 1, "fields": [{"type": 4}]}]}}}},
  {"id": 9, "type": {"path": ["my_token", "Wrapper"], "def": {"composite": {"fields": [{"type": 3}]}}}},
  {"id": 10, "type": {"def": {"sequence": {"type": 2}}}},
  {"id": 11, "type": {"def": {"array": {"len": 32, "type": 2}}}},
  {"id": 12, "type": {"def": {"array": {"len": 4, "type": 2}}}},
  {"id": 13, "type": {"def": {"tuple": []}}},
  {"id": 14, "type": {"def": {"tuple": [1, 0]}}},
  {"id": 15, "type": {"def": {"compact": {"type": 3}}}},
  {"id": 16, "type": {"path": ["ink_primitives", "types", "AccountId"],
    "def": {"composite": {"fields": [{"type": 11}]}}}},
  {"id": 17, "type": {"path": ["my_token", "BalanceOf"], "def": {"primitive": "u128"}}},
  {"id": 18, "type": {"path": ["ink_primitives", "Hash"],
    "def": {"composite": {"fields": [{"type": 11}]}}}},
  {"id": 19, "type": {"path": ["my_token", "Color"], "def": {"composite": {"fields": [
    {"name": "r", "type": 2}, {"name": "g", "type": 2}, {"name": "b", "type": 2}]}}}},
  {"id": 20, "type": {"def": {"composite": {"fields": [
    {"name": "a", "type": 1}, {"name": "b", "type": 0}, {"name": "c", "type": 4}]}}}},
  {"id": 21, "type": {"def": {"variant": {"variants": [
    {"name": "A", "index": 0}, {"name": "B", "index": 1}]}}}},
  {"id": 22, "type": {"path": ["my_token", "Node"], "def": {"composite": {"fields": [
    {"name": "value", "type": 1}, {"name": "next", "type": 22}]}}}},
  {"id": 23, "type": {"path": ["my_token", "Left"], "def": {"composite": {"fields": [
    {"name": "right", "type": 24}]}}}},
  {"id": 24, "type": {"path": ["my_token", "Right"], "def": {"composite": {"fields": [
    {"name": "left", "type": 23}]}}}},
  {"id": 25, "type": {"path": ["String"], "def": {"composite": {"fields": [{"type": 10}]}}}},
  {"id": 26, "type": {"path": ["my_token", "Shape"], "def": {"variant": {"variants": [
    {"name": "Dot", "index": 0},
    {"name": "Line", "index": 1, "fields": [{"type": 1}]},
    {"name": "Rect", "index": 2, "fields": [{"type": 1}, {"type": 1}]}]}}}},
  {"id": 27, "type": {"def": {"sequence": {"type": 4}}}},
  {"id": 28, "type": {"def": {"bitsequence": {"bit_store_type": 2, "bit_order_type": 29}}}},
  {"id": 29, "type": {"def": {"primitive": "char"}}},
  {"id": 30, "type": {"def": {"primitive": "i64"}}},
  {"id": 31, "type": {"def": {"composite": {"fields": [{"type": 1}, {"type": 0}]}}}},
  {"id": 32, "type": {"def": {"sequence": {"type": 99}}}}
]`

func newTestResolver(t *testing.T) *Resolver {
	reg, err := metadata.NewTypeRegistry([]byte(testRegistryJSON))
	assert.NoError(t, err)
	return NewResolver(reg)
}

func TestResolvePrimitive(t *testing.T) {
	r := newTestResolver(t)
	assert.Equal(t, tsPrimitive("boolean"), r.Resolve(0))
	assert.Equal(t, tsPrimitive("number"), r.Resolve(1))
	assert.Equal(t, tsPrimitive("number"), r.Resolve(2))
	assert.Equal(t, bigNumeric(), r.Resolve(3))
	assert.Equal(t, tsPrimitive("string"), r.Resolve(4))
	assert.Equal(t, tsPrimitive("string"), r.Resolve(29))
	assert.Equal(t, bigNumeric(), r.Resolve(30))
}

func TestResolveIdempotent(t *testing.T) {
	r := newTestResolver(t)
	for _, id := range []metadata.TypeID{0, 1, 3, 4, 10, 19, 26} {
		assert.Same(t, r.Resolve(id), r.Resolve(id), "id:%d", id)
	}
}

func TestResolveOption(t *testing.T) {
	reg, err := metadata.NewTypeRegistry([]byte(`[
	  {"id": 0, "type": {"path": ["Option"], "params": [{"name": "T", "type": 1}],
	    "def": {"variant": {"variants": [
	      {"name": "None", "index": 0},
	      {"name": "Some", "index": 1, "fields": [{"type": 1}]}]}}}},
	  {"id": 1, "type": {"def": {"primitive": "u32"}}}
	]`))
	assert.NoError(t, err)
	got := NewResolver(reg).Resolve(0)
	assert.Equal(t, tsOptional(tsPrimitive("number")), got)
	assert.Equal(t, "number | null", got.String())
}

func TestResolveOptionWithoutParams(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(6)
	assert.Equal(t, TSOr, got.Kind)
	assert.Equal(t, tsOr(tsAny(), tsPrimitive("null")), got)
	assert.NotEqual(t, r.Resolve(5), got)
}

func TestResolveResult(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(7)
	assert.Equal(t, TSUnion, got.Kind)
	assert.Equal(t, "Result", got.Name)
	assert.Equal(t, 2, len(got.Variants))
	assert.Equal(t, "Ok", got.Variants[0].Name)
	assert.Equal(t, "Err", got.Variants[1].Name)
	assert.Equal(t, []TSField{{Name: "value", Type: tsPrimitive("number")}}, got.Variants[0].Fields)
	assert.Equal(t, []TSField{{Name: "error", Type: tsPrimitive("string")}}, got.Variants[1].Fields)
	assert.True(t, r.usedResult)
	_, declared := r.lookupNamed("Result")
	assert.False(t, declared)
}

func TestResolveResultWithoutParams(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(8)
	assert.Equal(t, TSUnion, got.Kind)
	assert.Equal(t, "Result", got.Name)
	// without parameters the declared variant payloads survive
	assert.Equal(t, []TSField{{Name: "value", Type: tsPrimitive("number")}}, got.Variants[0].Fields)
	assert.Equal(t, []TSField{{Name: "value", Type: tsPrimitive("string")}}, got.Variants[1].Fields)
	assert.False(t, r.usedResult)
	_, declared := r.lookupNamed("Result")
	assert.True(t, declared)
}

func TestResolveNewtypeCollapse(t *testing.T) {
	r := newTestResolver(t)
	assert.Same(t, r.Resolve(3), r.Resolve(9))
}

func TestResolveWellKnownPaths(t *testing.T) {
	r := newTestResolver(t)
	assert.Equal(t, tsPrimitive("string"), r.Resolve(16))
	assert.Equal(t, bigNumeric(), r.Resolve(17))
	assert.Equal(t, tsOr(tsPrimitive("string"), tsReference("Uint8Array")), r.Resolve(18))
	assert.Equal(t, tsPrimitive("string"), r.Resolve(25))
}

func TestResolveByteVectors(t *testing.T) {
	r := newTestResolver(t)
	assert.Equal(t, byteBuffer(), r.Resolve(10))
	assert.Equal(t, byteBuffer(), r.Resolve(11))
	assert.Equal(t, tsArray(tsPrimitive("number")), r.Resolve(12))
	assert.Equal(t, "number[]", r.Resolve(12).String())
	assert.Equal(t, tsArray(tsPrimitive("string")), r.Resolve(27))
}

func TestResolveTupleAndCompact(t *testing.T) {
	r := newTestResolver(t)
	assert.Equal(t, tsPrimitive("void"), r.Resolve(13))
	got := r.Resolve(14)
	assert.Equal(t, tsTuple(tsPrimitive("number"), tsPrimitive("boolean")), got)
	assert.Equal(t, "[number, boolean]", got.String())
	assert.Equal(t, bigNumeric(), r.Resolve(15))
}

func TestResolveComposite(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(19)
	assert.Equal(t, TSInterface, got.Kind)
	assert.Equal(t, "Color", got.Name)
	assert.Equal(t, 3, len(got.Fields))
	assert.Equal(t, "r", got.Fields[0].Name)
	assert.Equal(t, tsPrimitive("number"), got.Fields[0].Type)
	assert.Equal(t, "Color", got.String())

	got = r.Resolve(20)
	assert.Equal(t, TSInterface, got.Kind)
	assert.Equal(t, "Struct3", got.Name)

	got = r.Resolve(31)
	assert.Equal(t, tsTuple(tsPrimitive("number"), tsPrimitive("boolean")), got)
}

func TestResolveVariant(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(26)
	assert.Equal(t, TSUnion, got.Kind)
	assert.Equal(t, "Shape", got.Name)
	assert.Equal(t, 3, len(got.Variants))
	assert.Equal(t, 0, len(got.Variants[0].Fields))
	assert.Equal(t, "value", got.Variants[1].Fields[0].Name)
	assert.Equal(t, "field0", got.Variants[2].Fields[0].Name)
	assert.Equal(t, "field1", got.Variants[2].Fields[1].Name)

	got = r.Resolve(21)
	assert.Equal(t, "Enum2", got.Name)
}

func TestResolveCycle(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(22)
	assert.Equal(t, TSInterface, got.Kind)
	assert.Equal(t, "Node", got.Name)
	assert.Equal(t, tsPrimitive("number"), got.Fields[0].Type)
	assert.Equal(t, TSAny, got.Fields[1].Type.Kind)

	// a mutual cycle degrades at the point of re-entry only
	left := r.Resolve(23)
	assert.Equal(t, "Left", left.Name)
	right := left.Fields[0].Type
	assert.Equal(t, "Right", right.Name)
	assert.Equal(t, TSAny, right.Fields[0].Type.Kind)
	// the partner resolution was cached during the walk
	assert.Same(t, right, r.Resolve(24))
}

func TestResolveUnknown(t *testing.T) {
	r := newTestResolver(t)
	assert.Equal(t, TSAny, r.Resolve(99).Kind)
	assert.Same(t, r.Resolve(99), r.Resolve(99))
	got := r.Resolve(32)
	assert.Equal(t, tsArray(tsAny()), got)
	assert.Equal(t, "any[]", got.String())
}

func TestResolveBitSequence(t *testing.T) {
	r := newTestResolver(t)
	assert.Equal(t, tsReference("Uint8Array"), r.Resolve(28))
}

func TestNamedCollection(t *testing.T) {
	r := newTestResolver(t)
	r.Resolve(19)
	r.Resolve(20)
	r.Resolve(26)
	r.Resolve(19)
	named := r.Named()
	assert.Equal(t, 3, len(named))
	assert.Equal(t, "Color", named[0].Name)
	assert.Equal(t, "Struct3", named[1].Name)
	assert.Equal(t, "Shape", named[2].Name)
}
