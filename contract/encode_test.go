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
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/icon-project/btp2/common/errors"
	"github.com/stretchr/testify/assert"

	"github.com/inkforge/inkforge/metadata"
)

const (
	aliceAddress = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	aliceKeyHex  = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
)

const testRegistryJSON = `[
	{"id": 0, "type": {"def": {"primitive": "bool"}}},
	{"id": 1, "type": {"def": {"primitive": "u32"}}},
	{"id": 2, "type": {"def": {"primitive": "u128"}}},
	{"id": 3, "type": {"def": {"primitive": "str"}}},
	{"id": 4, "type": {"def": {"primitive": "i32"}}},
	{"id": 5, "type": {"path": ["ink_primitives", "types", "AccountId"],
		"def": {"composite": {"fields": [{"type": 6}]}}}},
	{"id": 6, "type": {"def": {"array": {"len": 32, "type": 7}}}},
	{"id": 7, "type": {"def": {"primitive": "u8"}}},
	{"id": 8, "type": {"def": {"sequence": {"type": 7}}}},
	{"id": 9, "type": {"path": ["my_token", "Balance"],
		"def": {"composite": {"fields": [{"type": 2}]}}}},
	{"id": 10, "type": {"def": {"compact": {"type": 2}}}},
	{"id": 11, "type": {"def": {"tuple": [1, 0]}}},
	{"id": 12, "type": {"def": {"tuple": []}}},
	{"id": 13, "type": {"path": ["Option"], "params": [{"name": "T", "type": 1}],
		"def": {"variant": {"variants": [
			{"name": "None", "index": 0},
			{"name": "Some", "index": 1, "fields": [{"type": 1}]}]}}}},
	{"id": 14, "type": {"path": ["Result"],
		"params": [{"name": "T", "type": 1}, {"name": "E", "type": 3}],
		"def": {"variant": {"variants": [
			{"name": "Ok", "index": 0, "fields": [{"type": 1}]},
			{"name": "Err", "index": 1, "fields": [{"type": 3}]}]}}}},
	{"id": 15, "type": {"path": ["demo", "Color"],
		"def": {"composite": {"fields": [
			{"name": "r", "type": 7}, {"name": "g", "type": 7}, {"name": "b", "type": 7}]}}}},
	{"id": 16, "type": {"path": ["demo", "Shape"],
		"def": {"variant": {"variants": [
			{"name": "Dot", "index": 0},
			{"name": "Line", "index": 1, "fields": [{"type": 1}]},
			{"name": "Rect", "index": 2, "fields": [
				{"name": "w", "type": 1}, {"name": "h", "type": 1}]}]}}}},
	{"id": 17, "type": {"def": {"sequence": {"type": 1}}}},
	{"id": 18, "type": {"def": {"primitive": "u64"}}},
	{"id": 19, "type": {"def": {"primitive": "char"}}},
	{"id": 20, "type": {"def": {"bitsequence": {"bit_store_type": 7, "bit_order_type": 1}}}},
	{"id": 21, "type": {"def": {"primitive": "i128"}}}
]`

func newTestRegistry(t *testing.T) *metadata.TypeRegistry {
	reg, err := metadata.NewTypeRegistry(json.RawMessage(testRegistryJSON))
	assert.NoError(t, err)
	return reg
}

func argsOf(labels []string, ids ...metadata.TypeID) []metadata.ArgSpec {
	params := make([]metadata.ArgSpec, len(ids))
	for i, id := range ids {
		params[i] = metadata.ArgSpec{Label: labels[i], Type: metadata.TypeRef{Type: id}}
	}
	return params
}

func encodeOne(t *testing.T, id metadata.TypeID, raw string) ([]byte, error) {
	e := NewEncoder(newTestRegistry(t))
	return e.EncodeArgs([]string{raw}, argsOf([]string{"v"}, id))
}

func TestEncodeArgsIntegers(t *testing.T) {
	cases := []struct {
		id       metadata.TypeID
		raw      string
		expected string
	}{
		{1, "42", "2a000000"},
		{1, "0x2a", "2a000000"},
		{1, "1_000", "e8030000"},
		{1, "0", "00000000"},
		{2, "1000000000000000000", "000064a7b3b6e00d0000000000000000"},
		{4, "-5", "fbffffff"},
		{7, "255", "ff"},
		{18, "18446744073709551615", "ffffffffffffffff"},
		{21, "-1", "ffffffffffffffffffffffffffffffff"},
	}
	for _, c := range cases {
		b, err := encodeOne(t, c.id, c.raw)
		assert.NoError(t, err, "id:%d raw:%s", c.id, c.raw)
		assert.Equal(t, c.expected, hex.EncodeToString(b), "id:%d raw:%s", c.id, c.raw)
	}
}

func TestEncodeArgsOutOfRange(t *testing.T) {
	cases := []struct {
		id  metadata.TypeID
		raw string
	}{
		{1, "-5"},
		{1, "4294967296"},
		{7, "256"},
		{2, "-1"},
		{4, "2147483648"},
		{10, "-1"},
	}
	for _, c := range cases {
		_, err := encodeOne(t, c.id, c.raw)
		assert.Error(t, err, "id:%d raw:%s", c.id, c.raw)
		assert.Equal(t, ErrorCodeArgumentOutOfRange, errors.CodeOf(err), "id:%d raw:%s", c.id, c.raw)
	}
}

func TestEncodeArgsInvalid(t *testing.T) {
	cases := []struct {
		id  metadata.TypeID
		raw string
	}{
		{1, "forty-two"},
		{1, ""},
		{0, "yes"},
		{19, "ab"},
		{6, "0x1234"},
		{8, "0xzz"},
	}
	for _, c := range cases {
		_, err := encodeOne(t, c.id, c.raw)
		assert.Error(t, err, "id:%d raw:%s", c.id, c.raw)
		assert.Equal(t, ErrorCodeInvalidArgument, errors.CodeOf(err), "id:%d raw:%s", c.id, c.raw)
	}
}

func TestEncodeArgsBool(t *testing.T) {
	b, err := encodeOne(t, 0, "true")
	assert.NoError(t, err)
	assert.Equal(t, "01", hex.EncodeToString(b))

	b, err = encodeOne(t, 0, "False")
	assert.NoError(t, err)
	assert.Equal(t, "00", hex.EncodeToString(b))
}

func TestEncodeArgsString(t *testing.T) {
	b, err := encodeOne(t, 3, "hello")
	assert.NoError(t, err)
	assert.Equal(t, "1468656c6c6f", hex.EncodeToString(b))

	b, err = encodeOne(t, 19, "A")
	assert.NoError(t, err)
	assert.Equal(t, "41000000", hex.EncodeToString(b))
}

func TestEncodeArgsAddress(t *testing.T) {
	b, err := encodeOne(t, 5, aliceAddress)
	assert.NoError(t, err)
	assert.Equal(t, aliceKeyHex, hex.EncodeToString(b))

	b, err = encodeOne(t, 5, "0x"+aliceKeyHex)
	assert.NoError(t, err)
	assert.Equal(t, aliceKeyHex, hex.EncodeToString(b))

	_, err = encodeOne(t, 5, "not-an-address")
	assert.Error(t, err)
	assert.Equal(t, ErrorCodeInvalidAddress, errors.CodeOf(err))
}

func TestEncodeArgsBytes(t *testing.T) {
	b, err := encodeOne(t, 8, "0xdeadbeef")
	assert.NoError(t, err)
	assert.Equal(t, "10deadbeef", hex.EncodeToString(b))

	b, err = encodeOne(t, 8, "0x")
	assert.NoError(t, err)
	assert.Equal(t, "00", hex.EncodeToString(b))

	b, err = encodeOne(t, 6, "0x"+aliceKeyHex)
	assert.NoError(t, err)
	assert.Equal(t, aliceKeyHex, hex.EncodeToString(b))
}

func TestEncodeArgsNewtype(t *testing.T) {
	b, err := encodeOne(t, 9, "5")
	assert.NoError(t, err)
	assert.Equal(t, "05000000000000000000000000000000", hex.EncodeToString(b))
}

func TestEncodeArgsCompact(t *testing.T) {
	cases := []struct {
		raw      string
		expected string
	}{
		{"3", "0c"},
		{"63", "fc"},
		{"64", "0101"},
		{"16384", "02000100"},
		{"1000000000000000000", "13000064a7b3b6e00d"},
	}
	for _, c := range cases {
		b, err := encodeOne(t, 10, c.raw)
		assert.NoError(t, err, "raw:%s", c.raw)
		assert.Equal(t, c.expected, hex.EncodeToString(b), "raw:%s", c.raw)
	}
}

func TestEncodeArgsCountMismatch(t *testing.T) {
	e := NewEncoder(newTestRegistry(t))
	_, err := e.EncodeArgs([]string{"1"}, argsOf([]string{"a", "b"}, 1, 0))
	assert.Error(t, err)
	assert.Equal(t, ErrorCodeArgumentCountMismatch, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "expected:2")
	assert.Contains(t, err.Error(), "actual:1")
}

func TestEncodeArgsStructured(t *testing.T) {
	for _, id := range []metadata.TypeID{15, 16, 17, 11, 13} {
		_, err := encodeOne(t, id, "whatever")
		assert.Error(t, err, "id:%d", id)
		assert.Equal(t, ErrorCodeNotSupportedArgument, errors.CodeOf(err), "id:%d", id)
	}
}

func TestEncodeArgsErrorContext(t *testing.T) {
	e := NewEncoder(newTestRegistry(t))
	_, err := e.EncodeArgs([]string{"42", "oops"}, argsOf([]string{"to", "amount"}, 1, 2))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "idx:1")
	assert.Contains(t, err.Error(), "label:amount")
	assert.Equal(t, ErrorCodeInvalidArgument, errors.CodeOf(err))
}

func TestEncodeArgsMultiple(t *testing.T) {
	e := NewEncoder(newTestRegistry(t))
	b, err := e.EncodeArgs([]string{aliceAddress, "1000000000000000000"},
		argsOf([]string{"to", "amount"}, 5, 2))
	assert.NoError(t, err)
	assert.Equal(t, aliceKeyHex+"000064a7b3b6e00d0000000000000000", hex.EncodeToString(b))
}
