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

var testDocumentJSON = `{
	"source": {"hash": "0x00", "language": "ink! 4.2.0"},
	"contract": {"name": "flipper", "version": "0.1.0"},
	"spec": {
		"constructors": [
			{"label": "new", "selector": "0x9bae9d5e", "default": true,
				"args": [{"label": "init_value", "type": {"type": 0}}]},
			{"label": "default", "selector": "0xed4b9d1b", "args": []}
		],
		"messages": [
			{"label": "flip", "selector": "0x633aa551", "mutates": true,
				"args": [], "returnType": {"type": 12}},
			{"label": "get", "selector": "0x2f865bd9",
				"args": [], "returnType": {"type": 0}},
			{"label": "transfer", "selector": "0x84a15da1", "mutates": true, "payable": true,
				"args": [
					{"label": "to", "type": {"type": 5}},
					{"label": "amount", "type": {"type": 2}}]}
		],
		"events": [
			{"label": "Flipped", "args": [{"label": "value", "type": {"type": 0}}]},
			{"label": "Transferred", "args": [
				{"label": "from", "type": {"type": 5}},
				{"label": "amount", "type": {"type": 2}}]}
		]
	},
	"types": ` + testRegistryJSON + `,
	"version": "4"
}`

func newTestDocument(t *testing.T) *metadata.Document {
	doc, err := metadata.NewDocument([]byte(testDocumentJSON))
	assert.NoError(t, err)
	return doc
}

func TestBuildCall(t *testing.T) {
	doc := newTestDocument(t)

	data, m, err := BuildCall(doc, "flip", nil)
	assert.NoError(t, err)
	assert.Equal(t, "633aa551", hex.EncodeToString(data))
	assert.True(t, m.Mutates)

	data, m, err = BuildCall(doc, "transfer", []string{aliceAddress, "5"})
	assert.NoError(t, err)
	assert.Equal(t, "84a15da1"+aliceKeyHex+"05000000000000000000000000000000",
		hex.EncodeToString(data))
	assert.True(t, m.Payable)
}

func TestBuildCallNotFound(t *testing.T) {
	_, _, err := BuildCall(newTestDocument(t), "burn", nil)
	assert.Error(t, err)
	assert.Equal(t, ErrorCodeNotFoundMethod, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "burn")
}

func TestBuildCallBadArgs(t *testing.T) {
	_, _, err := BuildCall(newTestDocument(t), "transfer", []string{aliceAddress, "oops"})
	assert.Error(t, err)
	assert.Equal(t, ErrorCodeInvalidArgument, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "label:amount")

	_, _, err = BuildCall(newTestDocument(t), "transfer", []string{aliceAddress})
	assert.Error(t, err)
	assert.Equal(t, ErrorCodeArgumentCountMismatch, errors.CodeOf(err))
}

func TestBuildDeploy(t *testing.T) {
	doc := newTestDocument(t)

	data, c, err := BuildDeploy(doc, "", []string{"true"})
	assert.NoError(t, err)
	assert.Equal(t, "9bae9d5e01", hex.EncodeToString(data))
	assert.Equal(t, "new", c.Label)

	data, c, err = BuildDeploy(doc, "default", nil)
	assert.NoError(t, err)
	assert.Equal(t, "ed4b9d1b", hex.EncodeToString(data))
	assert.Equal(t, "default", c.Label)

	_, _, err = BuildDeploy(doc, "nope", nil)
	assert.Error(t, err)
	assert.Equal(t, ErrorCodeNotFoundMethod, errors.CodeOf(err))
}

func TestDecodeReturn(t *testing.T) {
	doc := newTestDocument(t)

	m, ok := doc.Message("get")
	assert.True(t, ok)
	v, err := DecodeReturn(doc, m, []byte{1})
	assert.NoError(t, err)
	assert.Equal(t, true, v)

	m, ok = doc.Message("flip")
	assert.True(t, ok)
	v, err = DecodeReturn(doc, m, nil)
	assert.NoError(t, err)
	assert.Nil(t, v)

	m, ok = doc.Message("transfer")
	assert.True(t, ok)
	v, err = DecodeReturn(doc, m, nil)
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestDecodeEventPayload(t *testing.T) {
	doc := newTestDocument(t)

	e, err := DecodeEvent(doc, []byte{0x00, 0x01})
	assert.NoError(t, err)
	assert.Equal(t, "Flipped", e.Label)
	assert.Equal(t, []KeyValue{{Key: "value", Value: true}}, e.Args)

	b, err := json.Marshal(e)
	assert.NoError(t, err)
	assert.Equal(t, `{"label":"Flipped","args":{"value":true}}`, string(b))

	key, err := hex.DecodeString(aliceKeyHex)
	assert.NoError(t, err)
	amount := make([]byte, 16)
	amount[0] = 0x05
	data := append([]byte{0x01}, key...)
	data = append(data, amount...)
	e, err = DecodeEvent(doc, data)
	assert.NoError(t, err)
	assert.Equal(t, "Transferred", e.Label)
	assert.Equal(t, []KeyValue{
		{Key: "from", Value: "0x" + aliceKeyHex},
		{Key: "amount", Value: "5"},
	}, e.Args)
}

func TestDecodeEventNotFound(t *testing.T) {
	_, err := DecodeEvent(newTestDocument(t), []byte{0x05})
	assert.Error(t, err)
	assert.Equal(t, ErrorCodeNotFoundEvent, errors.CodeOf(err))
}
