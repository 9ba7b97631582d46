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
	"github.com/inkforge/inkforge/metadata"
)

// BuildCall renders selector-prefixed call data for a message.
func BuildCall(doc *metadata.Document, method string, args []string) ([]byte, *metadata.MessageSpec, error) {
	m, ok := doc.Message(method)
	if !ok {
		return nil, nil, ErrorCodeNotFoundMethod.Errorf("not found method %s in %s", method, doc.Name())
	}
	data, err := NewEncoder(doc.Types).EncodeArgs(args, m.Args)
	if err != nil {
		return nil, nil, err
	}
	return append(m.Selector.Bytes(), data...), m, nil
}

// BuildDeploy renders selector-prefixed constructor data. An empty
// label picks the default constructor.
func BuildDeploy(doc *metadata.Document, label string, args []string) ([]byte, *metadata.ConstructorSpec, error) {
	var c *metadata.ConstructorSpec
	if label == "" {
		var err error
		if c, err = doc.DefaultConstructor(); err != nil {
			return nil, nil, err
		}
	} else {
		var ok bool
		if c, ok = doc.Constructor(label); !ok {
			return nil, nil, ErrorCodeNotFoundMethod.Errorf("not found constructor %s in %s", label, doc.Name())
		}
	}
	data, err := NewEncoder(doc.Types).EncodeArgs(args, c.Args)
	if err != nil {
		return nil, nil, err
	}
	return append(c.Selector.Bytes(), data...), c, nil
}

// DecodeReturn decodes the return payload of a message. Messages
// without a declared return type yield nil.
func DecodeReturn(doc *metadata.Document, m *metadata.MessageSpec, data []byte) (interface{}, error) {
	if m.ReturnType == nil {
		return nil, nil
	}
	return NewDecoder(doc.Types).Decode(data, m.ReturnType.Type)
}
