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
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/metadata"
	"github.com/inkforge/inkforge/scale"
)

var codecLogger = log.New()

func init() {
	codecLogger.SetLevel(log.DebugLevel)
}

// maxNesting bounds newtype and compact chains while encoding.
const maxNesting = 16

// Encoder renders textual arguments as SCALE against the registry.
// Scalar kinds accept text directly, byte containers accept hex and
// account types accept addresses. Structured kinds are rejected.
type Encoder struct {
	reg *metadata.TypeRegistry
	l   log.Logger
}

func NewEncoder(reg *metadata.TypeRegistry) *Encoder {
	return &Encoder{reg: reg, l: codecLogger}
}

// EncodeArgs encodes arguments positionally against the declared
// parameters. It fails on the first invalid argument, reporting its
// position and label.
func (e *Encoder) EncodeArgs(args []string, params []metadata.ArgSpec) ([]byte, error) {
	if len(args) != len(params) {
		return nil, ErrorCodeArgumentCountMismatch.Errorf(
			"invalid argument count expected:%d actual:%d", len(params), len(args))
	}
	w := scale.NewWriter()
	for i, p := range params {
		e.l.Tracef("encode arg idx:%d label:%s type:%d raw:%s", i, p.Label, p.Type.Type, args[i])
		if err := e.encodeValue(w, p.Type.Type, args[i], 0); err != nil {
			return nil, errors.CodeOf(err).Wrapf(err,
				"fail to encode arg idx:%d label:%s, err:%s", i, p.Label, err.Error())
		}
	}
	return w.Bytes(), nil
}

func (e *Encoder) encodeValue(w *scale.Writer, id metadata.TypeID, raw string, depth int) error {
	if depth > maxNesting {
		return ErrorCodeNotSupportedArgument.Errorf("max nesting exceeded, type id:%d", id)
	}
	d, ok := e.reg.Lookup(id)
	if !ok {
		return metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", id)
	}
	if strings.Contains(d.PathString(), "AccountId") {
		return e.encodeAddress(w, raw)
	}
	switch d.Kind {
	case metadata.KindPrimitive:
		return e.encodePrimitive(w, d.Primitive, raw)
	case metadata.KindCompact:
		return e.encodeCompact(w, d.Elem, raw, depth)
	case metadata.KindComposite:
		// newtype wrappers accept their inner form
		if len(d.Fields) == 1 && d.Fields[0].Name == "" {
			return e.encodeValue(w, d.Fields[0].Type, raw, depth+1)
		}
		return ErrorCodeNotSupportedArgument.Errorf(
			"not supported %s argument type id:%d, requires structured input", d.Kind, id)
	case metadata.KindArray:
		return e.encodeByteArray(w, d, raw)
	case metadata.KindSequence:
		return e.encodeByteSequence(w, d, raw)
	default:
		return ErrorCodeNotSupportedArgument.Errorf(
			"not supported %s argument type id:%d, requires structured input", d.Kind, id)
	}
}

func (e *Encoder) encodePrimitive(w *scale.Writer, p metadata.PrimitiveKind, raw string) error {
	switch p {
	case metadata.PrimBool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			w.WriteBool(true)
		case "false":
			w.WriteBool(false)
		default:
			return ErrorCodeInvalidArgument.Errorf("invalid bool %q", raw)
		}
		return nil
	case metadata.PrimStr:
		w.WriteString(raw)
		return nil
	case metadata.PrimChar:
		r := []rune(raw)
		if len(r) != 1 {
			return ErrorCodeInvalidArgument.Errorf("invalid char %q", raw)
		}
		w.WriteUint(uint64(r[0]), 32)
		return nil
	}
	bits := p.Bits()
	if bits == 0 {
		return ErrorCodeNotSupportedArgument.Errorf("not supported primitive %s", p)
	}
	v, err := parseInteger(raw)
	if err != nil {
		return err
	}
	if p.Signed() {
		if err = w.WriteBigInt(v, bits); err != nil {
			return ErrorCodeArgumentOutOfRange.Errorf("out of range %s value %s", p, raw)
		}
	} else {
		if err = w.WriteBigUint(v, bits); err != nil {
			return ErrorCodeArgumentOutOfRange.Errorf("out of range %s value %s", p, raw)
		}
	}
	return nil
}

// encodeCompact writes the compact form of an unsigned integer type,
// following newtype wrappers to the underlying primitive.
func (e *Encoder) encodeCompact(w *scale.Writer, id metadata.TypeID, raw string, depth int) error {
	inner, ok := e.reg.Lookup(id)
	if !ok {
		return metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", id)
	}
	for inner.Kind == metadata.KindComposite && len(inner.Fields) == 1 && inner.Fields[0].Name == "" {
		if depth++; depth > maxNesting {
			return ErrorCodeNotSupportedArgument.Errorf("max nesting exceeded, type id:%d", inner.ID)
		}
		if inner, ok = e.reg.Lookup(inner.Fields[0].Type); !ok {
			return metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", id)
		}
	}
	bits := 0
	if inner.Kind == metadata.KindPrimitive && !inner.Primitive.Signed() {
		bits = inner.Primitive.Bits()
	}
	if bits == 0 {
		return ErrorCodeNotSupportedArgument.Errorf("not supported compact of type id:%d", inner.ID)
	}
	v, err := parseInteger(raw)
	if err != nil {
		return err
	}
	if v.Sign() < 0 || v.BitLen() > bits {
		return ErrorCodeArgumentOutOfRange.Errorf("out of range compact u%d value %s", bits, raw)
	}
	if err = w.WriteCompact(v); err != nil {
		return ErrorCodeArgumentOutOfRange.Errorf("out of range compact u%d value %s", bits, raw)
	}
	return nil
}

func (e *Encoder) encodeAddress(w *scale.Writer, raw string) error {
	b, err := Address(raw).Bytes()
	if err != nil {
		return err
	}
	w.WriteRaw(b)
	return nil
}

func (e *Encoder) encodeByteArray(w *scale.Writer, d *metadata.TypeDef, raw string) error {
	if err := e.ensureByteElem(d.Elem); err != nil {
		return err
	}
	b, err := parseHexBytes(raw)
	if err != nil {
		return err
	}
	if uint32(len(b)) != d.Len {
		return ErrorCodeInvalidArgument.Errorf("invalid hex length expected:%d actual:%d", d.Len, len(b))
	}
	w.WriteRaw(b)
	return nil
}

func (e *Encoder) encodeByteSequence(w *scale.Writer, d *metadata.TypeDef, raw string) error {
	if err := e.ensureByteElem(d.Elem); err != nil {
		return err
	}
	b, err := parseHexBytes(raw)
	if err != nil {
		return err
	}
	w.WriteBytes(b)
	return nil
}

func (e *Encoder) ensureByteElem(id metadata.TypeID) error {
	d, ok := e.reg.Lookup(id)
	if !ok {
		return metadata.ErrorCodeMalformedMetadata.Errorf("not found type id:%d", id)
	}
	if d.Kind != metadata.KindPrimitive || d.Primitive != metadata.PrimU8 {
		return ErrorCodeNotSupportedArgument.Errorf(
			"not supported element type id:%d, only byte containers accept text", id)
	}
	return nil
}

// parseInteger accepts decimal or 0x-prefixed hex, with optional
// underscore separators.
func parseInteger(raw string) (*big.Int, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, ErrorCodeInvalidArgument.Errorf("invalid integer %q", raw)
	}
	return v, nil
}

func parseHexBytes(raw string) ([]byte, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrorCodeInvalidArgument.Wrapf(err, "invalid hex %q, err:%s", raw, err.Error())
	}
	return b, nil
}
