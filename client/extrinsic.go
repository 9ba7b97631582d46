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
	"context"
	"math/big"

	"github.com/icon-project/btp2/common/errors"

	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/scale"
)

const (
	// version byte of a signed v4 extrinsic
	extrinsicSignedV4 = 0x84
	// MultiAddress::Id discriminant
	multiAddressID = 0x00
	// immortal era marker
	eraImmortal = 0x00
	// payloads longer than this sign their blake2b hash instead
	signedPayloadHashLimit = 256

	determinismEnforced = 0x00
)

// SigningContext carries the chain and account state one signature
// binds to.
type SigningContext struct {
	SpecVersion        uint32
	TransactionVersion uint32
	GenesisHash        []byte
	Nonce              uint64
	Tip                *big.Int
}

// NewSigningContext collects the signing state of an account from the
// node.
func NewSigningContext(ctx context.Context, c Client, pub []byte) (*SigningContext, error) {
	rv, err := c.RuntimeVersion(ctx)
	if err != nil {
		return nil, err
	}
	genesis, err := c.GenesisHash(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := c.AccountNonce(ctx, pub)
	if err != nil {
		return nil, err
	}
	return &SigningContext{
		SpecVersion:        rv.SpecVersion,
		TransactionVersion: rv.TransactionVersion,
		GenesisHash:        genesis,
		Nonce:              nonce,
	}, nil
}

// SignExtrinsic wraps a runtime call into a signed v4 extrinsic with an
// immortal era.
func SignExtrinsic(s Signer, call []byte, sc *SigningContext) ([]byte, error) {
	if len(sc.GenesisHash) != 32 {
		return nil, errors.Errorf("invalid genesis hash length %d", len(sc.GenesisHash))
	}
	tip := sc.Tip
	if tip == nil {
		tip = new(big.Int)
	}

	p := scale.NewWriter()
	p.WriteRaw(call)
	p.WriteRaw([]byte{eraImmortal})
	p.WriteCompactUint(sc.Nonce)
	if err := p.WriteCompact(tip); err != nil {
		return nil, errors.Wrapf(err, "invalid tip, err:%s", err.Error())
	}
	p.WriteUint(uint64(sc.SpecVersion), 32)
	p.WriteUint(uint64(sc.TransactionVersion), 32)
	p.WriteRaw(sc.GenesisHash)
	// the immortal era checkpoint is the genesis hash
	p.WriteRaw(sc.GenesisHash)
	payload := p.Bytes()
	if len(payload) > signedPayloadHashLimit {
		payload = Blake2b256(payload)
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return nil, err
	}
	if len(sig) != 64 {
		return nil, errors.Errorf("invalid signature length %d", len(sig))
	}

	b := scale.NewWriter()
	b.WriteRaw([]byte{extrinsicSignedV4})
	b.WriteRaw([]byte{multiAddressID})
	b.WriteRaw(s.PublicKey())
	b.WriteRaw([]byte{s.Scheme()})
	b.WriteRaw(sig)
	b.WriteRaw([]byte{eraImmortal})
	b.WriteCompactUint(sc.Nonce)
	_ = b.WriteCompact(tip)
	b.WriteRaw(call)
	body := b.Bytes()

	w := scale.NewWriter()
	w.WriteCompactUint(uint64(len(body)))
	w.WriteRaw(body)
	return w.Bytes(), nil
}

// ExtrinsicHash is the transaction hash of an encoded extrinsic.
func ExtrinsicHash(extrinsic []byte) []byte {
	return Blake2b256(extrinsic)
}

// BuildContractCall encodes a pallet_contracts call dispatch.
func BuildContractCall(palletIdx, callIdx uint8, dest []byte, value *big.Int,
	gas contract.Weight, depositLimit *big.Int, data []byte) ([]byte, error) {
	if len(dest) != contract.AddressIDLen {
		return nil, contract.ErrorCodeInvalidAddress.Errorf(
			"invalid address length expected:%d actual:%d", contract.AddressIDLen, len(dest))
	}
	w := scale.NewWriter()
	w.WriteRaw([]byte{palletIdx, callIdx})
	w.WriteRaw([]byte{multiAddressID})
	w.WriteRaw(dest)
	if err := writeCompactValue(w, value); err != nil {
		return nil, err
	}
	writeWeight(w, gas)
	if err := writeOptionCompact(w, depositLimit); err != nil {
		return nil, err
	}
	w.WriteBytes(data)
	return w.Bytes(), nil
}

// BuildInstantiateWithCode encodes an instantiate_with_code dispatch,
// uploading the wasm and running a constructor in one step.
func BuildInstantiateWithCode(palletIdx, callIdx uint8, value *big.Int,
	gas contract.Weight, depositLimit *big.Int, code, data, salt []byte) ([]byte, error) {
	w := scale.NewWriter()
	w.WriteRaw([]byte{palletIdx, callIdx})
	if err := writeCompactValue(w, value); err != nil {
		return nil, err
	}
	writeWeight(w, gas)
	if err := writeOptionCompact(w, depositLimit); err != nil {
		return nil, err
	}
	w.WriteBytes(code)
	w.WriteBytes(data)
	w.WriteBytes(salt)
	return w.Bytes(), nil
}

// BuildInstantiate encodes an instantiate dispatch over an already
// uploaded code hash.
func BuildInstantiate(palletIdx, callIdx uint8, value *big.Int,
	gas contract.Weight, depositLimit *big.Int, codeHash, data, salt []byte) ([]byte, error) {
	if len(codeHash) != 32 {
		return nil, errors.Errorf("invalid code hash length %d", len(codeHash))
	}
	w := scale.NewWriter()
	w.WriteRaw([]byte{palletIdx, callIdx})
	if err := writeCompactValue(w, value); err != nil {
		return nil, err
	}
	writeWeight(w, gas)
	if err := writeOptionCompact(w, depositLimit); err != nil {
		return nil, err
	}
	w.WriteRaw(codeHash)
	w.WriteBytes(data)
	w.WriteBytes(salt)
	return w.Bytes(), nil
}

// BuildUploadCode encodes an upload_code dispatch with enforced
// determinism.
func BuildUploadCode(palletIdx, callIdx uint8, code []byte, depositLimit *big.Int) ([]byte, error) {
	w := scale.NewWriter()
	w.WriteRaw([]byte{palletIdx, callIdx})
	w.WriteBytes(code)
	if err := writeOptionCompact(w, depositLimit); err != nil {
		return nil, err
	}
	w.WriteRaw([]byte{determinismEnforced})
	return w.Bytes(), nil
}

// weights travel compact in dispatch arguments
func writeWeight(w *scale.Writer, g contract.Weight) {
	w.WriteCompactUint(g.RefTime)
	w.WriteCompactUint(g.ProofSize)
}

func writeCompactValue(w *scale.Writer, v *big.Int) error {
	if v == nil {
		w.WriteCompactUint(0)
		return nil
	}
	if err := w.WriteCompact(v); err != nil {
		return errors.Wrapf(err, "invalid value, err:%s", err.Error())
	}
	return nil
}

func writeOptionCompact(w *scale.Writer, v *big.Int) error {
	if v == nil {
		w.WriteRaw([]byte{0})
		return nil
	}
	w.WriteRaw([]byte{1})
	if err := w.WriteCompact(v); err != nil {
		return errors.Wrapf(err, "invalid deposit limit, err:%s", err.Error())
	}
	return nil
}
