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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"
	"github.com/stretchr/testify/assert"

	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
	"github.com/inkforge/inkforge/scale"
)

const flipperDocJSON = `{
 "source":{"hash":"0x00","language":"ink! 4.2.0"},
 "contract":{"name":"flipper","version":"1.0.0"},
 "spec":{
  "constructors":[
   {"label":"new","selector":"0x9bae9d5e","args":[{"label":"init_value","type":{"type":0}}],"default":true},
   {"label":"default","selector":"0xed4b9d1b","args":[]}
  ],
  "messages":[
   {"label":"get","selector":"0x2f865bd9","args":[],"returnType":{"type":0}},
   {"label":"flip","selector":"0x633aa551","args":[],"mutates":true}
  ],
  "events":[
   {"label":"Flipped","args":[{"label":"value","type":{"type":0}}]}
  ]
 },
 "types":[
  {"id":0,"type":{"def":{"primitive":"bool"}}}
 ],
 "version":"4"
}`

type fakeSub struct {
	ch  chan json.RawMessage
	err error
}

func (s *fakeSub) Chan() <-chan json.RawMessage { return s.ch }
func (s *fakeSub) Err() error                   { return s.err }
func (s *fakeSub) Unsubscribe()                 {}

func newFakeSub(raw ...string) *fakeSub {
	s := &fakeSub{ch: make(chan json.RawMessage, len(raw))}
	for _, m := range raw {
		s.ch <- json.RawMessage(m)
	}
	return s
}

// fakeChain implements Client over canned responses.
type fakeChain struct {
	meta      *metadata.FrameMetadata
	genesis   []byte
	nonce     uint64
	stateCall func(method string, data, at []byte) ([]byte, error)
	storage   func(key, at []byte) ([]byte, error)
	block     func(hash []byte) (*SignedBlock, error)
	blockHash func(number uint64) ([]byte, error)
	heads     *fakeSub
	statuses  []string
	submitted [][]byte
}

func (c *fakeChain) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return errors.New("not supported")
}

func (c *fakeChain) RuntimeVersion(ctx context.Context) (*RuntimeVersion, error) {
	return &RuntimeVersion{SpecName: "dev", SpecVersion: 100, TransactionVersion: 1}, nil
}

func (c *fakeChain) GenesisHash(ctx context.Context) ([]byte, error) {
	return c.genesis, nil
}

func (c *fakeChain) BlockHash(ctx context.Context, number uint64) ([]byte, error) {
	if c.blockHash == nil {
		return nil, errors.New("not supported")
	}
	return c.blockHash(number)
}

func (c *fakeChain) FinalizedHead(ctx context.Context) ([]byte, error) {
	return c.genesis, nil
}

func (c *fakeChain) Block(ctx context.Context, hash []byte) (*SignedBlock, error) {
	return c.block(hash)
}

func (c *fakeChain) Header(ctx context.Context, hash []byte) (*BlockHeader, error) {
	return nil, errors.New("not supported")
}

func (c *fakeChain) AccountNonce(ctx context.Context, pub []byte) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeChain) StateCall(ctx context.Context, method string, data, at []byte) ([]byte, error) {
	return c.stateCall(method, data, at)
}

func (c *fakeChain) Storage(ctx context.Context, key, at []byte) ([]byte, error) {
	return c.storage(key, at)
}

func (c *fakeChain) Metadata(ctx context.Context) (*metadata.FrameMetadata, error) {
	return c.meta, nil
}

func (c *fakeChain) Properties(ctx context.Context) (*ChainProperties, error) {
	return &ChainProperties{}, nil
}

func (c *fakeChain) SubmitAndWatch(ctx context.Context, extrinsic []byte) (*TxWatcher, error) {
	c.submitted = append(c.submitted, extrinsic)
	return NewTxWatcher(newFakeSub(c.statuses...)), nil
}

func (c *fakeChain) SubscribeFinalizedHeads(ctx context.Context) (*HeadSubscription, error) {
	if c.heads == nil {
		return nil, errors.New("not supported")
	}
	return NewHeadSubscription(c.heads), nil
}

func (c *fakeChain) SubscribeStorage(ctx context.Context, keys [][]byte) (*StorageSubscription, error) {
	return nil, errors.New("not supported")
}

func encodeExecResult(disc byte, debug string, data []byte) []byte {
	w := scale.NewWriter()
	w.WriteUint(100, 64)
	w.WriteUint(10, 64)
	w.WriteUint(200, 64)
	w.WriteUint(20, 64)
	w.WriteRaw([]byte{0x00}) // deposit refund
	w.WriteString(debug)
	w.WriteRaw([]byte{disc})
	if disc == 0 {
		w.WriteUint(0, 32)
		w.WriteBytes(data)
	}
	return w.Bytes()
}

func testHandler(t *testing.T, c Client) *Handler {
	doc := metadata.MustNewDocument([]byte(flipperDocJSON))
	return NewHandler(doc, contract.HexAddressOf(testContractPub), c, testLogger())
}

func TestHandlerQuery(t *testing.T) {
	fc := &fakeChain{meta: testChainMeta(t)}
	fc.stateCall = func(method string, data, at []byte) ([]byte, error) {
		assert.Equal(t, "ContractsApi_call", method)
		assert.Nil(t, at)

		r := scale.NewReader(data)
		origin, err := r.ReadBytes(32)
		assert.NoError(t, err)
		assert.Equal(t, alicePub, origin)
		dest, err := r.ReadBytes(32)
		assert.NoError(t, err)
		assert.Equal(t, testContractPub, dest)
		value, err := r.ReadBigUint(128)
		assert.NoError(t, err)
		assert.Zero(t, value.Sign())
		opts, err := r.ReadBytes(2)
		assert.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x00}, opts)
		input, err := r.ReadByteSlice()
		assert.NoError(t, err)
		assert.Equal(t, hexutil.MustDecode("0x2f865bd9"), input)
		assert.Zero(t, r.Remaining())

		return encodeExecResult(0, "", []byte{0x01}), nil
	}
	h := testHandler(t, fc)

	ret, err := h.Query(context.Background(), "get", nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, true, ret.Output)
	assert.Equal(t, contract.Weight{RefTime: 100, ProofSize: 10}, ret.GasConsumed)
	assert.Equal(t, contract.Weight{RefTime: 200, ProofSize: 20}, ret.GasRequired)
	assert.False(t, ret.Reverted)
}

func TestHandlerQueryOptions(t *testing.T) {
	fc := &fakeChain{meta: testChainMeta(t)}
	bob, err := DevSigner("bob")
	assert.NoError(t, err)
	at := bytes.Repeat([]byte{0xa0}, 32)
	fc.stateCall = func(method string, data, in []byte) ([]byte, error) {
		assert.Equal(t, at, in)
		r := scale.NewReader(data)
		origin, err := r.ReadBytes(32)
		assert.NoError(t, err)
		assert.Equal(t, bob.PublicKey(), origin)
		_, err = r.ReadBytes(32)
		assert.NoError(t, err)
		value, err := r.ReadBigUint(128)
		assert.NoError(t, err)
		assert.Equal(t, int64(500), value.Int64())
		return encodeExecResult(0, "", []byte{0x00}), nil
	}
	h := testHandler(t, fc)

	ret, err := h.Query(context.Background(), "get", nil, &QueryOptions{
		Origin: contract.HexAddressOf(bob.PublicKey()),
		Value:  big.NewInt(500),
		At:     at,
	})
	assert.NoError(t, err)
	assert.Equal(t, false, ret.Output)
}

func TestHandlerQueryFailure(t *testing.T) {
	fc := &fakeChain{meta: testChainMeta(t)}
	fc.stateCall = func(method string, data, at []byte) ([]byte, error) {
		return encodeExecResult(1, "out of gas", nil), nil
	}
	h := testHandler(t, fc)

	_, err := h.Query(context.Background(), "get", nil, nil)
	assert.Error(t, err)
	assert.Equal(t, contract.ErrorCodeExecutionFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "out of gas")

	_, err = h.Query(context.Background(), "missing", nil, nil)
	assert.Equal(t, contract.ErrorCodeNotFoundMethod, errors.CodeOf(err))
}

func TestHandlerDryRunReverted(t *testing.T) {
	fc := &fakeChain{meta: testChainMeta(t)}
	fc.stateCall = func(method string, data, at []byte) ([]byte, error) {
		w := scale.NewWriter()
		w.WriteUint(1, 64)
		w.WriteUint(1, 64)
		w.WriteUint(1, 64)
		w.WriteUint(1, 64)
		w.WriteRaw([]byte{0x00})
		w.WriteString("reverted")
		w.WriteRaw([]byte{0x00})
		w.WriteUint(1, 32) // revert flag
		w.WriteBytes([]byte{0x01})
		return w.Bytes(), nil
	}
	h := testHandler(t, fc)

	exec, err := h.DryRun(context.Background(), "get", nil, nil)
	assert.NoError(t, err)
	assert.True(t, exec.Success)
	assert.True(t, exec.Reverted())
	assert.Equal(t, "reverted", exec.DebugMessage)
}

// finalizingChain wires the fake for a full submit and finalize round,
// placing the submitted extrinsic at index 1 of the finalized block.
func finalizingChain(t *testing.T, meta *metadata.FrameMetadata, events []byte) (*fakeChain, []byte) {
	blockHash := bytes.Repeat([]byte{0xb1}, 32)
	fc := &fakeChain{
		meta:    meta,
		genesis: bytes.Repeat([]byte{0x47}, 32),
		nonce:   3,
		statuses: []string{
			`"ready"`,
			fmt.Sprintf(`{"inBlock":%q}`, hexutil.Encode(blockHash)),
			fmt.Sprintf(`{"finalized":%q}`, hexutil.Encode(blockHash)),
		},
	}
	fc.block = func(hash []byte) (*SignedBlock, error) {
		assert.Equal(t, blockHash, hash)
		blk := &SignedBlock{}
		blk.Block.Extrinsics = []string{"0x0400", hexutil.Encode(fc.submitted[0])}
		return blk, nil
	}
	fc.storage = func(key, at []byte) ([]byte, error) {
		assert.Equal(t, SystemEventsKey(), key)
		assert.Equal(t, blockHash, at)
		return events, nil
	}
	return fc, blockHash
}

func TestHandlerInvoke(t *testing.T) {
	meta := testChainMeta(t)
	events := encodeEvents(
		recordAt(1, contractEmitted(testContractPub, []byte{0x00, 0x01})),
		recordAt(1, contractEmitted(bytes.Repeat([]byte{0xee}, 32), []byte{0x00, 0x00})),
		recordAt(1, extrinsicSuccess()),
	)
	fc, blockHash := finalizingChain(t, meta, events)
	h := testHandler(t, fc)

	signer, err := DevSigner("alice")
	assert.NoError(t, err)
	ret, err := h.Invoke(context.Background(), "flip", nil, &InvokeOptions{Signer: signer})
	assert.NoError(t, err)
	assert.Equal(t, hexutil.Encode(blockHash), ret.BlockHash)
	assert.Equal(t, uint32(1), ret.ExtrinsicIndex)
	assert.Equal(t, hexutil.Encode(ExtrinsicHash(fc.submitted[0])), ret.TxHash)
	assert.Len(t, ret.Events, 1)
	assert.Equal(t, "Flipped", ret.Events[0].Label)
	assert.Equal(t, true, ret.Events[0].Args[0].Value)

	// the dispatch carries the Contracts.call index from chain metadata
	r := scale.NewReader(fc.submitted[0])
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadBytes(2 + 32 + 1 + 64 + 1)
	assert.NoError(t, err)
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadCompact()
	assert.NoError(t, err)
	call, err := r.ReadBytes(2)
	assert.NoError(t, err)
	assert.Equal(t, []byte{8, 6}, call)
}

func TestHandlerInvokeReadonly(t *testing.T) {
	fc := &fakeChain{meta: testChainMeta(t)}
	h := testHandler(t, fc)
	signer, err := DevSigner("alice")
	assert.NoError(t, err)

	_, err = h.Invoke(context.Background(), "get", nil, &InvokeOptions{Signer: signer})
	assert.Equal(t, contract.ErrorCodeMismatchReadonly, errors.CodeOf(err))

	_, err = h.Invoke(context.Background(), "flip", nil, nil)
	assert.Error(t, err)
}

func TestHandlerInvokeDropped(t *testing.T) {
	meta := testChainMeta(t)
	fc, _ := finalizingChain(t, meta, encodeEvents())
	fc.statuses = []string{`"ready"`, `"dropped"`}
	h := testHandler(t, fc)
	signer, err := DevSigner("alice")
	assert.NoError(t, err)

	_, err = h.Invoke(context.Background(), "flip", nil, &InvokeOptions{Signer: signer})
	assert.Error(t, err)
	assert.Equal(t, contract.ErrorCodeExecutionFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), TxStatusDropped)
}

func TestHandlerInvokeDispatchError(t *testing.T) {
	meta := testChainMeta(t)
	events := encodeEvents(recordAt(1, extrinsicFailedModule(8, 7)))
	fc, _ := finalizingChain(t, meta, events)
	h := testHandler(t, fc)
	signer, err := DevSigner("alice")
	assert.NoError(t, err)

	_, err = h.Invoke(context.Background(), "flip", nil, &InvokeOptions{Signer: signer})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Contracts.OutOfGas")
}

func TestHandlerDeploy(t *testing.T) {
	meta := testChainMeta(t)
	events := encodeEvents(
		recordAt(1, instantiated(alicePub, testContractPub)),
		recordAt(1, contractEmitted(testContractPub, []byte{0x00, 0x01})),
	)
	fc, _ := finalizingChain(t, meta, events)
	h := testHandler(t, fc)
	signer, err := DevSigner("alice")
	assert.NoError(t, err)

	code := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	ret, err := h.Deploy(context.Background(), code, "", []string{"true"}, &DeployOptions{Signer: signer})
	assert.NoError(t, err)
	expected, err := contract.AddressOf(testContractPub, 42)
	assert.NoError(t, err)
	assert.Equal(t, expected, ret.Address)
	assert.Len(t, ret.Events, 1)
	assert.Equal(t, "Flipped", ret.Events[0].Label)

	// instantiate_with_code body carries code, data and the default salt
	xt := fc.submitted[0]
	r := scale.NewReader(xt)
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadBytes(2 + 32 + 1 + 64 + 1)
	assert.NoError(t, err)
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadCompact()
	assert.NoError(t, err)
	call, err := r.ReadBytes(2)
	assert.NoError(t, err)
	assert.Equal(t, []byte{8, 7}, call)
	_, err = r.ReadCompact()
	assert.NoError(t, err)
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadByte()
	assert.NoError(t, err)
	gotCode, err := r.ReadByteSlice()
	assert.NoError(t, err)
	assert.Equal(t, code, gotCode)
	data, err := r.ReadByteSlice()
	assert.NoError(t, err)
	assert.Equal(t, append(hexutil.MustDecode("0x9bae9d5e"), 0x01), data)
	salt, err := r.ReadByteSlice()
	assert.NoError(t, err)
	assert.Equal(t, zeroSalt[:], salt)
}

func TestHandlerDeployMissingInstantiated(t *testing.T) {
	meta := testChainMeta(t)
	fc, _ := finalizingChain(t, meta, encodeEvents(recordAt(1, extrinsicSuccess())))
	h := testHandler(t, fc)
	signer, err := DevSigner("alice")
	assert.NoError(t, err)

	_, err = h.Deploy(context.Background(), []byte{0x00}, "", []string{"true"}, &DeployOptions{Signer: signer})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Instantiated")
}

func TestHandlerInstantiate(t *testing.T) {
	meta := testChainMeta(t)
	events := encodeEvents(recordAt(1, instantiated(alicePub, testContractPub)))
	fc, _ := finalizingChain(t, meta, events)
	h := testHandler(t, fc)
	signer, err := DevSigner("alice")
	assert.NoError(t, err)

	codeHash := Blake2b256([]byte("wasm"))
	salt := bytes.Repeat([]byte{0x5a}, 32)
	_, err = h.Instantiate(context.Background(), codeHash, "default", nil,
		&DeployOptions{Signer: signer, Salt: salt})
	assert.NoError(t, err)

	r := scale.NewReader(fc.submitted[0])
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadBytes(2 + 32 + 1 + 64 + 1)
	assert.NoError(t, err)
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadCompact()
	assert.NoError(t, err)
	call, err := r.ReadBytes(2)
	assert.NoError(t, err)
	assert.Equal(t, []byte{8, 8}, call)
	_, err = r.ReadCompact()
	assert.NoError(t, err)
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadCompactUint()
	assert.NoError(t, err)
	_, err = r.ReadByte()
	assert.NoError(t, err)
	gotHash, err := r.ReadBytes(32)
	assert.NoError(t, err)
	assert.Equal(t, codeHash, gotHash)
	data, err := r.ReadByteSlice()
	assert.NoError(t, err)
	assert.Equal(t, hexutil.MustDecode("0xed4b9d1b"), data)
	gotSalt, err := r.ReadByteSlice()
	assert.NoError(t, err)
	assert.Equal(t, salt, gotSalt)
}

func TestHandlerUploadCode(t *testing.T) {
	meta := testChainMeta(t)
	code := []byte{0x00, 0x61, 0x73, 0x6d}
	hash := Blake2b256([]byte("stored"))
	fc, _ := finalizingChain(t, meta, encodeEvents(recordAt(1, codeStored(hash))))
	h := testHandler(t, fc)
	signer, err := DevSigner("alice")
	assert.NoError(t, err)

	ret, err := h.UploadCode(context.Background(), code, &UploadOptions{Signer: signer})
	assert.NoError(t, err)
	assert.Equal(t, hexutil.Encode(hash), ret.CodeHash)
}

func TestHandlerUploadCodeHashFallback(t *testing.T) {
	meta := testChainMeta(t)
	code := []byte{0x00, 0x61, 0x73, 0x6d}
	fc, _ := finalizingChain(t, meta, encodeEvents(recordAt(1, extrinsicSuccess())))
	h := testHandler(t, fc)
	signer, err := DevSigner("alice")
	assert.NoError(t, err)

	ret, err := h.UploadCode(context.Background(), code, &UploadOptions{Signer: signer})
	assert.NoError(t, err)
	assert.Equal(t, hexutil.Encode(Blake2b256(code)), ret.CodeHash)
}
