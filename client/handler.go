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
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
	"github.com/inkforge/inkforge/scale"
)

const (
	ContractsPalletName = "Contracts"
	callRuntimeAPI      = "ContractsApi_call"
)

var (
	DefaultCallGas   = contract.Weight{RefTime: 3_000_000_000, ProofSize: 1_000_000}
	DefaultDeployGas = contract.Weight{RefTime: 5_000_000_000, ProofSize: 2_000_000}

	zeroSalt [32]byte

	// dry runs without an explicit origin run as the alice dev account
	defaultQueryOrigin = func() []byte {
		s, err := DevSigner("alice")
		if err != nil {
			log.Panicf("fail to load default origin err:%v", err)
		}
		return s.PublicKey()
	}()
)

// Handler binds one contract document to an address on a chain and
// drives its messages and constructors through the node.
type Handler struct {
	doc     *metadata.Document
	address contract.Address
	pallet  string
	c       Client
	l       log.Logger
}

func NewHandler(doc *metadata.Document, address contract.Address, c Client, l log.Logger) *Handler {
	return &Handler{
		doc:     doc,
		address: address,
		c:       c,
		l:       l,
	}
}

func (h *Handler) Document() *metadata.Document {
	return h.doc
}

func (h *Handler) Address() contract.Address {
	return h.address
}

// SetPallet overrides the dispatch pallet name for chains that mount
// the contracts pallet under another name.
func (h *Handler) SetPallet(name string) {
	h.pallet = name
}

func (h *Handler) palletName() string {
	if h.pallet != "" {
		return h.pallet
	}
	return ContractsPalletName
}

type QueryOptions struct {
	Origin contract.Address
	Value  *big.Int
	// At pins the dry run to a block hash
	At []byte
}

type QueryResult struct {
	Output      interface{}
	Debug       string
	GasConsumed contract.Weight
	GasRequired contract.Weight
	Reverted    bool
}

// Query dry runs a message through the call runtime API and decodes
// its return value. Mutating messages are allowed, nothing is
// committed.
func (h *Handler) Query(ctx context.Context, method string, args []string, opts *QueryOptions) (*QueryResult, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	data, m, err := contract.BuildCall(h.doc, method, args)
	if err != nil {
		return nil, err
	}
	origin := defaultQueryOrigin
	if len(opts.Origin) > 0 {
		if origin, err = opts.Origin.Bytes(); err != nil {
			return nil, err
		}
	}
	dest, err := h.address.Bytes()
	if err != nil {
		return nil, err
	}
	exec, err := h.dryRun(ctx, origin, dest, opts.Value, data, opts.At)
	if err != nil {
		return nil, err
	}
	if err = exec.Err(); err != nil {
		return nil, err
	}
	ret := &QueryResult{
		Debug:       exec.DebugMessage,
		GasConsumed: exec.GasConsumed,
		GasRequired: exec.GasRequired,
		Reverted:    exec.Reverted(),
	}
	if ret.Output, err = contract.DecodeReturn(h.doc, m, exec.Data); err != nil {
		return nil, err
	}
	return ret, nil
}

// DryRun executes a message without committing state and returns the
// raw execution result, gas figures included.
func (h *Handler) DryRun(ctx context.Context, method string, args []string, opts *QueryOptions) (*contract.ExecResult, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	data, _, err := contract.BuildCall(h.doc, method, args)
	if err != nil {
		return nil, err
	}
	origin := defaultQueryOrigin
	if len(opts.Origin) > 0 {
		if origin, err = opts.Origin.Bytes(); err != nil {
			return nil, err
		}
	}
	dest, err := h.address.Bytes()
	if err != nil {
		return nil, err
	}
	return h.dryRun(ctx, origin, dest, opts.Value, data, opts.At)
}

func (h *Handler) dryRun(ctx context.Context, origin, dest []byte, value *big.Int, data []byte, at []byte) (*contract.ExecResult, error) {
	in, err := encodeCallRequest(origin, dest, value, data)
	if err != nil {
		return nil, err
	}
	raw, err := h.c.StateCall(ctx, callRuntimeAPI, in, at)
	if err != nil {
		return nil, err
	}
	return contract.DecodeExecResult(raw)
}

func encodeCallRequest(origin, dest []byte, value *big.Int, data []byte) ([]byte, error) {
	if len(origin) != contract.AddressIDLen {
		return nil, contract.ErrorCodeInvalidAddress.Errorf(
			"invalid origin length expected:%d actual:%d", contract.AddressIDLen, len(origin))
	}
	if len(dest) != contract.AddressIDLen {
		return nil, contract.ErrorCodeInvalidAddress.Errorf(
			"invalid dest length expected:%d actual:%d", contract.AddressIDLen, len(dest))
	}
	if value == nil {
		value = new(big.Int)
	}
	w := scale.NewWriter()
	w.WriteRaw(origin)
	w.WriteRaw(dest)
	if err := w.WriteBigUint(value, 128); err != nil {
		return nil, errors.Wrapf(err, "invalid value, err:%s", err.Error())
	}
	// gas and storage deposit limits stay None
	w.WriteRaw([]byte{0, 0})
	w.WriteBytes(data)
	return w.Bytes(), nil
}

type InvokeOptions struct {
	Signer              Signer
	Value               *big.Int
	GasLimit            *contract.Weight
	StorageDepositLimit *big.Int
	Tip                 *big.Int
}

type InvokeResult struct {
	TxHash         string
	BlockHash      string
	ExtrinsicIndex uint32
	Events         []contract.DecodedEvent
}

// Invoke signs and submits a mutating message and waits until it is
// finalized, returning the contract events of that extrinsic.
func (h *Handler) Invoke(ctx context.Context, method string, args []string, opts *InvokeOptions) (*InvokeResult, error) {
	if opts == nil || opts.Signer == nil {
		return nil, errors.New("required signer")
	}
	data, m, err := contract.BuildCall(h.doc, method, args)
	if err != nil {
		return nil, err
	}
	if !m.Mutates {
		return nil, contract.ErrorCodeMismatchReadonly.Errorf(
			"mismatch readonly method %s, use query", method)
	}
	dest, err := h.address.Bytes()
	if err != nil {
		return nil, err
	}
	meta, err := h.c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	pi, ci, err := meta.CallIndex(h.palletName(), "call")
	if err != nil {
		return nil, err
	}
	gas := DefaultCallGas
	if opts.GasLimit != nil {
		gas = *opts.GasLimit
	}
	call, err := BuildContractCall(pi, ci, dest, opts.Value, gas, opts.StorageDepositLimit, data)
	if err != nil {
		return nil, err
	}
	sub, err := h.submitAndFinalize(ctx, opts.Signer, call, opts.Tip)
	if err != nil {
		return nil, err
	}
	events, err := h.contractEvents(sub.events, sub.index, dest)
	if err != nil {
		return nil, err
	}
	return &InvokeResult{
		TxHash:         sub.txHash,
		BlockHash:      hexutil.Encode(sub.blockHash),
		ExtrinsicIndex: sub.index,
		Events:         events,
	}, nil
}

type DeployOptions struct {
	Signer              Signer
	Value               *big.Int
	GasLimit            *contract.Weight
	StorageDepositLimit *big.Int
	Salt                []byte
	Tip                 *big.Int
}

type DeployResult struct {
	TxHash    string
	BlockHash string
	Address   contract.Address
	Events    []contract.DecodedEvent
}

// Deploy uploads wasm code and runs a constructor in one dispatch. An
// empty constructor label selects the default constructor.
func (h *Handler) Deploy(ctx context.Context, code []byte, constructor string, args []string, opts *DeployOptions) (*DeployResult, error) {
	if opts == nil || opts.Signer == nil {
		return nil, errors.New("required signer")
	}
	data, _, err := contract.BuildDeploy(h.doc, constructor, args)
	if err != nil {
		return nil, err
	}
	meta, err := h.c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	pi, ci, err := meta.CallIndex(h.palletName(), "instantiate_with_code")
	if err != nil {
		return nil, err
	}
	call, err := BuildInstantiateWithCode(pi, ci, opts.Value, deployGas(opts), opts.StorageDepositLimit,
		code, data, deploySalt(opts))
	if err != nil {
		return nil, err
	}
	return h.finishDeploy(ctx, call, opts)
}

// Instantiate runs a constructor over an already uploaded code hash.
func (h *Handler) Instantiate(ctx context.Context, codeHash []byte, constructor string, args []string, opts *DeployOptions) (*DeployResult, error) {
	if opts == nil || opts.Signer == nil {
		return nil, errors.New("required signer")
	}
	data, _, err := contract.BuildDeploy(h.doc, constructor, args)
	if err != nil {
		return nil, err
	}
	meta, err := h.c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	pi, ci, err := meta.CallIndex(h.palletName(), "instantiate")
	if err != nil {
		return nil, err
	}
	call, err := BuildInstantiate(pi, ci, opts.Value, deployGas(opts), opts.StorageDepositLimit,
		codeHash, data, deploySalt(opts))
	if err != nil {
		return nil, err
	}
	return h.finishDeploy(ctx, call, opts)
}

func deployGas(opts *DeployOptions) contract.Weight {
	if opts.GasLimit != nil {
		return *opts.GasLimit
	}
	return DefaultDeployGas
}

func deploySalt(opts *DeployOptions) []byte {
	if opts.Salt != nil {
		return opts.Salt
	}
	return zeroSalt[:]
}

func (h *Handler) finishDeploy(ctx context.Context, call []byte, opts *DeployOptions) (*DeployResult, error) {
	sub, err := h.submitAndFinalize(ctx, opts.Signer, call, opts.Tip)
	if err != nil {
		return nil, err
	}
	pub, ok := InstantiatedAddress(sub.events, sub.index)
	if !ok {
		return nil, errors.Errorf("not found Instantiated event of %s", sub.txHash)
	}
	props, err := h.c.Properties(ctx)
	if err != nil {
		return nil, err
	}
	addr, err := contract.AddressOf(pub, props.Prefix())
	if err != nil {
		return nil, err
	}
	events, err := h.contractEvents(sub.events, sub.index, pub)
	if err != nil {
		return nil, err
	}
	h.l.Debugf("deployed %s tx:%s block:%s", addr, sub.txHash, hexutil.Encode(sub.blockHash))
	return &DeployResult{
		TxHash:    sub.txHash,
		BlockHash: hexutil.Encode(sub.blockHash),
		Address:   addr,
		Events:    events,
	}, nil
}

type UploadOptions struct {
	Signer              Signer
	StorageDepositLimit *big.Int
	Tip                 *big.Int
}

type UploadResult struct {
	TxHash    string
	BlockHash string
	CodeHash  string
}

// UploadCode stores wasm code on chain without instantiating it.
func (h *Handler) UploadCode(ctx context.Context, code []byte, opts *UploadOptions) (*UploadResult, error) {
	if opts == nil || opts.Signer == nil {
		return nil, errors.New("required signer")
	}
	meta, err := h.c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	pi, ci, err := meta.CallIndex(h.palletName(), "upload_code")
	if err != nil {
		return nil, err
	}
	call, err := BuildUploadCode(pi, ci, code, opts.StorageDepositLimit)
	if err != nil {
		return nil, err
	}
	sub, err := h.submitAndFinalize(ctx, opts.Signer, call, opts.Tip)
	if err != nil {
		return nil, err
	}
	hash, ok := StoredCodeHash(sub.events, sub.index)
	if !ok {
		// the code hash is the blake2b of the wasm either way
		hash = Blake2b256(code)
	}
	return &UploadResult{
		TxHash:    sub.txHash,
		BlockHash: hexutil.Encode(sub.blockHash),
		CodeHash:  hexutil.Encode(hash),
	}, nil
}

type submission struct {
	txHash    string
	blockHash []byte
	index     uint32
	events    []*ChainEvent
}

// submitAndFinalize signs a call, submits it and follows the pool
// stream until the extrinsic lands in a finalized block whose events
// report no dispatch failure.
func (h *Handler) submitAndFinalize(ctx context.Context, s Signer, call []byte, tip *big.Int) (*submission, error) {
	sc, err := NewSigningContext(ctx, h.c, s.PublicKey())
	if err != nil {
		return nil, err
	}
	sc.Tip = tip
	xt, err := SignExtrinsic(s, call, sc)
	if err != nil {
		return nil, err
	}
	txHash := hexutil.Encode(ExtrinsicHash(xt))
	h.l.Debugf("submit extrinsic hash:%s len:%d nonce:%d", txHash, len(xt), sc.Nonce)
	w, err := h.c.SubmitAndWatch(ctx, xt)
	if err != nil {
		return nil, err
	}
	defer w.Unsubscribe()
	var blockHash []byte
	for blockHash == nil {
		st, err := w.Next(ctx)
		if err != nil {
			return nil, err
		}
		h.l.Tracef("tx %s status:%s value:%s", txHash, st.Kind, st.Value)
		if st.Failed() {
			return nil, contract.ErrorCodeExecutionFailed.Errorf("transaction %s %s", txHash, st.Kind)
		}
		if st.Kind == TxStatusFinalized {
			if blockHash, err = hexutil.Decode(st.Value); err != nil {
				return nil, err
			}
		}
	}
	blk, err := h.c.Block(ctx, blockHash)
	if err != nil {
		return nil, err
	}
	idx, ok := ExtrinsicIndexOf(blk, xt)
	if !ok {
		return nil, errors.Errorf("not found extrinsic %s in block %s", txHash, hexutil.Encode(blockHash))
	}
	meta, err := h.c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	var events []*ChainEvent
	raw, err := h.c.Storage(ctx, SystemEventsKey(), blockHash)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if events, err = DecodeSystemEvents(meta, raw); err != nil {
			return nil, err
		}
	}
	if err = ExtrinsicDispatchError(meta, events, idx); err != nil {
		return nil, err
	}
	return &submission{
		txHash:    txHash,
		blockHash: blockHash,
		index:     idx,
		events:    events,
	}, nil
}

// contractEvents decodes the ContractEmitted payloads of one contract
// against its document. Payloads that do not decode are skipped, other
// versions of the event schema may share the chain.
func (h *Handler) contractEvents(events []*ChainEvent, idx uint32, contractPub []byte) ([]contract.DecodedEvent, error) {
	emitted, err := ContractEmittedEvents(events, idx)
	if err != nil {
		return nil, err
	}
	var out []contract.DecodedEvent
	for _, em := range emitted {
		if !bytes.Equal(em.Contract, contractPub) {
			continue
		}
		de, err := contract.DecodeEvent(h.doc, em.Data)
		if err != nil {
			h.l.Warnf("fail to decode contract event err:%+v", err)
			continue
		}
		out = append(out, *de)
	}
	return out, nil
}
