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
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"

	"github.com/inkforge/inkforge/metadata"
)

type RuntimeVersion struct {
	SpecName           string `json:"specName"`
	ImplName           string `json:"implName"`
	SpecVersion        uint32 `json:"specVersion"`
	ImplVersion        uint32 `json:"implVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

// ChainProperties is the system_properties response. Token fields may be
// scalars or arrays depending on the runtime, so they stay raw until read.
type ChainProperties struct {
	SS58Format    *uint16         `json:"ss58Format"`
	TokenDecimals json.RawMessage `json:"tokenDecimals,omitempty"`
	TokenSymbol   json.RawMessage `json:"tokenSymbol,omitempty"`
}

func (p *ChainProperties) Prefix() uint16 {
	if p == nil || p.SS58Format == nil {
		return 42
	}
	return *p.SS58Format
}

func (p *ChainProperties) Decimals() uint8 {
	if v, ok := firstRawValue(p.TokenDecimals); ok {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			return uint8(n)
		}
	}
	return 12
}

func (p *ChainProperties) Symbol() string {
	if v, ok := firstRawValue(p.TokenSymbol); ok {
		var s string
		if err := json.Unmarshal([]byte(v), &s); err == nil {
			return s
		}
	}
	return "UNIT"
}

func firstRawValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return "", false
		}
		return string(list[0]), true
	}
	return string(raw), true
}

type BlockHeader struct {
	ParentHash     string         `json:"parentHash"`
	Number         hexutil.Uint64 `json:"number"`
	StateRoot      string         `json:"stateRoot"`
	ExtrinsicsRoot string         `json:"extrinsicsRoot"`
}

type SignedBlock struct {
	Block struct {
		Header     BlockHeader `json:"header"`
		Extrinsics []string    `json:"extrinsics"`
	} `json:"block"`
}

// ExtrinsicIndexOf locates an encoded extrinsic inside a block, the
// index event phases refer to.
func ExtrinsicIndexOf(blk *SignedBlock, extrinsic []byte) (uint32, bool) {
	target := hexutil.Encode(extrinsic)
	for i, xt := range blk.Block.Extrinsics {
		if strings.EqualFold(xt, target) {
			return uint32(i), true
		}
	}
	return 0, false
}

// StorageChangeSet is one state_storage notification, pairs of storage
// key and value where a nil value reports a deletion.
type StorageChangeSet struct {
	Block   string       `json:"block"`
	Changes [][2]*string `json:"changes"`
}

const (
	TxStatusFuture          = "future"
	TxStatusReady           = "ready"
	TxStatusBroadcast       = "broadcast"
	TxStatusInBlock         = "inBlock"
	TxStatusRetracted       = "retracted"
	TxStatusFinalityTimeout = "finalityTimeout"
	TxStatusFinalized       = "finalized"
	TxStatusUsurped         = "usurped"
	TxStatusDropped         = "dropped"
	TxStatusInvalid         = "invalid"
)

// TxStatus is one author_extrinsicUpdate notification. Unit statuses
// arrive as bare strings, the rest as single key objects whose value is
// a block hash or peer list.
type TxStatus struct {
	Kind  string
	Value string
}

func (s *TxStatus) UnmarshalJSON(b []byte) error {
	var kind string
	if err := json.Unmarshal(b, &kind); err == nil {
		s.Kind = kind
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return errors.Wrapf(err, "fail to unmarshal transaction status, err:%s", err.Error())
	}
	for k, v := range obj {
		s.Kind = k
		var value string
		if err := json.Unmarshal(v, &value); err == nil {
			s.Value = value
		}
		return nil
	}
	return errors.New("empty transaction status")
}

// Terminal reports whether the pool stops sending updates after this
// status.
func (s *TxStatus) Terminal() bool {
	switch s.Kind {
	case TxStatusFinalized, TxStatusFinalityTimeout, TxStatusUsurped, TxStatusDropped, TxStatusInvalid:
		return true
	}
	return false
}

func (s *TxStatus) Failed() bool {
	switch s.Kind {
	case TxStatusFinalityTimeout, TxStatusUsurped, TxStatusDropped, TxStatusInvalid:
		return true
	}
	return false
}

// Client is the node RPC surface the contract handlers depend on.
type Client interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
	RuntimeVersion(ctx context.Context) (*RuntimeVersion, error)
	GenesisHash(ctx context.Context) ([]byte, error)
	BlockHash(ctx context.Context, number uint64) ([]byte, error)
	FinalizedHead(ctx context.Context) ([]byte, error)
	Block(ctx context.Context, hash []byte) (*SignedBlock, error)
	Header(ctx context.Context, hash []byte) (*BlockHeader, error)
	AccountNonce(ctx context.Context, pub []byte) (uint64, error)
	StateCall(ctx context.Context, method string, data []byte, at []byte) ([]byte, error)
	Storage(ctx context.Context, key []byte, at []byte) ([]byte, error)
	Metadata(ctx context.Context) (*metadata.FrameMetadata, error)
	Properties(ctx context.Context) (*ChainProperties, error)
	SubmitAndWatch(ctx context.Context, extrinsic []byte) (*TxWatcher, error)
	SubscribeFinalizedHeads(ctx context.Context) (*HeadSubscription, error)
	SubscribeStorage(ctx context.Context, keys [][]byte) (*StorageSubscription, error)
}

type rawSubscription interface {
	Chan() <-chan json.RawMessage
	Err() error
	Unsubscribe()
}

// TxWatcher follows the pool status stream of one submitted extrinsic.
type TxWatcher struct {
	sub rawSubscription
}

func NewTxWatcher(sub rawSubscription) *TxWatcher {
	return &TxWatcher{sub: sub}
}

func (w *TxWatcher) Next(ctx context.Context) (*TxStatus, error) {
	raw, err := nextRaw(ctx, w.sub)
	if err != nil {
		return nil, err
	}
	s := &TxStatus{}
	if err = json.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (w *TxWatcher) Unsubscribe() {
	w.sub.Unsubscribe()
}

type HeadSubscription struct {
	sub rawSubscription
}

func NewHeadSubscription(sub rawSubscription) *HeadSubscription {
	return &HeadSubscription{sub: sub}
}

func (s *HeadSubscription) Next(ctx context.Context) (*BlockHeader, error) {
	raw, err := nextRaw(ctx, s.sub)
	if err != nil {
		return nil, err
	}
	h := &BlockHeader{}
	if err = json.Unmarshal(raw, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *HeadSubscription) Unsubscribe() {
	s.sub.Unsubscribe()
}

type StorageSubscription struct {
	sub rawSubscription
}

func NewStorageSubscription(sub rawSubscription) *StorageSubscription {
	return &StorageSubscription{sub: sub}
}

func (s *StorageSubscription) Next(ctx context.Context) (*StorageChangeSet, error) {
	raw, err := nextRaw(ctx, s.sub)
	if err != nil {
		return nil, err
	}
	cs := &StorageChangeSet{}
	if err = json.Unmarshal(raw, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func (s *StorageSubscription) Unsubscribe() {
	s.sub.Unsubscribe()
}

func nextRaw(ctx context.Context, sub rawSubscription) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw, ok := <-sub.Chan():
		if !ok {
			if err := sub.Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("subscription closed")
		}
		return raw, nil
	}
}
