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
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
)

// Adaptor talks to one substrate node. Request and response calls go
// through the go-ethereum rpc client, which passes method names through
// verbatim. Subscriptions need substrate notification method names and
// run over an own websocket connection.
type Adaptor struct {
	endpoint string
	rc       *rpc.Client
	l        log.Logger

	mtx     sync.Mutex
	ws      *WSClient
	meta    *metadata.FrameMetadata
	genesis []byte
	rv      *RuntimeVersion
	props   *ChainProperties
}

func NewAdaptor(ctx context.Context, endpoint string, l log.Logger) (*Adaptor, error) {
	rc, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to dial %s, err:%s", endpoint, err.Error())
	}
	return &Adaptor{
		endpoint: endpoint,
		rc:       rc,
		l:        l,
	}, nil
}

func (a *Adaptor) Endpoint() string {
	return a.endpoint
}

func (a *Adaptor) Close() {
	a.rc.Close()
	a.mtx.Lock()
	ws := a.ws
	a.ws = nil
	a.mtx.Unlock()
	if ws != nil {
		if err := ws.Close(); err != nil {
			a.l.Debugf("fail to close websocket err:%+v", err)
		}
	}
}

func (a *Adaptor) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return a.rc.CallContext(ctx, result, method, params...)
}

func (a *Adaptor) RuntimeVersion(ctx context.Context) (*RuntimeVersion, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.rv != nil {
		return a.rv, nil
	}
	rv := &RuntimeVersion{}
	if err := a.rc.CallContext(ctx, rv, "state_getRuntimeVersion"); err != nil {
		return nil, errors.Wrapf(err, "fail to state_getRuntimeVersion err:%s", err.Error())
	}
	a.l.Debugf("runtime %s spec:%d tx:%d", rv.SpecName, rv.SpecVersion, rv.TransactionVersion)
	a.rv = rv
	return rv, nil
}

func (a *Adaptor) GenesisHash(ctx context.Context) ([]byte, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.genesis != nil {
		return a.genesis, nil
	}
	h, err := a.blockHash(ctx, 0)
	if err != nil {
		return nil, err
	}
	a.genesis = h
	return h, nil
}

func (a *Adaptor) BlockHash(ctx context.Context, number uint64) ([]byte, error) {
	return a.blockHash(ctx, number)
}

func (a *Adaptor) blockHash(ctx context.Context, number uint64) ([]byte, error) {
	var s *string
	if err := a.rc.CallContext(ctx, &s, "chain_getBlockHash", number); err != nil {
		return nil, errors.Wrapf(err, "fail to chain_getBlockHash err:%s", err.Error())
	}
	if s == nil {
		return nil, errors.Errorf("not found block number:%d", number)
	}
	return hexutil.Decode(*s)
}

func (a *Adaptor) FinalizedHead(ctx context.Context) ([]byte, error) {
	var s string
	if err := a.rc.CallContext(ctx, &s, "chain_getFinalizedHead"); err != nil {
		return nil, errors.Wrapf(err, "fail to chain_getFinalizedHead err:%s", err.Error())
	}
	return hexutil.Decode(s)
}

func (a *Adaptor) Block(ctx context.Context, hash []byte) (*SignedBlock, error) {
	var blk *SignedBlock
	if err := a.rc.CallContext(ctx, &blk, "chain_getBlock", hexutil.Encode(hash)); err != nil {
		return nil, errors.Wrapf(err, "fail to chain_getBlock err:%s", err.Error())
	}
	if blk == nil {
		return nil, errors.Errorf("not found block hash:%s", hexutil.Encode(hash))
	}
	return blk, nil
}

func (a *Adaptor) Header(ctx context.Context, hash []byte) (*BlockHeader, error) {
	var h *BlockHeader
	if err := a.rc.CallContext(ctx, &h, "chain_getHeader", hexutil.Encode(hash)); err != nil {
		return nil, errors.Wrapf(err, "fail to chain_getHeader err:%s", err.Error())
	}
	if h == nil {
		return nil, errors.Errorf("not found header hash:%s", hexutil.Encode(hash))
	}
	return h, nil
}

func (a *Adaptor) AccountNonce(ctx context.Context, pub []byte) (uint64, error) {
	props, err := a.Properties(ctx)
	if err != nil {
		return 0, err
	}
	addr, err := contract.AddressOf(pub, props.Prefix())
	if err != nil {
		return 0, err
	}
	var nonce uint64
	if err = a.rc.CallContext(ctx, &nonce, "system_accountNextIndex", string(addr)); err != nil {
		return 0, errors.Wrapf(err, "fail to system_accountNextIndex err:%s", err.Error())
	}
	return nonce, nil
}

func (a *Adaptor) StateCall(ctx context.Context, method string, data []byte, at []byte) ([]byte, error) {
	params := []interface{}{method, hexutil.Encode(data)}
	if len(at) > 0 {
		params = append(params, hexutil.Encode(at))
	}
	var out hexutil.Bytes
	if err := a.rc.CallContext(ctx, &out, "state_call", params...); err != nil {
		return nil, errors.Wrapf(err, "fail to state_call %s err:%s", method, err.Error())
	}
	return out, nil
}

// Storage reads one storage value, nil without error when the key does
// not exist.
func (a *Adaptor) Storage(ctx context.Context, key []byte, at []byte) ([]byte, error) {
	params := []interface{}{hexutil.Encode(key)}
	if len(at) > 0 {
		params = append(params, hexutil.Encode(at))
	}
	var out *hexutil.Bytes
	if err := a.rc.CallContext(ctx, &out, "state_getStorage", params...); err != nil {
		return nil, errors.Wrapf(err, "fail to state_getStorage err:%s", err.Error())
	}
	if out == nil {
		return nil, nil
	}
	return *out, nil
}

func (a *Adaptor) Metadata(ctx context.Context) (*metadata.FrameMetadata, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.meta != nil {
		return a.meta, nil
	}
	var raw hexutil.Bytes
	if err := a.rc.CallContext(ctx, &raw, "state_getMetadata"); err != nil {
		return nil, errors.Wrapf(err, "fail to state_getMetadata err:%s", err.Error())
	}
	m, err := metadata.DecodeFrameMetadata(raw)
	if err != nil {
		return nil, err
	}
	a.l.Debugf("chain metadata version:%d types:%d pallets:%d", m.Version, m.Types.Len(), len(m.Pallets))
	a.meta = m
	return m, nil
}

func (a *Adaptor) Properties(ctx context.Context) (*ChainProperties, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.props != nil {
		return a.props, nil
	}
	props := &ChainProperties{}
	if err := a.rc.CallContext(ctx, props, "system_properties"); err != nil {
		return nil, errors.Wrapf(err, "fail to system_properties err:%s", err.Error())
	}
	a.props = props
	return props, nil
}

// Balance reads the free balance of an account, zero when the account
// record does not exist.
func (a *Adaptor) Balance(ctx context.Context, pub []byte) (*big.Int, error) {
	return BalanceOf(ctx, a, pub)
}

// SubmitExtrinsic sends a signed extrinsic without watching its pool
// status, returns the transaction hash the node reports.
func (a *Adaptor) SubmitExtrinsic(ctx context.Context, extrinsic []byte) (string, error) {
	var hash string
	if err := a.rc.CallContext(ctx, &hash, "author_submitExtrinsic", hexutil.Encode(extrinsic)); err != nil {
		return "", errors.Wrapf(err, "fail to author_submitExtrinsic err:%s", err.Error())
	}
	return hash, nil
}

func (a *Adaptor) SubmitAndWatch(ctx context.Context, extrinsic []byte) (*TxWatcher, error) {
	ws, err := a.wsClient(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := ws.Subscribe(ctx, "author_submitAndWatchExtrinsic", "author_unwatchExtrinsic",
		hexutil.Encode(extrinsic))
	if err != nil {
		return nil, err
	}
	return NewTxWatcher(sub), nil
}

func (a *Adaptor) SubscribeFinalizedHeads(ctx context.Context) (*HeadSubscription, error) {
	ws, err := a.wsClient(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := ws.Subscribe(ctx, "chain_subscribeFinalizedHeads", "chain_unsubscribeFinalizedHeads")
	if err != nil {
		return nil, err
	}
	return NewHeadSubscription(sub), nil
}

func (a *Adaptor) SubscribeStorage(ctx context.Context, keys [][]byte) (*StorageSubscription, error) {
	ws, err := a.wsClient(ctx)
	if err != nil {
		return nil, err
	}
	hexKeys := make([]string, len(keys))
	for i, k := range keys {
		hexKeys[i] = hexutil.Encode(k)
	}
	sub, err := ws.Subscribe(ctx, "state_subscribeStorage", "state_unsubscribeStorage", hexKeys)
	if err != nil {
		return nil, err
	}
	return NewStorageSubscription(sub), nil
}

func (a *Adaptor) wsClient(ctx context.Context) (*WSClient, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.ws != nil && a.ws.Alive() {
		return a.ws, nil
	}
	if !strings.HasPrefix(a.endpoint, "ws") {
		return nil, errors.Errorf("not supported subscription over endpoint %s", a.endpoint)
	}
	ws, err := DialWS(ctx, a.endpoint, a.l)
	if err != nil {
		return nil, err
	}
	a.ws = ws
	return ws, nil
}
