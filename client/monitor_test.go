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
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
	"github.com/stretchr/testify/assert"

	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
)

func testLogger() log.Logger {
	l := log.New()
	l.SetLevel(log.FatalLevel)
	return l
}

// monitorChain streams canned finalized heads and serves every block
// with the same event set.
func monitorChain(t *testing.T, events []byte) *fakeChain {
	fc := &fakeChain{
		meta:  testChainMeta(t),
		heads: &fakeSub{ch: make(chan json.RawMessage, 8)},
	}
	fc.blockHash = func(n uint64) ([]byte, error) {
		return bytes.Repeat([]byte{byte(n)}, 32), nil
	}
	fc.storage = func(key, at []byte) ([]byte, error) {
		assert.Equal(t, SystemEventsKey(), key)
		return events, nil
	}
	return fc
}

func pushHead(fc *fakeChain, n uint64) {
	fc.heads.ch <- json.RawMessage(fmt.Sprintf(`{"parentHash":"0x00","number":"%#x"}`, n))
}

func recvBlock(t *testing.T, sub *EventSubscription) *BlockEvents {
	select {
	case be := <-sub.C():
		return be
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for block events")
		return nil
	}
}

func TestEventMonitor(t *testing.T) {
	blob := encodeEvents(recordAt(0, contractEmitted(testContractPub, []byte{0x00, 0x01})))
	fc := monitorChain(t, blob)
	m := NewEventMonitor(fc, testLogger())
	assert.False(t, m.IsStarted())

	sub := m.Subscribe(8)
	assert.True(t, m.IsStarted())
	assert.Equal(t, 1, m.Subscriptions())

	pushHead(fc, 5)
	be := recvBlock(t, sub)
	assert.Equal(t, uint64(5), be.Height)
	assert.Equal(t, hexutil.Encode(bytes.Repeat([]byte{5}, 32)), be.Hash)
	assert.Len(t, be.Events, 1)
	assert.Equal(t, "ContractEmitted", be.Events[0].Name)

	// a finality jump replays the gap in order
	pushHead(fc, 8)
	for _, height := range []uint64{6, 7, 8} {
		be = recvBlock(t, sub)
		assert.Equal(t, height, be.Height)
	}
	assert.Equal(t, uint64(8), m.getLast())

	sub.Unsubscribe()
	assert.Equal(t, 0, m.Subscriptions())
	assert.False(t, m.IsStarted())
}

func TestEventMonitorDropsStalledSubscriber(t *testing.T) {
	fc := monitorChain(t, encodeEvents())
	m := NewEventMonitor(fc, testLogger())
	defer m.Stop()

	stalled := m.Subscribe(0)
	open := m.Subscribe(8)
	assert.Equal(t, 2, m.Subscriptions())

	m.notify(&BlockEvents{Height: 1})
	assert.Equal(t, 1, m.Subscriptions())
	_, ok := <-stalled.C()
	assert.False(t, ok)

	be := recvBlock(t, open)
	assert.Equal(t, uint64(1), be.Height)
}

func TestEventMonitorStartStop(t *testing.T) {
	fc := monitorChain(t, encodeEvents())
	m := NewEventMonitor(fc, testLogger())
	m.Start()
	m.Start()
	assert.True(t, m.IsStarted())
	m.Stop()
	m.Stop()
	assert.False(t, m.IsStarted())
}

func TestWatchContractEvents(t *testing.T) {
	blob := encodeEvents(
		recordAt(0, contractEmitted(testContractPub, []byte{0x00, 0x01})),
		recordAt(0, contractEmitted(bytes.Repeat([]byte{0xee}, 32), []byte{0x00, 0x00})),
	)
	fc := monitorChain(t, blob)
	m := NewEventMonitor(fc, testLogger())
	doc := metadata.MustNewDocument([]byte(flipperDocJSON))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	type seen struct {
		height uint64
		ev     *contract.DecodedEvent
	}
	got := make(chan seen, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchContractEvents(ctx, m, doc, contract.HexAddressOf(testContractPub),
			func(height uint64, ev *contract.DecodedEvent) error {
				got <- seen{height, ev}
				return nil
			})
	}()

	pushHead(fc, 3)
	select {
	case s := <-got:
		assert.Equal(t, uint64(3), s.height)
		assert.Equal(t, "Flipped", s.ev.Label)
		assert.Equal(t, true, s.ev.Args[0].Value)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for contract event")
	}
	// the other contract's record stays filtered
	assert.Empty(t, got)

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for watch exit")
	}
}

func TestWatchContractEventsCallbackError(t *testing.T) {
	blob := encodeEvents(recordAt(0, contractEmitted(testContractPub, []byte{0x00, 0x01})))
	fc := monitorChain(t, blob)
	m := NewEventMonitor(fc, testLogger())
	doc := metadata.MustNewDocument([]byte(flipperDocJSON))

	abort := errors.New("stop here")
	done := make(chan error, 1)
	go func() {
		done <- WatchContractEvents(context.Background(), m, doc,
			contract.HexAddressOf(testContractPub),
			func(height uint64, ev *contract.DecodedEvent) error {
				return abort
			})
	}()

	pushHead(fc, 1)
	select {
	case err := <-done:
		assert.Equal(t, abort, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for watch exit")
	}
}
