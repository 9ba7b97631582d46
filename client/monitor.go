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
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
)

const DefaultMonitorRetryInterval = time.Second

// BlockEvents is the decoded event set of one finalized block.
type BlockEvents struct {
	Hash   string
	Height uint64
	Events []*ChainEvent
}

type EventSubscription struct {
	ch          <-chan *BlockEvents
	unsubscribe func()
}

func (s *EventSubscription) C() <-chan *BlockEvents {
	return s.ch
}

func (s *EventSubscription) Unsubscribe() {
	s.unsubscribe()
}

// EventMonitor follows finalized heads and fans the events of each
// block out to subscribers. It starts with the first subscriber and
// stops with the last. Finality can jump several blocks at once, the
// gap is replayed in order.
type EventMonitor struct {
	c    Client
	m    map[*EventSubscription]chan *BlockEvents
	last uint64

	ctx    context.Context
	cancel context.CancelFunc
	mtx    sync.RWMutex
	l      log.Logger
}

func NewEventMonitor(c Client, l log.Logger) *EventMonitor {
	return &EventMonitor{
		c: c,
		m: make(map[*EventSubscription]chan *BlockEvents),
		l: l,
	}
}

func (m *EventMonitor) _remove(k *EventSubscription) {
	if ch, ok := m.m[k]; ok {
		close(ch)
		delete(m.m, k)
	}
}

func (m *EventMonitor) notify(v *BlockEvents) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.last = v.Height
	for k, ch := range m.m {
		select {
		case ch <- v:
		default:
			m._remove(k)
		}
	}
}

func (m *EventMonitor) Subscriptions() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.m)
}

func (m *EventMonitor) _isStarted() bool {
	return m.cancel != nil
}

func (m *EventMonitor) IsStarted() bool {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m._isStarted()
}

func (m *EventMonitor) _start() {
	if m._isStarted() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.ctx = ctx
	m.cancel = cancel
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := m.serve(ctx); err != nil {
				m.l.Debugf("fail to serve err:%+v", err)
			}
			<-time.After(DefaultMonitorRetryInterval)
		}
	}()
}

func (m *EventMonitor) Start() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m._start()
}

func (m *EventMonitor) _stop() {
	if !m._isStarted() {
		return
	}
	m.cancel()
	m.cancel = nil
	for k := range m.m {
		m._remove(k)
	}
}

func (m *EventMonitor) Stop() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m._stop()
}

func (m *EventMonitor) getLast() uint64 {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.last
}

func (m *EventMonitor) Subscribe(size uint) *EventSubscription {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m._start()

	ch := make(chan *BlockEvents, size)
	s := &EventSubscription{
		ch: ch,
	}
	s.unsubscribe = func() {
		m.mtx.Lock()
		defer m.mtx.Unlock()
		m._remove(s)
		if len(m.m) == 0 {
			m._stop()
		}
	}
	m.m[s] = ch
	return s
}

func (m *EventMonitor) serve(ctx context.Context) error {
	sub, err := m.c.SubscribeFinalizedHeads(ctx)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	meta, err := m.c.Metadata(ctx)
	if err != nil {
		return err
	}
	for {
		h, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		to := uint64(h.Number)
		from := to
		if last := m.getLast(); last > 0 && last < to {
			from = last + 1
		}
		for n := from; n <= to; n++ {
			if err = m.emitBlock(ctx, meta, n); err != nil {
				return err
			}
		}
	}
}

func (m *EventMonitor) emitBlock(ctx context.Context, meta *metadata.FrameMetadata, n uint64) error {
	hash, err := m.c.BlockHash(ctx, n)
	if err != nil {
		return err
	}
	raw, err := m.c.Storage(ctx, SystemEventsKey(), hash)
	if err != nil {
		return err
	}
	var events []*ChainEvent
	if raw != nil {
		if events, err = DecodeSystemEvents(meta, raw); err != nil {
			return err
		}
	}
	m.l.Tracef("block %d events:%d", n, len(events))
	m.notify(&BlockEvents{
		Hash:   hexutil.Encode(hash),
		Height: n,
		Events: events,
	})
	return nil
}

// WatchContractEvents streams the decoded events of one contract until
// the context ends or the callback returns an error.
func WatchContractEvents(ctx context.Context, m *EventMonitor, doc *metadata.Document,
	address contract.Address, cb func(height uint64, ev *contract.DecodedEvent) error) error {
	pub, err := address.Bytes()
	if err != nil {
		return err
	}
	sub := m.Subscribe(64)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case be, ok := <-sub.C():
			if !ok {
				return errors.New("subscription closed")
			}
			for _, e := range be.Events {
				if e.Pallet != ContractsPalletName || e.Name != "ContractEmitted" {
					continue
				}
				em, err := emittedOf(e)
				if err != nil {
					return err
				}
				if !bytes.Equal(em.Contract, pub) {
					continue
				}
				de, err := contract.DecodeEvent(doc, em.Data)
				if err != nil {
					m.l.Warnf("fail to decode contract event height:%d err:%+v", be.Height, err)
					continue
				}
				if err = cb(be.Height, de); err != nil {
					return err
				}
			}
		}
	}
}

// ScanContractEvents replays the decoded events of one contract over an
// already finalized block range, oldest first. Events the document does
// not know are skipped.
func ScanContractEvents(ctx context.Context, c Client, doc *metadata.Document,
	address contract.Address, from, to uint64, cb func(height uint64, ev *contract.DecodedEvent) error) error {
	pub, err := address.Bytes()
	if err != nil {
		return err
	}
	meta, err := c.Metadata(ctx)
	if err != nil {
		return err
	}
	key := SystemEventsKey()
	for n := from; n <= to; n++ {
		hash, err := c.BlockHash(ctx, n)
		if err != nil {
			return err
		}
		raw, err := c.Storage(ctx, key, hash)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			continue
		}
		events, err := DecodeSystemEvents(meta, raw)
		if err != nil {
			return err
		}
		for _, e := range events {
			if e.Pallet != ContractsPalletName || e.Name != "ContractEmitted" {
				continue
			}
			em, err := emittedOf(e)
			if err != nil {
				return err
			}
			if !bytes.Equal(em.Contract, pub) {
				continue
			}
			de, err := contract.DecodeEvent(doc, em.Data)
			if err != nil {
				continue
			}
			if err = cb(n, de); err != nil {
				return err
			}
		}
	}
	return nil
}
