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
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
)

const (
	subscriptionBuffer     = 128
	unknownSubscriptionCap = 16
	unsubscribeTimeout     = 5 * time.Second
)

type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error code:%d message:%s", e.Code, e.Message)
}

type wsRequest struct {
	Version string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	Version string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *wsNotification `json:"params,omitempty"`
}

type wsNotification struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// WSClient is a JSON-RPC client over a websocket connection. Substrate
// notification methods do not follow the namespace_subscribe naming the
// go-ethereum client requires, so subscriptions go through here.
type WSClient struct {
	conn *websocket.Conn
	l    log.Logger

	wmtx sync.Mutex

	mtx      sync.Mutex
	id       uint64
	pending  map[uint64]chan *wsMessage
	subs     map[string]*WSSubscription
	// notifications that arrive before the matching subscribe response
	// is handled wait here keyed by subscription id
	backlog  map[string][]json.RawMessage
	closeErr error
	closed   chan struct{}
}

func DialWS(ctx context.Context, endpoint string, l log.Logger) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to dial %s, err:%s", endpoint, err.Error())
	}
	c := &WSClient{
		conn:    conn,
		l:       l,
		pending: make(map[uint64]chan *wsMessage),
		subs:    make(map[string]*WSSubscription),
		backlog: make(map[string][]json.RawMessage),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

func (c *WSClient) Alive() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *WSClient) readLoop() {
	for {
		m := &wsMessage{}
		if err := c.conn.ReadJSON(m); err != nil {
			c.shutdown(err)
			return
		}
		c.dispatch(m)
	}
}

func (c *WSClient) dispatch(m *wsMessage) {
	if m.ID != nil {
		c.mtx.Lock()
		ch, ok := c.pending[*m.ID]
		delete(c.pending, *m.ID)
		c.mtx.Unlock()
		if !ok {
			c.l.Warnf("discard response of unknown request id:%d", *m.ID)
			return
		}
		ch <- m
		return
	}
	if m.Params == nil {
		c.l.Warnf("discard message without id and params method:%s", m.Method)
		return
	}
	key := subscriptionKey(m.Params.Subscription)
	c.mtx.Lock()
	s, ok := c.subs[key]
	if !ok {
		if _, has := c.backlog[key]; !has && len(c.backlog) >= unknownSubscriptionCap {
			c.mtx.Unlock()
			c.l.Warnf("discard notification of unknown subscription id:%s", key)
			return
		}
		b := append(c.backlog[key], m.Params.Result)
		if len(b) > subscriptionBuffer {
			b = b[1:]
		}
		c.backlog[key] = b
		c.mtx.Unlock()
		return
	}
	// deliver under the lock, Unsubscribe closes the channel only after
	// removing the routing entry
	stalled := false
	select {
	case s.ch <- m.Params.Result:
	default:
		stalled = true
	}
	c.mtx.Unlock()
	if stalled {
		c.l.Warnf("discard notification of stalled subscription id:%s", key)
	}
}

func (c *WSClient) shutdown(err error) {
	c.mtx.Lock()
	if c.closeErr != nil {
		c.mtx.Unlock()
		return
	}
	c.closeErr = err
	close(c.closed)
	subs := c.subs
	c.subs = make(map[string]*WSSubscription)
	c.pending = make(map[uint64]chan *wsMessage)
	c.mtx.Unlock()
	c.l.Debugf("connection closed err:%+v", err)
	for _, s := range subs {
		s.fail(err)
	}
	_ = c.conn.Close()
}

// Call performs one JSON-RPC request and decodes the result.
func (c *WSClient) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	ch := make(chan *wsMessage, 1)
	c.mtx.Lock()
	if c.closeErr != nil {
		err := c.closeErr
		c.mtx.Unlock()
		return err
	}
	c.id++
	id := c.id
	c.pending[id] = ch
	c.mtx.Unlock()

	req := &wsRequest{Version: "2.0", ID: id, Method: method, Params: params}
	c.wmtx.Lock()
	err := c.conn.WriteJSON(req)
	c.wmtx.Unlock()
	if err != nil {
		c.dropPending(id)
		return errors.Wrapf(err, "fail to send %s, err:%s", method, err.Error())
	}
	select {
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	case <-c.closed:
		c.mtx.Lock()
		err = c.closeErr
		c.mtx.Unlock()
		return err
	case m := <-ch:
		if m.Error != nil {
			return m.Error
		}
		if result == nil || len(m.Result) == 0 {
			return nil
		}
		if err = json.Unmarshal(m.Result, result); err != nil {
			return errors.Wrapf(err, "fail to unmarshal result of %s, err:%s", method, err.Error())
		}
		return nil
	}
}

func (c *WSClient) dropPending(id uint64) {
	c.mtx.Lock()
	delete(c.pending, id)
	c.mtx.Unlock()
}

// Subscribe issues a subscription request and routes matching
// notifications to the returned subscription until Unsubscribe.
func (c *WSClient) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...interface{}) (*WSSubscription, error) {
	var rawID json.RawMessage
	if err := c.Call(ctx, &rawID, method, params...); err != nil {
		return nil, err
	}
	s := &WSSubscription{
		id:                subscriptionKey(rawID),
		rawID:             rawID,
		ch:                make(chan json.RawMessage, subscriptionBuffer),
		c:                 c,
		unsubscribeMethod: unsubscribeMethod,
	}
	c.mtx.Lock()
	if c.closeErr != nil {
		err := c.closeErr
		c.mtx.Unlock()
		return nil, err
	}
	c.subs[s.id] = s
	for _, n := range c.backlog[s.id] {
		s.ch <- n
	}
	delete(c.backlog, s.id)
	c.mtx.Unlock()
	c.l.Tracef("subscribe method:%s id:%s", method, s.id)
	return s, nil
}

// subscriptionKey normalizes a subscription id, which nodes report as
// either a JSON string or a number.
func subscriptionKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type WSSubscription struct {
	id                string
	rawID             json.RawMessage
	ch                chan json.RawMessage
	c                 *WSClient
	unsubscribeMethod string

	mtx sync.Mutex
	err error
}

func (s *WSSubscription) ID() string {
	return s.id
}

func (s *WSSubscription) Chan() <-chan json.RawMessage {
	return s.ch
}

func (s *WSSubscription) Err() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.err
}

// fail is called once by the connection shutdown after the subscription
// is removed from the routing table.
func (s *WSSubscription) fail(err error) {
	s.mtx.Lock()
	s.err = err
	s.mtx.Unlock()
	close(s.ch)
}

func (s *WSSubscription) Unsubscribe() {
	s.c.mtx.Lock()
	_, ok := s.c.subs[s.id]
	delete(s.c.subs, s.id)
	s.c.mtx.Unlock()
	if !ok {
		return
	}
	close(s.ch)
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	var done bool
	if err := s.c.Call(ctx, &done, s.unsubscribeMethod, s.rawID); err != nil {
		s.c.l.Debugf("fail to %s id:%s err:%+v", s.unsubscribeMethod, s.id, err)
	}
}
