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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

var testUpgrader = websocket.Upgrader{}

type wsTestRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func wsTestServer(t *testing.T, script func(conn *websocket.Conn)) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeResult(conn *websocket.Conn, id uint64, result interface{}) {
	_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": result})
}

func writeNotification(conn *websocket.Conn, method, subID string, result interface{}) {
	_ = conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  map[string]interface{}{"subscription": subID, "result": result},
	})
}

func TestWSClientCall(t *testing.T) {
	endpoint := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			var req wsTestRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			switch req.Method {
			case "system_name":
				writeResult(conn, req.ID, "substrate-node")
			default:
				_ = conn.WriteJSON(map[string]interface{}{
					"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]interface{}{"code": -32601, "message": "Method not found"},
				})
			}
		}
	})
	ctx := context.Background()
	c, err := DialWS(ctx, endpoint, testLogger())
	assert.NoError(t, err)
	defer c.Close()
	assert.True(t, c.Alive())

	var name string
	assert.NoError(t, c.Call(ctx, &name, "system_name"))
	assert.Equal(t, "substrate-node", name)

	err = c.Call(ctx, nil, "system_missing")
	assert.Error(t, err)
	re, ok := err.(*RPCError)
	assert.True(t, ok)
	assert.Equal(t, -32601, re.Code)
}

func TestWSClientSubscribe(t *testing.T) {
	unsubscribed := make(chan json.RawMessage, 1)
	endpoint := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			var req wsTestRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			switch req.Method {
			case "chain_subscribeFinalizedHeads":
				writeResult(conn, req.ID, "sub0")
				writeNotification(conn, "chain_finalizedHead", "sub0", map[string]string{"number": "0x1"})
				writeNotification(conn, "chain_finalizedHead", "sub0", map[string]string{"number": "0x2"})
			case "chain_unsubscribeFinalizedHeads":
				unsubscribed <- req.Params[0]
				writeResult(conn, req.ID, true)
			}
		}
	})
	ctx := context.Background()
	c, err := DialWS(ctx, endpoint, testLogger())
	assert.NoError(t, err)
	defer c.Close()

	sub, err := c.Subscribe(ctx, "chain_subscribeFinalizedHeads", "chain_unsubscribeFinalizedHeads")
	assert.NoError(t, err)
	assert.Equal(t, "sub0", sub.ID())

	for _, number := range []string{"0x1", "0x2"} {
		select {
		case raw := <-sub.Chan():
			assert.Contains(t, string(raw), number)
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for notification")
		}
	}

	sub.Unsubscribe()
	select {
	case raw := <-unsubscribed:
		assert.Equal(t, `"sub0"`, string(raw))
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for unsubscribe request")
	}
	_, open := <-sub.Chan()
	assert.False(t, open)
	assert.NoError(t, sub.Err())
}

func TestWSClientEarlyNotification(t *testing.T) {
	endpoint := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			var req wsTestRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Method != "state_subscribeStorage" {
				continue
			}
			// the notification lands before the subscribe response
			writeNotification(conn, "state_storage", "sub9", map[string]string{"block": "0x1"})
			writeResult(conn, req.ID, "sub9")
		}
	})
	ctx := context.Background()
	c, err := DialWS(ctx, endpoint, testLogger())
	assert.NoError(t, err)
	defer c.Close()

	sub, err := c.Subscribe(ctx, "state_subscribeStorage", "state_unsubscribeStorage")
	assert.NoError(t, err)
	select {
	case raw := <-sub.Chan():
		assert.Contains(t, string(raw), "0x1")
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for backlogged notification")
	}
}

func TestWSClientServerClose(t *testing.T) {
	endpoint := wsTestServer(t, func(conn *websocket.Conn) {
		var req wsTestRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		writeResult(conn, req.ID, "s1")
		writeNotification(conn, "chain_finalizedHead", "s1", map[string]string{"number": "0x1"})
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		writeResult(conn, req.ID, nil)
	})
	ctx := context.Background()
	c, err := DialWS(ctx, endpoint, testLogger())
	assert.NoError(t, err)

	sub, err := c.Subscribe(ctx, "chain_subscribeFinalizedHeads", "chain_unsubscribeFinalizedHeads")
	assert.NoError(t, err)
	select {
	case <-sub.Chan():
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
	// the server drops the connection after this exchange
	assert.NoError(t, c.Call(ctx, nil, "noop"))

	select {
	case _, open := <-sub.Chan():
		assert.False(t, open)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for subscription close")
	}
	assert.Error(t, sub.Err())
	assert.False(t, c.Alive())
	assert.Error(t, c.Call(ctx, nil, "system_name"))
}

func TestWSClientCallContext(t *testing.T) {
	endpoint := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			// never respond
			var req wsTestRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
		}
	})
	c, err := DialWS(context.Background(), endpoint, testLogger())
	assert.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.Call(ctx, nil, "system_name")
	assert.Equal(t, context.DeadlineExceeded, err)
}
