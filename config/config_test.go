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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkforge/inkforge/store"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, DefaultNetworkName, c.DefaultNetwork)
	assert.Equal(t, []string{"aleph-testnet", "local", "shibuya"}, c.NetworkNames())

	n, err := c.Network("")
	assert.NoError(t, err)
	assert.Equal(t, DefaultLocalRPC, n.RPC)
	assert.Equal(t, "//alice", n.Signer)
	assert.Nil(t, n.SS58Prefix)

	n, err = c.Network("shibuya")
	assert.NoError(t, err)
	if assert.NotNil(t, n.SS58Prefix) {
		assert.Equal(t, uint16(5), *n.SS58Prefix)
	}

	_, err = c.Network("mainnet")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found network mainnet")

	assert.Equal(t, store.DriverSQLite, c.Store.Driver)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inkforge.config.json")
	data := `{
		"default_network": "dev",
		"networks": {
			"dev": {
				"rpc": "ws://10.0.0.5:9944",
				"pallet": "Revive",
				"ss58_prefix": 128,
				"signer": "deployer"
			}
		},
		"paths": {"types": "src/types"},
		"store": {"driver": "sqlite", "dbname": "data/forge.db"}
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		assert.FailNow(t, err.Error())
	}

	c, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "dev", c.DefaultNetwork)

	// file networks merge over the built in ones
	assert.Contains(t, c.NetworkNames(), "local")
	n, err := c.Network("")
	assert.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.5:9944", n.RPC)
	assert.Equal(t, "Revive", n.Pallet)
	assert.Equal(t, "deployer", n.Signer)
	if assert.NotNil(t, n.SS58Prefix) {
		assert.Equal(t, uint16(128), *n.SS58Prefix)
	}

	// absent path fields keep their defaults
	assert.Equal(t, filepath.Join(dir, "src/types"), c.TypesDir())
	assert.Equal(t, filepath.Join(dir, "artifacts"), c.ArtifactsDir())

	sc := c.StoreConfig()
	assert.Equal(t, filepath.Join(dir, "data/forge.db"), sc.DBName)
	// the config itself stays as written
	assert.Equal(t, "data/forge.db", c.Store.DBName)
}

func TestLoadReplacesNetworkWholesale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inkforge.json")
	data := `{"networks": {"local": {"rpc": "ws://127.0.0.1:9988"}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		assert.FailNow(t, err.Error())
	}

	c, err := Load(path)
	assert.NoError(t, err)
	n, err := c.Network("local")
	assert.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9988", n.RPC)
	// the file entry replaces the built in one, it does not merge into it
	assert.Equal(t, "", n.Signer)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fail to open config")

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		assert.FailNow(t, err.Error())
	}
	_, err = Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fail to parse config")
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	_, ok := Find(dir)
	assert.False(t, ok)

	path := filepath.Join(dir, "inkforge.config.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		assert.FailNow(t, err.Error())
	}
	found, ok := Find(dir)
	assert.True(t, ok)
	assert.Equal(t, path, found)
}

func TestMemoryStoreNotResolved(t *testing.T) {
	c := Default()
	c.Store.DBName = ":memory:"
	assert.Equal(t, ":memory:", c.StoreConfig().DBName)
}
