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

// Package config holds the project file the CLI and the dev server load,
// networks to talk to, where artifacts and generated types live, and the
// deployment store.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	btpconfig "github.com/icon-project/btp2/common/config"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/store"
)

const (
	DefaultNetworkName   = "local"
	DefaultLocalRPC      = "ws://127.0.0.1:9944"
	DefaultServerAddress = "localhost:8080"
)

// FileNames are tried in order when no config path is given.
var FileNames = []string{
	"inkforge.config.json",
	"inkforge.json",
}

type Config struct {
	btpconfig.FileConfig `json:",squash"`

	Networks       map[string]*Network `json:"networks"`
	DefaultNetwork string              `json:"default_network"`
	Paths          Paths               `json:"paths"`
	Store          store.Config        `json:"store"`
	Server         Server              `json:"server"`

	LogLevel     string            `json:"log_level,omitempty"`
	ConsoleLevel string            `json:"console_level,omitempty"`
	LogWriter    *log.WriterConfig `json:"log_writer,omitempty"`
}

// Network is one chain endpoint. SS58Prefix and Pallet override what the
// chain reports, nil and empty take the runtime values.
type Network struct {
	RPC        string  `json:"rpc"`
	Explorer   string  `json:"explorer,omitempty"`
	SS58Prefix *uint16 `json:"ss58_prefix,omitempty"`
	Pallet     string  `json:"pallet,omitempty"`
	Signer     string  `json:"signer,omitempty"`
}

type Paths struct {
	Artifacts string `json:"artifacts,omitempty"`
	Types     string `json:"types,omitempty"`
	Keystore  string `json:"keystore,omitempty"`
}

// Server configures the dev server command.
type Server struct {
	Address      string `json:"address"`
	DumpLogLevel string `json:"dump_log_level,omitempty"`
}

func u16(v uint16) *uint16 {
	return &v
}

// Default returns the built in networks, a funded local dev node plus
// public test chains running the contracts pallet.
func Default() *Config {
	return &Config{
		Networks: map[string]*Network{
			DefaultNetworkName: {
				RPC:    DefaultLocalRPC,
				Signer: "//alice",
			},
			"shibuya": {
				RPC:        "wss://rpc.shibuya.astar.network",
				Explorer:   "https://shibuya.subscan.io",
				SS58Prefix: u16(5),
			},
			"aleph-testnet": {
				RPC:      "wss://ws.test.azero.dev",
				Explorer: "https://test.azero.dev/#/explorer",
			},
		},
		DefaultNetwork: DefaultNetworkName,
		Paths: Paths{
			Artifacts: "./artifacts",
			Types:     "./types",
			Keystore:  "./.keystore",
		},
		Store: store.Config{
			Driver: store.DriverSQLite,
			DBName: ".inkforge.db",
		},
		Server: Server{
			Address:      DefaultServerAddress,
			DumpLogLevel: "trace",
		},
	}
}

// Load reads a JSON config file over the defaults, file networks add to
// or replace the built in ones.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to open config %s, err:%s", path, err.Error())
	}
	defer f.Close()
	c := Default()
	if err = json.NewDecoder(f).Decode(c); err != nil {
		return nil, errors.Wrapf(err, "fail to parse config %s, err:%s", path, err.Error())
	}
	c.FilePath, _ = filepath.Abs(path)
	return c, nil
}

// Find looks for a config file in dir.
func Find(dir string) (string, bool) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Network returns the named network, the default one for an empty name.
func (c *Config) Network(name string) (*Network, error) {
	if len(name) == 0 {
		name = c.DefaultNetwork
	}
	if n, ok := c.Networks[name]; ok && n != nil {
		return n, nil
	}
	return nil, errors.Errorf("not found network %s in configuration", name)
}

func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for n := range c.Networks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TypesDir resolves the generated types directory against the config
// file location.
func (c *Config) TypesDir() string {
	return c.ResolveAbsolute(c.Paths.Types)
}

func (c *Config) ArtifactsDir() string {
	return c.ResolveAbsolute(c.Paths.Artifacts)
}

func (c *Config) KeystoreDir() string {
	return c.ResolveAbsolute(c.Paths.Keystore)
}

// StoreConfig returns the store config with a sqlite file resolved
// against the config file location.
func (c *Config) StoreConfig() store.Config {
	sc := c.Store
	if sc.Driver == store.DriverSQLite && sc.DBName != ":memory:" {
		sc.DBName = c.ResolveAbsolute(sc.DBName)
	}
	return sc
}
