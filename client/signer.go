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
	"crypto/ed25519"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"

	"github.com/inkforge/inkforge/contract"
)

const SeedLen = 32

// MultiSignature discriminants.
const (
	SignatureEd25519 uint8 = iota
	SignatureSr25519
)

// Signer signs extrinsic payloads and identifies the sending account.
type Signer interface {
	PublicKey() []byte
	Scheme() uint8
	Sign(payload []byte) ([]byte, error)
}

func SignerAddress(s Signer, prefix uint16) (contract.Address, error) {
	return contract.AddressOf(s.PublicKey(), prefix)
}

type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != SeedLen {
		return nil, errors.Errorf("invalid seed length expected:%d actual:%d", SeedLen, len(seed))
	}
	return &Ed25519Signer{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) PublicKey() []byte {
	return []byte(s.key.Public().(ed25519.PublicKey))
}

func (s *Ed25519Signer) Scheme() uint8 {
	return SignatureEd25519
}

func (s *Ed25519Signer) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.key, payload), nil
}

// signingContext is the transcript label substrate verifies sr25519
// signatures under.
var signingContext = []byte("substrate")

type Sr25519Signer struct {
	secret *schnorrkel.SecretKey
	pub    [32]byte
}

func NewSr25519Signer(seed []byte) (*Sr25519Signer, error) {
	if len(seed) != SeedLen {
		return nil, errors.Errorf("invalid seed length expected:%d actual:%d", SeedLen, len(seed))
	}
	var raw [32]byte
	copy(raw[:], seed)
	msk, err := schnorrkel.NewMiniSecretKeyFromRaw(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid seed, err:%s", err.Error())
	}
	return &Sr25519Signer{
		secret: msk.ExpandEd25519(),
		pub:    msk.Public().Compress(),
	}, nil
}

func (s *Sr25519Signer) PublicKey() []byte {
	return s.pub[:]
}

func (s *Sr25519Signer) Scheme() uint8 {
	return SignatureSr25519
}

func (s *Sr25519Signer) Sign(payload []byte) ([]byte, error) {
	sig, err := s.secret.Sign(schnorrkel.NewSigningContext(signingContext, payload))
	if err != nil {
		return nil, errors.Wrapf(err, "fail to sign, err:%s", err.Error())
	}
	enc := sig.Encode()
	return enc[:], nil
}

// devSeeds are the well known substrate development account mini
// secrets, the //Name derivations every dev chain funds.
var devSeeds = map[string]string{
	"alice":   "0xe5be9a5092b81bca64be81d212e7f2f9eba183bb7a90954f7b76361f6edb5c0a",
	"bob":     "0x398f0c28f98885e046333d4a41c19cee4c37368a9832c6502f6cfd182e2aef89",
	"charlie": "0xbc1ede780f784bb6991a585e4f6e61522c14e1cae6ad0895fb57b9a205a8f938",
	"dave":    "0x868020ae0687dda7d57565093a69090211449845a7e11453612800b663307246",
	"eve":     "0x786ad0e2df456fe43dd1f91ebca22e235bc162e0bb8d53c633e8c85b2af68b7a",
	"ferdie":  "0x42438b7883391c05512a938e36c2df0131e088b3756d6aa7a755fbff19d2f842",
}

// DevSigner returns the signer of a well known development account,
// accepts //Alice and alice alike.
func DevSigner(name string) (Signer, error) {
	n := strings.ToLower(strings.TrimPrefix(name, "//"))
	seedHex, ok := devSeeds[n]
	if !ok {
		return nil, errors.Errorf("not found dev account %s", name)
	}
	seed, err := hexutil.Decode(seedHex)
	if err != nil {
		return nil, err
	}
	return NewSr25519Signer(seed)
}

func DevAccountNames() []string {
	names := make([]string, 0, len(devSeeds))
	for n := range devSeeds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Keystore resolves signer names to key files in one directory. A key
// file holds a hex seed, optionally prefixed with the scheme as in
// ed25519:0x....
type Keystore struct {
	dir string
}

func NewKeystore(dir string) *Keystore {
	return &Keystore{dir: dir}
}

func (k *Keystore) Signer(name string) (Signer, error) {
	b, err := os.ReadFile(filepath.Join(k.dir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "not found key %s in %s, err:%s", name, k.dir, err.Error())
	}
	s, err := ParseKeyData(string(b))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid key file %s, err:%s", name, err.Error())
	}
	return s, nil
}

// Resolve interprets a signer reference, a //Dev name, a raw hex
// seed or the name of a key file.
func (k *Keystore) Resolve(spec string) (Signer, error) {
	if strings.HasPrefix(spec, "//") {
		return DevSigner(spec)
	}
	if isHexSeed(spec) {
		return ParseKeyData(spec)
	}
	return k.Signer(spec)
}

func ParseKeyData(data string) (Signer, error) {
	data = strings.TrimSpace(data)
	scheme := "sr25519"
	if i := strings.IndexByte(data, ':'); i >= 0 {
		scheme, data = data[:i], data[i+1:]
	}
	if !strings.HasPrefix(data, "0x") && !strings.HasPrefix(data, "0X") {
		data = "0x" + data
	}
	seed, err := hexutil.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid hex seed, err:%s", err.Error())
	}
	switch scheme {
	case "sr25519":
		return NewSr25519Signer(seed)
	case "ed25519":
		return NewEd25519Signer(seed)
	default:
		return nil, errors.Errorf("not supported signature scheme %s", scheme)
	}
}

func isHexSeed(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != SeedLen*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
