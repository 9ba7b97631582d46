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
	"encoding/binary"
	"math/big"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/inkforge/inkforge/scale"
)

// Twox128 is the substrate storage prefix hash, two seeded xxhash64
// halves concatenated little endian.
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	for seed := uint64(0); seed < 2; seed++ {
		d := xxhash.NewWithSeed(seed)
		_, _ = d.Write(data)
		binary.LittleEndian.PutUint64(out[seed*8:], d.Sum64())
	}
	return out
}

// Blake2b128Concat hashes the key and appends the preimage, which keeps
// map keys recoverable from storage key suffixes.
func Blake2b128Concat(data []byte) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return append(h.Sum(nil), data...)
}

func Blake2b256(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// StorageKey builds a storage key from a pallet prefix, an item name
// and already hashed map key parts.
func StorageKey(prefix, item string, hashedKeys ...[]byte) []byte {
	key := append(Twox128([]byte(prefix)), Twox128([]byte(item))...)
	for _, hk := range hashedKeys {
		key = append(key, hk...)
	}
	return key
}

func SystemAccountKey(pub []byte) []byte {
	return StorageKey("System", "Account", Blake2b128Concat(pub))
}

func SystemEventsKey() []byte {
	return StorageKey("System", "Events")
}

// AccountInfo is the leading fixed part of the System.Account record.
// Trailing balance fields differ between runtime versions and stay
// unread.
type AccountInfo struct {
	Nonce       uint32
	Consumers   uint32
	Providers   uint32
	Sufficients uint32
	Free        *big.Int
	Reserved    *big.Int
}

func DecodeAccountInfo(b []byte) (*AccountInfo, error) {
	r := scale.NewReader(b)
	info := &AccountInfo{}
	for _, f := range []*uint32{&info.Nonce, &info.Consumers, &info.Providers, &info.Sufficients} {
		v, err := r.ReadUint(32)
		if err != nil {
			return nil, err
		}
		*f = uint32(v)
	}
	var err error
	if info.Free, err = r.ReadBigUint(128); err != nil {
		return nil, err
	}
	if info.Reserved, err = r.ReadBigUint(128); err != nil {
		return nil, err
	}
	return info, nil
}

// BalanceOf reads the free balance of an account, zero for accounts
// without a System.Account record.
func BalanceOf(ctx context.Context, c Client, pub []byte) (*big.Int, error) {
	raw, err := c.Storage(ctx, SystemAccountKey(pub), nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return new(big.Int), nil
	}
	info, err := DecodeAccountInfo(raw)
	if err != nil {
		return nil, err
	}
	return info.Free, nil
}
