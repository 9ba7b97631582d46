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

package ss58

import (
	"github.com/icon-project/btp2/common/errors"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	checksumPreimage = "SS58PRE"
	checksumLen      = 2
	AccountIDLen     = 32

	maxPrefix = 0x3fff
)

func checksum(data []byte) []byte {
	h, err := blake2b.New512(nil)
	if err != nil {
		panic(err)
	}
	h.Write([]byte(checksumPreimage))
	h.Write(data)
	return h.Sum(nil)[:checksumLen]
}

// Encode returns the SS58 string of a 32-byte account key under the
// given network prefix.
func Encode(prefix uint16, pub []byte) (string, error) {
	if len(pub) != AccountIDLen {
		return "", errors.Errorf("fail to encode ss58, invalid key length expected:%d actual:%d",
			AccountIDLen, len(pub))
	}
	if prefix > maxPrefix {
		return "", errors.Errorf("fail to encode ss58, prefix out of range %d", prefix)
	}
	var data []byte
	if prefix < 64 {
		data = append(data, byte(prefix))
	} else {
		first := byte((prefix&0b0000_0000_1111_1100)>>2) | 0b0100_0000
		second := byte(prefix>>8) | byte(prefix&0b0000_0000_0000_0011)<<6
		data = append(data, first, second)
	}
	data = append(data, pub...)
	data = append(data, checksum(data)...)
	return base58.Encode(data), nil
}

// Decode parses an SS58 string, verifies its checksum and returns the
// network prefix with the 32-byte account key.
func Decode(s string) (uint16, []byte, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "fail to decode ss58, err:%s", err.Error())
	}
	if len(data) < 1 {
		return 0, nil, errors.New("fail to decode ss58, empty input")
	}
	var prefix uint16
	prefixLen := 1
	switch {
	case data[0] < 64:
		prefix = uint16(data[0])
	case data[0] < 128:
		if len(data) < 2 {
			return 0, nil, errors.New("fail to decode ss58, truncated prefix")
		}
		prefixLen = 2
		lower := data[0]<<2 | data[1]>>6
		upper := data[1] & 0b0011_1111
		prefix = uint16(lower) | uint16(upper)<<8
	default:
		return 0, nil, errors.Errorf("fail to decode ss58, reserved prefix byte %#x", data[0])
	}
	if len(data) != prefixLen+AccountIDLen+checksumLen {
		return 0, nil, errors.Errorf("fail to decode ss58, invalid length %d", len(data))
	}
	body := data[:len(data)-checksumLen]
	sum := data[len(data)-checksumLen:]
	expected := checksum(body)
	for i := 0; i < checksumLen; i++ {
		if sum[i] != expected[i] {
			return 0, nil, errors.New("fail to decode ss58, invalid checksum")
		}
	}
	pub := make([]byte, AccountIDLen)
	copy(pub, body[prefixLen:])
	return prefix, pub, nil
}
