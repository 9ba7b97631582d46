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

package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/ss58"
)

// Address is the textual form of a 32-byte account, either SS58 or
// 0x-prefixed hex.
type Address string

const AddressIDLen = 32

// Bytes parses the address into its 32-byte account key. SS58 inputs
// are accepted under any network prefix.
func (a Address) Bytes() ([]byte, error) {
	s := strings.TrimSpace(string(a))
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, ErrorCodeInvalidAddress.Wrapf(err, "invalid hex address %s, err:%s", s, err.Error())
		}
		if len(b) != AddressIDLen {
			return nil, ErrorCodeInvalidAddress.Errorf("invalid address length expected:%d actual:%d", AddressIDLen, len(b))
		}
		return b, nil
	}
	_, pub, err := ss58.Decode(s)
	if err != nil {
		return nil, ErrorCodeInvalidAddress.Wrapf(err, "invalid address format %s, err:%s", s, err.Error())
	}
	return pub, nil
}

func (a Address) MustBytes() []byte {
	b, err := a.Bytes()
	if err != nil {
		log.Panicf("fail to parse address err:%v", err)
	}
	return b
}

// AddressOf renders a 32-byte account key as SS58 under the given
// network prefix.
func AddressOf(pub []byte, prefix uint16) (Address, error) {
	s, err := ss58.Encode(prefix, pub)
	if err != nil {
		return "", ErrorCodeInvalidAddress.Wrapf(err, "fail to encode address, err:%s", err.Error())
	}
	return Address(s), nil
}

// HexAddressOf renders a 32-byte account key as 0x-prefixed hex.
func HexAddressOf(pub []byte) Address {
	return Address(hexutil.Encode(pub))
}
