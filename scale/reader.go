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

package scale

import (
	"math/big"
)

// Reader consumes a SCALE byte stream, tracking the offset for error
// reports. Reads never panic on short input.
type Reader struct {
	b   []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Offset returns the number of consumed bytes.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.b) - r.off
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrorCodeTruncatedInput.Errorf(
			"fail to read %d bytes, offset:%d remaining:%d", n, r.off, r.Remaining())
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	ret := make([]byte, n)
	copy(ret, b)
	return ret, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrorCodeValueOutOfRange.Errorf("fail to read bool, invalid byte %#x offset:%d", b, r.off-1)
	}
}

// ReadUint reads a fixed-width little-endian unsigned integer of 8, 16,
// 32 or 64 bits.
func (r *Reader) ReadUint(bits int) (uint64, error) {
	b, err := r.take(bits / 8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

func (r *Reader) ReadInt(bits int) (int64, error) {
	v, err := r.ReadUint(bits)
	if err != nil {
		return 0, err
	}
	switch bits {
	case 8:
		return int64(int8(v)), nil
	case 16:
		return int64(int16(v)), nil
	case 32:
		return int64(int32(v)), nil
	default:
		return int64(v), nil
	}
}

// ReadBigUint reads a fixed-width little-endian unsigned integer of up
// to 256 bits.
func (r *Reader) ReadBigUint(bits int) (*big.Int, error) {
	b, err := r.take(bits / 8)
	if err != nil {
		return nil, err
	}
	return leToBig(b), nil
}

// ReadBigInt reads a fixed-width little-endian two's complement integer
// of up to 256 bits.
func (r *Reader) ReadBigInt(bits int) (*big.Int, error) {
	b, err := r.take(bits / 8)
	if err != nil {
		return nil, err
	}
	v := leToBig(b)
	if v.Bit(bits-1) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(bits)))
	}
	return v, nil
}

// ReadCompact reads a compact-encoded unsigned integer.
func (r *Reader) ReadCompact() (*big.Int, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch b0 & 0b11 {
	case 0b00:
		return big.NewInt(int64(b0 >> 2)), nil
	case 0b01:
		b1, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return big.NewInt(int64(uint16(b0)|uint16(b1)<<8) >> 2), nil
	case 0b10:
		rest, err := r.take(3)
		if err != nil {
			return nil, err
		}
		v := uint32(b0) | uint32(rest[0])<<8 | uint32(rest[1])<<16 | uint32(rest[2])<<24
		return big.NewInt(int64(v >> 2)), nil
	default:
		n := int(b0>>2) + 4
		b, err := r.take(n)
		if err != nil {
			return nil, err
		}
		return leToBig(b), nil
	}
}

// ReadCompactUint reads a compact integer that must fit uint64.
func (r *Reader) ReadCompactUint() (uint64, error) {
	v, err := r.ReadCompact()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, ErrorCodeValueOutOfRange.Errorf("fail to read compact, out of uint64 range %s", v)
	}
	return v.Uint64(), nil
}

// ReadString reads a compact length prefix followed by that many bytes.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadByteSlice()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadByteSlice reads a compact length prefix followed by that many bytes.
func (r *Reader) ReadByteSlice() ([]byte, error) {
	n, err := r.ReadCompactUint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Remaining()) {
		return nil, ErrorCodeTruncatedInput.Errorf(
			"fail to read %d bytes, offset:%d remaining:%d", n, r.off, r.Remaining())
	}
	return r.ReadBytes(int(n))
}
