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
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompactEncoding(t *testing.T) {
	vectors := []struct {
		value    uint64
		expected string
	}{
		{0, "00"},
		{1, "04"},
		{42, "a8"},
		{63, "fc"},
		{64, "0101"},
		{65, "0501"},
		{16383, "fdff"},
		{16384, "02000100"},
		{1<<30 - 1, "feffffff"},
		{1 << 30, "0300000040"},
		{1<<64 - 1, "13ffffffffffffffff"},
	}
	for _, v := range vectors {
		w := NewWriter()
		w.WriteCompactUint(v.value)
		assert.Equal(t, v.expected, hex.EncodeToString(w.Bytes()), "value:%d", v.value)

		r := NewReader(w.Bytes())
		decoded, err := r.ReadCompactUint()
		assert.NoError(t, err)
		assert.Equal(t, v.value, decoded)
		assert.Equal(t, 0, r.Remaining())
	}
}

func TestCompactBig(t *testing.T) {
	v, ok := new(big.Int).SetString("340282366920938463463374607431768211455", 10) // u128 max
	assert.True(t, ok)
	w := NewWriter()
	assert.NoError(t, w.WriteCompact(v))
	r := NewReader(w.Bytes())
	decoded, err := r.ReadCompact()
	assert.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(decoded))

	assert.Error(t, NewWriter().WriteCompact(big.NewInt(-1)))

	huge := new(big.Int).Lsh(big.NewInt(1), 67*8)
	err = NewWriter().WriteCompact(huge)
	assert.True(t, ErrorCodeValueOutOfRange.Equals(err))
}

func TestFixedWidth(t *testing.T) {
	w := NewWriter()
	w.WriteUint(0x1234, 16)
	w.WriteUint(0xdeadbeef, 32)
	w.WriteInt(-2, 8)
	assert.Equal(t, "3412efbeaddefe", hex.EncodeToString(w.Bytes()))

	r := NewReader(w.Bytes())
	u16, err := r.ReadUint(16)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x1234), u16)
	u32, err := r.ReadUint(32)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0xdeadbeef), u32)
	i8, err := r.ReadInt(8)
	assert.NoError(t, err)
	assert.Equal(t, int64(-2), i8)
	assert.Equal(t, 0, r.Remaining())
}

func TestBigUint128(t *testing.T) {
	v, ok := new(big.Int).SetString("1000000000000000000", 10)
	assert.True(t, ok)
	w := NewWriter()
	assert.NoError(t, w.WriteBigUint(v, 128))
	assert.Equal(t, "000064a7b3b6e00d0000000000000000", hex.EncodeToString(w.Bytes()))

	r := NewReader(w.Bytes())
	decoded, err := r.ReadBigUint(128)
	assert.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(decoded))

	// does not fit
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	err = NewWriter().WriteBigUint(max, 128)
	assert.True(t, ErrorCodeValueOutOfRange.Equals(err))
	err = NewWriter().WriteBigUint(big.NewInt(-5), 128)
	assert.True(t, ErrorCodeValueOutOfRange.Equals(err))
}

func TestBigIntSigned(t *testing.T) {
	for _, s := range []string{"0", "-1", "-170141183460469231731687303715884105728", "170141183460469231731687303715884105727", "123456789"} {
		v, ok := new(big.Int).SetString(s, 10)
		assert.True(t, ok)
		w := NewWriter()
		assert.NoError(t, w.WriteBigInt(v, 128))
		assert.Equal(t, 16, w.Len())
		r := NewReader(w.Bytes())
		decoded, err := r.ReadBigInt(128)
		assert.NoError(t, err)
		assert.Equal(t, 0, v.Cmp(decoded), "value:%s decoded:%s", s, decoded)
	}

	// i128 min minus one
	v, _ := new(big.Int).SetString("-170141183460469231731687303715884105729", 10)
	err := NewWriter().WriteBigInt(v, 128)
	assert.True(t, ErrorCodeValueOutOfRange.Equals(err))
}

func TestByteSliceAndString(t *testing.T) {
	w := NewWriter()
	w.WriteString("hello")
	assert.Equal(t, "1468656c6c6f", hex.EncodeToString(w.Bytes()))

	r := NewReader(w.Bytes())
	s, err := r.ReadString()
	assert.NoError(t, err)
	assert.Equal(t, "hello", s)

	w = NewWriter()
	w.WriteBytes([]byte{1, 2, 3})
	r = NewReader(w.Bytes())
	b, err := r.ReadByteSlice()
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
}

func TestTruncated(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadUint(32)
	assert.True(t, ErrorCodeTruncatedInput.Equals(err))

	// compact length prefix claiming more than available
	w := NewWriter()
	w.WriteCompactUint(1000)
	w.WriteRaw([]byte{1, 2})
	r = NewReader(w.Bytes())
	_, err = r.ReadByteSlice()
	assert.True(t, ErrorCodeTruncatedInput.Equals(err))

	r = NewReader(nil)
	_, err = r.ReadByte()
	assert.True(t, ErrorCodeTruncatedInput.Equals(err))
	_, err = r.ReadCompact()
	assert.True(t, ErrorCodeTruncatedInput.Equals(err))
}

func TestBool(t *testing.T) {
	w := NewWriter()
	w.WriteBool(true).WriteBool(false)
	assert.Equal(t, []byte{1, 0}, w.Bytes())

	r := NewReader(w.Bytes())
	v, err := r.ReadBool()
	assert.NoError(t, err)
	assert.True(t, v)
	v, err = r.ReadBool()
	assert.NoError(t, err)
	assert.False(t, v)

	r = NewReader([]byte{2})
	_, err = r.ReadBool()
	assert.Error(t, err)
}

func TestOffsetTracking(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	_, _ = r.ReadUint(16)
	assert.Equal(t, 2, r.Offset())
	assert.Equal(t, 2, r.Remaining())
	_, err := r.ReadBytes(3)
	assert.Error(t, err)
	// failed reads do not consume
	assert.Equal(t, 2, r.Offset())
}
