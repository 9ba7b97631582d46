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

const (
	compactSingleMax = 1<<6 - 1
	compactTwoMax    = 1<<14 - 1
	compactFourMax   = 1<<30 - 1
	compactBigMax    = 67 // value byte length limit of the big-integer mode
)

// Writer builds a SCALE byte stream. Write methods that cannot fail
// return the writer for sequencing; checked writes return an error.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// WriteRaw appends bytes without a length prefix.
func (w *Writer) WriteRaw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// WriteBytes appends a compact length prefix followed by the bytes.
func (w *Writer) WriteBytes(b []byte) *Writer {
	w.WriteCompactUint(uint64(len(b)))
	return w.WriteRaw(b)
}

func (w *Writer) WriteString(s string) *Writer {
	return w.WriteBytes([]byte(s))
}

func (w *Writer) WriteBool(v bool) *Writer {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w
}

// WriteUint appends a fixed-width little-endian unsigned integer of
// 8, 16, 32 or 64 bits.
func (w *Writer) WriteUint(v uint64, bits int) *Writer {
	for i := 0; i < bits/8; i++ {
		w.buf = append(w.buf, byte(v))
		v >>= 8
	}
	return w
}

func (w *Writer) WriteInt(v int64, bits int) *Writer {
	return w.WriteUint(uint64(v), bits)
}

// WriteBigUint appends a fixed-width little-endian unsigned integer of
// up to 256 bits.
func (w *Writer) WriteBigUint(v *big.Int, bits int) error {
	if v.Sign() < 0 {
		return ErrorCodeValueOutOfRange.Errorf("fail to write u%d, negative value %s", bits, v)
	}
	if v.BitLen() > bits {
		return ErrorCodeValueOutOfRange.Errorf("fail to write u%d, out of range %s", bits, v)
	}
	w.buf = append(w.buf, bigToLE(v, bits/8)...)
	return nil
}

// WriteBigInt appends a fixed-width little-endian two's complement
// integer of up to 256 bits.
func (w *Writer) WriteBigInt(v *big.Int, bits int) error {
	min := new(big.Int).Lsh(big.NewInt(-1), uint(bits-1))
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits-1)), big.NewInt(1))
	if v.Cmp(min) < 0 || v.Cmp(max) > 0 {
		return ErrorCodeValueOutOfRange.Errorf("fail to write i%d, out of range %s", bits, v)
	}
	u := v
	if v.Sign() < 0 {
		u = new(big.Int).Add(v, new(big.Int).Lsh(big.NewInt(1), uint(bits)))
	}
	w.buf = append(w.buf, bigToLE(u, bits/8)...)
	return nil
}

// WriteCompactUint appends a compact-encoded unsigned integer.
func (w *Writer) WriteCompactUint(v uint64) *Writer {
	switch {
	case v <= compactSingleMax:
		w.buf = append(w.buf, byte(v)<<2)
	case v <= compactTwoMax:
		u := v<<2 | 0b01
		w.buf = append(w.buf, byte(u), byte(u>>8))
	case v <= compactFourMax:
		u := v<<2 | 0b10
		w.buf = append(w.buf, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
	default:
		b := leBytesMinimal(new(big.Int).SetUint64(v))
		w.buf = append(w.buf, byte(len(b)-4)<<2|0b11)
		w.buf = append(w.buf, b...)
	}
	return w
}

// WriteCompact appends a compact-encoded unsigned big integer.
func (w *Writer) WriteCompact(v *big.Int) error {
	if v.Sign() < 0 {
		return ErrorCodeValueOutOfRange.Errorf("fail to write compact, negative value %s", v)
	}
	if v.IsUint64() {
		w.WriteCompactUint(v.Uint64())
		return nil
	}
	b := leBytesMinimal(v)
	if len(b) > compactBigMax {
		return ErrorCodeValueOutOfRange.Errorf("fail to write compact, out of range %s", v)
	}
	w.buf = append(w.buf, byte(len(b)-4)<<2|0b11)
	w.buf = append(w.buf, b...)
	return nil
}

// bigToLE renders a non-negative integer as exactly n little-endian bytes.
func bigToLE(v *big.Int, n int) []byte {
	be := v.Bytes()
	le := make([]byte, n)
	for i := 0; i < len(be); i++ {
		le[i] = be[len(be)-1-i]
	}
	return le
}

// leBytesMinimal renders a positive integer as its shortest
// little-endian form, at least four bytes for the compact big mode.
func leBytesMinimal(v *big.Int) []byte {
	be := v.Bytes()
	n := len(be)
	if n < 4 {
		n = 4
	}
	le := make([]byte, n)
	for i := 0; i < len(be); i++ {
		le[i] = be[len(be)-1-i]
	}
	return le
}

func leToBig(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i := 0; i < len(b); i++ {
		be[i] = b[len(b)-1-i]
	}
	return new(big.Int).SetBytes(be)
}
