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
	"math/big"
	"testing"

	"github.com/icon-project/btp2/common/errors"
	"github.com/stretchr/testify/assert"

	"github.com/inkforge/inkforge/scale"
)

func execResultHeader(depositKind byte, deposit *big.Int, debug string) *scale.Writer {
	w := scale.NewWriter()
	w.WriteUint(100, 64).WriteUint(10, 64)
	w.WriteUint(200, 64).WriteUint(20, 64)
	w.WriteRaw([]byte{depositKind})
	if depositKind != storageDepositRefund {
		if err := w.WriteBigUint(deposit, 128); err != nil {
			panic(err)
		}
	}
	w.WriteBytes([]byte(debug))
	return w
}

func TestDecodeExecResultOk(t *testing.T) {
	w := execResultHeader(0, nil, "dry run ok")
	w.WriteRaw([]byte{0})
	w.WriteUint(0, 32)
	w.WriteBytes([]byte{0x00, 0x01})

	r, err := DecodeExecResult(w.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, Weight{RefTime: 100, ProofSize: 10}, r.GasConsumed)
	assert.Equal(t, Weight{RefTime: 200, ProofSize: 20}, r.GasRequired)
	assert.Equal(t, uint8(0), r.StorageDepositKind)
	assert.Nil(t, r.StorageDeposit)
	assert.Equal(t, "dry run ok", r.DebugMessage)
	assert.True(t, r.Success)
	assert.Equal(t, uint32(0), r.Flags)
	assert.Equal(t, []byte{0x00, 0x01}, r.Data)
	assert.NoError(t, r.Err())
	assert.False(t, r.Reverted())
}

func TestDecodeExecResultCharge(t *testing.T) {
	w := execResultHeader(1, big.NewInt(777), "")
	w.WriteRaw([]byte{0})
	w.WriteUint(0, 32)
	w.WriteBytes(nil)

	r, err := DecodeExecResult(w.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, uint8(1), r.StorageDepositKind)
	assert.Equal(t, big.NewInt(777), r.StorageDeposit)
	assert.Equal(t, "", r.DebugMessage)
	assert.True(t, r.Success)
	assert.Equal(t, []byte{}, r.Data)
}

func TestDecodeExecResultError(t *testing.T) {
	w := execResultHeader(0, nil, "panicked at overflow")
	w.WriteRaw([]byte{1, 0xaa, 0xbb})

	r, err := DecodeExecResult(w.Bytes())
	assert.NoError(t, err)
	assert.False(t, r.Success)
	assert.Nil(t, r.Data)
	err = r.Err()
	assert.Error(t, err)
	assert.Equal(t, ErrorCodeExecutionFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "panicked at overflow")
}

func TestDecodeExecResultReverted(t *testing.T) {
	w := execResultHeader(0, nil, "")
	w.WriteRaw([]byte{0})
	w.WriteUint(flagRevert, 32)
	w.WriteBytes([]byte{0x01, 0x00})

	r, err := DecodeExecResult(w.Bytes())
	assert.NoError(t, err)
	assert.True(t, r.Success)
	assert.True(t, r.Reverted())
}

func TestDecodeExecResultTruncated(t *testing.T) {
	w := execResultHeader(0, nil, "x")
	full := w.Bytes()
	for _, n := range []int{0, 8, 16, 31, 33, len(full)} {
		if n > len(full) {
			continue
		}
		_, err := DecodeExecResult(full[:n])
		assert.Error(t, err, "n:%d", n)
		assert.Equal(t, scale.ErrorCodeTruncatedInput, errors.CodeOf(err), "n:%d", n)
	}
}
