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

	"github.com/inkforge/inkforge/scale"
)

// Weight is the two-dimensional gas of the contracts pallet.
type Weight struct {
	RefTime   uint64 `json:"refTime"`
	ProofSize uint64 `json:"proofSize"`
}

const (
	storageDepositRefund = 0

	// flagRevert marks a completed execution whose state was rolled back.
	flagRevert = 0x1
)

// ExecResult is the decoded envelope of a dry-run contract call.
type ExecResult struct {
	GasConsumed        Weight
	GasRequired        Weight
	StorageDepositKind uint8
	StorageDeposit     *big.Int
	DebugMessage       string
	Success            bool
	Flags              uint32
	Data               []byte
}

func (r *ExecResult) Reverted() bool {
	return r.Success && r.Flags&flagRevert != 0
}

// Err returns the execution failure as an error, nil on success.
func (r *ExecResult) Err() error {
	if r.Success {
		return nil
	}
	if r.DebugMessage != "" {
		return ErrorCodeExecutionFailed.Errorf("contract execution failed, debug:%s", r.DebugMessage)
	}
	return ErrorCodeExecutionFailed.Errorf("contract execution failed")
}

// DecodeExecResult decodes the runtime response of a dry-run call.
// The deposit value is present only for a non-refund discriminant,
// matching the runtime layout.
func DecodeExecResult(data []byte) (*ExecResult, error) {
	r := scale.NewReader(data)
	ret := &ExecResult{}
	var err error
	if ret.GasConsumed, err = readWeight(r); err != nil {
		return nil, err
	}
	if ret.GasRequired, err = readWeight(r); err != nil {
		return nil, err
	}
	if ret.StorageDepositKind, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if ret.StorageDepositKind != storageDepositRefund {
		if ret.StorageDeposit, err = r.ReadBigUint(128); err != nil {
			return nil, err
		}
	}
	debug, err := r.ReadByteSlice()
	if err != nil {
		return nil, err
	}
	ret.DebugMessage = string(debug)
	disc, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if disc != 0 {
		codecLogger.Debugf("exec result error discriminant:%d offset:%d", disc, r.Offset())
		return ret, nil
	}
	flags, err := r.ReadUint(32)
	if err != nil {
		return nil, err
	}
	ret.Flags = uint32(flags)
	if ret.Data, err = r.ReadByteSlice(); err != nil {
		return nil, err
	}
	ret.Success = true
	return ret, nil
}

func readWeight(r *scale.Reader) (Weight, error) {
	refTime, err := r.ReadUint(64)
	if err != nil {
		return Weight{}, err
	}
	proofSize, err := r.ReadUint(64)
	if err != nil {
		return Weight{}, err
	}
	return Weight{RefTime: refTime, ProofSize: proofSize}, nil
}
