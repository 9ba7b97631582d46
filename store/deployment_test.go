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

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	aliceAddress = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bobAddress   = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
)

func TestDeploymentRecord(t *testing.T) {
	db := openTestDB(t)
	r, err := NewDeploymentRepository(db)
	if err != nil {
		assert.FailNow(t, err.Error())
	}

	d1 := &Deployment{
		Network:      "local",
		Contract:     "flipper",
		Address:      aliceAddress,
		CodeHash:     "0x0101",
		TxHash:       "0xaa01",
		Deployer:     bobAddress,
		MetadataPath: "artifacts/flipper.json",
	}
	assert.NoError(t, r.Record(d1))
	assert.True(t, d1.ID > 0)

	d2 := &Deployment{
		Network:  "local",
		Contract: "flipper",
		Address:  aliceAddress,
		CodeHash: "0x0202",
		TxHash:   "0xaa02",
	}
	assert.NoError(t, r.Record(d2))
	assert.Equal(t, d1.ID, d2.ID)

	count, err := r.Count(nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	found, err := r.FindOneByNetworkAndAddress("local", aliceAddress)
	assert.NoError(t, err)
	if assert.NotNil(t, found) {
		assert.Equal(t, "0x0202", found.CodeHash)
		assert.Equal(t, "0xaa02", found.TxHash)
	}

	// same address on another network is its own record
	d3 := &Deployment{
		Network:  "shibuya",
		Contract: "flipper",
		Address:  aliceAddress,
		TxHash:   "0xbb01",
	}
	assert.NoError(t, r.Record(d3))
	assert.NotEqual(t, d1.ID, d3.ID)

	count, err = r.Count(nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)

	missing, err := r.FindOneByNetworkAndAddress("local", bobAddress)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeploymentLookup(t *testing.T) {
	db := openTestDB(t)
	r, err := NewDeploymentRepository(db)
	if err != nil {
		assert.FailNow(t, err.Error())
	}

	for _, d := range []*Deployment{
		{Network: "local", Contract: "flipper", Address: aliceAddress, TxHash: "0x01"},
		{Network: "local", Contract: "flipper", Address: bobAddress, TxHash: "0x02"},
		{Network: "shibuya", Contract: "erc20", Address: aliceAddress, TxHash: "0x03"},
	} {
		assert.NoError(t, r.Record(d))
	}

	latest, err := r.FindLatestByNetworkAndContract("local", "flipper")
	assert.NoError(t, err)
	if assert.NotNil(t, latest) {
		assert.Equal(t, bobAddress, latest.Address)
	}

	latest, err = r.FindLatestByNetworkAndContract("local", "erc20")
	assert.NoError(t, err)
	assert.Nil(t, latest)

	l, err := r.FindByNetwork("local")
	assert.NoError(t, err)
	if assert.Equal(t, 2, len(l)) {
		assert.Equal(t, bobAddress, l[0].Address)
		assert.Equal(t, aliceAddress, l[1].Address)
	}

	l, err = r.FindByNetwork("")
	assert.NoError(t, err)
	assert.Equal(t, 3, len(l))

	page, err := r.PageByNetwork(Pageable{Size: 1}, "local")
	assert.NoError(t, err)
	assert.Equal(t, 2, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	if assert.Equal(t, 1, len(page.Content)) {
		assert.Equal(t, bobAddress, page.Content[0].Address)
	}
}
