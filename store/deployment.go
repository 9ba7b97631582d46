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
	"gorm.io/gorm"
)

const (
	DeploymentTable = "deployment"

	orderByIDDesc = "id desc"
)

// Deployment is one contract instantiation kept for later lookup, the
// address book the call and query commands resolve names against.
type Deployment struct {
	Model
	Network      string `json:"network" gorm:"column:network;index:idx_deployment_network_contract"`
	Contract     string `json:"contract" gorm:"column:contract;index:idx_deployment_network_contract"`
	Address      string `json:"address" gorm:"column:address;index:idx_deployment_address"`
	CodeHash     string `json:"code_hash" gorm:"column:code_hash"`
	TxHash       string `json:"tx_hash" gorm:"column:tx_hash"`
	BlockHash    string `json:"block_hash" gorm:"column:block_hash"`
	Deployer     string `json:"deployer" gorm:"column:deployer"`
	MetadataPath string `json:"metadata_path" gorm:"column:metadata_path"`
}

type DeploymentRepository struct {
	Repository[Deployment]
}

func NewDeploymentRepository(db *gorm.DB) (*DeploymentRepository, error) {
	r, err := NewDefaultRepository[Deployment](db, DeploymentTable)
	if err != nil {
		return nil, err
	}
	return &DeploymentRepository{
		Repository: r,
	}, nil
}

// Record saves the deployment, replacing an earlier record of the same
// address on the same network.
func (r *DeploymentRepository) Record(d *Deployment) error {
	return r.Transaction(func(tx Repository[Deployment]) error {
		found, err := tx.FindOne(&Deployment{
			Network: d.Network,
			Address: d.Address,
		})
		if err != nil {
			return err
		}
		if found != nil {
			d.Model = found.Model
		}
		return tx.Save(d)
	})
}

func (r *DeploymentRepository) FindOneByNetworkAndAddress(network, address string) (*Deployment, error) {
	return r.FindOne(&Deployment{
		Network: network,
		Address: address,
	})
}

// FindLatestByNetworkAndContract returns the most recent deployment of
// the named contract on the network.
func (r *DeploymentRepository) FindLatestByNetworkAndContract(network, contract string) (*Deployment, error) {
	return r.FindOneWithOrder(orderByIDDesc, &Deployment{
		Network:  network,
		Contract: contract,
	})
}

func (r *DeploymentRepository) FindByNetwork(network string) ([]Deployment, error) {
	if len(network) == 0 {
		return r.FindWithOrder(orderByIDDesc, nil)
	}
	return r.FindWithOrder(orderByIDDesc, &Deployment{
		Network: network,
	})
}

// PageByNetwork pages deployments, all networks when network is empty,
// newest first unless the pageable orders otherwise.
func (r *DeploymentRepository) PageByNetwork(p Pageable, network string) (*Page[Deployment], error) {
	if len(p.Sort) == 0 {
		p.Sort = orderByIDDesc
	}
	if len(network) == 0 {
		return r.Page(p, nil)
	}
	return r.Page(p, &Deployment{
		Network: network,
	})
}
