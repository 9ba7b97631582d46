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

package api

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/client"
	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
)

// Network binds a chain connection and its signing context under a
// configured network name.
type Network struct {
	Client   client.Client
	Monitor  *client.EventMonitor
	Keystore *client.Keystore
	Signer   client.Signer
	Pallet   string
}

// ResolveSigner maps a request signer reference to a signer, the
// network default when the reference is empty.
func (n *Network) ResolveSigner(spec string) (client.Signer, error) {
	if spec == "" {
		if n.Signer == nil {
			return nil, errors.Errorf("required signer")
		}
		return n.Signer, nil
	}
	if n.Keystore == nil {
		return nil, errors.Errorf("not supported signer %s without keystore", spec)
	}
	return n.Keystore.Resolve(spec)
}

// Contract is a metadata document registered for an address on one
// network, ready to serve queries, invocations and event streams.
type Contract struct {
	name    string
	network string
	address contract.Address
	doc     *metadata.Document
	h       *client.Handler
}

func NewContract(network string, n *Network, address contract.Address, b []byte, l log.Logger) (*Contract, error) {
	doc, err := metadata.NewDocument(b)
	if err != nil {
		return nil, err
	}
	h := client.NewHandler(doc, address, n.Client, l)
	if n.Pallet != "" {
		h.SetPallet(n.Pallet)
	}
	return &Contract{
		name:    ContractName(network, address),
		network: network,
		address: address,
		doc:     doc,
		h:       h,
	}, nil
}

// ContractName is the registry key of a contract, one per network and
// address pair.
func ContractName(network string, address contract.Address) string {
	return fmt.Sprintf("%s|%s", network, address)
}

func (s *Contract) Name() string {
	return s.name
}

func (s *Contract) Document() *metadata.Document {
	return s.doc
}

func (s *Contract) Info() *ContractInfo {
	d := s.doc
	ci := &ContractInfo{
		Name:         d.Name(),
		Version:      d.ContractVersion(),
		Network:      s.network,
		Address:      s.address,
		Constructors: make([]MethodInfo, 0, len(d.Spec.Constructors)),
		Messages:     make([]MethodInfo, 0, len(d.Spec.Messages)),
	}
	for i := range d.Spec.Constructors {
		c := &d.Spec.Constructors[i]
		ci.Constructors = append(ci.Constructors, MethodInfo{
			Label:    c.Label,
			Selector: c.Selector.String(),
			Args:     argLabels(c.Args),
			Mutates:  true,
			Payable:  c.Payable,
		})
	}
	for i := range d.Spec.Messages {
		m := &d.Spec.Messages[i]
		ci.Messages = append(ci.Messages, MethodInfo{
			Label:    m.Label,
			Selector: m.Selector.String(),
			Args:     argLabels(m.Args),
			Mutates:  m.Mutates,
			Payable:  m.Payable,
		})
	}
	for i := range d.Spec.Events {
		ci.Events = append(ci.Events, d.Spec.Events[i].Label)
	}
	return ci
}

func argLabels(args []metadata.ArgSpec) []string {
	if len(args) == 0 {
		return nil
	}
	labels := make([]string, len(args))
	for i, a := range args {
		if len(a.Type.DisplayName) > 0 {
			labels[i] = fmt.Sprintf("%s:%s", a.Label, strings.Join(a.Type.DisplayName, "::"))
		} else {
			labels[i] = a.Label
		}
	}
	return labels
}

type ContractInfo struct {
	Name         string           `json:"name"`
	Version      string           `json:"version,omitempty"`
	Network      string           `json:"network"`
	Address      contract.Address `json:"address"`
	Constructors []MethodInfo     `json:"constructors"`
	Messages     []MethodInfo     `json:"messages"`
	Events       []string         `json:"events,omitempty"`
}

type MethodInfo struct {
	Label    string   `json:"label"`
	Selector string   `json:"selector"`
	Args     []string `json:"args,omitempty"`
	Mutates  bool     `json:"mutates,omitempty"`
	Payable  bool     `json:"payable,omitempty"`
}

// ParseAmount parses a base unit balance given as a decimal string,
// nil for the empty string.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.Errorf("invalid amount %s", s)
	}
	return v, nil
}

// ParseSalt parses a deploy salt given as 0x hex, nil for the empty
// string so the zero salt applies.
func ParseSalt(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Errorf("invalid salt %s", s)
	}
	if len(b) > 32 {
		return nil, errors.Errorf("invalid salt length %d, max 32", len(b))
	}
	return b, nil
}
