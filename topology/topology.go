// Copyright 2026 Bitrub Coin Developers
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package topology

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bitrubcoin-dev/bitsquare/connmanager"
)

// TopologyConfig is the on-disk list of well-known bootstrap (seed) nodes.
// It may be empty; a lone seed node starting up has no other seeds
type TopologyConfig struct {
	SeedNodes []TopologyConfigSeedNode `json:"seedNodes"`
}

type TopologyConfigSeedNode struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

func NewTopologyConfigFromJson(jsonData []byte) (*TopologyConfig, error) {
	t := &TopologyConfig{}
	if err := json.Unmarshal(jsonData, t); err != nil {
		return nil, fmt.Errorf("failed to parse topology config: %s", err)
	}
	return t, nil
}

func NewTopologyConfigFromFile(path string) (*TopologyConfig, error) {
	jsonData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %s", err)
	}
	return NewTopologyConfigFromJson(jsonData)
}

// SeedNodeAddresses converts the configured seed entries into node
// addresses
func (t *TopologyConfig) SeedNodeAddresses() []connmanager.NodeAddress {
	ret := make([]connmanager.NodeAddress, 0, len(t.SeedNodes))
	for _, seedNode := range t.SeedNodes {
		ret = append(
			ret,
			connmanager.NewNodeAddress(seedNode.Address, seedNode.Port),
		)
	}
	return ret
}
