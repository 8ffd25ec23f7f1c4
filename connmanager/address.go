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

package connmanager

import (
	"fmt"
	"net"
	"strconv"
)

// NodeAddress is the advertised network identity of a node. Two addresses
// are equal when host name and port are equal
type NodeAddress struct {
	HostName string `json:"hostName" yaml:"hostName"`
	Port     uint16 `json:"port"     yaml:"port"`
}

func NewNodeAddress(hostName string, port uint16) NodeAddress {
	return NodeAddress{
		HostName: hostName,
		Port:     port,
	}
}

// ParseNodeAddress parses a "host:port" string into a NodeAddress
func ParseNodeAddress(s string) (NodeAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("invalid node address %q: %s", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("invalid node address port %q: %s", s, err)
	}
	return NodeAddress{
		HostName: host,
		Port:     uint16(port),
	}, nil
}

func (a NodeAddress) String() string {
	return net.JoinHostPort(a.HostName, strconv.Itoa(int(a.Port)))
}

func (a NodeAddress) IsZero() bool {
	return a.HostName == "" && a.Port == 0
}
