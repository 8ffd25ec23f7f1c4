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

package peermgr

// ConnectionLimits is the ladder of connection caps derived from a single
// max-connections input. Modify NewConnectionLimits to change the
// relationships between the limits
type ConnectionLimits struct {
	MaxConnections int
	MinConnections int
	PeerLimit      int
	NonDirectLimit int
	AbsoluteLimit  int
}

func NewConnectionLimits(maxConnections int) ConnectionLimits {
	return ConnectionLimits{
		MaxConnections: maxConnections,
		MinConnections: max(1, maxConnections-4),
		PeerLimit:      maxConnections + 4,
		NonDirectLimit: maxConnections + 8,
		AbsoluteLimit:  maxConnections + 18,
	}
}

// EffectiveMax is the hard ceiling on connections of any kind
func (l ConnectionLimits) EffectiveMax() int {
	return l.AbsoluteLimit
}
