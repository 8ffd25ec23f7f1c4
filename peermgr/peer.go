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

import (
	"time"

	"github.com/bitrubcoin-dev/bitsquare/connmanager"
)

// Peer is a single catalog record. Identity is the node address alone;
// FirstSeen and FailedAttempts are bookkeeping
type Peer struct {
	NodeAddress    connmanager.NodeAddress `json:"nodeAddress"`
	FirstSeen      time.Time               `json:"firstSeen"`
	FailedAttempts int                     `json:"failedAttempts"`
}

func NewPeer(
	nodeAddress connmanager.NodeAddress,
	firstSeen time.Time,
) *Peer {
	return &Peer{
		NodeAddress: nodeAddress,
		FirstSeen:   firstSeen,
	}
}

func (p *Peer) IncreaseFailedAttempts() {
	p.FailedAttempts++
}

func (p *Peer) Age(now time.Time) time.Duration {
	return now.Sub(p.FirstSeen)
}
