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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionLimitsDerivation(t *testing.T) {
	testDefs := []struct {
		maxConnections int
		expected       ConnectionLimits
	}{
		{
			maxConnections: 1,
			expected: ConnectionLimits{
				MaxConnections: 1,
				MinConnections: 1,
				PeerLimit:      5,
				NonDirectLimit: 9,
				AbsoluteLimit:  19,
			},
		},
		{
			maxConnections: 4,
			expected: ConnectionLimits{
				MaxConnections: 4,
				MinConnections: 1,
				PeerLimit:      8,
				NonDirectLimit: 12,
				AbsoluteLimit:  22,
			},
		},
		{
			maxConnections: 10,
			expected: ConnectionLimits{
				MaxConnections: 10,
				MinConnections: 6,
				PeerLimit:      14,
				NonDirectLimit: 18,
				AbsoluteLimit:  28,
			},
		},
		{
			maxConnections: 12,
			expected: ConnectionLimits{
				MaxConnections: 12,
				MinConnections: 8,
				PeerLimit:      16,
				NonDirectLimit: 20,
				AbsoluteLimit:  30,
			},
		},
	}
	for _, testDef := range testDefs {
		limits := NewConnectionLimits(testDef.maxConnections)
		require.Equal(t, testDef.expected, limits)
		require.Equal(t, limits.AbsoluteLimit, limits.EffectiveMax())
	}
}

func TestConnectionLimitsOrdering(t *testing.T) {
	for maxConnections := 1; maxConnections <= 100; maxConnections++ {
		limits := NewConnectionLimits(maxConnections)
		require.LessOrEqual(t, limits.MinConnections, limits.MaxConnections)
		require.GreaterOrEqual(t, limits.MinConnections, 1)
		require.Less(t, limits.MaxConnections, limits.PeerLimit)
		require.Less(t, limits.PeerLimit, limits.NonDirectLimit)
		require.Less(t, limits.NonDirectLimit, limits.AbsoluteLimit)
	}
}
