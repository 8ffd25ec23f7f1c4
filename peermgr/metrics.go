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
	"github.com/bitrubcoin-dev/bitsquare/connmanager"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type peerManagerMetrics struct {
	connections    prometheus.Gauge
	reportedPeers  prometheus.Gauge
	persistedPeers prometheus.Gauge
	evictionsTotal *prometheus.CounterVec
}

func (p *PeerManager) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	p.metrics.connections = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "peermgr_connections",
			Help: "current number of connections",
		},
	)
	p.metrics.reportedPeers = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "peermgr_reported_peers",
			Help: "current size of the reported peer set",
		},
	)
	p.metrics.persistedPeers = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "peermgr_persisted_peers",
			Help: "current size of the persisted peer set",
		},
	)
	p.metrics.evictionsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peermgr_evictions_total",
			Help: "connections shut down by the peer manager by reason",
		},
		[]string{"reason"},
	)
}

func (p *PeerManager) updateMetrics() {
	if p.metrics.connections == nil {
		return
	}
	p.metrics.connections.Set(
		float64(len(p.config.Network.AllConnections())),
	)
	p.metrics.reportedPeers.Set(float64(p.catalog.ReportedCount()))
	p.metrics.persistedPeers.Set(float64(p.catalog.PersistedCount()))
}

func (p *PeerManager) countEviction(
	reason connmanager.CloseConnectionReason,
) {
	if p.metrics.evictionsTotal == nil {
		return
	}
	p.metrics.evictionsTotal.WithLabelValues(string(reason)).Inc()
}
