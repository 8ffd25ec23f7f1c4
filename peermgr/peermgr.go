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
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/bitrubcoin-dev/bitsquare/clock"
	"github.com/bitrubcoin-dev/bitsquare/connmanager"
	"github.com/bitrubcoin-dev/bitsquare/event"

	bclock "github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	checkMaxConnectionsDelay = 5 * time.Second
	// Use a long delay as a bootstrapping peer might need a while until it
	// knows its own address
	removeAnonymousPeerDelay = 120 * time.Second
)

// NetworkNode is the view of the transport the peer manager consumes
type NetworkNode interface {
	AllConnections() []connmanager.Connection
	ConfirmedConnections() []connmanager.Connection
	ConfirmedAddresses() []connmanager.NodeAddress
	LocalAddress() connmanager.NodeAddress
}

type PeerManager struct {
	config    PeerManagerConfig
	limits    ConnectionLimits
	catalog   *Catalog
	exec      *executor
	listeners listenerList
	seeds     map[connmanager.NodeAddress]bool
	metrics   peerManagerMetrics

	// The fields below are owned by the executor goroutine
	checkMaxConnectionsTimer *execTimer
	lostAllConnections       bool
	stopped                  bool

	openedSubId event.EventSubscriberId
	closedSubId event.EventSubscriberId
}

type PeerManagerConfig struct {
	Logger   *slog.Logger
	EventBus *event.EventBus
	Network  NetworkNode
	// Store may be nil to keep the persisted set in memory only
	Store PeerStore
	// Clock drives timers and aging. Defaults to the wall clock; tests
	// inject a mock
	Clock bclock.Clock
	// TickSource, when set, provides the standby-wake signal
	TickSource *clock.Clock
	// SeedNodes may be empty; a lone bootstrap seed has no other seeds
	SeedNodes      []connmanager.NodeAddress
	MaxConnections int
	// FaultThreshold defaults to DefaultFaultThreshold
	FaultThreshold int
	// IdleTolerance defaults to clock.IdleTolerance
	IdleTolerance time.Duration
	// Rand drives random catalog purging
	Rand         *rand.Rand
	PromRegistry prometheus.Registerer
}

func NewPeerManager(cfg PeerManagerConfig) *PeerManager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "peermgr")
	if cfg.Clock == nil {
		cfg.Clock = bclock.New()
	}
	if cfg.IdleTolerance <= 0 {
		cfg.IdleTolerance = clock.IdleTolerance
	}
	p := &PeerManager{
		config: cfg,
		limits: NewConnectionLimits(cfg.MaxConnections),
		seeds:  make(map[connmanager.NodeAddress]bool),
	}
	for _, seed := range cfg.SeedNodes {
		p.seeds[seed] = true
	}
	p.catalog = NewCatalog(
		CatalogConfig{
			Logger:         cfg.Logger,
			Clock:          cfg.Clock,
			Rand:           cfg.Rand,
			Store:          cfg.Store,
			IsSelf:         p.IsSelf,
			FaultThreshold: cfg.FaultThreshold,
			AbsoluteLimit:  p.limits.AbsoluteLimit,
		},
	)
	p.exec = newExecutor(cfg.Clock)
	if cfg.PromRegistry != nil {
		p.initMetrics(cfg.PromRegistry)
	}
	return p
}

func (p *PeerManager) Start() error {
	// Setup connmanager event listeners
	if p.config.EventBus != nil {
		p.openedSubId = p.config.EventBus.SubscribeFunc(
			connmanager.ConnectionOpenedEventType,
			p.handleConnectionOpenedEvent,
		)
		p.closedSubId = p.config.EventBus.SubscribeFunc(
			connmanager.ConnectionClosedEventType,
			p.handleConnectionClosedEvent,
		)
	}
	if p.config.TickSource != nil {
		p.config.TickSource.AddListener(p)
	}
	return nil
}

func (p *PeerManager) Shutdown() {
	if p.config.EventBus != nil {
		p.config.EventBus.Unsubscribe(
			connmanager.ConnectionOpenedEventType,
			p.openedSubId,
		)
		p.config.EventBus.Unsubscribe(
			connmanager.ConnectionClosedEventType,
			p.closedSubId,
		)
	}
	if p.config.TickSource != nil {
		p.config.TickSource.RemoveListener(p)
	}
	done := make(chan struct{})
	if p.exec.post(func() {
		p.stopCheckMaxConnectionsTimer()
		close(done)
	}) {
		<-done
	}
	p.exec.stop()
}

// AddListener registers a lifecycle listener
func (p *PeerManager) AddListener(listener Listener) {
	p.listeners.add(listener)
}

// RemoveListener deregisters a lifecycle listener
func (p *PeerManager) RemoveListener(listener Listener) {
	p.listeners.remove(listener)
}

// Catalog exposes the peer catalog
func (p *PeerManager) Catalog() *Catalog {
	return p.catalog
}

// EffectiveMaxConnections is the hard ceiling on connections of any kind
func (p *PeerManager) EffectiveMaxConnections() int {
	limitsCh := make(chan ConnectionLimits, 1)
	if p.exec.post(func() { limitsCh <- p.limits }) {
		return (<-limitsCh).EffectiveMax()
	}
	return p.limits.EffectiveMax()
}

// SetMaxConnections recomputes the limit ladder from a new max-connections
// input. All derived limits change together
func (p *PeerManager) SetMaxConnections(maxConnections int) {
	p.exec.post(func() {
		p.limits = NewConnectionLimits(maxConnections)
		p.catalog.SetAbsoluteLimit(p.limits.AbsoluteLimit)
		p.config.Logger.Info(
			fmt.Sprintf(
				"connection limits updated: max=%d, min=%d, peer=%d, nonDirect=%d, absolute=%d",
				p.limits.MaxConnections,
				p.limits.MinConnections,
				p.limits.PeerLimit,
				p.limits.NonDirectLimit,
				p.limits.AbsoluteLimit,
			),
		)
	})
}

///////////////////////////////////////////////////////////////////////////
// Transport events
///////////////////////////////////////////////////////////////////////////

func (p *PeerManager) handleConnectionOpenedEvent(evt event.Event) {
	e, ok := evt.Data.(connmanager.ConnectionOpenedEvent)
	if !ok {
		return
	}
	p.OnConnection(e.Conn)
}

func (p *PeerManager) handleConnectionClosedEvent(evt event.Event) {
	e, ok := evt.Data.(connmanager.ConnectionClosedEvent)
	if !ok {
		return
	}
	p.OnDisconnect(e.Conn)
}

// OnConnection marshals a new-connection notification onto the executor
func (p *PeerManager) OnConnection(conn connmanager.Connection) {
	p.exec.post(func() {
		p.handleConnection(conn)
	})
}

// OnDisconnect marshals a connection-closed notification onto the executor
func (p *PeerManager) OnDisconnect(conn connmanager.Connection) {
	p.exec.post(func() {
		p.handleDisconnect(conn)
	})
}

// OnError receives transient transport errors. They carry no policy
// consequence
func (p *PeerManager) OnError(err error) {
}

func (p *PeerManager) handleConnection(conn connmanager.Connection) {
	if p.isSeedNodeConn(conn) {
		conn.SetPeerType(connmanager.PeerTypeSeedNode)
	}
	p.doHousekeeping()
	if p.lostAllConnections {
		p.lostAllConnections = false
		p.stopped = false
		for _, l := range p.listeners.snapshot() {
			l.OnNewConnectionAfterAllConnectionsLost()
		}
	}
	p.updateMetrics()
}

func (p *PeerManager) handleDisconnect(conn connmanager.Connection) {
	p.handleConnectionFault(conn)
	// Only the transition into the all-lost state notifies; further
	// disconnects processed while already lost stay silent
	if len(p.config.Network.AllConnections()) == 0 && !p.lostAllConnections {
		p.lostAllConnections = true
		p.stopped = true
		p.config.Logger.Warn("we lost all connections")
		for _, l := range p.listeners.snapshot() {
			l.OnAllConnectionsLost()
		}
	}
	p.updateMetrics()
}

func (p *PeerManager) handleConnectionFault(conn connmanager.Connection) {
	address, ok := conn.PeerAddress()
	if !ok {
		return
	}
	_, hadRuleViolation := conn.RuleViolation()
	p.catalog.RegisterFault(address, hadRuleViolation)
}

// HandleConnectionFault records a failed connection attempt for a peer that
// never produced a connection handle
func (p *PeerManager) HandleConnectionFault(
	address connmanager.NodeAddress,
) {
	p.exec.post(func() {
		p.catalog.RegisterFault(address, false)
	})
}

///////////////////////////////////////////////////////////////////////////
// Housekeeping
///////////////////////////////////////////////////////////////////////////

func (p *PeerManager) doHousekeeping() {
	if p.checkMaxConnectionsTimer != nil {
		return
	}
	p.checkMaxConnectionsTimer = p.exec.runAfter(
		checkMaxConnectionsDelay,
		p.runHousekeeping,
	)
}

func (p *PeerManager) runHousekeeping() {
	p.checkMaxConnectionsTimer = nil
	if p.stopped {
		p.config.Logger.Warn(
			"we have stopped already, ignoring housekeeping run",
		)
		return
	}
	p.removeAnonymousPeers()
	p.removeSuperfluousSeedNodes()
	p.catalog.PurgeOldReported()
	p.catalog.PurgeOldPersisted()
	p.checkMaxConnections(p.limits.MaxConnections)
	p.updateMetrics()
}

func (p *PeerManager) stopCheckMaxConnectionsTimer() {
	if p.checkMaxConnectionsTimer != nil {
		p.checkMaxConnectionsTimer.stop()
		p.checkMaxConnectionsTimer = nil
	}
}

// checkMaxConnections walks the victim ladder until the connection count
// drops back under the limit. Each pass shuts down at most one connection
// and posts itself again from the shutdown completion, so transport events
// can interleave between passes
func (p *PeerManager) checkMaxConnections(limit int) bool {
	allConnections := p.config.Network.AllConnections()
	size := len(allConnections)
	p.config.Logger.Debug(
		fmt.Sprintf("we have %d connections open, our limit is %d", size, limit),
	)
	if size <= limit {
		return false
	}
	p.config.Logger.Info(
		"we have too many connections open, trying to remove inbound connections of type PEER",
	)
	candidates := filterConnections(allConnections, func(c connmanager.Connection) bool {
		return c.Direction() == connmanager.DirectionInbound &&
			c.PeerType() == connmanager.PeerTypePeer
	})
	if len(candidates) == 0 {
		p.config.Logger.Info(
			fmt.Sprintf(
				"no candidates found, checking our peer limit of %d",
				p.limits.PeerLimit,
			),
		)
		if size > p.limits.PeerLimit {
			candidates = filterConnections(allConnections, func(c connmanager.Connection) bool {
				return c.PeerType() == connmanager.PeerTypePeer
			})
			if len(candidates) == 0 {
				p.config.Logger.Info(
					fmt.Sprintf(
						"no candidates found, checking our non-direct limit of %d",
						p.limits.NonDirectLimit,
					),
				)
				if size > p.limits.NonDirectLimit {
					candidates = filterConnections(allConnections, func(c connmanager.Connection) bool {
						return c.PeerType() != connmanager.PeerTypeDirectMsgPeer
					})
					if len(candidates) == 0 {
						p.config.Logger.Info(
							fmt.Sprintf(
								"no candidates found, checking our absolute limit of %d",
								p.limits.AbsoluteLimit,
							),
						)
						if size > p.limits.AbsoluteLimit {
							candidates = allConnections
						}
					}
				}
			}
		}
	}
	if len(candidates) == 0 {
		p.config.Logger.Warn(
			"no candidates found to remove, keeping all connections",
		)
		return false
	}
	sortByLastActivity(candidates)
	victim := candidates[0]
	p.config.Logger.Info(
		"shutting down the connection with the oldest activity",
		"connection_id", victim.Id(),
	)
	if !victim.IsStopped() {
		p.countEviction(connmanager.CloseReasonTooManyConnectionsOpen)
		victim.Shutdown(
			connmanager.CloseReasonTooManyConnectionsOpen,
			func() {
				p.exec.post(func() {
					p.checkMaxConnections(limit)
				})
			},
		)
	}
	return true
}

// removeAnonymousPeers schedules a deferred check for every connection
// whose peer address is still unknown. A connection that has not announced
// its address by the time the check fires gets shut down
func (p *PeerManager) removeAnonymousPeers() {
	for _, conn := range p.config.Network.AllConnections() {
		if _, ok := conn.PeerAddress(); ok {
			continue
		}
		tmpConn := conn
		p.exec.runAfter(removeAnonymousPeerDelay, func() {
			if _, ok := tmpConn.PeerAddress(); !ok && !tmpConn.IsStopped() {
				p.config.Logger.Info(
					"closing connection as the peer address is still unknown",
					"connection_id", tmpConn.Id(),
				)
				p.countEviction(connmanager.CloseReasonUnknownPeerAddress)
				tmpConn.Shutdown(
					connmanager.CloseReasonUnknownPeerAddress,
					nil,
				)
			}
		})
	}
}

// removeSuperfluousSeedNodes releases seed connections a well-connected
// node no longer needs. Seed nodes are scarce shared infrastructure; at
// least one connection to them is always kept
func (p *PeerManager) removeSuperfluousSeedNodes() {
	confirmed := p.config.Network.ConfirmedConnections()
	if len(confirmed) <= p.limits.MaxConnections {
		return
	}
	if !p.HasSufficientConnections() {
		return
	}
	candidates := filterConnections(confirmed, p.isSeedNodeConn)
	if len(candidates) <= 1 {
		return
	}
	sortByLastActivity(candidates)
	victim := candidates[0]
	p.config.Logger.Info(
		"shutting down the seed node connection with the oldest activity",
		"connection_id", victim.Id(),
	)
	p.countEviction(connmanager.CloseReasonTooManySeedNodesConnected)
	victim.Shutdown(
		connmanager.CloseReasonTooManySeedNodesConnected,
		func() {
			p.exec.post(p.removeSuperfluousSeedNodes)
		},
	)
}

///////////////////////////////////////////////////////////////////////////
// Reported peers
///////////////////////////////////////////////////////////////////////////

// AddToReportedPeers feeds a gossiped peer batch into the catalogs. The
// origin connection is charged with a rule violation when the batch exceeds
// the acceptable size
func (p *PeerManager) AddToReportedPeers(
	batch []*Peer,
	origin connmanager.Connection,
) {
	p.exec.post(func() {
		p.catalog.AddReported(batch, origin)
		p.updateMetrics()
	})
}

// ConnectedReportedPeers derives peer records from the currently confirmed
// connections
func (p *PeerManager) ConnectedReportedPeers() []*Peer {
	now := p.config.Clock.Now()
	var ret []*Peer
	for _, conn := range p.config.Network.ConfirmedConnections() {
		if address, ok := conn.PeerAddress(); ok {
			ret = append(ret, NewPeer(address, now))
		}
	}
	return ret
}

// ConnectedNonSeedNodeReportedPeers is ConnectedReportedPeers without seed
// nodes and without the excluded addresses. This is the set shared with
// gossip partners
func (p *PeerManager) ConnectedNonSeedNodeReportedPeers(
	excluded ...connmanager.NodeAddress,
) []*Peer {
	var ret []*Peer
	for _, peer := range p.ConnectedReportedPeers() {
		if p.IsSeedNode(peer.NodeAddress) {
			continue
		}
		isExcluded := false
		for _, excludedAddr := range excluded {
			if peer.NodeAddress == excludedAddr {
				isExcluded = true
				break
			}
		}
		if isExcluded {
			continue
		}
		ret = append(ret, peer)
	}
	return ret
}

///////////////////////////////////////////////////////////////////////////
// Predicates
///////////////////////////////////////////////////////////////////////////

// HasSufficientConnections reports whether the node considers itself well
// connected
func (p *PeerManager) HasSufficientConnections() bool {
	return len(p.config.Network.ConfirmedAddresses()) >= p.limits.MinConnections
}

func (p *PeerManager) IsSeedNode(address connmanager.NodeAddress) bool {
	return p.seeds[address]
}

func (p *PeerManager) isSeedNodeConn(conn connmanager.Connection) bool {
	address, ok := conn.PeerAddress()
	return ok && p.seeds[address]
}

// IsSelf reports whether the address is the local node's own. With the
// local address still unknown this is always false
func (p *PeerManager) IsSelf(address connmanager.NodeAddress) bool {
	localAddress := p.config.Network.LocalAddress()
	if localAddress.IsZero() {
		return false
	}
	return address == localAddress
}

// IsConfirmed reports whether a live connection to the address exists
func (p *PeerManager) IsConfirmed(address connmanager.NodeAddress) bool {
	for _, tmpAddress := range p.config.Network.ConfirmedAddresses() {
		if tmpAddress == address {
			return true
		}
	}
	return false
}

///////////////////////////////////////////////////////////////////////////
// Shutdown helpers
///////////////////////////////////////////////////////////////////////////

// ShutDownConnection shuts the connection down unless it is a privileged
// direct-message session
func (p *PeerManager) ShutDownConnection(
	conn connmanager.Connection,
	reason connmanager.CloseConnectionReason,
) {
	if conn.PeerType() != connmanager.PeerTypeDirectMsgPeer {
		conn.Shutdown(reason, nil)
	}
}

// ShutDownConnectionToPeer shuts down the first non-direct connection to
// the given address
func (p *PeerManager) ShutDownConnectionToPeer(
	address connmanager.NodeAddress,
	reason connmanager.CloseConnectionReason,
) {
	for _, conn := range p.config.Network.AllConnections() {
		connAddress, ok := conn.PeerAddress()
		if !ok || connAddress != address {
			continue
		}
		if conn.PeerType() == connmanager.PeerTypeDirectMsgPeer {
			continue
		}
		conn.Shutdown(reason, nil)
		return
	}
}

///////////////////////////////////////////////////////////////////////////
// Clock listener
///////////////////////////////////////////////////////////////////////////

func (p *PeerManager) OnTick() {
}

// OnMissedTick receives the clock source's missed-tick signal. A gap beyond
// the idle tolerance means the host was suspended; housekeeping resumes
func (p *PeerManager) OnMissedTick(missed time.Duration) {
	if missed <= p.config.IdleTolerance {
		return
	}
	p.exec.post(func() {
		p.config.Logger.Warn(
			fmt.Sprintf("we have been in standby mode for %s", missed),
		)
		p.stopped = false
		for _, l := range p.listeners.snapshot() {
			l.OnAwakeFromStandby()
		}
	})
}

///////////////////////////////////////////////////////////////////////////
// Helpers
///////////////////////////////////////////////////////////////////////////

func filterConnections(
	conns []connmanager.Connection,
	keep func(connmanager.Connection) bool,
) []connmanager.Connection {
	var ret []connmanager.Connection
	for _, conn := range conns {
		if keep(conn) {
			ret = append(ret, conn)
		}
	}
	return ret
}

func sortByLastActivity(conns []connmanager.Connection) {
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].LastActivity().Before(conns[j].LastActivity())
	})
}
