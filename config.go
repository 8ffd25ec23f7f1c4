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

package bitsquare

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/bitrubcoin-dev/bitsquare/connmanager"
	"github.com/bitrubcoin-dev/bitsquare/topology"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	dataDir        string
	logger         *slog.Logger
	listeners      []connmanager.ListenerConfig
	localAddress   connmanager.NodeAddress
	maxConnections int
	seedNodes      []connmanager.NodeAddress
	topologyConfig *topology.TopologyConfig
	promRegistry   prometheus.Registerer
	tracing        bool
	tracingStdout  bool
}

func (n *Node) configValidate() error {
	if n.config.maxConnections <= 0 {
		return fmt.Errorf(
			"invalid max connections value: %d",
			n.config.maxConnections,
		)
	}
	for _, listener := range n.config.listeners {
		if listener.Listener != nil {
			continue
		}
		if listener.ListenNetwork != "" && listener.ListenAddress != "" {
			continue
		}
		return fmt.Errorf(
			"listener must provide net.Listener or listen network/address values",
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new node config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
		maxConnections: 12,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithListeners specifies the listener config(s) to use
func WithListeners(listeners ...connmanager.ListenerConfig) ConfigOptionFunc {
	return func(c *Config) {
		c.listeners = append(c.listeners, listeners...)
	}
}

// WithLocalAddress specifies this node's own advertised address
func WithLocalAddress(localAddress connmanager.NodeAddress) ConfigOptionFunc {
	return func(c *Config) {
		c.localAddress = localAddress
	}
}

// WithMaxConnections specifies the target connection count from which all
// other connection limits are derived
func WithMaxConnections(maxConnections int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxConnections = maxConnections
	}
}

// WithSeedNodes specifies the well-known bootstrap addresses
func WithSeedNodes(seedNodes ...connmanager.NodeAddress) ConfigOptionFunc {
	return func(c *Config) {
		c.seedNodes = append(c.seedNodes, seedNodes...)
	}
}

// WithTopologyConfig specifies a topology.TopologyConfig to source seed nodes from
func WithTopologyConfig(
	topologyConfig *topology.TopologyConfig,
) ConfigOptionFunc {
	return func(c *Config) {
		c.topologyConfig = topologyConfig
	}
}

// WithPrometheusRegistry specifies a registry for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}
