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

package node

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/bitrubcoin-dev/bitsquare"
	"github.com/bitrubcoin-dev/bitsquare/connmanager"
	"github.com/bitrubcoin-dev/bitsquare/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Run(logger *slog.Logger, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("config: %+v", cfg))
	logger.Debug(
		fmt.Sprintf("topology: %+v", config.GetTopologyConfig()),
	)
	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port))
	if err != nil {
		return err
	}
	var localAddress connmanager.NodeAddress
	if cfg.LocalAddress != "" {
		localAddress, err = connmanager.ParseNodeAddress(cfg.LocalAddress)
		if err != nil {
			return err
		}
	}
	logger.Info(
		fmt.Sprintf(
			"node: listening for p2p connections on %s",
			fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port),
		),
	)
	n, err := bitsquare.New(
		bitsquare.NewConfig(
			bitsquare.WithLogger(logger),
			bitsquare.WithDataDir(cfg.DataDir),
			bitsquare.WithLocalAddress(localAddress),
			bitsquare.WithMaxConnections(cfg.MaxConnections),
			bitsquare.WithListeners(
				connmanager.ListenerConfig{
					Listener: l,
				},
			),
			// Enable metrics with default prometheus registry
			bitsquare.WithPrometheusRegistry(prometheus.DefaultRegisterer),
			bitsquare.WithTracing(cfg.Tracing),
			bitsquare.WithTracingStdout(cfg.TracingStdout),
			bitsquare.WithTopologyConfig(config.GetTopologyConfig()),
		),
	)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		fmt.Sprintf(
			"node: serving prometheus metrics on %s",
			fmt.Sprintf("%s:%d", cfg.Metrics.BindAddr, cfg.Metrics.Port),
		),
	)
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", cfg.Metrics.BindAddr, cfg.Metrics.Port), nil); err != nil {
			logger.Error(
				fmt.Sprintf("node: failed to start metrics listener: %s", err),
			)
			os.Exit(1)
		}
	}()
	if err := n.Run(); err != nil {
		return err
	}
	return nil
}
