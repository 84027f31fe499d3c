// Copyright 2024 The Tektite Authors
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

package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spirit-labs/streamflow/common"
	"github.com/spirit-labs/streamflow/conf"
	log "github.com/spirit-labs/streamflow/logger"
)

// Server exposes the registry of a Metrics over HTTP at /metrics.
type Server struct {
	config     *conf.Config
	httpServer *http.Server
	dummy      bool
}

// NewServer creates a server. A dummy server, used when metrics are disabled, does nothing.
func NewServer(config *conf.Config, metrics *Metrics, dummy bool) *Server {
	if dummy {
		return &Server{dummy: true}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(metrics.Registry(),
		promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{DisableCompression: true})))
	return &Server{
		config: config,
		httpServer: &http.Server{
			Addr:    config.MetricsBind,
			Handler: mux,
		},
	}
}

func (s *Server) Start() error {
	if s.dummy {
		return nil
	}
	common.Go(func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("prometheus http export server failed to listen %v", err)
		} else {
			log.Debugf("Started prometheus http server on address %s", s.config.MetricsBind)
		}
	})
	return nil
}

func (s *Server) Stop() error {
	if s.dummy {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}
