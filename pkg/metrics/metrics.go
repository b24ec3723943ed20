// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Conf struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

func (c *Conf) SetDefaults() {
	if c.Port == 0 {
		c.Port = 9464
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}

// Server exposes a private prometheus registry over http.
type Server struct {
	conf     Conf
	registry *prometheus.Registry
	srv      *http.Server
}

func NewServer(conf Conf) *Server {
	conf.SetDefaults()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{conf: conf, registry: registry}
}

func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) Start() error {
	if !s.conf.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(s.conf.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	addr := fmt.Sprintf("%s:%d", s.conf.Host, s.conf.Port)
	s.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infow("metrics server listening", "address", addr, "path", s.conf.Path)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
