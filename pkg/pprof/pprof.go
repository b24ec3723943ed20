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

package pprof

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/go-arcade/orchestrator/pkg/log"
)

// Conf is the pprof section of the orchestrator config.
type Conf struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

func (c *Conf) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 6060
	}
	if c.Path == "" {
		c.Path = "/debug/pprof"
	}
}

type Server struct {
	conf   Conf
	server *http.Server
}

func NewServer(conf Conf) *Server {
	conf.SetDefaults()
	return &Server{conf: conf}
}

func (s *Server) handler() http.Handler {
	prefix := s.conf.Path
	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/", pprof.Index)
	mux.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
	mux.HandleFunc(prefix+"/profile", pprof.Profile)
	mux.HandleFunc(prefix+"/symbol", pprof.Symbol)
	mux.HandleFunc(prefix+"/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle(prefix+"/"+name, pprof.Handler(name))
	}
	return mux
}

// Run serves profiles until ctx ends. A disabled server returns at once.
func (s *Server) Run(ctx context.Context) error {
	if !s.conf.Enabled {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.conf.Host, s.conf.Port)
	s.server = &http.Server{Addr: addr, Handler: s.handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("pprof server started", "address", addr, "path", s.conf.Path)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.server.Shutdown(context.WithoutCancel(ctx))
	}
}
