// SPDX-License-Identifier: GPL-3.0-or-later

package whookie

import (
	"fmt"
	"time"

	"github.com/sandialabs/faodel-go/config"
)

// registerBuiltinHooks installs the "/", "/about", "/config", and
// "/bootstraps" hooks named in spec §4.3.
func (s *Server) registerBuiltinHooks() {
	s.hooks.Update("/", s.hookIndex)
	s.hooks.Update("/about", s.hookAbout)
	s.hooks.Update("/config", s.hookConfig)
	s.hooks.Update("/bootstraps", s.hookBootstraps)
}

func (s *Server) hookIndex(_ Args, reply *ReplyStream) {
	reply.Section("Registered hooks", 1)
	rows := make([]KV, 0)
	for _, p := range s.hooks.paths() {
		rows = append(rows, KV{Key: p})
	}
	reply.Table(rows, "", false)
}

func (s *Server) hookAbout(_ Args, reply *ReplyStream) {
	reply.Section(s.appName, 1)
	reply.Table([]KV{
		{Key: "Node ID", Value: s.NodeID().String()},
		{Key: "Address", Value: s.Addr()},
		{Key: "Hostname", Value: hostname()},
		{Key: "Uptime", Value: time.Since(s.startedT).Round(time.Second).String()},
	}, "", true)
}

func (s *Server) hookConfig(_ Args, reply *ReplyStream) {
	reply.Section("Configuration registry", 1)
	rows := make([]KV, 0)
	for _, rec := range config.RegistrySnapshot() {
		rows = append(rows, KV{
			Key:   rec.Key,
			Value: fmt.Sprintf("%s (default=%s)", rec.Type, rec.Default),
		})
	}
	reply.Table(rows, "", true)
}

func (s *Server) hookBootstraps(_ Args, reply *ReplyStream) {
	reply.Section("Bootstrap startup order", 1)
	s.mu.Lock()
	inspector := s.bootstrapInspector
	s.mu.Unlock()
	if inspector == nil {
		reply.Text("no bootstrap registered")
		return
	}
	rows := make([]KV, 0)
	for i, name := range inspector() {
		rows = append(rows, KV{Key: fmt.Sprintf("%d", i+1), Value: name})
	}
	reply.Table(rows, "", false)
}
