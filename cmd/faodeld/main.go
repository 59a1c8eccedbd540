// SPDX-License-Identifier: GPL-3.0-or-later

// Command faodeld runs one faodel-go node: bootstrap brings up whookie,
// an nnti transport, opbox, and dirman in dependency order, then blocks
// until it receives an interrupt.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/sandialabs/faodel-go/bootstrap"
	"github.com/sandialabs/faodel-go/common"
	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/dirman"
	"github.com/sandialabs/faodel-go/nnti"
	"github.com/sandialabs/faodel-go/nnti/fabric"
	"github.com/sandialabs/faodel-go/opbox"
	"github.com/sandialabs/faodel-go/whookie"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "faodeld:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.StringP("config", "c", "", "path to a faodel config file")
		fabricName = pflag.StringP("fabric", "f", "inproc", "nnti fabric: tcp, udp, or inproc")
		logLevel   = pflag.StringP("log-level", "l", "info", "debug, info, warn, or error")
	)
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))

	fab, err := resolveFabric(*fabricName)
	if err != nil {
		return err
	}

	boot := bootstrap.New(logger)

	whookieServer := whookie.NewServer(logger)
	if err := boot.RegisterComponent(whookieServer, false); err != nil {
		return fmt.Errorf("register whookie: %w", err)
	}

	transport := nnti.New(fab, logger)
	if err := boot.RegisterComponent(transport, false); err != nil {
		return fmt.Errorf("register nnti: %w", err)
	}

	registry := opbox.NewRegistry()
	dispatcher := opbox.NewDispatcher(transport, registry, logger)
	if err := boot.RegisterComponent(dispatcher, false); err != nil {
		return fmt.Errorf("register opbox: %w", err)
	}

	// dirman.Manager.Init resolves the real self node id from the
	// transport once it is bound, so the value passed here is
	// immaterial.
	dirMgr := dirman.New(common.UnspecifiedNodeID, transport, dispatcher, registry, logger)
	if err := boot.RegisterComponent(dirMgr, false); err != nil {
		return fmt.Errorf("register dirman: %w", err)
	}

	whookieServer.BindBootstrapInspector(boot.StartupOrder)
	registerIntrospectionHooks(whookieServer, transport, dispatcher, dirMgr)

	if err := boot.Init(cfg); err != nil {
		return fmt.Errorf("bootstrap init: %w", err)
	}
	if err := boot.Start(); err != nil {
		return fmt.Errorf("bootstrap start: %w", err)
	}

	logger.Info("faodeld.ready", "fabric", fab.Name(), "url", transport.URL(), "whookie_addr", whookieServer.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("faodeld.shutting_down")
	return boot.Finish(true)
}

func loadConfig(path string) (*config.Configuration, error) {
	if path == "" {
		return config.New(""), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg := config.New(string(data))
	if err := cfg.AppendFromReferences(); err != nil {
		return nil, fmt.Errorf("expand config references in %q: %w", path, err)
	}
	return cfg, nil
}

func resolveFabric(name string) (fabric.Fabric, error) {
	switch name {
	case "tcp":
		return fabric.TCP{}, nil
	case "udp":
		return fabric.UDP{}, nil
	case "inproc":
		return fabric.InProc{}, nil
	default:
		return nil, fmt.Errorf("unknown fabric %q (want tcp, udp, or inproc)", name)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// registerIntrospectionHooks wires the "/nnti/<fabric>/stats",
// "/nnti/<fabric>/peers", "/opbox/backburner", and "/dirman" Whookie
// hooks (SPEC_FULL.md §4.7).
func registerIntrospectionHooks(s *whookie.Server, transport *nnti.Transport, dispatcher *opbox.Dispatcher, dirMgr *dirman.Manager) {
	fabricName, _, _ := transport.Dependencies()

	s.Register("/"+fabricNamePath(fabricName)+"/stats", func(args whookie.Args, reply *whookie.ReplyStream) {
		stats := transport.Snapshot()
		reply.Section(fmt.Sprintf("NNTI Transport (%s)", stats.Fabric), 1)
		reply.Table([]whookie.KV{
			{Key: "fabric", Value: stats.Fabric},
			{Key: "connections", Value: fmt.Sprintf("%d", stats.Connections)},
			{Key: "freelist_high_water", Value: fmt.Sprintf("%d", stats.FreelistHighWater)},
			{Key: "dropped_events", Value: fmt.Sprintf("%d", stats.DroppedEvents)},
		}, "Counters", false)
	})

	s.Register("/"+fabricNamePath(fabricName)+"/peers", func(args whookie.Args, reply *whookie.ReplyStream) {
		peers := transport.Peers()
		sort.Strings(peers)
		reply.Section("NNTI Peers", 1)
		rows := make([]whookie.KV, len(peers))
		for i, p := range peers {
			rows[i] = whookie.KV{Key: fmt.Sprintf("%d", i), Value: p}
		}
		reply.Table(rows, "Connected peers", false)
	})

	s.Register("/opbox/backburner", func(args whookie.Args, reply *whookie.ReplyStream) {
		mailboxes := dispatcher.Mailboxes()
		ids := make([]int, len(mailboxes))
		for i, m := range mailboxes {
			ids[i] = int(m)
		}
		sort.Ints(ids)
		reply.Section("OpBox Backburner", 1)
		reply.Table([]whookie.KV{
			{Key: "active_ops", Value: fmt.Sprintf("%d", dispatcher.ActiveCount())},
		}, "Summary", true)
		rows := make([]whookie.KV, len(ids))
		for i, id := range ids {
			rows[i] = whookie.KV{Key: fmt.Sprintf("mailbox[%d]", i), Value: fmt.Sprintf("%d", id)}
		}
		reply.Table(rows, "Active mailboxes", false)
	})

	s.Register("/dirman", func(args whookie.Args, reply *whookie.ReplyStream) {
		reply.Section("DirMan", 1)
		reply.Table([]whookie.KV{
			{Key: "role", Value: roleOf(dirMgr)},
		}, "Summary", true)
	})
}

func roleOf(m *dirman.Manager) string {
	if m.IsRoot() {
		return "root"
	}
	return "non-root"
}

// fabricNamePath turns a "nnti.<fabric>" dependency name into the
// "nnti/<fabric>" path segment used by the introspection hooks.
func fabricNamePath(depName string) string {
	for i := 0; i < len(depName); i++ {
		if depName[i] == '.' {
			return depName[:i] + "/" + depName[i+1:]
		}
	}
	return depName
}
