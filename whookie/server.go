// SPDX-License-Identifier: GPL-3.0-or-later

// Package whookie implements the embedded HTTP introspection and
// rendezvous server shared by every faodel-go process: a single-port
// HTTP/1.1 server bound during bootstrap.Init (not Start), a hook
// registry other components install handlers into, and a handful of
// built-in hooks for process/config introspection.
package whookie

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sandialabs/faodel-go/common"
	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/internal/logx"
	"golang.org/x/net/netutil"
)

// defaultPort is the requested listen port before probing.
const defaultPort = 1990

// maxPortProbes bounds how many successive ports are tried on conflict.
const maxPortProbes = 64

// Server is the embedded HTTP control server. It satisfies the lifecycle
// contract expected by bootstrap.Component (Init/Start/Finish/Dependencies)
// by structural typing, so this package never imports the bootstrap one.
type Server struct {
	mu       sync.Mutex
	hooks    *hookRegistry
	listener net.Listener
	httpSrv  *http.Server
	wg       sync.WaitGroup
	logger   logx.Logger

	appName  string
	nodeID   common.NodeID
	addr     string
	startedT time.Time

	bootstrapInspector func() []string
}

// NewServer returns a [*Server] with no built-in hooks registered yet;
// they are installed by [Server.Init].
func NewServer(logger logx.Logger) *Server {
	if logger == nil {
		logger = logx.Discard()
	}
	return &Server{hooks: newHookRegistry(), logger: logger}
}

// BindBootstrapInspector supplies the function used by the "/bootstraps"
// hook to list the process's registered component startup order. Wired by
// the process's main package, since whookie must not import bootstrap.
func (s *Server) BindBootstrapInspector(fn func() []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrapInspector = fn
}

// Register installs handler at path if no handler is registered there yet.
func (s *Server) Register(path string, handler Hook) {
	s.hooks.Register(path, handler)
}

// Update installs handler at path, replacing any existing registration.
func (s *Server) Update(path string, handler Hook) {
	s.hooks.Update(path, handler)
}

// Deregister removes the handler at path, if any.
func (s *Server) Deregister(path string) {
	s.hooks.Deregister(path)
}

// Addr returns the server's bound "host:port" address. Valid only after
// [Server.Init] has returned successfully.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// NodeID returns the node id derived from the server's bound address.
// Valid only after [Server.Init] has returned successfully.
func (s *Server) NodeID() common.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeID
}

// Init binds the listener (probing successive ports on conflict),
// registers the built-in hooks, and starts serving in the background. The
// node id is available as soon as Init returns, ahead of any transport
// starting — matching spec §4.3's ordering requirement.
func (s *Server) Init(cfg *config.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appName = cfg.GetString("whookie.app_name", "Whookie Application")
	address := cfg.GetString("whookie.address", "0.0.0.0")
	port, err := cfg.GetUInt("whookie.port", defaultPort)
	if err != nil {
		return fmt.Errorf("whookie: %w", err)
	}
	maxConns, err := cfg.GetUInt("whookie.max_connections", 256)
	if err != nil {
		return fmt.Errorf("whookie: %w", err)
	}

	bindHost := address
	if address == "0.0.0.0" || address == "::" {
		prefs := cfg.GetStringSlice("whookie.interfaces")
		if len(prefs) == 0 {
			prefs = []string{"eth", "lo"}
		}
		if resolved, ok := selectInterfaceAddress(prefs); ok {
			bindHost = resolved
		}
	}

	listener, boundPort, err := listenWithProbe(bindHost, uint16(port), maxPortProbes)
	if err != nil {
		return fmt.Errorf("whookie: bind: %w", err)
	}
	if maxConns > 0 {
		listener = netutil.LimitListener(listener, int(maxConns))
	}
	s.listener = listener
	s.addr = net.JoinHostPort(bindHost, strconv.Itoa(int(boundPort)))
	s.nodeID = common.NewNodeID(bindHost, boundPort)
	s.startedT = time.Now()

	s.registerBuiltinHooks()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)
	s.httpSrv = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("whookie.serve", "err", err)
		}
	}()

	s.logger.Info("whookie.init", "addr", s.addr, "nodeID", s.nodeID.String())
	return nil
}

// Start is a no-op: the server is already accepting connections once Init
// returns, matching spec §4.3's "bound during Bootstrap::Init (not Start)".
func (s *Server) Start() error {
	return nil
}

// Finish shuts down the HTTP server and waits for the serve goroutine to
// return.
func (s *Server) Finish() error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Dependencies implements bootstrap.Component: whookie has no required or
// optional dependencies.
func (s *Server) Dependencies() (name string, required []string, optional []string) {
	return "whookie", nil, nil
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "&" + r.URL.RawQuery
	}
	tag, args := parseRequestTarget(target)

	handler, ok := s.hooks.lookup(tag)
	if !ok {
		http.NotFound(w, r)
		return
	}

	format := ParseFormat(args["format"])
	reply := NewReplyStream(format, s.appName)
	handler(args, reply)

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(reply.String()))
}

// listenWithProbe binds host:port, retrying on successive ports up to
// maxProbes times if the requested one is already in use.
func listenWithProbe(host string, port uint16, maxProbes int) (net.Listener, uint16, error) {
	var lastErr error
	for i := 0; i < maxProbes; i++ {
		candidate := port + uint16(i)
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(candidate))))
		if err == nil {
			bound := uint16(l.Addr().(*net.TCPAddr).Port)
			return l, bound, nil
		}
		lastErr = err
		if port == 0 {
			break // port 0 means "any free port"; a failure here will not be fixed by probing
		}
	}
	return nil, 0, fmt.Errorf("no free port found starting at %d: %w", port, lastErr)
}

// selectInterfaceAddress enumerates the host's network interfaces and
// returns the first IPv4 address belonging to an interface whose name
// starts with one of prefs, tried in order.
func selectInterfaceAddress(prefs []string) (string, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}
	for _, pref := range prefs {
		for _, iface := range ifaces {
			if !hasPrefix(iface.Name, pref) {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, a := range addrs {
				ipNet, ok := a.(*net.IPNet)
				if !ok {
					continue
				}
				ip4 := ipNet.IP.To4()
				if ip4 == nil {
					continue
				}
				return ip4.String(), true
			}
		}
	}
	return "", false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
