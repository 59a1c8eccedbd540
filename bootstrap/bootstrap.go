// SPDX-License-Identifier: GPL-3.0-or-later

// Package bootstrap deterministically orders Init/Start/Finish across a
// known-at-runtime set of components by dependency, and owns the
// process-wide lifecycle state machine every other faodel-go package
// participates in.
package bootstrap

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/internal/logx"
)

// State is the lifecycle phase of the process-wide [Bootstrap] instance.
type State int

const (
	// Uninitialized is the state before Init or after Finish tears down.
	Uninitialized State = iota
	// Initialized is the state after Init, before Start.
	Initialized
	// Started is the state after Start.
	Started
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Started:
		return "started"
	default:
		return "unknown"
	}
}

// InitFunc runs when a component is initialized.
type InitFunc func(cfg *config.Configuration) error

// StartFunc runs when a component is started.
type StartFunc func() error

// FinishFunc runs when a component is torn down.
type FinishFunc func() error

// Component is the interface-object form of registration: an object
// exposing its own lifecycle callbacks plus its dependency declaration.
type Component interface {
	Init(cfg *config.Configuration) error
	Start() error
	Finish() error
	Dependencies() (name string, required []string, optional []string)
}

// ConcurrentStarter is an optional extension a [Component] can implement
// to declare that its Start() is safe to run concurrently with sibling
// components in the same dependency wave (see Bootstrap.Start).
type ConcurrentStarter interface {
	ConcurrentStart() bool
}

type entry struct {
	name              string
	required          []string
	optional          []string
	init              InitFunc
	start             StartFunc
	finish            FinishFunc
	concurrentCapable bool
}

// Bootstrap is the process-wide lifecycle coordinator.
//
// A single mutex protects state transitions, the user count, and the
// registration list, matching the concurrency discipline of spec §5.
type Bootstrap struct {
	mu               sync.Mutex
	state            State
	registrationOrder []*entry
	entries          []*entry // recomputed topological order, see recompute
	byName           map[string]*entry
	userCount        int
	exitOnErr        bool
	showConfig       bool
	cfg              *config.Configuration
	logger           logx.Logger
}

// New returns an empty, uninitialized [Bootstrap].
func New(logger logx.Logger) *Bootstrap {
	if logger == nil {
		logger = logx.Discard()
	}
	return &Bootstrap{
		byName: make(map[string]*entry),
		logger: logger,
	}
}

// ErrAlreadyRegistered is returned by RegisterComponent when name is
// already registered and allowOverwrites is false.
var ErrAlreadyRegistered = errors.New("bootstrap: component already registered")

// RegisterComponentFuncs registers a component as three bare callables
// plus its dependency declaration.
//
// After Init has run, a registration is accepted as a no-op only if name
// is already registered (so libraries that self-register from init()
// functions can coexist with an application that registers the same
// component again).
func (b *Bootstrap) RegisterComponentFuncs(
	name string, required, optional []string,
	initFn InitFunc, startFn StartFunc, finishFn FinishFunc,
	allowOverwrites bool,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.register(&entry{
		name:     name,
		required: required,
		optional: optional,
		init:     initFn,
		start:    startFn,
		finish:   finishFn,
	}, allowOverwrites)
}

// RegisterComponent registers a [Component] interface object.
func (b *Bootstrap) RegisterComponent(c Component, allowOverwrites bool) error {
	name, required, optional := c.Dependencies()
	concurrent := false
	if cs, ok := c.(ConcurrentStarter); ok {
		concurrent = cs.ConcurrentStart()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.register(&entry{
		name:              name,
		required:          required,
		optional:          optional,
		init:              c.Init,
		start:             c.Start,
		finish:            c.Finish,
		concurrentCapable: concurrent,
	}, allowOverwrites)
}

// register must be called with b.mu held.
func (b *Bootstrap) register(e *entry, allowOverwrites bool) error {
	if existing, ok := b.byName[e.name]; ok {
		if !allowOverwrites {
			if b.state != Uninitialized {
				// Re-entrant self-registration after Init: accepted as a no-op.
				return nil
			}
			return fmt.Errorf("%w: %q", ErrAlreadyRegistered, e.name)
		}
		*existing = *e
		b.recompute()
		return nil
	}
	if b.state != Uninitialized {
		return fmt.Errorf("bootstrap: cannot register unknown component %q after Init", e.name)
	}
	b.byName[e.name] = e
	b.registrationOrder = append(b.registrationOrder, e)
	b.recompute()
	return nil
}

// recompute rebuilds b.entries from b.registrationOrder using the full,
// currently-known dependency graph. Rebuilding from scratch on every
// registration (rather than inserting incrementally into the prior
// result) ensures a component registered before one of its own
// dependencies still lands after that dependency once both are known —
// the insertion rule of spec §4.1 is applied over the complete known
// set, not a partial one.
func (b *Bootstrap) recompute() {
	var out []*entry
	for _, e := range b.registrationOrder {
		out = insertTopologically(out, e, b.byName)
	}
	b.entries = out
}

// insertTopologically inserts e before the first existing entry whose
// transitive closure of dependencies contains e, otherwise appends it.
// Repeated application of this rule over all registrations yields a
// stable topological order consistent with every entry's required+optional
// set, with ties broken by registration order (spec §4.1).
func insertTopologically(entries []*entry, e *entry, byName map[string]*entry) []*entry {
	for i, existing := range entries {
		if closureContains(existing, e.name, byName, make(map[string]bool)) {
			out := make([]*entry, 0, len(entries)+1)
			out = append(out, entries[:i]...)
			out = append(out, e)
			out = append(out, entries[i:]...)
			return out
		}
	}
	return append(entries, e)
}

// closureContains reports whether target is in e's transitive
// required-or-known-optional dependency closure.
func closureContains(e *entry, target string, byName map[string]*entry, seen map[string]bool) bool {
	if seen[e.name] {
		return false
	}
	seen[e.name] = true
	for _, dep := range append(append([]string{}, e.required...), e.optional...) {
		if dep == target {
			return true
		}
		if next, ok := byName[dep]; ok && closureContains(next, target, byName, seen) {
			return true
		}
	}
	return false
}

// StartupOrder returns the names of all registered components in the
// order Init/Start will invoke them.
func (b *Bootstrap) StartupOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.name
	}
	return out
}

// CheckDependencies reports whether every required dependency of every
// registered component is itself registered, returning a diagnostic
// listing any gaps.
func (b *Bootstrap) CheckDependencies() (ok bool, diagnostic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkDependencies()
}

func (b *Bootstrap) checkDependencies() (bool, string) {
	var missing []string
	for _, e := range b.entries {
		for _, dep := range e.required {
			if _, ok := b.byName[dep]; !ok {
				missing = append(missing, fmt.Sprintf("%q requires unregistered %q", e.name, dep))
			}
		}
	}
	if len(missing) == 0 {
		return true, ""
	}
	sort.Strings(missing)
	msg := "bootstrap: missing required dependencies: "
	for i, m := range missing {
		if i > 0 {
			msg += "; "
		}
		msg += m
	}
	return false, msg
}

// Init appends cfg's referenced files (config.AppendFromReferences), then
// calls every registered component's Init in dependency order, and
// transitions to Initialized.
//
// Init is reference-counted: concurrent Init calls from independent
// subsystems increment the same counter that Finish decrements, so only
// the last matching Finish actually tears down.
func (b *Bootstrap) Init(cfg *config.Configuration) (err error) {
	b.mu.Lock()
	b.userCount++
	if b.state != Uninitialized {
		b.mu.Unlock()
		return nil
	}
	b.cfg = cfg
	if err := cfg.AppendFromReferences(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.exitOnErr, _ = cfg.GetBool("bootstrap.exit_on_errors", true)
	b.showConfig, _ = cfg.GetBool("bootstrap.show_config", false)

	ok, diag := b.checkDependencies()
	if !ok {
		b.mu.Unlock()
		return errors.New(diag)
	}

	entries := append([]*entry{}, b.entries...)
	b.mu.Unlock()

	defer func() {
		if err != nil && b.exitOnErr {
			panic(fmt.Sprintf("bootstrap: fatal Init error (exit_on_errors=true): %v", err))
		}
	}()

	for _, e := range entries {
		if e.init == nil {
			continue
		}
		b.logger.Info("bootstrap.init", "component", e.name)
		if err = e.init(cfg); err != nil {
			return fmt.Errorf("bootstrap: init %q: %w", e.name, err)
		}
	}

	b.mu.Lock()
	b.state = Initialized
	b.mu.Unlock()
	return nil
}

// Start calls every registered component's Start in dependency order and
// transitions to Started.
//
// When a component implements [ConcurrentStarter] and returns true, its
// Start runs concurrently with any immediately-following run of other
// concurrent-capable components, in goroutines joined by a
// sync.WaitGroup. The whole wave is always joined before the next
// non-concurrent component in the order proceeds, and if several wave
// members fail, the error of the one earliest in startup order is
// returned — so default, non-opted-in components still observe strictly
// sequential Start calls.
func (b *Bootstrap) Start() error {
	b.mu.Lock()
	if b.state != Initialized {
		b.mu.Unlock()
		return fmt.Errorf("bootstrap: Start called in state %s, want %s", b.state, Initialized)
	}
	entries := append([]*entry{}, b.entries...)
	b.mu.Unlock()

	i := 0
	for i < len(entries) {
		if entries[i].start == nil {
			i++
			continue
		}
		if !entries[i].concurrentCapable {
			b.logger.Info("bootstrap.start", "component", entries[i].name)
			if err := entries[i].start(); err != nil {
				return fmt.Errorf("bootstrap: start %q: %w", entries[i].name, err)
			}
			i++
			continue
		}
		j := i
		wave := make([]*entry, 0)
		for j < len(entries) && entries[j].concurrentCapable {
			wave = append(wave, entries[j])
			j++
		}
		if err := b.startWave(wave); err != nil {
			return err
		}
		i = j
	}

	b.mu.Lock()
	b.state = Started
	b.mu.Unlock()
	return nil
}

func (b *Bootstrap) startWave(wave []*entry) error {
	errs := make([]error, len(wave))
	var wg sync.WaitGroup
	for idx, e := range wave {
		wg.Add(1)
		go func(idx int, e *entry) {
			defer wg.Done()
			b.logger.Info("bootstrap.start", "component", e.name, "concurrent", true)
			errs[idx] = e.start()
		}(idx, e)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("bootstrap: start %q: %w", wave[i].name, err)
		}
	}
	return nil
}

// Finish decrements the user count; when it reaches zero, Finish invokes
// every registered component's Finish in reverse startup order, then
// optionally sleeps a configured settling interval. When clear is true,
// the registration list is cleared and the state resets to Uninitialized;
// otherwise registrations are retained (for debugging/introspection).
func (b *Bootstrap) Finish(clear bool) error {
	b.mu.Lock()
	if b.userCount > 0 {
		b.userCount--
	}
	if b.userCount > 0 {
		b.mu.Unlock()
		return nil
	}
	entries := append([]*entry{}, b.entries...)
	cfg := b.cfg
	b.mu.Unlock()

	var firstErr error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.finish == nil {
			continue
		}
		b.logger.Info("bootstrap.finish", "component", e.name)
		if err := e.finish(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("bootstrap: finish %q: %w", e.name, err)
		}
	}

	if cfg != nil {
		if settle, err := cfg.GetDuration("bootstrap.sleep_seconds_before_shutdown", 0); err == nil && settle > 0 {
			time.Sleep(settle)
		}
	}

	b.mu.Lock()
	if clear {
		b.entries = nil
		b.registrationOrder = nil
		b.byName = make(map[string]*entry)
	}
	b.state = Uninitialized
	b.mu.Unlock()
	return firstErr
}

// State returns the current lifecycle state.
func (b *Bootstrap) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
