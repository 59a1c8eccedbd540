// SPDX-License-Identifier: GPL-3.0-or-later

package opbox

import (
	"sync"
	"time"

	"github.com/sandialabs/faodel-go/config"
)

// NotificationMethod selects how a Backburner worker learns that a
// mailbox has work pending, per the "backburner.notification_method"
// config key (SPEC_FULL.md §6).
type NotificationMethod string

const (
	// Polling spins a tight non-blocking loop over the ready list.
	Polling NotificationMethod = "polling"
	// SleepPolling polls the same way but sleeps briefly between empty
	// checks, trading latency for CPU.
	SleepPolling NotificationMethod = "sleep_polling"
	// Pipe blocks workers on a channel receive, the idiomatic Go
	// analogue of the original's self-pipe wakeup.
	Pipe NotificationMethod = "pipe"
)

const defaultPollInterval = time.Millisecond

// mailboxQueue is one mailbox's pending-task FIFO. A mailbox queue is
// "running" from the moment its first task makes it non-empty until a
// drain finds it empty again — exactly one goroutine drains a given
// mailbox at a time, which is what guarantees in-order per-mailbox
// execution regardless of worker count (spec §4.5).
type mailboxQueue struct {
	tasks   []func()
	running bool
}

// Backburner serializes task execution per mailbox across a fixed pool
// of worker goroutines, per spec §4.5's "threaded core": the backburner
// "guarantees that all events for a given mailbox execute serially in
// arrival order, regardless of the number of worker threads".
type Backburner struct {
	mu     sync.Mutex
	queues map[uint32]*mailboxQueue

	method  NotificationMethod
	workers int

	readyCh   chan uint32 // used by Pipe
	readyList []uint32    // used by Polling / SleepPolling

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBackburner reads "backburner.threads" (default 4) and
// "backburner.notification_method" (default "pipe") from cfg.
func NewBackburner(cfg *config.Configuration) (*Backburner, error) {
	threads, err := cfg.GetUInt("backburner.threads", 4)
	if err != nil {
		return nil, err
	}
	method := NotificationMethod(cfg.GetString("backburner.notification_method", string(Pipe)))
	switch method {
	case Polling, SleepPolling, Pipe:
	default:
		method = Pipe
	}
	return &Backburner{
		queues:  make(map[uint32]*mailboxQueue),
		method:  method,
		workers: int(threads),
		readyCh: make(chan uint32, 4096),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches the worker pool. Safe to call once per Backburner.
func (b *Backburner) Start() {
	n := b.workers
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		b.wg.Add(1)
		go b.runWorker()
	}
}

// Stop signals all workers to return and waits for them.
func (b *Backburner) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

// Enqueue appends task to mailbox's queue, waking a worker to drain it
// if the queue was previously idle.
func (b *Backburner) Enqueue(mailbox uint32, task func()) {
	b.mu.Lock()
	q, ok := b.queues[mailbox]
	if !ok {
		q = &mailboxQueue{}
		b.queues[mailbox] = q
	}
	q.tasks = append(q.tasks, task)
	shouldSignal := !q.running
	if shouldSignal {
		q.running = true
	}
	b.mu.Unlock()

	if shouldSignal {
		b.signal(mailbox)
	}
}

func (b *Backburner) signal(mailbox uint32) {
	switch b.method {
	case Pipe:
		select {
		case b.readyCh <- mailbox:
		case <-b.stopCh:
		}
	default:
		b.mu.Lock()
		b.readyList = append(b.readyList, mailbox)
		b.mu.Unlock()
	}
}

func (b *Backburner) popReady() (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.readyList) == 0 {
		return 0, false
	}
	m := b.readyList[0]
	b.readyList = b.readyList[1:]
	return m, true
}

func (b *Backburner) runWorker() {
	defer b.wg.Done()
	switch b.method {
	case Pipe:
		for {
			select {
			case mailbox := <-b.readyCh:
				b.drain(mailbox)
			case <-b.stopCh:
				return
			}
		}
	case SleepPolling:
		for {
			select {
			case <-b.stopCh:
				return
			default:
			}
			mailbox, ok := b.popReady()
			if !ok {
				time.Sleep(defaultPollInterval)
				continue
			}
			b.drain(mailbox)
		}
	default: // Polling
		for {
			select {
			case <-b.stopCh:
				return
			default:
			}
			mailbox, ok := b.popReady()
			if !ok {
				continue
			}
			b.drain(mailbox)
		}
	}
}

// drain runs mailbox's queued tasks in order until the queue is empty,
// then marks it idle. Only the goroutine that observes the queue
// transition from idle to running reaches here for a given mailbox at
// a time (Enqueue only signals on that transition), so two drains of
// the same mailbox never run concurrently.
func (b *Backburner) drain(mailbox uint32) {
	for {
		b.mu.Lock()
		q := b.queues[mailbox]
		if q == nil || len(q.tasks) == 0 {
			if q != nil {
				q.running = false
			}
			b.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		b.mu.Unlock()

		task()
	}
}
