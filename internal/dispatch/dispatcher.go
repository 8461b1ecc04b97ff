/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dispatch owns event delivery: it serializes deliveries per resource
// identity, retries failed handlers with exponential backoff, and keeps retry
// policy out of the reconciliation logic so the handlers stay independently
// testable.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/cloudnepal/ClusterSecret/internal/events"
)

// Handler consumes one event. A nil return acknowledges the event; any other
// error triggers redelivery with backoff unless wrapped with Permanent.
type Handler interface {
	Handle(ctx context.Context, ev events.Event) error
}

// Source registers event producers (informer callbacks) against a dispatcher.
// Registration happens inside Run, after the caller's bootstrap completed.
type Source func(ctx context.Context, d *Dispatcher) error

// Options tune the redelivery loop.
type Options struct {
	// InitialInterval is the first retry delay. Defaults to 500ms.
	InitialInterval time.Duration
	// MaxRetries caps redeliveries per event before it is dropped with an
	// error log. Defaults to 10.
	MaxRetries uint64
	// QueueDepth is the per-key buffer size. Defaults to 16.
	QueueDepth int
}

func (o *Options) defaults() {
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 10
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 16
	}
}

// Dispatcher fans events out to per-key workers. Events sharing a key are
// delivered strictly in order, one in flight at a time; events with different
// keys run concurrently. A worker lives only as long as its queue is non-empty,
// so keys for deleted resources do not pin goroutines for the process lifetime.
type Dispatcher struct {
	handler Handler
	log     logr.Logger
	opts    Options
	sources []Source

	ctx     context.Context
	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

// worker owns delivery for one key. pending counts events enqueued or in
// flight and is guarded by the dispatcher mutex; the worker retires only when
// it drops to zero, so an Enqueue that has claimed a slot but not yet sent can
// never lose its event to a retiring worker.
type worker struct {
	ch      chan events.Event
	pending int
}

// New returns a dispatcher delivering to the given handler.
func New(handler Handler, log logr.Logger, opts Options) *Dispatcher {
	opts.defaults()
	return &Dispatcher{
		handler: handler,
		log:     log,
		opts:    opts,
		workers: make(map[string]*worker),
	}
}

// AddSource registers an event producer to be started by Run.
func (d *Dispatcher) AddSource(src Source) {
	d.sources = append(d.sources, src)
}

// Run starts the registered sources and blocks until the context is
// cancelled, then waits for in-flight deliveries to finish. It implements
// sigs.k8s.io/controller-runtime/pkg/manager.Runnable.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	for _, src := range d.sources {
		if err := src(ctx, d); err != nil {
			return err
		}
	}

	<-ctx.Done()
	d.wg.Wait()
	return nil
}

// Enqueue hands an event to the worker owning its key, spawning the worker on
// demand. Must not be called before Run.
func (d *Dispatcher) Enqueue(ev events.Event) {
	key := ev.Key()

	d.mu.Lock()
	ctx := d.ctx
	w, ok := d.workers[key]
	if !ok {
		w = &worker{ch: make(chan events.Event, d.opts.QueueDepth)}
		d.workers[key] = w
		d.wg.Add(1)
		go d.runWorker(ctx, key, w)
	}
	w.pending++
	d.mu.Unlock()

	select {
	case w.ch <- ev:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, key string, w *worker) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.ch:
			d.deliver(ctx, key, ev)

			d.mu.Lock()
			w.pending--
			if w.pending == 0 {
				delete(d.workers, key)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
		}
	}
}

// deliver invokes the handler, redelivering with exponential backoff until it
// succeeds, returns a permanent error, the retry budget is exhausted, or the
// context ends.
func (d *Dispatcher) deliver(ctx context.Context, key string, ev events.Event) {
	op := func() error {
		err := d.handler.Handle(ctx, ev)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		d.log.Error(err, "Handler failed, will redeliver", "key", key, "event", eventName(ev))
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.opts.InitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, d.opts.MaxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		d.log.Error(err, "Dropping event", "key", key, "event", eventName(ev))
	}
}

func eventName(ev events.Event) string {
	switch ev.(type) {
	case events.Created:
		return "Created"
	case events.MatchRuleChanged:
		return "MatchRuleChanged"
	case events.PayloadChanged:
		return "PayloadChanged"
	case events.Deleted:
		return "Deleted"
	case events.NamespaceCreated:
		return "NamespaceCreated"
	default:
		return "Unknown"
	}
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the dispatcher logs and drops
// the event instead of redelivering it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}
