// Package docsync owns the live site document and keeps it in step with a
// remote source of truth and a local fallback cache.
//
// Reads never wait on I/O. Writes are applied in memory first and then
// persisted in the background: the remote save is best effort and never
// rolled back, and the local cache is written whatever the remote did.
// Every I/O failure is reported as an Event and swallowed.
package docsync

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"portfolio/api/internal/content"
	"portfolio/api/internal/merge"
)

const (
	DefaultCacheKey      = "siteContent"
	DefaultRemoteTimeout = 10 * time.Second
	DefaultCacheTimeout  = 2 * time.Second
)

// RemoteStore is the shared source of truth.
type RemoteStore interface {
	// Load returns nil, nil when nothing has been stored yet.
	Load(ctx context.Context) (content.Tree, error)
	Save(ctx context.Context, doc content.Tree) error
	// Subscribe delivers documents changed by any writer until the returned
	// subscription is released. ctx bounds establishment and is cancelled
	// when the store closes.
	Subscribe(ctx context.Context, onChange func(content.Tree)) (Subscription, error)
}

type Subscription interface {
	Unsubscribe()
}

// LocalCache is the fallback used when the remote cannot be read.
type LocalCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) (content.Tree, error)
	Set(ctx context.Context, key string, doc content.Tree) error
}

type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

type Options struct {
	CacheKey      string
	RemoteTimeout time.Duration
	CacheTimeout  time.Duration
	// Default is the canonical document every loaded document is merged
	// against. content.DefaultTree() when nil.
	Default content.Tree
	Sink    Sink
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CacheKey == "" {
		o.CacheKey = DefaultCacheKey
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = DefaultRemoteTimeout
	}
	if o.CacheTimeout <= 0 {
		o.CacheTimeout = DefaultCacheTimeout
	}
	if o.Default == nil {
		o.Default = content.DefaultTree()
	} else {
		o.Default = content.Clone(o.Default)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Store struct {
	remote RemoteStore
	cache  LocalCache
	opts   Options

	// adoptMu serializes adoptions so watchers observe them in order.
	adoptMu sync.Mutex

	mu       sync.RWMutex
	current  content.Tree
	dirty    bool
	watchers map[uint64]func(content.Tree)
	nextID   uint64
	sub      Subscription
	closed   bool

	state     atomic.Int32
	ready     chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	pending   sync.WaitGroup
	closeOnce sync.Once
}

// Open creates the store and starts loading in the background. The store
// serves the canonical default until the load settles. Either collaborator
// may be nil, in which case that step is skipped.
func Open(remote RemoteStore, cache LocalCache, opts Options) *Store {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		remote:   remote,
		cache:    cache,
		opts:     opts,
		current:  content.Clone(opts.Default),
		watchers: make(map[uint64]func(content.Tree)),
		ready:    make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.state.Store(int32(StateLoading))
	go s.initialize()
	return s
}

func (s *Store) State() State {
	return State(s.state.Load())
}

func (s *Store) IsReady() bool {
	return s.State() == StateReady
}

// Ready is closed once the initial load has settled.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Current returns a copy of the live document.
func (s *Store) Current() content.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return content.Clone(s.current)
}

// Write replaces the live document and persists it in the background.
// A nil doc is ignored. merge.Undefined markers are dropped.
func (s *Store) Write(doc content.Tree) {
	s.commit(func(content.Tree) content.Tree {
		return merge.Clean(doc)
	})
}

// Update computes the next document from the current one and persists it
// like Write. fn runs under the store lock, so it must not call back into
// the store; returning nil leaves the document unchanged. The adopted
// document is returned.
func (s *Store) Update(fn func(prev content.Tree) content.Tree) content.Tree {
	return s.commit(func(prev content.Tree) content.Tree {
		return merge.Clean(fn(content.Clone(prev)))
	})
}

// Watch registers fn to receive every adopted document, in adoption order.
// fn runs synchronously on the adopting goroutine and must not block or
// write to the store.
func (s *Store) Watch(fn func(content.Tree)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.watchers != nil {
		s.watchers[id] = fn
	}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Flush waits until every write issued so far has finished its remote save
// and cache mirror.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the remote subscription and waits for background work.
// Writes after Close change the in-memory document only. Close is safe to
// call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		sub := s.sub
		s.sub = nil
		s.watchers = nil
		s.mu.Unlock()

		s.cancel()
		if sub != nil {
			sub.Unsubscribe()
			s.emit(Event{Kind: KindUnsubscribed, Source: SourceRemote})
		}
		<-s.done
		s.pending.Wait()
	})
}

func (s *Store) initialize() {
	defer close(s.done)

	doc, source := s.loadInitial()
	s.swap(func(content.Tree) content.Tree {
		// A write that landed while loading is newer than anything loaded.
		if s.dirty {
			return nil
		}
		return doc
	}, false)

	s.state.Store(int32(StateReady))
	close(s.ready)
	s.emit(Event{Kind: KindReady, Source: source})

	s.subscribe()
}

func (s *Store) loadInitial() (content.Tree, Source) {
	if s.remote != nil {
		started := s.opts.Now()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RemoteTimeout)
		doc, err := s.remote.Load(ctx)
		cancel()
		elapsed := s.opts.Now().Sub(started)
		switch {
		case err != nil:
			s.emit(Event{Kind: KindLoadFailed, Source: SourceRemote, Err: classify(err, ErrRemoteUnavailable), Duration: elapsed})
		case doc == nil:
			s.emit(Event{Kind: KindNotFound, Source: SourceRemote, Duration: elapsed})
		default:
			s.emit(Event{Kind: KindLoaded, Source: SourceRemote, Duration: elapsed})
			return merge.Document(s.opts.Default, doc), SourceRemote
		}
	}

	if s.cache != nil {
		started := s.opts.Now()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.CacheTimeout)
		doc, err := s.cache.Get(ctx, s.opts.CacheKey)
		cancel()
		elapsed := s.opts.Now().Sub(started)
		switch {
		case err != nil:
			s.emit(Event{Kind: KindLoadFailed, Source: SourceCache, Err: classify(err, ErrCacheUnavailable), Duration: elapsed})
		case doc == nil:
			s.emit(Event{Kind: KindNotFound, Source: SourceCache, Duration: elapsed})
		default:
			s.emit(Event{Kind: KindLoaded, Source: SourceCache, Duration: elapsed})
			return merge.Document(s.opts.Default, doc), SourceCache
		}
	}

	return content.Clone(s.opts.Default), SourceDefault
}

func (s *Store) subscribe() {
	if s.remote == nil {
		return
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}

	sub, err := s.remote.Subscribe(s.ctx, s.applyRemote)
	if err != nil {
		s.emit(Event{Kind: KindSubscribeFailed, Source: SourceRemote, Err: classify(err, ErrRemoteUnavailable)})
		return
	}
	if sub == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		s.emit(Event{Kind: KindUnsubscribed, Source: SourceRemote})
		return
	}
	s.sub = sub
	s.mu.Unlock()
	s.emit(Event{Kind: KindSubscribed, Source: SourceRemote})
}

// applyRemote reconciles a document pushed by the remote. The remote
// already has it, so it is never saved back. It is always mirrored to the
// cache, even when it matches the live document, so the echo of a write
// whose own cache mirror failed repairs the cache.
func (s *Store) applyRemote(partial content.Tree) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}

	merged := merge.Document(s.opts.Default, partial)
	s.emit(Event{Kind: KindRemoteChange, Source: SourceRemote})
	s.swap(func(prev content.Tree) content.Tree {
		if reflect.DeepEqual(prev, merged) {
			return nil
		}
		return merged
	}, false)
	s.mirror(merged)
}

func (s *Store) commit(compute func(prev content.Tree) content.Tree) content.Tree {
	next, changed := s.swap(compute, true)
	if !changed {
		return s.Current()
	}
	s.persist(next)
	return content.Clone(next)
}

// swap installs the document computed from the current one and notifies
// watchers. compute returning nil means no change.
func (s *Store) swap(compute func(prev content.Tree) content.Tree, fromWrite bool) (content.Tree, bool) {
	s.adoptMu.Lock()
	defer s.adoptMu.Unlock()

	s.mu.Lock()
	next := compute(s.current)
	if next == nil {
		s.mu.Unlock()
		return nil, false
	}
	s.current = next
	if fromWrite {
		s.dirty = true
	}
	watchers := make([]func(content.Tree), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(content.Clone(next))
	}
	return next, true
}

func (s *Store) persist(doc content.Tree) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()
		s.save(doc)
		s.mirror(doc)
	}()
}

func (s *Store) save(doc content.Tree) {
	if s.remote == nil {
		return
	}
	started := s.opts.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RemoteTimeout)
	defer cancel()
	if err := s.remote.Save(ctx, doc); err != nil {
		s.emit(Event{Kind: KindSaveFailed, Source: SourceRemote, Err: classify(err, ErrRemoteUnavailable), Duration: s.opts.Now().Sub(started)})
		return
	}
	s.emit(Event{Kind: KindSaved, Source: SourceRemote, Duration: s.opts.Now().Sub(started)})
}

func (s *Store) mirror(doc content.Tree) {
	if s.cache == nil {
		return
	}
	started := s.opts.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CacheTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, s.opts.CacheKey, doc); err != nil {
		s.emit(Event{Kind: KindCacheFailed, Source: SourceCache, Err: classify(err, ErrCacheUnavailable), Duration: s.opts.Now().Sub(started)})
		return
	}
	s.emit(Event{Kind: KindCached, Source: SourceCache, Duration: s.opts.Now().Sub(started)})
}

func (s *Store) emit(event Event) {
	if s.opts.Sink == nil {
		return
	}
	event.At = s.opts.Now()
	s.opts.Sink(event)
}
