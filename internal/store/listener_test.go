package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/goleak"

	"portfolio/api/internal/content"
)

type fakeConn struct {
	notes  chan *pgconn.Notification
	errs   chan error
	closed atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{notes: make(chan *pgconn.Notification, 4), errs: make(chan error, 1)}
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case note := <-c.notes:
		return note, nil
	case err := <-c.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}

type dialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  []error
	calls int
}

func (d *dialer) dial(context.Context) (listenConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if i >= len(d.conns) {
		return nil, errors.New("no more connections")
	}
	return d.conns[i], nil
}

func collect() (func(content.Tree), <-chan content.Tree) {
	ch := make(chan content.Tree, 8)
	return func(doc content.Tree) { ch <- doc }, ch
}

func receive(t *testing.T, ch <-chan content.Tree) content.Tree {
	t.Helper()
	select {
	case doc := <-ch:
		return doc
	case <-time.After(5 * time.Second):
		t.Fatal("no document delivered")
		return nil
	}
}

func TestListenerReloadsOnNotification(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	d := &dialer{conns: []*fakeConn{conn}}
	var loads atomic.Int32
	listener := newListener(d.dial, func(context.Context) (content.Tree, error) {
		n := loads.Add(1)
		return content.Tree{"version": float64(n)}, nil
	}, nil)

	onChange, docs := collect()
	sub, err := listener.Listen(context.Background(), onChange)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	conn.notes <- &pgconn.Notification{Channel: ContentChannel, Payload: "1"}
	if got := receive(t, docs)["version"]; got != float64(1) {
		t.Fatalf("version = %v, want 1", got)
	}
	conn.notes <- &pgconn.Notification{Channel: ContentChannel, Payload: "1"}
	if got := receive(t, docs)["version"]; got != float64(2) {
		t.Fatalf("version = %v, want 2", got)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	if !conn.closed.Load() {
		t.Fatal("connection not closed on Unsubscribe")
	}
}

func TestListenerReconnectsAndCatchesUp(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, second := newFakeConn(), newFakeConn()
	d := &dialer{
		conns: []*fakeConn{first, nil, second},
		errs:  []error{nil, errors.New("connection refused"), nil},
	}
	listener := newListener(d.dial, func(context.Context) (content.Tree, error) {
		return content.Tree{"hero": content.Tree{"name": "Missed"}}, nil
	}, nil)
	listener.minBackoff = time.Millisecond
	listener.maxBackoff = 5 * time.Millisecond

	onChange, docs := collect()
	sub, err := listener.Listen(context.Background(), onChange)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer sub.Unsubscribe()

	first.errs <- errors.New("conn closed")
	doc := receive(t, docs)
	if doc["hero"].(content.Tree)["name"] != "Missed" {
		t.Fatalf("unexpected document after reconnect: %v", doc)
	}
	if !first.closed.Load() {
		t.Fatal("broken connection was not closed")
	}

	d.mu.Lock()
	calls := d.calls
	d.mu.Unlock()
	if calls != 3 {
		t.Fatalf("dial calls = %d, want 3", calls)
	}
}

func TestListenerSkipsFailedAndEmptyLoads(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	d := &dialer{conns: []*fakeConn{conn}}
	results := []struct {
		doc content.Tree
		err error
	}{
		{err: errors.New("timeout")},
		{},
		{doc: content.Tree{"ok": true}},
	}
	var calls atomic.Int32
	listener := newListener(d.dial, func(context.Context) (content.Tree, error) {
		r := results[calls.Add(1)-1]
		return r.doc, r.err
	}, nil)

	onChange, docs := collect()
	sub, err := listener.Listen(context.Background(), onChange)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer sub.Unsubscribe()

	for range results {
		conn.notes <- &pgconn.Notification{Channel: ContentChannel, Payload: "1"}
	}
	if got := receive(t, docs); got["ok"] != true {
		t.Fatalf("delivered %v, want only the successful load", got)
	}
}

func TestListenRetriesWhenFirstDialFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	d := &dialer{
		conns: []*fakeConn{nil, nil, conn},
		errs:  []error{errors.New("connection refused"), errors.New("connection refused"), nil},
	}
	listener := newListener(d.dial, func(context.Context) (content.Tree, error) {
		return content.Tree{"hero": content.Tree{"name": "Recovered"}}, nil
	}, nil)
	listener.minBackoff = time.Millisecond
	listener.maxBackoff = 5 * time.Millisecond

	onChange, docs := collect()
	sub, err := listener.Listen(context.Background(), onChange)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer sub.Unsubscribe()

	doc := receive(t, docs)
	if doc["hero"].(content.Tree)["name"] != "Recovered" {
		t.Fatalf("unexpected document after connecting: %v", doc)
	}

	conn.notes <- &pgconn.Notification{Channel: ContentChannel, Payload: "1"}
	receive(t, docs)

	d.mu.Lock()
	calls := d.calls
	d.mu.Unlock()
	if calls != 3 {
		t.Fatalf("dial calls = %d, want 3", calls)
	}
}

func TestListenReturnsDialErrorWhenContextEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &dialer{errs: []error{context.Canceled}}
	listener := newListener(d.dial, func(context.Context) (content.Tree, error) { return nil, nil }, nil)

	sub, err := listener.Listen(ctx, func(content.Tree) {})
	if err == nil || sub != nil {
		t.Fatalf("Listen() = %v, %v; want an error", sub, err)
	}
}

func TestUnsubscribeStopsRetrying(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := &dialer{errs: []error{errors.New("connection refused")}}
	listener := newListener(d.dial, func(context.Context) (content.Tree, error) { return nil, nil }, nil)
	listener.minBackoff = time.Millisecond
	listener.maxBackoff = 2 * time.Millisecond

	sub, err := listener.Listen(context.Background(), func(content.Tree) {})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	sub.Unsubscribe()
}
