package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"portfolio/api/internal/content"
)

// ContentChannel is the NOTIFY channel the site_content trigger publishes on.
const ContentChannel = "site_content_changes"

type listenConn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener turns NOTIFY events on the content channel into freshly loaded
// documents. Notifications only carry the row id, so every event re-reads
// the row.
type Listener struct {
	dial        func(ctx context.Context) (listenConn, error)
	load        func(ctx context.Context) (content.Tree, error)
	logger      *zap.Logger
	loadTimeout time.Duration
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

func NewListener(databaseURL string, store *PostgresStore, logger *zap.Logger) *Listener {
	return newListener(func(ctx context.Context) (listenConn, error) {
		return dialListen(ctx, databaseURL, ContentChannel)
	}, store.LoadContent, logger)
}

func newListener(dial func(context.Context) (listenConn, error), load func(context.Context) (content.Tree, error), logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		dial:        dial,
		load:        load,
		logger:      logger,
		loadTimeout: 10 * time.Second,
		minBackoff:  500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
	}
}

func dialListen(ctx context.Context, databaseURL, channel string) (listenConn, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return conn, nil
}

// Listen connects and starts delivering documents to onChange. When the
// first dial fails the subscription keeps retrying with backoff and
// delivers a fresh load once connected. An error is returned only when ctx
// ends before the first dial completes.
func (l *Listener) Listen(ctx context.Context, onChange func(content.Tree)) (*ListenSubscription, error) {
	conn, err := l.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		l.logger.Warn("content listener connect failed, retrying", zap.Error(err))
		conn = nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &ListenSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		l.run(runCtx, conn, onChange)
	}()
	return sub, nil
}

func (l *Listener) run(ctx context.Context, conn listenConn, onChange func(content.Tree)) {
	for {
		if conn != nil {
			err := l.drain(ctx, conn, onChange)
			_ = conn.Close(context.Background())
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("content listener disconnected", zap.Error(err))
		}

		conn = l.reconnect(ctx)
		if conn == nil {
			return
		}
		l.logger.Info("content listener connected")
		// Changes made while disconnected produced no notification we saw.
		l.deliver(ctx, onChange)
	}
}

// reconnect dials with exponential backoff until it succeeds or ctx ends,
// in which case it returns nil.
func (l *Listener) reconnect(ctx context.Context) listenConn {
	backoff := l.minBackoff
	for {
		if !sleep(ctx, backoff) {
			return nil
		}
		backoff = min(backoff*2, l.maxBackoff)

		conn, err := l.dial(ctx)
		if err == nil {
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("content listener reconnect failed", zap.Error(err), zap.Duration("retry_in", backoff))
	}
}

func (l *Listener) drain(ctx context.Context, conn listenConn, onChange func(content.Tree)) error {
	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.logger.Debug("content notification", zap.String("channel", notification.Channel), zap.String("payload", notification.Payload))
		l.deliver(ctx, onChange)
	}
}

func (l *Listener) deliver(ctx context.Context, onChange func(content.Tree)) {
	loadCtx, cancel := context.WithTimeout(ctx, l.loadTimeout)
	doc, err := l.load(loadCtx)
	cancel()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			l.logger.Warn("reload changed content", zap.Error(err))
		}
		return
	}
	if doc == nil || ctx.Err() != nil {
		return
	}
	onChange(doc)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type ListenSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe stops the listener and waits for its goroutine to exit.
func (s *ListenSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
