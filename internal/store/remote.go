package store

import (
	"context"
	"errors"
	"fmt"

	"portfolio/api/internal/content"
	"portfolio/api/internal/docsync"
)

type contentStore interface {
	LoadContent(ctx context.Context) (content.Tree, error)
	SaveContent(ctx context.Context, doc content.Tree) error
}

type contentListener interface {
	Listen(ctx context.Context, onChange func(content.Tree)) (*ListenSubscription, error)
}

// Remote is the Postgres-backed docsync.RemoteStore. Without a listener the
// store loads and saves but gets no live updates.
type Remote struct {
	store    contentStore
	listener contentListener
}

func NewRemote(store *PostgresStore, listener *Listener) *Remote {
	r := &Remote{store: store}
	if listener != nil {
		r.listener = listener
	}
	return r
}

func (r *Remote) Load(ctx context.Context) (content.Tree, error) {
	doc, err := r.store.LoadContent(ctx)
	if errors.Is(err, content.ErrNotObject) {
		return nil, fmt.Errorf("%w: %w", docsync.ErrMalformedDocument, err)
	}
	return doc, err
}

func (r *Remote) Save(ctx context.Context, doc content.Tree) error {
	return r.store.SaveContent(ctx, doc)
}

func (r *Remote) Subscribe(ctx context.Context, onChange func(content.Tree)) (docsync.Subscription, error) {
	if r.listener == nil {
		return nil, nil
	}
	sub, err := r.listener.Listen(ctx, onChange)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
