package docsync

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrCacheUnavailable  = errors.New("local cache unavailable")
	ErrMalformedDocument = errors.New("malformed document")
)

type Kind string

const (
	KindLoaded          Kind = "loaded"
	KindLoadFailed      Kind = "load_failed"
	KindNotFound        Kind = "not_found"
	KindSaved           Kind = "saved"
	KindSaveFailed      Kind = "save_failed"
	KindCached          Kind = "cached"
	KindCacheFailed     Kind = "cache_failed"
	KindSubscribed      Kind = "subscribed"
	KindSubscribeFailed Kind = "subscribe_failed"
	KindRemoteChange    Kind = "remote_change"
	KindUnsubscribed    Kind = "unsubscribed"
	KindReady           Kind = "ready"
)

type Source string

const (
	SourceRemote  Source = "remote"
	SourceCache   Source = "cache"
	SourceDefault Source = "default"
)

// Event is one diagnostic emitted by the store. Err is set on failure kinds
// and wraps one of the Err* sentinels.
type Event struct {
	Kind     Kind
	Source   Source
	Err      error
	Duration time.Duration
	At       time.Time
}

// Sink receives store events. It runs on the goroutine that produced the
// event and must not block.
type Sink func(Event)

// Sinks fans one event out to several sinks.
func Sinks(sinks ...Sink) Sink {
	return func(event Event) {
		for _, sink := range sinks {
			if sink != nil {
				sink(event)
			}
		}
	}
}

func classify(err, sentinel error) error {
	if err == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
