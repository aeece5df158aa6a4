package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Endpoint describes how one query is fetched, keyed and merged into the
// store.
type Endpoint[A any, R any] struct {
	// Name is the endpoint part of every key this endpoint produces.
	Name string
	// Fetch performs the request.
	Fetch func(ctx context.Context, arg A) (R, error)
	// SerializeArgs maps an argument to the Args part of the key. Arguments
	// that serialize to the same string share one entry. Defaults to JSON.
	SerializeArgs func(arg A) string
	// Merge combines the cached value with a new result. Without Merge a new
	// result replaces the cached one. Merge must not modify current.
	Merge func(current R, incoming R, arg A) R
	// ForceRefetch decides whether a fresh cached value is fetched again
	// because the argument changed since the previous request.
	ForceRefetch func(current A, previous A) bool
	// ProvidesTags labels the entry for invalidation.
	ProvidesTags func(arg A) []Tag
}

// Key returns the cache key for arg.
func (e *Endpoint[A, R]) Key(arg A) Key {
	if e.SerializeArgs != nil {
		return Key{Endpoint: e.Name, Args: e.SerializeArgs(arg)}
	}
	return NewKey(e.Name, arg)
}

// Get returns the cached value for arg, fetching it when the entry is
// missing, stale, or forced by an argument change.
func (e *Endpoint[A, R]) Get(ctx context.Context, s *Store, arg A) (R, error) {
	key := e.Key(arg)
	if value, prev, fresh := s.lookup(key); fresh && !e.forced(arg, prev) {
		if r, ok := value.(R); ok {
			return r, nil
		}
	}
	return e.fetch(ctx, s, key, arg)
}

// Refresh fetches arg unconditionally and settles the result.
func (e *Endpoint[A, R]) Refresh(ctx context.Context, s *Store, arg A) (R, error) {
	return e.fetch(ctx, s, e.Key(arg), arg)
}

func (e *Endpoint[A, R]) fetch(ctx context.Context, s *Store, key Key, arg A) (R, error) {
	var zero R

	argJSON, err := json.Marshal(arg)
	if err != nil {
		return zero, fmt.Errorf("%s: encode argument: %w", e.Name, err)
	}

	v, err, shared := s.flight.Do(key.String()+"#"+string(argJSON), func() (any, error) {
		incoming, err := e.Fetch(ctx, arg)
		if err != nil {
			return nil, err
		}

		var tags []Tag
		if e.ProvidesTags != nil {
			tags = e.ProvidesTags(arg)
		}
		refetch := func(ctx context.Context) error {
			_, err := e.Refresh(ctx, s, arg)
			return err
		}
		return s.settle(key, arg, tags, refetch, func(current any, ok bool) any {
			if !ok || e.Merge == nil {
				return incoming
			}
			cur, isR := current.(R)
			if !isR {
				return incoming
			}
			return e.Merge(cur, incoming, arg)
		}), nil
	})
	if err != nil {
		return zero, err
	}
	if shared {
		s.logger.Debug("fetch shared with in-flight request", zap.Stringer("key", key))
	}

	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("%s: cached value has type %T", e.Name, v)
	}
	return r, nil
}

func (e *Endpoint[A, R]) forced(arg A, prev any) bool {
	if e.ForceRefetch == nil {
		return false
	}
	previous, ok := decodeArg[A](prev)
	if !ok {
		return true
	}
	return e.ForceRefetch(arg, previous)
}

// decodeArg recovers a typed argument. Restored entries carry their argument
// as raw JSON.
func decodeArg[A any](v any) (A, bool) {
	if a, ok := v.(A); ok {
		return a, true
	}
	var a A
	raw, ok := v.(json.RawMessage)
	if !ok {
		return a, false
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, false
	}
	return a, true
}
