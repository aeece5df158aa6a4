package cache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultInvalidationBuffer = 64

// ErrNoFetcher is returned by Refetch for entries that were never fetched
// through an Endpoint (restored or subscribed-only entries).
var ErrNoFetcher = errors.New("cache: entry has no fetcher")

// Subscriber receives the new value of an entry after every change.
type Subscriber func(value any)

// Mutator derives the next value of an entry from the current one. It runs
// with the store locked and must not call back into the store. Values are
// shared with readers, so a mutator returns a modified copy instead of
// editing current in place.
type Mutator func(current any) any

// Option mutates store configuration.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetention sets how long an entry survives after its last subscriber
// leaves. Zero destroys it immediately.
func WithRetention(retention time.Duration) Option {
	return func(s *Store) {
		if retention >= 0 {
			s.retention = retention
		}
	}
}

// WithInvalidationBuffer sets the capacity of the Invalidated channel.
func WithInvalidationBuffer(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.invalidated = make(chan Key, size)
		}
	}
}

// Store holds server-derived values keyed by Key. It is the single source of
// truth for every fetched collection.
type Store struct {
	logger    *zap.Logger
	retention time.Duration

	mu          sync.Mutex
	entries     map[Key]*entry
	index       map[string]map[Key]struct{}
	nextSubID   uint64
	invalidated chan Key

	flight singleflight.Group
}

type entry struct {
	value    any
	hasValue bool
	stale    bool
	restored bool
	refs     int
	subs     []subscription
	tags     []Tag
	arg      any
	refetch  func(context.Context) error
	expiry   *time.Timer
	ids      []string
}

type subscription struct {
	id uint64
	fn Subscriber
}

// EntryInfo describes the bookkeeping state of one entry.
type EntryInfo struct {
	HasValue bool
	Stale    bool
	Refs     int
	Tags     []Tag
}

// Record is an exported entry used for persistence.
type Record struct {
	Key   Key
	Value any
	Arg   any
	Tags  []Tag
}

// New creates an empty store.
func New(options ...Option) *Store {
	s := &Store{
		logger:      zap.NewNop(),
		entries:     make(map[Key]*entry),
		index:       make(map[string]map[Key]struct{}),
		invalidated: make(chan Key, defaultInvalidationBuffer),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Read returns the value for key when it is present and fresh.
func (s *Store) Read(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.hasValue || e.stale {
		return nil, false
	}
	return e.value, true
}

// Peek returns the value for key even when it is stale.
func (s *Store) Peek(key Key) (any, bool) {
	value, _, _ := s.lookup(key)
	return value, value != nil
}

// Inspect reports the bookkeeping state of an entry.
func (s *Store) Inspect(key Key) (EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return EntryInfo{}, false
	}
	return EntryInfo{
		HasValue: e.hasValue,
		Stale:    e.stale,
		Refs:     e.refs,
		Tags:     slices.Clone(e.tags),
	}, true
}

// Write applies mutate to the current value of key and notifies subscribers.
// Writing to a key with no value is a no-op and reports false. A mutator
// that returns current unchanged notifies nobody.
func (s *Store) Write(key Key, mutate Mutator) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || !e.hasValue {
		s.mu.Unlock()
		s.logger.Debug("write skipped, no cached value", zap.Stringer("key", key))
		return false
	}

	next := mutate(e.value)
	if sameValue(e.value, next) {
		s.mu.Unlock()
		return true
	}
	e.value = next
	s.reindexLocked(key, e)
	value := e.value
	subs := slices.Clone(e.subs)
	s.mu.Unlock()

	notify(subs, value)
	return true
}

// Subscribe registers fn for changes to key and counts it as an active
// reader. The returned function releases the subscription and may be called
// more than once.
func (s *Store) Subscribe(key Key, fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
	s.nextSubID++
	id := s.nextSubID
	e.refs++
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(key, id) })
	}
}

func (s *Store) unsubscribe(key Key, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.subs = slices.DeleteFunc(e.subs, func(sub subscription) bool { return sub.id == id })
	e.refs--
	if e.refs > 0 {
		return
	}
	e.refs = 0

	if s.retention <= 0 {
		s.evictLocked(key)
		return
	}
	e.expiry = time.AfterFunc(s.retention, func() { s.expire(key, e) })
}

func (s *Store) expire(key Key, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[key]; ok && cur == e && e.refs == 0 {
		s.evictLocked(key)
	}
}

// Evict removes an entry regardless of subscribers.
func (s *Store) Evict(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(key)
}

func (s *Store) evictLocked(key Key) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.expiry != nil {
		e.expiry.Stop()
	}
	e.value, e.hasValue = nil, false
	s.reindexLocked(key, e)
	delete(s.entries, key)
	s.logger.Debug("cache entry evicted", zap.Stringer("key", key))
}

// KeysFor returns every key whose value contains the entity id.
func (s *Store) KeysFor(entityID string) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(s.index[entityID]))
	for key := range s.index[entityID] {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

// Invalidate marks every entry providing one of tags as stale. Stale entries
// that still have subscribers are announced on Invalidated. It returns the
// keys it marked.
func (s *Store) Invalidate(tags ...Tag) []Key {
	var marked, announce []Key

	s.mu.Lock()
	for key, e := range s.entries {
		if !e.provides(tags) {
			continue
		}
		e.stale = true
		marked = append(marked, key)
		if e.refs > 0 {
			announce = append(announce, key)
		}
	}
	s.mu.Unlock()

	sortKeys(marked)
	sortKeys(announce)
	for _, key := range announce {
		select {
		case s.invalidated <- key:
		default:
			s.logger.Warn("invalidation dropped, refetch deferred to next read", zap.Stringer("key", key))
		}
	}
	s.logger.Debug("cache invalidated", zap.Any("tags", tags), zap.Int("entries", len(marked)))
	return marked
}

// Invalidated delivers keys of subscribed entries that became stale.
func (s *Store) Invalidated() <-chan Key {
	return s.invalidated
}

// Refetch runs the fetch that last produced the entry for key.
func (s *Store) Refetch(ctx context.Context, key Key) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	var refetch func(context.Context) error
	if ok {
		refetch = e.refetch
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("refetch %s: entry not cached", key)
	}
	if refetch == nil {
		return fmt.Errorf("refetch %s: %w", key, ErrNoFetcher)
	}
	return refetch(ctx)
}

// Snapshot exports every entry that holds a value.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.entries))
	for key, e := range s.entries {
		if !e.hasValue {
			continue
		}
		records = append(records, Record{Key: key, Value: e.value, Arg: e.arg, Tags: slices.Clone(e.tags)})
	}
	slices.SortFunc(records, func(a, b Record) int { return compareKeys(a.Key, b.Key) })
	return records
}

// Restore imports records as stale entries. Their values stay reachable
// through Peek until the first fetch of each key replaces them; a restored
// value is never used as a merge base.
func (s *Store) Restore(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		e, ok := s.entries[r.Key]
		if !ok {
			e = &entry{}
			s.entries[r.Key] = e
		}
		e.value = r.Value
		e.hasValue = true
		e.stale = true
		e.restored = true
		e.arg = r.Arg
		e.tags = slices.Clone(r.Tags)
		s.reindexLocked(r.Key, e)
	}
}

func (s *Store) lookup(key Key) (value any, arg any, fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.hasValue {
		return nil, nil, false
	}
	return e.value, e.arg, !e.stale
}

// settle stores a fetch result. next receives the current value and whether
// one exists, and returns the value to keep.
func (s *Store) settle(key Key, arg any, tags []Tag, refetch func(context.Context) error, next func(current any, ok bool) any) any {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.value = next(e.value, e.hasValue && !e.restored)
	e.hasValue = true
	e.stale = false
	e.restored = false
	e.arg = arg
	e.tags = slices.Clone(tags)
	if refetch != nil {
		e.refetch = refetch
	}
	s.reindexLocked(key, e)
	value := e.value
	subs := slices.Clone(e.subs)
	s.mu.Unlock()

	notify(subs, value)
	return value
}

func (s *Store) reindexLocked(key Key, e *entry) {
	for _, id := range e.ids {
		if keys, ok := s.index[id]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.index, id)
			}
		}
	}
	e.ids = nil

	indexable, ok := e.value.(Indexable)
	if !ok || !e.hasValue {
		return
	}
	e.ids = indexable.EntityIDs()
	for _, id := range e.ids {
		keys, ok := s.index[id]
		if !ok {
			keys = make(map[Key]struct{})
			s.index[id] = keys
		}
		keys[key] = struct{}{}
	}
}

func (e *entry) provides(tags []Tag) bool {
	for _, want := range tags {
		for _, have := range e.tags {
			if want.matches(have) {
				return true
			}
		}
	}
	return false
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}

func notify(subs []subscription, value any) {
	for _, sub := range subs {
		sub.fn(value)
	}
}
