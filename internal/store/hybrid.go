package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"feedsync/internal/cache"
	"feedsync/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKey   = "session"
	cacheKeysSet = "cache:keys"
	entryPrefix  = "entry:"
)

// HybridStore combines Redis (session, list of cached keys) and Badger
// (serialized cache values)
type HybridStore struct {
	rdb *redis.Client
	db  *badger.DB
}

// persistedKey is the Redis set member for one cache entry.
type persistedKey struct {
	Endpoint string `json:"endpoint"`
	Args     string `json:"args,omitempty"`
}

// persistedEntry is the Badger value for one cache entry.
type persistedEntry struct {
	Value json.RawMessage `json:"value"`
	Arg   json.RawMessage `json:"arg,omitempty"`
	Tags  []cache.Tag     `json:"tags,omitempty"`
}

// NewHybridStore initializes databases.
// Pass badgerPath="" to run in "Redis-Only" mode: the session persists but
// cache snapshots do not.
func NewHybridStore(redisAddr string, badgerPath string) (*HybridStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *badger.DB
	var err error

	if badgerPath != "" {
		opts := badger.DefaultOptions(badgerPath)
		opts.Logger = nil
		db, err = badger.Open(opts)
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to open badger: %w", err)
		}
	}

	return &HybridStore{rdb: rdb, db: db}, nil
}

// NewHybridStoreWith wraps already opened clients. db may be nil for
// Redis-only mode.
func NewHybridStoreWith(rdb *redis.Client, db *badger.DB) *HybridStore {
	return &HybridStore{rdb: rdb, db: db}
}

// HasSnapshots reports whether cache snapshots can be saved.
func (s *HybridStore) HasSnapshots() bool {
	return s.db != nil
}

// Close cleans up connections
func (s *HybridStore) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// LoadSession returns the saved session, or nil when signed out.
func (s *HybridStore) LoadSession(ctx context.Context) (*model.Session, error) {
	fields, err := s.rdb.HGetAll(ctx, sessionKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if fields["token"] == "" {
		return nil, nil
	}
	return &model.Session{Token: fields["token"], UserID: fields["userId"]}, nil
}

// SaveSession replaces the saved session.
func (s *HybridStore) SaveSession(ctx context.Context, session *model.Session) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey)
	pipe.HSet(ctx, sessionKey, "token", session.Token, "userId", session.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// ClearSession forgets the saved session.
func (s *HybridStore) ClearSession(ctx context.Context) error {
	if err := s.rdb.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the persisted cache with records: values go to
// Badger, the list of keys to Redis.
func (s *HybridStore) SaveSnapshot(ctx context.Context, records []cache.Record) error {
	if s.db == nil {
		return fmt.Errorf("cannot save snapshot: badgerdb is not initialized")
	}

	old, err := s.rdb.SMembers(ctx, cacheKeysSet).Result()
	if err != nil {
		return fmt.Errorf("read cached keys: %w", err)
	}

	members := make([]any, 0, len(records))
	keep := make(map[string]struct{}, len(records))
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, r := range records {
			member, entry, err := encodeRecord(r)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(entryPrefix+member), entry); err != nil {
				return err
			}
			members = append(members, member)
			keep[member] = struct{}{}
		}
		for _, member := range old {
			if _, ok := keep[member]; ok {
				continue
			}
			if err := txn.Delete([]byte(entryPrefix + member)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, cacheKeysSet)
	if len(members) > 0 {
		pipe.SAdd(ctx, cacheKeysSet, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write cached keys: %w", err)
	}
	return nil
}

// LoadSnapshot reads the persisted cache. Keys whose value is missing from
// Badger are skipped. It returns ErrNotFound when nothing was saved.
func (s *HybridStore) LoadSnapshot(ctx context.Context, decode Decoder) ([]cache.Record, error) {
	members, err := s.rdb.SMembers(ctx, cacheKeysSet).Result()
	if err != nil {
		return nil, fmt.Errorf("read cached keys: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}
	if s.db == nil {
		return nil, fmt.Errorf("cannot load snapshot: badgerdb is not initialized")
	}

	var records []cache.Record
	err = s.db.View(func(txn *badger.Txn) error {
		for _, member := range members {
			item, err := txn.Get([]byte(entryPrefix + member))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			r, err := decodeRecord(member, data, decode)
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return records, nil
}

func encodeRecord(r cache.Record) (string, []byte, error) {
	member, err := json.Marshal(persistedKey{Endpoint: r.Key.Endpoint, Args: r.Key.Args})
	if err != nil {
		return "", nil, err
	}
	value, err := json.Marshal(r.Value)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", r.Key, err)
	}
	entry := persistedEntry{Value: value, Tags: r.Tags}
	if r.Arg != nil {
		if entry.Arg, err = json.Marshal(r.Arg); err != nil {
			return "", nil, fmt.Errorf("encode %s arg: %w", r.Key, err)
		}
	}
	data, err := json.Marshal(entry)
	return string(member), data, err
}

func decodeRecord(member string, data []byte, decode Decoder) (cache.Record, error) {
	var pk persistedKey
	if err := json.Unmarshal([]byte(member), &pk); err != nil {
		return cache.Record{}, fmt.Errorf("decode key %q: %w", member, err)
	}
	var entry persistedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return cache.Record{}, fmt.Errorf("decode entry %q: %w", member, err)
	}
	value, err := decode(pk.Endpoint, entry.Value)
	if err != nil {
		return cache.Record{}, err
	}

	r := cache.Record{
		Key:   cache.Key{Endpoint: pk.Endpoint, Args: pk.Args},
		Value: value,
		Tags:  entry.Tags,
	}
	if len(entry.Arg) > 0 {
		r.Arg = entry.Arg
	}
	return r, nil
}
