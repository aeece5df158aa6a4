package store

import (
	"context"
	"errors"

	"feedsync/internal/cache"
	"feedsync/internal/model"
)

var (
	ErrNotFound = errors.New("store: nothing persisted")
)

// Decoder turns a persisted value back into the type its endpoint produces.
type Decoder func(endpoint string, data []byte) (any, error)

type Store interface {
	LoadSession(ctx context.Context) (*model.Session, error)
	SaveSession(ctx context.Context, session *model.Session) error
	ClearSession(ctx context.Context) error
	SaveSnapshot(ctx context.Context, records []cache.Record) error
	LoadSnapshot(ctx context.Context, decode Decoder) ([]cache.Record, error)
	HasSnapshots() bool
	Close()
}
