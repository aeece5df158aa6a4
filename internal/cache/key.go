package cache

import (
	"cmp"
	"encoding/json"
	"slices"
)

// Key identifies one cache entry: the endpoint that produced it and the
// serialized arguments it was fetched with.
type Key struct {
	Endpoint string
	Args     string
}

// NewKey builds a key from JSON-encoded arguments. Nil arguments produce an
// empty Args.
func NewKey(endpoint string, args any) Key {
	if args == nil {
		return Key{Endpoint: endpoint}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Key{Endpoint: endpoint}
	}
	return Key{Endpoint: endpoint, Args: string(data)}
}

func (k Key) String() string {
	if k.Args == "" {
		return k.Endpoint
	}
	return k.Endpoint + "(" + k.Args + ")"
}

func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.Endpoint, b.Endpoint); c != 0 {
		return c
	}
	return cmp.Compare(a.Args, b.Args)
}

func sortKeys(keys []Key) {
	slices.SortFunc(keys, compareKeys)
}

// Tag labels an entry for invalidation. An empty ID matches every tag of the
// same Type.
type Tag struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

func (t Tag) matches(provided Tag) bool {
	return t.Type == provided.Type && (t.ID == "" || t.ID == provided.ID)
}

// Indexable values report the entity ids they contain so the store can
// find every entry that depends on an entity.
type Indexable interface {
	EntityIDs() []string
}
