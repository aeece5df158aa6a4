package optimistic

import (
	"errors"
	"fmt"
	"sync"

	"feedsync/internal/cache"

	"github.com/google/uuid"
)

// ErrPatchResolved is returned when a patch is committed or reverted a
// second time.
var ErrPatchResolved = errors.New("optimistic: patch already resolved")

// State is the lifecycle position of a patch.
type State int

const (
	StatePending State = iota + 1
	StateCommitted
	StateReverted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateReverted:
		return "reverted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// forward computes the patched value of one entry and the mutator that
// undoes it. A nil undo means nothing changed.
type forward func(current any) (next any, undo cache.Mutator)

type inverse struct {
	key  cache.Key
	undo cache.Mutator
}

// Patch is the speculative edit made for one write. It holds the inverse of
// every change it applied so that a failed write can restore the cache.
type Patch struct {
	ID uuid.UUID
	Op Op

	store *cache.Store

	mu       sync.Mutex
	state    State
	inverses []inverse
}

func newPatch(store *cache.Store, op Op) *Patch {
	return &Patch{
		ID:    uuid.New(),
		Op:    op,
		store: store,
		state: StatePending,
	}
}

// State returns the current lifecycle state.
func (p *Patch) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Keys lists the entries the patch changed, in application order.
func (p *Patch) Keys() []cache.Key {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]cache.Key, len(p.inverses))
	for i, inv := range p.inverses {
		keys[i] = inv.key
	}
	return keys
}

// apply runs fn against key and records its inverse. Missing keys are
// skipped.
func (p *Patch) apply(key cache.Key, fn forward) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePending {
		return false
	}

	var undo cache.Mutator
	written := p.store.Write(key, func(current any) any {
		next, u := fn(current)
		undo = u
		return next
	})
	if written && undo != nil {
		p.inverses = append(p.inverses, inverse{key: key, undo: undo})
	}
	return written && undo != nil
}

// Commit keeps the speculative changes.
func (p *Patch) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePending {
		return fmt.Errorf("commit %s patch %s: %w", p.Op, p.ID, ErrPatchResolved)
	}
	p.state = StateCommitted
	p.inverses = nil
	return nil
}

// Revert undoes every change in reverse order of application.
func (p *Patch) Revert() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePending {
		return fmt.Errorf("revert %s patch %s: %w", p.Op, p.ID, ErrPatchResolved)
	}
	for i := len(p.inverses) - 1; i >= 0; i-- {
		inv := p.inverses[i]
		p.store.Write(inv.key, inv.undo)
	}
	p.state = StateReverted
	p.inverses = nil
	return nil
}
