package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

// MemRepository is an in-memory Repository implementation, used by tests
// and by the pgevents-free code paths that only need dedup bookkeeping.
type MemRepository struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[domain.EventKey]*domain.StoredEvent
	all    []*domain.StoredEvent // insertion order, re-sorted lazily by ListAfterCreatedAt
}

func NewMemRepository() *MemRepository {
	return &MemRepository{byKey: make(map[domain.EventKey]*domain.StoredEvent)}
}

func (r *MemRepository) Create(ctx context.Context, e *domain.StoredEvent) (*domain.StoredEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := e.Key()
	if _, exists := r.byKey[key]; exists {
		return nil, nil
	}

	r.nextID++
	cp := *e
	cp.ID = r.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.byKey[key] = &cp
	r.all = append(r.all, &cp)

	out := cp
	return &out, nil
}

func (r *MemRepository) FindExistingSignatures(ctx context.Context, signatures []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]struct{}, len(signatures))
	for _, s := range signatures {
		want[s] = struct{}{}
	}

	found := make(map[string]bool, len(signatures))
	for _, e := range r.all {
		if _, ok := want[e.Signature]; ok {
			found[e.Signature] = true
		}
	}
	return found, nil
}

func (r *MemRepository) ListAfterCreatedAt(ctx context.Context, createdAfter time.Time, afterID int64, limit int) ([]*domain.StoredEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := make([]*domain.StoredEvent, len(r.all))
	copy(sorted, r.all)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	out := make([]*domain.StoredEvent, 0, limit)
	for _, e := range sorted {
		after := e.CreatedAt.After(createdAfter) || (e.CreatedAt.Equal(createdAfter) && e.ID > afterID)
		if !after {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ Repository = (*MemRepository)(nil)
