package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

// MemRepository is an in-memory Repository implementation. It satisfies
// the same contract as pgorders.Repository and is used by tests and by
// any deployment that doesn't need durable storage — a demonstration that
// the storage engine really is pluggable, per spec.md §1.
type MemRepository struct {
	mu         sync.RWMutex
	orders     map[string]*domain.Order
	signatures map[string]map[string]struct{} // orderID -> set(signature)
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		orders:     make(map[string]*domain.Order),
		signatures: make(map[string]map[string]struct{}),
	}
}

func (r *MemRepository) Paginate(ctx context.Context, f Filter) (Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if !matches(o, f) {
			continue
		}
		cp := *o
		matched = append(matched, &cp)
	}

	desc := f.Order != "asc"
	sort.Slice(matched, func(i, j int) bool {
		if desc {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	page, limit := f.Page, f.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return Page{Orders: matched[start:end], Total: total}, nil
}

func matches(o *domain.Order, f Filter) bool {
	if f.Source != nil && o.Source != *f.Source {
		return false
	}
	if f.Dest != nil && o.Dest != *f.Dest {
		return false
	}
	if len(f.Status) > 0 {
		found := false
		for _, s := range f.Status {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && o.From != *f.From {
		return false
	}
	if f.To != nil && o.To != *f.To {
		return false
	}
	if f.AmountMin != nil && o.Amount.LT(*f.AmountMin) {
		return false
	}
	if f.AmountMax != nil && o.Amount.GT(*f.AmountMax) {
		return false
	}
	if f.CreatedAfter != nil && !o.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !o.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.ID != nil && o.ID != *f.ID {
		return false
	}
	return true
}

func (r *MemRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *MemRepository) FindByOriginTrxHash(ctx context.Context, hash string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.OriginTrxHash == hash {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemRepository) Create(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *o
	if cp.ID == "" {
		cp.ID = domain.NewID()
	}
	if cp.SourceNonce == "" {
		cp.SourceNonce = domain.NewID()
	}
	if cp.SourcePayload == "" {
		cp.SourcePayload = cp.SourceNonce
	}
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.orders[cp.ID] = &cp
	if _, ok := r.signatures[cp.ID]; !ok {
		r.signatures[cp.ID] = make(map[string]struct{})
	}
	out := cp
	return &out, nil
}

func (r *MemRepository) Update(ctx context.Context, id string, p Partial) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.DestinationTrxHash != nil {
		o.DestinationTrxHash = *p.DestinationTrxHash
	}
	if p.FailureReasonPublic != nil {
		o.FailureReasonPublic = *p.FailureReasonPublic
	}
	if p.OracleAcceptToRelay != nil {
		o.OracleAcceptToRelay = *p.OracleAcceptToRelay
	}
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (r *MemRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
	delete(r.signatures, id)
	return nil
}

func (r *MemRepository) FindActiveIDs(ctx context.Context, limit int) ([]string, error) {
	return r.findIDsByStatus(activeStatuses, limit)
}

func (r *MemRepository) FindRelayableIDs(ctx context.Context, limit int) ([]string, error) {
	return r.findIDsByStatus([]domain.OrderStatus{domain.StatusReadyForRelay}, limit)
}

func (r *MemRepository) findIDsByStatus(statuses []domain.OrderStatus, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, o := range r.orders {
		for _, s := range statuses {
			if o.Status == s {
				ids = append(ids, o.ID)
				break
			}
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemRepository) AddSignatures(ctx context.Context, orderID string, sigs []string) (SignatureCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.signatures[orderID]
	if !ok {
		set = make(map[string]struct{})
		r.signatures[orderID] = set
	}

	seen := make(map[string]struct{}, len(sigs))
	added := 0
	for _, s := range sigs {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, exists := set[s]; exists {
			continue
		}
		set[s] = struct{}{}
		added++
	}
	return SignatureCounts{Added: added, Total: len(set)}, nil
}

func (r *MemRepository) FindByIDsWithSignatures(ctx context.Context, ids []string) ([]domain.OrderWithSignatures, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.OrderWithSignatures, 0, len(ids))
	for _, id := range ids {
		o, ok := r.orders[id]
		if !ok {
			continue
		}
		cp := *o
		sigs := make([]string, 0, len(r.signatures[id]))
		for s := range r.signatures[id] {
			sigs = append(sigs, s)
		}
		sort.Strings(sigs)
		out = append(out, domain.OrderWithSignatures{Order: &cp, Signatures: sigs})
	}
	return out, nil
}

var _ Repository = (*MemRepository)(nil)
