// Package orders defines the Orders Repository contract (spec.md §4.4).
// The concrete storage engine is pluggable; internal/orders/pgorders ships
// one implementation backed by Postgres.
package orders

import (
	"context"
	"time"

	"cosmossdk.io/math"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

// Order statuses, actively tracked by findActivesIds.
var activeStatuses = []domain.OrderStatus{domain.StatusPending, domain.StatusInProgress}

// Filter describes the paginate() query parameters.
type Filter struct {
	Page           int
	Limit          int
	Order          string // "asc" | "desc" by created_at
	Source         *domain.Chain
	Dest           *domain.Chain
	Status         []domain.OrderStatus
	From           *string
	To             *string
	AmountMin      *math.Int
	AmountMax      *math.Int
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	ID             *string
}

// Page is the paginated result of paginate().
type Page struct {
	Orders []*domain.Order
	Total  int
}

// SignatureCounts is the result of addSignatures.
type SignatureCounts struct {
	Added int
	Total int
}

// Partial is a partial update for update(); nil fields are left untouched.
type Partial struct {
	Status             *domain.OrderStatus
	DestinationTrxHash *string
	FailureReasonPublic *string
	OracleAcceptToRelay *bool
}

// Repository is the Orders Repository contract (spec.md §4.4).
type Repository interface {
	Paginate(ctx context.Context, f Filter) (Page, error)
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByOriginTrxHash(ctx context.Context, hash string) (*domain.Order, error)
	Create(ctx context.Context, o *domain.Order) (*domain.Order, error)
	Update(ctx context.Context, id string, p Partial) (*domain.Order, error)
	Delete(ctx context.Context, id string) error
	FindActiveIDs(ctx context.Context, limit int) ([]string, error)
	FindRelayableIDs(ctx context.Context, limit int) ([]string, error)
	AddSignatures(ctx context.Context, orderID string, sigs []string) (SignatureCounts, error)
	FindByIDsWithSignatures(ctx context.Context, ids []string) ([]domain.OrderWithSignatures, error)
}
