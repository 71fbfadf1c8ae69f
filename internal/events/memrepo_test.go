package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

func newEvent(sig string, typ domain.EventType, nonce string) *domain.StoredEvent {
	return &domain.StoredEvent{
		Signature: sig,
		Chain:     domain.ChainS,
		Type:      typ,
		Nonce:     nonce,
		Payload:   []byte("payload"),
	}
}

func TestMemRepository_CreateDedupesOnKey(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()

	first, err := repo.Create(ctx, newEvent("sig1", domain.EventOutbound, "nonce1"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NotZero(t, first.ID)

	dup, err := repo.Create(ctx, newEvent("sig1", domain.EventOutbound, "nonce1"))
	require.NoError(t, err)
	assert.Nil(t, dup)

	// Same signature, different type/nonce is not a duplicate.
	other, err := repo.Create(ctx, newEvent("sig1", domain.EventInbound, "nonce2"))
	require.NoError(t, err)
	require.NotNil(t, other)
}

func TestMemRepository_FindExistingSignatures(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()
	_, err := repo.Create(ctx, newEvent("sig1", domain.EventOutbound, "nonce1"))
	require.NoError(t, err)

	found, err := repo.FindExistingSignatures(ctx, []string{"sig1", "sig-missing"})
	require.NoError(t, err)
	assert.True(t, found["sig1"])
	assert.False(t, found["sig-missing"])
}

func TestMemRepository_ListAfterCreatedAtOrdersAndPages(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := newEvent("sig", domain.EventOutbound, string(rune('a'+i)))
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := repo.Create(ctx, e)
		require.NoError(t, err)
	}

	page1, err := repo.ListAfterCreatedAt(ctx, base.Add(-time.Second), 0, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)

	last := page1[len(page1)-1]
	page2, err := repo.ListAfterCreatedAt(ctx, last.CreatedAt, last.ID, 10)
	require.NoError(t, err)
	assert.Len(t, page2, 3)
	for _, e := range page2 {
		assert.True(t, e.CreatedAt.After(last.CreatedAt) || e.ID > last.ID)
	}
}
