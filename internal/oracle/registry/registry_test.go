package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

func TestNewSeedsAllDown(t *testing.T) {
	r := New([]string{"a", "b"})
	for _, h := range r.List() {
		assert.Equal(t, domain.OracleDown, h.Status)
	}
	assert.Equal(t, 2, r.Count())
}

func TestUpdateOverwrites(t *testing.T) {
	r := New([]string{"a"})
	r.Update("a", domain.OracleHealth{URL: "a", Status: domain.OracleOK, RelayerFeeS: 5})
	h, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, domain.OracleOK, h.Status)
	assert.Equal(t, int64(5), h.RelayerFeeS)
}

func TestHealthyFiltersDown(t *testing.T) {
	r := New([]string{"a", "b", "c"})
	r.Update("a", domain.OracleHealth{URL: "a", Status: domain.OracleOK})
	r.Update("b", domain.OracleHealth{URL: "b", Status: domain.OracleDown})
	assert.Len(t, r.Healthy(), 1)
}

func TestConcurrentUpdatesAreSafe(t *testing.T) {
	r := New([]string{"a"})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Update("a", domain.OracleHealth{URL: "a", Status: domain.OracleOK, RelayerFeeS: int64(n)})
			_ = r.List()
		}(i)
	}
	wg.Wait()
}
