package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricochet1k/wamux/internal/domain"
)

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	reg := NewRegistry(0)

	_, ok := reg.Get("a1")
	assert.False(t, ok)

	rec, created := reg.GetOrCreate("a1")
	require.True(t, created)
	assert.Equal(t, domain.SessionStateIdle, rec.Status())

	again, created := reg.GetOrCreate("a1")
	assert.False(t, created)
	assert.Same(t, rec, again)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	reg := NewRegistry(0)
	var wg sync.WaitGroup
	records := make([]*Record, 32)
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], _ = reg.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for _, rec := range records {
		assert.Same(t, records[0], rec)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryAllOrdered(t *testing.T) {
	reg := NewRegistry(0)
	for i := 0; i < 5; i++ {
		reg.GetOrCreate(fmt.Sprintf("s%d", i))
	}
	all := reg.All()
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
	}
}
