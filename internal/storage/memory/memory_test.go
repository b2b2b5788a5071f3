package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pribylovaa/gdpr-admin/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestStorage_SetGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", v)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	require.Equal(t, 0, s.Len())
}

func TestStorage_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			_ = s.Set(ctx, key, "v")
			_, _ = s.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 4, s.Len())
}
