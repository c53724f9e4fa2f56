package processing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/OTADrop/internal/storage"
)

func TestPoolDeletesArtifacts(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Save(ctx, storage.Archives, "a.ipa", []byte("x")))

	p := New(store, 2, nil)
	p.Start(ctx)
	require.NoError(t, p.Discard(ctx, storage.Archives, "a.ipa"))
	require.NoError(t, p.Discard(ctx, storage.Manifests, "a.plist"))

	assert.Eventually(t, func() bool {
		return store.Len(storage.Archives) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	p.Wait()
}

func TestPoolDropsWhenFull(t *testing.T) {
	p := New(storage.NewMemoryStore(), 1, nil)
	for i := 0; i < cap(p.queue); i++ {
		require.NoError(t, p.Submit(Job{Namespace: storage.Archives, Name: "x.ipa"}))
	}
	assert.ErrorIs(t, p.Submit(Job{Namespace: storage.Archives, Name: "y.ipa"}), ErrQueueFull)
}
