package worker

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/OTADrop/internal/queue"
	"github.com/dharsanguruparan/OTADrop/internal/storage"
)

func cleanupTask(t *testing.T, ns storage.Namespace, name string) *asynq.Task {
	t.Helper()
	task, err := queue.NewCleanupTask(queue.CleanupPayload{Namespace: ns, Name: name})
	require.NoError(t, err)
	return task
}

func TestHandleCleanup(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Save(ctx, storage.Archives, "id.ipa", []byte("x")))
	p := NewProcessor(store, nil)

	require.NoError(t, p.handleCleanup(ctx, cleanupTask(t, storage.Archives, "id.ipa")))
	assert.Zero(t, store.Len(storage.Archives))

	require.NoError(t, p.handleCleanup(ctx, cleanupTask(t, storage.Archives, "id.ipa")), "missing artifacts are done")
}

func TestHandleCleanupSkipsRetryOnBadInput(t *testing.T) {
	p := NewProcessor(storage.NewMemoryStore(), nil)

	err := p.handleCleanup(context.Background(), asynq.NewTask(queue.CleanupArtifactTask, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = p.handleCleanup(context.Background(), cleanupTask(t, storage.Archives, "../etc/passwd"))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlerRoutesCleanup(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Save(ctx, storage.Manifests, "id.plist", []byte("x")))

	mux := NewProcessor(store, nil).Handler()
	require.NoError(t, mux.ProcessTask(ctx, cleanupTask(t, storage.Manifests, "id.plist")))
	assert.Zero(t, store.Len(storage.Manifests))
}
