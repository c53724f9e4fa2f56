package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewFileStore(filepath.Join(root, "uploads"), filepath.Join(root, "manifests"))
	require.NoError(t, err)
	return s, root
}

func TestStores(t *testing.T) {
	fileStore, _ := newFileStore(t)
	stores := map[string]Store{
		"memory":     NewMemoryStore(),
		"filesystem": fileStore,
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, Archives, "a.ipa", []byte("archive")))
			require.NoError(t, s.Save(ctx, Manifests, "a.plist", []byte("manifest")))

			got, err := s.Read(ctx, Archives, "a.ipa")
			require.NoError(t, err)
			assert.Equal(t, []byte("archive"), got)

			_, err = s.Read(ctx, Manifests, "a.ipa")
			assert.ErrorIs(t, err, ErrNotFound, "namespaces must not overlap")

			assert.ErrorIs(t, s.Save(ctx, Archives, "a.ipa", []byte("again")), ErrExists)

			require.NoError(t, s.Delete(ctx, Archives, "a.ipa"))
			_, err = s.Read(ctx, Archives, "a.ipa")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, Archives, "a.ipa"), ErrNotFound)

			assert.ErrorIs(t, s.Save(ctx, Archives, "../escape.ipa", nil), ErrInvalidName)
			_, err = s.Read(ctx, Manifests, "..")
			assert.ErrorIs(t, err, ErrInvalidName)
			assert.Error(t, s.Save(ctx, Namespace("other"), "x", nil))
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	s, root := newFileStore(t)
	require.NoError(t, s.Save(context.Background(), Manifests, "id.plist", []byte("<plist/>")))

	data, err := os.ReadFile(filepath.Join(root, "manifests", "id.plist"))
	require.NoError(t, err)
	assert.Equal(t, "<plist/>", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "manifests"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must be cleaned up")
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	data := []byte("abc")
	require.NoError(t, s.Save(ctx, Archives, "x.ipa", data))
	data[0] = 'z'

	got, err := s.Read(ctx, Archives, "x.ipa")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, s.Len(Archives))
	assert.Equal(t, 0, s.Len(Manifests))
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "a\x00b"} {
		assert.ErrorIs(t, ValidName(name), ErrInvalidName, name)
	}
	assert.NoError(t, ValidName("6b1d0c1e-3a2f-4f5e-9d7a-0e4c6f1f2b3a.ipa"))
}
