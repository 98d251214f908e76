package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricochet1k/wamux/internal/domain"
)

func TestValidateSessionID(t *testing.T) {
	valid := []string{"a1", "shop-main", "bot_2", "alice@work", "v1.2"}
	for _, id := range valid {
		assert.NoError(t, ValidateSessionID(id), id)
	}

	invalid := []string{"", ".", "..", "../etc", "a/b", `a\b`, "with space", string(make([]byte, 65))}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateSessionID(id), domain.ErrInvalidArgument, id)
	}
}

func TestCredentialStoreLifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := NewCredentialStore(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	dir, err := store.Ensure("a1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a1"), dir)
	assert.True(t, store.Exists("a1"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "store.db"), []byte("keys"), 0o600))

	_, err = store.Ensure("b2")
	require.NoError(t, err)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b2"}, ids)

	require.NoError(t, store.Remove("a1"))
	assert.False(t, store.Exists("a1"))
	require.NoError(t, store.Remove("a1"), "removing twice is fine")
}

func TestCredentialStoreListSkipsFilesAndInvalidNames(t *testing.T) {
	root := t.TempDir()
	store, err := NewCredentialStore(root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(root, "bad name"), 0o700))
	_, err = store.Ensure("ok")
	require.NoError(t, err)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, ids)
}

func TestCredentialStoreRejectsTraversal(t *testing.T) {
	store, err := NewCredentialStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Ensure("..")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.ErrorIs(t, store.Remove("../x"), domain.ErrInvalidArgument)
}
