package certstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/proxyguard/core/certstore"
)

func newStore(t *testing.T) *certstore.Store {
	t.Helper()
	store, err := certstore.New(certstore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestNew(t *testing.T) {
	t.Run("creates missing root directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "live")
		_, err := certstore.New(certstore.Config{Dir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("requires a directory", func(t *testing.T) {
		_, err := certstore.New(certstore.Config{})
		require.ErrorIs(t, err, certstore.ErrDirRequired)
	})
}

func TestLookup(t *testing.T) {
	t.Run("absent certificate is not an error", func(t *testing.T) {
		store := newStore(t)
		ref, err := store.Lookup("example.com")
		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("empty primary reports absent", func(t *testing.T) {
		store := newStore(t)
		ref, err := store.Lookup("")
		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("empty files report absent", func(t *testing.T) {
		store := newStore(t)
		dir := filepath.Join(store.Dir(), "example.com")
		require.NoError(t, os.MkdirAll(dir, 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "fullchain.pem"), nil, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "privkey.pem"), nil, 0o600))

		ref, err := store.Lookup("example.com")
		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("installed certificate is found", func(t *testing.T) {
		store := newStore(t)
		installed, err := store.Install("example.com", []byte("cert"), []byte("key"))
		require.NoError(t, err)

		ref, err := store.Lookup("example.com")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, installed, ref)
		assert.Equal(t, "example.com", ref.Primary)
		assert.Equal(t, filepath.Join(store.Dir(), "example.com", "fullchain.pem"), ref.CertFile)
		assert.Equal(t, filepath.Join(store.Dir(), "example.com", "privkey.pem"), ref.KeyFile)
	})
}

func TestInstall(t *testing.T) {
	t.Run("writes both files with final content", func(t *testing.T) {
		store := newStore(t)
		ref, err := store.Install("example.com", []byte("cert-data"), []byte("key-data"))
		require.NoError(t, err)

		cert, err := os.ReadFile(ref.CertFile)
		require.NoError(t, err)
		assert.Equal(t, "cert-data", string(cert))

		key, err := os.ReadFile(ref.KeyFile)
		require.NoError(t, err)
		assert.Equal(t, "key-data", string(key))
	})

	t.Run("leaves no temporary files behind", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Install("example.com", []byte("cert"), []byte("key"))
		require.NoError(t, err)

		entries, err := os.ReadDir(filepath.Join(store.Dir(), "example.com"))
		require.NoError(t, err)
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.ElementsMatch(t, []string{"fullchain.pem", "privkey.pem"}, names)
	})

	t.Run("refreshes in place", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Install("example.com", []byte("old-cert"), []byte("old-key"))
		require.NoError(t, err)
		ref, err := store.Install("example.com", []byte("new-cert"), []byte("new-key"))
		require.NoError(t, err)

		cert, err := os.ReadFile(ref.CertFile)
		require.NoError(t, err)
		assert.Equal(t, "new-cert", string(cert))
	})

	t.Run("rejects empty material", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Install("example.com", nil, []byte("key"))
		require.ErrorIs(t, err, certstore.ErrEmptyMaterial)

		_, err = store.Install("", []byte("cert"), []byte("key"))
		require.ErrorIs(t, err, certstore.ErrPrimaryRequired)
	})
}

func TestList(t *testing.T) {
	store := newStore(t)

	primaries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, primaries)

	_, err = store.Install("a.com", []byte("cert"), []byte("key"))
	require.NoError(t, err)
	_, err = store.Install("b.com", []byte("cert"), []byte("key"))
	require.NoError(t, err)

	// A directory without usable material must not be listed.
	require.NoError(t, os.MkdirAll(filepath.Join(store.Dir(), "broken.com"), 0o700))

	primaries, err = store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.com", "b.com"}, primaries)
}
