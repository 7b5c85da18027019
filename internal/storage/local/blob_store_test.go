package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madfam-io/renec-harvester-sub000/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		require.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "archive")
		_, err := local.New(local.Config{BaseDir: base})
		require.NoError(t, err)
		info, err := os.Stat(base)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	t.Run("WritesFileAndReturnsURI", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "run-1/standard/abc.html", "text/html", []byte("<html/>"))
		require.NoError(t, err)
		require.Equal(t, "file://"+filepath.Join(base, "run-1/standard/abc.html"), uri)

		written, err := os.ReadFile(filepath.Join(base, "run-1/standard/abc.html"))
		require.NoError(t, err)
		require.Equal(t, []byte("<html/>"), written)
	})

	t.Run("EmptyPathRejected", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "  ", "text/html", []byte("x"))
		require.Error(t, err)
	})

	t.Run("TraversalRejected", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.html", "text/html", []byte("x"))
		require.Error(t, err)
	})
}
