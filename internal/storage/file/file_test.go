package file

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pribylovaa/gdpr-admin/internal/storage"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "session.json"))
	require.NoError(t, err)
	return s
}

func TestNew_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
}

func TestStorage_RoundTrip_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStorage(t)

	_, err := s.Get(ctx, "access_token")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, "access_token", "a1"))
	require.NoError(t, s.Set(ctx, "refresh_token", "r1"))

	// Новый экземпляр читает тот же файл.
	s2, err := New(s.Path())
	require.NoError(t, err)

	v, err := s2.Get(ctx, "refresh_token")
	require.NoError(t, err)
	require.Equal(t, "r1", v)

	require.NoError(t, s2.Delete(ctx, "access_token"))
	_, err = s.Get(ctx, "access_token")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStorage_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix permissions only")
	}
	t.Parallel()

	s := newStorage(t)
	require.NoError(t, s.Set(context.Background(), "k", "v"))

	fi, err := os.Stat(s.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestStorage_CorruptedFile(t *testing.T) {
	t.Parallel()

	s := newStorage(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestStorage_DeleteMissingKey_NoFileCreated(t *testing.T) {
	t.Parallel()

	s := newStorage(t)
	require.NoError(t, s.Delete(context.Background(), "missing"))

	_, err := os.Stat(s.Path())
	require.True(t, os.IsNotExist(err))
}
