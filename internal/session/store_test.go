package session

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/gdpr-admin/internal/models"
	"github.com/pribylovaa/gdpr-admin/internal/storage"
	"github.com/pribylovaa/gdpr-admin/internal/storage/memory"
	"github.com/pribylovaa/gdpr-admin/mocks"
)

func newMemStore(t *testing.T) (*Store, *memory.Storage) {
	t.Helper()
	kv := memory.New()
	return NewStore(kv, "t:"), kv
}

func TestStore_EmptyByDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newMemStore(t)

	at, err := s.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, at)

	rt, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	require.Empty(t, rt)

	u, err := s.User(ctx)
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestStore_SetTokens_ClearTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, kv := newMemStore(t)

	require.NoError(t, s.SetTokens(ctx, "A", "R"))

	pair, err := s.Tokens(ctx)
	require.NoError(t, err)
	require.Equal(t, models.TokenPair{AccessToken: "A", RefreshToken: "R"}, pair)

	// Ключи лежат под префиксом.
	v, err := kv.Get(ctx, "t:"+KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "A", v)

	require.NoError(t, s.ClearTokens(ctx))
	pair, err = s.Tokens(ctx)
	require.NoError(t, err)
	require.True(t, pair.Empty())
}

func TestStore_SetTokens_EmptyValueDeletesKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, kv := newMemStore(t)

	require.NoError(t, s.SetTokens(ctx, "A", "R"))
	require.NoError(t, s.SetTokens(ctx, "A2", ""))

	rt, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	require.Empty(t, rt)
	require.Equal(t, 1, kv.Len())
}

func TestStore_User_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newMemStore(t)

	in := models.StoredUser{Email: "dpo@acme.eu", Role: "admin", TenantID: "acme"}
	require.NoError(t, s.SetUser(ctx, in))

	got, err := s.User(ctx)
	require.NoError(t, err)
	require.Equal(t, &in, got)

	require.NoError(t, s.ClearUser(ctx))
	got, err = s.User(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStore_User_UnparsableIsNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, raw := range []string{"{broken", "null", "[]", `{"email":1}`} {
		s, kv := newMemStore(t)
		require.NoError(t, kv.Set(ctx, "t:"+KeyUser, raw))

		u, err := s.User(ctx)
		require.NoError(t, err, raw)
		require.Nil(t, u, raw)
	}
}

func TestStore_Clear_RemovesEverything(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, kv := newMemStore(t)

	require.NoError(t, s.SetTokens(ctx, "A", "R"))
	require.NoError(t, s.SetUser(ctx, models.StoredUser{Email: "a@b.c"}))
	require.NoError(t, s.Clear(ctx))
	require.Equal(t, 0, kv.Len())
}

func TestStore_BackendErrorsPropagate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := mocks.NewMockKV(ctrl)
	s := NewStore(kv, "")
	boom := errors.New("backend down")

	kv.EXPECT().Get(gomock.Any(), DefaultPrefix+KeyAccessToken).Return("", boom)
	_, err := s.AccessToken(context.Background())
	require.ErrorIs(t, err, boom)

	kv.EXPECT().Get(gomock.Any(), DefaultPrefix+KeyUser).Return("", boom)
	_, err = s.User(context.Background())
	require.ErrorIs(t, err, boom)

	kv.EXPECT().Get(gomock.Any(), DefaultPrefix+KeyRefreshToken).Return("", storage.ErrNotFound)
	rt, err := s.RefreshToken(context.Background())
	require.NoError(t, err)
	require.Empty(t, rt)
}

func TestStore_Clear_AttemptsBothOnFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := mocks.NewMockKV(ctrl)
	s := NewStore(kv, "p:")
	boom := errors.New("delete failed")

	kv.EXPECT().Delete(gomock.Any(), "p:"+KeyAccessToken).Return(boom)
	kv.EXPECT().Delete(gomock.Any(), "p:"+KeyRefreshToken).Return(nil)
	kv.EXPECT().Delete(gomock.Any(), "p:"+KeyUser).Return(nil)

	err := s.Clear(context.Background())
	require.ErrorIs(t, err, boom)
}
