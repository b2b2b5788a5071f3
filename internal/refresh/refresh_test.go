package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/gdpr-admin/internal/logout"
	"github.com/pribylovaa/gdpr-admin/internal/models"
	"github.com/pribylovaa/gdpr-admin/internal/session"
	"github.com/pribylovaa/gdpr-admin/internal/storage/memory"
	"github.com/pribylovaa/gdpr-admin/mocks"
)

// gatedExchanger блокирует обмен до закрытия gate и считает вызовы.
type gatedExchanger struct {
	gate    chan struct{}
	calls   atomic.Int32
	payload *models.AuthPayload
	err     error
	sawCtx  chan context.Context
}

func newGated(payload *models.AuthPayload, err error) *gatedExchanger {
	return &gatedExchanger{
		gate:    make(chan struct{}),
		payload: payload,
		err:     err,
		sawCtx:  make(chan context.Context, 1),
	}
}

func (g *gatedExchanger) ExchangeRefreshToken(ctx context.Context, _ string) (*models.AuthPayload, error) {
	g.calls.Add(1)
	select {
	case g.sawCtx <- ctx:
	default:
	}
	<-g.gate
	return g.payload, g.err
}

type fixture struct {
	store   *session.Store
	bc      *logout.Broadcaster
	logouts atomic.Int32
	coord   *Coordinator
}

func newFixture(t *testing.T, ex Exchanger, access, refresh string) *fixture {
	t.Helper()

	f := &fixture{store: session.NewStore(memory.New(), "")}
	require.NoError(t, f.store.SetTokens(context.Background(), access, refresh))
	require.NoError(t, f.store.SetUser(context.Background(), models.StoredUser{Email: "dpo@acme.eu"}))

	f.bc = logout.New(f.store, nil, "")
	f.bc.Register(func() { f.logouts.Add(1) })
	f.coord = New(f.store, ex, f.bc, WithTimeout(2*time.Second))

	return f
}

func (f *fixture) waiters() int {
	f.coord.mu.Lock()
	defer f.coord.mu.Unlock()
	return len(f.coord.waiters)
}

func TestRefresh_Success_PersistsAndKeepsUser(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ex := mocks.NewMockExchanger(ctrl)
	f := newFixture(t, ex, "A1", "R1")

	ex.EXPECT().ExchangeRefreshToken(gomock.Any(), "R1").
		Return(&models.AuthPayload{AccessToken: "A2", RefreshToken: "R2"}, nil).Times(1)

	tok, err := f.coord.Refresh(context.Background(), "A1")
	require.NoError(t, err)
	require.Equal(t, "A2", tok)

	pair, err := f.store.Tokens(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, pair)

	u, err := f.store.User(context.Background())
	require.NoError(t, err)
	require.Equal(t, "dpo@acme.eu", u.Email)

	require.False(t, f.coord.Refreshing())
	require.Equal(t, int32(0), f.logouts.Load())
}

func TestRefresh_SingleFlight_WaitersReleasedTogether(t *testing.T) {
	t.Parallel()

	const n = 8
	ex := newGated(&models.AuthPayload{AccessToken: "A2", RefreshToken: "R2"}, nil)
	f := newFixture(t, ex, "A1", "R1")

	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		tokens[0], errs[0] = f.coord.Refresh(context.Background(), "A1")
	}()
	require.Eventually(t, f.coord.Refreshing, time.Second, time.Millisecond)

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = f.coord.Refresh(context.Background(), "A1")
		}(i)
	}
	require.Eventually(t, func() bool { return f.waiters() == n-1 }, time.Second, time.Millisecond)

	close(ex.gate)
	wg.Wait()

	require.Equal(t, int32(1), ex.calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "A2", tokens[i])
	}
	require.False(t, f.coord.Refreshing())
	require.Equal(t, 0, f.waiters())
}

func TestRefresh_Failure_ClearsSessionAndLogsOutOnce(t *testing.T) {
	t.Parallel()

	const n = 5
	boom := errors.New("401 invalid refresh token")
	ex := newGated(nil, boom)
	f := newFixture(t, ex, "A1", "R1")

	var wg sync.WaitGroup
	errs := make([]error, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = f.coord.Refresh(context.Background(), "A1")
	}()
	require.Eventually(t, f.coord.Refreshing, time.Second, time.Millisecond)

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.Refresh(context.Background(), "A1")
		}(i)
	}
	require.Eventually(t, func() bool { return f.waiters() == n-1 }, time.Second, time.Millisecond)

	close(ex.gate)
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, ErrRefreshFailed)
	}
	require.ErrorIs(t, errs[0], boom)
	require.Equal(t, int32(1), f.logouts.Load())

	ctx := context.Background()
	at, _ := f.store.AccessToken(ctx)
	rt, _ := f.store.RefreshToken(ctx)
	u, _ := f.store.User(ctx)
	require.Empty(t, at)
	require.Empty(t, rt)
	require.Nil(t, u)

	// Запоздавший 401 со старым токеном не запускает второй logout.
	_, err := f.coord.Refresh(ctx, "A1")
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, int32(1), f.logouts.Load())
	require.Equal(t, int32(1), ex.calls.Load())
}

func TestRefresh_NoRefreshToken_NoNetworkCall(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ex := mocks.NewMockExchanger(ctrl) // без EXPECT: любой вызов провалит тест.
	f := newFixture(t, ex, "A1", "")

	_, err := f.coord.Refresh(context.Background(), "A1")
	require.ErrorIs(t, err, ErrNoRefreshToken)
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.Equal(t, int32(1), f.logouts.Load())

	at, _ := f.store.AccessToken(context.Background())
	require.Empty(t, at)
}

func TestRefresh_TokenAlreadyRotated_ReusesCurrent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ex := mocks.NewMockExchanger(ctrl)
	f := newFixture(t, ex, "A2", "R2")

	tok, err := f.coord.Refresh(context.Background(), "A1")
	require.NoError(t, err)
	require.Equal(t, "A2", tok)
	require.Equal(t, int32(0), f.logouts.Load())
}

func TestRefresh_MalformedPersistFailure_LogsOut(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := mocks.NewMockKV(ctrl)
	ex := mocks.NewMockExchanger(ctrl)
	store := session.NewStore(kv, "p:")
	var logouts int
	bc := logout.New(store, nil, "")
	bc.Register(func() { logouts++ })
	c := New(store, ex, bc)

	boom := errors.New("disk full")
	gomock.InOrder(
		kv.EXPECT().Get(gomock.Any(), "p:"+session.KeyAccessToken).Return("A1", nil),
		kv.EXPECT().Get(gomock.Any(), "p:"+session.KeyRefreshToken).Return("R1", nil),
		ex.EXPECT().ExchangeRefreshToken(gomock.Any(), "R1").
			Return(&models.AuthPayload{AccessToken: "A2", RefreshToken: "R2"}, nil),
		kv.EXPECT().Set(gomock.Any(), "p:"+session.KeyAccessToken, "A2").Return(boom),
	)
	kv.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	_, err := c.Refresh(context.Background(), "A1")
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, logouts)
}

func TestRefresh_WaiterContextCanceled_LeaderContinues(t *testing.T) {
	t.Parallel()

	ex := newGated(&models.AuthPayload{AccessToken: "A2", RefreshToken: "R2"}, nil)
	f := newFixture(t, ex, "A1", "R1")

	leaderDone := make(chan error, 1)
	go func() {
		_, err := f.coord.Refresh(context.Background(), "A1")
		leaderDone <- err
	}()
	require.Eventually(t, f.coord.Refreshing, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := f.coord.Refresh(ctx, "A1")
		waiterDone <- err
	}()
	require.Eventually(t, func() bool { return f.waiters() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-waiterDone, context.Canceled)

	close(ex.gate)
	require.NoError(t, <-leaderDone)

	at, _ := f.store.AccessToken(context.Background())
	require.Equal(t, "A2", at)
}

func TestRefresh_LeaderCancel_DoesNotAbortExchange(t *testing.T) {
	t.Parallel()

	ex := newGated(&models.AuthPayload{AccessToken: "A2", RefreshToken: "R2"}, nil)
	f := newFixture(t, ex, "A1", "R1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Refresh(ctx, "A1")
		done <- err
	}()

	exCtx := <-ex.sawCtx
	cancel()
	require.NoError(t, exCtx.Err())

	close(ex.gate)
	require.NoError(t, <-done)
}

// ctxKV - KV, который, как redis/postgres, отказывает на завершённом контексте.
type ctxKV struct {
	*memory.Storage
}

func (k ctxKV) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return k.Storage.Get(ctx, key)
}

func (k ctxKV) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.Storage.Set(ctx, key, value)
}

func (k ctxKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.Storage.Delete(ctx, key)
}

type exchangerFunc func(ctx context.Context, refreshToken string) (*models.AuthPayload, error)

func (f exchangerFunc) ExchangeRefreshToken(ctx context.Context, rt string) (*models.AuthPayload, error) {
	return f(ctx, rt)
}

func TestRefresh_ExchangeDeadline_StillClearsSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewStore(ctxKV{memory.New()}, "")
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))
	require.NoError(t, store.SetUser(ctx, models.StoredUser{Email: "dpo@acme.eu"}))

	var logouts atomic.Int32
	bc := logout.New(store, nil, "")
	bc.Register(func() { logouts.Add(1) })

	slow := exchangerFunc(func(ctx context.Context, _ string) (*models.AuthPayload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := New(store, slow, bc, WithTimeout(50*time.Millisecond))

	_, err := c.Refresh(ctx, "A1")
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	pair, err := store.Tokens(ctx)
	require.NoError(t, err)
	require.Empty(t, pair.AccessToken)
	require.Empty(t, pair.RefreshToken)
	require.Equal(t, int32(1), logouts.Load())

	_, err = c.Refresh(ctx, "A1")
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, int32(1), logouts.Load())
}

// slowReadKV отдаёт первое чтение access-токена с задержкой: значение
// прочитано до gate, а возвращается после.
type slowReadKV struct {
	*memory.Storage
	first   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (k *slowReadKV) Get(ctx context.Context, key string) (string, error) {
	v, err := k.Storage.Get(ctx, key)
	if key != session.KeyAccessToken {
		return v, err
	}
	if k.first.CompareAndSwap(false, true) {
		close(k.entered)
		<-k.release
	}
	return v, err
}

func TestRefresh_TokenReadOutsideLock_RechecksAfterForeignRefresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := &slowReadKV{Storage: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	store := session.NewStore(kv, "")
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))

	var calls atomic.Int32
	ex := exchangerFunc(func(_ context.Context, rt string) (*models.AuthPayload, error) {
		calls.Add(1)
		if rt != "R1" {
			return nil, errors.New("refresh token already used")
		}
		return &models.AuthPayload{AccessToken: "A2", RefreshToken: "R2"}, nil
	})
	bc := logout.New(store, nil, "")
	c := New(store, ex, bc, WithTimeout(2*time.Second))

	slowDone := make(chan string, 1)
	go func() {
		tok, _ := c.Refresh(ctx, "A1")
		slowDone <- tok
	}()
	<-kv.entered

	lockFree := make(chan bool, 1)
	go func() { lockFree <- c.Refreshing() }()
	select {
	case r := <-lockFree:
		require.False(t, r)
	case <-time.After(time.Second):
		t.Fatal("coordinator mutex held during token read")
	}

	tok, err := c.Refresh(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, "A2", tok)

	close(kv.release)
	require.Equal(t, "A2", <-slowDone)
	require.Equal(t, int32(1), calls.Load())

	at, err := store.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "A2", at)
}
