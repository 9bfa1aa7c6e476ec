package integritysync

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_SingleFlight(t *testing.T) {
	g := NewGuard(nil)

	var acquired atomic.Int32
	var wg sync.WaitGroup
	claims := make(chan *Claim, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if claim, err := g.TryAcquire(context.Background()); err == nil {
				acquired.Add(1)
				claims <- claim
			}
		}()
	}
	wg.Wait()
	close(claims)

	assert.Equal(t, int32(1), acquired.Load())
	for claim := range claims {
		assert.Nil(t, claim.Lost())
		claim.Release()
		claim.Release()
	}
	assert.False(t, g.Running())

	claim, err := g.TryAcquire(context.Background())
	require.NoError(t, err)
	claim.Release()
}

type stubLock struct {
	err      error
	lost     chan struct{}
	released int
}

func (s *stubLock) Acquire(ctx context.Context) (*Lease, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Lease{Lost: s.lost, Release: func(context.Context) { s.released++ }}, nil
}

func TestGuard_DistributedLock(t *testing.T) {
	held := NewGuard(&stubLock{err: ErrLockHeld})
	_, err := held.TryAcquire(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.False(t, held.Running(), "local flag must be cleared when the remote lock is held")

	broken := NewGuard(&stubLock{err: errors.New("redis: connection refused")})
	_, err = broken.TryAcquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSyncInProgress)
	assert.False(t, broken.Running())

	lock := &stubLock{lost: make(chan struct{})}
	g := NewGuard(lock)
	claim, err := g.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, (<-chan struct{})(lock.lost), claim.Lost())
	claim.Release()
	claim.Release()
	assert.Equal(t, 1, lock.released)
}

func waitLost(lost <-chan struct{}, d time.Duration) bool {
	select {
	case <-lost:
		return true
	case <-time.After(d):
		return false
	}
}

func TestRedisLock_KeepAliveTakenOver(t *testing.T) {
	l := NewRedisLock(nil, "sync", 40*time.Millisecond)
	stop := make(chan struct{})
	lost := make(chan struct{})
	go l.keepAlive(func(context.Context, time.Duration, *redislock.Options) error {
		return redislock.ErrNotObtained
	}, stop, lost)

	assert.True(t, waitLost(lost, time.Second), "a refused refresh must mark the lease lost")
	close(stop)
}

func TestRedisLock_KeepAliveExpiresAfterFailedRefreshes(t *testing.T) {
	l := NewRedisLock(nil, "sync", 40*time.Millisecond)
	stop := make(chan struct{})
	lost := make(chan struct{})
	go l.keepAlive(func(context.Context, time.Duration, *redislock.Options) error {
		return errors.New("i/o timeout")
	}, stop, lost)

	assert.True(t, waitLost(lost, time.Second), "no successful refresh for a full TTL must mark the lease lost")
	close(stop)
}

func TestRedisLock_KeepAliveHealthy(t *testing.T) {
	l := NewRedisLock(nil, "sync", 40*time.Millisecond)
	stop := make(chan struct{})
	lost := make(chan struct{})
	var refreshes atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(func(context.Context, time.Duration, *redislock.Options) error {
			refreshes.Add(1)
			return nil
		}, stop, lost)
	}()

	assert.False(t, waitLost(lost, 150*time.Millisecond))
	close(stop)
	<-done
	assert.GreaterOrEqual(t, refreshes.Load(), int32(2))
}

func TestMySQLLock_AcquireAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK(?, ?)").
		WithArgs("vehicle-integrity:full-sync", 0).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(1))
	mock.ExpectQuery("SELECT RELEASE_LOCK(?)").
		WithArgs("vehicle-integrity:full-sync").
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(1))

	lock := NewMySQLLock(db, "vehicle-integrity:full-sync")
	lease, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.Nil(t, lease.Lost)
	lease.Release(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLLock_HeldElsewhere(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK(?, ?)").
		WithArgs("sync", 0).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(0))

	_, err = NewMySQLLock(db, "sync").Acquire(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLLock_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK(?, ?)").
		WithArgs("sync", 0).
		WillReturnError(errors.New("server has gone away"))

	_, err = NewMySQLLock(db, "sync").Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
}

func TestRedisLock_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()).Err())

	key := "vehicle-integrity:test:" + time.Now().Format("150405.000000")
	a := NewRedisLock(redislock.New(rdb), key, 5*time.Second)
	b := NewRedisLock(redislock.New(rdb), key, 5*time.Second)

	lease, err := a.Acquire(context.Background())
	require.NoError(t, err)

	_, err = b.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)

	lease.Release(context.Background())
	leaseB, err := b.Acquire(context.Background())
	require.NoError(t, err)
	leaseB.Release(context.Background())
}
