package integritysync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/sirupsen/logrus"
)

const SyncInProgressMessage = "Sync already in progress"

// ErrSyncInProgress is returned when a full sync is already running here or on another instance.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrLockHeld is returned by a DistributedLock held by another instance.
var ErrLockHeld = errors.New("distributed lock held elsewhere")

// ErrLockLost means the distributed lock expired or was taken over while a run held it.
var ErrLockLost = errors.New("distributed lock lost during sync")

// Lease is a held distributed lock. Lost is closed once exclusivity can no longer
// be guaranteed; a nil Lost never fires.
type Lease struct {
	Lost    <-chan struct{}
	Release func(context.Context)
}

// DistributedLock extends single-flight across instances.
type DistributedLock interface {
	// Acquire returns the lease, or ErrLockHeld when another holder has it.
	Acquire(ctx context.Context) (*Lease, error)
}

// Guard rejects (never queues) a second concurrent run.
type Guard struct {
	running atomic.Bool
	lock    DistributedLock
}

func NewGuard(lock DistributedLock) *Guard {
	return &Guard{lock: lock}
}

// Running reports whether a run currently holds the guard.
func (g *Guard) Running() bool {
	return g.running.Load()
}

// Claim is a held guard.
type Claim struct {
	lost    <-chan struct{}
	once    sync.Once
	release func()
}

// Lost fires when the distributed lock behind the claim is lost. Nil without one.
func (c *Claim) Lost() <-chan struct{} {
	return c.lost
}

// Release is safe to call more than once.
func (c *Claim) Release() {
	c.once.Do(c.release)
}

// TryAcquire claims the guard. The caller must Release the claim.
func (g *Guard) TryAcquire(ctx context.Context) (*Claim, error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}

	var lease *Lease
	if g.lock != nil {
		var err error
		lease, err = g.lock.Acquire(ctx)
		if err != nil {
			g.running.Store(false)
			if errors.Is(err, ErrLockHeld) {
				return nil, ErrSyncInProgress
			}
			return nil, fmt.Errorf("acquire distributed lock: %w", err)
		}
	}

	claim := &Claim{release: func() {
		if lease != nil && lease.Release != nil {
			// The run's ctx may already be cancelled; releasing must still happen.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			lease.Release(rctx)
			cancel()
		}
		g.running.Store(false)
	}}
	if lease != nil {
		claim.lost = lease.Lost
	}
	return claim, nil
}

// RedisLock holds a bsm/redislock key for the duration of a run, refreshing it at half TTL.
// The lease is lost when the key is taken over or no refresh has succeeded for a full TTL.
type RedisLock struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisLock(client *redislock.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLock{client: client, key: key, ttl: ttl, logger: config.GetLogger()}
}

func (l *RedisLock) Acquire(ctx context.Context) (*Lease, error) {
	if l.client == nil {
		return nil, errors.New("redis lock client is not initialized")
	}
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	lost := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(lock.Refresh, stop, lost)
	}()

	return &Lease{
		Lost: lost,
		Release: func(rctx context.Context) {
			close(stop)
			<-done
			if err := lock.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				config.LogError(l.logger, "integritysync/guard.go", "RedisLock.release", "release lock", l.key, err)
			}
		},
	}, nil
}

type refreshFunc func(ctx context.Context, ttl time.Duration, opt *redislock.Options) error

func (l *RedisLock) keepAlive(refresh refreshFunc, stop <-chan struct{}, lost chan<- struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	lastRefresh := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/4)
			err := refresh(ctx, l.ttl, nil)
			cancel()
			if err == nil {
				lastRefresh = time.Now()
				continue
			}
			config.LogError(l.logger, "integritysync/guard.go", "RedisLock.keepAlive", "refresh lock", l.key, err)
			if errors.Is(err, redislock.ErrNotObtained) || time.Since(lastRefresh) >= l.ttl {
				close(lost)
				return
			}
		}
	}
}

// MySQLLock uses a MySQL advisory lock. GET_LOCK is connection-scoped,
// so the lock pins one pooled connection until released.
type MySQLLock struct {
	db     *sql.DB
	name   string
	logger *logrus.Logger
}

func NewMySQLLock(db *sql.DB, name string) *MySQLLock {
	return &MySQLLock{db: db, name: name, logger: config.GetLogger()}
}

// Acquire never reports a lost lease: GET_LOCK lives as long as the pinned connection.
func (l *MySQLLock) Acquire(ctx context.Context) (*Lease, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var ok sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.name, 0).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !ok.Valid || ok.Int64 != 1 {
		_ = conn.Close()
		return nil, ErrLockHeld
	}

	return &Lease{Release: func(rctx context.Context) {
		var released sql.NullInt64
		if err := conn.QueryRowContext(rctx, "SELECT RELEASE_LOCK(?)", l.name).Scan(&released); err != nil {
			config.LogError(l.logger, "integritysync/guard.go", "MySQLLock.release", "release lock", l.name, err)
		}
		_ = conn.Close()
	}}, nil
}
