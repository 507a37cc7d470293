// Package distlock provides the single-writer lock that serializes processing
// steps of one bulk send job across workers and hosts.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the lock is not owned by the caller.
var ErrNotHeld = errors.New("lock not held")

// DistLock is a non-blocking mutual exclusion lock.
// A DistLock instance belongs to one goroutine; create one per acquisition.
type DistLock interface {
	// Acquire tries to take the lock and reports whether it succeeded.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if we still own it.
	Release(ctx context.Context) error
}

// JobKey is the lock key for a bulk send job.
func JobKey(jobID string) string { return "massmail:job:" + jobID }

// NewLock picks a backend: Redis when a client is given, PostgreSQL advisory
// locks when only a database is given, otherwise an in-process lock.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	switch {
	case redisClient != nil:
		return NewRedisLock(redisClient, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	default:
		return NewLocalLock(key)
	}
}

// Provider hands out per-job locks from one configured backend.
type Provider struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
}

// NewProvider creates a lock provider. Either client may be nil.
func NewProvider(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Provider {
	return &Provider{redis: redisClient, db: db, ttl: ttl}
}

// ForJob returns a fresh lock instance for the job.
func (p *Provider) ForJob(jobID string) DistLock {
	return NewLock(p.redis, p.db, JobKey(jobID), p.ttl)
}

// =============================================================================
// PostgreSQL advisory lock
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection between Acquire and Release. A dropped connection frees the lock.

// PGAdvisoryLock implements DistLock with PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock derives a stable 64-bit lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire is non-blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// =============================================================================
// In-process lock
// =============================================================================

var localHeld sync.Map

// LocalLock serializes holders of the same key within one process. It is used
// when the server and worker run as a single binary without Redis or Postgres.
type LocalLock struct {
	key  string
	held bool
}

// NewLocalLock creates an in-process lock for key.
func NewLocalLock(key string) *LocalLock { return &LocalLock{key: key} }

// Acquire is non-blocking.
func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	if _, loaded := localHeld.LoadOrStore(l.key, struct{}{}); loaded {
		return false, nil
	}
	l.held = true
	return true, nil
}

// Release frees the key.
func (l *LocalLock) Release(_ context.Context) error {
	if !l.held {
		return ErrNotHeld
	}
	localHeld.Delete(l.key)
	l.held = false
	return nil
}
