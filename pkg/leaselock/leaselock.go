// Package leaselock serializes workspace mutation across workers with a
// Postgres-backed lease. A lease expires on its own if the holder dies,
// so a crashed worker never wedges a workspace.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrHeld is returned by a non-waiting acquire when another holder
	// owns the lease.
	ErrHeld = errors.New("leaselock: lease held by another worker")
	// ErrLost cancels the lease context when renewal finds the lease
	// taken over after expiry.
	ErrLost = errors.New("leaselock: lease lost")
)

const (
	defaultTTL         = 5 * time.Minute
	defaultPoll        = 250 * time.Millisecond
	renewFailureBudget = 3
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Locker hands out leases backed by the workspace_locks table.
type Locker struct {
	db rowQuerier
}

func New(pool *pgxpool.Pool) *Locker {
	return &Locker{db: pool}
}

// Options tunes a single acquire. Zero values pick the defaults: a five
// minute TTL renewed at half-TTL, and no waiting.
type Options struct {
	// TTL is how long the lease survives without renewal.
	TTL time.Duration
	// RenewEvery overrides the renewal period. Must stay below TTL.
	RenewEvery time.Duration
	// Wait polls until the lease frees up instead of failing with ErrHeld.
	Wait bool
	// PollInterval is the base delay between acquire attempts when waiting.
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = o.TTL / 2
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPoll
	}
	return o
}

// Lease is one held lock. Context is cancelled with ErrLost if renewal
// fails, so work running under the lease stops instead of racing the
// next holder.
type Lease struct {
	Key     string
	Context context.Context

	holder  string
	locker  *Locker
	cancel  context.CancelCauseFunc
	done    chan struct{}
	closeMu sync.Once
}

// WithLease acquires the lease, runs fn under the lease context, and
// releases on the way out.
func (lk *Locker) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := lk.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.Background())
	}()
	return fn(lease.Context)
}

// Acquire takes the lease for key, waiting for it if opts.Wait is set.
// Renewal runs in the background until Release.
func (lk *Locker) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("leaselock: empty key")
	}
	opts = opts.withDefaults()

	holder, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	for {
		taken, err := lk.tryTake(ctx, key, holder, opts.TTL)
		if err != nil {
			return nil, err
		}
		if taken {
			break
		}
		if !opts.Wait {
			return nil, ErrHeld
		}
		// Jitter keeps waiting workers from polling in lockstep.
		delay := opts.PollInterval + time.Duration(rand.Int64N(int64(opts.PollInterval)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	lease := &Lease{
		Key:     key,
		Context: leaseCtx,
		holder:  holder,
		locker:  lk,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go lease.keepAlive(opts)
	return lease, nil
}

func (lk *Locker) tryTake(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	var got string
	err := lk.db.QueryRow(ctx, takeSQL, key, holder, ttl.Seconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Release stops renewal and drops the lease row. Releasing twice is safe.
func (l *Lease) Release(ctx context.Context) error {
	l.closeMu.Do(func() {
		close(l.done)
		l.cancel(context.Canceled)
	})
	_, err := l.locker.db.Exec(ctx, dropSQL, l.Key, l.holder)
	return err
}

func (l *Lease) keepAlive(opts Options) {
	ticker := time.NewTicker(opts.RenewEvery)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-l.done:
			return
		case <-l.Context.Done():
			return
		case <-ticker.C:
			err := l.renew(opts.TTL)
			switch {
			case err == nil:
				failures = 0
			case errors.Is(err, ErrLost):
				l.cancel(ErrLost)
				return
			default:
				failures++
				if failures >= renewFailureBudget {
					l.cancel(err)
					return
				}
			}
		}
	}
}

func (l *Lease) renew(ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(l.Context, 15*time.Second)
	defer cancel()

	var got string
	err := l.locker.db.QueryRow(ctx, renewSQL, l.Key, l.holder, ttl.Seconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLost
	}
	return err
}

// takeSQL claims a free or expired lease, or refreshes one this holder
// already owns. No row comes back while another live holder has it.
const takeSQL = `
INSERT INTO workspace_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + make_interval(secs => $3))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE workspace_locks.expires_at < now()
   OR workspace_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key`

const renewSQL = `
UPDATE workspace_locks
SET expires_at = now() + make_interval(secs => $3)
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key`

const dropSQL = `
DELETE FROM workspace_locks
WHERE lock_key = $1 AND locked_by = $2`
