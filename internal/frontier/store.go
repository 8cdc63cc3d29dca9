package frontier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"frontier/internal/config"
	"frontier/internal/partition"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	lockRetryDelay          = 25 * time.Millisecond
	busyTimeoutMillis       = 5000
)

// Store is the single owner of the shared frontier database.
type Store struct {
	db     *sql.DB // BEGIN IMMEDIATE, used by Update
	readDB *sql.DB // deferred read-only transactions, used by View
	path   string

	mu          sync.Mutex
	fileLock    *flock.Flock
	lockTimeout time.Duration

	clock            Clock
	partitionVersion int
}

// Option customizes Open.
type Option func(*Store)

// WithClock replaces the wall clock used for timestamps.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPartitionVersion overrides the partition scheme version recorded in
// and checked against the store.
func WithPartitionVersion(version int) Option {
	return func(s *Store) { s.partitionVersion = version }
}

// Open initializes or connects to the frontier database named by cfg.Store.Path.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("frontier: config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	path := cfg.Store.Path
	store := &Store{
		path:             path,
		fileLock:         flock.New(path + ".lock"),
		lockTimeout:      cfg.LockTimeout(),
		clock:            SystemClock{},
		partitionVersion: partition.Version,
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.lockTimeout <= 0 {
		store.lockTimeout = 10 * time.Second
	}

	var err error
	if store.db, err = sql.Open("sqlite", dsn(path, "immediate", false)); err != nil {
		return nil, storeErr("open sqlite db", err)
	}
	if store.readDB, err = sql.Open("sqlite", dsn(path, "deferred", true)); err != nil {
		_ = store.db.Close()
		return nil, storeErr("open sqlite read db", err)
	}

	if err := store.initSchema(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func dsn(path, txlock string, readOnly bool) string {
	params := url.Values{}
	params.Set("_txlock", txlock)
	params.Add("_pragma", "busy_timeout("+strconv.Itoa(busyTimeoutMillis)+")")
	params.Add("_pragma", "foreign_keys(1)")
	if readOnly {
		params.Add("_pragma", "query_only(1)")
	}
	return "file:" + path + "?" + params.Encode()
}

// Close closes the underlying database connections.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	return errors.Join(errs...)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// Update runs fn inside one serialized read-mutate-write transaction. fn may
// run more than once when SQLite reports contention, so it must confine its
// side effects to the Tx and to values it overwrites on each call.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock(ctx); err != nil {
		return err
	}
	defer func() { _ = s.fileLock.Unlock() }()

	return retryOnBusy(ctx, func() error {
		return s.runTx(ctx, s.db, false, fn)
	})
}

// View runs fn inside a read-only transaction. It takes no locks.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return s.runTx(ctx, s.readDB, true, fn)
	})
}

func (s *Store) lock(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := s.fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return storeErr("acquire lock", fmt.Errorf("%w after %s on %s", ErrLockTimeout, s.lockTimeout, s.fileLock.Path()))
		}
		return storeErr("acquire lock", err)
	}
	if !locked {
		return storeErr("acquire lock", fmt.Errorf("%w on %s", ErrLockTimeout, s.fileLock.Path()))
	}
	return nil
}

func (s *Store) runTx(ctx context.Context, db *sql.DB, readOnly bool, fn func(*Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &Tx{tx: sqlTx, now: s.clock.Now(), readOnly: readOnly}
	if err := fn(tx); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	if tx.dirty {
		if err := tx.setMeta(ctx, metaLastUpdated, strconv.FormatInt(tx.now.Unix(), 10)); err != nil {
			return err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
