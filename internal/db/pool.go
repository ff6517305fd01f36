package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"transit-lookup/internal/logging"
)

// Pool holds the database handle in use. The watcher swaps it when a newer
// city import appears; readers always take the current one.
type Pool struct {
	cur  atomic.Pointer[sql.DB]
	mu   sync.Mutex
	name string
}

func NewPool(db *sql.DB, name string) *Pool {
	p := &Pool{name: name}
	p.cur.Store(db)
	return p
}

func (p *Pool) Current() *sql.DB { return p.cur.Load() }

func (p *Pool) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// Swap installs db under name and returns the previous handle.
func (p *Pool) Swap(db *sql.DB, name string) *sql.DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	return p.cur.Swap(db)
}

func (p *Pool) Close() error {
	if db := p.cur.Load(); db != nil {
		return db.Close()
	}
	return nil
}

// SwitchRecorder is told why the watcher replaced the database.
type SwitchRecorder interface {
	DBSwitched(reason string)
	DBReachable(up bool)
}

// Watcher keeps the pool on the latest successful import for a city and
// reconnects when the current database stops answering.
type Watcher struct {
	pool     *Pool
	baseDSN  string
	city     string
	interval time.Duration
	logger   *slog.Logger
	recorder SwitchRecorder

	// swappable in tests
	open    func(dsn string) (*sql.DB, error)
	ping    func(ctx context.Context, db *sql.DB) error
	resolve func(ctx context.Context, baseDSN, city string) (string, error)
	prepare func(ctx context.Context, db *sql.DB) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatcher(pool *Pool, baseDSN, city string, interval time.Duration, logger *slog.Logger, recorder SwitchRecorder) *Watcher {
	return &Watcher{
		pool:     pool,
		baseDSN:  baseDSN,
		city:     city,
		interval: interval,
		logger:   logger.With(slog.String("component", "db_watcher")),
		recorder: recorder,
		open:     Open,
		ping:     Ping,
		resolve:  ResolveCityDB,
	}
}

// BeforeSwap registers fn to run against a new database before it goes
// live. A failing fn keeps the current database.
func (w *Watcher) BeforeSwap(fn func(ctx context.Context, db *sql.DB) error) {
	w.prepare = fn
}

// Start launches the watch loop. It is a no-op without a city or interval.
func (w *Watcher) Start(parent context.Context) {
	if w.city == "" || w.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Check(ctx)
			}
		}
	}()
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Check runs one watch round and reports whether the database was switched.
func (w *Watcher) Check(ctx context.Context) bool {
	current := w.pool.Name()

	// 1) Ping current DB; if it fails, force re-resolve
	needSwitch := false
	if err := w.ping(ctx, w.pool.Current()); err != nil {
		logging.LogError(w.logger, "db ping failed, re-resolving city database", err)
		w.recordUp(false)
		w.recordSwitch("ping_failure")
		needSwitch = true
	} else {
		w.recordUp(true)
	}

	// 2) Always re-resolve latest import, compare db_name
	newName, err := w.resolve(ctx, w.baseDSN, w.city)
	if err != nil {
		logging.LogError(w.logger, "resolve latest import failed", err, slog.String("city", w.city))
		return false
	}
	if newName != "" && newName != current {
		logging.LogOperation(w.logger, "city_database_updated",
			slog.String("city", w.city), slog.String("from", current), slog.String("to", newName))
		w.recordSwitch("update")
		needSwitch = true
	}
	if !needSwitch {
		return false
	}

	target := current
	if newName != "" {
		target = newName
	}
	dsn, err := WithDBName(w.baseDSN, target)
	if err != nil {
		logging.LogError(w.logger, "compose DSN failed", err)
		return false
	}
	newDB, err := w.open(dsn)
	if err != nil {
		logging.LogError(w.logger, "open new database failed", err)
		return false
	}
	if err := w.ping(ctx, newDB); err != nil {
		logging.LogError(w.logger, "ping new database failed", err)
		logging.SafeCloseWithLogging(newDB, w.logger, "close_unreachable_db")
		return false
	}
	if w.prepare != nil {
		if err := w.prepare(ctx, newDB); err != nil {
			logging.LogError(w.logger, "prepare new database failed", err, slog.String("database", target))
			logging.SafeCloseWithLogging(newDB, w.logger, "close_unprepared_db")
			return false
		}
	}

	old := w.pool.Swap(newDB, target)
	w.recordUp(true)
	if old != nil && old != newDB {
		// Close waits for in-flight queries on the old handle.
		logging.SafeCloseWithLogging(old, w.logger, "close_previous_db")
	}
	logging.LogOperation(w.logger, "db_switched", slog.String("database", target), slog.String("city", w.city))
	return true
}

func (w *Watcher) recordSwitch(reason string) {
	if w.recorder != nil {
		w.recorder.DBSwitched(reason)
	}
}

func (w *Watcher) recordUp(up bool) {
	if w.recorder != nil {
		w.recorder.DBReachable(up)
	}
}
