// Package watch polls a SQLite database for a version change and runs a
// reload action after a quiet period. The settings store uses it to push
// configuration updates to running sessions.
//
//	w := watch.New(db, watch.Options{Interval: time.Second, Debounce: 200 * time.Millisecond})
//	go w.OnChange(ctx, reload)
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token. Two different values mean the
// watched data changed.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action
	// fires; further changes restart it. 0 fires immediately.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector ChangeDetector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher is safe for concurrent use.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Reloads         int64 `json:"reloads"`
}

// New creates a Watcher. Call OnChange to start polling.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
}

// Version returns the last version successfully reloaded.
func (w *Watcher) Version() int64 { return w.version.Load() }

// OnChange blocks until ctx is cancelled. When the detector reports a new
// version and the debounce window passes, action runs. A failing action
// leaves the version unchanged so the next poll retries it.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(log, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(log, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(log *slog.Logger, action func() error, ver int64) {
	if err := action(); err != nil {
		w.errors.Add(1)
		log.Error("watch: reload failed", "error", err, "version", ver)
		return
	}
	w.reloads.Add(1)
	w.version.Store(ver)
	log.Debug("watch: reloaded", "version", ver)
}

// PragmaDataVersion changes whenever another connection commits to the
// database file.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// MaxColumnDetector polls MAX(column) of table, for tables carrying a
// revision counter bumped on every write.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

// Sum adds the tokens of several monotonic detectors, so a change seen by
// any of them changes the result.
func Sum(detectors ...ChangeDetector) ChangeDetector {
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var total int64
		for _, d := range detectors {
			v, err := d(ctx, db)
			if err != nil {
				return 0, err
			}
			total += v
		}
		return total, nil
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
