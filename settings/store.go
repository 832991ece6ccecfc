package settings

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/hazyhaar/postlink/internal/dbopen"
	"github.com/hazyhaar/postlink/internal/watch"
	"github.com/hazyhaar/postlink/platform"
)

// Schema of the settings table. rev is bumped on every write so that
// changes made through this connection are detected as well.
const Schema = `
CREATE TABLE IF NOT EXISTS postlink_settings (
	platform     TEXT PRIMARY KEY,
	enabled      INTEGER NOT NULL DEFAULT 1,
	target       TEXT NOT NULL DEFAULT '',
	page_control INTEGER NOT NULL DEFAULT 0,
	rev          INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
`

// Store keeps settings in SQLite and watches them for changes, including
// writes by other processes.
type Store struct {
	db     *sql.DB
	opts   watch.Options
	logger *slog.Logger
}

// StoreOptions tunes change detection.
type StoreOptions struct {
	// Interval is the polling period. Default: 500ms.
	Interval time.Duration
	// Debounce is the quiet period before reloading. Default: 200ms.
	Debounce time.Duration
	Logger   *slog.Logger
}

// OpenStore opens (creating if needed) the settings database at path.
func OpenStore(path string, opts StoreOptions) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("settings: open store: %w", err)
	}
	return NewStore(db, opts), nil
}

// NewStore wraps an open database. The schema must already exist.
func NewStore(db *sql.DB, opts StoreOptions) *Store {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	} else if opts.Debounce == 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: opts.Logger,
		opts: watch.Options{
			Interval: opts.Interval,
			Debounce: opts.Debounce,
			Detector: watch.Sum(
				watch.PragmaDataVersion,
				watch.MaxColumnDetector("postlink_settings", "rev"),
			),
			Logger: opts.Logger,
		},
	}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Load implements Provider.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, enabled, target, page_control FROM postlink_settings`)
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()

	out := make(Settings)
	for rows.Next() {
		var id string
		var enabled, page int
		var p Platform
		if err := rows.Scan(&id, &enabled, &p.Target, &page); err != nil {
			return nil, fmt.Errorf("settings: load: %w", err)
		}
		p.Enabled = enabled != 0
		p.PageControl = page != 0
		out[platform.ID(id)] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	return out, nil
}

// Set upserts the settings of one platform.
func (s *Store) Set(ctx context.Context, id platform.ID, p Platform) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO postlink_settings (platform, enabled, target, page_control, rev, updated_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(rev), 0) + 1 FROM postlink_settings), ?)
		ON CONFLICT(platform) DO UPDATE SET
			enabled = excluded.enabled,
			target = excluded.target,
			page_control = excluded.page_control,
			rev = excluded.rev,
			updated_at = excluded.updated_at`,
		string(id), boolInt(p.Enabled), p.Target, boolInt(p.PageControl), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", id, err)
	}
	return nil
}

// Watch implements Provider.
func (s *Store) Watch(ctx context.Context, onChange func(Settings)) error {
	w := watch.New(s.db, s.opts)
	w.OnChange(ctx, func() error {
		cur, err := s.Load(ctx)
		if err != nil {
			return err
		}
		onChange(cur)
		return nil
	})
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ Provider = (*Store)(nil)
	_ Writer   = (*Store)(nil)
	_ Provider = (*Memory)(nil)
	_ Writer   = (*Memory)(nil)
	_ Provider = (*File)(nil)
)
