// Package buildcache stores compiled programs in SQLite, keyed by the
// content digest of the IR they were compiled from.
package buildcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/velac/compiler"
	"github.com/chazu/velac/compiler/hash"
	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/pkg/ir"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested key is not cached.
var ErrNotFound = errors.New("build cache: entry not found")

var log = commonlog.GetLogger("velac.cache")

// Entry is one cached compilation.
type Entry struct {
	Key     string
	Program *bytecode.Program
	Stats   compiler.Stats
	Created time.Time
}

// payload is the CBOR-encoded column value.
type payload struct {
	Program []byte `cbor:"1,keyasint"` // CBOR program envelope
	Folded  int    `cbor:"2,keyasint"`
	Removed int    `cbor:"3,keyasint"`
}

// Cache is a build cache backed by a single SQLite file.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		digest TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened build cache %s", path)
	return &Cache{db: db, path: path}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the entry stored under key, or ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		data    []byte
		created int64
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT payload, created_at FROM programs WHERE digest = ?", key,
	).Scan(&data, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	var p payload
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding cached payload %s: %w", key, err)
	}
	prog, err := bytecode.UnmarshalCBOR(p.Program)
	if err != nil {
		return nil, fmt.Errorf("decoding cached program %s: %w", key, err)
	}
	return &Entry{
		Key:     key,
		Program: prog,
		Stats:   compiler.Stats{Folded: p.Folded, Removed: p.Removed},
		Created: time.Unix(created, 0),
	}, nil
}

// Put stores prog under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, prog *bytecode.Program, stats compiler.Stats) error {
	env, err := prog.MarshalCBOR()
	if err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}
	data, err := cbor.Marshal(payload{Program: env, Folded: stats.Folded, Removed: stats.Removed})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO programs (digest, payload, created_at) VALUES (?, ?, ?)",
		key, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	return nil
}

// Purge deletes every entry and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "DELETE FROM programs")
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	log.Infof("purged %d cached programs from %s", n, c.path)
	return n, nil
}

// Len returns the number of cached programs.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}

// Compile returns the cached program for m, compiling and storing it on a
// miss. hit reports whether the cache served the result. A nil Cache
// always compiles.
func (c *Cache) Compile(ctx context.Context, m *ir.Module, opts compiler.Options) (prog *bytecode.Program, stats compiler.Stats, hit bool, err error) {
	if c == nil {
		prog, stats, err = compiler.Compile(m, opts)
		return prog, stats, false, err
	}

	key := hash.BuildKey(m, opts.Optimize)
	entry, err := c.Get(ctx, key)
	switch {
	case err == nil:
		log.Debugf("cache hit %s (%s)", key[:12], m.Name)
		return entry.Program, entry.Stats, true, nil
	case !errors.Is(err, ErrNotFound):
		// A corrupt entry is overwritten below.
		log.Warningf("cache read %s: %s", key[:12], err)
	}

	prog, stats, err = compiler.Compile(m, opts)
	if err != nil {
		return nil, stats, false, err
	}
	if err := c.Put(ctx, key, prog, stats); err != nil {
		log.Warningf("cache write %s: %s", key[:12], err)
	}
	return prog, stats, false, nil
}
