package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nartya-app/nartya/internal/util"
)

// SQLiteAvailable reports whether the binary was built with SQLite support.
var SQLiteAvailable = true

var (
	ErrCgoDisabled    = errors.New("CGO disabled: sqlite cache not available")
	ErrStoreNotInited = errors.New("cache store not initialized")
)

/*
────────────────────────────────────────────────────────────────────────────*
│  Configuration                                                             │
*────────────────────────────────────────────────────────────────────────────
*/
const (
	defaultCacheSize  = -8000    // 8MB
	mmapSize          = 67108864 // 64MB
	busyTimeout       = 5000     // 5 seconds
	walAutoCheckpoint = 1000     // pages
	maxOpenConns      = 4
	maxIdleConns      = 2
	avgEntriesPerLoad = 64
)

/*
────────────────────────────────────────────────────────────────────────────*
│  Store                                                                     │
*────────────────────────────────────────────────────────────────────────────
*/

// SQLiteStore persists cache entries in a WAL-mode SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	upsertPS *sql.Stmt
	allPS    *sql.Stmt
	clearPS  *sql.Stmt
}

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if !SQLiteAvailable {
		return nil, ErrCgoDisabled
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := initializeDatabase(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			util.Warn("Error closing cache database", "error", closeErr)
		}
		return nil, err
	}

	statements, err := prepareStatements(db)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			util.Warn("Error closing cache database", "error", closeErr)
		}
		return nil, err
	}

	util.Debug("Episode cache database opened", "path", path)
	return &SQLiteStore{
		db:       db,
		upsertPS: statements.upsert,
		allPS:    statements.all,
		clearPS:  statements.clear,
	}, nil
}

// dsn builds the connection string. Windows paths need forward slashes and
// an explicit create mode.
func dsn(path string) string {
	const params = "_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&" +
		"_busy_timeout=%d&_cache_size=%d&_mmap_size=%d"

	if runtime.GOOS == "windows" {
		return fmt.Sprintf("file:%s?"+params+"&_mode=rwc",
			strings.ReplaceAll(path, "\\", "/"),
			walAutoCheckpoint, busyTimeout, defaultCacheSize, mmapSize)
	}
	return fmt.Sprintf("file:%s?"+params,
		path, walAutoCheckpoint, busyTimeout, defaultCacheSize, mmapSize)
}

/*
────────────────────────────────────────────────────────────────────────────*
│  Schema                                                                    │
*────────────────────────────────────────────────────────────────────────────
*/
func initializeDatabase(db *sql.DB) error {
	schema := `CREATE TABLE IF NOT EXISTS episode_cache (
		season_id        TEXT    NOT NULL,
		episode_index    INTEGER NOT NULL CHECK(episode_index >= 0),
		video_url        TEXT    NOT NULL,
		source_embed_url TEXT    NOT NULL,
		cached_at        INTEGER NOT NULL,
		PRIMARY KEY (season_id, episode_index)
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}

	if _, err := db.Exec(`PRAGMA optimize`); err != nil {
		return fmt.Errorf("initial optimization failed: %w", err)
	}
	return nil
}

type preparedStatements struct {
	upsert *sql.Stmt
	all    *sql.Stmt
	clear  *sql.Stmt
}

func prepareStatements(db *sql.DB) (*preparedStatements, error) {
	upsert, err := db.Prepare(`INSERT INTO episode_cache (
		season_id,
		episode_index,
		video_url,
		source_embed_url,
		cached_at
	) VALUES (?,?,?,?,?)
	ON CONFLICT(season_id, episode_index) DO UPDATE SET
		video_url = excluded.video_url,
		source_embed_url = excluded.source_embed_url,
		cached_at = excluded.cached_at`)
	if err != nil {
		return nil, fmt.Errorf("upsert preparation failed: %w", err)
	}

	all, err := db.Prepare(`SELECT
		season_id,
		episode_index,
		video_url,
		source_embed_url,
		cached_at
	FROM episode_cache
	ORDER BY season_id, episode_index`)
	if err != nil {
		_ = upsert.Close()
		return nil, fmt.Errorf("all preparation failed: %w", err)
	}

	clearAll, err := db.Prepare(`DELETE FROM episode_cache`)
	if err != nil {
		_ = upsert.Close()
		_ = all.Close()
		return nil, fmt.Errorf("clear preparation failed: %w", err)
	}

	return &preparedStatements{upsert: upsert, all: all, clear: clearAll}, nil
}

/*
────────────────────────────────────────────────────────────────────────────*
│  Operations                                                                │
*────────────────────────────────────────────────────────────────────────────
*/

// Save upserts e.
func (s *SQLiteStore) Save(e Entry) error {
	if s == nil || s.upsertPS == nil {
		return ErrStoreNotInited
	}
	_, err := s.upsertPS.Exec(
		e.SeasonID,
		e.EpisodeIndex,
		e.VideoURL,
		e.SourceEmbedURL,
		e.Timestamp.UnixMilli(),
	)
	return err
}

// Load returns every stored entry.
func (s *SQLiteStore) Load() ([]Entry, error) {
	if s == nil || s.allPS == nil {
		return nil, ErrStoreNotInited
	}

	rows, err := s.allPS.Query()
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			util.Warn("Error closing rows", "error", err)
		}
	}()

	list := make([]Entry, 0, avgEntriesPerLoad)
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(
			&e.SeasonID,
			&e.EpisodeIndex,
			&e.VideoURL,
			&e.SourceEmbedURL,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return list, nil
}

// Clear deletes every entry.
func (s *SQLiteStore) Clear() error {
	if s == nil || s.clearPS == nil {
		return ErrStoreNotInited
	}
	_, err := s.clearPS.Exec()
	return err
}

/*
────────────────────────────────────────────────────────────────────────────*
│  Shutdown                                                                  │
*────────────────────────────────────────────────────────────────────────────
*/

// Close releases the statements and the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	var finalErr error
	closeStmt := func(stmt *sql.Stmt, name string) {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				finalErr = fmt.Errorf("%s statement close error: %w", name, err)
			}
		}
	}

	closeStmt(s.upsertPS, "upsert")
	closeStmt(s.allPS, "all")
	closeStmt(s.clearPS, "clear")

	if err := s.db.Close(); err != nil {
		finalErr = fmt.Errorf("database close error: %w", err)
	}
	return finalErr
}
