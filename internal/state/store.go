// Package state persists memories and post-orchestration reflections.
// SQLite is the default; a Postgres DSN covers Supabase-style deployments.
package state

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store holds the SQL connection and runs migrations on Open.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open opens the store. driver is "sqlite" or "postgres". For sqlite, dsn may
// be empty, in which case dataDir/state.db is used (dataDir is created).
func Open(driver, dsn, dataDir string) (*Store, error) {
	var db *sql.DB
	var err error
	postgres := false

	switch driver {
	case "sqlite", "":
		if dsn == "" {
			if dataDir == "" {
				return nil, fmt.Errorf("state store: data_dir is required for sqlite")
			}
			if err := os.MkdirAll(dataDir, 0700); err != nil {
				return nil, fmt.Errorf("state store: %w", err)
			}
			dsn = filepath.Join(dataDir, "state.db") + "?_journal_mode=WAL"
		}
		db, err = sql.Open("sqlite", dsn)
	case "postgres":
		postgres = true
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("state store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("state store: open db: %w", err)
	}

	s := &Store{db: db, postgres: postgres}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $N when the backend is Postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) runMigrations() error {
	if _, err := s.db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL PRIMARY KEY)"); err != nil {
		return fmt.Errorf("migrations: create schema_version: %w", err)
	}
	current, err := s.currentVersion()
	if err != nil {
		return err
	}
	names, err := migrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		n, err := migrationNumber(name)
		if err != nil || n <= 0 || n <= current {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(data)); err != nil {
			return fmt.Errorf("migrations: apply %s: %w", name, err)
		}
		if _, err := s.db.Exec(s.rebind("INSERT INTO schema_version (version) VALUES (?)"), n); err != nil {
			return fmt.Errorf("migrations: record %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) currentVersion() (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("migrations: current version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations: list: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func migrationNumber(name string) (int, error) {
	idx := strings.Index(name, "_")
	if idx <= 0 {
		return 0, fmt.Errorf("migration %q has no numeric prefix", name)
	}
	return strconv.Atoi(name[:idx])
}
