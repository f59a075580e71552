package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite database behind the reference Query Service: users,
// the questions they asked and their reports.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "querybot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}

// --- Users ---

func (s *Store) CreateUser(u User) (User, error) {
	if u.Role == "" {
		u.Role = "user"
	}
	createdAt := formatTime(u.CreatedAt)
	res, err := s.db.Exec(`INSERT INTO users (username, email, role, created_at) VALUES (?, ?, ?, ?)`,
		u.Username, u.Email, u.Role, createdAt)
	if err != nil {
		return User{}, fmt.Errorf("inserting user %q: %w", u.Username, err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return User{}, err
	}
	u.CreatedAt, err = parseTime(createdAt)
	return u, err
}

func (s *Store) GetUser(id int64) (User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRow(`SELECT id, username, email, role, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt, err = parseTime(createdAt)
	return u, err
}

func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT id, username, email, role, created_at FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []User{}
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &createdAt); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// --- Queries ---

// SaveQuery records a question and its answer. ID and CreatedAt are filled in
// on the returned copy.
func (s *Store) SaveQuery(q Query) (Query, error) {
	createdAt := formatTime(q.CreatedAt)
	res, err := s.db.Exec(`INSERT INTO queries (user_id, query_text, response_text, created_at) VALUES (?, ?, ?, ?)`,
		q.UserID, q.QueryText, q.ResponseText, createdAt)
	if err != nil {
		return Query{}, fmt.Errorf("inserting query: %w", err)
	}
	if q.ID, err = res.LastInsertId(); err != nil {
		return Query{}, err
	}
	q.CreatedAt, err = parseTime(createdAt)
	return q, err
}

// ListQueries returns userID's questions, oldest first.
func (s *Store) ListQueries(userID int64) ([]Query, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, query_text, response_text, created_at
		FROM queries WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Query{}
	for rows.Next() {
		var q Query
		var createdAt string
		if err := rows.Scan(&q.ID, &q.UserID, &q.QueryText, &q.ResponseText, &createdAt); err != nil {
			return nil, err
		}
		if q.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

// --- Reports ---

func (s *Store) SaveReport(r Report) (Report, error) {
	createdAt := formatTime(r.CreatedAt)
	res, err := s.db.Exec(`INSERT INTO reports (user_id, report_name, report_file, created_at) VALUES (?, ?, ?, ?)`,
		r.UserID, r.ReportName, r.ReportFile, createdAt)
	if err != nil {
		return Report{}, fmt.Errorf("inserting report: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return Report{}, err
	}
	r.CreatedAt, err = parseTime(createdAt)
	return r, err
}

func (s *Store) ListReports(userID int64) ([]Report, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, report_name, report_file, created_at
		FROM reports WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Report{}
	for rows.Next() {
		var r Report
		var createdAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.ReportName, &r.ReportFile, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Read-only statements ---

// Select runs a single SELECT inside a transaction that is always rolled
// back, so a statement that slips past the caller's checks still cannot
// change data. Text columns come back as string, integers as int64.
func (s *Store) Select(ctx context.Context, query string, args ...any) (Rows, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Rows{}, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return Rows{}, fmt.Errorf("executing select: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Rows{}, err
	}
	out := Rows{Columns: cols, Values: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Values = append(out.Values, vals)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
