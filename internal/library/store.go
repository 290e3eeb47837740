package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"muse/internal/config"
	"muse/internal/subjectkey"
)

// Record is a persisted, user-visible artifact keyed by its natural key.
type Record struct {
	ID         int64
	NaturalKey string
	Payload    json.RawMessage
	SavedAt    time.Time
}

// Store manages content persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the library database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.LibraryPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveIfAbsent inserts a record for naturalKey unless one already exists.
// It returns the record id either way; created reports whether a new row was
// written. An existing record's payload is left untouched (first-write-wins).
func (s *Store) SaveIfAbsent(ctx context.Context, naturalKey string, payload json.RawMessage) (id int64, created bool, err error) {
	key := subjectkey.Normalize(naturalKey)
	if key == "" {
		return 0, false, errors.New("natural key must not be empty")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO content_records (natural_key, payload, saved_at)
         VALUES (?, ?, ?)
         ON CONFLICT(natural_key) DO NOTHING`,
		key,
		string(payload),
		now,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT id FROM content_records WHERE natural_key = ?`, key)
	if err := row.Scan(&id); err != nil {
		return 0, false, fmt.Errorf("resolve record id: %w", err)
	}
	return id, affected > 0, nil
}

// GetByID fetches a record by identifier. A missing record returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM content_records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// GetByNaturalKey fetches a record by its natural key. A missing record returns (nil, nil).
func (s *Store) GetByNaturalKey(ctx context.Context, naturalKey string) (*Record, error) {
	key := subjectkey.Normalize(naturalKey)
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM content_records WHERE natural_key = ?`, key)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record by natural key: %w", err)
	}
	return record, nil
}

// Exists reports whether a record with the given natural key is saved.
func (s *Store) Exists(ctx context.Context, naturalKey string) (bool, error) {
	key := subjectkey.Normalize(naturalKey)
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM content_records WHERE natural_key = ?`, key)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check record exists: %w", err)
	}
	return count > 0, nil
}

// List returns all records in insertion order.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM content_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Remove deletes a record by identifier. Deleting a missing id is a no-op;
// the bool reports whether a row was removed.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Count returns the number of saved records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM content_records`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// Health captures diagnostic information about the library database.
type Health struct {
	DBPath         string
	DatabaseExists bool
	Readable       bool
	IntegrityCheck bool
	TotalRecords   int
	Error          string
}

// CheckHealth returns diagnostic information about the library database.
func (s *Store) CheckHealth(ctx context.Context) (Health, error) {
	health := Health{DBPath: s.path}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat library database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("library database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping library database: %w", err)
	}
	health.Readable = true

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	row = s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM content_records")
	if err := row.Scan(&health.TotalRecords); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count records: %w", err)
	}

	return health, nil
}

const recordColumns = "id, natural_key, payload, saved_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id       int64
		key      string
		payload  string
		savedRaw string
	)
	if err := scanner.Scan(&id, &key, &payload, &savedRaw); err != nil {
		return nil, err
	}

	record := &Record{
		ID:         id,
		NaturalKey: key,
		Payload:    json.RawMessage(payload),
	}
	if saved, err := time.Parse(time.RFC3339Nano, savedRaw); err == nil {
		record.SavedAt = saved
	}
	return record, nil
}
