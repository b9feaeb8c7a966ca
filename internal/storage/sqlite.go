package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/matsen/pubharvest/internal/record"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an identifier is absent from a collection.
var ErrNotFound = errors.New("record not found")

// DB wraps a SQLite database holding one table per collection.
type DB struct {
	db *sql.DB

	// writeMu keeps a single writer per process so that the
	// existing-id check and the insert see the same table state.
	writeMu sync.Mutex
}

// selectRecordFields contains the standard field list for SELECT queries.
const selectRecordFields = `id, doi, title, type, venue, year, provider, is_valid, comment`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates one table per collection if it doesn't exist.
func createSchema(db *sql.DB) error {
	for _, c := range record.Collections {
		schema := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id TEXT PRIMARY KEY,
				doi TEXT,
				title TEXT,
				type TEXT,
				venue TEXT,
				year INTEGER,
				provider TEXT NOT NULL,
				is_valid INTEGER NOT NULL DEFAULT 0,
				comment TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_%[1]s_doi ON %[1]s(doi) WHERE doi IS NOT NULL;
			CREATE INDEX IF NOT EXISTS idx_%[1]s_year ON %[1]s(year);
		`, c)
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("collection %s: %w", c, err)
		}
	}
	return nil
}

// table validates a collection name before it is placed in SQL text.
func table(c record.Collection) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", c)
	}
	return string(c), nil
}

// ExistingIDs returns every identifier stored in a collection.
func (d *DB) ExistingIDs(ctx context.Context, c record.Collection) (map[string]bool, error) {
	return existingIDs(ctx, d.db, c)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func existingIDs(ctx context.Context, q querier, c record.Collection) (map[string]bool, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, "SELECT id FROM "+t)
	if err != nil {
		return nil, fmt.Errorf("listing ids in %s: %w", t, err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// InsertResult counts the outcome of InsertNew.
type InsertResult struct {
	Total      int `json:"total"`      // Records offered
	Inserted   int `json:"inserted"`   // Records newly stored
	Existing   int `json:"existing"`   // Already present in the collection
	Duplicates int `json:"duplicates"` // Repeated within the offered batch
}

// InsertNew stores the records whose identifiers are not yet in the
// collection. Existing rows are never touched, so reviewer annotations
// survive a re-harvest. The insert is one transaction: on error nothing
// from this call is kept.
func (d *DB) InsertNew(ctx context.Context, c record.Collection, recs []record.Record) (InsertResult, error) {
	res := InsertResult{Total: len(recs)}
	if len(recs) == 0 {
		return res, nil
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := existingIDs(ctx, tx, c)
	if err != nil {
		return res, err
	}

	fresh := make([]record.Record, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		switch {
		case existing[r.ID]:
			res.Existing++
		case seen[r.ID]:
			res.Duplicates++
		default:
			seen[r.ID] = true
			fresh = append(fresh, r)
		}
	}

	n, err := insertTx(ctx, tx, c, fresh, true)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("committing insert: %w", err)
	}

	res.Inserted = n
	return res, nil
}

// BulkInsert stores every record atomically. Unlike InsertNew, an
// identifier that already exists is a constraint violation that rolls back
// the whole call.
func (d *DB) BulkInsert(ctx context.Context, c record.Collection, recs []record.Record) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := insertTx(ctx, tx, c, recs, false); err != nil {
		return err
	}
	return tx.Commit()
}

// insertTx inserts recs inside tx. With ignoreConflicts an existing id is
// skipped instead of failing; the returned count excludes skipped rows.
func insertTx(ctx context.Context, tx *sql.Tx, c record.Collection, recs []record.Record, ignoreConflicts bool) (int, error) {
	t, err := table(c)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	query := `INSERT INTO ` + t + ` (` + selectRecordFields + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if ignoreConflicts {
		query += ` ON CONFLICT(id) DO NOTHING`
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range recs {
		if r.ID == "" {
			return 0, fmt.Errorf("inserting into %s: record without id", t)
		}
		result, err := stmt.ExecContext(ctx,
			r.ID, nullable(r.DOI), nullable(r.Title), nullable(r.DocumentType), nullable(r.Venue),
			nullableInt(r.Year), r.Provider, r.IsValid, nullable(r.Comment),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting %s into %s: %w", r.ID, t, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// Get retrieves a record by id. It returns nil, nil when absent.
func (d *DB) Get(ctx context.Context, c record.Collection, id string) (*record.Record, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}
	row := d.db.QueryRowContext(ctx, `SELECT `+selectRecordFields+` FROM `+t+` WHERE id = ?`, id)
	return scanRecord(row)
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	Provider string // openalex, hal, flora, wos
	Year     int
	Valid    *bool
	HasDOI   bool
	Limit    int
}

// Query returns the records of a collection ordered by year, then id.
func (d *DB) Query(ctx context.Context, c record.Collection, f Filter) ([]record.Record, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + selectRecordFields + ` FROM ` + t + ` WHERE 1=1`
	var args []any

	if f.Provider != "" {
		query += " AND provider = ?"
		args = append(args, f.Provider)
	}
	if f.Year > 0 {
		query += " AND year = ?"
		args = append(args, f.Year)
	}
	if f.Valid != nil {
		query += " AND is_valid = ?"
		args = append(args, *f.Valid)
	}
	if f.HasDOI {
		query += " AND doi IS NOT NULL"
	}

	query += " ORDER BY year, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the number of records in a collection.
func (d *DB) Count(ctx context.Context, c record.Collection) (int, error) {
	t, err := table(c)
	if err != nil {
		return 0, err
	}
	var count int
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&count)
	return count, err
}

// UpdateValidation sets the reviewer annotations of one record. Nil
// arguments leave the corresponding field unchanged.
func (d *DB) UpdateValidation(ctx context.Context, c record.Collection, id string, isValid *bool, comment *string) (*record.Record, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if isValid != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE `+t+` SET is_valid = ? WHERE id = ?`, *isValid, id); err != nil {
			return nil, fmt.Errorf("updating is_valid: %w", err)
		}
	}
	if comment != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE `+t+` SET comment = ? WHERE id = ?`, *comment, id); err != nil {
			return nil, fmt.Errorf("updating comment: %w", err)
		}
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+selectRecordFields+` FROM `+t+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return rec, nil
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*record.Record, error) {
	var r record.Record
	var doi, title, typ, venue, comment sql.NullString
	var year sql.NullInt64

	err := s.Scan(&r.ID, &doi, &title, &typ, &venue, &year, &r.Provider, &r.IsValid, &comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	r.DOI = stringPtr(doi)
	r.Title = stringPtr(title)
	r.DocumentType = stringPtr(typ)
	r.Venue = stringPtr(venue)
	r.Comment = stringPtr(comment)
	if year.Valid {
		y := int(year.Int64)
		r.Year = &y
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]record.Record, error) {
	recs := []record.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if r != nil {
			recs = append(recs, *r)
		}
	}
	return recs, rows.Err()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
