package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteBackend stores the ledger in a local SQLite file. A single connection
// serializes writers, so every statement is atomic with respect to the others.
type SQLiteBackend struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLite creates or opens the database at path and applies the schema.
// Safe to call repeatedly on the same file.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite ledger: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}

	logger.Info("sqlite ledger ready", zap.String("path", path))
	return &SQLiteBackend{db: db, logger: logger, now: time.Now}, nil
}

const sqliteSelectEntry = `
	SELECT row_id, invoice_number, unit_name, supplier, primary_submitter,
	       primary_value, COALESCE(primary_submission_id, 0), primary_attachment_ref,
	       secondary_submitter, COALESCE(secondary_value, ''), COALESCE(secondary_submission_id, 0),
	       secondary_entry_number, status, COALESCE(delta, ''), updated_at
	FROM reconciliation_rows`

func (s *SQLiteBackend) FindByKey(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectEntry+` WHERE invoice_number = ?`, key)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteBackend) InsertPrimary(ctx context.Context, rec models.SubmissionRecord) (RowRef, error) {
	var ref RowRef
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reconciliation_rows
		(invoice_number, unit_name, supplier, primary_submitter, primary_value,
		 primary_submission_id, primary_attachment_ref, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING row_id`,
		rec.Key, rec.UnitName, rec.Supplier, rec.SubmitterName, rec.Value.Text('f'),
		rec.ExternalSubmissionID, rec.AttachmentRef, s.now().UTC(),
	).Scan((*int64)(&ref))
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var ownerSub int64
	err = s.db.QueryRowContext(ctx, `
		SELECT row_id, COALESCE(primary_submission_id, 0) FROM reconciliation_rows
		WHERE primary_submission_id = ? OR invoice_number = ?
		ORDER BY (primary_submission_id IS ?) DESC
		LIMIT 1`,
		rec.ExternalSubmissionID, rec.Key, rec.ExternalSubmissionID,
	).Scan((*int64)(&ref), &ownerSub)
	if err != nil {
		return 0, fmt.Errorf("resolve primary conflict: %w", err)
	}
	if ownerSub == rec.ExternalSubmissionID {
		return ref, ErrDuplicateSubmission
	}
	return ref, ErrKeyExists
}

func (s *SQLiteBackend) InsertPending(ctx context.Context, rec models.SubmissionRecord, receivedAt time.Time) (RowRef, error) {
	var ref RowRef
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pending_submissions
		(invoice_number, unit_name, submitter, value, entry_number, submission_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (submission_id) DO NOTHING
		RETURNING row_id`,
		rec.Key, rec.UnitName, rec.SubmitterName, rec.Value.Text('f'),
		rec.EntryNumber, rec.ExternalSubmissionID, receivedAt.UTC(),
	).Scan((*int64)(&ref))
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT row_id FROM pending_submissions WHERE submission_id = ?`,
		rec.ExternalSubmissionID,
	).Scan((*int64)(&ref)); err != nil {
		return 0, fmt.Errorf("resolve pending conflict: %w", err)
	}
	return ref, ErrDuplicateSubmission
}

// UpdateSecondary records the submission id and writes the row in one
// transaction; an id applied before, to this row or any other, is refused.
func (s *SQLiteBackend) UpdateSecondary(ctx context.Context, ref RowRef, u SecondaryUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO applied_secondary_submissions (submission_id, row_id, applied_at)
		VALUES (?, ?, ?)
		ON CONFLICT (submission_id) DO NOTHING`,
		u.SubmissionID, int64(ref), now,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrDuplicateSubmission
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE reconciliation_rows SET
			secondary_submitter = ?,
			secondary_value = ?,
			secondary_submission_id = ?,
			secondary_entry_number = ?,
			status = ?,
			delta = ?,
			updated_at = ?
		WHERE row_id = ?`,
		u.Submitter, u.Value.Text('f'), u.SubmissionID, u.EntryNumber, u.Status,
		u.Delta.Text('f'), now, int64(ref),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteBackend) ListPending(ctx context.Context, limit int) ([]PendingRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_id, invoice_number, unit_name, submitter, value, entry_number, submission_id, received_at
		FROM pending_submissions
		ORDER BY row_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingRow
	for rows.Next() {
		var pr PendingRow
		var value string
		if err := rows.Scan((*int64)(&pr.Ref), &pr.Key, &pr.UnitName, &pr.Submitter, &value,
			&pr.EntryNumber, &pr.SubmissionID, &pr.ReceivedAt); err != nil {
			return nil, err
		}
		if pr.Value, err = parseStoredDecimal(value); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Backend = (*SQLiteBackend)(nil)
