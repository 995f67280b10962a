package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

//go:embed postgres_schema.sql
var postgresSchema string

// PostgresOptions configures the connection pool
type PostgresOptions struct {
	DSN         string
	MaxConns    int32
	MinConns    int32
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// PostgresBackend stores the ledger in PostgreSQL. Row-level atomicity comes
// from unique constraints and conditional updates.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresBackend connects, verifies the connection and applies the schema
func NewPostgresBackend(ctx context.Context, opts PostgresOptions, logger *zap.Logger) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = opts.MinConns
	}
	if opts.MaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = opts.MaxIdleTime
	}
	if opts.MaxLifetime > 0 {
		poolCfg.MaxConnLifetime = opts.MaxLifetime
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}

	logger.Info("postgres ledger ready",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns))
	return &PostgresBackend{pool: pool, logger: logger}, nil
}

const pgSelectEntry = `
	SELECT row_id, invoice_number, unit_name, supplier, primary_submitter,
	       primary_value::text, COALESCE(primary_submission_id, 0), primary_attachment_ref,
	       secondary_submitter, COALESCE(secondary_value::text, ''), COALESCE(secondary_submission_id, 0),
	       secondary_entry_number, status, COALESCE(delta::text, ''), updated_at
	FROM reconciliation_rows`

func (p *PostgresBackend) FindByKey(ctx context.Context, key string) (*Entry, error) {
	row := p.pool.QueryRow(ctx, pgSelectEntry+` WHERE invoice_number = $1`, key)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *PostgresBackend) InsertPrimary(ctx context.Context, rec models.SubmissionRecord) (RowRef, error) {
	var ref RowRef
	err := p.pool.QueryRow(ctx, `
		INSERT INTO reconciliation_rows
		(invoice_number, unit_name, supplier, primary_submitter, primary_value, primary_submission_id, primary_attachment_ref)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7)
		ON CONFLICT DO NOTHING
		RETURNING row_id`,
		rec.Key, rec.UnitName, rec.Supplier, rec.SubmitterName,
		rec.Value.Text('f'), rec.ExternalSubmissionID, rec.AttachmentRef,
	).Scan((*int64)(&ref))
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// Conflict: same submission redelivered, or the key belongs to another one.
	var ownerSub int64
	err = p.pool.QueryRow(ctx, `
		SELECT row_id, COALESCE(primary_submission_id, 0) FROM reconciliation_rows
		WHERE primary_submission_id = $1 OR invoice_number = $2
		ORDER BY (primary_submission_id IS NOT DISTINCT FROM $1) DESC
		LIMIT 1`,
		rec.ExternalSubmissionID, rec.Key,
	).Scan((*int64)(&ref), &ownerSub)
	if err != nil {
		return 0, fmt.Errorf("resolve primary conflict: %w", err)
	}
	if ownerSub == rec.ExternalSubmissionID {
		return ref, ErrDuplicateSubmission
	}
	return ref, ErrKeyExists
}

func (p *PostgresBackend) InsertPending(ctx context.Context, rec models.SubmissionRecord, receivedAt time.Time) (RowRef, error) {
	var ref RowRef
	err := p.pool.QueryRow(ctx, `
		INSERT INTO pending_submissions
		(invoice_number, unit_name, submitter, value, entry_number, submission_id, received_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7)
		ON CONFLICT (submission_id) DO NOTHING
		RETURNING row_id`,
		rec.Key, rec.UnitName, rec.SubmitterName, rec.Value.Text('f'),
		rec.EntryNumber, rec.ExternalSubmissionID, receivedAt,
	).Scan((*int64)(&ref))
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	if err := p.pool.QueryRow(ctx,
		`SELECT row_id FROM pending_submissions WHERE submission_id = $1`,
		rec.ExternalSubmissionID,
	).Scan((*int64)(&ref)); err != nil {
		return 0, fmt.Errorf("resolve pending conflict: %w", err)
	}
	return ref, ErrDuplicateSubmission
}

// UpdateSecondary records the submission id and writes the row in one
// transaction. A concurrent insert of the same id waits on the unique index
// and then finds the conflict.
func (p *PostgresBackend) UpdateSecondary(ctx context.Context, ref RowRef, u SecondaryUpdate) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO applied_secondary_submissions (submission_id, row_id)
		VALUES ($1, $2)
		ON CONFLICT (submission_id) DO NOTHING`,
		u.SubmissionID, int64(ref),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateSubmission
	}

	tag, err = tx.Exec(ctx, `
		UPDATE reconciliation_rows SET
			secondary_submitter = $2,
			secondary_value = $3::text::numeric,
			secondary_submission_id = $4,
			secondary_entry_number = $5,
			status = $6,
			delta = $7::text::numeric,
			updated_at = now()
		WHERE row_id = $1`,
		int64(ref), u.Submitter, u.Value.Text('f'), u.SubmissionID, u.EntryNumber, u.Status, u.Delta.Text('f'),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (p *PostgresBackend) ListPending(ctx context.Context, limit int) ([]PendingRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT row_id, invoice_number, unit_name, submitter, value::text, entry_number, submission_id, received_at
		FROM pending_submissions
		ORDER BY row_id DESC
		LIMIT $1`, limit)
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

func (p *PostgresBackend) Close() error {
	p.logger.Info("closing postgres ledger")
	p.pool.Close()
	return nil
}

// scanEntry reads the pgSelectEntry / sqliteSelectEntry column list
func scanEntry(scan func(dest ...any) error) (*Entry, error) {
	var (
		e                      Entry
		primary, second, delta string
	)
	if err := scan((*int64)(&e.Ref), &e.Key, &e.UnitName, &e.Supplier, &e.PrimarySubmitter,
		&primary, &e.PrimarySubmissionID, &e.PrimaryAttachmentRef,
		&e.SecondarySubmitter, &second, &e.SecondarySubmissionID,
		&e.SecondaryEntryNumber, &e.Status, &delta, &e.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if e.PrimaryValue, err = parseStoredDecimal(primary); err != nil {
		return nil, err
	}
	if e.SecondaryValue, err = parseStoredDecimal(second); err != nil {
		return nil, err
	}
	if e.Delta, err = parseStoredDecimal(delta); err != nil {
		return nil, err
	}
	return &e, nil
}

func parseStoredDecimal(s string) (d apd.Decimal, err error) {
	if s == "" {
		return d, nil
	}
	d, err = models.ParseDecimal(s)
	if err != nil {
		return d, fmt.Errorf("malformed decimal %q in ledger: %w", s, err)
	}
	return d, nil
}

var _ Backend = (*PostgresBackend)(nil)
