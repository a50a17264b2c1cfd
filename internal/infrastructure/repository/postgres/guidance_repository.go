package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/heliowatt/permit-intake/internal/core/domain"
)

// GuidanceRepository is the persistent guidance cache. Jurisdiction name
// uniqueness is enforced at the application level: find case-insensitively,
// then update instead of insert. Two concurrent upserts for a brand-new
// jurisdiction can therefore both insert; last write wins and the duplicate
// is tolerated (reads pick the oldest row deterministically).
type GuidanceRepository struct {
	db *sql.DB
}

func NewGuidanceRepository(db *sql.DB) *GuidanceRepository {
	return &GuidanceRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *GuidanceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS jurisdiction_guidance (
	id TEXT PRIMARY KEY,
	jurisdiction_name TEXT NOT NULL,
	guidance_text TEXT NOT NULL,
	usage_count BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	last_used_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_guidance_name_lower ON jurisdiction_guidance(LOWER(jurisdiction_name));
CREATE INDEX IF NOT EXISTS idx_guidance_usage ON jurisdiction_guidance(usage_count DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Get looks up a jurisdiction case-insensitively. A hit increments
// usage_count and refreshes last_used_at in the same statement, so the
// read-through bookkeeping is atomic per row. A miss returns (nil, nil).
func (r *GuidanceRepository) Get(ctx context.Context, jurisdictionName string) (*domain.CachedGuidance, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE jurisdiction_guidance
SET usage_count = usage_count + 1, last_used_at = $2
WHERE id = (
	SELECT id FROM jurisdiction_guidance
	WHERE LOWER(jurisdiction_name) = LOWER(TRIM($1))
	ORDER BY created_at ASC
	LIMIT 1
)
RETURNING id, jurisdiction_name, guidance_text, usage_count, created_at, updated_at, last_used_at
`, jurisdictionName, time.Now().UTC())

	entry, err := scanGuidance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read guidance: %w", err)
	}
	return entry, nil
}

// Upsert updates guidance_text on an existing entry (case-insensitive match,
// usage_count untouched) or inserts a new entry with usage_count=1.
func (r *GuidanceRepository) Upsert(ctx context.Context, jurisdictionName, guidanceText string) (*domain.CachedGuidance, error) {
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx, `
UPDATE jurisdiction_guidance
SET guidance_text = $2, updated_at = $3
WHERE id = (
	SELECT id FROM jurisdiction_guidance
	WHERE LOWER(jurisdiction_name) = LOWER(TRIM($1))
	ORDER BY created_at ASC
	LIMIT 1
)
RETURNING id, jurisdiction_name, guidance_text, usage_count, created_at, updated_at, last_used_at
`, jurisdictionName, guidanceText, now)

	entry, err := scanGuidance(row)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update guidance: %w", err)
	}

	fresh := &domain.CachedGuidance{
		ID:               uuid.NewString(),
		JurisdictionName: jurisdictionName,
		GuidanceText:     guidanceText,
		UsageCount:       1,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastUsedAt:       now,
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO jurisdiction_guidance (id, jurisdiction_name, guidance_text, usage_count, created_at, updated_at, last_used_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, fresh.ID, fresh.JurisdictionName, fresh.GuidanceText, fresh.UsageCount, fresh.CreatedAt, fresh.UpdatedAt, fresh.LastUsedAt)
	if err != nil {
		return nil, fmt.Errorf("insert guidance: %w", err)
	}
	return fresh, nil
}

func (r *GuidanceRepository) List(ctx context.Context, skip, limit int) ([]domain.CachedGuidance, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, jurisdiction_name, guidance_text, usage_count, created_at, updated_at, last_used_at
FROM jurisdiction_guidance
ORDER BY usage_count DESC
OFFSET $1 LIMIT $2
`, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list guidance: %w", err)
	}
	defer rows.Close()

	return collectGuidance(rows)
}

func (r *GuidanceRepository) Search(ctx context.Context, term string) ([]domain.CachedGuidance, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, jurisdiction_name, guidance_text, usage_count, created_at, updated_at, last_used_at
FROM jurisdiction_guidance
WHERE jurisdiction_name ILIKE '%' || $1 || '%'
ORDER BY usage_count DESC
`, term)
	if err != nil {
		return nil, fmt.Errorf("search guidance: %w", err)
	}
	defer rows.Close()

	return collectGuidance(rows)
}

func (r *GuidanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM jurisdiction_guidance WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete guidance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete guidance rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrGuidanceNotFound, "delete guidance", fmt.Errorf("id %s", id))
	}
	return nil
}

func (r *GuidanceRepository) Stats(ctx context.Context) (*domain.GuidanceStats, error) {
	stats := &domain.GuidanceStats{}

	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(usage_count), 0)
FROM jurisdiction_guidance
`)
	if err := row.Scan(&stats.TotalEntries, &stats.TotalUsageCount); err != nil {
		return nil, fmt.Errorf("scan guidance totals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT jurisdiction_name, usage_count, last_used_at
FROM jurisdiction_guidance
ORDER BY usage_count DESC
LIMIT 5
`)
	if err != nil {
		return nil, fmt.Errorf("query most used guidance: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var usage domain.GuidanceUsage
		if err := rows.Scan(&usage.JurisdictionName, &usage.UsageCount, &usage.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan most used guidance: %w", err)
		}
		stats.MostUsed = append(stats.MostUsed, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate most used guidance: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuidance(row rowScanner) (*domain.CachedGuidance, error) {
	var entry domain.CachedGuidance
	err := row.Scan(
		&entry.ID, &entry.JurisdictionName, &entry.GuidanceText,
		&entry.UsageCount, &entry.CreatedAt, &entry.UpdatedAt, &entry.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func collectGuidance(rows *sql.Rows) ([]domain.CachedGuidance, error) {
	var entries []domain.CachedGuidance
	for rows.Next() {
		entry, err := scanGuidance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guidance row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guidance rows: %w", err)
	}
	return entries, nil
}
