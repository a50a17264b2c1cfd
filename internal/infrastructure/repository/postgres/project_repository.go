package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heliowatt/permit-intake/internal/core/domain"
)

// ProjectRepository persists permit projects. Uploaded documents are embedded
// as JSONB columns rather than a side table: a project carries at most one
// planset and one utility bill, and they are always read together.
type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082302)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	jurisdiction_name TEXT NOT NULL,
	guidance_text TEXT NOT NULL DEFAULT '',
	guidance_origin TEXT NOT NULL,
	status TEXT NOT NULL,
	planset_doc JSONB,
	utility_doc JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	plansetJSON, err := marshalDocument(project.Planset)
	if err != nil {
		return fmt.Errorf("marshal planset document: %w", err)
	}
	utilityJSON, err := marshalDocument(project.UtilityBill)
	if err != nil {
		return fmt.Errorf("marshal utility document: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO projects (id, name, owner_id, jurisdiction_name, guidance_text, guidance_origin, status, planset_doc, utility_doc, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		project.ID, project.Name, project.OwnerID, project.JurisdictionName,
		project.GuidanceText, project.GuidanceOrigin, project.Status,
		plansetJSON, utilityJSON, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, ownerID, id string) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, owner_id, jurisdiction_name, guidance_text, guidance_origin, status, planset_doc, utility_doc, created_at, updated_at
FROM projects
WHERE id = $1 AND owner_id = $2
`, id, ownerID)

	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProjectNotFound, "get project", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("read project: %w", err)
	}
	return project, nil
}

// GetByIDAny loads a project without owner scoping. Used by the worker,
// which acts on projects across all owners.
func (r *ProjectRepository) GetByIDAny(ctx context.Context, id string) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, owner_id, jurisdiction_name, guidance_text, guidance_origin, status, planset_doc, utility_doc, created_at, updated_at
FROM projects
WHERE id = $1
`, id)

	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProjectNotFound, "get project", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("read project: %w", err)
	}
	return project, nil
}

func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]domain.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, owner_id, jurisdiction_name, guidance_text, guidance_origin, status, planset_doc, utility_doc, created_at, updated_at
FROM projects
WHERE owner_id = $1
ORDER BY created_at DESC
OFFSET $2 LIMIT $3
`, ownerID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		projects = append(projects, *project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project rows: %w", err)
	}
	return projects, nil
}

func (r *ProjectRepository) AttachDocument(ctx context.Context, ownerID, id string, doc *domain.ProjectDocument) error {
	column := "planset_doc"
	if doc.Kind == domain.DocUtilityBill {
		column = "utility_doc"
	}

	docJSON, err := marshalDocument(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	query := fmt.Sprintf(`UPDATE projects SET %s = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4`, column)
	result, err := r.db.ExecContext(ctx, query, docJSON, time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("attach document: %w", err)
	}
	return requireProjectRow(result, id)
}

func (r *ProjectRepository) UpdateStatus(ctx context.Context, ownerID, id string, status domain.ProjectStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE projects SET status = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4
`, status, time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	return requireProjectRow(result, id)
}

func (r *ProjectRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireProjectRow(result, id)
}

func requireProjectRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrProjectNotFound, "project lookup", fmt.Errorf("id %s", id))
	}
	return nil
}

func marshalDocument(doc *domain.ProjectDocument) (any, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		project     domain.Project
		plansetJSON []byte
		utilityJSON []byte
	)
	err := row.Scan(
		&project.ID, &project.Name, &project.OwnerID, &project.JurisdictionName,
		&project.GuidanceText, &project.GuidanceOrigin, &project.Status,
		&plansetJSON, &utilityJSON, &project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if project.Planset, err = unmarshalDocument(plansetJSON); err != nil {
		return nil, fmt.Errorf("unmarshal planset document: %w", err)
	}
	if project.UtilityBill, err = unmarshalDocument(utilityJSON); err != nil {
		return nil, fmt.Errorf("unmarshal utility document: %w", err)
	}
	return &project, nil
}

func unmarshalDocument(raw []byte) (*domain.ProjectDocument, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc domain.ProjectDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
