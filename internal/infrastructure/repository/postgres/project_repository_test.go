package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/heliowatt/permit-intake/internal/core/domain"
)

func newProjectRepoWithMock(t *testing.T) (*ProjectRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ProjectRepository{db: db}, mock, func() { _ = db.Close() }
}

func projectColumns() []string {
	return []string{
		"id", "name", "owner_id", "jurisdiction_name", "guidance_text",
		"guidance_origin", "status", "planset_doc", "utility_doc",
		"created_at", "updated_at",
	}
}

func TestProjectGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newProjectRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, owner_id, jurisdiction_name").
		WithArgs("missing", "user-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "user-1", "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProjectGetByIDDecodesEmbeddedDocuments(t *testing.T) {
	repo, mock, done := newProjectRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	planset, err := json.Marshal(domain.ProjectDocument{
		Kind:            domain.DocPlanset,
		Filename:        "plans.pdf",
		StoragePath:     "p-1/planset/plans.pdf",
		MimeType:        "application/pdf",
		CustomerAddress: "100 Main St, Springfield, IL",
		UploadedAt:      now,
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	mock.ExpectQuery("SELECT id, name, owner_id, jurisdiction_name").
		WithArgs("p-1", "user-1").
		WillReturnRows(sqlmock.NewRows(projectColumns()).
			AddRow("p-1", "Smith residence", "user-1", "Cook County",
				"Step 1: apply.", string(domain.GuidanceGenerated),
				string(domain.ProjectInProgress), planset, nil, now, now))

	project, err := repo.GetByID(context.Background(), "user-1", "p-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if project.Planset == nil {
		t.Fatalf("expected planset document")
	}
	if project.Planset.CustomerAddress != "100 Main St, Springfield, IL" {
		t.Fatalf("CustomerAddress = %q", project.Planset.CustomerAddress)
	}
	if project.UtilityBill != nil {
		t.Fatalf("expected nil utility bill, got %+v", project.UtilityBill)
	}
	if project.DocumentCount() != 1 {
		t.Fatalf("DocumentCount() = %d, want 1", project.DocumentCount())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProjectAttachDocumentTargetsUtilityColumn(t *testing.T) {
	repo, mock, done := newProjectRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE projects SET utility_doc").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "p-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AttachDocument(context.Background(), "user-1", "p-1", &domain.ProjectDocument{
		Kind:     domain.DocUtilityBill,
		Filename: "bill.pdf",
	})
	if err != nil {
		t.Fatalf("AttachDocument() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProjectUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newProjectRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE projects SET status").
		WithArgs(string(domain.ProjectCompleted), sqlmock.AnyArg(), "missing", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "user-1", "missing", domain.ProjectCompleted)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProjectDeleteScopedToOwner(t *testing.T) {
	repo, mock, done := newProjectRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM projects").
		WithArgs("p-1", "other-user").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "other-user", "p-1")
	if !domain.IsKind(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound for foreign owner, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
