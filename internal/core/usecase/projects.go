package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/core/ports"
)

// ProjectUseCase exposes owner-scoped project reads and lifecycle updates.
// Ownership is enforced by the repository queries themselves; a foreign
// project is indistinguishable from a missing one.
type ProjectUseCase struct {
	projects ports.ProjectRepository
}

func NewProjectUseCase(projects ports.ProjectRepository) *ProjectUseCase {
	return &ProjectUseCase{projects: projects}
}

func (uc *ProjectUseCase) Get(ctx context.Context, ownerID, id string) (*domain.Project, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return uc.projects.GetByID(ctx, ownerID, id)
}

func (uc *ProjectUseCase) List(ctx context.Context, ownerID string, skip, limit int) ([]domain.Project, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	projects, err := uc.projects.ListByOwner(ctx, ownerID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (uc *ProjectUseCase) UpdateStatus(ctx context.Context, ownerID, id string, status domain.ProjectStatus) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	switch status {
	case domain.ProjectDraft, domain.ProjectInProgress, domain.ProjectCompleted:
	default:
		return domain.WrapError(domain.ErrInvalidInput, "update project status", fmt.Errorf("unknown status %q", status))
	}
	return uc.projects.UpdateStatus(ctx, ownerID, id, status)
}

func (uc *ProjectUseCase) Delete(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	return uc.projects.Delete(ctx, ownerID, id)
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return domain.WrapError(domain.ErrUnauthorized, "project access", errors.New("missing owner id"))
	}
	return nil
}
