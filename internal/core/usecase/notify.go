package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heliowatt/permit-intake/internal/core/ports"
)

// NotifyUseCase handles intake-completed events on the worker side. For now
// notification means a structured record of the completed intake; delivery
// channels hang off this point.
type NotifyUseCase struct {
	projects ports.ProjectRepository
	logger   *slog.Logger
}

func NewNotifyUseCase(projects ports.ProjectRepository, logger *slog.Logger) *NotifyUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyUseCase{projects: projects, logger: logger}
}

func (uc *NotifyUseCase) HandleIntakeCompleted(ctx context.Context, projectID string) error {
	project, err := uc.projects.GetByIDAny(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project for notification: %w", err)
	}

	uc.logger.Info("intake completed",
		"project_id", project.ID,
		"owner_id", project.OwnerID,
		"jurisdiction", project.JurisdictionName,
		"guidance_origin", project.GuidanceOrigin,
		"documents", project.DocumentCount(),
	)
	return nil
}
