package ports

import (
	"context"

	"github.com/heliowatt/permit-intake/internal/core/domain"
)

// IntakeRequest carries one planset + utility bill submission.
type IntakeRequest struct {
	OwnerID         string
	ProjectName     string
	PlansetName     string
	Planset         []byte
	UtilityBillName string
	UtilityBill     []byte
	UtilityBillMime string
}

// Which uploaded document yielded the customer address.
const (
	AddressSourcePlanset     = "planset"
	AddressSourceUtilityBill = "utility_bill"
	AddressSourceNone        = "none"
)

// IntakeResult reports the outcome of a completed intake flow.
type IntakeResult struct {
	Project          *domain.Project       `json:"project"`
	CustomerAddress  string                `json:"customer_address"`
	AddressSource    string                `json:"address_source"`
	JurisdictionName string                `json:"jurisdiction_name"`
	Guidance         domain.GuidanceResult `json:"guidance"`
}

// DocumentIntaker is the inbound contract for the intake orchestration flow.
type DocumentIntaker interface {
	Intake(ctx context.Context, req IntakeRequest) (*IntakeResult, error)
}

// ProjectService is the inbound contract for owner-scoped project access.
type ProjectService interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Project, error)
	List(ctx context.Context, ownerID string, skip, limit int) ([]domain.Project, error)
	UpdateStatus(ctx context.Context, ownerID, id string, status domain.ProjectStatus) error
	Delete(ctx context.Context, ownerID, id string) error
}

// GuidanceService is the inbound contract for guidance lookup and
// administration.
type GuidanceService interface {
	GetOrBuild(ctx context.Context, jurisdictionName string) (domain.GuidanceResult, error)
	GenerateFromUpload(ctx context.Context, data []byte, format SourceFormat, jurisdictionName string) (domain.GuidanceResult, error)
	List(ctx context.Context, skip, limit int) ([]domain.CachedGuidance, error)
	Search(ctx context.Context, term string) ([]domain.CachedGuidance, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.GuidanceStats, error)
}
