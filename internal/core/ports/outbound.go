package ports

import (
	"context"
	"io"

	"github.com/heliowatt/permit-intake/internal/core/domain"
)

// JurisdictionResolver resolves a free-text address to geography names.
// A zero Jurisdiction with nil error means the address did not geocode;
// a non-nil error means the geocoding service itself could not be reached.
type JurisdictionResolver interface {
	Resolve(ctx context.Context, address string) (domain.Jurisdiction, error)
}

// GuidanceCache is the persistent lookup-or-generate cache keyed by
// case-insensitive jurisdiction name.
type GuidanceCache interface {
	// Get returns (nil, nil) on miss. A hit increments usage_count and
	// refreshes last_used_at as an observable side effect of the read.
	Get(ctx context.Context, jurisdictionName string) (*domain.CachedGuidance, error)
	// Upsert updates guidance_text on an existing (case-insensitive) entry
	// without touching usage_count, or inserts a fresh entry with usage_count=1.
	Upsert(ctx context.Context, jurisdictionName, guidanceText string) (*domain.CachedGuidance, error)
	List(ctx context.Context, skip, limit int) ([]domain.CachedGuidance, error)
	Search(ctx context.Context, term string) ([]domain.CachedGuidance, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.GuidanceStats, error)
}

// SourceFormat names the declared encoding of the tabular guidance source.
type SourceFormat string

const (
	FormatXLSX SourceFormat = "xlsx"
	FormatXLS  SourceFormat = "xls"
	FormatCSV  SourceFormat = "csv"
)

// SourceFetcher retrieves the raw tabular guidance source from wherever the
// deployment keeps it (a published sheet, typically).
type SourceFetcher interface {
	Fetch(ctx context.Context) ([]byte, SourceFormat, error)
}

// StepsReader parses a tabular payload and locates the row pair for a
// jurisdiction: link on the matched row, raw steps on the row after it.
type StepsReader interface {
	FindSteps(data []byte, format SourceFormat, jurisdictionName string) (domain.GuidanceSteps, error)
}

// GuidanceSynthesizer turns raw permitting steps into a numbered,
// user-facing action list via prompted inference.
type GuidanceSynthesizer interface {
	Synthesize(ctx context.Context, originalSteps, onlineLink string) (string, error)
}

// AddressExtractor runs the document-specific address prompts.
type AddressExtractor interface {
	// PlansetAddress extracts the customer/property address from planset
	// first-page text. Returns "N/A" style answers verbatim.
	PlansetAddress(ctx context.Context, firstPageText string) (string, error)
	// UtilityAddress extracts the service address from utility-bill text.
	UtilityAddress(ctx context.Context, billText string) (string, error)
	// UtilityBillFacts runs vision extraction over a utility-bill image.
	UtilityBillFacts(ctx context.Context, image []byte, mimeType string) (domain.UtilityBillFacts, error)
}

// TextExtractor pulls plain text out of PDF bytes.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
	ExtractFirstPage(data []byte) (string, error)
}

// ProjectRepository persists intake project records.
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, ownerID, id string) (*domain.Project, error)
	// GetByIDAny loads a project regardless of owner. Internal consumers only.
	GetByIDAny(ctx context.Context, id string) (*domain.Project, error)
	ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]domain.Project, error)
	AttachDocument(ctx context.Context, ownerID, id string, doc *domain.ProjectDocument) error
	UpdateStatus(ctx context.Context, ownerID, id string, status domain.ProjectStatus) error
	Delete(ctx context.Context, ownerID, id string) error
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EventPublisher announces completed intakes to downstream consumers
// (reminder workflows, analytics).
type EventPublisher interface {
	PublishIntakeCompleted(ctx context.Context, projectID string) error
	SubscribeIntakeCompleted(ctx context.Context, handler func(context.Context, string) error) error
}
