package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/core/ports"
)

// IntakeUseCase orchestrates one document intake: extract the customer
// address from the planset (utility bill as fallback), resolve the permitting
// jurisdiction, look up or generate guidance, and persist the project.
//
// Every step before persistence degrades on failure: the flow carries a
// best-effort jurisdiction ("N/A" when unknown) and guidance (origin
// "unavailable" when generation failed) forward. Only the project insert is
// fatal; the user must never lose an upload to a flaky geocoder or model.
type IntakeUseCase struct {
	projects  ports.ProjectRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	addresses ports.AddressExtractor
	resolver  ports.JurisdictionResolver
	guidance  ports.GuidanceService
	events    ports.EventPublisher
	logger    *slog.Logger
}

func NewIntakeUseCase(
	projects ports.ProjectRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	addresses ports.AddressExtractor,
	resolver ports.JurisdictionResolver,
	guidance ports.GuidanceService,
	events ports.EventPublisher,
	logger *slog.Logger,
) *IntakeUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeUseCase{
		projects:  projects,
		storage:   storage,
		extractor: extractor,
		addresses: addresses,
		resolver:  resolver,
		guidance:  guidance,
		events:    events,
		logger:    logger,
	}
}

func (uc *IntakeUseCase) Intake(ctx context.Context, req ports.IntakeRequest) (*ports.IntakeResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "intake", errors.New("missing owner id"))
	}
	if len(req.Planset) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "intake", errors.New("planset file is required"))
	}

	extracted := uc.extractAddress(ctx, req)
	jurisdiction := uc.resolveJurisdiction(ctx, extracted.address)

	guidance, err := uc.guidance.GetOrBuild(ctx, jurisdiction)
	if err != nil {
		uc.logger.Warn("guidance generation degraded",
			"jurisdiction", jurisdiction, "error", err)
		guidance = domain.GuidanceResult{
			JurisdictionName: jurisdiction,
			Origin:           domain.GuidanceUnavailable,
		}
	}

	project := uc.assembleProject(ctx, req, extracted, jurisdiction, guidance)

	if err := uc.projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("persist project: %w", err)
	}

	if err := uc.events.PublishIntakeCompleted(ctx, project.ID); err != nil {
		uc.logger.Warn("intake event publish degraded",
			"project_id", project.ID, "error", err)
	}

	return &ports.IntakeResult{
		Project:          project,
		CustomerAddress:  extracted.address,
		AddressSource:    extracted.source,
		JurisdictionName: jurisdiction,
		Guidance:         guidance,
	}, nil
}

// extraction carries everything the address stage learned, so the persisted
// documents keep the extracted text and bill facts alongside the address.
type extraction struct {
	address     string
	source      string
	plansetText string
	billText    string
	facts       *domain.UtilityBillFacts
}

// extractAddress tries the planset first page for the customer address. The
// utility bill, when uploaded, is always processed for its text and billing
// facts; its address is consulted only when the planset yielded none. The
// address is "N/A" when neither document yields one.
func (uc *IntakeUseCase) extractAddress(ctx context.Context, req ports.IntakeRequest) extraction {
	result := uc.plansetAddress(ctx, req.Planset)
	result.source = ports.AddressSourceNone
	if addressUsable(result.address) {
		result.source = ports.AddressSourcePlanset
	}

	if len(req.UtilityBill) > 0 {
		billText, facts, billAddress := uc.utilityBillData(ctx, req)
		result.billText = billText
		result.facts = facts
		if result.source == ports.AddressSourceNone && addressUsable(billAddress) {
			uc.logger.Info("planset address unavailable, using utility bill address")
			result.address = billAddress
			result.source = ports.AddressSourceUtilityBill
		}
	}
	return result
}

func (uc *IntakeUseCase) plansetAddress(ctx context.Context, planset []byte) extraction {
	result := extraction{address: domain.JurisdictionUnavailable}

	firstPage, err := uc.extractor.ExtractFirstPage(planset)
	if err != nil {
		uc.logger.Warn("planset text extraction degraded", "error", err)
		return result
	}
	result.plansetText = firstPage

	address, err := uc.addresses.PlansetAddress(ctx, firstPage)
	if err != nil {
		uc.logger.Warn("planset address extraction degraded", "error", err)
		return result
	}
	if address = strings.TrimSpace(address); addressUsable(address) {
		result.address = address
	}
	return result
}

// utilityBillData extracts whatever the bill offers: structured facts through
// the vision model for images, text plus an address prompt for PDFs. Failures
// degrade to empty values.
func (uc *IntakeUseCase) utilityBillData(ctx context.Context, req ports.IntakeRequest) (string, *domain.UtilityBillFacts, string) {
	if isImageMime(req.UtilityBillMime) {
		facts, err := uc.addresses.UtilityBillFacts(ctx, req.UtilityBill, req.UtilityBillMime)
		if err != nil {
			uc.logger.Warn("utility bill vision extraction degraded", "error", err)
			return "", nil, ""
		}
		return "", &facts, strings.TrimSpace(facts.CustomerAddress)
	}

	billText, err := uc.extractor.ExtractText(req.UtilityBill)
	if err != nil {
		uc.logger.Warn("utility bill text extraction degraded", "error", err)
		return "", nil, ""
	}

	address, err := uc.addresses.UtilityAddress(ctx, billText)
	if err != nil {
		uc.logger.Warn("utility bill address extraction degraded", "error", err)
		return billText, nil, ""
	}
	return billText, nil, strings.TrimSpace(address)
}

// resolveJurisdiction maps an address to a jurisdiction name. Any failure,
// including the geocoder being unreachable, yields "N/A".
func (uc *IntakeUseCase) resolveJurisdiction(ctx context.Context, address string) string {
	if !addressUsable(address) {
		return domain.JurisdictionUnavailable
	}

	jurisdiction, err := uc.resolver.Resolve(ctx, address)
	if err != nil {
		uc.logger.Warn("jurisdiction resolution degraded",
			"address", address, "error", err)
		return domain.JurisdictionUnavailable
	}
	return jurisdiction.Name()
}

func (uc *IntakeUseCase) assembleProject(
	ctx context.Context,
	req ports.IntakeRequest,
	extracted extraction,
	jurisdiction string,
	guidance domain.GuidanceResult,
) *domain.Project {
	now := time.Now().UTC()
	project := &domain.Project{
		ID:               uuid.NewString(),
		Name:             projectName(req, extracted.address),
		OwnerID:          req.OwnerID,
		JurisdictionName: jurisdiction,
		GuidanceText:     guidance.GuidanceText,
		GuidanceOrigin:   guidance.Origin,
		Status:           domain.ProjectInProgress,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	project.Planset = &domain.ProjectDocument{
		Kind:            domain.DocPlanset,
		Filename:        req.PlansetName,
		StoragePath:     uc.storeFile(ctx, project.ID, domain.DocPlanset, req.PlansetName, req.Planset),
		MimeType:        "application/pdf",
		ExtractedText:   extracted.plansetText,
		CustomerAddress: extracted.address,
		UploadedAt:      now,
	}
	if len(req.UtilityBill) > 0 {
		project.UtilityBill = &domain.ProjectDocument{
			Kind:          domain.DocUtilityBill,
			Filename:      req.UtilityBillName,
			StoragePath:   uc.storeFile(ctx, project.ID, domain.DocUtilityBill, req.UtilityBillName, req.UtilityBill),
			MimeType:      req.UtilityBillMime,
			ExtractedText: extracted.billText,
			Facts:         extracted.facts,
			UploadedAt:    now,
		}
	}
	return project
}

// storeFile writes the upload to object storage. A failed write degrades to
// an empty storage path: the project record still captures the intake.
func (uc *IntakeUseCase) storeFile(ctx context.Context, projectID string, kind domain.DocumentKind, filename string, data []byte) string {
	key := fmt.Sprintf("%s/%s/%s", projectID, kind, sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
		uc.logger.Warn("document storage degraded",
			"project_id", projectID, "kind", kind, "error", err)
		return ""
	}
	return key
}

func projectName(req ports.IntakeRequest, address string) string {
	if name := strings.TrimSpace(req.ProjectName); name != "" {
		return name
	}
	if addressUsable(address) {
		return address
	}
	if req.PlansetName != "" {
		base := filepath.Base(req.PlansetName)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return "Untitled project"
}

// addressUsable rejects the non-address answers the extraction prompts are
// known to produce: empty, "N/A" and "not found".
func addressUsable(address string) bool {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return false
	}
	if strings.EqualFold(trimmed, domain.JurisdictionUnavailable) {
		return false
	}
	return !strings.EqualFold(trimmed, "not found")
}

func isImageMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
