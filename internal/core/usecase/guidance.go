package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/core/ports"
)

// GuidanceUseCase implements lookup-or-generate over the guidance cache.
// GetOrBuild is strict: generation failures surface as errors and callers
// decide whether to degrade (the intake orchestrator does, admin endpoints
// don't).
type GuidanceUseCase struct {
	cache       ports.GuidanceCache
	fetcher     ports.SourceFetcher
	reader      ports.StepsReader
	synthesizer ports.GuidanceSynthesizer
	logger      *slog.Logger
}

func NewGuidanceUseCase(
	cache ports.GuidanceCache,
	fetcher ports.SourceFetcher,
	reader ports.StepsReader,
	synthesizer ports.GuidanceSynthesizer,
	logger *slog.Logger,
) *GuidanceUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuidanceUseCase{
		cache:       cache,
		fetcher:     fetcher,
		reader:      reader,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// GetOrBuild returns cached guidance when present, otherwise fetches the
// source table, locates the jurisdiction and synthesizes fresh guidance.
//
// Concurrent misses for the same jurisdiction may each generate and write;
// the cache applies last-write-wins and the waste is bounded by one
// generation per concurrent request, which is acceptable for this traffic.
func (uc *GuidanceUseCase) GetOrBuild(ctx context.Context, jurisdictionName string) (domain.GuidanceResult, error) {
	name := strings.TrimSpace(jurisdictionName)
	if name == "" || name == domain.JurisdictionUnavailable {
		return domain.GuidanceResult{
			JurisdictionName: domain.JurisdictionUnavailable,
			Origin:           domain.GuidanceUnavailable,
		}, nil
	}

	entry, err := uc.cache.Get(ctx, name)
	if err != nil {
		// A broken cache read must not block generation.
		uc.logger.Warn("guidance cache read failed, treating as miss",
			"jurisdiction", name, "error", err)
	}
	if entry != nil {
		return domain.GuidanceResult{
			JurisdictionName: name,
			GuidanceText:     entry.GuidanceText,
			Origin:           domain.GuidanceFromCache,
		}, nil
	}

	data, format, err := uc.fetcher.Fetch(ctx)
	if err != nil {
		return domain.GuidanceResult{}, fmt.Errorf("fetch guidance source: %w", err)
	}
	return uc.buildAndCache(ctx, data, format, name)
}

// GenerateFromUpload builds guidance from an admin-supplied table instead of
// the configured source, refreshing the cache entry for the jurisdiction.
func (uc *GuidanceUseCase) GenerateFromUpload(ctx context.Context, data []byte, format ports.SourceFormat, jurisdictionName string) (domain.GuidanceResult, error) {
	name := strings.TrimSpace(jurisdictionName)
	if name == "" {
		return domain.GuidanceResult{}, domain.WrapError(domain.ErrInvalidInput, "generate guidance", errors.New("empty jurisdiction name"))
	}
	if len(data) == 0 {
		return domain.GuidanceResult{}, domain.WrapError(domain.ErrInvalidInput, "generate guidance", errors.New("empty source file"))
	}
	return uc.buildAndCache(ctx, data, format, name)
}

func (uc *GuidanceUseCase) buildAndCache(ctx context.Context, data []byte, format ports.SourceFormat, name string) (domain.GuidanceResult, error) {
	steps, err := uc.reader.FindSteps(data, format, name)
	if err != nil {
		return domain.GuidanceResult{}, fmt.Errorf("read guidance source: %w", err)
	}
	if steps.NotFound {
		uc.logger.Info("jurisdiction absent from guidance source", "jurisdiction", name)
		return domain.GuidanceResult{
			JurisdictionName: name,
			Origin:           domain.GuidanceUnavailable,
		}, nil
	}

	var text string
	if steps.HasSteps() {
		text, err = uc.synthesizer.Synthesize(ctx, steps.OriginalSteps, steps.OnlineLink)
		if err != nil {
			return domain.GuidanceResult{}, fmt.Errorf("synthesize guidance: %w", err)
		}
	} else {
		// Matched row with no steps row after it: the source only knows the
		// online portal, so say exactly that instead of prompting a model
		// with nothing.
		text = linkOnlyGuidance(name, steps.OnlineLink)
	}

	if _, err := uc.cache.Upsert(ctx, name, text); err != nil {
		// Cache write failure degrades: the caller still gets the guidance.
		uc.logger.Warn("guidance cache write failed",
			"jurisdiction", name, "error", err)
	}

	return domain.GuidanceResult{
		JurisdictionName: name,
		GuidanceText:     text,
		OriginalSteps:    steps.OriginalSteps,
		OnlineLink:       steps.OnlineLink,
		Origin:           domain.GuidanceGenerated,
	}, nil
}

func linkOnlyGuidance(name, link string) string {
	if link == "" {
		return fmt.Sprintf("Step 1: Contact the %s permitting office directly; no published process or online portal is on file.", name)
	}
	return fmt.Sprintf("Step 1: Apply through the %s online permitting portal: %s\nStep 2: Follow the portal instructions; no additional published steps are on file for this jurisdiction.", name, link)
}

func (uc *GuidanceUseCase) List(ctx context.Context, skip, limit int) ([]domain.CachedGuidance, error) {
	entries, err := uc.cache.List(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list guidance: %w", err)
	}
	return entries, nil
}

func (uc *GuidanceUseCase) Search(ctx context.Context, term string) ([]domain.CachedGuidance, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search guidance", errors.New("empty search term"))
	}
	entries, err := uc.cache.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search guidance: %w", err)
	}
	return entries, nil
}

func (uc *GuidanceUseCase) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete guidance", errors.New("empty id"))
	}
	return uc.cache.Delete(ctx, id)
}

func (uc *GuidanceUseCase) Stats(ctx context.Context) (*domain.GuidanceStats, error) {
	stats, err := uc.cache.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("guidance stats: %w", err)
	}
	return stats, nil
}
