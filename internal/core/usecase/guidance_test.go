package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/core/ports"
)

type cacheFake struct {
	entry     *domain.CachedGuidance
	getErr    error
	upsertErr error
	getCalls  int
	upserts   []upsertCall
	listed    []domain.CachedGuidance
	deleteErr error
	stats     *domain.GuidanceStats
}

type upsertCall struct {
	name string
	text string
}

func (f *cacheFake) Get(_ context.Context, name string) (*domain.CachedGuidance, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.entry != nil && strings.EqualFold(f.entry.JurisdictionName, strings.TrimSpace(name)) {
		return f.entry, nil
	}
	return nil, nil
}

func (f *cacheFake) Upsert(_ context.Context, name, text string) (*domain.CachedGuidance, error) {
	f.upserts = append(f.upserts, upsertCall{name: name, text: text})
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return &domain.CachedGuidance{JurisdictionName: name, GuidanceText: text, UsageCount: 1}, nil
}

func (f *cacheFake) List(context.Context, int, int) ([]domain.CachedGuidance, error) {
	return f.listed, nil
}

func (f *cacheFake) Search(context.Context, string) ([]domain.CachedGuidance, error) {
	return f.listed, nil
}

func (f *cacheFake) Delete(context.Context, string) error { return f.deleteErr }

func (f *cacheFake) Stats(context.Context) (*domain.GuidanceStats, error) { return f.stats, nil }

type fetcherFake struct {
	data   []byte
	format ports.SourceFormat
	err    error
	calls  int
}

func (f *fetcherFake) Fetch(context.Context) ([]byte, ports.SourceFormat, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.format, nil
}

type readerFake struct {
	steps domain.GuidanceSteps
	err   error
	calls int
}

func (f *readerFake) FindSteps([]byte, ports.SourceFormat, string) (domain.GuidanceSteps, error) {
	f.calls++
	if f.err != nil {
		return domain.GuidanceSteps{}, f.err
	}
	return f.steps, nil
}

type synthesizerFake struct {
	text  string
	err   error
	calls int
}

func (f *synthesizerFake) Synthesize(context.Context, string, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGuidanceUC(cache *cacheFake, fetcher *fetcherFake, reader *readerFake, synth *synthesizerFake) *GuidanceUseCase {
	return NewGuidanceUseCase(cache, fetcher, reader, synth, discardLogger())
}

func TestGetOrBuildReturnsCachedWithoutFetching(t *testing.T) {
	cache := &cacheFake{entry: &domain.CachedGuidance{
		JurisdictionName: "Cook County",
		GuidanceText:     "Step 1: apply online.",
		UsageCount:       4,
	}}
	fetcher := &fetcherFake{}
	reader := &readerFake{}
	synth := &synthesizerFake{}
	uc := newGuidanceUC(cache, fetcher, reader, synth)

	result, err := uc.GetOrBuild(context.Background(), "cook county")
	if err != nil {
		t.Fatalf("GetOrBuild() error = %v", err)
	}
	if result.Origin != domain.GuidanceFromCache {
		t.Fatalf("Origin = %q, want cache_hit", result.Origin)
	}
	if result.GuidanceText != "Step 1: apply online." {
		t.Fatalf("GuidanceText = %q", result.GuidanceText)
	}
	if fetcher.calls != 0 || reader.calls != 0 || synth.calls != 0 {
		t.Fatalf("cache hit must not touch source or model: fetch=%d read=%d synth=%d",
			fetcher.calls, reader.calls, synth.calls)
	}
}

func TestGetOrBuildGeneratesAndCachesOnMiss(t *testing.T) {
	cache := &cacheFake{}
	fetcher := &fetcherFake{data: []byte("table"), format: ports.FormatCSV}
	reader := &readerFake{steps: domain.GuidanceSteps{
		JurisdictionName: "Lake County",
		OriginalSteps:    "submit form A then wait",
		OnlineLink:       "https://permits.example.gov",
	}}
	synth := &synthesizerFake{text: "Step 1: Submit form A.\nStep 2: Wait for review."}
	uc := newGuidanceUC(cache, fetcher, reader, synth)

	result, err := uc.GetOrBuild(context.Background(), "Lake County")
	if err != nil {
		t.Fatalf("GetOrBuild() error = %v", err)
	}
	if result.Origin != domain.GuidanceGenerated {
		t.Fatalf("Origin = %q, want generated", result.Origin)
	}
	if result.GuidanceText != synth.text {
		t.Fatalf("GuidanceText = %q", result.GuidanceText)
	}
	if result.OnlineLink != "https://permits.example.gov" {
		t.Fatalf("OnlineLink = %q", result.OnlineLink)
	}
	if len(cache.upserts) != 1 || cache.upserts[0].name != "Lake County" {
		t.Fatalf("upserts = %+v", cache.upserts)
	}
}

func TestGetOrBuildUnavailableJurisdictionSkipsEverything(t *testing.T) {
	cache := &cacheFake{}
	fetcher := &fetcherFake{}
	uc := newGuidanceUC(cache, fetcher, &readerFake{}, &synthesizerFake{})

	for _, name := range []string{"", "  ", "N/A"} {
		result, err := uc.GetOrBuild(context.Background(), name)
		if err != nil {
			t.Fatalf("GetOrBuild(%q) error = %v", name, err)
		}
		if result.Origin != domain.GuidanceUnavailable {
			t.Fatalf("GetOrBuild(%q) Origin = %q, want unavailable", name, result.Origin)
		}
	}
	if cache.getCalls != 0 || fetcher.calls != 0 {
		t.Fatalf("unavailable jurisdiction must not hit cache or source")
	}
}

func TestGetOrBuildTreatsCacheReadErrorAsMiss(t *testing.T) {
	cache := &cacheFake{getErr: errors.New("connection refused")}
	fetcher := &fetcherFake{data: []byte("table"), format: ports.FormatCSV}
	reader := &readerFake{steps: domain.GuidanceSteps{
		JurisdictionName: "Cook County",
		OriginalSteps:    "apply in person",
	}}
	synth := &synthesizerFake{text: "Step 1: Apply in person."}
	uc := newGuidanceUC(cache, fetcher, reader, synth)

	result, err := uc.GetOrBuild(context.Background(), "Cook County")
	if err != nil {
		t.Fatalf("GetOrBuild() error = %v", err)
	}
	if result.Origin != domain.GuidanceGenerated {
		t.Fatalf("Origin = %q, want generated despite cache read failure", result.Origin)
	}
}

func TestGetOrBuildNotFoundReturnsUnavailableWithoutCaching(t *testing.T) {
	cache := &cacheFake{}
	fetcher := &fetcherFake{data: []byte("table"), format: ports.FormatCSV}
	reader := &readerFake{steps: domain.GuidanceSteps{NotFound: true}}
	synth := &synthesizerFake{}
	uc := newGuidanceUC(cache, fetcher, reader, synth)

	result, err := uc.GetOrBuild(context.Background(), "Nowhere County")
	if err != nil {
		t.Fatalf("GetOrBuild() error = %v", err)
	}
	if result.Origin != domain.GuidanceUnavailable {
		t.Fatalf("Origin = %q, want unavailable", result.Origin)
	}
	if synth.calls != 0 {
		t.Fatalf("absent jurisdiction must not reach the model")
	}
	if len(cache.upserts) != 0 {
		t.Fatalf("absent jurisdiction must not be cached, got %+v", cache.upserts)
	}
}

func TestGetOrBuildLinkOnlyMatchSkipsModel(t *testing.T) {
	cache := &cacheFake{}
	fetcher := &fetcherFake{data: []byte("table"), format: ports.FormatCSV}
	reader := &readerFake{steps: domain.GuidanceSteps{
		JurisdictionName: "Will County",
		OnlineLink:       "https://will.example.gov/permits",
	}}
	synth := &synthesizerFake{}
	uc := newGuidanceUC(cache, fetcher, reader, synth)

	result, err := uc.GetOrBuild(context.Background(), "Will County")
	if err != nil {
		t.Fatalf("GetOrBuild() error = %v", err)
	}
	if synth.calls != 0 {
		t.Fatalf("link-only match must not reach the model")
	}
	if !strings.Contains(result.GuidanceText, "https://will.example.gov/permits") {
		t.Fatalf("link-only guidance should carry the portal link, got %q", result.GuidanceText)
	}
	if result.Origin != domain.GuidanceGenerated {
		t.Fatalf("Origin = %q, want generated", result.Origin)
	}
	if len(cache.upserts) != 1 {
		t.Fatalf("link-only guidance should be cached")
	}
}

func TestGetOrBuildCacheWriteFailureStillReturnsGuidance(t *testing.T) {
	cache := &cacheFake{upsertErr: errors.New("disk full")}
	fetcher := &fetcherFake{data: []byte("table"), format: ports.FormatCSV}
	reader := &readerFake{steps: domain.GuidanceSteps{
		JurisdictionName: "Cook County",
		OriginalSteps:    "apply online",
	}}
	synth := &synthesizerFake{text: "Step 1: Apply online."}
	uc := newGuidanceUC(cache, fetcher, reader, synth)

	result, err := uc.GetOrBuild(context.Background(), "Cook County")
	if err != nil {
		t.Fatalf("GetOrBuild() error = %v", err)
	}
	if result.GuidanceText != "Step 1: Apply online." {
		t.Fatalf("GuidanceText = %q", result.GuidanceText)
	}
}

func TestGetOrBuildSurfacesFetchFailure(t *testing.T) {
	cache := &cacheFake{}
	fetcher := &fetcherFake{err: domain.WrapError(domain.ErrSourceUnavailable, "fetch", errors.New("timeout"))}
	uc := newGuidanceUC(cache, fetcher, &readerFake{}, &synthesizerFake{})

	_, err := uc.GetOrBuild(context.Background(), "Cook County")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestGenerateFromUploadValidatesInput(t *testing.T) {
	uc := newGuidanceUC(&cacheFake{}, &fetcherFake{}, &readerFake{}, &synthesizerFake{})

	if _, err := uc.GenerateFromUpload(context.Background(), []byte("x"), ports.FormatCSV, "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("empty name: expected ErrInvalidInput, got %v", err)
	}
	if _, err := uc.GenerateFromUpload(context.Background(), nil, ports.FormatCSV, "Cook County"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("empty file: expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchRejectsEmptyTerm(t *testing.T) {
	uc := newGuidanceUC(&cacheFake{}, &fetcherFake{}, &readerFake{}, &synthesizerFake{})

	if _, err := uc.Search(context.Background(), "   "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
