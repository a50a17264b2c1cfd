package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/core/ports"
)

type projectRepoFake struct {
	created   *domain.Project
	createErr error
	anyErr    error
}

func (f *projectRepoFake) Create(_ context.Context, p *domain.Project) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = p
	return nil
}

func (f *projectRepoFake) GetByID(context.Context, string, string) (*domain.Project, error) {
	return f.created, nil
}

func (f *projectRepoFake) GetByIDAny(context.Context, string) (*domain.Project, error) {
	if f.anyErr != nil {
		return nil, f.anyErr
	}
	return f.created, nil
}

func (f *projectRepoFake) ListByOwner(context.Context, string, int, int) ([]domain.Project, error) {
	return nil, nil
}

func (f *projectRepoFake) AttachDocument(context.Context, string, string, *domain.ProjectDocument) error {
	return nil
}

func (f *projectRepoFake) UpdateStatus(context.Context, string, string, domain.ProjectStatus) error {
	return nil
}

func (f *projectRepoFake) Delete(context.Context, string, string) error { return nil }

type storageFake struct {
	saved   map[string][]byte
	saveErr error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[key] = raw
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type textExtractorFake struct {
	firstPage    string
	firstPageErr error
	fullText     string
	fullTextErr  error
}

func (f *textExtractorFake) ExtractText([]byte) (string, error) {
	return f.fullText, f.fullTextErr
}

func (f *textExtractorFake) ExtractFirstPage([]byte) (string, error) {
	return f.firstPage, f.firstPageErr
}

type addressExtractorFake struct {
	plansetAddr   string
	plansetErr    error
	utilityAddr   string
	utilityErr    error
	facts         domain.UtilityBillFacts
	factsErr      error
	factsCalls    int
	utilTextCalls int
	plansetCalls  int
}

func (f *addressExtractorFake) PlansetAddress(context.Context, string) (string, error) {
	f.plansetCalls++
	return f.plansetAddr, f.plansetErr
}

func (f *addressExtractorFake) UtilityAddress(context.Context, string) (string, error) {
	f.utilTextCalls++
	return f.utilityAddr, f.utilityErr
}

func (f *addressExtractorFake) UtilityBillFacts(context.Context, []byte, string) (domain.UtilityBillFacts, error) {
	f.factsCalls++
	return f.facts, f.factsErr
}

type resolverFake struct {
	jurisdiction domain.Jurisdiction
	err          error
	calls        int
	lastAddress  string
}

func (f *resolverFake) Resolve(_ context.Context, address string) (domain.Jurisdiction, error) {
	f.calls++
	f.lastAddress = address
	if f.err != nil {
		return domain.Jurisdiction{}, f.err
	}
	return f.jurisdiction, nil
}

type guidanceServiceFake struct {
	result domain.GuidanceResult
	err    error
	names  []string
}

func (f *guidanceServiceFake) GetOrBuild(_ context.Context, name string) (domain.GuidanceResult, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return domain.GuidanceResult{}, f.err
	}
	if f.result.JurisdictionName == "" {
		f.result.JurisdictionName = name
	}
	return f.result, nil
}

func (f *guidanceServiceFake) GenerateFromUpload(context.Context, []byte, ports.SourceFormat, string) (domain.GuidanceResult, error) {
	return domain.GuidanceResult{}, errors.New("not implemented")
}

func (f *guidanceServiceFake) List(context.Context, int, int) ([]domain.CachedGuidance, error) {
	return nil, nil
}

func (f *guidanceServiceFake) Search(context.Context, string) ([]domain.CachedGuidance, error) {
	return nil, nil
}

func (f *guidanceServiceFake) Delete(context.Context, string) error { return nil }

func (f *guidanceServiceFake) Stats(context.Context) (*domain.GuidanceStats, error) {
	return nil, nil
}

type eventsFake struct {
	published  []string
	publishErr error
}

func (f *eventsFake) PublishIntakeCompleted(_ context.Context, projectID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, projectID)
	return nil
}

func (f *eventsFake) SubscribeIntakeCompleted(context.Context, func(context.Context, string) error) error {
	return nil
}

type intakeFixture struct {
	projects  *projectRepoFake
	storage   *storageFake
	extractor *textExtractorFake
	addresses *addressExtractorFake
	resolver  *resolverFake
	guidance  *guidanceServiceFake
	events    *eventsFake
	uc        *IntakeUseCase
}

func newIntakeFixture() *intakeFixture {
	f := &intakeFixture{
		projects:  &projectRepoFake{},
		storage:   &storageFake{},
		extractor: &textExtractorFake{firstPage: "RESIDENCE LOCATED AT 100 Main St, Springfield, IL"},
		addresses: &addressExtractorFake{plansetAddr: "100 Main St, Springfield, IL"},
		resolver:  &resolverFake{jurisdiction: domain.Jurisdiction{County: "Sangamon County"}},
		guidance: &guidanceServiceFake{result: domain.GuidanceResult{
			GuidanceText: "Step 1: Apply online.",
			Origin:       domain.GuidanceGenerated,
		}},
		events: &eventsFake{},
	}
	f.uc = NewIntakeUseCase(
		f.projects, f.storage, f.extractor, f.addresses,
		f.resolver, f.guidance, f.events, discardLogger(),
	)
	return f
}

func validRequest() ports.IntakeRequest {
	return ports.IntakeRequest{
		OwnerID:         "user-1",
		ProjectName:     "Smith residence",
		PlansetName:     "plans.pdf",
		Planset:         []byte("%PDF planset"),
		UtilityBillName: "bill.pdf",
		UtilityBill:     []byte("%PDF bill"),
		UtilityBillMime: "application/pdf",
	}
}

func TestIntakeHappyPathPersistsProjectAndPublishes(t *testing.T) {
	f := newIntakeFixture()

	result, err := f.uc.Intake(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if result.JurisdictionName != "Sangamon County" {
		t.Fatalf("JurisdictionName = %q", result.JurisdictionName)
	}
	if result.Guidance.Origin != domain.GuidanceGenerated {
		t.Fatalf("Guidance.Origin = %q", result.Guidance.Origin)
	}
	if f.projects.created == nil {
		t.Fatalf("project was not persisted")
	}
	if f.projects.created.Planset == nil || f.projects.created.UtilityBill == nil {
		t.Fatalf("expected both documents attached")
	}
	if f.resolver.lastAddress != "100 Main St, Springfield, IL" {
		t.Fatalf("resolver address = %q", f.resolver.lastAddress)
	}
	if len(f.events.published) != 1 || f.events.published[0] != f.projects.created.ID {
		t.Fatalf("published = %v", f.events.published)
	}
	if len(f.storage.saved) != 2 {
		t.Fatalf("expected 2 stored files, got %d", len(f.storage.saved))
	}
}

func TestIntakeTreatsNotFoundPlansetAnswerAsMissing(t *testing.T) {
	f := newIntakeFixture()
	f.addresses.plansetAddr = "Not Found"
	f.addresses.utilityAddr = "400 Pine St, Rockford, IL"
	f.extractor.fullText = "service address 400 Pine St"

	result, err := f.uc.Intake(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if f.addresses.utilTextCalls != 1 {
		t.Fatalf("utilTextCalls = %d, want 1", f.addresses.utilTextCalls)
	}
	if result.CustomerAddress != "400 Pine St, Rockford, IL" {
		t.Fatalf("CustomerAddress = %q", result.CustomerAddress)
	}
	if f.resolver.lastAddress != "400 Pine St, Rockford, IL" {
		t.Fatalf("resolver address = %q, the placeholder answer must never be geocoded", f.resolver.lastAddress)
	}
	if result.AddressSource != ports.AddressSourceUtilityBill {
		t.Fatalf("AddressSource = %q", result.AddressSource)
	}
}

func TestIntakeExtractsBillDataEvenWhenPlansetHasAddress(t *testing.T) {
	f := newIntakeFixture()
	f.extractor.fullText = "account 12345 usage 830 kWh"

	result, err := f.uc.Intake(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if f.addresses.utilTextCalls != 1 {
		t.Fatalf("utilTextCalls = %d, want bill processed on the happy path", f.addresses.utilTextCalls)
	}
	if f.projects.created.UtilityBill.ExtractedText != "account 12345 usage 830 kWh" {
		t.Fatalf("UtilityBill.ExtractedText = %q", f.projects.created.UtilityBill.ExtractedText)
	}
	if result.AddressSource != ports.AddressSourcePlanset {
		t.Fatalf("AddressSource = %q", result.AddressSource)
	}
	if f.resolver.lastAddress != "100 Main St, Springfield, IL" {
		t.Fatalf("resolver address = %q, planset address must win", f.resolver.lastAddress)
	}
}

func TestIntakePersistsBillFactsEvenWhenPlansetHasAddress(t *testing.T) {
	f := newIntakeFixture()
	f.addresses.facts = domain.UtilityBillFacts{
		CustomerAddress: "200 Oak Ave, Naperville, IL",
		UtilityCompany:  "ComEd",
	}
	req := validRequest()
	req.UtilityBillName = "bill.jpg"
	req.UtilityBillMime = "image/jpeg"

	result, err := f.uc.Intake(context.Background(), req)
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if f.addresses.factsCalls != 1 {
		t.Fatalf("factsCalls = %d, want 1", f.addresses.factsCalls)
	}
	if f.projects.created.UtilityBill.Facts == nil ||
		f.projects.created.UtilityBill.Facts.UtilityCompany != "ComEd" {
		t.Fatalf("expected bill facts persisted, got %+v", f.projects.created.UtilityBill.Facts)
	}
	if result.CustomerAddress != "100 Main St, Springfield, IL" {
		t.Fatalf("CustomerAddress = %q, planset address must win", result.CustomerAddress)
	}
}

func TestIntakeFallsBackToUtilityBillVision(t *testing.T) {
	f := newIntakeFixture()
	f.addresses.plansetAddr = "N/A"
	f.addresses.facts = domain.UtilityBillFacts{
		CustomerAddress: "200 Oak Ave, Naperville, IL",
		UtilityCompany:  "ComEd",
	}
	req := validRequest()
	req.UtilityBillName = "bill.jpg"
	req.UtilityBillMime = "image/jpeg"

	result, err := f.uc.Intake(context.Background(), req)
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if result.CustomerAddress != "200 Oak Ave, Naperville, IL" {
		t.Fatalf("CustomerAddress = %q", result.CustomerAddress)
	}
	if f.addresses.factsCalls != 1 {
		t.Fatalf("factsCalls = %d, want 1", f.addresses.factsCalls)
	}
	if f.projects.created.UtilityBill.Facts == nil ||
		f.projects.created.UtilityBill.Facts.UtilityCompany != "ComEd" {
		t.Fatalf("expected bill facts persisted, got %+v", f.projects.created.UtilityBill.Facts)
	}
}

func TestIntakeFallsBackToUtilityBillText(t *testing.T) {
	f := newIntakeFixture()
	f.addresses.plansetAddr = "n/a"
	f.addresses.utilityAddr = "300 Elm St, Peoria, IL"
	f.extractor.fullText = "service address 300 Elm St"

	result, err := f.uc.Intake(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if result.CustomerAddress != "300 Elm St, Peoria, IL" {
		t.Fatalf("CustomerAddress = %q", result.CustomerAddress)
	}
	if f.addresses.utilTextCalls != 1 {
		t.Fatalf("utilTextCalls = %d, want 1", f.addresses.utilTextCalls)
	}
}

func TestIntakeResolverFailureDegradesToUnavailable(t *testing.T) {
	f := newIntakeFixture()
	f.resolver.err = errors.New("geocoder unreachable")
	f.guidance.result = domain.GuidanceResult{Origin: domain.GuidanceUnavailable}

	result, err := f.uc.Intake(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if result.JurisdictionName != domain.JurisdictionUnavailable {
		t.Fatalf("JurisdictionName = %q, want N/A", result.JurisdictionName)
	}
	if f.projects.created == nil {
		t.Fatalf("project must still be persisted")
	}
	if len(f.guidance.names) != 1 || f.guidance.names[0] != domain.JurisdictionUnavailable {
		t.Fatalf("guidance names = %v", f.guidance.names)
	}
}

func TestIntakeGuidanceFailureDegradesButPersists(t *testing.T) {
	f := newIntakeFixture()
	f.guidance.err = errors.New("model overloaded")

	result, err := f.uc.Intake(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if result.Guidance.Origin != domain.GuidanceUnavailable {
		t.Fatalf("Guidance.Origin = %q, want unavailable", result.Guidance.Origin)
	}
	if f.projects.created == nil {
		t.Fatalf("project must still be persisted")
	}
	if f.projects.created.GuidanceText != "" {
		t.Fatalf("GuidanceText = %q, want empty on degraded generation", f.projects.created.GuidanceText)
	}
}

func TestIntakeProjectPersistFailureIsFatal(t *testing.T) {
	f := newIntakeFixture()
	f.projects.createErr = errors.New("db down")

	_, err := f.uc.Intake(context.Background(), validRequest())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "persist project") {
		t.Fatalf("error = %v", err)
	}
	if len(f.events.published) != 0 {
		t.Fatalf("no event may be published when persistence fails")
	}
}

func TestIntakeRejectsMissingOwner(t *testing.T) {
	f := newIntakeFixture()
	req := validRequest()
	req.OwnerID = " "

	_, err := f.uc.Intake(context.Background(), req)
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestIntakeRejectsMissingPlanset(t *testing.T) {
	f := newIntakeFixture()
	req := validRequest()
	req.Planset = nil

	_, err := f.uc.Intake(context.Background(), req)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIntakeStorageFailureDegradesToEmptyPath(t *testing.T) {
	f := newIntakeFixture()
	f.storage.saveErr = errors.New("disk full")

	_, err := f.uc.Intake(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if f.projects.created.Planset.StoragePath != "" {
		t.Fatalf("StoragePath = %q, want empty on storage failure", f.projects.created.Planset.StoragePath)
	}
}

func TestIntakeEventPublishFailureDoesNotFailIntake(t *testing.T) {
	f := newIntakeFixture()
	f.events.publishErr = errors.New("nats down")

	result, err := f.uc.Intake(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if result.Project == nil {
		t.Fatalf("expected project in result")
	}
}
