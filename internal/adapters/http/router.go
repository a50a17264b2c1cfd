package httpadapter

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heliowatt/permit-intake/internal/config"
	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/core/ports"
	"github.com/heliowatt/permit-intake/internal/observability/metrics"
)

const (
	serviceName   = "permit-intake-api"
	maxUploadSize = 64 << 20
)

type Router struct {
	cfg        config.Config
	intakeUC   ports.DocumentIntaker
	guidanceUC ports.GuidanceService
	projectUC  ports.ProjectService
	metrics    *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	intakeUC ports.DocumentIntaker,
	guidanceUC ports.GuidanceService,
	projectUC ports.ProjectService,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:        cfg,
		intakeUC:   intakeUC,
		guidanceUC: guidanceUC,
		projectUC:  projectUC,
		metrics:    serverMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/intake", rt.intake)
	mux.HandleFunc("/v1/projects", rt.listProjects)
	mux.HandleFunc("/v1/projects/", rt.projectByID)
	mux.HandleFunc("/v1/guidance", rt.listGuidance)
	mux.HandleFunc("/v1/guidance/lookup", rt.lookupGuidance)
	mux.HandleFunc("/v1/guidance/search", rt.searchGuidance)
	mux.HandleFunc("/v1/guidance/stats", rt.guidanceStats)
	mux.HandleFunc("/v1/guidance/generate", rt.generateGuidance)
	mux.HandleFunc("/v1/guidance/", rt.deleteGuidance)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(rt.cfg.APIMaxInFlight, handler)
	handler = rateLimitMiddleware(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// intake accepts a multipart form with a required "planset" PDF, an optional
// "utility_bill" file (PDF or image) and an optional "project_name" field.
func (rt *Router) intake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	plansetName, planset, err := readFormFile(r, "planset")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'planset' is required"})
		return
	}

	req := ports.IntakeRequest{
		OwnerID:     ownerID,
		ProjectName: r.FormValue("project_name"),
		PlansetName: plansetName,
		Planset:     planset,
	}
	if billName, bill, billMime, err := readOptionalFormFile(r, "utility_bill"); err == nil {
		req.UtilityBillName = billName
		req.UtilityBill = bill
		req.UtilityBillMime = billMime
	}

	start := time.Now()
	result, err := rt.intakeUC.Intake(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordIntake(serviceName, string(result.Guidance.Origin), time.Since(start))
		rt.metrics.RecordAddressSource(serviceName, result.AddressSource)
		rt.recordGeocode(result.JurisdictionName)
	}

	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) recordGeocode(jurisdiction string) {
	outcome := "resolved"
	if jurisdiction == domain.JurisdictionUnavailable {
		outcome = "unavailable"
	}
	rt.metrics.RecordGeocode(serviceName, outcome)
}

func (rt *Router) listProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	skip, limit := pagination(r, rt.cfg.ProjectListLimit)
	projects, err := rt.projectUC.List(r.Context(), ownerID, skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// projectByID handles GET, PATCH (status) and DELETE for a single project.
func (rt *Router) projectByID(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/projects/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project id is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		project, err := rt.projectUC.Get(r.Context(), ownerID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodPatch:
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if err := rt.projectUC.UpdateStatus(r.Context(), ownerID, id, domain.ProjectStatus(req.Status)); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
	case http.MethodDelete:
		if err := rt.projectUC.Delete(r.Context(), ownerID, id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) listGuidance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	skip, limit := pagination(r, rt.cfg.GuidanceListLimit)
	entries, err := rt.guidanceUC.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.CachedGuidance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"guidance": entries})
}

// lookupGuidance returns cached guidance for a jurisdiction, generating it
// from the configured source on a miss.
func (rt *Router) lookupGuidance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Jurisdiction string `json:"jurisdiction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Jurisdiction) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "jurisdiction is required"})
		return
	}

	start := time.Now()
	result, err := rt.guidanceUC.GetOrBuild(r.Context(), req.Jurisdiction)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordGuidanceLookup(serviceName, string(result.Origin))
		if result.Origin == domain.GuidanceGenerated {
			rt.metrics.RecordGuidanceGeneration(serviceName, time.Since(start))
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) searchGuidance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	entries, err := rt.guidanceUC.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.CachedGuidance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"guidance": entries})
}

func (rt *Router) guidanceStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := rt.guidanceUC.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// generateGuidance regenerates guidance for one jurisdiction from an uploaded
// source table, bypassing the configured source.
func (rt *Router) generateGuidance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	filename, data, err := readFormFile(r, "file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	jurisdiction := r.FormValue("jurisdiction")
	if strings.TrimSpace(jurisdiction) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "form field 'jurisdiction' is required"})
		return
	}

	result, err := rt.guidanceUC.GenerateFromUpload(r.Context(), data, formatFromFilename(filename), jurisdiction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) deleteGuidance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/guidance/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "guidance id is required"})
		return
	}

	if err := rt.guidanceUC.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if ownerID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "X-User-Id header is required"})
		return "", false
	}
	return ownerID, true
}

func pagination(r *http.Request, defaultLimit int) (int, int) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}
	return skip, limit
}

func formatFromFilename(filename string) ports.SourceFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return ports.FormatXLSX
	case ".xls":
		return ports.FormatXLS
	default:
		return ports.FormatCSV
	}
}

func readFormFile(r *http.Request, field string) (string, []byte, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func readOptionalFormFile(r *http.Request, field string) (string, []byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, "", err
	}
	return header.Filename, data, contentTypeOf(header), nil
}

func contentTypeOf(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/pdf"
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
