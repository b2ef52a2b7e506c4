/*
handlers.go - HTTP API handlers for inventory count reconciliation

PURPOSE:
  Exposes the count engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the count, ingest and store packages.

ENDPOINTS:
  Locations:
    GET    /api/locations                          List locations
    POST   /api/locations/{locationID}/counts      Upload count files (multipart "files")
    POST   /api/locations/{locationID}/counts/partial  Seed a partial count (?limit=)
    GET    /api/locations/{locationID}/closings    Closing history (?page=&page_size=)

  Sessions:
    GET    /api/sessions/{sessionID}               Header, totals, status breakdown
    GET    /api/sessions/{sessionID}/lines         Filtered page of lines
    PUT    /api/sessions/{sessionID}/lines/{reference}  Manual / counted quantity
    POST   /api/sessions/{sessionID}/close         Submit (user from X-User-ID)
    DELETE /api/sessions/{sessionID}               Abandon

  Closings:
    GET    /api/closings/{closingID}               Closing detail with items

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: System of record (locations, history, partial seeding, scenarios)
  - Lookup: Catalog/stock lookup, usually the cached wrapper around Store
  - Submitter: Commits sessions and invalidates the lookup cache
  - Sessions: Open review sessions

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ingest, reconcile, session, submit)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unreadable uploads
  - 404: Location, session, line or closing not found
  - 409: Session already closed
  - 413: Upload too large
  - 503: Lookup or commit failed; safe to retry
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - sessions.go: Session registry
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-count/config"
	"github.com/warp/stock-count/count"
	"github.com/warp/stock-count/ingest"
	"github.com/warp/stock-count/store/sqlite"
)

// DefaultPartialLimit is the number of stock rows in a partial count when
// the request does not say.
const DefaultPartialLimit = 20

// UserHeader carries the id of the user closing a session.
const UserHeader = "X-User-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures a Handler. Zero values fall back to defaults.
type Options struct {
	Lookup          count.Lookup
	Invalidator     count.Invalidator
	Logger          logrus.FieldLogger
	HeaderRows      int
	MaxUploadBytes  int64
	DefaultPageSize int
	Clock           func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Lookup    count.Lookup
	Submitter *count.Submitter
	Ingester  *ingest.Ingester
	Sessions  *Registry
	Logger    logrus.FieldLogger

	invalidator     count.Invalidator
	maxUploadBytes  int64
	defaultPageSize int
	validate        *validator.Validate

	// Track currently loaded scenario
	scenarioMu      sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler over store.
func NewHandler(store *sqlite.Store, opts Options) *Handler {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = store
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	var subOpts []count.SubmitterOption
	if opts.Invalidator != nil {
		subOpts = append(subOpts, count.WithInvalidator(opts.Invalidator))
	}
	if opts.Clock != nil {
		subOpts = append(subOpts, count.WithClock(opts.Clock))
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	pageSize := opts.DefaultPageSize
	if pageSize <= 0 {
		pageSize = count.DefaultPageSize
	}

	return &Handler{
		Store:           store,
		Lookup:          lookup,
		Submitter:       count.NewSubmitter(store, subOpts...),
		Ingester:        ingest.New(ingest.Options{HeaderRows: opts.HeaderRows}),
		Sessions:        NewRegistry(),
		Logger:          logger,
		invalidator:     opts.Invalidator,
		maxUploadBytes:  maxUpload,
		defaultPageSize: pageSize,
		validate:        validator.New(),
	}
}

// =============================================================================
// LOCATION HANDLERS
// =============================================================================

// ListLocations returns all locations.
// GET /api/locations
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.Store.ListLocations(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "listLocations", "Failed to list locations", err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

// CreateCount ingests uploaded files and opens a full review session.
// POST /api/locations/{locationID}/counts
func (h *Handler) CreateCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	locationID := count.LocationID(chi.URLParam(r, "locationID"))
	if _, err := h.Store.GetLocation(ctx, locationID); err != nil {
		h.writeDomainError(w, r, "createCount", "Unknown location", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Expected a multipart form with files", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded", nil)
		return
	}

	files, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}

	result, err := h.Ingester.Ingest(files)
	for _, f := range result.Failures {
		h.Logger.WithFields(logrus.Fields{
			"location_id": locationID,
			"file":        f.File,
		}).Warnf("skipped unreadable count file: %v", f.Err)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, struct {
			ErrorResponse
			Ingest *IngestReportDTO `json:"ingest"`
		}{
			ErrorResponse: ErrorResponse{Error: "No countable rows in upload", Details: err.Error()},
			Ingest:        toIngestReport(result),
		})
		return
	}

	lines, err := count.ReconcileWithLookup(ctx, h.Lookup, locationID, result.Lines)
	if err != nil {
		h.writeDomainError(w, r, "createCount", "Failed to look up stock", err)
		return
	}

	s := h.Sessions.Create(locationID, count.TypeFull, lines)
	h.Logger.WithFields(logrus.Fields{
		"location_id": locationID,
		"session_id":  s.ID,
		"lines":       s.Len(),
		"files":       len(result.Files),
	}).Info("opened count session")

	dto := toSessionDTO(s, h.defaultPageSize)
	dto.Ingest = toIngestReport(result)
	writeJSON(w, http.StatusCreated, dto)
}

// openUploads opens every uploaded part. The returned func closes them.
func openUploads(headers []*multipart.FileHeader) ([]ingest.File, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, ingest.File{Name: fh.Filename, Data: f})
	}
	return files, closeAll, nil
}

// CreatePartialCount opens a partial review session seeded from stock.
// POST /api/locations/{locationID}/counts/partial?limit=20
func (h *Handler) CreatePartialCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	locationID := count.LocationID(chi.URLParam(r, "locationID"))

	limit, err := queryInt(r, "limit", DefaultPartialLimit)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	if _, err := h.Store.GetLocation(ctx, locationID); err != nil {
		h.writeDomainError(w, r, "createPartialCount", "Unknown location", err)
		return
	}

	facts, err := h.Store.PartialCountItems(ctx, locationID, limit)
	if err != nil {
		h.writeDomainError(w, r, "createPartialCount", "Failed to load stock", count.WrapLookupError(locationID, err))
		return
	}

	s := h.Sessions.Create(locationID, count.TypePartial, count.SeedPartial(facts))
	h.Logger.WithFields(logrus.Fields{
		"location_id": locationID,
		"session_id":  s.ID,
		"lines":       s.Len(),
	}).Info("opened partial count session")

	writeJSON(w, http.StatusCreated, toSessionDTO(s, h.defaultPageSize))
}

// ListClosings returns closing history for a location, most recent first.
// GET /api/locations/{locationID}/closings?page=1&page_size=10
func (h *Handler) ListClosings(w http.ResponseWriter, r *http.Request) {
	locationID := count.LocationID(chi.URLParam(r, "locationID"))

	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return
	}
	pageSize, err := queryInt(r, "page_size", h.defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page_size", err)
		return
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = h.defaultPageSize
	}

	history, err := h.Store.ListClosingHistory(r.Context(), locationID, page, pageSize)
	if err != nil {
		h.writeDomainError(w, r, "listClosings", "Failed to list closings", err)
		return
	}
	writeJSON(w, http.StatusOK, ClosingPageDTO{
		Items:    history.Items,
		Total:    history.Total,
		Page:     page,
		PageSize: pageSize,
	})
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// GetSession returns a session header with fresh totals.
// GET /api/sessions/{sessionID}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := count.SessionID(chi.URLParam(r, "sessionID"))

	var dto SessionDTO
	err := h.Sessions.With(id, func(s *count.Session) error {
		dto = toSessionDTO(s, h.defaultPageSize)
		return nil
	})
	if err != nil {
		h.writeDomainError(w, r, "getSession", "Session not found", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListLines returns a page of the session's lines. A filter different from
// the session's current one resets the page to 1 unless page is given.
// GET /api/sessions/{sessionID}/lines?reference=&difference=&in_catalog=&in_stock=&status=&page=&page_size=
func (h *Handler) ListLines(w http.ResponseWriter, r *http.Request) {
	id := count.SessionID(chi.URLParam(r, "sessionID"))

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	pageSize, err := queryInt(r, "page_size", h.defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page_size", err)
		return
	}
	page, err := queryInt(r, "page", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return
	}

	var dto LinePageDTO
	err = h.Sessions.With(id, func(s *count.Session) error {
		if filter.Normalized() != s.CurrentFilter() {
			s.SetFilter(filter)
		}
		if page > 0 {
			s.SetPage(page)
		}
		dto = toLinePageDTO(s.CurrentPage(pageSize))
		return nil
	})
	if err != nil {
		h.writeDomainError(w, r, "listLines", "Session not found", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func parseFilter(r *http.Request) (count.Filter, error) {
	q := r.URL.Query()
	var (
		f   count.Filter
		err error
	)
	f.Reference = strings.TrimSpace(q.Get("reference"))
	if f.Difference, err = count.ParseSignFilter(q.Get("difference")); err != nil {
		return f, err
	}
	if f.InCatalog, err = count.ParseBoolFilter(q.Get("in_catalog")); err != nil {
		return f, err
	}
	if f.InStock, err = count.ParseBoolFilter(q.Get("in_stock")); err != nil {
		return f, err
	}
	if f.Status, err = count.ParseStatusFilter(q.Get("status")); err != nil {
		return f, err
	}
	return f, nil
}

// UpdateLine applies a manual (and, for partial counts, counted) quantity.
// PUT /api/sessions/{sessionID}/lines/{reference}
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id := count.SessionID(chi.URLParam(r, "sessionID"))
	// References may contain "/", sent as %2F; chi routes on RawPath and
	// leaves the parameter escaped.
	reference, err := url.PathUnescape(chi.URLParam(r, "reference"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reference", err)
		return
	}

	var req UpdateLineRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var dto LineUpdateDTO
	err = h.Sessions.With(id, func(s *count.Session) error {
		if err := s.SetQuantities(reference, req.CountedQuantity, req.ManualQuantity); err != nil {
			return err
		}
		line, _ := s.Line(reference)
		dto = LineUpdateDTO{Line: toLineDTO(line), Totals: s.Aggregates()}
		return nil
	})
	if err != nil {
		h.writeDomainError(w, r, "updateLine", "Failed to update line", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// CloseSession submits the session as one atomic closing.
// POST /api/sessions/{sessionID}/close
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := count.SessionID(chi.URLParam(r, "sessionID"))
	userID := count.UserID(strings.TrimSpace(r.Header.Get(UserHeader)))

	var req CloseSessionRequest
	if r.ContentLength != 0 {
		if err := h.decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var closing count.CountClosing
	err := h.Sessions.With(id, func(s *count.Session) error {
		var err error
		closing, err = h.Submitter.Submit(r.Context(), s, count.SubmitRequest{UserID: userID, Notes: req.Notes})
		if err != nil {
			return err
		}
		h.Sessions.Remove(id)
		return nil
	})
	if err != nil {
		h.writeDomainError(w, r, "closeSession", "Failed to close session", err)
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"location_id":             closing.LocationID,
		"closing_id":              closing.ID,
		"user_id":                 closing.UserID,
		"type":                    closing.Type,
		"total_items_audited":     closing.TotalItemsAudited,
		"total_differences_found": closing.TotalDifferencesFound,
	}).Info("committed count closing")
	writeJSON(w, http.StatusCreated, closing)
}

// AbandonSession discards a session without submitting it.
// DELETE /api/sessions/{sessionID}
func (h *Handler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	id := count.SessionID(chi.URLParam(r, "sessionID"))

	err := h.Sessions.With(id, func(s *count.Session) error {
		s.Abandon()
		h.Sessions.Remove(id)
		return nil
	})
	if err != nil {
		h.writeDomainError(w, r, "abandonSession", "Session not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CLOSING HANDLERS
// =============================================================================

// GetClosing returns a closing with its items.
// GET /api/closings/{closingID}
func (h *Handler) GetClosing(w http.ResponseWriter, r *http.Request) {
	id := count.ClosingID(chi.URLParam(r, "closingID"))

	closing, err := h.Store.GetClosing(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "getClosing", "Closing not found", err)
		return
	}
	writeJSON(w, http.StatusOK, closing)
}

// Health reports whether the database is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"open_sessions": h.Sessions.Len(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, count.ErrSessionClosed):
		return http.StatusConflict
	case count.IsNotFound(err):
		return http.StatusNotFound
	case count.IsClientError(err):
		return http.StatusBadRequest
	case count.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeDomainError logs server-side failures and writes the mapped status.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, funcName, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		config.LogError(h.Logger, "api", funcName, r.URL.Path, map[string]any{
			"retryable": count.IsRetryable(err),
		}, err)
	}
	writeError(w, status, message, err)
}

func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return h.validate.Struct(dst)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a number", key, v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
