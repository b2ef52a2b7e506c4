/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Sessions:
    SessionDTO, LinePageDTO, UpdateLineRequest, LineUpdateDTO

  Closings:
    CloseSessionRequest, ClosingDTO (count.CountClosing), count.ClosingPage

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request bodies carry validator tags and are checked by decodeAndValidate.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/stock-count/count"
	"github.com/warp/stock-count/ingest"
)

// =============================================================================
// SESSIONS
// =============================================================================

// SessionDTO is the header of a review session.
type SessionDTO struct {
	ID         count.SessionID  `json:"id"`
	LocationID count.LocationID `json:"location_id"`
	Type       count.Type       `json:"type"`
	CreatedAt  time.Time        `json:"created_at"`
	Totals     count.Totals     `json:"totals"`
	Breakdown  count.Breakdown  `json:"breakdown"`
	Filter     FilterDTO        `json:"filter"`
	Page       int              `json:"page"`

	// Set only when the session was created from uploaded files.
	Ingest *IngestReportDTO `json:"ingest,omitempty"`
}

// FilterDTO is the current view filter of a session.
type FilterDTO struct {
	Reference  string `json:"reference,omitempty"`
	Difference string `json:"difference"`
	InCatalog  string `json:"in_catalog"`
	InStock    string `json:"in_stock"`
	Status     string `json:"status,omitempty"`
}

// IngestReportDTO describes what was taken from each uploaded file.
type IngestReportDTO struct {
	Files    []ingest.FileReport `json:"files"`
	Failures []FileFailureDTO    `json:"failures,omitempty"`
}

// FileFailureDTO is a file that could not be read.
type FileFailureDTO struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// LineDTO is one reconciled line with its derived status.
type LineDTO struct {
	count.ReconciledLine
	Status count.Status `json:"status"`
}

// LinePageDTO is one page of the filtered lines.
type LinePageDTO struct {
	Items      []LineDTO `json:"items"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalItems int       `json:"total_items"`
	TotalPages int       `json:"total_pages"`
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
}

// UpdateLineRequest sets the manual and/or counted quantity of a line.
// Values are strings so that an empty value can clear the quantity.
type UpdateLineRequest struct {
	ManualQuantity  *string `json:"manual_quantity" validate:"required_without=CountedQuantity"`
	CountedQuantity *string `json:"counted_quantity" validate:"required_without=ManualQuantity"`
}

// LineUpdateDTO is returned after an override.
type LineUpdateDTO struct {
	Line   LineDTO      `json:"line"`
	Totals count.Totals `json:"totals"`
}

// =============================================================================
// CLOSINGS
// =============================================================================

// CloseSessionRequest is the optional body of a close call.
type CloseSessionRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

// ClosingPageDTO is one page of closing history.
type ClosingPageDTO struct {
	Items    []count.ClosingSummary `json:"items"`
	Total    int                    `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request body for loading a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLineDTO(l count.ReconciledLine) LineDTO {
	return LineDTO{ReconciledLine: l, Status: l.Status()}
}

func toLineDTOs(lines []count.ReconciledLine) []LineDTO {
	out := make([]LineDTO, len(lines))
	for i, l := range lines {
		out[i] = toLineDTO(l)
	}
	return out
}

func toFilterDTO(f count.Filter) FilterDTO {
	return FilterDTO{
		Reference:  f.Reference,
		Difference: string(f.Difference),
		InCatalog:  string(f.InCatalog),
		InStock:    string(f.InStock),
		Status:     string(f.Status),
	}
}

func toSessionDTO(s *count.Session, pageSize int) SessionDTO {
	return SessionDTO{
		ID:         s.ID,
		LocationID: s.LocationID,
		Type:       s.Type,
		CreatedAt:  s.CreatedAt,
		Totals:     s.Aggregates(),
		Breakdown:  s.Breakdown(),
		Filter:     toFilterDTO(s.CurrentFilter()),
		Page:       s.CurrentPage(pageSize).Page,
	}
}

func toIngestReport(r ingest.Result) *IngestReportDTO {
	report := &IngestReportDTO{Files: r.Files}
	if report.Files == nil {
		report.Files = []ingest.FileReport{}
	}
	for _, f := range r.Failures {
		report.Failures = append(report.Failures, FileFailureDTO{File: f.File, Error: f.Err.Error()})
	}
	return report
}

func toLinePageDTO(p count.Page) LinePageDTO {
	return LinePageDTO{
		Items:      toLineDTOs(p.Items),
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages,
		StartIndex: p.StartIndex,
		EndIndex:   p.EndIndex,
	}
}
