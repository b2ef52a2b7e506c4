/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a catalog,
	locations and stock so that count uploads and partial counts can be
	demonstrated end to end.

AVAILABLE SCENARIOS:

	single-store:   One location, a small catalog, everything in stock
	mixed-exceptions: Stock gaps and catalog gaps for every line status
	partial-aging:  Prior closings so partial counts pick the oldest stock first

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and drop open sessions
 2. Create parts
 3. Create locations
 4. Set stock quantities
 5. Optionally commit prior closings

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mixed-exceptions"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to loadScenario

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - store/sqlite/sqlite.go: Reset, SavePart, SaveLocation, SetStock
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/stock-count/count"
	"github.com/warp/stock-count/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-store",
		Name:        "Single Store",
		Description: "One location with ten stocked parts; uploads mostly match",
	},
	{
		ID:          "mixed-exceptions",
		Name:        "Mixed Exceptions",
		Description: "Two locations with stock gaps and uncatalogued references",
	},
	{
		ID:          "partial-aging",
		Name:        "Partial Count Aging",
		Description: "Prior closings so partial counts start with the least recently counted stock",
	},
}

// demoUser signs the closings a scenario commits.
const demoUser count.UserID = "demo"

type stockRow struct {
	reference string
	quantity  int
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.RLock()
	current := h.currentScenario
	h.scenarioMu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          current,
		Name:        current,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.writeDomainError(w, r, "loadScenario", fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data and open sessions.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.writeDomainError(w, r, "resetDatabase", "Failed to reset database", err)
		return
	}
	h.scenarioMu.Lock()
	h.currentScenario = ""
	h.scenarioMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.reset(ctx); err != nil {
		return err
	}
	h.currentScenario = ""

	var err error
	switch id {
	case "single-store":
		err = h.loadSingleStoreScenario(ctx)
	case "mixed-exceptions":
		err = h.loadMixedExceptionsScenario(ctx)
	case "partial-aging":
		err = h.loadPartialAgingScenario(ctx)
	default:
		err = fmt.Errorf("unknown scenario %q", id)
	}
	if err != nil {
		return err
	}

	h.currentScenario = id
	h.Logger.WithField("scenario", id).Info("loaded demo scenario")
	return nil
}

// reset wipes the store, drops open sessions and invalidates cached lookups.
func (h *Handler) reset(ctx context.Context) error {
	locations, err := h.Store.ListLocations(ctx)
	if err != nil {
		return err
	}
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if n := h.Sessions.Clear(); n > 0 {
		h.Logger.WithField("sessions", n).Info("dropped open sessions on reset")
	}
	if h.invalidator != nil {
		for _, loc := range locations {
			h.invalidator.Invalidate(ctx, loc.ID)
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var demoParts = []sqlite.Part{
	{Reference: "BOLT-M6", Name: "Hex bolt M6x20"},
	{Reference: "BOLT-M8", Name: "Hex bolt M8x30"},
	{Reference: "NUT-M6", Name: "Hex nut M6"},
	{Reference: "NUT-M8", Name: "Hex nut M8"},
	{Reference: "WASH-6", Name: "Flat washer 6mm"},
	{Reference: "WASH-8", Name: "Flat washer 8mm"},
	{Reference: "SCR-W4", Name: "Wood screw 4x40"},
	{Reference: "ANCH-10", Name: "Wall anchor 10mm"},
	{Reference: "HING-75", Name: "Butt hinge 75mm"},
	{Reference: "BRKT-L", Name: "L-bracket 50mm"},
	{Reference: "DRILL-6", Name: "HSS drill bit 6mm"},
	{Reference: "TAPE-50", Name: "Duct tape 50m"},
}

func (h *Handler) loadSingleStoreScenario(ctx context.Context) error {
	if err := h.seedParts(ctx, demoParts[:10]); err != nil {
		return err
	}
	return h.seedLocation(ctx, count.Location{ID: "store-01", Name: "Main Street Store"}, []stockRow{
		{"BOLT-M6", 120},
		{"BOLT-M8", 80},
		{"NUT-M6", 150},
		{"NUT-M8", 90},
		{"WASH-6", 200},
		{"WASH-8", 140},
		{"SCR-W4", 300},
		{"ANCH-10", 60},
		{"HING-75", 24},
		{"BRKT-L", 36},
	})
}

// loadMixedExceptionsScenario leaves DRILL-6 and TAPE-50 out of stock at
// store-02 and keeps no catalog entry for anything starting with "X-", so an
// upload produces every status.
func (h *Handler) loadMixedExceptionsScenario(ctx context.Context) error {
	if err := h.seedParts(ctx, demoParts); err != nil {
		return err
	}
	if err := h.seedLocation(ctx, count.Location{ID: "store-01", Name: "Main Street Store"}, []stockRow{
		{"BOLT-M6", 120},
		{"NUT-M6", 150},
		{"WASH-6", 200},
		{"DRILL-6", 12},
		{"TAPE-50", 8},
	}); err != nil {
		return err
	}
	return h.seedLocation(ctx, count.Location{ID: "store-02", Name: "Harbor Warehouse"}, []stockRow{
		{"BOLT-M8", 400},
		{"NUT-M8", 380},
		{"WASH-8", 0},
		{"HING-75", 48},
	})
}

// loadPartialAgingScenario commits two earlier closings at store-01 so the
// stock they covered carries a last-counted stamp; the rest has never been counted.
func (h *Handler) loadPartialAgingScenario(ctx context.Context) error {
	if err := h.loadSingleStoreScenario(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	rounds := []struct {
		at     time.Time
		counts []count.CountedLine
	}{
		{now.AddDate(0, 0, -30), []count.CountedLine{{Reference: "BOLT-M6", CountedQuantity: 118}, {Reference: "BOLT-M8", CountedQuantity: 80}}},
		{now.AddDate(0, 0, -7), []count.CountedLine{{Reference: "NUT-M6", CountedQuantity: 150}, {Reference: "SCR-W4", CountedQuantity: 296}}},
	}
	for _, round := range rounds {
		if err := h.commitDemoClosing(ctx, "store-01", round.counts, round.at); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedParts(ctx context.Context, parts []sqlite.Part) error {
	for _, p := range parts {
		if err := h.Store.SavePart(ctx, p); err != nil {
			return fmt.Errorf("save part %s: %w", p.Reference, err)
		}
	}
	return nil
}

func (h *Handler) seedLocation(ctx context.Context, loc count.Location, stock []stockRow) error {
	if err := h.Store.SaveLocation(ctx, loc); err != nil {
		return fmt.Errorf("save location %s: %w", loc.ID, err)
	}
	for _, s := range stock {
		if err := h.Store.SetStock(ctx, loc.ID, s.reference, s.quantity); err != nil {
			return fmt.Errorf("set stock %s/%s: %w", loc.ID, s.reference, err)
		}
	}
	return nil
}

func (h *Handler) commitDemoClosing(ctx context.Context, locationID count.LocationID, counted []count.CountedLine, at time.Time) error {
	lines, err := count.ReconcileWithLookup(ctx, h.Store, locationID, counted)
	if err != nil {
		return err
	}
	s := count.NewSession("", locationID, count.TypeFull, lines)
	closing := count.BuildClosing(s, count.SubmitRequest{UserID: demoUser, Notes: "demo history"}, at)
	_, err = h.Store.CommitClosing(ctx, closing)
	return err
}
