/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for testing and demos. Each scenario creates items and replays a
	sequence of movements through the stock service, so every invariant
	(no negative stock, balance == fold) holds for demo data too.

AVAILABLE SCENARIOS:

	warehouse-basics: Three items with a week of receipts and picks
	low-stock:        Items walked down through limited, low and critical
	corrections:      A mis-keyed pick and its offsetting correction

HOW SCENARIOS WORK:
 1. Create the scenario's items (ids are prefixed with the scenario id)
 2. Commit each step in order, back-dated by DaysAgo
 3. Steps with Correct set offset the previous entry of that item

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "low-stock"}

	Loading a scenario twice returns 409: its items already exist.

ADDING NEW SCENARIOS:
 1. Add a scenario value to 'scenarios' with its items and steps

SEE ALSO:
  - handlers.go: Commit / Correct endpoints the steps mirror
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Items       int    `json:"items"`
	Movements   int    `json:"movements"`
}

type scenarioStep struct {
	Item     string
	Type     stock.MovementType
	Quantity int
	Note     string
	DaysAgo  int
	// Correct offsets the item's previous entry instead of committing Type/Quantity.
	Correct bool
}

type scenario struct {
	ID          string
	Name        string
	Description string
	Items       []stock.NewItem
	Steps       []scenarioStep
}

var scenarios = []scenario{
	{
		ID:          "warehouse-basics",
		Name:        "Warehouse Basics",
		Description: "Three items with a week of receipts and picks",
		Items: []stock.NewItem{
			{ID: "bolt-m8", Code: "BLT-M8", Name: "Hex Bolt M8", CategoryID: "fasteners", BaseStock: 120},
			{ID: "washer-m8", Code: "WSH-M8", Name: "Flat Washer M8", CategoryID: "fasteners", BaseStock: 300},
			{ID: "drill-10", Code: "DRL-10", Name: "Drill Bit 10mm", CategoryID: "tools", BaseStock: 25},
		},
		Steps: []scenarioStep{
			{Item: "bolt-m8", Type: stock.StockOut, Quantity: 40, Note: "Order 1001", DaysAgo: 7},
			{Item: "washer-m8", Type: stock.StockOut, Quantity: 80, Note: "Order 1001", DaysAgo: 7},
			{Item: "drill-10", Type: stock.StockOut, Quantity: 5, Note: "Workshop", DaysAgo: 6},
			{Item: "bolt-m8", Type: stock.StockIn, Quantity: 60, Note: "Restock from supplier", DaysAgo: 5},
			{Item: "bolt-m8", Type: stock.StockOut, Quantity: 25, Note: "Order 1002", DaysAgo: 3},
			{Item: "washer-m8", Type: stock.StockIn, Quantity: 100, Note: "Restock from supplier", DaysAgo: 2},
			{Item: "drill-10", Type: stock.StockOut, Quantity: 4, Note: "Order 1003", DaysAgo: 1},
		},
	},
	{
		ID:          "low-stock",
		Name:        "Low Stock",
		Description: "Items walked down through limited, low and critical",
		Items: []stock.NewItem{
			{ID: "glove-l", Code: "GLV-L", Name: "Work Gloves L", CategoryID: "safety", BaseStock: 14},
			{ID: "mask-ffp2", Code: "MSK-FFP2", Name: "FFP2 Mask", CategoryID: "safety", BaseStock: 11},
		},
		Steps: []scenarioStep{
			{Item: "glove-l", Type: stock.StockOut, Quantity: 5, Note: "Site A", DaysAgo: 4},
			{Item: "glove-l", Type: stock.StockOut, Quantity: 4, Note: "Site B", DaysAgo: 3},
			{Item: "glove-l", Type: stock.StockOut, Quantity: 4, Note: "Site A", DaysAgo: 1},
			{Item: "mask-ffp2", Type: stock.StockOut, Quantity: 2, Note: "Site C", DaysAgo: 2},
			{Item: "mask-ffp2", Type: stock.StockOut, Quantity: 9, Note: "Site C", DaysAgo: 1},
		},
	},
	{
		ID:          "corrections",
		Name:        "Corrections",
		Description: "A mis-keyed pick and its offsetting correction",
		Items: []stock.NewItem{
			{ID: "cable-5m", Code: "CBL-5M", Name: "Cable 5m", CategoryID: "electrical", BaseStock: 40},
		},
		Steps: []scenarioStep{
			{Item: "cable-5m", Type: stock.StockOut, Quantity: 30, Note: "Order 2001 (should have been 3)", DaysAgo: 2},
			{Item: "cable-5m", Correct: true, Note: "Mis-keyed quantity", DaysAgo: 2},
			{Item: "cable-5m", Type: stock.StockOut, Quantity: 3, Note: "Order 2001", DaysAgo: 2},
		},
	},
}

func (s scenario) dto() ScenarioDTO {
	return ScenarioDTO{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Items:       len(s.Items),
		Movements:   len(s.Steps),
	}
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.dto()
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario creates a scenario's items and replays its movements.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sc, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	if err := h.loadScenario(r.Context(), sc, time.Now().UTC()); err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": sc.ID})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func scenarioItemID(sc scenario, item string) stock.ItemID {
	return stock.ItemID(sc.ID + "-" + item)
}

func (h *Handler) loadScenario(ctx context.Context, sc scenario, now time.Time) error {
	for _, n := range sc.Items {
		n.ID = scenarioItemID(sc, string(n.ID))
		if _, err := h.Service.CreateItem(ctx, n); err != nil {
			return fmt.Errorf("scenario %s: item %s: %w", sc.ID, n.ID, err)
		}
	}

	last := make(map[stock.ItemID]stock.EntryID)
	for i, step := range sc.Steps {
		itemID := scenarioItemID(sc, step.Item)

		var (
			res *stock.CommitResult
			err error
		)
		if step.Correct {
			res, err = h.Service.Correct(ctx, stock.CorrectionRequest{
				ItemID:  itemID,
				EntryID: last[itemID],
				ActorID: "scenario",
				Note:    step.Note,
			})
		} else {
			res, err = h.Service.Commit(ctx, stock.Movement{
				ItemID:     itemID,
				Type:       step.Type,
				Quantity:   step.Quantity,
				Note:       step.Note,
				OccurredAt: now.AddDate(0, 0, -step.DaysAgo),
				ActorID:    "scenario",
				TraceToken: fmt.Sprintf("%s#%d", sc.ID, i+1),
			})
		}
		if err != nil {
			return fmt.Errorf("scenario %s: step %d: %w", sc.ID, i+1, err)
		}
		last[itemID] = res.Entry.ID
	}
	return nil
}
