package api

import (
	"net/http"

	"github.com/warp/site-ledger/export"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/stock"
)

// Stock endpoints:
//
//	GET    /api/projects/{projectID}/items            List items
//	POST   /api/projects/{projectID}/items            Register item
//	GET    /api/projects/{projectID}/items/low        Low-stock items
//	GET    /api/projects/{projectID}/items/audit      Stored vs derived balances
//	GET    /api/projects/{projectID}/movements        List (?item=&party=&kind=&category=)
//	GET    /api/items/{id}                            Get item
//	PUT    /api/items/{id}                            Edit descriptive fields
//	POST   /api/items/{id}/movements                  Record entry/exit/internal use
//	POST   /api/items/{id}/correction                 Set balance via adjustment
//	GET    /api/items/{id}/audit                      Audit one item
//	POST   /api/items/{id}/rebuild                    Rewrite balance from history
//	DELETE /api/movements/{id}                        Reverse a movement

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	items, err := h.Stock.Items(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, export.StockBalances(items), toStockItemDTOs(items))
}

func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	items, err := h.Stock.LowStockItems(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	table := export.StockBalances(items)
	table.Name = "low_stock"
	h.respond(w, r, table, toStockItemDTOs(items))
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	var req StockItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.Stock.RegisterItem(r.Context(), stock.NewItem{
		ProjectID:      projectID,
		Name:           req.Name,
		Category:       req.Category,
		Unit:           req.Unit,
		AlertThreshold: req.AlertThreshold,
		AlertEnabled:   req.AlertEnabled,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeItem(w, r, http.StatusCreated, id)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	h.writeItem(w, r, http.StatusOK, generic.ItemID(id))
}

// UpdateItem keeps the stored threshold when the body omits it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req StockItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	current, err := h.Stock.Item(r.Context(), generic.ItemID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	item := *current
	item.Name = req.Name
	item.Category = req.Category
	item.Unit = req.Unit
	item.AlertEnabled = req.AlertEnabled
	if req.AlertThreshold.Valid {
		item.AlertThreshold = req.AlertThreshold.Decimal
	}

	if err := h.Stock.UpdateItem(r.Context(), item); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeItem(w, r, http.StatusOK, item.ID)
}

func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req MovementRequest
	req.ItemID = generic.ItemID(id)
	if !h.decode(w, r, &req) {
		return
	}
	if req.ItemID != generic.ItemID(id) {
		writeError(w, http.StatusBadRequest, "item_id does not match the URL", nil)
		return
	}

	in := stock.NewMovement{
		ItemID:      req.ItemID,
		Quantity:    req.Quantity,
		Kind:        generic.MovementKind(req.Kind),
		Date:        mustDate(req.Date),
		Origin:      req.Origin,
		Destination: req.Destination,
		Invoice:     req.Invoice,
	}
	mid, err := h.Stock.RecordMovement(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dto := toMovementDTO(generic.StockMovement{
		ID:          mid,
		ItemID:      in.ItemID,
		Date:        in.Date,
		Kind:        in.Kind,
		Quantity:    in.Quantity,
		Origin:      in.Origin,
		Destination: in.Destination,
		Invoice:     in.Invoice,
	})
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) ReverseMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	rev, err := h.Stock.ReverseMovement(r.Context(), generic.MovementID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReversalDTO(rev))
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	rows, err := h.Stock.ListMovements(r.Context(), generic.MovementFilter{
		ProjectID: projectID,
		Item:      q.Get("item"),
		Party:     q.Get("party"),
		Kind:      generic.MovementKind(q.Get("kind")),
		Category:  q.Get("category"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]MovementDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toMovementRowDTO(row)
	}
	h.respond(w, r, export.Movements(rows), dtos)
}

func (h *Handler) CorrectBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req CorrectionRequest
	if !h.decode(w, r, &req) {
		return
	}

	date := mustDate(req.Date)
	if date.IsZero() {
		date = generic.Today()
	}
	c, err := h.Stock.CorrectBalance(r.Context(), generic.ItemID(id), req.Balance, date, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrectionDTO(c))
}

func (h *Handler) AuditItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	report, err := h.Stock.Audit(r.Context(), generic.ItemID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

func (h *Handler) AuditProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	reports, err := h.Stock.AuditProject(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]AuditDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toAuditDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RebuildItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	report, err := h.Stock.Rebuild(r.Context(), generic.ItemID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

func (h *Handler) writeItem(w http.ResponseWriter, r *http.Request, status int, id generic.ItemID) {
	item, err := h.Stock.Item(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toStockItemDTO(*item))
}
