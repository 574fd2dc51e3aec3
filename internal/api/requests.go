package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/threadlink/threadlink/internal/auth"
	"github.com/threadlink/threadlink/internal/events"
	"github.com/threadlink/threadlink/internal/model"
	"github.com/threadlink/threadlink/internal/store"
)

// RequestsHandler handles orphanage requests and their fulfillment.
type RequestsHandler struct {
	DB     *sql.DB
	Events events.Publisher
}

type createRequestRequest struct {
	Items []model.LineInput `json:"items"`
	Notes string            `json:"notes"`
}

type requestEvent struct {
	ID             int64             `json:"id"`
	OrphanageID    int64             `json:"orphanage_id"`
	Status         string            `json:"status"`
	PreviousStatus string            `json:"previous_status,omitempty"`
	TotalQuantity  int               `json:"total_quantity"`
	Items          []model.LineInput `json:"items,omitempty"`
}

func newRequestEvent(req *model.Request, previous string) requestEvent {
	ev := requestEvent{
		ID:             req.ID,
		OrphanageID:    req.OrphanageID,
		Status:         req.Status,
		PreviousStatus: previous,
		TotalQuantity:  req.TotalQuantity,
	}
	for _, it := range req.Items {
		ev.Items = append(ev.Items, model.LineInput{DonationID: it.DonationID, RequestedQuantity: it.RequestedQuantity})
	}
	return ev
}

// Create handles POST /api/orphanage-requests.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())

	var body createRequestRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := store.CreateRequest(r.Context(), h.DB, caller.ID, body.Items, body.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("request created", "user", caller.Email, "request", req.ID, "total_quantity", req.TotalQuantity)
	publish(r, h.Events, events.RequestCreated, newRequestEvent(req, ""))
	jsonResponse(w, http.StatusCreated, req)
}

// ListMine handles GET /api/orphanage-requests/my-requests.
func (h *RequestsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())
	reqs, err := store.ListRequestsByOrphanage(r.Context(), h.DB, caller.ID)
	writeRequests(w, r, reqs, err)
}

// List handles GET /api/orphanage-requests?status=.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	reqs, err := store.ListRequests(r.Context(), h.DB, r.URL.Query().Get("status"))
	writeRequests(w, r, reqs, err)
}

func writeRequests(w http.ResponseWriter, r *http.Request, reqs []model.Request, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []model.Request{}
	}
	jsonResponse(w, http.StatusOK, reqs)
}

// Get handles GET /api/orphanage-requests/{id}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "request")
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := store.GetRequest(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req == nil {
		writeError(w, r, &model.NotFoundError{Entity: "request", ID: id})
		return
	}
	if err := requireOwnerOrAdmin(auth.CallerFrom(r.Context()), req.OrphanageID); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// SetStatus handles PUT /api/orphanage-requests/{id}/status. Approval
// deducts the requested quantities from inventory.
func (h *RequestsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "request")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body statusRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, previous, err := store.SetRequestStatus(r.Context(), h.DB, id, body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.statusChanged(r, req, previous)
	jsonResponse(w, http.StatusOK, req)
}

// Fulfill handles POST /api/orphanage-requests/{id}/fulfill.
func (h *RequestsHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "request")
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, previous, err := store.FulfillRequest(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.statusChanged(r, req, previous)
	jsonResponse(w, http.StatusOK, req)
}

func (h *RequestsHandler) statusChanged(r *http.Request, req *model.Request, previous string) {
	if previous == req.Status {
		return
	}
	caller := auth.CallerFrom(r.Context())
	slog.Info("request status changed", "user", caller.Email, "request", req.ID, "from", previous, "to", req.Status)
	publish(r, h.Events, events.RequestStatusChanged, newRequestEvent(req, previous))
}

// Delete handles DELETE /api/orphanage-requests/{id}. Only rejected
// requests can be deleted.
func (h *RequestsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "request")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.DeleteRequest(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}

	caller := auth.CallerFrom(r.Context())
	slog.Info("request deleted", "user", caller.Email, "request", id)
	publish(r, h.Events, events.RequestDeleted, map[string]int64{"id": id})
	jsonResponse(w, http.StatusOK, map[string]string{"message": "request removed"})
}
