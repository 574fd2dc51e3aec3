package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/threadlink/threadlink/internal/auth"
	"github.com/threadlink/threadlink/internal/events"
	"github.com/threadlink/threadlink/internal/imaging"
	"github.com/threadlink/threadlink/internal/model"
	"github.com/threadlink/threadlink/internal/store"
)

// DonationsHandler handles the inventory ledger endpoints.
type DonationsHandler struct {
	DB      *sql.DB
	Events  events.Publisher
	Imaging imaging.Options
}

type statusRequest struct {
	Status string `json:"status"`
}

type donationEvent struct {
	ID       int64  `json:"id"`
	OwnerID  int64  `json:"owner_id"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Status   string `json:"status"`
}

func newDonationEvent(d *model.Donation) donationEvent {
	return donationEvent{ID: d.ID, OwnerID: d.UserID, Title: d.Title, Quantity: d.Quantity, Status: d.Status}
}

// Create handles POST /api/donations. An image_url given as a data: URL is
// stored as a processed photo instead of a link.
func (h *DonationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())

	var in model.DonationInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	var img *store.Image
	if imaging.IsDataURL(in.ImageURL) {
		raw, err := imaging.DecodeDataURL(in.ImageURL)
		if err != nil {
			writeError(w, r, err)
			return
		}
		photo, err := imaging.ProcessBytes(raw, h.Imaging)
		if err != nil {
			writeError(w, r, err)
			return
		}
		img = &store.Image{Data: photo.Data, MIME: photo.MIME}
	}

	d, err := store.CreateDonation(r.Context(), h.DB, caller.ID, in, img)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("donation created", "user", caller.Email, "donation", d.ID, "quantity", d.Quantity)
	publish(r, h.Events, events.DonationCreated, newDonationEvent(d))
	jsonResponse(w, http.StatusCreated, d)
}

// ListMine handles GET /api/donations.
func (h *DonationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())
	donations, err := store.ListDonationsByOwner(r.Context(), h.DB, caller.ID)
	h.writeList(w, r, donations, err)
}

// ListAll handles GET /api/donations/all?status=.
func (h *DonationsHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	donations, err := store.ListDonations(r.Context(), h.DB, r.URL.Query().Get("status"))
	h.writeList(w, r, donations, err)
}

// ListApproved handles GET /api/donations/approved, the catalog orphanages
// build requests from.
func (h *DonationsHandler) ListApproved(w http.ResponseWriter, r *http.Request) {
	donations, err := store.ListDonations(r.Context(), h.DB, model.DonationStatusApproved)
	h.writeList(w, r, donations, err)
}

func (h *DonationsHandler) writeList(w http.ResponseWriter, r *http.Request, donations []model.Donation, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if donations == nil {
		donations = []model.Donation{}
	}
	jsonResponse(w, http.StatusOK, donations)
}

// Get handles GET /api/donations/{id}.
func (h *DonationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := requireOwnerOrAdmin(auth.CallerFrom(r.Context()), d.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

// SetStatus handles PUT /api/donations/{id}/status.
func (h *DonationsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "donation")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	d, err := store.SetDonationStatus(r.Context(), h.DB, id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	caller := auth.CallerFrom(r.Context())
	slog.Info("donation status changed", "user", caller.Email, "donation", d.ID, "status", d.Status)
	publish(r, h.Events, events.DonationStatusChanged, newDonationEvent(d))
	jsonResponse(w, http.StatusOK, d)
}

// UploadImage handles PUT /api/donations/{id}/image (multipart field "image").
func (h *DonationsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	d, err := h.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller := auth.CallerFrom(r.Context())
	if err := requireOwnerOrAdmin(caller, d.UserID); err != nil {
		writeError(w, r, err)
		return
	}

	limit := h.Imaging.MaxBytes
	if limit <= 0 {
		limit = imaging.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	if err := r.ParseMultipartForm(limit); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file, h.Imaging)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.SetDonationImage(r.Context(), h.DB, d.ID, photo.Data, photo.MIME); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("donation image uploaded", "user", caller.Email, "donation", d.ID, "bytes", len(photo.Data))
	jsonResponse(w, http.StatusOK, map[string]string{
		"message":   "image uploaded",
		"image_url": store.DonationImagePath(d.ID),
	})
}

// GetImage handles GET /api/donations/{id}/image.
func (h *DonationsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "donation")
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, mime, err := store.GetDonationImage(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// load fetches the donation named by the {id} path parameter.
func (h *DonationsHandler) load(r *http.Request) (*model.Donation, error) {
	id, err := pathID(r, "donation")
	if err != nil {
		return nil, err
	}
	d, err := store.GetDonation(r.Context(), h.DB, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &model.NotFoundError{Entity: "donation", ID: id}
	}
	return d, nil
}
