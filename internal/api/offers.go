package api

import (
	"database/sql"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/ponudbe/internal/logging"
	"github.com/erazemk/ponudbe/internal/model"
	"github.com/erazemk/ponudbe/internal/offer"
	"github.com/erazemk/ponudbe/internal/store"
	"github.com/erazemk/ponudbe/internal/validate"
)

// OffersHandler handles offer endpoints.
type OffersHandler struct {
	DB             *sql.DB
	Pipeline       *offer.Pipeline
	PageSize       int
	MaxUploadBytes int64
}

type offerPage struct {
	Data  []model.Offer `json:"data"`
	Total int           `json:"total"`
	Skip  int           `json:"skip"`
	Limit int           `json:"limit"`
}

// List handles GET /api/offers.
func (h *OffersHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid skip")
		return
	}
	limit, err := queryInt(r, "limit", h.PageSize)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	offers, err := store.ListOffers(r.Context(), h.DB)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list offers", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list offers")
		return
	}

	page := paginate(offers, skip, limit)
	jsonResponse(w, http.StatusOK, offerPage{
		Data:  page,
		Total: len(page),
		Skip:  skip,
		Limit: limit,
	})
}

// Create handles POST /api/offers.
func (h *OffersHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	raw, cleanup, err := decodeOffer(r)
	defer cleanup()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		log.Debug("undecodable offer submission", "error", err)
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.Pipeline.Submit(r.Context(), raw)
	var validationErrs validate.Errors
	switch {
	case errors.As(err, &validationErrs):
		jsonResponse(w, http.StatusBadRequest, validationErrs)
		return
	case errors.Is(err, store.ErrDuplicateDate):
		jsonError(w, http.StatusConflict, "offer with this date already exists")
		return
	case err != nil:
		log.Error("failed to save offer", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save offer")
		return
	}

	jsonResponse(w, http.StatusOK, o)
}

// Get handles GET /api/offers/{date}.
func (h *OffersHandler) Get(w http.ResponseWriter, r *http.Request) {
	date, err := strconv.ParseInt(chi.URLParam(r, "date"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid offer date")
		return
	}

	o, err := store.GetOffer(r.Context(), h.DB, date)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get offer", "date", date, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get offer")
		return
	}
	if o == nil {
		jsonError(w, http.StatusNotFound, "offer not found")
		return
	}

	jsonResponse(w, http.StatusOK, o)
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, key string, fallback int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// paginate returns offers[skip : skip+limit], clamped to the slice.
func paginate(offers []model.Offer, skip, limit int) []model.Offer {
	if skip >= len(offers) {
		return []model.Offer{}
	}
	end := len(offers)
	if limit < end-skip {
		end = skip + limit
	}
	return offers[skip:end]
}
