package orders

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/types"
)

const maxRequestBody = 1 << 20

// Handler exposes the service over HTTP
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *logger.Logger
	limiter  *RateLimiter
}

// commodityRequest is the body of POST /orders/commodity
type commodityRequest struct {
	Contact types.Contact    `json:"contact"`
	Note    string           `json:"note"`
	Items   []types.LineItem `json:"items" validate:"required,min=1,dive"`
}

// bloodRequest is the body of POST /orders/blood
type bloodRequest struct {
	Contact      types.Contact      `json:"contact"`
	Note         string             `json:"note"`
	BloodRequest types.BloodRequest `json:"bloodRequest"`
}

type submitResponse struct {
	ID      string        `json:"id"`
	Origin  types.Origin  `json:"origin"`
	Outcome Outcome       `json:"outcome"`
	Record  *types.Record `json:"order,omitempty"`
	Banner  string        `json:"banner,omitempty"`
}

type orderResponse struct {
	Order  *types.Record `json:"order"`
	Source types.Origin  `json:"source"`
}

type statusResponse struct {
	Mode   string `json:"mode"`
	Banner string `json:"banner,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NewHandler creates the HTTP handler for svc
func NewHandler(svc *Service, log *logger.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{svc: svc, validate: v, logger: log}
}

// WithRateLimit throttles the two submission routes
func (h *Handler) WithRateLimit(l *RateLimiter) *Handler {
	h.limiter = l
	return h
}

// RegisterRoutes configures the order routes under /api/v1
func (h *Handler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.Handle("/orders/commodity", h.limited(h.submitCommodityHandler)).Methods(http.MethodPost)
	api.Handle("/orders/blood", h.limited(h.submitBloodHandler)).Methods(http.MethodPost)
	api.HandleFunc("/orders/last", h.lastSubmittedHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.getOrderHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.listOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/status", h.statusHandler).Methods(http.MethodGet)
}

func (h *Handler) limited(fn http.HandlerFunc) http.Handler {
	if h.limiter == nil {
		return fn
	}
	return h.limiter.Middleware(fn)
}

func (h *Handler) submitCommodityHandler(w http.ResponseWriter, r *http.Request) {
	var req commodityRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.submit(w, r, types.Draft{
		Kind:    types.KindCommodity,
		Contact: req.Contact,
		Note:    req.Note,
		Items:   req.Items,
	})
}

func (h *Handler) submitBloodHandler(w http.ResponseWriter, r *http.Request) {
	var req bloodRequest
	if !h.decode(w, r, &req) {
		return
	}

	br := req.BloodRequest
	h.submit(w, r, types.Draft{
		Kind:         types.KindBiologicalRequest,
		Contact:      req.Contact,
		Note:         req.Note,
		BloodRequest: &br,
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, draft types.Draft) {
	res, err := h.svc.Submit(r.Context(), draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, submitResponse{
		ID:      res.ID,
		Origin:  res.Origin,
		Outcome: res.Outcome,
		Record:  res.Record,
		Banner:  h.svc.Banner(),
	})
}

func (h *Handler) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Retrieve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !res.Found {
		h.writeJSONResponse(w, http.StatusBadRequest, map[string]interface{}{
			"error": "order id is required",
			"code":  types.ErrCodeInvalidInput,
		})
		return
	}

	h.writeJSONResponse(w, http.StatusOK, orderResponse{Order: res.Record, Source: res.Source})
}

func (h *Handler) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if listing.Records == nil {
		listing.Records = []types.Record{}
	}

	h.writeJSONResponse(w, http.StatusOK, listing)
}

func (h *Handler) lastSubmittedHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"id": h.svc.LastSubmitted(r.Context())})
}

func (h *Handler) statusHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, statusResponse{
		Mode:   string(h.svc.CurrentMode()),
		Banner: h.svc.Banner(),
		Reason: h.svc.monitor.Reason(),
	})
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return false
	}

	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request", validationDetails(verrs)))
			return false
		}
		h.writeError(w, r, err)
		return false
	}
	return true
}

// validationDetails maps each failing field to the rule it broke
func validationDetails(verrs validator.ValidationErrors) map[string]interface{} {
	details := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		details[ns] = fe.Tag()
	}
	return details
}

func statusFor(err error) int {
	var oe *types.OrderError
	if !errors.As(err, &oe) {
		return http.StatusInternalServerError
	}
	switch oe.Type {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeAccessRestricted:
		return http.StatusForbidden
	case types.ErrorTypeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := h.logger.WithContext(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("Order request failed")
	} else {
		entry.Warn("Order request rejected")
	}

	response := map[string]interface{}{
		"error":  "internal error",
		"status": status,
	}

	var oe *types.OrderError
	if errors.As(err, &oe) {
		response["error"] = oe.Message
		response["code"] = oe.Code
		if oe.Type == types.ErrorTypeValidation && len(oe.Details) > 0 {
			response["details"] = oe.Details
		}
	}

	h.writeJSONResponse(w, status, response)
}

func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
