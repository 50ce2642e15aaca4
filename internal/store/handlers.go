package store

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medrex/supply/pkg/types"
)

type createRequest struct {
	Order *types.Draft `json:"order"`
}

// RegisterRoutes installs the order store API. gate guards the listing.
func (s *Service) RegisterRoutes(router *mux.Router, gate *AdminGate) {
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/orders", s.createHandler).Methods(http.MethodPost)
	router.HandleFunc("/orders/{id}", s.getHandler).Methods(http.MethodGet)

	var list http.Handler = http.HandlerFunc(s.listHandler)
	if gate != nil {
		list = gate.Middleware(list)
	}
	router.Handle("/orders", list).Methods(http.MethodGet)

	s.logger.Info("Order store routes configured")
}

func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Healthy(r.Context()); err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Warn("Health check failed")
		s.writeJSONResponse(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Service) createHandler(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.Order == nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rec, err := s.Create(r.Context(), *req.Order)
	if err != nil {
		if types.IsType(err, types.ErrorTypeValidation) {
			s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), err)
			return
		}
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "failed to store order", err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"orderId": rec.ID,
		"order":   rec,
	})
}

func (s *Service) getHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if types.IsType(err, types.ErrorTypeNotFound) {
			s.writeErrorResponse(w, r, http.StatusNotFound, "order not found", err)
			return
		}
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "failed to get order", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"order": rec})
}

func (s *Service) listHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.List(r.Context())
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "failed to list orders", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"orders": records})
}

func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Service) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	entry := s.logger.WithContext(r.Context()).WithField("status", statusCode)
	if err != nil {
		entry = entry.WithError(err)
	}
	if statusCode >= http.StatusInternalServerError {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}

	var oe *types.OrderError
	if errors.As(err, &oe) && oe.Type != types.ErrorTypeNotFound {
		message = oe.Message
	}
	s.writeJSONResponse(w, statusCode, map[string]interface{}{"error": message})
}
