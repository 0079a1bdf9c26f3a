package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"paycrypt/internal/vtpass"
)

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(r.URL.Query().Get("identifier"))
	if identifier == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "identifier is required"})
		return
	}
	services, err := s.deps.Catalog.ListServices(r.Context(), identifier)
	if err != nil {
		s.writeCatalogError(w, "list services", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": services})
}

func (s *Server) handleReloadServices(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(r.URL.Query().Get("identifier"))
	if identifier == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "identifier is required"})
		return
	}
	services, err := s.deps.Catalog.ReloadServices(r.Context(), identifier)
	if err != nil {
		s.writeCatalogError(w, "reload services", err)
		return
	}
	s.logger.Info("vtpass service catalog reloaded", "identifier", identifier, "count", len(services))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"identifier": identifier,
		"count":      len(services),
	})
}

func (s *Server) handleVariations(w http.ResponseWriter, r *http.Request) {
	serviceID := strings.TrimSpace(r.URL.Query().Get("serviceID"))
	if serviceID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "serviceID is required"})
		return
	}
	variations, err := s.deps.Catalog.ListVariations(r.Context(), serviceID)
	if err != nil {
		s.writeCatalogError(w, "list variations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": variations})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var params vtpass.VerifyParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPurchaseBody)).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "invalid request body"})
		return
	}
	params.ServiceID = strings.TrimSpace(params.ServiceID)
	params.BillersCode = strings.TrimSpace(params.BillersCode)
	if params.ServiceID == "" || params.BillersCode == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "serviceID and billersCode required"})
		return
	}

	customer, err := s.deps.Catalog.VerifyCustomer(r.Context(), params)
	if err != nil {
		var perr *vtpass.ProviderError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: perr.Description})
			return
		}
		s.writeCatalogError(w, "verify customer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": customer})
}

func (s *Server) writeCatalogError(w http.ResponseWriter, op string, err error) {
	resp := errorResponse{Status: "error"}
	status := http.StatusBadGateway
	var perr *vtpass.ProviderError
	switch {
	case errors.Is(err, vtpass.ErrNotConfigured):
		status = http.StatusServiceUnavailable
		resp.Error = "VTpass API credentials not configured"
	case errors.As(err, &perr):
		resp.Error = perr.Description
	default:
		resp.Error = "VTpass is unavailable, try again later"
	}
	s.logger.Error("vtpass proxy failed", "op", op, "error", err)
	s.countError()
	if s.opts.ExposeErrorDetails {
		resp.Details = map[string]any{"cause": err.Error()}
	}
	writeJSON(w, status, resp)
}
