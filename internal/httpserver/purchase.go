package httpserver

import (
	"errors"
	"io"
	"net/http"

	"paycrypt/internal/purchase"
	"paycrypt/internal/repo"
)

const maxPurchaseBody = 64 << 10

type purchaseResponse struct {
	Success    bool                `json:"success"`
	Status     string              `json:"status"`
	Message    string              `json:"message"`
	RequestID  string              `json:"requestId"`
	OrderID    string              `json:"orderId"`
	Replayed   bool                `json:"replayed,omitempty"`
	Order      *repo.Order         `json:"order"`
	VTpassData map[string]any      `json:"vtpassData,omitempty"`
	Details    *electricityDetails `json:"details,omitempty"`
}

type electricityDetails struct {
	Token  string `json:"token,omitempty"`
	Units  string `json:"units,omitempty"`
	Amount string `json:"amount,omitempty"`
}

type errorResponse struct {
	Success   bool     `json:"success"`
	Status    string   `json:"status"`
	Error     string   `json:"error"`
	RequestID string   `json:"requestId,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Details   any      `json:"details,omitempty"`
}

func (s *Server) handlePurchase(serviceType repo.ServiceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPurchaseBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "invalid request body"})
			return
		}
		requestID := purchase.PeekRequestID(body)

		outcome, err := s.deps.Purchases.SubmitPurchase(r.Context(), serviceType, body)
		if err != nil {
			s.writePurchaseError(w, serviceType, requestID, err)
			return
		}

		order := outcome.Order
		resp := purchaseResponse{
			Success:   true,
			Status:    "success",
			Message:   outcome.Message,
			RequestID: order.RequestID,
			OrderID:   order.ID,
			Replayed:  outcome.Replayed,
			Order:     order,
		}
		if !outcome.Replayed {
			resp.VTpassData = order.VTpassResponse
		}
		if e := order.Electricity; e != nil {
			resp.Details = &electricityDetails{Token: e.Token, Units: e.Units, Amount: e.Amount}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) writePurchaseError(w http.ResponseWriter, serviceType repo.ServiceType, requestID string, err error) {
	var (
		verr *purchase.ValidationError
		cerr *purchase.ConflictError
		ferr *purchase.FulfillmentError
		uerr *purchase.UnrecordedChargeError
		serr *purchase.StoreError
	)
	resp := errorResponse{Status: "error", Error: err.Error(), RequestID: requestID}
	status := http.StatusInternalServerError
	var details map[string]any

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Fields = verr.Fields
	case errors.As(err, &cerr):
		status = http.StatusConflict
	case errors.As(err, &ferr):
		details = map[string]any{"kind": string(ferr.Kind)}
		if ferr.Err != nil {
			details["cause"] = ferr.Err.Error()
		}
		if ferr.StoreErr != nil {
			details["storeError"] = ferr.StoreErr.Error()
		}
		if ferr.Order != nil {
			details["vtpassResponse"] = ferr.Order.VTpassResponse
		}
	case errors.As(err, &uerr):
		details = map[string]any{"cause": uerr.Err.Error()}
	case errors.As(err, &serr):
		resp.Error = "Failed to record the order. Please retry with the same Request ID."
		details = map[string]any{"cause": serr.Err.Error()}
	default:
		resp.Error = "Internal server error"
		details = map[string]any{"cause": err.Error()}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("purchase failed", "service", string(serviceType), "request_id", requestID, "error", err)
		s.countError()
	} else {
		s.logger.Info("purchase rejected", "service", string(serviceType), "request_id", requestID, "status", status, "error", err)
	}
	if s.opts.ExposeErrorDetails && details != nil {
		resp.Details = details
	}
	writeJSON(w, status, resp)
}

func (s *Server) countError() {
	if s.metrics != nil {
		s.metrics.Errors.WithLabelValues("http").Inc()
	}
}
