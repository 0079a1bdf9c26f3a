package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"paycrypt/internal/repo"
	"paycrypt/internal/timerange"
)

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type ordersResponse struct {
	Success    bool         `json:"success"`
	Orders     []repo.Order `json:"orders"`
	Pagination pagination   `json:"pagination"`
}

func newOrdersResponse(p *repo.Page) ordersResponse {
	return ordersResponse{
		Success: true,
		Orders:  p.Orders,
		Pagination: pagination{
			Page:  p.Page,
			Limit: p.Limit,
			Total: p.Total,
			Pages: p.Pages(),
		},
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(chi.URLParam(r, "requestId"))
	order, err := s.deps.Orders.FindOrderByRequestID(r.Context(), requestID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Error: "order not found", RequestID: requestID})
		return
	case err != nil:
		s.writeStoreError(w, "find order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	userAddress := strings.TrimSpace(chi.URLParam(r, "userAddress"))
	if userAddress == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "userAddress is required"})
		return
	}
	filter, err := pageFilter(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: err.Error()})
		return
	}
	page, err := s.deps.Orders.ListOrdersByUser(r.Context(), userAddress, filter)
	if err != nil {
		s.writeStoreError(w, "list user orders", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(page))
}

const (
	defaultRecentCount = 10
	maxRecentCount     = 100
)

// handleRecentOrders returns the newest orders across all users.
func (s *Server) handleRecentOrders(w http.ResponseWriter, r *http.Request) {
	count := defaultRecentCount
	if raw := strings.TrimSpace(r.URL.Query().Get("count")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "count must be an integer"})
			return
		}
		count = min(maxRecentCount, max(1, n))
	}

	page, err := s.deps.Orders.ListOrders(r.Context(), repo.ListFilter{Page: 1, Limit: count})
	if err != nil {
		s.writeStoreError(w, "list recent orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"orders":    page.Orders,
		"count":     len(page.Orders),
		"requested": count,
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := pageFilter(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: err.Error()})
		return
	}

	filter.UserAddress = q.Get("user")
	if raw := strings.TrimSpace(q.Get("range")); raw != "" {
		rng, err := timerange.Parse(raw, s.now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: err.Error()})
			return
		}
		filter.CreatedFrom, filter.CreatedTo = rng.Start, rng.End
	}
	if raw := strings.TrimSpace(q.Get("serviceType")); raw != "" {
		st, ok := repo.ParseServiceType(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: fmt.Sprintf("unknown serviceType %q", raw)})
			return
		}
		filter.ServiceType = st
	}
	if raw := strings.TrimSpace(q.Get("vtpassStatus")); raw != "" {
		status := repo.VTpassStatus(raw)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: fmt.Sprintf("unknown vtpassStatus %q", raw)})
			return
		}
		filter.VTpassStatus = status
	}
	filter.SortBy = q.Get("sortBy")
	filter.Ascending = strings.EqualFold(q.Get("order"), "asc")

	if subject, ok := r.Context().Value(AdminSubjectKey).(string); ok && subject != "" {
		s.logger.Info("admin order listing", "subject", subject)
	}

	page, err := s.deps.Orders.ListOrders(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(page))
}

func pageFilter(q url.Values) (repo.ListFilter, error) {
	var filter repo.ListFilter
	var err error
	if filter.Page, err = intParam(q, "page"); err != nil {
		return filter, err
	}
	if filter.Limit, err = intParam(q, "limit"); err != nil {
		return filter, err
	}
	if raw := strings.TrimSpace(q.Get("chainId")); raw != "" {
		filter.ChainID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || filter.ChainID <= 0 {
			return filter, errors.New("chainId must be a positive integer")
		}
	}
	return filter, nil
}

func intParam(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("order store failed", "op", op, "error", err)
	s.countError()
	resp := errorResponse{Status: "error", Error: "Failed to fetch orders."}
	if s.opts.ExposeErrorDetails {
		resp.Details = map[string]any{"cause": err.Error()}
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}
