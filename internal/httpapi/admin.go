package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"salon-pos/internal/pricing"
	"salon-pos/internal/storage"
)

const defaultSalesPage = 50

func saleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, newError("invalid_request", "invalid sale id", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func (s *Server) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := defaultSalesPage, 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(r.Context(), w, newError("invalid_request", "limit must be between 1 and 500", http.StatusBadRequest))
			return
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(r.Context(), w, newError("invalid_request", "offset must not be negative", http.StatusBadRequest))
			return
		}
		offset = n
	}

	sales, err := s.store.ListSales(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales, "limit": limit, "offset": offset})
}

func (s *Server) getSale(w http.ResponseWriter, r *http.Request) {
	id, ok := saleIDParam(w, r)
	if !ok {
		return
	}
	sale, err := s.store.GetSale(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offers, err := s.store.ListOffersBySale(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale, "offers": offers})
}

// deleteSale removes the sale and, by cascade, its offers.
func (s *Server) deleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := saleIDParam(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteSale(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("Sale deleted", zap.Int64("sale_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) exportSales(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.ExportSales(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := fmt.Sprintf("sales_%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) putSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !storage.KnownSetting(key) {
		writeError(r.Context(), w, newError("not_found", fmt.Sprintf("unknown setting %q", key), http.StatusNotFound))
		return
	}
	var req struct {
		Value string `json:"value" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(r.Context(), w, newError("validation_failed", err.Error(), http.StatusUnprocessableEntity))
		return
	}
	if err := s.store.SetSetting(r.Context(), key, req.Value); err != nil {
		s.fail(w, r, err)
		return
	}
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type packageRequest struct {
	Name                  string  `json:"name" validate:"required"`
	DiscountPercent       float64 `json:"discount_percent" validate:"min=0,max=1"`
	DynamicDiscount       float64 `json:"dynamic_discount" validate:"min=0,max=1"`
	MinCost               int64   `json:"min_cost" validate:"min=0"`
	MinDownPaymentPercent float64 `json:"min_down_payment_percent" validate:"min=0,max=1"`
	RequiresFullPayment   bool    `json:"requires_full_payment"`
	GiftSessions          int     `json:"gift_sessions" validate:"min=0"`
	BonusAccountPercent   float64 `json:"bonus_account_percent" validate:"min=0,max=1"`
	IsActive              bool    `json:"is_active"`
	SortOrder             int     `json:"sort_order"`
}

func (s *Server) putPackage(w http.ResponseWriter, r *http.Request) {
	t, ok := packageParam(w, r)
	if !ok {
		return
	}
	var req packageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(r.Context(), w, newError("validation_failed", err.Error(), http.StatusUnprocessableEntity))
		return
	}

	def := pricing.PackageDefinition{
		Type:                  t,
		Name:                  req.Name,
		DiscountPercent:       req.DiscountPercent,
		DynamicDiscount:       req.DynamicDiscount,
		MinCost:               req.MinCost,
		MinDownPaymentPercent: req.MinDownPaymentPercent,
		RequiresFullPayment:   req.RequiresFullPayment,
		GiftSessions:          req.GiftSessions,
		BonusAccountPercent:   req.BonusAccountPercent,
		IsActive:              req.IsActive,
		SortOrder:             req.SortOrder,
	}
	if err := s.store.UpsertPackage(r.Context(), def); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("Package updated", zap.String("package", string(t)))
	writeJSON(w, http.StatusOK, def)
}
