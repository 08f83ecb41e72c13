package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"salon-pos/internal/pricing"
	"salon-pos/internal/sale"
)

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListActiveServices(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceIDParam(w, r)
	if !ok {
		return
	}
	svc, err := s.store.GetService(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.store.ListPackages(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": packages})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type lineRequest struct {
	ServiceID    int64  `json:"service_id" validate:"required,gt=0"`
	Quantity     int    `json:"quantity" validate:"min=1"`
	SessionCount int    `json:"session_count" validate:"min=3,max=20"`
	CustomPrice  *int64 `json:"custom_price,omitempty" validate:"omitempty,min=0"`
}

type selectionRequest struct {
	Services    []lineRequest       `json:"services" validate:"dive"`
	FreeZones   []int64             `json:"free_zones"`
	Adjustments pricing.Adjustments `json:"adjustments"`
}

// resolve joins the request lines with the catalog and rebuilds the free
// zones from the joined lines.
func (s *Server) resolve(r *http.Request, req selectionRequest) (pricing.Selection, error) {
	if len(req.Services) == 0 {
		return pricing.Selection{}, nil
	}
	ids := make([]int64, 0, len(req.Services))
	for _, l := range req.Services {
		ids = append(ids, l.ServiceID)
	}
	catalog, err := s.store.GetServicesByIDs(r.Context(), ids)
	if err != nil {
		return pricing.Selection{}, err
	}

	zones := make(map[int64]bool, len(req.FreeZones))
	for _, id := range req.FreeZones {
		zones[id] = true
	}

	var sel pricing.Selection
	seen := make(map[int64]bool, len(req.Services))
	for _, l := range req.Services {
		svc, ok := catalog[l.ServiceID]
		if !ok || !svc.IsActive {
			return pricing.Selection{}, fmt.Errorf("%w: unknown service %d", sale.ErrValidation, l.ServiceID)
		}
		if seen[l.ServiceID] {
			return pricing.Selection{}, fmt.Errorf("%w: service %d selected twice", sale.ErrValidation, l.ServiceID)
		}
		seen[l.ServiceID] = true
		line := pricing.SelectedService{
			Service:      svc,
			Quantity:     l.Quantity,
			SessionCount: l.SessionCount,
			CustomPrice:  l.CustomPrice,
		}
		sel.Services = append(sel.Services, line)
		if zones[l.ServiceID] {
			sel.FreeZones = append(sel.FreeZones, pricing.NewFreeZone(line))
		}
	}
	for id := range zones {
		if !seen[id] {
			return pricing.Selection{}, fmt.Errorf("%w: free zone %d is not in the selection", sale.ErrValidation, id)
		}
	}
	return sel, nil
}

// quote prices a selection without any session.
func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(r.Context(), w, newError("validation_failed", err.Error(), http.StatusUnprocessableEntity))
		return
	}

	sel, err := s.resolve(r, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cfg, err := s.store.PricingConfig(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	adj := req.Adjustments
	adj.CorrectionPercent = pricing.ClampCorrection(adj.CorrectionPercent)
	if adj.InstallmentMonths == 0 {
		adj.InstallmentMonths = cfg.Settings.DefaultInstallment()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":                     pricing.Quote(sel, adj, cfg),
		"installment_months_options": cfg.Settings.InstallmentMonthsOptions,
	})
}

type clientRequest struct {
	ClientName  string              `json:"client_name"`
	ClientPhone string              `json:"client_phone"`
	ClientEmail string              `json:"client_email"`
	Package     pricing.PackageType `json:"package"`
	SendOffer   bool                `json:"send_offer"`
}

type saleRequest struct {
	selectionRequest
	clientRequest
}

// createSale confirms a sale priced from the request body alone.
func (s *Server) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req.selectionRequest); err != nil {
		writeError(r.Context(), w, newError("validation_failed", err.Error(), http.StatusUnprocessableEntity))
		return
	}
	sel, err := s.resolve(r, req.selectionRequest)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.confirm(w, r, sel, req.Adjustments, req.clientRequest, nil)
}

// confirm runs the sale and writes 201. onSuccess runs before the response
// is written.
func (s *Server) confirm(w http.ResponseWriter, r *http.Request, sel pricing.Selection, adj pricing.Adjustments, client clientRequest, onSuccess func()) {
	confirmation, err := s.sales.Confirm(r.Context(), sale.ConfirmCommand{
		MasterID:    masterID(r),
		ClientName:  client.ClientName,
		ClientPhone: client.ClientPhone,
		ClientEmail: client.ClientEmail,
		Package:     client.Package,
		Services:    sel.Services,
		FreeZones:   sel.FreeZones,
		Adjustments: adj,
		SendOffer:   client.SendOffer,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if onSuccess != nil {
		onSuccess()
	}
	writeJSON(w, http.StatusCreated, confirmation)
}

// fail logs unexpected errors and writes the mapped envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := mapError(err)
	if e.Status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else if errors.Is(err, sale.ErrValidation) {
		s.logger.Debug("Request rejected", zap.Error(err))
	}
	writeError(r.Context(), w, e)
}
