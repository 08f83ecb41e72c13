package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"salon-pos/internal/pricing"
)

// Catalog events sent by the booking platform.
const (
	eventServiceCreated = "service_created"
	eventServiceUpdated = "service_updated"
	eventServiceDeleted = "service_deleted"
)

// bookingWebhook re-syncs the service catalog whenever the platform reports
// a service change. Other events are acknowledged and ignored.
func (s *Server) bookingWebhook(w http.ResponseWriter, r *http.Request) {
	if s.opts.WebhookSecret != "" {
		secret := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.WebhookSecret)) != 1 {
			writeError(r.Context(), w, newError("unauthenticated", "invalid webhook secret", http.StatusUnauthorized))
			return
		}
	}

	var payload struct {
		EventType string          `json:"event_type"`
		Data      json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	switch payload.EventType {
	case eventServiceCreated, eventServiceUpdated, eventServiceDeleted:
		n, err := s.syncFromPlatform(r.Context())
		if err != nil {
			s.logger.Error("Catalog sync from webhook failed",
				zap.String("event_type", payload.EventType),
				zap.Error(err))
			writeError(r.Context(), w, newError("sync_failed", "catalog sync failed", http.StatusBadGateway))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"synced": n})
	default:
		s.logger.Debug("Webhook event ignored", zap.String("event_type", payload.EventType))
		w.WriteHeader(http.StatusOK)
	}
}

// syncCatalog is the manual admin trigger for the same sync.
func (s *Server) syncCatalog(w http.ResponseWriter, r *http.Request) {
	n, err := s.syncFromPlatform(r.Context())
	if err != nil {
		s.logger.Error("Catalog sync failed", zap.Error(err))
		writeError(r.Context(), w, newError("sync_failed", "catalog sync failed", http.StatusBadGateway))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": n})
}

func (s *Server) syncFromPlatform(ctx context.Context) (int, error) {
	const operation = "httpapi.syncFromPlatform"

	if s.catalog == nil {
		return 0, fmt.Errorf("%s: booking platform is not configured", operation)
	}
	remote, err := s.catalog.ListServices(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}
	services := make([]pricing.Service, 0, len(remote))
	for _, svc := range remote {
		services = append(services, pricing.Service{
			ExternalID: svc.ID,
			Title:      svc.Title,
			Price:      svc.Price,
			IsActive:   svc.Active,
		})
	}
	n, err := s.store.SyncServices(ctx, services)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}
	return n, nil
}
