package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salon-pos/internal/pricing"
	"salon-pos/internal/sale"
	"salon-pos/internal/session"
	"salon-pos/internal/storage"
	"salon-pos/pkg/booking"
)

type fakeStore struct {
	mu       sync.Mutex
	cfg      pricing.Config
	services []pricing.Service
	sales    map[int64]storage.Sale
	settings map[string]string
	synced   []pricing.Service
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cfg: pricing.Config{
			Settings: pricing.DefaultSettings(),
			Packages: []pricing.PackageDefinition{
				{Type: pricing.PackageVIP, Name: "VIP", DiscountPercent: 0.30, MinCost: 60000, MinDownPaymentPercent: 1, RequiresFullPayment: true, GiftSessions: 3, BonusAccountPercent: 0.05, IsActive: true},
				{Type: pricing.PackageStandard, Name: "Стандарт", DiscountPercent: 0.25, MinCost: 35000, MinDownPaymentPercent: 0.30, GiftSessions: 2, IsActive: true},
				{Type: pricing.PackageEconomy, Name: "Эконом", DiscountPercent: 0.20, MinCost: 10000, MinDownPaymentPercent: 0.01, IsActive: true},
			},
		},
		services: []pricing.Service{
			{ID: 1, ExternalID: "ext-1", Title: "Подмышки", Price: 2000, IsActive: true},
			{ID: 2, ExternalID: "ext-2", Title: "Голени", Price: 4000, IsActive: true},
		},
		sales:    map[int64]storage.Sale{3: {ID: 3, FinalCost: 16000}},
		settings: map[string]string{},
	}
}

func (f *fakeStore) PricingConfig(context.Context) (pricing.Config, error) { return f.cfg, nil }

func (f *fakeStore) GetSettings(context.Context) (pricing.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return storage.ParseSettings(f.settings), nil
}

func (f *fakeStore) SetSetting(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[key] = value
	return nil
}

func (f *fakeStore) ListPackages(context.Context) ([]pricing.PackageDefinition, error) {
	return f.cfg.Packages, nil
}

func (f *fakeStore) UpsertPackage(context.Context, pricing.PackageDefinition) error { return nil }

func (f *fakeStore) ListActiveServices(context.Context) ([]pricing.Service, error) {
	return f.services, nil
}

func (f *fakeStore) GetService(_ context.Context, id int64) (pricing.Service, error) {
	for _, svc := range f.services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return pricing.Service{}, fmt.Errorf("storage.GetService: %w", storage.ErrNotFound)
}

func (f *fakeStore) GetServicesByIDs(_ context.Context, ids []int64) (map[int64]pricing.Service, error) {
	out := map[int64]pricing.Service{}
	for _, svc := range f.services {
		for _, id := range ids {
			if svc.ID == id {
				out[id] = svc
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SyncServices(_ context.Context, services []pricing.Service) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = services
	return len(services), nil
}

func (f *fakeStore) ListSales(context.Context, int, int) ([]storage.Sale, error) {
	out := make([]storage.Sale, 0, len(f.sales))
	for _, s := range f.sales {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) GetSale(_ context.Context, id int64) (storage.Sale, error) {
	s, ok := f.sales[id]
	if !ok {
		return storage.Sale{}, fmt.Errorf("storage.GetSale: %w", storage.ErrNotFound)
	}
	return s, nil
}

func (f *fakeStore) DeleteSale(_ context.Context, id int64) error {
	if _, ok := f.sales[id]; !ok {
		return fmt.Errorf("storage.DeleteSale: %w", storage.ErrNotFound)
	}
	delete(f.sales, id)
	return nil
}

func (f *fakeStore) ExportSales(context.Context) ([]byte, error) {
	return storage.ExportSalesToExcel(nil)
}

func (f *fakeStore) ListOffersBySale(context.Context, int64) ([]storage.Offer, error) {
	return []storage.Offer{}, nil
}

type fakeSales struct {
	err  error
	cmds []sale.ConfirmCommand
}

func (f *fakeSales) Confirm(_ context.Context, cmd sale.ConfirmCommand) (sale.Confirmation, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return sale.Confirmation{}, f.err
	}
	return sale.Confirmation{
		Sale:       storage.Sale{ID: 7, Package: cmd.Package},
		OfferError: "offer delivery failed: smtp down",
	}, nil
}

type fakeCatalog struct {
	services []booking.Service
	err      error
}

func (f *fakeCatalog) ListServices(context.Context) ([]booking.Service, error) {
	return f.services, f.err
}

type harness struct {
	store   *fakeStore
	sales   *fakeSales
	catalog *fakeCatalog
	manager *session.Manager
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newFakeStore(),
		sales:   &fakeSales{},
		catalog: &fakeCatalog{},
	}
	h.manager = session.NewManager(h.store, h.store, nil,
		session.Options{DragDelay: 20 * time.Millisecond, ComputeTimeout: time.Second}, zap.NewNop())
	t.Cleanup(h.manager.Close)

	srv := NewServer(h.store, h.manager, h.sales, h.catalog, Options{
		AdminToken:    "admin-secret",
		WebhookSecret: "hook-secret",
	}, zap.NewNop())
	h.handler = srv.Routes()
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

var master = map[string]string{masterHeader: "master-1"}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]any](t, rec)
	code, _ := body["error"].(string)
	return code
}

func TestQuote(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/quote", map[string]any{
		"services":    []map[string]any{{"service_id": 1, "quantity": 1, "session_count": 10}},
		"adjustments": map[string]any{"down_payment": 5000},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[struct {
		Result pricing.Result `json:"result"`
	}](t, rec)
	assert.Equal(t, int64(20000), body.Result.BaseCost)
	economy := body.Result.Packages[pricing.PackageEconomy]
	assert.Equal(t, int64(16000), economy.FinalCost)
	assert.Equal(t, int64(5500), economy.MonthlyPayment)
	assert.False(t, body.Result.Packages[pricing.PackageStandard].IsAvailable)
}

func TestGetService(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/services/2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Голени", decode[pricing.Service](t, rec).Title)

	rec = h.do(t, http.MethodGet, "/api/services/42", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuote_FreeZoneExcluded(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/quote", map[string]any{
		"services": []map[string]any{
			{"service_id": 1, "quantity": 1, "session_count": 10},
			{"service_id": 2, "quantity": 1, "session_count": 10},
		},
		"free_zones": []int64{1},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[struct {
		Result pricing.Result `json:"result"`
	}](t, rec)
	assert.Equal(t, int64(40000), body.Result.BaseCost)
	assert.Equal(t, int64(20000), body.Result.FreeZonesValue)
}

func TestQuote_Rejections(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"unknown service", map[string]any{"services": []map[string]any{{"service_id": 9, "quantity": 1, "session_count": 10}}}, http.StatusUnprocessableEntity, "validation_failed"},
		{"session count", map[string]any{"services": []map[string]any{{"service_id": 1, "quantity": 1, "session_count": 25}}}, http.StatusUnprocessableEntity, "validation_failed"},
		{"stray free zone", map[string]any{"services": []map[string]any{{"service_id": 1, "quantity": 1, "session_count": 10}}, "free_zones": []int64{2}}, http.StatusUnprocessableEntity, "validation_failed"},
		{"not json", "{", http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/quote", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestSessions_RequireMaster(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/sessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", errorCode(t, rec))
}

func createSession(t *testing.T, h *harness) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/sessions", nil, master)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[session.Snapshot](t, rec).ID
}

func TestSessionFlowAndConfirm(t *testing.T) {
	h := newHarness(t)
	id := createSession(t, h)
	base := "/api/sessions/" + id

	rec := h.do(t, http.MethodPost, base+"/services", map[string]any{"service_id": 1}, master)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPut, base+"/package", map[string]any{"package": "economy"}, master)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, base+"?settle=true", nil, master)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[session.Snapshot](t, rec)
	require.NotNil(t, snap.SelectedPackage)
	assert.Equal(t, pricing.PackageEconomy, *snap.SelectedPackage)
	assert.Equal(t, int64(5000), snap.Adjustments.DownPayment)
	assert.False(t, snap.Pending)

	other := map[string]string{masterHeader: "master-2"}
	rec = h.do(t, http.MethodGet, base, nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, base+"/confirm", map[string]any{
		"client_name":  "Анна",
		"client_phone": "+79991234567",
		"send_offer":   true,
	}, master)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	confirmation := decode[sale.Confirmation](t, rec)
	assert.Equal(t, int64(7), confirmation.Sale.ID)
	assert.NotEmpty(t, confirmation.OfferError)

	require.Len(t, h.sales.cmds, 1)
	cmd := h.sales.cmds[0]
	assert.Equal(t, "master-1", cmd.MasterID)
	assert.Equal(t, pricing.PackageEconomy, cmd.Package)
	require.Len(t, cmd.Services, 1)
	assert.Equal(t, 10, cmd.Services[0].SessionCount)
	assert.Equal(t, int64(5000), cmd.Adjustments.DownPayment)

	rec = h.do(t, http.MethodGet, base, nil, master)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[session.Snapshot](t, rec).Services)
}

func TestConfirmFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.sales.err = fmt.Errorf("sale.Confirm: %w: %w", sale.ErrSubscriptionType, errors.New("502"))
	id := createSession(t, h)
	base := "/api/sessions/" + id

	rec := h.do(t, http.MethodPost, base+"/services", map[string]any{"service_id": 1}, master)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, base+"/confirm", map[string]any{
		"client_name":  "Анна",
		"client_phone": "+79991234567",
		"package":      "economy",
	}, master)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "subscription_type_failed", errorCode(t, rec))

	rec = h.do(t, http.MethodGet, base, nil, master)
	assert.Len(t, decode[session.Snapshot](t, rec).Services, 1)
}

func TestSessionMutationErrors(t *testing.T) {
	h := newHarness(t)
	id := createSession(t, h)
	base := "/api/sessions/" + id

	rec := h.do(t, http.MethodPost, base+"/services", map[string]any{"service_id": 99}, master)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodPut, base+"/package", map[string]any{"package": "vip"}, master)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "package_unavailable", errorCode(t, rec))

	rec = h.do(t, http.MethodPut, base+"/package", map[string]any{"package": "gold"}, master)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPatch, base+"/services/abc", map[string]any{}, master)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/sessions/missing", nil, master)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDropSession(t *testing.T) {
	h := newHarness(t)
	id := createSession(t, h)

	rec := h.do(t, http.MethodDelete, "/api/sessions/"+id, nil, master)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/sessions/"+id, nil, master)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin(t *testing.T) {
	h := newHarness(t)
	admin := map[string]string{"X-Admin-Token": "admin-secret"}

	rec := h.do(t, http.MethodGet, "/api/admin/sales", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/admin/sales/3", nil, admin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/admin/sales/3", nil, admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/admin/sales/3", nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/admin/sales?limit=0", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/admin/sales/export.xlsx", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Equal(t, "PK", rec.Body.String()[:2])

	rec = h.do(t, http.MethodPut, "/api/admin/settings/unknown", map[string]any{"value": "1"}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/admin/settings/"+storage.SettingMinimumDownPayment, map[string]any{"value": "7000"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7000), decode[pricing.Settings](t, rec).MinimumDownPayment)

	rec = h.do(t, http.MethodPut, "/api/admin/packages/economy", map[string]any{"name": "Эконом", "discount_percent": 1.5}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBookingWebhook(t *testing.T) {
	h := newHarness(t)
	h.catalog.services = []booking.Service{
		{ID: "ext-1", Title: "Подмышки", Price: 2100, Active: true},
		{ID: "ext-9", Title: "Спина", Price: 5000, Active: false},
	}
	hook := map[string]string{"X-Webhook-Secret": "hook-secret"}

	rec := h.do(t, http.MethodPost, "/webhooks/booking", map[string]any{"event_type": "service_updated"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/webhooks/booking", map[string]any{"event_type": "record_created"}, hook)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, h.store.synced)

	rec = h.do(t, http.MethodPost, "/webhooks/booking", map[string]any{"event_type": "service_updated"}, hook)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []pricing.Service{
		{ExternalID: "ext-1", Title: "Подмышки", Price: 2100, IsActive: true},
		{ExternalID: "ext-9", Title: "Спина", Price: 5000, IsActive: false},
	}, h.store.synced)

	h.catalog.err = errors.New("platform down")
	rec = h.do(t, http.MethodPost, "/webhooks/booking", map[string]any{"event_type": "service_created"}, hook)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", session.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", sale.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", session.ErrInvalidSessionCount), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", sale.ErrPackageUnavailable), http.StatusConflict},
		{fmt.Errorf("x: %w", sale.ErrSubscriptionType), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, mapError(tt.err).Status, tt.err.Error())
	}
}
