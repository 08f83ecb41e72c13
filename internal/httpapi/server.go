package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"salon-pos/internal/pricing"
	"salon-pos/internal/sale"
	"salon-pos/internal/session"
	"salon-pos/internal/storage"
	"salon-pos/pkg/booking"
)

// masterHeader identifies the master working at the counter.
const masterHeader = "X-Master-ID"

type Store interface {
	PricingConfig(ctx context.Context) (pricing.Config, error)
	GetSettings(ctx context.Context) (pricing.Settings, error)
	SetSetting(ctx context.Context, key, value string) error
	ListPackages(ctx context.Context) ([]pricing.PackageDefinition, error)
	UpsertPackage(ctx context.Context, p pricing.PackageDefinition) error
	ListActiveServices(ctx context.Context) ([]pricing.Service, error)
	GetService(ctx context.Context, id int64) (pricing.Service, error)
	GetServicesByIDs(ctx context.Context, ids []int64) (map[int64]pricing.Service, error)
	SyncServices(ctx context.Context, services []pricing.Service) (int, error)
	ListSales(ctx context.Context, limit, offset int) ([]storage.Sale, error)
	GetSale(ctx context.Context, id int64) (storage.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	ExportSales(ctx context.Context) ([]byte, error)
	ListOffersBySale(ctx context.Context, saleID int64) ([]storage.Offer, error)
}

var _ Store = (*storage.PostgresStorage)(nil)

type Sessions interface {
	Create(ctx context.Context, masterID string) (*session.Session, error)
	Get(ctx context.Context, id, masterID string) (*session.Session, error)
	Drop(ctx context.Context, id string) error
}

var _ Sessions = (*session.Manager)(nil)

type Sales interface {
	Confirm(ctx context.Context, cmd sale.ConfirmCommand) (sale.Confirmation, error)
}

var _ Sales = (*sale.Service)(nil)

// CatalogSource lists services on the booking platform.
type CatalogSource interface {
	ListServices(ctx context.Context) ([]booking.Service, error)
}

var _ CatalogSource = (*booking.Client)(nil)

type Options struct {
	RequestTimeout time.Duration
	AdminToken     string
	WebhookSecret  string
}

type Server struct {
	store    Store
	sessions Sessions
	sales    Sales
	catalog  CatalogSource
	opts     Options
	validate *validator.Validate
	logger   *zap.Logger
}

func NewServer(store Store, sessions Sessions, sales Sales, catalog CatalogSource, opts Options, logger *zap.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		store:    store,
		sessions: sessions,
		sales:    sales,
		catalog:  catalog,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhooks/booking", s.bookingWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		r.Get("/services", s.listServices)
		r.Get("/services/{serviceID}", s.getService)
		r.Get("/packages", s.listPackages)
		r.Get("/settings", s.getSettings)
		r.Post("/quote", s.quote)

		r.Group(func(r chi.Router) {
			r.Use(requireMaster)
			r.Post("/sales", s.createSale)

			r.Post("/sessions", s.createSession)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.dropSession)
				r.Post("/services", s.addService)
				r.Patch("/services/{serviceID}", s.updateService)
				r.Delete("/services/{serviceID}", s.removeService)
				r.Post("/services/{serviceID}/free-zone", s.toggleFreeZone)
				r.Put("/down-payment", s.setDownPayment)
				r.Put("/installment", s.setInstallment)
				r.Put("/certificate", s.setCertificate)
				r.Put("/correction", s.setCorrection)
				r.Put("/gift-sessions/{package}", s.setGiftSessions)
				r.Delete("/gift-sessions/{package}", s.clearGiftSessions)
				r.Put("/package", s.selectPackage)
				r.Delete("/package", s.clearPackage)
				r.Post("/drag/start", s.beginDrag)
				r.Post("/drag/end", s.endDrag)
				r.Post("/reset", s.resetSession)
				r.Post("/confirm", s.confirmSession)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/sales", s.listSales)
			r.Get("/sales/export.xlsx", s.exportSales)
			r.Get("/sales/{saleID}", s.getSale)
			r.Delete("/sales/{saleID}", s.deleteSale)
			r.Put("/settings/{key}", s.putSetting)
			r.Put("/packages/{package}", s.putPackage)
			r.Post("/catalog/sync", s.syncCatalog)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_ip", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("master_id", r.Header.Get(masterHeader)))
	})
}

func requireMaster(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(masterHeader) == "" {
			writeError(r.Context(), w, newError("unauthenticated", masterHeader+" header is required", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken == "" {
			writeError(r.Context(), w, newError("forbidden", "admin api is disabled", http.StatusForbidden))
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) != 1 {
			writeError(r.Context(), w, newError("unauthenticated", "invalid admin token", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func masterID(r *http.Request) string {
	return r.Header.Get(masterHeader)
}
