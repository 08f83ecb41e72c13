package sale

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"salon-pos/internal/offer"
	"salon-pos/internal/pricing"
	"salon-pos/internal/storage"
	"salon-pos/pkg/booking"
)

var (
	ErrValidation         = errors.New("invalid sale")
	ErrPackageUnavailable = errors.New("package is not available for this course")
	ErrSubscriptionType   = errors.New("subscription type could not be resolved")
)

type Repository interface {
	PricingConfig(ctx context.Context) (pricing.Config, error)
	GetServicesByIDs(ctx context.Context, ids []int64) (map[int64]pricing.Service, error)
	FindOrCreateClient(ctx context.Context, name, phone, email string) (storage.Client, error)
	CreateSale(ctx context.Context, sale *storage.Sale) error
}

var _ Repository = (*storage.PostgresStorage)(nil)

type SubscriptionTypes interface {
	FindSubscriptionType(ctx context.Context, composition booking.Composition, cost int64) (booking.SubscriptionType, bool, error)
	ListSubscriptionTypes(ctx context.Context) ([]booking.SubscriptionType, error)
	CreateSubscriptionType(ctx context.Context, req booking.CreateSubscriptionTypeRequest) (booking.SubscriptionType, error)
}

var _ SubscriptionTypes = (*booking.Client)(nil)

type OfferIssuer interface {
	Issue(ctx context.Context, cmd offer.IssueCommand) (storage.Offer, error)
}

var _ OfferIssuer = (*offer.Generator)(nil)

// Notifier tells the admins about a confirmed sale. It must not fail the
// confirmation; implementations log their own errors.
type Notifier interface {
	NotifySale(ctx context.Context, sale storage.Sale)
}

type Service struct {
	repo          Repository
	subscriptions SubscriptionTypes
	offers        OfferIssuer
	notifier      Notifier
	freeze        booking.FreezePolicy
	validate      *validator.Validate
	logger        *zap.Logger
	intn          func(n int) int
	now           func() time.Time
}

func NewService(
	repo Repository,
	subscriptions SubscriptionTypes,
	offers OfferIssuer,
	notifier Notifier,
	freeze booking.FreezePolicy,
	logger *zap.Logger,
) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", validatePhone)

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Service{
		repo:          repo,
		subscriptions: subscriptions,
		offers:        offers,
		notifier:      notifier,
		freeze:        freeze,
		validate:      v,
		logger:        logger,
		intn:          rnd.Intn,
		now:           time.Now,
	}
}

// ConfirmCommand is a sale as the master confirms it.
type ConfirmCommand struct {
	MasterID    string                    `validate:"required"`
	ClientName  string                    `validate:"required,min=2,max=120"`
	ClientPhone string                    `validate:"required,phone"`
	ClientEmail string                    `validate:"omitempty,email"`
	Package     pricing.PackageType       `validate:"required,oneof=vip standard economy"`
	Services    []pricing.SelectedService `validate:"required,min=1"`
	FreeZones   []pricing.FreeZone
	Adjustments pricing.Adjustments
	SendOffer   bool
}

type Confirmation struct {
	Sale                storage.Sale           `json:"sale"`
	Pricing             pricing.PackagePricing `json:"pricing"`
	SubscriptionCreated bool                   `json:"subscription_created"`
	Offer               *storage.Offer         `json:"offer,omitempty"`
	OfferError          string                 `json:"offer_error,omitempty"`
}

func (s *Service) validateCommand(cmd ConfirmCommand) error {
	if err := s.validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	seen := make(map[int64]bool, len(cmd.Services))
	for _, line := range cmd.Services {
		if seen[line.ID] {
			return fmt.Errorf("%w: service %d selected twice", ErrValidation, line.ID)
		}
		seen[line.ID] = true
		if line.Quantity < 1 {
			return fmt.Errorf("%w: service %d quantity must be at least 1", ErrValidation, line.ID)
		}
		if line.SessionCount < pricing.MinSessionsPerService || line.SessionCount > pricing.MaxSessionsPerService {
			return fmt.Errorf("%w: service %d session count must be between %d and %d",
				ErrValidation, line.ID, pricing.MinSessionsPerService, pricing.MaxSessionsPerService)
		}
		if line.CustomPrice != nil && *line.CustomPrice < 0 {
			return fmt.Errorf("%w: service %d price must not be negative", ErrValidation, line.ID)
		}
	}
	for _, z := range cmd.FreeZones {
		if !seen[z.ServiceID] {
			return fmt.Errorf("%w: free zone %d is not in the selection", ErrValidation, z.ServiceID)
		}
	}
	return nil
}

// Confirm re-prices the selection, resolves the booking platform
// subscription type and stores the sale. Contract and notification
// failures are reported on the confirmation, never as an error.
func (s *Service) Confirm(ctx context.Context, cmd ConfirmCommand) (Confirmation, error) {
	const operation = "sale.Confirm"

	if err := s.validateCommand(cmd); err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", operation, err)
	}
	phone := NormalizePhoneNumber(cmd.ClientPhone)
	email := strings.TrimSpace(strings.ToLower(cmd.ClientEmail))
	name := strings.TrimSpace(cmd.ClientName)

	// Catalog prices and titles win over whatever the caller sent.
	ids := make([]int64, 0, len(cmd.Services))
	for _, line := range cmd.Services {
		ids = append(ids, line.ID)
	}
	catalog, err := s.repo.GetServicesByIDs(ctx, ids)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", operation, err)
	}
	services := make([]pricing.SelectedService, 0, len(cmd.Services))
	for _, line := range cmd.Services {
		svc, ok := catalog[line.ID]
		if !ok || !svc.IsActive {
			return Confirmation{}, fmt.Errorf("%s: %w: unknown service %d", operation, ErrValidation, line.ID)
		}
		line.Service = svc
		services = append(services, line)
	}
	freeZones := syncFreeZones(services, cmd.FreeZones)

	cfg, err := s.repo.PricingConfig(ctx)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", operation, err)
	}

	adj := cmd.Adjustments
	adj.CorrectionPercent = pricing.ClampCorrection(adj.CorrectionPercent)
	result := pricing.Quote(pricing.Selection{Services: services, FreeZones: freeZones}, adj, cfg)

	pp, ok := result.Package(cmd.Package)
	if !ok || !pp.IsAvailable {
		reason := "package is not offered"
		if ok {
			reason = pp.UnavailableReason
		}
		return Confirmation{}, fmt.Errorf("%s: %w: %s", operation, ErrPackageUnavailable, reason)
	}

	months := adj.InstallmentMonths
	switch {
	case pp.RequiresFullPayment:
		months = 0
	case months == 0:
		months = cfg.Settings.DefaultInstallment()
	case !cfg.Settings.ValidInstallmentMonths(months):
		return Confirmation{}, fmt.Errorf("%s: %w: installment months %d is not allowed", operation, ErrValidation, months)
	}
	adj.InstallmentMonths = months
	adj.DownPayment = pp.ClampDownPayment(adj.DownPayment)
	if months == 0 && adj.DownPayment < pp.FinalCost {
		return Confirmation{}, fmt.Errorf("%s: %w: no installment plan covers the remaining %d", operation, ErrValidation, pp.FinalCost-adj.DownPayment)
	}
	if adj.UsedCertificate && !result.CertificateEligible {
		adj.UsedCertificate = false
	}

	// Re-price with the fitted down payment so the monthly figure matches.
	result = pricing.Quote(pricing.Selection{Services: services, FreeZones: freeZones}, adj, cfg)
	pp, _ = result.Package(cmd.Package)

	client, err := s.repo.FindOrCreateClient(ctx, name, phone, email)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", operation, err)
	}

	composition := Composition(services)
	subscription, created, err := s.resolveSubscriptionType(ctx, composition, pp.FinalCost)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w: %w", operation, ErrSubscriptionType, err)
	}

	sale := storage.Sale{
		ClientID:           client.ID,
		MasterID:           cmd.MasterID,
		SubscriptionTypeID: subscription.ID,
		SubscriptionTitle:  subscription.Title,
		Package:            pp.Type,
		BaseCost:           result.BaseCost,
		FinalCost:          pp.FinalCost,
		TotalSavings:       pp.TotalSavings,
		DownPayment:        adj.DownPayment,
		InstallmentMonths:  months,
		MonthlyPayment:     pp.MonthlyPayment,
		UsedCertificate:    adj.UsedCertificate,
		CorrectionPercent:  adj.CorrectionPercent,
		Services:           storage.NewJSON(saleServices(services, freeZones)),
		AppliedDiscounts:   storage.NewJSON(pp.AppliedDiscounts),
		FreeZones:          storage.NewJSON(nonNilZones(freeZones)),
		ManualGiftSessions: storage.NewJSON(nonNilGifts(adj.ManualGiftSessions)),
		ClientName:         client.Name,
		ClientPhone:        client.Phone,
	}
	if err := s.repo.CreateSale(ctx, &sale); err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", operation, err)
	}

	s.logger.Info("Sale confirmed",
		zap.Int64("sale_id", sale.ID),
		zap.String("master_id", cmd.MasterID),
		zap.String("package", string(pp.Type)),
		zap.Int64("final_cost", pp.FinalCost),
		zap.String("subscription_type_id", subscription.ID),
		zap.Bool("subscription_created", created))

	confirmation := Confirmation{Sale: sale, Pricing: pp, SubscriptionCreated: created}

	if cmd.SendOffer && s.offers != nil {
		saleID := sale.ID
		issued, err := s.offers.Issue(ctx, offer.IssueCommand{
			SaleID:            &saleID,
			ClientName:        client.Name,
			ClientPhone:       client.Phone,
			ClientEmail:       email,
			Pricing:           pp,
			BaseCost:          result.BaseCost,
			DownPayment:       adj.DownPayment,
			InstallmentMonths: months,
			Services:          sale.Services.V,
			FreeZones:         freeZones,
			FreeZonesValue:    result.FreeZonesValue,
			SendEmail:         email != "",
		})
		if issued.ID != 0 {
			confirmation.Offer = &issued
		}
		if err != nil {
			s.logger.Warn("Contract was not delivered",
				zap.Int64("sale_id", sale.ID),
				zap.Error(err))
			confirmation.OfferError = err.Error()
		}
	}

	if s.notifier != nil {
		s.notifier.NotifySale(ctx, sale)
	}

	return confirmation, nil
}

// resolveSubscriptionType reuses a type with exactly this composition and
// cost or creates one. The second result reports a creation.
func (s *Service) resolveSubscriptionType(ctx context.Context, composition booking.Composition, cost int64) (booking.SubscriptionType, bool, error) {
	t, ok, err := s.subscriptions.FindSubscriptionType(ctx, composition, cost)
	if err != nil {
		return booking.SubscriptionType{}, false, err
	}
	if ok {
		s.logger.Debug("Subscription type reused",
			zap.String("id", t.ID),
			zap.String("composition", composition.Key()))
		return t, false, nil
	}

	// Titles are checked against a fresh listing.
	types, err := s.subscriptions.ListSubscriptionTypes(ctx)
	if err != nil {
		return booking.SubscriptionType{}, false, err
	}

	taken := make(map[string]bool, len(types))
	for _, t := range types {
		taken[t.Title] = true
	}

	created, err := s.subscriptions.CreateSubscriptionType(ctx, booking.CreateSubscriptionTypeRequest{
		Title:        s.uniqueTitle(taken),
		Cost:         cost,
		Services:     composition.Lines(),
		FreezePolicy: s.freeze,
	})
	if err != nil {
		return booking.SubscriptionType{}, false, err
	}
	return created, true, nil
}

// Composition maps each selected service's external id to its sessions and
// zone quantity. Free zones count: they are part of the course.
func Composition(services []pricing.SelectedService) booking.Composition {
	c := make(booking.Composition, len(services))
	for _, svc := range services {
		if pricing.ProcedureCount(svc) == 0 {
			continue
		}
		c[svc.ExternalID] = booking.Course{Sessions: svc.SessionCount, Quantity: svc.Quantity}
	}
	return c
}

// syncFreeZones rebuilds free zones from the authoritative cart lines.
func syncFreeZones(services []pricing.SelectedService, zones []pricing.FreeZone) []pricing.FreeZone {
	if len(zones) == 0 {
		return nil
	}
	wanted := make(map[int64]bool, len(zones))
	for _, z := range zones {
		wanted[z.ServiceID] = true
	}
	out := make([]pricing.FreeZone, 0, len(zones))
	for _, svc := range services {
		if wanted[svc.ID] {
			out = append(out, pricing.NewFreeZone(svc))
		}
	}
	return out
}

func saleServices(services []pricing.SelectedService, zones []pricing.FreeZone) []storage.SaleService {
	free := make(map[int64]bool, len(zones))
	for _, z := range zones {
		free[z.ServiceID] = true
	}
	out := make([]storage.SaleService, 0, len(services))
	for _, svc := range services {
		out = append(out, storage.SaleService{
			ServiceID:    svc.ID,
			ExternalID:   svc.ExternalID,
			Title:        svc.Title,
			UnitPrice:    pricing.EffectivePrice(svc),
			Quantity:     svc.Quantity,
			SessionCount: svc.SessionCount,
			IsFreeZone:   free[svc.ID],
		})
	}
	return out
}

func nonNilZones(z []pricing.FreeZone) []pricing.FreeZone {
	if z == nil {
		return []pricing.FreeZone{}
	}
	return z
}

func nonNilGifts(m map[pricing.PackageType]int) map[pricing.PackageType]int {
	if m == nil {
		return map[pricing.PackageType]int{}
	}
	return m
}
