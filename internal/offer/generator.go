package offer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"salon-pos/internal/pricing"
	"salon-pos/internal/storage"
)

// ErrDelivery marks an offer that was stored but could not be e-mailed.
var ErrDelivery = errors.New("offer delivery failed")

// DefaultTTL is how long a commercial offer stays valid.
const DefaultTTL = 7 * 24 * time.Hour

type Repository interface {
	CreateOffer(ctx context.Context, offer *storage.Offer) error
	UpdateOfferFile(ctx context.Context, id int64, path string) error
	MarkOfferSent(ctx context.Context, id int64, sentAt time.Time) error
	ExpireOffers(ctx context.Context, now time.Time) (int64, error)
}

var _ Repository = (*storage.PostgresStorage)(nil)

type Config struct {
	Dir     string
	TTL     time.Duration
	Company string
}

type Generator struct {
	repo     Repository
	renderer *Renderer
	mailer   Mailer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewGenerator(repo Repository, renderer *Renderer, mailer Mailer, cfg Config, logger *zap.Logger) *Generator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Dir == "" {
		cfg.Dir = "offers"
	}
	return &Generator{
		repo:     repo,
		renderer: renderer,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// IssueCommand describes a priced package to put on paper.
type IssueCommand struct {
	SaleID            *int64
	ClientName        string
	ClientPhone       string
	ClientEmail       string
	Pricing           pricing.PackagePricing
	BaseCost          int64
	DownPayment       int64
	InstallmentMonths int
	Services          []storage.SaleService
	FreeZones         []pricing.FreeZone
	FreeZonesValue    int64
	SendEmail         bool
}

func newOfferNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("КП-%s-%s", now.Format("20060102"), id[:6])
}

// Issue stores a draft offer, renders its contract and, when asked,
// e-mails it. A failed delivery keeps the draft and returns ErrDelivery.
func (g *Generator) Issue(ctx context.Context, cmd IssueCommand) (storage.Offer, error) {
	const operation = "offer.Issue"

	now := g.now()
	pp := cmd.Pricing

	months := cmd.InstallmentMonths
	if pp.RequiresFullPayment {
		months = 0
	}
	downPayment := pp.ClampDownPayment(cmd.DownPayment)
	schedule := BuildSchedule(pp.FinalCost, downPayment, months, pp.RequiresFullPayment, now)

	offer := storage.Offer{
		Number:            newOfferNumber(now),
		SaleID:            cmd.SaleID,
		ClientName:        cmd.ClientName,
		ClientPhone:       cmd.ClientPhone,
		ClientEmail:       cmd.ClientEmail,
		Package:           pp.Type,
		PackageName:       pp.Name,
		BaseCost:          cmd.BaseCost,
		FinalCost:         pp.FinalCost,
		TotalSavings:      pp.TotalSavings,
		DownPayment:       downPayment,
		InstallmentMonths: months,
		MonthlyPayment:    pricing.MonthlyPayment(pp.FinalCost, downPayment, months, pp.RequiresFullPayment),
		AppliedDiscounts:  storage.NewJSON(pp.AppliedDiscounts),
		PaymentSchedule:   storage.NewJSON(schedule),
		Perks: storage.NewJSON(storage.OfferPerks{
			GiftSessions:       pp.GiftSessions,
			GiftSessionsValue:  pp.GiftSessionsValue,
			BonusAccountAmount: pp.BonusAccountAmount,
			FreeZones:          cmd.FreeZones,
			FreeZonesValue:     cmd.FreeZonesValue,
		}),
		Status:    storage.OfferDraft,
		ExpiresAt: now.Add(g.cfg.TTL),
	}

	if err := g.repo.CreateOffer(ctx, &offer); err != nil {
		return storage.Offer{}, fmt.Errorf("%s: %w", operation, err)
	}

	pdf, err := g.renderer.Render(Document{Offer: offer, Services: cmd.Services, Company: g.cfg.Company})
	if err != nil {
		return offer, fmt.Errorf("%s: %w", operation, err)
	}

	path, err := g.save(offer, pdf, now)
	if err != nil {
		return offer, fmt.Errorf("%s: %w", operation, err)
	}
	if err := g.repo.UpdateOfferFile(ctx, offer.ID, path); err != nil {
		return offer, fmt.Errorf("%s: %w", operation, err)
	}
	offer.PDFPath = path

	g.logger.Info("Offer issued",
		zap.Int64("offer_id", offer.ID),
		zap.String("number", offer.Number),
		zap.String("package", string(offer.Package)),
		zap.Int64("final_cost", offer.FinalCost))

	if !cmd.SendEmail || cmd.ClientEmail == "" {
		return offer, nil
	}

	if err := g.deliver(ctx, offer, pdf); err != nil {
		g.logger.Warn("Offer delivery failed",
			zap.Int64("offer_id", offer.ID),
			zap.String("email", cmd.ClientEmail),
			zap.Error(err))
		return offer, fmt.Errorf("%s: %w: %w", operation, ErrDelivery, err)
	}

	sentAt := g.now()
	if err := g.repo.MarkOfferSent(ctx, offer.ID, sentAt); err != nil {
		return offer, fmt.Errorf("%s: %w", operation, err)
	}
	offer.EmailSent = true
	offer.SentAt = &sentAt
	offer.Status = storage.OfferSent
	return offer, nil
}

func (g *Generator) save(offer storage.Offer, pdf []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(g.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create offers directory: %w", err)
	}
	path := filepath.Join(g.cfg.Dir, fmt.Sprintf("offer_%d_%s.pdf", offer.ID, now.Format("20060102")))
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", fmt.Errorf("failed to save pdf: %w", err)
	}
	return path, nil
}

func (g *Generator) deliver(ctx context.Context, offer storage.Offer, pdf []byte) error {
	if g.mailer == nil {
		return ErrMailerDisabled
	}
	subject := fmt.Sprintf("Коммерческое предложение № %s", offer.Number)
	body := fmt.Sprintf(
		"Здравствуйте, %s!\n\nВо вложении договор по пакету «%s».\nИтого к оплате: %s.\nПредложение действует до %s.\n",
		offer.ClientName,
		offer.PackageName,
		pricing.FormatRub(offer.FinalCost),
		offer.ExpiresAt.Format("02.01.2006"),
	)
	return g.mailer.Deliver(ctx, offer.ClientEmail, subject, body, Attachment{
		Name: filepath.Base(offer.PDFPath),
		Data: pdf,
	})
}

// Expire marks overdue offers as expired.
func (g *Generator) Expire(ctx context.Context) (int64, error) {
	n, err := g.repo.ExpireOffers(ctx, g.now())
	if err != nil {
		return 0, fmt.Errorf("offer.Expire: %w", err)
	}
	if n > 0 {
		g.logger.Info("Offers expired", zap.Int64("count", n))
	}
	return n, nil
}

// RunExpiry sweeps expired offers every interval until ctx is done.
func (g *Generator) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.Expire(ctx); err != nil {
				g.logger.Error("Offer expiry sweep failed", zap.Error(err))
			}
		}
	}
}
