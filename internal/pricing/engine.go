package pricing

import "fmt"

// Params is everything Compute needs besides configuration. BaseCost and
// the cart-derived figures are computed by the caller, see Quote.
type Params struct {
	BaseCost           int64
	TotalProcedures    int
	MaxSessionCount    int
	FreeZonesValue     int64
	DownPayment        int64
	InstallmentMonths  int
	UsedCertificate    bool
	CorrectionPercent  float64
	ManualGiftSessions map[PackageType]int
}

// PackagePricing is the priced offer for one package.
type PackagePricing struct {
	Type                PackageType       `json:"type"`
	Name                string            `json:"name"`
	IsAvailable         bool              `json:"is_available"`
	UnavailableReason   string            `json:"unavailable_reason,omitempty"`
	MinCost             int64             `json:"min_cost"`
	FinalCost           int64             `json:"final_cost"`
	TotalSavings        int64             `json:"total_savings"`
	MonthlyPayment      int64             `json:"monthly_payment"`
	RequiresFullPayment bool              `json:"requires_full_payment"`
	GiftSessions        int               `json:"gift_sessions"`
	GiftSessionsValue   int64             `json:"gift_sessions_value"`
	BonusAccountAmount  int64             `json:"bonus_account_amount"`
	AppliedDiscounts    []AppliedDiscount `json:"applied_discounts"`

	minDownPaymentPercent float64
	minimumDownPayment    int64
}

// MinDownPayment is the smallest first payment accepted for this package.
func (p PackagePricing) MinDownPayment() int64 {
	if p.RequiresFullPayment {
		return p.FinalCost
	}
	v := applyFraction(p.FinalCost, p.minDownPaymentPercent)
	if v < p.minimumDownPayment {
		v = p.minimumDownPayment
	}
	if v > p.FinalCost {
		v = p.FinalCost
	}
	if v < 0 {
		v = 0
	}
	return v
}

// MaxDownPayment is always the full course cost.
func (p PackagePricing) MaxDownPayment() int64 {
	return p.FinalCost
}

// ClampDownPayment fits value into the package bounds. Full payment
// packages always get FinalCost.
func (p PackagePricing) ClampDownPayment(value int64) int64 {
	if p.RequiresFullPayment {
		return p.FinalCost
	}
	if min := p.MinDownPayment(); value < min {
		return min
	}
	if max := p.MaxDownPayment(); value > max {
		return max
	}
	return value
}

// Discount returns the applied amount of kind k, zero when absent.
func (p PackagePricing) Discount(k DiscountKind) int64 {
	for _, d := range p.AppliedDiscounts {
		if d.Type == k {
			return d.Amount
		}
	}
	return 0
}

// Result is one full recomputation of the calculator.
type Result struct {
	BaseCost            int64                          `json:"base_cost"`
	TotalProcedures     int                            `json:"total_procedures"`
	MaxSessionCount     int                            `json:"max_session_count"`
	FreeZonesValue      int64                          `json:"free_zones_value"`
	CertificateEligible bool                           `json:"certificate_eligible"`
	Packages            map[PackageType]PackagePricing `json:"packages"`
}

func (r *Result) Package(t PackageType) (PackagePricing, bool) {
	if r == nil {
		return PackagePricing{}, false
	}
	p, ok := r.Packages[t]
	return p, ok
}

// Available reports whether t is priced and selectable.
func (r *Result) Available(t PackageType) bool {
	p, ok := r.Package(t)
	return ok && p.IsAvailable
}

// ClampCorrection bounds a manual correction to [0, MaxCorrectionPercent].
func ClampCorrection(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > MaxCorrectionPercent {
		return MaxCorrectionPercent
	}
	return percent
}

// CertificateEligible reports whether a course of baseCost may use a certificate.
func CertificateEligible(baseCost int64, s Settings) bool {
	return baseCost > 0 && baseCost >= s.CertificateMinCourseAmount
}

// Compute prices every active package. It returns nil for an empty cart.
func Compute(p Params, cfg Config) *Result {
	if p.BaseCost <= 0 {
		return nil
	}

	settings := cfg.Settings
	maxSessions := p.MaxSessionCount
	if maxSessions <= 0 {
		maxSessions = DefaultSessionFallback
	}

	var bulk int64
	if settings.BulkDiscountThreshold > 0 && maxSessions >= settings.BulkDiscountThreshold {
		bulk = applyFraction(p.BaseCost, settings.BulkDiscountPercentage)
	}

	eligible := CertificateEligible(p.BaseCost, settings)
	var certificate int64
	if p.UsedCertificate && eligible {
		certificate = settings.CertificateDiscountAmount
	}

	correction := applyPercent(p.BaseCost, ClampCorrection(p.CorrectionPercent))

	result := &Result{
		BaseCost:            p.BaseCost,
		TotalProcedures:     p.TotalProcedures,
		MaxSessionCount:     maxSessions,
		FreeZonesValue:      p.FreeZonesValue,
		CertificateEligible: eligible,
		Packages:            make(map[PackageType]PackagePricing, len(PackageTypes)),
	}

	for _, def := range cfg.ActivePackages() {
		result.Packages[def.Type] = pricePackage(def, p, settings, maxSessions, bulk, certificate, correction)
	}
	return result
}

func pricePackage(def PackageDefinition, p Params, settings Settings, maxSessions int, bulk, certificate, correction int64) PackagePricing {
	packageDiscount := applyFraction(p.BaseCost, def.EffectiveDiscount())

	discounts := []AppliedDiscount{{Type: DiscountPackage, Amount: packageDiscount}}
	if bulk > 0 {
		discounts = append(discounts, AppliedDiscount{Type: DiscountBulk, Amount: bulk})
	}
	if certificate > 0 {
		discounts = append(discounts, AppliedDiscount{Type: DiscountCertificate, Amount: certificate})
	}
	if correction > 0 {
		discounts = append(discounts, AppliedDiscount{Type: DiscountCorrection, Amount: correction})
	}

	gifts := def.GiftSessions
	if override, ok := p.ManualGiftSessions[def.Type]; ok {
		gifts = override
	}
	if gifts < 0 {
		gifts = 0
	}
	giftValue := divide(p.BaseCost, gifts, maxSessions)
	if giftValue > 0 {
		discounts = append(discounts, AppliedDiscount{Type: DiscountGiftSessions, Amount: giftValue})
	}

	savings := packageDiscount + bulk + certificate + correction
	final := p.BaseCost - savings

	pp := PackagePricing{
		Type:                  def.Type,
		Name:                  def.Name,
		IsAvailable:           p.BaseCost >= def.MinCost,
		MinCost:               def.MinCost,
		FinalCost:             final,
		TotalSavings:          savings,
		RequiresFullPayment:   def.RequiresFullPayment,
		GiftSessions:          gifts,
		GiftSessionsValue:     giftValue,
		BonusAccountAmount:    applyFraction(final, def.BonusAccountPercent),
		AppliedDiscounts:      discounts,
		minDownPaymentPercent: def.MinDownPaymentPercent,
		minimumDownPayment:    settings.MinimumDownPayment,
	}
	if !pp.IsAvailable {
		pp.UnavailableReason = fmt.Sprintf(
			"Не хватает %s до минимальной стоимости курса %s",
			FormatRub(def.MinCost-p.BaseCost),
			FormatRub(def.MinCost),
		)
	}
	pp.MonthlyPayment = MonthlyPayment(final, p.DownPayment, p.InstallmentMonths, def.RequiresFullPayment)
	return pp
}

// Quote derives the cart figures from a selection and prices it.
func Quote(sel Selection, adj Adjustments, cfg Config) *Result {
	return Compute(Params{
		BaseCost:           BaseCost(sel.Services, sel.FreeZones),
		TotalProcedures:    TotalProcedures(sel.Services, sel.FreeZones),
		MaxSessionCount:    MaxSessionCount(sel.Services, DefaultSessionFallback),
		FreeZonesValue:     FreeZonesValue(sel.FreeZones),
		DownPayment:        adj.DownPayment,
		InstallmentMonths:  adj.InstallmentMonths,
		UsedCertificate:    adj.UsedCertificate,
		CorrectionPercent:  adj.CorrectionPercent,
		ManualGiftSessions: adj.ManualGiftSessions,
	}, cfg)
}
