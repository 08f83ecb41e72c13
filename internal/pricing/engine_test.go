package pricing

import (
	"strings"
	"testing"
)

func economyOnly() Config {
	return Config{
		Settings: Settings{
			MinimumDownPayment:         5000,
			BulkDiscountThreshold:      15,
			BulkDiscountPercentage:     0.025,
			InstallmentMonthsOptions:   []int{2, 3, 4, 5, 6},
			CertificateDiscountAmount:  3000,
			CertificateMinCourseAmount: 25000,
		},
		Packages: []PackageDefinition{{
			Type:                  PackageEconomy,
			Name:                  "Эконом",
			DiscountPercent:       0.20,
			MinCost:               10000,
			MinDownPaymentPercent: 0.01,
			IsActive:              true,
		}},
	}
}

func fullConfig() Config {
	cfg := economyOnly()
	cfg.Packages = append(cfg.Packages,
		PackageDefinition{
			Type:                  PackageVIP,
			Name:                  "VIP",
			DiscountPercent:       0.30,
			MinCost:               50000,
			MinDownPaymentPercent: 1,
			RequiresFullPayment:   true,
			GiftSessions:          3,
			BonusAccountPercent:   0.05,
			IsActive:              true,
		},
		PackageDefinition{
			Type:                  PackageStandard,
			Name:                  "Стандарт",
			DiscountPercent:       0.25,
			MinCost:               25000,
			MinDownPaymentPercent: 0.3,
			GiftSessions:          1,
			IsActive:              true,
		},
	)
	return cfg
}

func TestCompute_RoundTripScenario(t *testing.T) {
	sel := Selection{Services: []SelectedService{{
		Service:      Service{ID: 1, Title: "Лазер: подмышки", Price: 2000},
		Quantity:     1,
		SessionCount: 10,
	}}}

	res := Quote(sel, Adjustments{}, economyOnly())
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.BaseCost != 20000 {
		t.Errorf("base cost: got %d, want 20000", res.BaseCost)
	}

	eco, ok := res.Package(PackageEconomy)
	if !ok {
		t.Fatal("economy package missing")
	}
	if got := eco.Discount(DiscountPackage); got != 4000 {
		t.Errorf("package discount: got %d, want 4000", got)
	}
	if !eco.IsAvailable {
		t.Errorf("economy should be available, reason %q", eco.UnavailableReason)
	}
	if eco.FinalCost != 16000 {
		t.Errorf("final cost: got %d, want 16000", eco.FinalCost)
	}
	if eco.TotalSavings != 4000 {
		t.Errorf("total savings: got %d, want 4000", eco.TotalSavings)
	}
	if got := eco.MinDownPayment(); got != 5000 {
		t.Errorf("min down payment: got %d, want 5000", got)
	}
	if got := eco.MaxDownPayment(); got != 16000 {
		t.Errorf("max down payment: got %d, want 16000", got)
	}
	if len(eco.AppliedDiscounts) != 1 || eco.AppliedDiscounts[0].Type != DiscountPackage {
		t.Errorf("expected only the package discount, got %+v", eco.AppliedDiscounts)
	}
}

func TestCompute_EmptyCart(t *testing.T) {
	if res := Compute(Params{BaseCost: 0, MaxSessionCount: 0}, fullConfig()); res != nil {
		t.Fatalf("expected nil result for empty cart, got %+v", res)
	}
	if res := Quote(Selection{}, Adjustments{}, fullConfig()); res != nil {
		t.Fatalf("expected nil quote for empty selection, got %+v", res)
	}
}

func TestCompute_SavingsIdentity(t *testing.T) {
	cases := []Params{
		{BaseCost: 20000, MaxSessionCount: 10},
		{BaseCost: 33333, MaxSessionCount: 15, UsedCertificate: true, CorrectionPercent: 7.5},
		{BaseCost: 98765, MaxSessionCount: 20, UsedCertificate: true, CorrectionPercent: 3.3,
			ManualGiftSessions: map[PackageType]int{PackageEconomy: 2}},
		{BaseCost: 1, MaxSessionCount: 3, CorrectionPercent: 10},
	}
	for _, p := range cases {
		res := Compute(p, fullConfig())
		for typ, pp := range res.Packages {
			if pp.FinalCost+pp.TotalSavings != res.BaseCost {
				t.Errorf("%s base %d: final %d + savings %d != base", typ, p.BaseCost, pp.FinalCost, pp.TotalSavings)
			}
			var sum int64
			for _, d := range pp.AppliedDiscounts {
				if d.Type.Informational() {
					continue
				}
				sum += d.Amount
			}
			if sum != pp.TotalSavings {
				t.Errorf("%s base %d: discounts sum %d != savings %d", typ, p.BaseCost, sum, pp.TotalSavings)
			}
		}
	}
}

func TestCompute_BulkThresholdBoundary(t *testing.T) {
	below := Compute(Params{BaseCost: 40000, MaxSessionCount: 14}, economyOnly())
	at := Compute(Params{BaseCost: 40000, MaxSessionCount: 15}, economyOnly())

	if got := below.Packages[PackageEconomy].Discount(DiscountBulk); got != 0 {
		t.Errorf("14 sessions: bulk discount %d, want 0", got)
	}
	if got := at.Packages[PackageEconomy].Discount(DiscountBulk); got != 1000 {
		t.Errorf("15 sessions: bulk discount %d, want 1000", got)
	}
}

func TestCompute_CertificateGating(t *testing.T) {
	cfg := economyOnly()
	min := cfg.Settings.CertificateMinCourseAmount

	below := Compute(Params{BaseCost: min - 1, UsedCertificate: true}, cfg)
	if below.CertificateEligible {
		t.Error("course below the minimum must not be certificate eligible")
	}
	if got := below.Packages[PackageEconomy].Discount(DiscountCertificate); got != 0 {
		t.Errorf("below minimum: certificate discount %d, want 0", got)
	}

	at := Compute(Params{BaseCost: min, UsedCertificate: true}, cfg)
	if got := at.Packages[PackageEconomy].Discount(DiscountCertificate); got != 3000 {
		t.Errorf("at minimum: certificate discount %d, want 3000", got)
	}

	unused := Compute(Params{BaseCost: min}, cfg)
	if got := unused.Packages[PackageEconomy].Discount(DiscountCertificate); got != 0 {
		t.Errorf("unused certificate: discount %d, want 0", got)
	}
}

func TestCompute_CorrectionClamp(t *testing.T) {
	over := Compute(Params{BaseCost: 30000, CorrectionPercent: 15}, economyOnly())
	if got := over.Packages[PackageEconomy].Discount(DiscountCorrection); got != 3000 {
		t.Errorf("correction 15%%: got %d, want 3000 (clamped to 10%%)", got)
	}
	negative := Compute(Params{BaseCost: 30000, CorrectionPercent: -5}, economyOnly())
	if got := negative.Packages[PackageEconomy].Discount(DiscountCorrection); got != 0 {
		t.Errorf("negative correction: got %d, want 0", got)
	}
}

func TestCompute_AvailabilityMonotonic(t *testing.T) {
	cfg := fullConfig()
	seen := map[PackageType]bool{}
	for base := int64(1000); base <= 120000; base += 1000 {
		res := Compute(Params{BaseCost: base, MaxSessionCount: 10}, cfg)
		for typ, pp := range res.Packages {
			if seen[typ] && !pp.IsAvailable {
				t.Fatalf("%s became unavailable again at base %d", typ, base)
			}
			if pp.IsAvailable {
				seen[typ] = true
			}
		}
	}
}

func TestCompute_UnavailableStillPriced(t *testing.T) {
	res := Compute(Params{BaseCost: 20000, MaxSessionCount: 10}, fullConfig())
	vip := res.Packages[PackageVIP]
	if vip.IsAvailable {
		t.Fatal("vip should be unavailable below 50 000")
	}
	if vip.FinalCost != 14000 {
		t.Errorf("vip final cost: got %d, want 14000", vip.FinalCost)
	}
	if !strings.Contains(vip.UnavailableReason, "30 000") || !strings.Contains(vip.UnavailableReason, "50 000") {
		t.Errorf("reason should mention shortfall and minimum, got %q", vip.UnavailableReason)
	}
	if res.Available(PackageVIP) {
		t.Error("Available must mirror IsAvailable")
	}
}

func TestCompute_GiftSessions(t *testing.T) {
	cfg := fullConfig()
	res := Compute(Params{BaseCost: 60000, MaxSessionCount: 12}, cfg)

	vip := res.Packages[PackageVIP]
	if vip.GiftSessions != 3 || vip.GiftSessionsValue != 15000 {
		t.Errorf("vip gifts: got %d worth %d, want 3 worth 15000", vip.GiftSessions, vip.GiftSessionsValue)
	}
	if vip.FinalCost != 42000 {
		t.Errorf("gift value must not reduce final cost: got %d, want 42000", vip.FinalCost)
	}
	if vip.BonusAccountAmount != 2100 {
		t.Errorf("bonus account: got %d, want 2100", vip.BonusAccountAmount)
	}

	override := Compute(Params{BaseCost: 60000, MaxSessionCount: 12,
		ManualGiftSessions: map[PackageType]int{PackageVIP: 0, PackageEconomy: 2}}, cfg)
	if got := override.Packages[PackageVIP].Discount(DiscountGiftSessions); got != 0 {
		t.Errorf("manual zero override should drop the gift entry, got %d", got)
	}
	if got := override.Packages[PackageEconomy].GiftSessionsValue; got != 10000 {
		t.Errorf("economy manual gifts: got %d, want 10000", got)
	}

	fallback := Compute(Params{BaseCost: 60000, MaxSessionCount: 0}, cfg)
	if fallback.MaxSessionCount != DefaultSessionFallback {
		t.Errorf("fallback session count: got %d", fallback.MaxSessionCount)
	}
}

func TestCompute_DynamicDiscount(t *testing.T) {
	cfg := economyOnly()
	cfg.Packages[0].DynamicDiscount = 0.35
	res := Compute(Params{BaseCost: 10000}, cfg)
	if got := res.Packages[PackageEconomy].Discount(DiscountPackage); got != 3500 {
		t.Errorf("dynamic discount should win: got %d, want 3500", got)
	}

	cfg.Packages[0].DynamicDiscount = 0.1
	res = Compute(Params{BaseCost: 10000}, cfg)
	if got := res.Packages[PackageEconomy].Discount(DiscountPackage); got != 2000 {
		t.Errorf("configured discount should win: got %d, want 2000", got)
	}
}

func TestCompute_InactivePackagesSkipped(t *testing.T) {
	cfg := fullConfig()
	for i := range cfg.Packages {
		if cfg.Packages[i].Type == PackageStandard {
			cfg.Packages[i].IsActive = false
		}
	}
	res := Compute(Params{BaseCost: 30000}, cfg)
	if _, ok := res.Packages[PackageStandard]; ok {
		t.Error("inactive package must not be priced")
	}
	if len(res.Packages) != 2 {
		t.Errorf("expected 2 packages, got %d", len(res.Packages))
	}
}

func TestPackagePricing_DownPaymentBounds(t *testing.T) {
	res := Compute(Params{BaseCost: 100000, MaxSessionCount: 10, DownPayment: 1000, InstallmentMonths: 4}, fullConfig())

	vip := res.Packages[PackageVIP]
	if vip.MinDownPayment() != vip.FinalCost || vip.ClampDownPayment(1) != vip.FinalCost {
		t.Errorf("full payment package must pin the down payment to %d", vip.FinalCost)
	}
	if vip.MonthlyPayment != 0 {
		t.Errorf("full payment package monthly payment: got %d, want 0", vip.MonthlyPayment)
	}

	std := res.Packages[PackageStandard]
	if got := std.MinDownPayment(); got != 22500 {
		t.Errorf("standard min down payment: got %d, want 22500", got)
	}
	if got := std.ClampDownPayment(1000); got != 22500 {
		t.Errorf("clamp below min: got %d", got)
	}
	if got := std.ClampDownPayment(10_000_000); got != std.FinalCost {
		t.Errorf("clamp above max: got %d", got)
	}
	if std.MonthlyPayment != 18500 {
		t.Errorf("standard monthly: got %d, want 18500", std.MonthlyPayment)
	}
}

func TestMinDownPayment_NeverAboveFinalCost(t *testing.T) {
	res := Compute(Params{BaseCost: 4000}, Config{
		Settings: DefaultSettings(),
		Packages: []PackageDefinition{{Type: PackageEconomy, IsActive: true, MinDownPaymentPercent: 0.1}},
	})
	eco := res.Packages[PackageEconomy]
	if got := eco.MinDownPayment(); got != 4000 {
		t.Errorf("floor above course cost should cap at final cost, got %d", got)
	}
}
