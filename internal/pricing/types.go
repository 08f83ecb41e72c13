package pricing

import (
	"fmt"
	"sort"
	"strings"
)

// PackageType is one of the three course packages offered at the counter.
type PackageType string

const (
	PackageVIP      PackageType = "vip"
	PackageStandard PackageType = "standard"
	PackageEconomy  PackageType = "economy"
)

// PackageTypes lists every package in display order.
var PackageTypes = []PackageType{PackageVIP, PackageStandard, PackageEconomy}

func (t PackageType) Valid() bool {
	switch t {
	case PackageVIP, PackageStandard, PackageEconomy:
		return true
	}
	return false
}

func ParsePackageType(s string) (PackageType, error) {
	t := PackageType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown package type %q", s)
	}
	return t, nil
}

// DiscountKind tags an entry of PackagePricing.AppliedDiscounts.
type DiscountKind string

const (
	DiscountPackage      DiscountKind = "package"
	DiscountBulk         DiscountKind = "bulk"
	DiscountCertificate  DiscountKind = "certificate"
	DiscountCorrection   DiscountKind = "correction"
	DiscountGiftSessions DiscountKind = "gift_sessions"
)

// Informational reports whether the discount is shown to the client but
// not subtracted from the course cost.
func (k DiscountKind) Informational() bool {
	return k == DiscountGiftSessions
}

type AppliedDiscount struct {
	Type   DiscountKind `json:"type"`
	Amount int64        `json:"amount"`
}

// PackageDefinition is an admin-editable package row.
type PackageDefinition struct {
	Type                  PackageType `json:"type" db:"type"`
	Name                  string      `json:"name" db:"name"`
	DiscountPercent       float64     `json:"discount_percent" db:"discount_percent"`
	DynamicDiscount       float64     `json:"dynamic_discount" db:"dynamic_discount"`
	MinCost               int64       `json:"min_cost" db:"min_cost"`
	MinDownPaymentPercent float64     `json:"min_down_payment_percent" db:"min_down_payment_percent"`
	RequiresFullPayment   bool        `json:"requires_full_payment" db:"requires_full_payment"`
	GiftSessions          int         `json:"gift_sessions" db:"gift_sessions"`
	BonusAccountPercent   float64     `json:"bonus_account_percent" db:"bonus_account_percent"`
	IsActive              bool        `json:"is_active" db:"is_active"`
	SortOrder             int         `json:"sort_order" db:"sort_order"`
}

// EffectiveDiscount is the configured discount, raised to the dynamic
// override when one is set.
func (d PackageDefinition) EffectiveDiscount() float64 {
	if d.DynamicDiscount > d.DiscountPercent {
		return d.DynamicDiscount
	}
	return d.DiscountPercent
}

// Settings are the calculator key/value settings after defaults are applied.
type Settings struct {
	MinimumDownPayment         int64   `json:"minimum_down_payment"`
	BulkDiscountThreshold      int     `json:"bulk_discount_threshold"`
	BulkDiscountPercentage     float64 `json:"bulk_discount_percentage"`
	InstallmentMonthsOptions   []int   `json:"installment_months_options"`
	CertificateDiscountAmount  int64   `json:"certificate_discount_amount"`
	CertificateMinCourseAmount int64   `json:"certificate_min_course_amount"`
}

const (
	DefaultMinimumDownPayment         int64   = 5000
	DefaultBulkDiscountThreshold              = 15
	DefaultBulkDiscountPercentage     float64 = 0.025
	DefaultCertificateDiscountAmount  int64   = 3000
	DefaultCertificateMinCourseAmount int64   = 25000

	// DefaultSessionFallback stands in for the course length while the cart is empty.
	DefaultSessionFallback = 10

	MinSessionsPerService = 3
	MaxSessionsPerService = 20

	MaxCorrectionPercent = 10.0
)

func DefaultInstallmentMonths() []int {
	return []int{2, 3, 4, 5, 6}
}

func DefaultSettings() Settings {
	return Settings{
		MinimumDownPayment:         DefaultMinimumDownPayment,
		BulkDiscountThreshold:      DefaultBulkDiscountThreshold,
		BulkDiscountPercentage:     DefaultBulkDiscountPercentage,
		InstallmentMonthsOptions:   DefaultInstallmentMonths(),
		CertificateDiscountAmount:  DefaultCertificateDiscountAmount,
		CertificateMinCourseAmount: DefaultCertificateMinCourseAmount,
	}
}

// NormalizeMonths sorts and deduplicates month options, dropping non-positive values.
func NormalizeMonths(months []int) []int {
	seen := make(map[int]bool, len(months))
	out := make([]int, 0, len(months))
	for _, m := range months {
		if m <= 0 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

// ValidInstallmentMonths reports whether months is one of the allowed options.
func (s Settings) ValidInstallmentMonths(months int) bool {
	for _, m := range s.InstallmentMonthsOptions {
		if m == months {
			return true
		}
	}
	return false
}

// DefaultInstallment is the option preselected for a fresh session.
func (s Settings) DefaultInstallment() int {
	if len(s.InstallmentMonthsOptions) == 0 {
		return 0
	}
	return s.InstallmentMonthsOptions[0]
}

// Config is the read-only snapshot the engine prices against.
type Config struct {
	Settings Settings            `json:"settings"`
	Packages []PackageDefinition `json:"packages"`
}

// Package returns the active definition for t.
func (c Config) Package(t PackageType) (PackageDefinition, bool) {
	for _, p := range c.Packages {
		if p.Type == t && p.IsActive {
			return p, true
		}
	}
	return PackageDefinition{}, false
}

// ActivePackages returns one active definition per type in display order.
func (c Config) ActivePackages() []PackageDefinition {
	out := make([]PackageDefinition, 0, len(PackageTypes))
	for _, t := range PackageTypes {
		if p, ok := c.Package(t); ok {
			out = append(out, p)
		}
	}
	return out
}
