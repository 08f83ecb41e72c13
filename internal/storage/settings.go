package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"salon-pos/internal/pricing"
)

const (
	SettingMinimumDownPayment         = "minimum_down_payment"
	SettingBulkDiscountThreshold      = "bulk_discount_threshold"
	SettingBulkDiscountPercentage     = "bulk_discount_percentage"
	SettingInstallmentMonthsOptions   = "installment_months_options"
	SettingCertificateDiscountAmount  = "certificate_discount_amount"
	SettingCertificateMinCourseAmount = "certificate_min_course_amount"
)

// KnownSetting reports whether key is read by ParseSettings.
func KnownSetting(key string) bool {
	switch key {
	case SettingMinimumDownPayment, SettingBulkDiscountThreshold, SettingBulkDiscountPercentage,
		SettingInstallmentMonthsOptions, SettingCertificateDiscountAmount, SettingCertificateMinCourseAmount:
		return true
	}
	return false
}

const (
	settingsCacheKey = "calculator:settings"
	packagesCacheKey = "calculator:packages"
)

// ParseSettings applies the raw key/value rows on top of the defaults.
// Missing or unparsable values keep their default.
func ParseSettings(raw map[string]string) pricing.Settings {
	s := pricing.DefaultSettings()

	if v, ok := parseInt(raw[SettingMinimumDownPayment]); ok && v >= 0 {
		s.MinimumDownPayment = v
	}
	if v, ok := parseInt(raw[SettingBulkDiscountThreshold]); ok && v > 0 {
		s.BulkDiscountThreshold = int(v)
	}
	if v, ok := parseFloat(raw[SettingBulkDiscountPercentage]); ok && v >= 0 && v <= 1 {
		s.BulkDiscountPercentage = v
	}
	if months := parseMonths(raw[SettingInstallmentMonthsOptions]); len(months) > 0 {
		s.InstallmentMonthsOptions = months
	}
	if v, ok := parseInt(raw[SettingCertificateDiscountAmount]); ok && v >= 0 {
		s.CertificateDiscountAmount = v
	}
	if v, ok := parseInt(raw[SettingCertificateMinCourseAmount]); ok && v >= 0 {
		s.CertificateMinCourseAmount = v
	}
	return s
}

func parseInt(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return 0, false
		}
		return int64(f), true
	}
	return n, true
}

func parseFloat(v string) (float64, bool) {
	v = strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseMonths accepts a JSON array ("[2,3,6]") or a comma separated list.
func parseMonths(v string) []int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	var months []int
	if strings.HasPrefix(v, "[") {
		if err := json.Unmarshal([]byte(v), &months); err != nil {
			return nil
		}
		return pricing.NormalizeMonths(months)
	}
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		months = append(months, n)
	}
	return pricing.NormalizeMonths(months)
}

type settingRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// GetSettings returns the calculator settings with defaults applied.
func (s *PostgresStorage) GetSettings(ctx context.Context) (pricing.Settings, error) {
	const operation = "storage.GetSettings"

	var settings pricing.Settings
	err := s.cached(ctx, settingsCacheKey, &settings, func() error {
		const query = `SELECT key, value FROM calculator_settings`

		var rows []settingRow
		if err := s.db.SelectContext(ctx, &rows, query); err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		raw := make(map[string]string, len(rows))
		for _, r := range rows {
			raw[r.Key] = r.Value
		}
		settings = ParseSettings(raw)
		return nil
	})
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("%s: %w", operation, err)
	}
	return settings, nil
}

// SetSetting upserts one key and drops the cached settings.
func (s *PostgresStorage) SetSetting(ctx context.Context, key, value string) error {
	const operation = "storage.SetSetting"

	const query = `
        INSERT INTO calculator_settings (key, value, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
    `
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("%s: failed to save setting %q: %w", operation, key, err)
	}

	s.invalidate(ctx, settingsCacheKey)
	return nil
}

// PricingConfig is the snapshot every pricing consumer reads.
func (s *PostgresStorage) PricingConfig(ctx context.Context) (pricing.Config, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return pricing.Config{}, err
	}
	packages, err := s.ListPackages(ctx)
	if err != nil {
		return pricing.Config{}, err
	}
	return pricing.Config{Settings: settings, Packages: packages}, nil
}
