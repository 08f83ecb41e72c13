package storage

import (
	"context"
	"fmt"

	"salon-pos/internal/pricing"
)

// ListPackages returns every package definition, active or not, ordered
// for display.
func (s *PostgresStorage) ListPackages(ctx context.Context) ([]pricing.PackageDefinition, error) {
	const operation = "storage.ListPackages"

	var packages []pricing.PackageDefinition
	err := s.cached(ctx, packagesCacheKey, &packages, func() error {
		const query = `
            SELECT type, name, discount_percent, dynamic_discount, min_cost,
                   min_down_payment_percent, requires_full_payment, gift_sessions,
                   bonus_account_percent, is_active, sort_order
            FROM packages
            ORDER BY sort_order, type
        `
		if err := s.db.SelectContext(ctx, &packages, query); err != nil {
			return fmt.Errorf("failed to get packages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return packages, nil
}

// UpsertPackage replaces the definition of p.Type.
func (s *PostgresStorage) UpsertPackage(ctx context.Context, p pricing.PackageDefinition) error {
	const operation = "storage.UpsertPackage"

	if !p.Type.Valid() {
		return fmt.Errorf("%s: unknown package type %q", operation, p.Type)
	}

	const query = `
        INSERT INTO packages (
            type, name, discount_percent, dynamic_discount, min_cost,
            min_down_payment_percent, requires_full_payment, gift_sessions,
            bonus_account_percent, is_active, sort_order, updated_at
        ) VALUES (
            :type, :name, :discount_percent, :dynamic_discount, :min_cost,
            :min_down_payment_percent, :requires_full_payment, :gift_sessions,
            :bonus_account_percent, :is_active, :sort_order, NOW()
        )
        ON CONFLICT (type) DO UPDATE SET
            name = EXCLUDED.name,
            discount_percent = EXCLUDED.discount_percent,
            dynamic_discount = EXCLUDED.dynamic_discount,
            min_cost = EXCLUDED.min_cost,
            min_down_payment_percent = EXCLUDED.min_down_payment_percent,
            requires_full_payment = EXCLUDED.requires_full_payment,
            gift_sessions = EXCLUDED.gift_sessions,
            bonus_account_percent = EXCLUDED.bonus_account_percent,
            is_active = EXCLUDED.is_active,
            sort_order = EXCLUDED.sort_order,
            updated_at = NOW()
    `
	if _, err := s.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("%s: failed to save package: %w", operation, err)
	}

	s.invalidate(ctx, packagesCacheKey)
	return nil
}
