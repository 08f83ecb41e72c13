package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const saleColumns = `
    s.id, s.client_id, s.master_id, s.subscription_type_id, s.subscription_title,
    s.package, s.base_cost, s.final_cost, s.total_savings, s.down_payment,
    s.installment_months, s.monthly_payment, s.used_certificate, s.correction_percent,
    s.services, s.applied_discounts, s.free_zones, s.manual_gift_sessions,
    s.created_at, s.updated_at, c.name AS client_name, c.phone AS client_phone
`

// CreateSale inserts sale and fills its id and timestamps.
func (s *PostgresStorage) CreateSale(ctx context.Context, sale *Sale) error {
	const operation = "storage.CreateSale"

	const query = `
        INSERT INTO sales (
            client_id, master_id, subscription_type_id, subscription_title, package,
            base_cost, final_cost, total_savings, down_payment, installment_months,
            monthly_payment, used_certificate, correction_percent, services,
            applied_discounts, free_zones, manual_gift_sessions
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        RETURNING id, created_at, updated_at
    `

	err := s.db.QueryRowContext(ctx, query,
		sale.ClientID,
		sale.MasterID,
		sale.SubscriptionTypeID,
		sale.SubscriptionTitle,
		sale.Package,
		sale.BaseCost,
		sale.FinalCost,
		sale.TotalSavings,
		sale.DownPayment,
		sale.InstallmentMonths,
		sale.MonthlyPayment,
		sale.UsedCertificate,
		sale.CorrectionPercent,
		sale.Services,
		sale.AppliedDiscounts,
		sale.FreeZones,
		sale.ManualGiftSessions,
	).Scan(&sale.ID, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: failed to save sale: %w", operation, err)
	}
	return nil
}

func (s *PostgresStorage) GetSale(ctx context.Context, id int64) (Sale, error) {
	const operation = "storage.GetSale"

	query := `SELECT ` + saleColumns + ` FROM sales s JOIN clients c ON c.id = s.client_id WHERE s.id = $1`

	var sale Sale
	if err := s.db.GetContext(ctx, &sale, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Sale{}, fmt.Errorf("%s: sale %d: %w", operation, id, ErrNotFound)
		}
		return Sale{}, fmt.Errorf("%s: failed to get sale: %w", operation, err)
	}
	return sale, nil
}

// ListSales returns sales newest first. A non-positive limit returns all.
func (s *PostgresStorage) ListSales(ctx context.Context, limit, offset int) ([]Sale, error) {
	const operation = "storage.ListSales"

	query := `SELECT ` + saleColumns + ` FROM sales s JOIN clients c ON c.id = s.client_id ORDER BY s.created_at DESC, s.id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	sales := []Sale{}
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to get sales: %w", operation, err)
	}
	return sales, nil
}

// DeleteSale removes a sale. Its offers go with it through the foreign key.
func (s *PostgresStorage) DeleteSale(ctx context.Context, id int64) error {
	const operation = "storage.DeleteSale"

	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: failed to delete sale: %w", operation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: sale %d: %w", operation, id, ErrNotFound)
	}
	return nil
}
