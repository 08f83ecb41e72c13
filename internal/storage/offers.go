package storage

import (
	"context"
	"fmt"
	"time"
)

// CreateOffer inserts offer and fills its id and creation time.
func (s *PostgresStorage) CreateOffer(ctx context.Context, offer *Offer) error {
	const operation = "storage.CreateOffer"

	if offer.Number == "" {
		return fmt.Errorf("%s: offer number is empty", operation)
	}
	if !offer.Status.Valid() {
		return fmt.Errorf("%s: unknown offer status %q", operation, offer.Status)
	}

	const query = `
        INSERT INTO offers (
            number, sale_id, client_name, client_phone, client_email, package,
            package_name, base_cost, final_cost, total_savings, down_payment,
            installment_months, monthly_payment, applied_discounts, payment_schedule,
            perks, pdf_path, email_sent, sent_at, status, expires_at
        ) VALUES (
            :number, :sale_id, :client_name, :client_phone, :client_email, :package,
            :package_name, :base_cost, :final_cost, :total_savings, :down_payment,
            :installment_months, :monthly_payment, :applied_discounts, :payment_schedule,
            :perks, :pdf_path, :email_sent, :sent_at, :status, :expires_at
        )
        RETURNING id, created_at
    `

	rows, err := s.db.NamedQueryContext(ctx, query, offer)
	if err != nil {
		return fmt.Errorf("%s: failed to save offer: %w", operation, err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&offer.ID, &offer.CreatedAt); err != nil {
			return fmt.Errorf("%s: scan: %w", operation, err)
		}
	}
	return rows.Err()
}

// UpdateOfferFile records where the rendered contract was written.
func (s *PostgresStorage) UpdateOfferFile(ctx context.Context, id int64, path string) error {
	const operation = "storage.UpdateOfferFile"

	if _, err := s.db.ExecContext(ctx, `UPDATE offers SET pdf_path = $2 WHERE id = $1`, id, path); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// MarkOfferSent flags a delivered offer.
func (s *PostgresStorage) MarkOfferSent(ctx context.Context, id int64, sentAt time.Time) error {
	const operation = "storage.MarkOfferSent"

	const query = `
        UPDATE offers
        SET email_sent = TRUE, sent_at = $2, status = 'sent'
        WHERE id = $1 AND status = 'draft'
    `
	if _, err := s.db.ExecContext(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// ExpireOffers marks every draft or sent offer past its expiry as expired.
func (s *PostgresStorage) ExpireOffers(ctx context.Context, now time.Time) (int64, error) {
	const operation = "storage.ExpireOffers"

	const query = `
        UPDATE offers
        SET status = 'expired'
        WHERE status IN ('draft', 'sent') AND expires_at <= $1
    `
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}
	return n, nil
}

func (s *PostgresStorage) ListOffersBySale(ctx context.Context, saleID int64) ([]Offer, error) {
	const operation = "storage.ListOffersBySale"

	offers := []Offer{}
	if err := s.db.SelectContext(ctx, &offers, `SELECT * FROM offers WHERE sale_id = $1 ORDER BY created_at`, saleID); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return offers, nil
}
