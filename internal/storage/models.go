package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"salon-pos/internal/pricing"
)

// JSON stores a value of T in a JSONB column.
type JSON[T any] struct {
	V T
}

func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{V: v}
}

func (j JSON[T]) Value() (driver.Value, error) {
	data, err := json.Marshal(j.V)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

func (j *JSON[T]) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if err := json.Unmarshal(data, &j.V); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}

func (j JSON[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.V)
}

func (j *JSON[T]) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.V)
}

type Client struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SaleService is one line of the services snapshot stored with a sale.
type SaleService struct {
	ServiceID    int64  `json:"service_id"`
	ExternalID   string `json:"external_id"`
	Title        string `json:"title"`
	UnitPrice    int64  `json:"unit_price"`
	Quantity     int    `json:"quantity"`
	SessionCount int    `json:"session_count"`
	IsFreeZone   bool   `json:"is_free_zone"`
}

// Sale is an immutable record of a confirmed course purchase.
type Sale struct {
	ID                 int64                             `db:"id" json:"id"`
	ClientID           int64                             `db:"client_id" json:"client_id"`
	MasterID           string                            `db:"master_id" json:"master_id"`
	SubscriptionTypeID string                            `db:"subscription_type_id" json:"subscription_type_id"`
	SubscriptionTitle  string                            `db:"subscription_title" json:"subscription_title"`
	Package            pricing.PackageType               `db:"package" json:"package"`
	BaseCost           int64                             `db:"base_cost" json:"base_cost"`
	FinalCost          int64                             `db:"final_cost" json:"final_cost"`
	TotalSavings       int64                             `db:"total_savings" json:"total_savings"`
	DownPayment        int64                             `db:"down_payment" json:"down_payment"`
	InstallmentMonths  int                               `db:"installment_months" json:"installment_months"`
	MonthlyPayment     int64                             `db:"monthly_payment" json:"monthly_payment"`
	UsedCertificate    bool                              `db:"used_certificate" json:"used_certificate"`
	CorrectionPercent  float64                           `db:"correction_percent" json:"correction_percent"`
	Services           JSON[[]SaleService]               `db:"services" json:"services"`
	AppliedDiscounts   JSON[[]pricing.AppliedDiscount]   `db:"applied_discounts" json:"applied_discounts"`
	FreeZones          JSON[[]pricing.FreeZone]          `db:"free_zones" json:"free_zones"`
	ManualGiftSessions JSON[map[pricing.PackageType]int] `db:"manual_gift_sessions" json:"manual_gift_sessions"`
	CreatedAt          time.Time                         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time                         `db:"updated_at" json:"updated_at"`

	// Filled by ListSales and GetSale.
	ClientName  string `db:"client_name" json:"client_name,omitempty"`
	ClientPhone string `db:"client_phone" json:"client_phone,omitempty"`
}

type OfferStatus string

const (
	OfferDraft    OfferStatus = "draft"
	OfferSent     OfferStatus = "sent"
	OfferAccepted OfferStatus = "accepted"
	OfferExpired  OfferStatus = "expired"
)

func (s OfferStatus) Valid() bool {
	switch s {
	case OfferDraft, OfferSent, OfferAccepted, OfferExpired:
		return true
	}
	return false
}

// OfferPerks are the informational extras printed on a contract.
type OfferPerks struct {
	GiftSessions       int                `json:"gift_sessions"`
	GiftSessionsValue  int64              `json:"gift_sessions_value"`
	BonusAccountAmount int64              `json:"bonus_account_amount"`
	FreeZones          []pricing.FreeZone `json:"free_zones,omitempty"`
	FreeZonesValue     int64              `json:"free_zones_value"`
}

// Offer is a commercial offer with denormalized terms.
type Offer struct {
	ID                int64                           `db:"id" json:"id"`
	Number            string                          `db:"number" json:"number"`
	SaleID            *int64                          `db:"sale_id" json:"sale_id,omitempty"`
	ClientName        string                          `db:"client_name" json:"client_name"`
	ClientPhone       string                          `db:"client_phone" json:"client_phone"`
	ClientEmail       string                          `db:"client_email" json:"client_email"`
	Package           pricing.PackageType             `db:"package" json:"package"`
	PackageName       string                          `db:"package_name" json:"package_name"`
	BaseCost          int64                           `db:"base_cost" json:"base_cost"`
	FinalCost         int64                           `db:"final_cost" json:"final_cost"`
	TotalSavings      int64                           `db:"total_savings" json:"total_savings"`
	DownPayment       int64                           `db:"down_payment" json:"down_payment"`
	InstallmentMonths int                             `db:"installment_months" json:"installment_months"`
	MonthlyPayment    int64                           `db:"monthly_payment" json:"monthly_payment"`
	AppliedDiscounts  JSON[[]pricing.AppliedDiscount] `db:"applied_discounts" json:"applied_discounts"`
	PaymentSchedule   JSON[[]pricing.Installment]     `db:"payment_schedule" json:"payment_schedule"`
	Perks             JSON[OfferPerks]                `db:"perks" json:"perks"`
	PDFPath           string                          `db:"pdf_path" json:"pdf_path"`
	EmailSent         bool                            `db:"email_sent" json:"email_sent"`
	SentAt            *time.Time                      `db:"sent_at" json:"sent_at,omitempty"`
	Status            OfferStatus                     `db:"status" json:"status"`
	ExpiresAt         time.Time                       `db:"expires_at" json:"expires_at"`
	CreatedAt         time.Time                       `db:"created_at" json:"created_at"`
}

