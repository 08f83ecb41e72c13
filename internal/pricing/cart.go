package pricing

// Service is a catalog entry as the calculator sees it.
type Service struct {
	ID         int64  `json:"id" db:"id"`
	ExternalID string `json:"external_id" db:"external_id"`
	Title      string `json:"title" db:"title"`
	Price      int64  `json:"price" db:"price"`
	IsActive   bool   `json:"is_active" db:"is_active"`
}

// SelectedService is a service in the master's cart.
type SelectedService struct {
	Service
	Quantity     int    `json:"quantity"`
	SessionCount int    `json:"session_count"`
	CustomPrice  *int64 `json:"custom_price,omitempty"`
}

// FreeZone is a selected service handed to the client as a gift.
type FreeZone struct {
	ServiceID         int64  `json:"service_id"`
	Title             string `json:"title"`
	PricePerProcedure int64  `json:"price_per_procedure"`
	Quantity          int    `json:"quantity"`
}

// Selection is the priced part of a cart.
type Selection struct {
	Services  []SelectedService `json:"services"`
	FreeZones []FreeZone        `json:"free_zones"`
}

// Adjustments are the live controls next to the cart.
type Adjustments struct {
	DownPayment        int64               `json:"down_payment"`
	InstallmentMonths  int                 `json:"installment_months"`
	UsedCertificate    bool                `json:"used_certificate"`
	CorrectionPercent  float64             `json:"correction_percent"`
	ManualGiftSessions map[PackageType]int `json:"manual_gift_sessions,omitempty"`
}

// EffectivePrice resolves the unit price of a selected service: an edited
// price wins over the catalog price, and a missing or negative price is zero.
func EffectivePrice(s SelectedService) int64 {
	if s.CustomPrice != nil && *s.CustomPrice > 0 {
		return *s.CustomPrice
	}
	if s.Price > 0 {
		return s.Price
	}
	return 0
}

// ProcedureCount is the number of procedures bought for s.
func ProcedureCount(s SelectedService) int {
	if s.Quantity <= 0 || s.SessionCount <= 0 {
		return 0
	}
	return s.Quantity * s.SessionCount
}

func freeZoneIndex(zones []FreeZone) map[int64]bool {
	idx := make(map[int64]bool, len(zones))
	for _, z := range zones {
		idx[z.ServiceID] = true
	}
	return idx
}

// BaseCost sums the purchased services. Free zones contribute nothing.
func BaseCost(services []SelectedService, zones []FreeZone) int64 {
	free := freeZoneIndex(zones)
	var total int64
	for _, s := range services {
		if free[s.ID] {
			continue
		}
		total += EffectivePrice(s) * int64(ProcedureCount(s))
	}
	return total
}

// TotalProcedures counts purchased procedures, free zones excluded.
func TotalProcedures(services []SelectedService, zones []FreeZone) int {
	free := freeZoneIndex(zones)
	total := 0
	for _, s := range services {
		if free[s.ID] {
			continue
		}
		total += ProcedureCount(s)
	}
	return total
}

func FreeZonesValue(zones []FreeZone) int64 {
	var total int64
	for _, z := range zones {
		if z.Quantity <= 0 || z.PricePerProcedure <= 0 {
			continue
		}
		total += z.PricePerProcedure * int64(z.Quantity)
	}
	return total
}

// MaxSessionCount is the course length: the longest session count among
// selected services, or fallback for an empty cart.
func MaxSessionCount(services []SelectedService, fallback int) int {
	max := 0
	for _, s := range services {
		if s.SessionCount > max {
			max = s.SessionCount
		}
	}
	if max == 0 {
		return fallback
	}
	return max
}

// NewFreeZone promotes a selected service to a gift.
func NewFreeZone(s SelectedService) FreeZone {
	return FreeZone{
		ServiceID:         s.ID,
		Title:             s.Title,
		PricePerProcedure: EffectivePrice(s),
		Quantity:          ProcedureCount(s),
	}
}
