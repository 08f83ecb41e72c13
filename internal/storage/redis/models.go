package redis

import (
	"time"

	"salon-pos/internal/pricing"
)

// SessionState is the persisted part of a calculator session. The pricing
// result is not stored; it is recomputed on restore.
type SessionState struct {
	ID              string                    `json:"id"`
	MasterID        string                    `json:"master_id"`
	Services        []pricing.SelectedService `json:"services"`
	FreeZones       []pricing.FreeZone        `json:"free_zones,omitempty"`
	Adjustments     pricing.Adjustments       `json:"adjustments"`
	SelectedPackage *pricing.PackageType      `json:"selected_package,omitempty"`
	Version         uint64                    `json:"version"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}
