package models

import "time"

type ScheduleStatus string

const (
	ScheduleAvailable ScheduleStatus = "AVAILABLE"
	ScheduleOwned     ScheduleStatus = "OWNED"
	ScheduleAuction   ScheduleStatus = "AUCTION"
	ScheduleSold      ScheduleStatus = "SOLD"
)

// Schedule is a tradeable ownership unit over one purchased property slot.
type Schedule struct {
	ID           int64          `json:"id"`
	PropertyURL  string         `json:"property_url"`
	PriceCLP     int64          `json:"price_clp"`
	DiscountPct  int32          `json:"discount_pct"`
	Status       ScheduleStatus `json:"status"`
	CreatedBy    int64          `json:"created_by"`
	OwnerGroupID int32          `json:"owner_group_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// FinalPriceCLP applies the schedule discount, rounded to whole pesos.
func (s *Schedule) FinalPriceCLP() int64 {
	discounted := float64(s.PriceCLP) * (1 - float64(s.DiscountPct)/100)
	return int64(discounted + 0.5)
}
