package offer

import (
	"time"

	"salon-pos/internal/pricing"
)

// BuildSchedule lays out the contract payments: the down payment today,
// then one equal payment per month. The monthly figure is the one the
// calculator showed.
func BuildSchedule(finalCost, downPayment int64, months int, requiresFullPayment bool, today time.Time) []pricing.Installment {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	return pricing.Schedule(finalCost, downPayment, months, requiresFullPayment, day)
}

// ScheduleTotal sums the rows of a schedule.
func ScheduleTotal(rows []pricing.Installment) int64 {
	var total int64
	for _, r := range rows {
		total += r.Amount
	}
	return total
}
