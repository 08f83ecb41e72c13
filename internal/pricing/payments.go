package pricing

import "time"

// MonthlyPayment splits the balance left after the down payment evenly over
// the installment months, rounded to whole rubles.
func MonthlyPayment(finalCost, downPayment int64, months int, requiresFullPayment bool) int64 {
	if requiresFullPayment || months <= 0 {
		return 0
	}
	remaining := finalCost - downPayment
	if remaining <= 0 {
		return 0
	}
	return divide(remaining, 1, months)
}

// Installment is one row of a payment schedule.
type Installment struct {
	Number int       `json:"number"`
	DueAt  time.Time `json:"due_at"`
	Amount int64     `json:"amount"`
	IsDown bool      `json:"is_down_payment"`
}

// Schedule lays out the down payment due today followed by one payment per
// month. Every month pays MonthlyPayment except the last one, which takes the
// rounding remainder so the rows add up to finalCost. Full payment packages
// and fully paid courses get a single row.
func Schedule(finalCost, downPayment int64, months int, requiresFullPayment bool, today time.Time) []Installment {
	if requiresFullPayment {
		downPayment = finalCost
	}
	rows := []Installment{{Number: 0, DueAt: today, Amount: downPayment, IsDown: true}}

	left := finalCost - downPayment
	if requiresFullPayment || months <= 0 || left <= 0 {
		return rows
	}
	monthly := MonthlyPayment(finalCost, downPayment, months, requiresFullPayment)
	for i := 1; i <= months && left > 0; i++ {
		amount := min(monthly, left)
		if i == months {
			amount = left
		}
		if amount <= 0 {
			continue
		}
		left -= amount
		rows = append(rows, Installment{
			Number: i,
			DueAt:  today.AddDate(0, i, 0),
			Amount: amount,
		})
	}
	return rows
}
