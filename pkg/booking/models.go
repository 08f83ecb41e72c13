package booking

import (
	"sort"
	"strconv"
	"strings"
)

// Service is a catalog entry on the booking platform.
type Service struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Price  int64  `json:"price"`
	Active bool   `json:"active"`
}

// Course is what a subscription type includes for one service: a number of
// sessions for each of Quantity zones.
type Course struct {
	Sessions int
	Quantity int
}

// Composition maps an external service id to its course. Two compositions
// match only when every service has the same sessions and quantity.
type Composition map[string]Course

func (c Composition) Equal(other Composition) bool {
	if len(c) != len(other) {
		return false
	}
	for id, course := range c {
		o, ok := other[id]
		if !ok || o != course {
			return false
		}
	}
	return true
}

// Key is a stable text form, handy for logs.
func (c Composition) Key() string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(c[id].Sessions))
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(c[id].Quantity))
	}
	return b.String()
}

func (c Composition) Lines() []SubscriptionService {
	lines := make([]SubscriptionService, 0, len(c))
	for id, course := range c {
		lines = append(lines, SubscriptionService{ServiceID: id, Count: course.Sessions, Quantity: course.Quantity})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ServiceID < lines[j].ServiceID })
	return lines
}

// SubscriptionService is one line of a subscription type. Count is the
// number of sessions; a missing quantity means one zone.
type SubscriptionService struct {
	ServiceID string `json:"service_id"`
	Count     int    `json:"count"`
	Quantity  int    `json:"quantity,omitempty"`
}

// SubscriptionType is a sellable subscription template on the platform.
type SubscriptionType struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Cost            int64                 `json:"cost"`
	Services        []SubscriptionService `json:"services"`
	FreezeLimitDays int                   `json:"freeze_limit_days"`
	ValidityMonths  int                   `json:"validity_months"`
}

// Composition returns the type's courses. The second result is false when
// the type lists a service twice, which no composition of ours can match.
func (t SubscriptionType) Composition() (Composition, bool) {
	c := make(Composition, len(t.Services))
	for _, s := range t.Services {
		if _, dup := c[s.ServiceID]; dup {
			return nil, false
		}
		qty := s.Quantity
		if qty <= 0 {
			qty = 1
		}
		c[s.ServiceID] = Course{Sessions: s.Count, Quantity: qty}
	}
	return c, true
}

// FreezePolicy is attached to every subscription type we create.
type FreezePolicy struct {
	LimitDays      int `json:"freeze_limit_days"`
	ValidityMonths int `json:"validity_months"`
}

type CreateSubscriptionTypeRequest struct {
	Title    string                `json:"title"`
	Cost     int64                 `json:"cost"`
	Services []SubscriptionService `json:"services"`
	FreezePolicy
}

// FindMatching returns the first type whose composition and cost both
// match exactly.
func FindMatching(types []SubscriptionType, composition Composition, cost int64) (SubscriptionType, bool) {
	for _, t := range types {
		if t.Cost != cost {
			continue
		}
		if c, ok := t.Composition(); ok && c.Equal(composition) {
			return t, true
		}
	}
	return SubscriptionType{}, false
}
