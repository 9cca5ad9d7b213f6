// Package window computes the windowed aggregates the returns classifier
// depends on: same-customer same-day net quantity and per-customer
// lifetime return count. Every row sees the aggregate computed over its
// whole partition key, so the full returns partition must be reduced
// before any per-row rule evaluates.
package window

import (
	"time"

	"github.com/retail-insights/kestrel/internal/domain"
)

// Aggregates is an immutable snapshot of the window aggregates for one
// returns partition. Compute it once, then read it from any number of
// goroutines.
type Aggregates struct {
	dayNet      map[dayKey]int64
	returnCount map[string]int
}

type dayKey struct {
	customerID string
	day        string // "2006-01-02", UTC
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Compute reduces a returns partition into its window aggregates.
// Guest rows (unknown customer) are excluded from all customer-keyed
// aggregates. Rows with positive quantity are ignored.
func Compute(records []*domain.TransactionRecord) *Aggregates {
	a := &Aggregates{
		dayNet:      make(map[dayKey]int64),
		returnCount: make(map[string]int),
	}

	for _, rec := range records {
		if rec.Partition() != domain.PartitionReturns || rec.IsGuest() {
			continue
		}
		a.dayNet[dayKey{rec.CustomerID, dayOf(rec.InvoiceDate)}] += rec.Quantity
		a.returnCount[rec.CustomerID]++
	}

	return a
}

// DayNetQuantity returns the net quantity over all return rows sharing
// the customer and the calendar date. ok is false when the customer has
// no aggregate (guest or unseen), in which case no day-keyed rule applies.
func (a *Aggregates) DayNetQuantity(customerID string, invoiceDate time.Time) (int64, bool) {
	if customerID == domain.GuestCustomerID {
		return 0, false
	}
	v, ok := a.dayNet[dayKey{customerID, dayOf(invoiceDate)}]
	return v, ok
}

// CustomerReturnCount returns the number of return rows for the customer
// across all dates. Zero for guests and unseen customers.
func (a *Aggregates) CustomerReturnCount(customerID string) int {
	if customerID == domain.GuestCustomerID {
		return 0
	}
	return a.returnCount[customerID]
}

// Snapshot extracts one customer's aggregates in cacheable form.
func (a *Aggregates) Snapshot(customerID string) *domain.AggregateSnapshot {
	snap := &domain.AggregateSnapshot{
		CustomerID:  customerID,
		ReturnCount: a.returnCount[customerID],
		DayNet:      make(map[string]int64),
		ComputedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range a.dayNet {
		if k.customerID == customerID {
			snap.DayNet[k.day] = v
		}
	}
	return snap
}

// Customers returns the distinct customer IDs present in the aggregates.
func (a *Aggregates) Customers() []string {
	out := make([]string, 0, len(a.returnCount))
	for id := range a.returnCount {
		out = append(out, id)
	}
	return out
}
