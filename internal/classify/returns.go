package classify

import (
	"fmt"
	"strings"

	"github.com/retail-insights/kestrel/internal/domain"
	"github.com/retail-insights/kestrel/internal/window"
)

// highValueThreshold and discountThreshold are compared against
// OrderValue, which is negative for returns: -500 is the stricter
// (larger-magnitude) condition, and most-severe-first ordering decides
// when both match.
const (
	highValueThreshold = -500.0
	discountThreshold  = -100.0
)

// returnRow is the evaluation context for one return record: the row's
// own fields plus the window aggregates computed over the full partition.
type returnRow struct {
	rec *domain.TransactionRecord

	dayNet      int64
	dayNetKnown bool // false for guest rows: day-keyed rules never apply
	returnCount int
}

// cancelled reports whether the customer's entire day of orders nets to
// zero, interpreted as a full-day order cancellation.
func (r returnRow) cancelled() bool {
	return r.dayNetKnown && r.dayNet == 0
}

func (r returnRow) isD() bool { return r.rec.StockCode == "D" }
func (r returnRow) isM() bool { return r.rec.StockCode == "M" }

// notDM guards the keyword and value rules that are reserved for
// ordinary product lines.
func (r returnRow) notDM() bool { return !r.isD() && !r.isM() }

func (r returnRow) isShipping() bool {
	return r.rec.StockCode == "POST" || r.rec.StockCode == "DOT"
}

func (r returnRow) damagedKeyword() bool {
	return containsAnyFold(r.rec.DescriptionClean, "DAMAGED", "BROKEN", "DEFECT")
}

func (r returnRow) manualKeyword() bool {
	return containsAnyFold(r.rec.DescriptionClean, "MANUAL", "OVERRIDE")
}

// retentionKeyword matches loyalty/contract/bulk discounts. Case-sensitive
// by design: the cleaning stage upcases descriptions, and the original
// rule never folded case here.
func (r returnRow) retentionKeyword() bool {
	desc := r.rec.DescriptionClean
	return strings.Contains(desc, "LOYALTY") ||
		strings.Contains(desc, "CONTRACT") ||
		strings.Contains(desc, "BULK")
}

func containsAnyFold(s string, keywords ...string) bool {
	upper := strings.ToUpper(s)
	for _, kw := range keywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

var returnTypeLadder = ladder[returnRow]{
	steps: []step[returnRow]{
		{returnRow.cancelled, domain.ReturnCancellation},
		{returnRow.isD, domain.ReturnPriceAdjustment},
		{returnRow.isM, domain.ReturnSystem},
		{returnRow.isShipping, domain.ReturnService},
		{func(r returnRow) bool { return r.damagedKeyword() && r.notDM() }, domain.ReturnDamagedGoods},
		{func(r returnRow) bool { return r.manualKeyword() && r.notDM() }, domain.ReturnSystem},
		{func(r returnRow) bool { return r.rec.OrderValue < highValueThreshold && r.notDM() }, domain.ReturnCustomer},
	},
	fallback: domain.ReturnCustomer,
}

var returnReasonLadder = ladder[returnRow]{
	steps: []step[returnRow]{
		{returnRow.cancelled, domain.ReasonOrderCancellation},
		{func(r returnRow) bool { return r.isD() && r.rec.OrderValue <= highValueThreshold }, domain.ReasonSuspiciousDisc},
		{func(r returnRow) bool { return r.isD() && r.rec.OrderValue <= discountThreshold }, domain.ReasonHighValueDisc},
		{returnRow.isD, domain.ReasonStandardDisc},
		{returnRow.isM, domain.ReasonManualError},
		{returnRow.isShipping, domain.ReasonShippingError},
		{func(r returnRow) bool { return r.damagedKeyword() && r.notDM() }, domain.ReasonDefectiveProduct},
		{func(r returnRow) bool { return r.manualKeyword() && r.notDM() }, domain.ReasonManualOverride},
		{func(r returnRow) bool { return r.rec.OrderValue < highValueThreshold && r.notDM() }, domain.ReasonHighValue},
		{func(r returnRow) bool { return r.returnCount > 5 && r.notDM() }, domain.ReasonFrequentReturner},
	},
	fallback: domain.ReasonUnsatisfied,
}

var refundStatusLadder = ladder[returnRow]{
	steps: []step[returnRow]{
		// Day cancellations on discount lines are not auto-processed:
		// they fall through to the value-threshold rules below.
		{func(r returnRow) bool { return r.cancelled() && !r.isD() }, domain.RefundProcessed},
		{func(r returnRow) bool { return r.isD() && r.rec.OrderValue <= highValueThreshold }, domain.RefundFraudReview},
		{func(r returnRow) bool { return r.isD() && r.rec.OrderValue <= discountThreshold }, domain.RefundPendingApproval},
		{func(r returnRow) bool { return r.isD() && r.retentionKeyword() }, domain.RefundProcessed},
		{returnRow.isM, domain.RefundPending},
		{func(r returnRow) bool { return r.manualKeyword() && r.notDM() }, domain.RefundPending},
		{func(r returnRow) bool { return r.rec.OrderValue < highValueThreshold && r.notDM() }, domain.RefundPendingReview},
		{func(r returnRow) bool { return r.returnCount > 5 && r.notDM() }, domain.RefundReviewRequired},
	},
	fallback: domain.RefundProcessed,
}

// Returns labels a returns partition. Two phases: the window aggregates
// are reduced over the whole partition first (the one synchronization
// barrier), then every row is evaluated independently against them.
//
// aggs may be precomputed over a wider partition than records (e.g. a
// tenant's full returns history); pass nil to aggregate over records.
// The returned slice is index-aligned with records.
func Returns(records []*domain.TransactionRecord, aggs *window.Aggregates) ([]domain.ReturnLabels, error) {
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if rec.Partition() != domain.PartitionReturns {
			return nil, fmt.Errorf("record %s is not in the returns partition", rec.ID)
		}
	}

	if aggs == nil {
		aggs = window.Compute(records)
	}

	labels := make([]domain.ReturnLabels, len(records))
	for i, rec := range records {
		labels[i] = returnLabels(rec, aggs)
	}
	return labels, nil
}

// returnLabels evaluates the three ladders for one row against the
// already-computed aggregates.
func returnLabels(rec *domain.TransactionRecord, aggs *window.Aggregates) domain.ReturnLabels {
	row := returnRow{rec: rec}
	row.dayNet, row.dayNetKnown = aggs.DayNetQuantity(rec.CustomerID, rec.InvoiceDate)
	row.returnCount = aggs.CustomerReturnCount(rec.CustomerID)

	return domain.ReturnLabels{
		ReturnType:          returnTypeLadder.apply(row),
		ReturnReason:        returnReasonLadder.apply(row),
		RefundStatus:        refundStatusLadder.apply(row),
		DayNetQuantity:      row.dayNet,
		CustomerReturnCount: row.returnCount,
	}
}
