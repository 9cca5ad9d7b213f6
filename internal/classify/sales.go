package classify

import (
	"fmt"

	"github.com/retail-insights/kestrel/internal/domain"
)

// serviceCodes are the stock codes billed as services rather than goods.
var serviceCodes = map[string]bool{
	"POST":      true,
	"DOT":       true,
	"AMAZONFEE": true,
	"C2":        true,
}

func code(want string) func(*domain.TransactionRecord) bool {
	return func(r *domain.TransactionRecord) bool { return r.StockCode == want }
}

var categoryLadder = ladder[*domain.TransactionRecord]{
	steps: []step[*domain.TransactionRecord]{
		{code("B"), domain.CategoryAdjustment},
		{code("M"), domain.CategoryAdjustment},
		{func(r *domain.TransactionRecord) bool { return serviceCodes[r.StockCode] }, domain.CategoryService},
		{func(r *domain.TransactionRecord) bool { return r.StockCode == "S" && r.OrderValue == 0 }, domain.CategoryAdjustment},
	},
	fallback: domain.CategoryProduct,
}

var productLadder = ladder[*domain.TransactionRecord]{
	steps: []step[*domain.TransactionRecord]{
		{code("B"), domain.ProductBadDebt},
		{code("M"), domain.ProductManual},
		{code("POST"), domain.ProductDomesticShipping},
		{code("DOT"), domain.ProductIntlShipping},
		{code("AMAZONFEE"), domain.ProductAmazonFee},
		{code("C2"), domain.ProductSpecialCarriage},
		{code("PADS"), domain.ProductAccessory},
		{func(r *domain.TransactionRecord) bool { return r.StockCode == "S" && r.OrderValue > 0 }, domain.ProductPaidSample},
		{func(r *domain.TransactionRecord) bool { return r.StockCode == "S" && r.OrderValue == 0 }, domain.ProductFreeSample},
	},
	fallback: domain.ProductRegular,
}

var financialLadder = ladder[*domain.TransactionRecord]{
	steps: []step[*domain.TransactionRecord]{
		{code("B"), domain.FinancialAdjustment},
		{func(r *domain.TransactionRecord) bool { return serviceCodes[r.StockCode] }, domain.FinancialFee},
		{func(r *domain.TransactionRecord) bool { return r.StockCode == "S" && r.OrderValue == 0 }, domain.FinancialNonRevenue},
	},
	fallback: domain.FinancialRevenue,
}

// Sale labels a single sales-partition record. Pure: no side effects, no
// dependency on other rows, same input always yields the same labels.
//
// Known gap carried over from the original rule set: StockCode "S" with a
// negative OrderValue matches no explicit sample rule and falls to
// regular/revenue. Kept as-is pending product sign-off.
func Sale(rec *domain.TransactionRecord) (domain.SalesLabels, error) {
	if err := rec.Validate(); err != nil {
		return domain.SalesLabels{}, err
	}
	if rec.Partition() != domain.PartitionSales {
		return domain.SalesLabels{}, fmt.Errorf("record %s is not in the sales partition", rec.ID)
	}

	return domain.SalesLabels{
		TransactionCategory: categoryLadder.apply(rec),
		ProductType:         productLadder.apply(rec),
		FinancialType:       financialLadder.apply(rec),
	}, nil
}
