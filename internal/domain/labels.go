package domain

// Label vocabulary. Downstream aggregation consumers filter and group by
// these exact string values, so they are a contract: never rename.

// TransactionCategory labels (sales partition).
const (
	CategoryAdjustment = "adjustment"
	CategoryService    = "service"
	CategoryProduct    = "product"
)

// ProductType labels (sales partition).
const (
	ProductBadDebt          = "bad_debt"
	ProductManual           = "manual"
	ProductDomesticShipping = "domestic_shipping"
	ProductIntlShipping     = "international_shipping"
	ProductAmazonFee        = "amazon_fee"
	ProductSpecialCarriage  = "special_carriage"
	ProductAccessory        = "accessory"
	ProductPaidSample       = "paid_sample"
	ProductFreeSample       = "free_sample"
	ProductRegular          = "regular"
)

// FinancialType labels (sales partition).
const (
	FinancialAdjustment = "adjustment"
	FinancialFee        = "fee"
	FinancialNonRevenue = "non_revenue"
	FinancialRevenue    = "revenue"
)

// ReturnType labels (returns partition).
const (
	ReturnCancellation    = "cancellation"
	ReturnPriceAdjustment = "price_adjustment"
	ReturnSystem          = "system_return"
	ReturnService         = "service_return"
	ReturnDamagedGoods    = "damaged_goods"
	ReturnCustomer        = "customer_return"
)

// ReturnReason labels (returns partition).
const (
	ReasonOrderCancellation = "order_cancellation"
	ReasonSuspiciousDisc    = "suspicious_discount"
	ReasonHighValueDisc     = "high_value_discount"
	ReasonStandardDisc      = "standard_discount"
	ReasonManualError       = "manual_error"
	ReasonShippingError     = "shipping_error"
	ReasonDefectiveProduct  = "defective_product"
	ReasonManualOverride    = "manual_override"
	ReasonHighValue         = "high_value"
	ReasonFrequentReturner  = "frequent_returner"
	ReasonUnsatisfied       = "unsatisfied"
)

// RefundStatus labels (returns partition).
const (
	RefundProcessed       = "processed"
	RefundFraudReview     = "fraud_review"
	RefundPendingApproval = "pending_approval"
	RefundPending         = "pending"
	RefundPendingReview   = "pending_review"
	RefundReviewRequired  = "review_required"
)

// SalesLabels is the output of the sales classifier for one record.
type SalesLabels struct {
	TransactionCategory string `json:"transactionCategory"`
	ProductType         string `json:"productType"`
	FinancialType       string `json:"financialType"`
}

// ReturnLabels is the output of the returns classifier for one record,
// plus the window aggregates that produced it (kept for auditing).
type ReturnLabels struct {
	ReturnType   string `json:"returnType"`
	ReturnReason string `json:"returnReason"`
	RefundStatus string `json:"refundStatus"`

	// Audit aggregates
	DayNetQuantity      int64 `json:"dayNetQuantity"`
	CustomerReturnCount int   `json:"customerReturnCount"`
}

// Vocabulary lists every label value per output, in ladder order. Served
// via GET /labels so consumers can validate the contract they depend on.
func Vocabulary() map[string][]string {
	return map[string][]string{
		"transactionCategory": {CategoryAdjustment, CategoryService, CategoryProduct},
		"productType": {
			ProductBadDebt, ProductManual, ProductDomesticShipping, ProductIntlShipping,
			ProductAmazonFee, ProductSpecialCarriage, ProductAccessory,
			ProductPaidSample, ProductFreeSample, ProductRegular,
		},
		"financialType": {FinancialAdjustment, FinancialFee, FinancialNonRevenue, FinancialRevenue},
		"returnType": {
			ReturnCancellation, ReturnPriceAdjustment, ReturnSystem,
			ReturnService, ReturnDamagedGoods, ReturnCustomer,
		},
		"returnReason": {
			ReasonOrderCancellation, ReasonSuspiciousDisc, ReasonHighValueDisc,
			ReasonStandardDisc, ReasonManualError, ReasonShippingError,
			ReasonDefectiveProduct, ReasonManualOverride, ReasonHighValue,
			ReasonFrequentReturner, ReasonUnsatisfied,
		},
		"refundStatus": {
			RefundProcessed, RefundFraudReview, RefundPendingApproval,
			RefundPending, RefundPendingReview, RefundReviewRequired,
		},
	}
}
