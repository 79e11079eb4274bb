package dapp

// Element ids the page binds to.
const (
	IDFlightNumber     = "flight-number"
	IDRequestToOracle  = "req-to-oracle"
	IDPaymentAmount    = "payment-amount"
	IDPayInsurance     = "pay-insurance"
	// IDCredit is a page input that withdrawal never reads.
	IDCredit           = "credit"
	IDWithdrawalCredit = "withdrawal-credit"
	IDDisplayWrapper   = "display-wrapper"
	IDPaySection       = "pay-section"
	IDRefundSection    = "refund-section"
)

// Controls lists the input and button ids in page order.
func Controls() []string {
	return []string{
		IDFlightNumber,
		IDRequestToOracle,
		IDPaymentAmount,
		IDPayInsurance,
		IDWithdrawalCredit,
	}
}
