package enums

// GatewayPaymentStatus mirrors the payment states reported by Mercado Pago.
// Only Approved moves an order forward; every other state is observed and
// left alone.
type GatewayPaymentStatus string

const (
	GatewayPaymentApproved   GatewayPaymentStatus = "approved"
	GatewayPaymentPending    GatewayPaymentStatus = "pending"
	GatewayPaymentInProcess  GatewayPaymentStatus = "in_process"
	GatewayPaymentRejected   GatewayPaymentStatus = "rejected"
	GatewayPaymentCancelled  GatewayPaymentStatus = "cancelled"
	GatewayPaymentRefunded   GatewayPaymentStatus = "refunded"
	GatewayPaymentChargeback GatewayPaymentStatus = "charged_back"
)

// String implements fmt.Stringer.
func (g GatewayPaymentStatus) String() string {
	return string(g)
}

// IsApproved reports whether the payment settles the order.
func (g GatewayPaymentStatus) IsApproved() bool {
	return g == GatewayPaymentApproved
}
