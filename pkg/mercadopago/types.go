package mercadopago

// Item is one checkout line shown on the payment page.
type Item struct {
	ID         string  `json:"id,omitempty"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

// BackURLs are the buyer-facing pages the gateway redirects to after payment.
type BackURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

// Identification carries the payer's tax document. Only sent in live mode.
type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type Payer struct {
	Name           string          `json:"name,omitempty"`
	Email          string          `json:"email,omitempty"`
	Identification *Identification `json:"identification,omitempty"`
}

// PreferenceRequest is the checkout preference sent to the gateway.
type PreferenceRequest struct {
	Items             []Item         `json:"items"`
	Payer             *Payer         `json:"payer,omitempty"`
	BackURLs          BackURLs       `json:"back_urls"`
	AutoReturn        string         `json:"auto_return,omitempty"`
	NotificationURL   string         `json:"notification_url,omitempty"`
	ExternalReference string         `json:"external_reference,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	StatementDescript string         `json:"statement_descriptor,omitempty"`
}

// Preference is the created checkout preference. SandboxInitPoint is the
// redirect used in test mode, InitPoint in live mode.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the subset of the gateway payment resource the reconciliation
// flow reads.
type Payment struct {
	ID                int64          `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	ExternalReference string         `json:"external_reference"`
	TransactionAmount float64        `json:"transaction_amount"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}
