package checkout

// Line is one cart entry. Price and name are never accepted from the client;
// both are resolved against the catalog.
type Line struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// Customer carries the buyer identity and address fields. Anything missing
// is replaced by the storefront sentinels when the order is created.
type Customer struct {
	Name       string `json:"name"`
	Email      string `json:"email" validate:"omitempty,email"`
	Document   string `json:"document,omitempty"`
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	Zipcode    string `json:"zipcode,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Request is the checkout payload. Coupon and shipping are explicit optional
// parts, absent means no coupon and no shipping quote.
type Request struct {
	Items              []Line   `json:"items" validate:"required,min=1,dive"`
	Customer           Customer `json:"customer"`
	CouponCode         string   `json:"coupon_code,omitempty"`
	ShippingPostalCode string   `json:"shipping_postal_code,omitempty"`
}

// Result points the buyer at the hosted payment page.
type Result struct {
	RedirectURL  string  `json:"redirect_url"`
	PreferenceID string  `json:"preference_id"`
	OrderID      int64   `json:"order_id"`
	Total        float64 `json:"total"`
}
