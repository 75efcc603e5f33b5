package nuvemshop

import (
	"strings"

	"github.com/adega-digital/vinicola-backend/pkg/enums"
)

// Product is the catalog entity returned by the storefront API. Localized
// fields map language code to text ("pt" for this store).
type Product struct {
	ID         int64             `json:"id"`
	Name       map[string]string `json:"name,omitempty"`
	Region     string            `json:"region,omitempty"`
	Published  bool              `json:"published,omitempty"`
	Categories []Category        `json:"categories,omitempty"`
	Variants   []Variant         `json:"variants,omitempty"`
}

type Category struct {
	ID   int64             `json:"id"`
	Name map[string]string `json:"name,omitempty"`
}

// Variant carries the canonical price and the physical attributes used to
// build parcel manifests. The storefront serializes numbers as strings.
type Variant struct {
	ID     int64               `json:"id"`
	Price  string              `json:"price"`
	Weight string              `json:"weight,omitempty"`
	Width  string              `json:"width,omitempty"`
	Height string              `json:"height,omitempty"`
	Depth  string              `json:"depth,omitempty"`
	Values []map[string]string `json:"values,omitempty"`
}

// DisplayName returns the pt name with a generic fallback.
func (p *Product) DisplayName() string {
	if p == nil {
		return "Produto"
	}
	if name := strings.TrimSpace(p.Name["pt"]); name != "" {
		return name
	}
	return "Produto"
}

// FindVariant locates a variant by id within the product.
func (p *Product) FindVariant(variantID int64) (*Variant, bool) {
	if p == nil {
		return nil, false
	}
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

type Coupon struct {
	ID        int64   `json:"id"`
	Code      string  `json:"code"`
	Type      string  `json:"type"`
	Value     string  `json:"value"`
	Valid     bool    `json:"valid"`
	Used      int     `json:"used"`
	MaxUses   *int    `json:"max_uses"`
	MinPrice  *string `json:"min_price"`
	StartDate string  `json:"start_date,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`
}

// Exhausted reports whether the usage limit has been reached.
func (c Coupon) Exhausted() bool {
	return c.MaxUses != nil && c.Used >= *c.MaxUses
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
	Number    string `json:"number"`
	Floor     string `json:"floor,omitempty"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
}

type OrderCustomer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document,omitempty"`
}

type OrderLine struct {
	VariantID int64   `json:"variant_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type CreateOrderPayload struct {
	Customer             OrderCustomer       `json:"customer"`
	Products             []OrderLine         `json:"products"`
	BillingAddress       *Address            `json:"billing_address,omitempty"`
	ShippingAddress      *Address            `json:"shipping_address,omitempty"`
	Gateway              string              `json:"gateway,omitempty"`
	ShippingPickupType   string              `json:"shipping_pickup_type,omitempty"`
	Shipping             string              `json:"shipping,omitempty"`
	ShippingOption       string              `json:"shipping_option,omitempty"`
	ShippingCostCustomer float64             `json:"shipping_cost_customer"`
	PaymentStatus        enums.PaymentStatus `json:"payment_status,omitempty"`
	Note                 string              `json:"note,omitempty"`
}

type OrderProduct struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Image    string `json:"image,omitempty"`
}

type Order struct {
	ID              int64               `json:"id"`
	Number          int64               `json:"number"`
	Total           string              `json:"total"`
	Status          string              `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	Customer        *OrderCustomer      `json:"customer,omitempty"`
	Products        []OrderProduct      `json:"products,omitempty"`
	ShippingAddress *Address            `json:"shipping_address,omitempty"`
}

type ProductQuery struct {
	Page       int
	PerPage    int
	Published  bool
	CategoryID int64
	Search     string
}

type CouponQuery struct {
	Code  string
	Valid bool
}

// The storefront rejects empty address fields, so unknown values are filled
// with the fixed sentinels the store has always used.
const (
	SentinelNotInformed = "Não informado"
	SentinelZipcode     = "0000"
	SentinelCountry     = "BR"
	SentinelName        = "Cliente Anônimo"
	SentinelEmail       = "sem-email@exemplo.com"
	SentinelDocument    = "00000000000"
)

func (p CreateOrderPayload) withDefaults() CreateOrderPayload {
	first, last := splitName(p.Customer.Name)
	fallback := Address{
		FirstName: first,
		LastName:  last,
		Address:   SentinelNotInformed,
		Number:    SentinelNotInformed,
		City:      SentinelNotInformed,
		Province:  SentinelNotInformed,
		Zipcode:   SentinelZipcode,
		Country:   SentinelCountry,
	}

	if p.Customer.Name == "" {
		p.Customer.Name = SentinelName
	}
	if p.Customer.Email == "" {
		p.Customer.Email = SentinelEmail
	}
	if p.Customer.Document == "" {
		p.Customer.Document = SentinelDocument
	}
	if p.Gateway == "" {
		p.Gateway = "not-provided"
	}
	if p.ShippingPickupType == "" {
		p.ShippingPickupType = "pickup"
	}
	if p.Shipping == "" {
		p.Shipping = SentinelNotInformed
	}
	if p.ShippingOption == "" {
		p.ShippingOption = SentinelNotInformed
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = enums.PaymentStatusPending
	}
	p.BillingAddress = mergeAddress(fallback, p.BillingAddress)
	p.ShippingAddress = mergeAddress(fallback, p.ShippingAddress)
	return p
}

func mergeAddress(fallback Address, override *Address) *Address {
	merged := fallback
	if override != nil {
		if override.FirstName != "" {
			merged.FirstName = override.FirstName
		}
		if override.LastName != "" {
			merged.LastName = override.LastName
		}
		if override.Address != "" {
			merged.Address = override.Address
		}
		if override.Number != "" {
			merged.Number = override.Number
		}
		if override.Floor != "" {
			merged.Floor = override.Floor
		}
		if override.City != "" {
			merged.City = override.City
		}
		if override.Province != "" {
			merged.Province = override.Province
		}
		if override.Zipcode != "" {
			merged.Zipcode = override.Zipcode
		}
		if override.Country != "" {
			merged.Country = override.Country
		}
		if override.Phone != "" {
			merged.Phone = override.Phone
		}
	}
	return &merged
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return SentinelNotInformed, SentinelNotInformed
	}
	if len(parts) == 1 {
		return parts[0], SentinelNotInformed
	}
	return parts[0], strings.Join(parts[1:], " ")
}
