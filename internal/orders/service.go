// Package orders is the read-through for the order confirmation page.
package orders

import (
	"context"

	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

// Catalog is the slice of the storefront client this service needs.
type Catalog interface {
	GetOrder(ctx context.Context, orderID int64) (*nuvemshop.Order, error)
}

// Summary is the trimmed order view exposed to the frontend.
type Summary struct {
	ID           int64         `json:"id"`
	Number       int64         `json:"number"`
	ContactName  string        `json:"contact_name,omitempty"`
	ContactEmail string        `json:"contact_email,omitempty"`
	Total        string        `json:"total"`
	Status       string        `json:"status"`
	Products     []SummaryLine `json:"products,omitempty"`
	Address      AddressView   `json:"address"`
}

type SummaryLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Image    string `json:"image,omitempty"`
}

type AddressView struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	Zipcode string `json:"zipcode,omitempty"`
}

type Service struct {
	catalog Catalog
}

func NewService(catalog Catalog) *Service {
	return &Service{catalog: catalog}
}

// GetOrderSummary loads the order and projects the confirmation-page view.
func (s *Service) GetOrderSummary(ctx context.Context, orderID int64) (*Summary, error) {
	order, err := s.catalog.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ID:     order.ID,
		Number: order.Number,
		Total:  order.Total,
		Status: order.Status,
	}
	if order.Customer != nil {
		summary.ContactName = order.Customer.Name
		summary.ContactEmail = order.Customer.Email
	}
	for _, product := range order.Products {
		summary.Products = append(summary.Products, SummaryLine{
			Name:     product.Name,
			Quantity: product.Quantity,
			Image:    product.Image,
		})
	}
	if order.ShippingAddress != nil {
		summary.Address = AddressView{
			Street:  order.ShippingAddress.Address,
			City:    order.ShippingAddress.City,
			Zipcode: order.ShippingAddress.Zipcode,
		}
	}
	return summary, nil
}
