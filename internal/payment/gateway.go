package payment

import (
	"context"

	"github.com/clothesfashion/backend-checkout/internal/pricing"
)

// SubmissionItem is one purchased line in the order payload.
type SubmissionItem struct {
	ProductID  string        `json:"product_id"`
	Name       string        `json:"product_name"`
	Quantity   int           `json:"quantity"`
	UnitPrice  pricing.Money `json:"unit_price"`
	TotalPrice pricing.Money `json:"total_price"`
}

// BillingAddress is the billing block of the order payload.
type BillingAddress struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line1"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

// Submission is the complete order sent to the payment gateway. DiscountCodes
// carries zero to two voucher codes, clothes first when both are present.
type Submission struct {
	Items          []SubmissionItem `json:"items"`
	PaymentMethod  string           `json:"payment_method"`
	BillingAddress BillingAddress   `json:"billing_address"`
	DiscountCodes  []string         `json:"discount_code"`
	Currency       string           `json:"currency"`
	Notes          string           `json:"notes,omitempty"`
}

// Confirmation identifies an accepted order.
type Confirmation struct {
	OrderNumber string `json:"orderNumber"`
	PaymentID   string `json:"paymentId"`
}

// Gateway places orders with the payment collaborator service.
type Gateway interface {
	Submit(ctx context.Context, token string, sub Submission) (Confirmation, error)
}
