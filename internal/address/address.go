package address

import (
	"context"
	"strings"
)

// Address is a saved shipping destination from the customer profile service.
type Address struct {
	ID            string `json:"id"`
	RecipientName string `json:"recipientName"`
	Street        string `json:"street"`
	Barangay      string `json:"barangay"`
	City          string `json:"city"`
	Province      string `json:"province"`
	Region        string `json:"region"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
	IsDefault     bool   `json:"isDefault"`
	ContactNumber string `json:"contactNumber"`
	AddressType   string `json:"addressType"`
}

// OneLine renders the address as a single billing line, skipping blanks.
func (a Address) OneLine() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Street, a.Barangay, a.City, a.Province, a.Region, a.PostalCode} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Default returns the shopper's default address when one is flagged.
func Default(addresses []Address) (Address, bool) {
	for _, a := range addresses {
		if a.IsDefault {
			return a, true
		}
	}
	return Address{}, false
}

// Store is the customer profile collaborator contract used by checkout.
type Store interface {
	List(ctx context.Context, token, username string) ([]Address, error)
}
