package cart

import (
	"context"

	"github.com/clothesfashion/backend-checkout/internal/pricing"
)

// LineItem is one cart entry as surfaced by the cart service. ProductID plus
// size and color identify an entry; the same product can appear in several
// variants.
type LineItem struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Brand     string        `json:"brand,omitempty"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Quantity  int           `json:"quantity"`
	Size      string        `json:"size,omitempty"`
	Color     string        `json:"color,omitempty"`
	ImageURL  string        `json:"imageUrl,omitempty"`
}

// LineTotal returns the extended price for the entry.
func (li LineItem) LineTotal() pricing.Money {
	if li.Quantity <= 0 {
		return 0
	}
	return li.UnitPrice * pricing.Money(li.Quantity)
}

// Snapshot is a point-in-time copy of a shopper's cart. Checkout sessions
// price against the snapshot taken at session start, not the live cart.
type Snapshot struct {
	Items []LineItem `json:"items"`
}

// Subtotal sums the extended prices of all entries.
func (s Snapshot) Subtotal() pricing.Money {
	var total pricing.Money
	for _, li := range s.Items {
		total += li.LineTotal()
	}
	return total
}

// TotalQuantity sums the unit counts across all entries.
func (s Snapshot) TotalQuantity() int {
	var qty int
	for _, li := range s.Items {
		if li.Quantity > 0 {
			qty += li.Quantity
		}
	}
	return qty
}

// Empty reports whether the snapshot has no purchasable entries.
func (s Snapshot) Empty() bool {
	return s.TotalQuantity() == 0
}

// Store is the cart collaborator contract used by checkout.
type Store interface {
	// Snapshot fetches the shopper's current cart contents.
	Snapshot(ctx context.Context, token string) (Snapshot, error)
	// RemoveItem deletes one entry, identified by product and variant.
	RemoveItem(ctx context.Context, token, productID, size, color string) error
}
