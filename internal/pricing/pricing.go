package pricing

import "math"

// Money represents a monetary value in whole currency units.
type Money = int64

// FeeTable holds the tiered shipping fee parameters. Every unit beyond
// FreeUnits adds PerExtraUnit on top of the base fee.
type FeeTable struct {
	BaseFee      Money
	FreeUnits    int
	PerExtraUnit Money
}

// DefaultFees matches the storefront's standard shipping tiers.
func DefaultFees() FeeTable {
	return FeeTable{BaseFee: 40, FreeUnits: 3, PerExtraUnit: 10}
}

// ShippingFee calculates the shipping fee for the given total item quantity.
// Non-positive quantities pay the base fee.
func (f FeeTable) ShippingFee(totalQuantity int) Money {
	extra := totalQuantity - f.FreeUnits
	if extra < 0 {
		extra = 0
	}
	return f.BaseFee + Money(extra)*f.PerExtraUnit
}

// Item describes a line item used for subtotal calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Subtotal sums line totals, skipping non-positive quantities.
func Subtotal(items []Item) Money {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	return subtotal
}

// TotalQuantity sums item quantities, skipping non-positive quantities.
func TotalQuantity(items []Item) int {
	var qty int
	for _, it := range items {
		if it.Qty > 0 {
			qty += it.Qty
		}
	}
	return qty
}

// Totals aggregates the computed order components.
type Totals struct {
	Subtotal         Money `json:"subtotal"`
	ClothesDiscount  Money `json:"clothesDiscount"`
	ShippingFee      Money `json:"shippingFee"`
	ShippingDiscount Money `json:"shippingDiscount"`
	Total            Money `json:"total"`
}

// Compute combines the subtotal, the two slot discounts and the shipping fee
// into the payable total. The total is deliberately not floored at zero: the
// submitted amount must match the displayed one, discounts included.
func Compute(subtotal, clothesDiscount, shippingFee, shippingDiscount Money) Totals {
	return Totals{
		Subtotal:         subtotal,
		ClothesDiscount:  clothesDiscount,
		ShippingFee:      shippingFee,
		ShippingDiscount: shippingDiscount,
		Total:            subtotal - clothesDiscount + shippingFee - shippingDiscount,
	}
}

// FromFloat rounds a wire-format decimal amount to Money.
func FromFloat(v float64) Money {
	return Money(math.Round(v))
}
