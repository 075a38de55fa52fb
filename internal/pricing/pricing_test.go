package pricing

import "testing"

func TestShippingFeeExactValues(t *testing.T) {
	fees := DefaultFees()
	cases := map[int]Money{
		0:  40,
		1:  40,
		3:  40,
		4:  50,
		13: 140,
	}
	for qty, want := range cases {
		if got := fees.ShippingFee(qty); got != want {
			t.Fatalf("ShippingFee(%d) = %d, want %d", qty, got, want)
		}
	}
}

func TestShippingFeeNegativeQuantity(t *testing.T) {
	fees := DefaultFees()
	if got := fees.ShippingFee(-2); got != 40 {
		t.Fatalf("ShippingFee(-2) = %d, want base fee 40", got)
	}
}

func TestShippingFeeMonotonic(t *testing.T) {
	fees := DefaultFees()
	prev := fees.ShippingFee(0)
	for qty := 1; qty <= 50; qty++ {
		cur := fees.ShippingFee(qty)
		if cur < prev {
			t.Fatalf("fee decreased from %d to %d at qty %d", prev, cur, qty)
		}
		prev = cur
	}
}

func TestSubtotalSkipsNonPositiveQuantities(t *testing.T) {
	items := []Item{
		{Qty: 2, UnitPrice: 500},
		{Qty: 0, UnitPrice: 999},
		{Qty: -1, UnitPrice: 999},
		{Qty: 2, UnitPrice: 300},
	}
	if got := Subtotal(items); got != 1600 {
		t.Fatalf("Subtotal = %d, want 1600", got)
	}
	if got := TotalQuantity(items); got != 4 {
		t.Fatalf("TotalQuantity = %d, want 4", got)
	}
}

func TestComputeNoVouchers(t *testing.T) {
	// subtotal 1600, qty 4 -> shipping 50, no discounts -> 1650
	fees := DefaultFees()
	totals := Compute(1600, 0, fees.ShippingFee(4), 0)
	if totals.Total != 1650 {
		t.Fatalf("Total = %d, want 1650", totals.Total)
	}
}

func TestComputeBothVouchers(t *testing.T) {
	// 1600 - 160 + 50 - 10 = 1480
	totals := Compute(1600, 160, 50, 10)
	if totals.Total != 1480 {
		t.Fatalf("Total = %d, want 1480", totals.Total)
	}
}

func TestComputeIsPure(t *testing.T) {
	first := Compute(1600, 160, 50, 10)
	second := Compute(1600, 160, 50, 10)
	if first != second {
		t.Fatalf("Compute is not deterministic: %+v != %+v", first, second)
	}
}

func TestComputeAllowsNegativeTotal(t *testing.T) {
	totals := Compute(100, 200, 40, 50)
	if totals.Total != -110 {
		t.Fatalf("Total = %d, want -110 (no clamping)", totals.Total)
	}
}

func TestFromFloatRounds(t *testing.T) {
	if got := FromFloat(159.5); got != 160 {
		t.Fatalf("FromFloat(159.5) = %d, want 160", got)
	}
	if got := FromFloat(10.4); got != 10 {
		t.Fatalf("FromFloat(10.4) = %d, want 10", got)
	}
}
