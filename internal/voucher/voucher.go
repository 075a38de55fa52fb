package voucher

import (
	"encoding/json"
	"strings"
)

// Category describes which charge a voucher discounts.
type Category string

const (
	// CategoryClothes discounts the merchandise subtotal.
	CategoryClothes Category = "clothes"
	// CategoryShipping discounts the shipping fee.
	CategoryShipping Category = "shipping"
)

// ParseCategory normalises a wire voucher type. Unknown values default to
// clothes, matching how the discount service treats untyped legacy vouchers.
func ParseCategory(raw string) Category {
	if strings.EqualFold(strings.TrimSpace(raw), string(CategoryShipping)) {
		return CategoryShipping
	}
	return CategoryClothes
}

// Voucher is a discount coupon assigned to a shopper.
type Voucher struct {
	Code        string   `json:"code"`
	Category    Category `json:"category"`
	Percentage  float64  `json:"percentage"`
	Description string   `json:"description"`
	IsUsed      bool     `json:"isUsed"`
	IsExpired   bool     `json:"isExpired"`
}

// Usable reports whether the voucher can still be selected at checkout.
func (v Voucher) Usable() bool {
	return v.Code != "" && !v.IsUsed && !v.IsExpired
}

// wireVoucher tolerates the discount service's two code field spellings.
// Older records carry "discount_code", newer ones carry "code"; entries with
// both prefer "discount_code".
type wireVoucher struct {
	DiscountCode string  `json:"discount_code"`
	Code         string  `json:"code"`
	VoucherType  string  `json:"voucher_type"`
	Percentage   float64 `json:"percentage"`
	Description  string  `json:"description"`
	IsUsed       bool    `json:"is_used"`
	IsExpired    bool    `json:"is_expired"`
}

func (w wireVoucher) normalize() Voucher {
	code := strings.TrimSpace(w.DiscountCode)
	if code == "" {
		code = strings.TrimSpace(w.Code)
	}
	return Voucher{
		Code:        strings.ToUpper(code),
		Category:    ParseCategory(w.VoucherType),
		Percentage:  w.Percentage,
		Description: w.Description,
		IsUsed:      w.IsUsed,
		IsExpired:   w.IsExpired,
	}
}

// DecodeList parses a my-discounts response body into normalised vouchers.
// Entries without a resolvable code are dropped.
func DecodeList(body []byte) ([]Voucher, error) {
	var payload struct {
		Discounts []wireVoucher `json:"discounts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	out := make([]Voucher, 0, len(payload.Discounts))
	for _, w := range payload.Discounts {
		v := w.normalize()
		if v.Code == "" {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// FindByCode returns the voucher with the given code, case-insensitively.
func FindByCode(vouchers []Voucher, code string) (Voucher, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, v := range vouchers {
		if v.Code == code {
			return v, true
		}
	}
	return Voucher{}, false
}
