package checkout

import (
	"sync"
	"time"

	"github.com/clothesfashion/backend-checkout/internal/address"
	"github.com/clothesfashion/backend-checkout/internal/cart"
	"github.com/clothesfashion/backend-checkout/internal/payment"
	"github.com/clothesfashion/backend-checkout/internal/pricing"
	"github.com/clothesfashion/backend-checkout/internal/voucher"
)

// SessionState tracks the submission lifecycle of a session.
type SessionState string

const (
	StateActive     SessionState = "ACTIVE"
	StateSubmitting SessionState = "SUBMITTING"
	StateConfirmed  SessionState = "CONFIRMED"
)

// resolveKey identifies one outstanding voucher resolution. A response is
// applied only when the slot's pending key still matches, so late responses
// for superseded selections are dropped.
type resolveKey struct {
	Category voucher.Category
	Code     string
	Base     pricing.Money
}

// SlotState is the per-category voucher slot. The two slots are fully
// independent of each other.
type SlotState struct {
	Selected *voucher.Voucher
	Result   *voucher.DiscountResult
	pending  *resolveKey
}

func (s *SlotState) discount() pricing.Money {
	if s == nil || s.Result == nil {
		return 0
	}
	return s.Result.Amount
}

// Session is one shopper's in-progress checkout. All fields are guarded by
// mu; callers go through the Service which manages locking.
type Session struct {
	mu sync.Mutex

	ID        string
	UserID    string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time

	State        SessionState
	Step         Step
	Billing      BillingInfo
	Card         CardInfo
	Method       PaymentMethod
	Notes        string
	Snapshot     cart.Snapshot
	Addresses    []address.Address
	Vouchers     []voucher.Voucher
	Slots        map[voucher.Category]*SlotState
	Totals       pricing.Totals
	Confirmation *payment.Confirmation
}

func newSession(id string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		State:     StateActive,
		Step:      StepBilling,
		Slots: map[voucher.Category]*SlotState{
			voucher.CategoryClothes:  {},
			voucher.CategoryShipping: {},
		},
	}
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) slot(cat voucher.Category) *SlotState {
	if s.Slots == nil {
		s.Slots = map[voucher.Category]*SlotState{}
	}
	st, ok := s.Slots[cat]
	if !ok {
		st = &SlotState{}
		s.Slots[cat] = st
	}
	return st
}

// recomputeLocked derives the totals from the snapshot, the shipping tier,
// and the current slot discounts. Totals are never mutated any other way.
func (s *Session) recomputeLocked(fees pricing.FeeTable) {
	fee := fees.ShippingFee(s.Snapshot.TotalQuantity())
	s.Totals = pricing.Compute(
		s.Snapshot.Subtotal(),
		s.slot(voucher.CategoryClothes).discount(),
		fee,
		s.slot(voucher.CategoryShipping).discount(),
	)
}

// SlotView is the wire representation of a voucher slot.
type SlotView struct {
	Selected *voucher.Voucher        `json:"selected,omitempty"`
	Result   *voucher.DiscountResult `json:"result,omitempty"`
}

// View is a consistent read-only copy of a session, safe to serialize after
// the session lock is released.
type View struct {
	ID           string                `json:"id"`
	State        SessionState          `json:"state"`
	Step         Step                  `json:"step"`
	Billing      BillingInfo           `json:"billing"`
	Method       PaymentMethod         `json:"paymentMethod,omitempty"`
	Notes        string                `json:"notes,omitempty"`
	Items        []cart.LineItem       `json:"items"`
	Addresses    []address.Address     `json:"addresses"`
	Vouchers     []voucher.Voucher     `json:"vouchers"`
	Clothes      SlotView              `json:"clothesVoucher"`
	Shipping     SlotView              `json:"shippingVoucher"`
	Totals       pricing.Totals        `json:"totals"`
	Confirmation *payment.Confirmation `json:"confirmation,omitempty"`
	ExpiresAt    time.Time             `json:"expiresAt"`
}

func (s *Session) viewLocked() View {
	v := View{
		ID:        s.ID,
		State:     s.State,
		Step:      s.Step,
		Billing:   s.Billing,
		Method:    s.Method,
		Notes:     s.Notes,
		Items:     append([]cart.LineItem(nil), s.Snapshot.Items...),
		Addresses: append([]address.Address(nil), s.Addresses...),
		Vouchers:  append([]voucher.Voucher(nil), s.Vouchers...),
		Totals:    s.Totals,
		ExpiresAt: s.ExpiresAt,
	}
	if clothes := s.slot(voucher.CategoryClothes); clothes.Selected != nil || clothes.Result != nil {
		v.Clothes = SlotView{Selected: copyVoucher(clothes.Selected), Result: copyResult(clothes.Result)}
	}
	if shipping := s.slot(voucher.CategoryShipping); shipping.Selected != nil || shipping.Result != nil {
		v.Shipping = SlotView{Selected: copyVoucher(shipping.Selected), Result: copyResult(shipping.Result)}
	}
	if s.Confirmation != nil {
		c := *s.Confirmation
		v.Confirmation = &c
	}
	return v
}

func copyVoucher(v *voucher.Voucher) *voucher.Voucher {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyResult(r *voucher.DiscountResult) *voucher.DiscountResult {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
