package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clothesfashion/backend-checkout/internal/address"
	"github.com/clothesfashion/backend-checkout/internal/cart"
	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/events"
	"github.com/clothesfashion/backend-checkout/internal/lock"
	"github.com/clothesfashion/backend-checkout/internal/obs"
	"github.com/clothesfashion/backend-checkout/internal/payment"
	"github.com/clothesfashion/backend-checkout/internal/pricing"
	"github.com/clothesfashion/backend-checkout/internal/voucher"
)

// CleanupQueue schedules post-order cart cleanup. Satisfied by
// cleanup.Enqueuer.
type CleanupQueue interface {
	EnqueueRemovals(ctx context.Context, userID, token string, items []cart.LineItem)
}

// Service orchestrates checkout sessions: cart snapshotting, voucher
// resolution, step progression, and order submission.
type Service struct {
	Carts     cart.Store
	Addresses address.Store
	Vouchers  voucher.Resolver
	Gateway   payment.Gateway
	Sessions  *Store
	Locker    lock.Locker
	Cleanup   CleanupQueue
	Bus       *events.Bus

	Fees          pricing.FeeTable
	Currency      string
	Country       string
	SubmitTimeout time.Duration
	SubmitLockTTL time.Duration
	Logger        zerolog.Logger
}

func (svc *Service) currency() string {
	if svc.Currency == "" {
		return "PHP"
	}
	return svc.Currency
}

// Start opens a new checkout session from the shopper's current cart. The
// snapshot taken here is what gets priced and submitted; later cart edits
// only matter after an explicit Refresh.
func (svc *Service) Start(ctx context.Context, user common.User, token string) (View, error) {
	snapshot, err := svc.Carts.Snapshot(ctx, token)
	if err != nil {
		return View{}, err
	}
	if snapshot.Empty() {
		return View{}, common.NewAppError(common.CodeValidation, "cart is empty", http.StatusUnprocessableEntity, nil)
	}

	// Saved addresses and vouchers are conveniences; their collaborators
	// being down must not block checkout.
	addresses, err := svc.Addresses.List(ctx, token, user.Username)
	if err != nil {
		svc.Logger.Warn().Err(err).Str("user_id", user.ID).Msg("address_list_failed")
		addresses = nil
	}
	vouchers, err := svc.Vouchers.ListMine(ctx, token)
	if err != nil {
		svc.Logger.Warn().Err(err).Str("user_id", user.ID).Msg("voucher_list_failed")
		vouchers = nil
	}

	s := svc.Sessions.Create(user.ID, user.Username)

	s.mu.Lock()
	s.Snapshot = snapshot
	s.Addresses = addresses
	s.Vouchers = vouchers
	s.Billing = prefillBilling(user, addresses, svc.Country)
	s.recomputeLocked(svc.Fees)
	view := s.viewLocked()
	s.mu.Unlock()

	svc.emit(ctx, events.TopicCheckoutStarted, s.ID, map[string]any{
		"user_id":  user.ID,
		"items":    len(snapshot.Items),
		"subtotal": view.Totals.Subtotal,
	})
	return view, nil
}

// prefillBilling seeds billing info from the account profile and the default
// saved address when one exists.
func prefillBilling(user common.User, addresses []address.Address, country string) BillingInfo {
	billing := BillingInfo{
		FullName: user.FullName,
		Email:    user.Email,
		Country:  country,
	}
	def, ok := address.Default(addresses)
	if !ok {
		return billing
	}
	if billing.FullName == "" {
		billing.FullName = def.RecipientName
	}
	billing.Address = def.OneLine()
	billing.City = def.City
	billing.State = def.Province
	billing.ZipCode = def.PostalCode
	if def.Country != "" {
		billing.Country = def.Country
	}
	return billing
}

// Get returns the current session view.
func (svc *Service) Get(_ context.Context, sessionID, userID string) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(), nil
}

// UpdateBilling overwrites the billing block. Validation happens when the
// shopper advances, not on every keystroke.
func (svc *Service) UpdateBilling(_ context.Context, sessionID, userID string, billing BillingInfo) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return View{}, err
	}
	s.Billing = billing
	return s.viewLocked(), nil
}

// ApplyAddress repopulates billing from one of the shopper's saved addresses.
func (svc *Service) ApplyAddress(_ context.Context, sessionID, userID, addressID string) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return View{}, err
	}
	for _, a := range s.Addresses {
		if a.ID != addressID {
			continue
		}
		s.Billing.FullName = a.RecipientName
		s.Billing.Address = a.OneLine()
		s.Billing.City = a.City
		s.Billing.State = a.Province
		s.Billing.ZipCode = a.PostalCode
		if a.Country != "" {
			s.Billing.Country = a.Country
		}
		return s.viewLocked(), nil
	}
	return View{}, common.NewAppError(common.CodeNotFound, "saved address not found", http.StatusNotFound, nil)
}

// SetPaymentMethod records the tender choice and any card details.
func (svc *Service) SetPaymentMethod(_ context.Context, sessionID, userID, rawMethod string, card CardInfo) (View, error) {
	method, ok := ParsePaymentMethod(rawMethod)
	if !ok {
		return View{}, common.NewAppError(common.CodeValidation, "unsupported payment method", http.StatusUnprocessableEntity, nil)
	}
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return View{}, err
	}
	s.Method = method
	s.Card = card
	return s.viewLocked(), nil
}

// SetNotes stores the shopper's free-text order notes.
func (svc *Service) SetNotes(_ context.Context, sessionID, userID, notes string) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return View{}, err
	}
	s.Notes = notes
	return s.viewLocked(), nil
}

// SelectVoucher selects or clears the voucher in one slot. Clearing is
// synchronous. Selecting resolves the discount against the slot's current
// base amount; a resolution response only lands if the slot still waits for
// exactly that (voucher, base) pair, so late responses for superseded
// selections are dropped.
func (svc *Service) SelectVoucher(ctx context.Context, sessionID, userID, token string, cat voucher.Category, code string) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}

	code = strings.ToUpper(strings.TrimSpace(code))

	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	slot := s.slot(cat)

	if code == "" {
		slot.Selected = nil
		slot.Result = nil
		slot.pending = nil
		s.recomputeLocked(svc.Fees)
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}

	selected, found := voucher.FindByCode(s.Vouchers, code)
	if !found || selected.Category != cat || !selected.Usable() {
		// unknown or unusable code clears the discount without a remote call
		slot.Selected = nil
		slot.Result = nil
		slot.pending = nil
		s.recomputeLocked(svc.Fees)
		view := s.viewLocked()
		s.mu.Unlock()
		obs.ObserveVoucherResolve(string(cat), "rejected")
		return view, nil
	}

	base := svc.slotBaseLocked(s, cat)
	key := resolveKey{Category: cat, Code: code, Base: base}
	slot.Selected = &selected
	slot.Result = nil
	slot.pending = &key
	s.mu.Unlock()

	result, resolveErr := svc.Vouchers.Apply(ctx, token, code, base)

	s.mu.Lock()
	slot = s.slot(cat)
	if slot.pending == nil || *slot.pending != key {
		// selection changed while the call was in flight
		view := s.viewLocked()
		s.mu.Unlock()
		obs.ObserveVoucherResolve(string(cat), "stale")
		return view, nil
	}
	slot.pending = nil
	if resolveErr != nil {
		// a failed resolution is a no-discount state, never a blocked checkout
		slot.Result = nil
		s.recomputeLocked(svc.Fees)
		view := s.viewLocked()
		s.mu.Unlock()
		svc.Logger.Warn().Err(resolveErr).
			Str("session_id", sessionID).
			Str("slot", string(cat)).
			Str("code", code).
			Msg("voucher_resolve_failed")
		obs.ObserveVoucherResolve(string(cat), "error")
		return view, nil
	}
	slot.Result = &result
	s.recomputeLocked(svc.Fees)
	view := s.viewLocked()
	s.mu.Unlock()

	obs.ObserveVoucherResolve(string(cat), "ok")
	svc.emit(ctx, events.TopicVoucherSelected, sessionID, map[string]any{
		"slot":   string(cat),
		"code":   code,
		"amount": result.Amount,
	})
	return view, nil
}

// slotBaseLocked returns the base amount a slot discounts: the merchandise
// subtotal for clothes, the shipping fee for shipping.
func (svc *Service) slotBaseLocked(s *Session, cat voucher.Category) pricing.Money {
	if cat == voucher.CategoryShipping {
		return svc.Fees.ShippingFee(s.Snapshot.TotalQuantity())
	}
	return s.Snapshot.Subtotal()
}

// Refresh re-snapshots the cart and re-resolves any selected vouchers whose
// base amounts changed. Discounts are never shown against a stale base.
func (svc *Service) Refresh(ctx context.Context, sessionID, userID, token string) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	snapshot, err := svc.Carts.Snapshot(ctx, token)
	if err != nil {
		return View{}, err
	}
	if snapshot.Empty() {
		return View{}, common.NewAppError(common.CodeValidation, "cart is empty", http.StatusUnprocessableEntity, nil)
	}

	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	s.Snapshot = snapshot
	type rerun struct {
		cat  voucher.Category
		code string
	}
	var reruns []rerun
	for _, cat := range []voucher.Category{voucher.CategoryClothes, voucher.CategoryShipping} {
		slot := s.slot(cat)
		if slot.Selected == nil {
			continue
		}
		// drop the old amount until the new base resolves
		slot.Result = nil
		slot.pending = nil
		reruns = append(reruns, rerun{cat: cat, code: slot.Selected.Code})
	}
	s.recomputeLocked(svc.Fees)
	s.mu.Unlock()

	view := View{}
	for _, r := range reruns {
		view, err = svc.SelectVoucher(ctx, sessionID, userID, token, r.cat, r.code)
		if err != nil {
			return View{}, err
		}
	}
	if len(reruns) == 0 {
		return svc.Get(ctx, sessionID, userID)
	}
	return view, nil
}

// Advance moves the session to the next step when the current step's
// validation passes.
func (svc *Service) Advance(_ context.Context, sessionID, userID string) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return View{}, err
	}
	if !canAdvance(s.Step, s.Billing, s.Method, s.Card) {
		return View{}, common.NewAppError(common.CodeValidation, stepValidationMessage(s.Step, s.Method), http.StatusUnprocessableEntity, nil)
	}
	next, ok := s.Step.Next()
	if !ok {
		return View{}, common.NewAppError(common.CodeValidation, "already at the final step", http.StatusUnprocessableEntity, nil)
	}
	s.Step = next
	return s.viewLocked(), nil
}

// Retreat moves the session to the previous step. Data entered in later
// steps is preserved.
func (svc *Service) Retreat(_ context.Context, sessionID, userID string) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return View{}, err
	}
	prev, ok := s.Step.Prev()
	if !ok {
		return View{}, common.NewAppError(common.CodeValidation, "already at the first step", http.StatusUnprocessableEntity, nil)
	}
	s.Step = prev
	return s.viewLocked(), nil
}

func stepValidationMessage(step Step, method PaymentMethod) string {
	switch step {
	case StepBilling:
		return "full name, email, and address are required"
	case StepPaymentMethod:
		if method == "" {
			return "a payment method is required"
		}
		return "card number, expiry date, cvv, and cardholder name are required"
	}
	return "step requirements not met"
}

// Submit places the order. The session must be on the review step. A Redis
// lock keyed by user keeps the action single-flight across replicas; the
// session state flag keeps it single-flight within one process. On failure
// all entered state survives so the shopper can retry.
func (svc *Service) Submit(ctx context.Context, sessionID, userID, token string) (View, error) {
	s, err := svc.Sessions.Get(sessionID, userID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	switch s.State {
	case StateSubmitting:
		s.mu.Unlock()
		return View{}, common.NewAppError(common.CodeConflict, "a submission is already in progress", http.StatusConflict, nil)
	case StateConfirmed:
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}
	if s.Step != StepReview {
		s.mu.Unlock()
		return View{}, common.NewAppError(common.CodeValidation, "complete all checkout steps before submitting", http.StatusUnprocessableEntity, nil)
	}
	if !canAdvance(StepBilling, s.Billing, s.Method, s.Card) || !canAdvance(StepPaymentMethod, s.Billing, s.Method, s.Card) {
		s.mu.Unlock()
		return View{}, common.NewAppError(common.CodeValidation, "checkout data is incomplete", http.StatusUnprocessableEntity, nil)
	}
	submission := svc.buildSubmissionLocked(s)
	items := append([]cart.LineItem(nil), s.Snapshot.Items...)
	method := s.Method
	total := s.Totals.Total
	s.State = StateSubmitting
	s.mu.Unlock()

	restore := func() {
		s.mu.Lock()
		if s.State == StateSubmitting {
			s.State = StateActive
		}
		s.mu.Unlock()
	}

	lockKey := "checkout:submit:" + userID
	lockToken, err := svc.Locker.Acquire(ctx, lockKey, svc.SubmitLockTTL)
	if err != nil {
		restore()
		if errors.Is(err, lock.ErrNotAcquired) {
			return View{}, common.NewAppError(common.CodeConflict, "a submission is already in progress", http.StatusConflict, nil)
		}
		return View{}, common.NewAppError(common.CodeUnavailable, "could not start submission", http.StatusServiceUnavailable, err)
	}
	defer svc.Locker.Release(context.WithoutCancel(ctx), lockKey, lockToken)

	submitCtx := ctx
	if svc.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, svc.SubmitTimeout)
		defer cancel()
	}

	svc.emit(ctx, events.TopicOrderSubmitted, sessionID, map[string]any{
		"user_id": userID,
		"method":  string(method),
		"total":   total,
	})

	confirmation, err := svc.Gateway.Submit(submitCtx, token, submission)
	if err != nil {
		restore()
		obs.ObserveSubmit(string(method), "error")
		svc.Logger.Warn().Err(err).
			Str("session_id", sessionID).
			Str("user_id", userID).
			Msg("order_submission_failed")
		svc.emit(ctx, events.TopicSubmissionFailed, sessionID, map[string]any{
			"user_id": userID,
			"reason":  err.Error(),
		})
		return View{}, err
	}

	s.mu.Lock()
	s.State = StateConfirmed
	s.Confirmation = &confirmation
	view := s.viewLocked()
	s.mu.Unlock()

	obs.ObserveSubmit(string(method), "ok")
	svc.emit(ctx, events.TopicOrderConfirmed, sessionID, map[string]any{
		"user_id":      userID,
		"order_number": confirmation.OrderNumber,
		"payment_id":   confirmation.PaymentID,
	})

	// purchased items leave the cart best-effort; a failure here never
	// touches the confirmation
	if svc.Cleanup != nil {
		svc.Cleanup.EnqueueRemovals(context.WithoutCancel(ctx), userID, token, items)
		svc.emit(ctx, events.TopicCartCleanupQueued, sessionID, map[string]any{
			"user_id": userID,
			"items":   len(items),
		})
	}

	return view, nil
}

// buildSubmissionLocked assembles the outbound order payload from session
// state. Both voucher codes are included when both slots resolved, clothes
// first.
func (svc *Service) buildSubmissionLocked(s *Session) payment.Submission {
	items := make([]payment.SubmissionItem, 0, len(s.Snapshot.Items))
	for _, li := range s.Snapshot.Items {
		items = append(items, payment.SubmissionItem{
			ProductID:  li.ProductID,
			Name:       li.Name,
			Quantity:   li.Quantity,
			UnitPrice:  li.UnitPrice,
			TotalPrice: li.LineTotal(),
		})
	}

	codes := make([]string, 0, 2)
	if clothes := s.slot(voucher.CategoryClothes); clothes.Selected != nil && clothes.Result != nil {
		codes = append(codes, clothes.Selected.Code)
	}
	if shipping := s.slot(voucher.CategoryShipping); shipping.Selected != nil && shipping.Result != nil {
		codes = append(codes, shipping.Selected.Code)
	}

	return payment.Submission{
		Items:         items,
		PaymentMethod: string(s.Method),
		BillingAddress: payment.BillingAddress{
			FullName:     strings.TrimSpace(s.Billing.FullName),
			AddressLine1: strings.TrimSpace(s.Billing.Address),
			City:         strings.TrimSpace(s.Billing.City),
			State:        strings.TrimSpace(s.Billing.State),
			PostalCode:   strings.TrimSpace(s.Billing.ZipCode),
			Country:      strings.TrimSpace(s.Billing.Country),
		},
		DiscountCodes: codes,
		Currency:      svc.currency(),
		Notes:         s.Notes,
	}
}

// mutableLocked refuses edits to sessions that are submitting or confirmed.
func (s *Session) mutableLocked() error {
	switch s.State {
	case StateSubmitting:
		return common.NewAppError(common.CodeConflict, "a submission is in progress", http.StatusConflict, nil)
	case StateConfirmed:
		return common.NewAppError(common.CodeConflict, "order already confirmed", http.StatusConflict, nil)
	}
	return nil
}

func (svc *Service) emit(ctx context.Context, topic, sessionID string, payload map[string]any) {
	if svc.Bus == nil {
		return
	}
	if _, err := svc.Bus.Emit(ctx, topic, sessionID, payload); err != nil {
		svc.Logger.Warn().Err(err).Str("topic", topic).Msg("event_emit_failed")
	}
}
