package checkout

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clothesfashion/backend-checkout/internal/address"
	"github.com/clothesfashion/backend-checkout/internal/cart"
	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/lock"
	"github.com/clothesfashion/backend-checkout/internal/payment"
	"github.com/clothesfashion/backend-checkout/internal/pricing"
	"github.com/clothesfashion/backend-checkout/internal/voucher"
)

type fakeCarts struct {
	mu      sync.Mutex
	snap    cart.Snapshot
	err     error
	removed [][3]string
}

func (f *fakeCarts) Snapshot(context.Context, string) (cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeCarts) RemoveItem(_ context.Context, _, productID, size, color string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, [3]string{productID, size, color})
	return nil
}

type fakeAddresses struct {
	list []address.Address
	err  error
}

func (f *fakeAddresses) List(context.Context, string, string) ([]address.Address, error) {
	return f.list, f.err
}

type fakeResolver struct {
	mu       sync.Mutex
	vouchers []voucher.Voucher
	applyFn  func(code string, base pricing.Money) (voucher.DiscountResult, error)
	applied  []string
}

func (f *fakeResolver) ListMine(context.Context, string) ([]voucher.Voucher, error) {
	return f.vouchers, nil
}

func (f *fakeResolver) Apply(_ context.Context, _ string, code string, base pricing.Money) (voucher.DiscountResult, error) {
	f.mu.Lock()
	f.applied = append(f.applied, code)
	fn := f.applyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(code, base)
	}
	return voucher.DiscountResult{}, errors.New("no resolver configured")
}

type fakeGateway struct {
	mu    sync.Mutex
	conf  payment.Confirmation
	err   error
	calls []payment.Submission
}

func (f *fakeGateway) Submit(_ context.Context, _ string, sub payment.Submission) (payment.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sub)
	return f.conf, f.err
}

type fakeCleanup struct {
	mu    sync.Mutex
	items []cart.LineItem
}

func (f *fakeCleanup) EnqueueRemovals(_ context.Context, _, _ string, items []cart.LineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, items...)
}

func percentOf(p float64) func(code string, base pricing.Money) (voucher.DiscountResult, error) {
	return func(code string, base pricing.Money) (voucher.DiscountResult, error) {
		amount := pricing.Money(float64(base) * p / 100)
		return voucher.DiscountResult{Code: code, Percentage: p, Amount: amount}, nil
	}
}

// scenario cart from the storefront reference: 2x500 + 2x300, four units.
func referenceCart() cart.Snapshot {
	return cart.Snapshot{Items: []cart.LineItem{
		{ProductID: "p1", Name: "Denim Jacket", UnitPrice: 500, Quantity: 2, Size: "M", Color: "blue"},
		{ProductID: "p2", Name: "Linen Shirt", UnitPrice: 300, Quantity: 2, Size: "L", Color: "white"},
	}}
}

type fixture struct {
	svc      *Service
	carts    *fakeCarts
	resolver *fakeResolver
	gateway  *fakeGateway
	cleanup  *fakeCleanup
	user     common.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	carts := &fakeCarts{snap: referenceCart()}
	resolver := &fakeResolver{
		vouchers: []voucher.Voucher{
			{Code: "SUMMER10", Category: voucher.CategoryClothes, Percentage: 10},
			{Code: "FRESH15", Category: voucher.CategoryClothes, Percentage: 15},
			{Code: "SHIP20", Category: voucher.CategoryShipping, Percentage: 20},
		},
		applyFn: percentOf(10),
	}
	gateway := &fakeGateway{conf: payment.Confirmation{OrderNumber: "ON-1", PaymentID: "PAY-1"}}
	cl := &fakeCleanup{}

	svc := &Service{
		Carts:         carts,
		Addresses:     &fakeAddresses{},
		Vouchers:      resolver,
		Gateway:       gateway,
		Sessions:      NewStore(time.Hour),
		Locker:        lock.Locker{R: client},
		Cleanup:       cl,
		Fees:          pricing.DefaultFees(),
		Currency:      "PHP",
		Country:       "Philippines",
		SubmitTimeout: time.Second,
		SubmitLockTTL: time.Minute,
		Logger:        zerolog.Nop(),
	}
	return &fixture{
		svc:      svc,
		carts:    carts,
		resolver: resolver,
		gateway:  gateway,
		cleanup:  cl,
		user:     common.User{ID: "user-1", Username: "maria", Email: "maria@example.com", FullName: "Maria Santos"},
	}
}

func (f *fixture) start(t *testing.T) View {
	t.Helper()
	view, err := f.svc.Start(context.Background(), f.user, "tok-1")
	require.NoError(t, err)
	return view
}

func (f *fixture) toReview(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.UpdateBilling(ctx, id, f.user.ID, BillingInfo{
		FullName: "Maria Santos",
		Email:    "maria@example.com",
		Address:  "123 Mabini St, Quezon City",
		City:     "Quezon City",
		State:    "Metro Manila",
		ZipCode:  "1100",
		Country:  "Philippines",
	})
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, id, f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.SetPaymentMethod(ctx, id, f.user.ID, "gcash", CardInfo{})
	require.NoError(t, err)
	view, err := f.svc.Advance(ctx, id, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, StepReview, view.Step)
}

func TestStartPricesSnapshot(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)

	assert.Equal(t, StepBilling, view.Step)
	assert.EqualValues(t, 1600, view.Totals.Subtotal)
	assert.EqualValues(t, 50, view.Totals.ShippingFee, "4 units pays one extra increment")
	assert.EqualValues(t, 1650, view.Totals.Total)
	assert.Len(t, view.Vouchers, 3)
}

func TestStartRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	f.carts.snap = cart.Snapshot{}

	_, err := f.svc.Start(context.Background(), f.user, "tok-1")
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeValidation, appErr.Code)
}

func TestStartPrefillsFromDefaultAddress(t *testing.T) {
	f := newFixture(t)
	f.svc.Addresses = &fakeAddresses{list: []address.Address{
		{ID: "a1", RecipientName: "Other Person", Street: "1 First St", City: "Cebu"},
		{
			ID: "a2", RecipientName: "Maria R. Santos", Street: "123 Mabini St",
			City: "Quezon City", Province: "Metro Manila", PostalCode: "1100",
			Country: "Philippines", IsDefault: true,
		},
	}}

	view := f.start(t)
	assert.Equal(t, "Maria Santos", view.Billing.FullName, "account name wins over recipient")
	assert.Equal(t, "maria@example.com", view.Billing.Email)
	assert.Contains(t, view.Billing.Address, "123 Mabini St")
	assert.Equal(t, "Quezon City", view.Billing.City)
	assert.Equal(t, "1100", view.Billing.ZipCode)
}

func TestStartSurvivesAddressAndVoucherOutage(t *testing.T) {
	f := newFixture(t)
	f.svc.Addresses = &fakeAddresses{err: errors.New("profile service down")}

	view := f.start(t)
	assert.Empty(t, view.Addresses)
	assert.EqualValues(t, 1650, view.Totals.Total)
}

func TestSelectVoucherAppliesDiscountAgainstCorrectBase(t *testing.T) {
	f := newFixture(t)
	f.resolver.applyFn = percentOf(10)
	view := f.start(t)
	ctx := context.Background()

	got, err := f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "SUMMER10")
	require.NoError(t, err)
	require.NotNil(t, got.Clothes.Result)
	assert.EqualValues(t, 160, got.Clothes.Result.Amount, "10% of subtotal 1600")
	assert.EqualValues(t, 1650-160, got.Totals.Total)

	f.resolver.applyFn = percentOf(20)
	got, err = f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryShipping, "SHIP20")
	require.NoError(t, err)
	require.NotNil(t, got.Shipping.Result)
	assert.EqualValues(t, 10, got.Shipping.Result.Amount, "20% of shipping fee 50")
	assert.EqualValues(t, 1600-160+50-10, got.Totals.Total)
}

func TestSelectVoucherSlotIndependence(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	ctx := context.Background()

	f.resolver.applyFn = percentOf(20)
	_, err := f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryShipping, "SHIP20")
	require.NoError(t, err)

	f.resolver.applyFn = percentOf(10)
	got, err := f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "SUMMER10")
	require.NoError(t, err)
	require.NotNil(t, got.Shipping.Result, "shipping slot untouched by clothes selection")

	got, err = f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "")
	require.NoError(t, err)
	assert.Nil(t, got.Clothes.Result, "clothes slot cleared")
	require.NotNil(t, got.Shipping.Result, "shipping slot still untouched")
	assert.EqualValues(t, 1600+50-10, got.Totals.Total)
}

func TestSelectVoucherUnknownCodeClearsWithoutRemoteCall(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)

	got, err := f.svc.SelectVoucher(context.Background(), view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, got.Clothes.Selected)
	assert.Nil(t, got.Clothes.Result)
	assert.Empty(t, f.resolver.applied, "unknown codes never reach the discount service")
}

func TestSelectVoucherWrongCategoryRejected(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)

	// SHIP20 is a shipping voucher; selecting it into the clothes slot is a
	// no-discount state, not a cross-base application
	got, err := f.svc.SelectVoucher(context.Background(), view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "SHIP20")
	require.NoError(t, err)
	assert.Nil(t, got.Clothes.Result)
	assert.Empty(t, f.resolver.applied)
}

func TestSelectVoucherResolutionFailureIsRecoverable(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	f.resolver.applyFn = func(string, pricing.Money) (voucher.DiscountResult, error) {
		return voucher.DiscountResult{}, errors.New("service exploded")
	}

	got, err := f.svc.SelectVoucher(context.Background(), view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "SUMMER10")
	require.NoError(t, err, "voucher failures never block checkout")
	assert.Nil(t, got.Clothes.Result)
	assert.EqualValues(t, 1650, got.Totals.Total, "no stale discount left behind")
}

func TestSelectVoucherStaleResponseDiscarded(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	ctx := context.Background()

	var once sync.Once
	f.resolver.applyFn = func(code string, base pricing.Money) (voucher.DiscountResult, error) {
		if code == "SUMMER10" {
			// while SUMMER10 is in flight the shopper switches to FRESH15
			once.Do(func() {
				_, err := f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "FRESH15")
				require.NoError(t, err)
			})
			return voucher.DiscountResult{Code: code, Percentage: 10, Amount: 160}, nil
		}
		return voucher.DiscountResult{Code: code, Percentage: 15, Amount: 240}, nil
	}

	_, err := f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "SUMMER10")
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, view.ID, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Clothes.Result)
	assert.Equal(t, "FRESH15", got.Clothes.Result.Code, "late SUMMER10 response must not win")
	assert.EqualValues(t, 240, got.Clothes.Result.Amount)
	assert.EqualValues(t, 1650-240, got.Totals.Total)
}

func TestAdvanceGatesOnBillingFields(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	ctx := context.Background()

	_, err := f.svc.UpdateBilling(ctx, view.ID, f.user.ID, BillingInfo{Email: "x@y.com", Address: "123 St"})
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, view.ID, f.user.ID)
	require.Error(t, err, "blank full name blocks")

	_, err = f.svc.UpdateBilling(ctx, view.ID, f.user.ID, BillingInfo{FullName: "Maria", Email: "x@y.com", Address: "123 St"})
	require.NoError(t, err)
	got, err := f.svc.Advance(ctx, view.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPaymentMethod, got.Step)
}

func TestRetreatPreservesLaterStepData(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	f.toReview(t, view.ID)
	ctx := context.Background()

	got, err := f.svc.Retreat(ctx, view.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPaymentMethod, got.Step)
	assert.Equal(t, MethodGCash, got.Method, "method survives backward navigation")

	got, err = f.svc.Retreat(ctx, view.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StepBilling, got.Step)

	_, err = f.svc.Retreat(ctx, view.ID, f.user.ID)
	require.Error(t, err, "cannot retreat from the first step")
}

func TestSubmitSuccessConfirmsAndQueuesCleanup(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	f.toReview(t, view.ID)

	got, err := f.svc.Submit(context.Background(), view.ID, f.user.ID, "tok-1")
	require.NoError(t, err)

	assert.Equal(t, StateConfirmed, got.State)
	require.NotNil(t, got.Confirmation)
	assert.Equal(t, "ON-1", got.Confirmation.OrderNumber)
	assert.Equal(t, "PAY-1", got.Confirmation.PaymentID)

	require.Len(t, f.gateway.calls, 1)
	sub := f.gateway.calls[0]
	assert.Equal(t, "gcash", sub.PaymentMethod)
	assert.Equal(t, "PHP", sub.Currency)
	require.Len(t, sub.Items, 2)
	assert.EqualValues(t, 1000, sub.Items[0].TotalPrice)
	assert.Equal(t, "Maria Santos", sub.BillingAddress.FullName)

	assert.Len(t, f.cleanup.items, 2, "every purchased line gets a removal attempt")
}

func TestSubmitIncludesBothVoucherCodes(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	ctx := context.Background()

	f.resolver.applyFn = percentOf(10)
	_, err := f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "SUMMER10")
	require.NoError(t, err)
	f.resolver.applyFn = percentOf(20)
	_, err = f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryShipping, "SHIP20")
	require.NoError(t, err)

	f.toReview(t, view.ID)
	_, err = f.svc.Submit(ctx, view.ID, f.user.ID, "tok-1")
	require.NoError(t, err)

	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, []string{"SUMMER10", "SHIP20"}, f.gateway.calls[0].DiscountCodes)
}

func TestSubmitFailureKeepsStateForRetry(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	f.toReview(t, view.ID)
	ctx := context.Background()

	f.gateway.err = common.NewAppError(common.CodeValidation, "Card declined", http.StatusUnprocessableEntity, nil)
	_, err := f.svc.Submit(ctx, view.ID, f.user.ID, "tok-1")
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Card declined", appErr.Message)

	got, err := f.svc.Get(ctx, view.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, got.State, "session resubmittable")
	assert.Equal(t, StepReview, got.Step)
	assert.Equal(t, "Maria Santos", got.Billing.FullName, "entered data intact")
	assert.Empty(t, f.cleanup.items, "no cleanup on failure")

	f.gateway.err = nil
	got, err = f.svc.Submit(ctx, view.ID, f.user.ID, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, got.State)
	assert.Len(t, f.gateway.calls, 2)
}

func TestSubmitRequiresReviewStep(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)

	_, err := f.svc.Submit(context.Background(), view.ID, f.user.ID, "tok-1")
	require.Error(t, err)
	assert.Empty(t, f.gateway.calls)
}

func TestSubmitIsIdempotentOnceConfirmed(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	f.toReview(t, view.ID)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, view.ID, f.user.ID, "tok-1")
	require.NoError(t, err)

	got, err := f.svc.Submit(ctx, view.ID, f.user.ID, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "ON-1", got.Confirmation.OrderNumber)
	assert.Len(t, f.gateway.calls, 1, "gateway invoked exactly once")
}

func TestConfirmedSessionRejectsEdits(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	f.toReview(t, view.ID)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, view.ID, f.user.ID, "tok-1")
	require.NoError(t, err)

	_, err = f.svc.UpdateBilling(ctx, view.ID, f.user.ID, BillingInfo{FullName: "X"})
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeConflict, appErr.Code)
}

func TestRefreshReresolvesAgainstNewBase(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)
	ctx := context.Background()

	f.resolver.applyFn = percentOf(10)
	got, err := f.svc.SelectVoucher(ctx, view.ID, f.user.ID, "tok-1", voucher.CategoryClothes, "SUMMER10")
	require.NoError(t, err)
	require.EqualValues(t, 160, got.Clothes.Result.Amount)

	// the cart shrinks: one denim jacket only, subtotal 500, qty 1, fee 40
	f.carts.mu.Lock()
	f.carts.snap = cart.Snapshot{Items: []cart.LineItem{
		{ProductID: "p1", Name: "Denim Jacket", UnitPrice: 500, Quantity: 1},
	}}
	f.carts.mu.Unlock()

	got, err = f.svc.Refresh(ctx, view.ID, f.user.ID, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got.Clothes.Result)
	assert.EqualValues(t, 50, got.Clothes.Result.Amount, "10% of the new subtotal")
	assert.EqualValues(t, 500-50+40, got.Totals.Total)
}

func TestSessionOwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	view := f.start(t)

	_, err := f.svc.Get(context.Background(), view.ID, "someone-else")
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeNotFound, appErr.Code, "foreign sessions read as missing")
}

func TestApplyAddressRepopulatesBilling(t *testing.T) {
	f := newFixture(t)
	f.svc.Addresses = &fakeAddresses{list: []address.Address{
		{ID: "a1", RecipientName: "Maria Santos", Street: "123 Mabini St", City: "Quezon City", Province: "Metro Manila", PostalCode: "1100", Country: "Philippines"},
		{ID: "a2", RecipientName: "M. Santos", Street: "9 Rizal Ave", City: "Cebu City", Province: "Cebu", PostalCode: "6000", Country: "Philippines"},
	}}
	view := f.start(t)
	ctx := context.Background()

	got, err := f.svc.ApplyAddress(ctx, view.ID, f.user.ID, "a2")
	require.NoError(t, err)
	assert.Equal(t, "M. Santos", got.Billing.FullName)
	assert.Equal(t, "Cebu City", got.Billing.City)
	assert.Equal(t, "6000", got.Billing.ZipCode)

	_, err = f.svc.ApplyAddress(ctx, view.ID, f.user.ID, "missing")
	require.Error(t, err)
}
