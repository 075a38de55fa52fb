package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clothesfashion/backend-checkout/internal/cart"
	"github.com/clothesfashion/backend-checkout/internal/common"
)

type fakeCartStore struct {
	removed [][4]string
	err     error
}

func (f *fakeCartStore) Snapshot(context.Context, string) (cart.Snapshot, error) {
	return cart.Snapshot{}, nil
}

func (f *fakeCartStore) RemoveItem(_ context.Context, token, productID, size, color string) error {
	f.removed = append(f.removed, [4]string{token, productID, size, color})
	return f.err
}

func removeTask(t *testing.T, payload RemovePayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TypeRemoveCartItem, raw)
}

func TestHandleRemoveCartItem(t *testing.T) {
	store := &fakeCartStore{}
	w := Worker{Carts: store, Logger: zerolog.Nop()}

	err := w.HandleRemoveCartItem(context.Background(), removeTask(t, RemovePayload{
		UserID:    "user-1",
		Token:     "tok-1",
		ProductID: "p1",
		Size:      "M",
		Color:     "white",
	}))
	require.NoError(t, err)
	require.Len(t, store.removed, 1)
	assert.Equal(t, [4]string{"tok-1", "p1", "M", "white"}, store.removed[0])
}

func TestHandleRemoveCartItemTreatsMissingAsDone(t *testing.T) {
	store := &fakeCartStore{err: common.NewAppError(common.CodeNotFound, "cart item not found", http.StatusNotFound, nil)}
	w := Worker{Carts: store, Logger: zerolog.Nop()}

	err := w.HandleRemoveCartItem(context.Background(), removeTask(t, RemovePayload{ProductID: "p1"}))
	assert.NoError(t, err)
}

func TestHandleRemoveCartItemRetriesOnFailure(t *testing.T) {
	store := &fakeCartStore{err: errors.New("connection refused")}
	w := Worker{Carts: store, Logger: zerolog.Nop()}

	err := w.HandleRemoveCartItem(context.Background(), removeTask(t, RemovePayload{ProductID: "p1"}))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleRemoveCartItemSkipsCorruptPayload(t *testing.T) {
	w := Worker{Carts: &fakeCartStore{}, Logger: zerolog.Nop()}

	err := w.HandleRemoveCartItem(context.Background(), asynq.NewTask(TypeRemoveCartItem, []byte("{broken")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
