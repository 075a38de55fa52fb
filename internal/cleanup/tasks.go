package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/clothesfashion/backend-checkout/internal/cart"
)

// TypeRemoveCartItem is the task kind for post-order cart cleanup.
const TypeRemoveCartItem = "cart:remove_item"

// RemovePayload identifies one purchased cart entry to delete. The shopper's
// token rides along because the cart service authorises per shopper.
type RemovePayload struct {
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	ProductID string `json:"product_id"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

// Enqueuer schedules cleanup tasks after a confirmed order. Failures are
// logged and swallowed; a stale cart entry never blocks a confirmation.
type Enqueuer struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
	Logger   zerolog.Logger
}

// EnqueueRemovals queues one removal task per purchased entry.
func (e Enqueuer) EnqueueRemovals(ctx context.Context, userID, token string, items []cart.LineItem) {
	if e.Client == nil {
		return
	}
	for _, item := range items {
		payload, err := json.Marshal(RemovePayload{
			UserID:    userID,
			Token:     token,
			ProductID: item.ProductID,
			Size:      item.Size,
			Color:     item.Color,
		})
		if err != nil {
			e.Logger.Error().Err(err).Str("product_id", item.ProductID).Msg("cleanup_encode_failed")
			continue
		}
		task := asynq.NewTask(TypeRemoveCartItem, payload)
		opts := []asynq.Option{
			asynq.MaxRetry(e.maxRetry()),
			asynq.Timeout(time.Minute),
		}
		if e.Queue != "" {
			opts = append(opts, asynq.Queue(e.Queue))
		}
		if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
			e.Logger.Error().Err(err).
				Str("user_id", userID).
				Str("product_id", item.ProductID).
				Msg("cleanup_enqueue_failed")
		}
	}
}

func (e Enqueuer) maxRetry() int {
	if e.MaxRetry <= 0 {
		return 5
	}
	return e.MaxRetry
}

// Worker consumes cleanup tasks and removes the entries from the cart
// service.
type Worker struct {
	Carts  cart.Store
	Logger zerolog.Logger
}

// HandleRemoveCartItem processes a single removal task. A missing item counts
// as success since the shopper may have already removed it.
func (w Worker) HandleRemoveCartItem(ctx context.Context, task *asynq.Task) error {
	var payload RemovePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("cleanup: decode payload: %w", asynq.SkipRetry)
	}
	err := w.Carts.RemoveItem(ctx, payload.Token, payload.ProductID, payload.Size, payload.Color)
	if err != nil {
		if isNotFound(err) {
			w.Logger.Debug().
				Str("user_id", payload.UserID).
				Str("product_id", payload.ProductID).
				Msg("cleanup_item_already_gone")
			return nil
		}
		w.Logger.Warn().Err(err).
			Str("user_id", payload.UserID).
			Str("product_id", payload.ProductID).
			Msg("cleanup_remove_failed")
		return err
	}
	w.Logger.Info().
		Str("user_id", payload.UserID).
		Str("product_id", payload.ProductID).
		Msg("cleanup_item_removed")
	return nil
}
