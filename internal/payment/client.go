package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/resilience"
)

// Client talks to the payment collaborator service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// NewClient builds a payment gateway client rooted at baseURL.
func NewClient(baseURL string, httpClient *resilience.HTTPClient) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
	}
}

// Submit places the order. Timeouts and transport failures map to an
// unavailable error so the caller can keep the session resubmittable.
func (c *Client) Submit(ctx context.Context, token string, sub Submission) (Confirmation, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return Confirmation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/create-payment", bytes.NewReader(payload))
	if err != nil {
		return Confirmation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Confirmation{}, common.NewAppError(common.CodeUnavailable, "payment gateway timed out", http.StatusGatewayTimeout, err)
		}
		return Confirmation{}, common.NewAppError(common.CodeUnavailable, "payment gateway unavailable", http.StatusServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Confirmation{}, common.NewAppError(common.CodeUnavailable, "payment gateway unavailable", http.StatusServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Confirmation{}, common.NewAppError(common.CodeUnauthorized, "payment gateway rejected credentials", http.StatusUnauthorized, nil)
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		return Confirmation{}, common.NewAppError(common.CodeValidation, declineReason(body), http.StatusUnprocessableEntity, nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return Confirmation{}, common.NewAppError(common.CodeUnavailable, "payment gateway unavailable", http.StatusServiceUnavailable, nil)
	}

	var result struct {
		OrderNumber string `json:"order_number"`
		PaymentID   string `json:"payment_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Confirmation{}, fmt.Errorf("payment: decode confirmation: %w", err)
	}
	if result.OrderNumber == "" && result.PaymentID == "" {
		return Confirmation{}, common.NewAppError(common.CodeUnavailable, "payment gateway returned an empty confirmation", http.StatusBadGateway, nil)
	}
	return Confirmation{OrderNumber: result.OrderNumber, PaymentID: result.PaymentID}, nil
}

func declineReason(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if d := strings.TrimSpace(payload.Detail); d != "" {
			return d
		}
	}
	return "payment was declined"
}
