package voucher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/pricing"
	"github.com/clothesfashion/backend-checkout/internal/resilience"
)

// DiscountResult is the discount service's verdict for a code applied
// against a base amount.
type DiscountResult struct {
	Code        string
	Percentage  float64
	Amount      pricing.Money
	Description string
}

// Resolver lists a shopper's vouchers and resolves discount amounts. The
// discount service owns all voucher validity rules; checkout only relays the
// base amount and applies whatever comes back.
type Resolver interface {
	ListMine(ctx context.Context, token string) ([]Voucher, error)
	Apply(ctx context.Context, token, code string, base pricing.Money) (DiscountResult, error)
}

// Client talks to the discount collaborator service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// NewClient builds a discount service client rooted at baseURL.
func NewClient(baseURL string, httpClient *resilience.HTTPClient) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
	}
}

// ListMine fetches the vouchers assigned to the authenticated shopper.
func (c *Client) ListMine(ctx context.Context, token string) ([]Voucher, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/my-discounts", nil)
	if err != nil {
		return nil, err
	}
	body, err := c.execute(req, token)
	if err != nil {
		return nil, err
	}
	return DecodeList(body)
}

// Apply validates the code against the supplied base amount and returns the
// computed discount.
func (c *Client) Apply(ctx context.Context, token, code string, base pricing.Money) (DiscountResult, error) {
	payload, err := json.Marshal(map[string]any{
		"code":         strings.ToUpper(strings.TrimSpace(code)),
		"total_amount": base,
	})
	if err != nil {
		return DiscountResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/apply-discount", bytes.NewReader(payload))
	if err != nil {
		return DiscountResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.execute(req, token)
	if err != nil {
		return DiscountResult{}, err
	}

	var resp struct {
		DiscountCode       string  `json:"discount_code"`
		DiscountPercentage float64 `json:"discount_percentage"`
		DiscountAmount     float64 `json:"discount_amount"`
		Description        string  `json:"description"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return DiscountResult{}, fmt.Errorf("voucher: decode apply response: %w", err)
	}
	return DiscountResult{
		Code:        strings.ToUpper(resp.DiscountCode),
		Percentage:  resp.DiscountPercentage,
		Amount:      pricing.FromFloat(resp.DiscountAmount),
		Description: resp.Description,
	}, nil
}

func (c *Client) execute(req *http.Request, token string) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, common.NewAppError(common.CodeUnavailable, "discount service unavailable", http.StatusServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, common.NewAppError(common.CodeUnavailable, "discount service unavailable", http.StatusServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, common.NewAppError(common.CodeUnauthorized, "discount service rejected credentials", http.StatusUnauthorized, nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, common.NewAppError(common.CodeNotFound, "invalid or inactive discount code", http.StatusUnprocessableEntity, nil)
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		return nil, common.NewAppError(common.CodeValidation, upstreamDetail(body, "discount code rejected"), http.StatusUnprocessableEntity, nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, common.NewAppError(common.CodeUnavailable, "discount service unavailable", http.StatusServiceUnavailable, nil)
	}
	return body, nil
}

// upstreamDetail surfaces the collaborator's human-readable reason when it
// provides one.
func upstreamDetail(body []byte, fallback string) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if d := strings.TrimSpace(payload.Detail); d != "" {
			return d
		}
	}
	return fallback
}
