package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/pricing"
	"github.com/clothesfashion/backend-checkout/internal/resilience"
)

// Client talks to the cart collaborator service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// NewClient builds a cart service client rooted at baseURL.
func NewClient(baseURL string, httpClient *resilience.HTTPClient) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
	}
}

type wireItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Brand       string  `json:"brand"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	Size        string  `json:"size"`
	Color       string  `json:"color"`
	ImageURL    string  `json:"image_url"`
}

// Snapshot fetches the shopper's current cart contents.
func (c *Client) Snapshot(ctx context.Context, token string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/cart", nil)
	if err != nil {
		return Snapshot{}, err
	}
	body, err := c.execute(req, token)
	if err != nil {
		return Snapshot{}, err
	}

	var payload struct {
		Items []wireItem `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("cart: decode snapshot: %w", err)
	}

	items := make([]LineItem, 0, len(payload.Items))
	for _, w := range payload.Items {
		items = append(items, LineItem{
			ProductID: w.ProductID,
			Name:      w.ProductName,
			Brand:     w.Brand,
			UnitPrice: pricing.FromFloat(w.UnitPrice),
			Quantity:  w.Quantity,
			Size:      w.Size,
			Color:     w.Color,
			ImageURL:  w.ImageURL,
		})
	}
	return Snapshot{Items: items}, nil
}

// RemoveItem deletes one cart entry. Variant attributes travel as query
// parameters because the cart service keys entries on product, size, and
// color together.
func (c *Client) RemoveItem(ctx context.Context, token, productID, size, color string) error {
	endpoint := c.BaseURL + "/cart/item/" + url.PathEscape(productID)
	q := url.Values{}
	if size != "" {
		q.Set("size", size)
	}
	if color != "" {
		q.Set("color", color)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	_, err = c.execute(req, token)
	return err
}

func (c *Client) execute(req *http.Request, token string) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, common.NewAppError(common.CodeUnavailable, "cart service unavailable", http.StatusServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, common.NewAppError(common.CodeUnavailable, "cart service unavailable", http.StatusServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, common.NewAppError(common.CodeUnauthorized, "cart service rejected credentials", http.StatusUnauthorized, nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, common.NewAppError(common.CodeNotFound, "cart item not found", http.StatusNotFound, nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, common.NewAppError(common.CodeUnavailable, "cart service unavailable", http.StatusServiceUnavailable, nil)
	}
	return body, nil
}
