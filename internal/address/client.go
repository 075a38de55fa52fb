package address

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/resilience"
)

// Client talks to the customer profile collaborator service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// NewClient builds a profile service client rooted at baseURL.
func NewClient(baseURL string, httpClient *resilience.HTTPClient) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
	}
}

type wireAddress struct {
	ID            string `json:"_id"`
	RecipientName string `json:"recipient_name"`
	Street        string `json:"street"`
	Barangay      string `json:"barangay"`
	City          string `json:"city"`
	Province      string `json:"province"`
	Region        string `json:"region"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
	IsDefault     bool   `json:"is_default"`
	ContactNumber string `json:"contact_number"`
	AddressType   string `json:"address_type"`
}

// List fetches the shopper's saved addresses.
func (c *Client) List(ctx context.Context, token, username string) ([]Address, error) {
	endpoint := fmt.Sprintf("%s/users/%s/addresses", c.BaseURL, url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, common.NewAppError(common.CodeUnavailable, "profile service unavailable", http.StatusServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, common.NewAppError(common.CodeUnavailable, "profile service unavailable", http.StatusServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, common.NewAppError(common.CodeUnauthorized, "profile service rejected credentials", http.StatusUnauthorized, nil)
	case resp.StatusCode == http.StatusNotFound:
		// an account with no saved addresses is still a valid checkout
		return nil, nil
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, common.NewAppError(common.CodeUnavailable, "profile service unavailable", http.StatusServiceUnavailable, nil)
	}

	var wire []wireAddress
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("address: decode list: %w", err)
	}
	out := make([]Address, 0, len(wire))
	for _, w := range wire {
		out = append(out, Address{
			ID:            w.ID,
			RecipientName: w.RecipientName,
			Street:        w.Street,
			Barangay:      w.Barangay,
			City:          w.City,
			Province:      w.Province,
			Region:        w.Region,
			PostalCode:    w.PostalCode,
			Country:       w.Country,
			IsDefault:     w.IsDefault,
			ContactNumber: w.ContactNumber,
			AddressType:   w.AddressType,
		})
	}
	return out, nil
}
