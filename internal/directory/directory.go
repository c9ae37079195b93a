// Package directory is the client side of the external product/user
// directory. The marketplace catalog owns product data; the order core only
// resolves the seller and the current price at purchase time.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrProductNotFound = errors.New("product not found")

// Product is the slice of a catalog record the order core needs.
type Product struct {
	ID        uuid.UUID `json:"id"`
	SellerID  uuid.UUID `json:"seller_id"`
	UnitPrice int64     `json:"unit_price"`
	Listed    bool      `json:"listed"`
}

// ProductDirectory resolves catalog lookups. An unlisted product is reported
// as not found: it cannot be purchased.
type ProductDirectory interface {
	ResolveProduct(ctx context.Context, id uuid.UUID) (Product, error)
}

// HTTPDirectory talks to the catalog service over its JSON API.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDirectory) ResolveProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	url := fmt.Sprintf("%s/products/%s", d.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Product{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Product{}, ErrProductNotFound
	default:
		return Product{}, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Product{}, fmt.Errorf("decode product: %w", err)
	}
	if !p.Listed {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

var _ ProductDirectory = (*HTTPDirectory)(nil)
