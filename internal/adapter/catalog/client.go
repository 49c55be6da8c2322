package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/comanda/internal/config"
	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

// Client reads item pricing from the catalog service. The core never
// caches catalog data; the single lookup result is frozen onto the
// line item as a snapshot.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg config.CatalogConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
}

type itemResponse struct {
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Available   bool            `json:"available"`
	Description string          `json:"description"`
	ImageRef    *string         `json:"image_ref"`
}

func (c *Client) GetItemPrice(ctx context.Context, tenantID uuid.UUID, ref domain.ItemRef) (*interfaces.CatalogItem, error) {
	url := fmt.Sprintf("%s/v1/items/%s/%s", c.baseURL, ref.Kind, ref.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("X-Tenant-ID", tenantID.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("catalog item", ref.ID.String())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}

	var item itemResponse
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("unparseable catalog response: %w", err)
	}

	return &interfaces.CatalogItem{
		UnitPrice:   item.UnitPrice,
		Available:   item.Available,
		Description: item.Description,
		ImageRef:    item.ImageRef,
	}, nil
}
