package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront-cart/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrStockNotFound    = errors.New("stock not found")
	ErrUnexpectedStatus = errors.New("unexpected inventory response status")
	errResourceNotFound = errors.New("inventory resource not found")
)

const maxResponseBodyBytes = 1 << 20

// Client reads products and stock levels from the inventory HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	sfg     singleflight.Group // coalesces identical in-flight lookups
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "inventory",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, errResourceNotFound)
			},
		}),
	}
}

func (c *Client) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	body, err := c.get(ctx, fmt.Sprintf("/products/%d", productID))
	if errors.Is(err, errResourceNotFound) {
		return domain.Product{}, ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}

	var product *domain.Product
	if err := json.Unmarshal(body, &product); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %d failed: %w", productID, err)
	}
	if product == nil || product.ID == 0 {
		return domain.Product{}, ErrProductNotFound
	}
	return *product, nil
}

func (c *Client) GetStock(ctx context.Context, productID int64) (domain.Stock, error) {
	body, err := c.get(ctx, fmt.Sprintf("/stock/%d", productID))
	if errors.Is(err, errResourceNotFound) {
		return domain.Stock{}, ErrStockNotFound
	}
	if err != nil {
		return domain.Stock{}, err
	}

	var stock *domain.Stock
	if err := json.Unmarshal(body, &stock); err != nil {
		return domain.Stock{}, fmt.Errorf("decode stock %d failed: %w", productID, err)
	}
	if stock == nil {
		return domain.Stock{}, ErrStockNotFound
	}
	return *stock, nil
}

// get shares one in-flight fetch per path. The shared fetch is detached from
// any single caller's cancellation and bounded by the client timeout; each
// caller still stops waiting when its own ctx is done.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.sfg.DoChan(path, func() (interface{}, error) {
		return c.breaker.Execute(func() ([]byte, error) {
			return c.fetch(fetchCtx, path)
		})
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inventory request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errResourceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read inventory response failed: %w", err)
	}
	return body, nil
}
