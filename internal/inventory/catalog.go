package inventory

import (
	"errors"
	"sync"

	"github.com/fjod/go_cart/storefront-cart/internal/domain"
)

var ErrNegativeStock = errors.New("stock amount must not be negative")

// Catalog is an in-memory product and stock table. Safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	stocks   map[int64]int
}

func NewCatalog() *Catalog {
	return &Catalog{
		products: make(map[int64]domain.Product),
		stocks:   make(map[int64]int),
	}
}

// SetProduct inserts or replaces a product record.
func (c *Catalog) SetProduct(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// SetStock sets the stock level for a product
func (c *Catalog) SetStock(productID int64, amount int) error {
	if amount < 0 {
		return ErrNegativeStock
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stocks[productID] = amount
	return nil
}

func (c *Catalog) Product(productID int64) (domain.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	return p, ok
}

func (c *Catalog) Stock(productID int64) (domain.Stock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	amount, ok := c.stocks[productID]
	if !ok {
		return domain.Stock{}, false
	}
	return domain.Stock{ID: productID, Amount: amount}, true
}

// Len returns the number of products in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}
