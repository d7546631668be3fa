package domain

import "github.com/shopspring/decimal"

// Prices travel as JSON numbers, the same shape the inventory API and stored
// snapshots have always used.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is the inventory record for a sellable item.
type Product struct {
	ID    int64           `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}

// Stock is the available quantity reported by inventory for a product.
type Stock struct {
	ID     int64 `json:"id"`
	Amount int   `json:"amount"`
}

// CartItem is one product line in the cart. It serializes flat:
// {"id","title","price","image","amount"}.
type CartItem struct {
	Product
	Amount int `json:"amount"`
}

// Cart is an ordered list of items, unique by product id.
type Cart []CartItem

// Find returns the index of the item with the given product id.
func (c Cart) Find(productID int64) (int, bool) {
	for i, item := range c {
		if item.ID == productID {
			return i, true
		}
	}
	return -1, false
}

func (c Cart) Clone() Cart {
	if c == nil {
		return Cart{}
	}
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// Size is the number of distinct products in the cart.
func (c Cart) Size() int {
	return len(c)
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Amount)))
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c {
		total = total.Add(item.Subtotal())
	}
	return total
}
