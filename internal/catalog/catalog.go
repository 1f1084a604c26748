package catalog

import "github.com/shopspring/decimal"

// Item is a menu entry as served by the menu collaborator. Read-only to the terminal.
type Item struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Tags        []string        `json:"tags"`
}

// LineItem is an Item on a ticket with a quantity of at least 1.
type LineItem struct {
	Item
	Quantity int `json:"quantity"`
}

// LineTotal is price × quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Index builds a SKU lookup over every category of a menu.
// Later categories win when the same SKU is listed twice.
func Index(categories map[string][]Item) map[string]Item {
	idx := make(map[string]Item)
	for _, items := range categories {
		for _, it := range items {
			idx[it.SKU] = it
		}
	}
	return idx
}
