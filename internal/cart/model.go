package cart

import "time"

// Item is one cart line. PriceSnapshot is the unit price locked when the
// product was added and is what the order charges.
type Item struct {
	ID            string
	ProductID     string
	Quantity      int
	PriceSnapshot float64
	CreatedAt     time.Time
}

type Cart struct {
	UserID string
	Items  []Item
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// ProductIDs returns the distinct product ids in cart order.
func (c *Cart) ProductIDs() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(c.Items))
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}
