package product

import "time"

// Product is the slice of catalog state the order engine reads and the
// stock counter it mutates. Catalog CRUD lives outside this service.
type Product struct {
	ID            string
	Name          string
	Slug          string
	SKU           string
	ImageURL      *string
	Price         float64
	DiscountPrice *float64
	Stock         int
	IsActive      bool
	IsDeleted     bool
	UpdatedAt     time.Time
}

// Orderable reports whether the product may appear on a new order.
func (p *Product) Orderable() bool {
	return p != nil && p.IsActive && !p.IsDeleted
}
