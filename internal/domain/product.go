package domain

import "time"

type Product struct {
	ID          string
	Name        string
	Description string
	Price       Money
	Stock       int
	Unit        string
	Category    string
	Organic     bool
	ImageURL    string
	CreatedAt   time.Time
}

func (p *Product) Available() bool {
	return p != nil && p.Stock > 0
}
