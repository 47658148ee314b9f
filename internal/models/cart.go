package models

import "github.com/shopspring/decimal"

// CartItem is a checkout line as submitted by the caller. Price and name are
// resolved from the catalog at placement time, never trusted from the client.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CatalogProduct is the catalog's answer for one product at order time.
type CatalogProduct struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Image    string          `json:"image,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Active   bool            `json:"active"`
}
