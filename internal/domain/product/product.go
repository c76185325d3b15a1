// Package product describes menu items as they are priced at order time.
package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// PricingMode selects how a product's base price is computed.
type PricingMode string

const (
	// PricingFlat prices per unit: unitPrice × quantity.
	PricingFlat PricingMode = "flat"
	// PricingWeighted prices by weight: unitPrice is per 100 grams.
	PricingWeighted PricingMode = "weighted"
)

// Valid reports whether m is a known pricing mode.
func (m PricingMode) Valid() bool {
	return m == PricingFlat || m == PricingWeighted
}

// Well-known menu categories that take part in loyalty rewards.
const (
	CategoryDrinks   = "drinks"
	CategorySide     = "side"
	CategoryStarters = "starters"
)

// Snapshot is the price-relevant view of a menu product captured when an
// order line is created. Later catalog edits never change a snapshot.
type Snapshot struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Category  string         `json:"category"`
	UnitPrice money.Money    `json:"unitPrice"`
	Mode      PricingMode    `json:"pricingMode"`
	Modifiers ModifierGroups `json:"modifiers"`
	Image     Image          `json:"image"`
}

// ModifierGroups lists the options a customer may attach to a product.
type ModifierGroups struct {
	Vegetables        []string           `json:"vegetables,omitempty"`
	Additions         []FixedAddition    `json:"additions,omitempty"`
	WeightedAdditions []WeightedAddition `json:"weightedAdditions,omitempty"`
}

// FixedAddition is an extra with a flat price charged once per line.
type FixedAddition struct {
	Name  string      `json:"name"`
	Price money.Money `json:"price"`
}

// WeightedAddition is an extra priced by grams.
type WeightedAddition struct {
	Name         string      `json:"name"`
	PricePer50g  money.Money `json:"pricePer50g"`
	PricePer100g money.Money `json:"pricePer100g"`
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string `json:"thumbnail,omitempty"`
	Mobile    string `json:"mobile,omitempty"`
	Tablet    string `json:"tablet,omitempty"`
	Desktop   string `json:"desktop,omitempty"`
}

// FixedAddition returns the flat-priced addition with the given name.
func (g ModifierGroups) FixedAddition(name string) (FixedAddition, bool) {
	for _, a := range g.Additions {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return FixedAddition{}, false
}

// WeightedAddition returns the gram-priced addition with the given name.
func (g ModifierGroups) WeightedAddition(name string) (WeightedAddition, bool) {
	for _, a := range g.WeightedAdditions {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return WeightedAddition{}, false
}

// Repository defines read operations for the menu catalog.
type Repository interface {
	List(ctx context.Context) ([]Snapshot, error)
	GetByID(ctx context.Context, id string) (*Snapshot, error)
	GetByIDs(ctx context.Context, ids []string) ([]Snapshot, error)
}
