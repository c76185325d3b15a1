package pricing

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/money"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/reward"
)

// gramsPerPriceUnit is the weight a weighted price is quoted for.
const gramsPerPriceUnit = 100

// Upper bounds for a single line. Larger orders go through catering.
const (
	MaxQuantity    = 999
	MaxWeightGrams = 50_000
)

// AdditionRequest is an addition the customer picked. Grams is only
// meaningful for weighted additions.
type AdditionRequest struct {
	Name  string `json:"name"`
	Grams int    `json:"grams,omitempty"`
}

// LineRequest is one cart line as submitted by a client.
//
// Quantity is used for flat products and WeightGrams for weighted ones.
type LineRequest struct {
	ProductID   string            `json:"productId"`
	Quantity    int               `json:"quantity,omitempty"`
	WeightGrams int               `json:"weightGrams,omitempty"`
	Vegetables  []string          `json:"vegetables,omitempty"`
	Additions   []AdditionRequest `json:"additions,omitempty"`
	Comment     string            `json:"comment,omitempty"`
}

// PricedAddition is an addition with the price it was charged at.
type PricedAddition struct {
	Label     string      `json:"label"`
	Grams     int         `json:"grams,omitempty"`
	UnitPrice money.Money `json:"unitPrice"`
}

// Line is a priced order line. It embeds the product snapshot taken at
// pricing time, so later menu edits do not affect it.
type Line struct {
	ProductID      string              `json:"productId"`
	Name           string              `json:"name"`
	Category       string              `json:"category"`
	Mode           product.PricingMode `json:"pricingMode"`
	UnitPrice      money.Money         `json:"unitPrice"`
	Quantity       int                 `json:"quantity,omitempty"`
	WeightGrams    int                 `json:"weightGrams,omitempty"`
	Vegetables     []string            `json:"vegetables,omitempty"`
	Additions      []PricedAddition    `json:"additions,omitempty"`
	Comment        string              `json:"comment,omitempty"`
	Base           money.Money         `json:"base"`
	AdditionsTotal money.Money         `json:"additionsTotal"`
	ListTotal      money.Money         `json:"listTotal"`
	Total          money.Money         `json:"total"`
	Reward         reward.Kind         `json:"reward,omitempty"`
}

// PriceLine computes the price of one cart line against a product snapshot.
func PriceLine(snap product.Snapshot, req LineRequest) (Line, error) {
	line := Line{
		ProductID:  snap.ID,
		Name:       snap.Name,
		Category:   snap.Category,
		Mode:       snap.Mode,
		UnitPrice:  snap.UnitPrice,
		Vegetables: labelSet(req.Vegetables),
		Comment:    strings.TrimSpace(req.Comment),
	}

	var err error
	switch snap.Mode {
	case product.PricingFlat:
		if req.Quantity <= 0 || req.Quantity > MaxQuantity {
			return Line{}, &InvalidLineQuantityError{ProductID: snap.ID, Mode: snap.Mode}
		}
		line.Quantity = req.Quantity
		line.Base, err = snap.UnitPrice.Mul(int64(req.Quantity))
	case product.PricingWeighted:
		if req.WeightGrams <= 0 || req.WeightGrams > MaxWeightGrams {
			return Line{}, &InvalidLineQuantityError{ProductID: snap.ID, Mode: snap.Mode}
		}
		line.WeightGrams = req.WeightGrams
		line.Base, err = snap.UnitPrice.MulFrac(int64(req.WeightGrams), gramsPerPriceUnit)
	default:
		return Line{}, errors.Wrapf(ErrUnsupportedMode, "product %s: %q", snap.ID, snap.Mode)
	}
	if err != nil {
		return Line{}, errors.Wrapf(err, "base price of %s", snap.ID)
	}

	line.Additions = make([]PricedAddition, 0, len(req.Additions))
	for _, a := range req.Additions {
		pa, err := priceAddition(snap, a)
		if err != nil {
			return Line{}, err
		}
		line.Additions = append(line.Additions, pa)
		if line.AdditionsTotal, err = line.AdditionsTotal.Add(pa.UnitPrice); err != nil {
			return Line{}, errors.Wrapf(err, "additions of %s", snap.ID)
		}
	}

	if line.ListTotal, err = line.Base.Add(line.AdditionsTotal); err != nil {
		return Line{}, errors.Wrapf(err, "total of %s", snap.ID)
	}
	line.Total = line.ListTotal
	return line, nil
}

// priceAddition prices a single addition. Flat additions are charged once
// per line. Weighted additions are charged by grams and cost nothing when no
// weight was chosen.
func priceAddition(snap product.Snapshot, a AdditionRequest) (PricedAddition, error) {
	if fa, ok := snap.Modifiers.FixedAddition(a.Name); ok {
		return PricedAddition{Label: fa.Name, UnitPrice: fa.Price}, nil
	}
	wa, ok := snap.Modifiers.WeightedAddition(a.Name)
	if !ok {
		return PricedAddition{}, &UnknownAdditionError{ProductID: snap.ID, Name: a.Name}
	}
	if a.Grams <= 0 {
		return PricedAddition{Label: wa.Name}, nil
	}
	if a.Grams > MaxWeightGrams {
		return PricedAddition{}, &InvalidLineQuantityError{ProductID: snap.ID, Mode: product.PricingWeighted}
	}
	price, err := wa.PricePer100g.MulFrac(int64(a.Grams), gramsPerPriceUnit)
	if err != nil {
		return PricedAddition{}, errors.Wrapf(err, "addition %q", wa.Name)
	}
	return PricedAddition{Label: wa.Name, Grams: a.Grams, UnitPrice: price}, nil
}

// labelSet trims and de-duplicates labels, keeping first occurrence order.
func labelSet(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		if l == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
