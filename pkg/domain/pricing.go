package domain

import (
	"fmt"
	"math"
)

// Live weight limits accepted on the weighbridge form, in kg.
const (
	MinLiveWeight = 14.0
	MaxLiveWeight = 40.0

	carcassYield = 0.42
)

type priceTier struct {
	min, max float64 // inclusive
	price    float64
	band     string
}

var priceTiers = []priceTier{
	{14, 14.99, 3500, "14 - 14.99"},
	{15, 15.99, 3700, "15 - 15.99"},
	{16, 16.99, 4000, "16 - 16.99"},
	{17, 17.99, 4300, "17 - 17.99"},
	{18, 18.99, 4500, "18 - 18.99"},
	{19, 19.99, 4800, "19 - 19.99"},
	{20, 20.99, 5000, "20 - 20.99"},
	{21, 21.99, 5300, "21 - 21.99"},
	{22, 22.99, 5500, "22 - 22.99"},
	{23, 24.99, 5800, "23 - 24.99"},
	{25, 25.99, 6000, "25 - 25.99"},
	{26, 26.99, 6300, "26 - 26.99"},
	{27, 27.99, 6500, "27 - 27.99"},
	{28, 29.99, 7000, "28 - 29.99"},
}

// topPrice applies to anything heavier than the last tier, and to the gaps
// between tiers (e.g. 14.995).
const topPrice = 7000

// PriceForLiveWeight maps a live weight to its price tier in KES.
func PriceForLiveWeight(kg float64) float64 {
	for _, t := range priceTiers {
		if kg >= t.min && kg <= t.max {
			return t.price
		}
	}
	return topPrice
}

// WeightBandForPrice is the inverse lookup used by previews; "-" when unknown.
func WeightBandForPrice(price float64) string {
	for _, t := range priceTiers {
		if t.price == price {
			return t.band
		}
	}
	return "-"
}

// NewGoatWeight prices a weighed goat. Weights outside MinLiveWeight..MaxLiveWeight are rejected.
func NewGoatWeight(live float64) (GoatWeight, error) {
	if math.IsNaN(live) || live < MinLiveWeight || live > MaxLiveWeight {
		return GoatWeight{}, fmt.Errorf("live weight %.2f kg outside %.0f-%.0f", live, MinLiveWeight, MaxLiveWeight)
	}
	return GoatWeight{
		Live:    live,
		Carcass: math.Round(live*carcassYield*100) / 100,
		Price:   PriceForLiveWeight(live),
	}, nil
}
