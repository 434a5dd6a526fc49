// Package strategy decides which orders to hold on the book. The bands
// strategy keeps a ladder of orders inside configured margin bands around
// a target price.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

const (
	// minTick is the smallest price increment the CLOB accepts.
	minTick = 0.01
	// minOrderSize is the exchange's minimum order size.
	minOrderSize = 15.0
	// priceDecimals bounds rounding of derived prices.
	priceDecimals = 6
)

// Band is one rung of the ladder: orders whose margin from the target
// price falls in (MinMargin, MaxMargin) belong to it, and their total size
// is kept between MinAmount and MaxAmount, topped up toward AvgAmount.
type Band struct {
	MinMargin float64 `toml:"min_margin"`
	AvgMargin float64 `toml:"avg_margin"`
	MaxMargin float64 `toml:"max_margin"`
	MinAmount float64 `toml:"min_amount"`
	AvgAmount float64 `toml:"avg_amount"`
	MaxAmount float64 `toml:"max_amount"`
}

// Validate checks the band's internal ordering.
func (b Band) Validate() error {
	if b.MinAmount < 0 || b.MinAmount > b.AvgAmount || b.AvgAmount > b.MaxAmount {
		return fmt.Errorf("strategy: band amounts must satisfy 0 <= min <= avg <= max, got %.2f/%.2f/%.2f",
			b.MinAmount, b.AvgAmount, b.MaxAmount)
	}
	if b.MinMargin > b.AvgMargin || b.AvgMargin > b.MaxMargin || b.MinMargin >= b.MaxMargin {
		return fmt.Errorf("strategy: band margins must satisfy min <= avg <= max and min < max, got %.4f/%.4f/%.4f",
			b.MinMargin, b.AvgMargin, b.MaxMargin)
	}
	return nil
}

// minPrice is the lower price bound of the band for a target price.
func (b Band) minPrice(target float64) float64 { return roundPrice(target - b.MaxMargin) }

// maxPrice is the upper price bound.
func (b Band) maxPrice(target float64) float64 { return roundPrice(target - b.MinMargin) }

// buyPrice is where new buys in this band are quoted.
func (b Band) buyPrice(target float64) float64 { return roundPrice(target - b.AvgMargin) }

// sellPrice is where new sells are quoted. Selling the complement token at
// 1-p is equivalent to buying this token at p, so the sell quote mirrors
// the buy quote around the complement price.
func (b Band) sellPrice(target float64) float64 { return roundPrice(1 - target + b.AvgMargin) }

// includes reports whether an order falls inside the band. Sell orders are
// on the complement token, so their price is mapped back through 1-p
// before comparing.
func (b Band) includes(o domain.Order, target float64) bool {
	price := o.Price
	if o.Side == domain.SideSell {
		price = roundPrice(1 - o.Price)
	}
	return price > b.minPrice(target) && price < b.maxPrice(target)
}

// excessiveOrders returns the orders to cancel so the band's total size
// drops to MaxAmount or below. The first band sheds orders closest to the
// target first, the last band sheds the furthest first, and middle bands
// shed the smallest orders first.
func (b Band) excessiveOrders(orders []domain.Order, target float64, first, last bool) []domain.Order {
	var inBand []domain.Order
	total := 0.0
	for _, o := range orders {
		if b.includes(o, target) {
			inBand = append(inBand, o)
			total += o.Size
		}
	}
	if total <= b.MaxAmount {
		return nil
	}

	switch {
	case first:
		sort.Slice(inBand, func(i, j int) bool {
			return math.Abs(inBand[i].Price-target) > math.Abs(inBand[j].Price-target)
		})
	case last:
		sort.Slice(inBand, func(i, j int) bool {
			return math.Abs(inBand[i].Price-target) < math.Abs(inBand[j].Price-target)
		})
	default:
		sort.Slice(inBand, func(i, j int) bool { return inBand[i].Size < inBand[j].Size })
	}

	var cancels []domain.Order
	for total > b.MaxAmount && len(inBand) > 0 {
		o := inBand[len(inBand)-1]
		inBand = inBand[:len(inBand)-1]
		cancels = append(cancels, o)
		total -= o.Size
	}
	return cancels
}

// Bands is the full configured ladder.
type Bands struct {
	bands []Band
}

// NewBands validates the bands and rejects overlapping margins.
func NewBands(bands []Band) (*Bands, error) {
	for i, b := range bands {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("band %d: %w", i, err)
		}
	}
	for i := range bands {
		overlaps := 0
		for j := range bands {
			if bands[i].MinMargin < bands[j].MaxMargin && bands[j].MinMargin < bands[i].MaxMargin {
				overlaps++
			}
		}
		if overlaps > 1 {
			return nil, fmt.Errorf("strategy: band %d overlaps another band", i)
		}
	}
	return &Bands{bands: bands}, nil
}

// virtualBands drops bands that fall entirely below zero for the current
// target and clamps buy prices that would cross zero.
func (bs *Bands) virtualBands(target float64) []Band {
	if target <= 0 {
		return nil
	}
	out := make([]Band, 0, len(bs.bands))
	for _, b := range bs.bands {
		if b.maxPrice(target) <= 0 {
			continue
		}
		if b.buyPrice(target) <= 0 {
			b.AvgMargin = target - minTick
		}
		out = append(out, b)
	}
	return out
}

// CancellableOrders returns every order that is excessive within its band
// or falls outside all bands. A non-positive target cancels everything.
func (bs *Bands) CancellableOrders(orders []domain.Order, target float64) []domain.Order {
	if target <= 0 {
		return append([]domain.Order(nil), orders...)
	}
	bands := bs.virtualBands(target)

	var cancels []domain.Order
	cancelled := make(map[string]bool)
	for i, b := range bands {
		for _, o := range b.excessiveOrders(orders, target, i == 0, i == len(bands)-1) {
			if !cancelled[o.ID] {
				cancelled[o.ID] = true
				cancels = append(cancels, o)
			}
		}
	}
	for _, o := range orders {
		if cancelled[o.ID] {
			continue
		}
		inAny := false
		for _, b := range bands {
			if b.includes(o, target) {
				inAny = true
				break
			}
		}
		if !inAny {
			cancelled[o.ID] = true
			cancels = append(cancels, o)
		}
	}
	return cancels
}

// NewOrders tops up underfilled bands toward their average amount, buying
// the given token and selling its complement, bounded by the free
// balances.
func (bs *Bands) NewOrders(orders []domain.Order, freeCollateral, freeTokens, target float64, buyToken domain.Token) []domain.Order {
	var placed []domain.Order
	for _, b := range bs.virtualBands(target) {
		bandAmount := 0.0
		for _, o := range orders {
			if b.includes(o, target) {
				bandAmount += o.Size
			}
		}
		if bandAmount >= b.MinAmount {
			continue
		}

		sellSize := roundPrice(math.Min(b.AvgAmount-bandAmount, freeTokens))
		if o, ok := newOrder(b.sellPrice(target), sellSize, domain.SideSell, buyToken.Complement()); ok {
			bandAmount += sellSize
			freeTokens -= sellSize
			placed = append(placed, o)
		}

		if bandAmount < b.AvgAmount {
			buyPrice := b.buyPrice(target)
			buySize := roundPrice(math.Min(b.AvgAmount-bandAmount, freeCollateral/buyPrice))
			if o, ok := newOrder(buyPrice, buySize, domain.SideBuy, buyToken); ok {
				freeCollateral -= buySize * buyPrice
				placed = append(placed, o)
			}
		}
	}
	return placed
}

func newOrder(price, size float64, side domain.Side, token domain.Token) (domain.Order, bool) {
	if price <= 0 || price >= 1 || size < minOrderSize {
		return domain.Order{}, false
	}
	return domain.Order{Token: token, Side: side, Price: price, Size: size}, true
}

func roundPrice(p float64) float64 {
	scale := math.Pow10(priceDecimals)
	return math.Round(p*scale) / scale
}
