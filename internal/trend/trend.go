// Package trend derives chartable series from snapshot history: implied
// probabilities from American prices and per-bookmaker line movement.
package trend

import (
	"time"

	"github.com/shopspring/decimal"

	"oddsboard/internal/snapshot"
)

var dec100 = decimal.NewFromInt(100)

// Point is one value of a line-movement series.
type Point struct {
	Timestamp time.Time
	Price     int
	Point     *float64
	Implied   decimal.Decimal
}

// ImpliedProbability converts an American price to its implied probability
// in percent. Favourites (-150) imply 150/250 = 60%; underdogs (+120) imply
// 100/220 ≈ 45.45%. Zero prices (malformed quotes) imply zero.
func ImpliedProbability(price int) decimal.Decimal {
	if price == 0 {
		return decimal.Zero
	}

	p := decimal.NewFromInt(int64(price))
	if price > 0 {
		// 100 / (price + 100)
		return dec100.Div(p.Add(dec100)).Mul(dec100)
	}
	// |price| / (|price| + 100)
	abs := p.Abs()
	return abs.Div(abs.Add(dec100)).Mul(dec100)
}

// MovementPoints extracts one outcome's price series for a bookmaker and
// market across a game's snapshot history. Snapshots missing the bookmaker,
// the market, or the outcome index are skipped; the series keeps history
// order.
func MovementPoints(history []snapshot.Snapshot, bookmakerKey, marketKey string, outcomeIndex int) []Point {
	points := make([]Point, 0, len(history))
	for _, snap := range history {
		book, ok := snap.Event.Bookmaker(bookmakerKey)
		if !ok {
			continue
		}
		market, ok := book.Market(marketKey)
		if !ok {
			continue
		}
		if outcomeIndex < 0 || outcomeIndex >= len(market.Outcomes) {
			continue
		}

		outcome := market.Outcomes[outcomeIndex]
		points = append(points, Point{
			Timestamp: snap.Timestamp,
			Price:     outcome.Price,
			Point:     outcome.Point,
			Implied:   ImpliedProbability(outcome.Price),
		})
	}
	return points
}

// Bookmakers lists the distinct bookmaker keys present anywhere in a game's
// history, in first-seen order.
func Bookmakers(history []snapshot.Snapshot) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0)
	for _, snap := range history {
		for _, book := range snap.Event.Bookmakers {
			if !seen[book.Key] {
				seen[book.Key] = true
				keys = append(keys, book.Key)
			}
		}
	}
	return keys
}
