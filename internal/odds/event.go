package odds

import "time"

// Market keys served by the upstream provider.
const (
	MarketH2H     = "h2h"
	MarketSpreads = "spreads"
	MarketTotals  = "totals"
)

// Event is one sporting matchup as delivered by the provider. Events are
// immutable within a fetch; a later fetch supersedes the whole value.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// Bookmaker is a single sportsbook's quote set for an event.
type Bookmaker struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	LastUpdate string   `json:"last_update"`
	Markets    []Market `json:"markets"`
}

// Market holds an ordered list of outcomes. For two-sided markets the order
// is meaningful: index 0 is the away side or "over", index 1 the home side
// or "under". The order arrives from the provider and must not be re-sorted.
type Market struct {
	Key        string    `json:"key"`
	LastUpdate string    `json:"last_update"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Outcome is one priced side of a market. Price is American odds; Point is
// the spread or total line where the market carries one.
type Outcome struct {
	Name  string   `json:"name"`
	Price int      `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// Bookmaker returns the quote for a sportsbook key, if present.
func (e *Event) Bookmaker(key string) (Bookmaker, bool) {
	for _, b := range e.Bookmakers {
		if b.Key == key {
			return b, true
		}
	}
	return Bookmaker{}, false
}

// Market returns a bookmaker's market by key, if present.
func (b *Bookmaker) Market(key string) (Market, bool) {
	for _, m := range b.Markets {
		if m.Key == key {
			return m, true
		}
	}
	return Market{}, false
}
