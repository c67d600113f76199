package provider

import (
	"context"

	"oddsboard/internal/odds"
)

// OddsFetcher retrieves the current odds board for one sport from the
// upstream provider.
type OddsFetcher interface {
	FetchOdds(ctx context.Context, sportKey string) ([]odds.Event, error)
}
