package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"oddsboard/internal/dedup"
	"oddsboard/internal/odds"
	"oddsboard/internal/service"
	"oddsboard/internal/trend"
)

// Board fetches and prints the current odds board for one sport. The read
// path is the same one a dashboard would hit: cache first, coalesced
// upstream fetch on a miss.
func (a *App) Board(ctx context.Context, opts BoardOptions) error {
	if opts.Market == "" {
		opts.Market = odds.MarketH2H
	}

	svc := service.New(service.Options{
		RequestTimeout: a.Config.Service.RequestTimeout,
	}, a.newCache(), dedup.New(a.Logger), a.newProvider(), a.Logger)

	events, err := svc.GetOdds(ctx, opts.Sport)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Commence (UTC)\tMatchup\tBookmaker\tAway\tHome\tAway Implied%")

	for _, event := range events {
		matchup := fmt.Sprintf("%s @ %s", event.AwayTeam, event.HomeTeam)
		for _, book := range event.Bookmakers {
			market, ok := book.Market(opts.Market)
			if !ok || len(market.Outcomes) < 2 {
				continue
			}
			away := market.Outcomes[0]
			home := market.Outcomes[1]
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%s\n",
				event.CommenceTime.UTC().Format(time.RFC3339),
				matchup,
				book.Key,
				formatPrice(away.Price),
				formatPrice(home.Price),
				trend.ImpliedProbability(away.Price).StringFixed(2),
			)
		}
	}

	writer.Flush()
	return nil
}

func formatPrice(price int) string {
	if price > 0 {
		return fmt.Sprintf("+%d", price)
	}
	return fmt.Sprintf("%d", price)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	return strings.ReplaceAll(cleaned, "\r", " ")
}
