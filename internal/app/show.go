package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"oddsboard/internal/odds"
	"oddsboard/internal/storage"
)

// Show prints the most recent stored snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	defer closeStore()

	if opts.Sport != "" {
		counts, err := store.CountGamesByStatus(ctx, opts.Sport)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s games: scheduled=%d live=%d finished=%d\n\n",
			opts.Sport,
			counts[storage.StatusScheduled],
			counts[storage.StatusLive],
			counts[storage.StatusFinished],
		)
	}

	rows, err := store.ListRecentSnapshots(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Captured (UTC)\tGame\tSport\tMatchup\tType\tBookmakers")

	for _, row := range rows {
		if opts.Sport != "" && row.SportKey != opts.Sport {
			continue
		}

		matchup := ""
		books := 0
		var event odds.Event
		if err := json.Unmarshal(row.OddsData, &event); err == nil {
			matchup = sanitizeInline(fmt.Sprintf("%s @ %s", event.AwayTeam, event.HomeTeam))
			books = len(event.Bookmakers)
		}

		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%d\n",
			row.SnapshotTimestamp.UTC().Format(time.RFC3339),
			row.GameID,
			row.SportKey,
			matchup,
			row.SnapshotType,
			books,
		)
	}

	writer.Flush()
	return nil
}
