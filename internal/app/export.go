package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"oddsboard/internal/lifecycle"
	"oddsboard/internal/odds"
	"oddsboard/internal/snapshot"
	"oddsboard/internal/trend"
)

// Export renders one game's odds history as CSV and/or a PNG line-movement
// chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.GameID == "" {
		return errors.New("--game is required")
	}
	if opts.Market == "" {
		opts.Market = odds.MarketH2H
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	tracker := lifecycle.New(store, a.Logger)
	snapshots := snapshot.NewStore(store, tracker, a.Logger)

	history, err := snapshots.History(ctx, opts.GameID)
	if err != nil {
		return err
	}
	history = filterWindow(history, opts.From, opts.To)
	if len(history) == 0 {
		a.Logger.Info().Str("game_id", opts.GameID).Msg("no snapshots found for export window")
		return nil
	}

	if opts.Bookmaker == "" {
		books := trend.Bookmakers(history)
		if len(books) == 0 {
			return errors.New("no bookmaker data in history")
		}
		opts.Bookmaker = books[0]
	}

	downsampled := downsampleHistory(history, opts.MaxPoints)
	a.Logger.Info().
		Str("game_id", opts.GameID).
		Str("bookmaker", opts.Bookmaker).
		Str("market", opts.Market).
		Int("total", len(history)).
		Int("exported", len(downsampled)).
		Msg("exporting odds history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled, opts.Bookmaker, opts.Market); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeMovementPNG(opts.PNGPath, downsampled, opts.Bookmaker, opts.Market); err != nil {
			return err
		}
	}

	return nil
}

func filterWindow(history []snapshot.Snapshot, from, to *time.Time) []snapshot.Snapshot {
	if from == nil && to == nil {
		return history
	}
	filtered := make([]snapshot.Snapshot, 0, len(history))
	for _, snap := range history {
		if from != nil && snap.Timestamp.Before(*from) {
			continue
		}
		if to != nil && !snap.Timestamp.Before(*to) {
			continue
		}
		filtered = append(filtered, snap)
	}
	return filtered
}

func downsampleHistory(history []snapshot.Snapshot, max int) []snapshot.Snapshot {
	if max <= 0 || len(history) <= max {
		return history
	}
	if max == 1 {
		return []snapshot.Snapshot{history[len(history)-1]}
	}

	result := make([]snapshot.Snapshot, 0, max)
	step := float64(len(history)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(history) {
			idx = len(history) - 1
		}
		result = append(result, history[idx])
	}
	return result
}

func writeHistoryCSV(path string, history []snapshot.Snapshot, bookmaker, market string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"snapshot_ts", "snapshot_type",
		"away_price", "away_point", "away_implied_pct",
		"home_price", "home_point", "home_implied_pct",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snap := range history {
		book, ok := snap.Event.Bookmaker(bookmaker)
		if !ok {
			continue
		}
		mkt, ok := book.Market(market)
		if !ok || len(mkt.Outcomes) < 2 {
			continue
		}

		away := mkt.Outcomes[0]
		home := mkt.Outcomes[1]
		record := []string{
			snap.Timestamp.Format(time.RFC3339),
			string(snap.Type),
			strconv.Itoa(away.Price),
			formatPoint(away.Point),
			trend.ImpliedProbability(away.Price).StringFixed(2),
			strconv.Itoa(home.Price),
			formatPoint(home.Point),
			trend.ImpliedProbability(home.Price).StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeMovementPNG(path string, history []snapshot.Snapshot, bookmaker, market string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	away := trend.MovementPoints(history, bookmaker, market, 0)
	home := trend.MovementPoints(history, bookmaker, market, 1)
	if len(away) < 2 || len(home) < 2 {
		return errors.New("not enough data points to chart")
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Implied probability (%)",
			ValueFormatter: pctFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    fmt.Sprintf("Away (%s %s)", bookmaker, market),
				XValues: pointTimes(away),
				YValues: pointValues(away),
			},
			chart.TimeSeries{
				Name:    fmt.Sprintf("Home (%s %s)", bookmaker, market),
				XValues: pointTimes(home),
				YValues: pointValues(home),
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func pointTimes(points []trend.Point) []time.Time {
	out := make([]time.Time, len(points))
	for i, p := range points {
		out[i] = p.Timestamp
	}
	return out
}

func pointValues(points []trend.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Implied.InexactFloat64()
	}
	return out
}

func formatPoint(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
