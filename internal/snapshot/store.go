// Package snapshot persists immutable odds captures and answers the two
// queries the dashboard charts are built on: latest odds per game and full
// history for one game.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"oddsboard/internal/lifecycle"
	"oddsboard/internal/odds"
	"oddsboard/internal/storage"
)

const batchParallelism = 8

// Snapshot is one historical capture returned by History.
type Snapshot struct {
	Timestamp time.Time
	Type      storage.SnapshotType
	Event     odds.Event
}

// BatchResult summarises a best-effort batch save.
type BatchResult struct {
	Saved  int
	Failed int
}

// Store writes classified snapshots and reads them back for charting.
type Store struct {
	rows    storage.SnapshotRowStore
	tracker *lifecycle.Tracker
	logger  zerolog.Logger
	now     func() time.Time
}

// NewStore constructs a snapshot Store.
func NewStore(rows storage.SnapshotRowStore, tracker *lifecycle.Tracker, logger zerolog.Logger) *Store {
	return &Store{
		rows:    rows,
		tracker: tracker,
		logger:  logger.With().Str("component", "snapshot").Logger(),
		now:     time.Now,
	}
}

// Save persists one event's snapshot. The snapshot type is classified from
// the game's lifecycle unless an override is given. Metadata resolution,
// the snapshot row, and the metadata update all happen for this one game;
// callers batching multiple events isolate failures per event.
func (s *Store) Save(ctx context.Context, event odds.Event, override *storage.SnapshotType) error {
	meta, err := s.tracker.GetOrCreate(ctx, event)
	if err != nil {
		return fmt.Errorf("resolve game metadata: %w", err)
	}

	snapshotType := storage.SnapshotType("")
	if override != nil {
		snapshotType = *override
	} else {
		firstSnapshot := !meta.OpeningLineCaptured
		snapshotType = s.tracker.Classify(meta, event.CommenceTime, firstSnapshot)
	}

	snapshotTime := s.now()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize odds payload: %w", err)
	}

	row := storage.SnapshotRow{
		GameID:            event.ID,
		SportKey:          event.SportKey,
		CommenceTime:      event.CommenceTime,
		SnapshotType:      snapshotType,
		SnapshotTimestamp: snapshotTime,
		OddsData:          payload,
	}
	if err := s.rows.InsertSnapshot(ctx, row); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := s.tracker.RecordSnapshot(ctx, event.ID, snapshotType, snapshotTime); err != nil {
		return fmt.Errorf("record snapshot on metadata: %w", err)
	}

	s.logger.Debug().
		Str("game_id", event.ID).
		Str("sport", event.SportKey).
		Str("type", string(snapshotType)).
		Msg("snapshot saved")
	return nil
}

// SaveBatch saves snapshots for multiple events in parallel, best effort.
// Individual failures are logged and counted, never propagated; partial
// success is the expected outcome when the provider hands back a mixed bag.
func (s *Store) SaveBatch(ctx context.Context, events []odds.Event, override *storage.SnapshotType) BatchResult {
	if len(events) == 0 {
		return BatchResult{}
	}

	results := make([]error, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i, event := range events {
		i, event := i, event
		g.Go(func() error {
			results[i] = s.Save(gctx, event, override)
			return nil
		})
	}
	_ = g.Wait()

	var res BatchResult
	for i, err := range results {
		if err != nil {
			res.Failed++
			s.logger.Error().Err(err).Str("game_id", events[i].ID).Msg("failed to save snapshot in batch")
			continue
		}
		res.Saved++
	}

	s.logger.Info().Int("saved", res.Saved).Int("failed", res.Failed).Msg("batch snapshots saved")
	return res
}

// LatestPerGame returns, for each game of a sport, the event payload of its
// max-timestamp snapshot. Malformed stored payloads are logged and skipped.
func (s *Store) LatestPerGame(ctx context.Context, sportKey string) ([]odds.Event, error) {
	rows, err := s.rows.LatestSnapshotsPerGame(ctx, sportKey)
	if err != nil {
		return nil, fmt.Errorf("latest per game: %w", err)
	}

	events := make([]odds.Event, 0, len(rows))
	for _, row := range rows {
		var event odds.Event
		if err := json.Unmarshal(row.OddsData, &event); err != nil {
			s.logger.Error().Err(err).Str("game_id", row.GameID).Msg("skipping malformed snapshot payload")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// History returns every snapshot for a game, oldest first. Market filtering
// happens downstream; stored payloads always carry all markets.
func (s *Store) History(ctx context.Context, gameID string) ([]Snapshot, error) {
	rows, err := s.rows.ListSnapshotsByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	history := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		var event odds.Event
		if err := json.Unmarshal(row.OddsData, &event); err != nil {
			s.logger.Error().Err(err).Str("game_id", row.GameID).Msg("skipping malformed snapshot payload")
			continue
		}
		history = append(history, Snapshot{
			Timestamp: row.SnapshotTimestamp,
			Type:      row.SnapshotType,
			Event:     event,
		})
	}
	return history, nil
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
