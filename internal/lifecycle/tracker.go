// Package lifecycle tracks per-game metadata: creation, snapshot
// classification, capture flags, and the scheduled→live transition. The
// finished state belongs to an external results process; the tracker reads
// it but never sets it.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"oddsboard/internal/odds"
	"oddsboard/internal/storage"
)

const (
	// ClosingWindow is how close to commence time a pre-game snapshot
	// counts as the closing line.
	ClosingWindow = 5 * time.Minute

	// PreGameHorizon is how far ahead a scheduled game pulls its sport
	// into pre-game polling cadence.
	PreGameHorizon = 3 * time.Hour

	// Polling intervals resolved per sport.
	LiveInterval    = 60 * time.Second
	PreGameInterval = 120 * time.Second
	IdleInterval    = 3600 * time.Second

	placeholderTeam = "TBD"
)

// Tracker owns game lifecycle decisions over a GameStore.
type Tracker struct {
	games  storage.GameStore
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Tracker.
func New(games storage.GameStore, logger zerolog.Logger) *Tracker {
	return &Tracker{
		games:  games,
		logger: logger.With().Str("component", "lifecycle").Logger(),
		now:    time.Now,
	}
}

// GetOrCreate returns the metadata row for an event's game, creating it with
// status scheduled or live depending on commence time.
func (t *Tracker) GetOrCreate(ctx context.Context, event odds.Event) (storage.GameMetadata, error) {
	meta, found, err := t.games.GetGame(ctx, event.ID)
	if err != nil {
		return storage.GameMetadata{}, err
	}
	if found {
		return meta, nil
	}

	status := storage.StatusScheduled
	if !event.CommenceTime.After(t.now()) {
		status = storage.StatusLive
	}

	create := storage.GameMetadata{
		GameID:       event.ID,
		SportKey:     event.SportKey,
		SportTitle:   event.SportTitle,
		HomeTeam:     event.HomeTeam,
		AwayTeam:     event.AwayTeam,
		CommenceTime: event.CommenceTime,
		Status:       status,
	}
	if err := t.games.CreateGame(ctx, create); err != nil {
		return storage.GameMetadata{}, err
	}

	t.logger.Info().
		Str("game_id", event.ID).
		Str("sport", event.SportKey).
		Str("status", string(status)).
		Msg("created game metadata")

	// Re-read: a concurrent creator may have won the insert.
	meta, found, err = t.games.GetGame(ctx, event.ID)
	if err != nil {
		return storage.GameMetadata{}, err
	}
	if !found {
		return storage.GameMetadata{}, fmt.Errorf("game %s vanished after insert", event.ID)
	}
	return meta, nil
}

// EnsureGame creates a placeholder metadata row for a game id that arrived
// from a saved bet before any poll has seen it. Team names stay TBD; later
// snapshots update the row's flags and timestamps in place.
func (t *Tracker) EnsureGame(ctx context.Context, gameID, sportKey string) (storage.GameMetadata, error) {
	meta, found, err := t.games.GetGame(ctx, gameID)
	if err != nil {
		return storage.GameMetadata{}, err
	}
	if found {
		return meta, nil
	}

	create := storage.GameMetadata{
		GameID:       gameID,
		SportKey:     sportKey,
		HomeTeam:     placeholderTeam,
		AwayTeam:     placeholderTeam,
		CommenceTime: t.now(),
		Status:       storage.StatusScheduled,
	}
	if err := t.games.CreateGame(ctx, create); err != nil {
		return storage.GameMetadata{}, err
	}

	t.logger.Info().Str("game_id", gameID).Str("sport", sportKey).Msg("created placeholder game metadata")

	meta, found, err = t.games.GetGame(ctx, gameID)
	if err != nil {
		return storage.GameMetadata{}, err
	}
	if !found {
		return storage.GameMetadata{}, fmt.Errorf("game %s vanished after insert", gameID)
	}
	return meta, nil
}

// Classify picks the snapshot type for a capture. Priority order matters:
// the first snapshot is always the opening line; a game inside the closing
// window is closing even though it has not started (it is the last pre-game
// capture); only then does an underway game fall into live cadence.
func (t *Tracker) Classify(meta storage.GameMetadata, commenceTime time.Time, firstSnapshot bool) storage.SnapshotType {
	if firstSnapshot {
		return storage.SnapshotOpening
	}

	untilCommence := commenceTime.Sub(t.now())

	if meta.Status == storage.StatusFinished || (untilCommence > 0 && untilCommence <= ClosingWindow) {
		return storage.SnapshotClosing
	}

	if untilCommence <= 0 {
		return storage.SnapshotLive60s
	}

	return storage.SnapshotHourly
}

// RecordSnapshot applies a snapshot's side effects to the game's metadata
// row in one transaction.
func (t *Tracker) RecordSnapshot(ctx context.Context, gameID string, snapshotType storage.SnapshotType, snapshotTime time.Time) error {
	return t.games.ApplySnapshot(ctx, gameID, snapshotType, snapshotTime)
}

// PollingInterval resolves a sport's polling cadence from its tracked games:
// any live game wins, then any scheduled game inside the pre-game horizon,
// otherwise idle.
func (t *Tracker) PollingInterval(ctx context.Context, sportKey string) (time.Duration, error) {
	now := t.now()
	games, err := t.games.ListActiveGames(ctx, sportKey, now.Add(PreGameHorizon))
	if err != nil {
		return 0, err
	}

	hasPreGame := false
	for _, game := range games {
		if game.Status == storage.StatusLive {
			return LiveInterval, nil
		}
		if game.Status == storage.StatusScheduled && game.CommenceTime.After(now) {
			hasPreGame = true
		}
	}

	if hasPreGame {
		return PreGameInterval, nil
	}
	return IdleInterval, nil
}

// SetClock overrides the time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}
