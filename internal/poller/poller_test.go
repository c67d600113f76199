package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oddsboard/internal/cache"
	"oddsboard/internal/dedup"
	"oddsboard/internal/lifecycle"
	"oddsboard/internal/odds"
	"oddsboard/internal/snapshot"
	"oddsboard/internal/storage"
)

type fakeGameStore struct {
	mu    sync.Mutex
	games map[string]storage.GameMetadata
}

func newFakeGameStore() *fakeGameStore {
	return &fakeGameStore{games: make(map[string]storage.GameMetadata)}
}

func (f *fakeGameStore) GetGame(ctx context.Context, gameID string) (storage.GameMetadata, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.games[gameID]
	return meta, ok, nil
}

func (f *fakeGameStore) CreateGame(ctx context.Context, meta storage.GameMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.games[meta.GameID]; !exists {
		f.games[meta.GameID] = meta
	}
	return nil
}

func (f *fakeGameStore) ApplySnapshot(ctx context.Context, gameID string, snapshotType storage.SnapshotType, snapshotTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta := f.games[gameID]
	if snapshotType == storage.SnapshotOpening {
		meta.OpeningLineCaptured = true
	}
	meta.LastSnapshotTime = &snapshotTime
	f.games[gameID] = meta
	return nil
}

func (f *fakeGameStore) ListActiveGames(ctx context.Context, sportKey string, horizon time.Time) ([]storage.GameMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.GameMetadata
	for _, meta := range f.games {
		if meta.SportKey == sportKey {
			out = append(out, meta)
		}
	}
	return out, nil
}

func (f *fakeGameStore) CountGamesByStatus(ctx context.Context, sportKey string) (map[storage.GameStatus]int64, error) {
	return nil, nil
}

type fakeRowStore struct {
	mu   sync.Mutex
	rows []storage.SnapshotRow
}

func (f *fakeRowStore) InsertSnapshot(ctx context.Context, row storage.SnapshotRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeRowStore) LatestSnapshotsPerGame(ctx context.Context, sportKey string) ([]storage.SnapshotRow, error) {
	return nil, nil
}

func (f *fakeRowStore) ListSnapshotsByGame(ctx context.Context, gameID string) ([]storage.SnapshotRow, error) {
	return nil, nil
}

func (f *fakeRowStore) ListRecentSnapshots(ctx context.Context, limit int) ([]storage.SnapshotRow, error) {
	return nil, nil
}

type fakeFetcher struct {
	calls  atomic.Int32
	events []odds.Event
	err    error
}

func (f *fakeFetcher) FetchOdds(ctx context.Context, sportKey string) ([]odds.Event, error) {
	f.calls.Add(1)
	return f.events, f.err
}

var baseTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func testPoller(sports []string, fetcher *fakeFetcher, games *fakeGameStore) (*Poller, *fakeRowStore, *cache.Cache) {
	logger := zerolog.Nop()
	rows := &fakeRowStore{}
	tracker := lifecycle.New(games, logger)
	snapshots := snapshot.NewStore(rows, tracker, logger)
	oddsCache := cache.New(cache.Options{}, logger)

	p := New(Options{Sports: sports, EvaluateEvery: time.Hour},
		fetcher, dedup.New(logger), snapshots, oddsCache, tracker, logger)
	return p, rows, oddsCache
}

func TestEvaluateInstallsIntervals(t *testing.T) {
	games := newFakeGameStore()
	games.games["g1"] = storage.GameMetadata{
		GameID: "g1", SportKey: "basketball_nba",
		Status: storage.StatusLive, CommenceTime: baseTime,
	}

	p, _, _ := testPoller([]string{"basketball_nba", "baseball_mlb"}, &fakeFetcher{}, games)

	p.Evaluate(context.Background())

	if got := p.Interval("basketball_nba"); got != lifecycle.LiveInterval {
		t.Fatalf("sport with a live game should poll at live cadence, got %v", got)
	}
	if got := p.Interval("baseball_mlb"); got != lifecycle.IdleInterval {
		t.Fatalf("sport with no games should poll at idle cadence, got %v", got)
	}
}

func TestEvaluateReplacesChangedInterval(t *testing.T) {
	games := newFakeGameStore()
	p, _, _ := testPoller([]string{"basketball_nba"}, &fakeFetcher{}, games)

	p.Evaluate(context.Background())
	if got := p.Interval("basketball_nba"); got != lifecycle.IdleInterval {
		t.Fatalf("expected idle cadence, got %v", got)
	}

	games.mu.Lock()
	games.games["g1"] = storage.GameMetadata{
		GameID: "g1", SportKey: "basketball_nba",
		Status: storage.StatusLive, CommenceTime: baseTime,
	}
	games.mu.Unlock()

	p.Evaluate(context.Background())
	if got := p.Interval("basketball_nba"); got != lifecycle.LiveInterval {
		t.Fatalf("interval should move to live cadence, got %v", got)
	}

	// Unchanged state keeps the same timer.
	id := p.entries["basketball_nba"].id
	p.Evaluate(context.Background())
	if p.entries["basketball_nba"].id != id {
		t.Fatal("unchanged interval should not reinstall the timer")
	}
}

func TestTickPersistsAndCaches(t *testing.T) {
	games := newFakeGameStore()
	fetcher := &fakeFetcher{events: []odds.Event{
		{ID: "g1", SportKey: "basketball_nba", CommenceTime: baseTime.Add(6 * time.Hour)},
		{ID: "g2", SportKey: "basketball_nba", CommenceTime: baseTime.Add(7 * time.Hour)},
	}}

	p, rows, oddsCache := testPoller([]string{"basketball_nba"}, fetcher, games)

	p.tick("basketball_nba")

	if fetcher.calls.Load() != 1 {
		t.Fatalf("tick should fetch once, got %d", fetcher.calls.Load())
	}
	rows.mu.Lock()
	saved := len(rows.rows)
	rows.mu.Unlock()
	if saved != 2 {
		t.Fatalf("expected 2 snapshot rows, got %d", saved)
	}
	if !oddsCache.IsFresh("basketball_nba") {
		t.Fatal("tick should refresh the cache")
	}

	games.mu.Lock()
	defer games.mu.Unlock()
	if len(games.games) != 2 {
		t.Fatalf("tick should create game metadata, got %d games", len(games.games))
	}
}

func TestTickFetchFailureLeavesCacheAlone(t *testing.T) {
	games := newFakeGameStore()
	fetcher := &fakeFetcher{err: errors.New("upstream down")}

	p, rows, oddsCache := testPoller([]string{"basketball_nba"}, fetcher, games)

	p.tick("basketball_nba")

	if len(rows.rows) != 0 {
		t.Fatal("failed fetch must not write snapshots")
	}
	if _, _, ok := oddsCache.Get("basketball_nba"); ok {
		t.Fatal("failed fetch must not populate the cache")
	}
}

func TestStartRequiresSports(t *testing.T) {
	p, _, _ := testPoller(nil, &fakeFetcher{}, newFakeGameStore())
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("start with no sports should error")
	}
}
