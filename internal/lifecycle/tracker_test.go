package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oddsboard/internal/odds"
	"oddsboard/internal/storage"
)

type fakeGameStore struct {
	games    map[string]storage.GameMetadata
	applied  []storage.SnapshotType
	creates  int
	applyErr error
}

func newFakeGameStore() *fakeGameStore {
	return &fakeGameStore{games: make(map[string]storage.GameMetadata)}
}

func (f *fakeGameStore) GetGame(ctx context.Context, gameID string) (storage.GameMetadata, bool, error) {
	meta, ok := f.games[gameID]
	return meta, ok, nil
}

func (f *fakeGameStore) CreateGame(ctx context.Context, meta storage.GameMetadata) error {
	f.creates++
	if _, exists := f.games[meta.GameID]; !exists {
		f.games[meta.GameID] = meta
	}
	return nil
}

func (f *fakeGameStore) ApplySnapshot(ctx context.Context, gameID string, snapshotType storage.SnapshotType, snapshotTime time.Time) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, snapshotType)
	meta := f.games[gameID]
	meta.LastSnapshotTime = &snapshotTime
	switch snapshotType {
	case storage.SnapshotOpening:
		meta.OpeningLineCaptured = true
	case storage.SnapshotClosing:
		meta.ClosingLineCaptured = true
	}
	if meta.Status == storage.StatusScheduled && !meta.CommenceTime.After(snapshotTime) {
		meta.Status = storage.StatusLive
	}
	f.games[gameID] = meta
	return nil
}

func (f *fakeGameStore) ListActiveGames(ctx context.Context, sportKey string, horizon time.Time) ([]storage.GameMetadata, error) {
	var out []storage.GameMetadata
	for _, meta := range f.games {
		if meta.SportKey != sportKey {
			continue
		}
		switch {
		case meta.Status == storage.StatusLive:
			out = append(out, meta)
		case meta.Status == storage.StatusScheduled && meta.CommenceTime.Before(horizon):
			out = append(out, meta)
		}
	}
	return out, nil
}

func (f *fakeGameStore) CountGamesByStatus(ctx context.Context, sportKey string) (map[storage.GameStatus]int64, error) {
	counts := make(map[storage.GameStatus]int64)
	for _, meta := range f.games {
		if meta.SportKey == sportKey {
			counts[meta.Status]++
		}
	}
	return counts, nil
}

var _ storage.GameStore = (*fakeGameStore)(nil)

var baseTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func testTracker(store storage.GameStore) (*Tracker, *time.Time) {
	tracker := New(store, zerolog.Nop())
	now := baseTime
	tracker.SetClock(func() time.Time { return now })
	return tracker, &now
}

func testEvent(id string, commence time.Time) odds.Event {
	return odds.Event{
		ID:           id,
		SportKey:     "basketball_nba",
		SportTitle:   "NBA",
		HomeTeam:     "Boston Celtics",
		AwayTeam:     "Miami Heat",
		CommenceTime: commence,
	}
}

func TestGetOrCreateNewScheduledGame(t *testing.T) {
	store := newFakeGameStore()
	tracker, _ := testTracker(store)

	meta, err := tracker.GetOrCreate(context.Background(), testEvent("g1", baseTime.Add(2*time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != storage.StatusScheduled {
		t.Fatalf("future game should be scheduled, got %s", meta.Status)
	}
	if meta.HomeTeam != "Boston Celtics" || meta.SportKey != "basketball_nba" {
		t.Fatalf("metadata not populated: %#v", meta)
	}
}

func TestGetOrCreateAlreadyStartedGameIsLive(t *testing.T) {
	store := newFakeGameStore()
	tracker, _ := testTracker(store)

	meta, err := tracker.GetOrCreate(context.Background(), testEvent("g1", baseTime.Add(-10*time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != storage.StatusLive {
		t.Fatalf("started game should be live, got %s", meta.Status)
	}
}

func TestGetOrCreateIdempotent(t *testing.T) {
	store := newFakeGameStore()
	tracker, _ := testTracker(store)
	event := testEvent("g1", baseTime.Add(time.Hour))

	if _, err := tracker.GetOrCreate(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.GetOrCreate(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if store.creates != 1 {
		t.Fatalf("expected 1 create, got %d", store.creates)
	}
}

func TestEnsureGamePlaceholder(t *testing.T) {
	store := newFakeGameStore()
	tracker, _ := testTracker(store)

	meta, err := tracker.EnsureGame(context.Background(), "g-ref", "basketball_nba")
	if err != nil {
		t.Fatal(err)
	}
	if meta.HomeTeam != "TBD" || meta.AwayTeam != "TBD" {
		t.Fatalf("placeholder should use TBD teams: %#v", meta)
	}
	if meta.Status != storage.StatusScheduled {
		t.Fatalf("placeholder should be scheduled, got %s", meta.Status)
	}
}

func TestClassify(t *testing.T) {
	tracker, _ := testTracker(newFakeGameStore())

	cases := []struct {
		name          string
		status        storage.GameStatus
		commence      time.Time
		firstSnapshot bool
		want          storage.SnapshotType
	}{
		{"first snapshot is opening", storage.StatusScheduled, baseTime.Add(24 * time.Hour), true, storage.SnapshotOpening},
		{"first snapshot wins even in closing window", storage.StatusScheduled, baseTime.Add(2 * time.Minute), true, storage.SnapshotOpening},
		{"finished game is closing", storage.StatusFinished, baseTime.Add(-3 * time.Hour), false, storage.SnapshotClosing},
		{"inside closing window", storage.StatusScheduled, baseTime.Add(4 * time.Minute), false, storage.SnapshotClosing},
		{"at closing window edge", storage.StatusScheduled, baseTime.Add(5 * time.Minute), false, storage.SnapshotClosing},
		{"just outside closing window", storage.StatusScheduled, baseTime.Add(5*time.Minute + time.Second), false, storage.SnapshotHourly},
		{"commence passed is live", storage.StatusLive, baseTime.Add(-time.Minute), false, storage.SnapshotLive60s},
		{"commence exactly now is live", storage.StatusLive, baseTime, false, storage.SnapshotLive60s},
		{"far future is hourly", storage.StatusScheduled, baseTime.Add(48 * time.Hour), false, storage.SnapshotHourly},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := storage.GameMetadata{Status: tc.status, CommenceTime: tc.commence}
			if got := tracker.Classify(meta, tc.commence, tc.firstSnapshot); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifySequenceOverGameLife(t *testing.T) {
	store := newFakeGameStore()
	tracker, now := testTracker(store)
	commence := baseTime.Add(6 * time.Hour)
	meta := storage.GameMetadata{GameID: "g1", Status: storage.StatusScheduled, CommenceTime: commence}

	// First capture: opening.
	if got := tracker.Classify(meta, commence, true); got != storage.SnapshotOpening {
		t.Fatalf("first capture should be opening, got %s", got)
	}
	meta.OpeningLineCaptured = true

	// Hours out: hourly.
	*now = commence.Add(-2 * time.Hour)
	if got := tracker.Classify(meta, commence, false); got != storage.SnapshotHourly {
		t.Fatalf("pre-game capture should be hourly, got %s", got)
	}

	// Three minutes out: closing.
	*now = commence.Add(-3 * time.Minute)
	if got := tracker.Classify(meta, commence, false); got != storage.SnapshotClosing {
		t.Fatalf("capture near tip-off should be closing, got %s", got)
	}

	// Underway: live.
	*now = commence.Add(30 * time.Minute)
	meta.Status = storage.StatusLive
	if got := tracker.Classify(meta, commence, false); got != storage.SnapshotLive60s {
		t.Fatalf("in-play capture should be live_60s, got %s", got)
	}
}

func TestPollingInterval(t *testing.T) {
	store := newFakeGameStore()
	tracker, _ := testTracker(store)
	ctx := context.Background()

	// No games at all: idle.
	interval, err := tracker.PollingInterval(ctx, "basketball_nba")
	if err != nil {
		t.Fatal(err)
	}
	if interval != IdleInterval {
		t.Fatalf("empty sport should be idle, got %v", interval)
	}

	// A scheduled game inside the horizon: pre-game cadence.
	store.games["g1"] = storage.GameMetadata{
		GameID: "g1", SportKey: "basketball_nba",
		Status: storage.StatusScheduled, CommenceTime: baseTime.Add(2 * time.Hour),
	}
	interval, err = tracker.PollingInterval(ctx, "basketball_nba")
	if err != nil {
		t.Fatal(err)
	}
	if interval != PreGameInterval {
		t.Fatalf("upcoming game should be pre-game cadence, got %v", interval)
	}

	// Any live game wins.
	store.games["g2"] = storage.GameMetadata{
		GameID: "g2", SportKey: "basketball_nba",
		Status: storage.StatusLive, CommenceTime: baseTime.Add(-time.Hour),
	}
	interval, err = tracker.PollingInterval(ctx, "basketball_nba")
	if err != nil {
		t.Fatal(err)
	}
	if interval != LiveInterval {
		t.Fatalf("live game should force live cadence, got %v", interval)
	}

	// Other sports are unaffected.
	interval, err = tracker.PollingInterval(ctx, "baseball_mlb")
	if err != nil {
		t.Fatal(err)
	}
	if interval != IdleInterval {
		t.Fatalf("unrelated sport should stay idle, got %v", interval)
	}
}
