package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oddsboard/internal/cache"
	"oddsboard/internal/dedup"
	"oddsboard/internal/odds"
)

type fakeFetcher struct {
	calls  atomic.Int32
	events []odds.Event
	err    error
	block  chan struct{}
}

func (f *fakeFetcher) FetchOdds(ctx context.Context, sportKey string) ([]odds.Event, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.events, f.err
}

func testService(fetcher *fakeFetcher) (*Service, *cache.Cache, *time.Time) {
	oddsCache := cache.New(cache.Options{StaleAfter: 60 * time.Second, TTL: 5 * time.Minute}, zerolog.Nop())
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	oddsCache.SetClock(func() time.Time { return now })

	svc := New(Options{RequestTimeout: time.Second}, oddsCache, dedup.New(zerolog.Nop()), fetcher, zerolog.Nop())
	return svc, oddsCache, &now
}

func TestGetOddsFreshHitSkipsUpstream(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc, oddsCache, _ := testService(fetcher)

	oddsCache.Set("basketball_nba", []odds.Event{{ID: "g1"}})

	events, err := svc.GetOdds(context.Background(), "basketball_nba")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "g1" {
		t.Fatalf("expected cached payload, got %#v", events)
	}
	if fetcher.calls.Load() != 0 {
		t.Fatal("fresh hit must not touch the upstream")
	}
}

func TestGetOddsMissFetchesAndCaches(t *testing.T) {
	fetcher := &fakeFetcher{events: []odds.Event{{ID: "g1"}}}
	svc, oddsCache, _ := testService(fetcher)

	events, err := svc.GetOdds(context.Background(), "basketball_nba")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected fetched payload, got %#v", events)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetcher.calls.Load())
	}
	if !oddsCache.IsFresh("basketball_nba") {
		t.Fatal("miss should populate the cache")
	}
}

func TestGetOddsMissPropagatesError(t *testing.T) {
	wantErr := errors.New("upstream down")
	fetcher := &fakeFetcher{err: wantErr}
	svc, _, _ := testService(fetcher)

	if _, err := svc.GetOdds(context.Background(), "basketball_nba"); !errors.Is(err, wantErr) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestGetOddsStaleServedImmediately(t *testing.T) {
	fetcher := &fakeFetcher{events: []odds.Event{{ID: "new"}}, block: make(chan struct{})}
	svc, oddsCache, now := testService(fetcher)

	oddsCache.Set("basketball_nba", []odds.Event{{ID: "old"}})
	*now = now.Add(2 * time.Minute)

	// The background refresh is still blocked; the stale payload must come
	// back without waiting on it.
	events, err := svc.GetOdds(context.Background(), "basketball_nba")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "old" {
		t.Fatalf("stale hit should return the old payload, got %#v", events)
	}

	close(fetcher.block)
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("background refresh never ran")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGetOddsSanitizesKey(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc, oddsCache, _ := testService(fetcher)

	oddsCache.Set("basketball_nba", []odds.Event{{ID: "g1"}})

	events, err := svc.GetOdds(context.Background(), "Basketball_NBA")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatal("mixed-case sport key should hit the sanitized cache entry")
	}
	if fetcher.calls.Load() != 0 {
		t.Fatal("sanitized hit must not fetch")
	}
}
