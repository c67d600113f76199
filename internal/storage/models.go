package storage

import (
	"encoding/json"
	"time"
)

// SnapshotType classifies where in a game's lifecycle a snapshot was taken.
type SnapshotType string

const (
	SnapshotOpening SnapshotType = "opening"
	SnapshotHourly  SnapshotType = "hourly"
	SnapshotLive60s SnapshotType = "live_60s"
	SnapshotClosing SnapshotType = "closing"
)

// GameStatus is the lifecycle state of a tracked game. The pipeline moves
// games scheduled→live; finished is written by an external results process
// and only ever read here.
type GameStatus string

const (
	StatusScheduled GameStatus = "scheduled"
	StatusLive      GameStatus = "live"
	StatusFinished  GameStatus = "finished"
)

// GameMetadata is one row per distinct game id; created lazily on the first
// snapshot attempt and never deleted by this pipeline.
type GameMetadata struct {
	GameID              string
	SportKey            string
	SportTitle          string
	HomeTeam            string
	AwayTeam            string
	CommenceTime        time.Time
	Status              GameStatus
	OpeningLineCaptured bool
	ClosingLineCaptured bool
	LastSnapshotTime    *time.Time
	UpdatedAt           time.Time
}

// SnapshotRow is one immutable odds capture. OddsData carries the full
// serialized event payload; the schema stays a single document column on
// purpose, the read patterns never need per-outcome rows.
type SnapshotRow struct {
	ID                int64
	GameID            string
	SportKey          string
	CommenceTime      time.Time
	SnapshotType      SnapshotType
	SnapshotTimestamp time.Time
	OddsData          json.RawMessage
	CreatedAt         time.Time
}
