package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	getGameSQL = `SELECT
        game_id,
        sport_key,
        sport_title,
        home_team,
        away_team,
        commence_time,
        status,
        opening_line_captured,
        closing_line_captured,
        last_snapshot_time,
        updated_at
    FROM game_metadata
    WHERE game_id = $1;`

	insertGameSQL = `INSERT INTO game_metadata (
        game_id,
        sport_key,
        sport_title,
        home_team,
        away_team,
        commence_time,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (game_id) DO NOTHING;`

	touchSnapshotTimeSQL = `UPDATE game_metadata
    SET last_snapshot_time = $2, updated_at = NOW()
    WHERE game_id = $1;`

	markOpeningCapturedSQL = `UPDATE game_metadata
    SET opening_line_captured = TRUE, updated_at = NOW()
    WHERE game_id = $1;`

	markClosingCapturedSQL = `UPDATE game_metadata
    SET closing_line_captured = TRUE, updated_at = NOW()
    WHERE game_id = $1;`

	transitionToLiveSQL = `UPDATE game_metadata
    SET status = 'live', updated_at = NOW()
    WHERE game_id = $1
      AND status = 'scheduled'
      AND commence_time <= $2;`

	listActiveGamesSQL = `SELECT
        game_id,
        sport_key,
        sport_title,
        home_team,
        away_team,
        commence_time,
        status,
        opening_line_captured,
        closing_line_captured,
        last_snapshot_time,
        updated_at
    FROM game_metadata
    WHERE sport_key = $1
      AND (status = 'live' OR (status = 'scheduled' AND commence_time <= $2));`

	countGamesByStatusSQL = `SELECT status, COUNT(*)
    FROM game_metadata
    WHERE sport_key = $1
    GROUP BY status;`

	insertSnapshotSQL = `INSERT INTO odds_snapshots (
        game_id,
        sport_key,
        commence_time,
        snapshot_type,
        snapshot_timestamp,
        odds_data
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	latestSnapshotsPerGameSQL = `SELECT DISTINCT ON (game_id)
        id,
        game_id,
        sport_key,
        commence_time,
        snapshot_type,
        snapshot_timestamp,
        odds_data,
        created_at
    FROM odds_snapshots
    WHERE sport_key = $1
    ORDER BY game_id, snapshot_timestamp DESC;`

	listSnapshotsByGameSQL = `SELECT
        id,
        game_id,
        sport_key,
        commence_time,
        snapshot_type,
        snapshot_timestamp,
        odds_data,
        created_at
    FROM odds_snapshots
    WHERE game_id = $1
    ORDER BY snapshot_timestamp ASC;`

	listRecentSnapshotsSQL = `SELECT
        id,
        game_id,
        sport_key,
        commence_time,
        snapshot_type,
        snapshot_timestamp,
        odds_data,
        created_at
    FROM odds_snapshots
    ORDER BY snapshot_timestamp DESC
    LIMIT $1;`
)

// GameStore defines operations on game lifecycle metadata.
type GameStore interface {
	GetGame(ctx context.Context, gameID string) (GameMetadata, bool, error)
	CreateGame(ctx context.Context, meta GameMetadata) error
	ApplySnapshot(ctx context.Context, gameID string, snapshotType SnapshotType, snapshotTime time.Time) error
	ListActiveGames(ctx context.Context, sportKey string, horizon time.Time) ([]GameMetadata, error)
	CountGamesByStatus(ctx context.Context, sportKey string) (map[GameStatus]int64, error)
}

// SnapshotRowStore defines operations on immutable odds snapshots.
type SnapshotRowStore interface {
	InsertSnapshot(ctx context.Context, row SnapshotRow) error
	LatestSnapshotsPerGame(ctx context.Context, sportKey string) ([]SnapshotRow, error)
	ListSnapshotsByGame(ctx context.Context, gameID string) ([]SnapshotRow, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error)
}

// Store aggregates access to game metadata and odds snapshots.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetGame looks up metadata by game id; the second return reports presence.
func (s *Store) GetGame(ctx context.Context, gameID string) (GameMetadata, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return GameMetadata{}, false, err
	}

	meta, scanErr := scanGameMetadata(pool.QueryRow(ctx, getGameSQL, gameID))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return GameMetadata{}, false, nil
		}
		return GameMetadata{}, false, fmt.Errorf("get game: %w", scanErr)
	}
	return meta, true, nil
}

// CreateGame inserts a metadata row; a concurrent insert of the same game id
// is not an error.
func (s *Store) CreateGame(ctx context.Context, meta GameMetadata) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var title interface{}
	if meta.SportTitle != "" {
		title = meta.SportTitle
	}

	if _, execErr := pool.Exec(ctx, insertGameSQL,
		meta.GameID,
		meta.SportKey,
		title,
		meta.HomeTeam,
		meta.AwayTeam,
		meta.CommenceTime,
		string(meta.Status),
	); execErr != nil {
		return fmt.Errorf("create game: %w", execErr)
	}
	return nil
}

// ApplySnapshot records a snapshot against a game's metadata atomically:
// last_snapshot_time always moves, the opening/closing flag follows the
// snapshot type, and a scheduled game whose commence time has passed flips
// to live inside the same transaction.
func (s *Store) ApplySnapshot(ctx context.Context, gameID string, snapshotType SnapshotType, snapshotTime time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, touchSnapshotTimeSQL, gameID, snapshotTime); err != nil {
		return fmt.Errorf("touch snapshot time: %w", err)
	}

	switch snapshotType {
	case SnapshotOpening:
		if _, err := tx.Exec(ctx, markOpeningCapturedSQL, gameID); err != nil {
			return fmt.Errorf("mark opening captured: %w", err)
		}
	case SnapshotClosing:
		if _, err := tx.Exec(ctx, markClosingCapturedSQL, gameID); err != nil {
			return fmt.Errorf("mark closing captured: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, transitionToLiveSQL, gameID, snapshotTime); err != nil {
		return fmt.Errorf("transition to live: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply snapshot: %w", err)
	}
	return nil
}

// ListActiveGames returns games for a sport that are live, or scheduled with
// a commence time at or before the horizon.
func (s *Store) ListActiveGames(ctx context.Context, sportKey string, horizon time.Time) ([]GameMetadata, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveGamesSQL, sportKey, horizon)
	if queryErr != nil {
		return nil, fmt.Errorf("list active games: %w", queryErr)
	}
	defer rows.Close()

	games := make([]GameMetadata, 0)
	for rows.Next() {
		meta, scanErr := scanGameMetadata(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		games = append(games, meta)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return games, nil
}

// CountGamesByStatus returns grouped counts for a sport.
func (s *Store) CountGamesByStatus(ctx context.Context, sportKey string) (map[GameStatus]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, countGamesByStatusSQL, sportKey)
	if queryErr != nil {
		return nil, fmt.Errorf("count games by status: %w", queryErr)
	}
	defer rows.Close()

	counts := make(map[GameStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[GameStatus(status)] = count
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// InsertSnapshot appends one immutable snapshot row.
func (s *Store) InsertSnapshot(ctx context.Context, row SnapshotRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, insertSnapshotSQL,
		row.GameID,
		row.SportKey,
		row.CommenceTime,
		string(row.SnapshotType),
		row.SnapshotTimestamp,
		[]byte(row.OddsData),
	); execErr != nil {
		return fmt.Errorf("insert snapshot: %w", execErr)
	}
	return nil
}

// LatestSnapshotsPerGame returns the max-timestamp snapshot for each game of
// a sport.
func (s *Store) LatestSnapshotsPerGame(ctx context.Context, sportKey string) ([]SnapshotRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestSnapshotsPerGameSQL, sportKey)
	if queryErr != nil {
		return nil, fmt.Errorf("latest snapshots per game: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshotRows(rows)
}

// ListSnapshotsByGame returns every snapshot for a game, oldest first.
func (s *Store) ListSnapshotsByGame(ctx context.Context, gameID string) ([]SnapshotRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsByGameSQL, gameID)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots by game: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshotRows(rows)
}

// ListRecentSnapshots returns the most recent snapshots across all games.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshotRows(rows)
}

func collectSnapshotRows(rows pgx.Rows) ([]SnapshotRow, error) {
	snapshots := make([]SnapshotRow, 0)
	for rows.Next() {
		var (
			row      SnapshotRow
			snapType string
			oddsData []byte
		)
		if err := rows.Scan(
			&row.ID,
			&row.GameID,
			&row.SportKey,
			&row.CommenceTime,
			&snapType,
			&row.SnapshotTimestamp,
			&oddsData,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		row.SnapshotType = SnapshotType(snapType)
		row.OddsData = json.RawMessage(oddsData)
		snapshots = append(snapshots, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanGameMetadata(row pgx.Row) (GameMetadata, error) {
	var (
		meta         GameMetadata
		sportTitle   sql.NullString
		status       string
		lastSnapshot sql.NullTime
	)

	if err := row.Scan(
		&meta.GameID,
		&meta.SportKey,
		&sportTitle,
		&meta.HomeTeam,
		&meta.AwayTeam,
		&meta.CommenceTime,
		&status,
		&meta.OpeningLineCaptured,
		&meta.ClosingLineCaptured,
		&lastSnapshot,
		&meta.UpdatedAt,
	); err != nil {
		return GameMetadata{}, err
	}

	meta.Status = GameStatus(status)
	if sportTitle.Valid {
		meta.SportTitle = sportTitle.String
	}
	if lastSnapshot.Valid {
		value := lastSnapshot.Time
		meta.LastSnapshotTime = &value
	}

	return meta, nil
}

var (
	_ GameStore        = (*Store)(nil)
	_ SnapshotRowStore = (*Store)(nil)
)
