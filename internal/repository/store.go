package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hungryghost/karma-server-go/internal/config"
	"github.com/hungryghost/karma-server-go/internal/game"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// ErrSaveNotFound is returned when no save exists for a game id.
var ErrSaveNotFound = errors.New("saved game not found")

// Dialect identifies the SQL flavour the store speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SavedGame describes one stored game without its full state.
type SavedGame struct {
	GameID    string      `json:"gameId"`
	Players   []string    `json:"players"`
	TurnCount int         `json:"turnCount"`
	Phase     rules.Phase `json:"phase"`
	Winner    *int        `json:"winner,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Store persists game states as JSON documents.
type Store struct {
	dialect Dialect
	db      *sql.DB
	logger  *zap.Logger

	mu    sync.Mutex
	saved map[string]string // gameID -> checksum of the last stored state
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var driverName string
	dialect := Dialect(strings.ToLower(strings.TrimSpace(cfg.Driver)))
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
		if dir := filepath.Dir(cfg.DSN); dir != "." && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	case DialectPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s database requires a dsn", dialect)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	s := &Store{
		dialect: dialect,
		db:      db,
		logger:  logger,
		saved:   make(map[string]string),
	}
	if err := s.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("save-game store ready", zap.String("dialect", string(dialect)))
	return s, nil
}

// Dialect reports the SQL flavour in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bind(pos int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (s *Store) binds(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = s.bind(i + 1)
	}
	return strings.Join(ph, ", ")
}

func (s *Store) applyMigrations(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema migrations: %w", err)
	}
	rows.Close()

	files, err := fs.Glob(migrationFS, fmt.Sprintf("migrations/%s/*.sql", s.dialect))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version := filepath.Base(file)
		if applied[version] {
			continue
		}
		body, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		q := fmt.Sprintf("INSERT INTO schema_migrations (version, applied_at) VALUES (%s)", s.binds(2))
		if _, err := tx.ExecContext(ctx, q, version, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", version, err)
		}
		s.logger.Info("applied migration", zap.String("version", version))
	}
	return nil
}

// Save upserts the state stored under gameID. A state whose checksum
// matches the last one written for the game is skipped; the returned
// bool reports whether a write happened.
func (s *Store) Save(ctx context.Context, gameID string, state game.State) (bool, error) {
	checksum := state.Checksum()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved[gameID] == checksum {
		return false, nil
	}

	doc, err := game.Encode(state)
	if err != nil {
		return false, fmt.Errorf("encode game %s: %w", gameID, err)
	}
	players, err := json.Marshal(state.Names())
	if err != nil {
		return false, fmt.Errorf("encode players for %s: %w", gameID, err)
	}

	var winner sql.NullInt64
	if state.Winner != nil {
		winner = sql.NullInt64{Int64: int64(*state.Winner), Valid: true}
	}
	now := time.Now().UTC().UnixMilli()

	q := fmt.Sprintf(`
		INSERT INTO saved_games (game_id, players, turn_count, phase, winner, checksum, state, created_at, updated_at)
		VALUES (%s)
		ON CONFLICT (game_id) DO UPDATE SET
			players = excluded.players,
			turn_count = excluded.turn_count,
			phase = excluded.phase,
			winner = excluded.winner,
			checksum = excluded.checksum,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, s.binds(9))
	if _, err := s.db.ExecContext(ctx, q,
		gameID, string(players), state.TurnCount, state.Phase.String(), winner,
		checksum, string(doc), now, now,
	); err != nil {
		return false, fmt.Errorf("save game %s: %w", gameID, err)
	}

	s.saved[gameID] = checksum
	s.logger.Debug("saved game",
		zap.String("game_id", gameID),
		zap.Int("turn", state.TurnCount),
		zap.String("checksum", checksum),
	)
	return true, nil
}

// Load returns the state stored under gameID. A stored document that
// fails validation comes back as a fresh game seated with the stored
// names, together with an error wrapping game.ErrInvalidState.
func (s *Store) Load(ctx context.Context, gameID string) (game.State, error) {
	var doc, players string
	q := fmt.Sprintf("SELECT state, players FROM saved_games WHERE game_id = %s", s.bind(1))
	err := s.db.QueryRowContext(ctx, q, gameID).Scan(&doc, &players)
	if errors.Is(err, sql.ErrNoRows) {
		return game.State{}, fmt.Errorf("%w: %s", ErrSaveNotFound, gameID)
	}
	if err != nil {
		return game.State{}, fmt.Errorf("load game %s: %w", gameID, err)
	}

	var names []string
	if err := json.Unmarshal([]byte(players), &names); err != nil {
		s.logger.Warn("stored player names unreadable", zap.String("game_id", gameID), zap.Error(err))
		names = nil
	}

	state, err := game.Decode([]byte(doc), names...)
	if err != nil {
		s.logger.Warn("stored game failed validation",
			zap.String("game_id", gameID),
			zap.Error(err),
		)
		return state, err
	}

	s.mu.Lock()
	s.saved[gameID] = state.Checksum()
	s.mu.Unlock()
	return state, nil
}

// List returns every stored game, most recently updated first.
func (s *Store) List(ctx context.Context) ([]SavedGame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, players, turn_count, phase, winner, updated_at
		FROM saved_games
		ORDER BY updated_at DESC, game_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []SavedGame
	for rows.Next() {
		var (
			g       SavedGame
			players string
			phase   string
			winner  sql.NullInt64
			updated int64
		)
		if err := rows.Scan(&g.GameID, &players, &g.TurnCount, &phase, &winner, &updated); err != nil {
			return nil, fmt.Errorf("scan saved game: %w", err)
		}
		if err := json.Unmarshal([]byte(players), &g.Players); err != nil {
			return nil, fmt.Errorf("decode players for %s: %w", g.GameID, err)
		}
		if g.Phase, err = rules.ParsePhase(phase); err != nil {
			return nil, fmt.Errorf("decode phase for %s: %w", g.GameID, err)
		}
		if winner.Valid {
			w := int(winner.Int64)
			g.Winner = &w
		}
		g.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved games: %w", err)
	}
	return out, nil
}

// Delete removes the save for gameID.
func (s *Store) Delete(ctx context.Context, gameID string) error {
	q := fmt.Sprintf("DELETE FROM saved_games WHERE game_id = %s", s.bind(1))
	res, err := s.db.ExecContext(ctx, q, gameID)
	if err != nil {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}

	s.mu.Lock()
	delete(s.saved, gameID)
	s.mu.Unlock()

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSaveNotFound, gameID)
	}
	return nil
}
