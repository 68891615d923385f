package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ArchivedGame is a row of the game table.
type ArchivedGame struct {
	ID          string  `db:"id"`
	Phase       string  `db:"phase"`
	Round       int     `db:"round"`
	WinningTeam *string `db:"winning_team"`
	StartedAt   string  `db:"started_at"`
	EndedAt     *string `db:"ended_at"`
}

// ArchivedPlayer is a row of the game_player table.
type ArchivedPlayer struct {
	GameID      string `db:"game_id"`
	PlayerID    int    `db:"player_id"`
	Name        string `db:"name"`
	Role        string `db:"role"`
	IsAlive     bool   `db:"is_alive"`
	DeathReason string `db:"death_reason"`
}

// ArchivedEvent is a row of the game_event table.
type ArchivedEvent struct {
	GameID    string `db:"game_id"`
	Seq       int    `db:"seq"`
	Kind      string `db:"kind"`
	Round     int    `db:"round"`
	Phase     string `db:"phase"`
	Details   string `db:"details"` // JSON object
	Public    bool   `db:"public"`
	CreatedAt string `db:"created_at"`
}

// toEvent decodes the row back into a GameEvent (without its viewer list).
func (a ArchivedEvent) toEvent() GameEvent {
	ev := GameEvent{Seq: a.Seq, Kind: EventKind(a.Kind), Round: a.Round, Phase: Phase(a.Phase), Public: a.Public}
	if err := json.Unmarshal([]byte(a.Details), &ev.Details); err != nil {
		logError("ArchivedEvent.toEvent: decode details", err)
	}
	ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, a.CreatedAt)
	return ev
}

// archive is a write-through sqlite record of games, fed as an Observer.
type archive struct {
	db *sqlx.DB
}

func openArchive(dsn string) (*archive, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a := &archive{db: db}
	if err := a.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *archive) Close() error {
	return a.db.Close()
}

func (a *archive) initDB() error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS game (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL DEFAULT 'INIT',
		round INTEGER NOT NULL DEFAULT 0,
		winning_team TEXT,
		started_at TEXT NOT NULL,
		ended_at TEXT
	);
	CREATE TABLE IF NOT EXISTS game_player (
		game_id TEXT NOT NULL,
		player_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		is_alive INTEGER NOT NULL DEFAULT 1,
		death_reason TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, player_id)
	);
	CREATE TABLE IF NOT EXISTS game_event (
		game_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		public INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, seq)
	);
	CREATE TABLE IF NOT EXISTS game_event_viewer (
		game_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		player_id INTEGER NOT NULL,
		FOREIGN KEY (game_id, seq) REFERENCES game_event(game_id, seq),
		UNIQUE(game_id, seq, player_id)
	);
	CREATE INDEX IF NOT EXISTS idx_game_event_lookup ON game_event(game_id, public, seq);
	`
	if _, err := a.db.Exec(schema); err != nil {
		log.Printf("initDB error: %v", err)
		return err
	}
	log.Printf("Archive initialized successfully")
	return nil
}

func (a *archive) PhaseStarted(gameID string, phase Phase, round int) {
	_, err := a.db.Exec(`
		INSERT INTO game (id, phase, round, started_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET phase = excluded.phase, round = excluded.round`,
		gameID, string(phase), round, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		logError("archive.PhaseStarted", err)
	}
}

func (a *archive) EventAdded(gameID string, ev GameEvent) {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		logError("archive.EventAdded: encode details", err)
		details = []byte("{}")
	}

	tx, err := a.db.Beginx()
	if err != nil {
		logError("archive.EventAdded: begin", err)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO game_event (game_id, seq, kind, round, phase, details, public, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		gameID, ev.Seq, string(ev.Kind), ev.Round, string(ev.Phase), string(details), ev.Public,
		ev.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		logError("archive.EventAdded: insert event", err)
		return
	}
	for _, viewer := range ev.VisibleTo {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO game_event_viewer (game_id, seq, player_id) VALUES (?, ?, ?)`,
			gameID, ev.Seq, viewer); err != nil {
			logError("archive.EventAdded: insert viewer", err)
			return
		}
	}

	// Role reveals seed the roster; each is addressed to exactly its player.
	if ev.Kind == EventRoleAssigned && len(ev.VisibleTo) == 1 {
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO game_player (game_id, player_id, name, role) VALUES (?, ?, ?, ?)`,
			gameID, ev.VisibleTo[0], detail(ev.Details, "player_name"), detail(ev.Details, "role"))
		if err != nil {
			logError("archive.EventAdded: insert player", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		logError("archive.EventAdded: commit", err)
	}
}

func (a *archive) GameEnded(gameID string, result GameResult) {
	tx, err := a.db.Beginx()
	if err != nil {
		logError("archive.GameEnded: begin", err)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE game SET winning_team = ?, ended_at = ? WHERE id = ?`,
		string(result.WinningTeam), time.Now().UTC().Format(time.RFC3339Nano), gameID)
	if err != nil {
		logError("archive.GameEnded: update game", err)
		return
	}
	update := func(p PlayerSummary, alive bool) error {
		_, err := tx.Exec(`
			INSERT INTO game_player (game_id, player_id, name, role, is_alive, death_reason) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(game_id, player_id) DO UPDATE SET is_alive = excluded.is_alive, death_reason = excluded.death_reason`,
			gameID, p.ID, p.Name, Role{Kind: p.Role}.Name(), alive, string(p.DeathReason))
		return err
	}
	for _, p := range result.AlivePlayers {
		if err := update(p, true); err != nil {
			logError("archive.GameEnded: update player", err)
			return
		}
	}
	for _, p := range result.DeadPlayers {
		if err := update(p, false); err != nil {
			logError("archive.GameEnded: update player", err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		logError("archive.GameEnded: commit", err)
		return
	}
	LogDBState(a.db, "after game end")
}

func (a *archive) getGame(gameID string) (ArchivedGame, error) {
	var g ArchivedGame
	err := a.db.Get(&g, `SELECT id, phase, round, winning_team, started_at, ended_at FROM game WHERE id = ?`, gameID)
	return g, err
}

func (a *archive) getPlayers(gameID string) ([]ArchivedPlayer, error) {
	var players []ArchivedPlayer
	err := a.db.Select(&players, `
		SELECT game_id, player_id, name, role, is_alive, death_reason
		FROM game_player
		WHERE game_id = ?
		ORDER BY player_id`, gameID)
	return players, err
}

func (a *archive) getPublicEvents(gameID string) ([]ArchivedEvent, error) {
	var events []ArchivedEvent
	err := a.db.Select(&events, `
		SELECT game_id, seq, kind, round, phase, details, public, created_at
		FROM game_event
		WHERE game_id = ? AND public = 1
		ORDER BY seq`, gameID)
	return events, err
}

// getEventsForPlayer returns the public events plus the private ones
// addressed to playerID, in order.
func (a *archive) getEventsForPlayer(gameID string, playerID int) ([]ArchivedEvent, error) {
	var events []ArchivedEvent
	err := a.db.Select(&events, `
		SELECT e.game_id, e.seq, e.kind, e.round, e.phase, e.details, e.public, e.created_at
		FROM game_event e
		WHERE e.game_id = ? AND (e.public = 1 OR EXISTS (
			SELECT 1 FROM game_event_viewer v
			WHERE v.game_id = e.game_id AND v.seq = e.seq AND v.player_id = ?))
		ORDER BY e.seq`, gameID, playerID)
	return events, err
}
