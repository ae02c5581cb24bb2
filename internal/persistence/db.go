// Package persistence provides SQLite-based simulation state storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/npcsim/internal/agents"
	"github.com/talgya/npcsim/internal/engine"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// Metadata keys.
const (
	MetaLastTick = "last_tick"
	MetaSavedAt  = "saved_at"
	MetaScenario = "scenario"
)

// DB wraps a SQLite connection for simulation state persistence.
type DB struct {
	conn *sqlx.DB

	mu     sync.Mutex
	cursor uint64 // simulation event cursor already written
}

// AgentRow is one saved agent.
type AgentRow struct {
	ID           string  `db:"id"`
	Name         string  `db:"name"`
	PosX         float64 `db:"pos_x"`
	PosY         float64 `db:"pos_y"`
	PosZ         float64 `db:"pos_z"`
	FwdX         float64 `db:"fwd_x"`
	FwdY         float64 `db:"fwd_y"`
	FwdZ         float64 `db:"fwd_z"`
	State        string  `db:"state"`
	Plan         string  `db:"plan"`
	NeedsJSON    string  `db:"needs_json"`
	SnapshotJSON string  `db:"snapshot_json"`
	SavedTick    int64   `db:"saved_tick"`
}

// Needs decodes the saved need levels.
func (r AgentRow) Needs() (map[string]float64, error) {
	var needs map[string]float64
	if err := json.Unmarshal([]byte(r.NeedsJSON), &needs); err != nil {
		return nil, fmt.Errorf("agent %s needs: %w", r.Name, err)
	}
	return needs, nil
}

// EventRow is one saved agent event.
type EventRow struct {
	AtMillis int64  `db:"at_ms"`
	AgentID  string `db:"agent_id"`
	Agent    string `db:"agent"`
	Kind     string `db:"kind"`
	Message  string `db:"message"`
}

// At returns the simulated time of the event.
func (e EventRow) At() time.Duration { return time.Duration(e.AtMillis) * time.Millisecond }

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		pos_z REAL NOT NULL,
		fwd_x REAL NOT NULL,
		fwd_y REAL NOT NULL,
		fwd_z REAL NOT NULL,
		state TEXT NOT NULL,
		plan TEXT NOT NULL,
		needs_json TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		saved_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at_ms INTEGER NOT NULL,
		agent_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveAgents writes all agent snapshots to the database (full replace).
func (db *DB) SaveAgents(snaps []agents.Snapshot, tick uint64) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO agents
		(id, name, pos_x, pos_y, pos_z, fwd_x, fwd_y, fwd_z, state, plan, needs_json, snapshot_json, saved_tick)
		VALUES (:id, :name, :pos_x, :pos_y, :pos_z, :fwd_x, :fwd_y, :fwd_z, :state, :plan, :needs_json, :snapshot_json, :saved_tick)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range snaps {
		needsJSON, err := json.Marshal(s.Needs)
		if err != nil {
			return fmt.Errorf("agent %s needs: %w", s.Name, err)
		}
		snapJSON, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("agent %s snapshot: %w", s.Name, err)
		}
		row := AgentRow{
			ID:           string(s.ID),
			Name:         s.Name,
			PosX:         s.Position.X,
			PosY:         s.Position.Y,
			PosZ:         s.Position.Z,
			FwdX:         s.Forward.X,
			FwdY:         s.Forward.Y,
			FwdZ:         s.Forward.Z,
			State:        s.State,
			Plan:         s.Plan,
			NeedsJSON:    string(needsJSON),
			SnapshotJSON: string(snapJSON),
			SavedTick:    int64(tick),
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert agent %s: %w", s.Name, err)
		}
	}

	return tx.Commit()
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []agents.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (at_ms, agent_id, agent, kind, message) VALUES (?, ?, ?, ?, ?)",
			e.At.Milliseconds(), string(e.AgentID), e.Agent, string(e.Kind), e.Message,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// LastTick returns the saved tick, or 0 when nothing was saved.
func (db *DB) LastTick() (uint64, error) {
	v, err := db.GetMeta(MetaLastTick)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

// HasWorldState reports whether a save exists.
func (db *DB) HasWorldState() bool {
	_, err := db.GetMeta(MetaLastTick)
	return err == nil
}

// SaveWorldState performs a full save: every agent, the events published
// since the previous save and the tick metadata.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tick := sim.CurrentTick()
	snaps := sim.Snapshots()
	events, cursor := sim.EventsSince(db.cursor)
	slog.Info("saving world state", "agents", len(snaps), "events", len(events), "tick", tick)

	if err := db.SaveAgents(snaps, tick); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveEvents(events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	db.cursor = cursor

	if err := db.SaveMeta(MetaLastTick, strconv.FormatUint(tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta(MetaSavedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if sim.Name != "" {
		if err := db.SaveMeta(MetaScenario, sim.Name); err != nil {
			return fmt.Errorf("save meta: %w", err)
		}
	}

	slog.Info("world state saved")
	return nil
}

// LoadAgents returns every saved agent row, by name.
func (db *DB) LoadAgents() ([]AgentRow, error) {
	var rows []AgentRow
	err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY name")
	return rows, err
}

// LoadAgentStates returns the restorable state of every saved agent.
func (db *DB) LoadAgentStates() (map[world.ObjectID]agents.RestoreState, error) {
	rows, err := db.LoadAgents()
	if err != nil {
		return nil, err
	}
	out := make(map[world.ObjectID]agents.RestoreState, len(rows))
	for _, r := range rows {
		needs, err := r.Needs()
		if err != nil {
			return nil, err
		}
		out[world.ObjectID(r.ID)] = agents.RestoreState{
			Position: geom.V(r.PosX, r.PosY, r.PosZ),
			Forward:  geom.V(r.FwdX, r.FwdY, r.FwdZ),
			Needs:    needs,
		}
	}
	return out, nil
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]EventRow, error) {
	var events []EventRow
	err := db.conn.Select(&events,
		"SELECT at_ms, agent_id, agent, kind, message FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// EventCounts returns the number of saved events per kind.
func (db *DB) EventCounts() (map[string]int, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"n"`
	}
	if err := db.conn.Select(&rows, "SELECT kind, COUNT(*) AS n FROM events GROUP BY kind"); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Count
	}
	return out, nil
}
