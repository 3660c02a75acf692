package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the persistent backend. It honors the same contract as
// MemStore; durability guarantees beyond that are not part of the contract.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and creates if needed) the database at path and ensures
// the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes all calls, which is what the repository
	// contract requires anyway.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
  id     TEXT PRIMARY KEY,
  name   TEXT NOT NULL,
  status TEXT NOT NULL,
  lat    REAL NOT NULL,
  lng    REAL NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS missions (
  id              TEXT PRIMARY KEY,
  seq             INTEGER NOT NULL UNIQUE,
  lat             REAL NOT NULL,
  lng             REAL NOT NULL,
  status          TEXT NOT NULL,
  timestamp       TEXT NOT NULL,
  assigned_agents TEXT,
  accepted_by     TEXT
);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) GetAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, status, lat, lng FROM agents ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	agents := make([]Agent, 0)
	for rows.Next() {
		var agent Agent
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Status, &agent.Lat, &agent.Lng); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (Agent, bool, error) {
	var agent Agent
	err := s.db.QueryRowContext(ctx, `SELECT id, name, status, lat, lng FROM agents WHERE id = ?;`, id).
		Scan(&agent.ID, &agent.Name, &agent.Status, &agent.Lat, &agent.Lng)
	if err == sql.ErrNoRows {
		return Agent{}, false, nil
	}
	if err != nil {
		return Agent{}, false, fmt.Errorf("query agent %q: %w", id, err)
	}
	return agent, true, nil
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, agent Agent) (Agent, error) {
	if agent.Status == "" {
		agent.Status = AgentAvailable
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO agents(id, name, status, lat, lng) VALUES(?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, status = excluded.status, lat = excluded.lat, lng = excluded.lng;
`, agent.ID, agent.Name, string(agent.Status), agent.Lat, agent.Lng)
	if err != nil {
		return Agent{}, fmt.Errorf("insert agent %q: %w", agent.ID, err)
	}
	return agent, nil
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, id string, patch AgentPatch) (Agent, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Agent{}, false, fmt.Errorf("begin update agent: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var agent Agent
	err = tx.QueryRowContext(ctx, `SELECT id, name, status, lat, lng FROM agents WHERE id = ?;`, id).
		Scan(&agent.ID, &agent.Name, &agent.Status, &agent.Lat, &agent.Lng)
	if err == sql.ErrNoRows {
		return Agent{}, false, nil
	}
	if err != nil {
		return Agent{}, false, fmt.Errorf("query agent %q: %w", id, err)
	}

	merged := agent.applyPatch(patch)
	_, err = tx.ExecContext(ctx, `UPDATE agents SET name = ?, status = ?, lat = ?, lng = ? WHERE id = ?;`,
		merged.Name, string(merged.Status), merged.Lat, merged.Lng, id)
	if err != nil {
		return Agent{}, false, fmt.Errorf("update agent %q: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Agent{}, false, fmt.Errorf("commit update agent: %w", err)
	}
	return merged, true, nil
}

func (s *SQLiteStore) GetMissions(ctx context.Context) ([]Mission, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, lat, lng, status, timestamp, assigned_agents, accepted_by FROM missions ORDER BY seq;`)
	if err != nil {
		return nil, fmt.Errorf("query missions: %w", err)
	}
	defer rows.Close()

	missions := make([]Mission, 0)
	for rows.Next() {
		mission, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, mission)
	}
	return missions, rows.Err()
}

func (s *SQLiteStore) GetMission(ctx context.Context, id string) (Mission, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, lat, lng, status, timestamp, assigned_agents, accepted_by FROM missions WHERE id = ?;`, id)
	mission, err := scanMission(row)
	if err == sql.ErrNoRows {
		return Mission{}, false, nil
	}
	if err != nil {
		return Mission{}, false, err
	}
	return mission, true, nil
}

func (s *SQLiteStore) CreateMission(ctx context.Context, mission NewMission) (Mission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Mission{}, fmt.Errorf("begin create mission: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sequence int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM missions;`).Scan(&sequence); err != nil {
		return Mission{}, fmt.Errorf("next mission sequence: %w", err)
	}

	created := Mission{
		ID:        MissionID(sequence),
		Lat:       mission.Lat,
		Lng:       mission.Lng,
		Status:    MissionPending,
		Timestamp: s.now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO missions(id, seq, lat, lng, status, timestamp, assigned_agents, accepted_by)
VALUES(?, ?, ?, ?, ?, ?, NULL, NULL);
`, created.ID, sequence, created.Lat, created.Lng, string(created.Status), created.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return Mission{}, fmt.Errorf("insert mission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Mission{}, fmt.Errorf("commit create mission: %w", err)
	}
	return created, nil
}

func (s *SQLiteStore) UpdateMission(ctx context.Context, id string, patch MissionPatch) (Mission, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Mission{}, false, fmt.Errorf("begin update mission: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT id, lat, lng, status, timestamp, assigned_agents, accepted_by FROM missions WHERE id = ?;`, id)
	mission, err := scanMission(row)
	if err == sql.ErrNoRows {
		return Mission{}, false, nil
	}
	if err != nil {
		return Mission{}, false, err
	}

	merged := mission.applyPatch(patch)
	assigned, err := encodeAssigned(merged.AssignedAgents)
	if err != nil {
		return Mission{}, false, err
	}
	var acceptedBy any
	if merged.AcceptedBy != nil {
		acceptedBy = *merged.AcceptedBy
	}
	_, err = tx.ExecContext(ctx, `
UPDATE missions SET status = ?, assigned_agents = ?, accepted_by = ? WHERE id = ?;`,
		string(merged.Status), assigned, acceptedBy, id)
	if err != nil {
		return Mission{}, false, fmt.Errorf("update mission %q: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Mission{}, false, fmt.Errorf("commit update mission: %w", err)
	}
	return merged, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (Mission, error) {
	var mission Mission
	var timestamp string
	var assigned sql.NullString
	var acceptedBy sql.NullString
	if err := row.Scan(&mission.ID, &mission.Lat, &mission.Lng, &mission.Status, &timestamp, &assigned, &acceptedBy); err != nil {
		return Mission{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return Mission{}, fmt.Errorf("parse mission timestamp %q: %w", timestamp, err)
	}
	mission.Timestamp = parsed
	if assigned.Valid {
		if err := json.Unmarshal([]byte(assigned.String), &mission.AssignedAgents); err != nil {
			return Mission{}, fmt.Errorf("decode assigned agents: %w", err)
		}
	}
	if acceptedBy.Valid {
		value := acceptedBy.String
		mission.AcceptedBy = &value
	}
	return mission, nil
}

func encodeAssigned(agents []string) (any, error) {
	if agents == nil {
		return nil, nil
	}
	payload, err := json.Marshal(agents)
	if err != nil {
		return nil, fmt.Errorf("encode assigned agents: %w", err)
	}
	return string(payload), nil
}
